package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/gptscan/gptscan/internal/api"
	"github.com/gptscan/gptscan/internal/cache"
	"github.com/gptscan/gptscan/internal/config"
	"github.com/gptscan/gptscan/internal/errors"
	"github.com/gptscan/gptscan/internal/ingest"
	"github.com/gptscan/gptscan/internal/read"
	"github.com/gptscan/gptscan/internal/record"
	"github.com/gptscan/gptscan/internal/report"
	"github.com/gptscan/gptscan/internal/web"
)

// cliApp bundles the process-wide dependencies the commands share.
type cliApp struct {
	db  *sql.DB
	cfg *config.Config
	log *slog.Logger
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, log *slog.Logger) *cli.App {
	a := &cliApp{db: db, cfg: cfg, log: log}
	app := &cli.App{
		Name:    "gptscan",
		Usage:   "Workspace GPT compliance auditor",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-key", Aliases: []string{"k"}, Usage: "Compliance API key (defaults to " + config.EnvAPIKey + ")"},
			&cli.StringFlag{Name: "workspace-id", Aliases: []string{"w"}, Usage: "Workspace ID (defaults to " + config.EnvWorkspaceID + ")"},
		},
		Commands: []*cli.Command{
			a.downloadCmd(),
			a.listCmd(),
			a.showCmd(),
			a.actionsCmd(),
			a.cacheCmd(),
			a.webCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// effectiveConfig overlays CLI flags on the loaded config.
func (a *cliApp) effectiveConfig(c *cli.Context) *config.Config {
	cfg := *a.cfg
	if key := c.String("api-key"); key != "" {
		cfg.APIKey = key
	}
	if ws := c.String("workspace-id"); ws != "" {
		cfg.WorkspaceID = ws
	}
	return &cfg
}

// stack wires the full ingestion pipeline for one invocation.
func (a *cliApp) stack(c *cli.Context) (*read.Reader, *ingest.Orchestrator, error) {
	cfg := a.effectiveConfig(c)
	client, err := api.NewClient(cfg, a.log)
	if err != nil {
		return nil, nil, err
	}
	store := cache.NewStore(a.db, a.log)
	orch := ingest.New(client, store, cfg, a.log)
	return read.NewReader(orch), orch, nil
}

// downloadCmd fetches all GPTs for the workspace and commits them to the cache.
func (a *cliApp) downloadCmd() *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download all GPTs from the workspace and cache them locally",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Bypass the staleness check and re-fetch"},
		},
		Action: func(c *cli.Context) error {
			_, orch, err := a.stack(c)
			if err != nil {
				return outputError(err)
			}

			start := time.Now()
			result, err := orch.DownloadAll(c.Context, c.Bool("force"))
			if err != nil {
				return outputError(err)
			}

			if result.FromCache {
				fmt.Printf("Using cached results: %d GPTs, %.1f hours old (run %s)\n",
					len(result.Records), time.Since(result.FetchedAt).Hours(), result.RunID)
				return nil
			}
			fmt.Printf("Downloaded %d GPTs in %d page(s), %s (run %s)\n",
				len(result.Records), result.Pages,
				time.Since(start).Round(time.Millisecond), result.RunID)
			return nil
		},
	}
}

// listCmd lists cached GPTs with optional filtering.
func (a *cliApp) listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List GPTs in the workspace",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Substring match on name, description, owner, or ID"},
			&cli.StringFlag{Name: "created-after", Usage: "Only GPTs created after this date (YYYY-MM-DD)"},
			&cli.StringFlag{Name: "created-before", Usage: "Only GPTs created before this date (YYYY-MM-DD)"},
			&cli.StringFlag{Name: "format", Value: "table", Usage: "Output format: table|json|csv"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write output to a file instead of stdout"},
			&cli.BoolFlag{Name: "no-download", Usage: "Serve strictly from cache, never fetch"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Force a fresh download first"},
		},
		Action: func(c *cli.Context) error {
			format, err := report.ParseFormat(c.String("format"))
			if err != nil {
				return outputError(errors.NewValidation("format", err.Error()))
			}
			filter, err := buildFilter(c)
			if err != nil {
				return outputError(err)
			}

			reader, _, err := a.stack(c)
			if err != nil {
				return outputError(err)
			}

			listing, err := reader.ListRecords(c.Context, read.ListOptions{
				Filter:    filter,
				Force:     c.Bool("force"),
				CacheOnly: c.Bool("no-download"),
			})
			if err != nil {
				return outputError(err)
			}

			out := os.Stdout
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				defer f.Close()
				out = f
			}
			return report.Write(out, format, listing.Records)
		},
	}
}

// showCmd prints one GPT record as JSON.
func (a *cliApp) showCmd() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show the full record for one GPT",
		ArgsUsage: "<gpt-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewValidation("gpt_id", "usage: gptscan show <gpt-id>"))
			}

			reader, _, err := a.stack(c)
			if err != nil {
				return outputError(err)
			}

			gpt, err := reader.GetRecord(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			return outputJSON(gpt)
		},
	}
}

// actionsCmd enumerates custom-action API integrations across the workspace.
func (a *cliApp) actionsCmd() *cli.Command {
	return &cli.Command{
		Name:  "actions",
		Usage: "Discover custom-action API integrations declared by GPTs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: "table", Usage: "Output format: table|json"},
			&cli.BoolFlag{Name: "no-download", Usage: "Serve strictly from cache, never fetch"},
		},
		Action: func(c *cli.Context) error {
			reader, _, err := a.stack(c)
			if err != nil {
				return outputError(err)
			}

			listing, err := reader.ListRecords(c.Context, read.ListOptions{
				CacheOnly: c.Bool("no-download"),
			})
			if err != nil {
				return outputError(err)
			}

			usages := report.CollectActions(listing.Records)
			if c.String("format") == "json" {
				return outputJSON(usages)
			}
			return report.WriteActions(os.Stdout, usages)
		},
	}
}

// cacheCmd exposes cache introspection and invalidation.
func (a *cliApp) cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the local cache",
		Subcommands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show committed cache entries for the workspace",
				Action: func(c *cli.Context) error {
					_, orch, err := a.stack(c)
					if err != nil {
						return outputError(err)
					}
					infos, err := orch.CacheStatus()
					if err != nil {
						return outputError(err)
					}
					if infos == nil {
						infos = []cache.EntryInfo{}
					}
					return outputJSON(infos)
				},
			},
			{
				Name:  "clear",
				Usage: "Remove every cached entry for the workspace",
				Action: func(c *cli.Context) error {
					_, orch, err := a.stack(c)
					if err != nil {
						return outputError(err)
					}
					n, err := orch.InvalidateWorkspace()
					if err != nil {
						return outputError(err)
					}
					fmt.Printf("Removed %d cache entr%s\n", n, pluralY(n))
					return nil
				},
			},
		},
	}
}

// webCmd serves the local read-only browser.
func (a *cliApp) webCmd() *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Serve a local read-only browser for cached GPTs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8690", Usage: "Listen address"},
		},
		Action: func(c *cli.Context) error {
			reader, _, err := a.stack(c)
			if err != nil {
				return outputError(err)
			}
			srv := web.NewServer(reader, a.log)
			fmt.Printf("Serving on http://%s\n", c.String("addr"))
			return srv.ListenAndServe(c.Context, c.String("addr"))
		},
	}
}

// Helper functions

// buildFilter parses the list command's filter flags.
func buildFilter(c *cli.Context) (record.Filter, error) {
	filter := record.Filter{Query: c.String("search")}
	if s := c.String("created-after"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return filter, errors.NewValidation("created-after", err.Error())
		}
		filter.CreatedAfter = &t
	}
	if s := c.String("created-before"); s != "" {
		t, err := parseDate(s)
		if err != nil {
			return filter, errors.NewValidation("created-before", err.Error())
		}
		filter.CreatedBefore = &t
	}
	return filter, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC 3339)", s)
	}
	return t, nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if gErr, ok := err.(*errors.Error); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", gErr.Code, gErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
