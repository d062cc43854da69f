// Package report formats record listings for output. Formatters are plain
// consumers of the read interface and carry no caching or fetch logic.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/gptscan/gptscan/internal/record"
)

// Format identifies an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatJSON, FormatCSV:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown format %q (want table, json, or csv)", s)
}

// Write renders the records in the given format.
func Write(w io.Writer, format Format, gpts []record.GPT) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, gpts)
	case FormatCSV:
		return WriteCSV(w, gpts)
	default:
		return WriteTable(w, gpts)
	}
}

// WriteTable renders an aligned text table of record summaries.
func WriteTable(w io.Writer, gpts []record.GPT) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tOWNER\tVISIBILITY\tSHARED\tTOOLS\tFILES\tCREATED")
	for i := range gpts {
		g := &gpts[i]
		created := ""
		if t := g.Created(); !t.IsZero() {
			created = t.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			g.ID,
			clip(g.Name(), 30),
			g.OwnerEmail,
			g.Visibility(),
			g.SharedUserCount(),
			len(g.Tools()),
			len(g.Files()),
			created,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nTotal GPTs: %d\n", len(gpts))
	return err
}

// WriteJSON renders the full records as indented JSON.
func WriteJSON(w io.Writer, gpts []record.GPT) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(gpts)
}

// csvHeader is the flattened column set for CSV export.
var csvHeader = []string{
	"id", "name", "description", "owner_id", "owner_email", "builder_name",
	"visibility", "shared_users", "has_custom_actions", "tools", "files", "created_at",
}

// WriteCSV renders one flattened row per record.
func WriteCSV(w io.Writer, gpts []record.GPT) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for i := range gpts {
		g := &gpts[i]
		toolTypes := make([]string, 0, len(g.Tools()))
		for _, t := range g.Tools() {
			toolTypes = append(toolTypes, t.Type)
		}
		fileNames := make([]string, 0, len(g.Files()))
		for _, f := range g.Files() {
			fileNames = append(fileNames, f.Name)
		}
		created := ""
		if t := g.Created(); !t.IsZero() {
			created = t.UTC().Format("2006-01-02T15:04:05Z")
		}
		row := []string{
			g.ID, g.Name(), g.Description(), g.OwnerID, g.OwnerEmail, g.BuilderName,
			g.Visibility(),
			strconv.Itoa(g.SharedUserCount()),
			strconv.FormatBool(g.HasCustomActions()),
			strings.Join(toolTypes, ";"),
			strings.Join(fileNames, ";"),
			created,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
