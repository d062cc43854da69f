// Package ingest coordinates the API client and the cache store. It is the
// only component that decides fetch-vs-cache and the only writer of cache
// state. Downstream consumers go through the read interface, never here
// directly.
package ingest

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"github.com/gptscan/gptscan/internal/api"
	"github.com/gptscan/gptscan/internal/cache"
	"github.com/gptscan/gptscan/internal/config"
	"github.com/gptscan/gptscan/internal/errors"
	"github.com/gptscan/gptscan/internal/record"
)

// Fetcher is the slice of the API client the orchestrator needs.
type Fetcher interface {
	FetchPage(ctx context.Context, cursor string, filters map[string]string) (*api.ListResponse, error)
	FetchDetail(ctx context.Context, gptID string) (*record.GPT, error)
	WorkspaceID() string
}

// Orchestrator drives paginated fetch runs and commits their results.
// Concurrent requests for the same cache key collapse into a single
// in-flight run; waiters share its outcome.
type Orchestrator struct {
	fetcher Fetcher
	store   *cache.Store
	maxAge  time.Duration
	log     *slog.Logger
	flights singleflight.Group
}

// New creates an Orchestrator. maxAge comes from the staleness policy in cfg.
func New(fetcher Fetcher, store *cache.Store, cfg *config.Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		fetcher: fetcher,
		store:   store,
		maxAge:  cfg.CacheMaxAge(),
		log:     log,
	}
}

// DownloadResult reports the outcome of one download-all operation.
type DownloadResult struct {
	Records   []record.GPT
	RunID     string
	Pages     int
	FromCache bool
	FetchedAt time.Time
}

// DownloadAll returns the workspace's full agent list, serving the
// committed cache entry when it is fresh and re-fetching otherwise.
// force bypasses the staleness check and always re-fetches, republishing
// even if the content is unchanged.
func (o *Orchestrator) DownloadAll(ctx context.Context, force bool) (*DownloadResult, error) {
	key := cache.ListKey(o.fetcher.WorkspaceID())

	if !force {
		entry, err := o.store.Get(key)
		if err != nil {
			return nil, err
		}
		if entry != nil && !entry.IsStale(o.maxAge) {
			o.log.Debug("serving agent list from cache",
				"key", key.String(), "records", len(entry.Records), "age", entry.Age())
			return &DownloadResult{
				Records:   entry.Records,
				RunID:     entry.RunID,
				FromCache: true,
				FetchedAt: entry.FetchedAt,
			}, nil
		}
	}

	v, err, _ := o.flights.Do(key.String(), func() (any, error) {
		return o.fetchAndCommit(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*DownloadResult), nil
}

// CachedList returns the committed agent-list entry without any network
// call, regardless of staleness. Returns nil on a cache miss.
func (o *Orchestrator) CachedList() (*DownloadResult, error) {
	entry, err := o.store.Get(cache.ListKey(o.fetcher.WorkspaceID()))
	if err != nil || entry == nil {
		return nil, err
	}
	return &DownloadResult{
		Records:   entry.Records,
		RunID:     entry.RunID,
		FromCache: true,
		FetchedAt: entry.FetchedAt,
	}, nil
}

// fetchAndCommit runs one complete paginated fetch. Pages accumulate in a
// staging buffer; nothing is written to the store until the final page
// arrives, so an aborted run leaves the prior committed entry untouched.
func (o *Orchestrator) fetchAndCommit(ctx context.Context, key cache.Key) (*DownloadResult, error) {
	runID := newRunID()
	o.log.Info("starting fetch run", "run_id", runID, "key", key.String())
	start := time.Now()

	var staging []record.GPT
	cursor := ""
	pages := 0

	for {
		resp, err := o.fetcher.FetchPage(ctx, cursor, nil)
		if err != nil {
			return nil, abortError(err, runID, pages)
		}
		pages++
		staging = append(staging, resp.Data...)
		o.log.Debug("fetched page", "run_id", runID, "page", pages, "records", len(resp.Data))

		if resp.Done() {
			break
		}
		cursor = resp.LastID
	}

	entry := &cache.Entry{
		Key:       key,
		Records:   staging,
		RunID:     runID,
		FetchedAt: time.Now(),
	}
	if err := o.store.Put(entry); err != nil {
		return nil, err
	}

	o.log.Info("fetch run committed",
		"run_id", runID, "records", len(staging), "pages", pages,
		"duration", time.Since(start).Round(time.Millisecond))

	return &DownloadResult{
		Records:   staging,
		RunID:     runID,
		Pages:     pages,
		FetchedAt: entry.FetchedAt,
	}, nil
}

// abortError annotates a mid-run failure with how far the run got.
// The failing page is pagesFetched+1, so "N of M pages fetched".
func abortError(err error, runID string, pagesFetched int) error {
	attempted := pagesFetched + 1
	if gErr, ok := err.(*errors.Error); ok {
		if gErr.Details == nil {
			gErr.Details = map[string]any{}
		}
		gErr.Details["run_id"] = runID
		gErr.Details["pages_fetched"] = pagesFetched
		gErr.Message = fmt.Sprintf("%s; %d of %d pages fetched", gErr.Message, pagesFetched, attempted)
		return gErr
	}
	return fmt.Errorf("fetch run %s aborted, %d of %d pages fetched: %w", runID, pagesFetched, attempted, err)
}

// GetDetail returns the full record for one GPT, cached per-resource.
// A NotFound result is never cached.
func (o *Orchestrator) GetDetail(ctx context.Context, gptID string, force bool) (*record.GPT, error) {
	key := cache.DetailKey(o.fetcher.WorkspaceID(), gptID)

	if !force {
		entry, err := o.store.Get(key)
		if err != nil {
			return nil, err
		}
		if entry != nil && !entry.IsStale(o.maxAge) && len(entry.Records) == 1 {
			gpt := entry.Records[0]
			return &gpt, nil
		}
	}

	v, err, _ := o.flights.Do(key.String(), func() (any, error) {
		gpt, err := o.fetcher.FetchDetail(ctx, gptID)
		if err != nil {
			return nil, err
		}
		entry := &cache.Entry{
			Key:       key,
			Records:   []record.GPT{*gpt},
			RunID:     newRunID(),
			FetchedAt: time.Now(),
		}
		if err := o.store.Put(entry); err != nil {
			return nil, err
		}
		return gpt, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*record.GPT), nil
}

// BatchFailure is one failed item in a multi-resource run.
type BatchFailure struct {
	GPTID   string           `json:"gpt_id"`
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// BatchResult is the partial-success summary of a multi-resource run.
type BatchResult struct {
	Records  []record.GPT   `json:"records"`
	Failures []BatchFailure `json:"failures,omitempty"`
}

// Summary renders "N succeeded, M failed".
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("%d succeeded, %d failed", len(r.Records), len(r.Failures))
}

// FetchDetails fetches full records for a set of GPT IDs. A NotFound for
// one ID is recorded as a per-item failure and does not abort the rest;
// fatal errors (authentication, authorization, validation) abort the run.
func (o *Orchestrator) FetchDetails(ctx context.Context, gptIDs []string, force bool) (*BatchResult, error) {
	result := &BatchResult{}
	for _, id := range gptIDs {
		gpt, err := o.GetDetail(ctx, id, force)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				result.Failures = append(result.Failures, BatchFailure{
					GPTID:   id,
					Code:    errors.ErrNotFound,
					Message: err.Error(),
				})
				o.log.Warn("skipping missing GPT", "gpt_id", id)
				continue
			}
			return nil, err
		}
		result.Records = append(result.Records, *gpt)
	}
	return result, nil
}

// InvalidateWorkspace drops every committed entry for the workspace.
func (o *Orchestrator) InvalidateWorkspace() (int, error) {
	return o.store.InvalidateWorkspace(o.fetcher.WorkspaceID())
}

// CacheStatus summarizes the workspace's committed entries.
func (o *Orchestrator) CacheStatus() ([]cache.EntryInfo, error) {
	return o.store.Status(o.fetcher.WorkspaceID())
}

// newRunID returns a ULID identifying one fetch run.
func newRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}
