// Package read is the single entry point downstream consumers use to
// obtain workspace records. It resolves everything through the ingestion
// orchestrator; consumers never see the cache store or the API client.
package read

import (
	"context"
	"time"

	"github.com/gptscan/gptscan/internal/errors"
	"github.com/gptscan/gptscan/internal/ingest"
	"github.com/gptscan/gptscan/internal/record"
)

// Reader serves consistent record snapshots. Every listing reflects one
// fetch run; records from different runs are never mixed.
type Reader struct {
	orch *ingest.Orchestrator
}

// NewReader creates a Reader over the orchestrator.
func NewReader(orch *ingest.Orchestrator) *Reader {
	return &Reader{orch: orch}
}

// ListOptions controls a listing.
type ListOptions struct {
	// Filter narrows the result. Filtered queries are satisfied by
	// filtering the full-list snapshot in memory, so they share the full
	// list's staleness.
	Filter record.Filter

	// Force re-fetches even if the cached snapshot is fresh.
	Force bool

	// CacheOnly serves strictly from cache, regardless of staleness.
	// A cold cache yields a NotFound error rather than a network call.
	CacheOnly bool
}

// Listing is one consistent snapshot of workspace records.
type Listing struct {
	Records   []record.GPT
	Total     int // records in the snapshot before filtering
	RunID     string
	FromCache bool
	FetchedAt time.Time
}

// ListRecords returns the workspace's records, filtered per opts.
func (r *Reader) ListRecords(ctx context.Context, opts ListOptions) (*Listing, error) {
	var (
		result *ingest.DownloadResult
		err    error
	)
	if opts.CacheOnly {
		result, err = r.orch.CachedList()
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, errors.NewNotFound("cached agent list; run 'gptscan download' first")
		}
	} else {
		result, err = r.orch.DownloadAll(ctx, opts.Force)
		if err != nil {
			return nil, err
		}
	}

	return &Listing{
		Records:   opts.Filter.Apply(result.Records),
		Total:     len(result.Records),
		RunID:     result.RunID,
		FromCache: result.FromCache,
		FetchedAt: result.FetchedAt,
	}, nil
}

// GetRecord returns one record by ID. The full-list snapshot is consulted
// first; absent IDs fall through to a detail fetch, which reports NotFound
// if the remote has no such GPT.
func (r *Reader) GetRecord(ctx context.Context, gptID string) (*record.GPT, error) {
	if gptID == "" {
		return nil, errors.NewValidation("gpt_id", "GPT ID must not be empty")
	}

	if listing, err := r.orch.CachedList(); err == nil && listing != nil {
		for i := range listing.Records {
			if listing.Records[i].ID == gptID {
				gpt := listing.Records[i]
				return &gpt, nil
			}
		}
	}

	return r.orch.GetDetail(ctx, gptID, false)
}

// GetRecords fetches several records and reports partial success; one
// missing ID does not abort the others.
func (r *Reader) GetRecords(ctx context.Context, gptIDs []string) (*ingest.BatchResult, error) {
	return r.orch.FetchDetails(ctx, gptIDs, false)
}
