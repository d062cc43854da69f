package ingest

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gptscan/gptscan/internal/api"
	"github.com/gptscan/gptscan/internal/cache"
	"github.com/gptscan/gptscan/internal/config"
	"github.com/gptscan/gptscan/internal/errors"
	"github.com/gptscan/gptscan/internal/record"
)

// fakeFetcher serves scripted pages and details, counting calls.
type fakeFetcher struct {
	mu          sync.Mutex
	pages       map[string]*api.ListResponse // keyed by cursor
	pageErrs    map[string]error             // per-cursor failure
	details     map[string]*record.GPT
	detailErrs  map[string]error
	pageCalls   int
	detailCalls map[string]int
	pageDelay   time.Duration
}

func (f *fakeFetcher) FetchPage(ctx context.Context, cursor string, filters map[string]string) (*api.ListResponse, error) {
	f.mu.Lock()
	f.pageCalls++
	f.mu.Unlock()
	if f.pageDelay > 0 {
		time.Sleep(f.pageDelay)
	}
	if err, ok := f.pageErrs[cursor]; ok {
		return nil, err
	}
	resp, ok := f.pages[cursor]
	if !ok {
		return nil, errors.NewInternal(nil)
	}
	return resp, nil
}

func (f *fakeFetcher) FetchDetail(ctx context.Context, gptID string) (*record.GPT, error) {
	f.mu.Lock()
	if f.detailCalls == nil {
		f.detailCalls = map[string]int{}
	}
	f.detailCalls[gptID]++
	f.mu.Unlock()
	if err, ok := f.detailErrs[gptID]; ok {
		return nil, err
	}
	gpt, ok := f.details[gptID]
	if !ok {
		return nil, errors.NewNotFound(gptID)
	}
	return gpt, nil
}

func (f *fakeFetcher) WorkspaceID() string { return "ws-1" }

func (f *fakeFetcher) totalPageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls
}

func gpts(ids ...string) []record.GPT {
	out := make([]record.GPT, 0, len(ids))
	for _, id := range ids {
		out = append(out, record.GPT{Object: "gpt", ID: id})
	}
	return out
}

// twoPageFetcher scripts the list as two pages of three records each.
func twoPageFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: map[string]*api.ListResponse{
			"":    {Data: gpts("g_a", "g_b", "g_c"), HasMore: true, LastID: "g_c"},
			"g_c": {Data: gpts("g_d", "g_e", "g_f"), HasMore: false},
		},
	}
}

func testOrchestrator(t *testing.T, fetcher Fetcher) (*Orchestrator, *cache.Store) {
	t.Helper()
	db, err := cache.Init(t.TempDir())
	if err != nil {
		t.Fatalf("cache.Init() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cache.NewStore(db, log)
	cfg := &config.Config{CacheMaxAgeHours: 24}
	return New(fetcher, store, cfg, log), store
}

func TestDownloadAll_ColdCache(t *testing.T) {
	fetcher := twoPageFetcher()
	orch, store := testOrchestrator(t, fetcher)

	result, err := orch.DownloadAll(context.Background(), false)
	if err != nil {
		t.Fatalf("DownloadAll() error = %v", err)
	}

	if result.FromCache {
		t.Error("cold cache result claims FromCache")
	}
	if result.Pages != 2 {
		t.Errorf("Pages = %d, want 2", result.Pages)
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
	want := []string{"g_a", "g_b", "g_c", "g_d", "g_e", "g_f"}
	if len(result.Records) != len(want) {
		t.Fatalf("len(Records) = %d, want %d", len(result.Records), len(want))
	}
	for i, id := range want {
		if result.Records[i].ID != id {
			t.Errorf("Records[%d].ID = %s, want %s (cursor order preserved)", i, result.Records[i].ID, id)
		}
	}

	// The run is committed durably
	entry, err := store.Get(cache.ListKey("ws-1"))
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("no committed entry after a successful run")
	}
	if entry.RunID != result.RunID {
		t.Errorf("committed RunID = %q, want %q", entry.RunID, result.RunID)
	}
}

func TestDownloadAll_ServesFreshCache(t *testing.T) {
	fetcher := twoPageFetcher()
	orch, _ := testOrchestrator(t, fetcher)

	first, err := orch.DownloadAll(context.Background(), false)
	if err != nil {
		t.Fatalf("first DownloadAll() error = %v", err)
	}
	callsAfterFirst := fetcher.totalPageCalls()

	second, err := orch.DownloadAll(context.Background(), false)
	if err != nil {
		t.Fatalf("second DownloadAll() error = %v", err)
	}

	if !second.FromCache {
		t.Error("second call should be served from cache")
	}
	if second.RunID != first.RunID {
		t.Errorf("cached RunID = %q, want the committed run %q", second.RunID, first.RunID)
	}
	if fetcher.totalPageCalls() != callsAfterFirst {
		t.Errorf("page calls grew from %d to %d on a fresh cache", callsAfterFirst, fetcher.totalPageCalls())
	}
}

func TestDownloadAll_StaleTriggersRefetch(t *testing.T) {
	fetcher := twoPageFetcher()
	orch, store := testOrchestrator(t, fetcher)

	// Committed entry older than the staleness threshold
	err := store.Put(&cache.Entry{
		Key:       cache.ListKey("ws-1"),
		Records:   gpts("g_old"),
		RunID:     "01OLD",
		FetchedAt: time.Now().Add(-25 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := orch.DownloadAll(context.Background(), false)
	if err != nil {
		t.Fatalf("DownloadAll() error = %v", err)
	}
	if result.FromCache {
		t.Error("stale entry was served instead of re-fetched")
	}
	if result.RunID == "01OLD" {
		t.Error("RunID did not change on re-fetch")
	}
	if len(result.Records) != 6 {
		t.Errorf("len(Records) = %d, want 6 from the new run", len(result.Records))
	}
}

func TestDownloadAll_ForceRefreshRepublishes(t *testing.T) {
	fetcher := twoPageFetcher()
	orch, _ := testOrchestrator(t, fetcher)

	first, err := orch.DownloadAll(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}

	second, err := orch.DownloadAll(context.Background(), true)
	if err != nil {
		t.Fatalf("forced DownloadAll() error = %v", err)
	}

	// Identical remote content still yields a new run and a later commit
	if second.FromCache {
		t.Error("forced refresh served from cache")
	}
	if second.RunID == first.RunID {
		t.Error("forced refresh reused the prior RunID")
	}
	if !second.FetchedAt.After(first.FetchedAt) {
		t.Errorf("FetchedAt did not advance: %v -> %v", first.FetchedAt, second.FetchedAt)
	}
}

func TestDownloadAll_MidRunFailureLeavesCacheUntouched(t *testing.T) {
	fetcher := twoPageFetcher()
	fetcher.pageErrs = map[string]error{"g_c": errors.NewServer(503, "service unavailable")}
	orch, store := testOrchestrator(t, fetcher)

	// Prior committed snapshot that must survive the aborted run
	prior := &cache.Entry{
		Key:       cache.ListKey("ws-1"),
		Records:   gpts("g_prior"),
		RunID:     "01PRIOR",
		FetchedAt: time.Now().Add(-25 * time.Hour),
	}
	if err := store.Put(prior); err != nil {
		t.Fatal(err)
	}

	_, err := orch.DownloadAll(context.Background(), false)
	if err == nil {
		t.Fatal("DownloadAll() succeeded, want mid-run failure")
	}

	gErr, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("error type = %T, want *errors.Error", err)
	}
	if gErr.Code != errors.ErrServer {
		t.Errorf("code = %q, want SERVER", gErr.Code)
	}
	if !strings.Contains(gErr.Message, "1 of 2 pages fetched") {
		t.Errorf("message = %q, want the page progress", gErr.Message)
	}
	if gErr.Details["run_id"] == "" {
		t.Error("Details[run_id] missing")
	}

	// Nothing from the aborted run was committed
	entry, err := store.Get(cache.ListKey("ws-1"))
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.RunID != "01PRIOR" {
		t.Errorf("prior entry = %+v, want the untouched 01PRIOR snapshot", entry)
	}
	if len(entry.Records) != 1 || entry.Records[0].ID != "g_prior" {
		t.Errorf("prior records = %+v, partial run data leaked into the cache", entry.Records)
	}
}

func TestDownloadAll_ConcurrentCallsCollapse(t *testing.T) {
	fetcher := twoPageFetcher()
	fetcher.pageDelay = 20 * time.Millisecond
	orch, _ := testOrchestrator(t, fetcher)

	const n = 5
	var wg sync.WaitGroup
	results := make([]*DownloadResult, n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = orch.DownloadAll(context.Background(), false)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d error = %v", i, errs[i])
		}
	}
	// All callers share one in-flight run: two pages fetched once
	if calls := fetcher.totalPageCalls(); calls != 2 {
		t.Errorf("page calls = %d, want 2 for a single collapsed run", calls)
	}
	for i := 1; i < n; i++ {
		if results[i].RunID != results[0].RunID {
			t.Errorf("goroutine %d RunID = %q, want shared run %q", i, results[i].RunID, results[0].RunID)
		}
	}
}

func TestCachedList(t *testing.T) {
	fetcher := twoPageFetcher()
	orch, store := testOrchestrator(t, fetcher)

	// Cold cache: nil result, no fetch
	result, err := orch.CachedList()
	if err != nil {
		t.Fatalf("CachedList() error = %v", err)
	}
	if result != nil {
		t.Errorf("CachedList() on cold cache = %+v, want nil", result)
	}
	if fetcher.totalPageCalls() != 0 {
		t.Error("CachedList() touched the network")
	}

	// Even a stale committed entry is served
	err = store.Put(&cache.Entry{
		Key:       cache.ListKey("ws-1"),
		Records:   gpts("g_old"),
		RunID:     "01OLD",
		FetchedAt: time.Now().Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err = orch.CachedList()
	if err != nil {
		t.Fatal(err)
	}
	if result == nil || result.RunID != "01OLD" {
		t.Errorf("CachedList() = %+v, want the stale committed entry", result)
	}
	if !result.FromCache {
		t.Error("CachedList() result should report FromCache")
	}
}

func TestGetDetail_CachesResult(t *testing.T) {
	fetcher := &fakeFetcher{
		details: map[string]*record.GPT{"g_1": {Object: "gpt", ID: "g_1"}},
	}
	orch, _ := testOrchestrator(t, fetcher)

	for i := 0; i < 3; i++ {
		gpt, err := orch.GetDetail(context.Background(), "g_1", false)
		if err != nil {
			t.Fatalf("GetDetail() call %d error = %v", i+1, err)
		}
		if gpt.ID != "g_1" {
			t.Errorf("ID = %q, want g_1", gpt.ID)
		}
	}

	if calls := fetcher.detailCalls["g_1"]; calls != 1 {
		t.Errorf("detail fetches = %d, want 1 (later calls served from cache)", calls)
	}
}

func TestGetDetail_NotFoundNeverCached(t *testing.T) {
	fetcher := &fakeFetcher{details: map[string]*record.GPT{}}
	orch, _ := testOrchestrator(t, fetcher)

	for i := 0; i < 2; i++ {
		_, err := orch.GetDetail(context.Background(), "g_missing", false)
		if !errors.Is(err, errors.ErrNotFound) {
			t.Fatalf("error = %v, want NOT_FOUND", err)
		}
	}

	// A negative result must re-check the remote every time
	if calls := fetcher.detailCalls["g_missing"]; calls != 2 {
		t.Errorf("detail fetches = %d, want 2 (NotFound not cached)", calls)
	}
}

func TestFetchDetails_PartialSuccess(t *testing.T) {
	fetcher := &fakeFetcher{
		details: map[string]*record.GPT{
			"g_1": {ID: "g_1"}, "g_2": {ID: "g_2"},
			"g_3": {ID: "g_3"}, "g_4": {ID: "g_4"},
		},
	}
	orch, _ := testOrchestrator(t, fetcher)

	result, err := orch.FetchDetails(context.Background(), []string{"g_1", "g_2", "g_gone", "g_3", "g_4"}, false)
	if err != nil {
		t.Fatalf("FetchDetails() error = %v", err)
	}

	if len(result.Records) != 4 {
		t.Errorf("len(Records) = %d, want 4", len(result.Records))
	}
	if len(result.Failures) != 1 {
		t.Fatalf("len(Failures) = %d, want 1", len(result.Failures))
	}
	if result.Failures[0].GPTID != "g_gone" {
		t.Errorf("failure GPTID = %q, want g_gone", result.Failures[0].GPTID)
	}
	if result.Failures[0].Code != errors.ErrNotFound {
		t.Errorf("failure code = %q, want NOT_FOUND", result.Failures[0].Code)
	}
	if got := result.Summary(); got != "4 succeeded, 1 failed" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestFetchDetails_FatalErrorAborts(t *testing.T) {
	fetcher := &fakeFetcher{
		details:    map[string]*record.GPT{"g_1": {ID: "g_1"}},
		detailErrs: map[string]error{"g_2": errors.NewAuthentication("")},
	}
	orch, _ := testOrchestrator(t, fetcher)

	_, err := orch.FetchDetails(context.Background(), []string{"g_1", "g_2", "g_3"}, false)
	if !errors.Is(err, errors.ErrAuthentication) {
		t.Errorf("error = %v, want AUTHENTICATION to abort the batch", err)
	}
}

func TestInvalidateWorkspaceAndStatus(t *testing.T) {
	fetcher := twoPageFetcher()
	orch, _ := testOrchestrator(t, fetcher)

	if _, err := orch.DownloadAll(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	infos, err := orch.CacheStatus()
	if err != nil {
		t.Fatalf("CacheStatus() error = %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("len(infos) = %d, want 1", len(infos))
	}
	if infos[0].RecordCount != 6 {
		t.Errorf("RecordCount = %d, want 6", infos[0].RecordCount)
	}

	n, err := orch.InvalidateWorkspace()
	if err != nil {
		t.Fatalf("InvalidateWorkspace() error = %v", err)
	}
	if n != 1 {
		t.Errorf("InvalidateWorkspace() = %d, want 1", n)
	}

	infos, err = orch.CacheStatus()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 0 {
		t.Errorf("len(infos) after clear = %d, want 0", len(infos))
	}
}
