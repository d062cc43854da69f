package cache

import (
	"testing"
	"time"

	"github.com/gptscan/gptscan/internal/record"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, nil)
}

func testRecords(ids ...string) []record.GPT {
	gpts := make([]record.GPT, 0, len(ids))
	for _, id := range ids {
		gpts = append(gpts, record.GPT{Object: "gpt", ID: id})
	}
	return gpts
}

func TestStore_GetMiss(t *testing.T) {
	store := testStore(t)

	entry, err := store.Get(ListKey("ws-1"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry != nil {
		t.Errorf("Get() on cold cache = %+v, want nil", entry)
	}
}

func TestStore_PutGetRoundtrip(t *testing.T) {
	store := testStore(t)
	key := ListKey("ws-1")
	fetchedAt := time.Now()

	err := store.Put(&Entry{
		Key:       key,
		Records:   testRecords("g_1", "g_2", "g_3"),
		RunID:     "01RUN",
		FetchedAt: fetchedAt,
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	entry, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry == nil {
		t.Fatal("Get() = nil after Put()")
	}
	if len(entry.Records) != 3 {
		t.Errorf("len(Records) = %d, want 3", len(entry.Records))
	}
	for i, want := range []string{"g_1", "g_2", "g_3"} {
		if entry.Records[i].ID != want {
			t.Errorf("Records[%d].ID = %s, want %s", i, entry.Records[i].ID, want)
		}
	}
	if entry.RunID != "01RUN" {
		t.Errorf("RunID = %q, want 01RUN", entry.RunID)
	}
	if !entry.FetchedAt.Equal(fetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", entry.FetchedAt, fetchedAt)
	}
}

func TestStore_PutReplaces(t *testing.T) {
	store := testStore(t)
	key := ListKey("ws-1")

	first := &Entry{Key: key, Records: testRecords("g_1", "g_2"), RunID: "01A", FetchedAt: time.Now().Add(-time.Hour)}
	if err := store.Put(first); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}

	second := &Entry{Key: key, Records: testRecords("g_3"), RunID: "01B", FetchedAt: time.Now()}
	if err := store.Put(second); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	entry, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// Replace, never merge: only the second run's records survive
	if len(entry.Records) != 1 || entry.Records[0].ID != "g_3" {
		t.Errorf("Records = %+v, want only g_3", entry.Records)
	}
	if entry.RunID != "01B" {
		t.Errorf("RunID = %q, want 01B", entry.RunID)
	}
}

func TestStore_PutAdvancesFetchedAt(t *testing.T) {
	store := testStore(t)
	key := ListKey("ws-1")

	t1 := time.Now().Add(-time.Minute)
	if err := store.Put(&Entry{Key: key, Records: testRecords("g_1"), FetchedAt: t1}); err != nil {
		t.Fatal(err)
	}
	t2 := time.Now()
	if err := store.Put(&Entry{Key: key, Records: testRecords("g_1"), FetchedAt: t2}); err != nil {
		t.Fatal(err)
	}

	entry, err := store.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if !entry.FetchedAt.After(t1) {
		t.Errorf("FetchedAt = %v, want after %v", entry.FetchedAt, t1)
	}
}

func TestStore_CorruptPayloadIsMiss(t *testing.T) {
	store := testStore(t)
	key := ListKey("ws-1")

	if err := store.Put(&Entry{Key: key, Records: testRecords("g_1"), FetchedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	// Corrupt the stored payload behind the store's back
	if _, err := store.db.Exec(`UPDATE entries SET payload = '{broken' WHERE cache_key = ?`, key.String()); err != nil {
		t.Fatal(err)
	}

	entry, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get() error = %v, corrupt entries should read as a miss", err)
	}
	if entry != nil {
		t.Errorf("Get() = %+v, want nil for corrupt payload", entry)
	}

	// The corrupt row is gone; a later Put starts clean
	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE cache_key = ?`, key.String()).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("corrupt row still present, count = %d", count)
	}
}

func TestStore_Invalidate(t *testing.T) {
	store := testStore(t)
	key := ListKey("ws-1")

	if err := store.Put(&Entry{Key: key, Records: testRecords("g_1"), FetchedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := store.Invalidate(key); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	entry, err := store.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Error("entry survived Invalidate()")
	}
}

func TestStore_InvalidateWorkspace(t *testing.T) {
	store := testStore(t)

	entries := []*Entry{
		{Key: ListKey("ws-1"), Records: testRecords("g_1"), FetchedAt: time.Now()},
		{Key: DetailKey("ws-1", "g_1"), Records: testRecords("g_1"), FetchedAt: time.Now()},
		{Key: ListKey("ws-2"), Records: testRecords("g_9"), FetchedAt: time.Now()},
	}
	for _, e := range entries {
		if err := store.Put(e); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.InvalidateWorkspace("ws-1")
	if err != nil {
		t.Fatalf("InvalidateWorkspace() error = %v", err)
	}
	if n != 2 {
		t.Errorf("InvalidateWorkspace() = %d, want 2", n)
	}

	// The other workspace is untouched
	other, err := store.Get(ListKey("ws-2"))
	if err != nil {
		t.Fatal(err)
	}
	if other == nil {
		t.Error("ws-2 entry removed by ws-1 invalidation")
	}
}

func TestStore_Status(t *testing.T) {
	store := testStore(t)

	old := &Entry{Key: DetailKey("ws-1", "g_1"), Records: testRecords("g_1"), RunID: "01A", FetchedAt: time.Now().Add(-2 * time.Hour)}
	recent := &Entry{Key: ListKey("ws-1"), Records: testRecords("g_1", "g_2"), RunID: "01B", FetchedAt: time.Now()}
	for _, e := range []*Entry{old, recent} {
		if err := store.Put(e); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := store.Status("ws-1")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("len(infos) = %d, want 2", len(infos))
	}
	// Newest first
	if infos[0].RunID != "01B" {
		t.Errorf("infos[0].RunID = %q, want 01B (newest first)", infos[0].RunID)
	}
	if infos[0].RecordCount != 2 {
		t.Errorf("infos[0].RecordCount = %d, want 2", infos[0].RecordCount)
	}
	if infos[1].AgeHours < 1.9 {
		t.Errorf("infos[1].AgeHours = %f, want about 2", infos[1].AgeHours)
	}
}

func TestEntry_IsStale(t *testing.T) {
	fresh := &Entry{FetchedAt: time.Now().Add(-time.Hour)}
	if fresh.IsStale(24 * time.Hour) {
		t.Error("1h-old entry should not be stale at a 24h threshold")
	}

	stale := &Entry{FetchedAt: time.Now().Add(-25 * time.Hour)}
	if !stale.IsStale(24 * time.Hour) {
		t.Error("25h-old entry should be stale at a 24h threshold")
	}
}
