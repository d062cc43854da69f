package record

import (
	"testing"
	"time"
)

func TestFilter_IsZero(t *testing.T) {
	if !(Filter{}).IsZero() {
		t.Error("zero filter should report IsZero")
	}
	if (Filter{Query: "x"}).IsZero() {
		t.Error("filter with query should not report IsZero")
	}
}

func TestFilter_QueryMatch(t *testing.T) {
	g := testGPT("g_abc123", "Contract Reviewer", "legal@example.com", 1700000000)
	g.BuilderName = "Dana"

	tests := []struct {
		query string
		want  bool
	}{
		{"contract", true},      // name, case-insensitive
		{"REVIEWER", true},      // name, uppercase query
		{"legal@", true},        // owner email
		{"dana", true},          // builder name
		{"g_abc", true},         // ID prefix
		{"test agent", true},    // description
		{"quarterly", false},    // no field matches
		{"", true},              // empty query matches everything
	}

	for _, tt := range tests {
		f := Filter{Query: tt.query}
		if got := f.Match(&g); got != tt.want {
			t.Errorf("Match(query=%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestFilter_DateBounds(t *testing.T) {
	g := testGPT("g_1", "A", "a@example.com", float64(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC).Unix()))

	before := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	after := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	if !(Filter{CreatedAfter: &before}).Match(&g) {
		t.Error("record created after the lower bound should match")
	}
	if (Filter{CreatedAfter: &after}).Match(&g) {
		t.Error("record created before the lower bound should not match")
	}
	if !(Filter{CreatedBefore: &after}).Match(&g) {
		t.Error("record created before the upper bound should match")
	}
	if (Filter{CreatedBefore: &before}).Match(&g) {
		t.Error("record created after the upper bound should not match")
	}
}

func TestFilter_DateBoundsUnsetCreation(t *testing.T) {
	g := testGPT("g_1", "A", "a@example.com", 0)
	bound := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// A record with no creation timestamp cannot satisfy a date bound.
	if (Filter{CreatedAfter: &bound}).Match(&g) {
		t.Error("record without a creation time should not match a date-bounded filter")
	}
}

func TestFilter_ApplyPreservesOrder(t *testing.T) {
	gpts := []GPT{
		testGPT("g_3", "Gamma", "c@example.com", 0),
		testGPT("g_1", "Alpha", "a@example.com", 0),
		testGPT("g_2", "Alphabet", "b@example.com", 0),
	}

	out := Filter{Query: "alpha"}.Apply(gpts)
	if len(out) != 2 {
		t.Fatalf("Apply() returned %d records, want 2", len(out))
	}
	if out[0].ID != "g_1" || out[1].ID != "g_2" {
		t.Errorf("Apply() order = [%s %s], want [g_1 g_2]", out[0].ID, out[1].ID)
	}
}

func TestSortByID(t *testing.T) {
	gpts := []GPT{
		testGPT("g_c", "C", "", 0),
		testGPT("g_a", "A", "", 0),
		testGPT("g_b", "B", "", 0),
	}

	SortByID(gpts)

	for i, want := range []string{"g_a", "g_b", "g_c"} {
		if gpts[i].ID != want {
			t.Errorf("gpts[%d].ID = %s, want %s", i, gpts[i].ID, want)
		}
	}
}
