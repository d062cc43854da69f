package record

import (
	"sort"
	"strings"
	"time"
)

// Filter narrows a record listing. The zero value matches everything.
type Filter struct {
	// Query is a case-insensitive substring match against name,
	// description, owner email, builder name, and ID.
	Query string

	// CreatedAfter / CreatedBefore bound the creation timestamp.
	// Nil means unbounded.
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// IsZero reports whether the filter imposes no constraints.
func (f Filter) IsZero() bool {
	return f.Query == "" && f.CreatedAfter == nil && f.CreatedBefore == nil
}

// Match reports whether the GPT satisfies every filter constraint.
func (f Filter) Match(g *GPT) bool {
	if f.CreatedAfter != nil || f.CreatedBefore != nil {
		created := g.Created()
		if created.IsZero() {
			return false
		}
		if f.CreatedAfter != nil && created.Before(*f.CreatedAfter) {
			return false
		}
		if f.CreatedBefore != nil && created.After(*f.CreatedBefore) {
			return false
		}
	}

	if f.Query != "" {
		q := strings.ToLower(f.Query)
		haystacks := []string{g.Name(), g.Description(), g.OwnerEmail, g.BuilderName, g.ID}
		found := false
		for _, h := range haystacks {
			if strings.Contains(strings.ToLower(h), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// Apply returns the subset of gpts matching the filter, in input order.
func (f Filter) Apply(gpts []GPT) []GPT {
	if f.IsZero() {
		return gpts
	}
	out := make([]GPT, 0, len(gpts))
	for i := range gpts {
		if f.Match(&gpts[i]) {
			out = append(out, gpts[i])
		}
	}
	return out
}

// SortByID orders records into canonical ascending-ID order in place.
// Committed cache entries always use this order so output is deterministic
// regardless of fetch concurrency.
func SortByID(gpts []GPT) {
	sort.Slice(gpts, func(i, j int) bool { return gpts[i].ID < gpts[j].ID })
}
