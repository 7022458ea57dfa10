// Package staleness decides which cached citation entries are due for a
// refresh in the current run.
package staleness

import (
	"sort"
	"time"

	"github.com/JakeFAU/scholar-cites/internal/bibliography"
	"github.com/JakeFAU/scholar-cites/internal/cache"
)

// Candidate is one record due for a fetch, paired with the age information
// the scheduler orders by.
type Candidate struct {
	Record  bibliography.Record
	Updated time.Time
}

// NeverFetched reports whether the candidate has no successful fetch yet.
func (c Candidate) NeverFetched() bool {
	return c.Updated.IsZero()
}

// Select returns the records eligible for refresh, most overdue first. A
// record is eligible when it has no cached count yet or its last successful
// fetch is at least timeout old. Never-fetched records sort before everything
// else; ties break on key so the order is reproducible. Records absent from
// the bibliography are never selected, and the inputs are not modified.
func Select(c *cache.Cache, records []bibliography.Record, timeout time.Duration, now time.Time) []Candidate {
	candidates := make([]Candidate, 0, len(records))
	for _, rec := range records {
		entry, ok := c.Get(rec.Key)
		if !ok || entry.Updated.IsZero() {
			candidates = append(candidates, Candidate{Record: rec})
			continue
		}
		if now.Sub(entry.Updated) >= timeout {
			candidates = append(candidates, Candidate{Record: rec, Updated: entry.Updated})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch {
		case a.NeverFetched() != b.NeverFetched():
			return a.NeverFetched()
		case !a.Updated.Equal(b.Updated):
			return a.Updated.Before(b.Updated)
		default:
			return a.Record.Key < b.Record.Key
		}
	})
	return candidates
}
