// Package cache persists citation counts between site builds.
//
// The cache is a flat mapping from a stable bibliographic key to the last
// known citation data for that record. It is loaded once per run, mutated in
// memory, and written back atomically. It is not safe for concurrent use;
// a single refresh run owns it for the duration of the pass.
package cache

import (
	"sort"
	"time"
)

// Entry is the cached citation data for one bibliographic record. Entries
// are created on the first successful fetch for a key and updated on later
// successes; a key with no entry has simply never resolved.
type Entry struct {
	// Query is the search string that produced the stored count, kept so
	// staleness checks never need the source bibliography to re-derive it.
	Query string
	// Cites is the last known citation count. Zero is a legitimate value
	// for uncited records.
	Cites int
	// URL is the citations listing address, when the source exposed one.
	URL string
	// Updated is the time of the last successful fetch (UTC). A zero value
	// marks a hand-created entry that has never been fetched.
	Updated time.Time
	// Attempted is the time of the last attempt, successful or not.
	Attempted time.Time
}

// Clone returns a copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	return &cp
}

// Cache is the in-memory form of the persisted store.
type Cache struct {
	entries map[string]*Entry
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// Len reports the number of entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

// Get returns the entry for key, or nil and false when the key has never
// resolved.
func (c *Cache) Get(key string) (*Entry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// Put stores an entry under key, replacing any existing one.
func (c *Cache) Put(key string, e *Entry) {
	if e == nil {
		return
	}
	c.entries[key] = e
}

// Delete removes the entry for key, if present.
func (c *Cache) Delete(key string) {
	delete(c.entries, key)
}

// Keys returns all keys in lexicographic order. Persistence and iteration
// both rely on this order being stable.
func (c *Cache) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy, used to compare pre- and post-run state.
func (c *Cache) Clone() *Cache {
	cp := New()
	for k, e := range c.entries {
		cp.entries[k] = e.Clone()
	}
	return cp
}

// OldestUpdate returns the oldest Updated timestamp among entries that have
// one, and false when no entry has been fetched yet. Callers use it for
// "last updated" displays.
func (c *Cache) OldestUpdate() (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, e := range c.entries {
		if e.Updated.IsZero() {
			continue
		}
		if !found || e.Updated.Before(oldest) {
			oldest = e.Updated
			found = true
		}
	}
	return oldest, found
}
