// Package bibliography supplies the publication records whose citation
// counts are cached. Parsing rich bibliographic formats is the job of an
// upstream collaborator; this package only defines the hand-off shape and a
// plain YAML list loader for standalone use.
package bibliography

import (
	"context"
	"strings"
)

// keyLen is the number of hex digits kept from the digest when a record has
// no explicit key. Long enough to make collisions implausible for a
// personal publication list, short enough to keep the cache file readable.
const keyLen = 16

// Record identifies one publication. Key is stable across runs; Title and
// Authors drive the citation lookup. Query, when set, overrides the derived
// search string.
type Record struct {
	Key     string
	Title   string
	Authors []string
	Query   string
}

// FirstAuthor returns the first listed author, or an empty string.
func (r Record) FirstAuthor() string {
	if len(r.Authors) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Authors[0])
}

// AuthorList returns all authors joined for display and key derivation.
func (r Record) AuthorList() string {
	return strings.Join(r.Authors, ", ")
}

// SearchQuery returns the search string stored alongside the cached count.
func (r Record) SearchQuery() string {
	if r.Query != "" {
		return r.Query
	}
	return strings.TrimSpace(r.FirstAuthor() + " " + r.Title)
}

// Source yields the current publication records. Keys may appear and
// disappear between runs; consumers must tolerate both.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// Hasher digests record fields into stable cache keys.
type Hasher interface {
	HashFields(fields ...string) (string, error)
}
