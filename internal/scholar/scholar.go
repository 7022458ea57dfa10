// Package scholar fetches citation counts from Google Scholar.
//
// Two backends implement the same contract: a plain HTTP backend built
// on colly for the common case, and a headless Chrome backend used as a
// fallback when the plain backend is blocked or cannot parse the page.
// Backends are stateless with respect to egress, every fetch names the
// path it must use.
package scholar

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/scholar-cites/internal/egress"
)

// BaseURL is the Google Scholar search endpoint.
const BaseURL = "https://scholar.google.com/scholar"

// Result is one parsed Scholar search hit.
type Result struct {
	Title        string
	Citations    int
	CitationsURL string
}

// Query describes a single citation lookup.
type Query struct {
	// Author is the first author of the publication.
	Author string
	// Title is matched as an exact phrase scoped to the result title.
	Title string
	// Raw overrides the structured fields with a free form query string.
	Raw string
}

// URL renders the query as a Scholar search URL requesting one result.
func (q Query) URL() string {
	return q.URLAt(BaseURL)
}

// URLAt renders the query against an alternate search endpoint.
func (q Query) URLAt(base string) string {
	v := url.Values{}
	if q.Raw != "" {
		v.Set("q", q.Raw)
	} else {
		v.Set("as_epq", q.Title)
		v.Set("as_occt", "title")
		if q.Author != "" {
			v.Set("as_sauthors", q.Author)
		}
	}
	v.Set("as_sdt", "0,5")
	v.Set("hl", "en")
	v.Set("num", "1")
	return base + "?" + v.Encode()
}

// AuthorListURL renders a broad author search returning up to limit hits.
func AuthorListURL(author string, limit int) string {
	return AuthorListURLAt(BaseURL, author, limit)
}

// AuthorListURLAt renders the author search against an alternate endpoint.
func AuthorListURLAt(base, author string, limit int) string {
	if limit <= 0 {
		limit = 1
	}
	v := url.Values{}
	v.Set("as_sauthors", author)
	v.Set("as_sdt", "0,5")
	v.Set("hl", "en")
	v.Set("num", strconv.Itoa(limit))
	return base + "?" + v.Encode()
}

// NormalizeTitle reduces a title to a comparison key: lowercased with
// punctuation stripped and whitespace collapsed.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Backend retrieves citation data for a single query over a fixed
// egress path.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Fetch runs the query and returns the best matching result.
	Fetch(ctx context.Context, q Query, path egress.Path) (*Result, error)
}

// AuthorLister is implemented by backends able to run a broad author
// listing, used to warm several cache entries from one request.
type AuthorLister interface {
	ListByAuthor(ctx context.Context, author string, limit int, path egress.Path) ([]Result, error)
}
