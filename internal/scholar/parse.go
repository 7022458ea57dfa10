package scholar

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const noResultsMarker = "did not match any articles"

// parseResults extracts every search hit from a Scholar results page.
// A well formed page with zero hits yields an empty slice and no error.
func parseResults(body []byte, pageURL string) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{Reason: "invalid html: " + err.Error()}
	}

	rows := doc.Find("div.gs_ri")
	if rows.Length() == 0 {
		if bytes.Contains(body, []byte(noResultsMarker)) || doc.Find("#gs_res_ccl").Length() > 0 {
			return nil, nil
		}
		return nil, &ParseError{Reason: "no results markup found"}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	results := make([]Result, 0, rows.Length())
	rows.Each(func(_ int, row *goquery.Selection) {
		res := Result{Title: resultTitle(row)}
		row.Find("div.gs_fl a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
			count, ok := parseCitedBy(link.Text())
			if !ok {
				return true
			}
			res.Citations = count
			if href, found := link.Attr("href"); found {
				res.CitationsURL = resolveHref(base, href)
			}
			return false
		})
		results = append(results, res)
	})
	return results, nil
}

// firstResult returns the top search hit or a ParseError when the page
// holds none.
func firstResult(body []byte, pageURL string) (*Result, error) {
	results, err := parseResults(body, pageURL)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, &ParseError{Reason: "query matched no articles"}
	}
	return &results[0], nil
}

func resultTitle(row *goquery.Selection) string {
	rt := row.Find("h3.gs_rt")
	if link := rt.Find("a"); link.Length() > 0 {
		return strings.TrimSpace(link.First().Text())
	}
	// Citation-only entries carry no link, just tagged text like
	// "[CITATION][C] Some title".
	title := strings.TrimSpace(rt.Text())
	for strings.HasPrefix(title, "[") {
		end := strings.Index(title, "]")
		if end < 0 {
			break
		}
		title = strings.TrimSpace(title[end+1:])
	}
	return title
}

func parseCitedBy(text string) (int, bool) {
	trimmed := strings.TrimSpace(text)
	rest := strings.TrimPrefix(trimmed, "Cited by ")
	if rest == trimmed || rest == "" {
		return 0, false
	}
	count, err := strconv.Atoi(rest)
	if err != nil || count < 0 {
		return 0, false
	}
	return count, true
}

func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
