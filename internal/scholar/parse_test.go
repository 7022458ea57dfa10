package scholar

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func scholarPage(rows ...string) string {
	return `<!DOCTYPE html><html><head><title>Google Scholar</title></head><body>` +
		`<div id="gs_res_ccl"><div id="gs_res_ccl_mid">` +
		strings.Join(rows, "") +
		`</div></div></body></html>`
}

func citedRow(title string, count int) string {
	return fmt.Sprintf(`<div class="gs_r gs_or gs_scl"><div class="gs_ri">`+
		`<h3 class="gs_rt"><a href="https://example.org/paper">%s</a></h3>`+
		`<div class="gs_a">J Author, A Other - Proceedings, 2019</div>`+
		`<div class="gs_rs">Snippet text.</div>`+
		`<div class="gs_fl"><a href="/scholar?cites=1234567890">Cited by %d</a> `+
		`<a href="/scholar?q=related:abc">Related articles</a></div>`+
		`</div></div>`, title, count)
}

func uncitedRow(title string) string {
	return fmt.Sprintf(`<div class="gs_r gs_or gs_scl"><div class="gs_ri">`+
		`<h3 class="gs_rt"><a href="https://example.org/paper">%s</a></h3>`+
		`<div class="gs_fl"><a href="/scholar?q=related:abc">Related articles</a></div>`+
		`</div></div>`, title)
}

func TestParseResults(t *testing.T) {
	pageURL := "https://scholar.google.com/scholar?q=x"

	t.Run("single cited result", func(t *testing.T) {
		body := scholarPage(citedRow("Acoustic scene classification", 57))
		res, err := firstResult([]byte(body), pageURL)
		if err != nil {
			t.Fatal(err)
		}
		if res.Title != "Acoustic scene classification" {
			t.Errorf("title = %q", res.Title)
		}
		if res.Citations != 57 {
			t.Errorf("citations = %d", res.Citations)
		}
		want := "https://scholar.google.com/scholar?cites=1234567890"
		if res.CitationsURL != want {
			t.Errorf("citations url = %q; want %q", res.CitationsURL, want)
		}
	})

	t.Run("uncited result", func(t *testing.T) {
		body := scholarPage(uncitedRow("Fresh paper"))
		res, err := firstResult([]byte(body), pageURL)
		if err != nil {
			t.Fatal(err)
		}
		if res.Citations != 0 {
			t.Errorf("citations = %d; want 0", res.Citations)
		}
		if res.CitationsURL != "" {
			t.Errorf("citations url = %q; want empty", res.CitationsURL)
		}
	})

	t.Run("citation only entry has no link", func(t *testing.T) {
		row := `<div class="gs_r"><div class="gs_ri">` +
			`<h3 class="gs_rt">[CITATION][C] Handbook of audio analysis</h3>` +
			`<div class="gs_fl"><a href="/scholar?cites=77">Cited by 12</a></div>` +
			`</div></div>`
		res, err := firstResult([]byte(scholarPage(row)), pageURL)
		if err != nil {
			t.Fatal(err)
		}
		if res.Title != "Handbook of audio analysis" {
			t.Errorf("title = %q", res.Title)
		}
		if res.Citations != 12 {
			t.Errorf("citations = %d", res.Citations)
		}
	})

	t.Run("multiple results keep order", func(t *testing.T) {
		body := scholarPage(citedRow("First paper", 5), citedRow("Second paper", 9), uncitedRow("Third paper"))
		results, err := parseResults([]byte(body), pageURL)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 3 {
			t.Fatalf("got %d results; want 3", len(results))
		}
		if results[0].Title != "First paper" || results[1].Title != "Second paper" || results[2].Title != "Third paper" {
			t.Errorf("unexpected order: %+v", results)
		}
		if results[1].Citations != 9 {
			t.Errorf("second citations = %d", results[1].Citations)
		}
	})

	t.Run("empty results container", func(t *testing.T) {
		results, err := parseResults([]byte(scholarPage()), pageURL)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 0 {
			t.Fatalf("got %d results; want 0", len(results))
		}

		_, err = firstResult([]byte(scholarPage()), pageURL)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("expected ParseError, got %v", err)
		}
	})

	t.Run("no match message without container", func(t *testing.T) {
		body := `<html><body><p>Your search - xyzzy - did not match any articles.</p></body></html>`
		results, err := parseResults([]byte(body), pageURL)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 0 {
			t.Fatalf("got %d results; want 0", len(results))
		}
	})

	t.Run("unrecognized page", func(t *testing.T) {
		_, err := parseResults([]byte("<html><body>welcome to the interstitial</body></html>"), pageURL)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("expected ParseError, got %v", err)
		}
	})
}

func TestParseCitedBy(t *testing.T) {
	tests := []struct {
		text  string
		count int
		ok    bool
	}{
		{"Cited by 57", 57, true},
		{"  Cited by 3  ", 3, true},
		{"Cited by 0", 0, true},
		{"Related articles", 0, false},
		{"Cited by ", 0, false},
		{"Cited by many", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		count, ok := parseCitedBy(tt.text)
		if count != tt.count || ok != tt.ok {
			t.Errorf("parseCitedBy(%q) = (%d, %v); want (%d, %v)", tt.text, count, ok, tt.count, tt.ok)
		}
	}
}
