package logstore

import (
	"fmt"
	"testing"
	"time"
	"unicode/utf8"

	"skiff/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func ns(t time.Time) int64 { return t.UnixNano() }

func TestWriteAndQueryNewestFirst(t *testing.T) {
	openTestStore(t)

	base := time.Now().Add(-time.Hour)
	entries := []Entry{
		{TS: ns(base), Log: "boot sequence started"},
		{TS: ns(base.Add(time.Second)), Log: "listening on :8080"},
		{TS: ns(base.Add(2 * time.Second)), Log: "first request served"},
	}
	if err := Write("acme", entries); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := Query("acme", 0, "", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Log != "first request served" || rows[2].Log != "boot sequence started" {
		t.Fatalf("not newest-first: %v", rows)
	}
	for _, r := range rows {
		if r.HighlightedLog != r.Log {
			t.Fatalf("highlight without search term: %q", r.HighlightedLog)
		}
	}
}

func TestQueryWindowExcludesOldRows(t *testing.T) {
	openTestStore(t)

	now := time.Now()
	entries := []Entry{
		{TS: ns(now.Add(-10 * 24 * time.Hour)), Log: "ten days old"},
		{TS: ns(now.Add(-8 * 24 * time.Hour)), Log: "eight days old"},
		{TS: ns(now.Add(-6 * 24 * time.Hour)), Log: "six days old"},
		{TS: ns(now.Add(-3 * 24 * time.Hour)), Log: "three days old"},
	}
	if err := Write("acme", entries); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := Query("acme", 0, "", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 inside the window", len(rows))
	}
	if rows[0].Log != "three days old" || rows[1].Log != "six days old" {
		t.Fatalf("wrong rows: %v", rows)
	}

	// the window anchors to before, not to now
	before := ns(now.Add(-7 * 24 * time.Hour))
	rows, err = Query("acme", before, "", 0)
	if err != nil {
		t.Fatalf("query with before: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("shifted window: got %d rows, want 2", len(rows))
	}
	if rows[0].Log != "eight days old" || rows[1].Log != "ten days old" {
		t.Fatalf("shifted window rows: %v", rows)
	}
}

func TestQueryLimit(t *testing.T) {
	openTestStore(t)

	base := time.Now().Add(-time.Minute)
	var entries []Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, Entry{TS: ns(base.Add(time.Duration(i) * time.Second)), Log: fmt.Sprintf("line %d", i)})
	}
	if err := Write("acme", entries); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := Query("acme", 0, "", 4)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}
	if rows[0].Log != "line 9" || rows[3].Log != "line 6" {
		t.Fatalf("limit kept wrong rows: %v", rows)
	}
}

func TestTrigramSearch(t *testing.T) {
	openTestStore(t)

	base := time.Now().Add(-time.Hour)
	entries := []Entry{
		{TS: ns(base), Log: "Error: connection refused"},
		{TS: ns(base.Add(time.Second)), Log: "a night of terror"},
		{TS: ns(base.Add(2 * time.Second)), Log: "all systems nominal"},
	}
	if err := Write("acme", entries); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := Query("acme", 0, "rror", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	// newest-first: terror before Error
	if rows[0].HighlightedLog != "a night of te<mark>rror</mark>" {
		t.Fatalf("highlight = %q", rows[0].HighlightedLog)
	}
	if rows[1].HighlightedLog != "E<mark>rror</mark>: connection refused" {
		t.Fatalf("case-insensitive highlight lost original casing: %q", rows[1].HighlightedLog)
	}
	if rows[1].Log != "Error: connection refused" {
		t.Fatalf("raw log mutated: %q", rows[1].Log)
	}
}

func TestShortTermFallsBackToScan(t *testing.T) {
	openTestStore(t)

	base := time.Now().Add(-time.Minute)
	if err := Write("acme", []Entry{
		{TS: ns(base), Log: "OK"},
		{TS: ns(base.Add(time.Second)), Log: "ko path"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := Query("acme", 0, "ok", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 1 || rows[0].HighlightedLog != "<mark>OK</mark>" {
		t.Fatalf("short-term scan: %v", rows)
	}
}

func TestSearchMatchesMultipleOccurrences(t *testing.T) {
	openTestStore(t)

	if err := Write("acme", []Entry{
		{TS: ns(time.Now().Add(-time.Minute)), Log: "retry then retry again"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := Query("acme", 0, "retry", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	want := "<mark>retry</mark> then <mark>retry</mark> again"
	if rows[0].HighlightedLog != want {
		t.Fatalf("highlight = %q, want %q", rows[0].HighlightedLog, want)
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	openTestStore(t)

	tsNow := ns(time.Now().Add(-time.Minute))
	if err := Write("acme", []Entry{{TS: tsNow, Log: "acme secret"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := Query("globex", 0, "secret", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("tenant leak: %v", rows)
	}
}

func TestSearchFindsNothingOutsideWindow(t *testing.T) {
	openTestStore(t)

	if err := Write("acme", []Entry{
		{TS: ns(time.Now().Add(-9 * 24 * time.Hour)), Log: "ancient failure"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := Query("acme", 0, "failure", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("search escaped the window: %v", rows)
	}
}

func TestPrune(t *testing.T) {
	openTestStore(t)

	now := time.Now()
	if err := Write("acme", []Entry{
		{TS: ns(now.Add(-9 * 24 * time.Hour)), Log: "stale row"},
		{TS: ns(now.Add(-time.Hour)), Log: "fresh row"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed, err := Prune(now.Add(-Window))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed == 0 {
		t.Fatalf("expected stale keys removed")
	}

	// stale postings must be gone too
	found := false
	if err := store.PrefixScan([]byte("t\x00acme\x00sta"), func(_, _ []byte) bool {
		found = true
		return false
	}); err != nil {
		t.Fatalf("scan postings: %v", err)
	}
	if found {
		t.Fatalf("stale posting survived prune")
	}

	rows, err := Query("acme", 0, "", 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0].Log != "fresh row" {
		t.Fatalf("prune removed wrong rows: %v", rows)
	}
}

func TestHighlightMultiByteRunes(t *testing.T) {
	openTestStore(t)

	base := time.Now().Add(-time.Minute)
	if err := Write("acme", []Entry{
		{TS: ns(base), Log: "ȺȺȺȺrror"},
		{TS: ns(base.Add(time.Second)), Log: "İİİİ rror"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	rows, err := Query("acme", 0, "rror", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if !utf8.ValidString(rows[0].HighlightedLog) || !utf8.ValidString(rows[1].HighlightedLog) {
		t.Fatalf("highlight split a rune: %q / %q", rows[0].HighlightedLog, rows[1].HighlightedLog)
	}
	if rows[0].HighlightedLog != "İİİİ <mark>rror</mark>" {
		t.Fatalf("highlight = %q", rows[0].HighlightedLog)
	}
	if rows[1].HighlightedLog != "ȺȺȺȺ<mark>rror</mark>" {
		t.Fatalf("highlight = %q", rows[1].HighlightedLog)
	}
}

func TestFoldASCIIPreservesLength(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Error", "error"},
		{"already lower", "already lower"},
		{"İİ MIXED Ⱥ", "İİ mixed Ⱥ"},
		{"", ""},
	}
	for _, c := range cases {
		got := foldASCII(c.in)
		if got != c.want {
			t.Fatalf("foldASCII(%q) = %q, want %q", c.in, got, c.want)
		}
		if len(got) != len(c.in) {
			t.Fatalf("foldASCII changed length of %q", c.in)
		}
	}
}

func TestTrigramExtraction(t *testing.T) {
	if got := trigrams("ab"); got != nil {
		t.Fatalf("trigrams of short text = %v", got)
	}
	got := trigrams("AbAb")
	// lowercased, distinct: "aba", "bab"
	if len(got) != 2 {
		t.Fatalf("trigrams = %v", got)
	}
	seen := map[string]bool{}
	for _, g := range got {
		seen[g] = true
	}
	if !seen["aba"] || !seen["bab"] {
		t.Fatalf("trigrams = %v", got)
	}
}
