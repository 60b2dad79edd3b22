package logstore

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"skiff/pkg/logger"
	"skiff/pkg/store"
)

// Window is the hard retention filter applied to every read. Entries older
// than this relative to the query's upper bound are never returned.
const Window = 604800 * time.Second

// DefaultLimit bounds queries that do not ask for an explicit limit.
const DefaultLimit = 100

// Entry is one ingested log line with its original nanosecond timestamp.
type Entry struct {
	TS  int64
	Log string
}

// Row is one query result. HighlightedLog equals Log verbatim unless the
// query carried a search term, in which case matched spans are wrapped in
// <mark> tags.
type Row struct {
	Log            string `json:"log"`
	TsSec          int64  `json:"ts_sec"`
	TsNsec         int64  `json:"ts_nsec"`
	HighlightedLog string `json:"highlighted_log"`
}

// seq disambiguates entries that land on the same nanosecond.
var seq atomic.Uint64

func nextSeq() int {
	return int(seq.Add(1) % 1000000)
}

// Write appends entries for a tenant and updates the trigram index in the
// same batch, so a committed row is always findable by a later search.
func Write(tenant string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	b, err := store.Batch()
	if err != nil {
		return err
	}
	for _, e := range entries {
		sec := e.TS / 1e9
		nsec := e.TS % 1e9
		n := nextSeq()
		if err := b.Set(rowKey(tenant, sec, nsec, n), []byte(e.Log), nil); err != nil {
			b.Close()
			return err
		}
		for _, tg := range trigrams(e.Log) {
			if err := b.Set(postingKey(tenant, tg, sec, nsec, n), nil, nil); err != nil {
				b.Close()
				return err
			}
		}
	}
	if err := store.Apply(b); err != nil {
		return err
	}
	logger.Debug("logs_written", "tenant", tenant, "count", len(entries))
	return nil
}

// Query returns rows for a tenant newest-first within the retention window.
// beforeNS of zero means "now". A search term of three or more characters
// goes through the trigram index; shorter terms fall back to a scan.
func Query(tenant string, beforeNS int64, search string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	upper := beforeNS
	if upper == 0 {
		upper = time.Now().UnixNano()
	}
	lower := upper - int64(Window/time.Nanosecond)

	if search == "" {
		return scanWindow(tenant, lower, upper, limit, nil)
	}
	if len(search) < 3 {
		return scanWindow(tenant, lower, upper, limit, func(log string) (string, bool) {
			return matchAndHighlight(log, search)
		})
	}
	return searchWindow(tenant, lower, upper, search, limit)
}

// scanWindow walks rows newest-first between lower and upper (exclusive
// upper bound on the nanosecond timestamp). filter, when non-nil, decides
// membership and produces the highlighted rendering.
func scanWindow(tenant string, lower, upper int64, limit int, filter func(string) (string, bool)) ([]Row, error) {
	it, err := store.NewIter(&pebble.IterOptions{
		LowerBound: rowKey(tenant, lower/1e9, lower%1e9, 0),
		UpperBound: rowKey(tenant, upper/1e9, upper%1e9, 0),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	rows := make([]Row, 0, limit)
	for ok := it.Last(); ok && len(rows) < limit; ok = it.Prev() {
		sec, nsec, _, kok := parseSuffix(it.Key())
		if !kok {
			continue
		}
		log := string(it.Value())
		hl := log
		if filter != nil {
			var matched bool
			hl, matched = filter(log)
			if !matched {
				continue
			}
		}
		rows = append(rows, Row{Log: log, TsSec: sec, TsNsec: nsec, HighlightedLog: hl})
	}
	return rows, nil
}

// searchWindow resolves candidates through the posting list of the query's
// rarest trigram, then verifies each candidate against the full search term
// before highlighting. Rarest-first keeps the candidate set small when one
// trigram is far more common than another.
func searchWindow(tenant string, lower, upper int64, search string, limit int) ([]Row, error) {
	tgs := trigrams(search)
	if len(tgs) == 0 {
		return []Row{}, nil
	}
	tg, err := rarestTrigram(tenant, tgs)
	if err != nil {
		return nil, err
	}

	it, err := store.NewIter(&pebble.IterOptions{
		LowerBound: postingKey(tenant, tg, lower/1e9, lower%1e9, 0),
		UpperBound: postingKey(tenant, tg, upper/1e9, upper%1e9, 0),
	})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	rows := make([]Row, 0, limit)
	for ok := it.Last(); ok && len(rows) < limit; ok = it.Prev() {
		sec, nsec, sq, kok := parseSuffix(it.Key())
		if !kok {
			continue
		}
		v, gerr := store.Get(rowKey(tenant, sec, nsec, sq))
		if gerr != nil {
			continue
		}
		log := string(v)
		hl, matched := matchAndHighlight(log, search)
		if !matched {
			continue
		}
		rows = append(rows, Row{Log: log, TsSec: sec, TsNsec: nsec, HighlightedLog: hl})
	}
	return rows, nil
}

// rarestTrigram counts each candidate's postings and returns the one with
// the fewest, capping the count per trigram so a hot posting list does not
// cost a full scan.
func rarestTrigram(tenant string, tgs []string) (string, error) {
	const countCap = 1024
	best := tgs[0]
	bestN := countCap + 1
	for _, tg := range tgs {
		n := 0
		err := store.PrefixScan(postingPrefix(tenant, tg), func(_, _ []byte) bool {
			n++
			return n < countCap
		})
		if err != nil {
			return "", err
		}
		if n < bestN {
			best, bestN = tg, n
		}
	}
	return best, nil
}

// matchAndHighlight wraps every occurrence of search in <mark> tags,
// preserving the original casing of the matched span. Case folding is
// ASCII-only and length-preserving, so byte indices found in the folded
// text are valid indices into the raw text even when the log contains
// multi-byte runes (strings.ToLower can change byte lengths and would
// misalign or overrun the raw string).
func matchAndHighlight(log, search string) (string, bool) {
	lower := foldASCII(log)
	needle := foldASCII(search)
	i := strings.Index(lower, needle)
	if i < 0 {
		return log, false
	}
	var sb strings.Builder
	pos := 0
	for i >= 0 {
		at := pos + i
		sb.WriteString(log[pos:at])
		sb.WriteString("<mark>")
		sb.WriteString(log[at : at+len(needle)])
		sb.WriteString("</mark>")
		pos = at + len(needle)
		i = strings.Index(lower[pos:], needle)
	}
	sb.WriteString(log[pos:])
	return sb.String(), true
}

// Prune removes rows and postings across all tenants whose timestamps fall
// before the cutoff. Used by the retention job, not the query path.
func Prune(cutoff time.Time) (int, error) {
	cutSec := cutoff.Unix()
	removed := 0
	for _, prefix := range [][]byte{[]byte("l\x00"), []byte("t\x00")} {
		b, err := store.Batch()
		if err != nil {
			return removed, err
		}
		err = store.PrefixScan(prefix, func(k, _ []byte) bool {
			sec, _, _, ok := parseSuffix(k)
			if !ok || sec >= cutSec {
				return true
			}
			kc := append([]byte(nil), k...)
			if derr := b.Delete(kc, nil); derr != nil {
				return false
			}
			removed++
			return true
		})
		if err != nil {
			b.Close()
			return removed, err
		}
		if err := store.Apply(b); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
