package logstore

import (
	"fmt"
	"strconv"
)

// Row keys:    l\x00<tenant>\x00<%020d sec>\x00<%09d nsec>\x00<%06d seq>
// Posting keys: t\x00<tenant>\x00<trigram>\x00<same 37-byte suffix>
//
// Both key spaces sort by (sec, nsec, seq) within a tenant, so a reverse
// iteration yields newest-first order. The timestamp suffix is fixed width
// and parsed by offset from the end of the key, which keeps parsing safe
// even when log text or trigrams contain NUL bytes.

const suffixLen = 20 + 1 + 9 + 1 + 6

func tsSuffix(sec, nsec int64, seq int) string {
	return fmt.Sprintf("%020d\x00%09d\x00%06d", sec, nsec, seq)
}

func rowKey(tenant string, sec, nsec int64, seq int) []byte {
	return []byte("l\x00" + tenant + "\x00" + tsSuffix(sec, nsec, seq))
}

func rowPrefix(tenant string) []byte {
	return []byte("l\x00" + tenant + "\x00")
}

func postingKey(tenant, trigram string, sec, nsec int64, seq int) []byte {
	return []byte("t\x00" + tenant + "\x00" + trigram + "\x00" + tsSuffix(sec, nsec, seq))
}

func postingPrefix(tenant, trigram string) []byte {
	return []byte("t\x00" + tenant + "\x00" + trigram + "\x00")
}

// parseSuffix extracts (sec, nsec, seq) from the trailing fixed-width
// timestamp segment of a row or posting key.
func parseSuffix(k []byte) (sec, nsec int64, seq int, ok bool) {
	if len(k) < suffixLen {
		return 0, 0, 0, false
	}
	s := k[len(k)-suffixLen:]
	if s[20] != 0 || s[30] != 0 {
		return 0, 0, 0, false
	}
	sec, err := strconv.ParseInt(string(s[:20]), 10, 64)
	if err != nil {
		return 0, 0, 0, false
	}
	nsec, err = strconv.ParseInt(string(s[21:30]), 10, 64)
	if err != nil {
		return 0, 0, 0, false
	}
	sq, err := strconv.Atoi(string(s[31:]))
	if err != nil {
		return 0, 0, 0, false
	}
	return sec, nsec, sq, true
}
