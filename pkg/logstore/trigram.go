package logstore

// trigrams returns the distinct overlapping 3-byte substrings of the folded
// text. Indexing folded text makes search case-insensitive at the candidate
// stage; exact verification happens against the raw row.
func trigrams(text string) []string {
	s := foldASCII(text)
	if len(s) < 3 {
		return nil
	}
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for i := 0; i+3 <= len(s); i++ {
		tg := s[i : i+3]
		if _, ok := seen[tg]; ok {
			continue
		}
		seen[tg] = struct{}{}
		out = append(out, tg)
	}
	return out
}

// foldASCII lowercases the ASCII letters of s and leaves every other byte
// untouched. Unlike strings.ToLower it never changes the byte length, which
// the highlighter relies on to map indices in the folded text back onto the
// raw text.
func foldASCII(s string) string {
	upper := -1
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			upper = i
			break
		}
	}
	if upper < 0 {
		return s
	}
	b := []byte(s)
	for i := upper; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
