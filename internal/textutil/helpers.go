package textutil

import (
	"strings"
	"unicode"
)

// Normalize lowercases a string and collapses runs of whitespace to a
// single space. Dedup hashes and similarity scores both rely on it so
// cosmetic differences never defeat duplicate detection.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}

	return strings.TrimRight(b.String(), " ")
}

// Truncate cuts a string to at most n bytes on a rune boundary.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for i := n; i > 0; i-- {
		if i < len(s) && (s[i]&0xC0) == 0x80 {
			continue
		}
		return s[:i]
	}
	return ""
}

// Snippet extracts a context window of at most width bytes around the
// match at [start, end) in text, expanding to whole words.
func Snippet(text string, start, end, width int) string {
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}

	lo := start - width/2
	if lo < 0 {
		lo = 0
	}
	hi := end + width/2
	if hi > len(text) {
		hi = len(text)
	}

	for lo > 0 && text[lo] != ' ' && text[lo] != '\n' {
		lo--
	}
	for hi < len(text) && text[hi] != ' ' && text[hi] != '\n' {
		hi++
	}

	return strings.TrimSpace(text[lo:hi])
}

// ToString safely converts an interface value to string.
func ToString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// ToInt converts JSON-decoded numbers or numeric strings to int.
func ToInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		total := 0
		for _, r := range n {
			if r < '0' || r > '9' {
				break
			}
			total = total*10 + int(r-'0')
		}
		return total
	}
	return 0
}

// ToStrings converts a string slice or a JSON-decoded array into a
// string slice, skipping non-string entries.
func ToStrings(v any) []string {
	if typed, ok := v.([]string); ok {
		return typed
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
