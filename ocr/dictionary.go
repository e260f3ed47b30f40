package ocr

import (
	"sort"
	"strings"
	"unicode"
)

// Dictionary returns the distinct non-empty words in sorted order, the form
// engines expect for a user word list.
func Dictionary(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// SplitWords splits a newline separated word list.
func SplitWords(s string) []string {
	return Dictionary(strings.Split(s, "\n"))
}

// Whitelist returns the distinct non-space characters of text, sorted by code
// point.
func Whitelist(text string) string {
	seen := make(map[rune]struct{})
	var runes []rune
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	return string(runes)
}
