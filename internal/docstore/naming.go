package docstore

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NextAvailableName returns base if it is free, otherwise the first
// "stem (N)ext" candidate (N starting at 2) for which exists reports false.
// The existence check is injected so rollover naming is testable without
// touching real storage.
func NextAvailableName(base string, exists func(string) bool) string {
	if !exists(base) {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !exists(cand) {
			return cand
		}
	}
}

// partSuffix extracts the " (N)" disambiguator from a document path for use
// in the document title, e.g. "ContextShots (3).html" -> "Part 3".
func partSuffix(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	open := strings.LastIndex(stem, "(")
	close := strings.LastIndex(stem, ")")
	if open < 0 || close < open {
		return ""
	}
	return "Part " + stem[open+1:close]
}
