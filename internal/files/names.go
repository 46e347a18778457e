// ABOUTME: File name normalization and candidate-name generation for local lookup
// ABOUTME: Candidates follow a fixed extension-equivalence table that is intentionally asymmetric

package files

import (
	"strings"
	"unicode"
)

// bareExtensions are tried, in order, for names without an extension.
var bareExtensions = []string{"docx", "doc", "xlsx", "xls", "txt", "pdf"}

// equivalentExtensions maps a lowercase extension to the siblings tried after
// the name itself. pdf maps to spreadsheets but nothing maps back to pdf
// except txt; keep it that way.
var equivalentExtensions = map[string][]string{
	"doc":  {"docx"},
	"docx": {"doc"},
	"xls":  {"xlsx"},
	"xlsx": {"xls"},
	"ppt":  {"pptx"},
	"pptx": {"ppt"},
	"txt":  {"txt", "pdf", "cdr"},
	"pdf":  {"xls", "xlsx"},
}

// Normalize makes a display name comparable: every whitespace rune (including
// non-breaking space) becomes a plain space, other control characters are
// dropped, runs of spaces collapse to one and the result is trimmed.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, name)
	return strings.Join(strings.Fields(mapped), " ")
}

// Candidates returns the names to try for a requested file, the name itself first.
func Candidates(name string) []string {
	candidates := []string{name}

	dot := strings.LastIndex(name, ".")
	if dot < 0 {
		for _, ext := range bareExtensions {
			candidates = append(candidates, name+"."+ext)
		}
		return dedupe(candidates)
	}

	base, ext := name[:dot], strings.ToLower(name[dot+1:])
	for _, sibling := range equivalentExtensions[ext] {
		candidates = append(candidates, base+"."+sibling)
	}
	return dedupe(candidates)
}

// dedupe drops candidates that would compare equal to an earlier one.
func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		key := strings.ToLower(Normalize(n))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
