package matching

import (
	"regexp"
	"strings"
)

var (
	nonAlnumPattern    = regexp.MustCompile(`[^a-z0-9]`)
	leadingZeroPattern = regexp.MustCompile(`\b0+([0-9])`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

// NormalizeBillNumber produces the set of canonical forms used for
// set-intersection equality between bill numbers. Several variants are kept
// side by side rather than collapsed into one destructive rewrite, because
// extraction artifacts differ per document: OCR letter-O vs zero, optional
// separators, and spurious leading zeros after a separator.
func NormalizeBillNumber(s string) map[string]struct{} {
	forms := map[string]struct{}{}
	base := whitespacePattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
	if base == "" {
		return forms
	}
	base = strings.ReplaceAll(base, "o", "0")

	add := func(v string) {
		if v != "" {
			forms[v] = struct{}{}
		}
	}
	add(base)
	add(strings.ReplaceAll(base, "/", ""))
	add(strings.ReplaceAll(base, "-", ""))

	alnum := nonAlnumPattern.ReplaceAllString(base, "")
	add(alnum)

	add(leadingZeroPattern.ReplaceAllString(base, "$1"))
	add(leadingZeroPattern.ReplaceAllString(alnum, "$1"))
	return forms
}

// BillNumberSimilarity scores two raw bill-number strings in [0,1]. A shared
// canonical form counts as an exact match. Otherwise the best normalized
// edit-distance similarity across the alphanumeric-only reductions of both
// form sets is returned.
func BillNumberSimilarity(a, b string) float64 {
	formsA := NormalizeBillNumber(a)
	formsB := NormalizeBillNumber(b)
	if len(formsA) == 0 || len(formsB) == 0 {
		return 0.0
	}
	for f := range formsA {
		if _, ok := formsB[f]; ok {
			return 1.0
		}
	}

	best := 0.0
	for fa := range formsA {
		ca := nonAlnumPattern.ReplaceAllString(fa, "")
		if ca == "" {
			continue
		}
		for fb := range formsB {
			cb := nonAlnumPattern.ReplaceAllString(fb, "")
			if cb == "" {
				continue
			}
			if sim := editSimilarity(ca, cb); sim > best {
				best = sim
			}
		}
	}
	return best
}

// editSimilarity is 1 - levenshtein(a,b)/max(len), symmetric in its
// arguments and 1.0 only for identical strings.
func editSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ra := []rune(a)
	rb := []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0.0
	}
	d := float64(levenshtein(ra, rb)) / float64(maxLen)
	if d > 1 {
		d = 1
	}
	return 1.0 - d
}

func levenshtein(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
