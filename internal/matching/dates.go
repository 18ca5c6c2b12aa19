package matching

import (
	"math"
	"strings"
	"time"
)

// dateLayouts is the ordered list of layouts attempted when parsing a
// free-text date. Both day-first and month-first numeric orders are tried:
// the source format of a given document is not reliably known, so an
// ambiguous string like "03-04-24" legitimately yields two candidates.
var dateLayouts = []string{
	"2-1-2006",
	"2/1/2006",
	"2.1.2006",
	"1/2/2006",
	"1-2-2006",
	"2-1-06",
	"2/1/06",
	"2.1.06",
	"1/2/06",
	"1-2-06",
	"2 Jan 2006",
	"2-Jan-2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
}

// ParsePossibleDates returns every distinct calendar date the input parses
// to under any known layout. An unparseable input yields an empty slice,
// never an error.
func ParsePossibleDates(s string) []time.Time {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil
	}
	seen := map[string]struct{}{}
	var out []time.Time
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		day := t.Truncate(24 * time.Hour)
		key := day.Format("2006-01-02")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, day)
	}
	return out
}

// DateSimilarity compares two free-text dates. When both parse, a shared
// candidate date is an exact match; otherwise the score decays with the
// minimum day gap across all candidate pairs (0.7 at one day, 0.4 within
// three days, 0 beyond). When either side is unparseable the comparison
// falls back to case/whitespace-insensitive string equality.
func DateSimilarity(a, b string) (float64, bool) {
	candA := ParsePossibleDates(a)
	candB := ParsePossibleDates(b)
	if len(candA) == 0 || len(candB) == 0 {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) && strings.TrimSpace(a) != "" {
			return 1.0, true
		}
		return 0.0, false
	}

	minGap := math.MaxFloat64
	for _, da := range candA {
		for _, db := range candB {
			gap := math.Abs(da.Sub(db).Hours() / 24)
			if gap < minGap {
				minGap = gap
			}
		}
	}
	switch {
	case minGap == 0:
		return 1.0, true
	case minGap <= 1:
		return 0.7, false
	case minGap <= 3:
		return 0.4, false
	default:
		return 0.0, false
	}
}
