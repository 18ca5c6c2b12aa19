package matching

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`[-+]?[0-9]+(?:\.[0-9]+)?`)

// ParseAmount extracts a monetary value from free text. Currency symbols
// and thousands separators are removed, then the LAST numeric run is taken:
// extracted text often prefixes a label or unit ("PLEASE PAY RS 1,234.50"),
// so the trailing number is the reliable one.
func ParseAmount(s string) (float64, bool) {
	cleaned := strings.NewReplacer("₹", "", "$", "", ",", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, false
	}
	runs := numberPattern.FindAllString(cleaned, -1)
	if len(runs) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(runs[len(runs)-1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AmountSimilarity compares a bill amount against an optional document
// amount. Equality uses a tolerance of max(absTol, relTol×larger amount):
// a one-currency-unit floor plus 0.5% slack for rounding differences. The
// continuous score gives partial credit out to three tolerance-widths.
func (c Config) AmountSimilarity(a float64, b *float64) (float64, bool) {
	if b == nil {
		return 0.0, false
	}
	diff := math.Abs(a - *b)
	tol := c.AbsoluteTolerance
	if rel := c.RelativeTolerance * math.Max(math.Abs(a), math.Abs(*b)); rel > tol {
		tol = rel
	}
	if diff <= tol {
		return 1.0, true
	}
	score := 1.0 - diff/(3.0*tol)
	if score < 0 {
		score = 0
	}
	return score, false
}
