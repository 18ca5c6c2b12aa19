package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/arclinic/bill-validator/internal/matching"
)

var statusLabels = map[matching.MatchStatus]string{
	matching.StatusMatched:      "MATCHED",
	matching.StatusPartialMatch: "PARTIAL MATCH",
	matching.StatusNotMatched:   "NOT MATCHED",
}

// BuildMarkdown renders one validation run as a GFM report. The markdown is
// the canonical report form; HTML and PDF are derived from it.
func BuildMarkdown(runID string, createdAt time.Time, resp *matching.ValidationResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Bill Validation Report\n\n")
	fmt.Fprintf(&b, "- Run ID: `%s`\n", runID)
	if !createdAt.IsZero() {
		fmt.Fprintf(&b, "- Date: %s\n", createdAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- Bills validated: %d\n\n", resp.Summary.TotalBills)

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "| Outcome | Count |\n|---------|-------|\n")
	fmt.Fprintf(&b, "| Matched | %d |\n", resp.Summary.MatchedBills)
	fmt.Fprintf(&b, "| Partial match | %d |\n", resp.Summary.PartialMatches)
	fmt.Fprintf(&b, "| Not matched | %d |\n", resp.Summary.UnmatchedBills)
	fmt.Fprintf(&b, "| **Total** | **%d** |\n\n", resp.Summary.TotalBills)
	fmt.Fprintf(&b, "Processing time: %.2fs\n\n---\n\n", resp.Summary.ProcessingTime)

	fmt.Fprintf(&b, "## Validation Results\n\n")
	fmt.Fprintf(&b, "A bill is **MATCHED** only when a supporting document agrees on bill number, amount and date. "+
		"**PARTIAL MATCH** means the best document agrees on most fields; the Mismatches column lists what differs. "+
		"**NOT MATCHED** means no document resembles the bill closely enough to count.\n\n")
	fmt.Fprintf(&b, "| SI No | Bill/Cash Memo | Date | Amount | Status | Score | Supporting Document | Mismatches |\n")
	fmt.Fprintf(&b, "|-------|----------------|------|--------|--------|-------|---------------------|------------|\n")
	for _, res := range resp.ValidationResults {
		bill := res.BillEntry
		if bill == nil {
			continue
		}
		docName := "—"
		if res.MatchedDocument != nil {
			docName = sanitizeCell(res.MatchedDocument.Filename)
		}
		mismatches := "—"
		if len(res.Mismatches) > 0 {
			mismatches = sanitizeCell(strings.Join(res.Mismatches, "; "))
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %.2f | %s | %.2f | %s | %s |\n",
			bill.SiNo,
			sanitizeCell(bill.BillCashMemo),
			sanitizeCell(bill.BillDate),
			bill.Amount,
			statusLabel(res.MatchStatus),
			res.MatchScore,
			docName,
			mismatches,
		)
	}
	fmt.Fprintf(&b, "\n")

	if len(resp.SupportingDocuments) > 0 {
		fmt.Fprintf(&b, "## Supporting Documents\n\n")
		fmt.Fprintf(&b, "| Filename | Bill Number | Amount | Date | Hospital | Type |\n")
		fmt.Fprintf(&b, "|----------|-------------|--------|------|----------|------|\n")
		for _, doc := range resp.SupportingDocuments {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				sanitizeCell(doc.Filename),
				optionalCell(doc.BillNumber),
				optionalAmountCell(doc.Amount),
				optionalCell(doc.Date),
				optionalCell(doc.HospitalName),
				optionalCell(doc.DocumentType),
			)
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "---\n\nAutomated validation only. Flagged and unmatched bills require manual review before approval.\n")
	return b.String()
}

func statusLabel(s matching.MatchStatus) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return strings.ToUpper(string(s))
}

func sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

func sanitizeCell(s string) string {
	s = sanitize(s)
	if s == "" {
		return "—"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}

func optionalCell(v *string) string {
	if v == nil {
		return "—"
	}
	return sanitizeCell(*v)
}

func optionalAmountCell(v *float64) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%.2f", *v)
}
