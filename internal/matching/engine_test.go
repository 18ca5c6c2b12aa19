package matching

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func strPtr(s string) *string   { return &s }
func f64Ptr(f float64) *float64 { return &f }

func testBill() BillEntry {
	return BillEntry{
		SiNo:         1,
		BillCashMemo: "vacs2822451",
		BillDate:     "3/23/24",
		Amount:       500.0,
	}
}

func testDoc() SupportingDocument {
	return SupportingDocument{
		Filename:   "receipt.pdf",
		BillNumber: strPtr("VACS2822451"),
		Amount:     f64Ptr(500.0),
		Date:       strPtr("23-03-2024"),
	}
}

func mustValidate(t *testing.T, e *Engine, bills []BillEntry, docs []SupportingDocument) *ValidationResponse {
	t.Helper()
	resp, err := e.Validate(bills, docs)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return resp
}

func TestValidatePerfectMatch(t *testing.T) {
	e := NewEngine(DefaultConfig())
	resp := mustValidate(t, e, []BillEntry{testBill()}, []SupportingDocument{testDoc()})

	res := resp.ValidationResults[0]
	if res.MatchStatus != StatusMatched {
		t.Fatalf("status = %q, want %q (score=%v, fields=%+v)", res.MatchStatus, StatusMatched, res.MatchScore, res.FieldScores)
	}
	if res.Color != "green" {
		t.Fatalf("color = %q, want green", res.Color)
	}
	if res.MatchScore != 1.0 {
		t.Fatalf("score = %v, want 1.0", res.MatchScore)
	}
	if !res.BillNumberMatch || !res.AmountMatch || !res.DateMatch {
		t.Fatalf("field flags = (%v, %v, %v), want all true", res.BillNumberMatch, res.AmountMatch, res.DateMatch)
	}
	if len(res.Mismatches) != 0 {
		t.Fatalf("perfect match carries mismatches: %v", res.Mismatches)
	}
	if res.Notes != "Perfect match with supporting document" {
		t.Fatalf("notes = %q", res.Notes)
	}
	if res.MatchedDocument == nil || res.MatchedDocument.Filename != "receipt.pdf" {
		t.Fatalf("matched document = %+v", res.MatchedDocument)
	}
	if resp.Summary.MatchedBills != 1 || resp.Summary.TotalBills != 1 {
		t.Fatalf("summary = %+v", resp.Summary)
	}
}

func TestValidateAmountMismatchIsPartial(t *testing.T) {
	e := NewEngine(DefaultConfig())
	doc := testDoc()
	doc.Amount = f64Ptr(550.0)
	resp := mustValidate(t, e, []BillEntry{testBill()}, []SupportingDocument{doc})

	res := resp.ValidationResults[0]
	if res.MatchStatus != StatusPartialMatch {
		t.Fatalf("status = %q, want %q (score=%v)", res.MatchStatus, StatusPartialMatch, res.MatchScore)
	}
	if res.Color != "orange" {
		t.Fatalf("color = %q, want orange", res.Color)
	}
	found := false
	for _, m := range res.Mismatches {
		if strings.HasPrefix(m, "Amount differs") {
			found = true
		}
	}
	if !found {
		t.Fatalf("mismatches = %v, want an Amount differs entry", res.Mismatches)
	}
	if res.AmountMatch {
		t.Fatal("amount flag should be false for a 50-unit gap")
	}
}

func TestValidateHighTierInexactFieldIsPartial(t *testing.T) {
	e := NewEngine(DefaultConfig())
	doc := testDoc()
	doc.Date = strPtr("24-03-2024")
	resp := mustValidate(t, e, []BillEntry{testBill()}, []SupportingDocument{doc})

	res := resp.ValidationResults[0]
	// 0.5 + 0.3 + 0.7*0.2 = 0.94: high confidence, but the date is off by
	// a day so the strict tier is refused.
	if res.MatchStatus != StatusPartialMatch {
		t.Fatalf("status = %q, want %q (score=%v)", res.MatchStatus, StatusPartialMatch, res.MatchScore)
	}
	if res.Notes != "Partial match - some fields do not strictly match" {
		t.Fatalf("notes = %q", res.Notes)
	}
	found := false
	for _, m := range res.Mismatches {
		if strings.HasPrefix(m, "Date differs") {
			found = true
		}
	}
	if !found {
		t.Fatalf("mismatches = %v, want a Date differs entry", res.Mismatches)
	}
}

func TestValidateUnrelatedDocumentIsNotMatched(t *testing.T) {
	e := NewEngine(DefaultConfig())
	doc := SupportingDocument{
		Filename:   "other.pdf",
		BillNumber: strPtr("XYZ999"),
		Amount:     f64Ptr(9999.0),
		Date:       strPtr("01-01-2020"),
	}
	resp := mustValidate(t, e, []BillEntry{testBill()}, []SupportingDocument{doc})

	res := resp.ValidationResults[0]
	if res.MatchStatus != StatusNotMatched {
		t.Fatalf("status = %q, want %q (score=%v)", res.MatchStatus, StatusNotMatched, res.MatchScore)
	}
	if res.Color != "red" {
		t.Fatalf("color = %q, want red", res.Color)
	}
	if len(res.Mismatches) != 1 || res.Mismatches[0] != "No supporting document found" {
		t.Fatalf("mismatches = %v", res.Mismatches)
	}
	if res.MatchedDocument != nil {
		t.Fatalf("matched document = %+v, want nil", res.MatchedDocument)
	}
}

func TestValidateNoDocuments(t *testing.T) {
	e := NewEngine(DefaultConfig())
	bills := []BillEntry{testBill(), {SiNo: 2, BillCashMemo: "INV-2", Amount: 100, BillDate: "01-01-2024"}}
	resp := mustValidate(t, e, bills, nil)

	if resp.Summary.UnmatchedBills != 2 {
		t.Fatalf("summary = %+v, want 2 unmatched", resp.Summary)
	}
	for i, res := range resp.ValidationResults {
		if res.MatchStatus != StatusNotMatched || res.Color != "red" {
			t.Fatalf("result %d = (%q, %q), want not_matched/red", i, res.MatchStatus, res.Color)
		}
	}
}

func TestValidateEmptyBills(t *testing.T) {
	e := NewEngine(DefaultConfig())
	if _, err := e.Validate(nil, []SupportingDocument{testDoc()}); !errors.Is(err, ErrNoBillEntries) {
		t.Fatalf("err = %v, want ErrNoBillEntries", err)
	}
}

func TestValidateTieBreakFirstDocument(t *testing.T) {
	e := NewEngine(DefaultConfig())
	first := testDoc()
	first.Filename = "first.pdf"
	second := testDoc()
	second.Filename = "second.pdf"
	resp := mustValidate(t, e, []BillEntry{testBill()}, []SupportingDocument{first, second})

	res := resp.ValidationResults[0]
	if res.MatchedDocument == nil || res.MatchedDocument.Filename != "first.pdf" {
		t.Fatalf("tie broke to %+v, want first.pdf", res.MatchedDocument)
	}
}

func TestValidateDeterministic(t *testing.T) {
	e := NewEngine(DefaultConfig())
	bills := []BillEntry{
		testBill(),
		{SiNo: 2, BillCashMemo: "INV-99", Amount: 250, BillDate: "05-05-2024"},
	}
	docs := []SupportingDocument{
		testDoc(),
		{Filename: "b.pdf", BillNumber: strPtr("INV-99"), Amount: f64Ptr(250), Date: strPtr("05-05-2024")},
	}
	a := mustValidate(t, e, bills, docs)
	b := mustValidate(t, e, bills, docs)
	for i := range a.ValidationResults {
		if a.ValidationResults[i].MatchStatus != b.ValidationResults[i].MatchStatus {
			t.Fatalf("result %d differs across runs", i)
		}
		if a.ValidationResults[i].MatchScore != b.ValidationResults[i].MatchScore {
			t.Fatalf("score %d differs across runs", i)
		}
	}
}

func TestValidateSummaryReconciles(t *testing.T) {
	e := NewEngine(DefaultConfig())
	partialDoc := testDoc()
	partialDoc.Amount = f64Ptr(550.0)
	bills := []BillEntry{
		testBill(),
		{SiNo: 2, BillCashMemo: "vacs2822451", Amount: 500, BillDate: "3/23/24"},
		{SiNo: 3, BillCashMemo: "ZZZ-404", Amount: 77, BillDate: "01-01-1999"},
	}
	docs := []SupportingDocument{partialDoc}
	resp := mustValidate(t, e, bills, docs)

	s := resp.Summary
	if s.TotalBills != 3 {
		t.Fatalf("total = %d, want 3", s.TotalBills)
	}
	if got := s.MatchedBills + s.PartialMatches + s.UnmatchedBills; got != s.TotalBills {
		t.Fatalf("counts sum to %d, want %d", got, s.TotalBills)
	}
	for _, res := range resp.ValidationResults {
		if res.Color != res.MatchStatus.Color() {
			t.Fatalf("status %q paired with color %q", res.MatchStatus, res.Color)
		}
	}
}

func TestValidateOneRecoversFromScoringPanic(t *testing.T) {
	e := NewEngine(DefaultConfig())

	// A nil bill panics inside ScoreDocument; the bill must degrade to a
	// NOT_MATCHED result instead of crashing the batch.
	res := e.validateOne(nil, []SupportingDocument{testDoc()})
	if res.MatchStatus != StatusNotMatched {
		t.Fatalf("status = %q, want %q", res.MatchStatus, StatusNotMatched)
	}
	if res.Color != "red" {
		t.Fatalf("color = %q, want red", res.Color)
	}
	if len(res.Mismatches) != 1 || !strings.HasPrefix(res.Mismatches[0], "Validation error:") {
		t.Fatalf("mismatches = %v, want one Validation error entry", res.Mismatches)
	}
	if !strings.HasPrefix(res.Notes, "Error during validation:") {
		t.Fatalf("notes = %q", res.Notes)
	}
	if res.MatchScore != 0 || res.MatchedDocument != nil {
		t.Fatalf("degraded result carries match data: score=%v doc=%+v", res.MatchScore, res.MatchedDocument)
	}

	// The degraded status lands in the unmatched summary bucket alongside
	// healthy bills.
	bills := []BillEntry{testBill(), {SiNo: 2, BillCashMemo: "ZZZ-404", Amount: 77, BillDate: "01-01-1999"}}
	resp := mustValidate(t, e, bills, []SupportingDocument{testDoc()})
	s := resp.Summary
	if s.MatchedBills != 1 || s.UnmatchedBills != 1 {
		t.Fatalf("summary = %+v, want one matched and one unmatched", s)
	}
	if got := s.MatchedBills + s.PartialMatches + s.UnmatchedBills; got != s.TotalBills {
		t.Fatalf("counts sum to %d, want %d", got, s.TotalBills)
	}
}

func TestMatchedResultMismatchListNotNull(t *testing.T) {
	e := NewEngine(DefaultConfig())
	resp := mustValidate(t, e, []BillEntry{testBill()}, []SupportingDocument{testDoc()})

	res := resp.ValidationResults[0]
	if res.Mismatches == nil {
		t.Fatal("matched result has nil mismatch list")
	}
	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"mismatches":[]`) {
		t.Fatalf("matched result serialized as %s, want an empty mismatches list", raw)
	}
}

func TestScoreDocumentWeights(t *testing.T) {
	e := NewEngine(DefaultConfig())
	bill := testBill()
	doc := testDoc()
	doc.BillNumber = strPtr("XYZ999")

	score, fs := e.ScoreDocument(&bill, &doc)
	if fs.Amount != 1.0 || fs.Date != 1.0 {
		t.Fatalf("field scores = %+v, want amount and date at 1.0", fs)
	}
	// Amount and date contribute at most 0.5 combined, so a dead bill
	// number caps the total below the strict threshold.
	if score > 0.55 {
		t.Fatalf("score = %v, want <= 0.55", score)
	}
}
