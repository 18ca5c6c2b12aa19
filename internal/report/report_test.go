package report

import (
	"strings"
	"testing"
	"time"

	"github.com/arclinic/bill-validator/internal/matching"
)

func sampleResponse(t *testing.T) *matching.ValidationResponse {
	t.Helper()
	e := matching.NewEngine(matching.DefaultConfig())
	num := "VACS2822451"
	amt := 500.0
	badAmt := 9999.0
	date := "23-03-2024"
	bills := []matching.BillEntry{
		{SiNo: 1, BillCashMemo: "vacs2822451", BillDate: "3/23/24", Amount: 500},
		{SiNo: 2, BillCashMemo: "INV|99", BillDate: "01-01-2024", Amount: 250},
	}
	docs := []matching.SupportingDocument{
		{Filename: "receipt.pdf", BillNumber: &num, Amount: &amt, Date: &date},
		{Filename: "noise.pdf", Amount: &badAmt},
	}
	resp, err := e.Validate(bills, docs)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return resp
}

func TestBuildMarkdown(t *testing.T) {
	md := BuildMarkdown("RUN-42", time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), sampleResponse(t))

	for _, want := range []string{
		"# Bill Validation Report",
		"`RUN-42`",
		"## Summary",
		"## Validation Results",
		"vacs2822451",
		"MATCHED",
		"receipt.pdf",
		"## Supporting Documents",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
	// Pipes inside cell values would break the table layout.
	if !strings.Contains(md, `INV\|99`) {
		t.Fatal("pipe in bill number was not escaped")
	}
}

func TestBuildMarkdownSummaryCounts(t *testing.T) {
	resp := sampleResponse(t)
	md := BuildMarkdown("RUN-7", time.Now(), resp)
	if !strings.Contains(md, "| Matched | 1 |") {
		t.Fatalf("matched count row missing:\n%s", md)
	}
	if !strings.Contains(md, "| Not matched | 1 |") {
		t.Fatalf("unmatched count row missing:\n%s", md)
	}
}

func TestRenderHTML(t *testing.T) {
	md := BuildMarkdown("RUN-42", time.Now(), sampleResponse(t))
	html, err := RenderHTML(md)
	if err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	for _, want := range []string{
		"<!doctype html>",
		"<table>",
		`<span class="status-matched">MATCHED</span>`,
		`<span class="status-unmatched">NOT MATCHED</span>`,
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("html missing %q", want)
		}
	}
}

func TestColorizeStatusCells(t *testing.T) {
	in := "<td>MATCHED</td><td>PARTIAL MATCH</td><td>NOT MATCHED</td><td>MATCHED DOCS</td>"
	out := colorizeStatusCells(in)
	if strings.Count(out, "status-") != 3 {
		t.Fatalf("expected exactly 3 colored cells, got: %s", out)
	}
	if !strings.Contains(out, "<td>MATCHED DOCS</td>") {
		t.Fatal("non-status cell was rewritten")
	}
}
