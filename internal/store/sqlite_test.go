package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/arclinic/bill-validator/internal/matching"
)

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	s, err := NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewRunStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResponse() *matching.ValidationResponse {
	e := matching.NewEngine(matching.DefaultConfig())
	bills := []matching.BillEntry{
		{SiNo: 1, BillCashMemo: "vacs2822451", BillDate: "3/23/24", Amount: 500},
	}
	num := "VACS2822451"
	amt := 500.0
	date := "23-03-2024"
	docs := []matching.SupportingDocument{
		{Filename: "receipt.pdf", BillNumber: &num, Amount: &amt, Date: &date},
	}
	resp, err := e.Validate(bills, docs)
	if err != nil {
		panic(err)
	}
	return resp
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)

	run, err := s.SaveRun(sampleResponse())
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if run.ID == "" || run.CreatedAt.IsZero() {
		t.Fatalf("run identity not assigned: %+v", run)
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Response.Summary.MatchedBills != 1 {
		t.Fatalf("summary = %+v, want 1 matched", got.Response.Summary)
	}
	if len(got.Response.ValidationResults) != 1 {
		t.Fatalf("results = %d, want 1", len(got.Response.ValidationResults))
	}
	if got.Response.ValidationResults[0].MatchStatus != matching.StatusMatched {
		t.Fatalf("status = %q", got.Response.ValidationResults[0].MatchStatus)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRun("RUN-404"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestListRuns(t *testing.T) {
	s := newTestStore(t)
	first, err := s.SaveRun(sampleResponse())
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	second, err := s.SaveRun(sampleResponse())
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != second.ID || runs[1].ID != first.ID {
		t.Fatalf("runs not newest-first: %v then %v", runs[0].ID, runs[1].ID)
	}
	if runs[0].TotalBills != 1 {
		t.Fatalf("summary columns not persisted: %+v", runs[0])
	}
}

func TestRunStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")
	s, err := NewRunStore(path)
	if err != nil {
		t.Fatalf("NewRunStore failed: %v", err)
	}
	run, err := s.SaveRun(sampleResponse())
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	s.Close()

	s2, err := NewRunStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	if _, err := s2.GetRun(run.ID); err != nil {
		t.Fatalf("run lost across reopen: %v", err)
	}
}
