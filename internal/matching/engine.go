package matching

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoBillEntries is the only failure that crosses the engine boundary.
// Every other problem degrades into result data on the affected bill.
var ErrNoBillEntries = errors.New("no bill entries to validate")

// Config carries every tunable the engine uses. The zero value is not
// usable; construct with DefaultConfig.
type Config struct {
	BillNumberWeight float64
	AmountWeight     float64
	DateWeight       float64

	// HighThreshold gates the MATCHED/PARTIAL_MATCH tiers, PartialThreshold
	// gates PARTIAL_MATCH/NOT_MATCHED.
	HighThreshold    float64
	PartialThreshold float64

	AbsoluteTolerance float64
	RelativeTolerance float64
}

// DefaultConfig returns the production weights and thresholds. Bill number
// dominates because it is the most discriminating field when extracted
// correctly; date carries the least weight because its extraction ambiguity
// is highest.
func DefaultConfig() Config {
	return Config{
		BillNumberWeight:  0.50,
		AmountWeight:      0.30,
		DateWeight:        0.20,
		HighThreshold:     0.80,
		PartialThreshold:  0.55,
		AbsoluteTolerance: 1.0,
		RelativeTolerance: 0.005,
	}
}

// Engine validates bill entries against supporting documents. It is
// stateless apart from its configuration and safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// ScoreDocument computes the weighted similarity between one bill entry and
// one candidate document, plus the raw per-field scores and exactness flags
// used for downstream reporting.
func (e *Engine) ScoreDocument(bill *BillEntry, doc *SupportingDocument) (float64, FieldScores) {
	var fs FieldScores
	if doc.BillNumber != nil {
		fs.BillNumber = BillNumberSimilarity(bill.BillCashMemo, *doc.BillNumber)
	}
	fs.Amount, fs.AmountExact = e.cfg.AmountSimilarity(bill.Amount, doc.Amount)
	if doc.Date != nil {
		fs.Date, fs.DateExact = DateSimilarity(bill.BillDate, *doc.Date)
	}
	total := e.cfg.BillNumberWeight*fs.BillNumber +
		e.cfg.AmountWeight*fs.Amount +
		e.cfg.DateWeight*fs.Date
	return total, fs
}

// findBestMatch scans every document and keeps the strictly best score.
// Ties resolve to the first-encountered document so repeated runs over the
// same input ordering stay deterministic.
func (e *Engine) findBestMatch(bill *BillEntry, docs []SupportingDocument) (*SupportingDocument, float64, FieldScores) {
	var (
		best      *SupportingDocument
		bestScore float64
		bestFS    FieldScores
	)
	for i := range docs {
		score, fs := e.ScoreDocument(bill, &docs[i])
		if best == nil || score > bestScore {
			best = &docs[i]
			bestScore = score
			bestFS = fs
		}
	}
	return best, bestScore, bestFS
}

// validateOne classifies a single bill. A panic while scoring is contained
// here: the bill degrades to NOT_MATCHED with a diagnostic mismatch and the
// batch continues.
func (e *Engine) validateOne(bill *BillEntry, docs []SupportingDocument) (result ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = ValidationResult{
				BillEntry:   bill,
				MatchStatus: StatusNotMatched,
				Color:       StatusNotMatched.Color(),
				Mismatches:  []string{fmt.Sprintf("Validation error: %v", r)},
				Notes:       fmt.Sprintf("Error during validation: %v", r),
			}
		}
	}()

	doc, score, fs := e.findBestMatch(bill, docs)
	if doc == nil || score < e.cfg.PartialThreshold {
		return ValidationResult{
			BillEntry:   bill,
			MatchStatus: StatusNotMatched,
			Color:       StatusNotMatched.Color(),
			Mismatches:  []string{"No supporting document found"},
			Notes:       "No supporting document found for this bill",
			MatchScore:  0.0,
			FieldScores: FieldScores{},
		}
	}

	result = ValidationResult{
		BillEntry:       bill,
		MatchedDocument: doc,
		AmountMatch:     fs.AmountExact,
		DateMatch:       fs.DateExact,
		MatchScore:      score,
		FieldScores:     fs,
	}

	if score >= e.cfg.HighThreshold {
		result.BillNumberMatch = fs.BillNumber >= 0.99
		if result.BillNumberMatch && fs.AmountExact && fs.DateExact {
			result.MatchStatus = StatusMatched
			result.Notes = "Perfect match with supporting document"
			// Serializes as an empty list, matching the other tiers.
			result.Mismatches = []string{}
		} else {
			result.MatchStatus = StatusPartialMatch
			result.Notes = "Partial match - some fields do not strictly match"
			result.Mismatches = e.buildMismatches(bill, doc, fs)
		}
	} else {
		// This tier already signals uncertainty, so the reported boolean is
		// relaxed to the high-confidence similarity bar instead of 0.99.
		result.BillNumberMatch = fs.BillNumber >= e.cfg.HighThreshold
		result.MatchStatus = StatusPartialMatch
		result.Notes = "Low-confidence partial match"
		result.Mismatches = e.buildMismatches(bill, doc, fs)
	}
	result.Color = result.MatchStatus.Color()
	return result
}

// buildMismatches lists one human-readable entry per failing field. A
// partial match must always carry at least one explanatory note, so a
// generic fallback is used when every field-level test passed.
func (e *Engine) buildMismatches(bill *BillEntry, doc *SupportingDocument, fs FieldScores) []string {
	var out []string
	if fs.BillNumber < 0.99 {
		out = append(out, fmt.Sprintf("Bill number differs (score=%.2f)", fs.BillNumber))
	}
	if !fs.AmountExact {
		docAmount := "missing"
		if doc.Amount != nil {
			docAmount = fmt.Sprintf("%.2f", *doc.Amount)
		}
		out = append(out, fmt.Sprintf("Amount differs (bill=%.2f, doc=%s)", bill.Amount, docAmount))
	}
	if !fs.DateExact {
		docDate := "missing"
		if doc.Date != nil {
			docDate = *doc.Date
		}
		out = append(out, fmt.Sprintf("Date differs (bill=%s, doc=%s)", bill.BillDate, docDate))
	}
	if len(out) == 0 {
		out = append(out, "Minor formatting differences")
	}
	return out
}

// Validate scores every bill entry against the supporting-document set and
// returns one result per bill, in input order, plus reconciled summary
// counts. An empty supporting-document set is valid input and produces
// all-NOT_MATCHED results; an empty bill list is the caller's error.
func (e *Engine) Validate(bills []BillEntry, docs []SupportingDocument) (*ValidationResponse, error) {
	if len(bills) == 0 {
		return nil, ErrNoBillEntries
	}
	start := time.Now()

	results := make([]ValidationResult, 0, len(bills))
	summary := ValidationSummary{TotalBills: len(bills)}
	for i := range bills {
		res := e.validateOne(&bills[i], docs)
		results = append(results, res)
		switch res.MatchStatus {
		case StatusMatched:
			summary.MatchedBills++
		case StatusPartialMatch:
			summary.PartialMatches++
		default:
			summary.UnmatchedBills++
		}
	}

	summary.ProcessingTime = time.Since(start).Seconds()
	summary.Timestamp = time.Now()
	return &ValidationResponse{
		Summary:             summary,
		BillEntries:         bills,
		ValidationResults:   results,
		SupportingDocuments: docs,
	}, nil
}
