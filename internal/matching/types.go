package matching

import "time"

// MatchStatus is the terminal classification for a bill entry after the
// engine has compared it against every supporting document.
type MatchStatus string

const (
	StatusMatched      MatchStatus = "matched"
	StatusPartialMatch MatchStatus = "partial"
	StatusNotMatched   MatchStatus = "not_matched"
)

// Color returns the display color bound 1:1 to the status. Results must
// never carry any other status/color combination.
func (s MatchStatus) Color() string {
	switch s {
	case StatusMatched:
		return "green"
	case StatusPartialMatch:
		return "orange"
	default:
		return "red"
	}
}

// BillEntry is one row from the primary bill table. Entries are produced
// by the extraction step and never mutated afterwards.
type BillEntry struct {
	SiNo                 int      `json:"si_no"`
	BillCashMemo         string   `json:"bill_cash_memo"`
	BillDate             string   `json:"bill_date"`
	Classification       string   `json:"classification"`
	TypeOfTreatment      string   `json:"type_of_treatment"`
	AccountCode          string   `json:"account_code"`
	Description          string   `json:"description"`
	Amount               float64  `json:"amount"`
	MedPassAmount        float64  `json:"med_pass_amount"`
	FinPassAmountTaxable float64  `json:"fin_pass_amount_taxable"`
	FinPassNonTaxable    *float64 `json:"fin_pass_non_taxable"`
}

// SupportingDocument is one record extracted from a user-supplied
// corroborating file. A single file may yield zero or more records.
// Optional fields are nil when the document carried no such information.
type SupportingDocument struct {
	Filename        string   `json:"filename"`
	BillNumber      *string  `json:"bill_number"`
	Amount          *float64 `json:"amount"`
	PatientName     *string  `json:"patient_name"`
	Date            *string  `json:"date"`
	HospitalName    *string  `json:"hospital_name"`
	ExtractedText   string   `json:"extracted_text"`
	ConfidenceScore *float64 `json:"confidence_score"`
	DocumentType    *string  `json:"document_type"`
}

// FieldScores carries the per-field similarity scores and the stricter
// tolerance-equality flags for one (bill, document) pair. The booleans are
// not derived from the continuous scores.
type FieldScores struct {
	BillNumber  float64 `json:"bill_number"`
	Amount      float64 `json:"amount"`
	Date        float64 `json:"date"`
	AmountExact bool    `json:"amount_exact"`
	DateExact   bool    `json:"date_exact"`
}

// ValidationResult is the outcome for a single bill entry.
type ValidationResult struct {
	BillEntry       *BillEntry          `json:"bill_entry"`
	MatchStatus     MatchStatus         `json:"match_status"`
	MatchedDocument *SupportingDocument `json:"matched_document"`
	Color           string              `json:"color"`
	BillNumberMatch bool                `json:"bill_number_match"`
	AmountMatch     bool                `json:"amount_match"`
	DateMatch       bool                `json:"date_match"`
	Mismatches      []string            `json:"mismatches"`
	Notes           string              `json:"notes"`
	MatchScore      float64             `json:"match_score"`
	FieldScores     FieldScores         `json:"field_scores"`
}

// ValidationSummary aggregates the per-bill outcomes. Counts always sum to
// TotalBills.
type ValidationSummary struct {
	TotalBills     int       `json:"total_bills"`
	MatchedBills   int       `json:"matched_bills"`
	PartialMatches int       `json:"partial_matches"`
	UnmatchedBills int       `json:"unmatched_bills"`
	ProcessingTime float64   `json:"processing_time"`
	Timestamp      time.Time `json:"timestamp"`
}

// ValidationResponse is the full engine output. ValidationResults is
// ordered exactly as the input bill entries were.
type ValidationResponse struct {
	Summary             ValidationSummary    `json:"summary"`
	BillEntries         []BillEntry          `json:"bill_entries"`
	ValidationResults   []ValidationResult   `json:"validation_results"`
	SupportingDocuments []SupportingDocument `json:"supporting_documents"`
}
