package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/arclinic/bill-validator/internal/matching"
)

const billEntriesPrompt = `Extract all bill entries from this medical bill table. The table contains medical expense entries with the following columns:

- SI No (Serial Number)
- Bill/Cash Memo
- Bill Date
- Classification (e.g., HOSPITAL CONSULTATION, MEDICINES, PATHOLOGICAL TEST)
- Type Of Treatment (e.g., Allopathic)
- Account Code (e.g., 550)
- Description (e.g., MEDICAL REIMBURSEMENT SPECIAL DESEASES)
- Amount (numerical value only)
- Med Pass Amount (numerical value only)
- Fin Pass Amount Taxable (numerical value only)
- Fin Pass Non Taxable (numerical value only, may be empty)

Return ONLY a JSON array like this:
[
    {
        "si_no": 1,
        "bill_cash_memo": "vacs2822451",
        "bill_date": "3/23/24",
        "classification": "HOSPITAL CONSULTATION",
        "type_of_treatment": "Allopathic",
        "account_code": "550",
        "description": "MEDICAL REIMBURSEMENT SPECIAL DESEASES",
        "amount": 500.0,
        "med_pass_amount": 500.0,
        "fin_pass_amount_taxable": 500.0,
        "fin_pass_non_taxable": null
    }
]

Important:
- Extract exact amounts as numbers (no currency symbols)
- Preserve the exact format of bill numbers and dates
- Handle empty fields with null
- Ensure all numerical values are properly parsed`

// flexString tolerates a bare JSON number where a string was asked for.
// Bill numbers and account codes are frequently all-digit values and some
// responses emit them unquoted.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexAmount tolerates a formatted string ("₹1,234.50") where a number was
// asked for. Strings go through the same parser used everywhere else.
type flexAmount float64

func (f *flexAmount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = 0
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		v, ok := matching.ParseAmount(raw)
		if !ok {
			return fmt.Errorf("no numeric amount in %q", raw)
		}
		*f = flexAmount(v)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexAmount(v)
	return nil
}

type rawBillEntry struct {
	SiNo                 int         `json:"si_no"`
	BillCashMemo         flexString  `json:"bill_cash_memo"`
	BillDate             flexString  `json:"bill_date"`
	Classification       flexString  `json:"classification"`
	TypeOfTreatment      flexString  `json:"type_of_treatment"`
	AccountCode          flexString  `json:"account_code"`
	Description          flexString  `json:"description"`
	Amount               *flexAmount `json:"amount"`
	MedPassAmount        flexAmount  `json:"med_pass_amount"`
	FinPassAmountTaxable flexAmount  `json:"fin_pass_amount_taxable"`
	FinPassNonTaxable    *flexAmount `json:"fin_pass_non_taxable"`
}

// ExtractBillEntries reads the primary bill table out of one uploaded file.
// Rows with no bill number or no amount are dropped rather than failing the
// whole file.
func ExtractBillEntries(ctx context.Context, exec *Executor, file UploadedFile) ([]matching.BillEntry, error) {
	blocks, err := ContentBlocks(ctx, file)
	if err != nil {
		return nil, err
	}
	blocks = append([]anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(billEntriesPrompt)}, blocks...)

	var raw []rawBillEntry
	validate := func() error {
		if len(raw) == 0 {
			return errors.New("no bill entries in response")
		}
		return nil
	}
	if _, err := exec.Run(ctx, "extract-bills", blocks, &raw, validate); err != nil {
		return nil, err
	}

	entries := make([]matching.BillEntry, 0, len(raw))
	for i, r := range raw {
		memo := strings.TrimSpace(string(r.BillCashMemo))
		if memo == "" {
			log.Printf("bill-validator extract_bills_row_skipped file=%s row=%d reason=missing_bill_number", file.Filename, i)
			continue
		}
		if r.Amount == nil {
			log.Printf("bill-validator extract_bills_row_skipped file=%s row=%d reason=missing_amount", file.Filename, i)
			continue
		}
		entry := matching.BillEntry{
			SiNo:                 r.SiNo,
			BillCashMemo:         memo,
			BillDate:             strings.TrimSpace(string(r.BillDate)),
			Classification:       string(r.Classification),
			TypeOfTreatment:      string(r.TypeOfTreatment),
			AccountCode:          string(r.AccountCode),
			Description:          string(r.Description),
			Amount:               float64(*r.Amount),
			MedPassAmount:        float64(r.MedPassAmount),
			FinPassAmountTaxable: float64(r.FinPassAmountTaxable),
		}
		if entry.SiNo == 0 {
			entry.SiNo = i + 1
		}
		if r.FinPassNonTaxable != nil {
			v := float64(*r.FinPassNonTaxable)
			entry.FinPassNonTaxable = &v
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, errors.New("no usable bill entries extracted")
	}
	log.Printf("bill-validator extract_bills_done file=%s entries=%d", file.Filename, len(entries))
	return entries, nil
}
