package extract

import (
	"context"
	"errors"
	"log"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/arclinic/bill-validator/internal/matching"
)

const supportingDocPrompt = `Extract bill information from this medical document (prescription/invoice/bill):

- Bill Number/Invoice Number (look for invoice numbers, bill numbers, reference numbers, any alphanumeric codes)
- Total Amount (numerical value only, look for total, amount, sum, please pay, final amount)
- Patient Name (if available)
- Date (if available, in any format - extract exactly as shown)
- Hospital/Clinic Name (if available)

Return ONLY JSON like this:
{
    "bill_number": "extracted bill number or null if not found",
    "amount": 1234.56,
    "patient_name": "patient name or null if not found",
    "date": "date or null if not found",
    "hospital_name": "hospital name or null if not found",
    "confidence_score": 0.95,
    "document_type": "bill or prescription or invoice"
}

Important:
- Look carefully for bill numbers in various formats (VACS2822451, 5060834, etc.)
- Extract amounts from fields like "PLEASE PAY", "TOTAL", "AMOUNT", "SUM"
- Extract dates exactly as they appear (e.g., "23-03-2024", "3/23/24")
- Return valid JSON only, no additional text`

type rawSupportingDoc struct {
	BillNumber      *flexString `json:"bill_number"`
	Amount          *flexAmount `json:"amount"`
	PatientName     *flexString `json:"patient_name"`
	Date            *flexString `json:"date"`
	HospitalName    *flexString `json:"hospital_name"`
	ConfidenceScore *flexAmount `json:"confidence_score"`
	DocumentType    *flexString `json:"document_type"`
}

// ProcessDocument extracts bill details from a single supporting file.
func ProcessDocument(ctx context.Context, exec *Executor, file UploadedFile) (matching.SupportingDocument, error) {
	blocks, err := ContentBlocks(ctx, file)
	if err != nil {
		return matching.SupportingDocument{}, err
	}
	blocks = append([]anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(supportingDocPrompt)}, blocks...)

	var raw rawSupportingDoc
	validate := func() error {
		if raw.BillNumber == nil && raw.Amount == nil && raw.Date == nil {
			return errors.New("no bill number, amount or date in response")
		}
		return nil
	}
	response, err := exec.Run(ctx, "process-documents", blocks, &raw, validate)
	if err != nil {
		return matching.SupportingDocument{}, err
	}

	doc := matching.SupportingDocument{
		Filename:      file.Filename,
		ExtractedText: extractedSnippet(response),
	}
	if raw.BillNumber != nil && strings.TrimSpace(string(*raw.BillNumber)) != "" {
		v := strings.TrimSpace(string(*raw.BillNumber))
		doc.BillNumber = &v
	}
	if raw.Amount != nil {
		v := float64(*raw.Amount)
		doc.Amount = &v
	}
	if raw.PatientName != nil && *raw.PatientName != "" {
		v := string(*raw.PatientName)
		doc.PatientName = &v
	}
	if raw.Date != nil && strings.TrimSpace(string(*raw.Date)) != "" {
		v := strings.TrimSpace(string(*raw.Date))
		doc.Date = &v
	}
	if raw.HospitalName != nil && *raw.HospitalName != "" {
		v := string(*raw.HospitalName)
		doc.HospitalName = &v
	}
	if raw.ConfidenceScore != nil {
		v := float64(*raw.ConfidenceScore)
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		doc.ConfidenceScore = &v
	}
	if raw.DocumentType != nil && *raw.DocumentType != "" {
		v := string(*raw.DocumentType)
		doc.DocumentType = &v
	}
	return doc, nil
}

// extractedSnippetLimit caps the raw-response audit text kept on each
// document record.
const extractedSnippetLimit = 500

func extractedSnippet(s string) string {
	if len(s) <= extractedSnippetLimit {
		return s
	}
	return strings.ToValidUTF8(s[:extractedSnippetLimit], "")
}

// ProcessDocuments extracts from every supporting file. A file that fails
// extraction is logged and skipped so one bad scan does not sink the batch.
func ProcessDocuments(ctx context.Context, exec *Executor, files []UploadedFile) []matching.SupportingDocument {
	docs := make([]matching.SupportingDocument, 0, len(files))
	for _, f := range files {
		doc, err := ProcessDocument(ctx, exec, f)
		if err != nil {
			log.Printf("bill-validator process_documents_skipped file=%s err=%q", f.Filename, err.Error())
			continue
		}
		docs = append(docs, doc)
	}
	log.Printf("bill-validator process_documents_done files=%d extracted=%d", len(files), len(docs))
	return docs
}
