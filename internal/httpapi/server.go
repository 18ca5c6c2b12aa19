package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arclinic/bill-validator/internal/extract"
	"github.com/arclinic/bill-validator/internal/matching"
	"github.com/arclinic/bill-validator/internal/report"
	"github.com/arclinic/bill-validator/internal/store"
	"github.com/arclinic/bill-validator/internal/telemetry"
)

const maxUploadBytes = 64 << 20

// colorLegend documents the status-to-color mapping in every validation
// response.
var colorLegend = map[string]string{
	"green":  "Perfect match - Bill and supporting document match completely",
	"orange": "Partial match - Some fields do not match or have discrepancies",
	"red":    "No match - No supporting document found for this bill",
}

// Server wires the extraction, matching, persistence and reporting layers
// behind the HTTP API. The extractor is nil when no API key is configured;
// extraction endpoints then report the capability as unavailable while
// validation of pre-extracted data keeps working.
type Server struct {
	engine    *matching.Engine
	runs      *store.RunStore
	extractor *extract.Executor
	pdf       *report.ChromiumPDFRenderer
	tracer    trace.Tracer
}

func NewServer(engine *matching.Engine, runs *store.RunStore, extractor *extract.Executor, pdf *report.ChromiumPDFRenderer) http.Handler {
	s := &Server{
		engine:    engine,
		runs:      runs,
		extractor: extractor,
		pdf:       pdf,
		tracer:    telemetry.Tracer(),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/validate", s.handleValidate)
	mux.HandleFunc("/v1/extract-bills", s.handleExtractBills)
	mux.HandleFunc("/v1/process-documents", s.handleProcessDocuments)
	mux.HandleFunc("/v1/validate-bills", s.handleValidateBills)
	mux.HandleFunc("/v1/runs", s.handleListRuns)
	mux.HandleFunc("/v1/runs/", s.handleRun)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string, details string) {
	payload := map[string]any{
		"error":     message,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if details != "" {
		payload["details"] = details
	}
	writeJSON(w, status, payload)
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"service":            "bill-validator",
		"extraction_enabled": s.extractor != nil,
		"timestamp":          time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type validateRequest struct {
	BillEntries         []matching.BillEntry          `json:"bill_entries"`
	SupportingDocuments []matching.SupportingDocument `json:"supporting_documents"`
}

// handleValidate runs the matching engine over pre-extracted data.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	_, span := s.tracer.Start(r.Context(), "validate")
	defer span.End()

	var req validateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	span.SetAttributes(
		attribute.Int("bills.count", len(req.BillEntries)),
		attribute.Int("documents.count", len(req.SupportingDocuments)),
	)

	s.validateAndRespond(w, span, req.BillEntries, req.SupportingDocuments)
}

func (s *Server) validateAndRespond(w http.ResponseWriter, span trace.Span, bills []matching.BillEntry, docs []matching.SupportingDocument) {
	resp, err := s.engine.Validate(bills, docs)
	if errors.Is(err, matching.ErrNoBillEntries) {
		writeError(w, http.StatusBadRequest, "no bill entries to validate", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "validation failed", err.Error())
		return
	}

	run, err := s.runs.SaveRun(resp)
	if err != nil {
		// The run is still returned; only history is lost.
		log.Printf("bill-validator run_save_failed err=%q", err.Error())
	}
	payload := map[string]any{
		"summary":              resp.Summary,
		"bill_entries":         resp.BillEntries,
		"validation_results":   resp.ValidationResults,
		"supporting_documents": resp.SupportingDocuments,
		"color_legend":         colorLegend,
	}
	if run != nil {
		payload["run_id"] = run.ID
		span.SetAttributes(attribute.String("run.id", run.ID))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) extractionReady(w http.ResponseWriter) bool {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction not configured", "ANTHROPIC_API_KEY is not set")
		return false
	}
	return true
}

func readUpload(fh *multipart.FileHeader) (extract.UploadedFile, error) {
	f, err := fh.Open()
	if err != nil {
		return extract.UploadedFile{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return extract.UploadedFile{}, err
	}
	return extract.UploadedFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) (extract.UploadedFile, bool) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body", err.Error())
			return extract.UploadedFile{}, false
		}
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing file field %q", field), "")
		return extract.UploadedFile{}, false
	}
	file, err := readUpload(headers[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload", err.Error())
		return extract.UploadedFile{}, false
	}
	if !extract.IsSupportedFile(file.Filename) {
		writeError(w, http.StatusBadRequest, "file must be a PDF or image (JPG, PNG, BMP, TIFF)", file.Filename)
		return extract.UploadedFile{}, false
	}
	return file, true
}

func (s *Server) formFiles(w http.ResponseWriter, r *http.Request, field string) ([]extract.UploadedFile, bool) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body", err.Error())
			return nil, false
		}
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing file field %q", field), "")
		return nil, false
	}
	files := make([]extract.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		file, err := readUpload(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read upload", err.Error())
			return nil, false
		}
		if !extract.IsSupportedFile(file.Filename) {
			writeError(w, http.StatusBadRequest, "files must be PDFs or images (JPG, PNG, BMP, TIFF)", file.Filename)
			return nil, false
		}
		files = append(files, file)
	}
	return files, true
}

// handleExtractBills extracts the bill table from one uploaded file.
func (s *Server) handleExtractBills(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	if !s.extractionReady(w) {
		return
	}
	ctx, span := s.tracer.Start(r.Context(), "extract-bills")
	defer span.End()

	file, ok := s.formFile(w, r, "bill_entries_file")
	if !ok {
		return
	}
	start := time.Now()
	entries, err := extract.ExtractBillEntries(ctx, s.extractor, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bill extraction failed", err.Error())
		return
	}
	span.SetAttributes(attribute.Int("bills.count", len(entries)))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         "Bill entries extracted successfully",
		"bill_entries":    entries,
		"count":           len(entries),
		"extraction_time": time.Since(start).Seconds(),
	})
}

// handleProcessDocuments extracts bill details from supporting files.
func (s *Server) handleProcessDocuments(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	if !s.extractionReady(w) {
		return
	}
	ctx, span := s.tracer.Start(r.Context(), "process-documents")
	defer span.End()

	files, ok := s.formFiles(w, r, "supporting_documents")
	if !ok {
		return
	}
	start := time.Now()
	docs := extract.ProcessDocuments(ctx, s.extractor, files)
	span.SetAttributes(attribute.Int("documents.count", len(docs)))
	writeJSON(w, http.StatusOK, map[string]any{
		"message":             "Supporting documents processed",
		"processed_documents": docs,
		"count":               len(docs),
		"processing_time":     time.Since(start).Seconds(),
	})
}

// handleValidateBills runs the full pipeline: extract the bill table,
// extract the supporting documents, then match.
func (s *Server) handleValidateBills(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	if !s.extractionReady(w) {
		return
	}
	ctx, span := s.tracer.Start(r.Context(), "validate-bills")
	defer span.End()

	billFile, ok := s.formFile(w, r, "bill_entries_file")
	if !ok {
		return
	}
	docFiles, ok := s.formFiles(w, r, "supporting_documents")
	if !ok {
		return
	}

	entries, err := extract.ExtractBillEntries(ctx, s.extractor, billFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bill extraction failed", err.Error())
		return
	}
	docs := extract.ProcessDocuments(ctx, s.extractor, docFiles)
	span.SetAttributes(
		attribute.Int("bills.count", len(entries)),
		attribute.Int("documents.count", len(docs)),
	)

	s.validateAndRespond(w, span, entries, docs)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	runs, err := s.runs.ListRuns(0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list runs", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleRun serves /v1/runs/{id} and /v1/runs/{id}/report.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "run id required", "")
		return
	}

	run, err := s.runs.GetRun(id)
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found", id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load run", err.Error())
		return
	}

	switch sub {
	case "":
		writeJSON(w, http.StatusOK, run)
	case "report":
		s.serveReport(w, r, run)
	default:
		writeError(w, http.StatusNotFound, "unknown run resource", sub)
	}
}

func (s *Server) serveReport(w http.ResponseWriter, r *http.Request, run *store.Run) {
	markdown := report.BuildMarkdown(run.ID, run.CreatedAt, run.Response)

	switch format := r.URL.Query().Get("format"); format {
	case "", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, markdown)
	case "html":
		html, err := report.RenderHTML(markdown)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "report rendering failed", err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, html)
	case "pdf":
		if s.pdf == nil {
			writeError(w, http.StatusServiceUnavailable, "PDF rendering not configured", "")
			return
		}
		pdf, err := s.pdf.Render(r.Context(), markdown)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "PDF rendering failed", err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", run.ID))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	default:
		writeError(w, http.StatusBadRequest, "unknown report format", format)
	}
}
