package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

const (
	maxFileBytes = 20 * 1024 * 1024
	maxTextRun   = 24000
)

// UploadedFile is one file received over the API, fully buffered.
type UploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

var imageMediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

// IsSupportedFile reports whether the file type can be extracted from.
func IsSupportedFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".pdf" {
		return true
	}
	_, ok := imageMediaTypes[ext]
	return ok
}

// ContentBlocks converts an uploaded file into the prompt blocks the model
// receives. Images are sent as base64 blocks so the model reads them
// directly. PDFs are converted to text first, because a layout-preserving
// text rendering of a bill table extracts more reliably than a rasterized
// page.
func ContentBlocks(ctx context.Context, f UploadedFile) ([]anthropic.ContentBlockParamUnion, error) {
	if len(f.Data) == 0 {
		return nil, fmt.Errorf("%s: file is empty", f.Filename)
	}
	if len(f.Data) > maxFileBytes {
		return nil, fmt.Errorf("%s: file exceeds %d bytes", f.Filename, maxFileBytes)
	}

	ext := strings.ToLower(filepath.Ext(f.Filename))
	if media, ok := imageMediaTypes[ext]; ok {
		encoded := base64.StdEncoding.EncodeToString(f.Data)
		return []anthropic.ContentBlockParamUnion{anthropic.NewImageBlockBase64(media, encoded)}, nil
	}
	if ext != ".pdf" {
		return nil, fmt.Errorf("%s: unsupported file type %q", f.Filename, ext)
	}

	res, err := ExtractPDFText(ctx, f.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Filename, err)
	}
	block := fmt.Sprintf("--- BEGIN DOCUMENT TEXT (%s) ---\n%s\n--- END DOCUMENT TEXT ---", f.Filename, res.Text)
	return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(block)}, nil
}

// ExtractionResult is the text pulled out of a PDF.
type ExtractionResult struct {
	Text      string
	Method    string
	Truncated bool
}

// ExtractPDFText converts a PDF to text with pdftotext, falling back to a
// printable-byte scan when the tool is unavailable or the PDF has no text
// layer worth keeping.
func ExtractPDFText(ctx context.Context, data []byte) (ExtractionResult, error) {
	tmp, err := os.CreateTemp("", "bill-*.pdf")
	if err != nil {
		return ExtractionResult{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ExtractionResult{}, fmt.Errorf("temp file write: %w", err)
	}
	tmp.Close()

	if out, err := runPdfToText(ctx, tmp.Name()); err == nil && strings.TrimSpace(out) != "" {
		return truncateExtraction(out, "pdftotext"), nil
	}

	fallback := extractPrintableText(data)
	if fallback == "" {
		return ExtractionResult{}, fmt.Errorf("no extractable text in PDF")
	}
	return truncateExtraction(fallback, "printable-scan"), nil
}

func runPdfToText(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func extractPrintableText(blob []byte) string {
	var runs []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if len(s) >= 24 {
			runs = append(runs, s)
		}
		b.Reset()
	}
	for _, c := range blob {
		r := rune(c)
		if unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r' {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	joined := strings.Join(runs, "\n")
	joined = strings.ReplaceAll(joined, "\x00", "")
	return strings.TrimSpace(joined)
}

func truncateExtraction(text, method string) ExtractionResult {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= maxTextRun {
		return ExtractionResult{Text: trimmed, Method: method}
	}
	prefix := trimmed[:maxTextRun]
	// Avoid cutting in the middle of a rune sequence.
	prefix = strings.ToValidUTF8(prefix, "")
	return ExtractionResult{
		Text:      prefix + "\n\n[TRUNCATED]",
		Method:    method,
		Truncated: true,
	}
}
