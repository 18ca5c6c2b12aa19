package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arclinic/bill-validator/internal/extract"
	"github.com/arclinic/bill-validator/internal/matching"
	"github.com/arclinic/bill-validator/internal/report"
)

// validate runs one validation from the command line, either over
// pre-extracted JSON or by extracting from documents directly.
//
//	validate -input run.json
//	validate -bill-file table.pdf receipt1.pdf receipt2.jpg
func main() {
	inputFlag := flag.String("input", "", "JSON file with bill_entries and supporting_documents (skips extraction)")
	billFileFlag := flag.String("bill-file", "", "PDF or image containing the bill entries table")
	formatFlag := flag.String("format", "markdown", "output format: markdown or json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		bills []matching.BillEntry
		docs  []matching.SupportingDocument
	)
	switch {
	case *inputFlag != "":
		var err error
		bills, docs, err = loadInput(*inputFlag)
		if err != nil {
			log.Fatal(err)
		}
	case *billFileFlag != "":
		var err error
		bills, docs, err = extractInput(ctx, *billFileFlag, flag.Args())
		if err != nil {
			log.Fatal(err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	engine := matching.NewEngine(matching.DefaultConfig())
	resp, err := engine.Validate(bills, docs)
	if err != nil {
		log.Fatal(err)
	}

	switch *formatFlag {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			log.Fatal(err)
		}
	case "markdown":
		fmt.Print(report.BuildMarkdown(fmt.Sprintf("RUN-%d", time.Now().UnixNano()), time.Now(), resp))
	default:
		log.Fatalf("unknown format %q", *formatFlag)
	}

	if resp.Summary.UnmatchedBills > 0 {
		os.Exit(1)
	}
}

type inputDoc struct {
	BillEntries         []matching.BillEntry          `json:"bill_entries"`
	SupportingDocuments []matching.SupportingDocument `json:"supporting_documents"`
}

func loadInput(path string) ([]matching.BillEntry, []matching.SupportingDocument, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read input: %w", err)
	}
	var in inputDoc
	if err := json.Unmarshal(blob, &in); err != nil {
		return nil, nil, fmt.Errorf("decode input: %w", err)
	}
	return in.BillEntries, in.SupportingDocuments, nil
}

func extractInput(ctx context.Context, billPath string, docPaths []string) ([]matching.BillEntry, []matching.SupportingDocument, error) {
	caller, err := extract.NewAnthropicCallerFromEnv()
	if err != nil {
		return nil, nil, err
	}
	exec := extract.NewExecutor(caller)

	billFile, err := readFile(billPath)
	if err != nil {
		return nil, nil, err
	}
	bills, err := extract.ExtractBillEntries(ctx, exec, billFile)
	if err != nil {
		return nil, nil, err
	}

	files := make([]extract.UploadedFile, 0, len(docPaths))
	for _, p := range docPaths {
		f, err := readFile(p)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, f)
	}
	return bills, extract.ProcessDocuments(ctx, exec, files), nil
}

func readFile(path string) (extract.UploadedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extract.UploadedFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	if !extract.IsSupportedFile(path) {
		return extract.UploadedFile{}, fmt.Errorf("%s: unsupported file type", path)
	}
	return extract.UploadedFile{Filename: path, Data: data}, nil
}
