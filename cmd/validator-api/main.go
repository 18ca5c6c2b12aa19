package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/arclinic/bill-validator/internal/extract"
	"github.com/arclinic/bill-validator/internal/httpapi"
	"github.com/arclinic/bill-validator/internal/matching"
	"github.com/arclinic/bill-validator/internal/report"
	"github.com/arclinic/bill-validator/internal/store"
	"github.com/arclinic/bill-validator/internal/telemetry"
)

func main() {
	dbFlag := flag.String("db", "", "path to SQLite database file (overrides BILL_VALIDATOR_DB env var)")
	flag.Parse()

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	dbPath := *dbFlag
	if dbPath == "" {
		dbPath = os.Getenv("BILL_VALIDATOR_DB")
	}
	if dbPath == "" {
		dbPath = "./data/runs.db"
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, "bill-validator-api")
	if err != nil {
		log.Fatalf("telemetry init: %v", err)
	}

	runs, err := store.NewRunStore(dbPath)
	if err != nil {
		log.Fatalf("failed to initialize run store (%s): %v", dbPath, err)
	}
	defer runs.Close()
	log.Printf("using sqlite run store at %s", dbPath)

	var extractor *extract.Executor
	if caller, err := extract.NewAnthropicCallerFromEnv(); err != nil {
		log.Printf("extraction disabled: %v", err)
	} else {
		extractor = extract.NewExecutor(caller)
		log.Printf("extraction enabled (model=%s)", caller.ModelName())
	}

	engine := matching.NewEngine(matching.DefaultConfig())
	h := httpapi.NewServer(engine, runs, extractor, report.NewChromiumPDFRenderer())

	srv := &http.Server{Addr: addr, Handler: h}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = shutdownTelemetry(shutdownCtx)
	}()

	log.Printf("validator-api listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
