package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/arclinic/bill-validator/internal/matching"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted validation run: the full response plus the identity
// the API hands back to callers.
type Run struct {
	ID        string                       `json:"run_id"`
	CreatedAt time.Time                    `json:"created_at"`
	Response  *matching.ValidationResponse `json:"response"`
}

// RunSummary is the listing view of a run, without the response payload.
type RunSummary struct {
	ID             string    `json:"run_id"`
	CreatedAt      time.Time `json:"created_at"`
	TotalBills     int       `json:"total_bills"`
	MatchedBills   int       `json:"matched_bills"`
	PartialMatches int       `json:"partial_matches"`
	UnmatchedBills int       `json:"unmatched_bills"`
}

// RunStore persists validation runs to SQLite. Writes are write-through:
// a run is durable once SaveRun returns.
type RunStore struct {
	db *sqlx.DB
}

const runSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	created_at      TEXT NOT NULL,
	total_bills     INTEGER NOT NULL DEFAULT 0,
	matched_bills   INTEGER NOT NULL DEFAULT 0,
	partial_matches INTEGER NOT NULL DEFAULT 0,
	unmatched_bills INTEGER NOT NULL DEFAULT 0,
	response        TEXT NOT NULL
);
`

func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(runSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error {
	return s.db.Close()
}

// SaveRun assigns a run ID and persists the response.
func (s *RunStore) SaveRun(resp *matching.ValidationResponse) (*Run, error) {
	if resp == nil {
		return nil, errors.New("nil response")
	}
	run := &Run{
		ID:        fmt.Sprintf("RUN-%d", time.Now().UnixNano()),
		CreatedAt: time.Now().UTC(),
		Response:  resp,
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO runs (run_id, created_at, total_bills, matched_bills, partial_matches, unmatched_bills, response)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		timeToString(run.CreatedAt),
		resp.Summary.TotalBills,
		resp.Summary.MatchedBills,
		resp.Summary.PartialMatches,
		resp.Summary.UnmatchedBills,
		string(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}
	return run, nil
}

func (s *RunStore) GetRun(id string) (*Run, error) {
	var createdAt, payload string
	err := s.db.QueryRow(`SELECT created_at, response FROM runs WHERE run_id = ?`, id).Scan(&createdAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	var resp matching.ValidationResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &Run{ID: id, CreatedAt: stringToTime(createdAt), Response: &resp}, nil
}

// ListRuns returns run summaries, newest first.
func (s *RunStore) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT run_id, created_at, total_bills, matched_bills, partial_matches, unmatched_bills
		FROM runs ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []RunSummary{}
	for rows.Next() {
		var rs RunSummary
		var createdAt string
		if err := rows.Scan(&rs.ID, &createdAt, &rs.TotalBills, &rs.MatchedBills, &rs.PartialMatches, &rs.UnmatchedBills); err != nil {
			return nil, err
		}
		rs.CreatedAt = stringToTime(createdAt)
		out = append(out, rs)
	}
	return out, rows.Err()
}

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func stringToTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
