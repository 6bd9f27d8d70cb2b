package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/reflekt-app/reflekt/internal/services"
)

const schema = `
CREATE TABLE IF NOT EXISTS summaries (
    identifier TEXT PRIMARY KEY,
    summary    TEXT,
    payload    TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

// SQLiteSummaryStore keeps the remote summary record set in SQLite. The
// structured fields live as a JSON payload column; identifier and the
// summary text are broken out for listing queries.
type SQLiteSummaryStore struct {
	db *sql.DB
}

var _ services.SummaryStore = (*SQLiteSummaryStore)(nil)

// Open opens (or creates) the SQLite file at path and prepares the
// schema.
func Open(path string) (*SQLiteSummaryStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(path))
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store, err := NewSQLiteSummaryStore(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return store, nil
}

func NewSQLiteSummaryStore(conn *sql.DB) (*SQLiteSummaryStore, error) {
	if conn == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := conn.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteSummaryStore{db: conn}, nil
}

func (s *SQLiteSummaryStore) Close() error { return s.db.Close() }

func (s *SQLiteSummaryStore) UpsertSummary(rec *services.SummaryRecord) error {
	if rec == nil || rec.Identifier == "" {
		return errors.New("identifier required")
	}
	cp := *rec
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("encode summary record: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO summaries (identifier, summary, payload, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(identifier) DO UPDATE SET
    summary = excluded.summary,
    payload = excluded.payload,
    updated_at = excluded.updated_at`,
		cp.Identifier, toNullString(cp.Summary), string(payload), cp.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteSummaryStore) GetSummary(identifier string) (*services.SummaryRecord, error) {
	row := s.db.QueryRow(`SELECT payload FROM summaries WHERE identifier = ?`, identifier)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decodeRecord(payload)
}

func (s *SQLiteSummaryStore) ListSummaries() ([]*services.SummaryRecord, error) {
	rows, err := s.db.Query(`SELECT payload FROM summaries ORDER BY identifier`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*services.SummaryRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func decodeRecord(payload string) (*services.SummaryRecord, error) {
	var rec services.SummaryRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode summary record: %w", err)
	}
	return &rec, nil
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
