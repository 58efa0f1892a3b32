package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the queue document in a single-row table with a version
// column. The commit UPDATE is gated on the expected version, which gives the
// same optimistic contract as the file store but lets sqlite arbitrate
// between processes.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS queue_document (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL,
		jobs TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create queue_document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Fetch(ctx context.Context) (*Document, error) {
	var version int64
	var jobsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT version, jobs FROM queue_document WHERE id = 1`).
		Scan(&version, &jobsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("load queue document: %w", err)
	}

	var jobs []Job
	if err := json.Unmarshal([]byte(jobsJSON), &jobs); err != nil {
		return nil, fmt.Errorf("parse queue document: %w", err)
	}
	return &Document{Version: version, Jobs: jobs}, nil
}

func (s *SQLiteStore) Commit(ctx context.Context, muts []Mutation, expectedVersion int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback()

	var version int64
	var jobsJSON string
	err = tx.QueryRowContext(ctx, `SELECT version, jobs FROM queue_document WHERE id = 1`).
		Scan(&version, &jobsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotInitialized
	}
	if err != nil {
		return 0, fmt.Errorf("load queue document: %w", err)
	}
	if version != expectedVersion {
		return 0, fmt.Errorf("stored version %d, expected %d: %w", version, expectedVersion, ErrConflict)
	}

	var jobs []Job
	if err := json.Unmarshal([]byte(jobsJSON), &jobs); err != nil {
		return 0, fmt.Errorf("parse queue document: %w", err)
	}
	doc := &Document{Version: version, Jobs: jobs}
	if err := applyAll(doc, muts); err != nil {
		return 0, fmt.Errorf("apply mutations: %w", err)
	}

	encoded, err := json.Marshal(doc.Jobs)
	if err != nil {
		return 0, fmt.Errorf("encode queue document: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE queue_document SET version = ?, jobs = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1 AND version = ?`,
		doc.Version, string(encoded), expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("store queue document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store queue document: %w", err)
	}
	if affected != 1 {
		return 0, ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit queue document: %w", err)
	}
	return doc.Version, nil
}

func (s *SQLiteStore) Seed(ctx context.Context, jobs []Job) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	doc := &Document{}
	var jobsJSON string
	err = tx.QueryRowContext(ctx, `SELECT version, jobs FROM queue_document WHERE id = 1`).
		Scan(&doc.Version, &jobsJSON)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first init
	case err != nil:
		return 0, fmt.Errorf("load queue document: %w", err)
	default:
		if err := json.Unmarshal([]byte(jobsJSON), &doc.Jobs); err != nil {
			return 0, fmt.Errorf("parse queue document: %w", err)
		}
	}

	existing := make(map[string]bool, len(doc.Jobs))
	for _, j := range doc.Jobs {
		existing[j.ID] = true
	}
	added := 0
	for _, j := range jobs {
		if existing[j.ID] {
			continue
		}
		existing[j.ID] = true
		doc.Jobs = append(doc.Jobs, j)
		added++
	}

	encoded, err := json.Marshal(doc.Jobs)
	if err != nil {
		return 0, fmt.Errorf("encode queue document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO queue_document (id, version, jobs) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET version = excluded.version, jobs = excluded.jobs, updated_at = CURRENT_TIMESTAMP`,
		doc.Version+1, string(encoded)); err != nil {
		return 0, fmt.Errorf("store queue document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return added, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	doc, err := s.Fetch(ctx)
	if err != nil {
		return Stats{}, err
	}
	return doc.Stats(), nil
}
