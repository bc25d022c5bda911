package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// CaseDB is a SQLite database of recorded cases keyed by iteration.
type CaseDB struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// OpenCaseDB opens (creating if needed) the case database at path.
func OpenCaseDB(path string) (*CaseDB, error) {
	if path == "" {
		return nil, errors.New("case database path is required")
	}

	// Readers may open the database while a run is still writing to it.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open case database: %w", err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open case database: %w", err)
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &CaseDB{path: path, db: db}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cases (
			iteration INTEGER PRIMARY KEY,
			coord TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			params TEXT NOT NULL,
			unknowns TEXT NOT NULL,
			success INTEGER NOT NULL,
			msg TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create case tables: %w", err)
		}
	}
	return nil
}

func (s *CaseDB) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errors.New("case database is closed")
	}
	return s.db, nil
}

// Path returns the database file path.
func (s *CaseDB) Path() string { return s.path }

// RecordMetadata stores the problem description under the "metadata" key.
func (s *CaseDB) RecordMetadata(ctx context.Context, meta Metadata) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return s.SetMeta(ctx, "metadata", string(payload))
}

// SetMeta upserts a metadata entry.
func (s *CaseDB) SetMeta(ctx context.Context, key, value string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to store metadata %s: %w", key, err)
	}
	return nil
}

// Metadata returns the recorded problem description.
func (s *CaseDB) Metadata(ctx context.Context) (Metadata, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Metadata{}, false, err
	}

	var payload string
	err = db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, "metadata").Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Metadata{}, false, nil
	}
	if err != nil {
		return Metadata{}, false, err
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return Metadata{}, false, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, true, nil
}

// RecordCase upserts a case by iteration.
func (s *CaseDB) RecordCase(ctx context.Context, c Case) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	params, err := json.Marshal(jsonValues(c.Params))
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	unknowns, err := json.Marshal(jsonValues(c.Unknowns))
	if err != nil {
		return fmt.Errorf("failed to marshal unknowns: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO cases (iteration, coord, timestamp, params, unknowns, success, msg)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(iteration) DO UPDATE SET
			coord = excluded.coord,
			timestamp = excluded.timestamp,
			params = excluded.params,
			unknowns = excluded.unknowns,
			success = excluded.success,
			msg = excluded.msg
	`, c.Iteration, c.Coord, c.Timestamp.UTC().Format(time.RFC3339Nano), string(params), string(unknowns), c.Success, c.Msg)
	if err != nil {
		return fmt.Errorf("failed to record case %d: %w", c.Iteration, err)
	}
	return nil
}

// Case returns the case recorded at iteration.
func (s *CaseDB) Case(ctx context.Context, iteration int) (Case, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Case{}, false, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT iteration, coord, timestamp, params, unknowns, success, msg
		FROM cases WHERE iteration = ?
	`, iteration)

	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, false, nil
	}
	if err != nil {
		return Case{}, false, err
	}
	return c, true, nil
}

// Cases returns every recorded case in iteration order.
func (s *CaseDB) Cases(ctx context.Context) ([]Case, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT iteration, coord, timestamp, params, unknowns, success, msg
		FROM cases ORDER BY iteration
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	var cases []Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCase(row scanner) (Case, error) {
	var (
		c                    Case
		ts, params, unknowns string
	)
	if err := row.Scan(&c.Iteration, &c.Coord, &ts, &params, &unknowns, &c.Success, &c.Msg); err != nil {
		return Case{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Case{}, fmt.Errorf("decode case %d timestamp: %w", c.Iteration, err)
	}
	c.Timestamp = t

	if err := json.Unmarshal([]byte(params), (*jsonValues)(&c.Params)); err != nil {
		return Case{}, fmt.Errorf("decode case %d params: %w", c.Iteration, err)
	}
	if err := json.Unmarshal([]byte(unknowns), (*jsonValues)(&c.Unknowns)); err != nil {
		return Case{}, fmt.Errorf("decode case %d unknowns: %w", c.Iteration, err)
	}
	return c, nil
}

// Close releases the database handle.
func (s *CaseDB) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
