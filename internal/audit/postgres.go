package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/AndreyAkinshin/fleetbuild/internal/record"
)

const createRecordsTable = `
	CREATE TABLE IF NOT EXISTS run_records (
		id          BIGSERIAL PRIMARY KEY,
		run_id      TEXT        NOT NULL,
		record_type TEXT        NOT NULL,
		fields      JSONB       NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	)
`

const insertRecord = `
	INSERT INTO run_records (run_id, record_type, fields, recorded_at)
	VALUES ($1, $2, $3, $4)
`

// PostgresStore inserts records into the run_records table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to the database and creates the table when
// missing.
func NewPostgresStore(ctx context.Context, connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the run_records table if needed.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createRecordsTable); err != nil {
		return fmt.Errorf("create run_records table: %w", err)
	}
	return nil
}

// Persist inserts all records in a single transaction.
func (s *PostgresStore) Persist(ctx context.Context, runID string, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertRecord)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range records {
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("marshal fields: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, runID, rec.Type, fields, rec.Time); err != nil {
			return fmt.Errorf("insert %s record: %w", rec.Type, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
