// Package store persists the engine's historical data in SQLite: labeled
// training records, per-subject score history and per-subject feature
// snapshots (the anomaly detector's baseline population).
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/trustiq/trust-engine/internal/features"
	"github.com/trustiq/trust-engine/internal/types"
)

//go:embed sql/ddl.sql
var ddl embed.FS

// Store wraps the SQLite handle. Safe for concurrent use; SQLite's WAL
// mode handles reader/writer interleaving.
type Store struct {
	db *sql.DB
}

// Open opens (and on first use creates) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	schema, err := ddl.ReadFile("sql/ddl.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	slog.Debug("store opened", "path", path)
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRecord inserts one labeled training record. A missing ID or
// timestamp is filled in.
func (s *Store) SaveRecord(ctx context.Context, record types.TrainingRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	analysis, err := json.Marshal(record.Analysis)
	if err != nil {
		return fmt.Errorf("encoding analysis: %w", err)
	}
	targets, err := json.Marshal(record.Targets)
	if err != nil {
		return fmt.Errorf("encoding targets: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO training_records (id, subject, analysis, targets, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, record.ID, record.Subject, string(analysis), string(targets), record.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting training record: %w", err)
	}
	return nil
}

// ListRecords returns up to limit training records, oldest first. A limit
// of 0 or less returns everything.
func (s *Store) ListRecords(ctx context.Context, limit int) ([]types.TrainingRecord, error) {
	query := `
		SELECT id, subject, analysis, targets, created_at
		FROM training_records
		ORDER BY created_at ASC, id ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying training records: %w", err)
	}
	defer rows.Close()

	var records []types.TrainingRecord
	for rows.Next() {
		var record types.TrainingRecord
		var analysis, targets string
		if err := rows.Scan(&record.ID, &record.Subject, &analysis, &targets, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning training record: %w", err)
		}
		if err := json.Unmarshal([]byte(analysis), &record.Analysis); err != nil {
			return nil, fmt.Errorf("decoding analysis for record %s: %w", record.ID, err)
		}
		if err := json.Unmarshal([]byte(targets), &record.Targets); err != nil {
			return nil, fmt.Errorf("decoding targets for record %s: %w", record.ID, err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// AppendScore appends one computed score to a subject's history.
func (s *Store) AppendScore(ctx context.Context, subject string, score float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO score_history (id, subject, score, created_at)
		VALUES (?, ?, ?, ?)
	`, uuid.NewString(), subject, score, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("appending score for %s: %w", subject, err)
	}
	return nil
}

// ScoreHistory returns a subject's scores ordered oldest to newest, the
// shape the trend predictor expects. A limit of 0 or less returns the
// full history.
func (s *Store) ScoreHistory(ctx context.Context, subject string, limit int) ([]float64, error) {
	query := `
		SELECT score FROM score_history
		WHERE subject = ?
		ORDER BY created_at ASC, id ASC
	`
	args := []any{subject}
	if limit > 0 {
		// Keep the most recent entries but preserve oldest-first order.
		query = `
			SELECT score FROM (
				SELECT score, created_at, id FROM score_history
				WHERE subject = ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			) ORDER BY created_at ASC, id ASC
		`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying score history for %s: %w", subject, err)
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

// SaveSnapshot stores one extended feature vector for a subject under the
// current schema version.
func (s *Store) SaveSnapshot(ctx context.Context, subject string, vector []float64) error {
	encoded, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encoding feature vector: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feature_snapshots (id, subject, schema_version, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.NewString(), subject, features.SchemaVersion, string(encoded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving snapshot for %s: %w", subject, err)
	}
	return nil
}

// Snapshots returns up to limit of a subject's most recent feature
// vectors under the current schema version, oldest first. Vectors written
// under older schema versions are not comparable and are excluded.
func (s *Store) Snapshots(ctx context.Context, subject string, limit int) ([][]float64, error) {
	query := `
		SELECT vector FROM (
			SELECT vector, created_at, id FROM feature_snapshots
			WHERE subject = ? AND schema_version = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC
	`
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, subject, features.SchemaVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots for %s: %w", subject, err)
	}
	defer rows.Close()

	var vectors [][]float64
	for rows.Next() {
		var encoded string
		if err := rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		var vector []float64
		if err := json.Unmarshal([]byte(encoded), &vector); err != nil {
			return nil, fmt.Errorf("decoding snapshot vector: %w", err)
		}
		vectors = append(vectors, vector)
	}
	return vectors, rows.Err()
}
