package dataset

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/nexus/internal/logging"
)

//go:embed schema.sql
var schemaFS embed.FS

// SQLiteSource keeps labeled samples in a threat_samples table. The model
// manager only reads it; Import exists for operators seeding the table.
type SQLiteSource struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteSource applies the schema to db and returns a source over it.
// db should be opened with the "sqlite" driver (modernc.org/sqlite).
func NewSQLiteSource(db *sql.DB, logger logging.Logger) (*SQLiteSource, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db is nil", ErrDataset)
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("%w: apply schema: %v", ErrDataset, err)
	}
	return &SQLiteSource{db: db, logger: logger}, nil
}

// Samples returns every stored row in import order.
func (s *SQLiteSource) Samples(ctx context.Context) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_size, entropy, suspicious_count, label
		FROM threat_samples
		ORDER BY imported_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("%w: query samples: %v", ErrDataset, err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.FileSize, &smp.Entropy, &smp.SuspiciousCount, &smp.Label); err != nil {
			return nil, fmt.Errorf("%w: scan sample: %v", ErrDataset, err)
		}
		if err := smp.validate(); err != nil {
			return nil, fmt.Errorf("%w: stored sample: %v", ErrDataset, err)
		}
		out = append(out, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate samples: %v", ErrDataset, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: threat_samples is empty", ErrDataset)
	}
	return out, nil
}

// Import inserts samples in one transaction and returns how many were stored.
func (s *SQLiteSource) Import(ctx context.Context, samples []Sample, source string) (int, error) {
	for i, smp := range samples {
		if err := smp.validate(); err != nil {
			return 0, fmt.Errorf("%w: sample %d: %v", ErrDataset, i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %v", ErrDataset, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO threat_samples (id, file_size, entropy, suspicious_count, label, source, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare insert: %v", ErrDataset, err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for _, smp := range samples {
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), smp.FileSize, smp.Entropy, smp.SuspiciousCount, smp.Label, source, now); err != nil {
			return 0, fmt.Errorf("%w: insert sample: %v", ErrDataset, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %v", ErrDataset, err)
	}

	if s.logger != nil {
		s.logger.Info("imported samples", logging.F("count", len(samples)), logging.F("source", source))
	}
	return len(samples), nil
}

// Count returns the number of stored samples.
func (s *SQLiteSource) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threat_samples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count samples: %v", ErrDataset, err)
	}
	return n, nil
}
