package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/lightkeeperhq/guardrails/internal/config"
	"github.com/lightkeeperhq/guardrails/internal/guardrails"
	"go.uber.org/zap"
)

// Store persists aggregate violation statistics to PostgreSQL. Only
// context labels, categories, severities and counts are written; raw
// matched values never leave the sanitizing request.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Record is one persisted aggregate row.
type Record struct {
	ID         int64     `db:"id"`
	CreatedAt  time.Time `db:"created_at"`
	Context    string    `db:"context"`
	Category   string    `db:"category"`
	Severity   string    `db:"severity"`
	MatchCount int       `db:"match_count"`
}

// CategorySummary is an aggregated view over stored records.
type CategorySummary struct {
	Category   string `db:"category" json:"category"`
	Severity   string `db:"severity" json:"severity"`
	TotalCount int64  `db:"total_count" json:"total_count"`
}

const schema = `
CREATE TABLE IF NOT EXISTS guardrail_violations (
	id BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	context TEXT NOT NULL,
	category TEXT NOT NULL,
	severity TEXT NOT NULL,
	match_count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_guardrail_violations_created_at
	ON guardrail_violations (created_at);
CREATE INDEX IF NOT EXISTS idx_guardrail_violations_category
	ON guardrail_violations (category);
`

// NewStore creates a new audit store instance
func NewStore(cfg config.AuditConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return store, nil
}

// initialize checks the connection and ensures the schema exists
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	return nil
}

// RecordResult aggregates a sanitization result by category and severity
// and inserts one row per pair. The result's raw matched substrings are
// deliberately not read.
func (s *Store) RecordResult(ctx context.Context, contextLabel string, result guardrails.Result) error {
	if !result.HasViolations {
		return nil
	}

	type pair struct {
		category string
		severity string
	}
	counts := make(map[pair]int)
	for _, v := range result.Violations {
		counts[pair{string(v.Category), v.Severity.String()}]++
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO guardrail_violations (context, category, severity, match_count)
		VALUES ($1, $2, $3, $4)`

	for p, n := range counts {
		if _, err := tx.ExecContext(ctx, query, contextLabel, p.category, p.severity, n); err != nil {
			return fmt.Errorf("failed to insert violation record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit violation records: %w", err)
	}

	s.logger.Debug("Violation aggregates recorded",
		zap.String("context", contextLabel),
		zap.Int("rows", len(counts)))

	return nil
}

// Summary returns per-category totals since the given time.
func (s *Store) Summary(ctx context.Context, since time.Time) ([]CategorySummary, error) {
	const query = `
		SELECT category, severity, SUM(match_count) AS total_count
		FROM guardrail_violations
		WHERE created_at >= $1
		GROUP BY category, severity
		ORDER BY total_count DESC`

	var out []CategorySummary
	if err := s.db.SelectContext(ctx, &out, query, since); err != nil {
		return nil, fmt.Errorf("failed to query violation summary: %w", err)
	}
	return out, nil
}

// recordsSince returns raw aggregate rows since the given time.
func (s *Store) recordsSince(ctx context.Context, since time.Time) ([]Record, error) {
	const query = `
		SELECT id, created_at, context, category, severity, match_count
		FROM guardrail_violations
		WHERE created_at >= $1
		ORDER BY created_at`

	var out []Record
	if err := s.db.SelectContext(ctx, &out, query, since); err != nil {
		return nil, fmt.Errorf("failed to query violation records: %w", err)
	}
	return out, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks credentials in a database URL for logging
func maskDatabaseURL(url string) string {
	if idx := strings.Index(url, "@"); idx > 0 {
		if schemeIdx := strings.Index(url, "://"); schemeIdx > 0 && schemeIdx < idx {
			return url[:schemeIdx+3] + "***" + url[idx:]
		}
	}
	return url
}
