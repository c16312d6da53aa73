package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
)

// Compile-time check to ensure PostgresRepository implements AuditRepository
var (
	_ interfaces.AuditRepository = (*PostgresRepository)(nil)
	_ statisticsRepository       = (*PostgresRepository)(nil)
)

// Schema creates the audit table. Compositions are stored as JSONB snapshots.
const Schema = `
CREATE TABLE IF NOT EXISTS salt_audit_log (
	id              UUID PRIMARY KEY,
	drug_id         TEXT NOT NULL,
	drug_name       TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	user_name       TEXT NOT NULL DEFAULT '',
	action          TEXT NOT NULL,
	batch_id        TEXT NOT NULL DEFAULT '',
	old_value       JSONB NOT NULL DEFAULT '[]'::jsonb,
	new_value       JSONB NOT NULL DEFAULT '[]'::jsonb,
	ocr_confidence  DOUBLE PRECISION,
	was_auto_mapped BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS salt_audit_log_drug_idx ON salt_audit_log (drug_id, created_at DESC);
CREATE INDEX IF NOT EXISTS salt_audit_log_created_idx ON salt_audit_log (created_at DESC);
CREATE INDEX IF NOT EXISTS salt_audit_log_batch_idx ON salt_audit_log (batch_id) WHERE batch_id <> '';
`

// PostgresRepository stores audit entries in PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an open database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the audit table and indexes when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Append(ctx context.Context, entry entities.AuditLogEntry) error {
	oldValue, err := marshalLinks(entry.OldComposition)
	if err != nil {
		return err
	}
	newValue, err := marshalLinks(entry.NewComposition)
	if err != nil {
		return err
	}

	var confidence sql.NullFloat64
	if entry.OCRConfidence != nil {
		confidence = sql.NullFloat64{Float64: *entry.OCRConfidence, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO salt_audit_log
			(id, drug_id, drug_name, user_id, user_name, action, batch_id,
			 old_value, new_value, ocr_confidence, was_auto_mapped, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.DrugID, entry.DrugName, entry.UserID, entry.UserName, string(entry.Action), entry.BatchID,
		oldValue, newValue, confidence, entry.AutoMapped, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Query filters in SQL and pages with LIMIT/OFFSET. The total comes from a
// window count so one round trip serves both.
func (r *PostgresRepository) Query(ctx context.Context, filter entities.AuditFilter) ([]entities.AuditLogEntry, int, error) {
	where, args := buildWhere(filter)

	query := `
		SELECT id, drug_id, drug_name, user_id, user_name, action, batch_id,
		       old_value, new_value, ocr_confidence, was_auto_mapped, created_at,
		       COUNT(*) OVER () AS total
		FROM salt_audit_log` + where + `
		ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var (
		entries []entities.AuditLogEntry
		total   int
	)
	for rows.Next() {
		var (
			e          entities.AuditLogEntry
			action     string
			oldValue   []byte
			newValue   []byte
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.DrugID, &e.DrugName, &e.UserID, &e.UserName, &action, &e.BatchID,
			&oldValue, &newValue, &confidence, &e.AutoMapped, &e.Timestamp, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = entities.AuditAction(action)
		if err := json.Unmarshal(oldValue, &e.OldComposition); err != nil {
			return nil, 0, fmt.Errorf("failed to decode old composition of %s: %w", e.ID, err)
		}
		if err := json.Unmarshal(newValue, &e.NewComposition); err != nil {
			return nil, 0, fmt.Errorf("failed to decode new composition of %s: %w", e.ID, err)
		}
		if confidence.Valid {
			c := confidence.Float64
			e.OCRConfidence = &c
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate audit log: %w", err)
	}

	// An offset past the end returns no rows and therefore no window count
	if len(entries) == 0 && filter.Offset > 0 {
		countQuery := "SELECT COUNT(*) FROM salt_audit_log" + where
		countArgs, _ := buildWhereArgs(filter)
		if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("failed to count audit log: %w", err)
		}
	}

	return entries, total, nil
}

// Statistics counts matching entries per action and mapping origin in SQL.
func (r *PostgresRepository) Statistics(ctx context.Context, filter entities.AuditFilter) (entities.AuditStatistics, error) {
	where, args := buildWhere(filter)
	query := `
		SELECT action, was_auto_mapped, COUNT(*)
		FROM salt_audit_log` + where + `
		GROUP BY action, was_auto_mapped`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return entities.AuditStatistics{}, fmt.Errorf("failed to aggregate audit log: %w", err)
	}
	defer rows.Close()

	stats := newStatistics()
	for rows.Next() {
		var (
			action     string
			autoMapped bool
			count      int
		)
		if err := rows.Scan(&action, &autoMapped, &count); err != nil {
			return entities.AuditStatistics{}, fmt.Errorf("failed to scan audit statistics: %w", err)
		}
		stats.add(entities.AuditAction(action), autoMapped, count)
	}
	if err := rows.Err(); err != nil {
		return entities.AuditStatistics{}, fmt.Errorf("failed to iterate audit statistics: %w", err)
	}
	return stats.AuditStatistics, nil
}

func buildWhere(f entities.AuditFilter) (string, []any) {
	args, clauses := buildWhereArgs(f)
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func buildWhereArgs(f entities.AuditFilter) ([]any, []string) {
	var (
		args    []any
		clauses []string
	)
	add := func(column, op string, value any) {
		args = append(args, value)
		clauses = append(clauses, column+" "+op+" $"+strconv.Itoa(len(args)))
	}

	if f.DrugID != "" {
		add("drug_id", "=", f.DrugID)
	}
	if f.UserID != "" {
		add("user_id", "=", f.UserID)
	}
	if f.Action != "" {
		add("action", "=", string(f.Action))
	}
	if f.BatchID != "" {
		add("batch_id", "=", f.BatchID)
	}
	if f.StartDate != nil {
		add("created_at", ">=", *f.StartDate)
	}
	if f.EndDate != nil {
		add("created_at", "<=", *f.EndDate)
	}
	return args, clauses
}

func marshalLinks(links []entities.CompositionLink) ([]byte, error) {
	if links == nil {
		links = []entities.CompositionLink{}
	}
	b, err := json.Marshal(links)
	if err != nil {
		return nil, fmt.Errorf("failed to encode composition: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close is a no-op; the database handle is owned by the caller.
func (r *PostgresRepository) Close() error {
	return nil
}
