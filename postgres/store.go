// Package postgres persists drugs, salts and inventory batches in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/DikshantJangra/hoperxpharma-sub002/apperrors"
	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
)

// Compile-time check to ensure Store implements DrugRepository
var _ interfaces.DrugRepository = (*Store)(nil)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store implements interfaces.DrugRepository on database/sql with lib/pq.
type Store struct {
	db     *sql.DB
	clock  clock.Clock
	logger *slog.Logger
}

// NewStore creates a Store over an open database handle.
func NewStore(db *sql.DB, clk clock.Clock, logger *slog.Logger) *Store {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, clock: clk, logger: logger}
}

// EnsureSchema creates the catalogue tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create drug schema: %w", err)
	}
	return nil
}

func notFound(drugID string) error {
	return apperrors.NotFound(apperrors.CodeDrugNotFound, fmt.Sprintf("drug %s not found", drugID))
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const drugColumns = `id, name, manufacturer, form, store_id, status, deleted_at, updated_at`

func scanDrug(scan func(dest ...any) error) (entities.Drug, error) {
	var (
		d         entities.Drug
		status    string
		deletedAt sql.NullTime
	)
	if err := scan(&d.ID, &d.Name, &d.Manufacturer, &d.Form, &d.StoreID, &status, &deletedAt, &d.UpdatedAt); err != nil {
		return entities.Drug{}, err
	}
	d.Status = entities.IngestionStatus(status)
	if deletedAt.Valid {
		t := deletedAt.Time
		d.DeletedAt = &t
	}
	return d, nil
}

// GetDrug returns a drug with its links and batches, soft-deleted or not.
func (s *Store) GetDrug(ctx context.Context, drugID string) (entities.Drug, error) {
	return s.getDrug(ctx, s.db, drugID)
}

func (s *Store) getDrug(ctx context.Context, q queryer, drugID string) (entities.Drug, error) {
	row := q.QueryRowContext(ctx, `SELECT `+drugColumns+` FROM drugs WHERE id = $1`, drugID)
	d, err := scanDrug(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Drug{}, notFound(drugID)
	}
	if err != nil {
		return entities.Drug{}, fmt.Errorf("failed to load drug %s: %w", drugID, err)
	}

	drugs := []entities.Drug{d}
	if err := s.attach(ctx, q, drugs); err != nil {
		return entities.Drug{}, err
	}
	return drugs[0], nil
}

// FindCandidates returns live drugs of the store with the given status that share
// a salt with the query, ordered by id.
func (s *Store) FindCandidates(ctx context.Context, cq interfaces.CandidateQuery) ([]entities.Drug, error) {
	if len(cq.SaltIDs) == 0 {
		return []entities.Drug{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+drugColumns+`
		FROM drugs d
		WHERE d.store_id = $1
		  AND d.status = $2
		  AND d.deleted_at IS NULL
		  AND d.id <> $3
		  AND EXISTS (SELECT 1 FROM drug_salts ds WHERE ds.drug_id = d.id AND ds.salt_id = ANY($4))
		ORDER BY d.id`,
		cq.StoreID, string(cq.Status), cq.ExcludeDrugID, pq.Array(cq.SaltIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	drugs := []entities.Drug{}
	for rows.Next() {
		d, err := scanDrug(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		drugs = append(drugs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candidates: %w", err)
	}

	if err := s.attach(ctx, s.db, drugs); err != nil {
		return nil, err
	}
	return drugs, nil
}

// attach loads links and batches for every drug in two queries.
func (s *Store) attach(ctx context.Context, q queryer, drugs []entities.Drug) error {
	if len(drugs) == 0 {
		return nil
	}
	ids := make([]string, len(drugs))
	pos := make(map[string]int, len(drugs))
	for i, d := range drugs {
		ids[i] = d.ID
		pos[d.ID] = i
	}

	rows, err := q.QueryContext(ctx, `
		SELECT ds.drug_id, ds.salt_id, sa.name, ds.strength_value, ds.strength_unit, ds.role, ds.sort_order
		FROM drug_salts ds
		JOIN salts sa ON sa.id = ds.salt_id
		WHERE ds.drug_id = ANY($1)
		ORDER BY ds.drug_id, ds.sort_order, ds.salt_id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load compositions: %w", err)
	}
	for rows.Next() {
		var (
			drugID   string
			l        entities.CompositionLink
			strength decimal.NullDecimal
		)
		if err := rows.Scan(&drugID, &l.SaltID, &l.SaltName, &strength, &l.StrengthUnit, &l.Role, &l.Order); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan composition: %w", err)
		}
		if strength.Valid {
			v := strength.Decimal
			l.StrengthValue = &v
		}
		i := pos[drugID]
		drugs[i].Links = append(drugs[i].Links, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate compositions: %w", err)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT drug_id, id, quantity, mrp, expiry_date
		FROM batches
		WHERE drug_id = ANY($1)
		ORDER BY drug_id, expiry_date, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load batches: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			drugID string
			b      entities.Batch
		)
		if err := rows.Scan(&drugID, &b.ID, &b.Quantity, &b.MRP, &b.ExpiryDate); err != nil {
			return fmt.Errorf("failed to scan batch: %w", err)
		}
		i := pos[drugID]
		drugs[i].Batches = append(drugs[i].Batches, b)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate batches: %w", err)
	}
	return nil
}

func (s *Store) CountActive(ctx context.Context, storeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM drugs
		WHERE store_id = $1 AND status = $2 AND deleted_at IS NULL`,
		storeID, string(entities.StatusActive)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active drugs: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ResolveSalt finds a salt by normalised name or alias, creating it when missing.
func (s *Store) ResolveSalt(ctx context.Context, name string) (entities.Salt, error) {
	key := entities.NormalizeSaltName(name)
	if key == "" {
		return entities.Salt{}, apperrors.Validation(entities.IssueSaltNameRequired, "salt name is required", nil)
	}

	salt, err := s.lookupSalt(ctx, key)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return entities.Salt{}, err
	}

	// A concurrent writer may insert the same name; the unique index settles it
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO salts (id, name, normalized_name) VALUES ($1, $2, $3)
		ON CONFLICT (normalized_name) DO NOTHING`,
		uuid.NewString(), name, key)
	if err != nil {
		return entities.Salt{}, fmt.Errorf("failed to create salt %q: %w", name, err)
	}

	salt, err = s.lookupSalt(ctx, key)
	if err != nil {
		return entities.Salt{}, fmt.Errorf("failed to read back salt %q: %w", name, err)
	}
	s.logger.Debug("resolved salt", slog.String("salt_id", salt.ID), slog.String("name", salt.Name))
	return salt, nil
}

func (s *Store) lookupSalt(ctx context.Context, key string) (entities.Salt, error) {
	var salt entities.Salt
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name FROM salts WHERE normalized_name = $1
		UNION ALL
		SELECT sa.id, sa.name FROM salt_aliases al JOIN salts sa ON sa.id = al.salt_id
		WHERE al.normalized_alias = $1
		LIMIT 1`, key).Scan(&salt.ID, &salt.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Salt{}, err
		}
		return entities.Salt{}, fmt.Errorf("failed to look up salt: %w", err)
	}
	return salt, nil
}

// AddAlias maps an alternative spelling to an existing salt.
func (s *Store) AddAlias(ctx context.Context, saltID, alias string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO salt_aliases (normalized_alias, salt_id) VALUES ($1, $2)
		ON CONFLICT (normalized_alias) DO NOTHING`,
		entities.NormalizeSaltName(alias), saltID)
	if err != nil {
		return fmt.Errorf("failed to add alias %q: %w", alias, err)
	}
	return nil
}

// withTx runs fn in a read-committed transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Always attempt rollback on exit (no-op after successful commit)
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Warn("failed to rollback transaction", slog.String("error", err.Error()))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func insertLinks(ctx context.Context, tx *sql.Tx, drugID string, links []entities.CompositionLink) error {
	for _, l := range links {
		var strength decimal.NullDecimal
		if l.StrengthValue != nil {
			strength = decimal.NullDecimal{Decimal: *l.StrengthValue, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO drug_salts (drug_id, salt_id, strength_value, strength_unit, role, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			drugID, l.SaltID, strength, l.StrengthUnit, l.Role, l.Order)
		if err != nil {
			return fmt.Errorf("failed to insert salt %s of drug %s: %w", l.SaltID, drugID, err)
		}
	}
	return nil
}

// CreateDrug inserts a drug with its composition and batches.
func (s *Store) CreateDrug(ctx context.Context, drug entities.Drug) (entities.Drug, error) {
	if drug.ID == "" {
		drug.ID = uuid.NewString()
	}
	drug.UpdatedAt = s.clock.Now()

	var created entities.Drug
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO drugs (id, name, manufacturer, form, store_id, status, deleted_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			drug.ID, drug.Name, drug.Manufacturer, drug.Form, drug.StoreID, string(drug.Status), drug.DeletedAt, drug.UpdatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return apperrors.BusinessLogic("DRUG_EXISTS", fmt.Sprintf("drug %s already exists", drug.ID))
			}
			return fmt.Errorf("failed to insert drug: %w", err)
		}
		if err := insertLinks(ctx, tx, drug.ID, drug.Links); err != nil {
			return err
		}
		for _, b := range drug.Batches {
			if err := insertBatch(ctx, tx, drug.ID, b); err != nil {
				return err
			}
		}
		created, err = s.getDrug(ctx, tx, drug.ID)
		return err
	})
	if err != nil {
		return entities.Drug{}, err
	}
	return created, nil
}

func insertBatch(ctx context.Context, tx *sql.Tx, drugID string, b entities.Batch) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO batches (id, drug_id, quantity, mrp, expiry_date) VALUES ($1, $2, $3, $4, $5)`,
		b.ID, drugID, b.Quantity, b.MRP, b.ExpiryDate)
	if err != nil {
		return fmt.Errorf("failed to insert batch of drug %s: %w", drugID, err)
	}
	return nil
}

// ReplaceComposition swaps links and status in one transaction. The drug row is
// locked so concurrent replacements serialise.
func (s *Store) ReplaceComposition(ctx context.Context, drugID string, links []entities.CompositionLink,
	status entities.IngestionStatus) (entities.Drug, error) {
	var updated entities.Drug
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM drugs WHERE id = $1 FOR UPDATE`, drugID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(drugID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock drug %s: %w", drugID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM drug_salts WHERE drug_id = $1`, drugID); err != nil {
			return fmt.Errorf("failed to clear composition of drug %s: %w", drugID, err)
		}
		if err := insertLinks(ctx, tx, drugID, links); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE drugs SET status = $2, updated_at = $3 WHERE id = $1`,
			drugID, string(status), s.clock.Now()); err != nil {
			return fmt.Errorf("failed to update drug %s: %w", drugID, err)
		}

		updated, err = s.getDrug(ctx, tx, drugID)
		return err
	})
	if err != nil {
		return entities.Drug{}, err
	}
	return updated, nil
}

func (s *Store) SetStatus(ctx context.Context, drugID string, status entities.IngestionStatus) error {
	return s.updateOne(ctx, drugID, `UPDATE drugs SET status = $2, updated_at = $3 WHERE id = $1`,
		string(status), s.clock.Now())
}

func (s *Store) SoftDelete(ctx context.Context, drugID string, at time.Time) error {
	return s.updateOne(ctx, drugID, `UPDATE drugs SET deleted_at = $2, updated_at = $3 WHERE id = $1`, at, at)
}

func (s *Store) updateOne(ctx context.Context, drugID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, append([]any{drugID}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update drug %s: %w", drugID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update drug %s: %w", drugID, err)
	}
	if n == 0 {
		return notFound(drugID)
	}
	return nil
}
