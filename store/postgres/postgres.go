/*
Package postgres provides a PostgreSQL-backed implementation of the
storage interfaces using a pgx connection pool.

Schema mirrors the SQLite backend; dates are stored as DATE and
timestamps as TIMESTAMPTZ instead of TEXT. Concurrency control is left
to the database; no process-level locking is needed here.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/bookkeeper/ledger"
)

// Store implements ledger.Store and ledger.RuleStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store from a connection string and migrates the schema.
func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		occurred_on DATE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category_label TEXT NOT NULL DEFAULT '',
		settled BOOLEAN NOT NULL DEFAULT FALSE,
		ext_primary_id TEXT,
		ext_secondary_ref TEXT,
		ext_status TEXT,
		ext_metadata JSONB,
		recurring_rule_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_entries_primary_ref
		ON entries(ext_primary_id) WHERE ext_primary_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_secondary_ref
		ON entries(ext_secondary_ref) WHERE ext_secondary_ref IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_match
		ON entries(direction, amount, occurred_on);

	CREATE TABLE IF NOT EXISTS recurring_rules (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		category_label TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		cadence_unit TEXT NOT NULL,
		day_of_month INTEGER NOT NULL DEFAULT 0,
		day_of_week INTEGER NOT NULL DEFAULT 0,
		anchor_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// ENTRY STORE (ledger.Store interface)
// =============================================================================

const entryColumns = `id, direction, amount::TEXT, occurred_on, description, category_label,
	settled, ext_primary_id, ext_secondary_ref, ext_status, ext_metadata,
	recurring_rule_id, created_at`

func (s *Store) Insert(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var primaryID, secondaryRef, status *string
	var metadata map[string]string
	if e.External != nil {
		primaryID = optional(e.External.PrimaryID)
		secondaryRef = optional(e.External.SecondaryRef)
		st := e.External.Status
		status = &st
		metadata = e.External.Metadata
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO entries
		(id, direction, amount, occurred_on, description, category_label, settled,
		 ext_primary_id, ext_secondary_ref, ext_status, ext_metadata,
		 recurring_rule_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.Direction, e.Amount.String(), e.OccurredOn.Time, e.Description,
		e.CategoryLabel, e.Settled, primaryID, secondaryRef, status, metadata,
		e.RecurringRuleID, e.CreatedAt)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to insert entry: %w", err)
	}
	return e, nil
}

func (s *Store) Update(ctx context.Context, id string, patch ledger.EntryPatch) error {
	sets := []string{}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Description != nil {
		sets = append(sets, "description = "+arg(*patch.Description))
	}
	if patch.CategoryLabel != nil {
		sets = append(sets, "category_label = "+arg(*patch.CategoryLabel))
	}
	if patch.Settled != nil {
		sets = append(sets, "settled = "+arg(*patch.Settled))
	}
	if patch.External != nil {
		sets = append(sets,
			"ext_primary_id = "+arg(optional(patch.External.PrimaryID)),
			"ext_secondary_ref = "+arg(optional(patch.External.SecondaryRef)),
			"ext_status = "+arg(patch.External.Status),
			"ext_metadata = "+arg(patch.External.Metadata),
		)
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE entries SET " + strings.Join(sets, ", ") + " WHERE id = " + arg(id)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM entries WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (ledger.Entry, error) {
	return s.queryEntry(ctx, "SELECT "+entryColumns+" FROM entries WHERE id = $1", id)
}

func (s *Store) FindByPrimaryRef(ctx context.Context, primaryID string) (ledger.Entry, error) {
	return s.queryEntry(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE ext_primary_id = $1 ORDER BY created_at ASC, id ASC LIMIT 1",
		primaryID)
}

func (s *Store) FindBySecondaryRef(ctx context.Context, secondaryRef string) (ledger.Entry, error) {
	return s.queryEntry(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE ext_secondary_ref = $1 ORDER BY created_at ASC, id ASC LIMIT 1",
		secondaryRef)
}

func (s *Store) Scan(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	query := "SELECT " + entryColumns + " FROM entries WHERE TRUE"
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Direction != nil {
		query += " AND direction = " + arg(*filter.Direction)
	}
	if filter.OccurredFrom != nil {
		query += " AND occurred_on >= " + arg(filter.OccurredFrom.Time)
	}
	if filter.OccurredTo != nil {
		query += " AND occurred_on <= " + arg(filter.OccurredTo.Time)
	}
	if filter.Mirrored != nil {
		if *filter.Mirrored {
			query += " AND ext_status IS NOT NULL"
		} else {
			query += " AND ext_status IS NULL"
		}
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

func (s *Store) queryEntry(ctx context.Context, query string, args ...any) (ledger.Entry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to query entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ledger.Entry{}, err
		}
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return scanEntry(rows)
}

func scanEntry(rows pgx.Rows) (ledger.Entry, error) {
	var (
		e                            ledger.Entry
		direction, amountStr         string
		occurredOn                   time.Time
		primaryID, secondary, status *string
		metadata                     map[string]string
	)
	if err := rows.Scan(&e.ID, &direction, &amountStr, &occurredOn, &e.Description,
		&e.CategoryLabel, &e.Settled, &primaryID, &secondary, &status, &metadata,
		&e.RecurringRuleID, &e.CreatedAt); err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to scan entry row: %w", err)
	}

	e.Direction = ledger.Direction(direction)
	e.OccurredOn = ledger.DateOf(occurredOn)

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("corrupt amount %q on entry %s: %w", amountStr, e.ID, err)
	}
	e.Amount = amount

	if status != nil {
		e.External = &ledger.ExternalRef{
			PrimaryID:    deref(primaryID),
			SecondaryRef: deref(secondary),
			Status:       *status,
			Metadata:     metadata,
		}
	}
	return e, nil
}

// =============================================================================
// RULE STORE (ledger.RuleStore interface)
// =============================================================================

// PutRule inserts or replaces a rule definition. For seeding and tests.
func (s *Store) PutRule(ctx context.Context, r ledger.RecurringRule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recurring_rules
		(id, direction, amount, category_label, description, cadence_unit,
		 day_of_month, day_of_week, anchor_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET anchor_date = EXCLUDED.anchor_date`,
		r.ID, r.Direction, r.Amount.String(), r.CategoryLabel, r.Description,
		r.Cadence.Unit, r.Cadence.DayOfMonth, int(r.Cadence.DayOfWeek), r.AnchorDate.Time)
	if err != nil {
		return fmt.Errorf("failed to put rule: %w", err)
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context) ([]ledger.RecurringRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, direction, amount::TEXT, category_label, description,
		       cadence_unit, day_of_month, day_of_week, anchor_date
		FROM recurring_rules ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []ledger.RecurringRule
	for rows.Next() {
		var (
			r                    ledger.RecurringRule
			direction, amountStr string
			unit                 string
			dayOfWeek            int
			anchor               time.Time
		)
		if err := rows.Scan(&r.ID, &direction, &amountStr, &r.CategoryLabel,
			&r.Description, &unit, &r.Cadence.DayOfMonth, &dayOfWeek, &anchor); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		r.Direction = ledger.Direction(direction)
		r.Cadence.Unit = ledger.CadenceUnit(unit)
		r.Cadence.DayOfWeek = time.Weekday(dayOfWeek)
		r.AnchorDate = ledger.DateOf(anchor)

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q on rule %s: %w", amountStr, r.ID, err)
		}
		r.Amount = amount

		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAnchor(ctx context.Context, ruleID string, anchor ledger.Date) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE recurring_rules SET anchor_date = $1 WHERE id = $2",
		anchor.Time, ruleID)
	if err != nil {
		return fmt.Errorf("failed to update anchor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrRuleNotFound
	}
	return nil
}

// IsNotFound reports whether a raw pgx error is a missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ledger.ErrEntryNotFound)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
