/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

INTERFACES IMPLEMENTED:
  ledger.Store:     Entry persistence (insert/update/delete/find/scan)
  ledger.RuleStore: Recurring rules and anchor advancement

KEY TABLES:
  entries:         The ledger itself, one row per inflow/outflow
  recurring_rules: Rule definitions with their anchor high-water mark

INDEXES:
  - idx_entries_primary_ref:   Primary-id matching (hot path of sync)
  - idx_entries_secondary_ref: Folio matching and collision detection
  - idx_entries_match:         Duplicate detection and loose matching
                               (direction, amount, occurred_on)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite is opened with WAL for
  better concurrency (multiple readers, single writer, better crash
  recovery).

USAGE:
  store, err := sqlite.New("./data/bookkeeper.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/bookkeeper/ledger"
)

// Store implements ledger.Store and ledger.RuleStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Ledger entries
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		amount TEXT NOT NULL,
		occurred_on TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category_label TEXT NOT NULL DEFAULT '',
		settled BOOLEAN NOT NULL DEFAULT FALSE,
		ext_primary_id TEXT,
		ext_secondary_ref TEXT,
		ext_status TEXT,
		ext_metadata_json TEXT,
		recurring_rule_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_primary_ref
		ON entries(ext_primary_id) WHERE ext_primary_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_secondary_ref
		ON entries(ext_secondary_ref) WHERE ext_secondary_ref IS NOT NULL;

	-- Hot path for duplicate detection and loose matching
	CREATE INDEX IF NOT EXISTS idx_entries_match
		ON entries(direction, amount, occurred_on);

	CREATE INDEX IF NOT EXISTS idx_entries_rule
		ON entries(recurring_rule_id) WHERE recurring_rule_id != '';

	-- Recurring rules
	CREATE TABLE IF NOT EXISTS recurring_rules (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		amount TEXT NOT NULL,
		category_label TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		cadence_unit TEXT NOT NULL,
		day_of_month INTEGER NOT NULL DEFAULT 0,
		day_of_week INTEGER NOT NULL DEFAULT 0,
		anchor_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE (ledger.Store interface)
// =============================================================================

const entryColumns = `id, direction, amount, occurred_on, description, category_label,
	settled, ext_primary_id, ext_secondary_ref, ext_status, ext_metadata_json,
	recurring_rule_id, created_at`

func (s *Store) Insert(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var primaryID, secondaryRef, status, metadataJSON sql.NullString
	if e.External != nil {
		primaryID = nullString(e.External.PrimaryID)
		secondaryRef = nullString(e.External.SecondaryRef)
		status = sql.NullString{String: e.External.Status, Valid: true}
		if e.External.Metadata != nil {
			raw, _ := json.Marshal(e.External.Metadata)
			metadataJSON = sql.NullString{String: string(raw), Valid: true}
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries
		(id, direction, amount, occurred_on, description, category_label, settled,
		 ext_primary_id, ext_secondary_ref, ext_status, ext_metadata_json,
		 recurring_rule_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Direction,
		e.Amount.String(),
		e.OccurredOn.String(),
		e.Description,
		e.CategoryLabel,
		e.Settled,
		primaryID,
		secondaryRef,
		status,
		metadataJSON,
		e.RecurringRuleID,
		e.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to insert entry: %w", err)
	}
	return e, nil
}

func (s *Store) Update(ctx context.Context, id string, patch ledger.EntryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := []string{}
	args := []any{}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.CategoryLabel != nil {
		sets = append(sets, "category_label = ?")
		args = append(args, *patch.CategoryLabel)
	}
	if patch.Settled != nil {
		sets = append(sets, "settled = ?")
		args = append(args, *patch.Settled)
	}
	if patch.External != nil {
		sets = append(sets, "ext_primary_id = ?", "ext_secondary_ref = ?", "ext_status = ?", "ext_metadata_json = ?")
		var metadataJSON sql.NullString
		if patch.External.Metadata != nil {
			raw, _ := json.Marshal(patch.External.Metadata)
			metadataJSON = sql.NullString{String: string(raw), Valid: true}
		}
		args = append(args,
			nullString(patch.External.PrimaryID),
			nullString(patch.External.SecondaryRef),
			sql.NullString{String: patch.External.Status, Valid: true},
			metadataJSON,
		)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := "UPDATE entries SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = ?"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntry(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE id = ?", id)
}

func (s *Store) FindByPrimaryRef(ctx context.Context, primaryID string) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntry(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE ext_primary_id = ? ORDER BY created_at ASC, id ASC LIMIT 1",
		primaryID)
}

func (s *Store) FindBySecondaryRef(ctx context.Context, secondaryRef string) (ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntry(ctx,
		"SELECT "+entryColumns+" FROM entries WHERE ext_secondary_ref = ? ORDER BY created_at ASC, id ASC LIMIT 1",
		secondaryRef)
}

func (s *Store) Scan(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Push the cheap predicates into SQL, post-filter the rest with the
	// shared filter logic so every backend agrees on semantics.
	query := "SELECT " + entryColumns + " FROM entries WHERE 1=1"
	args := []any{}
	if filter.Direction != nil {
		query += " AND direction = ?"
		args = append(args, *filter.Direction)
	}
	if filter.OccurredFrom != nil {
		query += " AND occurred_on >= ?"
		args = append(args, filter.OccurredFrom.String())
	}
	if filter.OccurredTo != nil {
		query += " AND occurred_on <= ?"
		args = append(args, filter.OccurredTo.String())
	}
	if filter.Mirrored != nil {
		if *filter.Mirrored {
			query += " AND ext_status IS NOT NULL"
		} else {
			query += " AND ext_status IS NULL"
		}
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e                                         ledger.Entry
		direction, amountStr, occurredOn, created string
		primaryID, secondaryRef, status, metadata sql.NullString
	)
	if err := rows.Scan(&e.ID, &direction, &amountStr, &occurredOn, &e.Description,
		&e.CategoryLabel, &e.Settled, &primaryID, &secondaryRef, &status, &metadata,
		&e.RecurringRuleID, &created); err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to scan entry row: %w", err)
	}

	e.Direction = ledger.Direction(direction)

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("corrupt amount %q on entry %s: %w", amountStr, e.ID, err)
	}
	e.Amount = amount

	occurred, err := time.Parse("2006-01-02", occurredOn)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("corrupt date %q on entry %s: %w", occurredOn, e.ID, err)
	}
	e.OccurredOn = ledger.DateOf(occurred)

	if createdAt, err := time.Parse(time.RFC3339, created); err == nil {
		e.CreatedAt = createdAt
	}

	if status.Valid {
		ref := &ledger.ExternalRef{
			PrimaryID:    primaryID.String,
			SecondaryRef: secondaryRef.String,
			Status:       status.String,
		}
		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &ref.Metadata)
		}
		e.External = ref
	}
	return e, nil
}

// =============================================================================
// RULE STORE (ledger.RuleStore interface)
// =============================================================================

// PutRule inserts or replaces a rule definition. Rule creation itself is
// a host-application concern; this exists for seeding and tests.
func (s *Store) PutRule(ctx context.Context, r ledger.RecurringRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO recurring_rules
		(id, direction, amount, category_label, description, cadence_unit,
		 day_of_month, day_of_week, anchor_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.Direction,
		r.Amount.String(),
		r.CategoryLabel,
		r.Description,
		r.Cadence.Unit,
		r.Cadence.DayOfMonth,
		int(r.Cadence.DayOfWeek),
		r.AnchorDate.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to put rule: %w", err)
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context) ([]ledger.RecurringRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, direction, amount, category_label, description,
		       cadence_unit, day_of_month, day_of_week, anchor_date
		FROM recurring_rules ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []ledger.RecurringRule
	for rows.Next() {
		var (
			r                            ledger.RecurringRule
			direction, amountStr, anchor string
			unit                         string
			dayOfWeek                    int
		)
		if err := rows.Scan(&r.ID, &direction, &amountStr, &r.CategoryLabel,
			&r.Description, &unit, &r.Cadence.DayOfMonth, &dayOfWeek, &anchor); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		r.Direction = ledger.Direction(direction)
		r.Cadence.Unit = ledger.CadenceUnit(unit)
		r.Cadence.DayOfWeek = time.Weekday(dayOfWeek)

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q on rule %s: %w", amountStr, r.ID, err)
		}
		r.Amount = amount

		anchorDate, err := time.Parse("2006-01-02", anchor)
		if err != nil {
			return nil, fmt.Errorf("corrupt anchor %q on rule %s: %w", anchor, r.ID, err)
		}
		r.AnchorDate = ledger.DateOf(anchorDate)

		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAnchor(ctx context.Context, ruleID string, anchor ledger.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE recurring_rules SET anchor_date = ? WHERE id = ?",
		anchor.String(), ruleID)
	if err != nil {
		return fmt.Errorf("failed to update anchor: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrRuleNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
