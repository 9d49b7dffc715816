/*
store.go - Persistence interfaces for entries and recurring rules

PURPOSE:
  Defines the interface between the engine and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage; the engine never assumes multi-row transactions.

KEY INTERFACES:
  Store:     Single-entry CRUD plus scans over the ledger
  RuleStore: Read rules, advance their anchor dates

CONCURRENCY CONTRACT:
  All mutations are single-row upserts/deletes. Implementations that
  support optimistic concurrency return ErrConcurrencyConflict from
  Update; callers retry once per entry. Correctness under partial
  failure comes from idempotent re-checks on the next pass, not from
  transactions.

IMPLEMENTATIONS:
  - store/sqlite:       Production SQLite
  - store/postgres:     Production PostgreSQL (pgx pool)
  - ledger/store:       In-memory for testing/dev
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTRY FILTER - Predicate for Scan
// =============================================================================

// EntryFilter restricts a Scan. Nil fields match everything.
type EntryFilter struct {
	Direction *Direction
	Amount    *decimal.Decimal

	// OccurredFrom/OccurredTo bound OccurredOn inclusively.
	OccurredFrom *Date
	OccurredTo   *Date

	// Mirrored selects entries with (true) or without (false) an
	// external reference.
	Mirrored *bool

	RecurringRuleID *string
}

func (f EntryFilter) matches(e Entry) bool {
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	if f.Amount != nil && !e.Amount.Equal(*f.Amount) {
		return false
	}
	if f.OccurredFrom != nil && e.OccurredOn.Before(*f.OccurredFrom) {
		return false
	}
	if f.OccurredTo != nil && e.OccurredOn.After(*f.OccurredTo) {
		return false
	}
	if f.Mirrored != nil && (e.External != nil) != *f.Mirrored {
		return false
	}
	if f.RecurringRuleID != nil && e.RecurringRuleID != *f.RecurringRuleID {
		return false
	}
	return true
}

// Matches reports whether the entry satisfies the filter. Exposed so
// store implementations that cannot push the whole predicate into a
// query can post-filter rows consistently.
func (f EntryFilter) Matches(e Entry) bool { return f.matches(e) }

// =============================================================================
// STORE - Ledger entry persistence
// =============================================================================

type Store interface {
	// Insert persists a new entry and returns it with the store-assigned
	// ID (and CreatedAt, when the caller left it zero) filled in.
	Insert(ctx context.Context, e Entry) (Entry, error)

	// Update applies a partial patch to one entry.
	// Returns ErrEntryNotFound or ErrConcurrencyConflict.
	Update(ctx context.Context, id string, patch EntryPatch) error

	// Delete removes one entry. Deleting a missing entry is not an error;
	// reconciliation passes may race and converge on the same ghost.
	Delete(ctx context.Context, id string) error

	// FindByID returns one entry or ErrEntryNotFound.
	FindByID(ctx context.Context, id string) (Entry, error)

	// FindByPrimaryRef returns the entry mirroring the given external
	// primary id, or ErrEntryNotFound.
	FindByPrimaryRef(ctx context.Context, primaryID string) (Entry, error)

	// FindBySecondaryRef returns the entry holding the given folio,
	// or ErrEntryNotFound. When historical drift left several holders
	// the store may return any one of them.
	FindBySecondaryRef(ctx context.Context, secondaryRef string) (Entry, error)

	// Scan returns all entries satisfying the filter.
	Scan(ctx context.Context, filter EntryFilter) ([]Entry, error)
}

// =============================================================================
// RULE STORE - Recurring rule persistence
// =============================================================================

type RuleStore interface {
	// ListRules returns every recurring rule.
	ListRules(ctx context.Context) ([]RecurringRule, error)

	// UpdateAnchor persists a rule's new high-water mark.
	// Returns ErrRuleNotFound.
	UpdateAnchor(ctx context.Context, ruleID string, anchor Date) error
}
