/*
Package ledger defines the core bookkeeping domain.

PURPOSE:
  This package contains the types shared by every part of the engine:
  ledger entries, the external-document mirror reference, recurring rules,
  the day-granularity Date type, the injectable Clock, the error taxonomy,
  and the persistence interfaces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: A single recorded inflow or outflow event
  - ExternalRef: Proof that an entry mirrors a provider document
  - Direction: inflow (money in) vs outflow (money out)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Day granularity: Matching never depends on time-of-day
  3. Engine-enforced invariants: At most one live entry per external
     primary id; the store does not enforce this, the engine does

SEE ALSO:
  - rule.go: Recurring rules and cadence calendar math
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DIRECTION - Which way money moves
// =============================================================================

type Direction string

const (
	Inflow  Direction = "inflow"
	Outflow Direction = "outflow"
)

// =============================================================================
// EXTERNAL REFERENCE - Link from a ledger entry to a provider document
// =============================================================================

// ExternalRef marks an entry as a mirror of an external provider document.
// Present only on mirrored entries.
//
// PrimaryID is the provider's immutable document id and is the only
// identity the engine trusts. SecondaryRef is the human-readable folio;
// providers reuse folios after voiding, so it is never an identity.
type ExternalRef struct {
	PrimaryID    string
	SecondaryRef string

	// Status is the provider document status as last seen by a sync pass.
	// An empty status means the mirror was written by a broken code path
	// and is treated as corrupt by the garbage collector.
	Status string

	// Metadata carries provider-specific extras verbatim. The engine never
	// interprets these fields; they exist so a re-issued document can be
	// inspected by hand.
	Metadata map[string]string
}

// =============================================================================
// ENTRY - A single recorded inflow or outflow
// =============================================================================

type Entry struct {
	ID            string
	Direction     Direction
	Amount        decimal.Decimal
	OccurredOn    Date
	Description   string
	CategoryLabel string

	// Settled records whether the entry is considered collected/paid.
	Settled bool

	// External is nil unless this entry mirrors a provider document.
	External *ExternalRef

	// RecurringRuleID back-references the rule that generated this entry.
	// Non-owning; empty for manual and mirrored entries.
	RecurringRuleID string

	// CreatedAt is immutable and is the tie-breaker in deduplication.
	CreatedAt time.Time
}

// Mirrored reports whether the entry carries a usable external identity.
func (e *Entry) Mirrored() bool {
	return e.External != nil && e.External.PrimaryID != ""
}

// EntryPatch is a partial update applied via Store.Update.
// Nil fields are left untouched.
type EntryPatch struct {
	Description   *string
	CategoryLabel *string
	Settled       *bool
	External      *ExternalRef
}
