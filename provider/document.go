/*
Package provider models the external invoicing provider's document feed.

PURPOSE:
  The provider is a read-only collaborator: it issues, collects, and
  voids invoicing documents on its own schedule, and the engine mirrors
  them into the ledger. This package defines the document shape, its
  integrity validation, and the feed interface.

DOCUMENT IDENTITY:
  PrimaryID is stable and provider-assigned. SecondaryRef is the
  human-readable folio; a voided document's folio may be reassigned to a
  new document, so it is never trusted as identity on its own.

METADATA:
  Required fields (PrimaryID, SecondaryRef, Status, Amount, IssuedAt)
  are typed struct fields and statically guaranteed after Validate().
  Provider-specific extras ride along in the Extra passthrough map.
*/
package provider

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/bookkeeper/ledger"
)

// =============================================================================
// DOCUMENT STATUS
// =============================================================================

type DocumentStatus string

const (
	StatusValid  DocumentStatus = "valid"
	StatusPaid   DocumentStatus = "paid"
	StatusVoided DocumentStatus = "voided"
)

// =============================================================================
// DOCUMENT - One provider invoicing document (read-only)
// =============================================================================

type Document struct {
	PrimaryID        string            `json:"primary_id"`
	SecondaryRef     string            `json:"secondary_ref"`
	Status           DocumentStatus    `json:"status"`
	Amount           decimal.Decimal   `json:"amount"`
	IssuedAt         time.Time         `json:"issued_at"`
	CounterpartyName string            `json:"counterparty_name"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// IssuedOn returns the calendar day the document was issued.
func (d Document) IssuedOn() ledger.Date { return ledger.DateOf(d.IssuedAt) }

// Validate checks the fields the matcher depends on. A failing document
// is skipped by the sync pass, never mirrored.
func (d Document) Validate() error {
	if d.PrimaryID == "" {
		return &ledger.DataIntegrityError{Field: "primary_id", Reason: "empty"}
	}
	if d.Status == "" {
		return &ledger.DataIntegrityError{PrimaryID: d.PrimaryID, Field: "status", Reason: "empty"}
	}
	if d.IssuedAt.IsZero() {
		return &ledger.DataIntegrityError{PrimaryID: d.PrimaryID, Field: "issued_at", Reason: "zero timestamp"}
	}
	if d.Amount.IsNegative() {
		return &ledger.DataIntegrityError{PrimaryID: d.PrimaryID, Field: "amount", Reason: "negative"}
	}
	return nil
}
