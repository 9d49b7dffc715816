/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Other packages wrap these with additional context via %w.

ERROR CATEGORIES:
  1. Store errors - I/O failures against the ledger store
  2. Provider errors - External feed unreachable/unauthorized
  3. Integrity errors - Malformed documents (skipped per-document)
  4. Concurrency errors - Optimistic-write rejection, overlapping passes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStore is the root of every ledger-store I/O failure.
	ErrStore = errors.New("ledger store failure")

	// ErrProviderFetch is returned when the external feed cannot be read.
	// A fetch failure aborts a sync pass before any mutation; in
	// particular the garbage collector must never run after one.
	ErrProviderFetch = errors.New("provider fetch failed")

	// ErrDataIntegrity is returned for a document missing required fields.
	// Per-document: logged and skipped, never aborts the batch.
	ErrDataIntegrity = errors.New("document failed integrity check")

	// ErrConcurrencyConflict is returned when an optimistic write is
	// rejected. Callers retry once per entry, then log.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrEntryNotFound is returned when a referenced entry doesn't exist.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrRuleNotFound is returned when a referenced rule doesn't exist.
	ErrRuleNotFound = errors.New("recurring rule not found")

	// ErrTickInProgress is returned when a generator pass is requested
	// while another is still running.
	ErrTickInProgress = errors.New("recurring tick already in progress")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DataIntegrityError identifies the document and field that failed
// validation.
type DataIntegrityError struct {
	PrimaryID string
	Field     string
	Reason    string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("document %q: invalid %s: %s", e.PrimaryID, e.Field, e.Reason)
}

func (e *DataIntegrityError) Unwrap() error { return ErrDataIntegrity }

// ConflictError identifies the entry whose optimistic write was rejected.
type ConflictError struct {
	EntryID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("entry %q: %v", e.EntryID, ErrConcurrencyConflict)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrencyConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsFetchFailure returns true if the error indicates the provider feed
// could not be read.
func IsFetchFailure(err error) bool {
	return errors.Is(err, ErrProviderFetch)
}
