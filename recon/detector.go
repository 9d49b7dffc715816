/*
Package recon implements the reconciliation and idempotent-generation
engine: duplicate detection, external-document matching, the recurring
catch-up generator, the sync pass with its garbage collector, and the
maintenance deduplicator.

The engine owns no goroutines and no wall clock. It is driven by its
host (scheduler or HTTP action), processes documents sequentially, and
converges to the same ledger state however many times it is replayed.
*/
package recon

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/bookkeeper/ledger"
)

// =============================================================================
// DUPLICATE DETECTOR - Advisory amount+date+direction lookup
// =============================================================================

// Detector finds an existing entry that probably records the same
// economic event. Read-only and advisory: "no duplicate found" is
// probabilistic evidence of uniqueness, never a lock.
type Detector struct {
	Store ledger.Store
}

// duplicateWindowDays is the +/- tolerance around the probe date. It
// absorbs timezone and day-boundary skew from upstream date
// construction.
const duplicateWindowDays = 1

// FindDuplicate returns an entry matching direction and amount exactly
// with OccurredOn inside [date-1d, date+1d], or nil. When
// exactDescription is non-empty, only a byte-exact description match
// counts.
func (d *Detector) FindDuplicate(ctx context.Context, amount decimal.Decimal, date ledger.Date, direction ledger.Direction, exactDescription string) (*ledger.Entry, error) {
	from := date.AddDays(-duplicateWindowDays)
	to := date.AddDays(duplicateWindowDays)

	candidates, err := d.Store.Scan(ctx, ledger.EntryFilter{
		Direction:    &direction,
		Amount:       &amount,
		OccurredFrom: &from,
		OccurredTo:   &to,
	})
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		if exactDescription != "" && candidates[i].Description != exactDescription {
			continue
		}
		return &candidates[i], nil
	}
	return nil, nil
}
