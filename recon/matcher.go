/*
matcher.go - Classifies provider documents against the ledger

RESOLUTION ORDER (first match wins):
  1. Primary-id match            -> update that entry
  2. Secondary-ref (folio) match -> update, UNLESS the holder's primary
     id differs: that is a folio collision (a voided document's folio
     reassigned to a new one). The collision is reported and resolution
     falls through to rule 3 instead of overwriting the wrong record.
  3. Loose match: an unmirrored inflow with the same amount issued
     within a day -> attach the external reference to it
  4. Otherwise -> create a new entry

A naive match-by-folio is unsafe because invoicing providers reuse
folio numbers after voiding. Priority always goes to the immutable
primary id; the folio only avoids needless entry creation and detects
drift between a voided and a re-issued document.
*/
package recon

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/bookkeeper/ledger"
	"github.com/warp/bookkeeper/provider"
)

// =============================================================================
// CLASSIFICATION
// =============================================================================

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Classification is the matcher's verdict for one document.
type Classification struct {
	Action Action

	// Target is the entry to update when Action == ActionUpdate.
	Target *ledger.Entry

	// Collision, when non-nil, is the entry holding the document's folio
	// under a different primary id. Informational: the action above was
	// resolved without touching it.
	Collision *ledger.Entry
}

// =============================================================================
// MATCHER
// =============================================================================

type Matcher struct {
	Store ledger.Store
}

// Classify decides whether the document already has a ledger
// counterpart. Documents are processed sequentially by the caller, so
// the scans here see the effects of previously applied documents.
func (m *Matcher) Classify(ctx context.Context, doc provider.Document) (Classification, error) {
	// Rule 1: the immutable primary id always wins.
	byPrimary, err := m.Store.FindByPrimaryRef(ctx, doc.PrimaryID)
	switch {
	case err == nil:
		return Classification{Action: ActionUpdate, Target: &byPrimary}, nil
	case !errors.Is(err, ledger.ErrEntryNotFound):
		return Classification{}, fmt.Errorf("%w: primary ref lookup: %v", ledger.ErrStore, err)
	}

	// Rule 2: folio lookup, with collision detection.
	var collision *ledger.Entry
	if doc.SecondaryRef != "" {
		byFolio, err := m.Store.FindBySecondaryRef(ctx, doc.SecondaryRef)
		switch {
		case err == nil:
			if byFolio.External != nil && byFolio.External.PrimaryID != "" && byFolio.External.PrimaryID != doc.PrimaryID {
				// Folio reused by a different document. Leave the holder
				// alone and keep resolving.
				collision = &byFolio
			} else {
				return Classification{Action: ActionUpdate, Target: &byFolio}, nil
			}
		case !errors.Is(err, ledger.ErrEntryNotFound):
			return Classification{}, fmt.Errorf("%w: secondary ref lookup: %v", ledger.ErrStore, err)
		}
	}

	// Rule 3: adopt a manually created entry recording the same economic
	// event, so the sync pass does not write a second one.
	loose, err := m.looseMatch(ctx, doc)
	if err != nil {
		return Classification{}, err
	}
	if loose != nil {
		return Classification{Action: ActionUpdate, Target: loose, Collision: collision}, nil
	}

	return Classification{Action: ActionCreate, Collision: collision}, nil
}

// looseMatch scans for an unmirrored inflow with the document's exact
// amount occurring within a day of issuance. Amount+date+direction only;
// no description similarity is required.
func (m *Matcher) looseMatch(ctx context.Context, doc provider.Document) (*ledger.Entry, error) {
	issued := doc.IssuedOn()
	from := issued.AddDays(-1)
	to := issued.AddDays(1)
	direction := ledger.Inflow
	unmirrored := false

	candidates, err := m.Store.Scan(ctx, ledger.EntryFilter{
		Direction:    &direction,
		Amount:       &doc.Amount,
		OccurredFrom: &from,
		OccurredTo:   &to,
		Mirrored:     &unmirrored,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: loose match scan: %v", ledger.ErrStore, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}
