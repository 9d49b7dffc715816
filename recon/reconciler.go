/*
reconciler.go - Full sync pass against the provider feed, plus the
windowed garbage collector

SYNC PASS:
  1. Fetch documents from the feed. A fetch failure aborts the pass
     before ANY mutation; in particular the garbage collector must never
     run after a failed fetch, because an artificially empty document
     set would read as "everything is a ghost".
  2. Drop voided documents. They are never mirrored; stale mirrors of
     them are handled by the GC.
  3. Validate, classify, and apply each document sequentially. Per-
     document failures are logged and counted, not fatal.
  4. Run the garbage collector over mirrored entries.

GARBAGE COLLECTION (two-tier):
  - A mirror with no recorded status is structurally corrupt and is
    deleted unconditionally. That is a data-integrity decision, not a
    sync-window decision.
  - A mirror whose CreatedAt falls inside the safety window
    [min(IssuedAt)-7d, now] and whose identity cannot be found in the
    fetched set is a ghost and is deleted.
  - Mirrors outside the window are never deleted by this pass: the
    fetch may simply not include older history, and absence from a
    partial list must not be read as absence from reality.
*/
package recon

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/warp/bookkeeper/ledger"
	"github.com/warp/bookkeeper/metrics"
	"github.com/warp/bookkeeper/provider"
)

// ghostWindowDays pads the safety window before the oldest fetched
// document, so boundary documents cannot strand their own mirrors.
const ghostWindowDays = 7

// =============================================================================
// SETTLEMENT POLICY - Who is authoritative for "paid"?
// =============================================================================

// SettlementPolicy decides an entry's settled flag after seeing the
// provider's view. The default preserves local settlement because
// payments can be recorded through side channels the provider never
// sees; alternate deployments may want the provider authoritative.
type SettlementPolicy func(localSettled bool, doc provider.Document) bool

// PreserveLocalSettlement: paid documents settle the entry, and a
// locally settled entry is never downgraded by a sync pass.
func PreserveLocalSettlement(localSettled bool, doc provider.Document) bool {
	return localSettled || doc.Status == provider.StatusPaid
}

// ProviderAuthoritative: the provider's status is the whole truth.
func ProviderAuthoritative(_ bool, doc provider.Document) bool {
	return doc.Status == provider.StatusPaid
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	Store      ledger.Store
	Feed       provider.Feed
	Clock      ledger.Clock
	Settlement SettlementPolicy
}

func NewReconciler(store ledger.Store, feed provider.Feed, clock ledger.Clock) *Reconciler {
	return &Reconciler{
		Store:      store,
		Feed:       feed,
		Clock:      clock,
		Settlement: PreserveLocalSettlement,
	}
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Processed int
	Created   int
	Updated   int
	Deleted   int
	Errors    []error
}

// Sync runs one full reconciliation pass. The returned error is non-nil
// only when the pass could not run at all (fetch failure, GC scan
// failure); per-document errors land in result.Errors.
func (r *Reconciler) Sync(ctx context.Context) (SyncResult, error) {
	var result SyncResult

	docs, err := r.Feed.ListDocuments(ctx, nil)
	if err != nil {
		// Hard safety invariant: nothing below may run on a failed fetch.
		metrics.SyncRuns.WithLabelValues("fetch_error").Inc()
		if !ledger.IsFetchFailure(err) {
			err = fmt.Errorf("%w: %v", ledger.ErrProviderFetch, err)
		}
		result.Errors = append(result.Errors, err)
		return result, err
	}

	live := docs[:0:0]
	for _, doc := range docs {
		if doc.Status == provider.StatusVoided {
			continue
		}
		live = append(live, doc)
	}

	matcher := &Matcher{Store: r.Store}
	for _, doc := range live {
		if err := r.applyDocument(ctx, matcher, doc, &result); err != nil {
			log.Printf("[Sync] document %s: %v", doc.PrimaryID, err)
			metrics.SyncDocumentErrors.Inc()
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Processed++
	}

	if err := r.collectGarbage(ctx, live, &result); err != nil {
		// Better to skip cleanup than to delete based on a partial scan.
		result.Errors = append(result.Errors, err)
		return result, err
	}

	metrics.SyncRuns.WithLabelValues("ok").Inc()
	return result, nil
}

func (r *Reconciler) applyDocument(ctx context.Context, matcher *Matcher, doc provider.Document, result *SyncResult) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	cls, err := matcher.Classify(ctx, doc)
	if err != nil {
		return err
	}
	if cls.Collision != nil {
		log.Printf("[Sync] folio %q reused: held by entry %s (doc %s), incoming doc %s",
			doc.SecondaryRef, cls.Collision.ID, cls.Collision.External.PrimaryID, doc.PrimaryID)
	}

	switch cls.Action {
	case ActionUpdate:
		changed, err := r.updateEntry(ctx, *cls.Target, doc)
		if err != nil {
			return err
		}
		if changed {
			result.Updated++
			metrics.EntriesMutated.WithLabelValues("updated").Inc()
		}
	case ActionCreate:
		if _, err := r.Store.Insert(ctx, r.newEntry(doc)); err != nil {
			return fmt.Errorf("%w: insert mirror for %s: %v", ledger.ErrStore, doc.PrimaryID, err)
		}
		result.Created++
		metrics.EntriesMutated.WithLabelValues("created").Inc()
	}
	return nil
}

func (r *Reconciler) newEntry(doc provider.Document) ledger.Entry {
	return ledger.Entry{
		Direction:     ledger.Inflow,
		Amount:        doc.Amount,
		OccurredOn:    doc.IssuedOn(),
		Description:   placeholderDescription(doc),
		CategoryLabel: placeholderCategory,
		Settled:       r.settle(false, doc),
		External:      externalRef(doc),
	}
}

// updateEntry writes the document's state onto the target entry. The
// patch carries only fields that actually differ; when nothing differs
// no write is issued at all, which keeps a repeat sync against an
// unchanged feed mutation-free.
func (r *Reconciler) updateEntry(ctx context.Context, target ledger.Entry, doc provider.Document) (bool, error) {
	var patch ledger.EntryPatch
	if settled := r.settle(target.Settled, doc); settled != target.Settled {
		patch.Settled = &settled
	}
	if ref := externalRef(doc); !sameRef(target.External, ref) {
		patch.External = ref
	}
	// Only placeholder text is rewritten; a user's manual edits stay.
	if isPlaceholderDescription(target.Description) {
		if desc := placeholderDescription(doc); desc != target.Description {
			patch.Description = &desc
		}
	}
	if target.CategoryLabel == "" {
		cat := placeholderCategory
		patch.CategoryLabel = &cat
	}
	if patch == (ledger.EntryPatch{}) {
		return false, nil
	}

	err := r.Store.Update(ctx, target.ID, patch)
	if ledger.IsRetryable(err) {
		// One retry per entry on optimistic-write rejection, then log.
		err = r.Store.Update(ctx, target.ID, patch)
	}
	if err != nil {
		return false, fmt.Errorf("%w: update entry %s for %s: %v", ledger.ErrStore, target.ID, doc.PrimaryID, err)
	}
	return true, nil
}

func sameRef(a, b *ledger.ExternalRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.PrimaryID != b.PrimaryID || a.SecondaryRef != b.SecondaryRef || a.Status != b.Status {
		return false
	}
	if len(a.Metadata) != len(b.Metadata) {
		return false
	}
	for k, v := range a.Metadata {
		if b.Metadata[k] != v {
			return false
		}
	}
	return true
}

func (r *Reconciler) settle(localSettled bool, doc provider.Document) bool {
	policy := r.Settlement
	if policy == nil {
		policy = PreserveLocalSettlement
	}
	return policy(localSettled, doc)
}

func externalRef(doc provider.Document) *ledger.ExternalRef {
	return &ledger.ExternalRef{
		PrimaryID:    doc.PrimaryID,
		SecondaryRef: doc.SecondaryRef,
		Status:       string(doc.Status),
		Metadata:     doc.Extra,
	}
}

// =============================================================================
// PLACEHOLDER TEXT - Engine-written labels that sync may overwrite
// =============================================================================

const (
	placeholderCategory = "Invoices"
	placeholderPrefix   = "Invoice "
)

func placeholderDescription(doc provider.Document) string {
	if doc.CounterpartyName == "" {
		return placeholderPrefix + doc.SecondaryRef
	}
	return fmt.Sprintf("%s%s (%s)", placeholderPrefix, doc.SecondaryRef, doc.CounterpartyName)
}

func isPlaceholderDescription(s string) bool {
	return s == "" || strings.HasPrefix(s, placeholderPrefix)
}

// =============================================================================
// GARBAGE COLLECTOR
// =============================================================================

func (r *Reconciler) collectGarbage(ctx context.Context, docs []provider.Document, result *SyncResult) error {
	now := r.Clock.Now()

	windowStart := now
	primaryIDs := make(map[string]bool, len(docs))
	folioToPrimary := make(map[string]string, len(docs))
	for _, doc := range docs {
		primaryIDs[doc.PrimaryID] = true
		if doc.SecondaryRef != "" {
			folioToPrimary[doc.SecondaryRef] = doc.PrimaryID
		}
		if doc.IssuedAt.Before(windowStart) {
			windowStart = doc.IssuedAt
		}
	}
	if len(docs) > 0 {
		windowStart = windowStart.AddDate(0, 0, -ghostWindowDays)
	}
	// With an empty set the window collapses to [now, now] and nothing
	// qualifies for window-based deletion.

	mirrored := true
	entries, err := r.Store.Scan(ctx, ledger.EntryFilter{Mirrored: &mirrored})
	if err != nil {
		return fmt.Errorf("%w: gc scan: %v", ledger.ErrStore, err)
	}

	for _, e := range entries {
		reason := r.condemn(e, primaryIDs, folioToPrimary, windowStart, now)
		if reason == "" {
			continue
		}
		if err := r.Store.Delete(ctx, e.ID); err != nil {
			log.Printf("[GC] delete %s (%s): %v", e.ID, reason, err)
			result.Errors = append(result.Errors, fmt.Errorf("%w: gc delete %s: %v", ledger.ErrStore, e.ID, err))
			continue
		}
		log.Printf("[GC] removed entry %s: %s (primary=%q folio=%q)", e.ID, reason, e.External.PrimaryID, e.External.SecondaryRef)
		result.Deleted++
		metrics.GhostsCollected.WithLabelValues(reason).Inc()
		metrics.EntriesMutated.WithLabelValues("deleted").Inc()
	}
	return nil
}

// condemn returns a deletion reason, or "" to keep the entry.
func (r *Reconciler) condemn(e ledger.Entry, primaryIDs map[string]bool, folioToPrimary map[string]string, windowStart, now time.Time) string {
	ref := e.External

	// Tier 1: a mirror without a status can never be valid, regardless
	// of age or feed contents.
	if ref.Status == "" {
		return "corrupt"
	}

	// Tier 2: windowed ghost cleanup.
	if e.CreatedAt.Before(windowStart) || e.CreatedAt.After(now) {
		return ""
	}
	if primaryIDs[ref.PrimaryID] {
		return ""
	}
	if ref.SecondaryRef != "" {
		if holder, ok := folioToPrimary[ref.SecondaryRef]; ok && holder == ref.PrimaryID {
			return ""
		}
	}
	return "ghost"
}
