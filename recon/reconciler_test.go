package recon_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bookkeeper/ledger"
	memstore "github.com/warp/bookkeeper/ledger/store"
	"github.com/warp/bookkeeper/provider"
	"github.com/warp/bookkeeper/recon"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2024, time.April, 5, 12, 0, 0, 0, time.UTC)

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newSyncFixture(docs ...provider.Document) (*recon.Reconciler, *memstore.Memory, *provider.StaticFeed) {
	clock := ledger.FixedClock{At: testNow}
	store := memstore.NewMemory(clock)
	feed := &provider.StaticFeed{Documents: docs}
	return recon.NewReconciler(store, feed, clock), store, feed
}

func doc(primaryID, folio string, status provider.DocumentStatus, amt int64, issued time.Time) provider.Document {
	return provider.Document{
		PrimaryID:        primaryID,
		SecondaryRef:     folio,
		Status:           status,
		Amount:           amount(amt),
		IssuedAt:         issued,
		CounterpartyName: "Acme SA",
	}
}

func mustSync(t *testing.T, r *recon.Reconciler) recon.SyncResult {
	t.Helper()
	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	return result
}

// =============================================================================
// SYNC PASS
// =============================================================================

func TestSync_NewDocuments_CreateMirrors(t *testing.T) {
	// GIVEN: Two valid documents and an empty ledger
	// WHEN: Syncing
	// THEN: Two mirrored entries exist with the documents' identity

	r, store, _ := newSyncFixture(
		doc("doc-1", "F-1", provider.StatusValid, 500, testNow.AddDate(0, 0, -1)),
		doc("doc-2", "F-2", provider.StatusPaid, 750, testNow),
	)

	result := mustSync(t, r)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Created)

	e1, err := store.FindByPrimaryRef(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "F-1", e1.External.SecondaryRef)
	assert.Equal(t, ledger.Inflow, e1.Direction)
	assert.False(t, e1.Settled, "valid (unpaid) document should not be settled")

	e2, err := store.FindByPrimaryRef(context.Background(), "doc-2")
	require.NoError(t, err)
	assert.True(t, e2.Settled, "paid document should be settled")
}

func TestSync_Idempotent_SecondRunMutatesNothingNew(t *testing.T) {
	// GIVEN: A synced ledger and an unchanged feed
	// WHEN: Syncing again
	// THEN: Zero additional mutations: no inserts, no updates, no deletes

	clock := ledger.FixedClock{At: testNow}
	mem := memstore.NewMemory(clock)
	counting := &mutationCounter{Memory: mem}
	feed := &provider.StaticFeed{Documents: []provider.Document{
		doc("doc-1", "F-1", provider.StatusValid, 500, testNow.AddDate(0, 0, -1)),
		doc("doc-2", "F-2", provider.StatusPaid, 750, testNow),
	}}
	r := recon.NewReconciler(counting, feed, clock)

	mustSync(t, r)
	countAfterFirst := mem.Len()
	counting.reset()

	second := mustSync(t, r)
	assert.Zero(t, second.Created)
	assert.Zero(t, second.Updated)
	assert.Zero(t, second.Deleted)
	assert.Zero(t, counting.inserts, "no insert may reach the store on a repeat run")
	assert.Zero(t, counting.updates, "no update may reach the store on a repeat run")
	assert.Zero(t, counting.deletes, "no delete may reach the store on a repeat run")
	assert.Equal(t, countAfterFirst, mem.Len())
}

// mutationCounter counts writes passing through to the memory store.
type mutationCounter struct {
	*memstore.Memory
	inserts int
	updates int
	deletes int
}

func (c *mutationCounter) reset() { c.inserts, c.updates, c.deletes = 0, 0, 0 }

func (c *mutationCounter) Insert(ctx context.Context, e ledger.Entry) (ledger.Entry, error) {
	c.inserts++
	return c.Memory.Insert(ctx, e)
}

func (c *mutationCounter) Update(ctx context.Context, id string, patch ledger.EntryPatch) error {
	c.updates++
	return c.Memory.Update(ctx, id, patch)
}

func (c *mutationCounter) Delete(ctx context.Context, id string) error {
	c.deletes++
	return c.Memory.Delete(ctx, id)
}

func TestSync_VoidedDocuments_NeverMirrored(t *testing.T) {
	// GIVEN: A feed containing only a voided document
	// WHEN: Syncing
	// THEN: Nothing is created

	r, store, _ := newSyncFixture(
		doc("doc-void", "F-9", provider.StatusVoided, 100, testNow),
	)

	result := mustSync(t, r)
	assert.Zero(t, result.Processed)
	assert.Zero(t, store.Len())
}

func TestSync_FetchFailure_AbortsBeforeAnyMutation(t *testing.T) {
	// GIVEN: A ledger with a mirrored entry absent from the feed, and a
	//        feed that fails
	// WHEN: Syncing
	// THEN: The error propagates and the store is untouched; in
	//       particular the garbage collector never ran

	r, store, feed := newSyncFixture()
	_, err := store.Insert(context.Background(), ledger.Entry{
		Direction:  ledger.Inflow,
		Amount:     amount(500),
		OccurredOn: ledger.DateOf(testNow),
		External:   &ledger.ExternalRef{PrimaryID: "doc-gone", SecondaryRef: "F-1", Status: "valid"},
	})
	require.NoError(t, err)

	feed.Err = assert.AnError

	before := store.Len()
	result, err := r.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, ledger.IsFetchFailure(err))
	require.Len(t, result.Errors, 1)
	assert.True(t, ledger.IsFetchFailure(result.Errors[0]))
	assert.Equal(t, before, store.Len(), "no entry may be deleted after a failed fetch")
}

func TestSync_InvalidDocument_SkippedNotFatal(t *testing.T) {
	// GIVEN: One malformed document (no primary id) next to a valid one
	// WHEN: Syncing
	// THEN: The valid document is mirrored; the bad one lands in Errors

	r, store, _ := newSyncFixture(
		doc("", "F-0", provider.StatusValid, 100, testNow),
		doc("doc-ok", "F-1", provider.StatusValid, 200, testNow),
	)

	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], ledger.ErrDataIntegrity)

	_, err = store.FindByPrimaryRef(context.Background(), "doc-ok")
	assert.NoError(t, err)
}

// =============================================================================
// UPDATE SEMANTICS
// =============================================================================

func TestSync_LocalSettlement_NeverDowngraded(t *testing.T) {
	// GIVEN: A mirrored entry settled locally (side-channel payment)
	//        while the provider still reports "valid"
	// WHEN: Syncing
	// THEN: The entry stays settled

	r, store, _ := newSyncFixture(
		doc("doc-1", "F-1", provider.StatusValid, 500, testNow),
	)
	_, err := store.Insert(context.Background(), ledger.Entry{
		Direction:  ledger.Inflow,
		Amount:     amount(500),
		OccurredOn: ledger.DateOf(testNow),
		Settled:    true,
		External:   &ledger.ExternalRef{PrimaryID: "doc-1", SecondaryRef: "F-1", Status: "valid"},
	})
	require.NoError(t, err)

	mustSync(t, r)

	e, err := store.FindByPrimaryRef(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.True(t, e.Settled)
}

func TestSync_ProviderAuthoritativePolicy_DowngradesSettlement(t *testing.T) {
	// GIVEN: The same locally settled entry, but the reconciler is
	//        configured with the provider-authoritative policy
	// WHEN: Syncing
	// THEN: The provider's "valid" status unsettles the entry

	r, store, _ := newSyncFixture(
		doc("doc-1", "F-1", provider.StatusValid, 500, testNow),
	)
	r.Settlement = recon.ProviderAuthoritative

	_, err := store.Insert(context.Background(), ledger.Entry{
		Direction:  ledger.Inflow,
		Amount:     amount(500),
		OccurredOn: ledger.DateOf(testNow),
		Settled:    true,
		External:   &ledger.ExternalRef{PrimaryID: "doc-1", SecondaryRef: "F-1", Status: "valid"},
	})
	require.NoError(t, err)

	mustSync(t, r)

	e, err := store.FindByPrimaryRef(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.False(t, e.Settled)
}

func TestSync_ManualDescription_NotClobbered(t *testing.T) {
	// GIVEN: A mirrored entry whose description was edited by the user
	// WHEN: Syncing updates the entry
	// THEN: The manual description survives; placeholder text would not

	r, store, _ := newSyncFixture(
		doc("doc-1", "F-1", provider.StatusPaid, 500, testNow),
	)
	_, err := store.Insert(context.Background(), ledger.Entry{
		Direction:   ledger.Inflow,
		Amount:      amount(500),
		OccurredOn:  ledger.DateOf(testNow),
		Description: "Consulting retainer for March",
		External:    &ledger.ExternalRef{PrimaryID: "doc-1", SecondaryRef: "F-1", Status: "valid"},
	})
	require.NoError(t, err)

	mustSync(t, r)

	e, err := store.FindByPrimaryRef(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Consulting retainer for March", e.Description)
	assert.Equal(t, "paid", e.External.Status, "status still updates")
}

func TestSync_ConcurrencyConflict_RetriedOnce(t *testing.T) {
	// GIVEN: A store that rejects the first update optimistically
	// WHEN: Syncing an update for an existing mirror
	// THEN: The retry succeeds and the pass reports no errors

	clock := ledger.FixedClock{At: testNow}
	mem := memstore.NewMemory(clock)
	flaky := &conflictOnce{Memory: mem}
	feed := &provider.StaticFeed{Documents: []provider.Document{
		doc("doc-1", "F-1", provider.StatusPaid, 500, testNow),
	}}
	r := recon.NewReconciler(flaky, feed, clock)

	_, err := mem.Insert(context.Background(), ledger.Entry{
		Direction:  ledger.Inflow,
		Amount:     amount(500),
		OccurredOn: ledger.DateOf(testNow),
		External:   &ledger.ExternalRef{PrimaryID: "doc-1", SecondaryRef: "F-1", Status: "valid"},
	})
	require.NoError(t, err)

	result := mustSync(t, r)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, flaky.rejected)
}

// conflictOnce rejects the first Update with a concurrency conflict.
type conflictOnce struct {
	*memstore.Memory
	rejected int
}

func (c *conflictOnce) Update(ctx context.Context, id string, patch ledger.EntryPatch) error {
	if c.rejected == 0 {
		c.rejected++
		return &ledger.ConflictError{EntryID: id}
	}
	return c.Memory.Update(ctx, id, patch)
}

// =============================================================================
// GARBAGE COLLECTOR
// =============================================================================

func TestGC_GhostInsideWindow_Deleted(t *testing.T) {
	// GIVEN: A mirror created yesterday whose document vanished from the
	//        feed, while another recent document keeps the window open
	// WHEN: Syncing
	// THEN: The ghost is deleted

	r, store, _ := newSyncFixture(
		doc("doc-live", "F-2", provider.StatusValid, 300, testNow.AddDate(0, 0, -2)),
	)
	_, err := store.Insert(context.Background(), ledger.Entry{
		Direction:  ledger.Inflow,
		Amount:     amount(500),
		OccurredOn: ledger.DateOf(testNow.AddDate(0, 0, -1)),
		CreatedAt:  testNow.AddDate(0, 0, -1),
		External:   &ledger.ExternalRef{PrimaryID: "doc-ghost", SecondaryRef: "F-1", Status: "valid"},
	})
	require.NoError(t, err)

	result := mustSync(t, r)
	assert.Equal(t, 1, result.Deleted)

	_, err = store.FindByPrimaryRef(context.Background(), "doc-ghost")
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

func TestGC_OldEntryOutsideWindow_Survives(t *testing.T) {
	// GIVEN: A mirror created 30 days ago, absent from a fetch whose
	//        documents were all issued within the last 2 days
	// WHEN: Syncing
	// THEN: The entry is NOT deleted; the fetch may simply not include
	//       older history

	r, store, _ := newSyncFixture(
		doc("doc-recent", "F-2", provider.StatusValid, 300, testNow.AddDate(0, 0, -2)),
	)
	_, err := store.Insert(context.Background(), ledger.Entry{
		Direction:  ledger.Inflow,
		Amount:     amount(500),
		OccurredOn: ledger.DateOf(testNow.AddDate(0, 0, -30)),
		CreatedAt:  testNow.AddDate(0, 0, -30),
		External:   &ledger.ExternalRef{PrimaryID: "doc-old", SecondaryRef: "F-1", Status: "valid"},
	})
	require.NoError(t, err)

	result := mustSync(t, r)
	assert.Zero(t, result.Deleted)

	_, err = store.FindByPrimaryRef(context.Background(), "doc-old")
	assert.NoError(t, err)
}

func TestGC_CorruptMirror_DeletedRegardlessOfAge(t *testing.T) {
	// GIVEN: A 30-day-old mirror with no recorded status
	// WHEN: Syncing with an empty feed (window collapses to [now, now])
	// THEN: The corrupt mirror is still deleted

	r, store, _ := newSyncFixture()
	_, err := store.Insert(context.Background(), ledger.Entry{
		Direction:  ledger.Inflow,
		Amount:     amount(500),
		OccurredOn: ledger.DateOf(testNow.AddDate(0, 0, -30)),
		CreatedAt:  testNow.AddDate(0, 0, -30),
		External:   &ledger.ExternalRef{PrimaryID: "doc-zombie", SecondaryRef: "F-1"},
	})
	require.NoError(t, err)

	result := mustSync(t, r)
	assert.Equal(t, 1, result.Deleted)
	assert.Zero(t, store.Len())
}

func TestGC_EmptyFeed_NoWindowedDeletion(t *testing.T) {
	// GIVEN: A healthy mirror created just now and an empty feed
	// WHEN: Syncing
	// THEN: Nothing is deleted; the collapsed window makes no entry
	//       eligible

	r, store, _ := newSyncFixture()
	_, err := store.Insert(context.Background(), ledger.Entry{
		Direction:  ledger.Inflow,
		Amount:     amount(500),
		OccurredOn: ledger.DateOf(testNow),
		CreatedAt:  testNow.Add(-1 * time.Hour),
		External:   &ledger.ExternalRef{PrimaryID: "doc-1", SecondaryRef: "F-1", Status: "valid"},
	})
	require.NoError(t, err)

	result := mustSync(t, r)
	assert.Zero(t, result.Deleted)
	assert.Equal(t, 1, store.Len())
}

// =============================================================================
// FOLIO COLLISION (end to end)
// =============================================================================

func TestSync_FolioReuse_TwoDistinctEntries(t *testing.T) {
	// GIVEN: A mirror of a (now voided) document holding folio "A1",
	//        and a feed with a NEW document reusing folio "A1" under a
	//        different primary id
	// WHEN: Syncing
	// THEN: Two distinct entries exist; the old identity is never
	//       overwritten with the new one

	issued := testNow.AddDate(0, 0, -1)
	r, store, _ := newSyncFixture(
		doc("doc-new", "A1", provider.StatusValid, 800, issued),
	)
	_, err := store.Insert(context.Background(), ledger.Entry{
		Direction:  ledger.Inflow,
		Amount:     amount(500),
		OccurredOn: ledger.DateOf(issued),
		CreatedAt:  testNow.AddDate(0, 0, -20),
		External:   &ledger.ExternalRef{PrimaryID: "doc-voided", SecondaryRef: "A1", Status: "valid"},
	})
	require.NoError(t, err)

	result := mustSync(t, r)
	assert.Equal(t, 1, result.Created)

	oldEntry, err := store.FindByPrimaryRef(context.Background(), "doc-voided")
	require.NoError(t, err, "old mirror must survive with its identity intact")
	assert.Equal(t, "A1", oldEntry.External.SecondaryRef)

	newEntry, err := store.FindByPrimaryRef(context.Background(), "doc-new")
	require.NoError(t, err)
	assert.Equal(t, "A1", newEntry.External.SecondaryRef)
	assert.NotEqual(t, oldEntry.ID, newEntry.ID)
}
