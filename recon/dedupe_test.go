package recon_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bookkeeper/ledger"
	memstore "github.com/warp/bookkeeper/ledger/store"
	"github.com/warp/bookkeeper/recon"
)

func TestDedupe_KeepsNewestPerPrimaryID(t *testing.T) {
	// GIVEN: Three mirrors of doc-1 created at different times, plus an
	//        unrelated mirror
	// WHEN: Deduplicating
	// THEN: Only the newest doc-1 mirror and the unrelated mirror remain

	store := memstore.NewMemory(ledger.FixedClock{At: testNow})
	ctx := context.Background()

	var newest ledger.Entry
	for i, age := range []int{-3, -1, -2} {
		e, err := store.Insert(ctx, ledger.Entry{
			Direction:  ledger.Inflow,
			Amount:     amount(500),
			OccurredOn: ledger.DateOf(testNow),
			CreatedAt:  testNow.AddDate(0, 0, age),
			External:   &ledger.ExternalRef{PrimaryID: "doc-1", SecondaryRef: "F-1", Status: "valid"},
		})
		require.NoError(t, err)
		if i == 1 { // age -1 is the newest
			newest = e
		}
	}
	_, err := store.Insert(ctx, ledger.Entry{
		Direction:  ledger.Inflow,
		Amount:     amount(100),
		OccurredOn: ledger.DateOf(testNow),
		External:   &ledger.ExternalRef{PrimaryID: "doc-2", SecondaryRef: "F-2", Status: "paid"},
	})
	require.NoError(t, err)

	d := &recon.Deduplicator{Store: store}
	removed, err := d.Dedupe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, store.Len())

	survivor, err := store.FindByPrimaryRef(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, newest.ID, survivor.ID)
}

func TestDedupe_Idempotent(t *testing.T) {
	// GIVEN: A ledger already deduplicated
	// WHEN: Running the pass again
	// THEN: Nothing further is removed

	store := memstore.NewMemory(ledger.FixedClock{At: testNow})
	ctx := context.Background()

	for _, age := range []int{-2, -1} {
		_, err := store.Insert(ctx, ledger.Entry{
			Direction:  ledger.Inflow,
			Amount:     amount(500),
			OccurredOn: ledger.DateOf(testNow),
			CreatedAt:  testNow.AddDate(0, 0, age),
			External:   &ledger.ExternalRef{PrimaryID: "doc-1", SecondaryRef: "F-1", Status: "valid"},
		})
		require.NoError(t, err)
	}

	d := &recon.Deduplicator{Store: store}
	removed, err := d.Dedupe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = d.Dedupe(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
