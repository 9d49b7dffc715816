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

func newDetector(t *testing.T, entries ...ledger.Entry) *recon.Detector {
	t.Helper()
	store := memstore.NewMemory(ledger.FixedClock{At: testNow})
	for _, e := range entries {
		_, err := store.Insert(context.Background(), e)
		require.NoError(t, err)
	}
	return &recon.Detector{Store: store}
}

func TestFindDuplicate_WithinToleranceWindow(t *testing.T) {
	// GIVEN: An outflow recorded one day before the probe date
	// WHEN: Probing with the same amount and direction
	// THEN: It is reported as a duplicate (±1 day tolerance)

	d := newDetector(t, ledger.Entry{
		Direction:  ledger.Outflow,
		Amount:     amount(500),
		OccurredOn: ledger.MustParseDate("2024-03-31"),
	})

	dup, err := d.FindDuplicate(context.Background(), amount(500), ledger.MustParseDate("2024-04-01"), ledger.Outflow, "")
	require.NoError(t, err)
	assert.NotNil(t, dup)
}

func TestFindDuplicate_OutsideWindow_NotReported(t *testing.T) {
	d := newDetector(t, ledger.Entry{
		Direction:  ledger.Outflow,
		Amount:     amount(500),
		OccurredOn: ledger.MustParseDate("2024-03-29"),
	})

	dup, err := d.FindDuplicate(context.Background(), amount(500), ledger.MustParseDate("2024-04-01"), ledger.Outflow, "")
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestFindDuplicate_DirectionAndAmountMustMatchExactly(t *testing.T) {
	d := newDetector(t,
		ledger.Entry{Direction: ledger.Inflow, Amount: amount(500), OccurredOn: ledger.MustParseDate("2024-04-01")},
		ledger.Entry{Direction: ledger.Outflow, Amount: amount(501), OccurredOn: ledger.MustParseDate("2024-04-01")},
	)

	dup, err := d.FindDuplicate(context.Background(), amount(500), ledger.MustParseDate("2024-04-01"), ledger.Outflow, "")
	require.NoError(t, err)
	assert.Nil(t, dup)
}

func TestFindDuplicate_ExactDescription_FiltersNearMisses(t *testing.T) {
	// GIVEN: Two same-amount outflows on the same day with different
	//        descriptions
	// WHEN: Probing with an exact description
	// THEN: Only the byte-exact match counts

	d := newDetector(t,
		ledger.Entry{Direction: ledger.Outflow, Amount: amount(500), OccurredOn: ledger.MustParseDate("2024-04-01"), Description: "Gym membership"},
		ledger.Entry{Direction: ledger.Outflow, Amount: amount(500), OccurredOn: ledger.MustParseDate("2024-04-01"), Description: "Monthly rent"},
	)

	dup, err := d.FindDuplicate(context.Background(), amount(500), ledger.MustParseDate("2024-04-01"), ledger.Outflow, "Monthly rent")
	require.NoError(t, err)
	require.NotNil(t, dup)
	assert.Equal(t, "Monthly rent", dup.Description)

	dup, err = d.FindDuplicate(context.Background(), amount(500), ledger.MustParseDate("2024-04-01"), ledger.Outflow, "Water bill")
	require.NoError(t, err)
	assert.Nil(t, dup)
}
