package recon_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bookkeeper/ledger"
	memstore "github.com/warp/bookkeeper/ledger/store"
	"github.com/warp/bookkeeper/recon"
)

func newGenerator(today time.Time) (*recon.Generator, *memstore.Memory) {
	clock := ledger.FixedClock{At: today}
	store := memstore.NewMemory(clock)
	return recon.NewGenerator(store, store, clock), store
}

func TestTick_MonthlyCatchUp_ThreeMissedPeriods(t *testing.T) {
	// GIVEN: A monthly day-1 rule anchored at 2024-01-01, today 2024-04-05
	// WHEN: Ticking
	// THEN: Exactly entries for Feb 1, Mar 1, Apr 1 exist and the anchor
	//       lands on 2024-04-01

	today := time.Date(2024, time.April, 5, 9, 0, 0, 0, time.UTC)
	g, store := newGenerator(today)
	store.PutRule(ledger.RecurringRule{
		ID:            "rule-rent",
		Direction:     ledger.Outflow,
		Amount:        amount(500),
		CategoryLabel: "Rent",
		Description:   "Monthly rent",
		Cadence:       ledger.Monthly(1),
		AnchorDate:    ledger.MustParseDate("2024-01-01"),
	})

	result, err := g.Tick(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	assert.Equal(t, 3, result.Generated)
	assert.Zero(t, result.Skipped)

	ruleID := "rule-rent"
	entries, err := store.Scan(context.Background(), ledger.EntryFilter{RecurringRuleID: &ruleID})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var dates []string
	for _, e := range entries {
		dates = append(dates, e.OccurredOn.String())
		assert.False(t, e.Settled, "generated entries start unsettled")
		assert.Equal(t, "Monthly rent", e.Description)
	}
	assert.ElementsMatch(t, []string{"2024-02-01", "2024-03-01", "2024-04-01"}, dates)

	rule, ok := store.GetRule("rule-rent")
	require.True(t, ok)
	assert.Equal(t, "2024-04-01", rule.AnchorDate.String())
}

func TestTick_SecondRun_GeneratesNothing(t *testing.T) {
	// GIVEN: A rule fully caught up by a previous tick
	// WHEN: Ticking again
	// THEN: Nothing new is generated

	today := time.Date(2024, time.April, 5, 9, 0, 0, 0, time.UTC)
	g, store := newGenerator(today)
	store.PutRule(ledger.RecurringRule{
		ID:         "rule-1",
		Direction:  ledger.Outflow,
		Amount:     amount(500),
		Cadence:    ledger.Monthly(1),
		AnchorDate: ledger.MustParseDate("2024-01-01"),
	})

	_, err := g.Tick(context.Background())
	require.NoError(t, err)

	second, err := g.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Generated)
	assert.Zero(t, second.Skipped)
}

func TestTick_DuplicateDetected_SkipsButAdvancesAnchor(t *testing.T) {
	// GIVEN: The February occurrence already exists (e.g., written by a
	//        crashed previous run that never advanced the anchor)
	// WHEN: Ticking
	// THEN: February is skipped, NOT generated twice, and the anchor
	//       still advances past it

	today := time.Date(2024, time.February, 10, 9, 0, 0, 0, time.UTC)
	g, store := newGenerator(today)
	store.PutRule(ledger.RecurringRule{
		ID:          "rule-1",
		Direction:   ledger.Outflow,
		Amount:      amount(500),
		Description: "Monthly rent",
		Cadence:     ledger.Monthly(1),
		AnchorDate:  ledger.MustParseDate("2024-01-01"),
	})
	_, err := store.Insert(context.Background(), ledger.Entry{
		Direction:       ledger.Outflow,
		Amount:          amount(500),
		OccurredOn:      ledger.MustParseDate("2024-02-01"),
		Description:     "Monthly rent",
		RecurringRuleID: "rule-1",
	})
	require.NoError(t, err)

	result, err := g.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Generated)
	assert.Equal(t, 1, result.Skipped)

	rule, _ := store.GetRule("rule-1")
	assert.Equal(t, "2024-02-01", rule.AnchorDate.String())
	assert.Equal(t, 1, store.Len(), "no duplicate entry for the skipped period")
}

func TestTick_CatchUpBounded_TwelvePeriodsPerRun(t *testing.T) {
	// GIVEN: A weekly rule untouched for a year (52 missed periods)
	// WHEN: Ticking once
	// THEN: At most 12 occurrences are generated; the rest wait for the
	//       next invocation

	today := time.Date(2024, time.December, 30, 9, 0, 0, 0, time.UTC)
	g, store := newGenerator(today)
	store.PutRule(ledger.RecurringRule{
		ID:         "rule-1",
		Direction:  ledger.Outflow,
		Amount:     amount(25),
		Cadence:    ledger.Weekly(time.Monday),
		AnchorDate: ledger.MustParseDate("2024-01-01"),
	})

	result, err := g.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, result.Generated)

	rule, _ := store.GetRule("rule-1")
	assert.Equal(t, "2024-03-25", rule.AnchorDate.String(), "12 weeks past the anchor")

	// Next invocation picks up where the bound stopped.
	result, err = g.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, result.Generated)
}

func TestTick_RuleFailure_OthersStillRun(t *testing.T) {
	// GIVEN: Two rules, the first with a cadence due and a rule store
	//        that fails advancing only that rule's anchor
	// WHEN: Ticking
	// THEN: The failure is recorded and the second rule still generates

	today := time.Date(2024, time.February, 2, 9, 0, 0, 0, time.UTC)
	clock := ledger.FixedClock{At: today}
	mem := memstore.NewMemory(clock)
	rules := &failingAnchor{Memory: mem, failRuleID: "rule-bad"}
	g := recon.NewGenerator(mem, rules, clock)

	mem.PutRule(ledger.RecurringRule{
		ID:         "rule-bad",
		Direction:  ledger.Outflow,
		Amount:     amount(10),
		Cadence:    ledger.Monthly(1),
		AnchorDate: ledger.MustParseDate("2024-01-01"),
	})
	mem.PutRule(ledger.RecurringRule{
		ID:         "rule-good",
		Direction:  ledger.Outflow,
		Amount:     amount(20),
		Cadence:    ledger.Monthly(1),
		AnchorDate: ledger.MustParseDate("2024-01-01"),
	})

	result, err := g.Tick(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Errors, 1)

	goodID := "rule-good"
	entries, err := mem.Scan(context.Background(), ledger.EntryFilter{RecurringRuleID: &goodID})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// failingAnchor rejects anchor updates for one rule id.
type failingAnchor struct {
	*memstore.Memory
	failRuleID string
}

func (f *failingAnchor) UpdateAnchor(ctx context.Context, ruleID string, anchor ledger.Date) error {
	if ruleID == f.failRuleID {
		return assert.AnError
	}
	return f.Memory.UpdateAnchor(ctx, ruleID, anchor)
}
