package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/bookkeeper/ledger"
)

// =============================================================================
// CADENCE MATH
// =============================================================================

func TestCadence_Monthly_DayClampedToShortMonths(t *testing.T) {
	// GIVEN: A day-31 monthly cadence anchored at Jan 31
	// WHEN: Stepping through February and March
	// THEN: February clamps to the 29th (2024 is a leap year) and March
	//       restores the canonical 31st

	c := ledger.Monthly(31)

	feb := c.Next(ledger.NewDate(2024, time.January, 31))
	assert.Equal(t, "2024-02-29", feb.String())

	mar := c.Next(feb)
	assert.Equal(t, "2024-03-31", mar.String())
}

func TestCadence_Monthly_NonLeapFebruary(t *testing.T) {
	c := ledger.Monthly(30)
	feb := c.Next(ledger.NewDate(2023, time.January, 30))
	assert.Equal(t, "2023-02-28", feb.String())
}

func TestCadence_Monthly_YearRollover(t *testing.T) {
	c := ledger.Monthly(15)
	jan := c.Next(ledger.NewDate(2024, time.December, 15))
	assert.Equal(t, "2025-01-15", jan.String())
}

func TestCadence_WeeklyVariants_FixedSteps(t *testing.T) {
	anchor := ledger.NewDate(2024, time.April, 1) // a Monday

	tests := []struct {
		name    string
		cadence ledger.Cadence
		want    string
	}{
		{"weekly", ledger.Weekly(time.Monday), "2024-04-08"},
		{"biweekly", ledger.Biweekly(time.Monday), "2024-04-15"},
		{"triweekly", ledger.Triweekly(time.Monday), "2024-04-22"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cadence.Next(anchor)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, time.Monday, got.Time.Weekday(), "step must preserve the weekday")
		})
	}
}

// =============================================================================
// DATE WINDOWS
// =============================================================================

func TestDate_WithinDays_InclusiveBounds(t *testing.T) {
	center := ledger.NewDate(2024, time.April, 1)

	assert.True(t, center.WithinDays(ledger.NewDate(2024, time.March, 31), 1))
	assert.True(t, center.WithinDays(ledger.NewDate(2024, time.April, 2), 1))
	assert.True(t, center.WithinDays(center, 1))
	assert.False(t, center.WithinDays(ledger.NewDate(2024, time.March, 30), 1))
	assert.False(t, center.WithinDays(ledger.NewDate(2024, time.April, 3), 1))
}

func TestDateOf_TruncatesTimeOfDay(t *testing.T) {
	late := time.Date(2024, time.April, 1, 23, 59, 59, 0, time.UTC)
	early := time.Date(2024, time.April, 1, 0, 0, 1, 0, time.UTC)
	assert.True(t, ledger.DateOf(late).Equal(ledger.DateOf(early)))
}

func TestRule_EntryDescription_FallsBackToDefault(t *testing.T) {
	withDesc := ledger.RecurringRule{Direction: ledger.Outflow, Description: "Monthly rent"}
	assert.Equal(t, "Monthly rent", withDesc.EntryDescription())

	bare := ledger.RecurringRule{Direction: ledger.Outflow}
	assert.Equal(t, "Recurring outflow", bare.EntryDescription())
}
