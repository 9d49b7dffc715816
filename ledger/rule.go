/*
rule.go - Recurring rules and cadence calendar math

PURPOSE:
  A RecurringRule describes a periodic ledger entry (rent, salary,
  subscription). The rule's AnchorDate is its persisted high-water mark:
  the date of the last occurrence the generator produced (or deliberately
  skipped). The generator advances the anchor exactly once per due period.

CADENCE MATH:
  - monthly(dayOfMonth): next due date is one calendar month after the
    anchor, on the rule's canonical day-of-month, clamped to the last
    valid day of the target month. A day-31 rule lands on Feb 28/29 and
    returns to the 31st in months that have one.
  - weekly/biweekly/triweekly: anchor + 7/14/21 days.

SEE ALSO:
  - recon/generator.go: The catch-up loop that consumes this math
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CADENCE - How often a rule is due
// =============================================================================

type CadenceUnit string

const (
	CadenceMonthly   CadenceUnit = "monthly"
	CadenceWeekly    CadenceUnit = "weekly"
	CadenceBiweekly  CadenceUnit = "biweekly"
	CadenceTriweekly CadenceUnit = "triweekly"
)

type Cadence struct {
	Unit CadenceUnit

	// DayOfMonth is the canonical due day for monthly cadences (1-31).
	// Ignored for weekly variants.
	DayOfMonth int

	// DayOfWeek is informational for weekly variants; the anchor already
	// sits on the correct weekday and the step preserves it.
	DayOfWeek time.Weekday
}

func Monthly(dayOfMonth int) Cadence {
	return Cadence{Unit: CadenceMonthly, DayOfMonth: dayOfMonth}
}

func Weekly(day time.Weekday) Cadence    { return Cadence{Unit: CadenceWeekly, DayOfWeek: day} }
func Biweekly(day time.Weekday) Cadence  { return Cadence{Unit: CadenceBiweekly, DayOfWeek: day} }
func Triweekly(day time.Weekday) Cadence { return Cadence{Unit: CadenceTriweekly, DayOfWeek: day} }

// Next returns the due date that follows the given anchor.
func (c Cadence) Next(anchor Date) Date {
	switch c.Unit {
	case CadenceMonthly:
		return c.nextMonthly(anchor)
	case CadenceWeekly:
		return anchor.AddDays(7)
	case CadenceBiweekly:
		return anchor.AddDays(14)
	case CadenceTriweekly:
		return anchor.AddDays(21)
	default:
		// Unknown cadence: step a month so a misconfigured rule still
		// terminates its catch-up loop instead of spinning on one date.
		return c.nextMonthly(anchor)
	}
}

func (c Cadence) nextMonthly(anchor Date) Date {
	year, month := anchor.Year(), anchor.Month()
	month++
	if month > time.December {
		month = time.January
		year++
	}

	day := c.DayOfMonth
	if day <= 0 {
		day = anchor.Day()
	}
	if max := DaysInMonth(year, month); day > max {
		day = max
	}
	return NewDate(year, month, day)
}

func (c Cadence) String() string {
	switch c.Unit {
	case CadenceMonthly:
		return fmt.Sprintf("monthly(day=%d)", c.DayOfMonth)
	default:
		return fmt.Sprintf("%s(%s)", c.Unit, c.DayOfWeek)
	}
}

// =============================================================================
// RECURRING RULE
// =============================================================================

type RecurringRule struct {
	ID            string
	Direction     Direction
	Amount        decimal.Decimal
	CategoryLabel string
	Description   string
	Cadence       Cadence

	// AnchorDate is the date of the last generated (or skipped) occurrence.
	// Advanced exclusively by the recurring generator.
	AnchorDate Date
}

// EntryDescription is the description stamped on generated entries and
// used as the exact-description key in duplicate detection. Keeping the
// two identical is what makes a re-run of the generator idempotent.
func (r RecurringRule) EntryDescription() string {
	if r.Description != "" {
		return r.Description
	}
	return fmt.Sprintf("Recurring %s", r.Direction)
}
