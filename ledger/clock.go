package ledger

import "time"

// =============================================================================
// CLOCK - Injectable time source
// =============================================================================

// Clock abstracts wall-clock access so the catch-up loop and the
// garbage-collection window are deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant. For tests.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// Today returns the clock's current calendar day.
func Today(c Clock) Date { return DateOf(c.Now()) }
