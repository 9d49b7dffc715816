/*
generator.go - Recurring-rule catch-up loop

PER-RULE STATE MACHINE:
  anchor -> candidate (per cadence) -> generate-or-skip -> advance anchor

  The anchor advances UNCONDITIONALLY each iteration, even when the
  duplicate detector suppressed generation. Otherwise the same period
  would be retried forever.

BOUNDS & FAILURE:
  - At most 12 periods per rule per tick. A rule untouched for years is
    caught up across successive ticks, bounded work each time.
  - One rule's failure never aborts the others: logged, skipped, loop
    continues.
  - A mutex (TryLock) guards against overlapping passes. Idempotency
    alone protects correctness; the guard avoids wasted duplicate work
    and duplicate-detector race windows.
*/
package recon

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/warp/bookkeeper/ledger"
	"github.com/warp/bookkeeper/metrics"
)

// maxCatchUpPerTick caps pathological catch-up per rule per invocation.
const maxCatchUpPerTick = 12

// =============================================================================
// GENERATOR
// =============================================================================

type Generator struct {
	Store    ledger.Store
	Rules    ledger.RuleStore
	Detector *Detector
	Clock    ledger.Clock

	mu sync.Mutex
}

func NewGenerator(store ledger.Store, rules ledger.RuleStore, clock ledger.Clock) *Generator {
	return &Generator{
		Store:    store,
		Rules:    rules,
		Detector: &Detector{Store: store},
		Clock:    clock,
	}
}

// TickResult summarizes one generator pass.
type TickResult struct {
	Generated int
	Skipped   int
	Errors    []error
}

// Tick advances every rule through its due periods up to today.
// Returns ErrTickInProgress when another pass is still running.
func (g *Generator) Tick(ctx context.Context) (TickResult, error) {
	if !g.mu.TryLock() {
		return TickResult{}, ledger.ErrTickInProgress
	}
	defer g.mu.Unlock()

	var result TickResult

	rules, err := g.Rules.ListRules(ctx)
	if err != nil {
		return result, fmt.Errorf("%w: list rules: %v", ledger.ErrStore, err)
	}

	today := ledger.Today(g.Clock)
	for _, rule := range rules {
		if err := g.catchUp(ctx, rule, today, &result); err != nil {
			log.Printf("[Recurring] rule %s (%s): %v", rule.ID, rule.Cadence, err)
			result.Errors = append(result.Errors, err)
		}
	}
	return result, nil
}

func (g *Generator) catchUp(ctx context.Context, rule ledger.RecurringRule, today ledger.Date, result *TickResult) error {
	anchor := rule.AnchorDate

	for i := 0; i < maxCatchUpPerTick; i++ {
		candidate := rule.Cadence.Next(anchor)
		if candidate.After(today) {
			return nil
		}

		dup, err := g.Detector.FindDuplicate(ctx, rule.Amount, candidate, rule.Direction, rule.EntryDescription())
		if err != nil {
			return fmt.Errorf("%w: duplicate check at %s: %v", ledger.ErrStore, candidate, err)
		}

		if dup == nil {
			entry := ledger.Entry{
				Direction:       rule.Direction,
				Amount:          rule.Amount,
				OccurredOn:      candidate,
				Description:     rule.EntryDescription(),
				CategoryLabel:   rule.CategoryLabel,
				Settled:         false,
				RecurringRuleID: rule.ID,
			}
			if _, err := g.Store.Insert(ctx, entry); err != nil {
				return fmt.Errorf("%w: insert occurrence at %s: %v", ledger.ErrStore, candidate, err)
			}
			result.Generated++
			metrics.RecurringTicks.WithLabelValues("generated").Inc()
		} else {
			result.Skipped++
			metrics.RecurringTicks.WithLabelValues("skipped").Inc()
		}

		// Advance the high-water mark even when generation was skipped.
		if err := g.Rules.UpdateAnchor(ctx, rule.ID, candidate); err != nil {
			return fmt.Errorf("%w: advance anchor to %s: %v", ledger.ErrStore, candidate, err)
		}
		anchor = candidate
	}
	return nil
}
