/*
dedupe.go - Maintenance pass collapsing duplicate mirrors

Groups mirrored entries by external primary id; any group with more
than one member keeps the entry with the latest CreatedAt and deletes
the rest. Explicitly user-triggered, never run during sync: it is a
corrective tool for drift left behind by concurrent or historical bugs,
not a steady-state invariant.
*/
package recon

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/warp/bookkeeper/ledger"
	"github.com/warp/bookkeeper/metrics"
)

// =============================================================================
// DEDUPLICATOR
// =============================================================================

type Deduplicator struct {
	Store ledger.Store
}

// Dedupe removes redundant mirrors and returns how many entries were
// deleted. Safe to re-run; a second pass removes nothing.
func (d *Deduplicator) Dedupe(ctx context.Context) (int, error) {
	mirrored := true
	entries, err := d.Store.Scan(ctx, ledger.EntryFilter{Mirrored: &mirrored})
	if err != nil {
		return 0, fmt.Errorf("%w: dedupe scan: %v", ledger.ErrStore, err)
	}

	groups := make(map[string][]ledger.Entry)
	for _, e := range entries {
		if e.External.PrimaryID == "" {
			continue
		}
		groups[e.External.PrimaryID] = append(groups[e.External.PrimaryID], e)
	}

	removed := 0
	for primaryID, group := range groups {
		if len(group) < 2 {
			continue
		}
		// Keep-newest policy: the most recent mirror reflects the latest
		// provider state; older ones are leftovers.
		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.After(group[j].CreatedAt)
			}
			return group[i].ID < group[j].ID
		})
		for _, loser := range group[1:] {
			if err := d.Store.Delete(ctx, loser.ID); err != nil {
				return removed, fmt.Errorf("%w: dedupe delete %s: %v", ledger.ErrStore, loser.ID, err)
			}
			log.Printf("[Dedupe] removed entry %s (duplicate of primary id %q)", loser.ID, primaryID)
			removed++
			metrics.DedupeRemoved.Inc()
		}
	}
	return removed, nil
}
