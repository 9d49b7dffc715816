// Package store provides an in-memory Store/RuleStore implementation
// for testing and dev mode.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/bookkeeper/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	entries map[string]ledger.Entry
	rules   map[string]ledger.RecurringRule
	clock   ledger.Clock
}

func NewMemory(clock ledger.Clock) *Memory {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &Memory{
		entries: make(map[string]ledger.Entry),
		rules:   make(map[string]ledger.RecurringRule),
		clock:   clock,
	}
}

// Insert assigns an ID (and CreatedAt when unset, so tests can backdate
// entries for window checks) and stores a copy.
func (m *Memory) Insert(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.clock.Now()
	}
	m.entries[e.ID] = cloneEntry(e)
	return e, nil
}

func (m *Memory) Update(_ context.Context, id string, patch ledger.EntryPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ledger.ErrEntryNotFound
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.CategoryLabel != nil {
		e.CategoryLabel = *patch.CategoryLabel
	}
	if patch.Settled != nil {
		e.Settled = *patch.Settled
	}
	if patch.External != nil {
		e.External = cloneRef(patch.External)
	}
	m.entries[id] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *Memory) FindByID(_ context.Context, id string) (ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return cloneEntry(e), nil
}

func (m *Memory) FindByPrimaryRef(_ context.Context, primaryID string) (ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.sorted() {
		if e.External != nil && e.External.PrimaryID == primaryID {
			return cloneEntry(e), nil
		}
	}
	return ledger.Entry{}, ledger.ErrEntryNotFound
}

func (m *Memory) FindBySecondaryRef(_ context.Context, secondaryRef string) (ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.sorted() {
		if e.External != nil && e.External.SecondaryRef == secondaryRef {
			return cloneEntry(e), nil
		}
	}
	return ledger.Entry{}, ledger.ErrEntryNotFound
}

func (m *Memory) Scan(_ context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Entry
	for _, e := range m.sorted() {
		if filter.Matches(e) {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

// sorted returns entries in deterministic CreatedAt-then-ID order so
// scans and ref lookups behave the same across runs.
func (m *Memory) sorted() []ledger.Entry {
	out := make([]ledger.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// RULE STORE
// =============================================================================

func (m *Memory) PutRule(r ledger.RecurringRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	m.rules[r.ID] = r
}

func (m *Memory) ListRules(_ context.Context) ([]ledger.RecurringRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.RecurringRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpdateAnchor(_ context.Context, ruleID string, anchor ledger.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[ruleID]
	if !ok {
		return ledger.ErrRuleNotFound
	}
	r.AnchorDate = anchor
	m.rules[ruleID] = r
	return nil
}

// GetRule returns a rule by id. Test helper.
func (m *Memory) GetRule(id string) (ledger.RecurringRule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	return r, ok
}

// Len returns the number of stored entries. Test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cloneEntry(e ledger.Entry) ledger.Entry {
	e.External = cloneRef(e.External)
	return e
}

func cloneRef(r *ledger.ExternalRef) *ledger.ExternalRef {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
