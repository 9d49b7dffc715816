/*
handlers.go - HTTP handlers exposing the engine operations

The engine itself is in-process; these handlers are the host surface
that lets a cron job or the UI trigger a pass:

  POST /api/sync               Full reconciliation against the provider
  POST /api/recurring/tick     Recurring-rule catch-up
  POST /api/maintenance/dedupe Collapse duplicate mirrors
  GET  /api/entries            Ledger listing (debugging/UI support)
  GET  /api/rules              Rule listing
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/bookkeeper/ledger"
	"github.com/warp/bookkeeper/recon"
)

// Handler holds the engine components and their shared store.
type Handler struct {
	Store        ledger.Store
	Rules        ledger.RuleStore
	Reconciler   *recon.Reconciler
	Generator    *recon.Generator
	Deduplicator *recon.Deduplicator
}

func NewHandler(store ledger.Store, rules ledger.RuleStore, reconciler *recon.Reconciler, generator *recon.Generator) *Handler {
	return &Handler{
		Store:        store,
		Rules:        rules,
		Reconciler:   reconciler,
		Generator:    generator,
		Deduplicator: &recon.Deduplicator{Store: store},
	}
}

// =============================================================================
// ENGINE TRIGGERS
// =============================================================================

// RunSync triggers a full reconciliation pass.
func (h *Handler) RunSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.Reconciler.Sync(r.Context())
	if err != nil {
		if ledger.IsFetchFailure(err) {
			// No data was lost; the pass simply could not run.
			writeError(w, http.StatusBadGateway, "could not refresh invoices", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "sync failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSyncDTO(result))
}

// RunTick triggers a recurring-generator pass.
func (h *Handler) RunTick(w http.ResponseWriter, r *http.Request) {
	result, err := h.Generator.Tick(r.Context())
	if err != nil {
		if errors.Is(err, ledger.ErrTickInProgress) {
			writeError(w, http.StatusConflict, "a recurring pass is already running", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "recurring tick failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toTickDTO(result))
}

// RunDedupe triggers the maintenance deduplication pass.
func (h *Handler) RunDedupe(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Deduplicator.Dedupe(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "dedupe failed", err)
		return
	}
	writeJSON(w, http.StatusOK, DedupeResponseDTO{Removed: removed})
}

// =============================================================================
// READ ENDPOINTS
// =============================================================================

// ListEntries returns the whole ledger, optionally filtered by
// ?direction= and ?mirrored=.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	var filter ledger.EntryFilter
	if v := r.URL.Query().Get("direction"); v != "" {
		d := ledger.Direction(v)
		filter.Direction = &d
	}
	if v := r.URL.Query().Get("mirrored"); v != "" {
		mirrored := v == "true"
		filter.Mirrored = &mirrored
	}

	entries, err := h.Store.Scan(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list entries", err)
		return
	}

	dtos := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListRules returns every recurring rule.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Rules.ListRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	dtos := make([]RuleDTO, 0, len(rules))
	for _, rule := range rules {
		dtos = append(dtos, toRuleDTO(rule))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
