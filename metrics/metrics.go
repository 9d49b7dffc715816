// Package metrics exposes Prometheus instrumentation for the engine.
// Counters are registered via promauto on the default registry and
// served by the api package at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts reconciliation passes by outcome (ok, fetch_error).
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookkeeper_sync_runs_total",
		Help: "Reconciliation passes by outcome.",
	}, []string{"outcome"})

	// EntriesMutated counts ledger mutations applied by the reconciler.
	EntriesMutated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookkeeper_entries_mutated_total",
		Help: "Ledger entry mutations by kind (created, updated, deleted).",
	}, []string{"kind"})

	// SyncDocumentErrors counts per-document failures inside a sync pass.
	SyncDocumentErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookkeeper_sync_document_errors_total",
		Help: "Documents skipped due to per-document errors.",
	})

	// GhostsCollected counts entries removed by the garbage collector.
	GhostsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookkeeper_ghosts_collected_total",
		Help: "Mirrored entries removed by the GC, by reason (ghost, corrupt).",
	}, []string{"reason"})

	// RecurringTicks counts generator outcomes per rule occurrence.
	RecurringTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookkeeper_recurring_occurrences_total",
		Help: "Recurring occurrences by outcome (generated, skipped).",
	}, []string{"outcome"})

	// DedupeRemoved counts entries removed by the deduplication pass.
	DedupeRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookkeeper_dedupe_removed_total",
		Help: "Duplicate mirrored entries removed by maintenance dedupe.",
	})
)
