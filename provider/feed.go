package provider

import (
	"context"
	"time"
)

// =============================================================================
// FEED - Read-only document source
// =============================================================================

// Feed lists the provider's current documents.
//
// A failed fetch MUST propagate as an error, never as an empty list:
// the garbage collector interprets the returned set as authoritative
// inside its safety window, and an artificially empty set would trigger
// mass ghost deletion.
type Feed interface {
	// ListDocuments returns the provider's documents, optionally limited
	// to those issued at or after since.
	ListDocuments(ctx context.Context, since *time.Time) ([]Document, error)
}

// StaticFeed serves a fixed document slice. For tests and dev mode.
type StaticFeed struct {
	Documents []Document

	// Err, when set, is returned instead of the documents.
	Err error
}

func (f *StaticFeed) ListDocuments(_ context.Context, since *time.Time) ([]Document, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if since == nil {
		out := make([]Document, len(f.Documents))
		copy(out, f.Documents)
		return out, nil
	}
	var out []Document
	for _, d := range f.Documents {
		if !d.IssuedAt.Before(*since) {
			out = append(out, d)
		}
	}
	return out, nil
}
