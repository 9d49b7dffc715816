/*
dto.go - Data Transfer Objects for API requests and responses

DTOs decouple the internal domain model from the JSON surface. DTOs are
pure data carriers; validation happens in handlers.
*/
package api

import (
	"github.com/warp/bookkeeper/ledger"
	"github.com/warp/bookkeeper/recon"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID              string             `json:"id"`
	Direction       string             `json:"direction"`
	Amount          string             `json:"amount"`
	OccurredOn      string             `json:"occurred_on"`
	Description     string             `json:"description"`
	CategoryLabel   string             `json:"category_label"`
	Settled         bool               `json:"settled"`
	External        *ExternalRefDTO    `json:"external,omitempty"`
	RecurringRuleID string             `json:"recurring_rule_id,omitempty"`
	CreatedAt       string             `json:"created_at"`
}

type ExternalRefDTO struct {
	PrimaryID    string            `json:"primary_id"`
	SecondaryRef string            `json:"secondary_ref"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// RuleDTO represents a recurring rule in API responses.
type RuleDTO struct {
	ID            string `json:"id"`
	Direction     string `json:"direction"`
	Amount        string `json:"amount"`
	CategoryLabel string `json:"category_label"`
	Description   string `json:"description"`
	Cadence       string `json:"cadence"`
	AnchorDate    string `json:"anchor_date"`
}

// SyncResponseDTO summarizes a reconciliation pass.
type SyncResponseDTO struct {
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Deleted   int      `json:"deleted"`
	Errors    []string `json:"errors"`
}

// TickResponseDTO summarizes a recurring-generator pass.
type TickResponseDTO struct {
	Generated int      `json:"generated"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// DedupeResponseDTO summarizes a maintenance dedupe pass.
type DedupeResponseDTO struct {
	Removed int `json:"removed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toEntryDTO(e ledger.Entry) EntryDTO {
	dto := EntryDTO{
		ID:              e.ID,
		Direction:       string(e.Direction),
		Amount:          e.Amount.String(),
		OccurredOn:      e.OccurredOn.String(),
		Description:     e.Description,
		CategoryLabel:   e.CategoryLabel,
		Settled:         e.Settled,
		RecurringRuleID: e.RecurringRuleID,
		CreatedAt:       e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if e.External != nil {
		dto.External = &ExternalRefDTO{
			PrimaryID:    e.External.PrimaryID,
			SecondaryRef: e.External.SecondaryRef,
			Status:       e.External.Status,
			Metadata:     e.External.Metadata,
		}
	}
	return dto
}

func toRuleDTO(r ledger.RecurringRule) RuleDTO {
	return RuleDTO{
		ID:            r.ID,
		Direction:     string(r.Direction),
		Amount:        r.Amount.String(),
		CategoryLabel: r.CategoryLabel,
		Description:   r.Description,
		Cadence:       r.Cadence.String(),
		AnchorDate:    r.AnchorDate.String(),
	}
}

func toSyncDTO(res recon.SyncResult) SyncResponseDTO {
	return SyncResponseDTO{
		Processed: res.Processed,
		Created:   res.Created,
		Updated:   res.Updated,
		Deleted:   res.Deleted,
		Errors:    errorStrings(res.Errors),
	}
}

func toTickDTO(res recon.TickResult) TickResponseDTO {
	return TickResponseDTO{
		Generated: res.Generated,
		Skipped:   res.Skipped,
		Errors:    errorStrings(res.Errors),
	}
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}
