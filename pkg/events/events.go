// Package events defines the messages published to Kafka after an audit write.
package events

import (
	"time"

	"sme-plug-go/internal/model"
)

// AuditEvent is a compact notification that an audit entry was persisted.
// Consumers fetch the full entry through the audit API when they need it.
type AuditEvent struct {
	QueryID            string         `json:"query_id"`
	TenantID           string         `json:"tenant_id"`
	PersonaID          string         `json:"persona_id"`
	Decision           model.Decision `json:"decision"`
	BlockReason        string         `json:"block_reason,omitempty"`
	CitationCount      int            `json:"citation_count"`
	HallucinationScore float64        `json:"hallucination_score"`
	TotalDurationMs    int64          `json:"total_duration_ms"`
	Timestamp          time.Time      `json:"timestamp"`
	Digest             string         `json:"digest"`
}

// NewAuditEvent builds the event for a persisted entry.
func NewAuditEvent(e *model.AuditEntry) AuditEvent {
	return AuditEvent{
		QueryID:            e.QueryID,
		TenantID:           e.TenantID,
		PersonaID:          e.PersonaID,
		Decision:           e.Decision,
		BlockReason:        e.BlockReason,
		CitationCount:      e.CitationCount,
		HallucinationScore: e.HallucinationScore,
		TotalDurationMs:    e.TotalDurationMs,
		Timestamp:          e.Timestamp,
		Digest:             e.Digest,
	}
}
