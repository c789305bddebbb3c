package models

import (
	"time"

	"github.com/google/uuid"
)

type SyncStatus string

const (
	StatusPending        SyncStatus = "pending"
	StatusSuccess        SyncStatus = "success"
	StatusSkipped        SyncStatus = "skipped"
	StatusPartialSuccess SyncStatus = "partial_success"
	StatusFailed         SyncStatus = "failed"
)

func (s SyncStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusSkipped, StatusPartialSuccess, StatusFailed:
		return true
	}
	return false
}

// SyncHistoryRecord is one processing attempt of one event.
type SyncHistoryRecord struct {
	ID              uuid.UUID      `json:"id"`
	TenantID        uuid.UUID      `json:"tenant_id"`
	EventType       EventType      `json:"event_type"`
	ProviderEventID string         `json:"provider_event_id"`
	LedgerEntityID  *string        `json:"ledger_entity_id,omitempty"`
	Status          SyncStatus     `json:"status"`
	Message         string         `json:"message"`
	Detail          map[string]any `json:"detail,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       *time.Time     `json:"updated_at,omitempty"`
}

type HistoryFilter struct {
	TenantID  uuid.UUID
	Status    SyncStatus
	EventType EventType
	Limit     int
}
