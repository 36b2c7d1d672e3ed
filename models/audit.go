package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditEventType string

const (
	AuditResultSubmit      AuditEventType = "result_submit"
	AuditResultApprove     AuditEventType = "result_approve"
	AuditResultReject      AuditEventType = "result_reject"
	AuditResultDispute     AuditEventType = "result_dispute"
	AuditResultInfoRequest AuditEventType = "result_info_request"
	AuditResultReopen      AuditEventType = "result_reopen"
	AuditEloUpdate         AuditEventType = "elo_update"
	AuditLeaderboardUpdate AuditEventType = "leaderboard_update"
	AuditHashGenerate      AuditEventType = "hash_generate"
	AuditHashTampered      AuditEventType = "hash_tampered"
)

// AuditLog — запись журнала аудита. Журнал только дописывается,
// записи не изменяются и не удаляются.
type AuditLog struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	EventType    AuditEventType `json:"event_type" db:"event_type"`
	Actor        string         `json:"actor" db:"actor"`
	ResourceType string         `json:"resource_type" db:"resource_type"`
	ResourceID   uuid.UUID      `json:"resource_id" db:"resource_id"`
	TournamentID *uuid.UUID     `json:"tournament_id,omitempty" db:"tournament_id"`
	OldValues    map[string]any `json:"old_values,omitempty" db:"old_values"`
	NewValues    map[string]any `json:"new_values,omitempty" db:"new_values"`
	Hash         string         `json:"hash" db:"hash"`
	Timestamp    time.Time      `json:"timestamp" db:"timestamp"`
}
