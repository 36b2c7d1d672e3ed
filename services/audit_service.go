package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dosada05/result-integrity/models"
	"github.com/Dosada05/result-integrity/repositories"
	"github.com/google/uuid"
)

// AuditService пишет записи журнала. Record возвращает ошибку, пока запись
// не подтверждена хранилищем: шаг пайплайна не считается залогированным
// без подтверждения долговечности.
type AuditService interface {
	Record(ctx context.Context, exec repositories.SQLExecutor, entry *models.AuditLog) error
	ListByTournament(ctx context.Context, tournamentID uuid.UUID, limit int) ([]*models.AuditLog, error)
	ListByResult(ctx context.Context, resultID uuid.UUID) ([]*models.AuditLog, error)
}

type auditService struct {
	auditRepo repositories.AuditRepository
}

func NewAuditService(auditRepo repositories.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

func (s *auditService) Record(ctx context.Context, exec repositories.SQLExecutor, entry *models.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.Hash = entryDigest(entry)

	if err := s.auditRepo.Append(ctx, exec, entry); err != nil {
		return fmt.Errorf("%w: audit append: %w", ErrDependencyUnavailable, err)
	}
	return nil
}

func (s *auditService) ListByTournament(ctx context.Context, tournamentID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	return s.auditRepo.ListByTournament(ctx, nil, tournamentID, limit)
}

func (s *auditService) ListByResult(ctx context.Context, resultID uuid.UUID) ([]*models.AuditLog, error) {
	return s.auditRepo.ListByResource(ctx, nil, "match_result", resultID)
}

// entryDigest — контрольный дайджест записи журнала по фиксированному
// набору полей.
func entryDigest(entry *models.AuditLog) string {
	canonical := struct {
		ID           string         `json:"id"`
		EventType    string         `json:"event_type"`
		Actor        string         `json:"actor"`
		ResourceType string         `json:"resource_type"`
		ResourceID   string         `json:"resource_id"`
		OldValues    map[string]any `json:"old_values"`
		NewValues    map[string]any `json:"new_values"`
		Timestamp    string         `json:"timestamp"`
	}{
		ID:           entry.ID.String(),
		EventType:    string(entry.EventType),
		Actor:        entry.Actor,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID.String(),
		OldValues:    entry.OldValues,
		NewValues:    entry.NewValues,
		Timestamp:    entry.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(canonical)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
