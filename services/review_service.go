package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/Dosada05/result-integrity/integrity"
	"github.com/Dosada05/result-integrity/live"
	"github.com/Dosada05/result-integrity/models"
	"github.com/Dosada05/result-integrity/repositories"
	"github.com/Dosada05/result-integrity/storage"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Формат счёта: "3-1", "11-9" и т.п.
var scorePattern = regexp.MustCompile(`^\d{1,3}-\d{1,3}$`)

type SubmitResultInput struct {
	MatchID      uuid.UUID              `json:"match_id"`
	TournamentID uuid.UUID              `json:"tournament_id"`
	WinnerID     uuid.UUID              `json:"winner_id"`
	LoserID      uuid.UUID              `json:"loser_id"`
	Score        string                 `json:"score"`
	GameScores   []string               `json:"game_scores"`
	Importance   models.MatchImportance `json:"importance"`
	SubmittedBy  string                 `json:"submitted_by"`
	Evidence     []EvidenceUpload       `json:"-"`
}

type EvidenceUpload struct {
	Filename    string
	ContentType string
	Reader      io.Reader
}

// ResultService управляет жизненным циклом результата до и после
// утверждения. Само утверждение проводит Coordinator.
type ResultService interface {
	Submit(ctx context.Context, input SubmitResultInput) (*models.MatchResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.MatchResult, error)
	ListByTournament(ctx context.Context, tournamentID uuid.UUID, status *models.ResultStatus) ([]*models.MatchResult, error)
	Reject(ctx context.Context, resultID uuid.UUID, reviewer *models.User, reason string) (*models.MatchResult, error)
	RequestInfo(ctx context.Context, resultID uuid.UUID, reviewer *models.User, note string) (*models.MatchResult, error)
	Dispute(ctx context.Context, resultID uuid.UUID, actor string, reason string) (*models.MatchResult, error)
	Reopen(ctx context.Context, resultID uuid.UUID, reviewer *models.User) (*models.MatchResult, error)
}

type resultService struct {
	resultRepo     repositories.ResultRepository
	tournamentRepo repositories.TournamentRepository
	audit          AuditService
	notifier       Notifier
	uploader       storage.FileUploader
	hub            *live.Hub
	logger         *slog.Logger
	disputeWindow  time.Duration

	now func() time.Time
}

func NewResultService(
	resultRepo repositories.ResultRepository,
	tournamentRepo repositories.TournamentRepository,
	audit AuditService,
	notifier Notifier,
	uploader storage.FileUploader,
	hub *live.Hub,
	logger *slog.Logger,
	disputeWindow time.Duration,
) ResultService {
	return &resultService{
		resultRepo:     resultRepo,
		tournamentRepo: tournamentRepo,
		audit:          audit,
		notifier:       notifier,
		uploader:       uploader,
		hub:            hub,
		logger:         logger,
		disputeWindow:  disputeWindow,
		now:            time.Now,
	}
}

func validateSubmitInput(input SubmitResultInput) error {
	if input.MatchID == uuid.Nil || input.TournamentID == uuid.Nil ||
		input.WinnerID == uuid.Nil || input.LoserID == uuid.Nil || input.SubmittedBy == "" {
		return ErrResultFieldsRequired
	}
	if input.WinnerID == input.LoserID {
		return ErrResultSameTeams
	}
	if !scorePattern.MatchString(input.Score) {
		return ErrResultScoreInvalid
	}
	for _, gs := range input.GameScores {
		if !scorePattern.MatchString(gs) {
			return ErrResultScoreInvalid
		}
	}
	if input.Importance != "" && !input.Importance.Valid() {
		return ErrResultImportance
	}
	return nil
}

// Submit валидирует результат, считает исходный дайджест, загружает
// доказательства и ставит запись в очередь проверки. До прохождения
// валидации ничего не сохраняется.
func (s *resultService) Submit(ctx context.Context, input SubmitResultInput) (*models.MatchResult, error) {
	if err := validateSubmitInput(input); err != nil {
		return nil, err
	}

	if _, err := s.tournamentRepo.GetByID(ctx, nil, input.TournamentID); err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	importance := input.Importance
	if importance == "" {
		importance = models.ImportanceRegular
	}

	now := s.now().UTC()
	result := &models.MatchResult{
		ID:           uuid.New(),
		MatchID:      input.MatchID,
		TournamentID: input.TournamentID,
		WinnerID:     input.WinnerID,
		LoserID:      input.LoserID,
		Score:        input.Score,
		GameScores:   pq.StringArray(input.GameScores),
		Importance:   importance,
		Status:       models.ResultStatusPendingReview,
		SubmittedBy:  input.SubmittedBy,
		SubmittedAt:  now,
		HashVerified: true,
	}

	for i, ev := range input.Evidence {
		key := fmt.Sprintf("evidence/%s/%d_%s", result.ID, i, ev.Filename)
		uploaded, err := s.uploader.Upload(ctx, key, ev.ContentType, ev.Reader)
		if err != nil {
			return nil, fmt.Errorf("%w: evidence upload: %w", ErrDependencyUnavailable, err)
		}
		result.EvidenceKeys = append(result.EvidenceKeys, uploaded.Key)
	}

	// Дайджест считается по финальному содержимому записи.
	result.OriginalHash = integrity.Compute(result)

	if err := s.resultRepo.Create(ctx, nil, result); err != nil {
		if errors.Is(err, repositories.ErrResultMatchConflict) {
			return nil, ErrResultAlreadySubmitted
		}
		return nil, err
	}

	if err := s.audit.Record(ctx, nil, &models.AuditLog{
		EventType:    models.AuditResultSubmit,
		Actor:        input.SubmittedBy,
		ResourceType: "match_result",
		ResourceID:   result.ID,
		TournamentID: &result.TournamentID,
		NewValues: map[string]any{
			"status": string(result.Status),
			"hash":   result.OriginalHash,
			"score":  result.Score,
		},
	}); err != nil {
		// Подача уже зафиксирована; сбой аудита логируем, но не откатываем.
		s.logger.Error("failed to audit result submission",
			slog.String("result_id", result.ID.String()), slog.Any("error", err))
	}

	s.notifier.Notify(NotifyResultSubmitted, s.captainEmails(ctx, result), map[string]any{
		"MatchID": result.MatchID.String(),
		"Score":   result.Score,
	})

	s.broadcastStatus(result)
	s.populateEvidenceURLs(result)
	return result, nil
}

// GetByID перечитывает запись и сверяет дайджест: hash_verified отражает
// текущее состояние, несовпадение помечается, но не исправляется.
func (s *resultService) GetByID(ctx context.Context, id uuid.UUID) (*models.MatchResult, error) {
	result, err := s.resultRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repositories.ErrResultNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}

	current, ok := integrity.Verify(result)
	if ok != result.HashVerified {
		if err := s.resultRepo.SetHashVerified(ctx, nil, result.ID, ok); err != nil {
			s.logger.Error("failed to update hash_verified flag",
				slog.String("result_id", result.ID.String()), slog.Any("error", err))
		}
		result.HashVerified = ok
	}
	if !ok {
		s.logger.Warn("hash mismatch on read",
			slog.String("result_id", result.ID.String()),
			slog.String("current_hash", current))
	}

	s.populateEvidenceURLs(result)
	return result, nil
}

func (s *resultService) ListByTournament(ctx context.Context, tournamentID uuid.UUID, status *models.ResultStatus) ([]*models.MatchResult, error) {
	results, err := s.resultRepo.ListByTournament(ctx, nil, tournamentID, status)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		s.populateEvidenceURLs(r)
	}
	return results, nil
}

// Reject отклоняет результат. Причина обязательна; рейтинги не трогаются.
func (s *resultService) Reject(ctx context.Context, resultID uuid.UUID, reviewer *models.User, reason string) (*models.MatchResult, error) {
	if reason == "" {
		return nil, ErrRejectReasonRequired
	}
	return s.transition(ctx, resultID, models.ResultStatusPendingReview, models.ResultStatusRejected,
		reviewer, &reason, models.AuditResultReject, NotifyResultRejected)
}

// RequestInfo — self-loop: статус не меняется, заметка фиксируется.
func (s *resultService) RequestInfo(ctx context.Context, resultID uuid.UUID, reviewer *models.User, note string) (*models.MatchResult, error) {
	return s.transition(ctx, resultID, models.ResultStatusPendingReview, models.ResultStatusPendingReview,
		reviewer, &note, models.AuditResultInfoRequest, NotifyInfoRequested)
}

// Dispute переводит утверждённый результат в disputed, пока не истекло
// окно оспаривания, отсчитываемое от момента утверждения.
func (s *resultService) Dispute(ctx context.Context, resultID uuid.UUID, actor string, reason string) (*models.MatchResult, error) {
	result, err := s.resultRepo.GetByID(ctx, nil, resultID)
	if err != nil {
		if errors.Is(err, repositories.ErrResultNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	if result.Status != models.ResultStatusApproved {
		return nil, ErrResultNotDisputable
	}
	if result.ReviewedAt != nil && s.now().After(result.ReviewedAt.Add(s.disputeWindow)) {
		return nil, ErrDisputeWindowClosed
	}

	oldStatus := result.Status
	result.Status = models.ResultStatusDisputed
	result.ReviewNotes = &reason

	if err := s.resultRepo.UpdateReview(ctx, nil, result); err != nil {
		return nil, err
	}

	if err := s.audit.Record(ctx, nil, &models.AuditLog{
		EventType:    models.AuditResultDispute,
		Actor:        actor,
		ResourceType: "match_result",
		ResourceID:   result.ID,
		TournamentID: &result.TournamentID,
		OldValues:    map[string]any{"status": string(oldStatus)},
		NewValues:    map[string]any{"status": string(result.Status), "reason": reason},
	}); err != nil {
		s.logger.Error("failed to audit dispute",
			slog.String("result_id", result.ID.String()), slog.Any("error", err))
	}

	s.notifier.Notify(NotifyDisputeOpened, s.captainEmails(ctx, result), map[string]any{
		"MatchID": result.MatchID.String(),
		"Reason":  reason,
	})
	s.broadcastStatus(result)
	return result, nil
}

// Reopen возвращает оспоренный результат в новую итерацию проверки.
func (s *resultService) Reopen(ctx context.Context, resultID uuid.UUID, reviewer *models.User) (*models.MatchResult, error) {
	return s.transition(ctx, resultID, models.ResultStatusDisputed, models.ResultStatusPendingReview,
		reviewer, nil, models.AuditResultReopen, "")
}

// transition выполняет один переход состояния с проверкой текущего статуса.
func (s *resultService) transition(
	ctx context.Context,
	resultID uuid.UUID,
	from, to models.ResultStatus,
	reviewer *models.User,
	note *string,
	auditType models.AuditEventType,
	notifyEvent string,
) (*models.MatchResult, error) {
	result, err := s.resultRepo.GetByID(ctx, nil, resultID)
	if err != nil {
		if errors.Is(err, repositories.ErrResultNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}

	if result.Status != from {
		if result.Status == models.ResultStatusApproved {
			return nil, ErrApprovalConflict
		}
		return nil, ErrResultNotReviewable
	}

	now := s.now().UTC()
	oldStatus := result.Status
	result.Status = to
	// Запрос уточнений не меняет статус и решением не является: отметка
	// ReviewedBy/ReviewedAt ставится только на реальном переходе.
	if to != from {
		result.ReviewedBy = &reviewer.ID
		result.ReviewedAt = &now
	}
	if note != nil {
		result.ReviewNotes = note
	}

	if err := s.resultRepo.UpdateReview(ctx, nil, result); err != nil {
		return nil, err
	}

	entry := &models.AuditLog{
		EventType:    auditType,
		Actor:        reviewer.Email,
		ResourceType: "match_result",
		ResourceID:   result.ID,
		TournamentID: &result.TournamentID,
		OldValues:    map[string]any{"status": string(oldStatus)},
		NewValues:    map[string]any{"status": string(to)},
	}
	if note != nil {
		entry.NewValues["note"] = *note
	}
	if err := s.audit.Record(ctx, nil, entry); err != nil {
		s.logger.Error("failed to audit review transition",
			slog.String("result_id", result.ID.String()), slog.Any("error", err))
	}

	if notifyEvent != "" {
		payload := map[string]any{"MatchID": result.MatchID.String()}
		if note != nil {
			payload["Reason"] = *note
		}
		s.notifier.Notify(notifyEvent, s.captainEmails(ctx, result), payload)
	}

	s.broadcastStatus(result)
	return result, nil
}

func (s *resultService) captainEmails(ctx context.Context, result *models.MatchResult) []string {
	var recipients []string
	for _, id := range []uuid.UUID{result.WinnerID, result.LoserID} {
		team, err := s.tournamentRepo.GetTeam(ctx, nil, id)
		if err != nil || team.CaptainEmail == "" {
			continue
		}
		recipients = append(recipients, team.CaptainEmail)
	}
	return recipients
}

func (s *resultService) broadcastStatus(result *models.MatchResult) {
	s.hub.BroadcastToRoom(result.TournamentID.String(), live.Message{
		Type: live.EventResultStatus,
		Payload: map[string]any{
			"result_id": result.ID,
			"status":    result.Status,
		},
	})
}

func (s *resultService) populateEvidenceURLs(result *models.MatchResult) {
	if s.uploader == nil {
		return
	}
	for _, key := range result.EvidenceKeys {
		if url := s.uploader.GetPublicURL(key); url != "" {
			result.EvidenceURLs = append(result.EvidenceURLs, url)
		}
	}
}
