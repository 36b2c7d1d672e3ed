package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/result-integrity/elo"
	"github.com/Dosada05/result-integrity/integrity"
	"github.com/Dosada05/result-integrity/leaderboard"
	"github.com/Dosada05/result-integrity/live"
	"github.com/Dosada05/result-integrity/models"
	"github.com/Dosada05/result-integrity/repositories"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const batchApproveConcurrency = 4

// PipelineConfig — параметры пересчёта, приходящие из конфигурации.
type PipelineConfig struct {
	Bounds        elo.Bounds
	InitialElo    int
	KFactors      map[models.MatchImportance]int
	Policy        leaderboard.Policy
	DisputeWindow time.Duration
	// Получатели тревог о нарушении целостности.
	AlertRecipients []string
}

// Coordinator последовательно проводит утверждение результата:
// проверка дайджеста -> пересчёт ELO -> запись рейтингов -> снимок таблицы ->
// записи аудита -> уведомления. Запись рейтингов, снимок и аудит фиксируются
// одной транзакцией; при любом сбое статус результата остаётся pending_review.
type Coordinator struct {
	db              *sql.DB
	resultRepo      repositories.ResultRepository
	ratingRepo      repositories.EloRatingRepository
	leaderboardRepo repositories.LeaderboardRepository
	tournamentRepo  repositories.TournamentRepository
	audit           AuditService
	notifier        Notifier
	hub             *live.Hub
	logger          *slog.Logger
	cfg             PipelineConfig

	// Жизненный цикл одного результата строго последователен.
	resultLocks keyedMutex
	// Пересчёт таблицы лидеров сериализуется по турниру.
	tournamentLocks keyedMutex

	now func() time.Time
}

func NewCoordinator(
	db *sql.DB,
	resultRepo repositories.ResultRepository,
	ratingRepo repositories.EloRatingRepository,
	leaderboardRepo repositories.LeaderboardRepository,
	tournamentRepo repositories.TournamentRepository,
	audit AuditService,
	notifier Notifier,
	hub *live.Hub,
	logger *slog.Logger,
	cfg PipelineConfig,
) *Coordinator {
	return &Coordinator{
		db:              db,
		resultRepo:      resultRepo,
		ratingRepo:      ratingRepo,
		leaderboardRepo: leaderboardRepo,
		tournamentRepo:  tournamentRepo,
		audit:           audit,
		notifier:        notifier,
		hub:             hub,
		logger:          logger,
		cfg:             cfg,
		now:             time.Now,
	}
}

// keyedMutex выдаёт мьютекс на строковый ключ (ID результата или турнира).
// Записи учитываются по числу держателей и удаляются на последнем unlock,
// иначе карта росла бы на каждый новый ID без ограничения.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// len возвращает число живых записей, нужен тестам.
func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Approve утверждает один результат. Новый снимок таблицы лидеров входит
// в ту же транзакцию: при сбое пересчёта утверждение откатывается целиком,
// статус остаётся pending_review.
func (c *Coordinator) Approve(ctx context.Context, resultID uuid.UUID, reviewer *models.User, notes *string) (*models.MatchResult, error) {
	result, _, err := c.approveOne(ctx, resultID, reviewer, notes, true)
	if err != nil {
		return nil, err
	}

	c.notifyApproved(result)
	return result, nil
}

// BatchItem — итог обработки одного результата в пакете.
type BatchItem struct {
	ResultID uuid.UUID `json:"result_id"`
	Approved bool      `json:"approved"`
	Code     string    `json:"code,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type BatchOutcome struct {
	TournamentID uuid.UUID   `json:"tournament_id"`
	Items        []BatchItem `json:"items"`
	ApprovedN    int         `json:"approved_count"`
	FailedN      int         `json:"failed_count"`
}

// BatchApprove утверждает каждый результат независимо: отказ по одному
// элементу не прерывает пакет, а собирается в пер-элементный отчёт. Таблица
// лидеров пересчитывается один раз после всего пакета — это сознательный
// размен консистентности промежуточных снимков на производительность,
// на корректность итогового снимка он не влияет.
func (c *Coordinator) BatchApprove(ctx context.Context, tournamentID uuid.UUID, resultIDs []uuid.UUID, reviewer *models.User) (*BatchOutcome, error) {
	outcome := &BatchOutcome{
		TournamentID: tournamentID,
		Items:        make([]BatchItem, len(resultIDs)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchApproveConcurrency)

	var approved []*models.MatchResult
	var mu sync.Mutex

	for i, id := range resultIDs {
		i, id := i, id
		g.Go(func() error {
			item := BatchItem{ResultID: id}
			result, _, err := c.approveOne(gctx, id, reviewer, nil, false)
			if err != nil {
				item.Code = ErrorCode(err)
				item.Error = err.Error()
			} else {
				item.Approved = true
				mu.Lock()
				approved = append(approved, result)
				mu.Unlock()
			}
			outcome.Items[i] = item
			return nil
		})
	}
	// Горутины всегда возвращают nil: ошибки собраны поэлементно.
	_ = g.Wait()

	for _, item := range outcome.Items {
		if item.Approved {
			outcome.ApprovedN++
		} else {
			outcome.FailedN++
		}
	}

	if outcome.ApprovedN > 0 {
		if _, err := c.RecomputeLeaderboard(ctx, tournamentID); err != nil {
			return outcome, err
		}
		for _, r := range approved {
			c.notifyApproved(r)
		}
	}

	return outcome, nil
}

// approveOne проводит одно утверждение. При withLeaderboard пересчёт снимка
// таблицы входит в ту же транзакцию (путь одиночного утверждения); пакетный
// путь передаёт false и пересчитывает снимок один раз после всего пакета.
func (c *Coordinator) approveOne(ctx context.Context, resultID uuid.UUID, reviewer *models.User, notes *string, withLeaderboard bool) (*models.MatchResult, *models.LeaderboardSnapshot, error) {
	unlock := c.resultLocks.lock(resultID.String())
	defer unlock()

	result, err := c.resultRepo.GetByID(ctx, nil, resultID)
	if err != nil {
		if errors.Is(err, repositories.ErrResultNotFound) {
			return nil, nil, ErrResultNotFound
		}
		return nil, nil, err
	}

	switch result.Status {
	case models.ResultStatusPendingReview:
		// Единственный статус, из которого разрешено утверждение.
	case models.ResultStatusApproved:
		// Повторное утверждение — конфликт, без повторной обработки.
		return nil, nil, ErrApprovalConflict
	default:
		return nil, nil, ErrResultNotReviewable
	}

	// Проверка целостности до любых записей.
	if current, ok := integrity.Verify(result); !ok {
		c.flagTampered(ctx, result, current)
		return nil, nil, ErrResultTampered
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: begin approval transaction: %w", ErrDependencyUnavailable, err)
	}
	defer tx.Rollback()

	now := c.now().UTC()
	kFactor, ok := c.cfg.KFactors[result.Importance]
	if !ok {
		return nil, nil, ErrResultImportance
	}

	winnerRating, loserRating, err := c.applyRatings(ctx, tx, result, kFactor, now)
	if err != nil {
		return nil, nil, err
	}

	approvalHash := integrity.ComputeApproval(result, "approved", reviewer.ID, now)
	oldStatus := result.Status
	result.Status = models.ResultStatusApproved
	result.ReviewedBy = &reviewer.ID
	result.ReviewedAt = &now
	if notes != nil {
		result.ReviewNotes = notes
	}
	result.ApprovalHash = &approvalHash
	result.HashVerified = true

	if err := c.resultRepo.UpdateReview(ctx, tx, result); err != nil {
		return nil, nil, err
	}

	if err := c.audit.Record(ctx, tx, &models.AuditLog{
		EventType:    models.AuditResultApprove,
		Actor:        reviewer.Email,
		ResourceType: "match_result",
		ResourceID:   result.ID,
		TournamentID: &result.TournamentID,
		OldValues:    map[string]any{"status": string(oldStatus)},
		NewValues: map[string]any{
			"status":        string(models.ResultStatusApproved),
			"approval_hash": approvalHash,
		},
	}); err != nil {
		return nil, nil, err
	}

	for _, rating := range []*models.EloRating{winnerRating, loserRating} {
		if rating == nil {
			continue
		}
		if err := c.audit.Record(ctx, tx, &models.AuditLog{
			EventType:    models.AuditEloUpdate,
			Actor:        reviewer.Email,
			ResourceType: "elo_rating",
			ResourceID:   rating.TeamID,
			TournamentID: &result.TournamentID,
			OldValues:    map[string]any{"elo": rating.PreviousElo},
			NewValues:    map[string]any{"elo": rating.CurrentElo, "change": rating.Change},
		}); err != nil {
			return nil, nil, err
		}
	}

	var snapshot *models.LeaderboardSnapshot
	if withLeaderboard {
		unlockT := c.tournamentLocks.lock(result.TournamentID.String())
		defer unlockT()
		snapshot, err = c.recomputeTx(ctx, tx, result.TournamentID)
		if err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("%w: commit approval: %w", ErrDependencyUnavailable, err)
	}

	c.hub.BroadcastToRoom(result.TournamentID.String(), live.Message{
		Type: live.EventResultStatus,
		Payload: map[string]any{
			"result_id": result.ID,
			"status":    result.Status,
		},
	})
	if snapshot != nil {
		c.hub.BroadcastToRoom(result.TournamentID.String(), live.Message{
			Type:    live.EventLeaderboardUpdated,
			Payload: snapshot,
		})
	}

	return result, snapshot, nil
}

// applyRatings пересчитывает рейтинги обеих команд внутри транзакции
// утверждения. Команды без истории засеваются стартовым рейтингом турнира.
// Возвращает nil-записи, если рейтинг этого матча уже был применён
// (повторный заход после диспута).
func (c *Coordinator) applyRatings(ctx context.Context, tx repositories.SQLExecutor, result *models.MatchResult, kFactor int, now time.Time) (*models.EloRating, *models.EloRating, error) {
	// Повторное применение того же матча запрещено.
	if _, err := c.ratingRepo.GetByMatchAndTeam(ctx, tx, result.MatchID, result.WinnerID); err == nil {
		return nil, nil, nil
	} else if !errors.Is(err, repositories.ErrRatingNotFound) {
		return nil, nil, err
	}

	initial := c.cfg.InitialElo
	if tournament, err := c.tournamentRepo.GetByID(ctx, tx, result.TournamentID); err == nil && tournament.InitialElo > 0 {
		initial = tournament.InitialElo
	}

	winnerPrev, winnerVersion, err := c.currentOrSeed(ctx, tx, result.TournamentID, result.WinnerID, initial)
	if err != nil {
		return nil, nil, err
	}
	loserPrev, loserVersion, err := c.currentOrSeed(ctx, tx, result.TournamentID, result.LoserID, initial)
	if err != nil {
		return nil, nil, err
	}

	outcome := elo.Apply(winnerPrev, loserPrev, kFactor)
	if err := c.cfg.Bounds.Validate(outcome); err != nil {
		var rangeErr *elo.RangeError
		if errors.As(err, &rangeErr) {
			return nil, nil, fmt.Errorf("%w: %v", ErrRatingOutOfRange, rangeErr)
		}
		return nil, nil, err
	}

	winnerRating := &models.EloRating{
		ID:            uuid.New(),
		TournamentID:  result.TournamentID,
		TeamID:        result.WinnerID,
		MatchID:       &result.MatchID,
		OpponentID:    &result.LoserID,
		CurrentElo:    outcome.NewWinner,
		PreviousElo:   winnerPrev,
		Change:        outcome.DeltaWinner,
		KFactor:       kFactor,
		ExpectedScore: outcome.ExpectedWinner,
		ActualScore:   elo.ScoreWin,
		Version:       winnerVersion + 1,
		CalculatedAt:  now,
	}
	loserRating := &models.EloRating{
		ID:            uuid.New(),
		TournamentID:  result.TournamentID,
		TeamID:        result.LoserID,
		MatchID:       &result.MatchID,
		OpponentID:    &result.WinnerID,
		CurrentElo:    outcome.NewLoser,
		PreviousElo:   loserPrev,
		Change:        outcome.DeltaLoser,
		KFactor:       kFactor,
		ExpectedScore: outcome.ExpectedLoser,
		ActualScore:   elo.ScoreLoss,
		Version:       loserVersion + 1,
		CalculatedAt:  now,
	}

	for _, rating := range []*models.EloRating{winnerRating, loserRating} {
		if err := c.ratingRepo.Create(ctx, tx, rating); err != nil {
			if errors.Is(err, repositories.ErrRatingVersionConflict) {
				return nil, nil, ErrRatingConflict
			}
			return nil, nil, err
		}
	}

	return winnerRating, loserRating, nil
}

func (c *Coordinator) currentOrSeed(ctx context.Context, tx repositories.SQLExecutor, tournamentID, teamID uuid.UUID, initial int) (rating int, version int, err error) {
	current, err := c.ratingRepo.GetCurrent(ctx, tx, tournamentID, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrRatingNotFound) {
			return initial, 0, nil
		}
		return 0, 0, err
	}
	return current.CurrentElo, current.Version, nil
}

// flagTampered фиксирует нарушение целостности: флаг на записи, запись
// аудита, тревожное уведомление. Сам результат не изменяется и не чинится.
func (c *Coordinator) flagTampered(ctx context.Context, result *models.MatchResult, currentHash string) {
	c.logger.Error("result integrity violation detected",
		slog.String("result_id", result.ID.String()),
		slog.String("original_hash", result.OriginalHash),
		slog.String("current_hash", currentHash))

	if err := c.resultRepo.SetHashVerified(ctx, nil, result.ID, false); err != nil {
		c.logger.Error("failed to flag tampered result", slog.Any("error", err))
	}

	if err := c.audit.Record(ctx, nil, &models.AuditLog{
		EventType:    models.AuditHashTampered,
		Actor:        "system",
		ResourceType: "match_result",
		ResourceID:   result.ID,
		TournamentID: &result.TournamentID,
		OldValues:    map[string]any{"hash": result.OriginalHash},
		NewValues:    map[string]any{"hash": currentHash},
	}); err != nil {
		c.logger.Error("failed to audit tampered result", slog.Any("error", err))
	}

	c.notifier.Notify(NotifyIntegrityAlert, c.cfg.AlertRecipients, map[string]any{
		"ResultID":     result.ID.String(),
		"MatchID":      result.MatchID.String(),
		"OriginalHash": result.OriginalHash,
		"CurrentHash":  currentHash,
	})

	c.hub.BroadcastToRoom(result.TournamentID.String(), live.Message{
		Type: live.EventIntegrityAlert,
		Payload: map[string]any{
			"result_id": result.ID,
		},
	})
}

// RecomputeLeaderboard целиком пересобирает снимок таблицы турнира.
// Сериализуется по турниру; версия снимка строго растёт, так что отставшая
// запись не может затереть более свежую.
func (c *Coordinator) RecomputeLeaderboard(ctx context.Context, tournamentID uuid.UUID) (*models.LeaderboardSnapshot, error) {
	unlock := c.tournamentLocks.lock(tournamentID.String())
	defer unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin leaderboard transaction: %w", ErrDependencyUnavailable, err)
	}
	defer tx.Rollback()

	snapshot, err := c.recomputeTx(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit leaderboard: %w", ErrDependencyUnavailable, err)
	}

	c.hub.BroadcastToRoom(tournamentID.String(), live.Message{
		Type:    live.EventLeaderboardUpdated,
		Payload: snapshot,
	})

	return snapshot, nil
}

// recomputeTx собирает и записывает новый снимок внутри уже открытой
// транзакции. Блокировку по турниру и фиксацию берёт на себя вызывающий.
func (c *Coordinator) recomputeTx(ctx context.Context, tx repositories.SQLExecutor, tournamentID uuid.UUID) (*models.LeaderboardSnapshot, error) {
	approvedStatus := models.ResultStatusApproved
	results, err := c.resultRepo.ListByTournament(ctx, tx, tournamentID, &approvedStatus)
	if err != nil {
		return nil, err
	}

	ratings, err := c.ratingRepo.ListCurrentByTournament(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	ratingByTeam := make(map[uuid.UUID]int, len(ratings))
	for _, r := range ratings {
		ratingByTeam[r.TeamID] = r.CurrentElo
	}

	names := make(map[uuid.UUID]string)
	if teams, err := c.tournamentRepo.ListTeamsByTournament(ctx, tx, tournamentID); err == nil {
		for _, t := range teams {
			names[t.ID] = t.Name
		}
	}

	version := 1
	if prev, err := c.leaderboardRepo.GetByTournament(ctx, tx, tournamentID); err == nil {
		version = prev.Version + 1
	} else if !errors.Is(err, repositories.ErrSnapshotNotFound) {
		return nil, err
	}

	snapshot := leaderboard.Aggregate(leaderboard.Input{
		TournamentID: tournamentID,
		Results:      results,
		Ratings:      ratingByTeam,
		TeamNames:    names,
	}, c.cfg.Policy, version, c.now().UTC())

	if err := c.leaderboardRepo.Upsert(ctx, tx, snapshot); err != nil {
		return nil, err
	}

	if err := c.audit.Record(ctx, tx, &models.AuditLog{
		EventType:    models.AuditLeaderboardUpdate,
		Actor:        "system",
		ResourceType: "leaderboard_snapshot",
		ResourceID:   snapshot.ID,
		TournamentID: &tournamentID,
		NewValues: map[string]any{
			"version":     snapshot.Version,
			"total_teams": snapshot.TotalTeams,
		},
	}); err != nil {
		return nil, err
	}

	return snapshot, nil
}

func (c *Coordinator) notifyApproved(result *models.MatchResult) {
	recipients := c.teamRecipients(context.Background(), result.WinnerID, result.LoserID)
	c.notifier.Notify(NotifyResultApproved, recipients, map[string]any{
		"MatchID": result.MatchID.String(),
		"Score":   result.Score,
	})
}

func (c *Coordinator) teamRecipients(ctx context.Context, teamIDs ...uuid.UUID) []string {
	var recipients []string
	for _, id := range teamIDs {
		team, err := c.tournamentRepo.GetTeam(ctx, nil, id)
		if err != nil || team.CaptainEmail == "" {
			continue
		}
		recipients = append(recipients, team.CaptainEmail)
	}
	return recipients
}
