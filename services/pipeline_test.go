package services

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Dosada05/result-integrity/elo"
	"github.com/Dosada05/result-integrity/integrity"
	"github.com/Dosada05/result-integrity/leaderboard"
	"github.com/Dosada05/result-integrity/live"
	"github.com/Dosada05/result-integrity/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipelineEnv struct {
	coordinator *Coordinator
	results     *memResultRepo
	ratings     *memRatingRepo
	leaderboard *memLeaderboardRepo
	audit       *memAuditRepo
	tournaments *memTournamentRepo
	notifier    *recordingNotifier

	tournamentID uuid.UUID
	reviewer     *models.User
}

// newPipelineEnv собирает Coordinator на in-memory репозиториях. Транзакции
// берутся из sqlmock: репозитории их не используют, поэтому ожидаются только
// begin/commit. Точный txCount проверяется: лишний Begin или неиспользованная
// пара проваливают тест.
func newPipelineEnv(t *testing.T, txCount int) *pipelineEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	mock.MatchExpectationsInOrder(false)
	for i := 0; i < txCount; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &pipelineEnv{
		results:      newMemResultRepo(),
		ratings:      newMemRatingRepo(),
		leaderboard:  newMemLeaderboardRepo(),
		audit:        newMemAuditRepo(),
		tournaments:  newMemTournamentRepo(),
		notifier:     &recordingNotifier{},
		tournamentID: uuid.New(),
		reviewer: &models.User{
			ID:    uuid.New(),
			Email: "reviewer@example.com",
			Role:  models.RoleReviewer,
		},
	}

	env.tournaments.tournaments[env.tournamentID] = &models.Tournament{
		ID:         env.tournamentID,
		Name:       "Summer Cup",
		Status:     models.TournamentStatusActive,
		EloEnabled: true,
	}

	cfg := PipelineConfig{
		Bounds:     elo.Bounds{Min: 100, Max: 3000},
		InitialElo: 1500,
		KFactors: map[models.MatchImportance]int{
			models.ImportanceRegular:      32,
			models.ImportancePlayoff:      40,
			models.ImportanceChampionship: 48,
		},
		Policy: leaderboard.Policy{
			Tiebreakers: []string{
				leaderboard.TiebreakHeadToHead,
				leaderboard.TiebreakWinPct,
				leaderboard.TiebreakElo,
			},
		},
		DisputeWindow:   48 * time.Hour,
		AlertRecipients: []string{"security@example.com"},
	}

	env.coordinator = NewCoordinator(
		db,
		env.results,
		env.ratings,
		env.leaderboard,
		env.tournaments,
		NewAuditService(env.audit),
		env.notifier,
		live.NewHub(logger),
		logger,
		cfg,
	)
	return env
}

func (e *pipelineEnv) seedPendingResult(t *testing.T, winnerID, loserID uuid.UUID) *models.MatchResult {
	t.Helper()
	result := &models.MatchResult{
		ID:           uuid.New(),
		MatchID:      uuid.New(),
		TournamentID: e.tournamentID,
		WinnerID:     winnerID,
		LoserID:      loserID,
		Score:        "3-1",
		Importance:   models.ImportanceRegular,
		Status:       models.ResultStatusPendingReview,
		SubmittedBy:  "captain@example.com",
		SubmittedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		HashVerified: true,
	}
	result.OriginalHash = integrity.Compute(result)
	require.NoError(t, e.results.Create(context.Background(), nil, result))
	return result
}

func TestCoordinatorApprove(t *testing.T) {
	// Рейтинги, статус, аудит и снимок таблицы — одна транзакция: частично
	// утверждённого результата без снимка не бывает.
	env := newPipelineEnv(t, 1)
	winnerID, loserID := uuid.New(), uuid.New()
	seeded := env.seedPendingResult(t, winnerID, loserID)

	approved, err := env.coordinator.Approve(context.Background(), seeded.ID, env.reviewer, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ResultStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovalHash)
	assert.Len(t, *approved.ApprovalHash, 64)
	assert.NotEqual(t, approved.OriginalHash, *approved.ApprovalHash)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, env.reviewer.ID, *approved.ReviewedBy)

	// Обе команды стартуют с 1500: ожидаемый счёт 0.5, дельта ±16.
	winnerRating, err := env.ratings.GetCurrent(context.Background(), nil, env.tournamentID, winnerID)
	require.NoError(t, err)
	assert.Equal(t, 1516, winnerRating.CurrentElo)
	assert.Equal(t, 16, winnerRating.Change)
	assert.Equal(t, 1, winnerRating.Version)

	loserRating, err := env.ratings.GetCurrent(context.Background(), nil, env.tournamentID, loserID)
	require.NoError(t, err)
	assert.Equal(t, 1484, loserRating.CurrentElo)
	assert.Equal(t, -16, loserRating.Change)

	snapshot, err := env.leaderboard.GetByTournament(context.Background(), nil, env.tournamentID)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Version)
	require.Len(t, snapshot.Standings, 2)
	assert.Equal(t, winnerID, snapshot.Standings[0].TeamID)
	assert.Equal(t, 3, snapshot.Standings[0].Points)

	assert.Equal(t, 1, env.audit.countByType(models.AuditResultApprove))
	assert.Equal(t, 2, env.audit.countByType(models.AuditEloUpdate))
	assert.Equal(t, 1, env.audit.countByType(models.AuditLeaderboardUpdate))

	assert.Equal(t, 0, env.coordinator.resultLocks.len())
	assert.Equal(t, 0, env.coordinator.tournamentLocks.len())
}

func TestCoordinatorApproveTwiceConflicts(t *testing.T) {
	env := newPipelineEnv(t, 1)
	seeded := env.seedPendingResult(t, uuid.New(), uuid.New())

	_, err := env.coordinator.Approve(context.Background(), seeded.ID, env.reviewer, nil)
	require.NoError(t, err)

	_, err = env.coordinator.Approve(context.Background(), seeded.ID, env.reviewer, nil)
	assert.ErrorIs(t, err, ErrApprovalConflict)

	// Повтор не плодит ни рейтингов, ни записей аудита.
	assert.Equal(t, 2, env.ratings.count())
	assert.Equal(t, 1, env.audit.countByType(models.AuditResultApprove))
}

func TestCoordinatorApproveTampered(t *testing.T) {
	env := newPipelineEnv(t, 0) // до транзакции дело не доходит
	seeded := env.seedPendingResult(t, uuid.New(), uuid.New())

	// Счёт подменён в обход сервисного слоя: дайджест больше не сходится.
	env.results.tamper(seeded.ID, func(r *models.MatchResult) {
		r.Score = "1-3"
	})

	_, err := env.coordinator.Approve(context.Background(), seeded.ID, env.reviewer, nil)
	assert.ErrorIs(t, err, ErrResultTampered)

	stored, getErr := env.results.GetByID(context.Background(), nil, seeded.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.ResultStatusPendingReview, stored.Status, "tampered result must stay out of the approved state")
	assert.False(t, stored.HashVerified)
	assert.Equal(t, seeded.OriginalHash, stored.OriginalHash, "original hash is never rewritten")

	assert.Equal(t, 0, env.ratings.count())
	assert.Equal(t, 1, env.audit.countByType(models.AuditHashTampered))
	assert.Equal(t, 1, env.notifier.count(NotifyIntegrityAlert))
}

func TestCoordinatorBatchApprove(t *testing.T) {
	const batchSize = 5
	env := newPipelineEnv(t, batchSize+1) // пакет + один общий пересчёт

	ids := make([]uuid.UUID, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		seeded := env.seedPendingResult(t, uuid.New(), uuid.New())
		ids = append(ids, seeded.ID)
	}

	outcome, err := env.coordinator.BatchApprove(context.Background(), env.tournamentID, ids, env.reviewer)
	require.NoError(t, err)

	assert.Equal(t, batchSize, outcome.ApprovedN)
	assert.Equal(t, 0, outcome.FailedN)
	for _, item := range outcome.Items {
		assert.True(t, item.Approved, "result %s", item.ResultID)
	}

	assert.Equal(t, batchSize*2, env.ratings.count())
	assert.Equal(t, batchSize, env.audit.countByType(models.AuditResultApprove))
	// Таблица лидеров пересчитывается один раз на весь пакет.
	assert.Equal(t, 1, env.audit.countByType(models.AuditLeaderboardUpdate))

	snapshot, err := env.leaderboard.GetByTournament(context.Background(), nil, env.tournamentID)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Version)
	assert.Equal(t, batchSize*2, snapshot.TotalTeams)
}

func TestCoordinatorBatchApproveCollectsFailures(t *testing.T) {
	env := newPipelineEnv(t, 3) // два успешных утверждения + пересчёт

	good1 := env.seedPendingResult(t, uuid.New(), uuid.New())
	bad := env.seedPendingResult(t, uuid.New(), uuid.New())
	good2 := env.seedPendingResult(t, uuid.New(), uuid.New())

	env.results.tamper(bad.ID, func(r *models.MatchResult) {
		r.WinnerID, r.LoserID = r.LoserID, r.WinnerID
	})

	outcome, err := env.coordinator.BatchApprove(
		context.Background(), env.tournamentID,
		[]uuid.UUID{good1.ID, bad.ID, good2.ID}, env.reviewer)
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.ApprovedN)
	assert.Equal(t, 1, outcome.FailedN)

	require.Len(t, outcome.Items, 3)
	assert.True(t, outcome.Items[0].Approved)
	assert.False(t, outcome.Items[1].Approved)
	assert.Equal(t, "TAMPERED", outcome.Items[1].Code)
	assert.True(t, outcome.Items[2].Approved)

	assert.Equal(t, 4, env.ratings.count())
	assert.Equal(t, 1, env.notifier.count(NotifyIntegrityAlert))
}

func TestCoordinatorReapprovalAfterDisputeSkipsRatings(t *testing.T) {
	env := newPipelineEnv(t, 2) // два утверждения, снимок внутри каждого
	seeded := env.seedPendingResult(t, uuid.New(), uuid.New())

	_, err := env.coordinator.Approve(context.Background(), seeded.ID, env.reviewer, nil)
	require.NoError(t, err)
	require.Equal(t, 2, env.ratings.count())

	// Диспут и возврат на проверку: рейтинги этого матча уже применены.
	env.results.tamper(seeded.ID, func(r *models.MatchResult) {
		r.Status = models.ResultStatusPendingReview
	})

	approved, err := env.coordinator.Approve(context.Background(), seeded.ID, env.reviewer, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ResultStatusApproved, approved.Status)
	assert.Equal(t, 2, env.ratings.count(), "ratings must not be applied twice for the same match")
}

func TestKeyedMutexEvictsReleasedEntries(t *testing.T) {
	var km keyedMutex

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := km.lock(strconv.Itoa(i % 5))
			unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, km.len(), "released keys must not accumulate")
}

func TestCoordinatorRecomputeVersionGrows(t *testing.T) {
	env := newPipelineEnv(t, 2)

	first, err := env.coordinator.RecomputeLeaderboard(context.Background(), env.tournamentID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	second, err := env.coordinator.RecomputeLeaderboard(context.Background(), env.tournamentID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
}
