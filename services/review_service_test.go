package services

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/result-integrity/live"
	"github.com/Dosada05/result-integrity/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reviewEnv struct {
	service     ResultService
	results     *memResultRepo
	audit       *memAuditRepo
	tournaments *memTournamentRepo
	notifier    *recordingNotifier
	uploader    *memUploader

	tournamentID uuid.UUID
	winnerID     uuid.UUID
	loserID      uuid.UUID
	reviewer     *models.User
	now          time.Time
}

func newReviewEnv(t *testing.T) *reviewEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &reviewEnv{
		results:      newMemResultRepo(),
		audit:        newMemAuditRepo(),
		tournaments:  newMemTournamentRepo(),
		notifier:     &recordingNotifier{},
		uploader:     newMemUploader(),
		tournamentID: uuid.New(),
		winnerID:     uuid.New(),
		loserID:      uuid.New(),
		reviewer: &models.User{
			ID:    uuid.New(),
			Email: "reviewer@example.com",
			Role:  models.RoleReviewer,
		},
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	env.tournaments.tournaments[env.tournamentID] = &models.Tournament{
		ID:     env.tournamentID,
		Name:   "Summer Cup",
		Status: models.TournamentStatusActive,
	}
	env.tournaments.addTeam(env.tournamentID, &models.Team{
		ID: env.winnerID, Name: "Alpha", CaptainEmail: "alpha@example.com",
	})
	env.tournaments.addTeam(env.tournamentID, &models.Team{
		ID: env.loserID, Name: "Beta", CaptainEmail: "beta@example.com",
	})

	svc := NewResultService(
		env.results,
		env.tournaments,
		NewAuditService(env.audit),
		env.notifier,
		env.uploader,
		live.NewHub(logger),
		logger,
		48*time.Hour,
	).(*resultService)
	svc.now = func() time.Time { return env.now }
	env.service = svc
	return env
}

func (e *reviewEnv) submitInput() SubmitResultInput {
	return SubmitResultInput{
		MatchID:      uuid.New(),
		TournamentID: e.tournamentID,
		WinnerID:     e.winnerID,
		LoserID:      e.loserID,
		Score:        "3-1",
		GameScores:   []string{"11-7", "9-11", "11-5", "11-8"},
		Importance:   models.ImportancePlayoff,
		SubmittedBy:  "captain@example.com",
	}
}

func TestSubmitResult(t *testing.T) {
	env := newReviewEnv(t)

	result, err := env.service.Submit(context.Background(), env.submitInput())
	require.NoError(t, err)

	assert.Equal(t, models.ResultStatusPendingReview, result.Status)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), result.OriginalHash)
	assert.True(t, result.HashVerified)
	assert.Nil(t, result.ApprovalHash)

	assert.Equal(t, 1, env.audit.countByType(models.AuditResultSubmit))
	assert.Equal(t, 1, env.notifier.count(NotifyResultSubmitted))
}

func TestSubmitResultValidation(t *testing.T) {
	env := newReviewEnv(t)

	tests := []struct {
		name    string
		mutate  func(*SubmitResultInput)
		wantErr error
	}{
		{
			name:    "missing winner",
			mutate:  func(in *SubmitResultInput) { in.WinnerID = uuid.Nil },
			wantErr: ErrResultFieldsRequired,
		},
		{
			name:    "winner equals loser",
			mutate:  func(in *SubmitResultInput) { in.LoserID = in.WinnerID },
			wantErr: ErrResultSameTeams,
		},
		{
			name:    "malformed score",
			mutate:  func(in *SubmitResultInput) { in.Score = "three to one" },
			wantErr: ErrResultScoreInvalid,
		},
		{
			name:    "malformed game score",
			mutate:  func(in *SubmitResultInput) { in.GameScores = []string{"11-7", "bad"} },
			wantErr: ErrResultScoreInvalid,
		},
		{
			name:    "unknown importance",
			mutate:  func(in *SubmitResultInput) { in.Importance = "friendly" },
			wantErr: ErrResultImportance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := env.submitInput()
			tt.mutate(&input)
			_, err := env.service.Submit(context.Background(), input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Ничего из отклонённого не сохранилось и не попало в аудит.
	assert.Empty(t, env.results.results)
	assert.Equal(t, 0, env.audit.countByType(models.AuditResultSubmit))
}

func TestSubmitResultDuplicateMatch(t *testing.T) {
	env := newReviewEnv(t)
	input := env.submitInput()

	_, err := env.service.Submit(context.Background(), input)
	require.NoError(t, err)

	_, err = env.service.Submit(context.Background(), input)
	assert.ErrorIs(t, err, ErrResultAlreadySubmitted)
}

func TestSubmitResultUploadsEvidence(t *testing.T) {
	env := newReviewEnv(t)
	input := env.submitInput()
	input.Evidence = []EvidenceUpload{
		{Filename: "final.png", ContentType: "image/png", Reader: strings.NewReader("screenshot")},
	}

	result, err := env.service.Submit(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, result.EvidenceKeys, 1)
	assert.Contains(t, result.EvidenceKeys[0], result.ID.String())
	require.Len(t, result.EvidenceURLs, 1)
	assert.Contains(t, result.EvidenceURLs[0], "https://files.test/")
}

func TestGetByIDFlagsTampering(t *testing.T) {
	env := newReviewEnv(t)
	submitted, err := env.service.Submit(context.Background(), env.submitInput())
	require.NoError(t, err)

	env.results.tamper(submitted.ID, func(r *models.MatchResult) {
		r.Score = "2-1"
	})

	got, err := env.service.GetByID(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.False(t, got.HashVerified)
	assert.Equal(t, submitted.OriginalHash, got.OriginalHash)

	// Флаг сохранён, повторное чтение видит его без пересчёта.
	stored, err := env.results.GetByID(context.Background(), nil, submitted.ID)
	require.NoError(t, err)
	assert.False(t, stored.HashVerified)
}

func TestRejectResult(t *testing.T) {
	env := newReviewEnv(t)
	submitted, err := env.service.Submit(context.Background(), env.submitInput())
	require.NoError(t, err)

	_, err = env.service.Reject(context.Background(), submitted.ID, env.reviewer, "")
	assert.ErrorIs(t, err, ErrRejectReasonRequired)

	rejected, err := env.service.Reject(context.Background(), submitted.ID, env.reviewer, "score does not match the replay")
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusRejected, rejected.Status)
	require.NotNil(t, rejected.ReviewNotes)

	// rejected — терминальный статус.
	_, err = env.service.Reject(context.Background(), submitted.ID, env.reviewer, "again")
	assert.ErrorIs(t, err, ErrResultNotReviewable)

	assert.Equal(t, 1, env.audit.countByType(models.AuditResultReject))
	assert.Equal(t, 1, env.notifier.count(NotifyResultRejected))
}

func TestRequestInfoKeepsStatus(t *testing.T) {
	env := newReviewEnv(t)
	submitted, err := env.service.Submit(context.Background(), env.submitInput())
	require.NoError(t, err)

	got, err := env.service.RequestInfo(context.Background(), submitted.ID, env.reviewer, "attach the replay file")
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusPendingReview, got.Status)
	require.NotNil(t, got.ReviewNotes)
	assert.Equal(t, "attach the replay file", *got.ReviewNotes)
	// Запрос уточнений — не решение: отметка рецензента не ставится.
	assert.Nil(t, got.ReviewedBy)
	assert.Nil(t, got.ReviewedAt)

	assert.Equal(t, 1, env.audit.countByType(models.AuditResultInfoRequest))
	assert.Equal(t, 1, env.notifier.count(NotifyInfoRequested))
}

func TestDisputeWindow(t *testing.T) {
	env := newReviewEnv(t)
	submitted, err := env.service.Submit(context.Background(), env.submitInput())
	require.NoError(t, err)

	// Результаты вне approved оспаривать нельзя.
	_, err = env.service.Dispute(context.Background(), submitted.ID, "captain@example.com", "wrong score")
	assert.ErrorIs(t, err, ErrResultNotDisputable)

	approvedAt := env.now
	env.results.tamper(submitted.ID, func(r *models.MatchResult) {
		r.Status = models.ResultStatusApproved
		r.ReviewedAt = &approvedAt
	})

	// Внутри окна — успех.
	env.now = approvedAt.Add(47 * time.Hour)
	disputed, err := env.service.Dispute(context.Background(), submitted.ID, "captain@example.com", "wrong score")
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusDisputed, disputed.Status)
	assert.Equal(t, 1, env.audit.countByType(models.AuditResultDispute))

	// Возврат в approved и попытка после окна.
	env.results.tamper(submitted.ID, func(r *models.MatchResult) {
		r.Status = models.ResultStatusApproved
	})
	env.now = approvedAt.Add(49 * time.Hour)
	_, err = env.service.Dispute(context.Background(), submitted.ID, "captain@example.com", "too late")
	assert.ErrorIs(t, err, ErrDisputeWindowClosed)
}

func TestReopenDisputed(t *testing.T) {
	env := newReviewEnv(t)
	submitted, err := env.service.Submit(context.Background(), env.submitInput())
	require.NoError(t, err)

	env.results.tamper(submitted.ID, func(r *models.MatchResult) {
		r.Status = models.ResultStatusDisputed
	})

	reopened, err := env.service.Reopen(context.Background(), submitted.ID, env.reviewer)
	require.NoError(t, err)
	assert.Equal(t, models.ResultStatusPendingReview, reopened.Status)

	// Повторный возврат невозможен: результат уже на проверке.
	_, err = env.service.Reopen(context.Background(), submitted.ID, env.reviewer)
	assert.ErrorIs(t, err, ErrResultNotReviewable)
}

func TestListByTournamentFiltersStatus(t *testing.T) {
	env := newReviewEnv(t)

	first, err := env.service.Submit(context.Background(), env.submitInput())
	require.NoError(t, err)
	second, err := env.service.Submit(context.Background(), env.submitInput())
	require.NoError(t, err)
	_, err = env.service.Reject(context.Background(), second.ID, env.reviewer, "duplicate report")
	require.NoError(t, err)

	pending := models.ResultStatusPendingReview
	got, err := env.service.ListByTournament(context.Background(), env.tournamentID, &pending)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)

	all, err := env.service.ListByTournament(context.Background(), env.tournamentID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
