package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/result-integrity/models"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return db, mock, func() {
		db.Close()
	}
}

func TestResultCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresResultRepository(db)

	result := &models.MatchResult{
		ID:           uuid.New(),
		MatchID:      uuid.New(),
		TournamentID: uuid.New(),
		WinnerID:     uuid.New(),
		LoserID:      uuid.New(),
		Score:        "3-1",
		GameScores:   pq.StringArray{"11-7", "9-11", "11-5", "11-8"},
		Importance:   models.ImportanceRegular,
		Status:       models.ResultStatusPendingReview,
		SubmittedBy:  "captain@alphasquad.gg",
		SubmittedAt:  time.Now(),
		OriginalHash: "deadbeef",
		HashVerified: true,
	}

	mock.ExpectExec("INSERT INTO match_results").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), nil, result)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultCreateDuplicateMatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresResultRepository(db)

	mock.ExpectExec("INSERT INTO match_results").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "match_results_match_id_key"})

	err := repo.Create(context.Background(), nil, &models.MatchResult{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrResultMatchConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresResultRepository(db)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM match_results WHERE id").
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), nil, id)
	assert.ErrorIs(t, err, ErrResultNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResultUpdateReviewMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresResultRepository(db)

	mock.ExpectExec("UPDATE match_results SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateReview(context.Background(), nil, &models.MatchResult{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrResultNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingCreateVersionConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresEloRatingRepository(db)

	mock.ExpectExec("INSERT INTO elo_ratings").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "elo_ratings_tournament_id_team_id_version_key"})

	err := repo.Create(context.Background(), nil, &models.EloRating{ID: uuid.New(), Version: 3})
	assert.ErrorIs(t, err, ErrRatingVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboardUpsertStale(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewPostgresLeaderboardRepository(db)

	// Условие WHERE version < EXCLUDED.version не прошло — ни одной строки.
	mock.ExpectExec("INSERT INTO leaderboard_snapshots").
		WillReturnResult(sqlmock.NewResult(0, 0))

	snap := &models.LeaderboardSnapshot{
		ID:           uuid.New(),
		TournamentID: uuid.New(),
		Version:      2,
		GeneratedBy:  "system",
		GeneratedAt:  time.Now(),
	}
	err := repo.Upsert(context.Background(), nil, snap)
	assert.ErrorIs(t, err, ErrSnapshotStale)
	assert.NoError(t, mock.ExpectationsWereMet())
}
