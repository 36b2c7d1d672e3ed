package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/result-integrity/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrRatingNotFound = errors.New("elo rating not found")
	// ErrRatingVersionConflict — гонка двух одновременных утверждений,
	// затронувших одну команду: проигравший проверку версии должен повторить
	// чтение и пересчёт.
	ErrRatingVersionConflict = errors.New("elo rating version conflict")
)

// EloRatingRepository хранит историю пересчётов. Таблица только дописывается:
// текущий рейтинг команды — запись с максимальной версией. Уникальный индекс
// (tournament_id, team_id, version) превращает потерянное обновление в
// конфликт вставки.
type EloRatingRepository interface {
	Create(ctx context.Context, exec SQLExecutor, rating *models.EloRating) error
	GetCurrent(ctx context.Context, exec SQLExecutor, tournamentID, teamID uuid.UUID) (*models.EloRating, error)
	GetByMatchAndTeam(ctx context.Context, exec SQLExecutor, matchID, teamID uuid.UUID) (*models.EloRating, error)
	ListCurrentByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) ([]*models.EloRating, error)
}

type postgresEloRatingRepository struct {
	db *sql.DB
}

func NewPostgresEloRatingRepository(db *sql.DB) EloRatingRepository {
	return &postgresEloRatingRepository{db: db}
}

func (r *postgresEloRatingRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const ratingColumns = `
	id, tournament_id, team_id, match_id, opponent_id, current_elo, previous_elo,
	change, k_factor, expected_score, actual_score, version, calculation_timestamp`

func (r *postgresEloRatingRepository) Create(ctx context.Context, exec SQLExecutor, rating *models.EloRating) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO elo_ratings
		    (id, tournament_id, team_id, match_id, opponent_id, current_elo, previous_elo,
		     change, k_factor, expected_score, actual_score, version, calculation_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := executor.ExecContext(ctx, query,
		rating.ID, rating.TournamentID, rating.TeamID, rating.MatchID, rating.OpponentID,
		rating.CurrentElo, rating.PreviousElo, rating.Change, rating.KFactor,
		rating.ExpectedScore, rating.ActualScore, rating.Version, rating.CalculatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrRatingVersionConflict
		}
		return err
	}
	return nil
}

func (r *postgresEloRatingRepository) scanRating(rowScanner interface{ Scan(...any) error }) (*models.EloRating, error) {
	var er models.EloRating
	err := rowScanner.Scan(
		&er.ID, &er.TournamentID, &er.TeamID, &er.MatchID, &er.OpponentID,
		&er.CurrentElo, &er.PreviousElo, &er.Change, &er.KFactor,
		&er.ExpectedScore, &er.ActualScore, &er.Version, &er.CalculatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRatingNotFound
		}
		return nil, err
	}
	return &er, nil
}

func (r *postgresEloRatingRepository) GetCurrent(ctx context.Context, exec SQLExecutor, tournamentID, teamID uuid.UUID) (*models.EloRating, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT ` + ratingColumns + `
		FROM elo_ratings
		WHERE tournament_id = $1 AND team_id = $2
		ORDER BY version DESC
		LIMIT 1`
	return r.scanRating(executor.QueryRowContext(ctx, query, tournamentID, teamID))
}

func (r *postgresEloRatingRepository) GetByMatchAndTeam(ctx context.Context, exec SQLExecutor, matchID, teamID uuid.UUID) (*models.EloRating, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT ` + ratingColumns + `
		FROM elo_ratings
		WHERE match_id = $1 AND team_id = $2`
	return r.scanRating(executor.QueryRowContext(ctx, query, matchID, teamID))
}

func (r *postgresEloRatingRepository) ListCurrentByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) ([]*models.EloRating, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT DISTINCT ON (team_id) ` + ratingColumns + `
		FROM elo_ratings
		WHERE tournament_id = $1
		ORDER BY team_id, version DESC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ratings := make([]*models.EloRating, 0)
	for rows.Next() {
		er, errScan := r.scanRating(rows)
		if errScan != nil {
			return nil, errScan
		}
		ratings = append(ratings, er)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return ratings, nil
}
