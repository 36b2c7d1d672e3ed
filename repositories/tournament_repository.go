package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/result-integrity/models"
	"github.com/google/uuid"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTeamNotFound       = errors.New("team not found")
)

// TournamentRepository читает справочные данные. CRUD турниров и команд
// принадлежит внешнему сервису, поэтому интерфейс только на чтение.
type TournamentRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Tournament, error)
	GetTeam(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Team, error)
	ListTeamsByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) ([]*models.Team, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Tournament, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, name, status, elo_enabled, initial_elo, created_at
		FROM tournaments
		WHERE id = $1`

	var t models.Tournament
	err := executor.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Status, &t.EloEnabled, &t.InitialElo, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *postgresTournamentRepository) GetTeam(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Team, error) {
	executor := r.getExecutor(exec)
	query := `SELECT id, name, captain_email FROM teams WHERE id = $1`

	var team models.Team
	err := executor.QueryRowContext(ctx, query, id).Scan(&team.ID, &team.Name, &team.CaptainEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return &team, nil
}

func (r *postgresTournamentRepository) ListTeamsByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) ([]*models.Team, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT t.id, t.name, t.captain_email
		FROM teams t
		JOIN tournament_teams tt ON tt.team_id = t.id
		WHERE tt.tournament_id = $1
		ORDER BY t.name ASC`

	rows, err := executor.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := make([]*models.Team, 0)
	for rows.Next() {
		var team models.Team
		if err := rows.Scan(&team.ID, &team.Name, &team.CaptainEmail); err != nil {
			return nil, err
		}
		teams = append(teams, &team)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return teams, nil
}
