package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dosada05/result-integrity/models"
	"github.com/google/uuid"
)

var (
	ErrSnapshotNotFound = errors.New("leaderboard snapshot not found")
	// ErrSnapshotStale — попытка записать снимок с версией не новее текущей.
	// Отстающие перезаписи отклоняются, а не затирают свежие данные.
	ErrSnapshotStale = errors.New("leaderboard snapshot is stale")
)

type LeaderboardRepository interface {
	Upsert(ctx context.Context, exec SQLExecutor, snapshot *models.LeaderboardSnapshot) error
	GetByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) (*models.LeaderboardSnapshot, error)
}

type postgresLeaderboardRepository struct {
	db *sql.DB
}

func NewPostgresLeaderboardRepository(db *sql.DB) LeaderboardRepository {
	return &postgresLeaderboardRepository{db: db}
}

func (r *postgresLeaderboardRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

// Upsert заменяет снимок турнира целиком. Версия должна строго расти;
// условие в ON CONFLICT отклоняет запись устаревшего снимка.
func (r *postgresLeaderboardRepository) Upsert(ctx context.Context, exec SQLExecutor, snapshot *models.LeaderboardSnapshot) error {
	executor := r.getExecutor(exec)

	standingsJSON, err := json.Marshal(snapshot.Standings)
	if err != nil {
		return fmt.Errorf("failed to marshal standings: %w", err)
	}

	query := `
		INSERT INTO leaderboard_snapshots
		    (id, tournament_id, standings, total_teams, version, generated_by, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tournament_id) DO UPDATE SET
			id = EXCLUDED.id,
			standings = EXCLUDED.standings,
			total_teams = EXCLUDED.total_teams,
			version = EXCLUDED.version,
			generated_by = EXCLUDED.generated_by,
			last_updated = EXCLUDED.last_updated
		WHERE leaderboard_snapshots.version < EXCLUDED.version`

	res, err := executor.ExecContext(ctx, query,
		snapshot.ID, snapshot.TournamentID, standingsJSON, snapshot.TotalTeams,
		snapshot.Version, snapshot.GeneratedBy, snapshot.GeneratedAt,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(res, ErrSnapshotStale)
}

func (r *postgresLeaderboardRepository) GetByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID) (*models.LeaderboardSnapshot, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT id, tournament_id, standings, total_teams, version, generated_by, last_updated
		FROM leaderboard_snapshots
		WHERE tournament_id = $1`

	var snap models.LeaderboardSnapshot
	var standingsJSON []byte
	err := executor.QueryRowContext(ctx, query, tournamentID).Scan(
		&snap.ID, &snap.TournamentID, &standingsJSON, &snap.TotalTeams,
		&snap.Version, &snap.GeneratedBy, &snap.GeneratedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(standingsJSON, &snap.Standings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal standings: %w", err)
	}
	return &snap, nil
}
