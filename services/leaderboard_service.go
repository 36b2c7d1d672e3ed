package services

import (
	"context"
	"errors"

	"github.com/Dosada05/result-integrity/models"
	"github.com/Dosada05/result-integrity/repositories"
	"github.com/google/uuid"
)

// LeaderboardService отдаёт последнюю версию снимка турнирной таблицы
// и по запросу запускает полный пересчёт через Coordinator.
type LeaderboardService interface {
	Get(ctx context.Context, tournamentID uuid.UUID) (*models.LeaderboardSnapshot, error)
	Recompute(ctx context.Context, tournamentID uuid.UUID) (*models.LeaderboardSnapshot, error)
}

type leaderboardService struct {
	repo        repositories.LeaderboardRepository
	coordinator *Coordinator
}

func NewLeaderboardService(repo repositories.LeaderboardRepository, coordinator *Coordinator) LeaderboardService {
	return &leaderboardService{repo: repo, coordinator: coordinator}
}

func (s *leaderboardService) Get(ctx context.Context, tournamentID uuid.UUID) (*models.LeaderboardSnapshot, error) {
	snapshot, err := s.repo.GetByTournament(ctx, nil, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrSnapshotNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return snapshot, nil
}

func (s *leaderboardService) Recompute(ctx context.Context, tournamentID uuid.UUID) (*models.LeaderboardSnapshot, error) {
	return s.coordinator.RecomputeLeaderboard(ctx, tournamentID)
}
