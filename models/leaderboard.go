package models

import (
	"time"

	"github.com/google/uuid"
)

// TeamStanding — строка таблицы лидеров. Снимок пересчитывается агрегатором
// целиком, строки никогда не мутируются по месту.
type TeamStanding struct {
	Rank          int       `json:"rank"`
	TeamID        uuid.UUID `json:"team_id"`
	TeamName      string    `json:"team_name,omitempty"`
	MatchesPlayed int       `json:"matches_played"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	WinPercentage float64   `json:"win_percentage"`
	CurrentElo    int       `json:"current_elo"`
	Points        int       `json:"points"`
}

type LeaderboardSnapshot struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	TournamentID uuid.UUID      `json:"tournament_id" db:"tournament_id"`
	Standings    []TeamStanding `json:"standings" db:"standings"`
	TotalTeams   int            `json:"total_teams" db:"total_teams"`
	Version      int            `json:"version" db:"version"`
	GeneratedBy  string         `json:"generated_by" db:"generated_by"`
	GeneratedAt  time.Time      `json:"last_updated" db:"last_updated"`
}
