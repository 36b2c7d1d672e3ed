package models

import (
	"time"

	"github.com/google/uuid"
)

// EloRating — запись об одном пересчёте рейтинга команды по итогам матча.
// Одна запись на (tournament_id, team_id, match_id). Version используется
// для оптимистичной блокировки текущего рейтинга команды.
type EloRating struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	TournamentID  uuid.UUID  `json:"tournament_id" db:"tournament_id"`
	TeamID        uuid.UUID  `json:"team_id" db:"team_id"`
	MatchID       *uuid.UUID `json:"match_id,omitempty" db:"match_id"`
	OpponentID    *uuid.UUID `json:"opponent_id,omitempty" db:"opponent_id"`
	CurrentElo    int        `json:"current_elo" db:"current_elo"`
	PreviousElo   int        `json:"previous_elo" db:"previous_elo"`
	Change        int        `json:"change" db:"change"`
	KFactor       int        `json:"k_factor" db:"k_factor"`
	ExpectedScore float64    `json:"expected_score" db:"expected_score"`
	ActualScore   float64    `json:"actual_score" db:"actual_score"`
	Version       int        `json:"-" db:"version"`
	CalculatedAt  time.Time  `json:"calculation_timestamp" db:"calculation_timestamp"`
}
