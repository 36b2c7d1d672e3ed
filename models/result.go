package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type ResultStatus string

const (
	ResultStatusPending       ResultStatus = "pending"
	ResultStatusPendingReview ResultStatus = "pending_review"
	ResultStatusApproved      ResultStatus = "approved"
	ResultStatusRejected      ResultStatus = "rejected"
	ResultStatusDisputed      ResultStatus = "disputed"
)

type MatchImportance string

const (
	ImportanceRegular      MatchImportance = "regular"
	ImportancePlayoff      MatchImportance = "playoff"
	ImportanceChampionship MatchImportance = "championship"
)

// MatchResult — результат матча, проходящий через пайплайн проверки.
// original_hash фиксируется при подаче и больше никогда не перезаписывается;
// approval_hash считается отдельно при утверждении поверх данных решения.
type MatchResult struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	MatchID      uuid.UUID       `json:"match_id" db:"match_id"`
	TournamentID uuid.UUID       `json:"tournament_id" db:"tournament_id"`
	WinnerID     uuid.UUID       `json:"winner_id" db:"winner_id"`
	LoserID      uuid.UUID       `json:"loser_id" db:"loser_id"`
	Score        string          `json:"score" db:"score"`
	GameScores   pq.StringArray  `json:"game_scores,omitempty" db:"game_scores"`
	Importance   MatchImportance `json:"importance" db:"importance"`
	Status       ResultStatus    `json:"status" db:"status"`
	SubmittedBy  string          `json:"submitted_by" db:"submitted_by"`
	SubmittedAt  time.Time       `json:"submitted_at" db:"submitted_at"`

	ReviewedBy  *uuid.UUID `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewNotes *string    `json:"review_notes,omitempty" db:"review_notes"`

	OriginalHash string  `json:"original_hash" db:"original_hash"`
	ApprovalHash *string `json:"approval_hash,omitempty" db:"approval_hash"`
	HashVerified bool    `json:"hash_verified" db:"hash_verified"`

	EvidenceKeys pq.StringArray `json:"-" db:"evidence_keys"`
	EvidenceURLs []string       `json:"evidence_urls,omitempty" db:"-"`
}

// IsTerminal — rejected терминален; approved может быть оспорен в окне диспута.
func (s ResultStatus) IsTerminal() bool {
	return s == ResultStatusRejected
}

func (i MatchImportance) Valid() bool {
	switch i {
	case ImportanceRegular, ImportancePlayoff, ImportanceChampionship:
		return true
	}
	return false
}
