package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/Dosada05/result-integrity/models"
	"github.com/google/uuid"
)

// canonicalResult фиксирует состав и порядок полей, попадающих в дайджест.
// Одно и то же логическое содержимое всегда сериализуется в одни и те же
// байты: порядок полей задан структурой, game_scores сохраняют порядок игр,
// временные метки приводятся к UTC RFC3339Nano.
type canonicalResult struct {
	MatchID      string   `json:"match_id"`
	TournamentID string   `json:"tournament_id"`
	WinnerID     string   `json:"winner_id"`
	LoserID      string   `json:"loser_id"`
	Score        string   `json:"score"`
	GameScores   []string `json:"game_scores"`
	SubmittedBy  string   `json:"submitted_by"`
	SubmittedAt  string   `json:"submitted_at"`
}

type canonicalApproval struct {
	Result     canonicalResult `json:"result"`
	Decision   string          `json:"decision"`
	ReviewerID string          `json:"reviewer_id"`
	ReviewedAt string          `json:"reviewed_at"`
}

func canonicalize(r *models.MatchResult) canonicalResult {
	games := make([]string, len(r.GameScores))
	copy(games, r.GameScores)
	return canonicalResult{
		MatchID:      r.MatchID.String(),
		TournamentID: r.TournamentID.String(),
		WinnerID:     r.WinnerID.String(),
		LoserID:      r.LoserID.String(),
		Score:        r.Score,
		GameScores:   games,
		SubmittedBy:  r.SubmittedBy,
		SubmittedAt:  r.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}
}

func digest(v any) string {
	// json.Marshal структуры детерминирован: поля идут в порядке объявления.
	raw, err := json.Marshal(v)
	if err != nil {
		// Канонические структуры состоят из строк и слайсов строк,
		// маршалинг не может завершиться ошибкой.
		panic(err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Compute возвращает 64-символьный hex SHA-256 дайджест результата.
func Compute(r *models.MatchResult) string {
	return digest(canonicalize(r))
}

// ComputeApproval считает второй дайджест поверх результата и решения
// рецензента. Исходный дайджест подачи при этом не перезаписывается.
func ComputeApproval(r *models.MatchResult, decision string, reviewerID uuid.UUID, reviewedAt time.Time) string {
	return digest(canonicalApproval{
		Result:     canonicalize(r),
		Decision:   decision,
		ReviewerID: reviewerID.String(),
		ReviewedAt: reviewedAt.UTC().Format(time.RFC3339Nano),
	})
}

// Verify пересчитывает дайджест по текущим полям и сравнивает с исходным.
// Несовпадение сообщается как есть и никогда не исправляется молча.
func Verify(r *models.MatchResult) (current string, ok bool) {
	current = Compute(r)
	return current, current == r.OriginalHash
}
