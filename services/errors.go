package services

import "errors"

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден
	ErrResultNotFound     = errors.New("match result not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrSnapshotNotFound   = errors.New("leaderboard snapshot not found")

	// Ошибки валидации подачи результата
	ErrValidationFailed     = errors.New("validation failed")
	ErrResultFieldsRequired = errors.New("match, tournament, winner and loser are required")
	ErrResultScoreInvalid   = errors.New("score must use the N-M format")
	ErrResultSameTeams      = errors.New("winner and loser must be different teams")
	ErrResultImportance     = errors.New("invalid match importance")

	// Нарушение целостности: пересчитанный дайджест не совпал с исходным.
	// Обработка результата останавливается, запись остаётся как есть.
	ErrResultTampered = errors.New("result integrity check failed: hash mismatch")

	// Конфликты переходов жизненного цикла
	ErrResultAlreadySubmitted = errors.New("result for this match already submitted")
	ErrApprovalConflict       = errors.New("result is already approved")
	ErrResultNotReviewable    = errors.New("result is not awaiting review")
	ErrResultNotDisputable    = errors.New("only approved results can be disputed")
	ErrDisputeWindowClosed    = errors.New("dispute window has elapsed")
	ErrRejectReasonRequired   = errors.New("reject requires a reason")

	// Рейтинг вышел за настроенные границы; решение за вызывающим.
	ErrRatingOutOfRange = errors.New("rating would leave the configured range")

	// Гонка одновременных утверждений по одной команде.
	ErrRatingConflict = errors.New("concurrent rating update detected")

	// Недоступность зависимостей (хранилище, аудит, уведомления)
	ErrDependencyUnavailable = errors.New("required dependency is unavailable")

	// Аутентификация
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email is already taken")
	ErrPasswordTooShort       = errors.New("password is too short")
)

// ErrorCode возвращает машинно-читаемый код для структурированного ответа.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrResultTampered):
		return "TAMPERED"
	case errors.Is(err, ErrApprovalConflict),
		errors.Is(err, ErrResultAlreadySubmitted),
		errors.Is(err, ErrRatingConflict),
		errors.Is(err, ErrAuthEmailTaken):
		return "CONFLICT"
	case errors.Is(err, ErrRatingOutOfRange):
		return "RANGE_ERROR"
	case errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrResultFieldsRequired),
		errors.Is(err, ErrResultScoreInvalid),
		errors.Is(err, ErrResultSameTeams),
		errors.Is(err, ErrResultImportance),
		errors.Is(err, ErrRejectReasonRequired),
		errors.Is(err, ErrResultNotReviewable),
		errors.Is(err, ErrResultNotDisputable),
		errors.Is(err, ErrDisputeWindowClosed),
		errors.Is(err, ErrPasswordTooShort):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrAuthInvalidCredentials):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrResultNotFound),
		errors.Is(err, ErrTournamentNotFound),
		errors.Is(err, ErrTeamNotFound),
		errors.Is(err, ErrSnapshotNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrDependencyUnavailable):
		return "DEPENDENCY_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}
