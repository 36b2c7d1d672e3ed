package models

import (
	"time"

	"github.com/google/uuid"
)

// TournamentStatus соответствует ENUM в БД.
type TournamentStatus string

const (
	TournamentStatusActive    TournamentStatus = "active"
	TournamentStatusPaused    TournamentStatus = "paused"
	TournamentStatusEnded     TournamentStatus = "ended"
	TournamentStatusCancelled TournamentStatus = "cancelled"
)

// Tournament — справочная сущность. CRUD турниров живёт во внешнем сервисе,
// здесь нужны только ссылочные данные и конфигурация пересчёта рейтинга.
type Tournament struct {
	ID         uuid.UUID        `json:"id" db:"id"`
	Name       string           `json:"name" db:"name"`
	Status     TournamentStatus `json:"status" db:"status"`
	EloEnabled bool             `json:"elo_enabled" db:"elo_enabled"`
	InitialElo int              `json:"initial_elo" db:"initial_elo"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
}

// Team — ссылочные данные команды для таблицы лидеров и уведомлений.
type Team struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	CaptainEmail string    `json:"captain_email" db:"captain_email"`
}
