// Package leaderboard строит снимок таблицы лидеров по утверждённым
// результатам и текущим рейтингам. Агрегатор — чистая функция: читает
// входные данные, возвращает новый снимок и не держит состояния.
package leaderboard

import (
	"sort"
	"time"

	"github.com/Dosada05/result-integrity/models"
	"github.com/google/uuid"
)

const pointsPerWin = 3

// Имена тай-брейков, допустимые в конфигурации.
const (
	TiebreakHeadToHead = "head_to_head"
	TiebreakWinPct     = "win_pct"
	TiebreakElo        = "elo"
)

// Policy — упорядоченный список тай-брейков, применяемых после очков и
// рейтинга. Порядок задаётся конфигурацией турнира, не кодом.
type Policy struct {
	Tiebreakers []string
}

// Input — данные, нужные для пересчёта таблицы одного турнира.
type Input struct {
	TournamentID uuid.UUID
	// Только утверждённые результаты.
	Results []*models.MatchResult
	// Текущий рейтинг каждой команды.
	Ratings map[uuid.UUID]int
	// Имена команд для отображения, опционально.
	TeamNames map[uuid.UUID]string
}

// Aggregate пересчитывает таблицу целиком. Порядок полный: после исчерпания
// тай-брейков команды упорядочиваются по UUID, так что одинаковые входные
// данные всегда дают байт-в-байт одинаковый снимок.
func Aggregate(in Input, policy Policy, version int, now time.Time) *models.LeaderboardSnapshot {
	type acc struct {
		wins   int
		losses int
	}
	totals := make(map[uuid.UUID]*acc)
	// head-to-head: победы team A над team B
	h2h := make(map[[2]uuid.UUID]int)

	team := func(id uuid.UUID) *acc {
		a, ok := totals[id]
		if !ok {
			a = &acc{}
			totals[id] = a
		}
		return a
	}

	for _, r := range in.Results {
		if r.Status != models.ResultStatusApproved {
			continue
		}
		team(r.WinnerID).wins++
		team(r.LoserID).losses++
		h2h[[2]uuid.UUID{r.WinnerID, r.LoserID}]++
	}

	// Команды с рейтингом, но без сыгранных матчей, тоже попадают в таблицу.
	for id := range in.Ratings {
		team(id)
	}

	standings := make([]models.TeamStanding, 0, len(totals))
	for id, a := range totals {
		played := a.wins + a.losses
		winPct := 0.0
		if played > 0 {
			winPct = float64(a.wins) / float64(played) * 100
		}
		standings = append(standings, models.TeamStanding{
			TeamID:        id,
			TeamName:      in.TeamNames[id],
			MatchesPlayed: played,
			Wins:          a.wins,
			Losses:        a.losses,
			WinPercentage: winPct,
			CurrentElo:    in.Ratings[id],
			Points:        a.wins * pointsPerWin,
		})
	}

	// Базовый порядок: очки, рейтинг, затем UUID. Ключ транзитивен, поэтому
	// результат сортировки не зависит от порядка обхода totals.
	sort.Slice(standings, func(i, j int) bool {
		a, b := standings[i], standings[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.CurrentElo != b.CurrentElo {
			return a.CurrentElo > b.CurrentElo
		}
		return a.TeamID.String() < b.TeamID.String()
	})

	// Тай-брейки применяются погруппно: head-to-head внутри группы равных —
	// это мини-таблица по всей группе, а не попарное сравнение. Попарное
	// сравнение нетранзитивно при круговой зависимости побед (A>B, B>C, C>A)
	// и ломает полный порядок.
	start := 0
	for i := 1; i <= len(standings); i++ {
		if i == len(standings) ||
			standings[i].Points != standings[start].Points ||
			standings[i].CurrentElo != standings[start].CurrentElo {
			resolveGroup(standings[start:i], policy.Tiebreakers, h2h)
			start = i
		}
	}

	for i := range standings {
		standings[i].Rank = i + 1
	}

	return &models.LeaderboardSnapshot{
		ID:           uuid.New(),
		TournamentID: in.TournamentID,
		Standings:    standings,
		TotalTeams:   len(standings),
		Version:      version,
		GeneratedBy:  "system",
		GeneratedAt:  now,
	}
}

// resolveGroup упорядочивает группу команд, равных по очкам и рейтингу.
// Первый тай-брейк цепочки считается единым ключом по всей группе; подгруппы,
// которые он не разделил, уходят на остаток цепочки. После исчерпания
// цепочки порядок замыкается по UUID команды.
func resolveGroup(group []models.TeamStanding, tiebreakers []string, h2h map[[2]uuid.UUID]int) {
	if len(group) <= 1 {
		return
	}
	if len(tiebreakers) == 0 {
		sort.Slice(group, func(i, j int) bool {
			return group[i].TeamID.String() < group[j].TeamID.String()
		})
		return
	}

	key := make(map[uuid.UUID]float64, len(group))
	switch tiebreakers[0] {
	case TiebreakHeadToHead:
		// Мини-таблица: победы только над участниками этой группы.
		for _, s := range group {
			wins := 0
			for _, o := range group {
				if o.TeamID != s.TeamID {
					wins += h2h[[2]uuid.UUID{s.TeamID, o.TeamID}]
				}
			}
			key[s.TeamID] = float64(wins)
		}
	case TiebreakWinPct:
		for _, s := range group {
			key[s.TeamID] = s.WinPercentage
		}
	case TiebreakElo:
		for _, s := range group {
			key[s.TeamID] = float64(s.CurrentElo)
		}
	default:
		// Неизвестное имя тай-брейка пропускается.
		resolveGroup(group, tiebreakers[1:], h2h)
		return
	}

	sort.SliceStable(group, func(i, j int) bool {
		return key[group[i].TeamID] > key[group[j].TeamID]
	})

	start := 0
	for i := 1; i <= len(group); i++ {
		if i == len(group) || key[group[i].TeamID] != key[group[start].TeamID] {
			resolveGroup(group[start:i], tiebreakers[1:], h2h)
			start = i
		}
	}
}
