package services

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/Dosada05/result-integrity/models"
	"github.com/Dosada05/result-integrity/repositories"
	"github.com/Dosada05/result-integrity/storage"
	"github.com/google/uuid"
)

// In-memory репозитории для сервисных тестов. Семантика ошибок повторяет
// постгресовые реализации: те же sentinel-ошибки на тех же условиях.

type memResultRepo struct {
	mu      sync.Mutex
	results map[uuid.UUID]*models.MatchResult
}

func newMemResultRepo() *memResultRepo {
	return &memResultRepo{results: make(map[uuid.UUID]*models.MatchResult)}
}

func (r *memResultRepo) Create(_ context.Context, _ repositories.SQLExecutor, result *models.MatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.results {
		if existing.MatchID == result.MatchID {
			return repositories.ErrResultMatchConflict
		}
	}
	clone := *result
	r.results[result.ID] = &clone
	return nil
}

func (r *memResultRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id uuid.UUID) (*models.MatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.results[id]
	if !ok {
		return nil, repositories.ErrResultNotFound
	}
	clone := *result
	return &clone, nil
}

func (r *memResultRepo) GetByMatchID(_ context.Context, _ repositories.SQLExecutor, matchID uuid.UUID) (*models.MatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, result := range r.results {
		if result.MatchID == matchID {
			clone := *result
			return &clone, nil
		}
	}
	return nil, repositories.ErrResultNotFound
}

func (r *memResultRepo) UpdateReview(_ context.Context, _ repositories.SQLExecutor, result *models.MatchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.results[result.ID]
	if !ok {
		return repositories.ErrResultNotFound
	}
	stored.Status = result.Status
	stored.ReviewedBy = result.ReviewedBy
	stored.ReviewedAt = result.ReviewedAt
	stored.ReviewNotes = result.ReviewNotes
	stored.ApprovalHash = result.ApprovalHash
	stored.HashVerified = result.HashVerified
	return nil
}

func (r *memResultRepo) SetHashVerified(_ context.Context, _ repositories.SQLExecutor, id uuid.UUID, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.results[id]
	if !ok {
		return repositories.ErrResultNotFound
	}
	stored.HashVerified = verified
	return nil
}

func (r *memResultRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID uuid.UUID, status *models.ResultStatus) ([]*models.MatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.MatchResult
	for _, result := range r.results {
		if result.TournamentID != tournamentID {
			continue
		}
		if status != nil && result.Status != *status {
			continue
		}
		clone := *result
		out = append(out, &clone)
	}
	return out, nil
}

// tamper правит сохранённую запись напрямую, минуя сервисный слой.
func (r *memResultRepo) tamper(id uuid.UUID, mutate func(*models.MatchResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.results[id]; ok {
		mutate(stored)
	}
}

type memRatingRepo struct {
	mu      sync.Mutex
	ratings []*models.EloRating
}

func newMemRatingRepo() *memRatingRepo {
	return &memRatingRepo{}
}

func (r *memRatingRepo) Create(_ context.Context, _ repositories.SQLExecutor, rating *models.EloRating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.ratings {
		if existing.TournamentID == rating.TournamentID &&
			existing.TeamID == rating.TeamID &&
			existing.Version == rating.Version {
			return repositories.ErrRatingVersionConflict
		}
	}
	clone := *rating
	r.ratings = append(r.ratings, &clone)
	return nil
}

func (r *memRatingRepo) GetCurrent(_ context.Context, _ repositories.SQLExecutor, tournamentID, teamID uuid.UUID) (*models.EloRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var current *models.EloRating
	for _, rating := range r.ratings {
		if rating.TournamentID != tournamentID || rating.TeamID != teamID {
			continue
		}
		if current == nil || rating.Version > current.Version {
			current = rating
		}
	}
	if current == nil {
		return nil, repositories.ErrRatingNotFound
	}
	clone := *current
	return &clone, nil
}

func (r *memRatingRepo) GetByMatchAndTeam(_ context.Context, _ repositories.SQLExecutor, matchID, teamID uuid.UUID) (*models.EloRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rating := range r.ratings {
		if rating.MatchID != nil && *rating.MatchID == matchID && rating.TeamID == teamID {
			clone := *rating
			return &clone, nil
		}
	}
	return nil, repositories.ErrRatingNotFound
}

func (r *memRatingRepo) ListCurrentByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID uuid.UUID) ([]*models.EloRating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := make(map[uuid.UUID]*models.EloRating)
	for _, rating := range r.ratings {
		if rating.TournamentID != tournamentID {
			continue
		}
		if prev, ok := current[rating.TeamID]; !ok || rating.Version > prev.Version {
			current[rating.TeamID] = rating
		}
	}
	var out []*models.EloRating
	for _, rating := range current {
		clone := *rating
		out = append(out, &clone)
	}
	return out, nil
}

func (r *memRatingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ratings)
}

type memLeaderboardRepo struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*models.LeaderboardSnapshot
}

func newMemLeaderboardRepo() *memLeaderboardRepo {
	return &memLeaderboardRepo{snapshots: make(map[uuid.UUID]*models.LeaderboardSnapshot)}
}

func (r *memLeaderboardRepo) Upsert(_ context.Context, _ repositories.SQLExecutor, snapshot *models.LeaderboardSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.snapshots[snapshot.TournamentID]; ok && existing.Version >= snapshot.Version {
		return repositories.ErrSnapshotStale
	}
	clone := *snapshot
	r.snapshots[snapshot.TournamentID] = &clone
	return nil
}

func (r *memLeaderboardRepo) GetByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID uuid.UUID) (*models.LeaderboardSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot, ok := r.snapshots[tournamentID]
	if !ok {
		return nil, repositories.ErrSnapshotNotFound
	}
	clone := *snapshot
	return &clone, nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func newMemAuditRepo() *memAuditRepo {
	return &memAuditRepo{}
}

func (r *memAuditRepo) Append(_ context.Context, _ repositories.SQLExecutor, entry *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *entry
	r.entries = append(r.entries, &clone)
	return nil
}

func (r *memAuditRepo) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, entry := range r.entries {
		if entry.TournamentID != nil && *entry.TournamentID == tournamentID {
			out = append(out, entry)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memAuditRepo) ListByResource(_ context.Context, _ repositories.SQLExecutor, resourceType string, resourceID uuid.UUID) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditLog
	for _, entry := range r.entries {
		if entry.ResourceType == resourceType && entry.ResourceID == resourceID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *memAuditRepo) countByType(eventType models.AuditEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, entry := range r.entries {
		if entry.EventType == eventType {
			n++
		}
	}
	return n
}

type memTournamentRepo struct {
	tournaments map[uuid.UUID]*models.Tournament
	teams       map[uuid.UUID]*models.Team
	// Турнир -> команды, как в join-таблице tournament_teams.
	membership map[uuid.UUID][]uuid.UUID
}

func newMemTournamentRepo() *memTournamentRepo {
	return &memTournamentRepo{
		tournaments: make(map[uuid.UUID]*models.Tournament),
		teams:       make(map[uuid.UUID]*models.Team),
		membership:  make(map[uuid.UUID][]uuid.UUID),
	}
}

func (r *memTournamentRepo) addTeam(tournamentID uuid.UUID, team *models.Team) {
	r.teams[team.ID] = team
	r.membership[tournamentID] = append(r.membership[tournamentID], team.ID)
}

func (r *memTournamentRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id uuid.UUID) (*models.Tournament, error) {
	tournament, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return tournament, nil
}

func (r *memTournamentRepo) GetTeam(_ context.Context, _ repositories.SQLExecutor, id uuid.UUID) (*models.Team, error) {
	team, ok := r.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	return team, nil
}

func (r *memTournamentRepo) ListTeamsByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID uuid.UUID) ([]*models.Team, error) {
	var out []*models.Team
	for _, id := range r.membership[tournamentID] {
		if team, ok := r.teams[id]; ok {
			out = append(out, team)
		}
	}
	return out, nil
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (r *memUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return repositories.ErrUserEmailConflict
		}
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

type notifiedEvent struct {
	Event      string
	Recipients []string
	Payload    map[string]any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
}

func (n *recordingNotifier) Notify(event string, recipients []string, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifiedEvent{Event: event, Recipients: recipients, Payload: payload})
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Event == event {
			c++
		}
	}
	return c
}

type memUploader struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemUploader() *memUploader {
	return &memUploader{files: make(map[string][]byte)}
}

func (u *memUploader) Upload(_ context.Context, key string, _ string, reader io.Reader) (*storage.UploadResult, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files[key] = buf.Bytes()
	return &storage.UploadResult{Key: key, Location: "https://files.test/" + key}, nil
}

func (u *memUploader) Delete(_ context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.files, key)
	return nil
}

func (u *memUploader) GetPublicURL(key string) string {
	return "https://files.test/" + key
}
