package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/result-integrity/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrResultNotFound      = errors.New("match result not found")
	ErrResultMatchConflict = errors.New("result for this match already submitted")
)

type ResultRepository interface {
	Create(ctx context.Context, exec SQLExecutor, result *models.MatchResult) error
	GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.MatchResult, error)
	GetByMatchID(ctx context.Context, exec SQLExecutor, matchID uuid.UUID) (*models.MatchResult, error)
	UpdateReview(ctx context.Context, exec SQLExecutor, result *models.MatchResult) error
	SetHashVerified(ctx context.Context, exec SQLExecutor, id uuid.UUID, verified bool) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, status *models.ResultStatus) ([]*models.MatchResult, error)
}

type postgresResultRepository struct {
	db *sql.DB
}

func NewPostgresResultRepository(db *sql.DB) ResultRepository {
	return &postgresResultRepository{db: db}
}

func (r *postgresResultRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

const resultColumns = `
	id, match_id, tournament_id, winner_id, loser_id, score, game_scores,
	importance, status, submitted_by, submitted_at, reviewed_by, reviewed_at,
	review_notes, original_hash, approval_hash, hash_verified, evidence_keys`

func (r *postgresResultRepository) Create(ctx context.Context, exec SQLExecutor, result *models.MatchResult) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO match_results
		    (id, match_id, tournament_id, winner_id, loser_id, score, game_scores,
		     importance, status, submitted_by, submitted_at, original_hash, hash_verified, evidence_keys)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := executor.ExecContext(ctx, query,
		result.ID, result.MatchID, result.TournamentID, result.WinnerID, result.LoserID,
		result.Score, result.GameScores, result.Importance, result.Status,
		result.SubmittedBy, result.SubmittedAt, result.OriginalHash, result.HashVerified,
		result.EvidenceKeys,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "match_results_match_id_key" {
				return ErrResultMatchConflict
			}
		}
		return err
	}
	return nil
}

func (r *postgresResultRepository) scanResult(rowScanner interface{ Scan(...any) error }) (*models.MatchResult, error) {
	var res models.MatchResult
	err := rowScanner.Scan(
		&res.ID, &res.MatchID, &res.TournamentID, &res.WinnerID, &res.LoserID,
		&res.Score, &res.GameScores, &res.Importance, &res.Status,
		&res.SubmittedBy, &res.SubmittedAt, &res.ReviewedBy, &res.ReviewedAt,
		&res.ReviewNotes, &res.OriginalHash, &res.ApprovalHash, &res.HashVerified,
		&res.EvidenceKeys,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	return &res, nil
}

func (r *postgresResultRepository) GetByID(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.MatchResult, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + resultColumns + ` FROM match_results WHERE id = $1`
	return r.scanResult(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresResultRepository) GetByMatchID(ctx context.Context, exec SQLExecutor, matchID uuid.UUID) (*models.MatchResult, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + resultColumns + ` FROM match_results WHERE match_id = $1`
	return r.scanResult(executor.QueryRowContext(ctx, query, matchID))
}

// UpdateReview обновляет только поля жизненного цикла проверки. Поля самого
// результата и original_hash после подачи неизменяемы.
func (r *postgresResultRepository) UpdateReview(ctx context.Context, exec SQLExecutor, result *models.MatchResult) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE match_results SET
			status = $1, reviewed_by = $2, reviewed_at = $3, review_notes = $4,
			approval_hash = $5, hash_verified = $6
		WHERE id = $7`

	res, err := executor.ExecContext(ctx, query,
		result.Status, result.ReviewedBy, result.ReviewedAt, result.ReviewNotes,
		result.ApprovalHash, result.HashVerified, result.ID,
	)
	if err != nil {
		return err
	}
	return checkAffectedRows(res, ErrResultNotFound)
}

func (r *postgresResultRepository) SetHashVerified(ctx context.Context, exec SQLExecutor, id uuid.UUID, verified bool) error {
	executor := r.getExecutor(exec)
	res, err := executor.ExecContext(ctx,
		`UPDATE match_results SET hash_verified = $1 WHERE id = $2`, verified, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(res, ErrResultNotFound)
}

func (r *postgresResultRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, status *models.ResultStatus) ([]*models.MatchResult, error) {
	executor := r.getExecutor(exec)
	query := `SELECT ` + resultColumns + ` FROM match_results WHERE tournament_id = $1`
	args := []any{tournamentID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY submitted_at ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*models.MatchResult, 0)
	for rows.Next() {
		res, errScan := r.scanResult(rows)
		if errScan != nil {
			return nil, errScan
		}
		results = append(results, res)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
