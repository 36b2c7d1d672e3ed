package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dosada05/result-integrity/models"
	"github.com/google/uuid"
)

var ErrAuditEntryNotFound = errors.New("audit entry not found")

// AuditRepository — журнал только дописывается: ни Update, ни Delete
// в интерфейсе намеренно нет.
type AuditRepository interface {
	Append(ctx context.Context, exec SQLExecutor, entry *models.AuditLog) error
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, limit int) ([]*models.AuditLog, error)
	ListByResource(ctx context.Context, exec SQLExecutor, resourceType string, resourceID uuid.UUID) ([]*models.AuditLog, error)
}

type postgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) AuditRepository {
	return &postgresAuditRepository{db: db}
}

func (r *postgresAuditRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresAuditRepository) Append(ctx context.Context, exec SQLExecutor, entry *models.AuditLog) error {
	executor := r.getExecutor(exec)

	oldJSON, err := json.Marshal(entry.OldValues)
	if err != nil {
		return fmt.Errorf("failed to marshal old_values: %w", err)
	}
	newJSON, err := json.Marshal(entry.NewValues)
	if err != nil {
		return fmt.Errorf("failed to marshal new_values: %w", err)
	}

	query := `
		INSERT INTO audit_logs
		    (id, event_type, actor, resource_type, resource_id, tournament_id,
		     old_values, new_values, hash, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = executor.ExecContext(ctx, query,
		entry.ID, entry.EventType, entry.Actor, entry.ResourceType, entry.ResourceID,
		entry.TournamentID, oldJSON, newJSON, entry.Hash, entry.Timestamp,
	)
	return err
}

func (r *postgresAuditRepository) scanEntry(rowScanner interface{ Scan(...any) error }) (*models.AuditLog, error) {
	var entry models.AuditLog
	var oldJSON, newJSON []byte
	err := rowScanner.Scan(
		&entry.ID, &entry.EventType, &entry.Actor, &entry.ResourceType, &entry.ResourceID,
		&entry.TournamentID, &oldJSON, &newJSON, &entry.Hash, &entry.Timestamp,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuditEntryNotFound
		}
		return nil, err
	}
	if len(oldJSON) > 0 {
		if err := json.Unmarshal(oldJSON, &entry.OldValues); err != nil {
			return nil, fmt.Errorf("failed to unmarshal old_values: %w", err)
		}
	}
	if len(newJSON) > 0 {
		if err := json.Unmarshal(newJSON, &entry.NewValues); err != nil {
			return nil, fmt.Errorf("failed to unmarshal new_values: %w", err)
		}
	}
	return &entry, nil
}

const auditColumns = `
	id, event_type, actor, resource_type, resource_id, tournament_id,
	old_values, new_values, hash, timestamp`

func (r *postgresAuditRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	executor := r.getExecutor(exec)
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE tournament_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2`

	rows, err := executor.QueryContext(ctx, query, tournamentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *postgresAuditRepository) ListByResource(ctx context.Context, exec SQLExecutor, resourceType string, resourceID uuid.UUID) ([]*models.AuditLog, error) {
	executor := r.getExecutor(exec)
	query := `
		SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY timestamp ASC, id ASC`

	rows, err := executor.QueryContext(ctx, query, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *postgresAuditRepository) collect(rows *sql.Rows) ([]*models.AuditLog, error) {
	entries := make([]*models.AuditLog, 0)
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
