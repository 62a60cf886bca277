package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taxpilot/efile-service/internal/domain"
)

// AuditRepository is the append-only ledger behind the audit trail.
// No Update or Delete is ever performed on this table.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append inserts a new audit entry. This is an APPEND-ONLY operation.
func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditLogEntry) error {
	const query = `
		INSERT INTO audit_log_entries (
			id, user_id, action, resource_type, resource_id,
			return_id, submission_id, severity, details, signature, timestamp
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.ReturnID, entry.SubmissionID, entry.Severity, entry.Details, entry.Signature, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Query retrieves audit entries based on filter, newest first.
func (r *AuditRepository) Query(ctx context.Context, filter domain.AuditFilter) (*domain.AuditPage, error) {
	query := `
		SELECT
			id, user_id, action, resource_type, resource_id,
			return_id, submission_id, severity, details, signature, timestamp
		FROM audit_log_entries
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.ReturnID != nil {
		query += fmt.Sprintf(" AND return_id = $%d", argIdx)
		args = append(args, *filter.ReturnID)
		argIdx++
	}
	if filter.SubmissionID != nil {
		query += fmt.Sprintf(" AND submission_id = $%d", argIdx)
		args = append(args, *filter.SubmissionID)
		argIdx++
	}
	if filter.Action != nil {
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, *filter.Action)
		argIdx++
	}
	if filter.Severity != nil {
		query += fmt.Sprintf(" AND severity = $%d", argIdx)
		args = append(args, *filter.Severity)
		argIdx++
	}
	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *filter.StartTime)
		argIdx++
	}
	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *filter.EndTime)
		argIdx++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") as total"
	var totalCount int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count audit entries: %w", err)
	}

	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		err := rows.Scan(
			&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.ReturnID, &e.SubmissionID, &e.Severity, &e.Details, &e.Signature, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}

	return &domain.AuditPage{
		Entries:    entries,
		TotalCount: totalCount,
		PageSize:   filter.Limit,
		HasMore:    totalCount > int64(filter.Offset+filter.Limit),
	}, nil
}
