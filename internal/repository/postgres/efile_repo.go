package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taxpilot/efile-service/internal/apperrors"
	"github.com/taxpilot/efile-service/internal/domain"
)

// EFileRepository persists submissions, returns, providers, and workflow
// instances. Every state-machine transition updates the submission row and
// the linked return (and workflow) row in a single transaction.
type EFileRepository struct {
	pool *pgxpool.Pool
}

// NewEFileRepository creates a new e-file repository
func NewEFileRepository(pool *pgxpool.Pool) *EFileRepository {
	return &EFileRepository{pool: pool}
}

const submissionColumns = `
	id, return_id, provider_id, submission_type, transmission_id, submission_id,
	status, payload, checksum, checksum_algorithm, submission_response,
	validation_errors, error_detail, ack_code, ack_message, ack_timestamp,
	submitted_at, created_at
`

func scanSubmission(row pgx.Row) (*domain.EFileSubmission, error) {
	var s domain.EFileSubmission
	err := row.Scan(
		&s.ID, &s.ReturnID, &s.ProviderID, &s.SubmissionType, &s.TransmissionID, &s.SubmissionID,
		&s.Status, &s.Payload, &s.Checksum, &s.ChecksumAlgorithm, &s.SubmissionResponse,
		&s.ValidationErrors, &s.ErrorDetail, &s.AckCode, &s.AckMessage, &s.AckTimestamp,
		&s.SubmittedAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}
	return &s, nil
}

// GetSubmission retrieves a submission by its row id.
func (r *EFileRepository) GetSubmission(ctx context.Context, id uuid.UUID) (*domain.EFileSubmission, error) {
	query := "SELECT " + submissionColumns + " FROM efile_submissions WHERE id = $1"
	return scanSubmission(r.pool.QueryRow(ctx, query, id))
}

// GetSubmissionByExternalID retrieves a submission by the IRS-assigned
// submission id carried on acknowledgments.
func (r *EFileRepository) GetSubmissionByExternalID(ctx context.Context, submissionID string) (*domain.EFileSubmission, error) {
	query := "SELECT " + submissionColumns + " FROM efile_submissions WHERE submission_id = $1"
	return scanSubmission(r.pool.QueryRow(ctx, query, submissionID))
}

// ListSubmissions retrieves submissions matching the filter, newest first.
// A ClientID filter joins through tax_returns so client callers only see
// their own submissions.
func (r *EFileRepository) ListSubmissions(ctx context.Context, filter domain.SubmissionFilter) ([]*domain.EFileSubmission, error) {
	query := `
		SELECT s.id, s.return_id, s.provider_id, s.submission_type, s.transmission_id, s.submission_id,
			s.status, s.payload, s.checksum, s.checksum_algorithm, s.submission_response,
			s.validation_errors, s.error_detail, s.ack_code, s.ack_message, s.ack_timestamp,
			s.submitted_at, s.created_at
		FROM efile_submissions s
	`
	args := []interface{}{}
	argIdx := 1

	if filter.ClientID != nil {
		query += " JOIN tax_returns r ON r.id = s.return_id"
	}
	query += " WHERE 1=1"
	if filter.ReturnID != nil {
		query += fmt.Sprintf(" AND s.return_id = $%d", argIdx)
		args = append(args, *filter.ReturnID)
		argIdx++
	}
	if filter.ClientID != nil {
		query += fmt.Sprintf(" AND r.client_id = $%d", argIdx)
		args = append(args, *filter.ClientID)
		argIdx++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND s.status = $%d", argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	query += fmt.Sprintf(" ORDER BY s.created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.EFileSubmission
	for rows.Next() {
		var s domain.EFileSubmission
		err := rows.Scan(
			&s.ID, &s.ReturnID, &s.ProviderID, &s.SubmissionType, &s.TransmissionID, &s.SubmissionID,
			&s.Status, &s.Payload, &s.Checksum, &s.ChecksumAlgorithm, &s.SubmissionResponse,
			&s.ValidationErrors, &s.ErrorDetail, &s.AckCode, &s.AckMessage, &s.AckTimestamp,
			&s.SubmittedAt, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, &s)
	}
	return subs, nil
}

// CreateSubmission inserts the pending row. For originals the return row is
// locked first so concurrent attempts serialize on the idempotency guard: a
// return already submitted or accepted rejects a new original.
func (r *EFileRepository) CreateSubmission(ctx context.Context, sub *domain.EFileSubmission) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if sub.SubmissionType == domain.SubmissionTypeOriginal {
		var status domain.ReturnStatus
		err := tx.QueryRow(ctx,
			"SELECT status FROM tax_returns WHERE id = $1 FOR UPDATE", sub.ReturnID,
		).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("failed to lock return row: %w", err)
		}
		if status == domain.ReturnStatusSubmitted || status == domain.ReturnStatusAccepted {
			return apperrors.ErrDuplicateSubmission
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO efile_submissions (
			id, return_id, provider_id, submission_type, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.ReturnID, sub.ProviderID, sub.SubmissionType, sub.Status, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit submission insert: %w", err)
	}
	return nil
}

// MarkSubmitted commits the pending -> submitted transition together with the
// return update (status, external submission id) and the linked workflow
// advancement. Payload and checksum become immutable from here on; the
// guarded UPDATE ensures only a pending row transitions.
func (r *EFileRepository) MarkSubmitted(ctx context.Context, sub *domain.EFileSubmission, workflowID *uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE efile_submissions SET
			status = $2, transmission_id = $3, submission_id = $4, payload = $5,
			checksum = $6, checksum_algorithm = $7, submission_response = $8, submitted_at = $9
		WHERE id = $1 AND status = $10`,
		sub.ID, domain.SubmissionStatusSubmitted, sub.TransmissionID, sub.SubmissionID, sub.Payload,
		sub.Checksum, sub.ChecksumAlgorithm, sub.SubmissionResponse, sub.SubmittedAt,
		domain.SubmissionStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrIllegalTransition
	}

	_, err = tx.Exec(ctx, `
		UPDATE tax_returns SET status = $2, irs_submission_id = $3, updated_at = $4
		WHERE id = $1`,
		sub.ReturnID, domain.ReturnStatusSubmitted, sub.SubmissionID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update return: %w", err)
	}

	if workflowID != nil {
		_, err = tx.Exec(ctx, `
			UPDATE workflow_instances SET current_step = $2, updated_at = $3
			WHERE id = $1`,
			*workflowID, domain.WorkflowStepAcknowledgment, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to advance workflow: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit submitted transition: %w", err)
	}
	return nil
}

// MarkError moves a pending submission to error. The return row is left
// untouched so the attempt can be retried with a fresh submission.
func (r *EFileRepository) MarkError(ctx context.Context, id uuid.UUID, validationErrors []string, errDetail string, response []byte) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE efile_submissions SET
			status = $2, validation_errors = $3, error_detail = $4, submission_response = $5
		WHERE id = $1 AND status = $6`,
		id, domain.SubmissionStatusError, validationErrors, errDetail, response,
		domain.SubmissionStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark submission error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrIllegalTransition
	}
	return nil
}

// ApplyAcknowledgment commits the submitted -> terminal transition, the
// return status change, and the workflow advancement in one transaction. The
// submission row is locked so a concurrent cancel loses cleanly.
func (r *EFileRepository) ApplyAcknowledgment(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, returnStatus domain.ReturnStatus, ackCode, ackMessage string, ackAt time.Time, workflowStep string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current domain.SubmissionStatus
	var returnID uuid.UUID
	err = tx.QueryRow(ctx,
		"SELECT status, return_id FROM efile_submissions WHERE id = $1 FOR UPDATE", id,
	).Scan(&current, &returnID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to lock submission row: %w", err)
	}
	if current.IsTerminal() {
		return apperrors.ErrTerminalState
	}
	if !domain.CanTransition(current, status) {
		return apperrors.ErrIllegalTransition
	}

	_, err = tx.Exec(ctx, `
		UPDATE efile_submissions SET
			status = $2, ack_code = $3, ack_message = $4, ack_timestamp = $5
		WHERE id = $1`,
		id, status, ackCode, ackMessage, ackAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update submission: %w", err)
	}

	if returnStatus != "" {
		_, err = tx.Exec(ctx, `
			UPDATE tax_returns SET status = $2, updated_at = $3 WHERE id = $1`,
			returnID, returnStatus, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to update return: %w", err)
		}
	}

	if workflowStep != "" {
		// Workflow linkage is optional; zero rows affected is fine.
		_, err = tx.Exec(ctx, `
			UPDATE workflow_instances SET current_step = $2, updated_at = $3
			WHERE return_id = $1`,
			returnID, workflowStep, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to advance workflow: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit acknowledgment: %w", err)
	}
	return nil
}

// CancelSubmission administratively cancels a pre-terminal submission. The
// row lock means a terminal acknowledgment that landed first wins the race.
// Cancelling a submitted submission reverts the return to draft so the
// return never shows submitted over a cancelled submission.
func (r *EFileRepository) CancelSubmission(ctx context.Context, id uuid.UUID) (*domain.EFileSubmission, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := "SELECT " + submissionColumns + " FROM efile_submissions WHERE id = $1 FOR UPDATE"
	sub, err := scanSubmission(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return nil, apperrors.ErrTerminalState
	}

	_, err = tx.Exec(ctx,
		"UPDATE efile_submissions SET status = $2 WHERE id = $1",
		id, domain.SubmissionStatusCancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel submission: %w", err)
	}

	if sub.Status == domain.SubmissionStatusSubmitted {
		_, err = tx.Exec(ctx, `
			UPDATE tax_returns SET status = $2, updated_at = $3 WHERE id = $1`,
			sub.ReturnID, domain.ReturnStatusDraft, time.Now().UTC(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to revert return status: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	sub.Status = domain.SubmissionStatusCancelled
	return sub, nil
}

// GetReturn retrieves a tax return by id.
func (r *EFileRepository) GetReturn(ctx context.Context, id uuid.UUID) (*domain.TaxReturn, error) {
	var t domain.TaxReturn
	err := r.pool.QueryRow(ctx, `
		SELECT id, client_id, tax_year, filing_status, taxpayer_ssn, taxpayer_first, taxpayer_last,
			spouse_ssn, address_line, city, state, zip_code, preparer_name, preparer_ptin,
			total_income, adjusted_gross_income, taxable_income, total_tax, total_payments,
			refund_amount, amount_owed, status, irs_submission_id, created_at, updated_at
		FROM tax_returns WHERE id = $1`, id,
	).Scan(
		&t.ID, &t.ClientID, &t.TaxYear, &t.FilingStatus, &t.TaxpayerSSN, &t.TaxpayerFirst, &t.TaxpayerLast,
		&t.SpouseSSN, &t.AddressLine, &t.City, &t.State, &t.ZipCode, &t.PreparerName, &t.PreparerPTIN,
		&t.TotalIncome, &t.AdjustedGross, &t.TaxableIncome, &t.TotalTax, &t.TotalPayments,
		&t.RefundAmount, &t.AmountOwed, &t.Status, &t.IRSSubmissionID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get return: %w", err)
	}
	return &t, nil
}

// GetProvider retrieves a provider by id.
func (r *EFileRepository) GetProvider(ctx context.Context, id uuid.UUID) (*domain.EFileProvider, error) {
	var p domain.EFileProvider
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, type, endpoint_url, test_mode, is_active, configuration, created_at
		FROM efile_providers WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Type, &p.EndpointURL, &p.TestMode, &p.IsActive, &p.Configuration, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &p, nil
}

// ListProviders retrieves providers, optionally only active ones.
func (r *EFileRepository) ListProviders(ctx context.Context, activeOnly bool) ([]*domain.EFileProvider, error) {
	query := `
		SELECT id, name, type, endpoint_url, test_mode, is_active, configuration, created_at
		FROM efile_providers
	`
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY name"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query providers: %w", err)
	}
	defer rows.Close()

	var providers []*domain.EFileProvider
	for rows.Next() {
		var p domain.EFileProvider
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.EndpointURL, &p.TestMode, &p.IsActive, &p.Configuration, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, &p)
	}
	return providers, nil
}
