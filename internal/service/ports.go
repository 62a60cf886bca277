package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/taxpilot/efile-service/internal/domain"
)

// Principal is the authenticated caller supplied by the auth collaborator.
type Principal struct {
	UserID   uuid.UUID
	Role     string
	ClientID *uuid.UUID // set for client-role callers, scopes reads to owned returns
}

// Roles recognized by the pipeline entry points.
const (
	RoleAdmin  = "admin"
	RoleERO    = "ero"
	RoleClient = "client"
)

// CanTransmit reports whether the principal may initiate a transmission.
func (p Principal) CanTransmit() bool {
	return p.Role == RoleAdmin || p.Role == RoleERO
}

// ReturnStore reads the externally-owned tax return records.
type ReturnStore interface {
	GetReturn(ctx context.Context, id uuid.UUID) (*domain.TaxReturn, error)
}

// ProviderStore reads the admin-configured provider records.
type ProviderStore interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*domain.EFileProvider, error)
	ListProviders(ctx context.Context, activeOnly bool) ([]*domain.EFileProvider, error)
}

// SubmissionStore owns the submission rows and the atomic multi-row
// transitions. Every mutating method commits the submission row together with
// the linked return (and workflow) row in a single transaction, so the system
// never observes a return marked submitted whose submission row is still
// pending, or the reverse.
type SubmissionStore interface {
	GetSubmission(ctx context.Context, id uuid.UUID) (*domain.EFileSubmission, error)
	// GetSubmissionByExternalID looks up by the IRS-assigned submission id
	// used to correlate acknowledgments.
	GetSubmissionByExternalID(ctx context.Context, submissionID string) (*domain.EFileSubmission, error)
	ListSubmissions(ctx context.Context, filter domain.SubmissionFilter) ([]*domain.EFileSubmission, error)

	// CreateSubmission inserts the pending row. For originals it locks the
	// return row first and returns apperrors.ErrDuplicateSubmission when the
	// return is already submitted or accepted, serializing concurrent
	// idempotency checks.
	CreateSubmission(ctx context.Context, sub *domain.EFileSubmission) error

	// MarkSubmitted moves pending -> submitted: stores payload, checksum and
	// ids on the submission row (immutable from here on), stamps submittedAt,
	// sets the return to submitted with the external submission id, and
	// advances the workflow step when a workflow is linked.
	MarkSubmitted(ctx context.Context, sub *domain.EFileSubmission, workflowID *uuid.UUID) error

	// MarkError moves a pre-terminal submission to error, storing validation
	// errors or transmission error detail. The return row is left untouched
	// so a retry remains possible.
	MarkError(ctx context.Context, id uuid.UUID, validationErrors []string, errDetail string, response []byte) error

	// ApplyAcknowledgment moves submitted -> terminal per the ack outcome,
	// storing ack fields, updating the return status (when one applies), and
	// advancing the linked workflow.
	ApplyAcknowledgment(ctx context.Context, id uuid.UUID, status domain.SubmissionStatus, returnStatus domain.ReturnStatus, ackCode, ackMessage string, ackAt time.Time, workflowStep string) error

	// CancelSubmission administratively cancels a pre-terminal submission,
	// returning apperrors.ErrTerminalState when a terminal acknowledgment won
	// the race. A cancelled submission that had marked its return submitted
	// reverts the return to draft in the same transaction.
	CancelSubmission(ctx context.Context, id uuid.UUID) (*domain.EFileSubmission, error)
}

// Store aggregates the persistence capabilities the pipeline needs.
type Store interface {
	ReturnStore
	ProviderStore
	SubmissionStore
}
