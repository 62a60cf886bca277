package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taxpilot/efile-service/internal/apperrors"
	"github.com/taxpilot/efile-service/internal/audit"
	"github.com/taxpilot/efile-service/internal/domain"
	"go.uber.org/zap"
)

// AckService processes provider acknowledgments: it maps IRS codes to
// terminal submission states, updates the linked return, and advances the
// workflow. The IRS may redeliver acknowledgments, so processing is
// idempotent on identical redelivery.
type AckService struct {
	store  Store
	audit  audit.Recorder
	logger *zap.Logger
}

// NewAckService creates the acknowledgment processor.
func NewAckService(store Store, recorder audit.Recorder, logger *zap.Logger) *AckService {
	return &AckService{store: store, audit: recorder, logger: logger}
}

// Process applies one acknowledgment, looked up by the external submission id
// the IRS correlates on.
func (s *AckService) Process(ctx context.Context, submissionID, ackCode, ackMessage string, receivedAt time.Time) error {
	sub, err := s.store.GetSubmissionByExternalID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("acknowledgment for unknown submission %q: %w", submissionID, err)
	}

	info := domain.ClassifyAckCode(ackCode)
	target := info.Outcome.SubmissionStatus()

	if sub.Status.IsTerminal() {
		// Identical redelivery is a no-op; anything else loses to the
		// already-terminal state.
		if sub.Status == target && sub.AckCode != nil && *sub.AckCode == ackCode {
			s.logger.Info("duplicate acknowledgment ignored",
				zap.String("submission_id", submissionID),
				zap.String("ack_code", ackCode),
			)
			return nil
		}
		return fmt.Errorf("submission %s already %s: %w", sub.ID, sub.Status, apperrors.ErrTerminalState)
	}

	if !domain.CanTransition(sub.Status, target) {
		return fmt.Errorf("cannot acknowledge submission %s in state %s: %w", sub.ID, sub.Status, apperrors.ErrIllegalTransition)
	}

	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	workflowStep := workflowStepFor(info.Outcome)
	if err := s.store.ApplyAcknowledgment(ctx, sub.ID, target, info.Outcome.ReturnStatus(), ackCode, ackMessage, receivedAt, workflowStep); err != nil {
		return fmt.Errorf("failed to apply acknowledgment to submission %s: %w", sub.ID, err)
	}

	action, severity := auditOutcome(info.Outcome)
	entry := domain.NewAuditEntry(action, domain.ResourceTypeSubmission, severity)
	id := sub.ID.String()
	entry.ResourceID = &id
	entry.ReturnID = &sub.ReturnID
	entry.SubmissionID = &sub.ID
	details, _ := json.Marshal(map[string]any{
		"ack_code":    ackCode,
		"ack_message": ackMessage,
		"outcome":     string(info.Outcome),
		"description": info.Description,
	})
	entry.Details = details
	s.audit.Record(ctx, entry)

	s.logger.Info("acknowledgment processed",
		zap.String("submission_id", submissionID),
		zap.String("ack_code", ackCode),
		zap.String("outcome", string(info.Outcome)),
	)
	return nil
}

// workflowStepFor decides where the linked workflow advances on a terminal
// acknowledgment: acceptance completes it, everything else sends the return
// back for rework.
func workflowStepFor(outcome domain.AckOutcome) string {
	switch outcome {
	case domain.AckOutcomeAccepted, domain.AckOutcomeAcceptedWithErrors:
		return domain.WorkflowStepComplete
	default:
		return domain.WorkflowStepRework
	}
}

// auditOutcome grades the acknowledgment for the compliance trail:
// acceptances log at info, rejections and system errors at error.
func auditOutcome(outcome domain.AckOutcome) (domain.AuditAction, domain.AuditSeverity) {
	switch outcome {
	case domain.AckOutcomeAccepted, domain.AckOutcomeAcceptedWithErrors:
		return domain.AuditActionAcknowledged, domain.SeverityInfo
	case domain.AckOutcomeSystemError:
		return domain.AuditActionSystemError, domain.SeverityError
	default:
		return domain.AuditActionRejected, domain.SeverityError
	}
}
