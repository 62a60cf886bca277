package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/taxpilot/efile-service/internal/apperrors"
	"github.com/taxpilot/efile-service/internal/audit"
	"github.com/taxpilot/efile-service/internal/domain"
	"github.com/taxpilot/efile-service/internal/mef"
	"github.com/taxpilot/efile-service/internal/provider"
	"go.uber.org/zap"
)

// SubmissionService drives the submission state machine: validation, envelope
// build, transmission, and the transactional transitions over the submission,
// return, and workflow rows.
type SubmissionService struct {
	store      Store
	audit      audit.Recorder
	logger     *zap.Logger
	adapterFor func(p *domain.EFileProvider) (provider.Adapter, error)
}

// NewSubmissionService creates the service. httpClient carries any transport
// configuration (mutual TLS for production MEF) and may be nil.
func NewSubmissionService(store Store, recorder audit.Recorder, httpClient *http.Client, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{
		store:  store,
		audit:  recorder,
		logger: logger,
		adapterFor: func(p *domain.EFileProvider) (provider.Adapter, error) {
			return provider.ForProvider(p, httpClient, logger)
		},
	}
}

// SubmitRequest is one transmission attempt against a return.
type SubmitRequest struct {
	ReturnID       uuid.UUID
	ProviderID     uuid.UUID
	SubmissionType domain.SubmissionType
	WorkflowID     *uuid.UUID
}

// SubmitResponse reports the outcome of a transmission attempt.
type SubmitResponse struct {
	Success        bool      `json:"success"`
	SubmissionRow  uuid.UUID `json:"id"`
	SubmissionID   string    `json:"submission_id"`
	TransmissionID string    `json:"transmission_id"`
	Message        string    `json:"message"`
}

// Submit runs one full transmission attempt. Ordering is a hard precondition:
// validation completes before envelope build, and build before transmission.
func (s *SubmissionService) Submit(ctx context.Context, principal Principal, req SubmitRequest) (*SubmitResponse, error) {
	if !principal.CanTransmit() {
		return nil, apperrors.ErrPermission
	}

	if req.SubmissionType == "" {
		req.SubmissionType = domain.SubmissionTypeOriginal
	}
	if !domain.ValidSubmissionType(req.SubmissionType) {
		return nil, apperrors.NewValidationError([]string{fmt.Sprintf("unknown submission type %q", req.SubmissionType)})
	}

	ret, err := s.store.GetReturn(ctx, req.ReturnID)
	if err != nil {
		return nil, fmt.Errorf("return %s: %w", req.ReturnID, err)
	}
	prov, err := s.store.GetProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", req.ProviderID, err)
	}
	if !prov.IsActive {
		return nil, apperrors.NewValidationError([]string{"provider is not active"})
	}

	// Insert the pending row. The store serializes the original-submission
	// idempotency guard against concurrent attempts on the same return.
	sub := domain.NewSubmission(ret.ID, prov.ID, req.SubmissionType)
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return nil, err
	}

	meta, err := s.transmissionMeta(prov)
	if err != nil {
		s.failBuild(ctx, principal, sub, err)
		return nil, apperrors.ErrBuild
	}

	// Validation runs before envelope build, on the exact ids that will go
	// on the wire.
	result := mef.Validate(mef.TransmissionData{
		TransmissionID:    meta.TransmissionID,
		SubmissionID:      meta.SubmissionID,
		TestIndicator:     meta.TestIndicator,
		ChecksumAlgorithm: string(meta.ChecksumAlgorithm),
		TaxYear:           ret.TaxYear,
		TaxpayerSSN:       ret.TaxpayerSSN,
		FilingStatus:      string(ret.FilingStatus),
		PreparerPTIN:      deref(ret.PreparerPTIN),
	})
	if !result.IsValid {
		if err := s.store.MarkError(ctx, sub.ID, result.Errors, "schema validation failed", nil); err != nil {
			s.logger.Error("failed to record validation failure", zap.String("submission", sub.ID.String()), zap.Error(err))
		}
		s.recordEvent(ctx, principal, sub, domain.AuditActionValidationFailed, domain.SeverityError, map[string]any{
			"errors": result.Errors,
		})
		return nil, apperrors.NewValidationError(result.Errors)
	}
	s.recordEvent(ctx, principal, sub, domain.AuditActionValidationPassed, domain.SeverityInfo, nil)

	env, err := mef.BuildEnvelope(returnData(ret), meta)
	if err != nil {
		// Contract bug between validator and builder. Full detail goes to
		// the audit trail and logs, a generic error to the caller.
		s.failBuild(ctx, principal, sub, err)
		return nil, apperrors.ErrBuild
	}

	adapter, err := s.adapterFor(prov)
	if err != nil {
		s.failBuild(ctx, principal, sub, err)
		return nil, apperrors.ErrBuild
	}

	res := adapter.Submit(ctx, env)
	if !res.Success {
		if err := s.store.MarkError(ctx, sub.ID, nil, res.Error, res.ExternalResponse); err != nil {
			s.logger.Error("failed to record transmission failure", zap.String("submission", sub.ID.String()), zap.Error(err))
		}
		s.recordEvent(ctx, principal, sub, domain.AuditActionTransmissionError, domain.SeverityError, map[string]any{
			"error":       res.Error,
			"status_code": res.StatusCode,
		})
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTransmission, res.Error)
	}

	now := time.Now().UTC()
	sub.TransmissionID = env.TransmissionID
	sub.SubmissionID = env.SubmissionID
	sub.Payload = env.Payload
	sub.Checksum = env.Checksum
	sub.ChecksumAlgorithm = string(env.ChecksumAlgorithm)
	sub.SubmissionResponse = res.ExternalResponse
	sub.SubmittedAt = &now

	if err := s.store.MarkSubmitted(ctx, sub, req.WorkflowID); err != nil {
		// The transaction rolled back: submission stays pending, return
		// untouched. Re-running the attempt reaches consistency.
		s.recordEvent(ctx, principal, sub, domain.AuditActionTransmissionError, domain.SeverityCritical, map[string]any{
			"error": "failed to commit submitted transition",
		})
		return nil, fmt.Errorf("failed to commit submission %s: %w", sub.ID, err)
	}

	s.recordEvent(ctx, principal, sub, domain.AuditActionSubmitted, domain.SeverityInfo, map[string]any{
		"transmission_id": env.TransmissionID,
		"submission_id":   env.SubmissionID,
		"provider_type":   string(prov.Type),
		"test_indicator":  meta.TestIndicator,
		"checksum":        env.Checksum,
	})

	return &SubmitResponse{
		Success:        true,
		SubmissionRow:  sub.ID,
		SubmissionID:   env.SubmissionID,
		TransmissionID: env.TransmissionID,
		Message:        "submission transmitted",
	}, nil
}

// transmissionMeta resolves provider configuration into build metadata,
// generating the wire ids up front so validation sees the real values.
func (s *SubmissionService) transmissionMeta(prov *domain.EFileProvider) (mef.TransmissionMeta, error) {
	now := time.Now().UTC()
	meta := mef.TransmissionMeta{
		TestIndicator:     prov.TestIndicator(),
		ChecksumAlgorithm: mef.AlgorithmSHA256,
		Timestamp:         now,
	}
	if prov.Type.IsAggregator() {
		cfg, err := prov.AggregatorSettings()
		if err != nil {
			return meta, err
		}
		meta.Format = mef.FormatJSON
		meta.SchemaVersion = cfg.SchemaVersion
		meta.TransmissionID = mef.NewTransmissionID(now)
		meta.SubmissionID = mef.NewSubmissionID("", now)
		return meta, nil
	}
	cfg, err := prov.MEFConfig()
	if err != nil {
		return meta, err
	}
	meta.Format = mef.FormatXML
	meta.EFIN = cfg.EFIN
	meta.ETIN = cfg.ETIN
	meta.SchemaVersion = cfg.SchemaVersion
	meta.TransmissionID = mef.NewTransmissionID(now)
	meta.SubmissionID = mef.NewSubmissionID(cfg.EFIN, now)
	return meta, nil
}

func (s *SubmissionService) failBuild(ctx context.Context, principal Principal, sub *domain.EFileSubmission, cause error) {
	s.logger.Error("envelope build failed",
		zap.String("submission", sub.ID.String()),
		zap.Error(cause),
	)
	if err := s.store.MarkError(ctx, sub.ID, nil, "envelope build failed", nil); err != nil {
		s.logger.Error("failed to record build failure", zap.String("submission", sub.ID.String()), zap.Error(err))
	}
	s.recordEvent(ctx, principal, sub, domain.AuditActionBuildFailed, domain.SeverityCritical, map[string]any{
		"error": cause.Error(),
	})
}

func (s *SubmissionService) recordEvent(ctx context.Context, principal Principal, sub *domain.EFileSubmission, action domain.AuditAction, severity domain.AuditSeverity, details map[string]any) {
	entry := domain.NewAuditEntry(action, domain.ResourceTypeSubmission, severity)
	id := sub.ID.String()
	entry.ResourceID = &id
	entry.ReturnID = &sub.ReturnID
	entry.SubmissionID = &sub.ID
	if principal.UserID != uuid.Nil {
		userID := principal.UserID
		entry.UserID = &userID
	}
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			entry.Details = data
		}
	}
	s.audit.Record(ctx, entry)
}

// GetSubmission returns one submission, enforcing that client-role callers
// only see submissions for returns they own.
func (s *SubmissionService) GetSubmission(ctx context.Context, principal Principal, id uuid.UUID) (*domain.EFileSubmission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if principal.Role == RoleClient {
		ret, err := s.store.GetReturn(ctx, sub.ReturnID)
		if err != nil {
			return nil, err
		}
		if principal.ClientID == nil || ret.ClientID != *principal.ClientID {
			return nil, apperrors.ErrPermission
		}
	}
	return sub, nil
}

// ListSubmissions lists submissions matching the filter; client-role callers
// are scoped to their own returns.
func (s *SubmissionService) ListSubmissions(ctx context.Context, principal Principal, filter domain.SubmissionFilter) ([]*domain.EFileSubmission, error) {
	if principal.Role == RoleClient {
		if principal.ClientID == nil {
			return nil, apperrors.ErrPermission
		}
		filter.ClientID = principal.ClientID
	}
	return s.store.ListSubmissions(ctx, filter)
}

// ListProviders lists the active providers available for transmission.
func (s *SubmissionService) ListProviders(ctx context.Context) ([]*domain.EFileProvider, error) {
	return s.store.ListProviders(ctx, true)
}

// Cancel administratively cancels a pre-terminal submission. If a terminal
// acknowledgment arrived concurrently, the terminal state wins and the cancel
// is rejected.
func (s *SubmissionService) Cancel(ctx context.Context, principal Principal, id uuid.UUID) error {
	if principal.Role != RoleAdmin {
		return apperrors.ErrPermission
	}
	sub, err := s.store.CancelSubmission(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrTerminalState) {
			return err
		}
		return fmt.Errorf("failed to cancel submission %s: %w", id, err)
	}
	s.recordEvent(ctx, principal, sub, domain.AuditActionCancelled, domain.SeverityWarning, nil)
	return nil
}

func returnData(ret *domain.TaxReturn) mef.ReturnData {
	return mef.ReturnData{
		TaxYear:       ret.TaxYear,
		TaxpayerSSN:   ret.TaxpayerSSN,
		FilingStatus:  string(ret.FilingStatus),
		TaxpayerFirst: ret.TaxpayerFirst,
		TaxpayerLast:  ret.TaxpayerLast,
		SpouseSSN:     deref(ret.SpouseSSN),
		AddressLine:   ret.AddressLine,
		City:          ret.City,
		State:         ret.State,
		ZipCode:       ret.ZipCode,
		PreparerName:  deref(ret.PreparerName),
		PreparerPTIN:  deref(ret.PreparerPTIN),
		TotalIncome:   ret.TotalIncome,
		AdjustedGross: ret.AdjustedGross,
		TaxableIncome: ret.TaxableIncome,
		TotalTax:      ret.TotalTax,
		TotalPayments: ret.TotalPayments,
		RefundAmount:  ret.RefundAmount,
		AmountOwed:    ret.AmountOwed,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
