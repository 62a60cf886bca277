package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the kind of pipeline event being recorded
type AuditAction string

const (
	AuditActionValidationPassed  AuditAction = "efile_validation_passed"
	AuditActionValidationFailed  AuditAction = "efile_validation_failed"
	AuditActionBuildFailed       AuditAction = "efile_build_failed"
	AuditActionSubmitted         AuditAction = "efile_submitted"
	AuditActionTransmissionError AuditAction = "efile_transmission_error"
	AuditActionAcknowledged      AuditAction = "efile_acknowledged"
	AuditActionRejected          AuditAction = "efile_rejected"
	AuditActionSystemError       AuditAction = "efile_system_error"
	AuditActionCancelled         AuditAction = "efile_cancelled"
	AuditActionTrailExported     AuditAction = "efile_audit_exported"
)

// AuditResourceType identifies what an audit entry is about
type AuditResourceType string

const (
	ResourceTypeSubmission AuditResourceType = "EFILE_SUBMISSION"
	ResourceTypeTaxReturn  AuditResourceType = "TAX_RETURN"
	ResourceTypeProvider   AuditResourceType = "EFILE_PROVIDER"
	ResourceTypeAuditTrail AuditResourceType = "AUDIT_TRAIL"
)

// AuditSeverity grades audit entries for compliance review
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityError    AuditSeverity = "error"
	SeverityCritical AuditSeverity = "critical"
)

// AuditLogEntry is an immutable audit record.
// Entries are NEVER modified or deleted by this service; a separate retention
// process outside this scope owns expiry.
type AuditLogEntry struct {
	ID           uuid.UUID         `json:"id" db:"id"`
	UserID       *uuid.UUID        `json:"user_id,omitempty" db:"user_id"` // nil for system-triggered events
	Action       AuditAction       `json:"action" db:"action"`
	ResourceType AuditResourceType `json:"resource_type" db:"resource_type"`
	ResourceID   *string           `json:"resource_id,omitempty" db:"resource_id"`
	ReturnID     *uuid.UUID        `json:"return_id,omitempty" db:"return_id"`
	SubmissionID *uuid.UUID        `json:"submission_id,omitempty" db:"submission_id"`
	Severity     AuditSeverity     `json:"severity" db:"severity"`
	Details      []byte            `json:"details,omitempty" db:"details"` // JSON blob for structured context
	Signature    string            `json:"signature" db:"signature"`       // HMAC signature for tamper evidence
	Timestamp    time.Time         `json:"timestamp" db:"timestamp"`
}

// NewAuditEntry creates an audit entry with a generated ID and UTC timestamp.
func NewAuditEntry(action AuditAction, resource AuditResourceType, severity AuditSeverity) *AuditLogEntry {
	return &AuditLogEntry{
		ID:           uuid.New(),
		Action:       action,
		ResourceType: resource,
		Severity:     severity,
		Timestamp:    time.Now().UTC(),
	}
}

// AuditFilter narrows audit trail queries. Querying by return or submission ID
// reconstructs the full per-return trail.
type AuditFilter struct {
	ReturnID     *uuid.UUID
	SubmissionID *uuid.UUID
	Action       *AuditAction
	Severity     *AuditSeverity
	StartTime    *time.Time
	EndTime      *time.Time
	Limit        int
	Offset       int
}

// AuditPage represents paginated audit entries
type AuditPage struct {
	Entries    []*AuditLogEntry `json:"entries"`
	TotalCount int64            `json:"total_count"`
	PageSize   int              `json:"page_size"`
	HasMore    bool             `json:"has_more"`
}
