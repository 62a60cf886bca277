package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus represents the lifecycle state of an e-file submission
type SubmissionStatus string

const (
	SubmissionStatusPending      SubmissionStatus = "pending"
	SubmissionStatusSubmitted    SubmissionStatus = "submitted"
	SubmissionStatusAcknowledged SubmissionStatus = "acknowledged"
	SubmissionStatusRejected     SubmissionStatus = "rejected"
	SubmissionStatusError        SubmissionStatus = "error"
	SubmissionStatusCancelled    SubmissionStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are permitted on a row in this state.
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case SubmissionStatusAcknowledged, SubmissionStatusRejected, SubmissionStatusError, SubmissionStatusCancelled:
		return true
	}
	return false
}

// legalTransitions is the full transition table. Anything not listed here is illegal.
var legalTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionStatusPending: {
		SubmissionStatusSubmitted,
		SubmissionStatusError,
		SubmissionStatusCancelled,
	},
	SubmissionStatusSubmitted: {
		SubmissionStatusAcknowledged,
		SubmissionStatusRejected,
		SubmissionStatusError,
		SubmissionStatusCancelled,
	},
}

// CanTransition reports whether moving a submission from one status to another is legal.
// Terminal states never transition.
func CanTransition(from, to SubmissionStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SubmissionType distinguishes an original filing from corrections and amendments
type SubmissionType string

const (
	SubmissionTypeOriginal   SubmissionType = "original"
	SubmissionTypeCorrection SubmissionType = "correction"
	SubmissionTypeAmended    SubmissionType = "amended"
)

// ValidSubmissionType reports whether t is one of the known submission types.
func ValidSubmissionType(t SubmissionType) bool {
	switch t {
	case SubmissionTypeOriginal, SubmissionTypeCorrection, SubmissionTypeAmended:
		return true
	}
	return false
}

// EFileSubmission is the central record of one transmission attempt.
// A correction is a NEW row referencing the same return, never a mutation of a
// terminal row. Once Status leaves pending, Payload and Checksum are immutable
// so the exact transmitted bytes can be replayed for audit.
type EFileSubmission struct {
	ID                 uuid.UUID        `json:"id" db:"id"`
	ReturnID           uuid.UUID        `json:"return_id" db:"return_id"`
	ProviderID         uuid.UUID        `json:"provider_id" db:"provider_id"`
	SubmissionType     SubmissionType   `json:"submission_type" db:"submission_type"`
	TransmissionID     string           `json:"transmission_id" db:"transmission_id"`
	SubmissionID       string           `json:"submission_id" db:"submission_id"` // external IRS correlation id
	Status             SubmissionStatus `json:"status" db:"status"`
	Payload            []byte           `json:"-" db:"payload"`
	Checksum           string           `json:"checksum" db:"checksum"`
	ChecksumAlgorithm  string           `json:"checksum_algorithm" db:"checksum_algorithm"`
	SubmissionResponse []byte           `json:"submission_response,omitempty" db:"submission_response"` // raw provider response, verbatim
	ValidationErrors   []string         `json:"validation_errors,omitempty" db:"validation_errors"`
	ErrorDetail        *string          `json:"error_detail,omitempty" db:"error_detail"`
	AckCode            *string          `json:"ack_code,omitempty" db:"ack_code"`
	AckMessage         *string          `json:"ack_message,omitempty" db:"ack_message"`
	AckTimestamp       *time.Time       `json:"ack_timestamp,omitempty" db:"ack_timestamp"`
	SubmittedAt        *time.Time       `json:"submitted_at,omitempty" db:"submitted_at"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
}

// NewSubmission creates a pending submission row for one transmission attempt.
func NewSubmission(returnID, providerID uuid.UUID, subType SubmissionType) *EFileSubmission {
	return &EFileSubmission{
		ID:             uuid.New(),
		ReturnID:       returnID,
		ProviderID:     providerID,
		SubmissionType: subType,
		Status:         SubmissionStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

// SubmissionFilter narrows submission list queries.
type SubmissionFilter struct {
	ReturnID *uuid.UUID
	ClientID *uuid.UUID // restricts to returns owned by this client
	Status   *SubmissionStatus
	Limit    int
	Offset   int
}
