package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyAckCode(t *testing.T) {
	tests := []struct {
		code    string
		outcome AckOutcome
	}{
		{"0000", AckOutcomeAccepted},
		{"1000", AckOutcomeRejected},
		{"2000", AckOutcomeRejected},
		{"3000", AckOutcomeRejected},
		{"5000", AckOutcomeAcceptedWithErrors},
		{"9999", AckOutcomeSystemError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			info := ClassifyAckCode(tt.code)
			assert.Equal(t, tt.code, info.Code)
			assert.Equal(t, tt.outcome, info.Outcome)
			assert.NotEmpty(t, info.Description)
		})
	}
}

func TestClassifyUnknownAckCode(t *testing.T) {
	info := ClassifyAckCode("7777")
	assert.Equal(t, AckOutcomeRejected, info.Outcome)
	assert.Equal(t, "7777", info.Code)
}

func TestAckOutcomeSubmissionStatus(t *testing.T) {
	assert.Equal(t, SubmissionStatusAcknowledged, AckOutcomeAccepted.SubmissionStatus())
	assert.Equal(t, SubmissionStatusAcknowledged, AckOutcomeAcceptedWithErrors.SubmissionStatus())
	assert.Equal(t, SubmissionStatusRejected, AckOutcomeRejected.SubmissionStatus())
	// A system error is not a business rejection; the submission ends in
	// error and the return stays eligible for resubmission.
	assert.Equal(t, SubmissionStatusError, AckOutcomeSystemError.SubmissionStatus())
}

func TestAckOutcomeReturnStatus(t *testing.T) {
	assert.Equal(t, ReturnStatusAccepted, AckOutcomeAccepted.ReturnStatus())
	assert.Equal(t, ReturnStatusAccepted, AckOutcomeAcceptedWithErrors.ReturnStatus())
	assert.Equal(t, ReturnStatusRejected, AckOutcomeRejected.ReturnStatus())
	assert.Equal(t, ReturnStatusDraft, AckOutcomeSystemError.ReturnStatus())
}
