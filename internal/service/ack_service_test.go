package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taxpilot/efile-service/internal/apperrors"
	"github.com/taxpilot/efile-service/internal/domain"
	"go.uber.org/zap"
)

// submittedFixture seeds a store with one submitted submission, its return,
// and a linked workflow, returning all three.
func submittedFixture(store *fakeStore) (*domain.EFileSubmission, *domain.TaxReturn, *domain.WorkflowInstance) {
	ret := draftReturn(uuid.New())
	ret.Status = domain.ReturnStatusSubmitted
	store.returns[ret.ID] = ret

	sub := domain.NewSubmission(ret.ID, uuid.New(), domain.SubmissionTypeOriginal)
	sub.Status = domain.SubmissionStatusSubmitted
	sub.SubmissionID = "12345620260750000001"
	now := time.Now().UTC()
	sub.SubmittedAt = &now
	store.submissions[sub.ID] = sub

	wf := &domain.WorkflowInstance{ID: uuid.New(), ReturnID: ret.ID, CurrentStep: domain.WorkflowStepAcknowledgment}
	store.workflows[wf.ID] = wf
	return sub, ret, wf
}

func newAckTestService(store *fakeStore) (*AckService, *fakeRecorder) {
	recorder := &fakeRecorder{}
	return NewAckService(store, recorder, zap.NewNop()), recorder
}

func TestProcessAcceptance(t *testing.T) {
	store := newFakeStore()
	sub, ret, wf := submittedFixture(store)
	svc, recorder := newAckTestService(store)

	ackAt := time.Now().UTC()
	err := svc.Process(context.Background(), sub.SubmissionID, "0000", "Return accepted", ackAt)
	require.NoError(t, err)

	stored := store.submissions[sub.ID]
	assert.Equal(t, domain.SubmissionStatusAcknowledged, stored.Status)
	require.NotNil(t, stored.AckCode)
	assert.Equal(t, "0000", *stored.AckCode)
	assert.Equal(t, "Return accepted", *stored.AckMessage)
	assert.Equal(t, ackAt, *stored.AckTimestamp)

	assert.Equal(t, domain.ReturnStatusAccepted, ret.Status)
	assert.Equal(t, domain.WorkflowStepComplete, wf.CurrentStep)
	assert.Equal(t, []domain.AuditAction{domain.AuditActionAcknowledged}, recorder.actions())
}

func TestProcessAcceptedWithErrors(t *testing.T) {
	store := newFakeStore()
	sub, ret, wf := submittedFixture(store)
	svc, _ := newAckTestService(store)

	err := svc.Process(context.Background(), sub.SubmissionID, "5000", "Accepted with errors", time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, domain.SubmissionStatusAcknowledged, store.submissions[sub.ID].Status)
	assert.Equal(t, domain.ReturnStatusAccepted, ret.Status)
	assert.Equal(t, domain.WorkflowStepComplete, wf.CurrentStep)
}

func TestProcessRejection(t *testing.T) {
	for _, code := range []string{"1000", "2000", "3000"} {
		t.Run(code, func(t *testing.T) {
			store := newFakeStore()
			sub, ret, wf := submittedFixture(store)
			svc, recorder := newAckTestService(store)

			err := svc.Process(context.Background(), sub.SubmissionID, code, "rejected", time.Now().UTC())
			require.NoError(t, err)

			assert.Equal(t, domain.SubmissionStatusRejected, store.submissions[sub.ID].Status)
			assert.Equal(t, domain.ReturnStatusRejected, ret.Status)
			assert.Equal(t, domain.WorkflowStepRework, wf.CurrentStep)
			assert.Equal(t, []domain.AuditAction{domain.AuditActionRejected}, recorder.actions())
		})
	}
}

func TestProcessSystemError(t *testing.T) {
	store := newFakeStore()
	sub, ret, _ := submittedFixture(store)
	svc, recorder := newAckTestService(store)

	err := svc.Process(context.Background(), sub.SubmissionID, "9999", "IRS system error", time.Now().UTC())
	require.NoError(t, err)

	// 9999 is a system error, not a business rejection: the submission ends
	// in error and the return goes back to draft for resubmission.
	assert.Equal(t, domain.SubmissionStatusError, store.submissions[sub.ID].Status)
	assert.Equal(t, domain.ReturnStatusDraft, ret.Status)
	assert.Equal(t, []domain.AuditAction{domain.AuditActionSystemError}, recorder.actions())
}

func TestProcessUnknownCodeRejects(t *testing.T) {
	store := newFakeStore()
	sub, ret, _ := submittedFixture(store)
	svc, _ := newAckTestService(store)

	err := svc.Process(context.Background(), sub.SubmissionID, "4242", "", time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, domain.SubmissionStatusRejected, store.submissions[sub.ID].Status)
	assert.Equal(t, domain.ReturnStatusRejected, ret.Status)
}

func TestProcessIdenticalRedeliveryIsNoOp(t *testing.T) {
	store := newFakeStore()
	sub, _, _ := submittedFixture(store)
	svc, recorder := newAckTestService(store)

	require.NoError(t, svc.Process(context.Background(), sub.SubmissionID, "0000", "accepted", time.Now().UTC()))
	firstAckAt := *store.submissions[sub.ID].AckTimestamp

	// The IRS redelivers the same acknowledgment; nothing changes.
	err := svc.Process(context.Background(), sub.SubmissionID, "0000", "accepted", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, firstAckAt, *store.submissions[sub.ID].AckTimestamp)
	assert.Len(t, recorder.actions(), 1)
}

func TestProcessConflictingAckOnTerminalState(t *testing.T) {
	store := newFakeStore()
	sub, ret, _ := submittedFixture(store)
	svc, _ := newAckTestService(store)

	require.NoError(t, svc.Process(context.Background(), sub.SubmissionID, "0000", "accepted", time.Now().UTC()))

	// A contradictory acknowledgment loses to the terminal state.
	err := svc.Process(context.Background(), sub.SubmissionID, "1000", "duplicate", time.Now().UTC())
	assert.ErrorIs(t, err, apperrors.ErrTerminalState)
	assert.Equal(t, domain.SubmissionStatusAcknowledged, store.submissions[sub.ID].Status)
	assert.Equal(t, domain.ReturnStatusAccepted, ret.Status)
}

func TestProcessAckForPendingSubmissionIsIllegal(t *testing.T) {
	store := newFakeStore()
	ret := draftReturn(uuid.New())
	store.returns[ret.ID] = ret
	sub := domain.NewSubmission(ret.ID, uuid.New(), domain.SubmissionTypeOriginal)
	sub.SubmissionID = "12345620260750000009"
	store.submissions[sub.ID] = sub

	svc, _ := newAckTestService(store)

	// Acknowledged is not reachable from pending.
	err := svc.Process(context.Background(), sub.SubmissionID, "0000", "accepted", time.Now().UTC())
	assert.ErrorIs(t, err, apperrors.ErrIllegalTransition)
	assert.Equal(t, domain.SubmissionStatusPending, store.submissions[sub.ID].Status)
}

func TestProcessUnknownSubmission(t *testing.T) {
	store := newFakeStore()
	svc, _ := newAckTestService(store)

	err := svc.Process(context.Background(), "99999999999999999999", "0000", "", time.Now().UTC())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
