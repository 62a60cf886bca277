package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taxpilot/efile-service/internal/apperrors"
	"github.com/taxpilot/efile-service/internal/domain"
	"github.com/taxpilot/efile-service/internal/service"
)

type stubSubmitter struct {
	submitResp *service.SubmitResponse
	submitErr  error
	lastReq    service.SubmitRequest
	cancelErr  error
}

func (s *stubSubmitter) Submit(_ context.Context, _ service.Principal, req service.SubmitRequest) (*service.SubmitResponse, error) {
	s.lastReq = req
	return s.submitResp, s.submitErr
}

func (s *stubSubmitter) GetSubmission(_ context.Context, _ service.Principal, id uuid.UUID) (*domain.EFileSubmission, error) {
	return nil, apperrors.ErrNotFound
}

func (s *stubSubmitter) ListSubmissions(_ context.Context, _ service.Principal, _ domain.SubmissionFilter) ([]*domain.EFileSubmission, error) {
	return nil, nil
}

func (s *stubSubmitter) ListProviders(_ context.Context) ([]*domain.EFileProvider, error) {
	return []*domain.EFileProvider{{Name: "IRS MEF"}}, nil
}

func (s *stubSubmitter) Cancel(_ context.Context, _ service.Principal, _ uuid.UUID) error {
	return s.cancelErr
}

type stubAudit struct{}

func (stubAudit) Search(_ context.Context, _ string, _, _ int) (*domain.AuditPage, error) {
	return &domain.AuditPage{}, nil
}

func (stubAudit) ExportTrail(_ context.Context, _ uuid.UUID, _ uuid.UUID) (string, int, error) {
	return "2026/03/15/export.json", 7, nil
}

func withPrincipal(c echo.Context, role string) {
	claims := jwt.MapClaims{
		"sub":  uuid.New().String(),
		"role": role,
	}
	c.Set("user", &jwt.Token{Claims: &claims})
}

func newContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestSubmitEndpoint(t *testing.T) {
	stub := &stubSubmitter{
		submitResp: &service.SubmitResponse{
			Success:        true,
			SubmissionID:   "12345620260750000001",
			TransmissionID: "T20260315103000AB12C",
		},
	}
	h := NewEFileHandler(stub, stubAudit{})

	returnID := uuid.New()
	providerID := uuid.New()
	body, _ := json.Marshal(map[string]string{
		"return_id":       returnID.String(),
		"provider_id":     providerID.String(),
		"submission_type": "correction",
	})

	c, rec := newContext(t, http.MethodPost, "/api/efile/submit", string(body))
	withPrincipal(c, service.RoleERO)

	require.NoError(t, h.Submit(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, returnID, stub.lastReq.ReturnID)
	assert.Equal(t, domain.SubmissionTypeCorrection, stub.lastReq.SubmissionType)

	var resp service.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "12345620260750000001", resp.SubmissionID)
}

func TestSubmitEndpointRejectsBadBody(t *testing.T) {
	h := NewEFileHandler(&stubSubmitter{}, stubAudit{})

	tests := []struct {
		name string
		body string
	}{
		{"missing return id", `{"provider_id":"` + uuid.NewString() + `"}`},
		{"malformed uuid", `{"return_id":"not-a-uuid","provider_id":"` + uuid.NewString() + `"}`},
		{"bad submission type", `{"return_id":"` + uuid.NewString() + `","provider_id":"` + uuid.NewString() + `","submission_type":"superseded"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(t, http.MethodPost, "/api/efile/submit", tt.body)
			withPrincipal(c, service.RoleERO)
			require.NoError(t, h.Submit(c))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitEndpointUnauthenticated(t *testing.T) {
	h := NewEFileHandler(&stubSubmitter{}, stubAudit{})
	c, rec := newContext(t, http.MethodPost, "/api/efile/submit", `{}`)
	require.NoError(t, h.Submit(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	validBody := `{"return_id":"` + uuid.NewString() + `","provider_id":"` + uuid.NewString() + `"}`

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", apperrors.NewValidationError([]string{"taxpayerSsn must be exactly 9 digits"}), http.StatusBadRequest},
		{"duplicate", apperrors.ErrDuplicateSubmission, http.StatusBadRequest},
		{"permission", apperrors.ErrPermission, http.StatusForbidden},
		{"not found", apperrors.ErrNotFound, http.StatusNotFound},
		{"terminal", apperrors.ErrTerminalState, http.StatusConflict},
		{"transmission", apperrors.ErrTransmission, http.StatusBadGateway},
		{"build", apperrors.ErrBuild, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewEFileHandler(&stubSubmitter{submitErr: tt.err}, stubAudit{})
			c, rec := newContext(t, http.MethodPost, "/api/efile/submit", validBody)
			withPrincipal(c, service.RoleERO)
			require.NoError(t, h.Submit(c))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestValidationErrorsAreItemized(t *testing.T) {
	errs := []string{"taxpayerSsn must be exactly 9 digits", "filingStatus is required"}
	h := NewEFileHandler(&stubSubmitter{submitErr: apperrors.NewValidationError(errs)}, stubAudit{})

	body := `{"return_id":"` + uuid.NewString() + `","provider_id":"` + uuid.NewString() + `"}`
	c, rec := newContext(t, http.MethodPost, "/api/efile/submit", body)
	withPrincipal(c, service.RoleERO)
	require.NoError(t, h.Submit(c))

	var resp struct {
		ValidationErrors []string `json:"validation_errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errs, resp.ValidationErrors)
}

func TestAuditEndpointsRequireAdmin(t *testing.T) {
	h := NewEFileHandler(&stubSubmitter{}, stubAudit{})

	c, rec := newContext(t, http.MethodGet, "/api/efile/audit/search?q=efile_rejected", "")
	withPrincipal(c, service.RoleERO)
	require.NoError(t, h.SearchAudit(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	c, rec = newContext(t, http.MethodGet, "/api/efile/audit/search?q=efile_rejected", "")
	withPrincipal(c, service.RoleAdmin)
	require.NoError(t, h.SearchAudit(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	h := NewEFileHandler(&stubSubmitter{}, stubAudit{})

	body := `{"return_id":"` + uuid.NewString() + `"}`
	c, rec := newContext(t, http.MethodPost, "/api/efile/audit/export", body)
	withPrincipal(c, service.RoleAdmin)
	require.NoError(t, h.ExportAudit(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ExportKey  string `json:"export_key"`
		EntryCount int    `json:"entry_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2026/03/15/export.json", resp.ExportKey)
	assert.Equal(t, 7, resp.EntryCount)
}

func TestListSubmissionsRejectsBadFilter(t *testing.T) {
	h := NewEFileHandler(&stubSubmitter{}, stubAudit{})

	c, rec := newContext(t, http.MethodGet, "/api/efile/submissions?return_id=nope", "")
	withPrincipal(c, service.RoleAdmin)
	require.NoError(t, h.ListSubmissions(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelEndpointConflict(t *testing.T) {
	h := NewEFileHandler(&stubSubmitter{cancelErr: apperrors.ErrTerminalState}, stubAudit{})

	c, rec := newContext(t, http.MethodPost, "/api/efile/submissions/"+uuid.NewString()+"/cancel", "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	withPrincipal(c, service.RoleAdmin)
	require.NoError(t, h.CancelSubmission(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
