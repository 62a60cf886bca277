package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/taxpilot/efile-service/internal/apperrors"
	"github.com/taxpilot/efile-service/internal/domain"
	"github.com/taxpilot/efile-service/internal/service"
)

// Submitter is the slice of the submission service the handler needs.
type Submitter interface {
	Submit(ctx context.Context, principal service.Principal, req service.SubmitRequest) (*service.SubmitResponse, error)
	GetSubmission(ctx context.Context, principal service.Principal, id uuid.UUID) (*domain.EFileSubmission, error)
	ListSubmissions(ctx context.Context, principal service.Principal, filter domain.SubmissionFilter) ([]*domain.EFileSubmission, error)
	ListProviders(ctx context.Context) ([]*domain.EFileProvider, error)
	Cancel(ctx context.Context, principal service.Principal, id uuid.UUID) error
}

// AuditReader is the slice of the audit service the handler needs.
type AuditReader interface {
	Search(ctx context.Context, query string, from, size int) (*domain.AuditPage, error)
	ExportTrail(ctx context.Context, returnID uuid.UUID, requestedBy uuid.UUID) (string, int, error)
}

// EFileHandler exposes the transmission pipeline over HTTP.
type EFileHandler struct {
	submissions Submitter
	audit       AuditReader
	validate    *validator.Validate
}

// NewEFileHandler creates the handler.
func NewEFileHandler(submissions Submitter, auditReader AuditReader) *EFileHandler {
	return &EFileHandler{
		submissions: submissions,
		audit:       auditReader,
		validate:    validator.New(),
	}
}

// submitRequest is the POST /submit body. Field names are snake_case on the
// wire, matching the persisted record attributes.
type submitRequest struct {
	ReturnID       string `json:"return_id" validate:"required,uuid"`
	ProviderID     string `json:"provider_id" validate:"required,uuid"`
	SubmissionType string `json:"submission_type" validate:"omitempty,oneof=original correction amended"`
	WorkflowID     string `json:"workflow_id" validate:"omitempty,uuid"`
}

// Submit handles POST /api/efile/submit
func (h *EFileHandler) Submit(c echo.Context) error {
	principal, err := principalFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}

	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	svcReq := service.SubmitRequest{
		ReturnID:       uuid.MustParse(req.ReturnID),
		ProviderID:     uuid.MustParse(req.ProviderID),
		SubmissionType: domain.SubmissionType(req.SubmissionType),
	}
	if req.WorkflowID != "" {
		wf := uuid.MustParse(req.WorkflowID)
		svcReq.WorkflowID = &wf
	}

	resp, err := h.submissions.Submit(c.Request().Context(), principal, svcReq)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListProviders handles GET /api/efile/providers
func (h *EFileHandler) ListProviders(c echo.Context) error {
	if _, err := principalFrom(c); err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}
	providers, err := h.submissions.ListProviders(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, providers)
}

// ListSubmissions handles GET /api/efile/submissions?return_id=&status=
func (h *EFileHandler) ListSubmissions(c echo.Context) error {
	principal, err := principalFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}

	var filter domain.SubmissionFilter
	if v := c.QueryParam("return_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid return_id"})
		}
		filter.ReturnID = &id
	}
	if v := c.QueryParam("status"); v != "" {
		status := domain.SubmissionStatus(v)
		filter.Status = &status
	}
	filter.Limit, _ = strconv.Atoi(c.QueryParam("limit"))

	subs, err := h.submissions.ListSubmissions(c.Request().Context(), principal, filter)
	if err != nil {
		return writeError(c, err)
	}
	if subs == nil {
		subs = []*domain.EFileSubmission{}
	}
	return c.JSON(http.StatusOK, subs)
}

// GetSubmission handles GET /api/efile/submissions/:id
func (h *EFileHandler) GetSubmission(c echo.Context) error {
	principal, err := principalFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid submission id"})
	}

	sub, err := h.submissions.GetSubmission(c.Request().Context(), principal, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

// CancelSubmission handles POST /api/efile/submissions/:id/cancel
func (h *EFileHandler) CancelSubmission(c echo.Context) error {
	principal, err := principalFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid submission id"})
	}

	if err := h.submissions.Cancel(c.Request().Context(), principal, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "submission cancelled"})
}

// SearchAudit handles GET /api/efile/audit/search
func (h *EFileHandler) SearchAudit(c echo.Context) error {
	principal, err := principalFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}
	if principal.Role != service.RoleAdmin {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "admin role required"})
	}

	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing query parameter 'q'"})
	}
	from, _ := strconv.Atoi(c.QueryParam("from"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	if size == 0 {
		size = 20
	}

	page, err := h.audit.Search(c.Request().Context(), query, from, size)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

type exportRequest struct {
	ReturnID string `json:"return_id" validate:"required,uuid"`
}

// ExportAudit handles POST /api/efile/audit/export
func (h *EFileHandler) ExportAudit(c echo.Context) error {
	principal, err := principalFrom(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
	}
	if principal.Role != service.RoleAdmin {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "admin role required"})
	}

	var req exportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	key, count, err := h.audit.ExportTrail(c.Request().Context(), uuid.MustParse(req.ReturnID), principal.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"export_key": key, "entry_count": count})
}

// RegisterRoutes registers the API routes
func (h *EFileHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/providers", h.ListProviders)
	g.POST("/submit", h.Submit)
	g.GET("/submissions", h.ListSubmissions)
	g.GET("/submissions/:id", h.GetSubmission)
	g.POST("/submissions/:id/cancel", h.CancelSubmission)
	g.GET("/audit/search", h.SearchAudit)
	g.POST("/audit/export", h.ExportAudit)
}

// principalFrom extracts the authenticated principal the auth collaborator
// placed in the JWT claims.
func principalFrom(c echo.Context) (service.Principal, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil {
		return service.Principal{}, errors.New("missing token")
	}
	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok {
		return service.Principal{}, errors.New("unexpected claims type")
	}

	var p service.Principal
	if sub, ok := (*claims)["sub"].(string); ok {
		if id, err := uuid.Parse(sub); err == nil {
			p.UserID = id
		}
	}
	if role, ok := (*claims)["role"].(string); ok {
		p.Role = role
	}
	if clientID, ok := (*claims)["client_id"].(string); ok {
		if id, err := uuid.Parse(clientID); err == nil {
			p.ClientID = &id
		}
	}
	if p.Role == "" {
		return service.Principal{}, errors.New("missing role claim")
	}
	return p, nil
}

// writeError maps the error taxonomy onto HTTP statuses. No internal detail
// crosses the wire beyond what each branch chooses to expose.
func writeError(c echo.Context, err error) error {
	var vErr *apperrors.ValidationError
	switch {
	case errors.As(err, &vErr):
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":             "validation failed",
			"validation_errors": vErr.Errors,
		})
	case errors.Is(err, apperrors.ErrDuplicateSubmission):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "return already submitted; use submission_type=correction to file a correction",
		})
	case errors.Is(err, apperrors.ErrPermission):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "permission denied"})
	case errors.Is(err, apperrors.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, apperrors.ErrTerminalState):
		return c.JSON(http.StatusConflict, map[string]string{"error": "submission already reached a terminal state"})
	case errors.Is(err, apperrors.ErrTransmission):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "transmission to provider failed; the attempt was recorded and may be retried"})
	case errors.Is(err, apperrors.ErrBuild):
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "submission could not be built"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
