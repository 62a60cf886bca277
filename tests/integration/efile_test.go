package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taxpilot/efile-service/internal/audit"
	"github.com/taxpilot/efile-service/internal/config"
	"github.com/taxpilot/efile-service/internal/crypto"
	"github.com/taxpilot/efile-service/internal/domain"
	"github.com/taxpilot/efile-service/internal/repository/postgres"
	"github.com/taxpilot/efile-service/internal/service"
	"go.uber.org/zap"
)

// TestEFileFlow requires the Docker Compose environment (Postgres with
// migrations applied).
func TestEFileFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// 1. Setup
	cfg, err := config.Load()
	require.NoError(t, err)

	logger, _ := zap.NewDevelopment()
	signer, err := crypto.NewAuditSigner(cfg.Audit.HMACSecret)
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, cfg.Database)
	require.NoError(t, err)
	defer pool.Close()

	efileRepo := postgres.NewEFileRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	auditService := audit.NewService(auditRepo, nil, nil, signer, logger)
	submissionService := service.NewSubmissionService(efileRepo, auditService, nil, logger)
	ackService := service.NewAckService(efileRepo, auditService, logger)

	// 2. Seed a sandbox provider and a draft return
	providerID := uuid.New()
	providerCfg, _ := json.Marshal(map[string]string{"efin": "123456", "etin": "98765"})
	_, err = pool.Exec(ctx, `
		INSERT INTO efile_providers (id, name, type, endpoint_url, test_mode, is_active, configuration)
		VALUES ($1, $2, 'irs_mef', 'https://mef-sandbox.invalid', TRUE, TRUE, $3)`,
		providerID, "integration-mef-"+providerID.String()[:8], providerCfg,
	)
	require.NoError(t, err)

	returnID := uuid.New()
	clientID := uuid.New()
	_, err = pool.Exec(ctx, `
		INSERT INTO tax_returns (id, client_id, tax_year, filing_status, taxpayer_ssn, taxpayer_first, taxpayer_last, status)
		VALUES ($1, $2, 2025, 'Single', '123456789', 'Integration', 'Test', 'draft')`,
		returnID, clientID,
	)
	require.NoError(t, err)

	principal := service.Principal{UserID: uuid.New(), Role: service.RoleERO}

	// 3. Submit (test mode short-circuits the network call)
	resp, err := submissionService.Submit(ctx, principal, service.SubmitRequest{
		ReturnID:   returnID,
		ProviderID: providerID,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)

	sub, err := efileRepo.GetSubmission(ctx, resp.SubmissionRow)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusSubmitted, sub.Status)
	assert.NotEmpty(t, sub.Payload)

	ret, err := efileRepo.GetReturn(ctx, returnID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusSubmitted, ret.Status)

	// 4. Duplicate original is refused while the first is in flight
	_, err = submissionService.Submit(ctx, principal, service.SubmitRequest{
		ReturnID:   returnID,
		ProviderID: providerID,
	})
	require.Error(t, err)

	// 5. Acknowledge
	err = ackService.Process(ctx, resp.SubmissionID, "0000", "Return accepted", time.Now().UTC())
	require.NoError(t, err)

	sub, err = efileRepo.GetSubmission(ctx, resp.SubmissionRow)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionStatusAcknowledged, sub.Status)

	ret, err = efileRepo.GetReturn(ctx, returnID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusAccepted, ret.Status)

	// 6. Verification - trail retrieval verifies every signature
	page, err := auditService.Trail(ctx, domain.AuditFilter{ReturnID: &returnID, Limit: 50})
	require.NoError(t, err)
	require.NotEmpty(t, page.Entries)

	var actions []domain.AuditAction
	for _, e := range page.Entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, domain.AuditActionValidationPassed)
	assert.Contains(t, actions, domain.AuditActionSubmitted)
	assert.Contains(t, actions, domain.AuditActionAcknowledged)

	t.Log("E-File Flow Integration Test Passed")
}
