package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/taxpilot/efile-service/internal/domain"
	"github.com/taxpilot/efile-service/internal/mef"
	"go.uber.org/zap"
)

// AggregatorAdapter transmits JSON payloads to third-party e-file APIs
// (TaxSlayer, Drake, Thomson Reuters, Intuit, generic aggregators).
type AggregatorAdapter struct {
	endpoint string
	testMode bool
	cfg      *domain.AggregatorConfig
	client   *http.Client
	logger   *zap.Logger
}

// Submit posts the JSON envelope. In test mode no network call is made.
// Production requires an API credential resolved from the environment via
// the configured key reference; the key itself never lives in provider rows
// or code.
func (a *AggregatorAdapter) Submit(ctx context.Context, env *mef.Envelope) SubmitResult {
	if a.testMode {
		receipt, _ := json.Marshal(map[string]string{
			"status":          "accepted_for_processing",
			"reference":       "TEST-" + env.SubmissionID,
			"transmission_id": env.TransmissionID,
		})
		a.logger.Info("test mode aggregator transmission short-circuited",
			zap.String("transmission_id", env.TransmissionID),
		)
		return SubmitResult{Success: true, StatusCode: http.StatusAccepted, ExternalResponse: receipt}
	}

	apiKey := os.Getenv(a.cfg.APIKeyRef)
	if a.cfg.APIKeyRef == "" || apiKey == "" {
		return failure(0, "aggregator API credential %q is not configured", a.cfg.APIKeyRef)
	}

	endpoint := a.endpoint
	if a.cfg.BaseURL != "" {
		endpoint = a.cfg.BaseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(env.Payload))
	if err != nil {
		return failure(0, "failed to build aggregator request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", apiKey)
	req.Header.Set("X-Transmission-Id", env.TransmissionID)

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("aggregator transmission failed",
			zap.String("transmission_id", env.TransmissionID),
			zap.Error(err),
		)
		return failure(0, "aggregator endpoint unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp.Body)
	if err != nil {
		return failure(resp.StatusCode, "failed to read aggregator response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return SubmitResult{
			Success:          false,
			StatusCode:       resp.StatusCode,
			ExternalResponse: rawResponse(body),
			Error:            fmt.Sprintf("aggregator returned status %d", resp.StatusCode),
		}
	}

	return SubmitResult{
		Success:          true,
		StatusCode:       resp.StatusCode,
		ExternalResponse: rawResponse(body),
	}
}
