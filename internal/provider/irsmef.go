package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/taxpilot/efile-service/internal/domain"
	"github.com/taxpilot/efile-service/internal/mef"
	"go.uber.org/zap"
)

// IRSMEFAdapter transmits XML envelopes to the IRS Modernized e-File system.
type IRSMEFAdapter struct {
	endpoint string
	testMode bool
	cfg      *domain.IRSMEFConfig
	client   *http.Client
	logger   *zap.Logger
}

// testReceipt is the deterministic response returned in test mode so
// non-production environments never touch the live MEF endpoint.
type testReceipt struct {
	Status         string `json:"status"`
	ReceiptID      string `json:"receipt_id"`
	TransmissionID string `json:"transmission_id"`
	SubmissionID   string `json:"submission_id"`
	TestIndicator  string `json:"test_indicator"`
}

// Submit sends the envelope to the MEF endpoint, or short-circuits to a
// deterministic success receipt in test mode.
func (a *IRSMEFAdapter) Submit(ctx context.Context, env *mef.Envelope) SubmitResult {
	if a.testMode {
		receipt, _ := json.Marshal(testReceipt{
			Status:         "RECEIVED",
			ReceiptID:      "TEST-" + env.TransmissionID,
			TransmissionID: env.TransmissionID,
			SubmissionID:   env.SubmissionID,
			TestIndicator:  "T",
		})
		a.logger.Info("test mode transmission short-circuited",
			zap.String("transmission_id", env.TransmissionID),
		)
		return SubmitResult{Success: true, StatusCode: http.StatusOK, ExternalResponse: receipt}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(env.Payload))
	if err != nil {
		return failure(0, "failed to build MEF request: %v", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("X-MEF-Transmission-Id", env.TransmissionID)
	if a.cfg.ETIN != "" {
		req.Header.Set("X-MEF-ETIN", a.cfg.ETIN)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("MEF transmission failed",
			zap.String("transmission_id", env.TransmissionID),
			zap.Error(err),
		)
		return failure(0, "MEF endpoint unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp.Body)
	if err != nil {
		return failure(resp.StatusCode, "failed to read MEF response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return SubmitResult{
			Success:          false,
			StatusCode:       resp.StatusCode,
			ExternalResponse: rawResponse(body),
			Error:            fmt.Sprintf("MEF endpoint returned status %d", resp.StatusCode),
		}
	}

	return SubmitResult{
		Success:          true,
		StatusCode:       resp.StatusCode,
		ExternalResponse: rawResponse(body),
	}
}

// rawResponse stores the provider response verbatim. Non-JSON bodies are
// wrapped so the stored value is always valid JSON.
func rawResponse(body []byte) json.RawMessage {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(body)})
	return json.RawMessage(wrapped)
}
