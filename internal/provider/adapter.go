// Package provider normalizes the transmission dialects of the supported
// e-file endpoints behind one interface. The state machine never needs to
// know which provider it called: every adapter returns the same result shape
// and captures failures instead of throwing them past this boundary.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/taxpilot/efile-service/internal/domain"
	"github.com/taxpilot/efile-service/internal/mef"
	"go.uber.org/zap"
)

// maxResponseBytes bounds how much of a provider response we store verbatim.
const maxResponseBytes = 1 << 20

// SubmitResult is the uniform outcome shape returned by every adapter.
// Network failures, non-2xx responses, and malformed responses all land here
// as Success=false; the state machine treats them as ordinary inputs.
type SubmitResult struct {
	Success          bool            `json:"success"`
	StatusCode       int             `json:"status_code,omitempty"`
	ExternalResponse json.RawMessage `json:"external_response,omitempty"`
	Error            string          `json:"error,omitempty"`
}

// Adapter transmits a built envelope to one provider endpoint.
type Adapter interface {
	Submit(ctx context.Context, env *mef.Envelope) SubmitResult
}

// ForProvider selects the adapter variant for a provider record. The caller
// supplies the HTTP client; for production IRS MEF that client carries the
// certificate-based mutual TLS configuration, which is a collaborator
// concern, not re-implemented here.
func ForProvider(p *domain.EFileProvider, client *http.Client, logger *zap.Logger) (Adapter, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	switch p.Type {
	case domain.ProviderTypeIRSMEF:
		cfg, err := p.MEFConfig()
		if err != nil {
			return nil, err
		}
		return &IRSMEFAdapter{
			endpoint: p.EndpointURL,
			testMode: p.TestMode,
			cfg:      cfg,
			client:   client,
			logger:   logger,
		}, nil
	case domain.ProviderTypeTaxSlayer, domain.ProviderTypeDrake, domain.ProviderTypeThomsonReuters,
		domain.ProviderTypeIntuit, domain.ProviderTypeAggregator:
		cfg, err := p.AggregatorSettings()
		if err != nil {
			return nil, err
		}
		return &AggregatorAdapter{
			endpoint: p.EndpointURL,
			testMode: p.TestMode,
			cfg:      cfg,
			client:   client,
			logger:   logger,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", p.Type)
	}
}

// failure wraps an error message into the uniform result shape.
func failure(statusCode int, format string, args ...any) SubmitResult {
	return SubmitResult{
		Success:    false,
		StatusCode: statusCode,
		Error:      fmt.Sprintf(format, args...),
	}
}

// readResponse drains a provider response body with a size cap.
func readResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, maxResponseBytes))
}
