package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProviderType identifies the e-file transmission dialect a provider speaks
type ProviderType string

const (
	ProviderTypeIRSMEF         ProviderType = "irs_mef"
	ProviderTypeTaxSlayer      ProviderType = "taxslayer"
	ProviderTypeDrake          ProviderType = "drake"
	ProviderTypeThomsonReuters ProviderType = "thomson_reuters"
	ProviderTypeIntuit         ProviderType = "intuit"
	ProviderTypeAggregator     ProviderType = "aggregator"
)

// IsAggregator reports whether the provider speaks the third-party JSON
// aggregator dialect rather than native IRS MEF XML.
func (t ProviderType) IsAggregator() bool {
	return t != ProviderTypeIRSMEF
}

// EFileProvider is an admin-configured transmission endpoint.
// Read-only to this service; created and edited elsewhere.
type EFileProvider struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Type          ProviderType    `json:"type" db:"type"`
	EndpointURL   string          `json:"endpoint_url" db:"endpoint_url"`
	TestMode      bool            `json:"test_mode" db:"test_mode"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	Configuration json.RawMessage `json:"-" db:"configuration"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// TestIndicator returns the wire flag for this provider: 'T' for sandbox
// transmissions, 'P' for live filings.
func (p *EFileProvider) TestIndicator() string {
	if p.TestMode {
		return "T"
	}
	return "P"
}

// IRSMEFConfig is the typed configuration for native IRS MEF providers.
type IRSMEFConfig struct {
	EFIN           string `json:"efin"`
	ETIN           string `json:"etin"`
	SchemaVersion  string `json:"schema_version"`
	ClientCertPath string `json:"client_cert_path"`
	ClientKeyPath  string `json:"client_key_path"`
}

// AggregatorConfig is the typed configuration for third-party e-file APIs.
// APIKeyRef names the secret holding the credential; the key itself is never
// stored in the provider row.
type AggregatorConfig struct {
	BaseURL       string `json:"base_url"`
	APIKeyRef     string `json:"api_key_ref"`
	SchemaVersion string `json:"schema_version"`
}

// MEFConfig decodes the provider configuration blob as IRS MEF settings.
func (p *EFileProvider) MEFConfig() (*IRSMEFConfig, error) {
	if p.Type != ProviderTypeIRSMEF {
		return nil, fmt.Errorf("provider %s is not an IRS MEF provider", p.ID)
	}
	var cfg IRSMEFConfig
	if len(p.Configuration) > 0 {
		if err := json.Unmarshal(p.Configuration, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode MEF provider configuration: %w", err)
		}
	}
	return &cfg, nil
}

// AggregatorSettings decodes the provider configuration blob as aggregator settings.
func (p *EFileProvider) AggregatorSettings() (*AggregatorConfig, error) {
	if !p.Type.IsAggregator() {
		return nil, fmt.Errorf("provider %s is not an aggregator provider", p.ID)
	}
	var cfg AggregatorConfig
	if len(p.Configuration) > 0 {
		if err := json.Unmarshal(p.Configuration, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode aggregator provider configuration: %w", err)
		}
	}
	return &cfg, nil
}
