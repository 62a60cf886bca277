package mef

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReturn() ReturnData {
	return ReturnData{
		TaxYear:       2025,
		TaxpayerSSN:   "123456789",
		FilingStatus:  "Single",
		TaxpayerFirst: "Jane",
		TaxpayerLast:  "Smith",
		AddressLine:   "12 Main St",
		City:          "Springfield",
		State:         "IL",
		ZipCode:       "62701",
		PreparerName:  "Pat Preparer",
		PreparerPTIN:  "P12345678",
		TotalIncome:   decimal.NewFromInt(85000),
		AdjustedGross: decimal.NewFromInt(79000),
		TaxableIncome: decimal.NewFromInt(65000),
		TotalTax:      decimal.NewFromFloat(9874.50),
		TotalPayments: decimal.NewFromInt(11000),
		RefundAmount:  decimal.NewFromFloat(1125.50),
	}
}

func sampleMeta() TransmissionMeta {
	return TransmissionMeta{
		TransmissionID:    "T2026031510300AB12C",
		SubmissionID:      "12345620260750000001",
		TestIndicator:     "T",
		ChecksumAlgorithm: AlgorithmSHA256,
		EFIN:              "123456",
		ETIN:              "98765",
		SchemaVersion:     "2025v1.0",
		Format:            FormatXML,
		Timestamp:         time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestBuildEnvelopeDeterministic(t *testing.T) {
	ret := sampleReturn()
	meta := sampleMeta()

	first, err := BuildEnvelope(ret, meta)
	require.NoError(t, err)
	second, err := BuildEnvelope(ret, meta)
	require.NoError(t, err)

	// Identical inputs with pinned ids and timestamp must reproduce the
	// exact transmitted bytes, so audit replay can re-verify checksums.
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, first.Checksum, second.Checksum)
	assert.Equal(t, "T2026031510300AB12C", first.TransmissionID)
	assert.Equal(t, "12345620260750000001", first.SubmissionID)
}

func TestBuildEnvelopeXMLManifest(t *testing.T) {
	env, err := BuildEnvelope(sampleReturn(), sampleMeta())
	require.NoError(t, err)

	payload := string(env.Payload)
	assert.Contains(t, payload, "<TransmissionId>T2026031510300AB12C</TransmissionId>")
	assert.Contains(t, payload, "<SubmissionId>12345620260750000001</SubmissionId>")
	assert.Contains(t, payload, "<TestIndicator>T</TestIndicator>")
	assert.Contains(t, payload, "<EFIN>123456</EFIN>")
	assert.Contains(t, payload, "<ETIN>98765</ETIN>")
	assert.Contains(t, payload, "<ChecksumAlgorithm>SHA-256</ChecksumAlgorithm>")
	assert.Contains(t, payload, "<Checksum>"+env.Checksum+"</Checksum>")
	assert.Contains(t, payload, "<Timestamp>2026-03-15T10:30:00Z</Timestamp>")
	assert.Contains(t, payload, `schemaVersion="2025v1.0"`)
	assert.Contains(t, payload, "<TotalTax>9874.50</TotalTax>")

	// The manifest checksum covers the return-data section.
	start := strings.Index(payload, "    <ReturnData>")
	end := strings.Index(payload, "</ReturnData>") + len("</ReturnData>\n")
	require.True(t, start >= 0 && end > start)
	body := payload[start:end]
	ok, err := VerifyChecksum([]byte(body), env.ChecksumAlgorithm, env.Checksum)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuildEnvelopeEscapesXMLMetacharacters(t *testing.T) {
	ret := sampleReturn()
	ret.TaxpayerLast = `O'Brien & <Sons> "Jr"`

	env, err := BuildEnvelope(ret, sampleMeta())
	require.NoError(t, err)

	payload := string(env.Payload)
	assert.Contains(t, payload, "O&apos;Brien &amp; &lt;Sons&gt; &quot;Jr&quot;")
	assert.NotContains(t, payload, "<Sons>")
}

func TestBuildEnvelopeMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReturnData, *TransmissionMeta)
	}{
		{"missing ssn", func(r *ReturnData, _ *TransmissionMeta) { r.TaxpayerSSN = "" }},
		{"missing filing status", func(r *ReturnData, _ *TransmissionMeta) { r.FilingStatus = "" }},
		{"missing tax year", func(r *ReturnData, _ *TransmissionMeta) { r.TaxYear = 0 }},
		{"bad test indicator", func(_ *ReturnData, m *TransmissionMeta) { m.TestIndicator = "X" }},
		{"empty test indicator", func(_ *ReturnData, m *TransmissionMeta) { m.TestIndicator = "" }},
		{"bad checksum algorithm", func(_ *ReturnData, m *TransmissionMeta) { m.ChecksumAlgorithm = "MD5" }},
		{"bad format", func(_ *ReturnData, m *TransmissionMeta) { m.Format = "yaml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ret := sampleReturn()
			meta := sampleMeta()
			tt.mutate(&ret, &meta)
			_, err := BuildEnvelope(ret, meta)
			assert.Error(t, err)
		})
	}
}

func TestBuildEnvelopeGeneratesIDsWhenEmpty(t *testing.T) {
	meta := sampleMeta()
	meta.TransmissionID = ""
	meta.SubmissionID = ""
	meta.ChecksumAlgorithm = ""
	meta.SchemaVersion = ""

	env, err := BuildEnvelope(sampleReturn(), meta)
	require.NoError(t, err)

	assert.Regexp(t, `^[A-Z0-9]{8,20}$`, env.TransmissionID)
	assert.Regexp(t, `^[0-9]{15,20}$`, env.SubmissionID)
	assert.Equal(t, AlgorithmSHA256, env.ChecksumAlgorithm)
	assert.Contains(t, string(env.Payload), `schemaVersion="`+DefaultSchemaVersion+`"`)
}

func TestBuildEnvelopeJSON(t *testing.T) {
	meta := sampleMeta()
	meta.Format = FormatJSON

	env, err := BuildEnvelope(sampleReturn(), meta)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, env.Format)

	var decoded struct {
		Manifest struct {
			TransmissionID    string `json:"transmission_id"`
			SubmissionID      string `json:"submission_id"`
			TestIndicator     string `json:"test_indicator"`
			ChecksumAlgorithm string `json:"checksum_algorithm"`
			Checksum          string `json:"checksum"`
		} `json:"submission_manifest"`
		ReturnData json.RawMessage `json:"return_data"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))

	assert.Equal(t, meta.TransmissionID, decoded.Manifest.TransmissionID)
	assert.Equal(t, meta.SubmissionID, decoded.Manifest.SubmissionID)
	assert.Equal(t, "T", decoded.Manifest.TestIndicator)
	assert.Equal(t, env.Checksum, decoded.Manifest.Checksum)

	// Checksum covers the return-data blob exactly as embedded.
	ok, err := VerifyChecksum(decoded.ReturnData, env.ChecksumAlgorithm, env.Checksum)
	require.NoError(t, err)
	assert.True(t, ok)
}
