package mef

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EnvelopeFormat selects the provider wire dialect.
type EnvelopeFormat string

const (
	FormatXML  EnvelopeFormat = "xml"  // native IRS MEF
	FormatJSON EnvelopeFormat = "json" // third-party aggregator APIs
)

// DefaultSchemaVersion is the MEF schema version stamped on envelopes when the
// provider configuration does not pin one.
const DefaultSchemaVersion = "2025v1.0"

// ReturnData is the normalized, already-decrypted return content fed to the
// builder. It carries the filer, preparer, and core 1040 fields that go on
// the wire.
type ReturnData struct {
	TaxYear       int
	TaxpayerSSN   string
	FilingStatus  string
	TaxpayerFirst string
	TaxpayerLast  string
	SpouseSSN     string
	AddressLine   string
	City          string
	State         string
	ZipCode       string
	PreparerName  string
	PreparerPTIN  string
	TotalIncome   decimal.Decimal
	AdjustedGross decimal.Decimal
	TaxableIncome decimal.Decimal
	TotalTax      decimal.Decimal
	TotalPayments decimal.Decimal
	RefundAmount  decimal.Decimal
	AmountOwed    decimal.Decimal
}

// TransmissionMeta carries the transmission-level inputs to the builder.
// Empty IDs are generated; an injected Timestamp and IDs make the build fully
// deterministic for audit replay.
type TransmissionMeta struct {
	TransmissionID    string
	SubmissionID      string
	TestIndicator     string // "T" or "P", from provider configuration, never hardcoded
	ChecksumAlgorithm Algorithm
	EFIN              string
	ETIN              string
	SchemaVersion     string
	Format            EnvelopeFormat
	Timestamp         time.Time
}

// Envelope is the built wire artifact. Payload holds the exact bytes to
// transmit; Checksum covers the return-data section and is embedded in the
// manifest for IRS-side integrity verification.
type Envelope struct {
	Format            EnvelopeFormat
	Payload           []byte
	TransmissionID    string
	SubmissionID      string
	Checksum          string
	ChecksumAlgorithm Algorithm
	BuiltAt           time.Time
}

// xmlEscaper covers the five XML metacharacters. Every user-controlled string
// passes through xmlEscape before interpolation; no call site writes raw text.
var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}

// BuildEnvelope serializes a return plus transmission metadata into the
// provider wire format. Pure transform: persistence of the result is the
// caller's responsibility.
//
// Missing required return fields here indicate a contract bug between the
// validator and the builder, since the validator must run first.
func BuildEnvelope(ret ReturnData, meta TransmissionMeta) (*Envelope, error) {
	if ret.TaxpayerSSN == "" {
		return nil, fmt.Errorf("required return field taxpayerSsn is missing")
	}
	if ret.FilingStatus == "" {
		return nil, fmt.Errorf("required return field filingStatus is missing")
	}
	if ret.TaxYear == 0 {
		return nil, fmt.Errorf("required return field taxYear is missing")
	}
	if meta.TestIndicator != "T" && meta.TestIndicator != "P" {
		return nil, fmt.Errorf("test indicator must be T or P, got %q", meta.TestIndicator)
	}

	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	meta.Timestamp = meta.Timestamp.UTC()
	if meta.TransmissionID == "" {
		meta.TransmissionID = NewTransmissionID(meta.Timestamp)
	}
	if meta.SubmissionID == "" {
		meta.SubmissionID = NewSubmissionID(meta.EFIN, meta.Timestamp)
	}
	if meta.ChecksumAlgorithm == "" {
		meta.ChecksumAlgorithm = AlgorithmSHA256
	}
	if !ValidAlgorithm(meta.ChecksumAlgorithm) {
		return nil, fmt.Errorf("unsupported checksum algorithm %q", meta.ChecksumAlgorithm)
	}
	if meta.SchemaVersion == "" {
		meta.SchemaVersion = DefaultSchemaVersion
	}

	switch meta.Format {
	case FormatJSON:
		return buildJSONEnvelope(ret, meta)
	case FormatXML, "":
		return buildXMLEnvelope(ret, meta)
	default:
		return nil, fmt.Errorf("unsupported envelope format %q", meta.Format)
	}
}

func buildXMLEnvelope(ret ReturnData, meta TransmissionMeta) (*Envelope, error) {
	body := renderReturnXML(ret)

	checksum, err := Checksum([]byte(body), meta.ChecksumAlgorithm)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&b, "<TransmissionEnvelope schemaVersion=\"%s\">\n", xmlEscape(meta.SchemaVersion))
	b.WriteString("  <SubmissionManifest>\n")
	fmt.Fprintf(&b, "    <TransmissionId>%s</TransmissionId>\n", xmlEscape(meta.TransmissionID))
	fmt.Fprintf(&b, "    <SubmissionId>%s</SubmissionId>\n", xmlEscape(meta.SubmissionID))
	fmt.Fprintf(&b, "    <Timestamp>%s</Timestamp>\n", meta.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "    <TestIndicator>%s</TestIndicator>\n", meta.TestIndicator)
	fmt.Fprintf(&b, "    <EFIN>%s</EFIN>\n", xmlEscape(meta.EFIN))
	fmt.Fprintf(&b, "    <ETIN>%s</ETIN>\n", xmlEscape(meta.ETIN))
	fmt.Fprintf(&b, "    <ChecksumAlgorithm>%s</ChecksumAlgorithm>\n", meta.ChecksumAlgorithm)
	fmt.Fprintf(&b, "    <Checksum>%s</Checksum>\n", checksum)
	b.WriteString("  </SubmissionManifest>\n")
	b.WriteString("  <SubmissionData>\n")
	b.WriteString(body)
	b.WriteString("  </SubmissionData>\n")
	b.WriteString("</TransmissionEnvelope>\n")

	return &Envelope{
		Format:            FormatXML,
		Payload:           []byte(b.String()),
		TransmissionID:    meta.TransmissionID,
		SubmissionID:      meta.SubmissionID,
		Checksum:          checksum,
		ChecksumAlgorithm: meta.ChecksumAlgorithm,
		BuiltAt:           meta.Timestamp,
	}, nil
}

func renderReturnXML(ret ReturnData) string {
	var b strings.Builder
	b.WriteString("    <ReturnData>\n")
	fmt.Fprintf(&b, "      <Return taxYear=\"%d\">\n", ret.TaxYear)
	b.WriteString("        <Filer>\n")
	fmt.Fprintf(&b, "          <PrimarySSN>%s</PrimarySSN>\n", xmlEscape(ret.TaxpayerSSN))
	fmt.Fprintf(&b, "          <FirstName>%s</FirstName>\n", xmlEscape(ret.TaxpayerFirst))
	fmt.Fprintf(&b, "          <LastName>%s</LastName>\n", xmlEscape(ret.TaxpayerLast))
	if ret.SpouseSSN != "" {
		fmt.Fprintf(&b, "          <SpouseSSN>%s</SpouseSSN>\n", xmlEscape(ret.SpouseSSN))
	}
	fmt.Fprintf(&b, "          <AddressLine1>%s</AddressLine1>\n", xmlEscape(ret.AddressLine))
	fmt.Fprintf(&b, "          <City>%s</City>\n", xmlEscape(ret.City))
	fmt.Fprintf(&b, "          <State>%s</State>\n", xmlEscape(ret.State))
	fmt.Fprintf(&b, "          <ZipCode>%s</ZipCode>\n", xmlEscape(ret.ZipCode))
	b.WriteString("        </Filer>\n")
	if ret.PreparerPTIN != "" || ret.PreparerName != "" {
		b.WriteString("        <PreparerInfo>\n")
		fmt.Fprintf(&b, "          <PreparerName>%s</PreparerName>\n", xmlEscape(ret.PreparerName))
		fmt.Fprintf(&b, "          <PTIN>%s</PTIN>\n", xmlEscape(ret.PreparerPTIN))
		b.WriteString("        </PreparerInfo>\n")
	}
	fmt.Fprintf(&b, "        <FilingStatus>%s</FilingStatus>\n", xmlEscape(ret.FilingStatus))
	fmt.Fprintf(&b, "        <TotalIncome>%s</TotalIncome>\n", ret.TotalIncome.StringFixed(2))
	fmt.Fprintf(&b, "        <AdjustedGrossIncome>%s</AdjustedGrossIncome>\n", ret.AdjustedGross.StringFixed(2))
	fmt.Fprintf(&b, "        <TaxableIncome>%s</TaxableIncome>\n", ret.TaxableIncome.StringFixed(2))
	fmt.Fprintf(&b, "        <TotalTax>%s</TotalTax>\n", ret.TotalTax.StringFixed(2))
	fmt.Fprintf(&b, "        <TotalPayments>%s</TotalPayments>\n", ret.TotalPayments.StringFixed(2))
	fmt.Fprintf(&b, "        <RefundAmount>%s</RefundAmount>\n", ret.RefundAmount.StringFixed(2))
	fmt.Fprintf(&b, "        <AmountOwed>%s</AmountOwed>\n", ret.AmountOwed.StringFixed(2))
	b.WriteString("      </Return>\n")
	b.WriteString("    </ReturnData>\n")
	return b.String()
}

// jsonReturnBody mirrors the XML return section for aggregator providers.
// Struct-based marshaling keeps field order stable so checksums are
// reproducible.
type jsonReturnBody struct {
	TaxYear       int    `json:"tax_year"`
	TaxpayerSSN   string `json:"taxpayer_ssn"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	SpouseSSN     string `json:"spouse_ssn,omitempty"`
	AddressLine   string `json:"address_line1"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zip_code"`
	PreparerName  string `json:"preparer_name,omitempty"`
	PreparerPTIN  string `json:"preparer_ptin,omitempty"`
	FilingStatus  string `json:"filing_status"`
	TotalIncome   string `json:"total_income"`
	AdjustedGross string `json:"adjusted_gross_income"`
	TaxableIncome string `json:"taxable_income"`
	TotalTax      string `json:"total_tax"`
	TotalPayments string `json:"total_payments"`
	RefundAmount  string `json:"refund_amount"`
	AmountOwed    string `json:"amount_owed"`
}

type jsonManifest struct {
	TransmissionID    string `json:"transmission_id"`
	SubmissionID      string `json:"submission_id"`
	Timestamp         string `json:"timestamp"`
	TestIndicator     string `json:"test_indicator"`
	EFIN              string `json:"efin"`
	ETIN              string `json:"etin"`
	SchemaVersion     string `json:"schema_version"`
	ChecksumAlgorithm string `json:"checksum_algorithm"`
	Checksum          string `json:"checksum"`
}

type jsonEnvelope struct {
	Manifest   jsonManifest    `json:"submission_manifest"`
	ReturnData json.RawMessage `json:"return_data"`
}

func buildJSONEnvelope(ret ReturnData, meta TransmissionMeta) (*Envelope, error) {
	body := jsonReturnBody{
		TaxYear:       ret.TaxYear,
		TaxpayerSSN:   ret.TaxpayerSSN,
		FirstName:     ret.TaxpayerFirst,
		LastName:      ret.TaxpayerLast,
		SpouseSSN:     ret.SpouseSSN,
		AddressLine:   ret.AddressLine,
		City:          ret.City,
		State:         ret.State,
		ZipCode:       ret.ZipCode,
		PreparerName:  ret.PreparerName,
		PreparerPTIN:  ret.PreparerPTIN,
		FilingStatus:  ret.FilingStatus,
		TotalIncome:   ret.TotalIncome.StringFixed(2),
		AdjustedGross: ret.AdjustedGross.StringFixed(2),
		TaxableIncome: ret.TaxableIncome.StringFixed(2),
		TotalTax:      ret.TotalTax.StringFixed(2),
		TotalPayments: ret.TotalPayments.StringFixed(2),
		RefundAmount:  ret.RefundAmount.StringFixed(2),
		AmountOwed:    ret.AmountOwed.StringFixed(2),
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal return data: %w", err)
	}

	checksum, err := Checksum(bodyBytes, meta.ChecksumAlgorithm)
	if err != nil {
		return nil, err
	}

	env := jsonEnvelope{
		Manifest: jsonManifest{
			TransmissionID:    meta.TransmissionID,
			SubmissionID:      meta.SubmissionID,
			Timestamp:         meta.Timestamp.Format(time.RFC3339),
			TestIndicator:     meta.TestIndicator,
			EFIN:              meta.EFIN,
			ETIN:              meta.ETIN,
			SchemaVersion:     meta.SchemaVersion,
			ChecksumAlgorithm: string(meta.ChecksumAlgorithm),
			Checksum:          checksum,
		},
		ReturnData: bodyBytes,
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	return &Envelope{
		Format:            FormatJSON,
		Payload:           payload,
		TransmissionID:    meta.TransmissionID,
		SubmissionID:      meta.SubmissionID,
		Checksum:          checksum,
		ChecksumAlgorithm: meta.ChecksumAlgorithm,
		BuiltAt:           meta.Timestamp,
	}, nil
}
