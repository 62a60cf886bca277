package mef

import (
	"fmt"
	"regexp"
	"time"
)

// TransmissionData is the flattened field set checked against the provider
// schema rules before a submission is allowed to leave pending.
type TransmissionData struct {
	TransmissionID    string
	SubmissionID      string
	TestIndicator     string
	ChecksumAlgorithm string
	TaxYear           int
	TaxpayerSSN       string
	FilingStatus      string
	PreparerPTIN      string // optional
}

// ValidationResult carries the outcome of schema validation with every
// violated rule itemized.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors"`
}

var (
	transmissionIDPattern = regexp.MustCompile(`^[A-Z0-9]{8,20}$`)
	submissionIDPattern   = regexp.MustCompile(`^[0-9]{15,20}$`)
	ssnPattern            = regexp.MustCompile(`^[0-9]{9}$`)
	ptinPattern           = regexp.MustCompile(`^P[0-9]{8}$`)
)

var filingStatuses = map[string]bool{
	"Single":                  true,
	"MarriedFilingJointly":    true,
	"MarriedFilingSeparately": true,
	"HeadOfHousehold":         true,
	"QualifyingWidow":         true,
}

// minimumTaxYear is the oldest tax year MEF accepts for electronic filing.
const minimumTaxYear = 2020

// Validate checks transmission data against the provider schema rules.
// Every violated rule is accumulated so the caller can present the complete
// list; there is no short-circuit on first failure. Pure check, mutates
// nothing.
func Validate(d TransmissionData) ValidationResult {
	var errs []string

	if d.TransmissionID == "" {
		errs = append(errs, "transmissionId is required")
	} else if !transmissionIDPattern.MatchString(d.TransmissionID) {
		errs = append(errs, "transmissionId must be 8-20 uppercase alphanumeric characters")
	}

	if d.SubmissionID == "" {
		errs = append(errs, "submissionId is required")
	} else if !submissionIDPattern.MatchString(d.SubmissionID) {
		errs = append(errs, "submissionId must be 15-20 numeric digits")
	}

	if d.TestIndicator == "" {
		errs = append(errs, "testIndicator is required")
	} else if d.TestIndicator != "T" && d.TestIndicator != "P" {
		errs = append(errs, "testIndicator must be T or P")
	}

	if d.ChecksumAlgorithm == "" {
		errs = append(errs, "checksumAlgorithm is required")
	} else if !ValidAlgorithm(Algorithm(d.ChecksumAlgorithm)) {
		errs = append(errs, "checksumAlgorithm must be SHA-256 or SHA-512")
	}

	maxYear := time.Now().UTC().Year() + 1
	if d.TaxYear == 0 {
		errs = append(errs, "taxYear is required")
	} else if d.TaxYear < minimumTaxYear || d.TaxYear > maxYear {
		errs = append(errs, fmt.Sprintf("taxYear must be a 4-digit year between %d and %d", minimumTaxYear, maxYear))
	}

	if d.TaxpayerSSN == "" {
		errs = append(errs, "taxpayerSsn is required")
	} else if !ssnPattern.MatchString(d.TaxpayerSSN) {
		errs = append(errs, "taxpayerSsn must be exactly 9 digits")
	}

	if d.FilingStatus == "" {
		errs = append(errs, "filingStatus is required")
	} else if !filingStatuses[d.FilingStatus] {
		errs = append(errs, "filingStatus must be one of Single, MarriedFilingJointly, MarriedFilingSeparately, HeadOfHousehold, QualifyingWidow")
	}

	// PTIN is optional but must match the IRS format when present
	if d.PreparerPTIN != "" && !ptinPattern.MatchString(d.PreparerPTIN) {
		errs = append(errs, "preparerPTIN must match P followed by 8 digits")
	}

	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}
