package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReturnStatus is the filing status of a tax return record.
// This service transitions it as a side effect of submission outcomes but
// does not own the record.
type ReturnStatus string

const (
	ReturnStatusDraft     ReturnStatus = "draft"
	ReturnStatusSubmitted ReturnStatus = "submitted"
	ReturnStatusAccepted  ReturnStatus = "accepted"
	ReturnStatusRejected  ReturnStatus = "rejected"
)

// FilingStatus enumerates the IRS 1040 filing statuses.
type FilingStatus string

const (
	FilingStatusSingle                  FilingStatus = "Single"
	FilingStatusMarriedFilingJointly    FilingStatus = "MarriedFilingJointly"
	FilingStatusMarriedFilingSeparately FilingStatus = "MarriedFilingSeparately"
	FilingStatusHeadOfHousehold         FilingStatus = "HeadOfHousehold"
	FilingStatusQualifyingWidow         FilingStatus = "QualifyingWidow"
)

// TaxReturn is the referenced return record. The return payload arrives here
// already decrypted; encryption at rest is a collaborator concern.
type TaxReturn struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	ClientID        uuid.UUID       `json:"client_id" db:"client_id"`
	TaxYear         int             `json:"tax_year" db:"tax_year"`
	FilingStatus    FilingStatus    `json:"filing_status" db:"filing_status"`
	TaxpayerSSN     string          `json:"-" db:"taxpayer_ssn"`
	TaxpayerFirst   string          `json:"taxpayer_first" db:"taxpayer_first"`
	TaxpayerLast    string          `json:"taxpayer_last" db:"taxpayer_last"`
	SpouseSSN       *string         `json:"-" db:"spouse_ssn"`
	AddressLine     string          `json:"address_line" db:"address_line"`
	City            string          `json:"city" db:"city"`
	State           string          `json:"state" db:"state"`
	ZipCode         string          `json:"zip_code" db:"zip_code"`
	PreparerName    *string         `json:"preparer_name,omitempty" db:"preparer_name"`
	PreparerPTIN    *string         `json:"preparer_ptin,omitempty" db:"preparer_ptin"`
	TotalIncome     decimal.Decimal `json:"total_income" db:"total_income"`
	AdjustedGross   decimal.Decimal `json:"adjusted_gross_income" db:"adjusted_gross_income"`
	TaxableIncome   decimal.Decimal `json:"taxable_income" db:"taxable_income"`
	TotalTax        decimal.Decimal `json:"total_tax" db:"total_tax"`
	TotalPayments   decimal.Decimal `json:"total_payments" db:"total_payments"`
	RefundAmount    decimal.Decimal `json:"refund_amount" db:"refund_amount"`
	AmountOwed      decimal.Decimal `json:"amount_owed" db:"amount_owed"`
	Status          ReturnStatus    `json:"status" db:"status"`
	IRSSubmissionID *string         `json:"irs_submission_id,omitempty" db:"irs_submission_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// WorkflowInstance tracks the preparation workflow a return moves through.
// The acknowledgment processor advances CurrentStep when a submission reaches
// a terminal state.
type WorkflowInstance struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ReturnID    uuid.UUID `json:"return_id" db:"return_id"`
	CurrentStep string    `json:"current_step" db:"current_step"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Workflow steps touched by the transmission pipeline.
const (
	WorkflowStepTransmission   = "transmission"
	WorkflowStepAcknowledgment = "acknowledgment"
	WorkflowStepComplete       = "complete"
	WorkflowStepRework         = "rework"
)
