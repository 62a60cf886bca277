package domain

// AckOutcome classifies an IRS acknowledgment code into the terminal state it
// drives the submission toward.
type AckOutcome string

const (
	AckOutcomeAccepted           AckOutcome = "accepted"
	AckOutcomeAcceptedWithErrors AckOutcome = "accepted_with_errors"
	AckOutcomeRejected           AckOutcome = "rejected"
	AckOutcomeSystemError        AckOutcome = "system_error"
)

// AckCodeInfo describes one entry in the fixed IRS acknowledgment code table.
type AckCodeInfo struct {
	Code        string
	Outcome     AckOutcome
	Description string
}

// ackCodeTable is the fixed IRS acknowledgment code table. Codes 0000 and 5000
// are the only acceptances. 9999 is a system error, not a business rejection:
// it is retry-eligible and must not be flattened into rejected.
var ackCodeTable = map[string]AckCodeInfo{
	"0000": {Code: "0000", Outcome: AckOutcomeAccepted, Description: "Return accepted"},
	"1000": {Code: "1000", Outcome: AckOutcomeRejected, Description: "Duplicate submission"},
	"2000": {Code: "2000", Outcome: AckOutcomeRejected, Description: "Schema validation failure"},
	"3000": {Code: "3000", Outcome: AckOutcomeRejected, Description: "Business rule violation"},
	"5000": {Code: "5000", Outcome: AckOutcomeAcceptedWithErrors, Description: "Accepted with errors, manual review required"},
	"9999": {Code: "9999", Outcome: AckOutcomeSystemError, Description: "IRS system error, resubmission permitted"},
}

// ClassifyAckCode looks up a code in the acknowledgment table. Unknown codes
// are treated as rejections.
func ClassifyAckCode(code string) AckCodeInfo {
	if info, ok := ackCodeTable[code]; ok {
		return info
	}
	return AckCodeInfo{Code: code, Outcome: AckOutcomeRejected, Description: "Unrecognized acknowledgment code"}
}

// SubmissionStatus maps an acknowledgment outcome to the submission's
// terminal status.
func (o AckOutcome) SubmissionStatus() SubmissionStatus {
	switch o {
	case AckOutcomeAccepted, AckOutcomeAcceptedWithErrors:
		return SubmissionStatusAcknowledged
	case AckOutcomeSystemError:
		return SubmissionStatusError
	default:
		return SubmissionStatusRejected
	}
}

// ReturnStatus maps an acknowledgment outcome to the linked return's status.
// A system error reverts the return to draft: the return must never show
// submitted over an errored submission, and a draft return stays eligible
// for resubmission.
func (o AckOutcome) ReturnStatus() ReturnStatus {
	switch o {
	case AckOutcomeAccepted, AckOutcomeAcceptedWithErrors:
		return ReturnStatusAccepted
	case AckOutcomeSystemError:
		return ReturnStatusDraft
	default:
		return ReturnStatusRejected
	}
}
