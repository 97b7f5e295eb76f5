package models

// RejectionCode identifies why an answer was withheld from the user
type RejectionCode string

const (
	RejectLowConfidence           RejectionCode = "LOW_CONFIDENCE"
	RejectCriticalHallucinations  RejectionCode = "CRITICAL_HALLUCINATIONS"
	RejectMultipleInterpretations RejectionCode = "MULTIPLE_INTERPRETATIONS"
	RejectInsufficientCoverage    RejectionCode = "INSUFFICIENT_SOURCE_COVERAGE"
)

// RejectionCodes lists every code in rule order
var RejectionCodes = []RejectionCode{
	RejectLowConfidence,
	RejectCriticalHallucinations,
	RejectMultipleInterpretations,
	RejectInsufficientCoverage,
}

// RejectionReason describes a rejected answer
type RejectionReason struct {
	Code           RejectionCode `json:"code"`
	Description    string        `json:"description"`
	Confidence     float64       `json:"confidence"`
	Recommendation string        `json:"recommendation"`
}

// RejectionVerdict is the accept/reject decision for one answer
type RejectionVerdict struct {
	Rejected bool             `json:"rejected"`
	Reason   *RejectionReason `json:"reason,omitempty"`
}
