package model

import "encoding/json"

type DecisionKind string

const (
	DecisionApproveIndependent    DecisionKind = "approve_independent"
	DecisionApproveWithAssistance DecisionKind = "approve_with_assistance"
	DecisionRequestClarification  DecisionKind = "request_clarification"
	DecisionOfferDefense          DecisionKind = "offer_defense"
	DecisionReject                DecisionKind = "reject"
)

func (k DecisionKind) Valid() bool {
	switch k {
	case DecisionApproveIndependent, DecisionApproveWithAssistance,
		DecisionRequestClarification, DecisionOfferDefense, DecisionReject:
		return true
	}
	return false
}

// Negative reports whether the decision damages the student's reputation and
// therefore must pass the fairness gate first.
func (k DecisionKind) Negative() bool {
	return k == DecisionReject
}

type FairnessCheck struct {
	Check   string `json:"check"`
	Passed  bool   `json:"passed"`
	Details string `json:"details,omitempty"`
}

// FairnessValidation is never persisted on its own; it is embedded in the
// ReviewDecision row that produced it.
type FairnessValidation struct {
	PatternCount            int             `json:"patternCount"`
	MinimumPatternThreshold int             `json:"minimumPatternThreshold"`
	Checks                  []FairnessCheck `json:"checks"`
	CanProceed              bool            `json:"canProceed"`
	StudentRightsHonored    bool            `json:"studentRightsHonored"`
}

// FailingReasons returns one human-readable reason per failing check.
func (v FairnessValidation) FailingReasons() []string {
	var reasons []string
	for _, c := range v.Checks {
		if !c.Passed {
			reasons = append(reasons, c.Details)
		}
	}
	return reasons
}

// ReviewDecision rows form an append-only audit log: one row per transition
// attempt, including attempts the fairness gate blocked.
// swagger:model ReviewDecision
type ReviewDecision struct {
	BaseModel
	SubmissionID  uint            `gorm:"index;not null" json:"submissionId"`
	ReviewerID    uint            `gorm:"index" json:"reviewerId"`
	Kind          DecisionKind    `gorm:"type:varchar(32);not null" json:"kind"`
	Justification string          `gorm:"type:text" json:"justification,omitempty"`
	Explanation   string          `gorm:"type:text" json:"explanation,omitempty"`
	Fairness      json.RawMessage `gorm:"type:json" json:"fairness,omitempty"`
	Blocked       bool            `gorm:"default:false" json:"blocked"`
	ResultState   SubmissionState `gorm:"type:varchar(32)" json:"resultState"`
}

func (ReviewDecision) TableName() string {
	return "review_decisions"
}
