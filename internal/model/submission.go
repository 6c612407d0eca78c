package model

import (
	"encoding/json"
	"time"
)

type SubmissionState string

const (
	StateSubmitted              SubmissionState = "submitted"
	StateUnderReview            SubmissionState = "under_review"
	StateClarificationRequested SubmissionState = "clarification_requested"
	StateDefenseOffered         SubmissionState = "defense_offered"
	StateApprovedIndependent    SubmissionState = "approved_independent"
	StateApprovedWithAssistance SubmissionState = "approved_with_assistance"
	StateUpgradedApproved       SubmissionState = "upgraded_approved"
	StateRejected               SubmissionState = "rejected"
)

// Terminal reports whether no further review transition is possible.
// Rejected is terminal only once the appeal window has elapsed, which the
// orchestrator checks separately; here it counts as terminal for decisions.
func (s SubmissionState) Terminal() bool {
	switch s {
	case StateApprovedIndependent, StateApprovedWithAssistance, StateUpgradedApproved, StateRejected:
		return true
	}
	return false
}

func (s SubmissionState) Approved() bool {
	switch s {
	case StateApprovedIndependent, StateApprovedWithAssistance, StateUpgradedApproved:
		return true
	}
	return false
}

type Observation struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"` // paste | switch | search | focus | edit
	Description string    `json:"description"`
	Context     string    `json:"context,omitempty"`
}

// SessionContext is finalized by the behavioral sensor before submission
// and treated as read-only here.
type SessionContext struct {
	SessionID       string        `json:"sessionId"`
	StartTime       time.Time     `json:"startTime"`
	EndTime         *time.Time    `json:"endTime,omitempty"`
	ActiveSeconds   int           `json:"activeSeconds"`
	ThinkingSeconds int           `json:"thinkingSeconds"`
	Observations    []Observation `json:"observations"`
	WorkflowSummary string        `json:"workflowSummary"`
}

type HighlightedObservation struct {
	Description   string `json:"description"`
	ContextNeeded string `json:"contextNeeded"`
}

// EvaluationResult is supplied by the external evaluator and treated as an
// opaque, trusted oracle.
type EvaluationResult struct {
	CodeQuality             int                      `json:"codeQuality"`
	ProblemSolving          int                      `json:"problemSolving"`
	TechnicalSkill          int                      `json:"technicalSkill"`
	Overall                 int                      `json:"overall"`
	Strengths               []string                 `json:"strengths"`
	AreasForImprovement     []string                 `json:"areasForImprovement"`
	PatternsDetected        []string                 `json:"patternsDetected"`
	NeedsExplanation        bool                     `json:"needsExplanation"`
	HighlightedObservations []HighlightedObservation `json:"highlightedObservations"`
	Feedback                string                   `json:"feedback"`
	Recommendation          string                   `json:"recommendation"`
}

// swagger:model Submission
type Submission struct {
	BaseModel
	StudentID uint   `gorm:"index;not null" json:"studentId"`
	VariantID string `gorm:"index;type:varchar(36);not null" json:"variantId"`

	State SubmissionState `gorm:"type:varchar(32);index;default:'submitted'" json:"state"`

	CodeSubmission string          `gorm:"type:longtext" json:"codeSubmission"`
	SessionContext json.RawMessage `gorm:"type:json" json:"sessionContext"`
	Evaluation     json.RawMessage `gorm:"type:json" json:"evaluation,omitempty"`

	StudentExplanation     string     `gorm:"type:text" json:"studentExplanation,omitempty"`
	ExplanationRequestedAt *time.Time `json:"explanationRequestedAt,omitempty"`
	ExplanationDeadline    *time.Time `json:"explanationDeadline,omitempty"`

	RejectedAt *time.Time `json:"rejectedAt,omitempty"`
	ReceiptID  string     `gorm:"type:varchar(36);index" json:"receiptId,omitempty"`
}

func (Submission) TableName() string {
	return "submissions"
}

func (s *Submission) DecodedEvaluation() (*EvaluationResult, error) {
	if len(s.Evaluation) == 0 {
		return nil, nil
	}
	var ev EvaluationResult
	if err := json.Unmarshal(s.Evaluation, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (s *Submission) DecodedSessionContext() (*SessionContext, error) {
	if len(s.SessionContext) == 0 {
		return nil, nil
	}
	var sc SessionContext
	if err := json.Unmarshal(s.SessionContext, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
