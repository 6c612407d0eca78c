package model

import "time"

type DefenseState string

const (
	DefenseScheduled  DefenseState = "scheduled"
	DefenseInProgress DefenseState = "in_progress"
	DefenseCompleted  DefenseState = "completed"
)

type DefenseOutcome string

const (
	OutcomeUpgraded    DefenseOutcome = "upgraded"
	OutcomeNotUpgraded DefenseOutcome = "not_upgraded"
)

type QuestionState string

const (
	QuestionPending   QuestionState = "pending"
	QuestionActive    QuestionState = "active"
	QuestionCompleted QuestionState = "completed"
)

// swagger:model DefenseSession
type DefenseSession struct {
	UUIDBase
	SubmissionID uint `gorm:"uniqueIndex;not null" json:"submissionId"`
	StudentID    uint `gorm:"index;not null" json:"studentId"`
	ReviewerID   uint `gorm:"index" json:"reviewerId"`

	State         DefenseState      `gorm:"type:varchar(16);default:'scheduled'" json:"state"`
	Outcome       DefenseOutcome    `gorm:"type:varchar(16)" json:"outcome,omitempty"`
	OutcomeReason string            `gorm:"size:255" json:"outcomeReason,omitempty"`
	Feedback      string            `gorm:"type:text" json:"feedback,omitempty"`
	StartedAt     *time.Time        `json:"startedAt,omitempty"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	BudgetMinutes int               `json:"budgetMinutes"`
	Questions     []DefenseQuestion `gorm:"foreignKey:SessionID;references:ID" json:"questions,omitempty"`
}

func (DefenseSession) TableName() string {
	return "defense_sessions"
}

// Remaining computes the unused share of the duration budget at now.
// Evaluated on read; there is no ticking timer.
func (s *DefenseSession) Remaining(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return time.Duration(s.BudgetMinutes) * time.Minute
	}
	return time.Duration(s.BudgetMinutes)*time.Minute - now.Sub(*s.StartedAt)
}

func (s *DefenseSession) Expired(now time.Time) bool {
	return s.StartedAt != nil && s.Remaining(now) <= 0
}

// swagger:model DefenseQuestion
type DefenseQuestion struct {
	BaseModel
	SessionID     string        `gorm:"index;type:varchar(36);not null" json:"sessionId"`
	Order         int           `gorm:"column:question_order" json:"order"`
	Question      string        `gorm:"type:text;not null" json:"question"`
	State         QuestionState `gorm:"type:varchar(16);default:'pending'" json:"state"`
	StudentAnswer string        `gorm:"type:text" json:"studentAnswer,omitempty"`
	ReviewerNotes string        `gorm:"type:text" json:"reviewerNotes,omitempty"`
}

func (DefenseQuestion) TableName() string {
	return "defense_questions"
}
