package model

import "encoding/json"

type TrustLevel string

const (
	LevelBuilding    TrustLevel = "building"
	LevelDeveloping  TrustLevel = "developing"
	LevelEstablished TrustLevel = "established"
	LevelVerified    TrustLevel = "verified"
)

type TrustTrend string

const (
	TrendImproving      TrustTrend = "improving"
	TrendStable         TrustTrend = "stable"
	TrendNeedsAttention TrustTrend = "needs_attention"
)

type TrustEventKind string

const (
	TrustEventTaskCompleted    TrustEventKind = "task_completed"
	TrustEventDefenseOutcome   TrustEventKind = "defense_outcome"
	TrustEventPeerReview       TrustEventKind = "peer_review"
	TrustEventAppealResolution TrustEventKind = "appeal_resolution"
)

// TrustFactorValue is one factor observation carried by a history entry,
// normalized to [0,100].
type TrustFactorValue struct {
	Factor string  `json:"factor"`
	Value  float64 `json:"value"`
}

// TrustHistoryEntry rows are append-only; recomputation replays the full
// ordered history and never edits past entries.
// swagger:model TrustHistoryEntry
type TrustHistoryEntry struct {
	BaseModel
	StudentID    uint            `gorm:"index;not null" json:"studentId"`
	Kind         TrustEventKind  `gorm:"type:varchar(32);not null" json:"kind"`
	Event        string          `gorm:"size:255" json:"event"`
	FactorValues json.RawMessage `gorm:"type:json" json:"factorValues"`
	Score        int             `json:"score"` // score after this entry was applied
	SubmissionID uint            `gorm:"index" json:"submissionId,omitempty"`
}

func (TrustHistoryEntry) TableName() string {
	return "trust_history"
}

func (e *TrustHistoryEntry) DecodedFactorValues() ([]TrustFactorValue, error) {
	if len(e.FactorValues) == 0 {
		return nil, nil
	}
	var vals []TrustFactorValue
	if err := json.Unmarshal(e.FactorValues, &vals); err != nil {
		return nil, err
	}
	return vals, nil
}

type TrustFactorBreakdown struct {
	Factor       string  `json:"factor"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

type ImprovementPath struct {
	Action          string `json:"action"`
	ProjectedImpact int    `json:"projectedImpact"`
	Description     string `json:"description"`
}

// TrustScore is the current materialized aggregate for one student. It is
// always derivable by replaying trust_history.
// swagger:model TrustScore
type TrustScore struct {
	BaseModel
	StudentID uint            `gorm:"uniqueIndex;not null" json:"studentId"`
	Score     int             `json:"score"`
	Level     TrustLevel      `gorm:"type:varchar(16)" json:"level"`
	Trend     TrustTrend      `gorm:"type:varchar(16)" json:"trend"`
	Breakdown json.RawMessage `gorm:"type:json" json:"breakdown"`
}

func (TrustScore) TableName() string {
	return "trust_scores"
}

func (t *TrustScore) DecodedBreakdown() ([]TrustFactorBreakdown, error) {
	if len(t.Breakdown) == 0 {
		return nil, nil
	}
	var b []TrustFactorBreakdown
	if err := json.Unmarshal(t.Breakdown, &b); err != nil {
		return nil, err
	}
	return b, nil
}
