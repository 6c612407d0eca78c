package model

import (
	"encoding/json"
	"time"
)

type VerificationStatus string

const (
	VerifiedIndependent    VerificationStatus = "verified_independent"
	VerifiedWithAssistance VerificationStatus = "verified_with_assistance"
)

type ReceiptScores struct {
	CodeQuality    int `json:"codeQuality"`
	ProblemSolving int `json:"problemSolving"`
	TechnicalSkill int `json:"technicalSkill"`
	Overall        int `json:"overall"`
}

// SkillReceipt is immutable once issued: no field is ever updated in place.
// Upgrades arrive as hash-chained ReceiptAmendment rows.
// swagger:model SkillReceipt
type SkillReceipt struct {
	UUIDBase
	SubmissionID uint   `gorm:"uniqueIndex;not null" json:"submissionId"`
	StudentID    uint   `gorm:"index;not null" json:"studentId"`
	StudentName  string `gorm:"size:100" json:"studentName"`
	TaskID       string `gorm:"type:varchar(36);index" json:"taskId"`
	TaskTitle    string `gorm:"size:200" json:"taskTitle"`
	CompanyName  string `gorm:"size:100" json:"companyName"`
	Skills       string `gorm:"type:json" json:"skills"`

	VerificationStatus VerificationStatus `gorm:"type:varchar(32);not null" json:"verificationStatus"`
	Scores             json.RawMessage    `gorm:"type:json" json:"scores"`
	TrustScoreSnapshot int                `json:"trustScoreSnapshot"`
	AIFeedback         string             `gorm:"type:text" json:"aiFeedback"`

	IssuedAt  time.Time `json:"issuedAt"`
	Nonce     string    `gorm:"size:64;not null" json:"nonce"`
	Hash      string    `gorm:"size:64;uniqueIndex;not null" json:"hash"`
	PublicURL string    `gorm:"size:255" json:"publicUrl"`
	Shareable bool      `gorm:"default:true" json:"shareable"`
}

func (SkillReceipt) TableName() string {
	return "skill_receipts"
}

func (r *SkillReceipt) DecodedScores() (ReceiptScores, error) {
	var s ReceiptScores
	if len(r.Scores) == 0 {
		return s, nil
	}
	err := json.Unmarshal(r.Scores, &s)
	return s, err
}

type AmendmentKind string

const (
	AmendmentDefenseUpgrade AmendmentKind = "defense_upgrade"
	AmendmentAnnotation     AmendmentKind = "annotation"
)

// ReceiptAmendment rows are append-only. Hash covers the canonical amendment
// content concatenated after the previous hash in the chain, so any mutation
// of an earlier link changes every later hash.
// swagger:model ReceiptAmendment
type ReceiptAmendment struct {
	UUIDBase
	ReceiptID string        `gorm:"index;type:varchar(36);not null" json:"receiptId"`
	Seq       int           `gorm:"not null" json:"seq"`
	Kind      AmendmentKind `gorm:"type:varchar(32);not null" json:"kind"`

	NewStatus VerificationStatus `gorm:"type:varchar(32)" json:"newStatus,omitempty"`
	Note      string             `gorm:"type:text" json:"note"`
	AmendedAt time.Time          `json:"amendedAt"`

	PrevHash string `gorm:"size:64;not null" json:"prevHash"`
	Hash     string `gorm:"size:64;uniqueIndex;not null" json:"hash"`
}

func (ReceiptAmendment) TableName() string {
	return "receipt_amendments"
}
