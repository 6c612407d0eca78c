package model

import "encoding/json"

type TaskDifficulty string

const (
	DifficultyBeginner     TaskDifficulty = "beginner"
	DifficultyIntermediate TaskDifficulty = "intermediate"
	DifficultyAdvanced     TaskDifficulty = "advanced"
)

type ParameterType string

const (
	ParamRandomNumber     ParameterType = "random_number"
	ParamRandomString     ParameterType = "random_string"
	ParamRandomDataset    ParameterType = "random_dataset"
	ParamRandomConstraint ParameterType = "random_constraint"
)

// DynamicParameter is a tagged variant; Options must be non-empty and Type
// one of the enumerated parameter types before a template is accepted.
type DynamicParameter struct {
	Parameter string            `json:"parameter"`
	Type      ParameterType     `json:"type"`
	Options   []json.RawMessage `json:"options"`
}

type EvaluationCriterion struct {
	Criterion   string  `json:"criterion"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

type ReviewGuideline struct {
	Guideline     string `json:"guideline"`
	FairnessCheck bool   `json:"fairnessCheck"`
}

// swagger:model TaskTemplate
type TaskTemplate struct {
	BaseModel
	Title              string          `gorm:"size:200;not null" json:"title"`
	Description        string          `gorm:"type:text" json:"description"`
	CompanyName        string          `gorm:"size:100" json:"companyName"`
	CompanyLogoURL     string          `gorm:"size:255" json:"companyLogoUrl"`
	Skills             string          `gorm:"type:json" json:"skills"`
	Difficulty         TaskDifficulty  `gorm:"type:enum('beginner','intermediate','advanced');default:'intermediate'" json:"difficulty"`
	EstimatedMinutes   int             `json:"estimatedMinutes"`
	TimeLimitMinutes   int             `json:"timeLimitMinutes"`
	Constraints        string          `gorm:"type:json" json:"constraints"`
	DynamicParameters  json.RawMessage `gorm:"type:json" json:"dynamicParameters"`
	EvaluationCriteria json.RawMessage `gorm:"type:json" json:"evaluationCriteria"`
	ReviewGuidelines   json.RawMessage `gorm:"type:json" json:"reviewGuidelines"`
	CreatedBy          uint            `gorm:"index" json:"createdBy"`
	Active             bool            `gorm:"default:true" json:"active"`
}

func (TaskTemplate) TableName() string {
	return "task_templates"
}

// TaskVariant is an immutable instantiation of a template for one student.
// Rows are written once by the variant generator and never updated.
// swagger:model TaskVariant
type TaskVariant struct {
	UUIDBase
	TemplateID       uint            `gorm:"index" json:"templateId"`
	StudentID        uint            `gorm:"index" json:"studentId"`
	Title            string          `gorm:"size:200" json:"title"`
	Skills           string          `gorm:"type:json" json:"skills"`
	Difficulty       TaskDifficulty  `gorm:"type:enum('beginner','intermediate','advanced')" json:"difficulty"`
	TimeLimitMinutes int             `json:"timeLimitMinutes"`
	VariantSeed      string          `gorm:"size:64" json:"variantSeed"`
	UniqueParameters json.RawMessage `gorm:"type:json" json:"uniqueParameters"`
	Instructions     string          `gorm:"type:text" json:"instructions"`
}

func (TaskVariant) TableName() string {
	return "task_variants"
}
