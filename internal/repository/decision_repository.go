package repository

import (
	"proofly_backend/internal/model"

	"gorm.io/gorm"
)

// DecisionStore owns the append-only review decision log. Rows are created
// and read, never updated or deleted.
type DecisionStore interface {
	Tx(tx *gorm.DB) DecisionStore
	Append(d *model.ReviewDecision) error
	ListBySubmission(submissionID uint) ([]model.ReviewDecision, error)
	LastEffective(submissionID uint) (*model.ReviewDecision, error)
}

type DecisionRepository struct {
	DB *gorm.DB
}

func NewDecisionRepository(db *gorm.DB) *DecisionRepository {
	return &DecisionRepository{DB: db}
}

func (r *DecisionRepository) Tx(tx *gorm.DB) DecisionStore {
	return &DecisionRepository{DB: tx}
}

func (r *DecisionRepository) Append(d *model.ReviewDecision) error {
	return r.DB.Create(d).Error
}

func (r *DecisionRepository) ListBySubmission(submissionID uint) ([]model.ReviewDecision, error) {
	var decisions []model.ReviewDecision
	err := r.DB.Where("submission_id = ?", submissionID).Order("id ASC").Find(&decisions).Error
	return decisions, err
}

// LastEffective returns the newest decision that was not blocked by the
// fairness gate.
func (r *DecisionRepository) LastEffective(submissionID uint) (*model.ReviewDecision, error) {
	var d model.ReviewDecision
	err := r.DB.Where("submission_id = ? AND blocked = ?", submissionID, false).
		Order("id DESC").First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}
