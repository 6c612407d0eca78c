package repository

import (
	"proofly_backend/internal/model"

	"gorm.io/gorm"
)

// SubmissionStore abstracts submission persistence for the services that
// mutate submissions; tests substitute in-memory fakes.
type SubmissionStore interface {
	Tx(tx *gorm.DB) SubmissionStore
	Create(s *model.Submission) error
	Save(s *model.Submission) error
	FindByID(id uint) (*model.Submission, error)
	FindOpenByStudentAndVariant(studentID uint, variantID string) (*model.Submission, error)
	ListByStudent(studentID uint) ([]model.Submission, error)
	ListByState(state model.SubmissionState, page, limit int) ([]model.Submission, int64, error)
}

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

// Tx returns a copy bound to the given transaction handle.
func (r *SubmissionRepository) Tx(tx *gorm.DB) SubmissionStore {
	return &SubmissionRepository{DB: tx}
}

func (r *SubmissionRepository) Create(s *model.Submission) error {
	return r.DB.Create(s).Error
}

func (r *SubmissionRepository) Save(s *model.Submission) error {
	return r.DB.Save(s).Error
}

func (r *SubmissionRepository) FindByID(id uint) (*model.Submission, error) {
	var s model.Submission
	if err := r.DB.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// FindOpenByStudentAndVariant returns the student's non-terminal submission
// for a variant, if any.
func (r *SubmissionRepository) FindOpenByStudentAndVariant(studentID uint, variantID string) (*model.Submission, error) {
	var s model.Submission
	err := r.DB.Where("student_id = ? AND variant_id = ? AND state NOT IN ?",
		studentID, variantID, []model.SubmissionState{
			model.StateApprovedIndependent,
			model.StateApprovedWithAssistance,
			model.StateUpgradedApproved,
			model.StateRejected,
		}).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubmissionRepository) ListByStudent(studentID uint) ([]model.Submission, error) {
	var subs []model.Submission
	err := r.DB.Where("student_id = ?", studentID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

func (r *SubmissionRepository) ListByState(state model.SubmissionState, page, limit int) ([]model.Submission, int64, error) {
	var subs []model.Submission
	var total int64

	q := r.DB.Model(&model.Submission{}).Where("state = ?", state)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page > 0 && limit > 0 {
		q = q.Offset((page - 1) * limit).Limit(limit)
	}
	err := q.Order("created_at ASC").Find(&subs).Error
	return subs, total, err
}
