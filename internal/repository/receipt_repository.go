package repository

import (
	"proofly_backend/internal/model"

	"gorm.io/gorm"
)

// ReceiptStore is append-only: receipts and amendments are created, never
// updated or deleted. Tests substitute in-memory fakes.
type ReceiptStore interface {
	Tx(tx *gorm.DB) ReceiptStore
	Create(receipt *model.SkillReceipt) error
	FindByID(id string) (*model.SkillReceipt, error)
	FindBySubmissionID(submissionID uint) (*model.SkillReceipt, error)
	ListByStudent(studentID uint) ([]model.SkillReceipt, error)
	AppendAmendment(a *model.ReceiptAmendment) error
	Amendments(receiptID string) ([]model.ReceiptAmendment, error)
	LastAmendment(receiptID string) (*model.ReceiptAmendment, error)
}

type ReceiptRepository struct {
	DB *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{DB: db}
}

func (r *ReceiptRepository) Tx(tx *gorm.DB) ReceiptStore {
	return &ReceiptRepository{DB: tx}
}

func (r *ReceiptRepository) Create(receipt *model.SkillReceipt) error {
	return r.DB.Create(receipt).Error
}

func (r *ReceiptRepository) FindByID(id string) (*model.SkillReceipt, error) {
	var receipt model.SkillReceipt
	if err := r.DB.Where("id = ?", id).First(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) FindBySubmissionID(submissionID uint) (*model.SkillReceipt, error) {
	var receipt model.SkillReceipt
	if err := r.DB.Where("submission_id = ?", submissionID).First(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) ListByStudent(studentID uint) ([]model.SkillReceipt, error) {
	var receipts []model.SkillReceipt
	err := r.DB.Where("student_id = ?", studentID).Order("issued_at DESC").Find(&receipts).Error
	return receipts, err
}

func (r *ReceiptRepository) AppendAmendment(a *model.ReceiptAmendment) error {
	return r.DB.Create(a).Error
}

func (r *ReceiptRepository) Amendments(receiptID string) ([]model.ReceiptAmendment, error) {
	var amendments []model.ReceiptAmendment
	err := r.DB.Where("receipt_id = ?", receiptID).Order("seq ASC").Find(&amendments).Error
	return amendments, err
}

func (r *ReceiptRepository) LastAmendment(receiptID string) (*model.ReceiptAmendment, error) {
	var a model.ReceiptAmendment
	err := r.DB.Where("receipt_id = ?", receiptID).Order("seq DESC").First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}
