package repository

import (
	"proofly_backend/internal/model"

	"gorm.io/gorm"
)

// DefenseStore is the persistence surface the defense coordinator works
// against. The gorm-backed DefenseRepository is the production
// implementation; tests substitute in-memory fakes.
type DefenseStore interface {
	Tx(tx *gorm.DB) DefenseStore
	Create(s *model.DefenseSession) error
	Save(s *model.DefenseSession) error
	FindByID(id string) (*model.DefenseSession, error)
	FindBySubmissionID(submissionID uint) (*model.DefenseSession, error)
	SaveQuestion(q *model.DefenseQuestion) error
}

type DefenseRepository struct {
	DB *gorm.DB
}

func NewDefenseRepository(db *gorm.DB) *DefenseRepository {
	return &DefenseRepository{DB: db}
}

func (r *DefenseRepository) Tx(tx *gorm.DB) DefenseStore {
	return &DefenseRepository{DB: tx}
}

func (r *DefenseRepository) Create(s *model.DefenseSession) error {
	return r.DB.Create(s).Error
}

func (r *DefenseRepository) Save(s *model.DefenseSession) error {
	return r.DB.Omit("Questions").Save(s).Error
}

func (r *DefenseRepository) FindByID(id string) (*model.DefenseSession, error) {
	var s model.DefenseSession
	err := r.DB.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("question_order ASC")
	}).Where("id = ?", id).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *DefenseRepository) FindBySubmissionID(submissionID uint) (*model.DefenseSession, error) {
	var s model.DefenseSession
	err := r.DB.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("question_order ASC")
	}).Where("submission_id = ?", submissionID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *DefenseRepository) SaveQuestion(q *model.DefenseQuestion) error {
	return r.DB.Save(q).Error
}
