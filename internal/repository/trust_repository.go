package repository

import (
	"proofly_backend/internal/model"

	"gorm.io/gorm"
)

type TrustRepository struct {
	DB *gorm.DB
}

func NewTrustRepository(db *gorm.DB) *TrustRepository {
	return &TrustRepository{DB: db}
}

func (r *TrustRepository) Tx(tx *gorm.DB) *TrustRepository {
	return &TrustRepository{DB: tx}
}

// AppendEntry writes one immutable history row. History is never updated.
func (r *TrustRepository) AppendEntry(e *model.TrustHistoryEntry) error {
	return r.DB.Create(e).Error
}

func (r *TrustRepository) History(studentID uint) ([]model.TrustHistoryEntry, error) {
	var entries []model.TrustHistoryEntry
	err := r.DB.Where("student_id = ?", studentID).Order("id ASC").Find(&entries).Error
	return entries, err
}

func (r *TrustRepository) GetScore(studentID uint) (*model.TrustScore, error) {
	var s model.TrustScore
	if err := r.DB.Where("student_id = ?", studentID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpsertScore replaces the materialized aggregate for one student.
func (r *TrustRepository) UpsertScore(s *model.TrustScore) error {
	var existing model.TrustScore
	err := r.DB.Where("student_id = ?", s.StudentID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return r.DB.Create(s).Error
	}
	if err != nil {
		return err
	}
	existing.Score = s.Score
	existing.Level = s.Level
	existing.Trend = s.Trend
	existing.Breakdown = s.Breakdown
	return r.DB.Save(&existing).Error
}
