package repository

import (
	"proofly_backend/internal/model"

	"gorm.io/gorm"
)

type TaskRepository struct {
	DB *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{DB: db}
}

func (r *TaskRepository) CreateTemplate(t *model.TaskTemplate) error {
	return r.DB.Create(t).Error
}

func (r *TaskRepository) UpdateTemplate(t *model.TaskTemplate) error {
	return r.DB.Save(t).Error
}

func (r *TaskRepository) FindTemplateByID(id uint) (*model.TaskTemplate, error) {
	var t model.TaskTemplate
	if err := r.DB.First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepository) ListTemplates(activeOnly bool, page, limit int) ([]model.TaskTemplate, int64, error) {
	var templates []model.TaskTemplate
	var total int64

	q := r.DB.Model(&model.TaskTemplate{})
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page > 0 && limit > 0 {
		q = q.Offset((page - 1) * limit).Limit(limit)
	}
	err := q.Order("id DESC").Find(&templates).Error
	return templates, total, err
}

func (r *TaskRepository) CreateVariant(v *model.TaskVariant) error {
	return r.DB.Create(v).Error
}

func (r *TaskRepository) FindVariantByID(id string) (*model.TaskVariant, error) {
	var v model.TaskVariant
	if err := r.DB.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *TaskRepository) FindVariantForStudent(templateID, studentID uint) (*model.TaskVariant, error) {
	var v model.TaskVariant
	err := r.DB.Where("template_id = ? AND student_id = ?", templateID, studentID).
		Order("created_at DESC").First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}
