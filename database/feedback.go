package database

import (
	"context"

	"gorm.io/gorm"

	"project-review-server/models"
)

// FeedbackRepository is the append-only feedback log
type FeedbackRepository struct {
	db *gorm.DB
}

func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Create(ctx context.Context, fb *models.Feedback) error {
	return translate(r.db.WithContext(ctx).Create(fb).Error)
}

// ListByProject returns a project's feedback newest-first with authors expanded
func (r *FeedbackRepository) ListByProject(ctx context.Context, projectID uint) ([]models.Feedback, error) {
	var feedback []models.Feedback
	err := r.db.WithContext(ctx).
		Preload("Author").
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&feedback).Error
	return feedback, translate(err)
}
