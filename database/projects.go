package database

import (
	"context"

	"gorm.io/gorm"

	"project-review-server/models"
)

// ProjectFilter narrows project listings. Zero values mean "no constraint".
type ProjectFilter struct {
	OwnerID *uint
	Status  models.ProjectStatus
	Offset  int
	Limit   int
}

// RatingMismatch is a project whose denormalized rating count disagrees with its feedback log.
type RatingMismatch struct {
	ProjectID     uint
	RatingCount   int
	FeedbackCount int
}

// ProjectRepository persists project heads and their superseded versions
type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	return translate(r.db.WithContext(ctx).Omit("Owner", "PreviousVersions").Create(project).Error)
}

// FindByID loads a project with its owner and version history
func (r *ProjectRepository) FindByID(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Preload("PreviousVersions", func(db *gorm.DB) *gorm.DB {
			return db.Order("version ASC")
		}).
		First(&project, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &project, nil
}

// List returns projects newest-first with owners expanded, plus the unpaginated total
func (r *ProjectRepository) List(ctx context.Context, filter ProjectFilter) ([]models.Project, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Project{})
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var projects []models.Project
	query = query.
		Preload("Owner").
		Preload("PreviousVersions", func(db *gorm.DB) *gorm.DB {
			return db.Order("version ASC")
		}).
		Order("created_at DESC").
		Order("id DESC")
	if filter.Limit > 0 {
		query = query.Offset(filter.Offset).Limit(filter.Limit)
	}
	if err := query.Find(&projects).Error; err != nil {
		return nil, 0, translate(err)
	}
	return projects, total, nil
}

// Resubmit stores the snapshot and moves the head to its new version in one transaction.
// The head update only applies if the stored version still equals fromVersion.
func (r *ProjectRepository) Resubmit(ctx context.Context, project *models.Project, snapshot *models.ProjectVersion, fromVersion int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Project{}).
			Where("id = ? AND version = ?", project.ID, fromVersion).
			Updates(map[string]interface{}{
				"title":          project.Title,
				"description":    project.Description,
				"file_ref":       project.FileRef,
				"version":        project.Version,
				"status":         project.Status,
				"admin_feedback": project.AdminFeedback,
			})
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleVersion
		}
		if err := tx.Create(snapshot).Error; err != nil {
			return translate(err)
		}
		return nil
	})
}

// ApplyReview persists the review outcome on the project and appends the feedback row atomically
func (r *ProjectRepository) ApplyReview(ctx context.Context, project *models.Project, fb *models.Feedback) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Project{}).
			Where("id = ?", project.ID).
			Updates(map[string]interface{}{
				"status":           project.Status,
				"admin_feedback":   project.AdminFeedback,
				"average_rating":   project.AverageRating,
				"rating_count":     project.RatingCount,
				"last_reviewed_at": project.LastReviewedAt,
				"last_reviewed_by": project.LastReviewedBy,
			})
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Omit("Author").Create(fb).Error; err != nil {
			return translate(err)
		}
		return nil
	})
}

// FileRefs returns every artifact reference held by a project head or snapshot
func (r *ProjectRepository) FileRefs(ctx context.Context) ([]string, error) {
	var heads, snapshots []string
	if err := r.db.WithContext(ctx).Model(&models.Project{}).Pluck("file_ref", &heads).Error; err != nil {
		return nil, translate(err)
	}
	if err := r.db.WithContext(ctx).Model(&models.ProjectVersion{}).Pluck("file_ref", &snapshots).Error; err != nil {
		return nil, translate(err)
	}
	return append(heads, snapshots...), nil
}

// RatingMismatches finds projects whose rating_count differs from their rated feedback rows
func (r *ProjectRepository) RatingMismatches(ctx context.Context) ([]RatingMismatch, error) {
	var out []RatingMismatch
	err := r.db.WithContext(ctx).Raw(`
		SELECT p.id AS project_id, p.rating_count AS rating_count, COUNT(f.id) AS feedback_count
		FROM projects p
		LEFT JOIN feedback f ON f.project_id = p.id AND f.rating IS NOT NULL
		GROUP BY p.id, p.rating_count
		HAVING p.rating_count <> COUNT(f.id)
	`).Scan(&out).Error
	return out, translate(err)
}
