package services

import (
	"context"

	"project-review-server/database"
	"project-review-server/models"
)

// UserStore is the credential store the auth service depends on.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id uint, hash string) error
}

// ProjectStore is the project repository the review workflow depends on.
type ProjectStore interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, id uint) (*models.Project, error)
	List(ctx context.Context, filter database.ProjectFilter) ([]models.Project, int64, error)
	Resubmit(ctx context.Context, project *models.Project, snapshot *models.ProjectVersion, fromVersion int) error
	ApplyReview(ctx context.Context, project *models.Project, fb *models.Feedback) error
}

// FeedbackStore is the append-only feedback log.
type FeedbackStore interface {
	Create(ctx context.Context, fb *models.Feedback) error
	ListByProject(ctx context.Context, projectID uint) ([]models.Feedback, error)
}

// Notifier receives workflow events for best-effort real-time delivery.
type Notifier interface {
	ProjectSubmitted(project *models.Project)
	ProjectResubmitted(project *models.Project)
	ProjectReviewed(project *models.Project, fb *models.Feedback)
	FeedbackAdded(project *models.Project, fb *models.Feedback)
}

type noopNotifier struct{}

func (noopNotifier) ProjectSubmitted(*models.Project)                  {}
func (noopNotifier) ProjectResubmitted(*models.Project)                {}
func (noopNotifier) ProjectReviewed(*models.Project, *models.Feedback) {}
func (noopNotifier) FeedbackAdded(*models.Project, *models.Feedback)   {}
