package services

import (
	"context"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"strings"
	"time"
	"unicode/utf8"

	"project-review-server/database"
	"project-review-server/models"
	"project-review-server/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ReviewService runs the project submission, resubmission and review workflow
type ReviewService struct {
	projects  ProjectStore
	feedback  FeedbackStore
	artifacts storage.Store
	policy    storage.UploadPolicy
	notifier  Notifier
	strict    bool
	now       func() time.Time
}

// ReviewServiceOption customizes a ReviewService
type ReviewServiceOption func(*ReviewService)

// WithNotifier delivers workflow events to n
func WithNotifier(n Notifier) ReviewServiceOption {
	return func(s *ReviewService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithStrictValidation enforces title 3..200 and description 10..2000 characters
func WithStrictValidation(strict bool) ReviewServiceOption {
	return func(s *ReviewService) { s.strict = strict }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) ReviewServiceOption {
	return func(s *ReviewService) { s.now = now }
}

func NewReviewService(projects ProjectStore, feedback FeedbackStore, artifacts storage.Store, policy storage.UploadPolicy, opts ...ReviewServiceOption) *ReviewService {
	s := &ReviewService{
		projects:  projects,
		feedback:  feedback,
		artifacts: artifacts,
		policy:    policy,
		notifier:  noopNotifier{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitInput is a new project submission
type SubmitInput struct {
	Title       string
	Description string
	File        *multipart.FileHeader
}

// ResubmitInput replaces the project's file and optionally its title and description.
// ExpectedVersion, when set, must equal the stored version.
type ResubmitInput struct {
	Title           string
	Description     string
	File            *multipart.FileHeader
	ExpectedVersion *int
}

// ReviewInput is an admin decision on a project
type ReviewInput struct {
	Status   string
	Feedback string
	Rating   *int
}

// ListOptions filters and paginates project listings
type ListOptions struct {
	Status string
	Page   int
	Limit  int
}

// ProjectPage is one page of a listing
type ProjectPage struct {
	Projects []models.Project `json:"projects"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

// Submit creates version 1 of a project in pending status
func (s *ReviewService) Submit(ctx context.Context, actor *models.User, in SubmitInput) (*models.Project, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" || description == "" {
		return nil, ValidationError("title and description are required")
	}
	if err := s.checkLengths(title, description); err != nil {
		return nil, err
	}
	if in.File == nil {
		return nil, ErrMissingFile
	}

	ref, err := s.storeFile(ctx, in.File)
	if err != nil {
		return nil, err
	}

	project := &models.Project{
		Title:       title,
		Description: description,
		OwnerID:     actor.ID,
		Status:      models.StatusPending,
		Version:     1,
		FileRef:     ref,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		s.discardFile(ctx, ref)
		return nil, internalError("error submitting project", err)
	}

	project.Owner = actor
	project.PreviousVersions = []models.ProjectVersion{}

	log.Printf("📥 Project %d submitted by user %d", project.ID, actor.ID)
	s.notifier.ProjectSubmitted(project)
	return project, nil
}

// Resubmit supersedes the current version with a new file. Only the owner may resubmit.
func (s *ReviewService) Resubmit(ctx context.Context, actor *models.User, projectID uint, in ResubmitInput) (*models.Project, error) {
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !project.IsOwnedBy(actor.ID) {
		return nil, ErrNotOwner
	}
	if in.File == nil {
		return nil, ErrMissingFile
	}
	if in.ExpectedVersion != nil && *in.ExpectedVersion != project.Version {
		return nil, ErrVersionConflict
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = project.Title
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = project.Description
	}
	if err := s.checkLengths(title, description); err != nil {
		return nil, err
	}

	ref, err := s.storeFile(ctx, in.File)
	if err != nil {
		return nil, err
	}

	now := s.now()
	snapshot := project.Snapshot(now)
	fromVersion := project.Version

	project.Title = title
	project.Description = description
	project.FileRef = ref
	project.Version = fromVersion + 1
	project.Status = models.StatusUpdated
	project.AdminFeedback = ""

	if err := s.projects.Resubmit(ctx, project, &snapshot, fromVersion); err != nil {
		s.discardFile(ctx, ref)
		switch {
		case errors.Is(err, database.ErrStaleVersion):
			return nil, ErrVersionConflict
		case errors.Is(err, database.ErrDuplicate):
			// Another resubmission already wrote the snapshot for this version.
			return nil, ErrVersionConflict
		default:
			return nil, internalError("error updating project", err)
		}
	}

	project.PreviousVersions = append(project.PreviousVersions, snapshot)

	log.Printf("🔁 Project %d resubmitted by user %d as version %d", project.ID, actor.ID, project.Version)
	s.notifier.ProjectResubmitted(project)
	return project, nil
}

// Review records an admin decision, folds in the optional rating and appends an admin feedback row
func (s *ReviewService) Review(ctx context.Context, actor *models.User, projectID uint, in ReviewInput) (*models.Project, *models.Feedback, error) {
	if !actor.IsAdmin() {
		return nil, nil, ErrNotAdmin
	}
	status, ok := models.ParseProjectStatus(strings.TrimSpace(in.Status))
	if !ok || !status.IsReviewOutcome() {
		return nil, nil, ErrInvalidStatus
	}
	if in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5) {
		return nil, nil, ErrInvalidRating
	}

	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	adminID := actor.ID
	project.Status = status
	project.AdminFeedback = in.Feedback
	project.LastReviewedAt = &now
	project.LastReviewedBy = &adminID
	if in.Rating != nil {
		project.ApplyRating(*in.Rating)
	}

	fb := &models.Feedback{
		ProjectID:       project.ID,
		AuthorID:        actor.ID,
		Content:         in.Feedback,
		Rating:          in.Rating,
		IsAdminFeedback: true,
	}
	if err := s.projects.ApplyReview(ctx, project, fb); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, nil, ErrProjectNotFound
		}
		return nil, nil, internalError("error reviewing project", err)
	}
	fb.Author = actor

	log.Printf("📝 Project %d reviewed by admin %d: status=%s", project.ID, actor.ID, project.Status)
	s.notifier.ProjectReviewed(project, fb)
	return project, fb, nil
}

// Comment appends a feedback row without changing status or rating. Owner or admin only.
func (s *ReviewService) Comment(ctx context.Context, actor *models.User, projectID uint, content string) (*models.Feedback, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyComment
	}

	project, err := s.visibleProject(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}

	fb := &models.Feedback{
		ProjectID:       project.ID,
		AuthorID:        actor.ID,
		Content:         content,
		IsAdminFeedback: actor.IsAdmin(),
	}
	if err := s.feedback.Create(ctx, fb); err != nil {
		return nil, internalError("error adding feedback", err)
	}
	fb.Author = actor

	s.notifier.FeedbackAdded(project, fb)
	return fb, nil
}

// ListAll returns every project, newest first. Admin only.
func (s *ReviewService) ListAll(ctx context.Context, actor *models.User, opts ListOptions) (*ProjectPage, error) {
	if !actor.IsAdmin() {
		return nil, ErrNotAdmin
	}
	return s.list(ctx, nil, opts)
}

// ListMine returns the actor's own projects, newest first
func (s *ReviewService) ListMine(ctx context.Context, actor *models.User, opts ListOptions) (*ProjectPage, error) {
	ownerID := actor.ID
	return s.list(ctx, &ownerID, opts)
}

// Details returns a project and its feedback, newest first. Owner or admin only.
func (s *ReviewService) Details(ctx context.Context, actor *models.User, projectID uint) (*models.Project, []models.Feedback, error) {
	project, err := s.visibleProject(ctx, actor, projectID)
	if err != nil {
		return nil, nil, err
	}
	feedback, err := s.feedback.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, nil, internalError("error fetching project details", err)
	}
	if feedback == nil {
		feedback = []models.Feedback{}
	}
	return project, feedback, nil
}

// Download opens the current artifact of a project. Owner or admin only.
func (s *ReviewService) Download(ctx context.Context, actor *models.User, projectID uint) (io.ReadCloser, *models.Project, error) {
	project, err := s.visibleProject(ctx, actor, projectID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.artifacts.Open(ctx, project.FileRef)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrFileMissing
		}
		return nil, nil, internalError("error downloading project file", err)
	}
	return rc, project, nil
}

func (s *ReviewService) list(ctx context.Context, ownerID *uint, opts ListOptions) (*ProjectPage, error) {
	filter := database.ProjectFilter{OwnerID: ownerID}
	if opts.Status != "" {
		status, ok := models.ParseProjectStatus(opts.Status)
		if !ok {
			return nil, ValidationError("invalid status filter")
		}
		filter.Status = status
	}

	page, limit := opts.Page, opts.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	filter.Offset = (page - 1) * limit
	filter.Limit = limit

	projects, total, err := s.projects.List(ctx, filter)
	if err != nil {
		return nil, internalError("error fetching projects", err)
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return &ProjectPage{Projects: projects, Total: total, Page: page, Limit: limit}, nil
}

func (s *ReviewService) findProject(ctx context.Context, id uint) (*models.Project, error) {
	project, err := s.projects.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, internalError("error fetching project", err)
	}
	return project, nil
}

func (s *ReviewService) visibleProject(ctx context.Context, actor *models.User, id uint) (*models.Project, error) {
	project, err := s.findProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !project.IsOwnedBy(actor.ID) {
		return nil, ErrNotAuthorized
	}
	return project, nil
}

func (s *ReviewService) checkLengths(title, description string) error {
	if !s.strict {
		return nil
	}
	if n := utf8.RuneCountInString(title); n < 3 || n > 200 {
		return ValidationError("title must be between 3 and 200 characters")
	}
	if n := utf8.RuneCountInString(description); n < 10 || n > 2000 {
		return ValidationError("description must be between 10 and 2000 characters")
	}
	return nil
}

// storeFile applies the upload policy and hands the file to the artifact store
func (s *ReviewService) storeFile(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	if err := s.policy.Check(fh); err != nil {
		return "", UploadError(err.Error())
	}

	f, err := fh.Open()
	if err != nil {
		return "", internalError("error reading uploaded file", err)
	}
	defer f.Close()

	ref, err := s.artifacts.Save(ctx, storage.GenerateFilename(fh.Filename, s.now()), f, fh.Size)
	if err != nil {
		return "", internalError("error storing uploaded file", err)
	}
	return ref, nil
}

// discardFile removes an artifact whose metadata write failed
func (s *ReviewService) discardFile(ctx context.Context, ref string) {
	if err := s.artifacts.Delete(ctx, ref); err != nil {
		log.Printf("⚠️ Orphaned artifact %s left for reconciliation: %v", ref, err)
	}
}
