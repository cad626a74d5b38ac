package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"project-review-server/database"
	"project-review-server/models"
)

type fakeUsers struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*models.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[uint]*models.User)}
}

func (f *fakeUsers) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := strings.ToLower(user.Email)
	for _, u := range f.byID {
		if u.Email == email {
			return database.ErrDuplicate
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.Email = email
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.CreatedAt = time.Now()
	cp := *user
	f.byID[user.ID] = &cp
	return nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeUsers) FindByID(_ context.Context, id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpdatePasswordHash(_ context.Context, id uint, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return database.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

type fakeFeedback struct {
	mu     sync.Mutex
	nextID uint
	rows   []models.Feedback
}

func (f *fakeFeedback) Create(_ context.Context, fb *models.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	fb.ID = f.nextID
	fb.CreatedAt = time.Now().Add(time.Duration(f.nextID) * time.Millisecond)
	f.rows = append(f.rows, *fb)
	return nil
}

func (f *fakeFeedback) ListByProject(_ context.Context, projectID uint) ([]models.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Feedback
	for _, fb := range f.rows {
		if fb.ProjectID == projectID {
			out = append(out, fb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type fakeProjects struct {
	mu       sync.Mutex
	nextID   uint
	rows     map[uint]*models.Project
	feedback *fakeFeedback
	// failWith is returned by the next write when set.
	failWith error
}

func newFakeProjects(feedback *fakeFeedback) *fakeProjects {
	return &fakeProjects{rows: make(map[uint]*models.Project), feedback: feedback}
}

func cloneProject(p *models.Project) *models.Project {
	cp := *p
	cp.Owner = nil
	cp.PreviousVersions = append([]models.ProjectVersion{}, p.PreviousVersions...)
	return &cp
}

func (f *fakeProjects) takeFailure() error {
	err := f.failWith
	f.failWith = nil
	return err
}

func (f *fakeProjects) Create(_ context.Context, project *models.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	f.nextID++
	project.ID = f.nextID
	project.CreatedAt = time.Unix(1700000000, 0).Add(time.Duration(f.nextID) * time.Second)
	f.rows[project.ID] = cloneProject(project)
	return nil
}

func (f *fakeProjects) FindByID(_ context.Context, id uint) (*models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneProject(p), nil
}

func (f *fakeProjects) stored(id uint) *models.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneProject(f.rows[id])
}

func (f *fakeProjects) List(_ context.Context, filter database.ProjectFilter) ([]models.Project, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []models.Project
	for _, p := range f.rows {
		if filter.OwnerID != nil && p.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		matched = append(matched, *cloneProject(p))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []models.Project{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], total, nil
}

func (f *fakeProjects) Resubmit(_ context.Context, project *models.Project, snapshot *models.ProjectVersion, fromVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return err
	}
	current, ok := f.rows[project.ID]
	if !ok || current.Version != fromVersion {
		return database.ErrStaleVersion
	}
	next := cloneProject(project)
	next.PreviousVersions = append(append([]models.ProjectVersion{}, current.PreviousVersions...), *snapshot)
	f.rows[project.ID] = next
	return nil
}

func (f *fakeProjects) ApplyReview(ctx context.Context, project *models.Project, fb *models.Feedback) error {
	f.mu.Lock()
	if err := f.takeFailure(); err != nil {
		f.mu.Unlock()
		return err
	}
	if _, ok := f.rows[project.ID]; !ok {
		f.mu.Unlock()
		return database.ErrNotFound
	}
	f.rows[project.ID] = cloneProject(project)
	f.mu.Unlock()
	return f.feedback.Create(ctx, fb)
}

type recordedEvent struct {
	kind      string
	projectID uint
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) record(kind string, p *models.Project) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{kind: kind, projectID: p.ID})
}

func (n *recordingNotifier) ProjectSubmitted(p *models.Project)   { n.record("submitted", p) }
func (n *recordingNotifier) ProjectResubmitted(p *models.Project) { n.record("resubmitted", p) }
func (n *recordingNotifier) ProjectReviewed(p *models.Project, _ *models.Feedback) {
	n.record("reviewed", p)
}
func (n *recordingNotifier) FeedbackAdded(p *models.Project, _ *models.Feedback) {
	n.record("feedback", p)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.kind)
	}
	return out
}

// newFileHeader builds a multipart file header the way gin hands one to a handler.
func newFileHeader(t *testing.T, filename, contentType, content string) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="projectFile"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	files := form.File["projectFile"]
	require.Len(t, files, 1)
	return files[0]
}

var errBoom = errors.New("boom")
