package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"project-review-server/config"
	"project-review-server/models"
	"project-review-server/services"
	"project-review-server/types"
)

var (
	testUser  = &models.User{ID: 1, Name: "Ada", Email: "ada@example.com", Role: models.RoleUser}
	testAdmin = &models.User{ID: 2, Name: "Root", Email: "root@example.com", Role: models.RoleAdmin}
)

type stubAuth struct {
	sessions  map[string]*models.User
	loginErr  error
	logoutErr error
	loggedOut []string
}

func (s *stubAuth) Register(_ context.Context, in services.RegisterInput) (*models.User, error) {
	return &models.User{ID: 10, Name: in.Name, Email: in.Email, Role: models.RoleUser}, nil
}

func (s *stubAuth) Login(_ context.Context, email, _, _ string) (*services.LoginResult, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	exp := time.Now().Add(time.Hour)
	return &services.LoginResult{Token: "signed-token", ExpiresAt: &exp, User: &models.User{ID: 1, Email: email}}, nil
}

func (s *stubAuth) ResolveSession(_ context.Context, token string) (*models.User, *types.Claims, bool) {
	user, ok := s.sessions[token]
	if !ok {
		return nil, nil, false
	}
	return user, &types.Claims{ID: user.ID}, true
}

func (s *stubAuth) Logout(_ context.Context, token string) error {
	s.loggedOut = append(s.loggedOut, token)
	return s.logoutErr
}

func (s *stubAuth) ResetPassword(context.Context, string, string, string) error { return nil }

type stubWorkflow struct {
	err          error
	submitted    services.SubmitInput
	resubmitted  services.ResubmitInput
	reviewed     services.ReviewInput
	listed       services.ListOptions
	uploadedName string
	body         string
}

func (s *stubWorkflow) Submit(_ context.Context, actor *models.User, in services.SubmitInput) (*models.Project, error) {
	s.submitted = in
	if in.File != nil {
		s.uploadedName = in.File.Filename
	}
	if s.err != nil {
		return nil, s.err
	}
	return &models.Project{ID: 1, Title: in.Title, OwnerID: actor.ID, Status: models.StatusPending, Version: 1}, nil
}

func (s *stubWorkflow) Resubmit(_ context.Context, actor *models.User, id uint, in services.ResubmitInput) (*models.Project, error) {
	s.resubmitted = in
	if s.err != nil {
		return nil, s.err
	}
	return &models.Project{ID: id, OwnerID: actor.ID, Status: models.StatusUpdated, Version: 3}, nil
}

func (s *stubWorkflow) Review(_ context.Context, _ *models.User, id uint, in services.ReviewInput) (*models.Project, *models.Feedback, error) {
	s.reviewed = in
	if s.err != nil {
		return nil, nil, s.err
	}
	return &models.Project{ID: id, Status: models.ProjectStatus(in.Status)}, &models.Feedback{ProjectID: id, Rating: in.Rating, IsAdminFeedback: true}, nil
}

func (s *stubWorkflow) Comment(_ context.Context, actor *models.User, id uint, content string) (*models.Feedback, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Feedback{ProjectID: id, AuthorID: actor.ID, Content: content}, nil
}

func (s *stubWorkflow) ListAll(_ context.Context, _ *models.User, opts services.ListOptions) (*services.ProjectPage, error) {
	s.listed = opts
	return &services.ProjectPage{Projects: []models.Project{{ID: 1}, {ID: 2}}, Total: 7, Page: 2, Limit: 2}, s.err
}

func (s *stubWorkflow) ListMine(_ context.Context, actor *models.User, opts services.ListOptions) (*services.ProjectPage, error) {
	s.listed = opts
	return &services.ProjectPage{Projects: []models.Project{}, Page: 1, Limit: 50}, s.err
}

func (s *stubWorkflow) Details(_ context.Context, _ *models.User, id uint) (*models.Project, []models.Feedback, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return &models.Project{ID: id}, []models.Feedback{}, nil
}

func (s *stubWorkflow) Download(_ context.Context, _ *models.User, id uint) (io.ReadCloser, *models.Project, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.body)), &models.Project{ID: id, FileRef: "notes-1.txt"}, nil
}

func newTestHandler(t *testing.T) (*gin.Engine, *stubAuth, *stubWorkflow) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{Auth: config.AuthConfig{CookieName: "token"}}
	auth := &stubAuth{sessions: map[string]*models.User{"user-token": testUser, "admin-token": testAdmin}}
	workflow := &stubWorkflow{}

	router := gin.New()
	New(cfg, auth, workflow, nil, nil).Setup(router)
	return router, auth, workflow
}

func do(router *gin.Engine, req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, path string, fields map[string]string, filename string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="projectFile"; filename="`+filename+`"`)
		h.Set("Content-Type", "text/plain")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte("hello"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestLoginSetsSessionCookie(t *testing.T) {
	router, _, _ := newTestHandler(t)

	w := do(router, jsonRequest(http.MethodPost, "/login", `{"email":"ada@example.com","password":"hunter22"}`), "")
	require.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "token", cookies[0].Name)
	assert.Equal(t, "signed-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.InDelta(t, 3600, cookies[0].MaxAge, 5)

	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "ada@example.com", body["email"])
	assert.Equal(t, "signed-token", body["token"])
}

func TestLoginErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"unknown email", services.ErrUserNotFound, http.StatusNotFound, services.ErrUserNotFound.Message},
		{"bad password", services.ErrBadPassword, http.StatusUnauthorized, services.ErrBadPassword.Message},
		{"wrong admin key", services.ErrInvalidAdminKey, http.StatusForbidden, services.ErrInvalidAdminKey.Message},
		{"unexpected", errors.New("connection refused"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, auth, _ := newTestHandler(t)
			auth.loginErr = tt.err

			w := do(router, jsonRequest(http.MethodPost, "/login", `{"email":"a@example.com","password":"x"}`), "")
			assert.Equal(t, tt.wantCode, w.Code)

			var body map[string]string
			decode(t, w, &body)
			assert.Equal(t, tt.wantMsg, body["error"])
			assert.Empty(t, w.Result().Cookies())
		})
	}
}

func TestLogoutAlwaysClearsCookie(t *testing.T) {
	router, auth, _ := newTestHandler(t)
	auth.logoutErr = errors.New("redis down")

	w := do(router, httptest.NewRequest(http.MethodPost, "/logout", nil), "user-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Logged out successfully")
	assert.Contains(t, w.Header().Get("Set-Cookie"), "token=;")
	assert.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")
	assert.Equal(t, []string{"user-token"}, auth.loggedOut)
}

func TestRegisterAndProfile(t *testing.T) {
	router, _, _ := newTestHandler(t)

	w := do(router, jsonRequest(http.MethodPost, "/register", `{"name":"Ada","email":"not-an-email"}`), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, jsonRequest(http.MethodPost, "/register", `{"name":"Ada","email":"ada@example.com","password":"hunter22","confirmPassword":"hunter22"}`), "")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "password")

	w = do(router, httptest.NewRequest(http.MethodGet, "/profile", nil), "")
	assert.JSONEq(t, `{"success":false}`, w.Body.String())

	w = do(router, httptest.NewRequest(http.MethodGet, "/profile", nil), "user-token")
	var body struct {
		Success bool              `json:"success"`
		User    models.PublicUser `json:"user"`
	}
	decode(t, w, &body)
	assert.True(t, body.Success)
	assert.Equal(t, "Ada", body.User.Name)
}

func TestSubmitProject(t *testing.T) {
	router, _, workflow := newTestHandler(t)

	req := multipartRequest(t, "/projects/submit", map[string]string{"title": "Compiler", "description": "toy"}, "notes.txt")
	w := do(router, req, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = multipartRequest(t, "/projects/submit", map[string]string{"title": "Compiler", "description": "toy"}, "notes.txt")
	w = do(router, req, "user-token")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Compiler", workflow.submitted.Title)
	assert.Equal(t, "notes.txt", workflow.uploadedName)

	var project models.Project
	decode(t, w, &project)
	assert.Equal(t, models.StatusPending, project.Status)

	workflow.err = services.ErrMissingFile
	req = multipartRequest(t, "/projects/submit", map[string]string{"title": "Compiler", "description": "toy"}, "")
	w = do(router, req, "user-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, workflow.submitted.File)

	workflow.err = services.UploadError("only .txt files are allowed")
	req = multipartRequest(t, "/projects/submit", map[string]string{"title": "Compiler", "description": "toy"}, "notes.pdf")
	w = do(router, req, "user-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "only .txt files are allowed")
}

func TestResubmitProjectVersioning(t *testing.T) {
	router, _, workflow := newTestHandler(t)

	req := multipartRequest(t, "/projects/update/4", map[string]string{"title": "v2"}, "notes.txt")
	req.Header.Set("If-Match", `"2"`)
	w := do(router, req, "user-token")
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, workflow.resubmitted.ExpectedVersion)
	assert.Equal(t, 2, *workflow.resubmitted.ExpectedVersion)
	assert.Equal(t, `"3"`, w.Header().Get("ETag"))

	req = multipartRequest(t, "/projects/update/4", map[string]string{"expectedVersion": "5"}, "notes.txt")
	w = do(router, req, "user-token")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 5, *workflow.resubmitted.ExpectedVersion)

	req = multipartRequest(t, "/projects/update/4", map[string]string{"expectedVersion": "soon"}, "notes.txt")
	w = do(router, req, "user-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	workflow.err = services.ErrVersionConflict
	req = multipartRequest(t, "/projects/update/4", nil, "notes.txt")
	w = do(router, req, "user-token")
	assert.Equal(t, http.StatusConflict, w.Code)

	workflow.err = services.ErrNotOwner
	req = multipartRequest(t, "/projects/update/4", nil, "notes.txt")
	w = do(router, req, "admin-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = multipartRequest(t, "/projects/update/abc", nil, "notes.txt")
	w = do(router, req, "user-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewProject(t *testing.T) {
	router, _, workflow := newTestHandler(t)

	w := do(router, jsonRequest(http.MethodPost, "/projects/review/3", `{"status":"approved","rating":4}`), "user-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, jsonRequest(http.MethodPost, "/projects/review/3", `{"status":"approved","feedback":"great","rating":4}`), "admin-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "great", workflow.reviewed.Feedback)
	require.NotNil(t, workflow.reviewed.Rating)
	assert.Equal(t, 4, *workflow.reviewed.Rating)

	var body struct {
		Project  models.Project  `json:"project"`
		Feedback models.Feedback `json:"feedback"`
	}
	decode(t, w, &body)
	assert.Equal(t, models.StatusApproved, body.Project.Status)
	assert.True(t, body.Feedback.IsAdminFeedback)

	req := multipartRequest(t, "/projects/review/3", map[string]string{"status": "rejected", "rating": ""}, "")
	w = do(router, req, "admin-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, workflow.reviewed.Rating)

	req = multipartRequest(t, "/projects/review/3", map[string]string{"status": "rejected", "rating": "five"}, "")
	w = do(router, req, "admin-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	workflow.err = services.ErrInvalidRating
	w = do(router, jsonRequest(http.MethodPost, "/projects/review/3", `{"status":"approved","rating":6}`), "admin-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), services.ErrInvalidRating.Message)
}

func TestListProjects(t *testing.T) {
	router, _, workflow := newTestHandler(t)

	w := do(router, httptest.NewRequest(http.MethodGet, "/projects/all", nil), "user-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, httptest.NewRequest(http.MethodGet, "/projects/all?status=approved&page=2&limit=2", nil), "admin-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.ListOptions{Status: "approved", Page: 2, Limit: 2}, workflow.listed)
	assert.Equal(t, "7", w.Header().Get("X-Total-Count"))

	var projects []models.Project
	decode(t, w, &projects)
	assert.Len(t, projects, 2)

	w = do(router, httptest.NewRequest(http.MethodGet, "/projects/my-projects", nil), "user-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(router, httptest.NewRequest(http.MethodGet, "/projects/my-projects?limit=zero", nil), "user-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetailsDownloadAndComment(t *testing.T) {
	router, _, workflow := newTestHandler(t)
	workflow.body = "file contents"

	w := do(router, httptest.NewRequest(http.MethodGet, "/projects/download/8", nil), "user-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "file contents", w.Body.String())
	assert.Equal(t, `attachment; filename="notes-1.txt"`, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	w = do(router, httptest.NewRequest(http.MethodGet, "/projects/details/8", nil), "user-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"feedback":[]`)

	w = do(router, jsonRequest(http.MethodPost, "/projects/comment/8", `{"content":"looks good"}`), "user-token")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "looks good")

	workflow.err = services.ErrNotAuthorized
	w = do(router, httptest.NewRequest(http.MethodGet, "/projects/details/8", nil), "user-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	workflow.err = services.ErrFileMissing
	w = do(router, httptest.NewRequest(http.MethodGet, "/projects/download/8", nil), "user-token")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Auth: config.AuthConfig{CookieName: "token"}}

	router := gin.New()
	New(cfg, &stubAuth{}, &stubWorkflow{}, nil, func(context.Context) error { return errors.New("db down") }).Setup(router)
	w := do(router, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	router = gin.New()
	New(cfg, &stubAuth{}, &stubWorkflow{}, nil, nil).Setup(router)
	w = do(router, httptest.NewRequest(http.MethodGet, "/health", nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
