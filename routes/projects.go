package routes

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"project-review-server/middleware"
	"project-review-server/services"
)

const projectFileField = "projectFile"

// ReviewRequest represents an admin review. Rating is optional.
type ReviewRequest struct {
	Status   string `json:"status" form:"status"`
	Feedback string `json:"feedback" form:"feedback"`
	Rating   *int   `json:"rating" form:"-"`
}

// CommentRequest represents a feedback comment
type CommentRequest struct {
	Content string `json:"content" form:"content"`
}

// RegisterProjectRoutes registers project routes
func (h *Handler) RegisterProjectRoutes(router *gin.RouterGroup) {
	router.Use(h.requireAuth())
	{
		router.POST("/submit", h.submitProject)
		router.POST("/update/:id", h.resubmitProject)
		router.GET("/my-projects", h.myProjects)
		router.GET("/details/:id", h.projectDetails)
		router.GET("/download/:id", h.downloadProject)
		router.POST("/comment/:id", h.commentOnProject)

		admin := router.Group("")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.GET("/all", h.allProjects)
			admin.POST("/review/:id", h.reviewProject)
		}
	}
}

func (h *Handler) submitProject(c *gin.Context) {
	file, ok := projectFile(c)
	if !ok {
		return
	}

	project, err := h.projects.Submit(c.Request.Context(), mustUser(c), services.SubmitInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		File:        file,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (h *Handler) resubmitProject(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	file, ok := projectFile(c)
	if !ok {
		return
	}
	expected, ok := expectedVersion(c)
	if !ok {
		return
	}

	project, err := h.projects.Resubmit(c.Request.Context(), mustUser(c), id, services.ResubmitInput{
		Title:           c.PostForm("title"),
		Description:     c.PostForm("description"),
		File:            file,
		ExpectedVersion: expected,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("ETag", strconv.Quote(strconv.Itoa(project.Version)))
	c.JSON(http.StatusCreated, project)
}

func (h *Handler) myProjects(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	page, err := h.projects.ListMine(c.Request.Context(), mustUser(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	writePage(c, page)
}

func (h *Handler) allProjects(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}
	page, err := h.projects.ListAll(c.Request.Context(), mustUser(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	writePage(c, page)
}

func (h *Handler) projectDetails(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	project, feedback, err := h.projects.Details(c.Request.Context(), mustUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project, "feedback": feedback})
}

func (h *Handler) reviewProject(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review payload"})
		return
	}
	// Forms carry the rating as text; an empty field means no rating.
	if c.ContentType() != gin.MIMEJSON {
		if raw := strings.TrimSpace(c.PostForm("rating")); raw != "" {
			rating, err := strconv.Atoi(raw)
			if err != nil {
				respondError(c, services.ErrInvalidRating)
				return
			}
			req.Rating = &rating
		}
	}

	project, fb, err := h.projects.Review(c.Request.Context(), mustUser(c), id, services.ReviewInput{
		Status:   req.Status,
		Feedback: req.Feedback,
		Rating:   req.Rating,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project, "feedback": fb})
}

func (h *Handler) commentOnProject(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req CommentRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment payload"})
		return
	}

	fb, err := h.projects.Comment(c.Request.Context(), mustUser(c), id, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

func (h *Handler) downloadProject(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rc, project, err := h.projects.Download(c.Request.Context(), mustUser(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(project.FileRef))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", project.FileRef))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		log.Printf("⚠️ Download of project %d interrupted: %v", project.ID, err)
	}
}

// projectFile returns the uploaded file, or nil when the request carries none.
// An oversized body is answered here with 413.
func projectFile(c *gin.Context) (*multipart.FileHeader, bool) {
	file, err := c.FormFile(projectFileField)
	if err == nil {
		return file, true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "uploaded file is too large"})
		return nil, false
	}
	return nil, true
}

// expectedVersion reads the optimistic concurrency token from the form or an If-Match header
func expectedVersion(c *gin.Context) (*int, bool) {
	raw := strings.TrimSpace(c.PostForm("expectedVersion"))
	if raw == "" {
		raw = strings.TrimSpace(c.GetHeader("If-Match"))
		raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	}
	if raw == "" {
		return nil, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expectedVersion must be a positive integer"})
		return nil, false
	}
	return &v, true
}

func listOptions(c *gin.Context) (services.ListOptions, bool) {
	opts := services.ListOptions{Status: strings.TrimSpace(c.Query("status"))}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &opts.Page}, {"limit", &opts.Limit}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": p.name + " must be a positive integer"})
			return opts, false
		}
		*p.dst = v
	}
	return opts, true
}

// writePage keeps the body a plain array and moves pagination into headers
func writePage(c *gin.Context, page *services.ProjectPage) {
	c.Header("X-Total-Count", strconv.FormatInt(page.Total, 10))
	c.Header("X-Page", strconv.Itoa(page.Page))
	c.Header("X-Per-Page", strconv.Itoa(page.Limit))
	c.JSON(http.StatusOK, page.Projects)
}
