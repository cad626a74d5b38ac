package routes

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"project-review-server/config"
	"project-review-server/middleware"
	"project-review-server/models"
	"project-review-server/services"
	"project-review-server/types"
	ws "project-review-server/websocket"
)

// Authenticator is the session issuer the auth routes depend on
type Authenticator interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password, adminKey string) (*services.LoginResult, error)
	ResolveSession(ctx context.Context, token string) (*models.User, *types.Claims, bool)
	Logout(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, email, newPassword, confirmPassword string) error
}

// ProjectWorkflow is the review workflow the project routes depend on
type ProjectWorkflow interface {
	Submit(ctx context.Context, actor *models.User, in services.SubmitInput) (*models.Project, error)
	Resubmit(ctx context.Context, actor *models.User, projectID uint, in services.ResubmitInput) (*models.Project, error)
	Review(ctx context.Context, actor *models.User, projectID uint, in services.ReviewInput) (*models.Project, *models.Feedback, error)
	Comment(ctx context.Context, actor *models.User, projectID uint, content string) (*models.Feedback, error)
	ListAll(ctx context.Context, actor *models.User, opts services.ListOptions) (*services.ProjectPage, error)
	ListMine(ctx context.Context, actor *models.User, opts services.ListOptions) (*services.ProjectPage, error)
	Details(ctx context.Context, actor *models.User, projectID uint) (*models.Project, []models.Feedback, error)
	Download(ctx context.Context, actor *models.User, projectID uint) (io.ReadCloser, *models.Project, error)
}

// Handler holds the dependencies of every HTTP route
type Handler struct {
	cfg      *config.Config
	auth     Authenticator
	projects ProjectWorkflow
	hub      *ws.Hub
	health   func(ctx context.Context) error
}

// New creates the route handler. hub and health may be nil.
func New(cfg *config.Config, auth Authenticator, projects ProjectWorkflow, hub *ws.Hub, health func(ctx context.Context) error) *Handler {
	return &Handler{cfg: cfg, auth: auth, projects: projects, hub: hub, health: health}
}

// Setup registers all routes on the engine
func (h *Handler) Setup(router *gin.Engine) {
	router.GET("/health", h.healthCheck)

	if h.hub != nil {
		router.GET("/ws", middleware.WebSocketAuthMiddleware(h.auth, h.cfg.Auth.CookieName), h.serveWebSocket)
	}

	h.RegisterAuthRoutes(router)
	h.RegisterProjectRoutes(router.Group("/projects"))
}

func (h *Handler) requireAuth() gin.HandlerFunc {
	return middleware.AuthMiddleware(h.auth, h.cfg.Auth.CookieName)
}

func (h *Handler) healthCheck(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			log.Printf("⚠️ Health check failed: %v", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().UTC(),
	})
}

func (h *Handler) serveWebSocket(c *gin.Context) {
	user := mustUser(c)
	ws.ServeWebSocket(h.hub, c.Writer, c.Request, user.ID, user.IsAdmin())
}

// respondError maps a service error onto its HTTP status and writes {"error": message}
func respondError(c *gin.Context, err error) {
	var status int
	switch services.KindOf(err) {
	case services.KindValidation, services.KindUpload:
		status = http.StatusBadRequest
	case services.KindAuthentication:
		status = http.StatusUnauthorized
	case services.KindAuthorization:
		status = http.StatusForbidden
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindConflict:
		status = http.StatusConflict
	default:
		log.Printf("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": publicMessage(err)})
}

// publicMessage never exposes the wrapped cause
func publicMessage(err error) string {
	var se *services.Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal server error"
}

// mustUser returns the user set by AuthMiddleware
func mustUser(c *gin.Context) *models.User {
	user, _ := middleware.CurrentUser(c)
	return user
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return 0, false
	}
	return uint(id), true
}
