package routes

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"project-review-server/middleware"
	"project-review-server/models"
	"project-review-server/services"
)

// RegisterRequest represents the registration form
type RegisterRequest struct {
	Name            string `json:"name" form:"name" binding:"required"`
	Email           string `json:"email" form:"email" binding:"required,email"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirmPassword" form:"confirmPassword"`
	AdminKey        string `json:"adminKey" form:"adminKey"`
}

// LoginRequest represents the login form
type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
	AdminKey string `json:"adminKey" form:"adminKey"`
}

// ResetPasswordRequest represents the password reset form
type ResetPasswordRequest struct {
	Email           string `json:"email" form:"email" binding:"required"`
	NewPassword     string `json:"newPassword" form:"newPassword"`
	ConfirmPassword string `json:"confirmPassword" form:"confirmPassword"`
}

// LoginResponse is the public user plus the token for clients that cannot use the cookie
type LoginResponse struct {
	models.PublicUser
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// RegisterAuthRoutes registers authentication routes
func (h *Handler) RegisterAuthRoutes(router gin.IRouter) {
	router.POST("/register", h.register)
	router.POST("/login", h.login)
	router.POST("/logout", h.logout)
	router.POST("/reset-pass", h.resetPassword)
	router.GET("/profile", middleware.OptionalAuthMiddleware(h.auth, h.cfg.Auth.CookieName), h.profile)
}

func (h *Handler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and a valid email are required"})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), services.RegisterInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		AdminKey:        req.AdminKey,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, user.Public())
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, req.AdminKey)
	if err != nil {
		respondError(c, err)
		return
	}

	maxAge := 0
	if result.ExpiresAt != nil {
		maxAge = int(time.Until(*result.ExpiresAt).Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Auth.CookieName, result.Token, maxAge, "/", "", h.cfg.Auth.CookieSecure, true)

	log.Printf("✅ User %d logged in", result.User.ID)
	c.JSON(http.StatusOK, LoginResponse{
		PublicUser: result.User.Public(),
		Token:      result.Token,
		ExpiresAt:  result.ExpiresAt,
	})
}

// logout always clears the cookie, even when revoking the token fails
func (h *Handler) logout(c *gin.Context) {
	token := middleware.TokenFromRequest(c, h.cfg.Auth.CookieName)
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		log.Printf("⚠️ Logout could not revoke token: %v", err)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Auth.CookieName, "", -1, "/", "", h.cfg.Auth.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *Handler) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Email, req.NewPassword, req.ConfirmPassword); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password reset successful"})
}

func (h *Handler) profile(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"success": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user.Public()})
}
