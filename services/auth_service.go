package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"strings"
	"time"

	"project-review-server/database"
	"project-review-server/models"
	"project-review-server/types"
)

const minPasswordLength = 6

// AuthService issues and resolves user sessions
type AuthService struct {
	users    UserStore
	jwt      *JWTService
	revoker  Revoker
	adminKey string
	// revokeTTL is used for tokens that carry no exp claim.
	revokeTTL time.Duration
}

// NewAuthService wires the session issuer. An empty adminKey disables admin elevation.
func NewAuthService(users UserStore, jwt *JWTService, revoker Revoker, adminKey string, revokeTTL time.Duration) *AuthService {
	if revoker == nil {
		revoker = NewMemoryRevoker()
	}
	return &AuthService{
		users:     users,
		jwt:       jwt,
		revoker:   revoker,
		adminKey:  adminKey,
		revokeTTL: revokeTTL,
	}
}

// RegisterInput carries the registration form
type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	AdminKey        string
}

// LoginResult is a freshly issued session
type LoginResult struct {
	Token     string
	ExpiresAt *time.Time
	User      *models.User
}

// Register creates a user. Supplying the server admin key grants the admin role.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	if in.Name == "" {
		return nil, ValidationError("name is required")
	}
	if in.Email == "" {
		return nil, ValidationError("email is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if in.Password != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}

	role := models.RoleUser
	if in.AdminKey != "" {
		if !s.adminKeyMatches(in.AdminKey) {
			return nil, ErrInvalidAdminKey
		}
		role = models.RoleAdmin
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, internalError("an error occurred during registration", err)
	}

	hash, err := s.jwt.HashPassword(in.Password)
	if err != nil {
		return nil, internalError("an error occurred during registration", err)
	}

	user := &models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, internalError("an error occurred during registration", err)
	}

	log.Printf("✅ User registered: id=%d role=%s", user.ID, user.Role)
	return user, nil
}

// Login verifies credentials and signs a session token. When an admin key is supplied the
// account must be an admin and the key must match.
func (s *AuthService) Login(ctx context.Context, email, password, adminKey string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ValidationError("email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("an error occurred during login", err)
	}

	if !s.jwt.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrBadPassword
	}

	if adminKey != "" {
		if !user.IsAdmin() {
			return nil, ErrNotAdminAccount
		}
		if !s.adminKeyMatches(adminKey) {
			return nil, ErrInvalidAdminKey
		}
	}

	token, claims, err := s.jwt.GenerateToken(user)
	if err != nil {
		return nil, internalError("token signing failed", err)
	}

	result := &LoginResult{Token: token, User: user}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		result.ExpiresAt = &exp
	}
	return result, nil
}

// ResolveSession maps a token back to its user. Any failure yields (nil, false).
func (s *AuthService) ResolveSession(ctx context.Context, token string) (*models.User, *types.Claims, bool) {
	if token == "" {
		return nil, nil, false
	}

	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, nil, false
	}

	if claims.RegisteredClaims.ID != "" {
		revoked, err := s.revoker.IsRevoked(ctx, claims.RegisteredClaims.ID)
		if err != nil {
			log.Printf("⚠️ Revocation lookup failed: %v", err)
			return nil, nil, false
		}
		if revoked {
			return nil, nil, false
		}
	}

	user, err := s.users.FindByID(ctx, claims.ID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.Printf("⚠️ Session user lookup failed: %v", err)
		}
		return nil, nil, false
	}
	return user, claims, true
}

// Logout denylists the token until it would have expired. Invalid tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.jwt.ValidateToken(token)
	if err != nil || claims.RegisteredClaims.ID == "" {
		return nil
	}

	until := time.Now().Add(s.revokeTTL)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.revoker.Revoke(ctx, claims.RegisteredClaims.ID, until); err != nil {
		return internalError("error during logout", err)
	}
	return nil
}

// ResetPassword sets a new password for the account with this email.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword, confirmPassword string) error {
	if strings.TrimSpace(email) == "" {
		return ValidationError("email is required")
	}
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return newError(KindNotFound, "user not found")
		}
		return internalError("internal server error", err)
	}

	hash, err := s.jwt.HashPassword(newPassword)
	if err != nil {
		return internalError("internal server error", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return internalError("internal server error", err)
	}

	log.Printf("🔑 Password reset for user %d", user.ID)
	return nil
}

func (s *AuthService) adminKeyMatches(key string) bool {
	if s.adminKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.adminKey)) == 1
}
