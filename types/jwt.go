package types

import "github.com/golang-jwt/jwt/v5"

// Claims represents the session token payload
type Claims struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}
