package models

import "github.com/golang-jwt/jwt/v5"

// Caller roles carried in bearer tokens
const (
	RoleService = "service"
	RoleAdmin   = "admin"
)

// TokenClaims identifies the calling authenticator or operator
type TokenClaims struct {
	Type string `json:"type"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}
