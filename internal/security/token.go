package security

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type for this endpoint")
)

type TokenType string

const (
	TokenTypeAccess TokenType = "access"
)

// Roles allowed to read receivable reports.
const (
	RoleFinance = "finance"
	RoleAdmin   = "admin"
)

const (
	tokenIssuer   = "recurring-billing"
	tokenAudience = "billing-reports"
)

// StaffClaims identifies the operator reading receivable reports.
type StaffClaims struct {
	Type  TokenType `json:"type"`
	Name  string    `json:"name,omitempty"`
	Roles []string  `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (c *StaffClaims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// CanReadReports reports whether the holder may read aging reports.
func (c *StaffClaims) CanReadReports() bool {
	return c.HasRole(RoleFinance) || c.HasRole(RoleAdmin)
}

type TokenManager interface {
	GenerateAccessToken(subject, name string, roles []string, ttl time.Duration) (string, error)
	ValidateToken(tokenString string) (*StaffClaims, error)
}

type tokenManager struct {
	secret []byte
}

func NewTokenManager(secret string) TokenManager {
	return &tokenManager{
		secret: []byte(secret),
	}
}

func (m *tokenManager) GenerateAccessToken(subject, name string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := StaffClaims{
		Type:  TokenTypeAccess,
		Name:  name,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *tokenManager) ValidateToken(tokenString string) (*StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StaffClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithAudience(tokenAudience), jwt.WithIssuer(tokenIssuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*StaffClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
