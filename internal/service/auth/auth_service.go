package auth

import (
	"context"
	"fmt"
	"strings"

	"invoice-api/internal/domain"
	"invoice-api/internal/service"
	"invoice-api/pkg/errors"
	"invoice-api/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
)

// Service implements the AuthService interface with HMAC-signed JWTs
type Service struct {
	secret []byte
	logger *logger.Logger
}

// NewService creates a new auth service
func NewService(secret string, logger *logger.Logger) service.AuthService {
	return &Service{
		secret: []byte(secret),
		logger: logger,
	}
}

// ValidateToken validates a JWT and returns its claims
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*domain.AuthClaims, error) {
	if len(s.secret) == 0 {
		s.logger.Error("JWT_SECRET not configured")
		return nil, errors.NewAuthenticationError("JWT validation not configured")
	}

	if !isJWTToken(tokenString) {
		return nil, errors.NewAuthenticationError("Unrecognized token format")
	}

	// Expiry is checked by the parser when the claim is present
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil || !token.Valid {
		s.logger.WithError(err).Debug("Failed to parse/validate JWT token")
		return nil, errors.NewAuthenticationError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.NewAuthenticationError("Invalid JWT token")
	}

	authClaims := &domain.AuthClaims{
		Sub:   getStringValue(claims, "sub"),
		Email: getStringValue(claims, "email"),
		Name:  getStringValue(claims, "name"),
	}
	if authClaims.Sub == "" {
		return nil, errors.NewAuthenticationError("Invalid JWT token: no user identifier")
	}

	return authClaims, nil
}

func isJWTToken(token string) bool {
	// JWT tokens have exactly 3 non-empty segments separated by dots
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

func getStringValue(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}
