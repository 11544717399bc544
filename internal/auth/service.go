package auth

import (
	"errors"
	"strings"
)

// ErrInvalidToken is returned when a presented token cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Service verifies identities issued by the upstream auth collaborator.
// Token issuance and user accounts live outside this service.
type Service struct {
	jwtConfig *JWTConfig
}

// NewService creates a token verification service.
func NewService(jwtConfig *JWTConfig) *Service {
	return &Service{jwtConfig: jwtConfig}
}

// VerifyToken validates a bearer token and returns its identity claims.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	claims, err := ValidateToken(s.jwtConfig, tokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
