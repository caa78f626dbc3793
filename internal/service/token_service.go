package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/JRCMora/jms-api/internal/models"
	appErrors "github.com/JRCMora/jms-api/pkg/errors"
)

// TokenConfig holds signing settings.
type TokenConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

// TokenService verifies HS256 bearer tokens issued by the identity
// provider and, for development and seeding, issues them.
type TokenService struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(cfg TokenConfig) *TokenService {
	if cfg.Expiration <= 0 {
		cfg.Expiration = 24 * time.Hour
	}
	return &TokenService{cfg: cfg, now: time.Now}
}

// Issue signs an access token for the user.
func (s *TokenService) Issue(user *models.User) (string, time.Time, error) {
	if user == nil || user.ID == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrValidation, "user is required")
	}
	if s.cfg.Secret == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrInternal, "token secret not configured")
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.cfg.Expiration)
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}
