package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sjperalta/pharmavault-api/internal/config"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// refreshTokenTTL is how long a refresh token stays valid
const refreshTokenTTL = 30 * 24 * time.Hour

// CredentialVerifier re-checks a user's password, as the identity provider does for signatures
type CredentialVerifier interface {
	VerifyCredential(ctx context.Context, userID uint, password string) error
}

// AuthService handles authentication operations
type AuthService struct {
	userRepo         repository.UserRepository
	refreshTokenRepo repository.RefreshTokenRepository
	cfg              *config.Config
	audit            *AuditService
}

// NewAuthService creates a new auth service. audit may be nil.
func NewAuthService(userRepo repository.UserRepository, rtRepo repository.RefreshTokenRepository, cfg *config.Config, audit *AuditService) *AuthService {
	return &AuthService{
		userRepo:         userRepo,
		refreshTokenRepo: rtRepo,
		cfg:              cfg,
		audit:            audit,
	}
}

// LoginResult represents the result of a login attempt
type LoginResult struct {
	Token        string              `json:"access_token"`
	TokenType    string              `json:"token_type"`
	RefreshToken string              `json:"refresh_token"`
	User         models.UserResponse `json:"user"`
}

// Login authenticates a user and returns tokens. client carries the request's
// IP address and user agent for the audit trail.
func (s *AuthService) Login(ctx context.Context, email, password string, client models.Principal) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, newError(ErrInvalidInput, "email and password are required")
	}

	// Find user by email
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		s.recordFailure(ctx, client, email, "unknown email")
		return nil, newError(ErrAuthenticationFailed, "invalid credentials")
	}

	// Check if user is active
	if !user.IsActive() {
		s.recordFailure(ctx, withIdentity(client, user), email, "inactive account")
		return nil, ErrInactiveAccount
	}

	// Verify password
	if !VerifyPassword(password, user.EncryptedPassword) {
		s.recordFailure(ctx, withIdentity(client, user), email, "wrong password")
		return nil, newError(ErrAuthenticationFailed, "invalid credentials")
	}

	result, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.recordOrLog(ctx, withIdentity(client, user), AuditEntry{
			Action:       models.AuditActionLogin,
			ResourceType: models.ResourceUser,
			ResourceID:   strconv.FormatUint(uint64(user.ID), 10),
		})
	}
	logger.Info("user logged in", slog.Uint64("user_id", uint64(user.ID)), slog.String("role", user.Role))

	return result, nil
}

// RefreshToken validates a refresh token and returns new tokens
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*LoginResult, error) {
	// Find refresh token
	rt, err := s.refreshTokenRepo.FindByToken(ctx, refreshToken)
	if err != nil {
		return nil, newError(ErrAuthenticationFailed, "invalid refresh token")
	}

	// Check if expired
	if rt.IsExpired() {
		if err := s.refreshTokenRepo.Delete(ctx, refreshToken); err != nil {
			logger.Warn("failed to delete expired refresh token", slog.String("error", err.Error()))
		}
		return nil, newError(ErrAuthenticationFailed, "refresh token expired")
	}

	// Find user
	user, err := s.userRepo.FindByID(ctx, rt.UserID)
	if err != nil {
		return nil, newError(ErrAuthenticationFailed, "user not found")
	}

	// Check if user is active
	if !user.IsActive() {
		return nil, ErrInactiveAccount
	}

	// Rotate: the old token is single use
	if err := s.refreshTokenRepo.Delete(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return s.issue(ctx, user)
}

// Logout invalidates a refresh token
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.refreshTokenRepo.Delete(ctx, refreshToken)
}

// VerifyCredential re-checks a password for an already authenticated user
func (s *AuthService) VerifyCredential(ctx context.Context, userID uint, password string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newError(ErrAuthenticationFailed, "credential re-verification failed")
		}
		return err
	}
	if !user.IsActive() || !VerifyPassword(password, user.EncryptedPassword) {
		return newError(ErrAuthenticationFailed, "credential re-verification failed")
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*LoginResult, error) {
	token, err := s.generateJWT(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	refreshToken, err := s.generateRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &LoginResult{
		Token:        token,
		TokenType:    "bearer",
		RefreshToken: refreshToken,
		User:         user.ToResponse(),
	}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, client models.Principal, email, reason string) {
	logger.Warn("login failed", slog.String("email", email), slog.String("reason", reason), slog.String("ip", client.IPAddress))
	if s.audit == nil {
		return
	}
	s.audit.recordOrLog(ctx, client, AuditEntry{
		Action:       models.AuditActionAuthenticationFailed,
		ResourceType: models.ResourceUser,
		ResourceID:   email,
		Details:      map[string]any{"operation": "login", "reason": reason},
	})
}

func withIdentity(client models.Principal, user *models.User) models.Principal {
	p := user.Principal()
	p.IPAddress = client.IPAddress
	p.UserAgent = client.UserAgent
	return p
}

// generateJWT creates a new JWT token for a user
func (s *AuthService) generateJWT(user *models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"role":    user.Role,
		"name":    user.FullName,
		"exp":     now.Add(time.Duration(s.cfg.JWTExpirationHours) * time.Hour).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// generateRefreshToken creates a new refresh token
func (s *AuthService) generateRefreshToken(ctx context.Context, userID uint) (string, error) {
	// Generate random token
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	expiresAt := time.Now().Add(refreshTokenTTL)

	rt := &models.RefreshToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: &expiresAt,
	}

	if err := s.refreshTokenRepo.Create(ctx, rt); err != nil {
		return "", err
	}

	return token, nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// VerifyPassword compares a password with a hash
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
