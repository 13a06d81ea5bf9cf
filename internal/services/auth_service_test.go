package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sjperalta/pharmavault-api/internal/config"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type mockUserRepo struct {
	repository.UserRepository
	mockFindByEmail func(ctx context.Context, email string) (*models.User, error)
	mockFindByID    func(ctx context.Context, id uint) (*models.User, error)
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.mockFindByEmail(ctx, email)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id uint) (*models.User, error) {
	return m.mockFindByID(ctx, id)
}

type mockRTRepo struct {
	repository.RefreshTokenRepository
	mockFindByToken func(ctx context.Context, token string) (*models.RefreshToken, error)
	mockDelete      func(ctx context.Context, token string) error
	created         []*models.RefreshToken
}

func (m *mockRTRepo) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	return m.mockFindByToken(ctx, token)
}

func (m *mockRTRepo) Delete(ctx context.Context, token string) error {
	if m.mockDelete != nil {
		return m.mockDelete(ctx, token)
	}
	return nil
}

func (m *mockRTRepo) Create(ctx context.Context, rt *models.RefreshToken) error {
	m.created = append(m.created, rt)
	return nil
}

func testAuthConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret", JWTExpirationHours: 1}
}

func TestAuthService_Login_InactiveUser(t *testing.T) {
	mockRepo := &mockUserRepo{}
	service := NewAuthService(mockRepo, nil, testAuthConfig(), nil)

	mockRepo.mockFindByEmail = func(ctx context.Context, email string) (*models.User, error) {
		return &models.User{
			Email:  email,
			Status: models.StatusInactive,
		}, nil
	}

	result, err := service.Login(context.Background(), "inactive@example.com", "password", models.Principal{})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrInactiveAccount)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	hash, err := HashPassword("right-password")
	require.NoError(t, err)

	mockRepo := &mockUserRepo{
		mockFindByEmail: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: 3, Email: email, EncryptedPassword: hash, Status: models.StatusActive}, nil
		},
	}
	service := NewAuthService(mockRepo, &mockRTRepo{}, testAuthConfig(), nil)

	result, err := service.Login(context.Background(), "qa@example.com", "wrong-password", models.Principal{})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	mockRepo := &mockUserRepo{
		mockFindByEmail: func(ctx context.Context, email string) (*models.User, error) {
			return nil, gorm.ErrRecordNotFound
		},
	}
	service := NewAuthService(mockRepo, nil, testAuthConfig(), nil)

	_, err := service.Login(context.Background(), "ghost@example.com", "password", models.Principal{})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = service.Login(context.Background(), "", "", models.Principal{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuthService_Login_IssuesClaims(t *testing.T) {
	hash, err := HashPassword("right-password")
	require.NoError(t, err)

	mockRepo := &mockUserRepo{
		mockFindByEmail: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: 9, Email: email, FullName: "Quinn Quality", Role: models.RoleQualityManager, EncryptedPassword: hash, Status: models.StatusActive}, nil
		},
	}
	rtRepo := &mockRTRepo{}
	cfg := testAuthConfig()
	service := NewAuthService(mockRepo, rtRepo, cfg, nil)

	result, err := service.Login(context.Background(), "qm@example.com", "right-password", models.Principal{})
	require.NoError(t, err)
	assert.Equal(t, "bearer", result.TokenType)
	assert.NotEmpty(t, result.RefreshToken)
	require.Len(t, rtRepo.created, 1)
	assert.Equal(t, uint(9), rtRepo.created[0].UserID)
	assert.True(t, rtRepo.created[0].ExpiresAt.After(time.Now()))

	token, err := jwt.Parse(result.Token, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, models.RoleQualityManager, claims["role"])
	assert.Equal(t, "Quinn Quality", claims["name"])
	assert.EqualValues(t, 9, claims["user_id"])
}

func TestAuthService_RefreshToken_InactiveUser(t *testing.T) {
	mockRepo := &mockUserRepo{}
	rtRepo := &mockRTRepo{}
	service := NewAuthService(mockRepo, rtRepo, testAuthConfig(), nil)

	rtRepo.mockFindByToken = func(ctx context.Context, token string) (*models.RefreshToken, error) {
		return &models.RefreshToken{UserID: 1}, nil
	}
	mockRepo.mockFindByID = func(ctx context.Context, id uint) (*models.User, error) {
		return &models.User{
			ID:     id,
			Status: models.StatusInactive,
		}, nil
	}

	result, err := service.RefreshToken(context.Background(), "token")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrInactiveAccount)
}

func TestAuthService_RefreshToken_Expired(t *testing.T) {
	deleted := ""
	expired := time.Now().Add(-time.Minute)
	rtRepo := &mockRTRepo{
		mockFindByToken: func(ctx context.Context, token string) (*models.RefreshToken, error) {
			return &models.RefreshToken{UserID: 1, Token: token, ExpiresAt: &expired}, nil
		},
		mockDelete: func(ctx context.Context, token string) error {
			deleted = token
			return nil
		},
	}
	service := NewAuthService(&mockUserRepo{}, rtRepo, testAuthConfig(), nil)

	_, err := service.RefreshToken(context.Background(), "stale")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Equal(t, "stale", deleted)
}

func TestAuthService_VerifyCredential(t *testing.T) {
	hash, err := HashPassword("right-password")
	require.NoError(t, err)
	status := models.StatusActive

	mockRepo := &mockUserRepo{
		mockFindByID: func(ctx context.Context, id uint) (*models.User, error) {
			if id != 4 {
				return nil, gorm.ErrRecordNotFound
			}
			return &models.User{ID: id, EncryptedPassword: hash, Status: status}, nil
		},
	}
	service := NewAuthService(mockRepo, nil, testAuthConfig(), nil)
	ctx := context.Background()

	assert.NoError(t, service.VerifyCredential(ctx, 4, "right-password"))
	assert.ErrorIs(t, service.VerifyCredential(ctx, 4, "nope"), ErrAuthenticationFailed)
	assert.ErrorIs(t, service.VerifyCredential(ctx, 5, "right-password"), ErrAuthenticationFailed)

	status = models.StatusInactive
	assert.ErrorIs(t, service.VerifyCredential(ctx, 4, "right-password"), ErrAuthenticationFailed)
}

func TestAuthService_LoginIsAudited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	qm := env.user(t, "Quinn Quality", models.RoleQualityManager)
	client := models.Principal{IPAddress: "192.0.2.7", UserAgent: "curl"}

	_, err := env.svc.Auth.Login(ctx, qm.Email, "bad", client)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = env.svc.Auth.Login(ctx, qm.Email, testPassword, client)
	require.NoError(t, err)

	logs, _, err := env.svc.Audit.Query(ctx, qm, AuditFilter{UserID: qm.UserID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.AuditActionLogin, logs[0].Action)
	assert.Equal(t, models.AuditActionAuthenticationFailed, logs[1].Action)
	assert.Equal(t, "192.0.2.7", logs[1].IPAddress)
}
