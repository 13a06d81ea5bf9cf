package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"

	"github.com/sjperalta/pharmavault-api/internal/jobs"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
	"gorm.io/gorm"
)

// minPasswordLength applies to every account created through the API
const minPasswordLength = 8

// CreateUserInput holds the fields an admin provides for a new account
type CreateUserInput struct {
	Email      string
	Password   string
	FullName   string
	Role       string
	Department string
}

// UserService handles user-related business logic
type UserService struct {
	repo         repository.UserRepository
	worker       *jobs.Worker
	emailService *EmailService
	auditSvc     *AuditService
	notifier     *NotificationService
}

func NewUserService(repo repository.UserRepository, worker *jobs.Worker, emailService *EmailService, auditSvc *AuditService, notifier *NotificationService) *UserService {
	return &UserService{
		repo:         repo,
		worker:       worker,
		emailService: emailService,
		auditSvc:     auditSvc,
		notifier:     notifier,
	}
}

func (s *UserService) FindByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "user")
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, query *repository.ListQuery) ([]models.User, int64, error) {
	return s.repo.List(ctx, query)
}

// Create registers a new account. Only Admin may create users.
func (s *UserService) Create(ctx context.Context, input CreateUserInput, actor models.Principal) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, s.auditSvc.denied(ctx, actor, models.ResourceUser, "users", "create users", nil)
	}

	user, err := s.newUser(input)
	if err != nil {
		return nil, err
	}
	creator := actor.UserID
	user.CreatedBy = &creator

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, translate(err, "user")
	}

	if err := s.auditSvc.Record(ctx, actor, AuditEntry{
		Action:       models.AuditActionUserCreated,
		ResourceType: models.ResourceUser,
		ResourceID:   strconv.FormatUint(uint64(user.ID), 10),
		Details:      map[string]any{"email": user.Email, "role": user.Role, "department": user.Department},
	}); err != nil {
		return nil, err
	}

	logger.Info("user created", slog.Uint64("user_id", uint64(user.ID)), slog.String("role", user.Role), slog.Uint64("created_by", uint64(actor.UserID)))
	s.welcome(user)
	return user, nil
}

// EnsureAdmin creates the bootstrap Admin account unless the email is taken
func (s *UserService) EnsureAdmin(ctx context.Context, email, password, fullName string) (*models.User, bool, error) {
	existing, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	user, err := s.newUser(CreateUserInput{
		Email:      email,
		Password:   password,
		FullName:   fullName,
		Role:       models.RoleAdmin,
		Department: "Quality",
	})
	if err != nil {
		return nil, false, err
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, false, translate(err, "user")
	}

	s.auditSvc.recordOrLog(ctx, user.Principal(), AuditEntry{
		Action:       models.AuditActionUserCreated,
		ResourceType: models.ResourceUser,
		ResourceID:   strconv.FormatUint(uint64(user.ID), 10),
		Details:      map[string]any{"email": user.Email, "role": user.Role, "bootstrap": true},
	})
	return user, true, nil
}

func (s *UserService) newUser(input CreateUserInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, newError(ErrInvalidInput, "a valid email is required")
	}
	if strings.TrimSpace(input.FullName) == "" {
		return nil, newError(ErrInvalidInput, "full_name is required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, newError(ErrInvalidInput, "password must be at least %d characters", minPasswordLength)
	}
	role := input.Role
	if role == "" {
		role = models.RoleUser
	}
	if !models.IsValidRole(role) {
		return nil, newError(ErrInvalidInput, "unknown role %q", role)
	}

	hashedPassword, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return &models.User{
		Email:             email,
		EncryptedPassword: hashedPassword,
		FullName:          strings.TrimSpace(input.FullName),
		Role:              role,
		Department:        strings.TrimSpace(input.Department),
		Status:            models.StatusActive,
	}, nil
}

// welcome sends the account email and tells the admins, off the request path
func (s *UserService) welcome(user *models.User) {
	if s.worker == nil {
		return
	}
	u := *user
	s.worker.EnqueueAsync("welcome:"+u.Email, func(ctx context.Context) error {
		var errs []error
		if s.emailService != nil {
			errs = append(errs, s.emailService.SendAccountCreated(ctx, &u))
		}
		if s.notifier != nil {
			errs = append(errs, s.notifier.NotifyAdmins(ctx, nil,
				"New user",
				fmt.Sprintf("%s (%s) joined as %s", u.FullName, u.Email, u.Role),
				models.NotificationTypeNewUser))
		}
		return errors.Join(errs...)
	})
}
