package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sjperalta/pharmavault-api/internal/jobs"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/internal/workflow"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
	"gorm.io/gorm"
)

// Document events that fan out notifications
const (
	EventDocumentCreated  = "created"
	EventStepApproved     = "step_approved"
	EventDocumentRejected = "rejected"
	EventDocumentSigned   = "signed"
	EventDocumentArchived = "archived"
	EventDocumentRevised  = "revised"
)

type NotificationService struct {
	repo     repository.NotificationRepository
	userRepo repository.UserRepository
	email    *EmailService
	worker   *jobs.Worker
}

// NewNotificationService wires in-app and email notifications. email and worker may be nil.
func NewNotificationService(repo repository.NotificationRepository, userRepo repository.UserRepository, email *EmailService, worker *jobs.Worker) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo, email: email, worker: worker}
}

func (s *NotificationService) FindByUser(ctx context.Context, userID uint, query *repository.ListQuery) ([]models.Notification, int64, error) {
	return s.repo.FindByUser(ctx, userID, query)
}

func (s *NotificationService) CountUnread(ctx context.Context, userID uint) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// MarkAsRead marks one of the user's own notifications as read
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id uint) error {
	notification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return translate(err, "notification")
	}
	if notification.UserID != userID {
		return newError(ErrNotFound, "notification not found")
	}
	if notification.IsRead() {
		return nil
	}
	notification.MarkAsRead()
	return s.repo.Update(ctx, notification)
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uint) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) NotifyUser(ctx context.Context, userID uint, documentID *string, title, message, notifType string) error {
	notification := &models.Notification{
		UserID:           userID,
		DocumentID:       documentID,
		Title:            title,
		Message:          message,
		NotificationType: notifType,
	}
	return s.repo.Create(ctx, notification)
}

// NotifyRole notifies every active user holding role and returns them
func (s *NotificationService) NotifyRole(ctx context.Context, role string, documentID *string, title, message, notifType string) ([]models.User, error) {
	users, err := s.userRepo.FindByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, u := range users {
		if err := s.NotifyUser(ctx, u.ID, documentID, title, message, notifType); err != nil {
			errs = append(errs, err)
		}
	}
	return users, errors.Join(errs...)
}

func (s *NotificationService) NotifyAdmins(ctx context.Context, documentID *string, title, message, notifType string) error {
	_, err := s.NotifyRole(ctx, models.RoleAdmin, documentID, title, message, notifType)
	return err
}

// DocumentEvent schedules the fan-out for a workflow event. It takes a copy of
// the document so the job never observes later mutations.
func (s *NotificationService) DocumentEvent(event string, doc models.Document, actor models.Principal, comments string) {
	if s == nil || s.worker == nil {
		return
	}
	s.worker.EnqueueAsync("notify:"+event, func(ctx context.Context) error {
		return s.notifyDocumentEvent(ctx, event, &doc, actor, comments)
	})
}

func (s *NotificationService) notifyDocumentEvent(ctx context.Context, event string, doc *models.Document, actor models.Principal, comments string) error {
	docID := doc.ID
	var errs []error

	// Whoever owns the next open step is asked to act
	if event == EventDocumentCreated || event == EventStepApproved || event == EventDocumentRevised {
		if idx := workflow.NextPending(doc.Steps()); idx >= 0 && !doc.IsTerminal() {
			step := doc.ApprovalWorkflow[idx]
			users, err := s.NotifyRole(ctx, step.AssigneeRole, &docID,
				"Review requested",
				fmt.Sprintf("%s (v%d) awaits %s", doc.Title, doc.Version, step.StepName),
				models.NotificationTypeReviewRequested)
			if err != nil {
				errs = append(errs, err)
			}
			// Nobody holds the role: the step waits for an admin override
			if err == nil && len(users) == 0 && step.AssigneeRole != models.RoleAdmin {
				errs = append(errs, s.NotifyAdmins(ctx, &docID,
					"Review escalated",
					fmt.Sprintf("No active %s for %s on %s (v%d)", step.AssigneeRole, step.StepName, doc.Title, doc.Version),
					models.NotificationTypeReviewRequested))
			}
			for i := range users {
				errs = append(errs, s.sendEmail(func() error { return s.email.SendReviewRequested(ctx, &users[i], doc, step) }))
			}
		}
	}

	var decision, notifType string
	switch {
	case event == EventStepApproved && doc.Status == models.DocumentStatusApproved:
		decision, notifType = "approved", models.NotificationTypeDocumentApproved
	case event == EventDocumentRejected:
		decision, notifType = "rejected", models.NotificationTypeDocumentRejected
	case event == EventDocumentSigned:
		decision, notifType = "signed", models.NotificationTypeDocumentSigned
	case event == EventDocumentArchived:
		decision, notifType = "archived", models.NotificationTypeDocumentArchived
	}

	if decision != "" && doc.OwnerID != actor.UserID {
		err := s.NotifyUser(ctx, doc.OwnerID, &docID,
			"Document "+decision,
			fmt.Sprintf("%s (v%d) was %s by %s", doc.Title, doc.Version, decision, actor.Name),
			notifType)
		if err != nil {
			errs = append(errs, err)
		}
		owner, err := s.userRepo.FindByID(ctx, doc.OwnerID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			errs = append(errs, err)
		default:
			errs = append(errs, s.sendEmail(func() error { return s.email.SendDocumentDecision(ctx, owner, doc, decision, comments) }))
		}
	}

	if err := errors.Join(errs...); err != nil {
		logger.Warn("document notification incomplete", slog.String("document_id", docID), slog.String("event", event), slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (s *NotificationService) sendEmail(send func() error) error {
	if s.email == nil {
		return nil
	}
	return send()
}
