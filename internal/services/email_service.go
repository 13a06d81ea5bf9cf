package services

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/resend/resend-go/v2"
	"github.com/sjperalta/pharmavault-api/internal/config"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
)

//go:embed templates/email/*.html
var emailTemplates embed.FS

type EmailService struct {
	config       *config.Config
	resendClient *resend.Client
}

func NewEmailService(cfg *config.Config) *EmailService {
	client := resend.NewClient(cfg.ResendAPIKey)
	return &EmailService{
		config:       cfg,
		resendClient: client,
	}
}

// checkEmailPreconditions returns false without error when email is switched off
func (s *EmailService) checkEmailPreconditions(user *models.User, operation string) (bool, error) {
	if !s.config.EnableEmailNotifications {
		logger.Debug("email notifications disabled", slog.String("operation", operation))
		return false, nil
	}
	if s.config.ResendAPIKey == "" {
		return false, fmt.Errorf("cannot send %s: RESEND_API_KEY is not set", operation)
	}
	if user == nil || user.Email == "" {
		return false, errors.New("email address is empty")
	}
	return true, nil
}

func (s *EmailService) SendAccountCreated(ctx context.Context, user *models.User) error {
	data := struct {
		Name   string
		Role   string
		AppURL string
	}{
		Name:   user.FullName,
		Role:   user.Role,
		AppURL: s.config.AppURL,
	}
	return s.send(ctx, user, "account created", "Welcome to PharmaVault", "account_created.html", data)
}

func (s *EmailService) SendReviewRequested(ctx context.Context, user *models.User, doc *models.Document, step models.WorkflowStep) error {
	data := struct {
		Name         string
		Title        string
		DocumentType string
		Version      int
		StepName     string
		DocumentURL  string
	}{
		Name:         user.FullName,
		Title:        doc.Title,
		DocumentType: doc.DocumentType,
		Version:      doc.Version,
		StepName:     step.StepName,
		DocumentURL:  s.documentURL(doc.ID),
	}
	subject := fmt.Sprintf("Review requested: %s", doc.Title)
	return s.send(ctx, user, "review requested", subject, "review_requested.html", data)
}

func (s *EmailService) SendDocumentDecision(ctx context.Context, user *models.User, doc *models.Document, decision, comments string) error {
	data := struct {
		Name        string
		Title       string
		Version     int
		Decision    string
		Comments    string
		DocumentURL string
	}{
		Name:        user.FullName,
		Title:       doc.Title,
		Version:     doc.Version,
		Decision:    decision,
		Comments:    comments,
		DocumentURL: s.documentURL(doc.ID),
	}
	subject := fmt.Sprintf("Document %s: %s", decision, doc.Title)
	return s.send(ctx, user, "document decision", subject, "document_decision.html", data)
}

func (s *EmailService) documentURL(id string) string {
	return fmt.Sprintf("%s/documents/%s", s.config.AppURL, id)
}

func (s *EmailService) send(ctx context.Context, user *models.User, operation, subject, templateName string, data any) error {
	ok, err := s.checkEmailPreconditions(user, operation)
	if !ok {
		return err
	}

	body, err := s.renderTemplate(templateName, data)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    s.config.FromEmail,
		To:      []string{user.Email},
		Subject: subject,
		Html:    body,
	}
	if _, err := s.resendClient.Emails.SendWithContext(ctx, params); err != nil {
		logger.Error("failed to send email", slog.String("to", user.Email), slog.String("operation", operation), slog.String("error", err.Error()))
		return err
	}

	logger.Info("email sent", slog.String("to", user.Email), slog.String("subject", subject))
	return nil
}

func (s *EmailService) renderTemplate(name string, data interface{}) (string, error) {
	tmpl, err := template.ParseFS(emailTemplates, "templates/email/"+name)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	return buf.String(), nil
}
