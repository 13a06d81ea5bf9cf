package services

import (
	"github.com/sjperalta/pharmavault-api/internal/config"
	"github.com/sjperalta/pharmavault-api/internal/jobs"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"gorm.io/gorm"
)

// Services holds all service instances
type Services struct {
	Auth         *AuthService
	User         *UserService
	Document     *DocumentService
	Workflow     *WorkflowService
	Signature    *SignatureService
	Notification *NotificationService
	Audit        *AuditService
	Email        *EmailService
	Export       *ExportService
	Report       *ReportService
	Dashboard    *DashboardService
	Job          *JobService
}

// NewServices creates all service instances. Workflow, signature and
// document mutations share one per-document lock table.
func NewServices(repos *repository.Repositories, worker *jobs.Worker, blobs BlobStore, cfg *config.Config, db *gorm.DB) *Services {
	auditSvc := NewAuditService(repos.Audit)
	emailSvc := NewEmailService(cfg)
	notificationSvc := NewNotificationService(repos.Notification, repos.User, emailSvc, worker)
	authSvc := NewAuthService(repos.User, repos.RefreshToken, cfg, auditSvc)
	locks := newDocLocks()

	return &Services{
		Auth:         authSvc,
		User:         NewUserService(repos.User, worker, emailSvc, auditSvc, notificationSvc),
		Document:     NewDocumentService(db, repos.Document, auditSvc, blobs, NewImageService(), notificationSvc, locks, cfg.DependencyTimeout),
		Workflow:     NewWorkflowService(db, repos.Document, auditSvc, notificationSvc, locks),
		Signature:    NewSignatureService(db, repos.Document, auditSvc, authSvc, notificationSvc, locks, cfg.DependencyTimeout, cfg.SignatureAttemptsPerMinute),
		Notification: notificationSvc,
		Audit:        auditSvc,
		Email:        emailSvc,
		Export:       NewExportService(auditSvc),
		Report:       NewReportService(repos.Document, auditSvc, cfg.WkhtmltopdfPath),
		Dashboard:    NewDashboardService(repos.Document, auditSvc, notificationSvc),
		Job:          NewJobService(worker),
	}
}
