package handlers

import (
	"github.com/sjperalta/pharmavault-api/internal/services"
)

// Handlers holds all handler instances
type Handlers struct {
	Health       *HealthHandler
	Auth         *AuthHandler
	User         *UserHandler
	Document     *DocumentHandler
	Workflow     *WorkflowHandler
	Notification *NotificationHandler
	Dashboard    *DashboardHandler
	Audit        *AuditHandler
	Job          *JobHandler
}

// NewHandlers creates all handler instances
func NewHandlers(svcs *services.Services, maxUploadBytes int64) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(),
		Auth:         NewAuthHandler(svcs.Auth, svcs.User),
		User:         NewUserHandler(svcs.User),
		Document:     NewDocumentHandler(svcs.Document, maxUploadBytes),
		Workflow:     NewWorkflowHandler(svcs.Workflow, svcs.Signature, svcs.Report),
		Notification: NewNotificationHandler(svcs.Notification),
		Dashboard:    NewDashboardHandler(svcs.Dashboard),
		Audit:        NewAuditHandler(svcs.Audit, svcs.Export, svcs.Report),
		Job:          NewJobHandler(svcs.Job),
	}
}
