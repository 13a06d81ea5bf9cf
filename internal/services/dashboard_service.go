package services

import (
	"context"
	"time"

	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/internal/workflow"
	"golang.org/x/sync/errgroup"
)

// Dashboard summarises the workspace for one user
type Dashboard struct {
	DocumentsByStatus   map[string]int64 `json:"documents_by_status"`
	TotalDocuments      int64            `json:"total_documents"`
	MyDocuments         int64            `json:"my_documents"`
	AwaitingMyAction    int              `json:"awaiting_my_action"`
	UnreadNotifications int64            `json:"unread_notifications"`
	SignaturesLast24h   int64            `json:"signatures_last_24h"`
	GeneratedAt         time.Time        `json:"generated_at"`
	// Only filled for roles that may read the audit trail
	FailedLoginsLast24h *int64 `json:"failed_logins_last_24h,omitempty"`
	AccessDeniedLast24h *int64 `json:"access_denied_last_24h,omitempty"`
}

type DashboardService struct {
	docRepo  repository.DocumentRepository
	audit    *AuditService
	notifier *NotificationService
	now      func() time.Time
}

func NewDashboardService(docRepo repository.DocumentRepository, audit *AuditService, notifier *NotificationService) *DashboardService {
	return &DashboardService{docRepo: docRepo, audit: audit, notifier: notifier, now: time.Now}
}

// Get runs the independent counts concurrently
func (s *DashboardService) Get(ctx context.Context, actor models.Principal) (*Dashboard, error) {
	now := s.now().UTC()
	since := now.Add(-24 * time.Hour)
	d := &Dashboard{GeneratedAt: now}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		counts, err := s.docRepo.CountByStatus(ctx)
		if err != nil {
			return err
		}
		d.DocumentsByStatus = counts
		for _, c := range counts {
			d.TotalDocuments += c
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.docRepo.CountByOwner(ctx, actor.UserID)
		d.MyDocuments = n
		return err
	})
	g.Go(func() error {
		open, err := s.docRepo.FindByStatuses(ctx, models.DocumentStatusDraft, models.DocumentStatusUnderReview)
		if err != nil {
			return err
		}
		for i := range open {
			idx := workflow.NextPending(open[i].Steps())
			if idx >= 0 && (actor.IsAdmin() || open[i].ApprovalWorkflow[idx].AssigneeRole == actor.Role) {
				d.AwaitingMyAction++
			}
		}
		return nil
	})
	g.Go(func() error {
		n, err := s.notifier.CountUnread(ctx, actor.UserID)
		d.UnreadNotifications = n
		return err
	})
	g.Go(func() error {
		n, err := s.audit.CountSince(ctx, models.AuditActionSign, since)
		d.SignaturesLast24h = n
		return err
	})

	if CanReadAudit(actor) {
		var failed, denied int64
		d.FailedLoginsLast24h, d.AccessDeniedLast24h = &failed, &denied
		g.Go(func() error {
			n, err := s.audit.CountSince(ctx, models.AuditActionAuthenticationFailed, since)
			failed = n
			return err
		})
		g.Go(func() error {
			n, err := s.audit.CountSince(ctx, models.AuditActionAccessDenied, since)
			denied = n
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if d.DocumentsByStatus == nil {
		d.DocumentsByStatus = map[string]int64{}
	}
	return d, nil
}
