package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
	"gorm.io/gorm"
)

// AuditEntry is what a caller wants recorded; actor and timestamp are filled in
type AuditEntry struct {
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
}

// AuditFilter narrows an audit trail query
type AuditFilter struct {
	ResourceID string
	Action     string
	UserID     uint
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}

// maxExportRows caps a single export or report
const maxExportRows = 50000

type AuditService struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewAuditService(repo repository.AuditRepository) *AuditService {
	return &AuditService{repo: repo, now: time.Now}
}

func (s *AuditService) build(actor models.Principal, entry AuditEntry) *models.AuditLog {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	return &models.AuditLog{
		Timestamp:    s.now().UTC().Truncate(time.Microsecond),
		UserID:       actor.UserID,
		UserName:     actor.Name,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      details,
		IPAddress:    actor.IPAddress,
		UserAgent:    actor.UserAgent,
	}
}

// RecordTx appends an entry inside the caller's transaction. An error here
// must abort the business operation it belongs to.
func (s *AuditService) RecordTx(ctx context.Context, tx *gorm.DB, actor models.Principal, entry AuditEntry) error {
	if err := s.repo.WithTx(tx).Create(ctx, s.build(actor, entry)); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Record appends a standalone entry (security events, reads)
func (s *AuditService) Record(ctx context.Context, actor models.Principal, entry AuditEntry) error {
	if err := s.repo.Create(ctx, s.build(actor, entry)); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// recordOrLog is used where the caller's own error must win; a failed write is logged, never dropped
func (s *AuditService) recordOrLog(ctx context.Context, actor models.Principal, entry AuditEntry) {
	if err := s.Record(ctx, actor, entry); err != nil {
		logger.Error("audit write failed",
			slog.String("action", entry.Action),
			slog.String("resource_id", entry.ResourceID),
			slog.Uint64("user_id", uint64(actor.UserID)),
			slog.String("error", err.Error()),
		)
	}
}

// denied records an AccessDenied security event and returns the Unauthorized error
func (s *AuditService) denied(ctx context.Context, actor models.Principal, resourceType, resourceID, operation string, extra map[string]any) error {
	details := map[string]any{"operation": operation, "role": actor.Role}
	for k, v := range extra {
		details[k] = v
	}
	s.recordOrLog(ctx, actor, AuditEntry{
		Action:       models.AuditActionAccessDenied,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	})
	return newError(ErrUnauthorized, "role %s may not %s", actor.Role, operation)
}

// CanReadAudit reports whether the principal may read the audit trail
func CanReadAudit(actor models.Principal) bool {
	return actor.HasRole(models.RoleAdmin, models.RoleQualityManager)
}

// Query returns entries newest first. Only Admin and QualityManager may read the trail.
func (s *AuditService) Query(ctx context.Context, actor models.Principal, filter AuditFilter) ([]models.AuditLog, int64, error) {
	if !CanReadAudit(actor) {
		return nil, 0, s.denied(ctx, actor, "AuditLog", "audit_logs", "query the audit trail", nil)
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, 0, newError(ErrInvalidInput, "from must not be after to")
	}

	query := toAuditQuery(filter)
	logs, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit trail: %w", err)
	}
	return logs, total, nil
}

// All returns every entry matching filter, capped for exports
func (s *AuditService) All(ctx context.Context, actor models.Principal, filter AuditFilter) ([]models.AuditLog, error) {
	if !CanReadAudit(actor) {
		return nil, s.denied(ctx, actor, "AuditLog", "audit_logs", "export the audit trail", nil)
	}
	logs, err := s.repo.FindAll(ctx, toAuditQuery(filter), maxExportRows)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	return logs, nil
}

// ForDocument returns the trail of one document without role checks; used for manifests
func (s *AuditService) ForDocument(ctx context.Context, documentID string) ([]models.AuditLog, error) {
	return s.repo.FindAll(ctx, &repository.AuditQuery{ListQuery: repository.NewListQuery(), ResourceID: documentID}, maxExportRows)
}

// CountSince counts entries of an action newer than since
func (s *AuditService) CountSince(ctx context.Context, action string, since time.Time) (int64, error) {
	return s.repo.CountSince(ctx, action, since)
}

func toAuditQuery(filter AuditFilter) *repository.AuditQuery {
	lq := repository.NewListQuery()
	if filter.Page > 0 {
		lq.Page = filter.Page
	}
	if filter.PerPage > 0 {
		lq.PerPage = filter.PerPage
	}
	if lq.PerPage > 200 {
		lq.PerPage = 200
	}
	return &repository.AuditQuery{
		ListQuery:  lq,
		ResourceID: filter.ResourceID,
		Action:     filter.Action,
		UserID:     filter.UserID,
		From:       filter.From,
		To:         filter.To,
	}
}
