package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/internal/statemachine"
	"github.com/sjperalta/pharmavault-api/internal/workflow"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
	"gorm.io/gorm"
)

// Next actions reported with state conflicts
const (
	NextActionApprove = "approve"
	NextActionSign    = "sign"
	NextActionRevise  = "revise"
)

// WorkflowService drives step decisions on a document's approval workflow
type WorkflowService struct {
	db       *gorm.DB
	repo     repository.DocumentRepository
	audit    *AuditService
	notifier *NotificationService
	locks    *docLocks
	now      func() time.Time
}

func NewWorkflowService(db *gorm.DB, repo repository.DocumentRepository, audit *AuditService, notifier *NotificationService, locks *docLocks) *WorkflowService {
	return &WorkflowService{
		db:       db,
		repo:     repo,
		audit:    audit,
		notifier: notifier,
		locks:    locks,
		now:      time.Now,
	}
}

// accessDenial is captured inside a transaction and recorded after rollback
type accessDenial struct {
	operation string
	extra     map[string]any
}

// Approve completes the step at stepIndex. Steps are decided strictly in
// order, by the step's assignee role or an Admin.
func (s *WorkflowService) Approve(ctx context.Context, documentID string, stepIndex int, actor models.Principal, comments string) (*models.Document, error) {
	unlock := s.locks.Lock(documentID)
	defer unlock()

	var (
		doc    *models.Document
		denial *accessDenial
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, documentID)
		if err != nil {
			return translate(err, "document")
		}

		if d.IsTerminal() {
			return stateError(ErrInvalidState, NextActionFor(d), "document is %s and accepts no further approvals", d.Status)
		}
		steps := d.Steps()
		if stepIndex < 0 || stepIndex >= len(steps) {
			return newError(ErrInvalidInput, "step_index %d is out of range (workflow has %d steps)", stepIndex, len(steps))
		}
		step := steps[stepIndex]
		if !step.IsOpen() {
			return stateError(ErrInvalidState, NextActionFor(d), "step %d (%s) is already %s", stepIndex, step.StepName, step.Status)
		}
		if next := workflow.NextPending(steps); next != stepIndex {
			return stateError(ErrOutOfOrderApproval, NextActionFor(d), "step %d must be decided before step %d", next, stepIndex)
		}
		if actor.Role != step.AssigneeRole && !actor.IsAdmin() {
			denial = &accessDenial{
				operation: "approve step " + step.StepName,
				extra:     map[string]any{"step_index": stepIndex, "assignee_role": step.AssigneeRole},
			}
			return newError(ErrUnauthorized, "role %s may not approve step %s", actor.Role, step.StepName)
		}

		from := d.Status
		s.decide(d, stepIndex, models.StepStatusCompleted, actor, comments)
		if err := statemachine.NewDocumentFSM(d).Transition(ctx, workflow.DeriveStatus(d.Steps())); err != nil {
			return stateError(ErrInvalidState, NextActionFor(d), "%s", err.Error())
		}

		if err := s.repo.WithTx(tx).Update(ctx, d); err != nil {
			return fmt.Errorf("failed to save approval: %w", err)
		}
		doc = d
		return s.audit.RecordTx(ctx, tx, actor, AuditEntry{
			Action:       models.AuditActionApprove,
			ResourceType: models.ResourceDocument,
			ResourceID:   d.ID,
			Details: map[string]any{
				"step_index":  stepIndex,
				"step_name":   step.StepName,
				"comments":    comments,
				"from_status": from,
				"to_status":   d.Status,
				"version":     d.Version,
			},
		})
	})
	if denial != nil {
		return nil, s.audit.denied(ctx, actor, models.ResourceDocument, documentID, denial.operation, denial.extra)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("workflow step approved",
		slog.String("document_id", doc.ID),
		slog.Int("step_index", stepIndex),
		slog.String("status", doc.Status),
		slog.Uint64("user_id", uint64(actor.UserID)),
	)
	s.notifier.DocumentEvent(EventStepApproved, *doc, actor, comments)
	return doc, nil
}

// Reject closes the workflow at its first open step
func (s *WorkflowService) Reject(ctx context.Context, documentID string, actor models.Principal, reason string) (*models.Document, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newError(ErrInvalidInput, "a rejection reason is required")
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	var (
		doc    *models.Document
		denial *accessDenial
		idx    int
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, documentID)
		if err != nil {
			return translate(err, "document")
		}
		if d.IsTerminal() {
			return stateError(ErrInvalidState, NextActionFor(d), "document is %s and cannot be rejected", d.Status)
		}

		idx = workflow.NextPending(d.Steps())
		if idx < 0 {
			return stateError(ErrInvalidState, NextActionFor(d), "workflow has no open step to reject")
		}
		step := d.ApprovalWorkflow[idx]
		if actor.Role != step.AssigneeRole && !actor.IsAdmin() {
			denial = &accessDenial{
				operation: "reject step " + step.StepName,
				extra:     map[string]any{"step_index": idx, "assignee_role": step.AssigneeRole},
			}
			return newError(ErrUnauthorized, "role %s may not reject step %s", actor.Role, step.StepName)
		}

		from := d.Status
		s.decide(d, idx, models.StepStatusRejected, actor, reason)
		if err := statemachine.NewDocumentFSM(d).Transition(ctx, workflow.DeriveStatus(d.Steps())); err != nil {
			return stateError(ErrInvalidState, NextActionFor(d), "%s", err.Error())
		}

		if err := s.repo.WithTx(tx).Update(ctx, d); err != nil {
			return fmt.Errorf("failed to save rejection: %w", err)
		}
		doc = d
		return s.audit.RecordTx(ctx, tx, actor, AuditEntry{
			Action:       models.AuditActionReject,
			ResourceType: models.ResourceDocument,
			ResourceID:   d.ID,
			Details: map[string]any{
				"step_index":  idx,
				"step_name":   step.StepName,
				"reason":      reason,
				"from_status": from,
				"to_status":   d.Status,
				"version":     d.Version,
			},
		})
	})
	if denial != nil {
		return nil, s.audit.denied(ctx, actor, models.ResourceDocument, documentID, denial.operation, denial.extra)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("document rejected",
		slog.String("document_id", doc.ID),
		slog.Int("step_index", idx),
		slog.Uint64("user_id", uint64(actor.UserID)),
	)
	s.notifier.DocumentEvent(EventDocumentRejected, *doc, actor, reason)
	return doc, nil
}

func (s *WorkflowService) decide(d *models.Document, idx int, status string, actor models.Principal, comments string) {
	now := s.now().UTC().Truncate(time.Microsecond)
	decidedBy := actor.UserID

	steps := append([]models.WorkflowStep(nil), d.Steps()...)
	steps[idx].Status = status
	steps[idx].DecidedByID = &decidedBy
	steps[idx].DecidedByName = actor.Name
	steps[idx].DecidedAt = &now
	steps[idx].Comments = comments
	d.ApprovalWorkflow = steps
}

// NextActionFor names what may legitimately happen to d next
func NextActionFor(d *models.Document) *NextAction {
	switch d.Status {
	case models.DocumentStatusDraft, models.DocumentStatusUnderReview:
		idx := workflow.NextPending(d.Steps())
		if idx < 0 {
			return &NextAction{Action: NextActionNone}
		}
		step := d.ApprovalWorkflow[idx]
		return &NextAction{StepIndex: &idx, StepName: step.StepName, AssigneeRole: step.AssigneeRole, Action: NextActionApprove}
	case models.DocumentStatusApproved:
		return &NextAction{Action: NextActionSign}
	case models.DocumentStatusRejected:
		return &NextAction{Action: NextActionRevise}
	default:
		return &NextAction{Action: NextActionNone}
	}
}
