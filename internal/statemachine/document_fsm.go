package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/sjperalta/pharmavault-api/internal/models"
)

// Document lifecycle events
const (
	EventReview  = "review"
	EventApprove = "approve"
	EventReject  = "reject"
	EventArchive = "archive"
	EventRevise  = "revise"
)

// DocumentFSM wraps a document with its lifecycle state machine
type DocumentFSM struct {
	document *models.Document
	fsm      *fsm.FSM
}

// NewDocumentFSM creates a new document state machine
func NewDocumentFSM(document *models.Document) *DocumentFSM {
	dfsm := &DocumentFSM{
		document: document,
	}

	dfsm.fsm = fsm.NewFSM(
		document.Status,
		fsm.Events{
			// draft → under review (first step completed)
			{Name: EventReview, Src: []string{models.DocumentStatusDraft}, Dst: models.DocumentStatusUnderReview},

			// draft/under review → approved (last step completed)
			{Name: EventApprove, Src: []string{models.DocumentStatusDraft, models.DocumentStatusUnderReview}, Dst: models.DocumentStatusApproved},

			// draft/under review → rejected
			{Name: EventReject, Src: []string{models.DocumentStatusDraft, models.DocumentStatusUnderReview}, Dst: models.DocumentStatusRejected},

			// approved/rejected → archived
			{Name: EventArchive, Src: []string{models.DocumentStatusApproved, models.DocumentStatusRejected}, Dst: models.DocumentStatusArchived},

			// rejected → draft (new version uploaded)
			{Name: EventRevise, Src: []string{models.DocumentStatusRejected}, Dst: models.DocumentStatusDraft},
		},
		fsm.Callbacks{},
	)

	return dfsm
}

// Transition moves the document to the given status, picking the event
// that reaches it. Staying in the same status is a no-op.
func (d *DocumentFSM) Transition(ctx context.Context, to string) error {
	if d.fsm.Current() == to {
		return nil
	}

	event, ok := eventFor(to)
	if !ok {
		return fmt.Errorf("no transition leads to status %s", to)
	}

	if err := d.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("document cannot move from %s to %s: %w", d.fsm.Current(), to, err)
	}

	d.document.Status = d.fsm.Current()
	return nil
}

// Archive transitions document to archived state
func (d *DocumentFSM) Archive(ctx context.Context) error {
	if !d.document.MayArchive() {
		return fmt.Errorf("document cannot be archived in current state: %s", d.document.Status)
	}
	return d.Transition(ctx, models.DocumentStatusArchived)
}

// Revise transitions a rejected document back to draft
func (d *DocumentFSM) Revise(ctx context.Context) error {
	if !d.document.MayRevise() {
		return fmt.Errorf("document cannot be revised in current state: %s", d.document.Status)
	}
	return d.Transition(ctx, models.DocumentStatusDraft)
}

// Current returns the current state
func (d *DocumentFSM) Current() string {
	return d.fsm.Current()
}

// Can checks if a transition is possible
func (d *DocumentFSM) Can(event string) bool {
	return d.fsm.Can(event)
}

func eventFor(status string) (string, bool) {
	switch status {
	case models.DocumentStatusUnderReview:
		return EventReview, true
	case models.DocumentStatusApproved:
		return EventApprove, true
	case models.DocumentStatusRejected:
		return EventReject, true
	case models.DocumentStatusArchived:
		return EventArchive, true
	case models.DocumentStatusDraft:
		return EventRevise, true
	}
	return "", false
}
