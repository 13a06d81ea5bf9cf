package workflow

import (
	"github.com/sjperalta/pharmavault-api/internal/models"
)

// DeriveStatus folds step outcomes into the document status.
// Archived is never produced here; it is set explicitly.
func DeriveStatus(steps []models.WorkflowStep) string {
	if len(steps) == 0 {
		return models.DocumentStatusDraft
	}

	allCompleted := true
	started := false
	for _, s := range steps {
		switch s.Status {
		case models.StepStatusRejected:
			return models.DocumentStatusRejected
		case models.StepStatusCompleted:
			started = true
		case models.StepStatusInProgress:
			started = true
			allCompleted = false
		default:
			allCompleted = false
		}
	}

	switch {
	case allCompleted:
		return models.DocumentStatusApproved
	case started:
		return models.DocumentStatusUnderReview
	default:
		return models.DocumentStatusDraft
	}
}

// NextPending returns the index of the lowest step still awaiting a decision, or -1
func NextPending(steps []models.WorkflowStep) int {
	for i, s := range steps {
		if s.IsOpen() {
			return i
		}
	}
	return -1
}
