package services

import (
	"context"
	"strconv"
	"testing"

	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, "Alex Admin", models.RoleAdmin)
	qm := env.user(t, "Quinn Quality", models.RoleQualityManager)

	input := CreateUserInput{
		Email:      "  New.Reviewer@Example.com ",
		Password:   "long-enough",
		FullName:   "New Reviewer",
		Role:       models.RoleRegulatoryAffairs,
		Department: "Regulatory",
	}

	_, err := env.svc.User.Create(ctx, input, qm)
	assert.ErrorIs(t, err, ErrUnauthorized)

	user, err := env.svc.User.Create(ctx, input, admin)
	require.NoError(t, err)
	assert.Equal(t, "new.reviewer@example.com", user.Email)
	assert.Equal(t, models.RoleRegulatoryAffairs, user.Role)
	require.NotNil(t, user.CreatedBy)
	assert.Equal(t, admin.UserID, *user.CreatedBy)
	assert.True(t, VerifyPassword("long-enough", user.EncryptedPassword))

	_, err = env.svc.User.Create(ctx, input, admin)
	assert.ErrorIs(t, err, ErrInvalidInput)

	logs, _, err := env.svc.Audit.Query(ctx, admin, AuditFilter{
		ResourceID: strconv.FormatUint(uint64(user.ID), 10),
		Action:     models.AuditActionUserCreated,
	})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestUserService_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, "Alex Admin", models.RoleAdmin)

	tests := map[string]CreateUserInput{
		"bad email":      {Email: "not-an-email", Password: "long-enough", FullName: "X"},
		"short password": {Email: "x@example.com", Password: "short", FullName: "X"},
		"no name":        {Email: "x@example.com", Password: "long-enough"},
		"unknown role":   {Email: "x@example.com", Password: "long-enough", FullName: "X", Role: "Auditor"},
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.User.Create(context.Background(), input, admin)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestUserService_EnsureAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, created, err := env.svc.User.EnsureAdmin(ctx, "root@example.com", "bootstrap-pass", "Root Admin")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RoleAdmin, first.Role)

	again, created, err := env.svc.User.EnsureAdmin(ctx, "root@example.com", "bootstrap-pass", "Root Admin")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
}

func TestNotificationService_DocumentEventFanOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "Olivia Owner", models.RoleClinicalResearch)
	qm := env.user(t, "Quinn Quality", models.RoleQualityManager)
	admin := env.user(t, "Alex Admin", models.RoleAdmin)

	doc := env.createDocument(t, owner, models.DocumentTypeCTD, "Module 1")
	require.NoError(t, env.svc.Notification.notifyDocumentEvent(ctx, EventDocumentCreated, doc, owner, ""))

	n, err := env.svc.Notification.CountUnread(ctx, qm.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rejected, err := env.svc.Workflow.Reject(ctx, doc.ID, admin, "incomplete")
	require.NoError(t, err)
	require.NoError(t, env.svc.Notification.notifyDocumentEvent(ctx, EventDocumentRejected, rejected, admin, "incomplete"))

	n, err = env.svc.Notification.CountUnread(ctx, owner.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, env.svc.Notification.MarkAllAsRead(ctx, owner.UserID))
	n, err = env.svc.Notification.CountUnread(ctx, owner.UserID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNotificationService_EscalatesUnstaffedStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "Olivia Owner", models.RoleClinicalResearch)
	qm := env.user(t, "Quinn Quality", models.RoleQualityManager)
	admin := env.user(t, "Alex Admin", models.RoleAdmin)

	// nobody holds RegulatoryAffairs, the second CTD step
	doc := env.createDocument(t, owner, models.DocumentTypeCTD, "Module 1")
	approved, err := env.svc.Workflow.Approve(ctx, doc.ID, 0, qm, "ok")
	require.NoError(t, err)
	require.NoError(t, env.svc.Notification.notifyDocumentEvent(ctx, EventStepApproved, approved, qm, ""))

	n, err := env.svc.Notification.CountUnread(ctx, admin.UserID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
