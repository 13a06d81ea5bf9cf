package services

import (
	"context"
	"testing"
	"time"

	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestSignatureHash_Deterministic(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.FixedZone("CET", 3600))

	h1 := SignatureHash("doc-1", 7, "final release", at, 2)
	h2 := SignatureHash("doc-1", 7, "final release", at.UTC(), 2)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)

	assert.NotEqual(t, h1, SignatureHash("doc-1", 7, "final release", at, 3))
	assert.NotEqual(t, h1, SignatureHash("doc-1", 8, "final release", at, 2))
	assert.NotEqual(t, h1, SignatureHash("doc-1", 7, "review", at, 2))
}

func TestSign_OnlyApprovedDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.user(t, "Alex Admin", models.RoleAdmin)
	signer := env.user(t, "Sam Signer", models.RoleQualityManager)

	draft := env.createDocument(t, admin, models.DocumentTypeCTD, "Module 1")

	underReview := env.createDocument(t, admin, models.DocumentTypeCTD, "Module 2")
	_, err := env.svc.Workflow.Approve(ctx, underReview.ID, 0, admin, "")
	require.NoError(t, err)

	rejected := env.createDocument(t, admin, models.DocumentTypeCTD, "Module 3")
	_, err = env.svc.Workflow.Reject(ctx, rejected.ID, admin, "incomplete")
	require.NoError(t, err)

	archived := env.createDocument(t, admin, models.DocumentTypeSOP, "General")
	env.approveAll(t, archived.ID, admin)
	_, err = env.svc.Document.Archive(ctx, archived.ID, admin)
	require.NoError(t, err)

	for name, id := range map[string]string{
		"draft":        draft.ID,
		"under review": underReview.ID,
		"rejected":     rejected.ID,
		"archived":     archived.ID,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := env.svc.Signature.Sign(ctx, id, signer, "release", testPassword)
			assert.ErrorIs(t, err, ErrInvalidState)

			stored, err := env.svc.Document.Get(ctx, id)
			require.NoError(t, err)
			assert.Empty(t, stored.Signatures)
		})
	}
}

func TestSign_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.user(t, "Alex Admin", models.RoleAdmin)
	doc := env.createDocument(t, admin, models.DocumentTypeSOP, "Quality Control")
	env.approveAll(t, doc.ID, admin)

	_, _, err := env.svc.Signature.Sign(ctx, doc.ID, admin, "final release", "not-my-password")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	stored, err := env.svc.Document.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Signatures)

	actions := env.auditActions(t, doc.ID)
	assert.Equal(t, 1, countAction(actions, models.AuditActionAuthenticationFailed))
	assert.Zero(t, countAction(actions, models.AuditActionSign))
}

func TestSign_InputValidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, "Alex Admin", models.RoleAdmin)

	_, _, err := env.svc.Signature.Sign(context.Background(), "missing", admin, "", testPassword)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = env.svc.Signature.Sign(context.Background(), "missing", admin, "release", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = env.svc.Signature.Sign(context.Background(), "missing", admin, "release", testPassword)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSign_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.user(t, "Alex Admin", models.RoleAdmin)
	doc := env.createDocument(t, admin, models.DocumentTypeSOP, "General")
	env.approveAll(t, doc.ID, admin)

	for i := 0; i < 5; i++ {
		_, _, err := env.svc.Signature.Sign(ctx, doc.ID, admin, "release", "wrong")
		require.ErrorIs(t, err, ErrAuthenticationFailed)
	}
	_, _, err := env.svc.Signature.Sign(ctx, doc.ID, admin, "release", testPassword)
	assert.ErrorIs(t, err, ErrRateLimited)

	actions := env.auditActions(t, doc.ID)
	assert.Equal(t, 5, countAction(actions, models.AuditActionAuthenticationFailed))
	assert.Equal(t, 1, countAction(actions, models.AuditActionRateLimited))
	assert.Zero(t, countAction(actions, models.AuditActionSign))
}

func TestSign_MultipleSignersAndVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.user(t, "Alex Admin", models.RoleAdmin)
	qm := env.user(t, "Quinn Quality", models.RoleQualityManager)
	doc := env.createDocument(t, admin, models.DocumentTypeSOP, "General")
	env.approveAll(t, doc.ID, admin)

	_, _, err := env.svc.Signature.Sign(ctx, doc.ID, admin, "author", testPassword)
	require.NoError(t, err)
	signed, _, err := env.svc.Signature.Sign(ctx, doc.ID, qm, "approver", testPassword)
	require.NoError(t, err)
	require.Len(t, signed.Signatures, 2)
	assert.Equal(t, 1, signed.Version)

	report, err := env.svc.Signature.Verify(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Checked)

	// Simulate an out-of-band edit of a stored signature
	sigs := append([]models.Signature(nil), signed.Signatures...)
	sigs[1].Reason = "edited"
	require.NoError(t, env.db.Model(&models.Document{}).
		Where("id = ?", doc.ID).
		UpdateColumn("signatures", datatypes.NewJSONSlice(sigs)).Error)

	report, err = env.svc.Signature.Verify(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, 1, report.Invalid)
	assert.False(t, report.Signatures[1].Valid)

	require.NoError(t, env.svc.Signature.SweepSignatures(ctx))
}

func TestSign_TimestampSurvivesStorage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	admin := env.user(t, "Alex Admin", models.RoleAdmin)
	doc := env.createDocument(t, admin, models.DocumentTypeSOP, "General")
	env.approveAll(t, doc.ID, admin)

	_, sig, err := env.svc.Signature.Sign(ctx, doc.ID, admin, "release", testPassword)
	require.NoError(t, err)

	stored, err := env.svc.Document.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, stored.Signatures, 1)
	assert.True(t, sig.SignedAt.Equal(stored.Signatures[0].SignedAt))
	assert.Equal(t, sig.SignatureHash, SignatureHash(stored.ID, admin.UserID, "release", stored.Signatures[0].SignedAt, 1))
}
