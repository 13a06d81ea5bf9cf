package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestAuditQuery_RestrictedRoles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, role := range []string{models.RoleUser, models.RoleManufacturing, models.RoleRegulatoryAffairs, models.RoleClinicalResearch} {
		p := env.user(t, "Reader "+role, role)
		_, _, err := env.svc.Audit.Query(ctx, p, AuditFilter{})
		assert.ErrorIs(t, err, ErrUnauthorized, role)
	}

	for _, role := range []string{models.RoleAdmin, models.RoleQualityManager} {
		p := env.user(t, "Auditor "+role, role)
		_, _, err := env.svc.Audit.Query(ctx, p, AuditFilter{})
		assert.NoError(t, err, role)
	}

	denied, err := env.svc.Audit.CountSince(ctx, models.AuditActionAccessDenied, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 4, denied)
}

func TestAuditQuery_NewestFirstAndFiltered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, "Alex Admin", models.RoleAdmin)

	doc := env.createDocument(t, admin, models.DocumentTypeSOP, "General")
	env.approveAll(t, doc.ID, admin)

	logs, total, err := env.svc.Audit.Query(ctx, admin, AuditFilter{ResourceID: doc.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, logs, 3)
	assert.Equal(t, models.AuditActionCreate, logs[2].Action)
	for i := 1; i < len(logs); i++ {
		assert.False(t, logs[i].Timestamp.After(logs[i-1].Timestamp))
	}
	assert.Equal(t, "10.0.0.1", logs[0].IPAddress)
	assert.Equal(t, "go-test", logs[0].UserAgent)

	logs, _, err = env.svc.Audit.Query(ctx, admin, AuditFilter{ResourceID: doc.ID, Action: models.AuditActionApprove})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
	// JSON details decode numbers as json.Number
	assert.Equal(t, json.Number("1"), logs[0].Details["step_index"])
	assert.Equal(t, json.Number("0"), logs[1].Details["step_index"])

	from := time.Now()
	to := from.Add(-time.Hour)
	_, _, err = env.svc.Audit.Query(ctx, admin, AuditFilter{From: &from, To: &to})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAuditLog_RowsAreWriteOnce(t *testing.T) {
	env := newTestEnv(t)
	admin := env.user(t, "Alex Admin", models.RoleAdmin)
	doc := env.createDocument(t, admin, models.DocumentTypeSOP, "General")

	var entry models.AuditLog
	require.NoError(t, env.db.Where("resource_id = ?", doc.ID).First(&entry).Error)

	entry.Action = models.AuditActionView
	assert.ErrorIs(t, env.db.Save(&entry).Error, models.ErrAuditImmutable)
	assert.ErrorIs(t, env.db.Delete(&entry).Error, models.ErrAuditImmutable)

	var reloaded models.AuditLog
	require.NoError(t, env.db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, models.AuditActionCreate, reloaded.Action)
}

func TestExportAudit_CSVAndXLSX(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, "Alex Admin", models.RoleAdmin)
	doc := env.createDocument(t, admin, models.DocumentTypeSOP, "General")

	data, name, err := env.svc.Export.ExportAudit(ctx, admin, AuditFilter{ResourceID: doc.ID}, ExportFormatCSV)
	require.NoError(t, err)
	assert.Contains(t, name, ".csv")

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, auditExportHeader, records[0])
	assert.Equal(t, models.AuditActionCreate, records[1][4])
	assert.Equal(t, "medium", records[1][5])
	assert.Equal(t, doc.ID, records[1][7])

	data, name, err = env.svc.Export.ExportAudit(ctx, admin, AuditFilter{ResourceID: doc.ID}, ExportFormatXLSX)
	require.NoError(t, err)
	assert.Contains(t, name, ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Audit Trail")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Action", rows[0][4])
	assert.Equal(t, models.AuditActionCreate, rows[1][4])

	_, _, err = env.svc.Export.ExportAudit(ctx, admin, AuditFilter{}, "pdf")
	assert.ErrorIs(t, err, ErrInvalidInput)

	user := env.user(t, "Uma User", models.RoleUser)
	_, _, err = env.svc.Export.ExportAudit(ctx, user, AuditFilter{}, ExportFormatCSV)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSignatureManifestPDF(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.user(t, "Alex Admin", models.RoleAdmin)
	doc := env.createDocument(t, admin, models.DocumentTypeSOP, "General")
	env.approveAll(t, doc.ID, admin)
	_, _, err := env.svc.Signature.Sign(ctx, doc.ID, admin, "release", testPassword)
	require.NoError(t, err)

	buf, name, err := env.svc.Report.SignatureManifestPDF(ctx, doc.ID)
	require.NoError(t, err)
	assert.Contains(t, name, doc.ID)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))

	_, _, err = env.svc.Report.SignatureManifestPDF(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuditPriority(t *testing.T) {
	tests := map[string]string{
		models.AuditActionAccessDenied:         "critical",
		models.AuditActionAuthenticationFailed: "critical",
		models.AuditActionRateLimited:          "critical",
		models.AuditActionSign:                 "high",
		models.AuditActionStatusChange:         "high",
		models.AuditActionRevise:               "medium",
		models.AuditActionView:                 "low",
	}
	for action, want := range tests {
		entry := models.AuditLog{Action: action}
		assert.Equal(t, want, entry.Priority(), action)
	}
}
