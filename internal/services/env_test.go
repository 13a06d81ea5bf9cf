package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sjperalta/pharmavault-api/internal/config"
	"github.com/sjperalta/pharmavault-api/internal/database"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/internal/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testPassword = "correct-horse-battery"

type testEnv struct {
	db    *gorm.DB
	repos *repository.Repositories
	svc   *Services
	blobs *storage.LocalStorage
}

// newTestEnv wires every service against an in-memory database and a temp blob dir
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Connect("sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	blobs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:                  "test-secret",
		JWTExpirationHours:         1,
		DependencyTimeout:          5 * time.Second,
		SignatureAttemptsPerMinute: 5,
	}
	repos := repository.NewRepositories(db)
	return &testEnv{
		db:    db,
		repos: repos,
		svc:   NewServices(repos, nil, blobs, cfg, db),
		blobs: blobs,
	}
}

// user persists an active account with testPassword and returns its principal
func (e *testEnv) user(t *testing.T, name, role string) models.Principal {
	t.Helper()
	hash, err := HashPassword(testPassword)
	require.NoError(t, err)
	u := &models.User{
		Email:             strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@pharmavault.test",
		EncryptedPassword: hash,
		FullName:          name,
		Role:              role,
		Status:            models.StatusActive,
	}
	require.NoError(t, e.repos.User.Create(context.Background(), u))
	p := u.Principal()
	p.IPAddress = "10.0.0.1"
	p.UserAgent = "go-test"
	return p
}

func (e *testEnv) createDocument(t *testing.T, owner models.Principal, docType, category string) *models.Document {
	t.Helper()
	doc, err := e.svc.Document.Create(context.Background(), CreateDocumentInput{
		Title:        docType + " dossier",
		Description:  "stability data",
		DocumentType: docType,
		Category:     category,
		Tags:         []string{"stability", "batch-42"},
		Upload: UploadInput{
			Content:  strings.NewReader("%PDF-1.4 test body"),
			FileName: "dossier.pdf",
			MimeType: "application/pdf",
		},
	}, owner)
	require.NoError(t, err)
	return doc
}

// approveAll walks the workflow using the assignee role of each step
func (e *testEnv) approveAll(t *testing.T, docID string, admin models.Principal) *models.Document {
	t.Helper()
	doc, err := e.svc.Document.Get(context.Background(), docID)
	require.NoError(t, err)
	for i := range doc.ApprovalWorkflow {
		doc, err = e.svc.Workflow.Approve(context.Background(), docID, i, admin, "ok")
		require.NoError(t, err)
	}
	return doc
}

func (e *testEnv) auditActions(t *testing.T, resourceID string) []string {
	t.Helper()
	logs, err := e.svc.Audit.ForDocument(context.Background(), resourceID)
	require.NoError(t, err)
	actions := make([]string, len(logs))
	for i, l := range logs {
		actions[i] = l.Action
	}
	return actions
}

func countAction(actions []string, action string) int {
	n := 0
	for _, a := range actions {
		if a == action {
			n++
		}
	}
	return n
}
