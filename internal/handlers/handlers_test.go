package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/pharmavault-api/internal/config"
	"github.com/sjperalta/pharmavault-api/internal/database"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/internal/services"
	"github.com/sjperalta/pharmavault-api/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "handler-secret"
	testPassword = "correct-horse-battery"
)

type testServer struct {
	router *gin.Engine
	repos  *repository.Repositories
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
		JWTSecret:                  testSecret,
		JWTExpirationHours:         1,
		DependencyTimeout:          5 * time.Second,
		SignatureAttemptsPerMinute: 5,
	}
	repos := repository.NewRepositories(db)
	svcs := services.NewServices(repos, nil, blobs, cfg, db)

	router := gin.New()
	NewHandlers(svcs, 10<<20).Register(router.Group("/api/v1"), testSecret)
	return &testServer{router: router, repos: repos}
}

// login creates an active account with the given role and returns a bearer token
func (s *testServer) login(t *testing.T, email, role string) string {
	t.Helper()
	hash, err := services.HashPassword(testPassword)
	require.NoError(t, err)
	require.NoError(t, s.repos.User.Create(context.Background(), &models.User{
		Email:             email,
		EncryptedPassword: hash,
		FullName:          strings.Split(email, "@")[0],
		Role:              role,
		Status:            models.StatusActive,
	}))

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", jsonBody(t, gin.H{"email": email, "password": testPassword}), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res services.LoginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res.Token
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func uploadForm(t *testing.T, fields map[string]string, fileName, mimeType string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestDocumentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin@pharmavault.test", models.RoleAdmin)
	qm := s.login(t, "qm@pharmavault.test", models.RoleQualityManager)
	content := []byte("%PDF-1.4 cleaning validation")

	body, ct := uploadForm(t, map[string]string{
		"title":         "Cleaning SOP",
		"document_type": models.DocumentTypeSOP,
		"category":      "General",
		"tags":          "cleaning, Validation,cleaning",
	}, "sop.pdf", "application/pdf", content)
	w := s.do(t, http.MethodPost, "/api/v1/documents", admin, body, ct)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	doc := decode(t, w)["document"].(map[string]any)
	id := doc["id"].(string)
	assert.Equal(t, models.DocumentStatusDraft, doc["status"])
	assert.EqualValues(t, 1, doc["version"])
	assert.ElementsMatch(t, []any{"cleaning", "Validation"}, doc["tags"])

	// the second step cannot be decided before the first
	w = s.do(t, http.MethodPost, "/api/v1/documents/"+id+"/approve", admin, jsonBody(t, gin.H{"step_index": 1}), "application/json")
	require.Equal(t, http.StatusConflict, w.Code)
	next := decode(t, w)["next_action"].(map[string]any)
	assert.EqualValues(t, 0, next["step_index"])
	assert.Equal(t, "approve", next["action"])

	w = s.do(t, http.MethodPost, "/api/v1/documents/"+id+"/approve", admin, jsonBody(t, gin.H{}), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for i := 0; i < 2; i++ {
		w = s.do(t, http.MethodPost, "/api/v1/documents/"+id+"/approve", admin, jsonBody(t, gin.H{"step_index": i, "comments": "ok"}), "application/json")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	assert.Equal(t, models.DocumentStatusApproved, decode(t, w)["document"].(map[string]any)["status"])

	w = s.do(t, http.MethodPost, "/api/v1/documents/"+id+"/sign", admin, jsonBody(t, gin.H{"reason": "release", "password": "wrong"}), "application/json")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/documents/"+id+"/sign", admin, jsonBody(t, gin.H{"reason": "release", "password": testPassword}), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sig := decode(t, w)["signature"].(map[string]any)
	assert.Len(t, sig["signature_hash"], 64)

	w = s.do(t, http.MethodGet, "/api/v1/documents/"+id+"/signatures/verify", qm, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["valid"])

	w = s.do(t, http.MethodGet, "/api/v1/documents/"+id+"/download", qm, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "sop.pdf")

	w = s.do(t, http.MethodPost, "/api/v1/documents/"+id+"/archive", qm, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/documents/"+id+"/archive", qm, nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/audit?resource_id="+id, qm, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode(t, w)["audit_logs"].([]any)
	assert.Equal(t, models.AuditActionStatusChange, logs[0].(map[string]any)["action"])

	w = s.do(t, http.MethodGet, "/api/v1/audit/export?format=csv&resource_id="+id, qm, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), models.AuditActionSign)
}

func TestAccessControlOverHTTP(t *testing.T) {
	s := newTestServer(t)
	user := s.login(t, "user@pharmavault.test", models.RoleUser)

	w := s.do(t, http.MethodGet, "/api/v1/documents", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/audit", user, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/users", user, nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/documents/missing", user, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/search", user, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/me", user, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RoleUser, decode(t, w)["user"].(map[string]any)["role"])

	w = s.do(t, http.MethodGet, "/api/v1/config/document-types", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["document_types"], len(models.DocumentTypes()))
}

func TestCreateUserOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin@pharmavault.test", models.RoleAdmin)

	tests := []struct {
		name    string
		payload gin.H
		want    int
	}{
		{"full_name", gin.H{"email": "ra@example.com", "password": "long-enough", "full_name": "Rae Reg", "role": models.RoleRegulatoryAffairs}, http.StatusCreated},
		{"FullName alias", gin.H{"email": "cr@example.com", "password": "long-enough", "FullName": "Cory Clin", "role": models.RoleClinicalResearch}, http.StatusCreated},
		{"missing name", gin.H{"email": "x@example.com", "password": "long-enough"}, http.StatusBadRequest},
		{"duplicate email", gin.H{"email": "ra@example.com", "password": "long-enough", "full_name": "Again"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/users", admin, jsonBody(t, tt.payload), "application/json")
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := s.do(t, http.MethodGet, "/api/v1/users?status=all", admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["users"], 3)
}

func TestStatusFor(t *testing.T) {
	tests := map[error]int{
		services.ErrInvalidInput:                                     http.StatusBadRequest,
		services.ErrAuthenticationFailed:                             http.StatusUnauthorized,
		services.ErrUnauthorized:                                     http.StatusForbidden,
		services.ErrNotFound:                                         http.StatusNotFound,
		services.ErrInvalidState:                                     http.StatusConflict,
		services.ErrRateLimited:                                      http.StatusTooManyRequests,
		services.ErrDependencyUnavailable:                            http.StatusServiceUnavailable,
		services.ErrOutOfOrderApproval:                               http.StatusConflict,
		fmt.Errorf("wrapped: %w", services.ErrOutOfOrderApproval):    http.StatusConflict,
		errors.New("disk on fire"):                                   http.StatusInternalServerError,
	}
	for err, want := range tests {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
