package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUserRepo struct {
	repository.UserRepository
	mockList func(ctx context.Context, query *repository.ListQuery) ([]models.User, int64, error)
}

func (m *mockUserRepo) List(ctx context.Context, query *repository.ListQuery) ([]models.User, int64, error) {
	return m.mockList(ctx, query)
}

func TestUserHandler_Index_Filters(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var captured *repository.ListQuery
	mockRepo := &mockUserRepo{
		mockList: func(ctx context.Context, query *repository.ListQuery) ([]models.User, int64, error) {
			captured = query
			return []models.User{{ID: 1, Email: "qm@example.com", Role: models.RoleQualityManager}}, 41, nil
		},
	}
	handler := NewUserHandler(services.NewUserService(mockRepo, nil, nil, nil, nil))

	tests := []struct {
		url        string
		wantStatus string
		wantRole   string
	}{
		{"/users", models.StatusActive, ""},
		{"/users?status=all", "", ""},
		{"/users?status=inactive&role=QualityManager", "inactive", models.RoleQualityManager},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest("GET", tt.url, nil)
			handler.Index(c)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantStatus, captured.Filters["status"])
			assert.Equal(t, tt.wantRole, captured.Filters["role"])
		})
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/users?per_page=500&page=2", nil)
	handler.Index(c)
	assert.Equal(t, maxPerPage, captured.PerPage)

	var body struct {
		Users      []models.UserResponse `json:"users"`
		Pagination map[string]int64      `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Users, 1)
	assert.EqualValues(t, 2, body.Pagination["page"])
	assert.EqualValues(t, 1, body.Pagination["total_pages"])
}
