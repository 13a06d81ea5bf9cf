package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/pharmavault-api/internal/middleware"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/internal/services"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// @Summary List Notifications
// @Description Get the current user's notifications
// @Tags Notifications
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param status query string false "read or unread"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /notifications [get]
func (h *NotificationHandler) Index(c *gin.Context) {
	userID := middleware.GetUserID(c)
	query := repository.NewListQuery()
	query.Page, query.PerPage = pagination(c, 20)
	query.Filters["status"] = c.Query("status")

	notifications, total, err := h.notificationService.FindByUser(c.Request.Context(), userID, query)
	if err != nil {
		respondError(c, err)
		return
	}
	unread, err := h.notificationService.CountUnread(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.NotificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, notifications[i].ToResponse())
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": responses,
		"unread_count":  unread,
		"pagination":    paginationBody(query.Page, query.PerPage, total),
	})
}

// @Summary Mark Notification Read
// @Tags Notifications
// @Produce json
// @Param notification_id path int true "Notification ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /notifications/{notification_id}/mark_as_read [post]
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	id, ok := paramUint(c, "notification_id")
	if !ok {
		badRequest(c, "invalid notification_id")
		return
	}
	if err := h.notificationService.MarkAsRead(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "notification marked as read"})
}

// @Summary Mark All Read
// @Tags Notifications
// @Produce json
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /notifications/mark_all_as_read [post]
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	if err := h.notificationService.MarkAllAsRead(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "all notifications marked as read"})
}

type DashboardHandler struct {
	dashboardService *services.DashboardService
}

func NewDashboardHandler(dashboardService *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardService: dashboardService}
}

// @Summary Dashboard
// @Description Document counts and the caller's pending work; security counters for Admin and QualityManager
// @Tags Dashboard
// @Produce json
// @Success 200 {object} services.Dashboard
// @Security BearerAuth
// @Router /dashboard [get]
func (h *DashboardHandler) Show(c *gin.Context) {
	dashboard, err := h.dashboardService.Get(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}
