package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sjperalta/pharmavault-api/internal/middleware"
)

// Register mounts every API route on v1
func (h *Handlers) Register(v1 *gin.RouterGroup, jwtSecret string) {
	// Public
	v1.GET("/health", h.Health.Index)
	v1.GET("/config/document-types", h.Health.DocumentTypes)

	auth := v1.Group("/auth")
	{
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", h.Auth.Logout)
	}

	protected := v1.Group("")
	protected.Use(middleware.Auth(jwtSecret))
	{
		protected.GET("/me", h.Auth.Me)
		protected.GET("/dashboard", h.Dashboard.Show)
		protected.GET("/search", h.Document.Search)

		documents := protected.Group("/documents")
		{
			documents.POST("", h.Document.Create)
			documents.GET("", h.Document.Index)
			documents.GET("/:document_id", h.Document.Show)
			documents.GET("/:document_id/download", h.Document.Download)
			documents.GET("/:document_id/preview", h.Document.Preview)
			documents.POST("/:document_id/approve", h.Workflow.Approve)
			documents.POST("/:document_id/reject", h.Workflow.Reject)
			documents.POST("/:document_id/sign", h.Workflow.Sign)
			documents.POST("/:document_id/revise", h.Document.Revise)
			documents.POST("/:document_id/archive", h.Document.Archive)
			documents.GET("/:document_id/signatures/verify", h.Workflow.VerifySignatures)
			documents.GET("/:document_id/signature_manifest", h.Workflow.SignatureManifest)
		}

		// Static route first so "mark_all_as_read" is not matched as :notification_id
		notifications := protected.Group("/notifications")
		{
			notifications.GET("", h.Notification.Index)
			notifications.POST("/mark_all_as_read", h.Notification.MarkAllAsRead)
			notifications.POST("/:notification_id/mark_as_read", h.Notification.MarkAsRead)
		}

		// Admin/QualityManager only; the audit service checks the role so denials land in the trail
		audit := protected.Group("/audit")
		{
			audit.GET("", h.Audit.Index)
			audit.GET("/export", h.Audit.Export)
			audit.GET("/report", h.Audit.Report)
		}

		admin := protected.Group("")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("/users", h.User.Index)
			admin.POST("/users", h.User.Create)
			admin.GET("/users/:user_id", h.User.Show)
			admin.GET("/jobs/status", h.Job.Status)
		}
	}
}
