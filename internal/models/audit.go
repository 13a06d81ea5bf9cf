package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrAuditImmutable is returned when something tries to modify a written audit entry
var ErrAuditImmutable = errors.New("audit log entries are append-only")

// AuditLog represents an immutable audit trail entry
type AuditLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	Timestamp    time.Time         `gorm:"column:occurred_at;not null;index" json:"timestamp"`
	UserID       uint              `gorm:"not null;index" json:"user_id"`
	UserName     string            `gorm:"size:255" json:"user_name"`
	Action       string            `gorm:"size:50;not null;index" json:"action"`
	ResourceType string            `gorm:"size:50;not null" json:"resource_type"`
	ResourceID   string            `gorm:"size:255;not null;index" json:"resource_id"`
	Details      datatypes.JSONMap `json:"details"`
	IPAddress    string            `gorm:"size:45" json:"ip_address"`
	UserAgent    string            `gorm:"size:255" json:"user_agent"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}

// BeforeUpdate refuses any mutation of an existing entry
func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditImmutable
}

// BeforeDelete refuses removal of an existing entry
func (a *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditImmutable
}

// Audit action constants
const (
	AuditActionCreate               = "Create"
	AuditActionView                 = "View"
	AuditActionDownload             = "Download"
	AuditActionApprove              = "Approve"
	AuditActionReject               = "Reject"
	AuditActionSign                 = "Sign"
	AuditActionStatusChange         = "StatusChange"
	AuditActionRevise               = "Revise"
	AuditActionLogin                = "Login"
	AuditActionSearch               = "Search"
	AuditActionUserCreated          = "UserCreated"
	AuditActionAuthenticationFailed = "AuthenticationFailed"
	AuditActionAccessDenied         = "AccessDenied"
	AuditActionRateLimited          = "RateLimited"
)

// Audit resource types
const (
	ResourceDocument = "Document"
	ResourceUser     = "User"
	ResourceSearch   = "Search"
)

// Audit priority levels (display only)
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Priority classifies an entry for display. It is never persisted.
func (a *AuditLog) Priority() string {
	switch a.Action {
	case AuditActionAuthenticationFailed, AuditActionAccessDenied, AuditActionRateLimited:
		return PriorityCritical
	case AuditActionSign, AuditActionApprove, AuditActionReject, AuditActionStatusChange:
		return PriorityHigh
	case AuditActionCreate, AuditActionRevise, AuditActionUserCreated:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// AuditLogResponse is the JSON response format for audit entries
type AuditLogResponse struct {
	ID           uint           `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	UserID       uint           `json:"user_id"`
	UserName     string         `json:"user_name"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details"`
	IPAddress    string         `json:"ip_address,omitempty"`
	Priority     string         `json:"priority"`
}

// ToResponse converts AuditLog to AuditLogResponse
func (a *AuditLog) ToResponse() AuditLogResponse {
	details := map[string]any(a.Details)
	if details == nil {
		details = map[string]any{}
	}
	return AuditLogResponse{
		ID:           a.ID,
		Timestamp:    a.Timestamp,
		UserID:       a.UserID,
		UserName:     a.UserName,
		Action:       a.Action,
		ResourceType: a.ResourceType,
		ResourceID:   a.ResourceID,
		Details:      details,
		IPAddress:    a.IPAddress,
		Priority:     a.Priority(),
	}
}
