package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a user in the system
type User struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Email             string    `gorm:"uniqueIndex;not null" json:"email"`
	EncryptedPassword string    `gorm:"column:encrypted_password;not null" json:"-"`
	FullName          string    `gorm:"not null" json:"full_name"`
	Role              string    `gorm:"size:32;default:User;index" json:"role"`
	Department        string    `gorm:"size:100" json:"department"`
	Status            string    `gorm:"size:20;default:active" json:"status"`
	CreatedBy         *uint     `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook for setting defaults
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	return nil
}

// IsAdmin returns true if user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsActive returns true if user status is active
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Principal returns the authenticated identity used by the core operations
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Name: u.FullName, Email: u.Email, Role: u.Role}
}

// Role constants
const (
	RoleAdmin             = "Admin"
	RoleQualityManager    = "QualityManager"
	RoleRegulatoryAffairs = "RegulatoryAffairs"
	RoleClinicalResearch  = "ClinicalResearch"
	RoleManufacturing     = "Manufacturing"
	RoleUser              = "User"
)

// Status constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Roles lists every role the identity provider may issue
func Roles() []string {
	return []string{RoleAdmin, RoleQualityManager, RoleRegulatoryAffairs, RoleClinicalResearch, RoleManufacturing, RoleUser}
}

// IsValidRole reports whether role is one of the system roles
func IsValidRole(role string) bool {
	for _, r := range Roles() {
		if r == role {
			return true
		}
	}
	return false
}

// Principal is the per-request authenticated identity passed into every core operation
type Principal struct {
	UserID    uint
	Name      string
	Email     string
	Role      string
	IPAddress string
	UserAgent string
}

// HasRole reports whether the principal holds any of the given roles
func (p Principal) HasRole(roles ...string) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal holds the Admin override role
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// UserResponse is the JSON response format for users
type UserResponse struct {
	ID         uint      `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Role       string    `json:"role"`
	Department string    `json:"department"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		Role:       u.Role,
		Department: u.Department,
		Status:     u.Status,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}
