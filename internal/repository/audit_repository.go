package repository

import (
	"context"
	"time"

	"github.com/sjperalta/pharmavault-api/internal/models"
	"gorm.io/gorm"
)

// AuditRepository is append-and-read only; there is no update or delete
type AuditRepository interface {
	WithTx(tx *gorm.DB) AuditRepository
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, query *AuditQuery) ([]models.AuditLog, int64, error)
	FindAll(ctx context.Context, query *AuditQuery, limit int) ([]models.AuditLog, error)
	CountSince(ctx context.Context, action string, since time.Time) (int64, error)
}

// AuditQuery filters the audit trail
type AuditQuery struct {
	*ListQuery
	ResourceID string
	Action     string
	UserID     uint
	From       *time.Time
	To         *time.Time
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *auditRepository) WithTx(tx *gorm.DB) AuditRepository {
	return &auditRepository{db: tx}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepository) filtered(ctx context.Context, query *AuditQuery) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&models.AuditLog{})

	if query.ResourceID != "" {
		db = db.Where("resource_id = ?", query.ResourceID)
	}
	if query.Action != "" {
		db = db.Where("action = ?", query.Action)
	}
	if query.UserID > 0 {
		db = db.Where("user_id = ?", query.UserID)
	}
	if query.From != nil {
		db = db.Where("occurred_at >= ?", *query.From)
	}
	if query.To != nil {
		db = db.Where("occurred_at <= ?", *query.To)
	}
	return db
}

func (r *auditRepository) List(ctx context.Context, query *AuditQuery) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	db := r.filtered(ctx, query)
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// id breaks ties between entries written in the same instant
	db = db.Order("occurred_at DESC").Order("id DESC")

	if query.ListQuery != nil && query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.Find(&logs).Error
	return logs, total, err
}

func (r *auditRepository) FindAll(ctx context.Context, query *AuditQuery, limit int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	db := r.filtered(ctx, query).Order("occurred_at DESC").Order("id DESC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	err := db.Find(&logs).Error
	return logs, err
}

func (r *auditRepository) CountSince(ctx context.Context, action string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Where("action = ? AND occurred_at >= ?", action, since).
		Count(&count).Error
	return count, err
}
