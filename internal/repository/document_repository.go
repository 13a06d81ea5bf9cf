package repository

import (
	"context"
	"strings"

	"github.com/sjperalta/pharmavault-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentRepository defines the interface for document data access
type DocumentRepository interface {
	WithTx(tx *gorm.DB) DocumentRepository
	FindByID(ctx context.Context, id string) (*models.Document, error)
	FindByIDForUpdate(ctx context.Context, id string) (*models.Document, error)
	Create(ctx context.Context, document *models.Document) error
	Update(ctx context.Context, document *models.Document) error
	SetPreviewPath(ctx context.Context, id, path string) error
	List(ctx context.Context, query *DocumentQuery) ([]models.Document, int64, error)
	Search(ctx context.Context, term, documentType string, limit int) ([]models.Document, error)
	FindByStatuses(ctx context.Context, statuses ...string) ([]models.Document, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	CountByOwner(ctx context.Context, ownerID uint) (int64, error)
	BlobInUse(ctx context.Context, ref string) (bool, error)
}

// DocumentQuery extends ListQuery with document-specific filters
type DocumentQuery struct {
	*ListQuery
	DocumentType string
	Status       string
	OwnerID      uint
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *documentRepository) WithTx(tx *gorm.DB) DocumentRepository {
	return &documentRepository{db: tx}
}

func (r *documentRepository) FindByID(ctx context.Context, id string) (*models.Document, error) {
	var document models.Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&document).Error
	if err != nil {
		return nil, err
	}
	return &document, nil
}

// FindByIDForUpdate takes a row lock on PostgreSQL. SQLite has no row locks;
// writers there are already serialised by the single connection.
func (r *documentRepository) FindByIDForUpdate(ctx context.Context, id string) (*models.Document, error) {
	var document models.Document
	db := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := db.Where("id = ?", id).First(&document).Error; err != nil {
		return nil, err
	}
	return &document, nil
}

func (r *documentRepository) Create(ctx context.Context, document *models.Document) error {
	return r.db.WithContext(ctx).Create(document).Error
}

func (r *documentRepository) Update(ctx context.Context, document *models.Document) error {
	return r.db.WithContext(ctx).Save(document).Error
}

// SetPreviewPath touches only the preview column so it never races workflow writes
func (r *documentRepository) SetPreviewPath(ctx context.Context, id, path string) error {
	return r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id).
		UpdateColumn("preview_path", path).Error
}

func (r *documentRepository) List(ctx context.Context, query *DocumentQuery) ([]models.Document, int64, error) {
	var documents []models.Document
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Document{})

	if query.DocumentType != "" {
		db = db.Where("document_type = ?", query.DocumentType)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.OwnerID > 0 {
		db = db.Where("owner_id = ?", query.OwnerID)
	}
	if query.Search != "" {
		db = whereMatches(db, query.Search)
	}

	// Count total using a separate session so the main query is not altered by Count()
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = db.Order(orderClause(query.ListQuery, documentSortColumns, "created_at DESC"))

	if query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.Find(&documents).Error
	return documents, total, err
}

func (r *documentRepository) Search(ctx context.Context, term, documentType string, limit int) ([]models.Document, error) {
	var documents []models.Document

	db := whereMatches(r.db.WithContext(ctx).Model(&models.Document{}), term)
	if documentType != "" {
		db = db.Where("document_type = ?", documentType)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}

	err := db.Order("updated_at DESC").Find(&documents).Error
	return documents, err
}

// whereMatches does a case-insensitive substring match on title, description and tags
func whereMatches(db *gorm.DB, term string) *gorm.DB {
	search := "%" + strings.ToLower(term) + "%"
	return db.Where(
		"LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(CAST(tags AS TEXT)) LIKE ?",
		search, search, search,
	)
}

func (r *documentRepository) FindByStatuses(ctx context.Context, statuses ...string) ([]models.Document, error) {
	var documents []models.Document
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&documents).Error
	return documents, err
}

func (r *documentRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)

	rows, err := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Select("status, count(*) as count").
		Group("status").
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *documentRepository) CountByOwner(ctx context.Context, ownerID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error
	return count, err
}

// BlobInUse reports whether any document already points at ref
func (r *documentRepository) BlobInUse(ctx context.Context, ref string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("file_path = ? OR preview_path = ?", ref, ref).
		Count(&count).Error
	return count > 0, err
}

var documentSortColumns = map[string]bool{
	"created_at":    true,
	"updated_at":    true,
	"title":         true,
	"document_type": true,
	"status":        true,
}
