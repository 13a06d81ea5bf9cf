package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
	"github.com/sjperalta/pharmavault-api/internal/statemachine"
	"github.com/sjperalta/pharmavault-api/internal/storage"
	"github.com/sjperalta/pharmavault-api/internal/workflow"
	"github.com/sjperalta/pharmavault-api/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	documentBlobDir = "documents"
	previewBlobDir  = "previews"
	searchLimit     = 50
)

// BlobStore is the opaque file store documents reference
type BlobStore interface {
	Put(ctx context.Context, r io.Reader, filename, subDir string) (string, int64, error)
	PutBytes(ctx context.Context, data []byte, filename, subDir string) (string, error)
	Open(ctx context.Context, ref string) (*os.File, error)
	Stat(ctx context.Context, ref string) (int64, error)
	Delete(ref string) error
}

// UploadInput describes the file behind a document version. Either Content
// (a fresh upload) or BlobRef (an already stored blob) is set.
type UploadInput struct {
	Content  io.Reader
	BlobRef  string
	FileName string
	MimeType string
}

// CreateDocumentInput holds the metadata for a new document
type CreateDocumentInput struct {
	Title        string
	Description  string
	DocumentType string
	Category     string
	Tags         []string
	Upload       UploadInput
}

// DocumentFilter narrows a document listing
type DocumentFilter struct {
	DocumentType string
	Status       string
	OwnerID      uint
	Search       string
	Page         int
	PerPage      int
	SortBy       string
	SortDir      string
}

type DocumentService struct {
	db       *gorm.DB
	repo     repository.DocumentRepository
	audit    *AuditService
	blobs    BlobStore
	images   *ImageService
	notifier *NotificationService
	locks    *docLocks
	timeout  time.Duration
}

func NewDocumentService(db *gorm.DB, repo repository.DocumentRepository, audit *AuditService, blobs BlobStore, images *ImageService, notifier *NotificationService, locks *docLocks, timeout time.Duration) *DocumentService {
	return &DocumentService{
		db:       db,
		repo:     repo,
		audit:    audit,
		blobs:    blobs,
		images:   images,
		notifier: notifier,
		locks:    locks,
		timeout:  timeout,
	}
}

// Create stores the blob, attaches the workflow for the document type and
// writes the record together with its Create audit entry.
func (s *DocumentService) Create(ctx context.Context, input CreateDocumentInput, actor models.Principal) (*models.Document, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Category = strings.TrimSpace(input.Category)
	input.DocumentType = strings.TrimSpace(input.DocumentType)

	switch {
	case input.Title == "":
		return nil, newError(ErrInvalidInput, "title is required")
	case input.DocumentType == "":
		return nil, newError(ErrInvalidInput, "document_type is required")
	case input.Category == "":
		return nil, newError(ErrInvalidInput, "category is required")
	case workflow.IsKnownType(input.DocumentType) && !workflow.IsValidCategory(input.DocumentType, input.Category):
		return nil, newError(ErrInvalidInput, "category %q does not belong to %s", input.Category, input.DocumentType)
	}

	blob, err := s.storeBlob(ctx, input.Upload)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:               uuid.New().String(),
		Title:            input.Title,
		Description:      strings.TrimSpace(input.Description),
		DocumentType:     input.DocumentType,
		Category:         input.Category,
		Version:          1,
		Status:           models.DocumentStatusDraft,
		Tags:             datatypes.NewJSONSlice(NormalizeTags(input.Tags)),
		FilePath:         blob.ref,
		FileName:         blob.fileName,
		FileSize:         blob.size,
		MimeType:         blob.mimeType,
		OwnerID:          actor.UserID,
		OwnerName:        actor.Name,
		Metadata:         datatypes.JSONMap{"uploaded_by_name": actor.Name, "uploaded_by_role": actor.Role, "uploaded_by_email": actor.Email},
		ApprovalWorkflow: datatypes.NewJSONSlice(workflow.NewSteps(input.DocumentType, actor.Role)),
		Signatures:       datatypes.NewJSONSlice([]models.Signature{}),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, doc); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		return s.audit.RecordTx(ctx, tx, actor, AuditEntry{
			Action:       models.AuditActionCreate,
			ResourceType: models.ResourceDocument,
			ResourceID:   doc.ID,
			Details: map[string]any{
				"title":         doc.Title,
				"document_type": doc.DocumentType,
				"category":      doc.Category,
				"version":       doc.Version,
				"file_name":     doc.FileName,
				"workflow":      stepNames(doc.Steps()),
			},
		})
	})
	if err != nil {
		s.discardBlob(blob)
		return nil, err
	}

	logger.Info("document created",
		slog.String("document_id", doc.ID),
		slog.String("document_type", doc.DocumentType),
		slog.Uint64("owner_id", uint64(doc.OwnerID)),
	)

	s.schedulePreview(doc)
	s.notifier.DocumentEvent(EventDocumentCreated, *doc, actor, "")
	return doc, nil
}

// storedBlob is the result of resolving an UploadInput
type storedBlob struct {
	ref      string
	fileName string
	mimeType string
	size     int64
	uploaded bool
}

func (s *DocumentService) storeBlob(ctx context.Context, in UploadInput) (*storedBlob, error) {
	mimeType := in.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if !storage.IsValidContentType(mimeType) {
		return nil, newError(ErrInvalidInput, "file type %s is not allowed", mimeType)
	}

	if in.Content != nil {
		if strings.TrimSpace(in.FileName) == "" {
			return nil, newError(ErrInvalidInput, "file name is required")
		}
		type put struct {
			ref  string
			size int64
		}
		res, err := withTimeout(ctx, s.timeout, "blob store", func(ctx context.Context) (put, error) {
			ref, size, err := s.blobs.Put(ctx, in.Content, in.FileName, documentBlobDir)
			return put{ref: ref, size: size}, err
		})
		if err != nil {
			return nil, err
		}
		return &storedBlob{ref: res.ref, fileName: in.FileName, mimeType: mimeType, size: res.size, uploaded: true}, nil
	}

	if in.BlobRef == "" {
		return nil, newError(ErrInvalidInput, "a file or blob_ref is required")
	}
	// Only unattached uploads under documents/ may be claimed by reference
	if path.Clean(in.BlobRef) != in.BlobRef || !strings.HasPrefix(in.BlobRef, documentBlobDir+"/") {
		return nil, newError(ErrInvalidInput, "blob_ref must reference an uploaded document file")
	}
	inUse, err := withTimeout(ctx, s.timeout, "document store", func(ctx context.Context) (bool, error) {
		return s.repo.BlobInUse(ctx, in.BlobRef)
	})
	if err != nil {
		return nil, err
	}
	if inUse {
		return nil, newError(ErrInvalidInput, "blob_ref is already attached to a document")
	}
	size, err := withTimeout(ctx, s.timeout, "blob store", func(ctx context.Context) (int64, error) {
		return s.blobs.Stat(ctx, in.BlobRef)
	})
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, newError(ErrInvalidInput, "blob_ref does not reference a stored file")
	}
	if err != nil {
		return nil, err
	}
	fileName := in.FileName
	if fileName == "" {
		fileName = in.BlobRef[strings.LastIndex(in.BlobRef, "/")+1:]
	}
	return &storedBlob{ref: in.BlobRef, fileName: fileName, mimeType: mimeType, size: size}, nil
}

// discardBlob removes a blob this request uploaded but could not commit
func (s *DocumentService) discardBlob(blob *storedBlob) {
	if blob == nil || !blob.uploaded {
		return
	}
	if err := s.blobs.Delete(blob.ref); err != nil {
		logger.Warn("failed to discard orphan blob", slog.String("ref", blob.ref), slog.String("error", err.Error()))
	}
}

// schedulePreview renders a thumbnail for image uploads in the background
func (s *DocumentService) schedulePreview(doc *models.Document) {
	if s.images == nil || s.notifier == nil || s.notifier.worker == nil || !storage.IsImage(doc.MimeType) {
		return
	}
	id, ref, name := doc.ID, doc.FilePath, doc.FileName
	s.notifier.worker.EnqueueAsync("preview:"+id, func(ctx context.Context) error {
		return s.generatePreview(ctx, id, ref, name)
	})
}

func (s *DocumentService) generatePreview(ctx context.Context, id, ref, name string) error {
	f, err := s.blobs.Open(ctx, ref)
	if err != nil {
		return err
	}
	defer f.Close()

	thumb, err := s.images.Thumbnail(ctx, f, name)
	if err != nil {
		return err
	}
	previewRef, err := s.blobs.PutBytes(ctx, thumb, name, previewBlobDir)
	if err != nil {
		return err
	}
	return s.repo.SetPreviewPath(ctx, id, previewRef)
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err, "document")
	}
	return doc, nil
}

// GetForView returns a document and records that the actor viewed it
func (s *DocumentService) GetForView(ctx context.Context, id string, actor models.Principal) (*models.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.audit.Record(ctx, actor, AuditEntry{
		Action:       models.AuditActionView,
		ResourceType: models.ResourceDocument,
		ResourceID:   doc.ID,
		Details:      map[string]any{"version": doc.Version, "status": doc.Status},
	}); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, filter DocumentFilter) ([]models.Document, int64, error) {
	if filter.Status != "" && !models.IsDocumentStatus(filter.Status) {
		return nil, 0, newError(ErrInvalidInput, "unknown status %q", filter.Status)
	}

	lq := repository.NewListQuery()
	if filter.Page > 0 {
		lq.Page = filter.Page
	}
	if filter.PerPage > 0 {
		lq.PerPage = min(filter.PerPage, 100)
	}
	lq.Search = filter.Search
	lq.SortBy = filter.SortBy
	lq.SortDir = filter.SortDir

	docs, total, err := s.repo.List(ctx, &repository.DocumentQuery{
		ListQuery:    lq,
		DocumentType: filter.DocumentType,
		Status:       filter.Status,
		OwnerID:      filter.OwnerID,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, total, nil
}

// Download opens the current version's blob and records the download.
// The caller closes the returned file.
func (s *DocumentService) Download(ctx context.Context, id string, actor models.Principal) (*models.Document, *os.File, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := s.openBlob(ctx, doc.FilePath)
	if err != nil {
		return nil, nil, err
	}

	if err := s.audit.Record(ctx, actor, AuditEntry{
		Action:       models.AuditActionDownload,
		ResourceType: models.ResourceDocument,
		ResourceID:   doc.ID,
		Details:      map[string]any{"version": doc.Version, "file_name": doc.FileName},
	}); err != nil {
		f.Close()
		return nil, nil, err
	}
	return doc, f, nil
}

// Preview opens the generated thumbnail of an image document
func (s *DocumentService) Preview(ctx context.Context, id string) (*models.Document, *os.File, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if doc.PreviewPath == nil {
		return nil, nil, newError(ErrNotFound, "document has no preview")
	}
	f, err := s.openBlob(ctx, *doc.PreviewPath)
	if err != nil {
		return nil, nil, err
	}
	return doc, f, nil
}

func (s *DocumentService) openBlob(ctx context.Context, ref string) (*os.File, error) {
	f, err := withTimeout(ctx, s.timeout, "blob store", func(ctx context.Context) (*os.File, error) {
		return s.blobs.Open(ctx, ref)
	})
	if errors.Is(err, storage.ErrBlobNotFound) {
		return nil, newError(ErrNotFound, "stored file is missing")
	}
	return f, err
}

// CanArchive reports whether the actor's role may archive documents
func CanArchive(actor models.Principal) bool {
	return actor.HasRole(models.RoleAdmin, models.RoleQualityManager)
}

// Archive moves an Approved or Rejected document to Archived
func (s *DocumentService) Archive(ctx context.Context, id string, actor models.Principal) (*models.Document, error) {
	if !CanArchive(actor) {
		return nil, s.audit.denied(ctx, actor, models.ResourceDocument, id, "archive documents", nil)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	var doc *models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
		if err != nil {
			return translate(err, "document")
		}
		if d.Status == models.DocumentStatusArchived {
			return stateError(ErrInvalidState, NextActionFor(d), "document is already archived")
		}
		if !d.MayArchive() {
			return stateError(ErrInvalidState, NextActionFor(d), "document cannot be archived while %s", d.Status)
		}

		from := d.Status
		if err := statemachine.NewDocumentFSM(d).Archive(ctx); err != nil {
			return stateError(ErrInvalidState, NextActionFor(d), "%s", err.Error())
		}
		now := time.Now().UTC()
		d.ArchivedAt = &now

		if err := s.repo.WithTx(tx).Update(ctx, d); err != nil {
			return fmt.Errorf("failed to archive document: %w", err)
		}
		doc = d
		return s.audit.RecordTx(ctx, tx, actor, AuditEntry{
			Action:       models.AuditActionStatusChange,
			ResourceType: models.ResourceDocument,
			ResourceID:   d.ID,
			Details:      map[string]any{"from": from, "to": d.Status, "version": d.Version},
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("document archived", slog.String("document_id", doc.ID), slog.Uint64("user_id", uint64(actor.UserID)))
	s.notifier.DocumentEvent(EventDocumentArchived, *doc, actor, "")
	return doc, nil
}

// Revise uploads a new version of a rejected document and restarts its workflow
func (s *DocumentService) Revise(ctx context.Context, id string, upload UploadInput, actor models.Principal) (*models.Document, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != actor.UserID && !actor.IsAdmin() {
		return nil, s.audit.denied(ctx, actor, models.ResourceDocument, id, "revise documents owned by others", nil)
	}
	if !current.MayRevise() {
		return nil, stateError(ErrInvalidState, NextActionFor(current), "only rejected documents can be revised (document is %s)", current.Status)
	}

	blob, err := s.storeBlob(ctx, upload)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	var doc *models.Document
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
		if err != nil {
			return translate(err, "document")
		}
		if !d.MayRevise() {
			return stateError(ErrInvalidState, NextActionFor(d), "only rejected documents can be revised (document is %s)", d.Status)
		}

		fromVersion, previousFile := d.Version, d.FileName
		if err := statemachine.NewDocumentFSM(d).Revise(ctx); err != nil {
			return stateError(ErrInvalidState, NextActionFor(d), "%s", err.Error())
		}
		d.Version++
		d.FilePath = blob.ref
		d.FileName = blob.fileName
		d.FileSize = blob.size
		d.MimeType = blob.mimeType
		d.PreviewPath = nil
		d.ApprovalWorkflow = datatypes.NewJSONSlice(workflow.NewSteps(d.DocumentType, ownerRole(d)))

		if err := s.repo.WithTx(tx).Update(ctx, d); err != nil {
			return fmt.Errorf("failed to revise document: %w", err)
		}
		doc = d
		return s.audit.RecordTx(ctx, tx, actor, AuditEntry{
			Action:       models.AuditActionRevise,
			ResourceType: models.ResourceDocument,
			ResourceID:   d.ID,
			Details: map[string]any{
				"from_version":       fromVersion,
				"to_version":         d.Version,
				"previous_file_name": previousFile,
				"file_name":          d.FileName,
				"status":             d.Status,
			},
		})
	})
	if err != nil {
		s.discardBlob(blob)
		return nil, err
	}

	logger.Info("document revised", slog.String("document_id", doc.ID), slog.Int("version", doc.Version))
	s.schedulePreview(doc)
	s.notifier.DocumentEvent(EventDocumentRevised, *doc, actor, "")
	return doc, nil
}

// Search matches title, description and tags case-insensitively and records the query
func (s *DocumentService) Search(ctx context.Context, term, documentType string, actor models.Principal) ([]models.Document, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, newError(ErrInvalidInput, "q is required")
	}

	docs, err := s.repo.Search(ctx, term, documentType, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}

	if err := s.audit.Record(ctx, actor, AuditEntry{
		Action:       models.AuditActionSearch,
		ResourceType: models.ResourceSearch,
		ResourceID:   "documents",
		Details:      map[string]any{"query": term, "document_type": documentType, "results": len(docs)},
	}); err != nil {
		return nil, err
	}
	return docs, nil
}

// ownerRole is the role the owner held at upload; it picks SOP/Protocol reviewers
func ownerRole(d *models.Document) string {
	if role, ok := d.Metadata["uploaded_by_role"].(string); ok {
		return role
	}
	return ""
}

// NormalizeTags trims, de-duplicates and sorts tags
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, raw := range tags {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t == "" || seen[strings.ToLower(t)] {
				continue
			}
			seen[strings.ToLower(t)] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func stepNames(steps []models.WorkflowStep) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.StepName + ":" + s.AssigneeRole
	}
	return names
}
