package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/pharmavault-api/internal/middleware"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/services"
)

type DocumentHandler struct {
	documentService *services.DocumentService
	maxUploadBytes  int64
}

func NewDocumentHandler(documentService *services.DocumentService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, maxUploadBytes: maxUploadBytes}
}

// CreateDocumentRequest is the JSON form of an upload whose blob already exists
type CreateDocumentRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	DocumentType string   `json:"document_type"`
	Category     string   `json:"category"`
	Tags         []string `json:"tags"`
	BlobRef      string   `json:"blob_ref"`
	FileName     string   `json:"file_name"`
	MimeType     string   `json:"mime_type"`
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// formUpload opens the multipart "file" field. The caller closes the file.
func (h *DocumentHandler) formUpload(c *gin.Context) (services.UploadInput, multipart.File, error) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return services.UploadInput{}, nil, fmt.Errorf("file is required: %w", err)
	}
	f, err := fh.Open()
	if err != nil {
		return services.UploadInput{}, nil, err
	}
	return services.UploadInput{
		Content:  f,
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
	}, f, nil
}

// @Summary Upload Document
// @Description Uploads a document (multipart "file" plus fields, or JSON with blob_ref) and starts its approval workflow
// @Tags Documents
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Param file formData file false "Document file"
// @Param title formData string false "Title"
// @Param document_type formData string false "Document type"
// @Param category formData string false "Category"
// @Param tags formData string false "Comma separated tags"
// @Success 201 {object} models.DocumentResponse
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Security BearerAuth
// @Router /documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	var input services.CreateDocumentInput

	if isMultipart(c) {
		upload, f, err := h.formUpload(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		defer f.Close()
		input = services.CreateDocumentInput{
			Title:        c.PostForm("title"),
			Description:  c.PostForm("description"),
			DocumentType: c.PostForm("document_type"),
			Category:     c.PostForm("category"),
			Tags:         c.PostFormArray("tags"),
			Upload:       upload,
		}
	} else {
		var req CreateDocumentRequest
		if err := BindNestedOrFlat(c, "document", &req); err != nil {
			badRequest(c, "invalid document payload: "+err.Error())
			return
		}
		input = services.CreateDocumentInput{
			Title:        req.Title,
			Description:  req.Description,
			DocumentType: req.DocumentType,
			Category:     req.Category,
			Tags:         req.Tags,
			Upload: services.UploadInput{
				BlobRef:  req.BlobRef,
				FileName: req.FileName,
				MimeType: req.MimeType,
			},
		}
	}

	doc, err := h.documentService.Create(c.Request.Context(), input, middleware.GetPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"document": doc.ToResponse()})
}

// @Summary List Documents
// @Description Paginated document listing
// @Tags Documents
// @Produce json
// @Param document_type query string false "Document type"
// @Param status query string false "Status"
// @Param owner_id query int false "Owner user ID"
// @Param search_term query string false "Title search"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /documents [get]
func (h *DocumentHandler) Index(c *gin.Context) {
	page, perPage := pagination(c, 20)
	ownerID, _ := strconv.ParseUint(c.Query("owner_id"), 10, 32)

	docs, total, err := h.documentService.List(c.Request.Context(), services.DocumentFilter{
		DocumentType: c.Query("document_type"),
		Status:       c.Query("status"),
		OwnerID:      uint(ownerID),
		Search:       c.Query("search_term"),
		Page:         page,
		PerPage:      perPage,
		SortBy:       c.Query("sort_by"),
		SortDir:      c.Query("sort_dir"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.DocumentResponse, 0, len(docs))
	for i := range docs {
		responses = append(responses, docs[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"documents": responses, "pagination": paginationBody(page, perPage, total)})
}

// @Summary Get Document
// @Description Returns a document and records the view
// @Tags Documents
// @Produce json
// @Param document_id path string true "Document ID"
// @Success 200 {object} models.DocumentResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /documents/{document_id} [get]
func (h *DocumentHandler) Show(c *gin.Context) {
	doc, err := h.documentService.GetForView(c.Request.Context(), c.Param("document_id"), middleware.GetPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc.ToResponse()})
}

// @Summary Download Document
// @Description Streams the current version's file and records the download
// @Tags Documents
// @Produce octet-stream
// @Param document_id path string true "Document ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /documents/{document_id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	doc, f, err := h.documentService.Download(c.Request.Context(), c.Param("document_id"), middleware.GetPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	size := doc.FileSize
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	c.DataFromReader(http.StatusOK, size, contentType(doc.MimeType), f, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", doc.FileName),
	})
}

// @Summary Document Preview
// @Description Streams the thumbnail generated for image uploads
// @Tags Documents
// @Produce image/jpeg
// @Produce image/png
// @Param document_id path string true "Document ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /documents/{document_id}/preview [get]
func (h *DocumentHandler) Preview(c *gin.Context) {
	doc, f, err := h.documentService.Preview(c.Request.Context(), c.Param("document_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(c, err)
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType(doc.MimeType), f, nil)
}

// @Summary Revise Document
// @Description Uploads a new version of a rejected document and restarts its workflow
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param document_id path string true "Document ID"
// @Param file formData file true "Revised file"
// @Success 200 {object} models.DocumentResponse
// @Failure 409 {object} map[string]interface{}
// @Security BearerAuth
// @Router /documents/{document_id}/revise [post]
func (h *DocumentHandler) Revise(c *gin.Context) {
	var upload services.UploadInput
	if isMultipart(c) {
		u, f, err := h.formUpload(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		defer f.Close()
		upload = u
	} else {
		var req CreateDocumentRequest
		if err := BindNestedOrFlat(c, "document", &req); err != nil {
			badRequest(c, "invalid revision payload: "+err.Error())
			return
		}
		upload = services.UploadInput{BlobRef: req.BlobRef, FileName: req.FileName, MimeType: req.MimeType}
	}

	doc, err := h.documentService.Revise(c.Request.Context(), c.Param("document_id"), upload, middleware.GetPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc.ToResponse()})
}

// @Summary Archive Document
// @Description Archives a document (Admin or QualityManager)
// @Tags Documents
// @Produce json
// @Param document_id path string true "Document ID"
// @Success 200 {object} models.DocumentResponse
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]interface{}
// @Security BearerAuth
// @Router /documents/{document_id}/archive [post]
func (h *DocumentHandler) Archive(c *gin.Context) {
	doc, err := h.documentService.Archive(c.Request.Context(), c.Param("document_id"), middleware.GetPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc.ToResponse()})
}

// @Summary Search Documents
// @Description Case-insensitive search over title, description and tags; the query is audited
// @Tags Documents
// @Produce json
// @Param q query string true "Search text"
// @Param document_type query string false "Document type"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /search [get]
func (h *DocumentHandler) Search(c *gin.Context) {
	docs, err := h.documentService.Search(c.Request.Context(), c.Query("q"), c.Query("document_type"), middleware.GetPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.DocumentResponse, 0, len(docs))
	for i := range docs {
		responses = append(responses, docs[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"documents": responses, "total": len(responses)})
}

func contentType(mimeType string) string {
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
