package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/pharmavault-api/internal/middleware"
	"github.com/sjperalta/pharmavault-api/internal/services"
)

// WorkflowHandler serves approval decisions and electronic signatures
type WorkflowHandler struct {
	workflowService  *services.WorkflowService
	signatureService *services.SignatureService
	reportService    *services.ReportService
}

func NewWorkflowHandler(workflowService *services.WorkflowService, signatureService *services.SignatureService, reportService *services.ReportService) *WorkflowHandler {
	return &WorkflowHandler{
		workflowService:  workflowService,
		signatureService: signatureService,
		reportService:    reportService,
	}
}

type ApproveRequest struct {
	StepIndex *int   `json:"step_index"`
	Comments  string `json:"comments"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type SignRequest struct {
	Reason   string `json:"reason"`
	Password string `json:"password"`
}

// @Summary Approve Step
// @Description Approves one workflow step. Out-of-order or closed workflows answer 409 with the next legitimate action.
// @Tags Workflow
// @Accept json
// @Produce json
// @Param document_id path string true "Document ID"
// @Param request body ApproveRequest true "Step decision"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]interface{}
// @Security BearerAuth
// @Router /documents/{document_id}/approve [post]
func (h *WorkflowHandler) Approve(c *gin.Context) {
	var req ApproveRequest
	if err := BindNestedOrFlat(c, "approval", &req); err != nil || req.StepIndex == nil {
		badRequest(c, "step_index is required")
		return
	}

	doc, err := h.workflowService.Approve(c.Request.Context(), c.Param("document_id"), *req.StepIndex, middleware.GetPrincipal(c), req.Comments)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc.ToResponse(), "next_action": services.NextActionFor(doc)})
}

// @Summary Reject Document
// @Description Rejects the document at its first open step
// @Tags Workflow
// @Accept json
// @Produce json
// @Param document_id path string true "Document ID"
// @Param request body RejectRequest true "Rejection reason"
// @Success 200 {object} models.DocumentResponse
// @Failure 409 {object} map[string]interface{}
// @Security BearerAuth
// @Router /documents/{document_id}/reject [post]
func (h *WorkflowHandler) Reject(c *gin.Context) {
	var req RejectRequest
	if err := BindNestedOrFlat(c, "rejection", &req); err != nil {
		badRequest(c, "reason is required")
		return
	}

	doc, err := h.workflowService.Reject(c.Request.Context(), c.Param("document_id"), middleware.GetPrincipal(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc.ToResponse(), "next_action": services.NextActionFor(doc)})
}

// @Summary Sign Document
// @Description Applies an electronic signature to an approved document after re-verifying the signer's password
// @Tags Signatures
// @Accept json
// @Produce json
// @Param document_id path string true "Document ID"
// @Param request body SignRequest true "Signature meaning and password"
// @Success 201 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Failure 409 {object} map[string]interface{}
// @Failure 429 {object} map[string]string
// @Security BearerAuth
// @Router /documents/{document_id}/sign [post]
func (h *WorkflowHandler) Sign(c *gin.Context) {
	var req SignRequest
	if err := BindNestedOrFlat(c, "signature", &req); err != nil {
		badRequest(c, "reason and password are required")
		return
	}

	doc, sig, err := h.signatureService.Sign(c.Request.Context(), c.Param("document_id"), middleware.GetPrincipal(c), req.Reason, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"document": doc.ToResponse(), "signature": sig})
}

// @Summary Verify Signatures
// @Description Recomputes every signature hash of the document
// @Tags Signatures
// @Produce json
// @Param document_id path string true "Document ID"
// @Success 200 {object} services.VerificationReport
// @Security BearerAuth
// @Router /documents/{document_id}/signatures/verify [get]
func (h *WorkflowHandler) VerifySignatures(c *gin.Context) {
	report, err := h.signatureService.Verify(c.Request.Context(), c.Param("document_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// @Summary Signature Manifest
// @Description Downloads the signature manifest of a document as PDF
// @Tags Signatures
// @Produce application/pdf
// @Param document_id path string true "Document ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /documents/{document_id}/signature_manifest [get]
func (h *WorkflowHandler) SignatureManifest(c *gin.Context) {
	buf, name, err := h.reportService.SignatureManifestPDF(c.Request.Context(), c.Param("document_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
