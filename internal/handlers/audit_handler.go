package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/pharmavault-api/internal/middleware"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AuditHandler struct {
	auditService  *services.AuditService
	exportService *services.ExportService
	reportService *services.ReportService
}

func NewAuditHandler(auditService *services.AuditService, exportService *services.ExportService, reportService *services.ReportService) *AuditHandler {
	return &AuditHandler{auditService: auditService, exportService: exportService, reportService: reportService}
}

// auditFilter reads the shared audit query parameters
func auditFilter(c *gin.Context) (services.AuditFilter, error) {
	filter := services.AuditFilter{
		ResourceID: c.Query("resource_id"),
		Action:     c.Query("action"),
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return filter, fmt.Errorf("invalid user_id")
		}
		filter.UserID = uint(id)
	}

	var err error
	if filter.From, err = queryTime(c, "from"); err != nil {
		return filter, fmt.Errorf("invalid from: use RFC3339 or YYYY-MM-DD")
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		return filter, fmt.Errorf("invalid to: use RFC3339 or YYYY-MM-DD")
	}
	return filter, nil
}

// @Summary Audit Trail
// @Description Newest-first audit entries (Admin and QualityManager only)
// @Tags Audit
// @Produce json
// @Param resource_id query string false "Resource ID"
// @Param action query string false "Action"
// @Param user_id query int false "User ID"
// @Param from query string false "From (RFC3339)"
// @Param to query string false "To (RFC3339)"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(50)
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Security BearerAuth
// @Router /audit [get]
func (h *AuditHandler) Index(c *gin.Context) {
	filter, err := auditFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	filter.Page, filter.PerPage = pagination(c, 50)

	logs, total, err := h.auditService.Query(c.Request.Context(), middleware.GetPrincipal(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.AuditLogResponse, 0, len(logs))
	for i := range logs {
		responses = append(responses, logs[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": responses, "pagination": paginationBody(filter.Page, filter.PerPage, total)})
}

// @Summary Export Audit Trail
// @Description Exports the filtered audit trail as CSV or XLSX
// @Tags Audit
// @Produce text/csv
// @Param format query string false "csv or xlsx" default(csv)
// @Success 200 {file} file
// @Security BearerAuth
// @Router /audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	filter, err := auditFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	format := c.DefaultQuery("format", services.ExportFormatCSV)

	data, name, err := h.exportService.ExportAudit(c.Request.Context(), middleware.GetPrincipal(c), filter, format)
	if err != nil {
		respondError(c, err)
		return
	}

	ct := "text/csv"
	if format == services.ExportFormatXLSX {
		ct = xlsxContentType
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, ct, data)
}

// @Summary Audit Report
// @Description Renders the filtered audit trail as a PDF report
// @Tags Audit
// @Produce application/pdf
// @Success 200 {file} file
// @Failure 503 {object} map[string]string
// @Security BearerAuth
// @Router /audit/report [get]
func (h *AuditHandler) Report(c *gin.Context) {
	filter, err := auditFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	buf, name, err := h.reportService.AuditReportPDF(c.Request.Context(), middleware.GetPrincipal(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
