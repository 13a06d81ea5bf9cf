package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/jung-kurt/gofpdf"
	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/sjperalta/pharmavault-api/internal/repository"
)

//go:embed templates/reports/*.html
var reportTemplates embed.FS

// ReportService renders compliance reports as PDF
type ReportService struct {
	docRepo repository.DocumentRepository
	audit   *AuditService
	now     func() time.Time
}

// NewReportService points go-wkhtmltopdf at wkhtmltopdfPath when set
func NewReportService(docRepo repository.DocumentRepository, audit *AuditService, wkhtmltopdfPath string) *ReportService {
	if wkhtmltopdfPath != "" {
		wkhtmltopdf.SetPath(wkhtmltopdfPath)
	}
	return &ReportService{docRepo: docRepo, audit: audit, now: time.Now}
}

type auditReportRow struct {
	Timestamp    string
	UserName     string
	Action       string
	Priority     string
	ResourceType string
	ResourceID   string
	IPAddress    string
}

// AuditReportPDF renders the filtered audit trail through wkhtmltopdf
func (s *ReportService) AuditReportPDF(ctx context.Context, actor models.Principal, filter AuditFilter) (*bytes.Buffer, string, error) {
	logs, err := s.audit.All(ctx, actor, filter)
	if err != nil {
		return nil, "", err
	}

	rows := make([]auditReportRow, len(logs))
	counts := make(map[string]int)
	for i := range logs {
		rows[i] = auditReportRow{
			Timestamp:    logs[i].Timestamp.UTC().Format("2006-01-02 15:04:05 MST"),
			UserName:     logs[i].UserName,
			Action:       logs[i].Action,
			Priority:     logs[i].Priority(),
			ResourceType: logs[i].ResourceType,
			ResourceID:   logs[i].ResourceID,
			IPAddress:    logs[i].IPAddress,
		}
		counts[logs[i].Priority()]++
	}

	now := s.now().UTC()
	data := map[string]any{
		"GeneratedAt": now.Format("2006-01-02 15:04 MST"),
		"GeneratedBy": actor.Name,
		"From":        formatBound(filter.From),
		"To":          formatBound(filter.To),
		"ResourceID":  filter.ResourceID,
		"Action":      filter.Action,
		"Total":       len(rows),
		"Critical":    counts["critical"],
		"High":        counts["high"],
		"Rows":        rows,
	}

	buf, err := s.generatePDF("audit_report.html", data)
	if err != nil {
		return nil, "", err
	}
	return buf, fmt.Sprintf("audit_report_%s.pdf", now.Format("2006-01-02")), nil
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}

// generatePDF renders an embedded HTML template and converts it with wkhtmltopdf
func (s *ReportService) generatePDF(templateName string, data any) (*bytes.Buffer, error) {
	tmpl, err := template.ParseFS(reportTemplates, "templates/reports/"+templateName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", templateName, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, newError(ErrDependencyUnavailable, "pdf renderer unavailable: %v", err)
	}

	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationLandscape)
	pdfg.Grayscale.Set(false)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader(buf.Bytes()))
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create pdf: %w", err)
	}

	return pdfg.Buffer(), nil
}

// SignatureManifestPDF lists a document's signatures with their verification result
func (s *ReportService) SignatureManifestPDF(ctx context.Context, documentID string) (*bytes.Buffer, string, error) {
	doc, err := s.docRepo.FindByID(ctx, documentID)
	if err != nil {
		return nil, "", translate(err, "document")
	}
	report := verifyDocument(doc)

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Signature manifest", false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Electronic Signature Manifest")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 10)
	for _, kv := range [][2]string{
		{"Document", doc.Title},
		{"Document ID", doc.ID},
		{"Type / Category", doc.DocumentType + " / " + doc.Category},
		{"Version", fmt.Sprintf("%d", doc.Version)},
		{"Status", doc.Status},
		{"Generated", s.now().UTC().Format(time.RFC3339)},
	} {
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(40, 6, kv[0]+":")
		pdf.SetFont("Arial", "", 10)
		pdf.Cell(0, 6, tr(kv[1]))
		pdf.Ln(6)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Approval workflow")
	pdf.Ln(9)
	pdf.SetFont("Arial", "", 9)
	for i, step := range doc.ApprovalWorkflow {
		line := fmt.Sprintf("%d. %s (%s) - %s", i+1, step.StepName, step.AssigneeRole, step.Status)
		if step.DecidedAt != nil {
			line += fmt.Sprintf(" by %s on %s", step.DecidedByName, step.DecidedAt.UTC().Format("2006-01-02 15:04 MST"))
		}
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Signatures (%d)", len(doc.Signatures)))
	pdf.Ln(9)
	if len(doc.Signatures) == 0 {
		pdf.SetFont("Arial", "I", 9)
		pdf.Cell(0, 5, "No signatures recorded.")
		pdf.Ln(5)
	}
	for i, sig := range doc.Signatures {
		status := "VALID"
		if !report.Signatures[i].Valid {
			status = "INVALID"
		}
		pdf.SetFont("Arial", "B", 9)
		pdf.Cell(0, 5, tr(fmt.Sprintf("%d. %s (%s) - %s", i+1, sig.SignerName, sig.SignerRole, status)))
		pdf.Ln(5)
		pdf.SetFont("Arial", "", 8)
		pdf.MultiCell(0, 4, tr(strings.Join([]string{
			"Reason: " + sig.Reason,
			"Signed at: " + sig.SignedAt.UTC().Format(time.RFC3339Nano),
			fmt.Sprintf("Document version: %d", sig.DocumentVersion),
			"SHA-256: " + sig.SignatureHash,
		}, "\n")), "", "L", false)
		pdf.Ln(2)
	}

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, "", fmt.Errorf("failed to render manifest: %w", err)
	}
	return buf, fmt.Sprintf("signature_manifest_%s_v%d.pdf", doc.ID, doc.Version), nil
}
