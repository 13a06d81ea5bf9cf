package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/xuri/excelize/v2"
)

// Export formats
const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
)

var auditExportHeader = []string{
	"ID", "Timestamp", "User ID", "User", "Action", "Priority",
	"Resource Type", "Resource ID", "Details", "IP Address", "User Agent",
}

// ExportService renders the audit trail as spreadsheets
type ExportService struct {
	audit *AuditService
	now   func() time.Time
}

func NewExportService(audit *AuditService) *ExportService {
	return &ExportService{audit: audit, now: time.Now}
}

// ExportAudit returns the matching trail in the requested format plus a file name
func (s *ExportService) ExportAudit(ctx context.Context, actor models.Principal, filter AuditFilter, format string) ([]byte, string, error) {
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatXLSX {
		return nil, "", newError(ErrInvalidInput, "unsupported export format %q", format)
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, "", newError(ErrInvalidInput, "from must not be after to")
	}

	logs, err := s.audit.All(ctx, actor, filter)
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("audit_trail_%s.%s", s.now().Format("2006-01-02"), format)
	var data []byte
	if format == ExportFormatXLSX {
		data, err = auditXLSX(logs)
	} else {
		data, err = auditCSV(logs)
	}
	if err != nil {
		return nil, "", err
	}
	return data, filename, nil
}

func auditRow(l models.AuditLog) []string {
	details, _ := json.Marshal(l.Details)
	return []string{
		strconv.FormatUint(uint64(l.ID), 10),
		l.Timestamp.UTC().Format(time.RFC3339Nano),
		strconv.FormatUint(uint64(l.UserID), 10),
		l.UserName,
		l.Action,
		l.Priority(),
		l.ResourceType,
		l.ResourceID,
		string(details),
		l.IPAddress,
		l.UserAgent,
	}
}

func auditCSV(logs []models.AuditLog) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	if err := writer.Write(auditExportHeader); err != nil {
		return nil, err
	}
	for _, l := range logs {
		if err := writer.Write(auditRow(l)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func auditXLSX(logs []models.AuditLog) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Audit Trail"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	for i, h := range auditExportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(auditExportHeader), 1)
	_ = f.SetCellStyle(sheet, "A1", last, headerStyle)

	for r, l := range logs {
		for c, v := range auditRow(l) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
