// Package workflow holds the approval policy: which roles review a document
// type, in which order, and how step outcomes fold into a document status.
package workflow

import (
	"github.com/sjperalta/pharmavault-api/internal/models"
)

// StepTemplate is one entry of an approval policy
type StepTemplate struct {
	StepName     string `json:"step_name"`
	AssigneeRole string `json:"assignee_role"`
}

var regulatoryTemplate = []StepTemplate{
	{StepName: "Quality Review", AssigneeRole: models.RoleQualityManager},
	{StepName: "Regulatory Review", AssigneeRole: models.RoleRegulatoryAffairs},
	{StepName: "Final Approval", AssigneeRole: models.RoleAdmin},
}

var defaultTemplate = []StepTemplate{
	{StepName: "Admin Review", AssigneeRole: models.RoleAdmin},
}

// departmentRoles may own the technical review of an SOP or protocol
var departmentRoles = map[string]bool{
	models.RoleQualityManager:    true,
	models.RoleRegulatoryAffairs: true,
	models.RoleClinicalResearch:  true,
	models.RoleManufacturing:     true,
}

var categories = map[string][]string{
	models.DocumentTypeCTD:            {"Module 1", "Module 2", "Module 3", "Module 4", "Module 5"},
	models.DocumentTypeECTD:           {"Administrative", "Summaries", "Quality", "Nonclinical", "Clinical"},
	models.DocumentTypeSOP:            {"Quality Control", "Manufacturing", "Regulatory", "Clinical", "General"},
	models.DocumentTypeProtocol:       {"Clinical Trial", "Validation", "Cleaning", "Analytical"},
	models.DocumentTypeClinicalReport: {"Study Report", "Safety Report", "Efficacy Report", "Statistical Report"},
	models.DocumentTypeManufacturing:  {"Batch Records", "Specifications", "Validation", "Change Control"},
	models.DocumentTypeRegulatory:     {"Submissions", "Correspondence", "Approvals", "Inspections"},
}

// Resolve returns the ordered review steps for a document type. ownerRole
// picks the technical reviewer for SOPs and protocols; other roles fall back
// to Manufacturing. Unknown types get the single-step admin review.
func Resolve(documentType, ownerRole string) []StepTemplate {
	switch documentType {
	case models.DocumentTypeCTD, models.DocumentTypeECTD, models.DocumentTypeRegulatory:
		return clone(regulatoryTemplate)
	case models.DocumentTypeSOP, models.DocumentTypeProtocol:
		reviewer := models.RoleManufacturing
		if departmentRoles[ownerRole] {
			reviewer = ownerRole
		}
		return []StepTemplate{
			{StepName: "Technical Review", AssigneeRole: reviewer},
			{StepName: "Management Approval", AssigneeRole: models.RoleAdmin},
		}
	default:
		return clone(defaultTemplate)
	}
}

// NewSteps materialises a template as a fresh workflow with every step Pending
func NewSteps(documentType, ownerRole string) []models.WorkflowStep {
	tmpl := Resolve(documentType, ownerRole)
	steps := make([]models.WorkflowStep, len(tmpl))
	for i, t := range tmpl {
		steps[i] = models.WorkflowStep{
			StepName:     t.StepName,
			AssigneeRole: t.AssigneeRole,
			Status:       models.StepStatusPending,
		}
	}
	return steps
}

// IsKnownType reports whether documentType has a declared category table
func IsKnownType(documentType string) bool {
	_, ok := categories[documentType]
	return ok
}

// IsValidCategory reports whether category belongs to documentType
func IsValidCategory(documentType, category string) bool {
	for _, c := range categories[documentType] {
		if c == category {
			return true
		}
	}
	return false
}

// TypeInfo describes a document type for clients building upload forms
type TypeInfo struct {
	Type       string         `json:"type"`
	Categories []string       `json:"categories"`
	Workflow   []StepTemplate `json:"workflow"`
}

// Catalog lists every declared document type with its categories and default workflow
func Catalog() []TypeInfo {
	types := models.DocumentTypes()
	out := make([]TypeInfo, 0, len(types))
	for _, t := range types {
		out = append(out, TypeInfo{
			Type:       t,
			Categories: append([]string(nil), categories[t]...),
			Workflow:   Resolve(t, ""),
		})
	}
	return out
}

func clone(in []StepTemplate) []StepTemplate {
	return append([]StepTemplate(nil), in...)
}
