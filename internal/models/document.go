package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document represents a regulated document and its embedded approval workflow
type Document struct {
	ID               string                          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Title            string                          `gorm:"size:255;not null" json:"title"`
	Description      string                          `gorm:"type:text" json:"description"`
	DocumentType     string                          `gorm:"size:32;not null;index" json:"document_type"`
	Category         string                          `gorm:"size:100;not null" json:"category"`
	Version          int                             `gorm:"not null;default:1" json:"version"`
	Status           string                          `gorm:"size:20;not null;default:Draft;index" json:"status"`
	Tags             datatypes.JSONSlice[string]     `json:"tags"`
	FilePath         string                          `gorm:"not null" json:"-"`
	FileName         string                          `gorm:"not null" json:"file_name"`
	FileSize         int64                           `json:"file_size"`
	MimeType         string                          `gorm:"size:100" json:"mime_type"`
	PreviewPath      *string                         `json:"-"`
	OwnerID          uint                            `gorm:"not null;index" json:"owner_id"`
	OwnerName        string                          `json:"owner_name"`
	Metadata         datatypes.JSONMap               `json:"metadata"`
	ApprovalWorkflow datatypes.JSONSlice[WorkflowStep] `json:"approval_workflow"`
	Signatures       datatypes.JSONSlice[Signature]  `json:"signatures"`
	ArchivedAt       *time.Time                      `json:"archived_at"`
	CreatedAt        time.Time                       `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time                       `json:"updated_at"`
}

// TableName specifies the table name for Document
func (Document) TableName() string {
	return "documents"
}

// Document status constants
const (
	DocumentStatusDraft       = "Draft"
	DocumentStatusUnderReview = "UnderReview"
	DocumentStatusApproved    = "Approved"
	DocumentStatusRejected    = "Rejected"
	DocumentStatusArchived    = "Archived"
)

// Document type constants
const (
	DocumentTypeCTD            = "CTD"
	DocumentTypeECTD           = "eCTD"
	DocumentTypeSOP            = "SOP"
	DocumentTypeProtocol       = "Protocol"
	DocumentTypeClinicalReport = "ClinicalReport"
	DocumentTypeManufacturing  = "Manufacturing"
	DocumentTypeRegulatory     = "Regulatory"
)

// DocumentTypes lists the declared document types in display order
func DocumentTypes() []string {
	return []string{
		DocumentTypeCTD,
		DocumentTypeECTD,
		DocumentTypeSOP,
		DocumentTypeProtocol,
		DocumentTypeClinicalReport,
		DocumentTypeManufacturing,
		DocumentTypeRegulatory,
	}
}

// IsDocumentStatus reports whether s is a known document status
func IsDocumentStatus(s string) bool {
	switch s {
	case DocumentStatusDraft, DocumentStatusUnderReview, DocumentStatusApproved, DocumentStatusRejected, DocumentStatusArchived:
		return true
	}
	return false
}

// WorkflowStep is one unit of required review owned by a role
type WorkflowStep struct {
	StepName      string     `json:"step_name"`
	AssigneeRole  string     `json:"assignee_role"`
	Status        string     `json:"status"`
	DecidedByID   *uint      `json:"decided_by_id,omitempty"`
	DecidedByName string     `json:"decided_by_name,omitempty"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
	Comments      string     `json:"comments,omitempty"`
}

// Workflow step status constants
const (
	StepStatusPending    = "Pending"
	StepStatusInProgress = "InProgress"
	StepStatusCompleted  = "Completed"
	StepStatusRejected   = "Rejected"
)

// IsOpen reports whether the step still awaits a decision
func (s WorkflowStep) IsOpen() bool {
	return s.Status == StepStatusPending || s.Status == StepStatusInProgress
}

// Signature is an append-only electronic signature bound to a document version
type Signature struct {
	SignerID        uint      `json:"signer_id"`
	SignerName      string    `json:"signer_name"`
	SignerRole      string    `json:"signer_role"`
	Reason          string    `json:"reason"`
	SignedAt        time.Time `json:"signed_at"`
	DocumentVersion int       `json:"document_version"`
	SignatureHash   string    `json:"signature_hash"`
	Location        string    `json:"location"`
}

// SignatureLocationDigital is recorded for signatures captured through the API
const SignatureLocationDigital = "Digital"

// IsTerminal reports whether the workflow no longer accepts approve/reject decisions
func (d *Document) IsTerminal() bool {
	return d.Status == DocumentStatusApproved ||
		d.Status == DocumentStatusRejected ||
		d.Status == DocumentStatusArchived
}

// MaySign returns true if the document accepts additional signatures
func (d *Document) MaySign() bool {
	return d.Status == DocumentStatusApproved
}

// MayArchive returns true if the document can be archived
func (d *Document) MayArchive() bool {
	return d.Status == DocumentStatusApproved || d.Status == DocumentStatusRejected
}

// MayRevise returns true if a new version can be uploaded
func (d *Document) MayRevise() bool {
	return d.Status == DocumentStatusRejected
}

// Steps returns the workflow as a plain slice
func (d *Document) Steps() []WorkflowStep {
	return []WorkflowStep(d.ApprovalWorkflow)
}

// DocumentResponse is the JSON response format for documents
type DocumentResponse struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	DocumentType     string         `json:"document_type"`
	Category         string         `json:"category"`
	Version          int            `json:"version"`
	Status           string         `json:"status"`
	Tags             []string       `json:"tags"`
	FileName         string         `json:"file_name"`
	FileSize         int64          `json:"file_size"`
	MimeType         string         `json:"mime_type"`
	HasPreview       bool           `json:"has_preview"`
	OwnerID          uint           `json:"owner_id"`
	OwnerName        string         `json:"owner_name"`
	Metadata         map[string]any `json:"metadata"`
	ApprovalWorkflow []WorkflowStep `json:"approval_workflow"`
	CurrentStep      *int           `json:"current_step"`
	Signatures       []Signature    `json:"signatures"`
	ArchivedAt       *time.Time     `json:"archived_at"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// ToResponse converts Document to DocumentResponse
func (d *Document) ToResponse() DocumentResponse {
	resp := DocumentResponse{
		ID:               d.ID,
		Title:            d.Title,
		Description:      d.Description,
		DocumentType:     d.DocumentType,
		Category:         d.Category,
		Version:          d.Version,
		Status:           d.Status,
		Tags:             []string(d.Tags),
		FileName:         d.FileName,
		FileSize:         d.FileSize,
		MimeType:         d.MimeType,
		HasPreview:       d.PreviewPath != nil,
		OwnerID:          d.OwnerID,
		OwnerName:        d.OwnerName,
		Metadata:         map[string]any(d.Metadata),
		ApprovalWorkflow: d.Steps(),
		Signatures:       []Signature(d.Signatures),
		ArchivedAt:       d.ArchivedAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if resp.ApprovalWorkflow == nil {
		resp.ApprovalWorkflow = []WorkflowStep{}
	}
	if resp.Signatures == nil {
		resp.Signatures = []Signature{}
	}
	if d.Status == DocumentStatusDraft || d.Status == DocumentStatusUnderReview {
		for i, step := range d.ApprovalWorkflow {
			if step.IsOpen() {
				idx := i
				resp.CurrentStep = &idx
				break
			}
		}
	}
	return resp
}
