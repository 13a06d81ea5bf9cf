package workflow

import (
	"testing"

	"github.com/sjperalta/pharmavault-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_RegulatoryTypes(t *testing.T) {
	for _, docType := range []string{models.DocumentTypeCTD, models.DocumentTypeECTD, models.DocumentTypeRegulatory} {
		steps := Resolve(docType, models.RoleUser)
		require.Len(t, steps, 3, docType)
		assert.Equal(t, StepTemplate{"Quality Review", models.RoleQualityManager}, steps[0])
		assert.Equal(t, StepTemplate{"Regulatory Review", models.RoleRegulatoryAffairs}, steps[1])
		assert.Equal(t, StepTemplate{"Final Approval", models.RoleAdmin}, steps[2])
	}
}

func TestResolve_SOPUsesOwnerDepartment(t *testing.T) {
	steps := Resolve(models.DocumentTypeSOP, models.RoleClinicalResearch)
	require.Len(t, steps, 2)
	assert.Equal(t, "Technical Review", steps[0].StepName)
	assert.Equal(t, models.RoleClinicalResearch, steps[0].AssigneeRole)
	assert.Equal(t, StepTemplate{"Management Approval", models.RoleAdmin}, steps[1])
}

func TestResolve_ProtocolFallsBackToManufacturing(t *testing.T) {
	for _, owner := range []string{models.RoleUser, models.RoleAdmin, ""} {
		steps := Resolve(models.DocumentTypeProtocol, owner)
		require.Len(t, steps, 2)
		assert.Equal(t, models.RoleManufacturing, steps[0].AssigneeRole, owner)
	}
}

func TestResolve_DefaultTemplate(t *testing.T) {
	for _, docType := range []string{models.DocumentTypeClinicalReport, models.DocumentTypeManufacturing, "Brochure"} {
		steps := Resolve(docType, models.RoleUser)
		assert.Equal(t, []StepTemplate{{"Admin Review", models.RoleAdmin}}, steps, docType)
	}
}

func TestResolve_ReturnsIndependentCopies(t *testing.T) {
	a := Resolve(models.DocumentTypeCTD, "")
	a[0].AssigneeRole = "mutated"

	b := Resolve(models.DocumentTypeCTD, "")
	assert.Equal(t, models.RoleQualityManager, b[0].AssigneeRole)
}

func TestNewSteps_AllPending(t *testing.T) {
	steps := NewSteps(models.DocumentTypeECTD, "")
	require.Len(t, steps, 3)
	for _, s := range steps {
		assert.Equal(t, models.StepStatusPending, s.Status)
		assert.Nil(t, s.DecidedByID)
		assert.Nil(t, s.DecidedAt)
	}
}

func TestCategories(t *testing.T) {
	assert.True(t, IsKnownType(models.DocumentTypeCTD))
	assert.False(t, IsKnownType("Brochure"))

	assert.True(t, IsValidCategory(models.DocumentTypeCTD, "Module 3"))
	assert.False(t, IsValidCategory(models.DocumentTypeCTD, "Batch Records"))
	assert.True(t, IsValidCategory(models.DocumentTypeManufacturing, "Batch Records"))

	catalog := Catalog()
	require.Len(t, catalog, len(models.DocumentTypes()))
	assert.Equal(t, models.DocumentTypeCTD, catalog[0].Type)
	assert.Len(t, catalog[0].Workflow, 3)
}
