// Package repository provides data access for pipeline stages, contacts and
// leads. Errors returned by this package are *apperr.Error values.
package repository

import (
	"context"

	"realty_crm_backend/internal/pipeline/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces
// =====================================

// StageReader provides read-only access to stages.
type StageReader interface {
	ListStages(ctx context.Context, tenantID uuid.UUID) ([]domain.Stage, error)
	GetStage(ctx context.Context, tenantID, stageID uuid.UUID) (domain.Stage, error)
	ListStageNames(ctx context.Context, tenantID uuid.UUID) ([]string, error)
}

// StageWriter provides stage mutations.
type StageWriter interface {
	CreateStage(ctx context.Context, tenantID uuid.UUID, name string) (domain.Stage, error)
	RenameStage(ctx context.Context, tenantID, stageID uuid.UUID, name string) (domain.Stage, error)
	// DeleteStage removes the stage and unassigns its leads. Deleting the
	// tenant's last stage fails with a conflict; the count and the delete are
	// one atomic step.
	DeleteStage(ctx context.Context, tenantID, stageID uuid.UUID) error
	ReorderStages(ctx context.Context, tenantID uuid.UUID, orderedIDs []uuid.UUID) error
	// EnsureDefaultStage creates a stage named name with order index 0 when the
	// tenant has none. The bool reports whether a stage was created.
	EnsureDefaultStage(ctx context.Context, tenantID uuid.UUID, name string) (domain.Stage, bool, error)
}

// TenantReader finds tenants that still need provisioning.
type TenantReader interface {
	// ListUnprovisionedTenants returns tenants that have users but no stages.
	ListUnprovisionedTenants(ctx context.Context) ([]uuid.UUID, error)
}

// LeadReader provides read-only access to leads.
type LeadReader interface {
	GetLead(ctx context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error)
	GetLeadDetails(ctx context.Context, tenantID, leadID uuid.UUID) (domain.LeadDetails, error)
	ListLeadDetails(ctx context.Context, tenantID uuid.UUID) ([]domain.LeadDetails, error)
}

// LeadWriter provides lead mutations. Writes touching both the contact and
// the lead row are atomic.
type LeadWriter interface {
	CreateLeadWithContact(ctx context.Context, params CreateLeadParams) (domain.Lead, domain.Contact, error)
	UpdateLeadWithContact(ctx context.Context, params UpdateLeadParams) (domain.Lead, domain.Contact, error)
	// UpdateLeadStage reports false when the lead already had stageID.
	UpdateLeadStage(ctx context.Context, tenantID, leadID uuid.UUID, stageID *uuid.UUID) (bool, error)
	DeleteLead(ctx context.Context, tenantID, leadID uuid.UUID) error
}

// ContactFields are the submitted contact attributes. Phone is the upsert key.
type ContactFields struct {
	Name  string
	Phone string
	Email *string
	Tags  []string
}

// CreateLeadParams describes a lead insert together with its contact upsert.
type CreateLeadParams struct {
	TenantID       uuid.UUID
	Contact        ContactFields
	StageID        *uuid.UUID
	AssignedUserID *uuid.UUID
	Notes          string
	Value          float64
	Source         string
}

// UpdateLeadParams replaces the editable fields of a lead and its contact.
type UpdateLeadParams struct {
	TenantID       uuid.UUID
	LeadID         uuid.UUID
	Contact        ContactFields
	StageID        *uuid.UUID
	AssignedUserID *uuid.UUID
	Notes          string
	Value          float64
	Source         string
}

const (
	msgStageNotFound   = "stage not found"
	msgLeadNotFound    = "lead not found"
	msgPhoneConflict   = "another contact already uses this phone number"
	msgMissingRelation = "referenced stage, contact or user does not exist"
	msgLastStage       = "a pipeline needs at least one stage"
	msgInvalidValue    = "value violates a column constraint"
)
