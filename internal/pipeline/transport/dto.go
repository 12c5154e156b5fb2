package transport

import (
	"time"

	"realty_crm_backend/internal/pipeline/domain"

	"github.com/google/uuid"
)

// Request DTOs
type StageNameRequest struct {
	Name string `json:"name" validate:"notblank,max=100"`
}

type ReorderStagesRequest struct {
	StageIDs []uuid.UUID `json:"stageIds" validate:"required,min=1,dive,required"`
}

type LeadRequest struct {
	Name       string       `json:"name" validate:"notblank,max=200"`
	Phone      string       `json:"phone" validate:"notblank,min=5,max=30"`
	Email      string       `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Tags       []string     `json:"tags,omitempty" validate:"max=30,dive,max=50"`
	StageID    *uuid.UUID   `json:"stageId,omitempty"`
	AssigneeID OptionalUUID `json:"assigneeId,omitempty" validate:"-"`
	Notes      string       `json:"notes,omitempty" validate:"max=5000"`
	Value      float64      `json:"value" validate:"gte=0"`
	Interest   string       `json:"interest,omitempty" validate:"max=200"`
}

type ReassignStageRequest struct {
	StageID OptionalUUID `json:"stageId" validate:"-"`
}

// Response DTOs
type StageResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	OrderIndex int       `json:"orderIndex"`
	CreatedAt  time.Time `json:"createdAt"`
}

type StageListResponse struct {
	Items []StageResponse `json:"items"`
}

type StageMutationResponse struct {
	Message string        `json:"message"`
	Stage   StageResponse `json:"stage"`
}

type LeadMutationResponse struct {
	Message string              `json:"message"`
	Lead    domain.PipelineLead `json:"lead"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ProvisionResponse struct {
	Message  string         `json:"message"`
	Queued   bool           `json:"queued"`
	Created  bool           `json:"created"`
	Stage    *StageResponse `json:"stage,omitempty"`
	TenantID uuid.UUID      `json:"tenantId"`
}

// ToStageResponse maps a stage entity.
func ToStageResponse(s domain.Stage) StageResponse {
	return StageResponse{ID: s.ID, Name: s.Name, OrderIndex: s.OrderIndex, CreatedAt: s.CreatedAt}
}

// ToStageListResponse maps a stage list; never nil.
func ToStageListResponse(stages []domain.Stage) StageListResponse {
	items := make([]StageResponse, 0, len(stages))
	for _, s := range stages {
		items = append(items, ToStageResponse(s))
	}
	return StageListResponse{Items: items}
}
