// Package handler exposes the lead pipeline over HTTP.
package handler

import (
	"context"
	"net/http"

	"realty_crm_backend/internal/pipeline/leads"
	"realty_crm_backend/internal/pipeline/stages"
	"realty_crm_backend/internal/pipeline/transport"
	"realty_crm_backend/internal/pipeline/view"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/httpkit"
	"realty_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest       = "invalid request"
	msgValidationFailed     = "validation failed"
	msgConfirmationRequired = "confirmation required"
)

// ProvisionQueue hands tenant provisioning to the background worker.
type ProvisionQueue interface {
	EnqueueProvisionTenant(ctx context.Context, tenantID uuid.UUID) error
}

type Handler struct {
	stages *stages.Service
	leads  *leads.Service
	view   *view.Aggregator
	queue  ProvisionQueue
	val    *validator.Validator
}

// New creates the handler. queue may be nil, in which case provisioning runs
// inline.
func New(stageSvc *stages.Service, leadSvc *leads.Service, aggregator *view.Aggregator, queue ProvisionQueue, val *validator.Validator) *Handler {
	return &Handler{stages: stageSvc, leads: leadSvc, view: aggregator, queue: queue, val: val}
}

// RegisterRoutes mounts the board routes on rg (/pipeline).
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.GetPipeline)
	rg.GET("/export.csv", h.ExportCSV)

	rg.GET("/stages", h.ListStages)
	rg.POST("/stages", h.CreateStage)
	rg.PUT("/stages/order", h.ReorderStages)
	rg.PATCH("/stages/:id", h.RenameStage)
	rg.DELETE("/stages/:id", h.DeleteStage)
	rg.POST("/stages/:id/duplicate", h.DuplicateStage)

	rg.POST("/leads", h.CreateLead)
	rg.GET("/leads/:id", h.GetLead)
	rg.PUT("/leads/:id", h.UpdateLead)
	rg.PATCH("/leads/:id/stage", h.ReassignStage)
	rg.DELETE("/leads/:id", h.DeleteLead)
}

// RegisterAdminRoutes mounts admin-only routes on rg (/admin).
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/pipeline/provision", h.Provision)
}

func (h *Handler) GetPipeline(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	data, err := h.view.GetPipelineData(c.Request.Context(), actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, data)
}

func (h *Handler) ListStages(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	result, err := h.stages.ListStages(c.Request.Context(), actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToStageListResponse(result))
}

func (h *Handler) CreateStage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req transport.StageNameRequest
	if !h.bind(c, &req) {
		return
	}

	stage, err := h.stages.CreateStage(c.Request.Context(), actor, req.Name)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.StageMutationResponse{Message: "stage created", Stage: transport.ToStageResponse(stage)})
}

func (h *Handler) RenameStage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.StageNameRequest
	if !h.bind(c, &req) {
		return
	}

	stage, err := h.stages.RenameStage(c.Request.Context(), actor, id, req.Name)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.StageMutationResponse{Message: "stage renamed", Stage: transport.ToStageResponse(stage)})
}

func (h *Handler) DeleteStage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok || !requireConfirmation(c) {
		return
	}

	if httpkit.HandleError(c, h.stages.DeleteStage(c.Request.Context(), actor, id)) {
		return
	}
	httpkit.OK(c, transport.MessageResponse{Message: "stage deleted"})
}

func (h *Handler) DuplicateStage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	stage, err := h.stages.DuplicateStage(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.StageMutationResponse{Message: "stage duplicated", Stage: transport.ToStageResponse(stage)})
}

func (h *Handler) ReorderStages(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req transport.ReorderStagesRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.stages.ReorderStages(c.Request.Context(), actor, req.StageIDs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToStageListResponse(result))
}

func (h *Handler) CreateLead(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req transport.LeadRequest
	if !h.bind(c, &req) {
		return
	}

	lead, err := h.leads.CreateLead(c.Request.Context(), actor, toInput(req))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.LeadMutationResponse{Message: "lead created", Lead: lead})
}

func (h *Handler) GetLead(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := h.leads.GetLead(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, lead)
}

func (h *Handler) UpdateLead(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.LeadRequest
	if !h.bind(c, &req) {
		return
	}

	lead, err := h.leads.UpdateLead(c.Request.Context(), actor, id, toInput(req))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadMutationResponse{Message: "lead updated", Lead: lead})
}

func (h *Handler) ReassignStage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.ReassignStageRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.StageID.Set {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return
	}

	if httpkit.HandleError(c, h.leads.ReassignStage(c.Request.Context(), actor, id, req.StageID.Value)) {
		return
	}
	httpkit.OK(c, transport.MessageResponse{Message: "lead moved"})
}

func (h *Handler) DeleteLead(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := parseID(c)
	if !ok || !requireConfirmation(c) {
		return
	}

	if httpkit.HandleError(c, h.leads.DeleteLead(c.Request.Context(), actor, id)) {
		return
	}
	httpkit.OK(c, transport.MessageResponse{Message: "lead deleted"})
}

// Provision ensures the caller's tenant has its default stage. With a queue
// the work is handed to the worker and 202 is returned.
func (h *Handler) Provision(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	if h.queue != nil {
		if httpkit.HandleError(c, h.queue.EnqueueProvisionTenant(c.Request.Context(), actor.TenantID)) {
			return
		}
		httpkit.JSON(c, http.StatusAccepted, transport.ProvisionResponse{Message: "provisioning queued", Queued: true, TenantID: actor.TenantID})
		return
	}

	stage, created, err := h.stages.EnsureDefaultStage(c.Request.Context(), actor.TenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	resp := transport.ToStageResponse(stage)
	httpkit.OK(c, transport.ProvisionResponse{Message: "pipeline provisioned", Created: created, Stage: &resp, TenantID: actor.TenantID})
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed).WithDetails(validator.FieldErrors(err)))
		return false
	}
	return true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidRequest))
		return uuid.Nil, false
	}
	return id, true
}

func requireConfirmation(c *gin.Context) bool {
	if c.Query("confirm") != "true" {
		httpkit.HandleError(c, apperr.BadRequest(msgConfirmationRequired))
		return false
	}
	return true
}

func toInput(req transport.LeadRequest) leads.Input {
	in := leads.Input{
		Name:     req.Name,
		Phone:    req.Phone,
		Tags:     req.Tags,
		StageID:  req.StageID,
		Assignee: leads.OptionalAssignee{Set: req.AssigneeID.Set, Value: req.AssigneeID.Value},
		Notes:    req.Notes,
		Value:    req.Value,
		Source:   req.Interest,
	}
	if req.Email != "" {
		email := req.Email
		in.Email = &email
	}
	return in
}
