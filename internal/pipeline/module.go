// Package pipeline provides the lead pipeline bounded context module.
// This file defines the module that encapsulates setup and route registration.
package pipeline

import (
	"realty_crm_backend/internal/events"
	apphttp "realty_crm_backend/internal/http"
	"realty_crm_backend/internal/pipeline/handler"
	"realty_crm_backend/internal/pipeline/leads"
	"realty_crm_backend/internal/pipeline/repository"
	"realty_crm_backend/internal/pipeline/stages"
	"realty_crm_backend/internal/pipeline/view"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/validator"
)

// Store is everything the pipeline services read and write. Both
// *repository.Repository and *repository.Memory satisfy it.
type Store interface {
	repository.StageReader
	repository.StageWriter
	repository.LeadReader
	repository.LeadWriter
	repository.TenantReader
}

// Services groups the pipeline services for callers outside HTTP (worker, CLI).
type Services struct {
	Stages *stages.Service
	Leads  *leads.Service
	View   *view.Aggregator
}

// NewServices builds the pipeline services over store.
func NewServices(store Store, eventBus events.Bus, cfg config.PipelineConfig, log *logger.Logger) Services {
	return Services{
		Stages: stages.New(store, eventBus, log, cfg.GetDefaultStageName()),
		Leads:  leads.New(store, eventBus, log, cfg.GetPhoneDefaultRegion()),
		View:   view.New(store),
	}
}

// Module is the pipeline bounded context module implementing http.Module.
type Module struct {
	handler  *handler.Handler
	services Services
}

// NewModule creates the pipeline module. queue may be nil, in which case
// tenant provisioning requests run inline.
func NewModule(store Store, eventBus events.Bus, val *validator.Validator, cfg config.PipelineConfig, queue handler.ProvisionQueue, log *logger.Logger) *Module {
	services := NewServices(store, eventBus, cfg, log)
	return &Module{
		handler:  handler.New(services.Stages, services.Leads, services.View, queue, val),
		services: services,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "pipeline"
}

// Services returns the module's services.
func (m *Module) Services() Services {
	return m.services
}

// RegisterRoutes registers the module's routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/pipeline"))
	m.handler.RegisterAdminRoutes(ctx.Admin)
}

var _ apphttp.Module = (*Module)(nil)
