// Package stages owns the ordered list of pipeline stages of a tenant:
// provisioning, creation, renaming, duplication, reordering and deletion.
package stages

import (
	"context"
	"strings"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/internal/pipeline/repository"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// Repository is the data access the stage service needs.
type Repository interface {
	repository.StageReader
	repository.StageWriter
}

// Service implements the stage store.
type Service struct {
	repo        Repository
	eventBus    events.Bus
	log         *logger.Logger
	defaultName string
}

// New creates a stage service. A blank defaultName falls back to
// domain.DefaultStageName.
func New(repo Repository, eventBus events.Bus, log *logger.Logger, defaultName string) *Service {
	if strings.TrimSpace(defaultName) == "" {
		defaultName = domain.DefaultStageName
	}
	return &Service{repo: repo, eventBus: eventBus, log: log, defaultName: defaultName}
}

// ListStages returns the tenant's stages by ascending order index. It never
// writes; a tenant that was not provisioned gets an empty list.
func (s *Service) ListStages(ctx context.Context, actor domain.Actor) ([]domain.Stage, error) {
	return s.repo.ListStages(ctx, actor.TenantID)
}

// EnsureDefaultStage provisions the default stage for a tenant without
// stages. Safe to call repeatedly and concurrently; the stage is created at
// most once. The bool reports whether it was created by this call.
func (s *Service) EnsureDefaultStage(ctx context.Context, tenantID uuid.UUID) (domain.Stage, bool, error) {
	stage, created, err := s.repo.EnsureDefaultStage(ctx, tenantID, s.defaultName)
	if err != nil {
		return domain.Stage{}, false, err
	}
	if created {
		s.changed(ctx, nil, tenantID, stage.ID, events.ActionProvisioned)
	}
	return stage, created, nil
}

// CreateStage appends a stage after the current last one.
func (s *Service) CreateStage(ctx context.Context, actor domain.Actor, name string) (domain.Stage, error) {
	stage, err := s.repo.CreateStage(ctx, actor.TenantID, name)
	if err != nil {
		return domain.Stage{}, err
	}
	s.changed(ctx, &actor, actor.TenantID, stage.ID, events.ActionCreated)
	return stage, nil
}

// RenameStage changes the name only. Names are validated by the caller.
func (s *Service) RenameStage(ctx context.Context, actor domain.Actor, stageID uuid.UUID, name string) (domain.Stage, error) {
	stage, err := s.repo.RenameStage(ctx, actor.TenantID, stageID, name)
	if err != nil {
		return domain.Stage{}, err
	}
	s.changed(ctx, &actor, actor.TenantID, stage.ID, events.ActionRenamed)
	return stage, nil
}

// DeleteStage removes a stage. Its leads are kept and become unassigned.
// The last remaining stage of a tenant cannot be deleted.
func (s *Service) DeleteStage(ctx context.Context, actor domain.Actor, stageID uuid.UUID) error {
	if err := s.repo.DeleteStage(ctx, actor.TenantID, stageID); err != nil {
		return err
	}
	s.changed(ctx, &actor, actor.TenantID, stageID, events.ActionDeleted)
	return nil
}

// DuplicateStage creates "{base} (Copy N)" after the last stage, choosing the
// smallest N not already used. Leads are not copied.
func (s *Service) DuplicateStage(ctx context.Context, actor domain.Actor, stageID uuid.UUID) (domain.Stage, error) {
	source, err := s.repo.GetStage(ctx, actor.TenantID, stageID)
	if err != nil {
		return domain.Stage{}, err
	}
	names, err := s.repo.ListStageNames(ctx, actor.TenantID)
	if err != nil {
		return domain.Stage{}, err
	}

	stage, err := s.repo.CreateStage(ctx, actor.TenantID, domain.NextCopyName(source.Name, names))
	if err != nil {
		return domain.Stage{}, err
	}
	s.changed(ctx, &actor, actor.TenantID, stage.ID, events.ActionDuplicated)
	return stage, nil
}

// ReorderStages assigns order indexes 0..n-1 following orderedIDs, which must
// name every stage of the tenant exactly once.
func (s *Service) ReorderStages(ctx context.Context, actor domain.Actor, orderedIDs []uuid.UUID) ([]domain.Stage, error) {
	current, err := s.repo.ListStages(ctx, actor.TenantID)
	if err != nil {
		return nil, err
	}

	known := make(map[uuid.UUID]struct{}, len(current))
	for _, st := range current {
		known[st.ID] = struct{}{}
	}
	seen := make(map[uuid.UUID]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, ok := known[id]; !ok {
			return nil, apperr.NotFound("stage not found").WithDetails(map[string]interface{}{"stageId": id})
		}
		if _, dup := seen[id]; dup {
			return nil, apperr.Validation("stage listed more than once").WithDetails(map[string]interface{}{"stageId": id})
		}
		seen[id] = struct{}{}
	}
	if len(seen) != len(known) {
		return nil, apperr.Validation("order must include every stage of the pipeline")
	}

	if err := s.repo.ReorderStages(ctx, actor.TenantID, orderedIDs); err != nil {
		return nil, err
	}
	s.changed(ctx, &actor, actor.TenantID, actor.TenantID, events.ActionReordered)
	return s.repo.ListStages(ctx, actor.TenantID)
}

func (s *Service) changed(ctx context.Context, actor *domain.Actor, tenantID, stageID uuid.UUID, action string) {
	evt := events.PipelineChanged{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  tenantID,
		Entity:    events.EntityStage,
		EntityID:  stageID,
		Action:    action,
	}
	if actor != nil {
		evt.ActorID = &actor.UserID
	}
	if s.log != nil {
		s.log.WithContext(ctx).PipelineMutation(action, events.EntityStage, tenantID, stageID)
	}
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, evt)
	}
}
