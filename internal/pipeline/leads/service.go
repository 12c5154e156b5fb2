// Package leads owns lead records and the contact upsert behind them.
// Contact and lead writes are performed in a single transaction by the
// repository.
package leads

import (
	"context"
	"strings"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/internal/pipeline/repository"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/phone"
	"realty_crm_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Repository is the data access the lead service needs.
type Repository interface {
	repository.LeadReader
	repository.LeadWriter
	GetStage(ctx context.Context, tenantID, stageID uuid.UUID) (domain.Stage, error)
}

// OptionalAssignee distinguishes "not submitted" from an explicit value.
// Set with a nil Value clears the assignee.
type OptionalAssignee struct {
	Set   bool
	Value *uuid.UUID
}

// Input carries the submitted contact and lead fields. Required fields are
// validated by the caller.
type Input struct {
	Name     string
	Phone    string
	Email    *string
	Tags     []string
	StageID  *uuid.UUID
	Assignee OptionalAssignee
	Notes    string
	Value    float64
	Source   string
}

// Service implements the lead store.
type Service struct {
	repo        Repository
	eventBus    events.Bus
	log         *logger.Logger
	phoneRegion string
}

// New creates a lead service. phoneRegion is the region used to read
// national phone numbers; empty means phone.DefaultRegion.
func New(repo Repository, eventBus events.Bus, log *logger.Logger, phoneRegion string) *Service {
	return &Service{repo: repo, eventBus: eventBus, log: log, phoneRegion: phoneRegion}
}

// GetLead returns one lead with its contact and assignee denormalised.
func (s *Service) GetLead(ctx context.Context, actor domain.Actor, leadID uuid.UUID) (domain.PipelineLead, error) {
	details, err := s.repo.GetLeadDetails(ctx, actor.TenantID, leadID)
	if err != nil {
		return domain.PipelineLead{}, err
	}
	return domain.ToPipelineLead(details), nil
}

// CreateLead upserts the contact by (tenant, phone) and inserts a lead that
// references it. Without an explicit assignee the lead goes to the actor.
func (s *Service) CreateLead(ctx context.Context, actor domain.Actor, in Input) (domain.PipelineLead, error) {
	if err := s.checkStage(ctx, actor.TenantID, in.StageID); err != nil {
		return domain.PipelineLead{}, err
	}

	assignee := domain.CloneID(&actor.UserID)
	if in.Assignee.Set {
		assignee = domain.CloneID(in.Assignee.Value)
	}

	lead, _, err := s.repo.CreateLeadWithContact(ctx, repository.CreateLeadParams{
		TenantID:       actor.TenantID,
		Contact:        s.contactFields(in),
		StageID:        in.StageID,
		AssignedUserID: assignee,
		Notes:          sanitize.Text(in.Notes),
		Value:          in.Value,
		Source:         sanitize.Text(in.Source),
	})
	if err != nil {
		return domain.PipelineLead{}, err
	}

	s.changed(ctx, actor, lead.ID, events.ActionCreated)
	return s.GetLead(ctx, actor, lead.ID)
}

// UpdateLead rewrites the lead's contact and lead fields together. An
// assignee that was not submitted keeps its current value.
func (s *Service) UpdateLead(ctx context.Context, actor domain.Actor, leadID uuid.UUID, in Input) (domain.PipelineLead, error) {
	current, err := s.repo.GetLead(ctx, actor.TenantID, leadID)
	if err != nil {
		return domain.PipelineLead{}, err
	}
	if err := s.checkStage(ctx, actor.TenantID, in.StageID); err != nil {
		return domain.PipelineLead{}, err
	}

	assignee := current.AssignedUserID
	if in.Assignee.Set {
		assignee = domain.CloneID(in.Assignee.Value)
	}

	if _, _, err := s.repo.UpdateLeadWithContact(ctx, repository.UpdateLeadParams{
		TenantID:       actor.TenantID,
		LeadID:         leadID,
		Contact:        s.contactFields(in),
		StageID:        in.StageID,
		AssignedUserID: assignee,
		Notes:          sanitize.Text(in.Notes),
		Value:          in.Value,
		Source:         sanitize.Text(in.Source),
	}); err != nil {
		return domain.PipelineLead{}, err
	}

	s.changed(ctx, actor, leadID, events.ActionUpdated)
	return s.GetLead(ctx, actor, leadID)
}

// ReassignStage moves a lead to stageID, or to no stage when stageID is nil.
// Moving a lead to the stage it is already in changes nothing.
func (s *Service) ReassignStage(ctx context.Context, actor domain.Actor, leadID uuid.UUID, stageID *uuid.UUID) error {
	if err := s.checkStage(ctx, actor.TenantID, stageID); err != nil {
		return err
	}
	changed, err := s.repo.UpdateLeadStage(ctx, actor.TenantID, leadID, stageID)
	if err != nil {
		return err
	}
	if changed {
		s.changed(ctx, actor, leadID, events.ActionReassigned)
	}
	return nil
}

// DeleteLead removes the lead. The contact is kept.
func (s *Service) DeleteLead(ctx context.Context, actor domain.Actor, leadID uuid.UUID) error {
	if err := s.repo.DeleteLead(ctx, actor.TenantID, leadID); err != nil {
		return err
	}
	s.changed(ctx, actor, leadID, events.ActionDeleted)
	return nil
}

func (s *Service) checkStage(ctx context.Context, tenantID uuid.UUID, stageID *uuid.UUID) error {
	if stageID == nil {
		return nil
	}
	_, err := s.repo.GetStage(ctx, tenantID, *stageID)
	return err
}

func (s *Service) contactFields(in Input) repository.ContactFields {
	return repository.ContactFields{
		Name:  sanitize.Text(in.Name),
		Phone: phone.NormalizeE164In(in.Phone, s.phoneRegion),
		Email: normalizeEmail(in.Email),
		Tags:  sanitize.Tags(in.Tags),
	}
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*email))
	if v == "" {
		return nil
	}
	return &v
}

func (s *Service) changed(ctx context.Context, actor domain.Actor, leadID uuid.UUID, action string) {
	if s.log != nil {
		s.log.WithContext(ctx).PipelineMutation(action, events.EntityLead, actor.TenantID, leadID)
	}
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.PipelineChanged{
			BaseEvent: events.NewBaseEvent(),
			TenantID:  actor.TenantID,
			Entity:    events.EntityLead,
			EntityID:  leadID,
			Action:    action,
			ActorID:   domain.CloneID(&actor.UserID),
		})
	}
}
