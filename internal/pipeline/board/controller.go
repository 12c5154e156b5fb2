package board

import (
	"context"
	"errors"
	"sync"

	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

var (
	// ErrDragInProgress is returned when a gesture starts while another one
	// is still dragging or resolving.
	ErrDragInProgress = errors.New("a drag is already in progress")
	// ErrNotDragging is returned by Drop and Cancel outside a gesture.
	ErrNotDragging = errors.New("no drag in progress")
	// ErrUnknownLead is returned when a lead is not on the local board.
	ErrUnknownLead = errors.New("lead is not on the board")
	// ErrUnknownStage is returned when a column target is not on the board.
	ErrUnknownStage = errors.New("stage is not on the board")
)

// StageAssigner persists a lead's stage.
type StageAssigner interface {
	ReassignStage(ctx context.Context, actor domain.Actor, leadID uuid.UUID, stageID *uuid.UUID) error
}

// Fetcher loads the authoritative board.
type Fetcher interface {
	GetPipelineData(ctx context.Context, actor domain.Actor) (domain.PipelineData, error)
}

// Controller owns one actor's local board. Methods are safe for concurrent
// use; the lock is not held while persisting or refetching.
type Controller struct {
	actor    domain.Actor
	assigner StageAssigner
	fetcher  Fetcher
	log      *logger.Logger

	mu     sync.Mutex
	state  State
	stages []domain.PipelineStage
	leads  []domain.PipelineLead
}

// New creates an idle controller with an empty board; call Load or Reset.
func New(actor domain.Actor, assigner StageAssigner, fetcher Fetcher, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Discard()
	}
	return &Controller{
		actor:    actor,
		assigner: assigner,
		fetcher:  fetcher,
		log:      log.WithTenant(actor.TenantID),
		state:    Idle{},
	}
}

// Load replaces the local board with a fresh fetch.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if _, idle := c.state.(Idle); !idle {
		c.mu.Unlock()
		return ErrDragInProgress
	}
	c.mu.Unlock()

	data, err := c.fetcher.GetPipelineData(ctx, c.actor)
	if err != nil {
		return err
	}
	return c.Reset(data)
}

// Reset replaces the local board with data. It is refused mid-gesture.
func (c *Controller) Reset(data domain.PipelineData) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, idle := c.state.(Idle); !idle {
		return ErrDragInProgress
	}
	c.apply(data)
	return nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Leads returns a copy of the local lead list, including optimistic changes.
func (c *Controller) Leads() []domain.PipelineLead {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CloneLeads(c.leads)
}

// Stages returns the local stages with counts derived from the local leads.
func (c *Controller) Stages() []domain.PipelineStage {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := domain.CountLeads(c.leads)
	out := make([]domain.PipelineStage, len(c.stages))
	for i, s := range c.stages {
		s.LeadCount = counts[s.ID]
		out[i] = s
	}
	return out
}

// StartDrag picks up a lead: Idle -> Dragging.
func (c *Controller) StartDrag(leadID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, idle := c.state.(Idle); !idle {
		return ErrDragInProgress
	}
	idx := c.indexOf(leadID)
	if idx < 0 {
		return ErrUnknownLead
	}
	lead := domain.CloneLeads(c.leads[idx : idx+1])[0]
	c.state = Dragging{Lead: lead}
	return nil
}

// Cancel abandons the current drag: Dragging -> Idle.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.state.(Dragging); !ok {
		return ErrNotDragging
	}
	c.state = Idle{}
	return nil
}

// Drop ends the gesture over target.
//
// Dropping over nothing, or over the lead's current stage, returns to Idle
// without a persistence call. Otherwise the move is applied locally, then
// persisted. On success the board is refetched; a failed refetch keeps the
// optimistic board and is returned with OutcomeMoved. On a failed write the
// pre-drag board is restored and the error is returned with
// OutcomeRolledBack. The controller is Idle again when Drop returns.
func (c *Controller) Drop(ctx context.Context, target DropTarget) (Outcome, error) {
	c.mu.Lock()
	drag, ok := c.state.(Dragging)
	if !ok {
		c.mu.Unlock()
		return OutcomeCancelled, ErrNotDragging
	}

	stageID, err := c.resolveTarget(target)
	if _, none := target.(NoTarget); none || target == nil || err != nil {
		c.state = Idle{}
		c.mu.Unlock()
		return OutcomeCancelled, err
	}

	idx := c.indexOf(drag.Lead.ID)
	if idx < 0 {
		c.state = Idle{}
		c.mu.Unlock()
		return OutcomeCancelled, ErrUnknownLead
	}
	if domain.SameStage(c.leads[idx].Status, stageID) {
		c.state = Idle{}
		c.mu.Unlock()
		return OutcomeUnchanged, nil
	}

	resolving := Resolving{
		Lead:     drag.Lead,
		Target:   domain.CloneID(stageID),
		Snapshot: domain.CloneLeads(c.leads),
	}
	c.leads[idx].Status = domain.CloneID(stageID)
	c.state = resolving
	c.mu.Unlock()

	if err := c.assigner.ReassignStage(ctx, c.actor, resolving.Lead.ID, resolving.Target); err != nil {
		c.mu.Lock()
		c.leads = resolving.Snapshot
		c.state = Idle{}
		c.mu.Unlock()
		c.log.Warn("lead move rolled back", "lead_id", resolving.Lead.ID.String(), "error", err)
		return OutcomeRolledBack, err
	}

	data, fetchErr := c.fetcher.GetPipelineData(ctx, c.actor)

	c.mu.Lock()
	defer c.mu.Unlock()
	if fetchErr == nil {
		c.apply(data)
	} else {
		c.log.Warn("board refetch failed after move", "lead_id", resolving.Lead.ID.String(), "error", fetchErr)
	}
	c.state = Idle{}
	return OutcomeMoved, fetchErr
}

// resolveTarget returns the stage a drop lands in. Must be called with c.mu held.
func (c *Controller) resolveTarget(target DropTarget) (*uuid.UUID, error) {
	switch t := target.(type) {
	case nil, NoTarget:
		return nil, nil
	case ColumnTarget:
		if t.StageID != nil && !c.hasStage(*t.StageID) {
			return nil, ErrUnknownStage
		}
		return t.StageID, nil
	case CardTarget:
		idx := c.indexOf(t.LeadID)
		if idx < 0 {
			return nil, ErrUnknownLead
		}
		return c.leads[idx].Status, nil
	default:
		return nil, ErrUnknownStage
	}
}

func (c *Controller) apply(data domain.PipelineData) {
	c.stages = append([]domain.PipelineStage(nil), data.Stages...)
	c.leads = domain.CloneLeads(data.Leads)
}

func (c *Controller) indexOf(leadID uuid.UUID) int {
	for i, l := range c.leads {
		if l.ID == leadID {
			return i
		}
	}
	return -1
}

func (c *Controller) hasStage(stageID uuid.UUID) bool {
	for _, s := range c.stages {
		if s.ID == stageID {
			return true
		}
	}
	return false
}
