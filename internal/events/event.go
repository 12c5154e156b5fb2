// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"realty_crm_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Pipeline Domain Events
// =============================================================================

// PipelineChangedName is the event name subscribers register on.
const PipelineChangedName = "pipeline.changed"

// Entities carried by PipelineChanged.
const (
	EntityStage = "stage"
	EntityLead  = "lead"
)

// Actions carried by PipelineChanged.
const (
	ActionCreated     = "created"
	ActionUpdated     = "updated"
	ActionRenamed     = "renamed"
	ActionDeleted     = "deleted"
	ActionDuplicated  = "duplicated"
	ActionReordered   = "reordered"
	ActionReassigned  = "reassigned"
	ActionProvisioned = "provisioned"
)

// PipelineChanged is published after every successful stage or lead mutation.
// Subscribers use it to tell open boards of the tenant to refetch.
type PipelineChanged struct {
	BaseEvent
	TenantID uuid.UUID  `json:"tenantId"`
	Entity   string     `json:"entity"`
	EntityID uuid.UUID  `json:"entityId"`
	Action   string     `json:"action"`
	ActorID  *uuid.UUID `json:"actorId,omitempty"`
}

func (e PipelineChanged) EventName() string { return PipelineChangedName }
