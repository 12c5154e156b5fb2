// Package board holds the drag reconciliation controller: the local,
// optimistic copy of a pipeline board and the state machine that moves a
// lead between stages.
package board

import (
	"realty_crm_backend/internal/pipeline/domain"

	"github.com/google/uuid"
)

// State is one of Idle, Dragging or Resolving.
type State interface {
	isState()
}

// Idle means no gesture is in flight.
type Idle struct{}

// Dragging holds the lead picked up by the current gesture.
type Dragging struct {
	Lead domain.PipelineLead
}

// Resolving holds a move that was applied locally and is being persisted.
// Snapshot is the lead list as it was before the optimistic mutation.
type Resolving struct {
	Lead     domain.PipelineLead
	Target   *uuid.UUID
	Snapshot []domain.PipelineLead
}

func (Idle) isState()      {}
func (Dragging) isState()  {}
func (Resolving) isState() {}

// DropTarget is where a gesture ended: a column, a card, or nothing.
type DropTarget interface {
	isDropTarget()
}

// ColumnTarget is a stage column. A nil StageID is the unassigned column.
type ColumnTarget struct {
	StageID *uuid.UUID
}

// CardTarget is another lead card; the target stage is that lead's stage.
type CardTarget struct {
	LeadID uuid.UUID
}

// NoTarget is a drop outside any valid zone.
type NoTarget struct{}

func (ColumnTarget) isDropTarget() {}
func (CardTarget) isDropTarget()   {}
func (NoTarget) isDropTarget()     {}

// Outcome reports what a drop did.
type Outcome int

const (
	// OutcomeCancelled means the drop had no target; nothing changed.
	OutcomeCancelled Outcome = iota
	// OutcomeUnchanged means the target stage was the lead's current stage.
	OutcomeUnchanged
	// OutcomeMoved means the move was persisted.
	OutcomeMoved
	// OutcomeRolledBack means persisting failed and the local board was restored.
	OutcomeRolledBack
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeMoved:
		return "moved"
	case OutcomeRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}
