// Package domain holds the lead pipeline entities and the read model shared by
// the stores, the aggregator and the board controller.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultStageName is the stage provisioned for a tenant without stages.
const DefaultStageName = "New Lead"

// Role values carried by Actor.
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

// Actor is the acting user's profile, passed explicitly to every store call.
type Actor struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     string
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Stage is a named, ordered column of a tenant's pipeline.
// OrderIndex defines display order and is not required to be unique.
type Stage struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Name       string
	OrderIndex int
	CreatedAt  time.Time
}

// Contact is the person a lead refers to; unique per tenant by phone.
type Contact struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	Phone     string
	Email     *string
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Lead is a prospective deal. StageID is nil when the lead is unassigned.
type Lead struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ContactID      uuid.UUID
	StageID        *uuid.UUID
	AssignedUserID *uuid.UUID
	Notes          string
	Value          float64
	Source         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LeadDetails is a lead joined with its contact and assignee display name.
type LeadDetails struct {
	Lead
	Contact      Contact
	AssigneeName *string
}

// SameStage reports whether two optional stage references point at the same
// stage (both nil counts as the same "unassigned" stage).
func SameStage(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CloneID returns a copy of an optional id that does not alias the original.
func CloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
