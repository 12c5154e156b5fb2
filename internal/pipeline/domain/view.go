package domain

import (
	"time"

	"github.com/google/uuid"
)

// PipelineStage is a stage annotated with its current lead count.
type PipelineStage struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	OrderIndex int       `json:"orderIndex"`
	LeadCount  int       `json:"leadCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PipelineLead is the denormalised lead shape consumed by the board.
// Status holds the stage reference and Interest the lead source.
type PipelineLead struct {
	ID           uuid.UUID  `json:"id"`
	Status       *uuid.UUID `json:"status"`
	Interest     string     `json:"interest"`
	ContactID    uuid.UUID  `json:"contactId"`
	Name         string     `json:"name"`
	Phone        string     `json:"phone"`
	Email        *string    `json:"email,omitempty"`
	Tags         []string   `json:"tags"`
	AssigneeID   *uuid.UUID `json:"assigneeId,omitempty"`
	AssigneeName *string    `json:"assigneeName,omitempty"`
	Notes        string     `json:"notes"`
	Value        float64    `json:"value"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// PipelineData is the read-only projection of a tenant's pipeline.
type PipelineData struct {
	Stages []PipelineStage `json:"stages"`
	Leads  []PipelineLead  `json:"leads"`
}

// ToPipelineLead maps a joined lead row into the board shape.
func ToPipelineLead(d LeadDetails) PipelineLead {
	tags := d.Contact.Tags
	if tags == nil {
		tags = []string{}
	}
	return PipelineLead{
		ID:           d.ID,
		Status:       CloneID(d.StageID),
		Interest:     d.Source,
		ContactID:    d.ContactID,
		Name:         d.Contact.Name,
		Phone:        d.Contact.Phone,
		Email:        d.Contact.Email,
		Tags:         tags,
		AssigneeID:   CloneID(d.AssignedUserID),
		AssigneeName: d.AssigneeName,
		Notes:        d.Notes,
		Value:        d.Value,
		CreatedAt:    d.CreatedAt,
	}
}

// CountLeads returns lead counts per stage. Unassigned leads are not counted.
func CountLeads(leads []PipelineLead) map[uuid.UUID]int {
	counts := make(map[uuid.UUID]int)
	for _, l := range leads {
		if l.Status != nil {
			counts[*l.Status]++
		}
	}
	return counts
}

// CloneLeads deep-copies a lead list so later mutation of one copy does not
// leak into the other.
func CloneLeads(leads []PipelineLead) []PipelineLead {
	if leads == nil {
		return nil
	}
	out := make([]PipelineLead, len(leads))
	for i, l := range leads {
		l.Status = CloneID(l.Status)
		l.AssigneeID = CloneID(l.AssigneeID)
		if l.Tags != nil {
			l.Tags = append([]string(nil), l.Tags...)
		}
		out[i] = l
	}
	return out
}
