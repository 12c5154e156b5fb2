package leads

import (
	"context"
	"sync"
	"testing"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/internal/pipeline/repository"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

type recordingBus struct {
	mu     sync.Mutex
	events []events.PipelineChanged
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := event.(events.PipelineChanged); ok {
		b.events = append(b.events, e)
	}
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type fixture struct {
	svc   *Service
	repo  *repository.Memory
	bus   *recordingBus
	actor domain.Actor
	stage domain.Stage
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := repository.NewMemory()
	bus := &recordingBus{}
	actor := domain.Actor{UserID: uuid.New(), TenantID: uuid.New(), Role: domain.RoleAgent}
	repo.AddUser(actor.TenantID, actor.UserID, "Carla Agent")
	stage, err := repo.CreateStage(context.Background(), actor.TenantID, "New")
	if err != nil {
		t.Fatalf("CreateStage returned error: %v", err)
	}
	return fixture{svc: New(repo, bus, logger.Discard(), "BR"), repo: repo, bus: bus, actor: actor, stage: stage}
}

func TestCreateLeadDefaultsAssigneeToActor(t *testing.T) {
	f := newFixture(t)

	lead, err := f.svc.CreateLead(context.Background(), f.actor, Input{
		Name:    "Ana",
		Phone:   "(11) 98765-4321",
		StageID: &f.stage.ID,
		Source:  "Apartment in Pinheiros",
		Value:   450000,
	})
	if err != nil {
		t.Fatalf("CreateLead returned error: %v", err)
	}
	if lead.AssigneeID == nil || *lead.AssigneeID != f.actor.UserID {
		t.Fatalf("expected assignee to default to actor, got %v", lead.AssigneeID)
	}
	if lead.AssigneeName == nil || *lead.AssigneeName != "Carla Agent" {
		t.Fatalf("expected assignee name to be denormalised, got %v", lead.AssigneeName)
	}
	if lead.Phone != "+5511987654321" {
		t.Fatalf("expected E.164 phone, got %q", lead.Phone)
	}
	if lead.Interest != "Apartment in Pinheiros" {
		t.Fatalf("expected source exposed as interest, got %q", lead.Interest)
	}
	if f.bus.count() != 1 {
		t.Fatalf("expected one event, got %d", f.bus.count())
	}
}

func TestCreateLeadExplicitUnassigned(t *testing.T) {
	f := newFixture(t)

	lead, err := f.svc.CreateLead(context.Background(), f.actor, Input{
		Name:     "Ana",
		Phone:    "+5511987654321",
		Assignee: OptionalAssignee{Set: true},
	})
	if err != nil {
		t.Fatalf("CreateLead returned error: %v", err)
	}
	if lead.AssigneeID != nil {
		t.Fatalf("expected no assignee, got %v", *lead.AssigneeID)
	}
	if lead.Status != nil {
		t.Fatalf("expected unassigned stage, got %v", *lead.Status)
	}
}

func TestCreateLeadUpsertsContactByPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := "ana@example.com"

	first, err := f.svc.CreateLead(ctx, f.actor, Input{Name: "Ana", Phone: "11 98765-4321", Tags: []string{"buyer"}})
	if err != nil {
		t.Fatalf("first CreateLead returned error: %v", err)
	}
	second, err := f.svc.CreateLead(ctx, f.actor, Input{Name: "Ana Souza", Phone: "+55 11 98765-4321", Email: &email, Tags: []string{"investor"}})
	if err != nil {
		t.Fatalf("second CreateLead returned error: %v", err)
	}

	if first.ID == second.ID {
		t.Fatal("expected two distinct leads")
	}
	if first.ContactID != second.ContactID {
		t.Fatalf("expected both leads to share one contact, got %s and %s", first.ContactID, second.ContactID)
	}
	if n := f.repo.ContactCount(f.actor.TenantID); n != 1 {
		t.Fatalf("expected exactly one contact, got %d", n)
	}

	got, _ := f.svc.GetLead(ctx, f.actor, first.ID)
	if got.Name != "Ana Souza" || got.Email == nil || *got.Email != email {
		t.Fatalf("expected contact to carry the latest submission, got %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "investor" {
		t.Fatalf("expected latest tags, got %v", got.Tags)
	}
}

func TestCreateLeadFailureLeavesNoContact(t *testing.T) {
	f := newFixture(t)
	stranger := uuid.New()

	_, err := f.svc.CreateLead(context.Background(), f.actor, Input{
		Name:     "Ana",
		Phone:    "+5511987654321",
		Assignee: OptionalAssignee{Set: true, Value: &stranger},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown assignee, got %v", err)
	}
	if n := f.repo.ContactCount(f.actor.TenantID); n != 0 {
		t.Fatalf("contact write must roll back with the lead insert, found %d contacts", n)
	}
	if f.bus.count() != 0 {
		t.Fatal("no event expected for a failed write")
	}
}

func TestCreateLeadRejectsForeignStage(t *testing.T) {
	f := newFixture(t)
	other, _ := f.repo.CreateStage(context.Background(), uuid.New(), "Other tenant")

	_, err := f.svc.CreateLead(context.Background(), f.actor, Input{Name: "Ana", Phone: "+5511987654321", StageID: &other.ID})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for another tenant's stage, got %v", err)
	}
}

func TestUpdateLeadKeepsAssigneeWhenNotSubmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.svc.CreateLead(ctx, f.actor, Input{Name: "Ana", Phone: "+5511987654321"})

	updated, err := f.svc.UpdateLead(ctx, f.actor, created.ID, Input{
		Name:    "Ana Lima",
		Phone:   "+5511987654321",
		StageID: &f.stage.ID,
		Notes:   "<b>Prefers</b>   mornings",
		Value:   500000,
	})
	if err != nil {
		t.Fatalf("UpdateLead returned error: %v", err)
	}
	if updated.AssigneeID == nil || *updated.AssigneeID != f.actor.UserID {
		t.Fatalf("expected assignee to be kept, got %v", updated.AssigneeID)
	}
	if updated.Name != "Ana Lima" || updated.Value != 500000 {
		t.Fatalf("fields not updated: %+v", updated)
	}
	if updated.Notes != "Prefers mornings" {
		t.Fatalf("expected sanitised notes, got %q", updated.Notes)
	}
	if updated.Status == nil || *updated.Status != f.stage.ID {
		t.Fatalf("expected stage to be set, got %v", updated.Status)
	}
}

func TestUpdateLeadNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateLead(context.Background(), f.actor, uuid.New(), Input{Name: "Ghost", Phone: "+5511987654321"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReassignStageSameStageIsSilent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.svc.CreateLead(ctx, f.actor, Input{Name: "Ana", Phone: "+5511987654321", StageID: &f.stage.ID})
	before, _ := f.repo.GetLead(ctx, f.actor.TenantID, created.ID)
	published := f.bus.count()

	if err := f.svc.ReassignStage(ctx, f.actor, created.ID, &f.stage.ID); err != nil {
		t.Fatalf("ReassignStage returned error: %v", err)
	}

	after, _ := f.repo.GetLead(ctx, f.actor.TenantID, created.ID)
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatal("same-stage reassignment must not touch updated_at")
	}
	if f.bus.count() != published {
		t.Fatal("same-stage reassignment must not publish an event")
	}
}

func TestReassignStageToNone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.svc.CreateLead(ctx, f.actor, Input{Name: "Ana", Phone: "+5511987654321", StageID: &f.stage.ID})

	if err := f.svc.ReassignStage(ctx, f.actor, created.ID, nil); err != nil {
		t.Fatalf("ReassignStage returned error: %v", err)
	}
	got, _ := f.svc.GetLead(ctx, f.actor, created.ID)
	if got.Status != nil {
		t.Fatalf("expected lead to be unassigned, got %v", *got.Status)
	}
}

func TestDeleteLeadKeepsContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, _ := f.svc.CreateLead(ctx, f.actor, Input{Name: "Ana", Phone: "+5511987654321"})

	if err := f.svc.DeleteLead(ctx, f.actor, created.ID); err != nil {
		t.Fatalf("DeleteLead returned error: %v", err)
	}
	if _, err := f.svc.GetLead(ctx, f.actor, created.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected lead to be gone, got %v", err)
	}
	if n := f.repo.ContactCount(f.actor.TenantID); n != 1 {
		t.Fatalf("expected contact to survive, got %d", n)
	}
	if err := f.svc.DeleteLead(ctx, f.actor, created.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected second delete to be not found, got %v", err)
	}
}
