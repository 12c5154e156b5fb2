//go:build integration

package repository

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type integrationConfig struct {
	url string
	dir string
}

func (c integrationConfig) GetDatabaseURL() string   { return c.url }
func (c integrationConfig) GetMigrationsDir() string { return c.dir }

// newPostgres migrates the database named by DATABASE_URL and returns a
// repository on it. Every test works in its own tenant.
func newPostgres(t *testing.T) (*Repository, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	dir, err := filepath.Abs(filepath.Join("..", "..", "..", "migrations"))
	if err != nil {
		t.Fatalf("migrations dir: %v", err)
	}

	ctx := context.Background()
	cfg := integrationConfig{url: url, dir: dir}
	if err := db.RunMigrations(ctx, cfg); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return New(pool), pool
}

func TestPostgresCreateLeadUpsertsContactByPhone(t *testing.T) {
	repo, _ := newPostgres(t)
	ctx := context.Background()
	tenantID := uuid.New()

	first, firstContact, err := repo.CreateLeadWithContact(ctx, CreateLeadParams{
		TenantID: tenantID,
		Contact:  ContactFields{Name: "Ana", Phone: "+5511999990000", Tags: []string{"buyer"}},
		Value:    450000.5,
	})
	if err != nil {
		t.Fatalf("CreateLeadWithContact: %v", err)
	}
	second, secondContact, err := repo.CreateLeadWithContact(ctx, CreateLeadParams{
		TenantID: tenantID,
		Contact:  ContactFields{Name: "Ana Souza", Phone: "+5511999990000"},
	})
	if err != nil {
		t.Fatalf("CreateLeadWithContact: %v", err)
	}

	if first.ID == second.ID {
		t.Fatal("expected two leads")
	}
	if firstContact.ID != secondContact.ID {
		t.Fatalf("expected the phone to reuse contact %s, got %s", firstContact.ID, secondContact.ID)
	}
	if secondContact.Name != "Ana Souza" || len(secondContact.Tags) != 0 {
		t.Fatalf("expected the upsert to overwrite the contact, got %+v", secondContact)
	}
	if first.Value != 450000.5 {
		t.Fatalf("expected value to round-trip, got %v", first.Value)
	}

	details, err := repo.ListLeadDetails(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListLeadDetails: %v", err)
	}
	if len(details) != 2 || details[0].Lead.ID != second.ID {
		t.Fatalf("expected newest lead first, got %+v", details)
	}
}

func TestPostgresUpdateLeadStageReportsChanges(t *testing.T) {
	repo, _ := newPostgres(t)
	ctx := context.Background()
	tenantID := uuid.New()
	stage, err := repo.CreateStage(ctx, tenantID, "New")
	if err != nil {
		t.Fatalf("CreateStage: %v", err)
	}
	lead, _, err := repo.CreateLeadWithContact(ctx, CreateLeadParams{
		TenantID: tenantID,
		Contact:  ContactFields{Name: "Ana", Phone: "+5511999990001"},
	})
	if err != nil {
		t.Fatalf("CreateLeadWithContact: %v", err)
	}

	steps := []struct {
		stageID *uuid.UUID
		changed bool
	}{
		{stageID: &stage.ID, changed: true},
		{stageID: &stage.ID, changed: false},
		{stageID: nil, changed: true},
		{stageID: nil, changed: false},
	}
	for i, step := range steps {
		changed, err := repo.UpdateLeadStage(ctx, tenantID, lead.ID, step.stageID)
		if err != nil {
			t.Fatalf("step %d: UpdateLeadStage: %v", i, err)
		}
		if changed != step.changed {
			t.Fatalf("step %d: expected changed=%v, got %v", i, step.changed, changed)
		}
	}

	if _, err := repo.UpdateLeadStage(ctx, tenantID, uuid.New(), nil); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown lead, got %v", err)
	}
	foreign, _ := repo.CreateStage(ctx, uuid.New(), "Elsewhere")
	if _, err := repo.UpdateLeadStage(ctx, tenantID, lead.ID, &foreign.ID); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for another tenant's stage, got %v", err)
	}
}

func TestPostgresDeleteStageUnassignsLeadsAndKeepsLast(t *testing.T) {
	repo, _ := newPostgres(t)
	ctx := context.Background()
	tenantID := uuid.New()
	first, _ := repo.CreateStage(ctx, tenantID, "New")
	second, _ := repo.CreateStage(ctx, tenantID, "Qualified")
	lead, _, err := repo.CreateLeadWithContact(ctx, CreateLeadParams{
		TenantID: tenantID,
		Contact:  ContactFields{Name: "Ana", Phone: "+5511999990002"},
		StageID:  &second.ID,
	})
	if err != nil {
		t.Fatalf("CreateLeadWithContact: %v", err)
	}

	if err := repo.DeleteStage(ctx, tenantID, second.ID); err != nil {
		t.Fatalf("DeleteStage: %v", err)
	}
	got, err := repo.GetLead(ctx, tenantID, lead.ID)
	if err != nil {
		t.Fatalf("lead should survive stage deletion: %v", err)
	}
	if got.StageID != nil || got.TenantID != tenantID {
		t.Fatalf("expected an unassigned lead of the same tenant, got %+v", got)
	}

	if err := repo.DeleteStage(ctx, tenantID, first.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict deleting last stage, got %v", err)
	}
	if err := repo.DeleteStage(ctx, tenantID, uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown stage, got %v", err)
	}
}

func TestPostgresConcurrentDeleteKeepsOneStage(t *testing.T) {
	repo, _ := newPostgres(t)
	ctx := context.Background()
	tenantID := uuid.New()
	a, _ := repo.CreateStage(ctx, tenantID, "New")
	b, _ := repo.CreateStage(ctx, tenantID, "Qualified")

	ids := []uuid.UUID{a.ID, b.ID}
	errs := make([]error, len(ids))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			<-start
			errs[i] = repo.DeleteStage(ctx, tenantID, id)
		}(i, id)
	}
	close(start)
	wg.Wait()

	conflicts := 0
	for _, err := range errs {
		if apperr.Is(err, apperr.KindConflict) {
			conflicts++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	stages, err := repo.ListStages(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListStages: %v", err)
	}
	if conflicts != 1 || len(stages) != 1 {
		t.Fatalf("expected one refused delete and one stage left, got errors %v and %d stages", errs, len(stages))
	}
}

func TestPostgresEnsureDefaultStageCreatesOnce(t *testing.T) {
	repo, _ := newPostgres(t)
	ctx := context.Background()
	tenantID := uuid.New()

	const callers = 8
	created := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok, err := repo.EnsureDefaultStage(ctx, tenantID, "New Lead")
			if err != nil {
				t.Errorf("EnsureDefaultStage: %v", err)
			}
			created[i] = ok
		}(i)
	}
	wg.Wait()

	count := 0
	for _, ok := range created {
		if ok {
			count++
		}
	}
	stages, _ := repo.ListStages(ctx, tenantID)
	if count != 1 || len(stages) != 1 || stages[0].Name != "New Lead" {
		t.Fatalf("expected exactly one default stage, created=%d stages=%+v", count, stages)
	}
}

func TestPostgresCheckConstraintsAreValidationErrors(t *testing.T) {
	repo, _ := newPostgres(t)
	ctx := context.Background()
	tenantID := uuid.New()
	stage, _ := repo.CreateStage(ctx, tenantID, "New")

	if _, err := repo.RenameStage(ctx, tenantID, stage.ID, "  "); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for blank name, got %v", err)
	}
	_, _, err := repo.CreateLeadWithContact(ctx, CreateLeadParams{
		TenantID: tenantID,
		Contact:  ContactFields{Name: "Ana", Phone: "+5511999990003"},
		Value:    -1,
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for negative value, got %v", err)
	}
}

func TestPostgresListUnprovisionedTenants(t *testing.T) {
	repo, pool := newPostgres(t)
	ctx := context.Background()
	tenantID := uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO users (tenant_id, display_name) VALUES ($1, 'Ana')`, tenantID); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	tenants, err := repo.ListUnprovisionedTenants(ctx)
	if err != nil {
		t.Fatalf("ListUnprovisionedTenants: %v", err)
	}
	if !slices.Contains(tenants, tenantID) {
		t.Fatalf("expected %s to need provisioning", tenantID)
	}

	if _, _, err := repo.EnsureDefaultStage(ctx, tenantID, "New Lead"); err != nil {
		t.Fatalf("EnsureDefaultStage: %v", err)
	}
	tenants, _ = repo.ListUnprovisionedTenants(ctx)
	if slices.Contains(tenants, tenantID) {
		t.Fatalf("expected %s to be provisioned", tenantID)
	}
}
