package main

import (
	"context"

	"realty_crm_backend/internal/pipeline"
	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/internal/pipeline/leads"
	"realty_crm_backend/internal/pipeline/repository"

	"github.com/google/uuid"
)

var (
	demoTenantID = uuid.MustParse("6f1c2a4e-0000-4000-8000-000000000001")
	demoUserID   = uuid.MustParse("6f1c2a4e-0000-4000-8000-000000000002")
)

// seedDemo fills an in-memory store with a small three-stage board.
func seedDemo(ctx context.Context, repo *repository.Memory, services pipeline.Services) error {
	repo.AddUser(demoTenantID, demoUserID, "Demo Agent")
	actor := domain.Actor{UserID: demoUserID, TenantID: demoTenantID, Role: domain.RoleAdmin}

	first, _, err := services.Stages.EnsureDefaultStage(ctx, demoTenantID)
	if err != nil {
		return err
	}
	visit, err := services.Stages.CreateStage(ctx, actor, "Visit Scheduled")
	if err != nil {
		return err
	}
	if _, err := services.Stages.CreateStage(ctx, actor, "Proposal"); err != nil {
		return err
	}

	seeds := []leads.Input{
		{Name: "Ana Souza", Phone: "+55 11 99999-0001", Tags: []string{"buyer"}, StageID: &first.ID, Value: 450000, Source: "website"},
		{Name: "Bruno Lima", Phone: "+55 11 99999-0002", Tags: []string{"seller"}, StageID: &visit.ID, Value: 780000, Source: "referral"},
		{Name: "Carla Dias", Phone: "+55 21 98888-0003", Source: "walk-in"},
	}
	for _, in := range seeds {
		if _, err := services.Leads.CreateLead(ctx, actor, in); err != nil {
			return err
		}
	}
	return nil
}
