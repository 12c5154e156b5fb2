// Package view assembles the pipeline view model: ordered stages annotated
// with lead counts, and the denormalised lead list.
package view

import (
	"context"

	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/platform/apperr"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Repository is the data access the aggregator needs.
type Repository interface {
	ListStages(ctx context.Context, tenantID uuid.UUID) ([]domain.Stage, error)
	ListLeadDetails(ctx context.Context, tenantID uuid.UUID) ([]domain.LeadDetails, error)
}

// Aggregator builds PipelineData on every call; nothing is cached.
type Aggregator struct {
	repo Repository
}

// New creates an aggregator.
func New(repo Repository) *Aggregator {
	return &Aggregator{repo: repo}
}

// GetPipelineData loads stages and leads concurrently. If either load fails
// the whole call fails with an aggregation error carrying the first failure.
func (a *Aggregator) GetPipelineData(ctx context.Context, actor domain.Actor) (domain.PipelineData, error) {
	var (
		stages  []domain.Stage
		details []domain.LeadDetails
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stages, err = a.repo.ListStages(gctx, actor.TenantID)
		return err
	})
	g.Go(func() error {
		var err error
		details, err = a.repo.ListLeadDetails(gctx, actor.TenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.PipelineData{}, apperr.Aggregation(err)
	}

	return Build(stages, details), nil
}

// Build maps raw rows into the view model and recomputes stage lead counts.
func Build(stages []domain.Stage, details []domain.LeadDetails) domain.PipelineData {
	leads := make([]domain.PipelineLead, 0, len(details))
	for _, d := range details {
		leads = append(leads, domain.ToPipelineLead(d))
	}

	return domain.PipelineData{
		Stages: CountStages(stages, leads),
		Leads:  leads,
	}
}

// CountStages annotates stages with the number of leads pointing at each.
func CountStages(stages []domain.Stage, leads []domain.PipelineLead) []domain.PipelineStage {
	counts := domain.CountLeads(leads)
	out := make([]domain.PipelineStage, 0, len(stages))
	for _, s := range stages {
		out = append(out, domain.PipelineStage{
			ID:         s.ID,
			Name:       s.Name,
			OrderIndex: s.OrderIndex,
			LeadCount:  counts[s.ID],
			CreatedAt:  s.CreatedAt,
		})
	}
	return out
}
