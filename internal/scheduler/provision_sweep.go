package scheduler

import (
	"context"
	"time"

	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultProvisionSweepInterval = time.Minute

// TenantLister finds tenants that have users but no pipeline stages.
type TenantLister interface {
	ListUnprovisionedTenants(ctx context.Context) ([]uuid.UUID, error)
}

// ProvisionSweep periodically queues provisioning for tenants that signed up
// without getting a default stage.
type ProvisionSweep struct {
	tenants  TenantLister
	queue    ProvisionQueue
	log      *logger.Logger
	interval time.Duration
}

func NewProvisionSweep(tenants TenantLister, queue ProvisionQueue, log *logger.Logger, interval time.Duration) *ProvisionSweep {
	if interval <= 0 {
		interval = defaultProvisionSweepInterval
	}
	return &ProvisionSweep{
		tenants:  tenants,
		queue:    queue,
		log:      log,
		interval: interval,
	}
}

func (s *ProvisionSweep) Run(ctx context.Context) {
	if s == nil || s.tenants == nil || s.queue == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep returns the number of tenants queued.
func (s *ProvisionSweep) sweep(ctx context.Context) int {
	tenants, err := s.tenants.ListUnprovisionedTenants(ctx)
	if err != nil {
		s.log.Warn("provision sweep failed", "error", err)
		return 0
	}

	queued := 0
	for _, tenantID := range tenants {
		if err := s.queue.EnqueueProvisionTenant(ctx, tenantID); err != nil {
			s.log.Warn("provision sweep enqueue failed", "tenant_id", tenantID.String(), "error", err)
			continue
		}
		queued++
	}

	if queued > 0 {
		s.log.Info("provision sweep queued tenants", "queued", queued)
	}
	return queued
}
