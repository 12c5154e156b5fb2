package scheduler

import (
	"context"

	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

// InlineQueue satisfies ProvisionQueue by provisioning in the caller's
// goroutine. The API uses it when no Redis is configured.
type InlineQueue struct {
	provisioner Provisioner
	log         *logger.Logger
}

func NewInlineQueue(provisioner Provisioner, log *logger.Logger) *InlineQueue {
	return &InlineQueue{provisioner: provisioner, log: log}
}

func (q *InlineQueue) EnqueueProvisionTenant(ctx context.Context, tenantID uuid.UUID) error {
	stage, created, err := q.provisioner.EnsureDefaultStage(ctx, tenantID)
	if err != nil {
		return err
	}
	if created {
		q.log.Info("tenant pipeline provisioned",
			"tenant_id", tenantID.String(),
			"stage_id", stage.ID.String(),
		)
	}
	return nil
}
