package scheduler

import (
	"context"
	"fmt"

	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/platform/config"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Provisioner creates the default stage of a tenant when it has none.
type Provisioner interface {
	EnsureDefaultStage(ctx context.Context, tenantID uuid.UUID) (domain.Stage, bool, error)
}

type Worker struct {
	server      *asynq.Server
	mux         *asynq.ServeMux
	provisioner Provisioner
	log         *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, provisioner Provisioner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := newWorker(provisioner, log)
	w.server = server
	return w, nil
}

func newWorker(provisioner Provisioner, log *logger.Logger) *Worker {
	w := &Worker{
		mux:         asynq.NewServeMux(),
		provisioner: provisioner,
		log:         log,
	}
	w.mux.HandleFunc(TaskProvisionTenant, w.handleProvisionTenant)
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleProvisionTenant(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseProvisionTenantPayload(task)
	if err != nil {
		return fmt.Errorf("parse provision payload: %v: %w", err, asynq.SkipRetry)
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("invalid tenant id %q: %w", payload.TenantID, asynq.SkipRetry)
	}

	stage, created, err := w.provisioner.EnsureDefaultStage(ctx, tenantID)
	if err != nil {
		return err
	}

	w.log.Info("tenant pipeline provisioned",
		"tenant_id", tenantID.String(),
		"stage_id", stage.ID.String(),
		"created", created,
	)
	return nil
}
