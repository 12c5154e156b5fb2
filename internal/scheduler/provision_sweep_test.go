package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"realty_crm_backend/internal/pipeline/repository"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
)

type recordingQueue struct {
	mu      sync.Mutex
	queued  []uuid.UUID
	failFor uuid.UUID
}

func (q *recordingQueue) EnqueueProvisionTenant(_ context.Context, tenantID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if tenantID == q.failFor {
		return errors.New("redis unavailable")
	}
	q.queued = append(q.queued, tenantID)
	return nil
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

func TestProvisionSweepQueuesUnprovisionedTenants(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	done := uuid.New()
	first := uuid.New()
	second := uuid.New()
	repo.AddUser(done, uuid.New(), "Ana")
	repo.AddUser(first, uuid.New(), "Bruno")
	repo.AddUser(second, uuid.New(), "Carla")
	if _, _, err := repo.EnsureDefaultStage(ctx, done, "New Lead"); err != nil {
		t.Fatalf("EnsureDefaultStage: %v", err)
	}

	queue := &recordingQueue{failFor: second}
	sweep := NewProvisionSweep(repo, queue, logger.Discard(), time.Minute)

	if queued := sweep.sweep(ctx); queued != 1 {
		t.Fatalf("expected one tenant queued, got %d", queued)
	}
	if queue.queued[0] != first {
		t.Fatalf("expected %s queued, got %v", first, queue.queued)
	}
}

func TestProvisionSweepSurvivesListFailure(t *testing.T) {
	repo := repository.NewMemory()
	repo.AddUser(uuid.New(), uuid.New(), "Ana")
	repo.FailNext("ListUnprovisionedTenants", errors.New("timeout"))

	queue := &recordingQueue{}
	sweep := NewProvisionSweep(repo, queue, logger.Discard(), time.Minute)

	if queued := sweep.sweep(context.Background()); queued != 0 {
		t.Fatalf("expected nothing queued, got %d", queued)
	}
	if queued := sweep.sweep(context.Background()); queued != 1 {
		t.Fatalf("expected the next sweep to recover, got %d", queued)
	}
}

func TestProvisionSweepRunStopsOnCancel(t *testing.T) {
	repo := repository.NewMemory()
	repo.AddUser(uuid.New(), uuid.New(), "Ana")
	queue := &recordingQueue{}
	sweep := NewProvisionSweep(repo, queue, logger.Discard(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		sweep.Run(ctx)
		close(finished)
	}()

	deadline := time.After(2 * time.Second)
	for queue.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial sweep did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
