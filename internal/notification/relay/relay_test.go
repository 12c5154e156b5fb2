package relay

import (
	"context"
	"testing"
	"time"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/notification/sse"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type chanSink chan sse.Event

func (s chanSink) PublishToTenant(_ uuid.UUID, event sse.Event) {
	s <- event
}

func changed(tenantID uuid.UUID) events.PipelineChanged {
	return events.PipelineChanged{
		BaseEvent: events.NewBaseEvent(),
		TenantID:  tenantID,
		Entity:    events.EntityLead,
		EntityID:  uuid.New(),
		Action:    events.ActionReassigned,
	}
}

func TestRedisRelayRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sink := make(chanSink, 1)
	r := NewRedis(rdb, "pipeline:revalidate", sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		r.Wait()
	}()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	evt := changed(uuid.New())
	if err := r.Handle(ctx, evt); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	select {
	case got := <-sink:
		if got.Type != sse.EventPipelineInvalidated || got.TenantID != evt.TenantID || got.EntityID != evt.EntityID {
			t.Fatalf("unexpected relayed event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not relayed")
	}
}

func TestRedisRelayIgnoresMalformedPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sink := make(chanSink, 1)
	r := NewRedis(rdb, "pipeline:revalidate", sink, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		r.Wait()
	}()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	mr.Publish("pipeline:revalidate", "not json")
	evt := changed(uuid.New())
	_ = r.Handle(ctx, evt)

	select {
	case got := <-sink:
		if got.TenantID != evt.TenantID {
			t.Fatalf("expected only the valid event, got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid event was not relayed")
	}
}

func TestLocalRelay(t *testing.T) {
	sink := make(chanSink, 1)
	evt := changed(uuid.New())

	if err := (Local{Sink: sink}).Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if got := <-sink; got.TenantID != evt.TenantID || got.Action != events.ActionReassigned {
		t.Fatalf("unexpected event %+v", got)
	}
}
