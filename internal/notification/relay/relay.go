// Package relay carries pipeline change events to SSE clients on every API
// instance. With Redis configured, events are published on a pub/sub
// channel and each instance fans them out to its own clients; without Redis
// they are delivered in-process.
package relay

import (
	"context"
	"encoding/json"
	"sync"

	"realty_crm_backend/internal/events"
	"realty_crm_backend/internal/notification/sse"
	"realty_crm_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sink receives invalidations for connected clients.
type Sink interface {
	PublishToTenant(tenantID uuid.UUID, event sse.Event)
}

type message struct {
	TenantID uuid.UUID `json:"tenantId"`
	Entity   string    `json:"entity"`
	EntityID uuid.UUID `json:"entityId"`
	Action   string    `json:"action"`
}

func toSSE(m message) sse.Event {
	return sse.Event{
		Type:     sse.EventPipelineInvalidated,
		TenantID: m.TenantID,
		Entity:   m.Entity,
		EntityID: m.EntityID,
		Action:   m.Action,
	}
}

func fromEvent(event events.Event) (message, bool) {
	changed, ok := event.(events.PipelineChanged)
	if !ok {
		return message{}, false
	}
	return message{TenantID: changed.TenantID, Entity: changed.Entity, EntityID: changed.EntityID, Action: changed.Action}, true
}

// Local delivers events straight to the sink.
type Local struct {
	Sink Sink
}

// Handle implements events.Handler.
func (l Local) Handle(_ context.Context, event events.Event) error {
	if m, ok := fromEvent(event); ok {
		l.Sink.PublishToTenant(m.TenantID, toSSE(m))
	}
	return nil
}

// Redis publishes events on a channel and relays the channel to the sink.
type Redis struct {
	rdb     *redis.Client
	channel string
	sink    Sink
	log     *logger.Logger
	wg      sync.WaitGroup
}

// NewRedis creates a Redis relay. log may be nil.
func NewRedis(rdb *redis.Client, channel string, sink Sink, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.Discard()
	}
	return &Redis{rdb: rdb, channel: channel, sink: sink, log: log}
}

// Handle implements events.Handler by publishing the event to Redis.
func (r *Redis) Handle(ctx context.Context, event events.Event) error {
	m, ok := fromEvent(event)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.channel, payload).Err()
}

// Start subscribes to the channel and returns once Redis has confirmed the
// subscription. Messages are relayed until ctx is cancelled.
func (r *Redis) Start(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.dispatch(msg.Payload)
			}
		}
	}()
	return nil
}

// Wait blocks until the subscriber started by Start has stopped.
func (r *Redis) Wait() {
	r.wg.Wait()
}

func (r *Redis) dispatch(payload string) {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		r.log.Warn("discarding malformed revalidation message", "channel", r.channel, "error", err)
		return
	}
	if m.TenantID == uuid.Nil {
		return
	}
	r.sink.PublishToTenant(m.TenantID, toSSE(m))
}
