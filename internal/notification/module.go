// Package notification turns pipeline changes into live board invalidations.
// Domain modules only publish events; this module decides how they reach
// connected clients.
package notification

import (
	"context"

	"realty_crm_backend/internal/events"
	apphttp "realty_crm_backend/internal/http"
	"realty_crm_backend/internal/notification/relay"
	"realty_crm_backend/internal/notification/sse"
	"realty_crm_backend/platform/httpkit"
	"realty_crm_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Module wires the SSE hub to the event bus.
type Module struct {
	hub   *sse.Service
	relay *relay.Redis
	log   *logger.Logger
}

// New subscribes to pipeline changes on bus. With rdb set, changes go through
// the Redis channel so every instance sees them; otherwise they are
// delivered to this instance's clients directly.
func New(bus events.Bus, rdb *redis.Client, channel string, log *logger.Logger) *Module {
	m := &Module{hub: sse.New(log), log: log}

	if rdb != nil {
		m.relay = relay.NewRedis(rdb, channel, m.hub, log)
		bus.Subscribe(events.PipelineChangedName, m.relay)
	} else {
		bus.Subscribe(events.PipelineChangedName, relay.Local{Sink: m.hub})
	}
	return m
}

func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes mounts the board event stream.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/pipeline/events", m.hub.Handler(principal))
}

// Start begins relaying Redis messages; a no-op without Redis.
func (m *Module) Start(ctx context.Context) error {
	if m.relay == nil {
		return nil
	}
	if err := m.relay.Start(ctx); err != nil {
		return err
	}
	m.log.Info("pipeline revalidation relay started")
	return nil
}

// Hub exposes the SSE service.
func (m *Module) Hub() *sse.Service {
	return m.hub
}

// Close ends open streams and waits for the relay to stop. Cancel the
// context passed to Start first.
func (m *Module) Close() {
	m.hub.Close()
	if m.relay != nil {
		m.relay.Wait()
	}
}

func principal(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	id := httpkit.GetIdentity(c)
	if !id.IsAuthenticated() || id.TenantID() == nil {
		return uuid.Nil, uuid.Nil, false
	}
	return id.UserID(), *id.TenantID(), true
}

var _ apphttp.Module = (*Module)(nil)
