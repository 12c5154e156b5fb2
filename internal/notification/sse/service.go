// Package sse provides Server-Sent Events support for live pipeline boards.
package sse

import (
	"encoding/json"
	"sync"

	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/httpkit"
	"realty_crm_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	// EventPipelineInvalidated tells a board to refetch the pipeline.
	EventPipelineInvalidated EventType = "pipeline_invalidated"
)

// Event represents an SSE event payload
type Event struct {
	Type     EventType `json:"type"`
	TenantID uuid.UUID `json:"tenantId"`
	Entity   string    `json:"entity,omitempty"`
	EntityID uuid.UUID `json:"entityId,omitempty"`
	Action   string    `json:"action,omitempty"`
}

// Principal resolves the connecting user and tenant from a request.
type Principal func(*gin.Context) (userID, tenantID uuid.UUID, ok bool)

type client struct {
	userID   uuid.UUID
	tenantID uuid.UUID
	events   chan Event
}

// Service manages SSE connections and fan-out per tenant.
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{} // tenantID -> clients
	done    chan struct{}
	once    sync.Once
	log     *logger.Logger
}

// New creates a new SSE service. log may be nil.
func New(log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		clients: make(map[uuid.UUID]map[*client]struct{}),
		done:    make(chan struct{}),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clients[c.tenantID] == nil {
		s.clients[c.tenantID] = make(map[*client]struct{})
	}
	s.clients[c.tenantID][c] = struct{}{}
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients[c.tenantID], c)
	if len(s.clients[c.tenantID]) == 0 {
		delete(s.clients, c.tenantID)
	}
}

// PublishToTenant sends event to every client connected for tenantID.
// Slow clients whose buffer is full miss the event.
func (s *Service) PublishToTenant(tenantID uuid.UUID, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.clients[tenantID] {
		select {
		case c.events <- event:
		default:
			s.log.Warn("sse buffer full", "user_id", c.userID.String(), "tenant_id", tenantID.String())
		}
	}
}

// ClientCount returns the number of open connections for tenantID.
func (s *Service) ClientCount(tenantID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[tenantID])
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler(principal Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, tenantID, ok := principal(c)
		if !ok {
			httpkit.HandleError(c, apperr.Unauthorized("unauthorized"))
			c.Abort()
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			userID:   userID,
			tenantID: tenantID,
			events:   make(chan Event, 32),
		}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"userId": userID, "tenantId": tenantID})
		c.Writer.Flush()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case <-s.done:
				return
			case event := <-cl.events:
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close ends every open stream.
func (s *Service) Close() {
	s.once.Do(func() { close(s.done) })
}
