package sse

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"realty_crm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestPublishToTenantOnlyReachesThatTenant(t *testing.T) {
	svc := New(nil)
	tenantA := uuid.New()
	tenantB := uuid.New()

	a := &client{userID: uuid.New(), tenantID: tenantA, events: make(chan Event, 1)}
	b := &client{userID: uuid.New(), tenantID: tenantB, events: make(chan Event, 1)}
	svc.addClient(a)
	svc.addClient(b)

	svc.PublishToTenant(tenantA, Event{Type: EventPipelineInvalidated, TenantID: tenantA})

	select {
	case evt := <-a.events:
		if evt.Type != EventPipelineInvalidated {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("tenant A client did not receive the event")
	}
	select {
	case evt := <-b.events:
		t.Fatalf("tenant B client received %+v", evt)
	default:
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	svc := New(nil)
	tenantID := uuid.New()
	c := &client{userID: uuid.New(), tenantID: tenantID, events: make(chan Event, 1)}
	svc.addClient(c)

	svc.PublishToTenant(tenantID, Event{Type: EventPipelineInvalidated})
	svc.PublishToTenant(tenantID, Event{Type: EventPipelineInvalidated})

	if len(c.events) != 1 {
		t.Fatalf("expected one buffered event, got %d", len(c.events))
	}

	svc.removeClient(c)
	if svc.ClientCount(tenantID) != 0 {
		t.Fatal("expected client to be removed")
	}
	svc.Close()
	svc.Close()
}

func TestHandlerRejectsAnonymousCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := New(nil)
	engine := gin.New()
	engine.GET("/events", svc.Handler(func(*gin.Context) (uuid.UUID, uuid.UUID, bool) {
		return uuid.Nil, uuid.Nil, false
	}))

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body httpkit.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error != "unauthorized" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
	if n := svc.ClientCount(uuid.Nil); n != 0 {
		t.Fatalf("rejected caller must not be registered, got %d clients", n)
	}
}
