package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/internal/pipeline/leads"
	"realty_crm_backend/internal/pipeline/repository"
	"realty_crm_backend/internal/pipeline/stages"
	"realty_crm_backend/internal/pipeline/transport"
	"realty_crm_backend/internal/pipeline/view"
	"realty_crm_backend/platform/httpkit"
	"realty_crm_backend/platform/logger"
	"realty_crm_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeQueue struct {
	tenants []uuid.UUID
}

func (q *fakeQueue) EnqueueProvisionTenant(_ context.Context, tenantID uuid.UUID) error {
	q.tenants = append(q.tenants, tenantID)
	return nil
}

type testServer struct {
	engine *gin.Engine
	repo   *repository.Memory
	actor  domain.Actor
}

func newTestServer(t *testing.T, queue ProvisionQueue, withTenant bool) *testServer {
	t.Helper()
	repo := repository.NewMemory()
	actor := domain.Actor{UserID: uuid.New(), TenantID: uuid.New(), Role: domain.RoleAdmin}
	repo.AddUser(actor.TenantID, actor.UserID, "Carla")

	log := logger.Discard()
	h := New(
		stages.New(repo, nil, log, ""),
		leads.New(repo, nil, log, "BR"),
		view.New(repo),
		queue,
		validator.New(),
	)

	engine := gin.New()
	api := engine.Group("/api/v1", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, actor.UserID)
		c.Set(httpkit.ContextRolesKey, []string{domain.RoleAdmin})
		if withTenant {
			c.Set(httpkit.ContextTenantIDKey, actor.TenantID)
		}
		c.Next()
	})
	h.RegisterRoutes(api.Group("/pipeline"))
	h.RegisterAdminRoutes(api.Group("/admin"))

	return &testServer{engine: engine, repo: repo, actor: actor}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (s *testServer) createStage(t *testing.T, name string) transport.StageResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/pipeline/stages", map[string]string{"name": name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create stage %q: status %d body %s", name, rec.Code, rec.Body.String())
	}
	return decode[transport.StageMutationResponse](t, rec).Stage
}

func (s *testServer) createLead(t *testing.T, body map[string]interface{}) domain.PipelineLead {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/pipeline/leads", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create lead: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[transport.LeadMutationResponse](t, rec).Lead
}

func (s *testServer) pipeline(t *testing.T) domain.PipelineData {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/v1/pipeline", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get pipeline: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[domain.PipelineData](t, rec)
}

func countsByName(data domain.PipelineData) map[string]int {
	out := make(map[string]int)
	for _, s := range data.Stages {
		out[s.Name] = s.LeadCount
	}
	return out
}

func TestBoardScenarios(t *testing.T) {
	s := newTestServer(t, nil, true)
	newStage := s.createStage(t, "New")
	qualified := s.createStage(t, "Qualified")

	// A: Ana created under New.
	ana := s.createLead(t, map[string]interface{}{"name": "Ana", "phone": "+5511987654321", "stageId": newStage.ID, "value": 350000})
	data := s.pipeline(t)
	if c := countsByName(data); c["New"] != 1 || c["Qualified"] != 0 {
		t.Fatalf("scenario A counts: %v", c)
	}

	// B: Ana moved to Qualified.
	rec := s.do(t, http.MethodPatch, "/api/v1/pipeline/leads/"+ana.ID.String()+"/stage", map[string]interface{}{"stageId": qualified.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("reassign: status %d body %s", rec.Code, rec.Body.String())
	}
	if c := countsByName(s.pipeline(t)); c["New"] != 0 || c["Qualified"] != 1 {
		t.Fatalf("scenario B counts: %v", c)
	}

	// C: duplicate New while "New (Copy 1)" exists.
	s.createStage(t, "New (Copy 1)")
	rec = s.do(t, http.MethodPost, "/api/v1/pipeline/stages/"+newStage.ID.String()+"/duplicate", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("duplicate: status %d body %s", rec.Code, rec.Body.String())
	}
	if dup := decode[transport.StageMutationResponse](t, rec).Stage; dup.Name != "New (Copy 2)" {
		t.Fatalf("scenario C: expected New (Copy 2), got %q", dup.Name)
	}
	data = s.pipeline(t)
	if c := countsByName(data); c["New (Copy 2)"] != 0 {
		t.Fatalf("scenario C: duplicate must be empty, got %d", c["New (Copy 2)"])
	}

	// D: delete Qualified while Ana is in it.
	rec = s.do(t, http.MethodDelete, "/api/v1/pipeline/stages/"+qualified.ID.String()+"?confirm=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete stage: status %d body %s", rec.Code, rec.Body.String())
	}
	data = s.pipeline(t)
	if len(data.Leads) != 1 || data.Leads[0].ID != ana.ID || data.Leads[0].Status != nil {
		t.Fatalf("scenario D: expected Ana listed with no stage, got %+v", data.Leads)
	}
}

func TestDestructiveRoutesNeedConfirmation(t *testing.T) {
	s := newTestServer(t, nil, true)
	stage := s.createStage(t, "New")
	s.createStage(t, "Qualified")
	lead := s.createLead(t, map[string]interface{}{"name": "Ana", "phone": "+5511987654321"})

	for _, path := range []string{
		"/api/v1/pipeline/stages/" + stage.ID.String(),
		"/api/v1/pipeline/leads/" + lead.ID.String(),
	} {
		rec := s.do(t, http.MethodDelete, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 without confirm, got %d", path, rec.Code)
		}
		if body := decode[httpkit.ErrorResponse](t, rec); body.Error != "confirmation required" {
			t.Fatalf("%s: unexpected error body %q", path, body.Error)
		}
	}
	if len(s.pipeline(t).Leads) != 1 {
		t.Fatal("lead must survive an unconfirmed delete")
	}
}

func TestCreateLeadValidation(t *testing.T) {
	s := newTestServer(t, nil, true)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{name: "blank name", body: map[string]interface{}{"name": "   ", "phone": "+5511987654321"}},
		{name: "missing phone", body: map[string]interface{}{"name": "Ana"}},
		{name: "bad email", body: map[string]interface{}{"name": "Ana", "phone": "+5511987654321", "email": "nope"}},
		{name: "negative value", body: map[string]interface{}{"name": "Ana", "phone": "+5511987654321", "value": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/pipeline/leads", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestReassignRequiresStageField(t *testing.T) {
	s := newTestServer(t, nil, true)
	lead := s.createLead(t, map[string]interface{}{"name": "Ana", "phone": "+5511987654321"})

	rec := s.do(t, http.MethodPatch, "/api/v1/pipeline/leads/"+lead.ID.String()+"/stage", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing stageId, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPatch, "/api/v1/pipeline/leads/"+lead.ID.String()+"/stage", map[string]interface{}{"stageId": nil})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected explicit null to unassign, got %d", rec.Code)
	}
}

func TestGetLeadNotFound(t *testing.T) {
	s := newTestServer(t, nil, true)

	rec := s.do(t, http.MethodGet, "/api/v1/pipeline/leads/"+uuid.NewString(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMissingTenantIsForbidden(t *testing.T) {
	s := newTestServer(t, nil, false)

	rec := s.do(t, http.MethodGet, "/api/v1/pipeline", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if body := decode[httpkit.ErrorResponse](t, rec); body.Error != "tenant required" {
		t.Fatalf("unexpected error body %q", body.Error)
	}
}

func TestProvision(t *testing.T) {
	t.Run("inline", func(t *testing.T) {
		s := newTestServer(t, nil, true)

		rec := s.do(t, http.MethodPost, "/api/v1/admin/pipeline/provision", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		resp := decode[transport.ProvisionResponse](t, rec)
		if !resp.Created || resp.Stage == nil || resp.Stage.Name != domain.DefaultStageName {
			t.Fatalf("unexpected response %+v", resp)
		}

		again := decode[transport.ProvisionResponse](t, s.do(t, http.MethodPost, "/api/v1/admin/pipeline/provision", nil))
		if again.Created {
			t.Fatal("second provisioning must not create another stage")
		}
	})

	t.Run("queued", func(t *testing.T) {
		queue := &fakeQueue{}
		s := newTestServer(t, queue, true)

		rec := s.do(t, http.MethodPost, "/api/v1/admin/pipeline/provision", nil)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
		if len(queue.tenants) != 1 || queue.tenants[0] != s.actor.TenantID {
			t.Fatalf("expected tenant to be queued, got %v", queue.tenants)
		}
	})
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t, nil, true)
	stage := s.createStage(t, "New")
	s.createLead(t, map[string]interface{}{"name": "Ana", "phone": "+5511987654321", "stageId": stage.ID, "tags": []string{"buyer", "vip"}, "value": 1000})
	s.createLead(t, map[string]interface{}{"name": "Bruno", "phone": "+5511987654322"})

	rec := s.do(t, http.MethodGet, "/api/v1/pipeline/export.csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}

	rows, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and two rows, got %d", len(rows))
	}
	if rows[1][0] != "New" || rows[1][1] != "Ana" || rows[1][4] != "buyer;vip" || rows[1][6] != "1000.00" || rows[1][7] != "Carla" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][0] != "" || rows[2][1] != "Bruno" {
		t.Fatalf("expected unassigned lead last with empty stage, got %v", rows[2])
	}
}
