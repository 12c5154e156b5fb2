package transport

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestOptionalUUIDDistinguishesAbsentFromNull(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		body    string
		wantSet bool
		wantID  *uuid.UUID
	}{
		{name: "absent", body: `{}`, wantSet: false},
		{name: "null", body: `{"assigneeId":null}`, wantSet: true},
		{name: "empty string", body: `{"assigneeId":""}`, wantSet: true},
		{name: "value", body: `{"assigneeId":"` + id.String() + `"}`, wantSet: true, wantID: &id},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req LeadRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if req.AssigneeID.Set != tt.wantSet {
				t.Fatalf("expected Set=%v, got %v", tt.wantSet, req.AssigneeID.Set)
			}
			if (tt.wantID == nil) != (req.AssigneeID.Value == nil) {
				t.Fatalf("expected value %v, got %v", tt.wantID, req.AssigneeID.Value)
			}
			if tt.wantID != nil && *req.AssigneeID.Value != *tt.wantID {
				t.Fatalf("expected %s, got %s", tt.wantID, req.AssigneeID.Value)
			}
		})
	}
}

func TestOptionalUUIDRejectsGarbage(t *testing.T) {
	var req ReassignStageRequest
	if err := json.Unmarshal([]byte(`{"stageId":"not-a-uuid"}`), &req); err == nil {
		t.Fatal("expected invalid uuid to fail")
	}
}
