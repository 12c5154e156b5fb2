package scheduler

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskProvisionTenant = "pipeline:provision_tenant"

type ProvisionTenantPayload struct {
	TenantID string `json:"tenantId"`
}

func NewProvisionTenantTask(tenantID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(ProvisionTenantPayload{TenantID: tenantID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProvisionTenant, data), nil
}

func ParseProvisionTenantPayload(task *asynq.Task) (ProvisionTenantPayload, error) {
	var payload ProvisionTenantPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProvisionTenantPayload{}, err
	}
	return payload, nil
}

// provisionTaskID lets asynq drop duplicate requests for a tenant that is
// already queued.
func provisionTaskID(tenantID uuid.UUID) string {
	return "provision:" + tenantID.String()
}
