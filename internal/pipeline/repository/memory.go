package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/platform/apperr"

	"github.com/google/uuid"
)

type memUser struct {
	tenantID    uuid.UUID
	displayName string
}

// Memory is an in-memory repository enforcing the same constraints as the SQL
// schema: unique contact phone per tenant, leads.stage_id ON DELETE SET NULL,
// foreign keys on stage, contact and assignee, non-blank stage names,
// non-negative lead values, and all-or-nothing writes.
type Memory struct {
	mu       sync.RWMutex
	last     time.Time
	stages   map[uuid.UUID]domain.Stage
	contacts map[uuid.UUID]domain.Contact
	leads    map[uuid.UUID]domain.Lead
	users    map[uuid.UUID]memUser
	failures map[string]error
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		stages:   make(map[uuid.UUID]domain.Stage),
		contacts: make(map[uuid.UUID]domain.Contact),
		leads:    make(map[uuid.UUID]domain.Lead),
		users:    make(map[uuid.UUID]memUser),
		failures: make(map[string]error),
	}
}

// AddUser registers a user that leads may be assigned to.
func (m *Memory) AddUser(tenantID, userID uuid.UUID, displayName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = memUser{tenantID: tenantID, displayName: displayName}
}

// FailNext makes the next call of the named operation fail with a persistence
// error wrapping err. Operation names are the method names, e.g. "UpdateLeadStage".
func (m *Memory) FailNext(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[operation] = err
}

// injected must be called with m.mu held.
func (m *Memory) injected(operation, op string) error {
	err, ok := m.failures[operation]
	if !ok {
		return nil
	}
	delete(m.failures, operation)
	return apperr.Persistence(op, err)
}

// now returns strictly increasing timestamps so ordering by creation time is
// deterministic. Must be called with m.mu held.
func (m *Memory) now() time.Time {
	t := time.Now().UTC()
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

func (m *Memory) ListStages(_ context.Context, tenantID uuid.UUID) ([]domain.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ListStages", opListStages); err != nil {
		return nil, err
	}
	return m.sortedStages(tenantID), nil
}

func (m *Memory) sortedStages(tenantID uuid.UUID) []domain.Stage {
	stages := make([]domain.Stage, 0)
	for _, s := range m.stages {
		if s.TenantID == tenantID {
			stages = append(stages, s)
		}
	}
	sort.Slice(stages, func(i, j int) bool {
		if stages[i].OrderIndex != stages[j].OrderIndex {
			return stages[i].OrderIndex < stages[j].OrderIndex
		}
		return stages[i].CreatedAt.Before(stages[j].CreatedAt)
	})
	return stages
}

func (m *Memory) GetStage(_ context.Context, tenantID, stageID uuid.UUID) (domain.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetStage", opGetStage); err != nil {
		return domain.Stage{}, err
	}
	s, ok := m.stages[stageID]
	if !ok || s.TenantID != tenantID {
		return domain.Stage{}, apperr.NotFound(msgStageNotFound).WithOp(opGetStage)
	}
	return s, nil
}

func (m *Memory) ListStageNames(_ context.Context, tenantID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ListStageNames", opListStageNames); err != nil {
		return nil, err
	}
	names := make([]string, 0)
	for _, s := range m.stages {
		if s.TenantID == tenantID {
			names = append(names, s.Name)
		}
	}
	return names, nil
}

func (m *Memory) CreateStage(_ context.Context, tenantID uuid.UUID, name string) (domain.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateStage", opCreateStage); err != nil {
		return domain.Stage{}, err
	}
	if err := checkStageName(name, opCreateStage); err != nil {
		return domain.Stage{}, err
	}
	next := 0
	for _, s := range m.stages {
		if s.TenantID == tenantID && s.OrderIndex+1 > next {
			next = s.OrderIndex + 1
		}
	}
	return m.insertStage(tenantID, name, next), nil
}

func (m *Memory) insertStage(tenantID uuid.UUID, name string, orderIndex int) domain.Stage {
	s := domain.Stage{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Name:       name,
		OrderIndex: orderIndex,
		CreatedAt:  m.now(),
	}
	m.stages[s.ID] = s
	return s
}

// checkStageName mirrors pipeline_stages CHECK (btrim(name) <> '').
func checkStageName(name, op string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validation(msgInvalidValue).WithOp(op).WithDetails(map[string]interface{}{"column": "name"})
	}
	return nil
}

// checkValue mirrors leads CHECK (value >= 0).
func checkValue(value float64, op string) error {
	if value < 0 {
		return apperr.Validation(msgInvalidValue).WithOp(op).WithDetails(map[string]interface{}{"column": "value"})
	}
	return nil
}

func (m *Memory) RenameStage(_ context.Context, tenantID, stageID uuid.UUID, name string) (domain.Stage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("RenameStage", opRenameStage); err != nil {
		return domain.Stage{}, err
	}
	if err := checkStageName(name, opRenameStage); err != nil {
		return domain.Stage{}, err
	}
	s, ok := m.stages[stageID]
	if !ok || s.TenantID != tenantID {
		return domain.Stage{}, apperr.NotFound(msgStageNotFound).WithOp(opRenameStage)
	}
	s.Name = name
	m.stages[stageID] = s
	return s, nil
}

func (m *Memory) DeleteStage(_ context.Context, tenantID, stageID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("DeleteStage", opDeleteStage); err != nil {
		return err
	}
	s, ok := m.stages[stageID]
	if !ok || s.TenantID != tenantID {
		return apperr.NotFound(msgStageNotFound).WithOp(opDeleteStage)
	}
	if len(m.sortedStages(tenantID)) <= 1 {
		return apperr.Conflict(msgLastStage).WithOp(opDeleteStage)
	}
	delete(m.stages, stageID)
	for id, l := range m.leads {
		if l.StageID != nil && *l.StageID == stageID {
			l.StageID = nil
			m.leads[id] = l
		}
	}
	return nil
}

func (m *Memory) ReorderStages(_ context.Context, tenantID uuid.UUID, orderedIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ReorderStages", opReorderStages); err != nil {
		return err
	}
	for _, id := range orderedIDs {
		if s, ok := m.stages[id]; !ok || s.TenantID != tenantID {
			return apperr.NotFound(msgStageNotFound).WithOp(opReorderStages).WithDetails(map[string]interface{}{"stageId": id})
		}
	}
	for idx, id := range orderedIDs {
		s := m.stages[id]
		s.OrderIndex = idx
		m.stages[id] = s
	}
	return nil
}

func (m *Memory) EnsureDefaultStage(_ context.Context, tenantID uuid.UUID, name string) (domain.Stage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("EnsureDefaultStage", opEnsureDefault); err != nil {
		return domain.Stage{}, false, err
	}
	if existing := m.sortedStages(tenantID); len(existing) > 0 {
		return existing[0], false, nil
	}
	if err := checkStageName(name, opEnsureDefault); err != nil {
		return domain.Stage{}, false, err
	}
	return m.insertStage(tenantID, name, 0), true, nil
}

func (m *Memory) ListUnprovisionedTenants(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ListUnprovisionedTenants", opUnprovisioned); err != nil {
		return nil, err
	}
	provisioned := make(map[uuid.UUID]bool)
	for _, s := range m.stages {
		provisioned[s.TenantID] = true
	}
	seen := make(map[uuid.UUID]bool)
	tenants := make([]uuid.UUID, 0)
	for _, u := range m.users {
		if provisioned[u.tenantID] || seen[u.tenantID] {
			continue
		}
		seen[u.tenantID] = true
		tenants = append(tenants, u.tenantID)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].String() < tenants[j].String() })
	return tenants, nil
}

func (m *Memory) GetLead(_ context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetLead", opGetLead); err != nil {
		return domain.Lead{}, err
	}
	l, ok := m.leads[leadID]
	if !ok || l.TenantID != tenantID {
		return domain.Lead{}, apperr.NotFound(msgLeadNotFound).WithOp(opGetLead)
	}
	return cloneLead(l), nil
}

func (m *Memory) GetLeadDetails(_ context.Context, tenantID, leadID uuid.UUID) (domain.LeadDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("GetLeadDetails", opGetLeadDetails); err != nil {
		return domain.LeadDetails{}, err
	}
	l, ok := m.leads[leadID]
	if !ok || l.TenantID != tenantID {
		return domain.LeadDetails{}, apperr.NotFound(msgLeadNotFound).WithOp(opGetLeadDetails)
	}
	return m.details(l), nil
}

func (m *Memory) ListLeadDetails(_ context.Context, tenantID uuid.UUID) ([]domain.LeadDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("ListLeadDetails", opListLeadDetails); err != nil {
		return nil, err
	}
	items := make([]domain.LeadDetails, 0)
	for _, l := range m.leads {
		if l.TenantID == tenantID {
			items = append(items, m.details(l))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (m *Memory) details(l domain.Lead) domain.LeadDetails {
	d := domain.LeadDetails{Lead: cloneLead(l), Contact: cloneContact(m.contacts[l.ContactID])}
	if l.AssignedUserID != nil {
		if u, ok := m.users[*l.AssignedUserID]; ok {
			name := u.displayName
			d.AssigneeName = &name
		}
	}
	return d
}

// checkRefs mirrors the leads foreign keys. Must be called with m.mu held.
func (m *Memory) checkRefs(tenantID uuid.UUID, stageID, assigneeID *uuid.UUID, op string) error {
	if stageID != nil {
		if s, ok := m.stages[*stageID]; !ok || s.TenantID != tenantID {
			return apperr.Validation(msgMissingRelation).WithOp(op)
		}
	}
	if assigneeID != nil {
		if _, ok := m.users[*assigneeID]; !ok {
			return apperr.Validation(msgMissingRelation).WithOp(op)
		}
	}
	return nil
}

func (m *Memory) findContactByPhone(tenantID uuid.UUID, phone string) (domain.Contact, bool) {
	for _, c := range m.contacts {
		if c.TenantID == tenantID && c.Phone == phone {
			return c, true
		}
	}
	return domain.Contact{}, false
}

// CreateLeadWithContact validates every reference before writing anything, so
// a failed lead insert leaves the contacts untouched.
func (m *Memory) CreateLeadWithContact(_ context.Context, params CreateLeadParams) (domain.Lead, domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("CreateLeadWithContact", opCreateLead); err != nil {
		return domain.Lead{}, domain.Contact{}, err
	}
	if err := checkValue(params.Value, opCreateLead); err != nil {
		return domain.Lead{}, domain.Contact{}, err
	}
	if err := m.checkRefs(params.TenantID, params.StageID, params.AssignedUserID, opCreateLead); err != nil {
		return domain.Lead{}, domain.Contact{}, err
	}

	now := m.now()
	contact, exists := m.findContactByPhone(params.TenantID, params.Contact.Phone)
	if !exists {
		contact = domain.Contact{ID: uuid.New(), TenantID: params.TenantID, Phone: params.Contact.Phone, CreatedAt: now}
	}
	contact.Name = params.Contact.Name
	contact.Email = cloneString(params.Contact.Email)
	contact.Tags = append([]string{}, params.Contact.Tags...)
	contact.UpdatedAt = now
	m.contacts[contact.ID] = contact

	lead := domain.Lead{
		ID:             uuid.New(),
		TenantID:       params.TenantID,
		ContactID:      contact.ID,
		StageID:        domain.CloneID(params.StageID),
		AssignedUserID: domain.CloneID(params.AssignedUserID),
		Notes:          params.Notes,
		Value:          params.Value,
		Source:         params.Source,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.leads[lead.ID] = lead

	return cloneLead(lead), cloneContact(contact), nil
}

func (m *Memory) UpdateLeadWithContact(_ context.Context, params UpdateLeadParams) (domain.Lead, domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("UpdateLeadWithContact", opUpdateLead); err != nil {
		return domain.Lead{}, domain.Contact{}, err
	}
	lead, ok := m.leads[params.LeadID]
	if !ok || lead.TenantID != params.TenantID {
		return domain.Lead{}, domain.Contact{}, apperr.NotFound(msgLeadNotFound).WithOp(opUpdateLead)
	}
	if err := checkValue(params.Value, opUpdateLead); err != nil {
		return domain.Lead{}, domain.Contact{}, err
	}
	if err := m.checkRefs(params.TenantID, params.StageID, params.AssignedUserID, opUpdateLead); err != nil {
		return domain.Lead{}, domain.Contact{}, err
	}
	if other, taken := m.findContactByPhone(params.TenantID, params.Contact.Phone); taken && other.ID != lead.ContactID {
		return domain.Lead{}, domain.Contact{}, apperr.Conflict(msgPhoneConflict).WithOp(opUpdateLead)
	}

	now := m.now()
	contact := m.contacts[lead.ContactID]
	contact.Name = params.Contact.Name
	contact.Phone = params.Contact.Phone
	contact.Email = cloneString(params.Contact.Email)
	contact.Tags = append([]string{}, params.Contact.Tags...)
	contact.UpdatedAt = now
	m.contacts[contact.ID] = contact

	lead.StageID = domain.CloneID(params.StageID)
	lead.AssignedUserID = domain.CloneID(params.AssignedUserID)
	lead.Notes = params.Notes
	lead.Value = params.Value
	lead.Source = params.Source
	lead.UpdatedAt = now
	m.leads[lead.ID] = lead

	return cloneLead(lead), cloneContact(contact), nil
}

func (m *Memory) UpdateLeadStage(_ context.Context, tenantID, leadID uuid.UUID, stageID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("UpdateLeadStage", opUpdateLeadStage); err != nil {
		return false, err
	}
	lead, ok := m.leads[leadID]
	if !ok || lead.TenantID != tenantID {
		return false, apperr.NotFound(msgLeadNotFound).WithOp(opUpdateLeadStage)
	}
	if domain.SameStage(lead.StageID, stageID) {
		return false, nil
	}
	if err := m.checkRefs(tenantID, stageID, nil, opUpdateLeadStage); err != nil {
		return false, err
	}
	lead.StageID = domain.CloneID(stageID)
	lead.UpdatedAt = m.now()
	m.leads[leadID] = lead
	return true, nil
}

func (m *Memory) DeleteLead(_ context.Context, tenantID, leadID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("DeleteLead", opDeleteLead); err != nil {
		return err
	}
	lead, ok := m.leads[leadID]
	if !ok || lead.TenantID != tenantID {
		return apperr.NotFound(msgLeadNotFound).WithOp(opDeleteLead)
	}
	delete(m.leads, leadID)
	return nil
}

// ContactCount returns the number of contacts stored for the tenant.
func (m *Memory) ContactCount(tenantID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, c := range m.contacts {
		if c.TenantID == tenantID {
			count++
		}
	}
	return count
}

func cloneLead(l domain.Lead) domain.Lead {
	l.StageID = domain.CloneID(l.StageID)
	l.AssignedUserID = domain.CloneID(l.AssignedUserID)
	return l
}

func cloneContact(c domain.Contact) domain.Contact {
	c.Email = cloneString(c.Email)
	if c.Tags != nil {
		c.Tags = append([]string{}, c.Tags...)
	}
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

var (
	_ StageReader  = (*Memory)(nil)
	_ StageWriter  = (*Memory)(nil)
	_ LeadReader   = (*Memory)(nil)
	_ LeadWriter   = (*Memory)(nil)
	_ TenantReader = (*Memory)(nil)

	_ StageReader  = (*Repository)(nil)
	_ StageWriter  = (*Repository)(nil)
	_ LeadReader   = (*Repository)(nil)
	_ LeadWriter   = (*Repository)(nil)
	_ TenantReader = (*Repository)(nil)
)
