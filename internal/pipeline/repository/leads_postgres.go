package repository

import (
	"context"
	"errors"

	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const contactColumns = `id, tenant_id, name, phone, email, tags, created_at, updated_at`

const leadColumns = `id, tenant_id, contact_id, stage_id, assigned_user_id, notes, value::float8, source, created_at, updated_at`

const leadDetailsQuery = `
	SELECT l.id, l.tenant_id, l.contact_id, l.stage_id, l.assigned_user_id, l.notes, l.value::float8, l.source, l.created_at, l.updated_at,
		c.id, c.tenant_id, c.name, c.phone, c.email, c.tags, c.created_at, c.updated_at,
		u.display_name
	FROM leads l
	JOIN contacts c ON c.id = l.contact_id
	LEFT JOIN users u ON u.id = l.assigned_user_id
`

func scanContact(row pgx.Row) (domain.Contact, error) {
	var c domain.Contact
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email, &c.Tags, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var l domain.Lead
	err := row.Scan(&l.ID, &l.TenantID, &l.ContactID, &l.StageID, &l.AssignedUserID, &l.Notes, &l.Value, &l.Source, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func scanLeadDetails(row pgx.Row) (domain.LeadDetails, error) {
	var d domain.LeadDetails
	err := row.Scan(
		&d.ID, &d.TenantID, &d.ContactID, &d.StageID, &d.AssignedUserID, &d.Notes, &d.Value, &d.Source, &d.CreatedAt, &d.UpdatedAt,
		&d.Contact.ID, &d.Contact.TenantID, &d.Contact.Name, &d.Contact.Phone, &d.Contact.Email, &d.Contact.Tags, &d.Contact.CreatedAt, &d.Contact.UpdatedAt,
		&d.AssigneeName,
	)
	return d, err
}

// GetLead returns the lead row without its contact.
func (r *Repository) GetLead(ctx context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error) {
	l, err := scanLead(r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1 AND tenant_id = $2
	`, leadID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, apperr.NotFound(msgLeadNotFound).WithOp(opGetLead)
	}
	if err != nil {
		return domain.Lead{}, mapError(opGetLead, err)
	}
	return l, nil
}

// GetLeadDetails returns the lead joined with its contact and assignee.
func (r *Repository) GetLeadDetails(ctx context.Context, tenantID, leadID uuid.UUID) (domain.LeadDetails, error) {
	d, err := scanLeadDetails(r.pool.QueryRow(ctx, leadDetailsQuery+`WHERE l.id = $1 AND l.tenant_id = $2`, leadID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeadDetails{}, apperr.NotFound(msgLeadNotFound).WithOp(opGetLeadDetails)
	}
	if err != nil {
		return domain.LeadDetails{}, mapError(opGetLeadDetails, err)
	}
	return d, nil
}

// ListLeadDetails returns every lead of the tenant, newest first.
func (r *Repository) ListLeadDetails(ctx context.Context, tenantID uuid.UUID) ([]domain.LeadDetails, error) {
	rows, err := r.pool.Query(ctx, leadDetailsQuery+`WHERE l.tenant_id = $1 ORDER BY l.created_at DESC, l.id ASC`, tenantID)
	if err != nil {
		return nil, mapError(opListLeadDetails, err)
	}
	defer rows.Close()

	items := make([]domain.LeadDetails, 0)
	for rows.Next() {
		d, err := scanLeadDetails(rows)
		if err != nil {
			return nil, mapError(opListLeadDetails, err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(opListLeadDetails, err)
	}

	return items, nil
}

// upsertContact inserts the contact or overwrites the existing one with the
// same (tenant, phone).
func upsertContact(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, c ContactFields) (domain.Contact, error) {
	return scanContact(tx.QueryRow(ctx, `
		INSERT INTO contacts (tenant_id, name, phone, email, tags)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, phone) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			tags = EXCLUDED.tags,
			updated_at = now()
		RETURNING `+contactColumns, tenantID, c.Name, c.Phone, c.Email, tagsOrEmpty(c.Tags)))
}

// CreateLeadWithContact upserts the contact by phone and inserts the lead in
// one transaction.
func (r *Repository) CreateLeadWithContact(ctx context.Context, params CreateLeadParams) (domain.Lead, domain.Contact, error) {
	var (
		lead    domain.Lead
		contact domain.Contact
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		contact, err = upsertContact(ctx, tx, params.TenantID, params.Contact)
		if err != nil {
			return err
		}

		lead, err = scanLead(tx.QueryRow(ctx, `
			INSERT INTO leads (tenant_id, contact_id, stage_id, assigned_user_id, notes, value, source)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+leadColumns,
			params.TenantID, contact.ID, params.StageID, params.AssignedUserID, params.Notes, params.Value, params.Source))
		return err
	})
	if err != nil {
		return domain.Lead{}, domain.Contact{}, mapError(opCreateLead, err)
	}
	return lead, contact, nil
}

// UpdateLeadWithContact rewrites the lead's own contact in place. Changing the
// phone to one held by another contact of the tenant is a conflict.
func (r *Repository) UpdateLeadWithContact(ctx context.Context, params UpdateLeadParams) (domain.Lead, domain.Contact, error) {
	var (
		lead    domain.Lead
		contact domain.Contact
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var contactID uuid.UUID
		err := tx.QueryRow(ctx, `
			SELECT contact_id FROM leads
			WHERE id = $1 AND tenant_id = $2
			FOR UPDATE
		`, params.LeadID, params.TenantID).Scan(&contactID)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound(msgLeadNotFound).WithOp(opUpdateLead)
		}
		if err != nil {
			return err
		}

		contact, err = scanContact(tx.QueryRow(ctx, `
			UPDATE contacts SET name = $3, phone = $4, email = $5, tags = $6, updated_at = now()
			WHERE id = $1 AND tenant_id = $2
			RETURNING `+contactColumns,
			contactID, params.TenantID, params.Contact.Name, params.Contact.Phone, params.Contact.Email, tagsOrEmpty(params.Contact.Tags)))
		if err != nil {
			return err
		}

		lead, err = scanLead(tx.QueryRow(ctx, `
			UPDATE leads SET stage_id = $3, assigned_user_id = $4, notes = $5, value = $6, source = $7, updated_at = now()
			WHERE id = $1 AND tenant_id = $2
			RETURNING `+leadColumns,
			params.LeadID, params.TenantID, params.StageID, params.AssignedUserID, params.Notes, params.Value, params.Source))
		return err
	})
	if err != nil {
		return domain.Lead{}, domain.Contact{}, mapError(opUpdateLead, err)
	}
	return lead, contact, nil
}

// UpdateLeadStage moves the lead. It reports false when the lead already had
// stageID.
func (r *Repository) UpdateLeadStage(ctx context.Context, tenantID, leadID uuid.UUID, stageID *uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET stage_id = $3::uuid, updated_at = now()
		WHERE id = $1 AND tenant_id = $2 AND stage_id IS DISTINCT FROM $3::uuid
	`, leadID, tenantID, stageID)
	if err != nil {
		return false, mapError(opUpdateLeadStage, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM leads WHERE id = $1 AND tenant_id = $2)`, leadID, tenantID).Scan(&exists); err != nil {
		return false, mapError(opUpdateLeadStage, err)
	}
	if !exists {
		return false, apperr.NotFound(msgLeadNotFound).WithOp(opUpdateLeadStage)
	}
	return false, nil
}

// DeleteLead removes the lead. Its contact is kept.
func (r *Repository) DeleteLead(ctx context.Context, tenantID, leadID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1 AND tenant_id = $2`, leadID, tenantID)
	if err != nil {
		return mapError(opDeleteLead, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(msgLeadNotFound).WithOp(opDeleteLead)
	}
	return nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
