package repository

import (
	"context"
	"errors"

	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/platform/apperr"
	"realty_crm_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opListStages      = "pipeline.repository.list_stages"
	opGetStage        = "pipeline.repository.get_stage"
	opListStageNames  = "pipeline.repository.list_stage_names"
	opCreateStage     = "pipeline.repository.create_stage"
	opRenameStage     = "pipeline.repository.rename_stage"
	opDeleteStage     = "pipeline.repository.delete_stage"
	opReorderStages   = "pipeline.repository.reorder_stages"
	opEnsureDefault   = "pipeline.repository.ensure_default_stage"
	opUnprovisioned   = "pipeline.repository.list_unprovisioned_tenants"
	opGetLead         = "pipeline.repository.get_lead"
	opGetLeadDetails  = "pipeline.repository.get_lead_details"
	opListLeadDetails = "pipeline.repository.list_lead_details"
	opCreateLead      = "pipeline.repository.create_lead"
	opUpdateLead      = "pipeline.repository.update_lead"
	opUpdateLeadStage = "pipeline.repository.update_lead_stage"
	opDeleteLead      = "pipeline.repository.delete_lead"

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// Repository is the Postgres implementation of the pipeline repositories.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a Postgres-backed repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const stageColumns = `id, tenant_id, name, order_index, created_at`

func scanStage(row pgx.Row) (domain.Stage, error) {
	var s domain.Stage
	err := row.Scan(&s.ID, &s.TenantID, &s.Name, &s.OrderIndex, &s.CreatedAt)
	return s, err
}

// ListStages returns the tenant's stages by order index, then creation time.
func (r *Repository) ListStages(ctx context.Context, tenantID uuid.UUID) ([]domain.Stage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+stageColumns+`
		FROM pipeline_stages
		WHERE tenant_id = $1
		ORDER BY order_index ASC, created_at ASC
	`, tenantID)
	if err != nil {
		return nil, mapError(opListStages, err)
	}
	defer rows.Close()

	stages := make([]domain.Stage, 0)
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, mapError(opListStages, err)
		}
		stages = append(stages, s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(opListStages, err)
	}

	return stages, nil
}

// GetStage returns one stage of the tenant.
func (r *Repository) GetStage(ctx context.Context, tenantID, stageID uuid.UUID) (domain.Stage, error) {
	s, err := scanStage(r.pool.QueryRow(ctx, `
		SELECT `+stageColumns+`
		FROM pipeline_stages
		WHERE id = $1 AND tenant_id = $2
	`, stageID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Stage{}, apperr.NotFound(msgStageNotFound).WithOp(opGetStage)
	}
	if err != nil {
		return domain.Stage{}, mapError(opGetStage, err)
	}
	return s, nil
}

// ListStageNames returns the names of the tenant's stages in no particular order.
func (r *Repository) ListStageNames(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM pipeline_stages WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, mapError(opListStageNames, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(opListStageNames, err)
	}
	return names, nil
}

// CreateStage inserts a stage after the tenant's current last one.
func (r *Repository) CreateStage(ctx context.Context, tenantID uuid.UUID, name string) (domain.Stage, error) {
	s, err := scanStage(r.pool.QueryRow(ctx, `
		INSERT INTO pipeline_stages (tenant_id, name, order_index)
		SELECT $1, $2, COALESCE(MAX(order_index) + 1, 0)
		FROM pipeline_stages
		WHERE tenant_id = $1
		RETURNING `+stageColumns, tenantID, name))
	if err != nil {
		return domain.Stage{}, mapError(opCreateStage, err)
	}
	return s, nil
}

// RenameStage changes the stage name and keeps its position.
func (r *Repository) RenameStage(ctx context.Context, tenantID, stageID uuid.UUID, name string) (domain.Stage, error) {
	s, err := scanStage(r.pool.QueryRow(ctx, `
		UPDATE pipeline_stages SET name = $3
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+stageColumns, stageID, tenantID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Stage{}, apperr.NotFound(msgStageNotFound).WithOp(opRenameStage)
	}
	if err != nil {
		return domain.Stage{}, mapError(opRenameStage, err)
	}
	return s, nil
}

// DeleteStage removes the stage. leads.stage_id is ON DELETE SET NULL, so
// leads in the stage become unassigned. The tenant advisory lock shared with
// EnsureDefaultStage makes the last-stage check and the delete atomic.
func (r *Repository) DeleteStage(ctx context.Context, tenantID, stageID uuid.UUID) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockTenant(ctx, tx, tenantID); err != nil {
			return err
		}

		var exists bool
		var count int
		if err := tx.QueryRow(ctx, `
			SELECT
				EXISTS (SELECT 1 FROM pipeline_stages WHERE id = $1 AND tenant_id = $2),
				(SELECT count(*) FROM pipeline_stages WHERE tenant_id = $2)
		`, stageID, tenantID).Scan(&exists, &count); err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound(msgStageNotFound).WithOp(opDeleteStage)
		}
		if count <= 1 {
			return apperr.Conflict(msgLastStage).WithOp(opDeleteStage)
		}

		_, err := tx.Exec(ctx, `DELETE FROM pipeline_stages WHERE id = $1 AND tenant_id = $2`, stageID, tenantID)
		return err
	})
	if err != nil {
		return mapError(opDeleteStage, err)
	}
	return nil
}

// lockTenant serialises stage-set changes of one tenant until tx ends.
func lockTenant(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, tenantID.String())
	return err
}

// ReorderStages assigns order indexes by position in orderedIDs, in one
// transaction.
func (r *Repository) ReorderStages(ctx context.Context, tenantID uuid.UUID, orderedIDs []uuid.UUID) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for idx, id := range orderedIDs {
			tag, err := tx.Exec(ctx, `
				UPDATE pipeline_stages SET order_index = $3
				WHERE id = $1 AND tenant_id = $2
			`, id, tenantID, idx)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return apperr.NotFound(msgStageNotFound).WithOp(opReorderStages).WithDetails(map[string]interface{}{"stageId": id})
			}
		}
		return nil
	})
	if err != nil {
		return mapError(opReorderStages, err)
	}
	return nil
}

// EnsureDefaultStage creates the first stage of a tenant under the tenant
// advisory lock, so concurrent calls create at most one.
func (r *Repository) EnsureDefaultStage(ctx context.Context, tenantID uuid.UUID, name string) (domain.Stage, bool, error) {
	var (
		stage   domain.Stage
		created bool
	)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockTenant(ctx, tx, tenantID); err != nil {
			return err
		}

		existing, err := scanStage(tx.QueryRow(ctx, `
			SELECT `+stageColumns+`
			FROM pipeline_stages
			WHERE tenant_id = $1
			ORDER BY order_index ASC, created_at ASC
			LIMIT 1
		`, tenantID))
		if err == nil {
			stage = existing
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		stage, err = scanStage(tx.QueryRow(ctx, `
			INSERT INTO pipeline_stages (tenant_id, name, order_index)
			VALUES ($1, $2, 0)
			RETURNING `+stageColumns, tenantID, name))
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return domain.Stage{}, false, mapError(opEnsureDefault, err)
	}
	return stage, created, nil
}

// mapError converts driver errors into *apperr.Error. Errors that already
// carry a kind pass through unchanged.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperr.Error
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperr.Conflict(msgPhoneConflict).WithOp(op)
		case pgForeignKeyViolation:
			return apperr.Validation(msgMissingRelation).WithOp(op)
		case pgCheckViolation:
			return apperr.Validation(msgInvalidValue).WithOp(op).WithDetails(map[string]interface{}{"constraint": pgErr.ConstraintName})
		}
	}
	return apperr.Persistence(op, err)
}

// ListUnprovisionedTenants returns tenants with users but no stages.
func (r *Repository) ListUnprovisionedTenants(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT u.tenant_id
		FROM users u
		WHERE NOT EXISTS (
			SELECT 1 FROM pipeline_stages s WHERE s.tenant_id = u.tenant_id
		)
		ORDER BY u.tenant_id`)
	if err != nil {
		return nil, mapError(opUnprovisioned, err)
	}
	defer rows.Close()

	tenants := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(opUnprovisioned, err)
		}
		tenants = append(tenants, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(opUnprovisioned, err)
	}
	return tenants, nil
}
