package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/navbat/queue-backend/internal/core/domain"
	apperrors "github.com/navbat/queue-backend/internal/core/errors"
	"github.com/navbat/queue-backend/internal/core/ports"
	"github.com/navbat/queue-backend/internal/core/utils"
)

// OrganizationRepository stores queue settings per organization.
type OrganizationRepository struct {
	pool *pgxpool.Pool
}

var _ ports.OrganizationRepository = (*OrganizationRepository)(nil)

// NewOrganizationRepository creates a new organization repository.
func NewOrganizationRepository(pool *pgxpool.Pool) *OrganizationRepository {
	return &OrganizationRepository{pool: pool}
}

func scanOrganization(row pgx.Row) (*domain.Organization, error) {
	var (
		org       domain.Organization
		status    string
		minutes   int32
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&org.ID, &status, &minutes, &updatedAt); err != nil {
		return nil, err
	}
	org.Status = domain.OrganizationStatus(status)
	org.EstimatedServiceTime = int(minutes)
	org.UpdatedAt = utils.FromTimestamptz(updatedAt)
	return &org, nil
}

// Get returns the stored settings or ErrOrganizationNotFound.
func (r *OrganizationRepository) Get(ctx context.Context, id string) (*domain.Organization, error) {
	query := `
		SELECT id, status, estimated_service_time, updated_at
		FROM organizations
		WHERE id = $1
	`

	org, err := scanOrganization(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrOrganizationNotFound
		}
		return nil, err
	}
	return org, nil
}

// Upsert creates or replaces the organization's settings.
func (r *OrganizationRepository) Upsert(ctx context.Context, org *domain.Organization) (*domain.Organization, error) {
	query := `
		INSERT INTO organizations (id, status, estimated_service_time, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			estimated_service_time = EXCLUDED.estimated_service_time,
			updated_at = EXCLUDED.updated_at
		RETURNING id, status, estimated_service_time, updated_at
	`

	return scanOrganization(GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		org.ID,
		string(org.Status),
		int32(org.ServiceMinutes()),
		utils.ToTimestamptz(org.UpdatedAt),
	))
}
