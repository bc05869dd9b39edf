package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	masterdata "cashdesk-cloud/internal/masterdata/domain"
)

// DBTX is the subset of *sql.DB / *sql.Tx the repositories need.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const defaultRegistersTable = "registers"

// RegisterRepository is a Postgres implementation for registers.
type RegisterRepository struct {
	db    DBTX
	table string
}

// NewRegisterRepository constructs a repository.
func NewRegisterRepository(db DBTX, opts ...RegisterOption) *RegisterRepository {
	repo := &RegisterRepository{db: db, table: defaultRegistersTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RegisterOption configures the repository.
type RegisterOption func(*RegisterRepository)

// WithRegistersTable overrides the default table name.
func WithRegistersTable(table string) RegisterOption {
	return func(repo *RegisterRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Get loads a register by id.
func (r *RegisterRepository) Get(ctx context.Context, id string) (*masterdata.Register, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("register repo: nil db")
	}
	if id == "" {
		return nil, errors.New("register repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, location, active, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var reg masterdata.Register
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&reg.ID,
		&reg.TenantID,
		&reg.Name,
		&reg.Location,
		&reg.Active,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	reg.UpdatedAt = reg.UpdatedAt.UTC()
	return &reg, nil
}

// ListByTenant returns every register of the tenant, name order.
func (r *RegisterRepository) ListByTenant(ctx context.Context, tenantID string) ([]masterdata.Register, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("register repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("register repo: empty tenant id")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, name, location, active, created_at, updated_at
FROM %s
WHERE tenant_id = $1
ORDER BY name ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Register
	for rows.Next() {
		var reg masterdata.Register
		if err := rows.Scan(
			&reg.ID,
			&reg.TenantID,
			&reg.Name,
			&reg.Location,
			&reg.Active,
			&reg.CreatedAt,
			&reg.UpdatedAt,
		); err != nil {
			return nil, err
		}
		reg.CreatedAt = reg.CreatedAt.UTC()
		reg.UpdatedAt = reg.UpdatedAt.UTC()
		result = append(result, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a register.
func (r *RegisterRepository) Save(ctx context.Context, register *masterdata.Register) error {
	if r == nil || r.db == nil {
		return errors.New("register repo: nil db")
	}
	if register == nil {
		return errors.New("register repo: nil register")
	}
	if err := register.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	tenant_id,
	name,
	location,
	active
) VALUES (
	$1, $2, $3, $4, $5
)
ON CONFLICT (id)
DO UPDATE SET
	tenant_id = EXCLUDED.tenant_id,
	name = EXCLUDED.name,
	location = EXCLUDED.location,
	active = EXCLUDED.active,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		register.ID,
		register.TenantID,
		register.Name,
		register.Location,
		register.Active,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if register.CreatedAt.IsZero() {
		register.CreatedAt = now
	}
	register.UpdatedAt = now
	return nil
}
