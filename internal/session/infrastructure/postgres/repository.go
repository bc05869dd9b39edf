package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	session "cashdesk-cloud/internal/session/domain"
)

// Repository is a Postgres implementation of the session store. It relies
// on a partial unique index over (tenant_id, register_id) WHERE status =
// 'OPEN' to keep one open session per register.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const sessionColumns = `
id, tenant_id, register_id, status, opened_by, opening_float, opened_at,
closed_by, closed_at, counted_balance, expected_balance, difference`

// Get loads one session.
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*session.Session, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("session repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT`+sessionColumns+`
FROM till_sessions
WHERE tenant_id = $1 AND id = $2
LIMIT 1`, tenantID, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// Create persists a freshly opened session.
func (r *Repository) Create(ctx context.Context, sess *session.Session) error {
	if r == nil || r.db == nil {
		return errors.New("session repo: nil db")
	}
	state := sess.State()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO till_sessions (
	id, tenant_id, register_id, status, opened_by, opening_float, opened_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`, state.ID, state.TenantID, state.RegisterID, state.Status, state.OpenedBy, state.OpeningFloat, state.OpenedAt)
	if err != nil {
		if strings.Contains(err.Error(), "till_sessions_one_open") {
			return session.ErrRegisterBusy
		}
		return err
	}
	return nil
}

// Update persists a close.
func (r *Repository) Update(ctx context.Context, sess *session.Session) error {
	if r == nil || r.db == nil {
		return errors.New("session repo: nil db")
	}
	state := sess.State()
	res, err := r.db.ExecContext(ctx, `
UPDATE till_sessions
SET status = $1,
	closed_by = $2,
	closed_at = $3,
	counted_balance = $4,
	expected_balance = $5,
	difference = $6
WHERE tenant_id = $7 AND id = $8`,
		state.Status, state.ClosedBy, state.ClosedAt,
		state.CountedBalance, state.ExpectedBalance, state.Difference,
		state.TenantID, state.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// FindOpenByRegister returns the register's open session, nil when none.
func (r *Repository) FindOpenByRegister(ctx context.Context, tenantID, registerID string) (*session.Session, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("session repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT`+sessionColumns+`
FROM till_sessions
WHERE tenant_id = $1 AND register_id = $2 AND status = 'OPEN'
LIMIT 1`, tenantID, registerID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sess, nil
}

// ListByTenant returns the tenant's sessions, newest first.
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]*session.Session, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("session repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT`+sessionColumns+`
FROM till_sessions
WHERE tenant_id = $1
ORDER BY opened_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// IsClosed reports whether a session is closed. Unknown sessions count as
// closed so orphaned ledgers are picked up by migration.
func (r *Repository) IsClosed(ctx context.Context, tenantID, sessionID string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("session repo: nil db")
	}
	var status string
	err := r.db.QueryRowContext(ctx, `
SELECT status FROM till_sessions
WHERE tenant_id = $1 AND id = $2
LIMIT 1`, tenantID, sessionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, err
	}
	return session.Status(status) == session.StatusClosed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*session.Session, error) {
	var state session.State
	var status string
	var closedBy sql.NullString
	var closedAt sql.NullTime
	var counted, expected, difference decimal.NullDecimal
	if err := row.Scan(
		&state.ID,
		&state.TenantID,
		&state.RegisterID,
		&status,
		&state.OpenedBy,
		&state.OpeningFloat,
		&state.OpenedAt,
		&closedBy,
		&closedAt,
		&counted,
		&expected,
		&difference,
	); err != nil {
		return nil, err
	}
	state.Status = session.Status(status)
	state.ClosedBy = closedBy.String
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		state.ClosedAt = &t
	}
	state.CountedBalance = counted.Decimal
	state.ExpectedBalance = expected.Decimal
	state.Difference = difference.Decimal
	state.OpenedAt = state.OpenedAt.UTC()
	return session.Rehydrate(state), nil
}
