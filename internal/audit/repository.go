package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository writes hash-chained audit logs to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry, linking it to the tenant's previous entry.
// Chain lookup and insert run in one transaction so concurrent writers
// cannot fork the chain.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var prevHash sql.NullString
	err = tx.QueryRowContext(ctx, `
SELECT chain_hash
FROM audit_logs
WHERE tenant_id = $1
ORDER BY created_at DESC, id DESC
LIMIT 1
FOR UPDATE`, entry.TenantID).Scan(&prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	entry.PrevHash = prevHash.String
	entry.ChainHash = ChainDigest(entry.PrevHash, entry.PayloadDigest)

	_, err = tx.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, tenant_id, actor, role, action, resource_type, resource_id, session_id,
	metadata, payload_digest, prev_hash, chain_hash, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)`, entry.ID, entry.TenantID, entry.Actor, entry.Role, entry.Action, entry.ResourceType, entry.ResourceID, entry.SessionID,
		entry.Metadata, entry.PayloadDigest, entry.PrevHash, entry.ChainHash, entry.IP, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}
