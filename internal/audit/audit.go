package audit

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Entry represents an audit log entry. Entries are hash-chained per tenant:
// ChainHash covers the previous entry's chain hash plus this entry's digest,
// so any tampering with history breaks every later link.
type Entry struct {
	ID            string
	TenantID      string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	SessionID     string
	Metadata      json.RawMessage
	PayloadDigest string
	PrevHash      string
	ChainHash     string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "audit-" + hex.EncodeToString(buf)
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChainDigest links an entry to its predecessor.
func ChainDigest(prevHash, payloadDigest string) string {
	sum := sha256.Sum256([]byte(prevHash + "|" + payloadDigest))
	return hex.EncodeToString(sum[:])
}
