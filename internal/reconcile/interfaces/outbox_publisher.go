package interfaces

import (
	"context"

	"cashdesk-cloud/internal/auth"
	"cashdesk-cloud/internal/eventing"
)

// OutboxPublisher writes ledger events to the outbox, carrying the
// request's tenant into the envelope metadata.
type OutboxPublisher struct {
	publisher *eventing.Publisher
}

// NewOutboxPublisher constructs an outbox publisher.
func NewOutboxPublisher(publisher *eventing.Publisher) *OutboxPublisher {
	return &OutboxPublisher{publisher: publisher}
}

// Publish writes the event to the outbox.
func (p *OutboxPublisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	if tenantID := auth.TenantIDFromContext(ctx); tenantID != "" {
		ctx = eventing.WithTenantID(ctx, tenantID)
	}
	return p.publisher.Publish(ctx, event)
}
