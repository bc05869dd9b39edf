package interfaces

import (
	"context"
	"errors"
	"log"
)

// LoggingPublisher logs ledger events instead of publishing them. Useful
// for local runs without an outbox store.
type LoggingPublisher struct {
	logger *log.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *log.Logger) *LoggingPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// Publish logs the event.
func (p *LoggingPublisher) Publish(ctx context.Context, event any) error {
	_ = ctx
	if p == nil {
		return errors.New("ledger publisher: nil publisher")
	}
	p.logger.Printf("ledger event: %T %+v", event, event)
	return nil
}
