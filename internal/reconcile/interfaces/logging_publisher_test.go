package interfaces

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"cashdesk-cloud/internal/reconcile/application/events"
)

func TestLoggingPublisherLogsEvent(t *testing.T) {
	var buf bytes.Buffer
	pub := NewLoggingPublisher(log.New(&buf, "", 0))

	err := pub.Publish(context.Background(), events.LedgerSettled{
		LedgerID:    "led-1",
		ProtocolKey: "P-1",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.Contains(buf.String(), "LedgerSettled") {
		t.Fatalf("log output = %q, want event type named", buf.String())
	}
}
