package audit

import (
	"strings"
	"testing"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID()
	if !strings.HasPrefix(id, "audit-") || len(id) != len("audit-")+32 {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestChainDigestLinksEntries(t *testing.T) {
	first := ChainDigest("", DigestJSON([]byte(`{"a":1}`)))
	second := ChainDigest(first, DigestJSON([]byte(`{"a":2}`)))
	if first == second {
		t.Fatal("chain hashes must differ between entries")
	}
	// Same inputs must reproduce the same link.
	if got := ChainDigest(first, DigestJSON([]byte(`{"a":2}`))); got != second {
		t.Fatalf("chain digest not deterministic: %s vs %s", got, second)
	}
	// A different predecessor must break the link.
	if got := ChainDigest("forged", DigestJSON([]byte(`{"a":2}`))); got == second {
		t.Fatal("chain digest ignores predecessor")
	}
}
