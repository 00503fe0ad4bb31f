package idgen

import (
	"strings"
	"testing"
)

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("alrt_")
	if !strings.HasPrefix(id, "alrt_") {
		t.Fatalf("expected alrt_ prefix, got %q", id)
	}
	if len(id) != len("alrt_")+24 {
		t.Fatalf("expected 24 hex chars after prefix, got %q", id)
	}
	if WithPrefix("alrt_") == id {
		t.Fatal("ids should not repeat")
	}
}

func TestHex_Length(t *testing.T) {
	if got := len(Hex(4)); got != 8 {
		t.Fatalf("Hex(4) length = %d, want 8", got)
	}
}
