package correlation

import (
	"context"
	"testing"
)

func TestEnsureCorrelationIDGeneratesOnce(t *testing.T) {
	ctx, first := EnsureCorrelationID(context.Background())
	if first == "" {
		t.Fatalf("expected generated correlation id")
	}
	_, second := EnsureCorrelationID(ctx)
	if first != second {
		t.Fatalf("expected %q to be kept, got %q", first, second)
	}
}

func TestContextWithCorrelationIDIgnoresEmpty(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "")
	if got := ExtractCorrelationID(ctx); got != "" {
		t.Fatalf("expected empty correlation id, got %q", got)
	}
}
