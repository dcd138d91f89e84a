package tracing

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestDisabledProviderNeverSamples(t *testing.T) {
	provider, err := NewProvider(nil, Config{Enabled: false}, zap.NewNop())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	_, span := provider.Tracer("test").Start(context.Background(), "allocate")
	defer span.End()
	if span.SpanContext().IsSampled() {
		t.Fatalf("disabled provider must not sample")
	}
}

func TestUnsupportedProtocolFails(t *testing.T) {
	if _, err := NewProvider(nil, Config{Enabled: true, ExporterProtocol: "carrier-pigeon"}, zap.NewNop()); err == nil {
		t.Fatalf("expected unsupported protocol error")
	}
}

func TestClampRatio(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0.25: 0.25, 3: 1} {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v) = %v, want %v", in, got, want)
		}
	}
}
