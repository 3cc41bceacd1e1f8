package otel

import (
	"context"
	"testing"

	"flashsettle/config"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = secret ,broken, =x,tenant=flash")
	if len(got) != 2 || got["api-key"] != "secret" || got["tenant"] != "flash" {
		t.Fatalf("unexpected headers %v", got)
	}
	if len(ParseHeaders("")) != 0 {
		t.Fatalf("expected empty map")
	}
}

func TestFromTelemetry(t *testing.T) {
	cfg := FromTelemetry("flashd", "test", config.Telemetry{
		Endpoint:    " collector:4318 ",
		Headers:     "a=b",
		Traces:      true,
		SampleRatio: 0.5,
	})
	if cfg.Endpoint != "collector:4318" || cfg.Headers["a"] != "b" || !cfg.Enabled() || cfg.SampleRatio != 0.5 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "flashd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
}
