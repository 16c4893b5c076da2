package telemetry

import (
	"context"
	"testing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), "rdfetch", "", nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSampleRate(t *testing.T) {
	cases := map[string]float64{"": 0.1, "0.5": 0.5, "2": 0.1, "x": 0.1}
	for raw, want := range cases {
		t.Setenv("OTEL_TRACE_SAMPLE_RATE", raw)
		if got := sampleRate(); got != want {
			t.Errorf("sampleRate(%q) = %v, want %v", raw, got, want)
		}
	}
}
