package observability

import (
	"context"
	"testing"
	"time"
)

func TestMetricsRecording(t *testing.T) {
	metrics, err := NewMetrics(&MetricsConfig{Enabled: true, Namespace: "test_metrics_recording"})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	metrics.RecordAgentCall("planner", "chat", 100*time.Millisecond)
	metrics.RecordLLMCall("gpt-4o", "openai", 500*time.Millisecond)
	metrics.RecordLLMTokens("gpt-4o", "openai", 100, 50)
	metrics.RecordToolCall("search", 50*time.Millisecond)
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var metrics *Metrics

	metrics.RecordAgentCall("planner", "chat", 100*time.Millisecond)
	metrics.RecordLLMCall("gpt-4o", "openai", 500*time.Millisecond)
	metrics.RecordToolCall("search", 50*time.Millisecond)
	metrics.RecordLLMError("gpt-4o", "openai", "timeout")

	if metrics.Registry() != nil {
		t.Error("expected nil Registry() on a nil *Metrics")
	}
}

func TestGlobalMetrics(t *testing.T) {
	t.Cleanup(func() { SetGlobalMetrics(nil) })

	if GetGlobalMetrics() != nil {
		t.Fatal("expected no global metrics registered before SetGlobalMetrics")
	}

	metrics, err := NewMetrics(&MetricsConfig{Enabled: true, Namespace: "test_global_metrics"})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	SetGlobalMetrics(metrics)

	got := GetGlobalMetrics()
	if got != metrics {
		t.Fatal("GetGlobalMetrics did not return the registered instance")
	}
	got.RecordAgentCall("planner", "chat", 100*time.Millisecond)
}

func TestNewTracerDisabled(t *testing.T) {
	tracer, err := NewTracer(context.Background(), &TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	if tracer != nil {
		t.Fatal("expected a nil Tracer when tracing is disabled")
	}

	// A nil *Tracer still hands back a usable, no-op span.
	_, span := tracer.Start(context.Background(), SpanToolExecution)
	defer span.End()
	tracer.RecordError(span, nil)
}

func TestGetTracer(t *testing.T) {
	tracer := GetTracer("llamafarm.test")
	if tracer == nil {
		t.Fatal("expected a non-nil trace.Tracer")
	}
	_, span := tracer.Start(context.Background(), "test_span")
	span.End()
}
