package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

// sumByAttr returns the value of the Sum[int64] data point whose attribute
// key equals want, or -1 when absent.
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name, key, want string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == want {
			return dp.Value
		}
	}
	return -1
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"contractd.gateway.duration", m.GatewayDuration},
		{"contractd.stage.duration", m.StageDuration},
		{"contractd.stt.duration", m.STTDuration},
		{"contractd.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordGatewayCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGatewayCall(ctx, "classify", "ok", 0.2)
	m.RecordGatewayCall(ctx, "classify", "ok", 0.3)
	m.RecordGatewayCall(ctx, "classify", "timeout", 30)

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "contractd.gateway.requests", "status", "ok"); got != 2 {
		t.Errorf("ok requests = %d, want 2", got)
	}
	if got := sumByAttr(t, rm, "contractd.gateway.requests", "status", "timeout"); got != 1 {
		t.Errorf("timeout requests = %d, want 1", got)
	}

	met := findMetric(rm, "contractd.gateway.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	var total uint64
	for _, dp := range met.Data.(metricdata.Histogram[float64]).DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("duration samples = %d, want 3", total)
	}
}

func TestRecordDegradation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDegradation(ctx, "required_fields", "empty")
	m.RecordDegradation(ctx, "extract", "malformed")
	m.RecordDegradation(ctx, "extract", "malformed")

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "contractd.stage.degradations", "reason", "malformed"); got != 2 {
		t.Errorf("malformed degradations = %d, want 2", got)
	}
}

func TestRecordLanguage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLanguage(ctx, "detected")
	m.RecordLanguage(ctx, "pinned")
	m.RecordLanguage(ctx, "pinned")

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "contractd.language.resolutions", "outcome", "pinned"); got != 2 {
		t.Errorf("pinned = %d, want 2", got)
	}
	if got := sumByAttr(t, rm, "contractd.language.resolutions", "outcome", "fallback"); got != -1 {
		t.Errorf("fallback = %d, want no data point", got)
	}
}

func TestRecordMerge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordMerge(ctx, "deterministic", 3, 1)
	m.RecordMerge(ctx, "deterministic", 0, 2)

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "contractd.merge.placeholders", "result", "substituted"); got != 3 {
		t.Errorf("substituted = %d, want 3", got)
	}
	if got := sumByAttr(t, rm, "contractd.merge.placeholders", "result", "preserved"); got != 3 {
		t.Errorf("preserved = %d, want 3", got)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordBreakerTransition(context.Background(), "openai", "open")

	rm := collect(t, reader)
	if got := sumByAttr(t, rm, "contractd.breaker.transitions", "to", "open"); got != 1 {
		t.Errorf("transitions = %d, want 1", got)
	}
}

func TestGatewayInFlight(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.GatewayInFlight.Add(ctx, 1)
	m.GatewayInFlight.Add(ctx, 1)
	m.GatewayInFlight.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "contractd.gateway.in_flight")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("in flight = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
