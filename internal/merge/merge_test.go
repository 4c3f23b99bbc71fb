package merge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/gateway"
	"github.com/ovleluv/AIContract-STT/internal/observe"
)

type fakeGateway struct {
	reply func(req gateway.Request) (string, error)
	reqs  []gateway.Request
}

func (g *fakeGateway) Invoke(_ context.Context, req gateway.Request) (string, error) {
	g.reqs = append(g.reqs, req)
	return g.reply(req)
}

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", Deterministic, false},
		{"deterministic", Deterministic, false},
		{" Model ", ModelAssisted, false},
		{"llm", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStrategy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestMerger_DeterministicRecordsMetrics(t *testing.T) {
	t.Parallel()

	m, reader := testMetrics(t)
	mg := New(nil, Options{Metrics: m})

	res, err := mg.Merge(context.Background(), "[a] [b] [c]", contract.Fields{"a": "1", "b": "2"}, "en")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Text != "1 2 [c]" {
		t.Errorf("Text = %q", res.Text)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "contractd.merge.placeholders" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				r, _ := dp.Attributes.Value("result")
				got[r.AsString()] += dp.Value
			}
		}
	}
	if got["substituted"] != 2 || got["preserved"] != 1 {
		t.Errorf("placeholder counts = %v", got)
	}
}

func TestMerger_ModelAssisted(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	gw := &fakeGateway{reply: func(gateway.Request) (string, error) {
		return "Lessor: Jane Doe\nRent: [monthly rent]", nil
	}}
	mg := New(gw, Options{Strategy: ModelAssisted, Metrics: m})

	res, err := mg.Merge(context.Background(),
		"Lessor: [임대인 성명]\nRent: [monthly rent]",
		contract.Fields{"Lessor name": "Jane Doe", "empty": ""}, "ko")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Substituted != 1 || res.Preserved != 1 {
		t.Errorf("counts = %d/%d, want 1/1", res.Substituted, res.Preserved)
	}

	req := gw.reqs[0]
	if req.Stage != "merge" || req.MaxOutputTokens != 1500 || req.Temperature != 0.7 {
		t.Errorf("request = %+v", req)
	}
	if !strings.Contains(req.Prompt, "[임대인 성명]") || !strings.Contains(req.Prompt, "Please respond in ko") {
		t.Errorf("prompt missing template or language: %q", req.Prompt)
	}
	payload, _ := json.Marshal(contract.Fields{"Lessor name": "Jane Doe"})
	if !strings.Contains(req.Prompt, string(payload)) {
		t.Errorf("prompt missing non-empty fields %s: %q", payload, req.Prompt)
	}
}

func TestMerger_ModelAssistedSkipsCallWhenNothingToPlace(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	gw := &fakeGateway{reply: func(gateway.Request) (string, error) {
		return "REWRITTEN", nil
	}}
	mg := New(gw, Options{Strategy: ModelAssisted, Metrics: m})
	fields := contract.Fields{"tenant name": "John"}

	// A fully merged contract is returned unchanged on a second merge.
	merged := "Lessee: John\nTerm: 12 months\n"
	res, err := mg.Merge(context.Background(), merged, fields, "en")
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != merged {
		t.Errorf("Text = %q, want unchanged", res.Text)
	}

	res, _ = mg.Merge(context.Background(), "[tenant name]", contract.Fields{"x": " "}, "en")
	if res.Text != "[tenant name]" || res.Preserved != 1 {
		t.Errorf("empty field map result = %+v", res)
	}
	if len(gw.reqs) != 0 {
		t.Errorf("gateway called %d times", len(gw.reqs))
	}
}

func TestMerger_ModelAssistedEmptyReplyFallsBack(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	gw := &fakeGateway{reply: func(gateway.Request) (string, error) { return "", nil }}
	mg := New(gw, Options{Strategy: ModelAssisted, Metrics: m})

	res, err := mg.Merge(context.Background(), "Lessee: [tenant name]", contract.Fields{"tenant name": "John"}, "en")
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "Lessee: John" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestMerger_ModelAssistedRemergeIsIdempotent(t *testing.T) {
	t.Parallel()

	const template = "REAL ESTATE LEASE AGREEMENT\n" +
		"Tenant: [Tenant Name]\n" +
		"Term: [Term]\n" +
		"Monthly rent: [Monthly Rent]\n"
	const merged = "REAL ESTATE LEASE AGREEMENT\n" +
		"Tenant: John\n" +
		"Term: 12 months\n" +
		"Monthly rent: [Monthly Rent]\n"

	m, reader := testMetrics(t)
	gw := &fakeGateway{reply: func(req gateway.Request) (string, error) {
		if strings.Contains(req.Prompt, "[Tenant Name]") {
			return merged, nil
		}
		// A second pass rewords prose that was already settled.
		return "RESIDENTIAL LEASE\nLessee: John\nDuration: twelve months\nMonthly rent: [Monthly Rent]\n", nil
	}}
	mg := New(gw, Options{Strategy: ModelAssisted, Metrics: m})
	fields := contract.Fields{"tenant name": "John", "term": "12 months"}

	first, err := mg.Merge(context.Background(), template, fields, "en")
	if err != nil {
		t.Fatalf("first Merge: %v", err)
	}
	if first.Text != merged || first.Substituted != 2 || first.Preserved != 1 {
		t.Fatalf("first Merge = %+v", first)
	}

	second, err := mg.Merge(context.Background(), first.Text, fields, "en")
	if err != nil {
		t.Fatalf("second Merge: %v", err)
	}
	if second.Text != first.Text {
		t.Errorf("second Merge changed the contract:\n%s", second.Text)
	}
	if second.Preserved != 1 {
		t.Errorf("Preserved = %d, want 1", second.Preserved)
	}
	if len(gw.reqs) != 2 {
		t.Errorf("gateway called %d times, want 2", len(gw.reqs))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var rewrote int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "contractd.stage.degradations" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				if r, _ := dp.Attributes.Value("reason"); r.AsString() == "rewrote" {
					rewrote += dp.Value
				}
			}
		}
	}
	if rewrote != 1 {
		t.Errorf("rewrote degradations = %d, want 1", rewrote)
	}
}

func TestKeepsProse(t *testing.T) {
	t.Parallel()

	const template = "Lessor: [Lessor name]\nRent: [monthly rent] per month."
	tests := []struct {
		name  string
		reply string
		want  bool
	}{
		{"filled", "Lessor: Jane Doe\nRent: 500 USD per month.", true},
		{"placeholders kept", template, true},
		{"whitespace differs", "  Lessor:  Jane Doe\n\nRent: [monthly rent] per month.\n", true},
		{"prose reworded", "Landlord: Jane Doe\nRent: 500 USD per month.", false},
		{"suffix dropped", "Lessor: Jane Doe\nRent: 500 USD", false},
		{"preamble added", "Here is the contract:\nLessor: Jane Doe\nRent: 500 USD per month.", false},
		{"sections reordered", "Rent: 500 USD per month.\nLessor: Jane Doe", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := keepsProse(template, tt.reply); got != tt.want {
				t.Errorf("keepsProse(%q) = %v, want %v", tt.reply, got, tt.want)
			}
		})
	}
}

func TestMerger_ModelAssistedZeroTemperature(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	gw := &fakeGateway{reply: func(gateway.Request) (string, error) { return "1", nil }}
	mg := New(gw, Options{Strategy: ModelAssisted, Temperature: new(0.0), Metrics: m})
	if _, err := mg.Merge(context.Background(), "[a]", contract.Fields{"a": "1"}, "en"); err != nil {
		t.Fatal(err)
	}
	if got := gw.reqs[0].Temperature; got != 0 {
		t.Errorf("Temperature = %g, want 0", got)
	}
}

func TestMerger_ModelAssistedError(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	gw := &fakeGateway{reply: func(gateway.Request) (string, error) { return "", contract.ErrBackendTimeout }}
	mg := New(gw, Options{Strategy: ModelAssisted, Metrics: m})

	_, err := mg.Merge(context.Background(), "[a]", contract.Fields{"a": "1"}, "en")
	if !errors.Is(err, contract.ErrBackendTimeout) {
		t.Errorf("err = %v, want ErrBackendTimeout", err)
	}
}

func TestMerger_Configure(t *testing.T) {
	t.Parallel()

	m, _ := testMetrics(t)
	gw := &fakeGateway{reply: func(gateway.Request) (string, error) { return "model", nil }}
	mg := New(gw, Options{Metrics: m})

	if mg.Strategy() != Deterministic {
		t.Fatalf("default strategy = %q", mg.Strategy())
	}
	res, _ := mg.Merge(context.Background(), "[Tenant full name]", contract.Fields{"tenant name": "John"}, "en")
	if res.Text != "[Tenant full name]" {
		t.Errorf("deterministic Text = %q", res.Text)
	}

	mg.Configure(Deterministic, 0.85)
	res, _ = mg.Merge(context.Background(), "[Tenant full name]", contract.Fields{"tenant name": "John"}, "en")
	if res.Text != "John" {
		t.Errorf("fuzzy Text = %q", res.Text)
	}

	mg.Configure(ModelAssisted, 0)
	res, _ = mg.Merge(context.Background(), "[x]", contract.Fields{"x": "1"}, "en")
	if res.Text != "model" {
		t.Errorf("model Text = %q", res.Text)
	}
}
