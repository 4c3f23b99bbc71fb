package draft

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ovleluv/AIContract-STT/internal/contract"
	"github.com/ovleluv/AIContract-STT/internal/gateway"
	"github.com/ovleluv/AIContract-STT/internal/observe"
)

type fakeGateway struct {
	reply string
	err   error
	reqs  []gateway.Request
}

func (g *fakeGateway) Invoke(_ context.Context, req gateway.Request) (string, error) {
	g.reqs = append(g.reqs, req)
	return g.reply, g.err
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestFieldResolver_SplitsLines(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{reply: "1. Lessor full name\n\n2. Lessee full name\r\n   \n2. Lessee full name\n3. Monthly rent"}
	r := NewFieldResolver(gw, Settings{}, testMetrics(t))

	got := r.Resolve(context.Background(), "Real Estate Lease Agreement", "en")
	want := []string{"1. Lessor full name", "2. Lessee full name", "2. Lessee full name", "3. Monthly rent"}
	if !slices.Equal(got.Fields, want) {
		t.Errorf("Fields = %q, want %q", got.Fields, want)
	}
	if got.Degraded {
		t.Error("Degraded set on success")
	}

	req := gw.reqs[0]
	if req.MaxOutputTokens != 1000 || req.Temperature != 0.7 {
		t.Errorf("settings = %d/%g, want defaults", req.MaxOutputTokens, req.Temperature)
	}
	if !strings.Contains(req.Prompt, "'Real Estate Lease Agreement'") || !strings.Contains(req.Prompt, "'en'") {
		t.Errorf("prompt = %q", req.Prompt)
	}
}

func TestFieldResolver_DegradesOnFailure(t *testing.T) {
	t.Parallel()

	r := NewFieldResolver(&fakeGateway{err: contract.ErrBackendTimeout}, Settings{}, testMetrics(t))
	got := r.Resolve(context.Background(), "Complaint", "ko")
	if !got.Degraded {
		t.Error("Degraded not set")
	}
	if got.Fields == nil || len(got.Fields) != 0 {
		t.Errorf("Fields = %#v, want empty non-nil", got.Fields)
	}
}

func TestGenerator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		subject string
		reply   string
		err     error
		want    string
		wantErr error
	}{
		{"ok", "Complaint", "COMPLAINT\nPlaintiff: [Plaintiff name]", nil, "COMPLAINT\nPlaintiff: [Plaintiff name]", nil},
		{"empty subject", " ", "x", nil, "", contract.ErrInvalidInput},
		{"backend error", "Complaint", "", contract.ErrBackendRefusal, "", contract.ErrBackendRefusal},
		{"empty draft", "Complaint", "", nil, "", contract.ErrBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewGenerator(&fakeGateway{reply: tt.reply, err: tt.err}, Settings{MaxOutputTokens: 2000})
			got, err := g.Generate(context.Background(), tt.subject, "en")
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("template = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGenerator_PromptAsksForPlaceholders(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{reply: "draft"}
	g := NewGenerator(gw, Settings{MaxOutputTokens: 2000, Temperature: new(0.5)})
	if _, err := g.Generate(context.Background(), "Power of attorney", "ko"); err != nil {
		t.Fatal(err)
	}
	req := gw.reqs[0]
	if req.MaxOutputTokens != 2000 || req.Temperature != 0.5 {
		t.Errorf("settings = %d/%g", req.MaxOutputTokens, req.Temperature)
	}
	if !strings.Contains(req.Prompt, "square brackets") || !strings.Contains(req.Prompt, "in ko") {
		t.Errorf("prompt = %q", req.Prompt)
	}
}

func TestSettings_ZeroTemperatureIsKept(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{reply: `{"term": "6 months"}`}
	e := NewExtractor(gw, Settings{Temperature: new(0.0)})
	if _, err := e.Extract(context.Background(), "for 6 months", "en"); err != nil {
		t.Fatal(err)
	}
	req := gw.reqs[0]
	if req.Temperature != 0 || req.MaxOutputTokens != DefaultExtractSettings.MaxOutputTokens {
		t.Errorf("settings = %d/%g, want default tokens at temperature 0", req.MaxOutputTokens, req.Temperature)
	}
}

func TestExtractor(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{reply: `Sure! {"tenant name": "John", "term": "12 months"} Let me know.`}
	e := NewExtractor(gw, Settings{})

	got, err := e.Extract(context.Background(), "I want to rent my apartment to John for 12 months", "en")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := contract.Fields{"tenant name": "John", "term": "12 months"}
	if len(got) != len(want) || got["tenant name"] != "John" || got["term"] != "12 months" {
		t.Errorf("fields = %v, want %v", got, want)
	}
}

func TestExtractor_EmptyInputSkipsBackend(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{reply: `{"a":"b"}`}
	e := NewExtractor(gw, Settings{})
	_, err := e.Extract(context.Background(), "", "en")
	if !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(gw.reqs) != 0 {
		t.Errorf("backend called %d times", len(gw.reqs))
	}
}

func TestExtractor_MalformedCarriesRaw(t *testing.T) {
	t.Parallel()

	reply := "I could not find any contract details."
	e := NewExtractor(&fakeGateway{reply: reply}, Settings{})

	got, err := e.Extract(context.Background(), "hello", "en")
	if !errors.Is(err, contract.ErrMalformedStructuredResponse) {
		t.Fatalf("err = %v, want ErrMalformedStructuredResponse", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("fields = %#v, want empty map", got)
	}
	raw, ok := RawResponse(err)
	if !ok || raw != reply {
		t.Errorf("RawResponse = %q, %v", raw, ok)
	}
}

func TestAnalyzer(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{reply: "```json\n" + `{
  "contract_type": "Real Estate Lease Agreement",
  "required_fields": ["Lessor", "Lessee"],
  "user_information": ["Lessee: John"]
}` + "\n```"}
	a := NewAnalyzer(gw, Settings{})

	got, err := a.Analyze(context.Background(), "A: I'll rent you the flat. B: Great, I'm John.")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.ContractType != "Real Estate Lease Agreement" {
		t.Errorf("ContractType = %q", got.ContractType)
	}
	if !slices.Equal(got.RequiredFields, []string{"Lessor", "Lessee"}) {
		t.Errorf("RequiredFields = %v", got.RequiredFields)
	}
	if gw.reqs[0].SystemRole != analyzeSystemRole {
		t.Errorf("SystemRole = %q", gw.reqs[0].SystemRole)
	}
}

func TestAnalyzer_Errors(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(&fakeGateway{reply: `{"required_fields": []}`}, Settings{})
	if _, err := a.Analyze(context.Background(), "transcript"); !errors.Is(err, contract.ErrMalformedStructuredResponse) {
		t.Errorf("missing contract_type: err = %v", err)
	}
	if _, err := a.Analyze(context.Background(), ""); !errors.Is(err, contract.ErrInvalidInput) {
		t.Errorf("empty transcript: err = %v", err)
	}
}
