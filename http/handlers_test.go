package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ll97dash/building"
	"ll97dash/cascade"
	"ll97dash/db"
	"ll97dash/ml"
	"ll97dash/monitoring"
)

type fakePredictor struct {
	result cascade.PredictionResult
	err    error
	calls  int
	seen   []building.BuildingRecord
}

func (f *fakePredictor) Predict(record building.BuildingRecord) (cascade.PredictionResult, error) {
	f.calls++
	f.seen = append(f.seen, record)
	return f.result, f.err
}

type capturePublisher struct {
	events []monitoring.PredictionEvent
}

func (p *capturePublisher) Publish(_ context.Context, ev monitoring.PredictionEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "ll97-http")
	if err != nil {
		panic(err)
	}
	if err := db.InitDB(filepath.Join(dir, "test.db")); err != nil {
		panic(err)
	}

	code := m.Run()

	db.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func newTestMux() *http.ServeMux {
	mux := http.NewServeMux()
	RegisterHandlers(mux)
	RegisterDashboardRoutes(mux)
	return mux
}

// withPredictor installs p and a fresh metrics registry for the test.
func withPredictor(t *testing.T, p cascade.Predictor) (*monitoring.Metrics, *capturePublisher) {
	t.Helper()
	m := monitoring.NewMetrics()
	pub := &capturePublisher{}
	SetPredictor(p)
	SetMetrics(m)
	SetPublisher(pub)
	t.Cleanup(func() {
		SetPredictor(nil)
		SetMetrics(nil)
		SetPublisher(nil)
	})
	return m, pub
}

func postJSON(mux http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(handleHealth).ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before models load, got %d", rr.Code)
	}

	withPredictor(t, &fakePredictor{})
	rr = httptest.NewRecorder()
	http.HandlerFunc(handleHealth).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("handler returned unexpected body: %s", rr.Body.String())
	}
}

func TestCatalogHandler(t *testing.T) {
	w := httptest.NewRecorder()
	newTestMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/catalog", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var payload catalogResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(payload.PropertyTypes) != len(building.DefaultPropertyTypes) {
		t.Fatalf("expected %d property types, got %d", len(building.DefaultPropertyTypes), len(payload.PropertyTypes))
	}
	if payload.Columns[0] != building.ColPropertyType || payload.Columns[4] != building.ColGHGEmissions {
		t.Fatalf("unexpected column order: %v", payload.Columns)
	}
	if payload.Defaults[building.ColEnergyStarScore].(float64) != 75 {
		t.Fatalf("unexpected defaults: %v", payload.Defaults)
	}
}

func TestHandlePredictNotFined(t *testing.T) {
	fake := &fakePredictor{result: cascade.PredictionResult{FinedProbability: 0.2}}
	_, pub := withPredictor(t, fake)

	w := postJSON(newTestMux(), "/api/predict",
		`{"property_type":"office","calendar_year":2022,"energy_star_score":75,"site_eui":"150.0","ghg_emissions":500}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(payload["result"], &result); err != nil {
		t.Fatalf("invalid result: %v", err)
	}
	if result["will_be_fined"] != false || result["will_pay_if_fined"] != nil || result["paid_probability"] != nil {
		t.Fatalf("unexpected result: %v", result)
	}
	if !bytes.Contains(payload["banners"], []byte("unlikely to be fined. (Confidence: 80.00%)")) {
		t.Fatalf("unexpected banners: %s", payload["banners"])
	}
	if fake.calls != 1 || fake.seen[0].PropertyType() != "Office" {
		t.Fatalf("expected one call with canonical label, got %d %v", fake.calls, fake.seen)
	}
	if len(pub.events) != 1 || pub.events[0].Source != "api" || pub.events[0].Outcome != monitoring.OutcomeNotFined {
		t.Fatalf("unexpected events: %+v", pub.events)
	}
}

func TestHandlePredictFinedAndPaid(t *testing.T) {
	paid := true
	proba := 0.6
	withPredictor(t, &fakePredictor{result: cascade.PredictionResult{
		WillBeFined: true, FinedProbability: 0.8, WillPayIfFined: &paid, PaidProbability: &proba,
	}})

	w := postJSON(newTestMux(), "/api/predict",
		`{"property_type":"Hotel","calendar_year":"2023","energy_star_score":"40","site_eui":"220","ghg_emissions":"1500"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	for _, want := range []string{
		`"will_pay_if_fined":true`,
		`"paid_probability":0.6`,
		"This building will likely be fined. (Confidence: 80.00%)",
		"And it's likely the fine will be paid. (Confidence: 60.00%)",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in %s", want, body)
		}
	}
}

func TestHandlePredictErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantText   string
		wantCalls  int
	}{
		{
			name:       "bad json",
			body:       `{"property_type":`,
			wantStatus: http.StatusBadRequest,
			wantText:   "invalid JSON body",
		},
		{
			name:       "validation",
			body:       `{"property_type":"Castle","calendar_year":2019,"energy_star_score":0,"site_eui":-1,"ghg_emissions":"abc"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantText:   `"field":"property_type"`,
		},
		{
			name:       "inference",
			body:       `{"property_type":"Office","calendar_year":2022,"energy_star_score":75,"site_eui":150,"ghg_emissions":500}`,
			err:        &cascade.InferenceError{Stage: cascade.StagePaid, Err: errors.New("shape mismatch")},
			wantStatus: http.StatusBadGateway,
			wantText:   `"stage":"paid"`,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakePredictor{err: tt.err}
			withPredictor(t, fake)

			w := postJSON(newTestMux(), "/api/predict", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantText) {
				t.Fatalf("expected %q in %s", tt.wantText, w.Body.String())
			}
			if fake.calls != tt.wantCalls {
				t.Fatalf("expected %d predictor calls, got %d", tt.wantCalls, fake.calls)
			}
		})
	}
}

func TestHandlePredictValidationListsAllIssues(t *testing.T) {
	withPredictor(t, &fakePredictor{})
	w := postJSON(newTestMux(), "/api/predict",
		`{"property_type":"Castle","calendar_year":2019,"energy_star_score":0,"site_eui":-1,"ghg_emissions":"abc"}`)

	var payload struct {
		Issues []building.FieldIssue `json:"issues"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(payload.Issues) != 5 {
		t.Fatalf("expected 5 issues, got %+v", payload.Issues)
	}
	for i, col := range building.Columns() {
		if payload.Issues[i].Field != col {
			t.Fatalf("issue %d: expected %s, got %s", i, col, payload.Issues[i].Field)
		}
	}
}

func TestHandlePredictWithoutModels(t *testing.T) {
	SetPredictor(nil)
	w := postJSON(newTestMux(), "/api/predict",
		`{"property_type":"Office","calendar_year":2022,"energy_star_score":75,"site_eui":150,"ghg_emissions":500}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandlePredictCachedCountsHits(t *testing.T) {
	fake := &fakePredictor{result: cascade.PredictionResult{FinedProbability: 0.1}}
	cached, err := cascade.NewCached(fake, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, _ := withPredictor(t, cached)

	mux := newTestMux()
	body := `{"property_type":"Office","calendar_year":2022,"energy_star_score":75,"site_eui":150,"ghg_emissions":500}`
	for i := 0; i < 3; i++ {
		if w := postJSON(mux, "/api/predict", body); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}
	if fake.calls != 1 {
		t.Fatalf("expected one cascade run, got %d", fake.calls)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "ll97_cache_hits_total 2") {
		t.Fatalf("expected two cache hits in metrics")
	}
}

func TestModelsHandler(t *testing.T) {
	threshold := 0.5
	info := ml.ModelInfo{Name: "fined", Type: ml.TypeDecisionTree, Path: "fined.json", SHA256: "abc", Columns: building.Columns(), Features: 21, Threshold: &threshold}
	SetModels([]ml.ModelInfo{info})
	defer SetModels(nil)
	if err := db.SaveModelLoad(info, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := httptest.NewRecorder()
	newTestMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload modelsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(payload.Loaded) != 1 || payload.Loaded[0].SHA256 != "abc" {
		t.Fatalf("unexpected loaded models: %+v", payload.Loaded)
	}
	if len(payload.History) == 0 || payload.History[0].ModelName != "fined" {
		t.Fatalf("unexpected history: %+v", payload.History)
	}
}

func TestInsightsHandler(t *testing.T) {
	withPredictor(t, &fakePredictor{result: cascade.PredictionResult{FinedProbability: 0.3}})
	mux := newTestMux()
	body := `{"property_type":"Worship Facility","calendar_year":2020,"energy_star_score":60,"site_eui":90,"ghg_emissions":120}`
	if w := postJSON(mux, "/api/predict", body); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/insights", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload struct {
		Insights []db.Insight `json:"insights"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	found := false
	for _, i := range payload.Insights {
		if i.PropertyType == "Worship Facility" && i.CalendarYear == 2020 {
			found = i.Total >= 1 && i.Fined == 0
		}
	}
	if !found {
		t.Fatalf("expected Worship Facility 2020 counters, got %+v", payload.Insights)
	}
}

func TestWebSocketDisabled(t *testing.T) {
	SetHub(nil)
	w := httptest.NewRecorder()
	newTestMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ws/predictions", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
