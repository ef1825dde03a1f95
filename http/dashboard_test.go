package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"ll97dash/cascade"
)

func postForm(mux http.Handler, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func officeForm() url.Values {
	return url.Values{
		"property_type":     {"Office"},
		"calendar_year":     {"2022"},
		"energy_star_score": {"75"},
		"site_eui":          {"150.0"},
		"ghg_emissions":     {"500.0"},
	}
}

func TestDashboardGetDoesNotPredict(t *testing.T) {
	fake := &fakePredictor{}
	withPredictor(t, fake)

	w := httptest.NewRecorder()
	newTestMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if fake.calls != 0 {
		t.Fatalf("a plain page load must not run a prediction")
	}
	body := w.Body.String()
	for _, want := range []string{
		"Predict: Will This Building Be Fined or Pay the Fine?",
		`<option value="Office" selected>`,
		`<option value="2022" selected>`,
		`value="150.0"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in page", want)
		}
	}
}

func TestDashboardTabs(t *testing.T) {
	tests := []struct {
		tab  string
		want string
	}{
		{"insights", "Summary Insights"},
		{"how", "How This Dashboard Works"},
		{"models", "Model Pipeline &amp; Assumptions"},
		{"unknown", "Run Prediction"},
	}
	mux := newTestMux()
	for _, tt := range tests {
		t.Run(tt.tab, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?tab="+tt.tab, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Fatalf("expected %q in page", tt.want)
			}
		})
	}
}

func TestDashboardPredictFinedNotPaid(t *testing.T) {
	notPaid := false
	paidProba := 0.25
	withPredictor(t, &fakePredictor{result: cascade.PredictionResult{
		WillBeFined: true, FinedProbability: 0.9, WillPayIfFined: &notPaid, PaidProbability: &paidProba,
	}})

	w := postForm(newTestMux(), officeForm())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`banner-warning">This building will likely be fined. (Confidence: 90.00%)`,
		`banner-error">But it&#39;s likely the fine will not be paid. (Confidence: 75.00%)`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in page:\n%s", want, body)
		}
	}
}

func TestDashboardPredictShowsFieldIssues(t *testing.T) {
	fake := &fakePredictor{}
	withPredictor(t, fake)

	form := officeForm()
	form.Set("energy_star_score", "150")
	form.Set("property_type", "Lighthouse")
	w := postForm(newTestMux(), form)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "ENERGY STAR score must be between 1 and 100") {
		t.Fatalf("expected score issue in page")
	}
	if !strings.Contains(body, "Property type is not a supported property type") {
		t.Fatalf("expected property type issue in page")
	}
	if !strings.Contains(body, `value="150"`) {
		t.Fatalf("expected the submitted value to be kept")
	}
	if fake.calls != 0 {
		t.Fatalf("invalid input must not reach the classifiers")
	}
}

func TestDashboardPredictInferenceError(t *testing.T) {
	withPredictor(t, &fakePredictor{err: &cascade.InferenceError{Stage: cascade.StageFined, Err: errors.New("model unavailable")}})

	w := postForm(newTestMux(), officeForm())
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "The fined model could not score this building: model unavailable") {
		t.Fatalf("expected inference error in page")
	}
	if strings.Contains(w.Body.String(), "banner-success") {
		t.Fatalf("no result banner may be shown after an error")
	}
}
