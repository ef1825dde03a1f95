package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ll97dash/cascade"
	"ll97dash/ml"
)

func initTestDB(t *testing.T) {
	t.Helper()
	if err := InitDB(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { Close() })
}

func TestNotInitialized(t *testing.T) {
	Close()
	if err := SaveModelLoad(ml.ModelInfo{}, time.Now()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := LoadInsights(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := RecordPrediction("Office", 2022, cascade.PredictionResult{}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestModelLog(t *testing.T) {
	initTestDB(t)

	threshold := 0.5
	first := ml.ModelInfo{
		Name: "fined", Type: ml.TypeRandomForest, Path: "models/fined.json", SHA256: "abc",
		Columns: []string{"property_type", "calendar_year"}, Features: 21, Threshold: &threshold,
	}
	second := ml.ModelInfo{Name: "paid", Type: ml.TypeONNX, Path: "models/paid.onnx", SHA256: "def", Columns: []string{"property_type"}, Features: 21}

	base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := SaveModelLoad(first, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := SaveModelLoad(second, base.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logs, err := LoadModelLog(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(logs))
	}
	if logs[0].ModelName != "paid" || logs[0].Threshold != nil {
		t.Fatalf("unexpected newest entry: %+v", logs[0])
	}
	got := logs[1]
	if got.ModelName != "fined" || got.SHA256 != "abc" || got.Features != 21 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Threshold == nil || *got.Threshold != 0.5 {
		t.Fatalf("expected threshold 0.5, got %v", got.Threshold)
	}
	if len(got.Columns) != 2 || got.Columns[1] != "calendar_year" {
		t.Fatalf("unexpected columns: %v", got.Columns)
	}
	if !got.LoadedAt.Equal(base) {
		t.Fatalf("expected loaded_at %v, got %v", base, got.LoadedAt)
	}

	limited, err := LoadModelLog(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(limited))
	}
}

func TestRecordPrediction(t *testing.T) {
	initTestDB(t)

	yes, no := true, false
	results := []struct {
		propertyType string
		year         int
		result       cascade.PredictionResult
	}{
		{"Office", 2022, cascade.PredictionResult{WillBeFined: false, FinedProbability: 0.2}},
		{"Office", 2022, cascade.PredictionResult{WillBeFined: true, FinedProbability: 0.8, WillPayIfFined: &yes}},
		{"Office", 2022, cascade.PredictionResult{WillBeFined: true, FinedProbability: 0.7, WillPayIfFined: &no}},
		{"Hotel", 2023, cascade.PredictionResult{WillBeFined: true, FinedProbability: 0.9, WillPayIfFined: &yes}},
	}
	for _, r := range results {
		if err := RecordPrediction(r.propertyType, r.year, r.result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	insights, err := LoadInsights()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Insight{
		{PropertyType: "Hotel", CalendarYear: 2023, Total: 1, Fined: 1, Paid: 1},
		{PropertyType: "Office", CalendarYear: 2022, Total: 3, Fined: 2, Paid: 1},
	}
	if len(insights) != len(want) {
		t.Fatalf("expected %d insights, got %d", len(want), len(insights))
	}
	for i := range want {
		if insights[i] != want[i] {
			t.Fatalf("insight %d: expected %+v, got %+v", i, want[i], insights[i])
		}
	}
	if rate := insights[1].FinedRate(); rate < 0.66 || rate > 0.67 {
		t.Fatalf("unexpected fined rate %v", rate)
	}
	totals := Totals(insights)
	if totals.Total != 4 || totals.Fined != 3 || totals.Paid != 2 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
	if (Insight{}).FinedRate() != 0 {
		t.Fatal("empty insight must have a zero fined rate")
	}
}
