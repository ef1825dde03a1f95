package ml

import "ll97dash/building"

// Classifier is a pre-trained binary classifier over the canonical building
// columns. Implementations are immutable once loaded and safe for concurrent
// use.
type Classifier interface {
	Predict(record building.BuildingRecord) (bool, error)
	PredictProba(record building.BuildingRecord) (float64, error)
}

// Thresholder is implemented by classifiers whose Predict is defined as
// PredictProba >= DecisionThreshold.
type Thresholder interface {
	DecisionThreshold() float64
}

// Model is a loaded classifier together with where it came from.
type Model interface {
	Classifier
	Info() ModelInfo
}

// ModelInfo describes a loaded model file.
type ModelInfo struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Path      string   `json:"path"`
	SHA256    string   `json:"sha256"`
	Columns   []string `json:"columns"`
	Features  int      `json:"features"`
	Threshold *float64 `json:"threshold,omitempty"`
}
