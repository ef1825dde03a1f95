// Package cascade runs the two-stage fined/paid prediction.
package cascade

import (
	"fmt"
	"math"

	"ll97dash/building"
	"ll97dash/ml"
)

// Stage names reported in InferenceError.
const (
	StageFined = "fined"
	StagePaid  = "paid"
)

// PredictionResult is the outcome of one cascade run. The paid fields are set
// only when the building is predicted to be fined.
type PredictionResult struct {
	WillBeFined      bool     `json:"will_be_fined"`
	FinedProbability float64  `json:"fined_probability"`
	WillPayIfFined   *bool    `json:"will_pay_if_fined"`
	PaidProbability  *float64 `json:"paid_probability"`
}

// Predictor is anything that turns a record into a result.
type Predictor interface {
	Predict(record building.BuildingRecord) (PredictionResult, error)
}

// Cascade holds the two shared, read-only classifiers.
type Cascade struct {
	fined ml.Classifier
	paid  ml.Classifier
}

func New(fined, paid ml.Classifier) *Cascade {
	return &Cascade{fined: fined, paid: paid}
}

// Predict asks the fined classifier first. The paid classifier is only valid
// for fined buildings and is not invoked for any other record.
func (c *Cascade) Predict(record building.BuildingRecord) (PredictionResult, error) {
	finedProba, fined, err := classify(c.fined, StageFined, record)
	if err != nil {
		return PredictionResult{}, err
	}
	result := PredictionResult{
		WillBeFined:      fined,
		FinedProbability: finedProba,
	}
	if !fined {
		return result, nil
	}

	paidProba, paid, err := classify(c.paid, StagePaid, record)
	if err != nil {
		return PredictionResult{}, err
	}
	result.WillPayIfFined = &paid
	result.PaidProbability = &paidProba
	return result, nil
}

func classify(cls ml.Classifier, stage string, record building.BuildingRecord) (float64, bool, error) {
	proba, err := cls.PredictProba(record)
	if err != nil {
		return 0, false, &InferenceError{Stage: stage, Err: err}
	}
	if math.IsNaN(proba) || proba < 0 || proba > 1 {
		return 0, false, &InferenceError{Stage: stage, Err: fmt.Errorf("%w: probability %v", ErrMalformed, proba)}
	}
	label, err := cls.Predict(record)
	if err != nil {
		return 0, false, &InferenceError{Stage: stage, Err: err}
	}
	if th, ok := cls.(ml.Thresholder); ok && label != (proba >= th.DecisionThreshold()) {
		return 0, false, &InferenceError{Stage: stage, Err: fmt.Errorf(
			"%w: predict=%v disagrees with probability %.4f at threshold %.4f",
			ErrInconsistent, label, proba, th.DecisionThreshold())}
	}
	return proba, label, nil
}
