// Package report turns prediction results into the messages shown to users.
package report

import (
	"fmt"

	"ll97dash/cascade"
)

// Level of a banner.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Banner is one rendered line of a result.
type Banner struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Banners describes a result. Confidence is always the probability of the
// outcome being stated, so a "not" outcome reports 1-p.
func Banners(r cascade.PredictionResult) []Banner {
	if !r.WillBeFined {
		return []Banner{{
			Level: LevelSuccess,
			Text:  fmt.Sprintf("This building is unlikely to be fined. (Confidence: %s)", Percent(1-r.FinedProbability)),
		}}
	}

	banners := []Banner{{
		Level: LevelWarning,
		Text:  fmt.Sprintf("This building will likely be fined. (Confidence: %s)", Percent(r.FinedProbability)),
	}}
	if r.WillPayIfFined == nil || r.PaidProbability == nil {
		return banners
	}
	if *r.WillPayIfFined {
		banners = append(banners, Banner{
			Level: LevelSuccess,
			Text:  fmt.Sprintf("And it's likely the fine will be paid. (Confidence: %s)", Percent(*r.PaidProbability)),
		})
	} else {
		banners = append(banners, Banner{
			Level: LevelError,
			Text:  fmt.Sprintf("But it's likely the fine will not be paid. (Confidence: %s)", Percent(1-*r.PaidProbability)),
		})
	}
	return banners
}

// Percent formats a probability with two decimals, e.g. 0.8 -> "80.00%".
func Percent(p float64) string {
	return fmt.Sprintf("%.2f%%", p*100)
}
