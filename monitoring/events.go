package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ll97dash/cascade"
)

// PredictionEvent is emitted after every prediction attempt. It carries the
// categorical inputs only, never the measured values.
type PredictionEvent struct {
	ID           string                    `json:"id"`
	Timestamp    time.Time                 `json:"timestamp"`
	Source       string                    `json:"source"`
	PropertyType string                    `json:"property_type"`
	CalendarYear int                       `json:"calendar_year"`
	Outcome      string                    `json:"outcome,omitempty"`
	Result       *cascade.PredictionResult `json:"result,omitempty"`
	Stage        string                    `json:"stage,omitempty"`
	Error        string                    `json:"error,omitempty"`
}

// NewPredictionEvent builds the event for a finished cascade run. err, when
// set, takes precedence over result.
func NewPredictionEvent(source, propertyType string, year int, result cascade.PredictionResult, err error) PredictionEvent {
	ev := PredictionEvent{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Source:       source,
		PropertyType: propertyType,
		CalendarYear: year,
	}
	if err != nil {
		ev.Error = err.Error()
		var ierr *cascade.InferenceError
		if errors.As(err, &ierr) {
			ev.Stage = ierr.Stage
		}
		return ev
	}
	ev.Outcome = Outcome(result)
	ev.Result = &result
	return ev
}

// Publisher delivers prediction events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev PredictionEvent) error
	Close() error
}

// MultiPublisher fans an event out to every publisher and joins their errors.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev PredictionEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
