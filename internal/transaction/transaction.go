// Package transaction measures named steps of a scenario. Every measured step
// emits exactly one Measurement, whatever way the step exits.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome classifies how a measured step ended.
type Outcome string

const (
	OutcomePass         Outcome = "pass"
	OutcomeFail         Outcome = "fail"
	OutcomeInconclusive Outcome = "inconclusive"
)

// Measurement is one timed transaction.
type Measurement struct {
	Name      string        `json:"name"`
	SessionID string        `json:"sessionId,omitempty"`
	Start     time.Time     `json:"start"`
	Duration  time.Duration `json:"duration"`
	Outcome   Outcome       `json:"outcome"`
	Err       string        `json:"error,omitempty"`
}

// Sink receives measurements. Implementations must accept concurrent calls.
type Sink interface {
	Record(m Measurement)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(m Measurement)

// Record calls f(m).
func (f SinkFunc) Record(m Measurement) { f(m) }

// Recorder wraps units of work in timed transactions.
type Recorder struct {
	sink Sink
	now  func() time.Time
}

// NewRecorder creates a recorder emitting into sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink, now: time.Now}
}

// Measure runs fn as the transaction name and returns its error. The
// measurement is emitted from a deferred call so it is recorded on success,
// on error and on panic; a panic is re-raised after emission.
func (r *Recorder) Measure(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	start := r.now()
	defer func() {
		m := Measurement{
			Name:      name,
			SessionID: SessionID(ctx),
			Start:     start,
			Duration:  max(r.now().Sub(start), 0),
		}
		if p := recover(); p != nil {
			m.Outcome = OutcomeFail
			m.Err = fmt.Sprint("panic: ", p)
			r.sink.Record(m)
			panic(p)
		}
		m.Outcome = Classify(err)
		if err != nil {
			m.Err = err.Error()
		}
		r.sink.Record(m)
	}()
	return fn(ctx)
}

// Classify maps an error to an outcome. Errors exposing Inconclusive() true
// are inconclusive; any other error is a failure.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomePass
	}
	var ic interface{ Inconclusive() bool }
	if errors.As(err, &ic) && ic.Inconclusive() {
		return OutcomeInconclusive
	}
	return OutcomeFail
}

type sessionKey struct{}

// WithSessionID tags ctx with the session measurements belong to.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the session tagged on ctx, if any.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
