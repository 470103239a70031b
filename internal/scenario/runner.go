package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/formload/internal/interaction"
	"github.com/wesleyorama2/formload/internal/session"
	"github.com/wesleyorama2/formload/internal/transaction"
	"github.com/wesleyorama2/formload/internal/uiclient"
)

// Func is a scenario body. It runs with exclusive use of s.
type Func func(ctx context.Context, tc *TestContext, s uiclient.Session) error

// SessionSource hands out exclusive session leases per actor.
type SessionSource interface {
	Acquire(ctx context.Context, actor string) (*session.Lease, error)
}

// RetryPolicy controls re-running a scenario after a timeout. Other failures
// are never retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts (default: 1, no retry).
	MaxAttempts int

	// Backoff is the pause between attempts.
	Backoff time.Duration
}

// Result summarizes one Run.
type Result struct {
	Scenario  string
	Actor     string
	SessionID string
	Outcome   transaction.Outcome
	Err       error
	Attempts  int
	Duration  time.Duration
}

// Runner is the single entry point for executing scenario functions.
type Runner struct {
	sessions   SessionSource
	dispatcher *interaction.Dispatcher
	logger     *zap.Logger
	retry      RetryPolicy
}

// NewRunner creates a runner. The dispatcher is used to sweep forms a
// scenario left open.
func NewRunner(sessions SessionSource, d *interaction.Dispatcher, retry RetryPolicy, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Runner{sessions: sessions, dispatcher: d, logger: logger, retry: retry}
}

// Run acquires the session of actor, runs fn inside a failure boundary, sweeps
// any forms left open and releases the session. Errors and panics fail the
// run; inconclusive errors mark it inconclusive. The outcome is also stored
// in tc.
func (r *Runner) Run(ctx context.Context, actor string, tc *TestContext, fn Func) Result {
	start := time.Now()
	var err error
	for attempt := 1; ; attempt++ {
		err = r.attempt(ctx, actor, tc, fn)
		if err == nil || !errors.Is(err, interaction.ErrTimeout) || attempt >= r.retry.MaxAttempts || ctx.Err() != nil {
			break
		}
		r.logger.Warn("scenario timed out, retrying",
			zap.String("scenario", tc.Name()),
			zap.String("actor", actor),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if waitErr := r.dispatcher.Think(ctx, r.retry.Backoff); waitErr != nil {
			break
		}
	}

	elapsed := time.Since(start)
	outcome := tc.finish(err, elapsed)
	res := Result{
		Scenario:  tc.Name(),
		Actor:     actor,
		SessionID: tc.SessionID(),
		Outcome:   outcome,
		Err:       err,
		Attempts:  tc.Attempts(),
		Duration:  elapsed,
	}

	fields := []zap.Field{
		zap.String("scenario", res.Scenario),
		zap.String("actor", actor),
		zap.String("session", res.SessionID),
		zap.String("outcome", string(outcome)),
		zap.Duration("duration", elapsed),
	}
	switch outcome {
	case transaction.OutcomePass:
		r.logger.Debug("scenario passed", fields...)
	case transaction.OutcomeInconclusive:
		tc.Logf("Inconclusive: %v", err)
		r.logger.Info("scenario inconclusive", append(fields, zap.Error(err))...)
	default:
		tc.Logf("Failed: %v", err)
		r.logger.Warn("scenario failed", append(fields, zap.Error(err))...)
	}
	return res
}

func (r *Runner) attempt(ctx context.Context, actor string, tc *TestContext, fn Func) (err error) {
	lease, err := r.sessions.Acquire(ctx, actor)
	if err != nil {
		return fmt.Errorf("acquire session for %s: %w", actor, err)
	}
	defer lease.Release()

	h := lease.Session()
	tc.begin(h.ID())
	defer r.sweep(ctx, h)

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("scenario panicked",
				zap.String("scenario", tc.Name()),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("scenario %s panicked: %v", tc.Name(), p)
		}
	}()

	return fn(transaction.WithSessionID(ctx, h.ID()), tc, h)
}

// sweep closes forms left open, dialogs and lookups before pages. It is best
// effort and still runs when ctx was cancelled.
func (r *Runner) sweep(ctx context.Context, h *session.Handle) {
	if h.Closed() {
		return
	}
	open := h.OpenForms()
	if len(open) == 0 {
		return
	}

	cleanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.dispatcher.Config().Timeout)
	defer cancel()

	ordered := make([]session.OpenForm, 0, len(open))
	for _, f := range open {
		if f.Kind != uiclient.KindPage {
			ordered = append(ordered, f)
		}
	}
	for _, f := range open {
		if f.Kind == uiclient.KindPage {
			ordered = append(ordered, f)
		}
	}

	for _, f := range ordered {
		if err := r.dispatcher.ClosePage(cleanCtx, h, &uiclient.Form{ID: f.ID, Kind: f.Kind}); err != nil {
			r.logger.Debug("sweep could not close form",
				zap.String("session", h.ID()),
				zap.String("form", f.ID),
				zap.Error(err))
		}
	}
}
