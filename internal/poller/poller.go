// Package poller tracks an order's payment status until the Member API
// reports a terminal state, the wait times out, or the owner gives up.
package poller

import (
	"context"
	"time"

	"github.com/thebridge/bridge-checkout/internal/metrics"
	"github.com/thebridge/bridge-checkout/internal/models"
)

const (
	DefaultInterval    = 3 * time.Second
	DefaultTimeout     = 10 * time.Minute
	DefaultMaxAttempts = 200
)

// Outcome is the state of a tracking run. Every value except OutcomePolling
// is terminal.
type Outcome string

const (
	OutcomePolling    Outcome = "polling"
	OutcomeCompleted  Outcome = "completed"
	OutcomeFailed     Outcome = "failed"
	OutcomeCancelled  Outcome = "cancelled"
	OutcomeTimedOut   Outcome = "timed_out"
	OutcomeQueryError Outcome = "query_error"
	OutcomeAborted    Outcome = "aborted"
)

func (o Outcome) Terminal() bool { return o != OutcomePolling && o != "" }

// Final reports whether the Member API itself settled the order. Tracking
// that ended any other way may be started again.
func (o Outcome) Final() bool {
	return o == OutcomeCompleted || o == OutcomeFailed || o == OutcomeCancelled
}

// Status is what a single status query reports.
type Status struct {
	IsPaid        bool
	PaymentStatus models.PaymentStatus
}

// StatusFunc queries the current status of the order with the given
// public tracking id.
type StatusFunc func(ctx context.Context, pubTrackID string) (Status, error)

// Classify maps one status response to the outcome it implies. Completed
// requires the paid flag as well; a paid but not yet completed order keeps
// polling.
func Classify(s Status) Outcome {
	switch s.PaymentStatus {
	case models.PaymentCompleted:
		if s.IsPaid {
			return OutcomeCompleted
		}
	case models.PaymentFailed:
		return OutcomeFailed
	case models.PaymentCancelled:
		return OutcomeCancelled
	}
	return OutcomePolling
}

type Config struct {
	// Interval is the delay between one query settling and the next starting.
	Interval time.Duration
	// Timeout bounds the whole run. Zero disables it.
	Timeout time.Duration
	// MaxAttempts bounds the number of queries. Zero disables it.
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, Timeout: DefaultTimeout, MaxAttempts: DefaultMaxAttempts}
}

type Result struct {
	PubTrackID string
	Outcome    Outcome
	Attempts   int
	Last       Status
	Err        error
}

type Poller struct {
	cfg Config
}

func New(cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{cfg: cfg}
}

func (p *Poller) Config() Config { return p.cfg }

// Run waits one interval, queries, and repeats until a terminal outcome.
// Only one query is ever in flight. A query error ends the run at once with
// OutcomeQueryError. Cancelling ctx ends it with OutcomeAborted; exceeding
// the configured timeout or attempt budget ends it with OutcomeTimedOut.
func (p *Poller) Run(ctx context.Context, pubTrackID string, query StatusFunc) Result {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
	}
	defer cancel()

	res := Result{PubTrackID: pubTrackID, Outcome: OutcomePolling}

	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-runCtx.Done():
			return interrupted(ctx, res)
		case <-timer.C:
		}

		res.Attempts++
		start := time.Now()
		status, err := query(runCtx, pubTrackID)
		metrics.StatusQueries.Observe(time.Since(start).Seconds())

		if err != nil {
			if runCtx.Err() != nil {
				return interrupted(ctx, res)
			}
			res.Outcome = OutcomeQueryError
			res.Err = err
			return res
		}

		res.Last = status
		if outcome := Classify(status); outcome.Terminal() {
			res.Outcome = outcome
			return res
		}

		if p.cfg.MaxAttempts > 0 && res.Attempts >= p.cfg.MaxAttempts {
			res.Outcome = OutcomeTimedOut
			res.Err = context.DeadlineExceeded
			return res
		}

		timer.Reset(p.cfg.Interval)
	}
}

// interrupted tells an owner teardown apart from the run's own deadline.
func interrupted(parent context.Context, res Result) Result {
	if err := parent.Err(); err != nil {
		res.Outcome = OutcomeAborted
		res.Err = err
		return res
	}
	res.Outcome = OutcomeTimedOut
	res.Err = context.DeadlineExceeded
	return res
}
