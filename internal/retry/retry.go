// Package retry runs an operation under a bounded exponential backoff policy
// where a caller supplied classifier decides which results are worth another
// attempt.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/spigell/resumax/internal/utils"
)

// Decision is the classifier verdict for a single attempt.
type Decision int

const (
	// Done accepts the result as final.
	Done Decision = iota
	// Retry asks for another attempt if the policy allows one.
	Retry
	// Stop gives up immediately and returns the attempt error.
	Stop
)

func (d Decision) String() string {
	switch d {
	case Done:
		return "done"
	case Retry:
		return "retry"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

type Policy struct {
	// MaxAttempts counts the first call too.
	MaxAttempts  int
	InitialDelay time.Duration
	Factor       float64
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Factor:       2,
	}
}

// Delay returns the wait before attempt number attempt+1, attempt starting at 1.
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.InitialDelay
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * factor)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Stats describes how a Do call went.
type Stats struct {
	Attempts int
	Waited   time.Duration
}

// Sleeper waits for d unless ctx ends first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Retrier applies a Policy. The zero Sleep uses a real timer.
type Retrier struct {
	Policy Policy
	Sleep  Sleeper
	// OnRetry, when set, observes every failed attempt that will be retried.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func New(policy Policy) *Retrier {
	return &Retrier{Policy: policy, Sleep: utils.WaitFor}
}

// ExhaustedError is returned once every allowed attempt was classified Retry.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do calls op until classify returns Done or Stop, or attempts run out.
// classify sees both the value and the error of each attempt; a Retry verdict
// on a nil error is reported through ExhaustedError as a generic failure.
func Do[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error), classify func(T, error) Decision) (T, Stats, error) {
	var (
		zero  T
		stats Stats
	)

	attempts := r.Policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = utils.WaitFor
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		stats.Attempts = attempt

		value, err := op(ctx)
		switch classify(value, err) {
		case Done:
			return value, stats, nil
		case Stop:
			if err == nil {
				err = fmt.Errorf("attempt %d rejected", attempt)
			}
			return zero, stats, err
		}

		lastErr = err
		if lastErr == nil {
			lastErr = fmt.Errorf("attempt %d produced a retryable result", attempt)
		}

		if attempt == attempts {
			break
		}

		delay := r.Policy.Delay(attempt)
		if r.OnRetry != nil {
			r.OnRetry(attempt, delay, lastErr)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, stats, fmt.Errorf("waiting before retry: %w", err)
		}
		stats.Waited += delay
	}

	return zero, stats, &ExhaustedError{Attempts: stats.Attempts, Last: lastErr}
}
