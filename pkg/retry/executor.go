package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jzx17/photobatch/pkg/types"
)

const (
	// DefaultMaxAttempts bounds encode writes, first try included
	DefaultMaxAttempts = 3

	// DefaultInitialDelay is the wait before the first retry
	DefaultInitialDelay = 50 * time.Millisecond

	// DefaultMaxDelay caps the backoff
	DefaultMaxDelay = time.Second
)

// Func is an operation that may be retried
type Func[T any] func(ctx context.Context) (T, error)

// Stats counts executor activity
type Stats struct {
	Attempts   int64         // every call of the operation
	Retries    int64         // operations that needed more than one attempt
	Successes  int64         // operations that eventually succeeded
	Failures   int64         // operations that gave up
	TotalDelay time.Duration // time spent waiting between attempts
}

// Executor runs operations under a Policy. It is safe for concurrent use.
type Executor struct {
	policy Policy
	clock  types.Clock
	logger *log.Entry

	mu    sync.Mutex
	stats Stats
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithClock sets the clock used for delays
func WithClock(clock types.Clock) ExecutorOption {
	return func(e *Executor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithLogger sets the logger retry attempts are reported to
func WithLogger(logger *log.Entry) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates an Executor. A nil policy means
// NewExponentialBackoffRetry with the package defaults.
func NewExecutor(policy Policy, opts ...ExecutorOption) *Executor {
	if policy == nil {
		policy = NewDefaultPolicy(DefaultMaxAttempts)
	}
	e := &Executor{
		policy: policy,
		clock:  types.NewRealClock(),
		logger: log.NewEntry(log.StandardLogger()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewDefaultPolicy returns the backoff used for encode writes
func NewDefaultPolicy(maxAttempts int) Policy {
	return NewExponentialBackoffRetry(maxAttempts, DefaultInitialDelay, WithMaxDelay(DefaultMaxDelay))
}

// Do runs fn until it succeeds, the policy gives up or ctx is done
func (e *Executor) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	_, err := Execute(e, ctx, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Execute runs fn under e's policy and returns its last value
func Execute[T any](e *Executor, ctx context.Context, name string, fn Func[T]) (T, error) {
	var zero T
	logger := e.logger.WithField("operation", name)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		e.update(func(s *Stats) { s.Attempts++ })
		value, err := fn(ctx)
		if err == nil {
			e.update(func(s *Stats) {
				s.Successes++
				if attempt > 1 {
					s.Retries++
				}
			})
			if attempt > 1 {
				logger.WithField("attempt", attempt).Info("succeeded after retry")
			}
			return value, nil
		}

		if !e.policy.ShouldRetry(err, attempt) {
			e.update(func(s *Stats) {
				s.Failures++
				if attempt > 1 {
					s.Retries++
				}
			})
			if attempt > 1 {
				return zero, fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
			}
			return zero, err
		}

		delay := e.policy.NextDelay(attempt)
		e.update(func(s *Stats) { s.TotalDelay += delay })
		logger.WithError(err).WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("retrying")

		if delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-e.clock.After(delay):
			}
		}
	}
}

// Stats returns a copy of the counters
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Executor) update(fn func(*Stats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.stats)
}
