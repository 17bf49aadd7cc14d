// Package wait provides the explicit condition wait used by the browser suite:
// a predicate polled on an interval until it holds or a bound expires.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	k8swait "k8s.io/apimachinery/pkg/util/wait"

	"github.com/kuitang/mlocid-e2e/internal/errs"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// ErrTimeout is matched by every *TimeoutError via errors.Is.
var ErrTimeout = errors.New("wait: condition not satisfied before timeout")

// ConditionFunc reports whether the awaited state has been reached. A
// non-nil error means "not yet"; it is kept as the last error for reporting.
type ConditionFunc func(ctx context.Context) (bool, error)

// Policy bounds one explicit wait.
type Policy struct {
	Timeout  time.Duration
	Interval time.Duration
}

// DefaultPolicy is the 10s bound used at every call site in the suite.
func DefaultPolicy() Policy {
	return Policy{Timeout: DefaultTimeout, Interval: DefaultInterval}
}

func (p Policy) normalized() Policy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.Interval > p.Timeout {
		p.Interval = p.Timeout
	}
	return p
}

// TimeoutError is returned when a condition is still false after the policy's timeout.
type TimeoutError struct {
	Description string
	Timeout     time.Duration
	Elapsed     time.Duration
	Attempts    int
	LastErr     error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s (%d attempts)",
		e.Elapsed.Round(time.Millisecond), e.Description, e.Attempts)
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// Is makes errors.Is(err, ErrTimeout) hold for any TimeoutError.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ErrorCode implements errs.Coder.
func (e *TimeoutError) ErrorCode() errs.Code { return errs.DeadlineExceeded }

// Until evaluates cond immediately and then every policy.Interval until it
// returns true. It returns nil as soon as cond holds, a *TimeoutError once
// policy.Timeout elapses, or ctx.Err() if the parent context ends first.
func Until(ctx context.Context, policy Policy, description string, cond ConditionFunc) error {
	policy = policy.normalized()

	var (
		start    = time.Now()
		attempts int
		lastErr  error
	)

	pollErr := k8swait.PollUntilContextTimeout(ctx, policy.Interval, policy.Timeout, true, func(ctx context.Context) (bool, error) {
		attempts++
		ok, err := cond(ctx)
		if err != nil {
			lastErr = err
			return false, nil
		}
		if ok {
			lastErr = nil
		}
		return ok, nil
	})
	if pollErr == nil {
		return nil
	}

	// A cancelled parent is not a timeout of this wait.
	if ctx.Err() != nil {
		return fmt.Errorf("waiting for %s: %w", description, ctx.Err())
	}
	if !k8swait.Interrupted(pollErr) {
		return fmt.Errorf("waiting for %s: %w", description, pollErr)
	}
	return &TimeoutError{
		Description: description,
		Timeout:     policy.Timeout,
		Elapsed:     time.Since(start),
		Attempts:    attempts,
		LastErr:     lastErr,
	}
}

// Settle blocks for d unconditionally, returning early only if ctx ends.
// It covers DOM updates that no wait predicate observes.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
