package storage

import (
	"context"
	"errors"
	"time"

	"github.com/its-jojoo/otterclipd/internal/core"
)

// RetryPolicy bounds how often a transient storage failure is retried.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

var DefaultRetry = RetryPolicy{
	Attempts:  5,
	BaseDelay: 20 * time.Millisecond,
	MaxDelay:  500 * time.Millisecond,
}

// Retry runs fn until it succeeds, fails with a non-transient error, or the
// attempts are used up. Failures are returned as *core.StorageError unless
// they already carry a domain meaning (core.ErrNotFound).
func (p RetryPolicy) Retry(ctx context.Context, op string, transient func(error) bool, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if transient == nil || !transient(err) || i == attempts-1 {
			break
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return wrap(op, ctx.Err())
		case <-t.C:
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return wrap(op, err)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomain(err) {
		return err
	}
	return &core.StorageError{Op: op, Err: err}
}

func isDomain(err error) bool {
	var se *core.StorageError
	return errors.Is(err, core.ErrNotFound) || errors.As(err, &se)
}
