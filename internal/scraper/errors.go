package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransientError marks a scrape failure worth retrying: timeouts, connection
// faults, driver errors.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string {
	return fmt.Errorf("transient scrape error: %w", e.Err).Error()
}

func (e TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a scrape failure that retrying cannot fix: page
// structure mismatch or an unparsable price. The merchant is skipped for the
// current run.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	return fmt.Errorf("permanent scrape error: %w", e.Err).Error()
}

func (e PermanentError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is eligible for a scrape-level retry.
func IsTransient(err error) bool {
	var t TransientError
	return errors.As(err, &t)
}

// Classify wraps a raw fetch error into the transient/permanent taxonomy.
// Network-level faults are transient; anything already classified passes
// through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var t TransientError
	var p PermanentError
	if errors.As(err, &t) || errors.As(err, &p) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TransientError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return TransientError{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return TransientError{Err: err}
	}
	return TransientError{Err: err}
}
