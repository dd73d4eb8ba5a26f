// Package resilience decides which backend errors are worth retrying while a
// job establishes its storage connection.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Class is the retry classification of an error.
type Class int

const (
	// Transient errors may succeed on a later attempt.
	Transient Class = iota
	// Permanent errors will fail again no matter how often they are retried.
	Permanent
)

func (c Class) String() string {
	if c == Permanent {
		return "permanent"
	}
	return "transient"
}

// PermanentError wraps an error to mark it as non-retryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// NewPermanentError wraps an error to indicate it should not be retried.
func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TransientError wraps an error to mark it as retryable regardless of its type.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error to explicitly indicate it should be retried.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// StatusError is a non-2xx reply from an HTTP-speaking store.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Classify reports whether err is worth another attempt.
// Unrecognized errors are transient.
func Classify(err error) Class {
	if err == nil {
		return Transient
	}

	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return Permanent
	}
	var transErr *TransientError
	if errors.As(err, &transErr) {
		return Transient
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Permanent
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		// 401/403/404 will not change between attempts; 429 and 5xx might.
		if statusErr.Code >= 400 && statusErr.Code < 500 && statusErr.Code != 429 {
			return Permanent
		}
		return Transient
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return Permanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.Is(pathErr.Err, syscall.EACCES) || errors.Is(pathErr.Err, syscall.EPERM) || errors.Is(pathErr.Err, syscall.ENOENT) {
			return Permanent
		}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EACCES, syscall.EPERM, syscall.ENOENT, syscall.ENOTDIR:
			return Permanent
		}
	}

	return Transient
}

// IsPermanentError checks if an error is classified as non-retryable.
func IsPermanentError(err error) bool {
	return err != nil && Classify(err) == Permanent
}
