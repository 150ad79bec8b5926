package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/smithy-go"
)

// ErrNotFound indicates a key or bucket that does not exist. Not retryable.
var ErrNotFound = errors.New("object not found")

// ErrAccessDenied indicates missing permissions. Not retryable.
var ErrAccessDenied = errors.New("access denied")

// TransientError wraps a failure that is worth retrying, typically a
// network or throttling error from the store.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classify maps an S3 SDK error onto the connector's error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%s: %w: %v", op, ErrAccessDenied, err)
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "Throttling", "ThrottlingException":
			return &TransientError{Op: op, Err: err}
		}
		return fmt.Errorf("%s failed: %w", op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Op: op, Err: err}
	}

	return fmt.Errorf("%s failed: %w", op, err)
}
