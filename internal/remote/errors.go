package remote

import (
	"errors"
	"fmt"
)

// Failure classifies why a connect attempt was rejected.
type Failure string

const (
	AuthenticationFailed Failure = "authentication_failed"
	TargetNotFound       Failure = "target_not_found"
	TargetNotReady       Failure = "target_not_ready"
	NetworkError         Failure = "network_error"
	Timeout              Failure = "timeout"
)

// ConnectError is returned by Establisher.Connect. The Failure field lets
// callers branch without string matching; Detail is safe to show to the
// client.
type ConnectError struct {
	Failure Failure
	Detail  string
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Failure, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Failure, e.Detail)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func connectErr(f Failure, detail string, err error) *ConnectError {
	return &ConnectError{Failure: f, Detail: detail, Err: err}
}

// FailureOf extracts the failure class from err, or "" if err is not a
// ConnectError.
func FailureOf(err error) Failure {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Failure
	}
	return ""
}
