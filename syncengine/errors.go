// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
)

// ErrNotFound is returned by Store implementations when a record does not exist
var ErrNotFound = errors.New("record not found")

// Provider error classes derived from the provider's HTTP status
const (
	ClassRateLimited    = "rate_limited"
	ClassNotFound       = "not_found"
	ClassInvalidRequest = "invalid_request"
	ClassTransient      = "transient"
)

// AuthExchangeError indicates the one-time authorization code was rejected.
// Not retryable - the user must restart the consent flow.
type AuthExchangeError struct {
	Err error
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("authorization code exchange failed: %v", e.Err)
}

func (e *AuthExchangeError) Unwrap() error { return e.Err }

// ReauthRequiredError indicates no stored credential exists or the refresh
// token was rejected by the provider. Not retryable without new consent.
type ReauthRequiredError struct {
	Reason string
	Err    error
}

func (e *ReauthRequiredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reauthorization required: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("reauthorization required: %s", e.Reason)
}

func (e *ReauthRequiredError) Unwrap() error { return e.Err }

// ProviderError wraps a failure from the remote calendar/tasks provider,
// tagged with a class derived from the HTTP status code.
type ProviderError struct {
	Class      string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (%s): %v", e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the failure may succeed on a later attempt.
// rate_limited and transient failures belong to the retry population;
// not_found and invalid_request require manual correction.
func (e *ProviderError) Retryable() bool {
	return e.Class == ClassRateLimited || e.Class == ClassTransient
}

// classifyProviderError maps an error from a provider call onto the
// ProviderError taxonomy. Timeouts and network failures are transient.
func classifyProviderError(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &ProviderError{
			Class:      classForStatus(gerr.Code),
			StatusCode: gerr.Code,
			Err:        err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ProviderError{Class: ClassTransient, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ProviderError{Class: ClassTransient, Err: err}
	}

	// Unknown failures are treated as transient so they stay retryable
	return &ProviderError{Class: ClassTransient, Err: err}
}

func classForStatus(code int) string {
	switch {
	case code == 429:
		return ClassRateLimited
	case code == 404 || code == 410:
		return ClassNotFound
	case code >= 400 && code < 500:
		return ClassInvalidRequest
	default:
		return ClassTransient
	}
}
