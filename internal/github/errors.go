// GitSentry - GitHub Events Monitoring and Warning Pipeline
// Copyright 2026 Marek V. (marekvw)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marekvw/gitsentry

package github

import "errors"

// RetryableError marks a feed failure that is expected to heal on its
// own: rate limiting, server errors, network timeouts. The poller backs
// off and retries the cycle.
type RetryableError struct {
	Err error
}

func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// PermanentError marks a feed failure that retrying cannot fix, such as
// a rejected request or an undecodable response body.
type PermanentError struct {
	Err error
}

func NewPermanentError(err error) *PermanentError {
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsRetryable reports whether err should be retried with backoff
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
