// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package apperr is the registry's client-facing error taxonomy.
//
// Every failure a publish or ownership operation reports to a client
// is an *Error with a Kind. The Kind tells the outer HTTP layer which
// status to use and tells clients whether resubmitting can help: an
// Input error is fixable by changing the upload, a Forbidden error is
// not, a RateLimited error carries the instant at which a retry will
// be accepted.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a client-visible failure.
type Kind int

const (
	// Internal covers unanticipated failures: constraint violations
	// the pre-checks missed, storage outages, post-commit upload
	// failures. Messages are not meant for end users.
	Internal Kind = iota

	// Input is a malformed payload or a validation failure. No state
	// was mutated.
	Input

	// Forbidden means the actor lacks the rights for the operation.
	Forbidden

	// Unverified means team membership could not be checked because
	// the identity provider failed. Distinct from Forbidden so
	// operators can tell infrastructure failure from policy.
	Unverified

	// RateLimited carries RetryAfter.
	RateLimited

	// TooLarge carries the Limit that was exceeded.
	TooLarge
)

func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case Input:
		return "input"
	case Forbidden:
		return "forbidden"
	case Unverified:
		return "unverified"
	case RateLimited:
		return "rate_limited"
	case TooLarge:
		return "too_large"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified failure. Message is the stable human-readable
// text shown to clients.
type Error struct {
	Kind    Kind
	Message string

	// RetryAfter is set for RateLimited.
	RetryAfter time.Time

	// Limit is the exceeded byte limit for TooLarge.
	Limit int64

	// Err is the underlying cause, if any. It is not part of Message.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == Internal {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Inputf builds an Input error.
func Inputf(format string, args ...any) *Error {
	return &Error{Kind: Input, Message: fmt.Sprintf(format, args...)}
}

// Forbiddenf builds a Forbidden error.
func Forbiddenf(format string, args ...any) *Error {
	return &Error{Kind: Forbidden, Message: fmt.Sprintf(format, args...)}
}

// Unverifiedf builds an Unverified error wrapping the lookup failure.
func Unverifiedf(cause error, format string, args ...any) *Error {
	return &Error{Kind: Unverified, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Internalf builds an Internal error wrapping cause.
func Internalf(cause error, format string, args ...any) *Error {
	return &Error{Kind: Internal, Message: fmt.Sprintf(format, args...), Err: cause}
}

// RateLimitedUntil builds a RateLimited error.
func RateLimitedUntil(retryAfter time.Time, message string) *Error {
	return &Error{Kind: RateLimited, Message: message, RetryAfter: retryAfter}
}

// TooLargef builds a TooLarge error for limit.
func TooLargef(limit int64, format string, args ...any) *Error {
	return &Error{Kind: TooLarge, Message: fmt.Sprintf(format, args...), Limit: limit}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// Internal when there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
