/*
Copyright PD Control Plane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package apierror defines the typed error taxonomy shared by the
// registry, scheduler, and control surface. Every error that can reach
// an HTTP caller is one of these kinds; anything else is a bug.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error so the control surface can translate it to
// a wire status without inspecting message text.
type Kind string

const (
	NotFound           Kind = "NotFound"
	AlreadyExists      Kind = "AlreadyExists"
	PreconditionFailed Kind = "PreconditionFailed"
	NoCapacity         Kind = "NoCapacity"
	InvalidArgument    Kind = "InvalidArgument"
	Internal           Kind = "Internal"
)

// Error is the typed error returned by the core. It wraps an optional
// underlying cause so callers can still use errors.Is/As on it.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusCode maps a Kind to the HTTP status the control surface answers
// with.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case NotFound:
		return http.StatusNotFound
	case AlreadyExists, PreconditionFailed:
		return http.StatusConflict
	case NoCapacity:
		return http.StatusServiceUnavailable
	case InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error          { return newf(NotFound, format, args...) }
func AlreadyExistsf(format string, args ...any) *Error     { return newf(AlreadyExists, format, args...) }
func PreconditionFailedf(format string, args ...any) *Error {
	return newf(PreconditionFailed, format, args...)
}
func NoCapacityf(format string, args ...any) *Error      { return newf(NoCapacity, format, args...) }
func InvalidArgumentf(format string, args ...any) *Error { return newf(InvalidArgument, format, args...) }
func Internalf(format string, args ...any) *Error        { return newf(Internal, format, args...) }

// Wrap annotates cause with a kind and message while preserving it for
// errors.Is/As.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

// StatusCode extracts the HTTP status for any error, defaulting
// unrecognized errors to 500 Internal — the core never swallows an
// error, and the control surface never guesses at one either.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode()
	}
	return http.StatusInternalServerError
}
