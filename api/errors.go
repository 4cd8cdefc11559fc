// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import "errors"

// Kind classifies a request failure.
type Kind int

const (
	// KindServerError means the backend responded with a non-2xx
	// status.
	KindServerError Kind = iota + 1
	// KindUnreachable means no response was received.
	KindUnreachable
	// KindClientConfig means the request was malformed before dispatch.
	KindClientConfig
)

func (k Kind) String() string {
	switch k {
	case KindServerError:
		return "server_error"
	case KindUnreachable:
		return "unreachable"
	case KindClientConfig:
		return "client_config"
	default:
		return "unknown"
	}
}

// Display texts for failures that carry no server-provided message.
const (
	MessageServerError  = "server error"
	MessageUnreachable  = "cannot reach the server"
	MessageClientConfig = "request configuration error"
)

// Error is a normalized request failure. Callers extract it with
// errors.As:
//
//	var apiErr *api.Error
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest { ... }
type Error struct {
	Kind Kind
	// Message is the display text. Error returns it unchanged.
	Message string
	// StatusCode is the HTTP status for KindServerError, else zero.
	StatusCode int
	Method     string
	Path       string
	// Body is the raw response body for KindServerError.
	Body string
	// Err is the underlying cause for KindUnreachable and
	// KindClientConfig.
	Err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an [*Error] of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// NewClientConfigError returns a KindClientConfig error with a
// specific message, for callers that validate a request before it
// reaches [Client.Do].
func NewClientConfigError(method, path, message string) *Error {
	return &Error{Kind: KindClientConfig, Message: message, Method: method, Path: path}
}
