// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package cocobase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoBaseURL is returned when a request is attempted without
	// COCOBASE_BASE_URL.
	ErrNoBaseURL = errors.New("cocobase: base URL is not configured")
)

// ErrorBody is the JSON body Cocobase returns on failures. Both fields
// are optional.
type ErrorBody struct {
	Error *struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Error is a non-2xx response from Cocobase.
type Error struct {
	StatusCode int
	Body       ErrorBody

	// raw is the response body when it couldn't be decoded. It's kept for
	// logging only and never used as a message.
	raw string
}

func newError(status int, body []byte) *Error {
	e := &Error{StatusCode: status}
	if err := json.Unmarshal(body, &e.Body); err != nil {
		e.raw = strings.TrimSpace(string(body))
	}
	return e
}

func (e *Error) Error() string {
	if msg := e.ErrorMessage(); msg != "" {
		return fmt.Sprintf("cocobase: status %d: %s", e.StatusCode, msg)
	}
	if d := e.ErrorDetail(); d != "" {
		return fmt.Sprintf("cocobase: status %d: %s", e.StatusCode, d)
	}
	return fmt.Sprintf("cocobase: status %d", e.StatusCode)
}

// ErrorDetail returns error.detail from the response body.
func (e *Error) ErrorDetail() string {
	if e == nil || e.Body.Error == nil {
		return ""
	}
	return e.Body.Error.Detail
}

// RawBody returns the response body when it wasn't a JSON error body.
func (e *Error) RawBody() string {
	if e == nil {
		return ""
	}
	return e.raw
}

// ErrorMessage returns error.message, falling back to the top level
// message.
func (e *Error) ErrorMessage() string {
	if e == nil {
		return ""
	}
	if e.Body.Error != nil && e.Body.Error.Message != "" {
		return e.Body.Error.Message
	}
	if e.Body.Message != "" {
		return e.Body.Message
	}
	return ""
}
