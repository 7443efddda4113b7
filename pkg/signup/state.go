// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package signup

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the phase of a signup form.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func parseStatus(v string) (Status, error) {
	for _, s := range []Status{StatusIdle, StatusLoading, StatusSuccess, StatusFailed} {
		if s.String() == v {
			return s, nil
		}
	}
	return StatusIdle, fmt.Errorf("unknown signup status %q", v)
}

// State is the status of a form along with the message shown for a failure.
//
// The fields are unexported so a State can only be built from the
// constructors below. A failed State always carries a message.
type State struct {
	status  Status
	message string

	// started is when a loading State began, zero if unknown.
	started time.Time
}

func Idle() State      { return State{status: StatusIdle} }
func Loading() State   { return State{status: StatusLoading} }
func Succeeded() State { return State{status: StatusSuccess} }

// LoadingSince returns a loading State for a submission started at t.
func LoadingSince(t time.Time) State {
	return State{status: StatusLoading, started: t.UTC()}
}

// Failed returns an error State showing message. An empty message is
// replaced with GenericErrorMessage.
func Failed(message string) State {
	if message == "" {
		message = GenericErrorMessage
	}
	return State{status: StatusFailed, message: message}
}

func (s State) Status() Status { return s.status }

// Message is empty unless the State is failed.
func (s State) Message() string { return s.message }

// Started is when a loading State began. It's zero for other States and
// for loading States built with Loading.
func (s State) Started() time.Time { return s.started }

func (s State) String() string {
	if s.status == StatusFailed {
		return fmt.Sprintf("%s: %s", s.status, s.message)
	}
	return s.status.String()
}

type stateJSON struct {
	Status  string     `json:"status"`
	Message string     `json:"error,omitempty"`
	Started *time.Time `json:"started,omitempty"`
}

func (s State) MarshalJSON() ([]byte, error) {
	raw := stateJSON{
		Status:  s.status.String(),
		Message: s.message,
	}
	if !s.started.IsZero() {
		raw.Started = &s.started
	}
	return json.Marshal(raw)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status, err := parseStatus(raw.Status)
	if err != nil {
		return err
	}
	switch status {
	case StatusIdle:
		*s = Idle()
	case StatusLoading:
		*s = Loading()
		if raw.Started != nil {
			*s = LoadingSince(*raw.Started)
		}
	case StatusSuccess:
		*s = Succeeded()
	case StatusFailed:
		*s = Failed(raw.Message)
	}
	return nil
}
