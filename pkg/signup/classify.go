// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package signup

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	AlreadyRegisteredMessage = "This email is already registered."
	InvalidEmailMessage      = "Please enter a valid email address."
	PasswordMessage          = "Password must be at least 8 characters."
	GenericErrorMessage      = "Something went wrong. Please try again."

	// ConfigErrorMessage is shown when the remote service credentials are
	// missing at submit time.
	ConfigErrorMessage = "Configuration error: Cocobase API keys are missing. Please set them in your environment variables."

	// maxVerbatimMessage is the length (in characters) under which a
	// remote message is shown to the user as-is.
	maxVerbatimMessage = 100
)

// describer is implemented by remote errors which carry a structured
// response body, see cocobase.Error.
type describer interface {
	ErrorDetail() string
	ErrorMessage() string
}

// Description is the normalized text of a failed submission.
type Description struct {
	// Detail is the nested error detail from the remote response, if any.
	Detail string

	// Message is the nested error message, the response message or the
	// error text, whichever is found first.
	Message string
}

// Describe extracts the text used for classification from err.
func Describe(err error) Description {
	if err == nil {
		return Description{}
	}
	var d describer
	if errors.As(err, &d) {
		desc := Description{
			Detail:  d.ErrorDetail(),
			Message: d.ErrorMessage(),
		}
		if desc.Message == "" {
			desc.Message = err.Error()
		}
		return desc
	}
	return Description{Message: err.Error()}
}

func (d Description) text() string {
	return strings.ToLower(d.Detail + " " + d.Message)
}

type rule struct {
	matches func(d Description) bool
	message func(d Description) string
}

func contains(needles ...string) func(Description) bool {
	return func(d Description) bool {
		text := d.text()
		for i := range needles {
			if strings.Contains(text, needles[i]) {
				return true
			}
		}
		return false
	}
}

func fixed(msg string) func(Description) string {
	return func(Description) string { return msg }
}

// rules are evaluated in order, the first match wins.
var rules = []rule{
	{
		matches: contains("already exists", "duplicate"),
		message: fixed(AlreadyRegisteredMessage),
	},
	{
		matches: contains("invalid email"),
		message: fixed(InvalidEmailMessage),
	},
	{
		matches: contains("password"),
		message: fixed(PasswordMessage),
	},
	{
		matches: func(d Description) bool { return d.Detail != "" },
		message: func(d Description) string { return d.Detail },
	},
	{
		matches: func(d Description) bool {
			return d.Message != "" && utf8.RuneCountInString(d.Message) < maxVerbatimMessage
		},
		message: func(d Description) string { return d.Message },
	},
}

// Classify maps a failed submission onto the message shown to the user.
//
// This is pattern matching over text the remote service controls, so a
// change in its wording can change the result.
func Classify(err error) string {
	d := Describe(err)
	for i := range rules {
		if rules[i].matches(d) {
			return rules[i].message(d)
		}
	}
	return GenericErrorMessage
}
