// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package signup implements the waitlist signup flow: registering an
// account with Cocobase, recording a waitlist entry and keeping track of
// what each signup form shows.
package signup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"golang.org/x/oauth2"

	"github.com/cocodb/waitlist/pkg/cocobase"
)

// MinPasswordLength is the shortest password the form accepts.
const MinPasswordLength = 8

// staleAfter is how long past the request timeout a loading form is still
// trusted to have a submission running. Older loading forms were left
// behind by a restart and may be submitted again.
const staleAfter = time.Minute

// isoTime matches the millisecond precision timestamps Cocobase stores.
const isoTime = "2006-01-02T15:04:05.000Z07:00"

var (
	// ErrInFlight is returned when a form already has a submission
	// running. The submission is ignored.
	ErrInFlight = errors.New("signup: submission already in progress")

	// ErrCompleted is returned when a form has already signed up.
	ErrCompleted = errors.New("signup: form already completed")

	// ErrInvalidInput is returned when the email or password is missing
	// or the password is too short.
	ErrInvalidInput = errors.New("signup: email and password are required")
)

// Accounts registers accounts with the remote service.
type Accounts interface {
	Register(ctx context.Context, email, password string, meta cocobase.Metadata) (*cocobase.AuthResponse, error)
}

// Documents writes documents to the remote service.
type Documents interface {
	CreateDocument(ctx context.Context, token *oauth2.Token, collection string, data interface{}) (*cocobase.Document, error)
}

// Input is what the user typed into a form.
type Input struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in Input) validate() error {
	if in.Email == "" || in.Password == "" {
		return ErrInvalidInput
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	return nil
}

// Form is one signup form: its ID, the input it shows and its State.
type Form struct {
	ID    string
	Input Input
	State State
}

// Metrics are counters updated by a Controller. Submissions is labeled
// with "outcome".
type Metrics struct {
	Submissions      metrics.Counter
	WaitlistFailures metrics.Counter
}

// Controller runs signup submissions for any number of forms. The State
// of each form lives in a Store.
type Controller struct {
	accounts  Accounts
	documents Documents
	store     Store
	config    cocobase.ConfigSource
	logger    log.Logger
	metrics   Metrics

	now func() time.Time
}

func NewController(store Store, accounts Accounts, documents Documents, config cocobase.ConfigSource, logger log.Logger) *Controller {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Controller{
		accounts:  accounts,
		documents: documents,
		store:     store,
		config:    config,
		logger:    logger,
		metrics: Metrics{
			Submissions:      discard.NewCounter(),
			WaitlistFailures: discard.NewCounter(),
		},
		now: time.Now,
	}
}

// WithMetrics replaces the counters updated by c. Nil counters are
// ignored.
func (c *Controller) WithMetrics(m Metrics) *Controller {
	if m.Submissions != nil {
		c.metrics.Submissions = m.Submissions
	}
	if m.WaitlistFailures != nil {
		c.metrics.WaitlistFailures = m.WaitlistFailures
	}
	return c
}

// Current returns the form without changing it.
func (c *Controller) Current(ctx context.Context, formID string) (Form, error) {
	state, err := c.store.Load(ctx, formID)
	if err != nil {
		return Form{ID: formID}, err
	}
	return Form{ID: formID, State: state}, nil
}

// Mount is called when a form is (re)displayed from scratch. Finished
// forms start over, a running submission is left alone unless it's stale.
func (c *Controller) Mount(ctx context.Context, formID string) (Form, error) {
	conf := c.config()
	state, err := c.store.Transition(ctx, formID, func(cur State) (State, error) {
		if cur.Status() == StatusLoading && !c.stale(cur, conf) {
			return cur, nil
		}
		return Idle(), nil
	})
	return Form{ID: formID, State: state}, err
}

// stale reports whether a loading State has outlived any submission which
// could still be running for it. Loading States without a start time are
// always stale.
func (c *Controller) stale(s State, conf cocobase.Config) bool {
	if s.Status() != StatusLoading {
		return false
	}
	if s.Started().IsZero() {
		return true
	}
	limit := staleAfter
	if conf.Timeout > 0 {
		limit += conf.Timeout
	}
	return c.now().Sub(s.Started()) > limit
}

// Reset clears a failed form so the user can try again. Forms in any
// other state are returned unchanged.
func (c *Controller) Reset(ctx context.Context, formID string) (Form, error) {
	state, err := c.store.Transition(ctx, formID, func(cur State) (State, error) {
		if cur.Status() == StatusFailed {
			return Idle(), nil
		}
		return cur, nil
	})
	return Form{ID: formID, State: state}, err
}

// Submit signs up in.Email. Remote failures don't return an error, they
// leave the form failed with a message for the user. An error is
// returned when the submission was refused (ErrInFlight, ErrCompleted,
// ErrInvalidInput) or the Store failed.
func (c *Controller) Submit(ctx context.Context, formID string, in Input) (Form, error) {
	if err := in.validate(); err != nil {
		form, lerr := c.Current(ctx, formID)
		if lerr != nil {
			return form, lerr
		}
		form.Input = in
		return form, err
	}

	conf := c.config()
	state, err := c.store.Transition(ctx, formID, func(cur State) (State, error) {
		switch cur.Status() {
		case StatusLoading:
			if !c.stale(cur, conf) {
				return cur, ErrInFlight
			}
			level.Warn(c.logger).Log("signup", "replacing stale submission", "formID", formID, "started", cur.Started())
		case StatusSuccess:
			return cur, ErrCompleted
		}
		return LoadingSince(c.now()), nil
	})
	if err != nil {
		if errors.Is(err, ErrInFlight) {
			c.metrics.Submissions.With("outcome", "in_flight").Add(1)
		}
		return Form{ID: formID, Input: in, State: state}, err
	}

	if missing := conf.Missing(); len(missing) > 0 {
		level.Error(c.logger).Log("signup", "configuration missing", "missing", strings.Join(missing, ","))
		return c.finish(ctx, formID, in, Failed(ConfigErrorMessage), "config")
	}

	if err := c.register(ctx, in); err != nil {
		keyvals := []interface{}{"signup", "registration failed", "email", in.Email, "error", err}
		var cerr *cocobase.Error
		if errors.As(err, &cerr) && cerr.RawBody() != "" {
			keyvals = append(keyvals, "body", cerr.RawBody())
		}
		level.Error(c.logger).Log(keyvals...)
		return c.finish(ctx, formID, in, Failed(Classify(err)), "failure")
	}
	return c.finish(ctx, formID, Input{}, Succeeded(), "success")
}

func (c *Controller) finish(ctx context.Context, formID string, in Input, next State, outcome string) (Form, error) {
	c.metrics.Submissions.With("outcome", outcome).Add(1)

	state, err := c.store.Transition(ctx, formID, func(State) (State, error) {
		return next, nil
	})
	if err != nil {
		return Form{ID: formID, Input: in, State: state}, fmt.Errorf("signup: saving %s state: %w", next.Status(), err)
	}
	return Form{ID: formID, Input: in, State: state}, nil
}

// errNoAccount is a registration response without a user.
type errNoAccount struct{}

func (errNoAccount) Error() string        { return "signup: registration response has no user" }
func (errNoAccount) ErrorDetail() string  { return "" }
func (errNoAccount) ErrorMessage() string { return "Failed to create account" }

func (c *Controller) register(ctx context.Context, in Input) error {
	resp, err := c.accounts.Register(ctx, in.Email, in.Password, cocobase.Metadata{
		EarlyAccess: true,
		SignupDate:  c.now().UTC().Format(isoTime),
		UserStatus:  "active",
	})
	if err != nil {
		return err
	}
	if resp == nil || resp.User == nil || resp.User.ID == "" {
		return errNoAccount{}
	}
	c.recordWaitlist(ctx, in.Email, resp)
	return nil
}

// recordWaitlist appends the waitlist document for a new account. The
// account exists either way so failures are only logged.
func (c *Controller) recordWaitlist(ctx context.Context, email string, resp *cocobase.AuthResponse) {
	record := cocobase.WaitlistRecord{
		Email:    email,
		UserID:   resp.User.ID,
		Status:   "waitlist",
		Rank:     "early_adopter",
		JoinedAt: c.now().UTC().Format(isoTime),
		Source:   "landing_page",
	}
	if _, err := c.documents.CreateDocument(ctx, resp.Token(), cocobase.WaitlistCollection, record); err != nil {
		c.metrics.WaitlistFailures.Add(1)
		level.Warn(c.logger).Log("waitlist", "document creation failed, but user is registered", "userId", resp.User.ID, "error", err)
	}
}
