// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package signup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/generic"
	"go.uber.org/goleak"
	"golang.org/x/oauth2"

	"github.com/cocodb/waitlist/pkg/cocobase"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type registration struct {
	email, password string
	meta            cocobase.Metadata
}

type mockAccounts struct {
	mu    sync.Mutex
	calls []registration

	resp *cocobase.AuthResponse
	err  error

	// block, when set, holds Register until it's closed
	block   chan struct{}
	started chan struct{}
}

func (m *mockAccounts) Register(ctx context.Context, email, password string, meta cocobase.Metadata) (*cocobase.AuthResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, registration{email, password, meta})
	m.mu.Unlock()

	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}
	return m.resp, m.err
}

func (m *mockAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type document struct {
	token      *oauth2.Token
	collection string
	data       interface{}
}

type mockDocuments struct {
	mu    sync.Mutex
	calls []document
	err   error
}

func (m *mockDocuments) CreateDocument(ctx context.Context, token *oauth2.Token, collection string, data interface{}) (*cocobase.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, document{token, collection, data})
	if m.err != nil {
		return nil, m.err
	}
	return &cocobase.Document{ID: "doc"}, nil
}

// outcomes counts Submissions by their "outcome" label.
type outcomes struct {
	mu   sync.Mutex
	seen map[string]float64
}

func (o *outcomes) With(labelValues ...string) metrics.Counter {
	for i := 0; i+1 < len(labelValues); i += 2 {
		if labelValues[i] == "outcome" {
			return outcomeCounter{o, labelValues[i+1]}
		}
	}
	return o
}

func (o *outcomes) Add(float64) {}

func (o *outcomes) get(outcome string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seen[outcome]
}

type outcomeCounter struct {
	o       *outcomes
	outcome string
}

func (c outcomeCounter) With(...string) metrics.Counter { return c }

func (c outcomeCounter) Add(delta float64) {
	c.o.mu.Lock()
	defer c.o.mu.Unlock()
	if c.o.seen == nil {
		c.o.seen = make(map[string]float64)
	}
	c.o.seen[c.outcome] += delta
}

var (
	validConfig = cocobase.Config{
		APIKey:    "key",
		ProjectID: "project",
		BaseURL:   "http://cocobase.invalid",
	}

	validInput = Input{
		Email:    "jane@example.com",
		Password: "superlongpassword",
	}
)

func registered(userID string) *cocobase.AuthResponse {
	return &cocobase.AuthResponse{
		AccessToken: "token",
		User: &cocobase.User{
			ID:    userID,
			Email: validInput.Email,
		},
	}
}

func setupController(accounts *mockAccounts, docs *mockDocuments, conf cocobase.Config) *Controller {
	c := NewController(NewMemoryStore(), accounts, docs, cocobase.Static(conf), log.NewNopLogger())
	c.now = func() time.Time {
		return time.Date(2024, time.March, 1, 12, 30, 0, 0, time.UTC)
	}
	return c
}

func TestController__submit(t *testing.T) {
	accounts := &mockAccounts{resp: registered("user-1")}
	docs := &mockDocuments{}
	c := setupController(accounts, docs, validConfig)

	ctx := context.Background()
	form, err := c.Submit(ctx, "form", validInput)
	if err != nil {
		t.Fatal(err)
	}
	if form.State.Status() != StatusSuccess {
		t.Errorf("got %v", form.State)
	}
	if form.Input != (Input{}) {
		t.Errorf("input wasn't cleared: %#v", form.Input)
	}

	// registration
	if n := accounts.count(); n != 1 {
		t.Fatalf("got %d registrations", n)
	}
	reg := accounts.calls[0]
	if reg.email != validInput.Email || reg.password != validInput.Password {
		t.Errorf("got %#v", reg)
	}
	if !reg.meta.EarlyAccess || reg.meta.UserStatus != "active" {
		t.Errorf("got %#v", reg.meta)
	}
	if reg.meta.SignupDate != "2024-03-01T12:30:00.000Z" {
		t.Errorf("got %q", reg.meta.SignupDate)
	}

	// waitlist document
	if len(docs.calls) != 1 {
		t.Fatalf("got %d documents", len(docs.calls))
	}
	doc := docs.calls[0]
	if doc.collection != "waitlist_users" {
		t.Errorf("got %q", doc.collection)
	}
	if doc.token == nil || doc.token.AccessToken != "token" {
		t.Errorf("got %#v", doc.token)
	}
	record, ok := doc.data.(cocobase.WaitlistRecord)
	if !ok {
		t.Fatalf("got %T", doc.data)
	}
	expected := cocobase.WaitlistRecord{
		Email:    validInput.Email,
		UserID:   "user-1",
		Status:   "waitlist",
		Rank:     "early_adopter",
		JoinedAt: "2024-03-01T12:30:00.000Z",
		Source:   "landing_page",
	}
	if record != expected {
		t.Errorf("got %#v", record)
	}

	// stored state
	current, err := c.Current(ctx, "form")
	if err != nil || current.State.Status() != StatusSuccess {
		t.Errorf("got state=%v, err=%v", current.State, err)
	}
}

func TestController__loadingWhileRegistering(t *testing.T) {
	accounts := &mockAccounts{
		resp:    registered("user-1"),
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	c := setupController(accounts, &mockDocuments{}, validConfig)
	ctx := context.Background()

	done := make(chan Form)
	go func() {
		form, _ := c.Submit(ctx, "form", validInput)
		done <- form
	}()
	<-accounts.started

	form, err := c.Current(ctx, "form")
	if err != nil {
		t.Fatal(err)
	}
	if form.State.Status() != StatusLoading {
		t.Errorf("got %v", form.State)
	}

	close(accounts.block)
	form = <-done
	if form.State.Status() != StatusSuccess {
		t.Errorf("got %v", form.State)
	}
}

func TestController__singleFlight(t *testing.T) {
	accounts := &mockAccounts{
		resp:    registered("user-1"),
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	submissions := &outcomes{}
	c := setupController(accounts, &mockDocuments{}, validConfig).WithMetrics(Metrics{
		Submissions: submissions,
	})
	ctx := context.Background()

	done := make(chan error)
	go func() {
		_, err := c.Submit(ctx, "form", validInput)
		done <- err
	}()
	<-accounts.started

	// second submission while the first is running
	form, err := c.Submit(ctx, "form", validInput)
	if !errors.Is(err, ErrInFlight) {
		t.Errorf("got %v", err)
	}
	if form.State.Status() != StatusLoading {
		t.Errorf("got %v", form.State)
	}

	// a different form isn't blocked
	other := &mockAccounts{resp: registered("user-2")}
	c2 := setupController(other, &mockDocuments{}, validConfig)
	c2.store = c.store
	if _, err := c2.Submit(ctx, "other-form", validInput); err != nil {
		t.Errorf("other form: %v", err)
	}

	close(accounts.block)
	if err := <-done; err != nil {
		t.Error(err)
	}
	if n := accounts.count(); n != 1 {
		t.Errorf("got %d registrations", n)
	}
	if v := submissions.get("in_flight"); v != 1 {
		t.Errorf("got %v in flight", v)
	}
	if v := submissions.get("success"); v != 1 {
		t.Errorf("got %v successes", v)
	}
}

func TestController__missingConfig(t *testing.T) {
	cases := []cocobase.Config{
		{},
		{APIKey: "key", BaseURL: "http://cocobase.invalid"},
		{ProjectID: "project", BaseURL: "http://cocobase.invalid"},
	}
	for i := range cases {
		accounts := &mockAccounts{resp: registered("user-1")}
		docs := &mockDocuments{}
		c := setupController(accounts, docs, cases[i])

		form, err := c.Submit(context.Background(), "form", validInput)
		if err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
		if form.State.Status() != StatusFailed || form.State.Message() != ConfigErrorMessage {
			t.Errorf("#%d: got %v", i, form.State)
		}
		if n := accounts.count(); n != 0 {
			t.Errorf("#%d: got %d registrations", i, n)
		}
		if len(docs.calls) != 0 {
			t.Errorf("#%d: got %d documents", i, len(docs.calls))
		}
		if form.Input != validInput {
			t.Errorf("#%d: input was cleared", i)
		}
	}
}

func TestController__classifiedFailures(t *testing.T) {
	cases := []struct {
		err      error
		expected string
	}{
		{remoteError{detail: "duplicate key value violates unique constraint"}, AlreadyRegisteredMessage},
		{remoteError{message: "password is too short"}, PasswordMessage},
		{remoteError{message: "Invalid email address"}, InvalidEmailMessage},
		{errors.New(strings.Repeat("oops ", 30)), GenericErrorMessage},
	}
	for i := range cases {
		accounts := &mockAccounts{err: cases[i].err}
		docs := &mockDocuments{}
		c := setupController(accounts, docs, validConfig)

		form, err := c.Submit(context.Background(), "form", validInput)
		if err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
		if form.State.Status() != StatusFailed {
			t.Errorf("#%d: got %v", i, form.State)
		}
		if msg := form.State.Message(); msg != cases[i].expected {
			t.Errorf("#%d: got %q", i, msg)
		}
		if len(docs.calls) != 0 {
			t.Errorf("#%d: waitlist written after failed registration", i)
		}
	}
}

func TestController__malformedResponse(t *testing.T) {
	responses := []*cocobase.AuthResponse{
		nil,
		{AccessToken: "token"},
		{User: &cocobase.User{}},
	}
	for i := range responses {
		c := setupController(&mockAccounts{resp: responses[i]}, &mockDocuments{}, validConfig)

		form, err := c.Submit(context.Background(), "form", validInput)
		if err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
		if form.State.Status() != StatusFailed || form.State.Message() != "Failed to create account" {
			t.Errorf("#%d: got %v", i, form.State)
		}
	}
}

func TestController__waitlistFailureIsIsolated(t *testing.T) {
	failures := generic.NewCounter("waitlist_failures")
	docs := &mockDocuments{err: errors.New("collection not found")}
	c := setupController(&mockAccounts{resp: registered("user-1")}, docs, validConfig).WithMetrics(Metrics{
		WaitlistFailures: failures,
	})

	form, err := c.Submit(context.Background(), "form", validInput)
	if err != nil {
		t.Fatal(err)
	}
	if form.State.Status() != StatusSuccess {
		t.Errorf("got %v", form.State)
	}
	if len(docs.calls) != 1 {
		t.Errorf("got %d documents", len(docs.calls))
	}
	if v := failures.Value(); v != 1 {
		t.Errorf("got %v failures", v)
	}
}

func TestController__resetAndRetry(t *testing.T) {
	accounts := &mockAccounts{err: remoteError{detail: "already exists"}}
	c := setupController(accounts, &mockDocuments{}, validConfig)
	ctx := context.Background()

	form, _ := c.Submit(ctx, "form", validInput)
	if form.State.Status() != StatusFailed {
		t.Fatalf("got %v", form.State)
	}

	form, err := c.Reset(ctx, "form")
	if err != nil {
		t.Fatal(err)
	}
	if form.State.Status() != StatusIdle || form.State.Message() != "" {
		t.Errorf("got %v", form.State)
	}

	// retry succeeds independently of the earlier failure
	accounts.err = nil
	accounts.resp = registered("user-1")
	form, err = c.Submit(ctx, "form", validInput)
	if err != nil {
		t.Fatal(err)
	}
	if form.State.Status() != StatusSuccess {
		t.Errorf("got %v", form.State)
	}
}

func TestController__resubmitAfterFailure(t *testing.T) {
	accounts := &mockAccounts{err: errors.New("temporarily unavailable")}
	c := setupController(accounts, &mockDocuments{}, validConfig)
	ctx := context.Background()

	c.Submit(ctx, "form", validInput)
	accounts.err = nil
	accounts.resp = registered("user-1")

	form, err := c.Submit(ctx, "form", validInput)
	if err != nil {
		t.Fatal(err)
	}
	if form.State.Status() != StatusSuccess {
		t.Errorf("got %v", form.State)
	}
}

func TestController__resetOtherStates(t *testing.T) {
	c := setupController(&mockAccounts{resp: registered("user-1")}, &mockDocuments{}, validConfig)
	ctx := context.Background()

	form, err := c.Reset(ctx, "form")
	if err != nil || form.State.Status() != StatusIdle {
		t.Errorf("got state=%v, err=%v", form.State, err)
	}

	c.Submit(ctx, "form", validInput)
	form, err = c.Reset(ctx, "form")
	if err != nil || form.State.Status() != StatusSuccess {
		t.Errorf("got state=%v, err=%v", form.State, err)
	}
}

func TestController__completed(t *testing.T) {
	accounts := &mockAccounts{resp: registered("user-1")}
	c := setupController(accounts, &mockDocuments{}, validConfig)
	ctx := context.Background()

	c.Submit(ctx, "form", validInput)
	if _, err := c.Submit(ctx, "form", validInput); !errors.Is(err, ErrCompleted) {
		t.Errorf("got %v", err)
	}
	if n := accounts.count(); n != 1 {
		t.Errorf("got %d registrations", n)
	}

	// remounting starts over
	form, err := c.Mount(ctx, "form")
	if err != nil || form.State.Status() != StatusIdle {
		t.Errorf("got state=%v, err=%v", form.State, err)
	}
}

func TestController__mountKeepsLoading(t *testing.T) {
	c := setupController(&mockAccounts{}, &mockDocuments{}, validConfig)
	c.store.Transition(context.Background(), "form", func(State) (State, error) {
		return LoadingSince(c.now()), nil
	})

	form, err := c.Mount(context.Background(), "form")
	if err != nil || form.State.Status() != StatusLoading {
		t.Errorf("got state=%v, err=%v", form.State, err)
	}
}

func TestController__staleLoading(t *testing.T) {
	conf := validConfig
	conf.Timeout = 30 * time.Second

	accounts := &mockAccounts{resp: registered("user-1")}
	c := setupController(accounts, &mockDocuments{}, conf)
	ctx := context.Background()
	started := c.now()

	c.store.Transition(ctx, "form", func(State) (State, error) {
		return LoadingSince(started), nil
	})

	// still within the request timeout
	c.now = func() time.Time { return started.Add(conf.Timeout) }
	if _, err := c.Submit(ctx, "form", validInput); !errors.Is(err, ErrInFlight) {
		t.Errorf("got %v", err)
	}
	if form, _ := c.Mount(ctx, "form"); form.State.Status() != StatusLoading {
		t.Errorf("got %v", form.State)
	}

	// long after any submission could have finished
	c.now = func() time.Time { return started.Add(conf.Timeout + staleAfter + time.Second) }
	form, err := c.Mount(ctx, "form")
	if err != nil || form.State.Status() != StatusIdle {
		t.Errorf("got state=%v, err=%v", form.State, err)
	}

	c.store.Transition(ctx, "form", func(State) (State, error) {
		return LoadingSince(started), nil
	})
	form, err = c.Submit(ctx, "form", validInput)
	if err != nil || form.State.Status() != StatusSuccess {
		t.Errorf("got state=%v, err=%v", form.State, err)
	}
	if n := accounts.count(); n != 1 {
		t.Errorf("got %d registrations", n)
	}
}

func TestController__loadingWithoutStartIsStale(t *testing.T) {
	c := setupController(&mockAccounts{}, &mockDocuments{}, validConfig)
	c.store.Transition(context.Background(), "form", func(State) (State, error) {
		return Loading(), nil
	})

	form, err := c.Mount(context.Background(), "form")
	if err != nil || form.State.Status() != StatusIdle {
		t.Errorf("got state=%v, err=%v", form.State, err)
	}
}

func TestController__invalidInput(t *testing.T) {
	cases := []Input{
		{},
		{Email: "jane@example.com"},
		{Password: "superlongpassword"},
		{Email: "jane@example.com", Password: "short"},
	}
	for i := range cases {
		accounts := &mockAccounts{resp: registered("user-1")}
		c := setupController(accounts, &mockDocuments{}, validConfig)

		form, err := c.Submit(context.Background(), "form", cases[i])
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("#%d: got %v", i, err)
		}
		if form.State.Status() != StatusIdle {
			t.Errorf("#%d: got %v", i, form.State)
		}
		if n := accounts.count(); n != 0 {
			t.Errorf("#%d: got %d registrations", i, n)
		}
	}
}
