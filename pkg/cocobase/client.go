// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package cocobase is a minimal client for the Cocobase hosted auth and
// document API. Only account registration and document creation are
// implemented.
package cocobase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// maxReadBytes caps how much of a response body is read.
	maxReadBytes = 1 * 1024 * 1024

	apiKeyHeader    = "x-api-key"
	projectIDHeader = "x-project-id"
	requestIDHeader = "X-Request-ID"
)

// Client talks to Cocobase over HTTP.
type Client struct {
	config ConfigSource
	http   *http.Client

	// RequestDuration, when set, observes the seconds spent on each
	// request labeled by "operation".
	RequestDuration metrics.Histogram
}

// NewClient returns a Client reading its settings from config on every
// request. A nil httpClient uses a fresh http.Client.
func NewClient(httpClient *http.Client, config ConfigSource) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		config: config,
		http:   httpClient,
	}
}

// Register creates an account for email and password with meta attached.
func (c *Client) Register(ctx context.Context, email, password string, meta Metadata) (*AuthResponse, error) {
	body := registerRequest{
		Email:    email,
		Password: password,
		Data:     meta,
	}
	var resp AuthResponse
	if err := c.do(ctx, "register", c.http, "/auth-collections/signup", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateDocument stores data in collection. When token is non-nil the
// request is made on behalf of that user.
func (c *Client) CreateDocument(ctx context.Context, token *oauth2.Token, collection string, data interface{}) (*Document, error) {
	httpClient := c.http
	if token != nil && token.AccessToken != "" {
		httpClient = &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(token),
				Base:   c.http.Transport,
			},
			CheckRedirect: c.http.CheckRedirect,
			Jar:           c.http.Jar,
			Timeout:       c.http.Timeout,
		}
	}
	path := fmt.Sprintf("/collections/%s/documents", url.PathEscape(collection))

	var doc Document
	if err := c.do(ctx, "create_document", httpClient, path, documentRequest{Data: data}, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Token returns the session token of a registration, or nil.
func (r *AuthResponse) Token() *oauth2.Token {
	if r == nil || r.AccessToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken: r.AccessToken,
		TokenType:   "Bearer",
	}
}

func (c *Client) do(ctx context.Context, operation string, httpClient *http.Client, path string, in, out interface{}) error {
	if c.RequestDuration != nil {
		defer func(start time.Time) {
			c.RequestDuration.With("operation", operation).Observe(time.Since(start).Seconds())
		}(time.Now())
	}

	conf := c.config()
	if conf.BaseURL == "" {
		return ErrNoBaseURL
	}
	if conf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, conf.Timeout)
		defer cancel()
	}

	bs, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("cocobase: encoding %s request: %v", operation, err)
	}
	u := strings.TrimSuffix(conf.BaseURL, "/") + path
	req, err := http.NewRequest("POST", u, bytes.NewReader(bs))
	if err != nil {
		return fmt.Errorf("cocobase: building %s request: %v", operation, err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, conf.APIKey)
	req.Header.Set(projectIDHeader, conf.ProjectID)
	req.Header.Set(requestIDHeader, uuid.New().String())

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		return fmt.Errorf("cocobase: reading %s response: %v", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newError(resp.StatusCode, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("cocobase: decoding %s response: %v", operation, err)
	}
	return nil
}
