// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"
)

const (
	// maxReadBytes is the number of bytes to read
	// from a request body. It's intended to be used
	// with an io.LimitReader
	maxReadBytes = 1 * 1024 * 1024

	cookieName = "cocodb_waitlist"
	cookieTTL  = 24 * time.Hour
)

// read consumes an io.Reader (wrapping with io.LimitReader)
// and returns either the resulting bytes or a non-nil error.
func read(r io.Reader) ([]byte, error) {
	r = io.LimitReader(r, maxReadBytes)
	return ioutil.ReadAll(r)
}

// encodeError JSON encodes the supplied error
//
// The HTTP status of "400 Bad Request" is written to the
// response.
func encodeError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
	})
}

func internalError(w http.ResponseWriter, err error, component string) {
	internalServerErrors.Add(1)
	logger.Log(component, err)
	w.WriteHeader(http.StatusInternalServerError)
}

// extractCookie attempts to pull out our cookie from the incoming request.
// Its value identifies the signup form of this browser.
func extractCookie(r *http.Request) *http.Cookie {
	if r == nil {
		return nil
	}
	cs := r.Cookies()
	for i := range cs {
		if cs[i].Name == cookieName {
			return cs[i]
		}
	}
	return nil
}

// cookieSettings control how session cookies are published.
type cookieSettings struct {
	// domain is the domain to publish cookies under.
	// The path is always set to /.
	domain string
	secure bool
}

// createCookie generates a new session cookie.
func (s cookieSettings) createCookie() (*http.Cookie, error) {
	id := generateID()
	if id == "" {
		return nil, fmt.Errorf("unable to generate session id")
	}
	return &http.Cookie{
		Domain:   s.domain,
		Expires:  time.Now().Add(cookieTTL),
		HttpOnly: true,
		Name:     cookieName,
		Path:     "/",
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Value:    id,
	}, nil
}

// formID returns the signup form of the request's session, setting a new
// session cookie on w when the request has none.
func (s cookieSettings) formID(w http.ResponseWriter, r *http.Request) (string, error) {
	if c := extractCookie(r); c != nil && validID(c.Value) {
		return c.Value, nil
	}
	cookie, err := s.createCookie()
	if err != nil {
		return "", err
	}
	http.SetCookie(w, cookie)
	return cookie.Value, nil
}

// generateID creates a new session ID.
// Do no assume anything about these ID's other than
// they are strings. Case matters
func generateID() string {
	bs := make([]byte, 20)
	n, err := rand.Read(bs)
	if err != nil || n == 0 {
		logger.Log("generateID", fmt.Sprintf("n=%d, err=%v", n, err))
		return ""
	}
	return strings.ToLower(hex.EncodeToString(bs))
}

// validID reports if v could have come from generateID. Cookie values
// are used as storage keys so anything else is replaced.
func validID(v string) bool {
	if len(v) != 40 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil && strings.ToLower(v) == v
}
