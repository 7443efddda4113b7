// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package cocobase

import (
	"encoding/json"
)

// WaitlistCollection is where waitlist records are written.
const WaitlistCollection = "waitlist_users"

// Metadata is stored alongside a newly registered account.
type Metadata struct {
	EarlyAccess bool   `json:"early_access"`
	SignupDate  string `json:"signup_date"`
	UserStatus  string `json:"user_status"`
}

// WaitlistRecord is the document appended to WaitlistCollection after a
// successful registration.
type WaitlistRecord struct {
	Email    string `json:"email"`
	UserID   string `json:"userId"`
	Status   string `json:"status"`
	Rank     string `json:"rank"`
	JoinedAt string `json:"joinedAt"`
	Source   string `json:"source"`
}

type User struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// AuthResponse is returned from a registration. User is nil when the
// service answered without an account.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

type Document struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	CreatedAt  string          `json:"created_at,omitempty"`
}

type registerRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Data     Metadata `json:"data"`
}

type documentRequest struct {
	Data interface{} `json:"data"`
}
