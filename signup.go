// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"

	"github.com/cocodb/waitlist/pkg/signup"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func addSignupRoutes(router *mux.Router, logger log.Logger, cookies cookieSettings, pages *pages, controller *signup.Controller) {
	router.Methods("GET").Path("/").HandlerFunc(homeRoute(cookies, pages, controller))

	router.Methods("POST").Path("/signup").HandlerFunc(signupFormRoute(logger, cookies, pages, controller))
	router.Methods("POST").Path("/signup/reset").HandlerFunc(resetFormRoute(cookies, controller))

	router.Methods("POST").Path("/api/signup").HandlerFunc(signupRoute(logger, cookies, controller))
	router.Methods("POST").Path("/api/signup/reset").HandlerFunc(resetRoute(cookies, controller))
}

// homeRoute renders the landing page. Loading the page starts the form
// over unless a submission is still running.
func homeRoute(cookies cookieSettings, pages *pages, controller *signup.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := cookies.formID(w, r)
		if err != nil {
			internalError(w, err, "home")
			return
		}
		form, err := controller.Mount(r.Context(), id)
		if err != nil {
			internalError(w, err, "home")
			return
		}
		pages.render(w, http.StatusOK, form)
	}
}

// submit runs a submission to completion even when the client goes away
// so the form doesn't stay loading.
func submit(r *http.Request, controller *signup.Controller, id string, in signup.Input) (signup.Form, error) {
	return controller.Submit(context.WithoutCancel(r.Context()), id, in)
}

// submitStatus is the HTTP status for the result of a submission. Zero
// means err is unexpected.
func submitStatus(form signup.Form, err error) int {
	switch {
	case errors.Is(err, signup.ErrInFlight), errors.Is(err, signup.ErrCompleted):
		return http.StatusConflict
	case errors.Is(err, signup.ErrInvalidInput):
		return http.StatusBadRequest
	case err != nil:
		return 0
	}
	if form.State.Status() == signup.StatusFailed {
		return http.StatusBadRequest
	}
	return http.StatusOK
}

func signupFormRoute(logger log.Logger, cookies cookieSettings, pages *pages, controller *signup.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxReadBytes)
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id, err := cookies.formID(w, r)
		if err != nil {
			internalError(w, err, "signup")
			return
		}

		form, err := submit(r, controller, id, signup.Input{
			Email:    r.PostForm.Get("email"),
			Password: r.PostForm.Get("password"),
		})
		status := submitStatus(form, err)
		if status == 0 {
			internalError(w, err, "signup")
			return
		}
		if err != nil {
			logger.Log("signup", err, "form", id)
		}
		pages.render(w, status, form)
	}
}

func resetFormRoute(cookies cookieSettings, controller *signup.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := cookies.formID(w, r)
		if err != nil {
			internalError(w, err, "reset")
			return
		}
		if _, err := controller.Reset(r.Context(), id); err != nil {
			internalError(w, err, "reset")
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func signupRoute(logger log.Logger, cookies cookieSettings, controller *signup.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		bs, err := read(r.Body)
		if err != nil {
			internalError(w, err, "signup")
			return
		}

		// read request body
		var req signupRequest
		if err := json.Unmarshal(bs, &req); err != nil {
			encodeError(w, err)
			return
		}

		id, err := cookies.formID(w, r)
		if err != nil {
			internalError(w, err, "signup")
			return
		}
		form, err := submit(r, controller, id, signup.Input{
			Email:    req.Email,
			Password: req.Password,
		})
		if errors.Is(err, signup.ErrInvalidInput) {
			encodeError(w, err)
			return
		}
		status := submitStatus(form, err)
		if status == 0 {
			internalError(w, err, "signup")
			return
		}
		if err != nil {
			logger.Log("signup", err, "form", id)
		}
		encodeState(w, status, form.State)
	}
}

func resetRoute(cookies cookieSettings, controller *signup.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := cookies.formID(w, r)
		if err != nil {
			internalError(w, err, "reset")
			return
		}
		form, err := controller.Reset(r.Context(), id)
		if err != nil {
			internalError(w, err, "reset")
			return
		}
		encodeState(w, http.StatusOK, form.State)
	}
}

func encodeState(w http.ResponseWriter, status int, state signup.State) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(state); err != nil {
		logger.Log("signup", err)
	}
}
