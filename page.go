// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/cocodb/waitlist/pkg/signup"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type pageData struct {
	Status  string
	Email   string
	Message string

	Loading, Success, Failed bool

	MinPasswordLength int
	Year              int
}

// newPageData renders form. The password is never written back.
func newPageData(form signup.Form) pageData {
	status := form.State.Status()
	return pageData{
		Status:            status.String(),
		Email:             form.Input.Email,
		Message:           form.State.Message(),
		Loading:           status == signup.StatusLoading,
		Success:           status == signup.StatusSuccess,
		Failed:            status == signup.StatusFailed,
		MinPasswordLength: signup.MinPasswordLength,
		Year:              time.Now().Year(),
	}
}

type pages struct {
	tmpl *template.Template
}

func parsePages() (*pages, error) {
	tmpl, err := template.New("landing").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse page templates: %w", err)
	}
	return &pages{tmpl: tmpl}, nil
}

// render writes the landing page for form with the given HTTP status.
func (p *pages) render(w http.ResponseWriter, status int, form signup.Form) {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, "page", newPageData(form)); err != nil {
		internalError(w, err, "render")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
