// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/cocodb/waitlist/pkg/cocobase"
)

const defaultSessionDBPath = ":memory:"

// Config is read from environment variables at startup. The Cocobase
// settings are read again on every submission, see cocobase.EnvSource.
type Config struct {
	// Domain is the domain to publish cookies under.
	Domain       string `env:"DOMAIN" envDefault:"localhost"`
	CookieSecure bool   `env:"COOKIE_SECURE"`

	// SessionDBPath is where signup form state is kept.
	SessionDBPath string `env:"SESSION_DB_PATH" envDefault:":memory:"`

	Cocobase cocobase.Config `envPrefix:"COCOBASE_"`
}

func loadConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}
	cfg.SessionDBPath = cleanSessionDBPath(cfg.SessionDBPath)
	return &cfg, nil
}

// cleanSessionDBPath falls back to an in-memory database when path is
// empty or trying to escape the working directory.
func cleanSessionDBPath(path string) string {
	if path == "" || strings.Contains(path, "..") {
		// don't filepath.Abs to avoid full-fs reads
		return defaultSessionDBPath
	}
	return path
}

func (c *Config) cookies() cookieSettings {
	return cookieSettings{
		domain: c.Domain,
		secure: c.CookieSecure,
	}
}
