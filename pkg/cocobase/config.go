// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package cocobase

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable read into Config.
const EnvPrefix = "COCOBASE_"

// Config holds the credentials and endpoint of a Cocobase project.
type Config struct {
	APIKey    string        `env:"API_KEY"`
	ProjectID string        `env:"PROJECT_ID"`
	BaseURL   string        `env:"BASE_URL"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// ConfigSource returns the Config in effect right now. It's called on
// every request so credentials can be fixed without a restart.
type ConfigSource func() Config

// Static returns a ConfigSource which always returns conf.
func Static(conf Config) ConfigSource {
	return func() Config { return conf }
}

// FromEnv reads COCOBASE_* environment variables.
func FromEnv() (Config, error) {
	return env.ParseAsWithOptions[Config](env.Options{
		Prefix: EnvPrefix,
	})
}

// EnvSource returns a ConfigSource reading the environment on each call.
// Parse errors are reported to onError and an empty Config is returned.
func EnvSource(onError func(error)) ConfigSource {
	return func() Config {
		conf, err := FromEnv()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return Config{}
		}
		return conf
	}
}

// Missing returns the names of credentials required before any request
// is attempted.
func (c Config) Missing() []string {
	var out []string
	if strings.TrimSpace(c.APIKey) == "" {
		out = append(out, EnvPrefix+"API_KEY")
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		out = append(out, EnvPrefix+"PROJECT_ID")
	}
	return out
}

// Validate checks every setting, including the base URL.
func (c Config) Validate() error {
	missing := c.Missing()
	if strings.TrimSpace(c.BaseURL) == "" {
		missing = append(missing, EnvPrefix+"BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("cocobase configuration is missing: %s", strings.Join(missing, ", "))
	}
	return nil
}
