// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package admin serves the operator endpoints of the waitlist service:
// Prometheus metrics, liveness checks and pprof profiles.
package admin

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// pprofHandlers lists the profiles served under /debug/pprof/ and
// whether each is on by default. Override with PPROF_$NAME=yes|no.
//
// Profiles only live on the admin servlet since heap dumps can contain
// submitted emails and passwords.
var pprofHandlers = map[string]bool{
	"allocs":       true,
	"block":        true,
	"cmdline":      true,
	"goroutine":    true,
	"heap":         true,
	"mutex":        true,
	"profile":      true,
	"threadcreate": false,
	"trace":        false,
}

// Init configures runtime profiling for the enabled profiles. Call it
// once before SetupServer.
func Init() {
	if pprofProfileEnabled("block", pprofHandlers["block"]) {
		runtime.SetBlockProfileRate(1)
	}
	if pprofProfileEnabled("mutex", pprofHandlers["mutex"]) {
		runtime.SetMutexProfileFraction(1)
	}
}

// pprofProfileEnabled reads PPROF_$NAME. "yes" and "no" (any case)
// override zero.
func pprofProfileEnabled(name string, zero bool) bool {
	v := os.Getenv(fmt.Sprintf("PPROF_%s", strings.ToUpper(name)))
	switch strings.ToLower(v) {
	case "yes":
		return true
	case "no":
		return false
	}
	return zero
}
