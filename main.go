// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/gorilla/mux"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/cocodb/waitlist/admin"
	"github.com/cocodb/waitlist/pkg/buntdbstate"
	"github.com/cocodb/waitlist/pkg/cocobase"
	"github.com/cocodb/waitlist/pkg/signup"
)

var (
	httpAddr  = flag.String("http.addr", ":8080", "HTTP listen address")
	adminAddr = flag.String("admin.addr", ":9090", "Admin HTTP listen address")

	logger log.Logger = log.NewNopLogger()

	// Metrics
	signupSubmissions = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "signup_submissions",
		Help: "Count of signup submissions by outcome",
	}, []string{"outcome"})
	waitlistWriteFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "waitlist_write_failures",
		Help: "Count of waitlist documents which couldn't be written after a registration",
	}, nil)
	internalServerErrors = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "http_internal_server_errors",
		Help: "Count of how many 500 errors we return",
	}, nil)

	cocobaseRequestDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
		Name:    "cocobase_request_duration_seconds",
		Help:    "Seconds spent on Cocobase requests",
		Buckets: stdprometheus.DefBuckets,
	}, []string{"operation"})
)

const Version = "0.1.0-dev"

func main() {
	flag.Parse()

	// Setup logging, default to stderr
	logger = log.NewLogfmtLogger(os.Stderr)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	logger.Log("startup", fmt.Sprintf("Starting waitlist server version %s", Version))

	cfg, err := loadConfig()
	if err != nil {
		logger.Log("config", err)
		os.Exit(1)
	}
	// Submissions fail fast with a configuration error, keep serving the page.
	if err := cfg.Cocobase.Validate(); err != nil {
		logger.Log("config", err)
	}

	// Listen for application termination.
	errs := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errs <- fmt.Errorf("%s", <-c)
	}()

	store, err := buntdbstate.New(cfg.SessionDBPath)
	if err != nil {
		logger.Log("sessions", fmt.Sprintf("problem opening %s: %v", cfg.SessionDBPath, err))
		os.Exit(1)
	}
	defer store.Close()
	logger.Log("sessions", fmt.Sprintf("using %s", cfg.SessionDBPath))

	cocobaseConfig := cocobase.EnvSource(func(err error) {
		logger.Log("config", err)
	})
	client := cocobase.NewClient(&http.Client{}, cocobaseConfig)
	client.RequestDuration = cocobaseRequestDuration

	controller := signup.NewController(store, client, client, cocobaseConfig, log.With(logger, "component", "signup"))
	controller.WithMetrics(signup.Metrics{
		Submissions:      signupSubmissions,
		WaitlistFailures: waitlistWriteFailures,
	})

	pages, err := parsePages()
	if err != nil {
		logger.Log("templates", err)
		os.Exit(1)
	}

	router := mux.NewRouter()
	addSignupRoutes(router, logger, cfg.cookies(), pages, controller)

	readTimeout, _ := time.ParseDuration("30s")
	writTimeout, _ := time.ParseDuration("60s")
	idleTimeout, _ := time.ParseDuration("60s")

	serve := &http.Server{
		Addr:    *httpAddr,
		Handler: router,
		TLSConfig: &tls.Config{
			InsecureSkipVerify: false,
			MinVersion:         tls.VersionTLS12,
		},
		ReadTimeout:  readTimeout,
		WriteTimeout: writTimeout,
		IdleTimeout:  idleTimeout,
	}
	shutdownServer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := serve.Shutdown(ctx); err != nil {
			logger.Log("shutdown", err)
		}
	}

	admin.Init()
	adminService := admin.SetupServer(*adminAddr)
	adminService.AddLivenessCheck("sessions", store.Ping)
	adminService.AddLivenessCheck("cocobase", func() error {
		return cocobaseConfig().Validate()
	})
	go func() {
		logger.Log("admin", fmt.Sprintf("Starting admin service on %s", adminService.BindAddress()))
		if err := adminService.Listen(); err != nil {
			logger.Log("admin", "shutting down", "error", err)
		}
	}()

	go func() {
		logger.Log("transport", "HTTP", "addr", *httpAddr)
		errs <- serve.ListenAndServe()
	}()

	if err := <-errs; err != nil {
		adminService.Shutdown()
		shutdownServer()
		logger.Log("exit", err)
	}
}
