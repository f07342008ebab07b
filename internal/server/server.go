/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the catalog, playback driver and HTTP surface
// together and owns their lifecycles.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_signage/internal/api"
	"github.com/friendsincode/vidar_signage/internal/catalog"
	"github.com/friendsincode/vidar_signage/internal/clock"
	"github.com/friendsincode/vidar_signage/internal/config"
	"github.com/friendsincode/vidar_signage/internal/eventbus"
	"github.com/friendsincode/vidar_signage/internal/events"
	"github.com/friendsincode/vidar_signage/internal/logbuffer"
	"github.com/friendsincode/vidar_signage/internal/player"
	"github.com/friendsincode/vidar_signage/internal/playout"
	"github.com/friendsincode/vidar_signage/internal/telemetry"
	"github.com/friendsincode/vidar_signage/internal/version"
)

// Server bundles the HTTP surface and the playback services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	metricsSrv *http.Server
	closers    []func() error

	bus       eventbus.Bus
	catalog   *catalog.Catalog
	session   *player.Session
	driver    *playout.Driver
	api       *api.API
	logBuffer *logbuffer.Buffer
	checker   *version.Checker

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. The renderers are
// injected by the caller so the engine stays decoupled from any concrete
// playback backend.
func New(cfg *config.Config, media player.MediaRenderer, page player.PageRenderer, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("vidar-signage-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip timeout for the websocket event stream.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(media, page); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout 0 for the websocket stream; middleware timeout
		// covers the rest.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies(media player.MediaRenderer, page player.PageRenderer) error {
	bus, err := s.initEventBus()
	if err != nil {
		return err
	}
	s.bus = bus

	clk := clock.System{}
	s.catalog = catalog.New(s.bus, clk, s.logger)

	s.session = player.NewSession(media, page, clk, player.FadeConfig{
		Duration:      s.cfg.FadeDuration,
		Steps:         s.cfg.FadeSteps,
		TargetLevel:   s.cfg.FadeTargetLevel,
		PageLoadGrace: s.cfg.PageLoadGrace,
	}, s.logger)

	s.driver = playout.New(s.catalog, s.session, s.bus, clk, playout.Config{
		DefaultDuration: s.cfg.DefaultDuration,
		EmptyBackoff:    s.cfg.EmptyCatalogBackoff,
	}, s.logger)

	s.api = api.New(s.catalog, s.session, s.bus, s.logBuffer, s.logger)
	s.checker = version.NewChecker(s.logger)

	return nil
}

func (s *Server) initEventBus() (eventbus.Bus, error) {
	switch s.cfg.EventBus {
	case config.EventBusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		bus, err := eventbus.NewRedisBus(redisCfg, s.cfg.InstanceID, s.logger)
		if err != nil {
			return nil, fmt.Errorf("init redis event bus: %w", err)
		}
		s.DeferClose(bus.Close)
		return bus, nil

	case config.EventBusNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		if s.cfg.NATSURL != "" {
			natsCfg.URL = s.cfg.NATSURL
		}
		bus, err := eventbus.NewNATSBus(natsCfg, s.cfg.InstanceID, s.logger)
		if err != nil {
			return nil, fmt.Errorf("init nats event bus: %w", err)
		}
		s.DeferClose(bus.Close)
		return bus, nil

	default:
		return events.NewBus(), nil
	}
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Catalog exposes the content/schedule store.
func (s *Server) Catalog() *catalog.Catalog {
	return s.catalog
}

// Session exposes the transition engine, mainly for shutdown sequencing.
func (s *Server) Session() *player.Session {
	return s.session
}

// Close stops background workers and releases owned resources in reverse
// order. The playback session is stopped first so renderers are torn down
// while their processes are still reachable; a renderer that hangs in Stop
// must not block process exit, so the wait is bounded.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()

	if s.session != nil {
		done := make(chan error, 1)
		go func() { done <- s.session.Stop() }()
		select {
		case err := <-done:
			if err != nil {
				s.logger.Error().Err(err).Msg("session stop error")
			}
		case <-time.After(s.cfg.ShutdownTimeout):
			s.logger.Error().Msg("session stop timed out, releasing resources anyway")
		}
	}

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("playback driver exited")
		}
	}()

	s.checker.Start(ctx)

	if s.cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		s.metricsSrv = &http.Server{
			Addr:              s.cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
		}
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.logger.Info().Str("addr", s.cfg.MetricsBind).Msg("metrics listener started")
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("metrics listener exited")
			}
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.metricsSrv.Shutdown(ctx)
		cancel()
	}
	s.checker.Stop()
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
