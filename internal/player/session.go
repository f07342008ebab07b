/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_signage/internal/clock"
	"github.com/friendsincode/vidar_signage/internal/models"
	"github.com/friendsincode/vidar_signage/internal/telemetry"
)

type backendKind int

const (
	backendNone backendKind = iota
	backendMedia
	backendPage
)

// FadeConfig tunes transition behaviour.
type FadeConfig struct {
	Duration      time.Duration // one ramp direction, default 500ms
	Steps         int           // discrete level steps per ramp, default 20
	TargetLevel   int           // steady-state level, default 100
	PageLoadGrace time.Duration // readiness stand-in for the page backend
}

func (c FadeConfig) withDefaults() FadeConfig {
	if c.Duration <= 0 {
		c.Duration = 500 * time.Millisecond
	}
	if c.Steps <= 0 {
		c.Steps = 20
	}
	if c.TargetLevel <= 0 || c.TargetLevel > 100 {
		c.TargetLevel = 100
	}
	if c.PageLoadGrace <= 0 {
		c.PageLoadGrace = 1500 * time.Millisecond
	}
	return c
}

// Session is the transition state machine for one display. At most one
// transition is in flight; a switch issued while one executes supersedes it
// (the in-flight target is replaced, never queued). Exactly one Session
// exists per running instance and the playback driver owns it.
type Session struct {
	media  MediaRenderer
	page   PageRenderer
	clk    clock.Clock
	cfg    FadeConfig
	logger zerolog.Logger

	mu      sync.Mutex
	state   models.TransitionState
	current *models.Content
	since   time.Time
	backend backendKind
	level   int
	gen     uint64
	cancel  context.CancelFunc

	// transMu serializes transition execution; the superseding caller waits
	// here while the cancelled transition unwinds between fade steps.
	transMu sync.Mutex
}

// NewSession creates an idle session against the given renderer backends.
func NewSession(media MediaRenderer, page PageRenderer, clk clock.Clock, cfg FadeConfig, logger zerolog.Logger) *Session {
	return &Session{
		media:  media,
		page:   page,
		clk:    clk,
		cfg:    cfg.withDefaults(),
		state:  models.StateIdle,
		since:  clk.Now(),
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// Snapshot returns the externally visible session state.
func (s *Session) Snapshot() models.PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := models.PlayerState{State: s.state, Since: s.since}
	if s.current != nil {
		state.ContentID = s.current.ID
	}
	return state
}

// Switch transitions the session to the given content: fade out whatever is
// on screen, hand off to the capability-appropriate backend, fade back in.
// Returns ErrSuperseded if a newer switch replaced this one, or an
// ErrLoadFailure-wrapped error if the renderer declined the content (the
// session is then idle and the caller should advance).
func (s *Session) Switch(ctx context.Context, content models.Content) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.transMu.Lock()
	defer s.transMu.Unlock()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	tctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	telemetry.TransitionsTotal.WithLabelValues("started").Inc()

	if err := s.fadeOutCurrent(tctx, gen); err != nil {
		return s.classify(ctx, err)
	}
	if err := s.loadTarget(tctx, gen, content); err != nil {
		return s.classify(ctx, err)
	}
	if err := s.fadeInTarget(tctx, gen, content); err != nil {
		return s.classify(ctx, err)
	}

	now := s.clk.Now()
	s.mu.Lock()
	s.state = models.StateSteady
	s.current = &content
	s.since = now
	s.mu.Unlock()

	telemetry.TransitionsTotal.WithLabelValues("completed").Inc()
	s.logger.Debug().Str("content_id", content.ID).Str("kind", string(content.Kind)).Msg("transition complete")
	return nil
}

// Stop halts output from any state, releases the active renderer session,
// and returns the machine to idle.
func (s *Session) Stop() error {
	s.mu.Lock()
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.transMu.Lock()
	defer s.transMu.Unlock()

	err := s.teardown()
	now := s.clk.Now()
	s.mu.Lock()
	s.state = models.StateIdle
	s.current = nil
	s.since = now
	s.level = 0
	s.mu.Unlock()
	return err
}

// fadeOutCurrent ramps the active backend down to zero. With no active
// renderer session the machine skips straight to loading.
func (s *Session) fadeOutCurrent(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	backend := s.backend
	from := s.level
	s.mu.Unlock()

	if backend == backendNone {
		return nil
	}
	if backend == backendMedia && !s.media.IsActive() {
		return nil
	}

	s.setState(gen, models.StateFadingOut)
	return s.ramp(ctx, backend, from, 0)
}

// loadTarget tears down the previous backend when the content needs the
// other one, then hands the content over and awaits readiness. The two
// backends are never concurrently active.
func (s *Session) loadTarget(ctx context.Context, gen uint64, content models.Content) error {
	s.setState(gen, models.StateLoading)

	target := backendMedia
	if content.Kind.NeedsPageRenderer() {
		target = backendPage
	}

	s.mu.Lock()
	previous := s.backend
	s.mu.Unlock()
	if previous != backendNone && previous != target {
		if err := s.teardown(); err != nil {
			s.logger.Warn().Err(err).Msg("backend teardown failed")
		}
	}

	var err error
	switch target {
	case backendPage:
		err = s.page.Navigate(ctx, content.Location)
	default:
		err = s.media.Load(ctx, content.Location)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.loadFailed(content, err)
	}

	s.mu.Lock()
	s.backend = target
	s.level = 0
	s.mu.Unlock()

	// The page backend cannot report readiness; give it a fixed grace
	// period instead.
	if target == backendPage {
		if err := sleepCtx(ctx, s.cfg.PageLoadGrace); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) fadeInTarget(ctx context.Context, gen uint64, content models.Content) error {
	s.setState(gen, models.StateFadingIn)

	target := backendMedia
	if content.Kind.NeedsPageRenderer() {
		target = backendPage
	}
	return s.ramp(ctx, target, 0, s.cfg.TargetLevel)
}

// ramp drives the level between from and to in discrete steps, yielding
// between steps so the host loop stays responsive and a superseding switch
// can interrupt at any step boundary. The page backend gets the same timing
// with no real level changes.
func (s *Session) ramp(ctx context.Context, backend backendKind, from, to int) error {
	steps := s.cfg.Steps
	stepDelay := s.cfg.Duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		level := from + (to-from)*i/steps
		if backend == backendMedia {
			if err := s.media.SetLevel(level); err != nil {
				s.logger.Warn().Err(err).Int("level", level).Msg("set level failed")
			}
		}
		s.mu.Lock()
		s.level = level
		s.mu.Unlock()

		if err := sleepCtx(ctx, stepDelay); err != nil {
			return err
		}
	}
	return nil
}

// teardown releases whichever backend is active.
func (s *Session) teardown() error {
	s.mu.Lock()
	backend := s.backend
	s.backend = backendNone
	s.mu.Unlock()

	switch backend {
	case backendMedia:
		return s.media.Stop()
	case backendPage:
		return s.page.Close()
	}
	return nil
}

func (s *Session) loadFailed(content models.Content, err error) error {
	telemetry.RendererFailuresTotal.Inc()
	s.logger.Error().Err(err).
		Str("content_id", content.ID).
		Str("kind", string(content.Kind)).
		Msg("renderer load failed")

	if terr := s.teardown(); terr != nil {
		s.logger.Warn().Err(terr).Msg("teardown after load failure")
	}
	now := s.clk.Now()
	s.mu.Lock()
	s.state = models.StateIdle
	s.current = nil
	s.since = now
	s.level = 0
	s.mu.Unlock()
	return fmt.Errorf("%w: %s: %v", ErrLoadFailure, content.ID, err)
}

// classify distinguishes a superseding switch or stop (the transition
// context was cancelled while the host context is still live) from host
// cancellation, and passes every other error through.
func (s *Session) classify(host context.Context, err error) error {
	if errors.Is(err, context.Canceled) && host.Err() == nil {
		telemetry.TransitionsTotal.WithLabelValues("superseded").Inc()
		return ErrSuperseded
	}
	return err
}

// setState records the transition state unless a newer switch owns the
// machine by now.
func (s *Session) setState(gen uint64, state models.TransitionState) {
	now := s.clk.Now()
	s.mu.Lock()
	if gen == s.gen {
		s.state = state
		s.since = now
	}
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
