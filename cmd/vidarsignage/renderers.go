/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// logMediaRenderer is the headless stand-in media backend. It tracks the
// active flag so transitions behave exactly as with a real player, and
// logs every command an mpv or gstreamer wrapper would receive.
type logMediaRenderer struct {
	logger zerolog.Logger

	mu     sync.Mutex
	active bool
	level  int
}

func newLogMediaRenderer(logger zerolog.Logger) *logMediaRenderer {
	return &logMediaRenderer{
		logger: logger.With().Str("component", "media-renderer").Logger(),
	}
}

func (r *logMediaRenderer) Load(ctx context.Context, location string) error {
	r.mu.Lock()
	r.active = true
	r.mu.Unlock()
	r.logger.Info().Str("location", location).Msg("load")
	return nil
}

func (r *logMediaRenderer) SetLevel(level int) error {
	r.mu.Lock()
	r.level = level
	r.mu.Unlock()
	r.logger.Debug().Int("level", level).Msg("set level")
	return nil
}

func (r *logMediaRenderer) Stop() error {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
	r.logger.Info().Msg("stop")
	return nil
}

func (r *logMediaRenderer) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// logPageRenderer is the headless stand-in for a browser backend.
type logPageRenderer struct {
	logger zerolog.Logger
}

func newLogPageRenderer(logger zerolog.Logger) *logPageRenderer {
	return &logPageRenderer{
		logger: logger.With().Str("component", "page-renderer").Logger(),
	}
}

func (r *logPageRenderer) Navigate(ctx context.Context, url string) error {
	r.logger.Info().Str("url", url).Msg("navigate")
	return nil
}

func (r *logPageRenderer) Close() error {
	r.logger.Info().Msg("close")
	return nil
}
