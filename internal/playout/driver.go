/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playout runs the playback loop: select, transition, hold, repeat.
package playout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_signage/internal/catalog"
	"github.com/friendsincode/vidar_signage/internal/clock"
	"github.com/friendsincode/vidar_signage/internal/events"
	"github.com/friendsincode/vidar_signage/internal/player"
	"github.com/friendsincode/vidar_signage/internal/schedule"
	"github.com/friendsincode/vidar_signage/internal/telemetry"
)

// Config tunes the driver loop.
type Config struct {
	// DefaultDuration is the hold time for content without an explicit
	// duration.
	DefaultDuration time.Duration
	// EmptyBackoff is how long to sleep when nothing is playable.
	EmptyBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = 10 * time.Second
	}
	if c.EmptyBackoff <= 0 {
		c.EmptyBackoff = 5 * time.Second
	}
	return c
}

// Driver owns the single playback loop. It is the only caller of
// Session.Switch, so playback decisions are serialized by construction.
type Driver struct {
	catalog *catalog.Catalog
	session *player.Session
	bus     catalog.Bus
	clk     clock.Clock
	cfg     Config
	logger  zerolog.Logger

	cursor     schedule.Cursor
	failStreak int
}

// New creates a playback driver.
func New(cat *catalog.Catalog, session *player.Session, bus catalog.Bus, clk clock.Clock, cfg Config, logger zerolog.Logger) *Driver {
	return &Driver{
		catalog: cat,
		session: session,
		bus:     bus,
		clk:     clk,
		cfg:     cfg.withDefaults(),
		logger:  logger.With().Str("component", "playout").Logger(),
	}
}

// Run executes the playback loop until ctx is canceled. The loop never
// exits on playback errors; failed items are skipped and announced.
func (d *Driver) Run(ctx context.Context) error {
	d.logger.Info().
		Dur("default_duration", d.cfg.DefaultDuration).
		Dur("empty_backoff", d.cfg.EmptyBackoff).
		Msg("playback driver started")

	for {
		if err := ctx.Err(); err != nil {
			d.logger.Info().Msg("playback driver stopping")
			return err
		}
		d.tick(ctx)
	}
}

// tick performs one select-transition-hold cycle.
func (d *Driver) tick(ctx context.Context) {
	telemetry.DriverTicksTotal.Inc()
	ctx, span := telemetry.StartSpan(ctx, "vidar-signage-playout", "driver.tick")
	defer span.End()

	snap := d.catalog.Snapshot()
	now := d.clk.Now()

	sel := schedule.Select(snap, now, d.cursor, d.logger)
	telemetry.SelectorResultsTotal.WithLabelValues(sequenceLabel(sel)).Inc()

	if sel.Empty {
		d.logger.Debug().Dur("backoff", d.cfg.EmptyBackoff).Msg("nothing playable, backing off")
		d.wait(ctx, d.cfg.EmptyBackoff)
		return
	}

	d.cursor = sel.Cursor

	previous := d.session.Snapshot().ContentID
	switch d.transition(ctx, sel) {
	case transitionAborted:
		return
	case transitionSkipped:
		// Advance straight to the next item, but once a full lap of the
		// sequence has failed, back off instead of spinning through it.
		d.failStreak++
		if sel.SequenceLength > 0 && d.failStreak >= sel.SequenceLength {
			d.failStreak = 0
			d.logger.Warn().
				Str("sequence", sel.SequenceID).
				Dur("backoff", d.cfg.EmptyBackoff).
				Msg("no playable content in sequence, backing off")
			d.wait(ctx, d.cfg.EmptyBackoff)
		}
		return
	}
	d.failStreak = 0

	if sel.Content.ID != previous {
		d.bus.Publish(events.EventNowPlayingChanged, events.Payload{
			"content_id": sel.Content.ID,
			"name":       sel.Content.Name,
			"kind":       string(sel.Content.Kind),
			"sequence":   sel.SequenceID,
		})
	}

	// Hold for the content duration, but never past the next schedule
	// boundary, and resolve early on any catalog change.
	hold := sel.Content.DisplayDuration(d.cfg.DefaultDuration)
	if boundary := schedule.NextBoundary(snap, now); !boundary.IsZero() {
		if until := boundary.Sub(now); until < hold {
			hold = until
			telemetry.PreemptionsTotal.WithLabelValues("schedule_boundary").Inc()
		}
	}
	d.wait(ctx, hold)
}

type transitionOutcome int

const (
	transitionPlayed transitionOutcome = iota
	transitionSkipped
	transitionAborted
)

// transition drives one Switch call and maps its outcome. A load failure
// publishes a skip event so the loop advances without a hold; supersede and
// shutdown abort the tick outright.
func (d *Driver) transition(ctx context.Context, sel schedule.Selection) transitionOutcome {
	err := d.session.Switch(ctx, sel.Content)
	switch {
	case err == nil:
		return transitionPlayed
	case errors.Is(err, player.ErrSuperseded):
		d.logger.Debug().Str("content_id", sel.Content.ID).Msg("transition superseded")
		return transitionAborted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return transitionAborted
	default:
		d.logger.Warn().Err(err).Str("content_id", sel.Content.ID).Msg("skipping unplayable content")
		d.bus.Publish(events.EventPlaybackSkipped, events.Payload{
			"content_id": sel.Content.ID,
			"name":       sel.Content.Name,
			"reason":     err.Error(),
		})
		return transitionSkipped
	}
}

// wait sleeps for d or until a catalog change or shutdown, whichever is
// first. Draining the preemption channel here keeps stale tokens from a
// previous hold from firing immediately.
func (d *Driver) wait(ctx context.Context, dur time.Duration) {
	if dur <= 0 {
		return
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-d.catalog.Preempt():
		telemetry.PreemptionsTotal.WithLabelValues("catalog_update").Inc()
		d.logger.Debug().Msg("hold preempted by catalog update")
	}
}

func sequenceLabel(sel schedule.Selection) string {
	switch {
	case sel.Empty:
		return "empty"
	case strings.HasPrefix(sel.SequenceID, "schedule:"):
		return "schedule"
	default:
		return sel.SequenceID
	}
}
