/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog owns the in-memory content and schedule store. API handlers
// mutate it, the playback driver reads snapshots of it; every mutation is
// announced on the event bus and raises the driver preemption signal.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_signage/internal/clock"
	"github.com/friendsincode/vidar_signage/internal/events"
	"github.com/friendsincode/vidar_signage/internal/models"
	"github.com/friendsincode/vidar_signage/internal/schedule"
)

// ErrNotFound reports an operation referencing an unknown id. Recovered
// locally by callers, never fatal.
var ErrNotFound = errors.New("not found")

// Bus is the slice of the event bus the catalog needs. Satisfied by the
// in-memory bus and the distributed backends alike.
type Bus interface {
	Publish(eventType events.EventType, payload events.Payload)
}

type scheduleEntry struct {
	schedule models.Schedule
	window   *schedule.Window
}

// Catalog is the synchronized content/schedule store. Critical sections are
// map and slice edits only; snapshots are taken for anything slower so the
// driver's per-tick selector call is never blocked behind a mutation.
type Catalog struct {
	bus    Bus
	clk    clock.Clock
	logger zerolog.Logger

	mu        sync.RWMutex
	contents  map[string]models.Content
	schedules map[string]scheduleEntry
	rotation  []string

	preempt chan struct{}
}

// New creates an empty catalog.
func New(bus Bus, clk clock.Clock, logger zerolog.Logger) *Catalog {
	return &Catalog{
		bus:       bus,
		clk:       clk,
		logger:    logger.With().Str("component", "catalog").Logger(),
		contents:  make(map[string]models.Content),
		schedules: make(map[string]scheduleEntry),
		preempt:   make(chan struct{}, 1),
	}
}

// Preempt exposes the driver preemption signal. The channel carries a token
// whenever catalog state changed in a way that can affect selection; the
// driver's duration wait resolves early on it.
func (c *Catalog) Preempt() <-chan struct{} {
	return c.preempt
}

func (c *Catalog) signalPreempt() {
	select {
	case c.preempt <- struct{}{}:
	default:
	}
}

// AddContent stores a new content item, assigning an id when none is given.
func (c *Catalog) AddContent(content models.Content) (models.Content, error) {
	if !content.Kind.Valid() {
		return models.Content{}, fmt.Errorf("unknown content kind %q", content.Kind)
	}
	if content.Location == "" {
		return models.Content{}, fmt.Errorf("content location required")
	}
	if content.ID == "" {
		content.ID = uuid.NewString()
	}
	if content.CreatedAt.IsZero() {
		content.CreatedAt = c.clk.Now()
	}

	c.mu.Lock()
	c.contents[content.ID] = content
	c.mu.Unlock()

	c.logger.Info().Str("content_id", content.ID).Str("kind", string(content.Kind)).Msg("content added")
	c.bus.Publish(events.EventContentAdded, events.Payload{
		"content_id": content.ID,
		"name":       content.Name,
		"kind":       string(content.Kind),
	})
	c.signalPreempt()
	return content, nil
}

// RemoveContent deletes a content item. Schedules and the rotation keep their
// references; the selector skips ids that no longer resolve.
func (c *Catalog) RemoveContent(id string) error {
	c.mu.Lock()
	_, ok := c.contents[id]
	if ok {
		delete(c.contents, id)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("content %s: %w", id, ErrNotFound)
	}

	c.logger.Info().Str("content_id", id).Msg("content removed")
	c.bus.Publish(events.EventContentRemoved, events.Payload{"content_id": id})
	c.signalPreempt()
	return nil
}

// Content returns a content item by id.
func (c *Catalog) Content(id string) (models.Content, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	content, ok := c.contents[id]
	return content, ok
}

// SetContentDuration updates the only mutable content field.
func (c *Catalog) SetContentDuration(id string, seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("duration must be >= 0, got %d", seconds)
	}
	c.mu.Lock()
	content, ok := c.contents[id]
	if ok {
		content.Duration = seconds
		c.contents[id] = content
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	c.signalPreempt()
	return nil
}

// ListContent returns all content ordered by creation time.
func (c *Catalog) ListContent() []models.Content {
	c.mu.RLock()
	items := make([]models.Content, 0, len(c.contents))
	for _, content := range c.contents {
		items = append(items, content)
	}
	c.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// SetDefaultRotation replaces the default rotation order.
func (c *Catalog) SetDefaultRotation(ids []string) {
	c.mu.Lock()
	c.rotation = append([]string(nil), ids...)
	c.mu.Unlock()

	c.logger.Info().Int("items", len(ids)).Msg("default rotation updated")
	c.bus.Publish(events.EventPlaylistUpdated, events.Payload{"content_ids": ids})
	c.signalPreempt()
}

// DefaultRotation returns a copy of the rotation order.
func (c *Catalog) DefaultRotation() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.rotation...)
}

// UpsertSchedule validates and stores a schedule, assigning an id when none
// is given. Malformed recurrence rules are rejected here so they can never
// reach the selector.
func (c *Catalog) UpsertSchedule(s models.Schedule) (models.Schedule, error) {
	window, err := schedule.CompileWindow(s.StartRule, s.EndRule)
	if err != nil {
		return models.Schedule{}, err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.ContentIDs = append([]string(nil), s.ContentIDs...)

	c.mu.Lock()
	if existing, ok := c.schedules[s.ID]; ok && !existing.schedule.CreatedAt.IsZero() {
		s.CreatedAt = existing.schedule.CreatedAt
	} else if s.CreatedAt.IsZero() {
		s.CreatedAt = c.clk.Now()
	}
	c.schedules[s.ID] = scheduleEntry{schedule: s, window: window}
	c.mu.Unlock()

	c.logger.Info().
		Str("schedule_id", s.ID).
		Int("priority", s.Priority).
		Bool("enabled", s.Enabled).
		Msg("schedule upserted")
	c.bus.Publish(events.EventScheduleUpdated, events.Payload{
		"schedule_id": s.ID,
		"name":        s.Name,
		"enabled":     s.Enabled,
		"priority":    s.Priority,
	})
	c.signalPreempt()
	return s, nil
}

// RemoveSchedule deletes a schedule.
func (c *Catalog) RemoveSchedule(id string) error {
	c.mu.Lock()
	_, ok := c.schedules[id]
	if ok {
		delete(c.schedules, id)
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("schedule %s: %w", id, ErrNotFound)
	}

	c.logger.Info().Str("schedule_id", id).Msg("schedule removed")
	c.bus.Publish(events.EventScheduleUpdated, events.Payload{
		"schedule_id": id,
		"removed":     true,
	})
	c.signalPreempt()
	return nil
}

// ListSchedules returns all schedules ordered by creation time.
func (c *Catalog) ListSchedules() []models.Schedule {
	c.mu.RLock()
	items := make([]models.Schedule, 0, len(c.schedules))
	for _, entry := range c.schedules {
		items = append(items, entry.schedule)
	}
	c.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// Snapshot captures the catalog for one selector call.
func (c *Catalog) Snapshot() schedule.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	contents := make(map[string]models.Content, len(c.contents))
	for id, content := range c.contents {
		contents[id] = content
	}
	entries := make([]schedule.Entry, 0, len(c.schedules))
	for _, entry := range c.schedules {
		entries = append(entries, schedule.Entry{Schedule: entry.schedule, Window: entry.window})
	}
	return schedule.Snapshot{
		Contents:  contents,
		Schedules: entries,
		Rotation:  append([]string(nil), c.rotation...),
	}
}
