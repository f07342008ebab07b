/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// ContentKind enumerates displayable content variants.
type ContentKind string

const (
	KindImage ContentKind = "image"
	KindVideo ContentKind = "video"
	KindPage  ContentKind = "page"
)

// Valid reports whether the kind is one of the known variants.
func (k ContentKind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindPage:
		return true
	}
	return false
}

// NeedsPageRenderer reports whether the kind is displayed by the page backend
// rather than the media backend.
func (k ContentKind) NeedsPageRenderer() bool {
	return k == KindPage
}

// Content is a single displayable unit. Immutable after creation except
// Duration; identity is ID.
type Content struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Kind      ContentKind `json:"kind"`
	Location  string      `json:"location"`
	Duration  int         `json:"duration_seconds"`
	Hash      string      `json:"hash,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// DisplayDuration returns the on-screen duration, substituting def when the
// content carries none. Video duration is backend-reported or looped, so the
// configured value still bounds the playback slot.
func (c Content) DisplayDuration(def time.Duration) time.Duration {
	if c.Duration <= 0 {
		return def
	}
	return time.Duration(c.Duration) * time.Second
}

// Schedule is a time-windowed, prioritized override of which content list is
// authoritative. StartRule and EndRule are iCalendar RRULE strings; a schedule
// with neither rule is always active while enabled. Higher priority wins,
// ties resolve to the most recently created schedule.
type Schedule struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ContentIDs []string  `json:"content_ids"`
	StartRule  string    `json:"start_rule,omitempty"`
	EndRule    string    `json:"end_rule,omitempty"`
	Enabled    bool      `json:"enabled"`
	Priority   int       `json:"priority"`
	CreatedAt  time.Time `json:"created_at"`
}

// TransitionState enumerates playback session states.
type TransitionState string

const (
	StateIdle      TransitionState = "idle"
	StateFadingOut TransitionState = "fading_out"
	StateLoading   TransitionState = "loading"
	StateFadingIn  TransitionState = "fading_in"
	StateSteady    TransitionState = "steady"
)

// PlayerState is the externally visible snapshot of the playback session,
// served by the status endpoint.
type PlayerState struct {
	ContentID string          `json:"content_id,omitempty"`
	State     TransitionState `json:"transition_state"`
	Since     time.Time       `json:"since"`
}
