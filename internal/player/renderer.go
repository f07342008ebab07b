/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package player drives a single playback session through content switches:
// fade-out, backend handoff, load, fade-in. Renderer backends are consumed
// through narrow capability interfaces and implemented elsewhere.
package player

import (
	"context"
	"errors"
)

// MediaRenderer displays decodeable media (images, video). Level is an
// audio/opacity value in 0..100.
type MediaRenderer interface {
	Load(ctx context.Context, location string) error
	SetLevel(level int) error
	Stop() error
	IsActive() bool
}

// PageRenderer displays navigable web pages. It has no level concept; fades
// against this backend keep the timing contract with a no-op ramp.
type PageRenderer interface {
	Navigate(ctx context.Context, url string) error
	Close() error
}

// ErrSuperseded reports that a newer switch replaced this one mid-flight.
// The superseded call did not corrupt session state; the newer switch owns
// the renderer from the point of interruption.
var ErrSuperseded = errors.New("transition superseded")

// ErrLoadFailure reports that the renderer could not load the content. The
// session is back at idle; callers advance to the next item instead of
// retrying the same content.
var ErrLoadFailure = errors.New("renderer load failure")
