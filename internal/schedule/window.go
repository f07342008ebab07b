/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule resolves which content sequence is authoritative at a
// given instant: active schedule windows by priority, falling back to the
// default rotation, falling back to the whole library.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrInvalidRule reports a malformed recurrence rule. Rules are validated at
// upsert time so the selector never sees one.
var ErrInvalidRule = errors.New("invalid schedule rule")

// windowEpoch anchors recurrence expansion. Rules describe time-of-day and
// day-of-week patterns, so any date safely before deployment works.
var windowEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Window is a compiled recurring activity window. The zero-rule window is
// always open.
type Window struct {
	start *rrule.RRule
	end   *rrule.RRule
}

// CompileWindow parses the start and end recurrence rules. Empty strings are
// allowed: no start rule means always active, a start rule without an end
// rule opens a window that never closes.
func CompileWindow(startRule, endRule string) (*Window, error) {
	w := &Window{}
	if startRule != "" {
		rr, err := rrule.StrToRRule(startRule)
		if err != nil {
			return nil, fmt.Errorf("%w: start %q: %v", ErrInvalidRule, startRule, err)
		}
		rr.DTStart(windowEpoch)
		w.start = rr
	}
	if endRule != "" {
		if startRule == "" {
			return nil, fmt.Errorf("%w: end rule requires a start rule", ErrInvalidRule)
		}
		rr, err := rrule.StrToRRule(endRule)
		if err != nil {
			return nil, fmt.Errorf("%w: end %q: %v", ErrInvalidRule, endRule, err)
		}
		rr.DTStart(windowEpoch)
		w.end = rr
	}
	return w, nil
}

// Contains reports whether now falls inside the window. The most recent
// boundary at or before now decides: a start boundary opens the window, an
// end boundary closes it.
func (w *Window) Contains(now time.Time) bool {
	if w == nil || w.start == nil {
		return true
	}
	lastStart := w.start.Before(now, true)
	if lastStart.IsZero() {
		return false
	}
	if w.end == nil {
		return true
	}
	lastEnd := w.end.Before(now, true)
	if lastEnd.IsZero() {
		return true
	}
	return lastEnd.Before(lastStart)
}

// NextBoundary returns the earliest start or end occurrence strictly after
// now, or the zero time if the window has no future boundaries.
func (w *Window) NextBoundary(now time.Time) time.Time {
	if w == nil || w.start == nil {
		return time.Time{}
	}
	next := w.start.After(now, false)
	if w.end != nil {
		nextEnd := w.end.After(now, false)
		if !nextEnd.IsZero() && (next.IsZero() || nextEnd.Before(next)) {
			next = nextEnd
		}
	}
	return next
}
