/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package schedule

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_signage/internal/models"
)

// Sequence identifiers for the fallback tiers. Active schedules use
// "schedule:<id>".
const (
	SequenceRotation = "rotation"
	SequenceLibrary  = "library"
)

// Entry pairs a schedule with its compiled window.
type Entry struct {
	Schedule models.Schedule
	Window   *Window
}

// Snapshot is a point-in-time copy of the catalog handed to Select. The
// selector never mutates it.
type Snapshot struct {
	Contents  map[string]models.Content
	Schedules []Entry
	Rotation  []string
}

// Cursor tracks the rotation position within the authoritative sequence.
type Cursor struct {
	SequenceID string
	Index      int
}

// Selection is the outcome of one selector call. Empty means nothing is
// playable anywhere and the driver should back off. SequenceLength is the
// size of the authoritative sequence, letting the driver recognize when a
// full lap of it has failed.
type Selection struct {
	SequenceID     string
	Content        models.Content
	Cursor         Cursor
	SequenceLength int
	Empty          bool
}

// Select resolves the authoritative sequence for now and picks the next
// playable item. Deterministic and side-effect free given its inputs:
// same (snapshot, now, cursor) always yields the same result.
func Select(snap Snapshot, now time.Time, cur Cursor, logger zerolog.Logger) Selection {
	seqID, ids := authoritativeSequence(snap, now)

	idx := 0
	if seqID == cur.SequenceID && len(ids) > 0 {
		idx = (cur.Index + 1) % len(ids)
	}

	// Walk at most one full lap, skipping ids that no longer resolve. A
	// delete racing a read leaves dangling references; those are skipped,
	// never fatal.
	for i := 0; i < len(ids); i++ {
		pos := (idx + i) % len(ids)
		content, ok := snap.Contents[ids[pos]]
		if !ok {
			logger.Warn().
				Str("sequence", seqID).
				Str("content_id", ids[pos]).
				Msg("skipping dangling content reference")
			continue
		}
		return Selection{
			SequenceID:     seqID,
			Content:        content,
			Cursor:         Cursor{SequenceID: seqID, Index: pos},
			SequenceLength: len(ids),
		}
	}

	return Selection{SequenceID: seqID, SequenceLength: len(ids), Empty: true}
}

// NextBoundary returns the earliest schedule-window edge strictly after now
// across all enabled schedules, or the zero time if none is pending. The
// driver caps its duration wait at this instant so schedule transitions do
// not lag behind a long-running item.
func NextBoundary(snap Snapshot, now time.Time) time.Time {
	var next time.Time
	for _, entry := range snap.Schedules {
		if !entry.Schedule.Enabled {
			continue
		}
		boundary := entry.Window.NextBoundary(now)
		if boundary.IsZero() {
			continue
		}
		if next.IsZero() || boundary.Before(next) {
			next = boundary
		}
	}
	return next
}

// authoritativeSequence picks the governing content-id list: the winning
// active schedule, else the default rotation, else every known content id.
func authoritativeSequence(snap Snapshot, now time.Time) (string, []string) {
	if winner, ok := activeSchedule(snap, now); ok {
		return "schedule:" + winner.ID, winner.ContentIDs
	}
	if len(snap.Rotation) > 0 {
		return SequenceRotation, snap.Rotation
	}
	return SequenceLibrary, libraryOrder(snap.Contents)
}

// activeSchedule returns the enabled schedule whose window contains now with
// the highest priority. Ties resolve to the most recently created schedule,
// then to the larger id, so repeated calls always agree.
func activeSchedule(snap Snapshot, now time.Time) (models.Schedule, bool) {
	var winner models.Schedule
	found := false
	for _, entry := range snap.Schedules {
		s := entry.Schedule
		if !s.Enabled || !entry.Window.Contains(now) {
			continue
		}
		if !found || scheduleBeats(s, winner) {
			winner = s
			found = true
		}
	}
	return winner, found
}

func scheduleBeats(a, b models.Schedule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func libraryOrder(contents map[string]models.Content) []string {
	items := make([]models.Content, 0, len(contents))
	for _, c := range contents {
		items = append(items, c)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	ids := make([]string, len(items))
	for i, c := range items {
		ids[i] = c.ID
	}
	return ids
}
