/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_signage/internal/clock"
	"github.com/friendsincode/vidar_signage/internal/events"
	"github.com/friendsincode/vidar_signage/internal/models"
	"github.com/friendsincode/vidar_signage/internal/schedule"
)

func newTestCatalog(t *testing.T) (*Catalog, *events.Bus, *clock.Fake) {
	t.Helper()
	bus := events.NewBus()
	clk := clock.NewFake(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC))
	return New(bus, clk, zerolog.Nop()), bus, clk
}

func TestAddContentAssignsIDAndTimestamp(t *testing.T) {
	cat, _, clk := newTestCatalog(t)

	content, err := cat.AddContent(models.Content{
		Name:     "lobby",
		Kind:     models.KindImage,
		Location: "/media/lobby.png",
	})
	if err != nil {
		t.Fatalf("add content: %v", err)
	}
	if content.ID == "" {
		t.Fatal("expected generated id")
	}
	if !content.CreatedAt.Equal(clk.Now()) {
		t.Fatalf("CreatedAt = %v, want %v", content.CreatedAt, clk.Now())
	}

	stored, ok := cat.Content(content.ID)
	if !ok {
		t.Fatal("content not retrievable after add")
	}
	if stored != content {
		t.Fatalf("stored %+v != returned %+v", stored, content)
	}
}

func TestAddContentRejectsInvalidInput(t *testing.T) {
	cat, _, _ := newTestCatalog(t)

	if _, err := cat.AddContent(models.Content{Kind: "hologram", Location: "/x"}); err == nil {
		t.Fatal("expected unknown kind to be rejected")
	}
	if _, err := cat.AddContent(models.Content{Kind: models.KindImage}); err == nil {
		t.Fatal("expected missing location to be rejected")
	}
}

func TestRemoveContentUnknownID(t *testing.T) {
	cat, _, _ := newTestCatalog(t)
	err := cat.RemoveContent("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMutationsPublishEventsAndPreempt(t *testing.T) {
	cat, bus, _ := newTestCatalog(t)
	added := bus.Subscribe(events.EventContentAdded)
	removed := bus.Subscribe(events.EventContentRemoved)

	content, err := cat.AddContent(models.Content{Kind: models.KindVideo, Location: "/media/a.mp4"})
	if err != nil {
		t.Fatalf("add content: %v", err)
	}

	select {
	case payload := <-added:
		if payload["content_id"] != content.ID {
			t.Fatalf("unexpected payload: %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for content_added event")
	}

	select {
	case <-cat.Preempt():
	case <-time.After(time.Second):
		t.Fatal("expected preemption signal after add")
	}

	if err := cat.RemoveContent(content.ID); err != nil {
		t.Fatalf("remove content: %v", err)
	}
	select {
	case <-removed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for content_removed event")
	}
	select {
	case <-cat.Preempt():
	case <-time.After(time.Second):
		t.Fatal("expected preemption signal after remove")
	}
}

func TestUpsertScheduleRejectsInvalidRule(t *testing.T) {
	cat, _, _ := newTestCatalog(t)

	_, err := cat.UpsertSchedule(models.Schedule{
		Name:      "broken",
		StartRule: "FREQ=NONSENSE",
		Enabled:   true,
	})
	if !errors.Is(err, schedule.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
	if len(cat.ListSchedules()) != 0 {
		t.Fatal("invalid schedule must not be stored")
	}
}

func TestUpsertSchedulePreservesCreatedAt(t *testing.T) {
	cat, _, clk := newTestCatalog(t)

	s, err := cat.UpsertSchedule(models.Schedule{
		Name:      "mornings",
		StartRule: "FREQ=DAILY;BYHOUR=9;BYMINUTE=0;BYSECOND=0",
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("upsert schedule: %v", err)
	}
	created := s.CreatedAt

	clk.Advance(time.Hour)
	s.Priority = 3
	updated, err := cat.UpsertSchedule(s)
	if err != nil {
		t.Fatalf("update schedule: %v", err)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt changed on update: %v -> %v", created, updated.CreatedAt)
	}
	if updated.Priority != 3 {
		t.Fatalf("priority not updated: %d", updated.Priority)
	}
}

func TestSetContentDuration(t *testing.T) {
	cat, _, _ := newTestCatalog(t)
	content, err := cat.AddContent(models.Content{Kind: models.KindImage, Location: "/media/x.png"})
	if err != nil {
		t.Fatalf("add content: %v", err)
	}

	if err := cat.SetContentDuration(content.ID, -1); err == nil {
		t.Fatal("expected negative duration to be rejected")
	}
	if err := cat.SetContentDuration(content.ID, 30); err != nil {
		t.Fatalf("set duration: %v", err)
	}
	stored, _ := cat.Content(content.ID)
	if stored.Duration != 30 {
		t.Fatalf("duration = %d, want 30", stored.Duration)
	}
	if err := cat.SetContentDuration("nope", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	cat, _, _ := newTestCatalog(t)
	content, err := cat.AddContent(models.Content{Kind: models.KindImage, Location: "/media/x.png"})
	if err != nil {
		t.Fatalf("add content: %v", err)
	}
	cat.SetDefaultRotation([]string{content.ID})

	snap := cat.Snapshot()
	if err := cat.RemoveContent(content.ID); err != nil {
		t.Fatalf("remove content: %v", err)
	}

	if _, ok := snap.Contents[content.ID]; !ok {
		t.Fatal("snapshot must not observe later mutations")
	}
	if len(snap.Rotation) != 1 {
		t.Fatalf("snapshot rotation = %v", snap.Rotation)
	}
}
