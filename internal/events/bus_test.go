/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"testing"
	"time"
)

func TestPublishDeliversInOrder(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventNowPlayingChanged)

	for i := 0; i < 5; i++ {
		bus.Publish(EventNowPlayingChanged, Payload{"seq": i})
	}

	for i := 0; i < 5; i++ {
		select {
		case payload := <-sub:
			if payload["seq"] != i {
				t.Fatalf("event %d arrived out of order: %v", i, payload["seq"])
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestPublishDoesNotCrossEventTypes(t *testing.T) {
	bus := NewBus()
	added := bus.Subscribe(EventContentAdded)
	removed := bus.Subscribe(EventContentRemoved)

	bus.Publish(EventContentAdded, Payload{"content_id": "x"})

	select {
	case <-added:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}

	select {
	case payload := <-removed:
		t.Fatalf("unexpected delivery to other event type: %v", payload)
	default:
	}
}

func TestSlowSubscriberIsPrunedNotBlocking(t *testing.T) {
	bus := NewBusWithTimeout(20 * time.Millisecond)
	slow := bus.Subscribe(EventNowPlayingChanged)
	healthy := bus.Subscribe(EventNowPlayingChanged)

	// Drain the healthy subscriber; never drain the slow one.
	go func() {
		for range healthy {
		}
	}()

	// More publishes than the subscriber buffer holds.
	for i := 0; i < 20; i++ {
		bus.Publish(EventNowPlayingChanged, Payload{"seq": i})
	}

	if got := bus.SubscriberCount(EventNowPlayingChanged); got != 1 {
		t.Fatalf("expected slow subscriber to be pruned, count = %d", got)
	}

	// The pruned channel is closed once drained.
	drained := 0
	for range slow {
		drained++
	}
	if drained == 0 {
		t.Fatal("expected buffered events before close")
	}

	// Publishing keeps working after the prune.
	done := make(chan struct{})
	go func() {
		bus.Publish(EventNowPlayingChanged, Payload{"seq": 99})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked after pruning")
	}
}

func TestUnsubscribeDuringBlockedPublishDoesNotPanic(t *testing.T) {
	bus := NewBusWithTimeout(500 * time.Millisecond)
	sub := bus.Subscribe(EventNowPlayingChanged)

	// Fill the subscriber buffer so the next publish blocks in its timed
	// send.
	for i := 0; i < 16; i++ {
		bus.Publish(EventNowPlayingChanged, Payload{"seq": i})
	}

	published := make(chan struct{})
	go func() {
		bus.Publish(EventNowPlayingChanged, Payload{"seq": 16})
		close(published)
	}()

	// Unsubscribe while the publish is mid-send. The close must wait out
	// the send in flight instead of pulling the channel out from under it.
	time.Sleep(20 * time.Millisecond)
	bus.Unsubscribe(EventNowPlayingChanged, sub)

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not return after unsubscribe")
	}

	// The channel ends up closed with its buffered events intact.
	drained := 0
	for range sub {
		drained++
	}
	if drained == 0 {
		t.Fatal("expected buffered events before close")
	}
}

func TestUnsubscribeClosesChannelOnce(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventPlaylistUpdated)

	bus.Unsubscribe(EventPlaylistUpdated, sub)
	// Second call must be a no-op for an already removed subscriber.
	bus.Unsubscribe(EventPlaylistUpdated, sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}
