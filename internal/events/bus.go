/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import (
	"sync"
	"time"

	"github.com/friendsincode/vidar_signage/internal/telemetry"
)

// EventType enumerates event categories.
type EventType string

const (
	EventContentAdded      EventType = "content_added"
	EventContentRemoved    EventType = "content_removed"
	EventPlaylistUpdated   EventType = "playlist_updated"
	EventScheduleUpdated   EventType = "schedule_updated"
	EventNowPlayingChanged EventType = "now_playing_changed"
	EventPlaybackSkipped   EventType = "playback_skipped"
)

// All lists every event type, used by observers that want the full stream.
func All() []EventType {
	return []EventType{
		EventContentAdded,
		EventContentRemoved,
		EventPlaylistUpdated,
		EventScheduleUpdated,
		EventNowPlayingChanged,
		EventPlaybackSkipped,
	}
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads. Events for one subscriber arrive in
// publish order; a subscriber that stays blocked past the send timeout is
// pruned and its channel closed.
type Subscriber chan Payload

const (
	sendDelivered = iota
	sendDropped
	sendTimedOut
)

// subscription pairs the channel with the mutex that serializes sends
// against close. The channel is only ever closed while holding mu, so a
// publisher mid-send can never race a concurrent Unsubscribe into a send
// on a closed channel.
type subscription struct {
	ch Subscriber

	mu     sync.Mutex
	closed bool
}

func (s *subscription) send(payload Payload, timeout time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sendDropped
	}
	select {
	case s.ch <- payload:
		return sendDelivered
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.ch <- payload:
		return sendDelivered
	case <-timer.C:
		return sendTimedOut
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Bus implements a simple in-process pubsub with bounded, best-effort
// delivery. Delivery to one subscriber never stalls delivery to the others.
type Bus struct {
	sendTimeout time.Duration

	mu   sync.RWMutex
	subs map[EventType][]*subscription
}

// NewBus creates an event bus with the default per-subscriber send timeout.
func NewBus() *Bus {
	return NewBusWithTimeout(250 * time.Millisecond)
}

// NewBusWithTimeout creates an event bus with an explicit send timeout.
func NewBusWithTimeout(sendTimeout time.Duration) *Bus {
	if sendTimeout <= 0 {
		sendTimeout = 250 * time.Millisecond
	}
	return &Bus{
		sendTimeout: sendTimeout,
		subs:        make(map[EventType][]*subscription),
	}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	sub := &subscription{ch: make(Subscriber, 16)}
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()
	return sub.ch
}

// Publish sends payload to subscribers. A subscriber whose buffer stays full
// for the send timeout is dropped from the bus so it cannot back-pressure
// the publisher or the remaining subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs[eventType]...)
	b.mu.RUnlock()

	var stale []*subscription
	for _, sub := range subs {
		switch sub.send(payload, b.sendTimeout) {
		case sendDelivered:
			telemetry.EventDeliveriesTotal.WithLabelValues(string(eventType)).Inc()
		case sendTimedOut:
			stale = append(stale, sub)
		}
	}

	for _, sub := range stale {
		telemetry.EventSubscriberPrunesTotal.Inc()
		b.remove(eventType, sub)
		sub.close()
	}
}

// Unsubscribe removes the subscriber and closes its channel. Safe to call for
// a subscriber that was already pruned, and safe against a concurrent
// Publish: the close waits out any send in flight on the channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	subs := b.subs[eventType]
	var target *subscription
	for i, candidate := range subs {
		if candidate.ch == sub {
			target = candidate
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	if target != nil {
		target.close()
	}
}

func (b *Bus) remove(eventType EventType, target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == target {
			b.subs[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount reports the number of live subscribers for the event type.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
