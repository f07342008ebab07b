/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/vidar_signage/internal/events"
)

// NATSBus implements a NATS-backed event bus. Events are mirrored onto
// subjects named vidar.events.<event_type> so that other displays and
// dashboards can follow playback remotely. As with the Redis bridge, the
// in-memory bus owns every subscriber channel and remote messages are fanned
// in through it.
type NATSBus struct {
	conn     *nats.Conn
	logger   zerolog.Logger
	fallback *events.Bus
	nodeID   string

	mu          sync.RWMutex
	natsSubs    map[events.EventType]*nats.Subscription
	useFallback bool
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus creates a NATS-backed event bus.
// Falls back to the in-memory bus if NATS is unavailable.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	nb := &NATSBus{
		logger:   logger,
		fallback: events.NewBus(),
		nodeID:   nodeID,
		natsSubs: make(map[events.EventType]*nats.Subscription),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		logger.Warn().Err(err).Msg("NATS connection failed, using in-memory fallback")
		nb.useFallback = true
		return nb, nil
	}

	nb.conn = conn
	logger.Info().Str("url", cfg.URL).Msg("NATS event bus initialized")
	return nb, nil
}

func subjectName(eventType events.EventType) string {
	return "vidar.events." + string(eventType)
}

// Subscribe registers a subscriber for an event type. The channel comes from
// the local bus; the first subscriber for a type also opens the NATS
// subscription feeding it remote messages.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.fallback.Subscribe(eventType)

	nb.mu.Lock()
	defer nb.mu.Unlock()

	if nb.useFallback {
		return sub
	}

	if _, exists := nb.natsSubs[eventType]; !exists {
		natsSub, err := nb.conn.Subscribe(subjectName(eventType), func(msg *nats.Msg) {
			nb.deliver(eventType, msg.Data)
		})
		if err != nil {
			nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("NATS subscribe failed")
		} else {
			nb.natsSubs[eventType] = natsSub
		}
	}

	return sub
}

func (nb *NATSBus) deliver(eventType events.EventType, data []byte) {
	busMsg, err := unmarshalMessage(data)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to unmarshal NATS message")
		return
	}

	// Skip messages from ourselves (prevent echo); our own publishes were
	// already delivered locally.
	if busMsg.NodeID == nb.nodeID {
		return
	}

	nb.fallback.Publish(eventType, busMsg.Payload)
}

// Publish sends an event payload to all subscribers (local and remote).
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.fallback.Publish(eventType, payload)

	nb.mu.RLock()
	open := !nb.useFallback && nb.conn != nil
	nb.mu.RUnlock()
	if !open {
		return
	}

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal NATS message")
		return
	}

	if err := nb.conn.Publish(subjectName(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

// Unsubscribe removes a subscriber. The local bus closes the channel; when
// the last subscriber for a type is gone the NATS subscription closes too.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.fallback.Unsubscribe(eventType, sub)

	nb.mu.Lock()
	defer nb.mu.Unlock()

	if nb.fallback.SubscriberCount(eventType) == 0 {
		if natsSub, exists := nb.natsSubs[eventType]; exists {
			if err := natsSub.Unsubscribe(); err != nil {
				nb.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("NATS unsubscribe failed")
			}
			delete(nb.natsSubs, eventType)
		}
	}
}

// Close drains and closes the NATS connection.
func (nb *NATSBus) Close() error {
	nb.logger.Info().Msg("closing NATS event bus")

	nb.mu.Lock()
	defer nb.mu.Unlock()

	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
