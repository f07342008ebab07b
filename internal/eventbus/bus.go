/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus provides distributed event bus backends that bridge the
// in-process events.Bus to Redis or NATS for multi-node deployments.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/friendsincode/vidar_signage/internal/events"
)

// Bus is the event bus surface shared by the in-memory bus and the
// distributed backends.
type Bus interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Publish(eventType events.EventType, payload events.Payload)
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// message is the wire format shared by the Redis and NATS bridges.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"` // For identifying source node
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nodeID,
	}
	return json.Marshal(msg)
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal bus message: %w", err)
	}
	return &msg, nil
}
