package eventbus

import (
	"testing"

	"github.com/friendsincode/vidar_signage/internal/events"
)

func TestMessageRoundTrip(t *testing.T) {
	data, err := marshalMessage(events.EventNowPlayingChanged, events.Payload{
		"content_id": "abc",
		"name":       "lobby loop",
	}, "node-1")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	msg, err := unmarshalMessage(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EventType != events.EventNowPlayingChanged {
		t.Errorf("event type = %q", msg.EventType)
	}
	if msg.NodeID != "node-1" {
		t.Errorf("node id = %q", msg.NodeID)
	}
	if msg.Payload["content_id"] != "abc" {
		t.Errorf("payload = %v", msg.Payload)
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestUnmarshalMessageRejectsGarbage(t *testing.T) {
	if _, err := unmarshalMessage([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed message")
	}
}

func TestBackendNaming(t *testing.T) {
	if got := channelName(events.EventContentAdded); got != "vidar.events.content_added" {
		t.Errorf("redis channel = %q", got)
	}
	if got := subjectName(events.EventPlaybackSkipped); got != "vidar.events.playback_skipped" {
		t.Errorf("nats subject = %q", got)
	}
}
