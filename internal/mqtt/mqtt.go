// Package mqtt mirrors presence changes and lifecycle events to an MQTT
// broker. It is optional; the beacon's primary output is BLE.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/presence-beacon/internal/logic"
)

// PresenceTopic returns the topic presence changes are published on.
func PresenceTopic(prefix string) string {
	return prefix + "/presence"
}

// SystemTopic returns the topic lifecycle events are published on.
func SystemTopic(prefix string) string {
	return prefix + "/system"
}

// Publisher publishes presence changes and system events.
type Publisher interface {
	// PublishPresence sends a presence change to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishPresence(event PresenceEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// PresenceEvent is a snapshot that differs from the previous one published.
type PresenceEvent struct {
	Timestamp time.Time
	Device    string
	Flags     logic.Snapshot
	// Changed lists the channels whose flag differs from the previous event.
	Changed []logic.Channel
}

// SystemEvent represents a system lifecycle event (STARTUP, OFFLINE).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the presence message body.
type Payload struct {
	Presence PresencePayload `json:"presence"`
}

// PresencePayload carries the four channel bytes exactly as published over BLE.
type PresencePayload struct {
	Timestamp string   `json:"timestamp"`
	Device    string   `json:"device"`
	Distance1 byte     `json:"distance1"`
	Distance2 byte     `json:"distance2"`
	Motion1   byte     `json:"motion1"`
	Motion2   byte     `json:"motion2"`
	Changed   []string `json:"changed,omitempty"`
}

// FormatPayload creates the JSON payload for a presence change.
func FormatPayload(event PresenceEvent) ([]byte, error) {
	b := event.Flags.Bytes()
	p := PresencePayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Device:    event.Device,
		Distance1: b[logic.Distance1],
		Distance2: b[logic.Distance2],
		Motion1:   b[logic.Motion1],
		Motion2:   b[logic.Motion2],
	}
	for _, ch := range event.Changed {
		p.Changed = append(p.Changed, ch.String())
	}
	return json.Marshal(Payload{Presence: p})
}

// SystemPayload is the body of simple system events (LWT) that don't carry a
// full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// WillPayload is the retained last-will message the broker publishes when
// the beacon drops off without saying goodbye.
func WillPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "CONNECTION_LOST"})
	return data
}
