package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/presence-beacon/internal/logic"
)

var ts = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestTopics(t *testing.T) {
	assert.Equal(t, "presence/beacon/presence", PresenceTopic("presence/beacon"))
	assert.Equal(t, "presence/beacon/system", SystemTopic("presence/beacon"))
}

func TestFormatPayloadExactJSON(t *testing.T) {
	ev := PresenceEvent{
		Timestamp: ts,
		Device:    "OMG",
		Flags:     logic.Snapshot{logic.Present, logic.Absent, logic.Present, logic.Absent},
		Changed:   []logic.Channel{logic.Distance1, logic.Motion1},
	}

	data, err := FormatPayload(ev)
	require.NoError(t, err)

	want := `{"presence":{"timestamp":"2026-01-01T12:00:00Z","device":"OMG","distance1":1,"distance2":0,"motion1":1,"motion2":0,"changed":["distance1","motion1"]}}`
	assert.JSONEq(t, want, string(data))
}

func TestFormatPayloadOmitsEmptyChanged(t *testing.T) {
	data, err := FormatPayload(PresenceEvent{Timestamp: ts})
	require.NoError(t, err)

	var raw map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	_, exists := raw["presence"]["changed"]
	assert.False(t, exists)
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	data, err := FormatPayload(PresenceEvent{Timestamp: time.Date(2026, 1, 1, 14, 0, 0, 0, loc)})
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "2026-01-01T12:00:00Z", p.Presence.Timestamp)
}

func TestFormatSystemPayload(t *testing.T) {
	data, err := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "OFFLINE", Reason: "SIGTERM"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"system":{"timestamp":"2026-01-01T12:00:00Z","event":"OFFLINE","reason":"SIGTERM"}}`, string(data))
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	data, err := FormatSystemPayload(SystemEvent{Event: "ignored", RawPayload: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, data)
}

func TestWillPayloadFormat(t *testing.T) {
	assert.JSONEq(t, `{"system":{"event":"OFFLINE","reason":"CONNECTION_LOST"}}`, string(WillPayload()))
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	ev := PresenceEvent{Timestamp: ts, Flags: logic.Snapshot{logic.Present}}

	require.NoError(t, f.PublishPresence(ev))
	require.NoError(t, f.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP", Retained: true}))

	require.Len(t, f.Presence(), 1)
	assert.Equal(t, ev, f.Presence()[0])
	require.Len(t, f.Payloads(), 1)
	require.Len(t, f.SystemEvents(), 1)
	assert.True(t, f.SystemEvents()[0].Retained)
	require.Len(t, f.SystemPayloads(), 1)
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	f.PublishSystemError = errors.New("broker down")

	assert.Error(t, f.PublishPresence(PresenceEvent{}))
	assert.Error(t, f.PublishSystem(SystemEvent{}))
	assert.Empty(t, f.Presence())
	assert.Empty(t, f.SystemEvents())
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	f := NewFakePublisher()
	f.PublishPresence(PresenceEvent{})
	f.Close()
	assert.True(t, f.Closed())

	f.Reset()
	assert.False(t, f.Closed())
	assert.Empty(t, f.Presence())

	require.NoError(t, f.PublishPresence(PresenceEvent{}))
	assert.Len(t, f.Presence(), 1, "reusable after reset")
}
