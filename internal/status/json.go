package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/presence-beacon/internal/ble"
	"github.com/sweeney/presence-beacon/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Device        string        `json:"device"`
	Session       string        `json:"session"`
	Ready         bool          `json:"ready"`
	Channels      []ChannelJSON `json:"channels"`
	Cycles        uint64        `json:"cycles"`
	Restarts      uint64        `json:"advertising_restarts"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	LastCycle     string        `json:"last_cycle,omitempty"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is the JSON representation of one channel.
type ChannelJSON struct {
	Name            string `json:"name"`
	UUID            string `json:"uuid"`
	Raw             uint32 `json:"raw"`
	Fault           bool   `json:"fault"`
	Presence        string `json:"presence"`
	Value           byte   `json:"value"`
	Faults          uint64 `json:"faults"`
	PublishFailures uint64 `json:"publish_failures"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of beacon config.
type ConfigJSON struct {
	PeriodMs      int64  `json:"period_ms"`
	AdvIntervalMs int64  `json:"advertising_interval_ms,omitempty"`
	Backend       string `json:"backend"`
	Adapter       string `json:"adapter"`
	HTTPAddr      string `json:"http_addr,omitempty"`
	Broker        string `json:"broker,omitempty"`
	Topic         string `json:"topic,omitempty"`
}

// channelUUIDs follows the registered service definition.
var channelUUIDs = ble.PresenceService().ChannelUUIDs()

// Channels returns the per-channel view of snap in channel order.
func Channels(snap Snapshot) []ChannelJSON {
	out := make([]ChannelJSON, 0, logic.NumChannels)
	for _, ch := range logic.Channels {
		r := snap.Readings[ch]
		out = append(out, ChannelJSON{
			Name:            ch.String(),
			UUID:            channelUUIDs[ch].String(),
			Raw:             r.Value,
			Fault:           r.Fault,
			Presence:        snap.Flags[ch].String(),
			Value:           logic.Encode(snap.Flags[ch]),
			Faults:          snap.Faults[ch],
			PublishFailures: snap.PublishFailures[ch],
		})
	}
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Device:        snap.Config.DeviceName,
		Session:       snap.Session.String(),
		Ready:         snap.Ready(),
		Channels:      Channels(snap),
		Cycles:        snap.Cycles,
		Restarts:      snap.Restarts,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PeriodMs:      snap.Config.PeriodMs,
			AdvIntervalMs: snap.Config.AdvIntervalMs,
			Backend:       snap.Config.Backend,
			Adapter:       snap.Config.Adapter,
			HTTPAddr:      snap.Config.HTTPAddr,
			Broker:        snap.Config.Broker,
			Topic:         snap.Config.Topic,
		},
	}
	if !snap.LastCycle.IsZero() {
		inner.LastCycle = snap.LastCycle.UTC().Format(time.RFC3339Nano)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
