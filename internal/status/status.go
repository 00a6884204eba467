// Package status provides a thread-safe view of the beacon for the status
// server and the MQTT mirror.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/presence-beacon/internal/ble"
	"github.com/sweeney/presence-beacon/internal/logic"
)

// Config contains beacon configuration for display.
type Config struct {
	DeviceName    string
	PeriodMs      int64
	AdvIntervalMs int64
	Backend       string
	Adapter       string
	HTTPAddr      string
	Broker        string
	Topic         string
}

// Snapshot is a point-in-time view of beacon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Readings        [logic.NumChannels]logic.Reading
	Flags           logic.Snapshot
	Session         ble.SessionState
	Cycles          uint64
	Faults          [logic.NumChannels]uint64
	PublishFailures [logic.NumChannels]uint64
	Restarts        uint64
	LastCycle       time.Time
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Config          Config
}

// Uptime returns the duration since the beacon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether the beacon is discoverable or serving a peer.
func (s Snapshot) Ready() bool {
	return s.Session == ble.Advertising || s.Session == ble.Connected
}

// Tracker holds mutable beacon state behind an RWMutex. It satisfies
// ble.SessionObserver, ble.PublishRecorder and sampler.FaultRecorder.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records a finished cycle. Called from the main loop every cycle.
func (t *Tracker) Update(readings [logic.NumChannels]logic.Reading, flags logic.Snapshot, at time.Time) {
	t.mu.Lock()
	t.snap.Readings = readings
	t.snap.Flags = flags
	t.snap.LastCycle = at
	t.snap.Cycles++
	t.mu.Unlock()
}

// SensorFault counts a failed sensor read.
func (t *Tracker) SensorFault(ch logic.Channel) {
	if ch < 0 || int(ch) >= logic.NumChannels {
		return
	}
	t.mu.Lock()
	t.snap.Faults[ch]++
	t.mu.Unlock()
}

// PublishFailed counts a dropped characteristic update.
func (t *Tracker) PublishFailed(ch logic.Channel) {
	if ch < 0 || int(ch) >= logic.NumChannels {
		return
	}
	t.mu.Lock()
	t.snap.PublishFailures[ch]++
	t.mu.Unlock()
}

// SessionState records the BLE session state.
func (t *Tracker) SessionState(s ble.SessionState) {
	t.mu.Lock()
	t.snap.Session = s
	t.mu.Unlock()
}

// AdvertisingRestarted counts a re-advertise after disconnect.
func (t *Tracker) AdvertisingRestarted() {
	t.mu.Lock()
	t.snap.Restarts++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the beacon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
