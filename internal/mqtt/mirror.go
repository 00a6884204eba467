package mqtt

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/presence-beacon/internal/logic"
)

// DropRecorder is told when a change could not be queued.
type DropRecorder interface {
	MirrorDropped()
}

// Mirror forwards presence changes from the main loop to a Publisher.
//
// Observe is called every cycle from the main loop and never blocks: the
// change is handed to a buffered queue drained by Run. When the queue is full
// the change is dropped and retried on the next cycle, so the broker always
// ends up with the latest snapshot.
type Mirror struct {
	pub    Publisher
	device string
	log    logrus.FieldLogger
	rec    DropRecorder
	queue  chan PresenceEvent

	// Owned by the Observe caller.
	last   logic.Snapshot
	primed bool
}

// NewMirror creates a mirror with room for queueSize pending changes. rec may be nil.
func NewMirror(pub Publisher, device string, queueSize int, log logrus.FieldLogger, rec DropRecorder) *Mirror {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Mirror{
		pub:    pub,
		device: device,
		log:    log,
		rec:    rec,
		queue:  make(chan PresenceEvent, queueSize),
	}
}

// Observe queues snap if it differs from the last snapshot queued. The first
// snapshot is always queued.
func (m *Mirror) Observe(snap logic.Snapshot, at time.Time) {
	if m.primed && snap == m.last {
		return
	}

	var changed []logic.Channel
	for _, ch := range logic.Channels {
		if !m.primed || snap[ch] != m.last[ch] {
			changed = append(changed, ch)
		}
	}

	select {
	case m.queue <- PresenceEvent{Timestamp: at, Device: m.device, Flags: snap, Changed: changed}:
		m.last = snap
		m.primed = true
	default:
		if m.rec != nil {
			m.rec.MirrorDropped()
		}
		m.log.Debug("mqtt: mirror queue full, change deferred")
	}
}

// Run publishes queued changes until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.queue:
			if err := m.pub.PublishPresence(ev); err != nil {
				// Don't crash on publish failure.
				m.log.WithError(err).Warn("mqtt: presence publish failed")
			}
		}
	}
}

// Startup publishes a retained STARTUP event carrying payload, typically the
// full status JSON.
func (m *Mirror) Startup(payload []byte, at time.Time) {
	ev := SystemEvent{Timestamp: at, Event: "STARTUP", RawPayload: payload, Retained: true}
	if err := m.pub.PublishSystem(ev); err != nil {
		m.log.WithError(err).Warn("mqtt: startup publish failed")
	}
}
