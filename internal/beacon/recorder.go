package beacon

import (
	"github.com/sweeney/presence-beacon/internal/ble"
	"github.com/sweeney/presence-beacon/internal/logic"
	"github.com/sweeney/presence-beacon/internal/metrics"
	"github.com/sweeney/presence-beacon/internal/status"
)

// recorder fans session, fault and publish notifications out to the status
// tracker and the metrics. Either may be nil.
type recorder struct {
	tracker *status.Tracker
	metrics *metrics.Metrics
}

func (r *recorder) SessionState(s ble.SessionState) {
	if r.tracker != nil {
		r.tracker.SessionState(s)
	}
	r.metrics.SessionState(s)
}

func (r *recorder) AdvertisingRestarted() {
	if r.tracker != nil {
		r.tracker.AdvertisingRestarted()
	}
	r.metrics.AdvertisingRestarted()
}

func (r *recorder) SensorFault(ch logic.Channel) {
	if r.tracker != nil {
		r.tracker.SensorFault(ch)
	}
	r.metrics.SensorFault(ch)
}

func (r *recorder) PublishFailed(ch logic.Channel) {
	if r.tracker != nil {
		r.tracker.PublishFailed(ch)
	}
	r.metrics.PublishFailed(ch)
}
