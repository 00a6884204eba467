// Package sampler reads all four presence inputs once per cycle.
package sampler

import (
	"github.com/sirupsen/logrus"

	"github.com/sweeney/presence-beacon/internal/gpio"
	"github.com/sweeney/presence-beacon/internal/logic"
	"github.com/sweeney/presence-beacon/internal/tof"
)

// FaultRecorder is notified when a channel read fails and is coerced to 0.
type FaultRecorder interface {
	SensorFault(ch logic.Channel)
}

// Sampler reads Distance1, Distance2, Motion1 and Motion2, in that order.
type Sampler struct {
	distance [2]tof.Sensor
	motion   gpio.Reader
	log      logrus.FieldLogger
	faults   FaultRecorder
}

// New creates a Sampler. faults may be nil.
func New(d1, d2 tof.Sensor, motion gpio.Reader, log logrus.FieldLogger, faults FaultRecorder) *Sampler {
	return &Sampler{
		distance: [2]tof.Sensor{d1, d2},
		motion:   motion,
		log:      log,
		faults:   faults,
	}
}

// Sample takes one reading per channel. It never fails: a read error is
// logged, marked as a fault and reported as 0, which classifies as absent.
func (s *Sampler) Sample() [logic.NumChannels]logic.Reading {
	var out [logic.NumChannels]logic.Reading

	for i, ch := range []logic.Channel{logic.Distance1, logic.Distance2} {
		mm, err := s.distance[i].Distance()
		if err != nil {
			out[ch] = s.fault(ch, err)
			continue
		}
		out[ch] = logic.DistanceReading(ch, mm)
	}

	pir1, pir2, err := s.motion.Read()
	if err != nil {
		out[logic.Motion1] = s.fault(logic.Motion1, err)
		out[logic.Motion2] = s.fault(logic.Motion2, err)
	} else {
		out[logic.Motion1] = logic.MotionReading(logic.Motion1, pir1)
		out[logic.Motion2] = logic.MotionReading(logic.Motion2, pir2)
	}

	s.log.WithFields(logrus.Fields{
		"distance1": out[logic.Distance1].Value,
		"distance2": out[logic.Distance2].Value,
		"pir1":      onOff(out[logic.Motion1].Value),
		"pir2":      onOff(out[logic.Motion2].Value),
	}).Debug("sample")

	return out
}

func (s *Sampler) fault(ch logic.Channel, err error) logic.Reading {
	s.log.WithError(err).WithField("channel", ch.String()).Debug("read failed, reporting 0")
	if s.faults != nil {
		s.faults.SensorFault(ch)
	}
	return logic.Reading{Channel: ch, Fault: true}
}

func onOff(v uint32) string {
	if v != 0 {
		return "on"
	}
	return "off"
}
