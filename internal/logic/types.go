// Package logic contains the pure presence classification for the beacon.
// This package has NO external dependencies (no GPIO, I2C, BLE, OS, or time.Sleep).
package logic

import "fmt"

// Channel identifies one of the four sensor inputs.
type Channel int

const (
	Distance1 Channel = iota
	Distance2
	Motion1
	Motion2
)

// NumChannels is the number of channels sampled every cycle.
const NumChannels = 4

// Channels lists every channel in sampling order.
var Channels = [NumChannels]Channel{Distance1, Distance2, Motion1, Motion2}

// String returns the channel name used in logs, metrics labels and JSON.
func (c Channel) String() string {
	switch c {
	case Distance1:
		return "distance1"
	case Distance2:
		return "distance2"
	case Motion1:
		return "motion1"
	case Motion2:
		return "motion2"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// IsDistance reports whether the channel carries a time-of-flight reading in millimeters.
func (c Channel) IsDistance() bool {
	return c == Distance1 || c == Distance2
}

// IsMotion reports whether the channel carries a PIR line level.
func (c Channel) IsMotion() bool {
	return c == Motion1 || c == Motion2
}

// Reading is the raw value read from one channel in one cycle.
// Distance channels carry millimeters; motion channels carry 0 (idle) or non-zero (motion).
type Reading struct {
	Channel Channel
	Value   uint32
	// Fault is set when the collaborator reported an error and Value was coerced to 0.
	Fault bool
}

// DistanceReading builds a reading for a distance channel.
func DistanceReading(ch Channel, mm uint32) Reading {
	return Reading{Channel: ch, Value: mm}
}

// MotionReading builds a reading for a motion channel from a line level.
func MotionReading(ch Channel, active bool) Reading {
	r := Reading{Channel: ch}
	if active {
		r.Value = 1
	}
	return r
}

// Flag is the presence decision for a single channel.
type Flag bool

const (
	Present Flag = true
	Absent  Flag = false
)

// String returns "PRESENT" or "ABSENT".
func (f Flag) String() string {
	if f {
		return "PRESENT"
	}
	return "ABSENT"
}

// Snapshot is the classifier output for one cycle, indexed by Channel.
// It is a value type; copies are independent.
type Snapshot [NumChannels]Flag

// Get returns the flag for ch.
func (s Snapshot) Get(ch Channel) Flag {
	return s[ch]
}

// Bytes returns the single-byte encoding of every flag in channel order.
func (s Snapshot) Bytes() [NumChannels]byte {
	var out [NumChannels]byte
	for i, f := range s {
		out[i] = Encode(f)
	}
	return out
}
