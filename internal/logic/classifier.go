package logic

// Distance window in millimeters. Both bounds are exclusive.
const (
	DistanceMin uint32 = 10
	DistanceMax uint32 = 500
)

// Classify maps a raw reading to a presence flag.
// Distance channels are present iff DistanceMin < raw < DistanceMax.
// Motion channels are present iff raw != 0.
func Classify(ch Channel, raw uint32) Flag {
	if ch.IsDistance() {
		return ClassifyDistance(raw)
	}
	return ClassifyMotion(raw)
}

// ClassifyDistance reports presence for a distance in millimeters.
func ClassifyDistance(mm uint32) Flag {
	return Flag(mm > DistanceMin && mm < DistanceMax)
}

// ClassifyMotion reports presence for a PIR line level.
func ClassifyMotion(level uint32) Flag {
	return Flag(level != 0)
}

// NewSnapshot classifies a full round of readings. Each reading lands in the
// slot of its own channel, so the order of readings does not matter.
func NewSnapshot(readings [NumChannels]Reading) Snapshot {
	var s Snapshot
	for _, r := range readings {
		if r.Channel < 0 || int(r.Channel) >= NumChannels {
			continue
		}
		s[r.Channel] = Classify(r.Channel, r.Value)
	}
	return s
}

// Encode converts a flag to its characteristic payload byte (1 or 0).
func Encode(f Flag) byte {
	if f {
		return 1
	}
	return 0
}
