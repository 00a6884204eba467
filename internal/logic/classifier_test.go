package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDistance(t *testing.T) {
	tests := []struct {
		mm   uint32
		want Flag
	}{
		{0, Absent},
		{5, Absent},
		{9, Absent},
		{10, Absent}, // lower bound is exclusive
		{11, Present},
		{250, Present},
		{499, Present},
		{500, Absent}, // upper bound is exclusive
		{501, Absent},
		{8190, Absent},
		{^uint32(0), Absent},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyDistance(tt.mm), "distance %d", tt.mm)
		assert.Equal(t, tt.want, Classify(Distance1, tt.mm), "Distance1 %d", tt.mm)
		assert.Equal(t, tt.want, Classify(Distance2, tt.mm), "Distance2 %d", tt.mm)
	}
}

func TestClassifyDistanceExhaustiveWindow(t *testing.T) {
	for mm := uint32(0); mm <= 1000; mm++ {
		want := mm > 10 && mm < 500
		if got := ClassifyDistance(mm); bool(got) != want {
			t.Fatalf("ClassifyDistance(%d) = %v, want %v", mm, got, want)
		}
	}
}

func TestClassifyMotion(t *testing.T) {
	tests := []struct {
		level uint32
		want  Flag
	}{
		{0, Absent},
		{1, Present},
		{2, Present},
		{255, Present},
		{^uint32(0), Present},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyMotion(tt.level), "level %d", tt.level)
		assert.Equal(t, tt.want, Classify(Motion1, tt.level), "Motion1 %d", tt.level)
		assert.Equal(t, tt.want, Classify(Motion2, tt.level), "Motion2 %d", tt.level)
	}
}

func TestClassifyMotionDoesNotUseDistanceWindow(t *testing.T) {
	// 600 is outside the distance window but is a non-zero line level.
	assert.Equal(t, Present, Classify(Motion1, 600))
	assert.Equal(t, Absent, Classify(Distance1, 600))
}

func TestEncode(t *testing.T) {
	assert.Equal(t, byte(1), Encode(Present))
	assert.Equal(t, byte(0), Encode(Absent))
}

func TestNewSnapshotScenarioA(t *testing.T) {
	snap := NewSnapshot([NumChannels]Reading{
		DistanceReading(Distance1, 250),
		DistanceReading(Distance2, 5),
		MotionReading(Motion1, true),
		MotionReading(Motion2, false),
	})

	assert.Equal(t, [NumChannels]byte{1, 0, 1, 0}, snap.Bytes())
}

func TestNewSnapshotScenarioBBoundaries(t *testing.T) {
	snap := NewSnapshot([NumChannels]Reading{
		DistanceReading(Distance1, 10),
		DistanceReading(Distance2, 500),
		MotionReading(Motion1, false),
		MotionReading(Motion2, true),
	})

	b := snap.Bytes()
	assert.Equal(t, byte(0), b[Distance1])
	assert.Equal(t, byte(0), b[Distance2])
	assert.Equal(t, byte(1), b[Motion2])
}

func TestNewSnapshotUsesReadingChannel(t *testing.T) {
	// Readings out of order still land in their own slot.
	snap := NewSnapshot([NumChannels]Reading{
		MotionReading(Motion2, true),
		DistanceReading(Distance2, 100),
		MotionReading(Motion1, false),
		DistanceReading(Distance1, 0),
	})

	assert.Equal(t, Absent, snap.Get(Distance1))
	assert.Equal(t, Present, snap.Get(Distance2))
	assert.Equal(t, Absent, snap.Get(Motion1))
	assert.Equal(t, Present, snap.Get(Motion2))
}

func TestFaultedReadingClassifiesAbsent(t *testing.T) {
	r := Reading{Channel: Distance1, Value: 0, Fault: true}
	snap := NewSnapshot([NumChannels]Reading{
		r,
		DistanceReading(Distance2, 42),
		MotionReading(Motion1, true),
		MotionReading(Motion2, true),
	})

	assert.Equal(t, [NumChannels]byte{0, 1, 1, 1}, snap.Bytes())
}

func TestChannelString(t *testing.T) {
	assert.Equal(t, "distance1", Distance1.String())
	assert.Equal(t, "distance2", Distance2.String())
	assert.Equal(t, "motion1", Motion1.String())
	assert.Equal(t, "motion2", Motion2.String())
	assert.Equal(t, "channel(7)", Channel(7).String())
}

func TestChannelKinds(t *testing.T) {
	for _, ch := range Channels {
		assert.NotEqual(t, ch.IsDistance(), ch.IsMotion(), ch.String())
	}
	assert.True(t, Distance1.IsDistance())
	assert.True(t, Motion2.IsMotion())
}

func TestFlagString(t *testing.T) {
	assert.Equal(t, "PRESENT", Present.String())
	assert.Equal(t, "ABSENT", Absent.String())
}
