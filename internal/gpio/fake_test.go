package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader([]Sample{
		{PIR1: true, PIR2: false},
		{PIR1: false, PIR2: true},
		{PIR1: true, PIR2: true},
	})

	want := [][2]bool{
		{true, false},
		{false, true},
		{true, true},
		{true, true}, // last sample repeats
	}
	for i, w := range want {
		p1, p2, err := f.Read()
		require.NoError(t, err, "sample %d", i)
		assert.Equal(t, w, [2]bool{p1, p2}, "sample %d", i)
	}
	assert.Equal(t, 4, f.Reads)
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader(nil)

	_, _, err := f.Read()
	assert.Error(t, err)
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([]Sample{{PIR1: true, PIR2: true}})
	f.ReadError = errors.New("simulated error")

	_, _, err := f.Read()
	assert.EqualError(t, err, "simulated error")
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader([]Sample{
		{PIR1: true, PIR2: false},
		{PIR1: false, PIR2: true},
	})
	assert.False(t, f.Closed)

	f.Read()
	require.NoError(t, f.Close())
	assert.True(t, f.Closed)

	f.Reset()
	assert.False(t, f.Closed)
	p1, p2, _ := f.Read()
	assert.True(t, p1)
	assert.False(t, p2)
}

func TestFakeLineRecordsLevels(t *testing.T) {
	l := NewFakeLine()
	require.NoError(t, l.Set(false))
	require.NoError(t, l.Set(true))
	require.NoError(t, l.Close())

	assert.Equal(t, []bool{false, true}, l.Levels())
	assert.True(t, l.Closed())
}

func TestFakeLineSetError(t *testing.T) {
	l := NewFakeLine()
	l.SetError = errors.New("busy")

	assert.EqualError(t, l.Set(true), "busy")
	assert.Empty(t, l.Levels())
}

func TestNopLine(t *testing.T) {
	var l Line = NopLine{}
	assert.NoError(t, l.Set(true))
	assert.NoError(t, l.Close())
}
