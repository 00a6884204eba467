package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted PIR levels.
type FakeReader struct {
	// Samples contains scripted (pir1, pir2) values to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error

	// Reads counts calls to Read.
	Reads int
}

// Sample represents a single reading of both PIR lines.
type Sample struct {
	PIR1 bool // true = motion
	PIR2 bool
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (bool, bool, error) {
	f.Reads++
	if f.ReadError != nil {
		return false, false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample.PIR1, sample.PIR2, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Reads = 0
	f.Closed = false
}

// FakeLine records the levels an output line was driven to.
type FakeLine struct {
	mu       sync.Mutex
	levels   []bool
	closed   bool
	SetError error
}

// NewFakeLine creates a FakeLine.
func NewFakeLine() *FakeLine {
	return &FakeLine{}
}

// Set records the level.
func (l *FakeLine) Set(high bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SetError != nil {
		return l.SetError
	}
	l.levels = append(l.levels, high)
	return nil
}

// Close marks the line as closed.
func (l *FakeLine) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// Levels returns every level the line was driven to, oldest first.
func (l *FakeLine) Levels() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.levels...)
}

// Closed reports whether Close was called.
func (l *FakeLine) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
