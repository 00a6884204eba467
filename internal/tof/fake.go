package tof

import "sync"

// FakeSensor is a test double that returns scripted distances.
type FakeSensor struct {
	mu sync.Mutex

	// Values are returned by successive Distance calls; the last one repeats.
	Values []uint32
	// Errors, when non-nil at the same index as a call, is returned instead of a value.
	Errors []error
	// InitError is returned by Init.
	InitError error

	Address uint16
	Inited  bool
	calls   int
}

// NewFakeSensor creates a FakeSensor that returns values in order.
func NewFakeSensor(values ...uint32) *FakeSensor {
	return &FakeSensor{Values: values}
}

// Init records the address.
func (f *FakeSensor) Init(addr uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InitError != nil {
		return f.InitError
	}
	f.Address = addr
	f.Inited = true
	return nil
}

// Distance returns the next scripted value or error.
func (f *FakeSensor) Distance() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++

	if i < len(f.Errors) && f.Errors[i] != nil {
		return 0, f.Errors[i]
	}
	if len(f.Values) == 0 {
		return 0, ErrNotInitialized
	}
	if i >= len(f.Values) {
		i = len(f.Values) - 1
	}
	return f.Values[i], nil
}

// Calls returns how many times Distance was called.
func (f *FakeSensor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
