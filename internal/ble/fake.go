package ble

import (
	"errors"
	"sync"
)

// Update is one recorded characteristic write.
type Update struct {
	Handle Handle
	Value  []byte
}

// FakeStack is an in-memory Stack for tests. Connection callbacks run
// synchronously on the caller of Connect/Disconnect.
type FakeStack struct {
	mu sync.Mutex

	// InitError is passed to the Init callback.
	InitError error
	// ManualInit defers the Init callback until CompleteInit is called.
	ManualInit bool
	// AddServiceError is returned by AddService.
	AddServiceError error
	// AdvertiseError is returned by StartAdvertising.
	AdvertiseError error
	// UpdateErrors maps a handle to the error UpdateValue returns for it.
	UpdateErrors map[Handle]error

	initDone   func(error)
	initCalls  int
	onConn     func(bool)
	services   []Service
	advertised []Advertisement
	values     map[Handle][]byte
	updates    []Update
}

// NewFakeStack creates an empty FakeStack.
func NewFakeStack() *FakeStack {
	return &FakeStack{values: make(map[Handle][]byte)}
}

// Init calls done with InitError unless ManualInit is set.
func (f *FakeStack) Init(done func(error)) {
	f.mu.Lock()
	f.initCalls++
	f.initDone = done
	manual, err := f.ManualInit, f.InitError
	f.mu.Unlock()

	if !manual {
		done(err)
	}
}

// CompleteInit finishes a deferred Init.
func (f *FakeStack) CompleteInit(err error) {
	f.mu.Lock()
	done := f.initDone
	f.mu.Unlock()
	if done != nil {
		done(err)
	}
}

// SetConnectHandler stores the callback.
func (f *FakeStack) SetConnectHandler(h func(bool)) {
	f.mu.Lock()
	f.onConn = h
	f.mu.Unlock()
}

// AddService records svc and hands out sequential handles starting at 1.
func (f *FakeStack) AddService(svc Service) ([]Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddServiceError != nil {
		return nil, f.AddServiceError
	}
	f.services = append(f.services, svc)
	base := Handle(len(f.values) + 1)
	handles := make([]Handle, len(svc.Characteristics))
	for i := range svc.Characteristics {
		handles[i] = base + Handle(i)
		f.values[handles[i]] = []byte{0}
	}
	return handles, nil
}

// StartAdvertising records adv.
func (f *FakeStack) StartAdvertising(adv Advertisement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advertised = append(f.advertised, adv)
	return f.AdvertiseError
}

// UpdateValue stores a copy of value.
func (f *FakeStack) UpdateValue(h Handle, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.UpdateErrors[h]; err != nil {
		return err
	}
	if _, ok := f.values[h]; !ok {
		return errors.New("fake: unknown handle")
	}
	v := append([]byte(nil), value...)
	f.values[h] = v
	f.updates = append(f.updates, Update{Handle: h, Value: v})
	return nil
}

// Connect simulates a peer connecting.
func (f *FakeStack) Connect() {
	f.fire(true)
}

// Disconnect simulates a peer disconnecting.
func (f *FakeStack) Disconnect() {
	f.fire(false)
}

func (f *FakeStack) fire(connected bool) {
	f.mu.Lock()
	h := f.onConn
	f.mu.Unlock()
	if h != nil {
		h(connected)
	}
}

// InitCalls returns how many times Init was called.
func (f *FakeStack) InitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

// Services returns every registered service.
func (f *FakeStack) Services() []Service {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Service(nil), f.services...)
}

// AdvertiseCalls returns how many times StartAdvertising was called.
func (f *FakeStack) AdvertiseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.advertised)
}

// Advertised returns every advertisement started, oldest first.
func (f *FakeStack) Advertised() []Advertisement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Advertisement(nil), f.advertised...)
}

// Value returns the current value of h.
func (f *FakeStack) Value(h Handle) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.values[h]...)
}

// Updates returns every accepted write, oldest first.
func (f *FakeStack) Updates() []Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Update(nil), f.updates...)
}
