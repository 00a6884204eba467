package ble

import "sync"

// Stack is the BLE transport. Implementations wrap a real controller or a fake.
type Stack interface {
	// Init brings the controller up asynchronously and calls done exactly once.
	Init(done func(error))

	// SetConnectHandler registers the connection-state callback. The callback
	// may run on a stack-owned goroutine.
	SetConnectHandler(func(connected bool))

	// AddService registers svc and returns one handle per characteristic, in order.
	AddService(svc Service) ([]Handle, error)

	// StartAdvertising (re)starts connectable advertising.
	StartAdvertising(adv Advertisement) error

	Updater
}

// Updater writes a characteristic value. Connected subscribers are notified;
// otherwise the value is kept for the next read.
type Updater interface {
	UpdateValue(h Handle, value []byte) error
}

// connEvents serializes connection callbacks onto one goroutine so that the
// session sees them in the order the controller reported them, and so the
// handler can call back into the stack without blocking the stack's own
// event loop.
type connEvents struct {
	ch chan bool
}

func newConnEvents(handler func(bool)) *connEvents {
	e := &connEvents{ch: make(chan bool, 16)}
	go func() {
		for connected := range e.ch {
			handler(connected)
		}
	}()
	return e
}

func (e *connEvents) post(connected bool) {
	e.ch <- connected
}

// peerFilter follows one peer at a time. BlueZ reports connection changes for
// every device object on the adapter, not just the central using our service.
type peerFilter struct {
	mu   sync.Mutex
	peer string
}

// accept reports whether an event for addr should reach the session. The
// first connect claims the filter; only that peer's disconnect releases it.
func (f *peerFilter) accept(addr string, connected bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if connected {
		if f.peer != "" {
			return false
		}
		f.peer = addr
		return true
	}
	if f.peer == "" || f.peer != addr {
		return false
	}
	f.peer = ""
	return true
}
