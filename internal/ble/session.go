package ble

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// SessionState is the connectivity state of the beacon.
type SessionState int32

const (
	Uninitialized SessionState = iota
	Initializing
	Advertising
	Connected
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Initializing:
		return "INITIALIZING"
	case Advertising:
		return "ADVERTISING"
	case Connected:
		return "CONNECTED"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

var (
	// ErrInitFailed means the stack, the service or the first advertising
	// start failed. The beacon does not retry for this boot.
	ErrInitFailed = errors.New("ble: initialization failed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("ble: session already started")
)

// SessionObserver is told about state changes and advertising restarts.
type SessionObserver interface {
	SessionState(SessionState)
	AdvertisingRestarted()
}

// Session drives the stack through bring-up and keeps the beacon
// discoverable across disconnects.
//
// The connection callback only ever swaps the atomic state and restarts
// advertising; it never touches sampling or publishing.
type Session struct {
	stack Stack
	svc   Service
	adv   Advertisement
	log   logrus.FieldLogger
	obs   SessionObserver

	state    atomic.Int32
	restarts atomic.Uint64
	bindings Bindings
}

// NewSession creates a session for svc advertised with adv. obs may be nil.
func NewSession(stack Stack, svc Service, adv Advertisement, log logrus.FieldLogger, obs SessionObserver) *Session {
	return &Session{
		stack: stack,
		svc:   svc,
		adv:   adv,
		log:   log,
		obs:   obs,
	}
}

// State returns the current state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Restarts returns how many times advertising was re-armed after a disconnect.
func (s *Session) Restarts() uint64 {
	return s.restarts.Load()
}

// Bindings returns the channel bindings. Only valid after Start returned nil.
func (s *Session) Bindings() Bindings {
	return s.bindings
}

// Start initializes the stack and blocks until initialization completes or
// ctx is done. On success the service is registered exactly once and
// advertising is running. Any failure leaves the session Uninitialized.
func (s *Session) Start(ctx context.Context) error {
	if err := s.svc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	if !s.state.CompareAndSwap(int32(Uninitialized), int32(Initializing)) {
		return ErrAlreadyStarted
	}
	s.notify(Initializing)
	s.log.Info("ble: initializing stack")

	done := make(chan error, 1)
	s.stack.Init(func(err error) {
		select {
		case done <- err:
		default:
		}
	})

	select {
	case err := <-done:
		if err != nil {
			return s.fail("stack init", err)
		}
	case <-ctx.Done():
		s.setState(Uninitialized)
		return ctx.Err()
	}

	s.stack.SetConnectHandler(s.handleConnection)

	handles, err := s.stack.AddService(s.svc)
	if err != nil {
		return s.fail("add service", err)
	}
	bindings, err := bind(s.svc, handles)
	if err != nil {
		return s.fail("bind characteristics", err)
	}
	s.bindings = bindings

	// Advertising is set before the stack starts so that a connect arriving
	// immediately finds the session ready for it.
	s.setState(Advertising)
	if err := s.stack.StartAdvertising(s.adv); err != nil {
		return s.fail("start advertising", err)
	}

	s.log.WithFields(logrus.Fields{
		"name":     s.adv.Name,
		"service":  s.svc.UUID.String(),
		"interval": s.adv.Interval,
	}).Info("ble: advertising")
	return nil
}

func (s *Session) fail(step string, err error) error {
	s.setState(Uninitialized)
	s.log.WithError(err).Errorf("ble: %s failed, beacon will not advertise", step)
	return fmt.Errorf("%w: %s: %v", ErrInitFailed, step, err)
}

// handleConnection runs on the stack's event goroutine.
func (s *Session) handleConnection(connected bool) {
	if connected {
		if s.state.CompareAndSwap(int32(Advertising), int32(Connected)) {
			s.notify(Connected)
			s.log.Info("ble: peer connected")
		}
		return
	}

	// Every disconnect re-arms advertising exactly once, whether or not the
	// matching connect was observed.
	for {
		cur := s.state.Load()
		if cur != int32(Connected) && cur != int32(Advertising) {
			return
		}
		if s.state.CompareAndSwap(cur, int32(Advertising)) {
			break
		}
	}
	s.notify(Advertising)
	s.restarts.Add(1)
	if s.obs != nil {
		s.obs.AdvertisingRestarted()
	}

	if err := s.stack.StartAdvertising(s.adv); err != nil {
		s.log.WithError(err).Warn("ble: peer disconnected, advertising restart failed")
		return
	}
	s.log.Info("ble: peer disconnected, advertising restarted")
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
	s.notify(st)
}

func (s *Session) notify(st SessionState) {
	if s.obs != nil {
		s.obs.SessionState(st)
	}
}
