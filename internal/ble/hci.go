//go:build linux

package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/go-ble/ble/linux/hci/evt"
	"github.com/sirupsen/logrus"
)

type advertiseFunc func(ctx context.Context, name string, uuids ...goble.UUID) error

// HCIStack is a Stack that drives the controller over a raw HCI socket with
// go-ble, bypassing bluetoothd. The GATT value table lives here.
//
// go-ble delivers connection events on its socket loop, and that loop must
// keep running for any HCI command (including stopping an advertiser) to
// complete. Neither the event path nor UpdateValue may wait on advMu.
type HCIStack struct {
	deviceID int
	interval time.Duration
	log      logrus.FieldLogger

	events atomic.Pointer[connEvents]

	// advMu serializes advertising restarts.
	advMu sync.Mutex

	mu        sync.Mutex
	dev       *linux.Device
	advertise advertiseFunc
	cancel    context.CancelFunc
	advDone   chan struct{}

	valMu  sync.RWMutex
	values []*gattValue
}

// NewHCIStack returns a stack for hciN with a fixed advertising interval.
func NewHCIStack(deviceID int, interval time.Duration, log logrus.FieldLogger) *HCIStack {
	return &HCIStack{
		deviceID: deviceID,
		interval: interval,
		log:      log,
	}
}

// advInterval converts to controller units of 0.625 ms.
func advInterval(d time.Duration) uint16 {
	units := d / (625 * time.Microsecond)
	if units < 0x20 {
		units = 0x20
	}
	if units > 0x4000 {
		units = 0x4000
	}
	return uint16(units)
}

// Init opens the HCI device on its own goroutine.
func (s *HCIStack) Init(done func(error)) {
	go func() {
		iv := advInterval(s.interval)
		dev, err := linux.NewDevice(
			goble.OptDeviceID(s.deviceID),
			goble.OptAdvParams(cmd.LESetAdvertisingParameters{
				AdvertisingIntervalMin:  iv,
				AdvertisingIntervalMax:  iv,
				AdvertisingType:         0x00, // ADV_IND: connectable undirected
				AdvertisingChannelMap:   0x07,
				AdvertisingFilterPolicy: 0x00,
			}),
			goble.OptConnectHandler(func(evt.LEConnectionComplete) { s.post(true) }),
			goble.OptDisconnectHandler(func(evt.DisconnectionComplete) { s.post(false) }),
		)
		if err != nil {
			done(fmt.Errorf("open hci%d: %w", s.deviceID, err))
			return
		}
		s.mu.Lock()
		s.dev = dev
		s.advertise = dev.AdvertiseNameAndServices
		s.mu.Unlock()
		done(nil)
	}()
}

// post runs on go-ble's socket loop and takes no lock.
func (s *HCIStack) post(connected bool) {
	if events := s.events.Load(); events != nil {
		events.post(connected)
	}
}

// SetConnectHandler registers h.
func (s *HCIStack) SetConnectHandler(h func(bool)) {
	s.events.Store(newConnEvents(h))
}

// AddService registers svc. Reads return the cached value; notify
// subscribers receive every update until they unsubscribe.
func (s *HCIStack) AddService(svc Service) ([]Handle, error) {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()
	if dev == nil {
		return nil, errors.New("hci: device not initialized")
	}

	bs := goble.NewService(goble.UUID16(uint16(svc.UUID)))
	values := make([]*gattValue, len(svc.Characteristics))
	handles := make([]Handle, len(svc.Characteristics))
	for i, c := range svc.Characteristics {
		v := newGattValue()
		values[i] = v
		handles[i] = Handle(i)

		bc := bs.NewCharacteristic(goble.UUID16(uint16(c.UUID)))
		bc.HandleRead(goble.ReadHandlerFunc(func(_ goble.Request, rsp goble.ResponseWriter) {
			_, _ = rsp.Write(v.get())
		}))
		bc.HandleNotify(goble.NotifyHandlerFunc(func(_ goble.Request, n goble.Notifier) {
			v.subscribe(n)
			<-n.Context().Done()
			v.unsubscribe(n)
		}))
	}

	if err := dev.AddService(bs); err != nil {
		return nil, fmt.Errorf("add service %s: %w", svc.UUID, err)
	}
	s.valMu.Lock()
	s.values = values
	s.valMu.Unlock()
	return handles, nil
}

// StartAdvertising stops any running advertisement and starts a new one.
// Only other restarts wait while the old advertiser shuts down.
func (s *HCIStack) StartAdvertising(a Advertisement) error {
	s.advMu.Lock()
	defer s.advMu.Unlock()

	s.mu.Lock()
	advertise, cancel, done := s.advertise, s.cancel, s.advDone
	s.mu.Unlock()
	if advertise == nil {
		return errors.New("hci: device not initialized")
	}

	if cancel != nil {
		cancel()
		<-done
	}

	uuids := make([]goble.UUID, len(a.ServiceUUIDs))
	for i, u := range a.ServiceUUIDs {
		uuids[i] = goble.UUID16(uint16(u))
	}

	ctx, stop := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	s.mu.Lock()
	s.cancel = stop
	s.advDone = stopped
	s.mu.Unlock()

	go func() {
		defer close(stopped)
		err := advertise(ctx, a.Name, uuids...)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.WithError(err).Warn("hci: advertising stopped")
		}
	}()
	return nil
}

// UpdateValue stores the value and notifies subscribers.
func (s *HCIStack) UpdateValue(h Handle, value []byte) error {
	s.valMu.RLock()
	if int(h) >= len(s.values) {
		s.valMu.RUnlock()
		return fmt.Errorf("unknown handle %d", h)
	}
	v := s.values[h]
	s.valMu.RUnlock()

	return v.set(value)
}

type gattValue struct {
	mu    sync.Mutex
	value []byte
	subs  map[goble.Notifier]struct{}
}

func newGattValue() *gattValue {
	return &gattValue{
		value: []byte{0},
		subs:  make(map[goble.Notifier]struct{}),
	}
}

func (v *gattValue) get() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.value...)
}

func (v *gattValue) set(b []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = append(v.value[:0], b...)

	var first error
	for n := range v.subs {
		if _, err := n.Write(v.value); err != nil && first == nil {
			first = fmt.Errorf("notify: %w", err)
		}
	}
	return first
}

func (v *gattValue) subscribe(n goble.Notifier) {
	v.mu.Lock()
	v.subs[n] = struct{}{}
	v.mu.Unlock()
}

func (v *gattValue) unsubscribe(n goble.Notifier) {
	v.mu.Lock()
	delete(v.subs, n)
	v.mu.Unlock()
}
