//go:build linux

package ble

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// BlueZStack is a Stack on top of BlueZ via tinygo.org/x/bluetooth.
//
// BlueZ picks the advertising interval itself; Advertisement.Interval is
// not applied on this backend.
type BlueZStack struct {
	adapterID string
	adapter   *bluetooth.Adapter
	log       logrus.FieldLogger
	peers     peerFilter

	mu         sync.Mutex
	adv        *bluetooth.Advertisement
	configured bool
	advertised bool
	chars      []bluetooth.Characteristic
}

// NewBlueZStack returns a stack for the named adapter ("hci0").
func NewBlueZStack(adapterID string, log logrus.FieldLogger) *BlueZStack {
	return &BlueZStack{
		adapterID: adapterID,
		adapter:   bluetooth.NewAdapter(adapterID),
		log:       log,
	}
}

// Init enables the adapter on its own goroutine.
func (s *BlueZStack) Init(done func(error)) {
	go func() {
		if err := s.adapter.Enable(); err != nil {
			done(fmt.Errorf("enable adapter %s: %w", s.adapterID, err))
			return
		}
		done(nil)
	}()
}

// SetConnectHandler forwards connection events of the current peer in order.
func (s *BlueZStack) SetConnectHandler(h func(bool)) {
	events := newConnEvents(h)
	s.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if s.peers.accept(device.Address.String(), connected) {
			events.post(connected)
		}
	})
}

// AddService registers svc with read+notify single-byte characteristics.
func (s *BlueZStack) AddService(svc Service) ([]Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Handles point into chars, so it is sized once and never grown.
	chars := make([]bluetooth.Characteristic, len(svc.Characteristics))
	configs := make([]bluetooth.CharacteristicConfig, len(svc.Characteristics))
	handles := make([]Handle, len(svc.Characteristics))
	for i, c := range svc.Characteristics {
		configs[i] = bluetooth.CharacteristicConfig{
			Handle: &chars[i],
			UUID:   bluetooth.New16BitUUID(uint16(c.UUID)),
			Value:  []byte{0},
			Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
		}
		handles[i] = Handle(i)
	}

	if err := s.adapter.AddService(&bluetooth.Service{
		UUID:            bluetooth.New16BitUUID(uint16(svc.UUID)),
		Characteristics: configs,
	}); err != nil {
		return nil, fmt.Errorf("add service %s: %w", svc.UUID, err)
	}
	s.chars = chars
	return handles, nil
}

// StartAdvertising configures the advertisement once and (re)starts it.
func (s *BlueZStack) StartAdvertising(a Advertisement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.adv == nil {
		s.adv = s.adapter.DefaultAdvertisement()
	}
	// BlueZ advertisements are registered once; later calls only restart them.
	if !s.configured {
		warnIntervalIgnored(s.log, a.Interval)
		uuids := make([]bluetooth.UUID, len(a.ServiceUUIDs))
		for i, u := range a.ServiceUUIDs {
			uuids[i] = bluetooth.New16BitUUID(uint16(u))
		}
		if err := s.adv.Configure(bluetooth.AdvertisementOptions{
			AdvertisementType: bluetooth.AdvertisingTypeInd,
			LocalName:         a.Name,
			ServiceUUIDs:      uuids,
		}); err != nil {
			return fmt.Errorf("configure advertisement: %w", err)
		}
		s.configured = true
	}

	if s.advertised {
		_ = s.adv.Stop()
	}
	if err := s.adv.Start(); err != nil {
		s.advertised = false
		return fmt.Errorf("start advertisement: %w", err)
	}
	s.advertised = true
	return nil
}

// UpdateValue writes the characteristic; BlueZ notifies subscribed peers.
func (s *BlueZStack) UpdateValue(h Handle, value []byte) error {
	s.mu.Lock()
	if int(h) >= len(s.chars) {
		s.mu.Unlock()
		return fmt.Errorf("unknown handle %d", h)
	}
	c := &s.chars[h]
	s.mu.Unlock()

	if _, err := c.Write(value); err != nil {
		return fmt.Errorf("write handle %d: %w", h, err)
	}
	return nil
}

func warnIntervalIgnored(log logrus.FieldLogger, d time.Duration) {
	if d == 0 || log == nil {
		return
	}
	log.WithField("interval", d).Warn("bluez: advertising interval cannot be set, controller default applies (use backend hci)")
}
