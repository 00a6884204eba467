// Package ble owns the GATT service the beacon exposes and the session
// lifecycle around it: stack bring-up, service registration, advertising
// and re-advertising after a peer disconnects.
package ble

import (
	"fmt"
	"time"

	"github.com/sweeney/presence-beacon/internal/logic"
)

// UUID16 is a 16-bit Bluetooth UUID.
type UUID16 uint16

// String formats the UUID as 0xABCD.
func (u UUID16) String() string {
	return fmt.Sprintf("0x%04X", uint16(u))
}

// Fixed identities of the presence service.
const (
	ServiceUUID   UUID16 = 0xAB00
	Distance1UUID UUID16 = 0xAB01
	Distance2UUID UUID16 = 0xAB02
	Motion1UUID   UUID16 = 0xAB03
	Motion2UUID   UUID16 = 0xAB04
)

// Advertising defaults.
const (
	DefaultName        = "OMG"
	DefaultAdvInterval = 100 * time.Millisecond
)

// Characteristic is a read+notify, single-byte characteristic bound to a channel.
type Characteristic struct {
	UUID    UUID16
	Channel logic.Channel
}

// Service is the GATT service definition handed to the stack.
type Service struct {
	UUID            UUID16
	Characteristics []Characteristic
}

// PresenceService returns the service with its four characteristics in channel order.
func PresenceService() Service {
	return Service{
		UUID: ServiceUUID,
		Characteristics: []Characteristic{
			{UUID: Distance1UUID, Channel: logic.Distance1},
			{UUID: Distance2UUID, Channel: logic.Distance2},
			{UUID: Motion1UUID, Channel: logic.Motion1},
			{UUID: Motion2UUID, Channel: logic.Motion2},
		},
	}
}

// ChannelUUIDs returns the characteristic UUID bound to each channel.
func (s Service) ChannelUUIDs() [logic.NumChannels]UUID16 {
	var out [logic.NumChannels]UUID16
	for _, c := range s.Characteristics {
		if c.Channel >= 0 && int(c.Channel) < logic.NumChannels {
			out[c.Channel] = c.UUID
		}
	}
	return out
}

// Validate checks that every channel is bound exactly once and UUIDs are unique.
func (s Service) Validate() error {
	if len(s.Characteristics) != logic.NumChannels {
		return fmt.Errorf("service %s: %d characteristics, want %d", s.UUID, len(s.Characteristics), logic.NumChannels)
	}
	var seenCh [logic.NumChannels]bool
	seenUUID := map[UUID16]bool{s.UUID: true}
	for _, c := range s.Characteristics {
		if c.Channel < 0 || int(c.Channel) >= logic.NumChannels {
			return fmt.Errorf("characteristic %s: unknown channel %d", c.UUID, int(c.Channel))
		}
		if seenCh[c.Channel] {
			return fmt.Errorf("characteristic %s: channel %s bound twice", c.UUID, c.Channel)
		}
		if seenUUID[c.UUID] {
			return fmt.Errorf("characteristic %s: duplicate uuid", c.UUID)
		}
		seenCh[c.Channel] = true
		seenUUID[c.UUID] = true
	}
	return nil
}

// Advertisement is the advertising configuration. The payload carries the
// LE-only general-discoverable flags, the complete local name and the
// complete list of 16-bit service UUIDs; the type is connectable undirected.
type Advertisement struct {
	Name         string
	ServiceUUIDs []UUID16
	Interval     time.Duration
}

// DefaultAdvertisement advertises name with the presence service UUID.
func DefaultAdvertisement(name string) Advertisement {
	return Advertisement{
		Name:         name,
		ServiceUUIDs: []UUID16{ServiceUUID},
		Interval:     DefaultAdvInterval,
	}
}

// Handle identifies a registered characteristic value inside a stack.
type Handle uint16

// Binding ties a channel to its characteristic.
type Binding struct {
	Channel logic.Channel
	UUID    UUID16
	Handle  Handle
}

// Bindings is indexed by channel. It is fixed once the service is registered.
type Bindings [logic.NumChannels]Binding

func bind(svc Service, handles []Handle) (Bindings, error) {
	var b Bindings
	if len(handles) != len(svc.Characteristics) {
		return b, fmt.Errorf("stack returned %d handles for %d characteristics", len(handles), len(svc.Characteristics))
	}
	for i, c := range svc.Characteristics {
		b[c.Channel] = Binding{Channel: c.Channel, UUID: c.UUID, Handle: handles[i]}
	}
	return b, nil
}
