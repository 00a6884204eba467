// Package tof talks to the time-of-flight distance sensors.
//
// Only the collaborator contract the beacon needs is implemented: assign an
// I2C address at bring-up and take a single-shot range in millimeters.
// Factory tuning and calibration are left at the sensor's power-on defaults.
package tof

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sweeney/presence-beacon/internal/gpio"
)

// DefaultAddress is the 7-bit address every sensor answers on after reset.
const DefaultAddress uint16 = 0x29

var (
	// ErrNotInitialized is returned by Distance before a successful Init.
	ErrNotInitialized = errors.New("tof: sensor not initialized")

	// ErrTimeout is returned when a measurement does not complete in time.
	ErrTimeout = errors.New("tof: measurement timeout")
)

// Sensor is a distance sensor.
type Sensor interface {
	// Init brings the sensor up and moves it to addr.
	Init(addr uint16) error

	// Distance takes one measurement in millimeters. It blocks for at most
	// the driver's measurement timeout.
	Distance() (uint32, error)
}

// Unit is one sensor with its shutdown line and target address.
type Unit struct {
	Name     string
	Sensor   Sensor
	Shutdown gpio.Line
	Address  uint16
}

// BootDelay is how long a sensor needs after its shutdown line is released.
const BootDelay = 2 * time.Millisecond

// BringUp initializes sensors that share one bus and all boot on DefaultAddress.
// Every sensor is held in shutdown, then released one at a time and moved to
// its address. Sensors leaving DefaultAddress are brought up first so that no
// two live sensors ever answer on the same address.
//
// The returned slice has one entry per unit, nil on success. A failed unit does
// not stop the others.
func BringUp(units []Unit, sleep func(time.Duration)) []error {
	errs := make([]error, len(units))

	for i, u := range units {
		if err := u.Shutdown.Set(false); err != nil {
			errs[i] = fmt.Errorf("%s: hold in shutdown: %w", u.Name, err)
		}
	}
	sleep(BootDelay)

	order := make([]int, len(units))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return units[order[a]].Address != DefaultAddress && units[order[b]].Address == DefaultAddress
	})

	for _, i := range order {
		if errs[i] != nil {
			continue
		}
		u := units[i]
		if err := u.Shutdown.Set(true); err != nil {
			errs[i] = fmt.Errorf("%s: release shutdown: %w", u.Name, err)
			continue
		}
		sleep(BootDelay)
		if err := u.Sensor.Init(u.Address); err != nil {
			errs[i] = fmt.Errorf("%s: init at 0x%02x: %w", u.Name, u.Address, err)
			// Park it again so it cannot collide with the next sensor on 0x29.
			_ = u.Shutdown.Set(false)
		}
	}
	return errs
}
