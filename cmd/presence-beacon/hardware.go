package main

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/presence-beacon/internal/config"
	"github.com/sweeney/presence-beacon/internal/gpio"
	"github.com/sweeney/presence-beacon/internal/tof"
)

// hardware is every sensor and output line the beacon owns.
type hardware struct {
	distance1 tof.Sensor
	distance2 tof.Sensor
	motion    gpio.Reader
	led       gpio.Line

	closers []io.Closer
}

// openHardware opens the I2C bus and GPIO lines and brings both distance
// sensors up. A sensor that fails bring-up is logged and left in shutdown;
// its channel then reads as a fault every cycle. Failing to open the bus or
// a line is an error.
func openHardware(cfg *config.Config, log logrus.FieldLogger) (_ *hardware, err error) {
	hw := &hardware{}
	defer func() {
		if err != nil {
			hw.Close()
		}
	}()

	bus, err := tof.OpenBus(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("init i2c: %w", err)
	}
	hw.closers = append(hw.closers, bus)

	xshut1, err := gpio.NewRealLine(cfg.GPIOChip, cfg.PinShutdown1, false)
	if err != nil {
		return nil, fmt.Errorf("init shutdown line 1: %w", err)
	}
	hw.closers = append(hw.closers, xshut1)

	xshut2, err := gpio.NewRealLine(cfg.GPIOChip, cfg.PinShutdown2, false)
	if err != nil {
		return nil, fmt.Errorf("init shutdown line 2: %w", err)
	}
	hw.closers = append(hw.closers, xshut2)

	hw.distance1 = tof.NewVL53L0X(bus)
	hw.distance2 = tof.NewVL53L0X(bus)
	if bringUp(log, []tof.Unit{
		{Name: "distance1", Sensor: hw.distance1, Shutdown: xshut1, Address: cfg.Distance1Address},
		{Name: "distance2", Sensor: hw.distance2, Shutdown: xshut2, Address: cfg.Distance2Address},
	}) == 0 {
		log.Warn("no distance sensor came up, only motion channels can report presence")
	}

	motion, err := gpio.NewRealReader(cfg.GPIOChip, cfg.PinPIR1, cfg.PinPIR2)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	hw.motion = motion
	hw.closers = append(hw.closers, motion)

	if cfg.PinLED >= 0 {
		led, err := gpio.NewRealLine(cfg.GPIOChip, cfg.PinLED, false)
		if err != nil {
			return nil, fmt.Errorf("init led: %w", err)
		}
		hw.led = led
		hw.closers = append(hw.closers, led)
	}

	return hw, nil
}

// bringUp runs the shared-bus bring-up and logs each outcome. It reports
// how many sensors came up.
func bringUp(log logrus.FieldLogger, units []tof.Unit) int {
	up := 0
	for i, err := range tof.BringUp(units, time.Sleep) {
		entry := log.WithFields(logrus.Fields{
			"sensor":  units[i].Name,
			"address": fmt.Sprintf("0x%02x", units[i].Address),
		})
		if err != nil {
			entry.WithError(err).Warn("distance sensor unavailable, channel will report absent")
			continue
		}
		up++
		entry.Info("distance sensor ready")
	}
	return up
}

// Close releases everything in reverse order of acquisition.
func (hw *hardware) Close() error {
	for i := len(hw.closers) - 1; i >= 0; i-- {
		hw.closers[i].Close()
	}
	hw.closers = nil
	return nil
}
