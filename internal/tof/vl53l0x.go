package tof

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// Register map subset.
const (
	regSysrangeStart         = 0x00
	regSystemInterruptClear  = 0x0B
	regResultInterruptStatus = 0x13
	regResultRange           = 0x1E
	regI2CSlaveAddress       = 0x8A
	regModelID               = 0xC0
	regPowerManagement       = 0x80
	regPageSelect            = 0xFF
	regInternalTuning        = 0x88
	regStopVariable          = 0x91

	modelID = 0xEE
)

// DefaultTimeout bounds a single measurement.
const DefaultTimeout = 100 * time.Millisecond

// VL53L0X is a time-of-flight sensor on an I2C bus.
type VL53L0X struct {
	bus     i2c.Bus
	dev     *i2c.Dev
	stop    byte
	timeout time.Duration
	now     func() time.Time
	poll    func(time.Duration)
}

// NewVL53L0X returns a driver for a sensor on bus. The sensor is not touched
// until Init.
func NewVL53L0X(bus i2c.Bus) *VL53L0X {
	return &VL53L0X{
		bus:     bus,
		timeout: DefaultTimeout,
		now:     time.Now,
		poll:    time.Sleep,
	}
}

// SetTimeout changes the measurement timeout.
func (s *VL53L0X) SetTimeout(d time.Duration) {
	s.timeout = d
}

// Init checks the model ID on DefaultAddress, moves the sensor to addr and
// caches the stop variable needed for single-shot ranging.
func (s *VL53L0X) Init(addr uint16) error {
	dev := &i2c.Dev{Bus: s.bus, Addr: DefaultAddress}

	id, err := readReg(dev, regModelID)
	if err != nil {
		return fmt.Errorf("read model id: %w", err)
	}
	if id != modelID {
		return fmt.Errorf("unexpected model id 0x%02x", id)
	}

	if addr != DefaultAddress {
		if err := writeReg(dev, regI2CSlaveAddress, byte(addr&0x7F)); err != nil {
			return fmt.Errorf("set address: %w", err)
		}
		dev = &i2c.Dev{Bus: s.bus, Addr: addr}
	}

	if err := writeRegs(dev,
		[2]byte{regInternalTuning, 0x00},
		[2]byte{regPowerManagement, 0x01},
		[2]byte{regPageSelect, 0x01},
		[2]byte{regSysrangeStart, 0x00},
	); err != nil {
		return fmt.Errorf("enter private page: %w", err)
	}
	stop, err := readReg(dev, regStopVariable)
	if err != nil {
		return fmt.Errorf("read stop variable: %w", err)
	}
	if err := writeRegs(dev,
		[2]byte{regSysrangeStart, 0x01},
		[2]byte{regPageSelect, 0x00},
		[2]byte{regPowerManagement, 0x00},
	); err != nil {
		return fmt.Errorf("leave private page: %w", err)
	}

	s.dev = dev
	s.stop = stop
	return nil
}

// Distance performs one single-shot measurement.
func (s *VL53L0X) Distance() (uint32, error) {
	if s.dev == nil {
		return 0, ErrNotInitialized
	}

	if err := writeRegs(s.dev,
		[2]byte{regPowerManagement, 0x01},
		[2]byte{regPageSelect, 0x01},
		[2]byte{regSysrangeStart, 0x00},
		[2]byte{regStopVariable, s.stop},
		[2]byte{regSysrangeStart, 0x01},
		[2]byte{regPageSelect, 0x00},
		[2]byte{regPowerManagement, 0x00},
		[2]byte{regSysrangeStart, 0x01},
	); err != nil {
		return 0, fmt.Errorf("start ranging: %w", err)
	}

	deadline := s.now().Add(s.timeout)
	if err := s.waitFor(deadline, regSysrangeStart, func(v byte) bool { return v&0x01 == 0 }); err != nil {
		return 0, err
	}
	if err := s.waitFor(deadline, regResultInterruptStatus, func(v byte) bool { return v&0x07 != 0 }); err != nil {
		return 0, err
	}

	var buf [2]byte
	if err := s.dev.Tx([]byte{regResultRange}, buf[:]); err != nil {
		return 0, fmt.Errorf("read range: %w", err)
	}
	if err := writeReg(s.dev, regSystemInterruptClear, 0x01); err != nil {
		return 0, fmt.Errorf("clear interrupt: %w", err)
	}
	return uint32(buf[0])<<8 | uint32(buf[1]), nil
}

func (s *VL53L0X) waitFor(deadline time.Time, reg byte, done func(byte) bool) error {
	for {
		v, err := readReg(s.dev, reg)
		if err != nil {
			return fmt.Errorf("poll 0x%02x: %w", reg, err)
		}
		if done(v) {
			return nil
		}
		if !s.now().Before(deadline) {
			return ErrTimeout
		}
		s.poll(time.Millisecond)
	}
}

func readReg(dev *i2c.Dev, reg byte) (byte, error) {
	var b [1]byte
	if err := dev.Tx([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeReg(dev *i2c.Dev, reg, v byte) error {
	return dev.Tx([]byte{reg, v}, nil)
}

func writeRegs(dev *i2c.Dev, pairs ...[2]byte) error {
	for _, p := range pairs {
		if err := writeReg(dev, p[0], p[1]); err != nil {
			return fmt.Errorf("write 0x%02x: %w", p[0], err)
		}
	}
	return nil
}
