//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the PIR lines from actual hardware using the Linux GPIO character device.
type RealReader struct {
	chip *gpiocdev.Chip
	pir1 *gpiocdev.Line
	pir2 *gpiocdev.Line
}

// NewRealReader requests both PIR lines as inputs on the named chip.
func NewRealReader(chipName string, pinPIR1, pinPIR2 int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	// PIR modules drive their output push-pull, so no bias is applied.
	pir1, err := chip.RequestLine(pinPIR1, gpiocdev.AsInput, gpiocdev.WithBiasDisabled)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request PIR1 pin %d: %w", pinPIR1, err)
	}

	pir2, err := chip.RequestLine(pinPIR2, gpiocdev.AsInput, gpiocdev.WithBiasDisabled)
	if err != nil {
		pir1.Close()
		chip.Close()
		return nil, fmt.Errorf("request PIR2 pin %d: %w", pinPIR2, err)
	}

	return &RealReader{
		chip: chip,
		pir1: pir1,
		pir2: pir2,
	}, nil
}

// Read returns the raw PIR levels. A PIR output is active high.
func (r *RealReader) Read() (bool, bool, error) {
	v1, err := r.pir1.Value()
	if err != nil {
		return false, false, fmt.Errorf("read PIR1 pin: %w", err)
	}

	v2, err := r.pir2.Value()
	if err != nil {
		return false, false, fmt.Errorf("read PIR2 pin: %w", err)
	}

	return v1 != 0, v2 != 0, nil
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	var errs []error

	if r.pir1 != nil {
		if err := r.pir1.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close PIR1 pin: %w", err))
		}
	}
	if r.pir2 != nil {
		if err := r.pir2.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close PIR2 pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealLine is an output line on the Linux GPIO character device.
type RealLine struct {
	line *gpiocdev.Line
	pin  int
}

// NewRealLine requests pin as an output driven to the initial level.
func NewRealLine(chipName string, pin int, initial bool) (*RealLine, error) {
	line, err := gpiocdev.RequestLine(chipName, pin, gpiocdev.AsOutput(level(initial)))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &RealLine{line: line, pin: pin}, nil
}

// Set drives the line.
func (l *RealLine) Set(high bool) error {
	if err := l.line.SetValue(level(high)); err != nil {
		return fmt.Errorf("set pin %d: %w", l.pin, err)
	}
	return nil
}

// Close reconfigures the line as an input before releasing it so the pin
// does not keep driving an attached sensor after the process exits.
func (l *RealLine) Close() error {
	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.pin, err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", l.pin, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func level(high bool) int {
	if high {
		return 1
	}
	return 0
}
