// Package gpio provides GPIO access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

// Reader reads the two PIR motion lines.
type Reader interface {
	// Read returns the raw levels of PIR 1 and PIR 2 (true = motion).
	Read() (bool, bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Line is a single output line (sensor shutdown pin, activity LED).
type Line interface {
	// Set drives the line high (true) or low (false).
	Set(high bool) error

	// Close releases the line.
	Close() error
}

// NopLine is a Line that does nothing. Used when an optional output is disabled.
type NopLine struct{}

// Set does nothing.
func (NopLine) Set(bool) error { return nil }

// Close does nothing.
func (NopLine) Close() error { return nil }
