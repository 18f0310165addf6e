// Package serial abstracts the byte pipe to a board running the monitor
// firmware, so the link layer can run over a real port, a pseudo-terminal
// or an in-memory script in tests.
package serial

import "io"

// Port is a serial connection.
type Port interface {
	io.ReadWriteCloser

	// Flush drops any buffered but untransmitted data.
	Flush() error
}

// Config holds port settings.
type Config struct {
	// Device path, e.g. "/dev/ttyACM0" or "COM3".
	Device string

	// Baud rate. USB CDC links ignore it, UART bridges do not.
	Baud int

	// ReadTimeout in milliseconds keeps reads from blocking forever. The
	// link reader treats an expired read as idle, not as an error.
	ReadTimeout int
}

// DefaultConfig returns settings matching the firmware defaults.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}
