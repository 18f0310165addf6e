package core

// Driver is the register-level interface to the PIT hardware. The core never
// touches memory-mapped registers directly; each target supplies an
// implementation for its silicon, and the sim package supplies one for host
// tests.
type Driver interface {
	// BusFrequency returns the clock feeding the PIT counters, in Hz.
	// All period and frequency conversions are computed against it.
	BusFrequency() uint32

	// EnableModule opens the PIT clock gate and enables the module-wide
	// control register. Shared across channels and safe to call more
	// than once.
	EnableModule()

	// WriteLoad sets the channel's load value. The hardware latches a
	// new load at the next reload boundary, not mid-period.
	WriteLoad(channel uint8, cycles uint32)

	// ReadCurrent reads the channel's live down-counter.
	ReadCurrent(channel uint8) uint32

	// WriteControl writes the channel's control bits (CtrlEnable,
	// CtrlInterrupt). Writing zero and then a value with CtrlEnable set
	// forces a reload from the load register.
	WriteControl(channel uint8, bits uint32)

	// ClearFlag acknowledges the channel's pending expiry flag.
	ClearFlag(channel uint8)

	// EnableIRQ unmasks the channel's vector at the interrupt controller.
	EnableIRQ(channel uint8)

	// DisableIRQ masks the channel's vector at the interrupt controller.
	DisableIRQ(channel uint8)
}

// Channel control register bits, common to the Kinetis and i.MX RT PIT
// blocks.
const (
	CtrlEnable    = 1 << 0 // channel counts down while set
	CtrlInterrupt = 1 << 1 // raise the channel's vector on expiry
)

// Global singleton used by the timer channels.
var driver Driver

// SetDriver registers the register-level implementation. Target startup code
// (or a test) must call this before InitTimers.
func SetDriver(d Driver) {
	driver = d
}

// MustDriver returns the registered driver, panicking if none is set.
func MustDriver() Driver {
	if driver == nil {
		panic("PIT driver not configured")
	}
	return driver
}
