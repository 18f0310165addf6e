// Package core implements the channel driver for the PIT, the periodic
// countdown block found on Kinetis and i.MX RT parts. Each channel counts
// down from a load value at the bus clock and raises its vector when it
// hits zero. The driver owns channel configuration, the start/stop
// lifecycle and the callback dispatched on every expiry.
package core

import "math"

// Load value bounds enforced by SetValue.
const (
	// ValueMin is the smallest accepted load value. It caps the interrupt
	// rate near 75 kHz on a 60 MHz bus; shorter periods expire faster
	// than the vector can be serviced.
	ValueMin = 799

	// ValueMax is the largest accepted load value. The all-ones load is
	// documented as unstable on this block, so it is pulled back by one.
	ValueMax = math.MaxUint32 - 1
)

// Timer is one PIT channel. The zero value is unusable; channels are
// initialized by InitTimers and obtained through Timer0..Timer2 or Channel.
type Timer struct {
	channel  uint8
	value    uint32
	callback func()
	running  bool
}

func (t *Timer) init(channel uint8) {
	t.channel = channel
	t.callback = nil
	t.running = false
	driver.EnableModule()
	t.SetValue(busHz) // one-second default period
}

// SetValue sets the countdown length in bus clock cycles. A channel counts
// value+1 cycles per period. Out-of-range values are clamped into
// [ValueMin, ValueMax] rather than rejected. On a running channel the new
// value takes effect at the next reload boundary, not mid-period.
func (t *Timer) SetValue(cycles uint32) {
	if cycles == math.MaxUint32 {
		cycles = ValueMax
	} else if cycles < ValueMin {
		cycles = ValueMin
	}
	t.value = cycles
	driver.WriteLoad(t.channel, cycles)
}

// Value returns the load value most recently accepted by SetValue.
func (t *Timer) Value() uint32 {
	return t.value
}

// SetPeriod sets the countdown length in seconds. On a 60 MHz bus the
// usable range runs from about 13 us up to 71 s; out-of-range requests are
// clamped like SetValue.
func (t *Timer) SetPeriod(seconds float64) {
	t.SetValue(saturate(round(float64(busHz)*seconds) - 1))
}

// Period returns the configured countdown length in seconds.
func (t *Timer) Period() float64 {
	return (float64(t.value) + 1) / float64(busHz)
}

// SetFrequency sets the countdown rate in hertz. On a 60 MHz bus the
// usable range runs from about 14 mHz up to 75 kHz; out-of-range requests
// are clamped like SetValue.
func (t *Timer) SetFrequency(hz float64) {
	t.SetValue(saturate(round(float64(busHz)/hz) - 1))
}

// Frequency returns the configured countdown rate in hertz.
func (t *Timer) Frequency() float64 {
	return float64(busHz) / (float64(t.value) + 1)
}

// Start arms the channel and attaches the callback to run on every expiry.
// Starting an already running channel swaps the callback without disturbing
// the countdown in progress.
func (t *Timer) Start(fn func()) {
	// A func value is two words; mask so an expiry during reassignment
	// cannot observe a half-written callback.
	state := disableInterrupts()
	t.callback = fn
	t.running = true
	restoreInterrupts(state)
	driver.WriteControl(t.channel, CtrlEnable|CtrlInterrupt)
	driver.EnableIRQ(t.channel)
}

// Stop freezes the channel and silences its vector. The callback stays
// attached and runs again after the next Start.
func (t *Timer) Stop() {
	driver.DisableIRQ(t.channel)
	driver.WriteControl(t.channel, 0)
	t.running = false
}

// Reset restarts the countdown from the full load value. A stopped channel
// stays stopped; a running one begins a fresh period.
func (t *Timer) Reset() {
	driver.WriteControl(t.channel, 0)
	if t.running {
		driver.WriteControl(t.channel, CtrlEnable|CtrlInterrupt)
	}
}

// Running reports whether the channel is armed.
func (t *Timer) Running() bool {
	return t.running
}

// Current reads the live down-counter.
func (t *Timer) Current() uint32 {
	return driver.ReadCurrent(t.channel)
}

// Remains returns the time left in the current period, in seconds.
func (t *Timer) Remains() float64 {
	return float64(driver.ReadCurrent(t.channel)) / float64(busHz)
}

// service acknowledges one expiry and runs the callback. Called from the
// channel's vector; the flag must be cleared before the callback so a
// re-fire during a slow callback is latched rather than lost.
func (t *Timer) service() {
	recordFire(t.channel, driver.ReadCurrent(t.channel))
	driver.ClearFlag(t.channel)
	if t.callback != nil {
		t.callback()
	}
}

// round applies round-half-up. Periods tuned against existing hardware
// depend on this exact policy; round-to-even would move some of them by
// one cycle.
func round(x float64) float64 {
	return math.Floor(x + 0.5)
}

// saturate narrows a float64 to uint32 the way the FPU's vcvt instruction
// does: NaN and negative inputs collapse to zero, overflow pins to the
// maximum. Out-of-range float conversions are undefined in Go, so the
// pinning has to be explicit.
func saturate(x float64) uint32 {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	if x >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(x)
}
