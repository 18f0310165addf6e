// Package sim emulates the PIT register file and its slice of the
// interrupt controller, so the channel driver can run on a host machine.
// Countdown time is driven explicitly through Advance, in bus cycles.
package sim

import "gopit/core"

// channel mirrors one hardware channel's registers plus its vector mask.
type channel struct {
	load    uint32
	current uint32
	ctrl    uint32
	flag    bool
	vector  bool
}

// Driver is a software PIT block implementing core.Driver.
type Driver struct {
	busHz   uint32
	enabled bool
	enables int
	ch      [core.NumChannels]channel
}

// New returns a powered-off PIT clocked at busHz.
func New(busHz uint32) *Driver {
	return &Driver{busHz: busHz}
}

func (d *Driver) BusFrequency() uint32 {
	return d.busHz
}

// EnableModule powers the block. The real gate is shared and harmless to
// hit repeatedly; the call count is kept so tests can assert that pattern.
func (d *Driver) EnableModule() {
	d.enabled = true
	d.enables++
}

// Enables returns how many times EnableModule has been called.
func (d *Driver) Enables() int {
	return d.enables
}

// ModuleEnabled reports whether the block has been powered.
func (d *Driver) ModuleEnabled() bool {
	return d.enabled
}

func (d *Driver) WriteLoad(chn uint8, cycles uint32) {
	d.ch[chn].load = cycles
}

func (d *Driver) ReadCurrent(chn uint8) uint32 {
	return d.ch[chn].current
}

// WriteControl updates the channel control bits. An enable edge latches
// the load value into the counter, as the hardware does; raising the
// interrupt bit with a flag already latched delivers it.
func (d *Driver) WriteControl(chn uint8, bits uint32) {
	c := &d.ch[chn]
	if bits&core.CtrlEnable != 0 && c.ctrl&core.CtrlEnable == 0 {
		c.current = c.load
	}
	risingTIE := bits&core.CtrlInterrupt != 0 && c.ctrl&core.CtrlInterrupt == 0
	c.ctrl = bits
	if risingTIE {
		d.deliver(chn)
	}
}

func (d *Driver) ClearFlag(chn uint8) {
	d.ch[chn].flag = false
}

// EnableIRQ unmasks the channel's vector. A flag latched while masked is
// delivered now, matching the controller's pending semantics.
func (d *Driver) EnableIRQ(chn uint8) {
	d.ch[chn].vector = true
	d.deliver(chn)
}

func (d *Driver) DisableIRQ(chn uint8) {
	d.ch[chn].vector = false
}

// Advance runs every enabled channel forward by the given number of bus
// cycles, firing expiries along the way. A channel spends current+1 cycles
// to reach its reload boundary, where the load register is latched.
// Channels advance one at a time; cross-channel ordering inside a single
// Advance is not modeled.
func (d *Driver) Advance(cycles uint64) {
	for i := range d.ch {
		d.advanceChannel(uint8(i), cycles)
	}
}

func (d *Driver) advanceChannel(chn uint8, cycles uint64) {
	c := &d.ch[chn]
	// Re-check the enable bit every lap: a callback can stop or reset the
	// channel mid-advance.
	for c.ctrl&core.CtrlEnable != 0 && cycles > 0 {
		toReload := uint64(c.current) + 1
		if cycles < toReload {
			c.current -= uint32(cycles)
			return
		}
		cycles -= toReload
		c.current = c.load
		c.flag = true
		d.deliver(chn)
	}
}

// deliver models the interrupt controller: a latched flag reaches the
// dispatcher only while both the channel interrupt bit and the vector are
// enabled.
func (d *Driver) deliver(chn uint8) {
	c := &d.ch[chn]
	if c.flag && c.ctrl&core.CtrlInterrupt != 0 && c.vector {
		core.Dispatch(chn)
	}
}
