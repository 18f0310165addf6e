//go:build teensy36

package main

import (
	"device/arm"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"gopit/core"
)

// MK66FX1M0 PIT block. The channel register files repeat with a 0x10
// stride starting at base+0x100, so they are addressed as an array rather
// than by name.
const (
	pitBase   = 0x40037000
	pitChBase = pitBase + 0x100

	simSCGC6    = 0x4004803C
	simSCGC6PIT = 1 << 23

	// F_BUS at the stock 180 MHz core clock.
	busFreq = 60000000

	irqPIT0 = 48
	irqPIT1 = 49
	irqPIT2 = 50
)

// One channel's register file.
type pitChannel struct {
	LDVAL volatile.Register32
	CVAL  volatile.Register32
	TCTRL volatile.Register32
	TFLG  volatile.Register32
}

var (
	pitMCR = (*volatile.Register32)(unsafe.Pointer(uintptr(pitBase)))
	scgc6  = (*volatile.Register32)(unsafe.Pointer(uintptr(simSCGC6)))
	pitCh  = (*[4]pitChannel)(unsafe.Pointer(uintptr(pitChBase)))
)

// pitDriver implements core.Driver on the MK66 register file.
type pitDriver struct{}

func (pitDriver) BusFrequency() uint32 {
	return busFreq
}

// EnableModule opens the PIT clock gate and clears MDIS. Both are shared
// across channels and harmless to hit repeatedly.
func (pitDriver) EnableModule() {
	scgc6.SetBits(simSCGC6PIT)
	pitMCR.Set(0)
}

func (pitDriver) WriteLoad(channel uint8, cycles uint32) {
	pitCh[channel].LDVAL.Set(cycles)
}

func (pitDriver) ReadCurrent(channel uint8) uint32 {
	return pitCh[channel].CVAL.Get()
}

func (pitDriver) WriteControl(channel uint8, bits uint32) {
	pitCh[channel].TCTRL.Set(bits)
}

// ClearFlag acknowledges the expiry flag, which is write-one-to-clear.
func (pitDriver) ClearFlag(channel uint8) {
	pitCh[channel].TFLG.Set(1)
}

var pitIRQs = [core.NumChannels]uint32{irqPIT0, irqPIT1, irqPIT2}

func (pitDriver) EnableIRQ(channel uint8) {
	arm.EnableIRQ(pitIRQs[channel])
}

func (pitDriver) DisableIRQ(channel uint8) {
	arm.DisableIRQ(pitIRQs[channel])
}

// Vector trampolines, one per channel, bound at compile time. Channel 3 is
// left alone; board support code claims it for tone generation.
var (
	pitInt0 = interrupt.New(irqPIT0, func(interrupt.Interrupt) { core.Dispatch(0) })
	pitInt1 = interrupt.New(irqPIT1, func(interrupt.Interrupt) { core.Dispatch(1) })
	pitInt2 = interrupt.New(irqPIT2, func(interrupt.Interrupt) { core.Dispatch(2) })
)
