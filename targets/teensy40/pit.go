//go:build teensy40

package main

import (
	"device/arm"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"gopit/core"
)

// i.MX RT1062 PIT block. The channel register files match the Kinetis
// layout; the plumbing differs, with one clock gate in the CCM and a
// single vector shared by all four channels.
const (
	pitBase   = 0x40084000
	pitChBase = pitBase + 0x100

	ccmCCGR1    = 0x400FC06C
	ccgr1PITRun = 0x3 << 12 // CG6: PIT clocked in run and wait modes

	// PERCLK routed from the 24 MHz oscillator, the Teensyduino default.
	perclkFreq = 24000000

	irqPIT = 122
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
	ccgr1  = (*volatile.Register32)(unsafe.Pointer(uintptr(ccmCCGR1)))
	pitCh  = (*[4]pitChannel)(unsafe.Pointer(uintptr(pitChBase)))
)

// pitDriver implements core.Driver on the RT1062 register file.
type pitDriver struct{}

func (pitDriver) BusFrequency() uint32 {
	return perclkFreq
}

func (pitDriver) EnableModule() {
	ccgr1.SetBits(ccgr1PITRun)
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

// vectorUsers tracks which channels want the shared vector. Touched only
// from thread context; the vector itself never changes it.
var vectorUsers uint8

func (pitDriver) EnableIRQ(channel uint8) {
	vectorUsers |= 1 << channel
	arm.EnableIRQ(irqPIT)
}

func (pitDriver) DisableIRQ(channel uint8) {
	vectorUsers &^= 1 << channel
	if vectorUsers == 0 {
		arm.DisableIRQ(irqPIT)
	}
}

// The shared vector fans out to whichever channels have a flag raised and
// interrupts enabled. A masked channel's flag stays latched for later.
var pitInt = interrupt.New(irqPIT, func(interrupt.Interrupt) {
	for i := uint8(0); i < core.NumChannels; i++ {
		c := &pitCh[i]
		if c.TFLG.Get()&1 != 0 && c.TCTRL.Get()&core.CtrlInterrupt != 0 {
			core.Dispatch(i)
		}
	}
})
