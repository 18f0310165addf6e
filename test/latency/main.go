//go:build teensy36

// PIT dispatch latency measurement for the Teensy 3.6
//
// Runs channel 0 at 1kHz and samples how far the counter has run past
// the reload point by the time the Go callback executes. That distance
// is the full dispatch cost: vector entry, the runtime trampoline and
// the handler prologue. Run it before trusting periods near the minimum
// load.
//
// Flash with: tinygo flash -target=teensy36 ./test/latency

package main

import (
	"device/arm"
	"runtime/interrupt"
	"runtime/volatile"
	"time"
	"unsafe"

	"gopit/core"
)

// MK66 PIT register plumbing, same layout as targets/teensy36. The test
// program carries its own copy so it flashes standalone.
const (
	pitBase   = 0x40037000
	pitChBase = pitBase + 0x100

	simSCGC6    = 0x4004803C
	simSCGC6PIT = 1 << 23

	busFreq = 60000000

	irqPIT0 = 48
	irqPIT1 = 49
	irqPIT2 = 50
)

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

type pitDriver struct{}

func (pitDriver) BusFrequency() uint32 { return busFreq }

func (pitDriver) EnableModule() {
	scgc6.SetBits(simSCGC6PIT)
	pitMCR.Set(0)
}

func (pitDriver) WriteLoad(channel uint8, cycles uint32)  { pitCh[channel].LDVAL.Set(cycles) }
func (pitDriver) ReadCurrent(channel uint8) uint32        { return pitCh[channel].CVAL.Get() }
func (pitDriver) WriteControl(channel uint8, bits uint32) { pitCh[channel].TCTRL.Set(bits) }
func (pitDriver) ClearFlag(channel uint8)                 { pitCh[channel].TFLG.Set(1) }

var pitIRQs = [core.NumChannels]uint32{irqPIT0, irqPIT1, irqPIT2}

func (pitDriver) EnableIRQ(channel uint8)  { arm.EnableIRQ(pitIRQs[channel]) }
func (pitDriver) DisableIRQ(channel uint8) { arm.DisableIRQ(pitIRQs[channel]) }

var (
	pitInt0 = interrupt.New(irqPIT0, func(interrupt.Interrupt) { core.Dispatch(0) })
	pitInt1 = interrupt.New(irqPIT1, func(interrupt.Interrupt) { core.Dispatch(1) })
	pitInt2 = interrupt.New(irqPIT2, func(interrupt.Interrupt) { core.Dispatch(2) })
)

const sampleTarget = 1000

var (
	samples     [sampleTarget]uint32
	sampleCount uint32
)

func main() {
	// Give USB CDC time to enumerate so the report is not lost.
	time.Sleep(1500 * time.Millisecond)
	println("PIT dispatch latency, channel 0 at 1kHz")
	println("Samples:", sampleTarget)

	core.SetDriver(pitDriver{})
	core.InitTimers()

	timer := core.Timer0
	timer.SetFrequency(1000)
	load := timer.Value()

	// The callback parks itself once the buffer is full; the main loop
	// reports and rearms it. 1000 samples at 1kHz is one report a second.
	timer.Start(func() {
		n := sampleCount
		if n >= sampleTarget {
			return
		}
		samples[n] = load - timer.Current()
		sampleCount = n + 1
	})

	for {
		for sampleCount < sampleTarget {
			time.Sleep(10 * time.Millisecond)
		}
		report()
		sampleCount = 0
	}
}

func report() {
	var min uint32 = 0xFFFFFFFF
	var max uint32 = 0
	var total uint64 = 0
	for _, s := range samples {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
		total += uint64(s)
	}
	avg := uint32(total / sampleTarget)

	sorted := make([]uint32, len(samples))
	copy(sorted, samples[:])
	bubbleSort(sorted)
	p50 := sorted[len(sorted)*50/100]
	p90 := sorted[len(sorted)*90/100]
	p99 := sorted[len(sorted)*99/100]

	println("\nResults:")
	println("  Min:", min, "cycles (", cyclesToNs(min), "ns )")
	println("  Avg:", avg, "cycles (", cyclesToNs(avg), "ns )")
	println("  Max:", max, "cycles (", cyclesToNs(max), "ns )")
	println("  P50:", p50, "cycles")
	println("  P90:", p90, "cycles")
	println("  P99:", p99, "cycles")
	println("  Jitter (max-min):", max-min, "cycles")

	if max-min < 120 {
		println("Low jitter, periods near the minimum load stay stable")
	} else {
		println("High jitter, keep periods well above the minimum load")
	}
}

func cyclesToNs(cycles uint32) uint32 {
	return uint32(uint64(cycles) * 1000000000 / busFreq)
}

func bubbleSort(arr []uint32) {
	n := len(arr)
	for i := 0; i < n-1; i++ {
		for j := 0; j < n-i-1; j++ {
			if arr[j] > arr[j+1] {
				arr[j], arr[j+1] = arr[j+1], arr[j]
			}
		}
	}
}
