package core

import (
	"math"
	"testing"
)

type ctrlWrite struct {
	channel uint8
	bits    uint32
}

// mockDriver records register traffic so tests can assert exactly what the
// channel logic asked the hardware to do.
type mockDriver struct {
	busHz      uint32
	enables    int
	load       [NumChannels]uint32
	current    [NumChannels]uint32
	irq        [NumChannels]bool
	flagClears [NumChannels]int
	ctrlWrites []ctrlWrite
}

func (m *mockDriver) BusFrequency() uint32 { return m.busHz }

func (m *mockDriver) EnableModule() { m.enables++ }

func (m *mockDriver) WriteLoad(channel uint8, cycles uint32) { m.load[channel] = cycles }

func (m *mockDriver) ReadCurrent(channel uint8) uint32 { return m.current[channel] }

func (m *mockDriver) WriteControl(channel uint8, bits uint32) {
	m.ctrlWrites = append(m.ctrlWrites, ctrlWrite{channel, bits})
}

func (m *mockDriver) ClearFlag(channel uint8) { m.flagClears[channel]++ }

func (m *mockDriver) EnableIRQ(channel uint8) { m.irq[channel] = true }

func (m *mockDriver) DisableIRQ(channel uint8) { m.irq[channel] = false }

// lastCtrl returns the most recent control write for a channel, or zero.
func (m *mockDriver) lastCtrl(channel uint8) uint32 {
	for i := len(m.ctrlWrites) - 1; i >= 0; i-- {
		if m.ctrlWrites[i].channel == channel {
			return m.ctrlWrites[i].bits
		}
	}
	return 0
}

func newMock(t *testing.T) *mockDriver {
	t.Helper()
	m := &mockDriver{busHz: 60000000}
	SetDriver(m)
	InitTimers()
	return m
}

func TestInitDefaults(t *testing.T) {
	m := newMock(t)

	if m.enables != NumChannels {
		t.Errorf("EnableModule called %d times, want %d", m.enables, NumChannels)
	}
	for i := uint8(0); i < NumChannels; i++ {
		if got := Channel(i).Value(); got != m.busHz {
			t.Errorf("channel %d default value %d, want bus frequency %d", i, got, m.busHz)
		}
		if m.load[i] != m.busHz {
			t.Errorf("channel %d load register %d, want %d", i, m.load[i], m.busHz)
		}
	}
	// A channel that was never started must stay disarmed.
	if len(m.ctrlWrites) != 0 {
		t.Errorf("init wrote control registers: %v", m.ctrlWrites)
	}
	for i, armed := range m.irq {
		if armed {
			t.Errorf("channel %d vector enabled without Start", i)
		}
	}
}

func TestChannelHandles(t *testing.T) {
	newMock(t)

	if Channel(0) != Timer0 || Channel(1) != Timer1 || Channel(2) != Timer2 {
		t.Error("Channel does not return the fixed handles")
	}
}

func TestSetValueRoundTrip(t *testing.T) {
	m := newMock(t)

	Timer0.SetValue(59999)
	if got := Timer0.Value(); got != 59999 {
		t.Errorf("Value() = %d, want 59999", got)
	}
	if m.load[0] != 59999 {
		t.Errorf("load register %d, want 59999", m.load[0])
	}
}

func TestSetValueClamps(t *testing.T) {
	m := newMock(t)

	testCases := []struct {
		in   uint32
		want uint32
	}{
		{math.MaxUint32, ValueMax},
		{ValueMax, ValueMax},
		{ValueMin, ValueMin},
		{ValueMin - 1, ValueMin},
		{0, ValueMin},
	}

	for _, tc := range testCases {
		Timer1.SetValue(tc.in)
		if got := Timer1.Value(); got != tc.want {
			t.Errorf("SetValue(%d): Value() = %d, want %d", tc.in, got, tc.want)
		}
		if m.load[1] != tc.want {
			t.Errorf("SetValue(%d): load register %d, want %d", tc.in, m.load[1], tc.want)
		}
	}
}

func TestSetValueDoesNotDisturbOtherChannels(t *testing.T) {
	m := newMock(t)

	Timer0.SetValue(100000)
	Timer1.SetValue(200000)
	if m.load[0] != 100000 || m.load[1] != 200000 {
		t.Errorf("load registers %v bled across channels", m.load)
	}
	if m.load[2] != m.busHz {
		t.Errorf("untouched channel load changed to %d", m.load[2])
	}
}

func TestPeriodRoundTrip(t *testing.T) {
	newMock(t)

	Timer0.SetPeriod(0.25)
	if got := Timer0.Value(); got != 14999999 {
		t.Errorf("SetPeriod(0.25s): value %d, want 14999999", got)
	}
	if got := Timer0.Period(); got != 0.25 {
		t.Errorf("Period() = %g, want 0.25", got)
	}
}

func TestFrequencyRoundTrip(t *testing.T) {
	newMock(t)

	Timer0.SetFrequency(1000)
	if got := Timer0.Value(); got != 59999 {
		t.Errorf("SetFrequency(1kHz): value %d, want 59999", got)
	}
	if got := Timer0.Frequency(); got != 1000 {
		t.Errorf("Frequency() = %g, want 1000", got)
	}
}

func TestConversionEdges(t *testing.T) {
	newMock(t)

	// A zero or negative period collapses to the low clamp rather than
	// wrapping around to a huge window.
	Timer0.SetPeriod(0)
	if got := Timer0.Value(); got != ValueMin {
		t.Errorf("SetPeriod(0): value %d, want %d", got, ValueMin)
	}
	Timer0.SetPeriod(-1)
	if got := Timer0.Value(); got != ValueMin {
		t.Errorf("SetPeriod(-1): value %d, want %d", got, ValueMin)
	}

	// Zero hertz is an infinite period, pinned to the high clamp.
	Timer0.SetFrequency(0)
	if got := Timer0.Value(); got != ValueMax {
		t.Errorf("SetFrequency(0): value %d, want %d", got, ValueMax)
	}
	Timer0.SetFrequency(-5)
	if got := Timer0.Value(); got != ValueMin {
		t.Errorf("SetFrequency(-5): value %d, want %d", got, ValueMin)
	}
}

func TestRoundHalfUp(t *testing.T) {
	testCases := []struct {
		in   float64
		want float64
	}{
		{2.5, 3},
		{2.4, 2},
		{2.6, 3},
		{0.5, 1},
		{-0.5, 0},
		{-0.6, -1},
	}

	for _, tc := range testCases {
		if got := round(tc.in); got != tc.want {
			t.Errorf("round(%g) = %g, want %g", tc.in, got, tc.want)
		}
	}
}

func TestSaturate(t *testing.T) {
	testCases := []struct {
		in   float64
		want uint32
	}{
		{42.7, 42},
		{0, 0},
		{-1, 0},
		{math.NaN(), 0},
		{math.Inf(1), math.MaxUint32},
		{float64(math.MaxUint32) + 1, math.MaxUint32},
		{1e12, math.MaxUint32},
	}

	for _, tc := range testCases {
		if got := saturate(tc.in); got != tc.want {
			t.Errorf("saturate(%g) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestStartStopLifecycle(t *testing.T) {
	m := newMock(t)

	fires := 0
	Timer0.Start(func() { fires++ })

	if !Timer0.Running() {
		t.Error("Running() false after Start")
	}
	if got := m.lastCtrl(0); got != CtrlEnable|CtrlInterrupt {
		t.Errorf("control after Start = %#x, want %#x", got, CtrlEnable|CtrlInterrupt)
	}
	if !m.irq[0] {
		t.Error("vector not enabled by Start")
	}

	Timer0.Stop()

	if Timer0.Running() {
		t.Error("Running() true after Stop")
	}
	if got := m.lastCtrl(0); got != 0 {
		t.Errorf("control after Stop = %#x, want 0", got)
	}
	if m.irq[0] {
		t.Error("vector still enabled after Stop")
	}
	if fires != 0 {
		t.Errorf("callback ran %d times without a dispatch", fires)
	}
}

func TestStartWhileRunningSwapsCallback(t *testing.T) {
	m := newMock(t)

	first, second := 0, 0
	Timer0.Start(func() { first++ })
	before := len(m.ctrlWrites)

	Timer0.Start(func() { second++ })

	// Rearming must not pass through a disabled state, or the countdown
	// in progress would restart.
	for _, w := range m.ctrlWrites[before:] {
		if w.channel == 0 && w.bits&CtrlEnable == 0 {
			t.Errorf("restart disabled the channel: %v", m.ctrlWrites[before:])
		}
	}

	Dispatch(0)
	if first != 0 || second != 1 {
		t.Errorf("dispatch ran old callback %d times, new %d times; want 0 and 1", first, second)
	}
}

func TestStopRetainsCallbackForPendingFlag(t *testing.T) {
	newMock(t)

	fires := 0
	Timer0.Start(func() { fires++ })
	Timer0.Stop()

	// A flag that latched right before Stop still drains through the
	// vector once it is next unmasked; the attached callback must survive.
	Dispatch(0)
	if fires != 1 {
		t.Errorf("retained callback ran %d times, want 1", fires)
	}
}

func TestResetRestartsCountdown(t *testing.T) {
	m := newMock(t)

	Timer0.Start(func() {})
	before := len(m.ctrlWrites)

	Timer0.Reset()

	got := m.ctrlWrites[before:]
	want := []ctrlWrite{{0, 0}, {0, CtrlEnable | CtrlInterrupt}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("Reset on a running channel wrote %v, want %v", got, want)
	}
	if !Timer0.Running() {
		t.Error("Running() false after Reset")
	}
}

func TestResetLeavesStoppedChannelStopped(t *testing.T) {
	m := newMock(t)

	before := len(m.ctrlWrites)
	Timer1.Reset()

	got := m.ctrlWrites[before:]
	if len(got) != 1 || got[0] != (ctrlWrite{1, 0}) {
		t.Fatalf("Reset on a stopped channel wrote %v, want a single disable", got)
	}
	if Timer1.Running() {
		t.Error("Reset armed a stopped channel")
	}
}

func TestServiceAcksBeforeCallback(t *testing.T) {
	m := newMock(t)

	acked := false
	Timer0.Start(func() {
		acked = m.flagClears[0] == 1
	})
	Dispatch(0)

	if !acked {
		t.Error("flag not cleared before the callback ran")
	}
	if m.flagClears[0] != 1 {
		t.Errorf("flag cleared %d times, want 1", m.flagClears[0])
	}
}

func TestServiceWithNilCallback(t *testing.T) {
	m := newMock(t)

	Timer2.Start(nil)
	Dispatch(2)

	if m.flagClears[2] != 1 {
		t.Errorf("flag cleared %d times, want 1", m.flagClears[2])
	}
}

func TestCurrentAndRemains(t *testing.T) {
	m := newMock(t)

	m.current[0] = 30000000
	if got := Timer0.Current(); got != 30000000 {
		t.Errorf("Current() = %d, want 30000000", got)
	}
	if got := Timer0.Remains(); got != 0.5 {
		t.Errorf("Remains() = %g, want 0.5", got)
	}
}
