package core

// NumChannels is the number of PIT channels this driver manages. The block
// has four; the last one is left alone because board support code commonly
// claims it for tone generation.
const NumChannels = 3

// The channels live for the whole program. There is no teardown.
var channels [NumChannels]Timer

// Fixed handles to the managed channels.
var (
	Timer0 = &channels[0]
	Timer1 = &channels[1]
	Timer2 = &channels[2]
)

// busHz caches the driver's bus clock for the conversion helpers.
var busHz uint32

// InitTimers binds every channel to the registered driver and programs the
// one-second default period. Call once at startup, after SetDriver.
// Calling it again reinitializes all channels from scratch.
func InitTimers() {
	d := MustDriver()
	busHz = d.BusFrequency()
	for i := range channels {
		channels[i].init(uint8(i))
	}
	resetMonitor()
}

// Channel returns the timer owning the given hardware channel.
func Channel(channel uint8) *Timer {
	return &channels[channel]
}

// Dispatch services one channel's expiry: acknowledge the hardware flag,
// then run the attached callback. Every target installs a vector trampoline
// per channel that calls Dispatch with its fixed index; the sim calls it
// when a modeled countdown expires.
func Dispatch(channel uint8) {
	channels[channel].service()
}
