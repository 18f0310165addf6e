package core

// FireEvent is one serviced expiry, captured on entry to Dispatch.
type FireEvent struct {
	Channel uint8
	Current uint32 // down-counter at service entry; load minus this is the service latency
}

const traceRingSize = 32

// The ring holds the most recent expiries across all channels. One writer
// (the vector) and casual readers; a snapshot taken while channels run is
// best-effort, the same as reading a live down-counter.
var (
	traceRing  [traceRingSize]FireEvent
	traceFires uint32 // total recorded since reset; ring slot is traceFires % traceRingSize
)

// recordFire captures one service event. Runs in interrupt context, so no
// allocation and no locking.
func recordFire(channel uint8, current uint32) {
	traceRing[traceFires%traceRingSize] = FireEvent{Channel: channel, Current: current}
	traceFires++
}

// TraceSnapshot copies out the most recent fire events, oldest first.
func TraceSnapshot() []FireEvent {
	n := traceFires
	count := uint32(traceRingSize)
	if n < count {
		count = n
	}
	out := make([]FireEvent, count)
	for i := uint32(0); i < count; i++ {
		out[i] = traceRing[(n-count+i)%traceRingSize]
	}
	return out
}

// TraceFires returns the total number of expiries recorded since the last
// TraceReset.
func TraceFires() uint32 {
	return traceFires
}

// TraceReset drops all captured events.
func TraceReset() {
	traceFires = 0
}
