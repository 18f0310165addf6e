package core

import (
	"errors"
	"sync/atomic"

	"gopit/protocol"
)

// Monitor glue between the wire protocol and the timer channels. Mutating
// commands land in Apply; query replies are built by the firmware main
// from Status, Snapshot, Identify and TraceReport.

var (
	// ErrBadChannel reports a command addressed past the managed channels.
	ErrBadChannel = errors.New("channel index out of range")

	// ErrBadCommand reports an operation Apply does not handle.
	ErrBadCommand = errors.New("unknown command")
)

// fireCounts tracks serviced expiries per channel for status reports.
var fireCounts [NumChannels]uint32

// counters is a fixed table of monitor callbacks. A Start command from the
// host attaches the channel's counter so fire activity shows up in status
// reports without any board code involved.
var counters = [NumChannels]func(){
	func() { atomic.AddUint32(&fireCounts[0], 1) },
	func() { atomic.AddUint32(&fireCounts[1], 1) },
	func() { atomic.AddUint32(&fireCounts[2], 1) },
}

// Apply executes one mutating command against its channel. The timer API
// itself does no bounds checking; this wire boundary does. Start attaches
// the channel's fire counter, replacing any callback board code installed.
func Apply(cmd protocol.Command) error {
	if cmd.Channel >= NumChannels {
		return ErrBadChannel
	}
	t := Channel(cmd.Channel)
	switch cmd.Op {
	case protocol.CmdSetValue:
		t.SetValue(cmd.Arg)
	case protocol.CmdSetPeriodUS:
		t.SetPeriod(float64(cmd.Arg) / 1e6)
	case protocol.CmdSetFreqMilliHz:
		t.SetFrequency(float64(cmd.Arg) / 1e3)
	case protocol.CmdStart:
		t.Start(counters[cmd.Channel])
	case protocol.CmdStop:
		t.Stop()
	case protocol.CmdReset:
		t.Reset()
	default:
		return ErrBadCommand
	}
	return nil
}

// Status reports one channel's live state.
func Status(channel uint8) protocol.ChannelStatus {
	t := &channels[channel]
	return protocol.ChannelStatus{
		Channel: channel,
		Running: t.Running(),
		Load:    t.Value(),
		Current: t.Current(),
		Fires:   atomic.LoadUint32(&fireCounts[channel]),
	}
}

// Snapshot reports the live state of every channel.
func Snapshot() []protocol.ChannelStatus {
	out := make([]protocol.ChannelStatus, NumChannels)
	for i := range out {
		out[i] = Status(uint8(i))
	}
	return out
}

// Identify describes this build to the host.
func Identify() protocol.Identity {
	return protocol.Identity{
		Version:  protocol.Version,
		BusHz:    busHz,
		Channels: NumChannels,
	}
}

// TraceReport converts the fire ring for the wire.
func TraceReport() []protocol.TraceEntry {
	events := TraceSnapshot()
	out := make([]protocol.TraceEntry, len(events))
	for i, e := range events {
		out[i] = protocol.TraceEntry{Channel: e.Channel, Current: e.Current}
	}
	return out
}

// resetMonitor clears fire counts and the trace ring. Runs as part of
// InitTimers so reinitialization starts from a clean slate.
func resetMonitor() {
	for i := range fireCounts {
		atomic.StoreUint32(&fireCounts[i], 0)
	}
	TraceReset()
}
