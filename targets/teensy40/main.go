//go:build teensy40

// Monitor firmware for the Teensy 4.x. Same shape as the Teensy 3.6 build:
// Timer0 heartbeats the LED, the USB serial port speaks the monitor
// protocol. The bus here is the 24 MHz PERCLK, so cycle values are a
// different currency than on the Kinetis boards; hosts should scale via
// the identity reply rather than assume a clock.
package main

import (
	"machine"
	"time"

	"gopit/core"
	"gopit/protocol"
)

var (
	decoder protocol.Decoder
	reply   []byte

	framesHandled uint32
	frameErrors   uint32
)

func main() {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	core.SetDriver(pitDriver{})
	core.InitTimers()

	ledOn := false
	core.Timer0.SetFrequency(2)
	core.Timer0.Start(func() {
		ledOn = !ledOn
		led.Set(ledOn)
	})

	// Give USB enumeration a moment before talking.
	time.Sleep(1500 * time.Millisecond)
	println("gopit", protocol.Version, "perclk", perclkFreq)

	reply = make([]byte, 0, 6*protocol.FrameLengthMax)
	buf := make([]byte, 64)
	for {
		n := readSerial(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
			for f := decoder.Next(); f != nil; f = decoder.Next() {
				reply = handleFrame(reply[:0], f)
				if len(reply) > 0 {
					machine.Serial.Write(reply)
				}
				framesHandled++
			}
		}
		time.Sleep(time.Millisecond)
	}
}

// readSerial drains buffered bytes without blocking.
func readSerial(buf []byte) int {
	n := 0
	for n < len(buf) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		buf[n] = b
		n++
	}
	return n
}

// handleFrame answers one frame, appending any reply frames to dst.
func handleFrame(dst []byte, f *protocol.Frame) []byte {
	switch f.Type {
	case protocol.CmdIdentify:
		return protocol.AppendIdentity(dst, core.Identify())
	case protocol.CmdQuery:
		for _, st := range core.Snapshot() {
			dst = protocol.AppendStatus(dst, st)
		}
		return dst
	case protocol.CmdTraceDump:
		return protocol.AppendTrace(dst, core.TraceReport())
	}

	cmd, err := protocol.DecodeCommand(f)
	if err != nil {
		frameErrors++
		return protocol.AppendError(dst, protocol.ErrCodeCommand)
	}
	if err := core.Apply(cmd); err != nil {
		frameErrors++
		code := uint8(protocol.ErrCodeCommand)
		if err == core.ErrBadChannel {
			code = protocol.ErrCodeChannel
		}
		return protocol.AppendError(dst, code)
	}
	return protocol.AppendStatus(dst, core.Status(cmd.Channel))
}
