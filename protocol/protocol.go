// Package protocol implements the monitor wire format: small framed
// datagrams carrying timer commands and status reports over a serial link.
// A frame is sync byte, total length, message type, payload, CRC16.
// Integer payload fields use the 7-bit variable-length encoding in vlq.go.
//
// The protocol is a datagram monitor, not a motion bus: there are no
// sequence numbers, acks or retransmits. A damaged frame is dropped by the
// decoder and the host simply asks again.
package protocol

// Version identifies the firmware build to the host monitor.
const Version = "0.3.0"

// Frame layout.
const (
	FrameSync        = 0x7E
	FrameHeaderSize  = 3 // sync, length, type
	FrameTrailerSize = 2 // CRC16 over length..payload, big-endian
	FrameLengthMin   = FrameHeaderSize + FrameTrailerSize
	FrameLengthMax   = 48
	PayloadMax       = FrameLengthMax - FrameLengthMin
)

// Commands, host to firmware. Arguments ride in the payload as a channel
// byte followed by a VLQ integer; commands without an argument carry zero.
const (
	CmdSetValue       = 0x10 // arg: load value in bus cycles
	CmdSetPeriodUS    = 0x11 // arg: period in microseconds
	CmdSetFreqMilliHz = 0x12 // arg: rate in millihertz
	CmdStart          = 0x13
	CmdStop           = 0x14
	CmdReset          = 0x15
	CmdIdentify       = 0x16
	CmdQuery          = 0x17
	CmdTraceDump      = 0x18
)

// Replies, firmware to host.
const (
	MsgStatus   = 0x01
	MsgIdentity = 0x02
	MsgTrace    = 0x03
	MsgError    = 0x04
)

// Error codes carried by MsgError.
const (
	ErrCodeCommand = 0x01 // unknown or malformed command
	ErrCodeChannel = 0x02 // channel index out of range
)
