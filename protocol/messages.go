package protocol

import "errors"

// ErrBadMessage reports a frame whose type or shape does not match the
// decode being asked of it.
var ErrBadMessage = errors.New("malformed message")

// Command is one timer operation addressed to a channel. Module-wide
// commands (Identify, Query, TraceDump) carry channel and argument of zero.
type Command struct {
	Op      uint8
	Channel uint8
	Arg     uint32
}

// AppendCommand appends the command's frame.
func AppendCommand(dst []byte, c Command) []byte {
	payload := make([]byte, 0, 6)
	payload = append(payload, c.Channel)
	payload = AppendVLQ(payload, c.Arg)
	return AppendFrame(dst, c.Op, payload)
}

// DecodeCommand interprets a command frame.
func DecodeCommand(f *Frame) (Command, error) {
	if f.Type < CmdSetValue || f.Type > CmdTraceDump {
		return Command{}, ErrBadMessage
	}
	p := f.Payload
	if len(p) < 1 {
		return Command{}, ErrTruncated
	}
	c := Command{Op: f.Type, Channel: p[0]}
	p = p[1:]
	arg, err := DecodeVLQ(&p)
	if err != nil {
		return Command{}, err
	}
	c.Arg = arg
	return c, nil
}

// ChannelStatus is one channel's live state.
type ChannelStatus struct {
	Channel uint8
	Running bool
	Load    uint32
	Current uint32
	Fires   uint32
}

// AppendStatus appends one status reply frame.
func AppendStatus(dst []byte, st ChannelStatus) []byte {
	run := byte(0)
	if st.Running {
		run = 1
	}
	payload := make([]byte, 0, 17)
	payload = append(payload, st.Channel, run)
	payload = AppendVLQ(payload, st.Load)
	payload = AppendVLQ(payload, st.Current)
	payload = AppendVLQ(payload, st.Fires)
	return AppendFrame(dst, MsgStatus, payload)
}

// DecodeStatus interprets a status frame.
func DecodeStatus(f *Frame) (ChannelStatus, error) {
	if f.Type != MsgStatus {
		return ChannelStatus{}, ErrBadMessage
	}
	p := f.Payload
	if len(p) < 2 {
		return ChannelStatus{}, ErrTruncated
	}
	st := ChannelStatus{Channel: p[0], Running: p[1] != 0}
	p = p[2:]
	var err error
	if st.Load, err = DecodeVLQ(&p); err != nil {
		return ChannelStatus{}, err
	}
	if st.Current, err = DecodeVLQ(&p); err != nil {
		return ChannelStatus{}, err
	}
	if st.Fires, err = DecodeVLQ(&p); err != nil {
		return ChannelStatus{}, err
	}
	return st, nil
}

// Identity describes the firmware build and its hardware.
type Identity struct {
	Version  string
	BusHz    uint32
	Channels uint8
}

// AppendIdentity appends the identity reply frame. The version string runs
// to the end of the payload.
func AppendIdentity(dst []byte, id Identity) []byte {
	payload := make([]byte, 0, 8+len(id.Version))
	payload = AppendVLQ(payload, id.BusHz)
	payload = append(payload, id.Channels)
	payload = append(payload, id.Version...)
	return AppendFrame(dst, MsgIdentity, payload)
}

// DecodeIdentity interprets an identity frame.
func DecodeIdentity(f *Frame) (Identity, error) {
	if f.Type != MsgIdentity {
		return Identity{}, ErrBadMessage
	}
	p := f.Payload
	hz, err := DecodeVLQ(&p)
	if err != nil {
		return Identity{}, err
	}
	if len(p) < 1 {
		return Identity{}, ErrTruncated
	}
	return Identity{BusHz: hz, Channels: p[0], Version: string(p[1:])}, nil
}

// TraceEntry is one recorded expiry.
type TraceEntry struct {
	Channel uint8
	Current uint32
}

// traceEntryMax is the worst-case encoded size of one entry.
const traceEntryMax = 6

// AppendTrace appends trace reply frames, packing as many entries into
// each as the frame size allows. An empty dump still emits one frame so
// the host sees an answer.
func AppendTrace(dst []byte, entries []TraceEntry) []byte {
	payload := make([]byte, 0, PayloadMax)
	for _, e := range entries {
		if len(payload)+traceEntryMax > PayloadMax {
			dst = AppendFrame(dst, MsgTrace, payload)
			payload = payload[:0]
		}
		payload = append(payload, e.Channel)
		payload = AppendVLQ(payload, e.Current)
	}
	return AppendFrame(dst, MsgTrace, payload)
}

// DecodeTrace unpacks the entries of one trace frame.
func DecodeTrace(f *Frame) ([]TraceEntry, error) {
	if f.Type != MsgTrace {
		return nil, ErrBadMessage
	}
	p := f.Payload
	var out []TraceEntry
	for len(p) > 0 {
		ch := p[0]
		p = p[1:]
		cur, err := DecodeVLQ(&p)
		if err != nil {
			return nil, err
		}
		out = append(out, TraceEntry{Channel: ch, Current: cur})
	}
	return out, nil
}

// AppendError appends an error reply frame.
func AppendError(dst []byte, code uint8) []byte {
	return AppendFrame(dst, MsgError, []byte{code})
}

// DecodeError returns the code carried by an error frame.
func DecodeError(f *Frame) (uint8, error) {
	if f.Type != MsgError || len(f.Payload) < 1 {
		return 0, ErrBadMessage
	}
	return f.Payload[0], nil
}
