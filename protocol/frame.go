package protocol

import "bytes"

// Frame is one decoded datagram.
type Frame struct {
	Type    uint8
	Payload []byte
}

// AppendFrame appends a complete frame around the payload. Payloads longer
// than PayloadMax do not fit in the length byte and are dropped; callers
// chunk first.
func AppendFrame(dst []byte, msgType uint8, payload []byte) []byte {
	if len(payload) > PayloadMax {
		return dst
	}
	n := len(payload) + FrameLengthMin
	start := len(dst)
	dst = append(dst, FrameSync, byte(n), msgType)
	dst = append(dst, payload...)
	crc := CRC16(dst[start+1:])
	return append(dst, byte(crc>>8), byte(crc))
}

// Encode builds one frame in a fresh buffer.
func Encode(msgType uint8, payload []byte) []byte {
	return AppendFrame(make([]byte, 0, len(payload)+FrameLengthMin), msgType, payload)
}

// decoderMax bounds the scan buffer. Enough for a burst of frames; if a
// stalled reader lets it overflow, the oldest bytes are shed and the
// scanner resynchronizes on the next sync byte.
const decoderMax = 8 * FrameLengthMax

// Decoder scans a byte stream for frames, resynchronizing after garbage,
// truncation or a corrupt trailer. The zero value is ready to use.
type Decoder struct {
	buf []byte
}

// Feed hands raw bytes from the link to the scanner.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
	if len(d.buf) > decoderMax {
		d.buf = d.buf[len(d.buf)-decoderMax:]
	}
}

// Next returns the next complete frame, or nil when more bytes are needed.
// Damaged frames are skipped, never returned.
func (d *Decoder) Next() *Frame {
	for {
		i := bytes.IndexByte(d.buf, FrameSync)
		if i < 0 {
			d.buf = d.buf[:0]
			return nil
		}
		d.buf = d.buf[i:]
		if len(d.buf) < FrameHeaderSize {
			return nil
		}
		n := int(d.buf[1])
		if n < FrameLengthMin || n > FrameLengthMax {
			// Stray sync byte, not a header. Hunt again past it.
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < n {
			return nil
		}
		want := uint16(d.buf[n-2])<<8 | uint16(d.buf[n-1])
		if CRC16(d.buf[1:n-2]) != want {
			d.buf = d.buf[1:]
			continue
		}
		f := &Frame{
			Type:    d.buf[2],
			Payload: append([]byte(nil), d.buf[FrameHeaderSize:n-FrameTrailerSize]...),
		}
		d.buf = d.buf[n:]
		return f
	}
}
