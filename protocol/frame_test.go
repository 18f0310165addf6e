package protocol

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	frame := Encode(CmdSetValue, payload)

	if len(frame) != len(payload)+FrameLengthMin {
		t.Fatalf("frame length %d, want %d", len(frame), len(payload)+FrameLengthMin)
	}
	if frame[0] != FrameSync {
		t.Errorf("frame starts with %02X, want sync %02X", frame[0], FrameSync)
	}

	var dec Decoder
	dec.Feed(frame)
	f := dec.Next()
	if f == nil {
		t.Fatal("decoder returned no frame")
	}
	if f.Type != CmdSetValue {
		t.Errorf("decoded type %02X, want %02X", f.Type, CmdSetValue)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Errorf("decoded payload %v, want %v", f.Payload, payload)
	}
	if dec.Next() != nil {
		t.Error("decoder produced a second frame from a single encode")
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var dec Decoder
	dec.Feed(Encode(CmdIdentify, nil))

	f := dec.Next()
	if f == nil {
		t.Fatal("decoder returned no frame")
	}
	if f.Type != CmdIdentify || len(f.Payload) != 0 {
		t.Errorf("got type %02X payload %v, want %02X with empty payload", f.Type, f.Payload, CmdIdentify)
	}
}

func TestFrameOversizePayload(t *testing.T) {
	if out := AppendFrame(nil, MsgTrace, make([]byte, PayloadMax+1)); len(out) != 0 {
		t.Errorf("oversize payload produced %d bytes, want none", len(out))
	}
}

func TestDecoderResyncAfterGarbage(t *testing.T) {
	frame := Encode(CmdStart, []byte{0x02, 0x00})

	var dec Decoder
	dec.Feed([]byte{0x00, 0x13, 0x37, FrameSync, 0xFF}) // noise, including a stray sync
	dec.Feed(frame)

	f := dec.Next()
	if f == nil {
		t.Fatal("decoder did not resynchronize past the noise")
	}
	if f.Type != CmdStart || !bytes.Equal(f.Payload, []byte{0x02, 0x00}) {
		t.Errorf("resynchronized to the wrong frame: type %02X payload %v", f.Type, f.Payload)
	}
}

func TestDecoderRejectsCorruptFrame(t *testing.T) {
	bad := Encode(CmdStop, []byte{0x02, 0x00})
	bad[4] ^= 0x01 // flip a payload bit so the trailer no longer matches
	good := Encode(CmdStop, []byte{0x01, 0x00})

	var dec Decoder
	dec.Feed(bad)
	dec.Feed(good)

	f := dec.Next()
	if f == nil {
		t.Fatal("decoder gave up instead of resynchronizing")
	}
	if !bytes.Equal(f.Payload, []byte{0x01, 0x00}) {
		t.Errorf("decoder returned payload %v from the corrupt frame", f.Payload)
	}
	if dec.Next() != nil {
		t.Error("decoder produced an extra frame")
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	frame := Encode(CmdQuery, nil)

	var dec Decoder
	for i, b := range frame {
		dec.Feed([]byte{b})
		f := dec.Next()
		if f != nil && i < len(frame)-1 {
			t.Fatalf("frame completed after %d of %d bytes", i+1, len(frame))
		}
		if i == len(frame)-1 {
			if f == nil {
				t.Fatal("no frame after feeding every byte")
			}
			if f.Type != CmdQuery {
				t.Errorf("decoded type %02X, want %02X", f.Type, CmdQuery)
			}
		}
	}
}

func TestDecoderBackToBackFrames(t *testing.T) {
	buf := Encode(CmdStop, []byte{0x00, 0x00})
	buf = AppendFrame(buf, CmdStop, []byte{0x01, 0x00})

	var dec Decoder
	dec.Feed(buf)

	first := dec.Next()
	second := dec.Next()
	if first == nil || second == nil {
		t.Fatal("expected two frames from one feed")
	}
	if first.Payload[0] != 0x00 || second.Payload[0] != 0x01 {
		t.Errorf("frames out of order: %v then %v", first.Payload, second.Payload)
	}
	if dec.Next() != nil {
		t.Error("decoder produced a third frame")
	}
}
