//go:build js && wasm

// WebAssembly bridge exposing the monitor wire codec to JavaScript. A
// browser page paired with the Web Serial API can encode commands,
// inspect raw frames and pretty-print firmware replies without
// reimplementing the protocol.
//
// Build with: GOOS=js GOARCH=wasm go build -o gopit.wasm ./ui/wasm
package main

import (
	"encoding/hex"
	"syscall/js"

	"gopit/protocol"
)

func main() {
	js.Global().Set("gopitWasm", js.ValueOf(map[string]interface{}{
		"encodeVLQ":     js.FuncOf(encodeVLQWrapper),
		"decodeVLQ":     js.FuncOf(decodeVLQWrapper),
		"crc16":         js.FuncOf(crc16Wrapper),
		"encodeCommand": js.FuncOf(encodeCommandWrapper),
		"decodeFrame":   js.FuncOf(decodeFrameWrapper),
		"parseReply":    js.FuncOf(parseReplyWrapper),
		"version":       protocol.Version,
	}))

	// Keep the program running for the JS side.
	select {}
}

// encodeVLQWrapper encodes an unsigned integer with the wire's VLQ.
// Args: value (number)
// Returns: hex string
func encodeVLQWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("error: missing value argument")
	}

	value := uint32(args[0].Int())
	return js.ValueOf(hex.EncodeToString(protocol.AppendVLQ(nil, value)))
}

// decodeVLQWrapper decodes one VLQ integer from a hex string.
// Args: hexString (string)
// Returns: {value: number, consumed: number, error: string}
func decodeVLQWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeVLQResult(0, 0, "missing hex string argument")
	}

	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return makeVLQResult(0, 0, "invalid hex string: "+err.Error())
	}

	rest := data
	value, err := protocol.DecodeVLQ(&rest)
	if err != nil {
		return makeVLQResult(0, 0, err.Error())
	}
	return makeVLQResult(int(value), len(data)-len(rest), "")
}

// crc16Wrapper checksums hex-encoded bytes.
// Args: hexString (string)
// Returns: number (uint16)
func crc16Wrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(0)
	}

	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return js.ValueOf(0)
	}
	return js.ValueOf(int(protocol.CRC16(data)))
}

// encodeCommandWrapper builds a complete command frame.
// Args: op (number), channel (number), arg (number)
// Returns: hex string of the frame
func encodeCommandWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return js.ValueOf("error: need op, channel and arg")
	}

	cmd := protocol.Command{
		Op:      uint8(args[0].Int()),
		Channel: uint8(args[1].Int()),
		Arg:     uint32(args[2].Int()),
	}
	return js.ValueOf(hex.EncodeToString(protocol.AppendCommand(nil, cmd)))
}

// decodeFrameWrapper takes one raw frame apart without dropping it on a
// bad checksum, so damaged captures stay inspectable.
// Args: hexString (string)
// Returns: {length, type, payload: hex, crc, crcValid, error}
func decodeFrameWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeFrameResult(0, 0, "", 0, false, "missing hex string argument")
	}

	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return makeFrameResult(0, 0, "", 0, false, "invalid hex string: "+err.Error())
	}
	if len(data) < protocol.FrameLengthMin {
		return makeFrameResult(0, 0, "", 0, false, "frame too short")
	}
	if data[0] != protocol.FrameSync {
		return makeFrameResult(0, 0, "", 0, false, "missing sync byte")
	}

	n := int(data[1])
	if n < protocol.FrameLengthMin || n > len(data) {
		return makeFrameResult(n, 0, "", 0, false, "bad length byte")
	}

	frameCRC := uint16(data[n-2])<<8 | uint16(data[n-1])
	crcValid := frameCRC == protocol.CRC16(data[1:n-2])
	payload := data[3 : n-2]

	return makeFrameResult(n, int(data[2]), hex.EncodeToString(payload), int(frameCRC), crcValid, "")
}

// parseReplyWrapper runs captured bytes through the stream decoder and
// pretty-prints every recovered reply frame.
// Args: hexString (string)
// Returns: {frames: [...], error: string}
func parseReplyWrapper(this js.Value, args []js.Value) interface{} {
	result := make(map[string]interface{})
	if len(args) < 1 {
		result["error"] = "missing hex string argument"
		result["frames"] = []interface{}{}
		return js.ValueOf(result)
	}

	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		result["error"] = "invalid hex string: " + err.Error()
		result["frames"] = []interface{}{}
		return js.ValueOf(result)
	}

	var dec protocol.Decoder
	dec.Feed(data)

	frames := []interface{}{}
	for f := dec.Next(); f != nil; f = dec.Next() {
		frames = append(frames, describeFrame(f))
	}
	result["frames"] = frames
	return js.ValueOf(result)
}

// describeFrame maps one reply frame to a JS-friendly object.
func describeFrame(f *protocol.Frame) map[string]interface{} {
	out := make(map[string]interface{})
	switch f.Type {
	case protocol.MsgStatus:
		st, err := protocol.DecodeStatus(f)
		if err != nil {
			break
		}
		out["kind"] = "status"
		out["channel"] = int(st.Channel)
		out["running"] = st.Running
		out["load"] = int(st.Load)
		out["current"] = int(st.Current)
		out["fires"] = int(st.Fires)
		return out
	case protocol.MsgIdentity:
		id, err := protocol.DecodeIdentity(f)
		if err != nil {
			break
		}
		out["kind"] = "identity"
		out["version"] = id.Version
		out["busHz"] = int(id.BusHz)
		out["channels"] = int(id.Channels)
		return out
	case protocol.MsgTrace:
		entries, err := protocol.DecodeTrace(f)
		if err != nil {
			break
		}
		list := make([]interface{}, len(entries))
		for i, e := range entries {
			list[i] = map[string]interface{}{
				"channel": int(e.Channel),
				"current": int(e.Current),
			}
		}
		out["kind"] = "trace"
		out["entries"] = list
		return out
	case protocol.MsgError:
		code, err := protocol.DecodeError(f)
		if err != nil {
			break
		}
		out["kind"] = "error"
		out["code"] = int(code)
		return out
	}

	out["kind"] = "unknown"
	out["type"] = int(f.Type)
	out["payload"] = hex.EncodeToString(f.Payload)
	return out
}

func makeVLQResult(value int, consumed int, errMsg string) js.Value {
	result := make(map[string]interface{})
	result["value"] = value
	result["consumed"] = consumed
	if errMsg != "" {
		result["error"] = errMsg
	}
	return js.ValueOf(result)
}

func makeFrameResult(length int, frameType int, payloadHex string, crc int, crcValid bool, errMsg string) js.Value {
	result := make(map[string]interface{})
	result["length"] = length
	result["type"] = frameType
	result["payload"] = payloadHex
	result["crc"] = crc
	result["crcValid"] = crcValid
	if errMsg != "" {
		result["error"] = errMsg
	}
	return js.ValueOf(result)
}
