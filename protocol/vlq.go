package protocol

import "errors"

// ErrTruncated reports a payload that ends in the middle of a field.
var ErrTruncated = errors.New("truncated payload")

// AppendVLQ appends v in the 7-bit variable-length encoding, most
// significant group first. Values below 96 fit in one byte; a full uint32
// takes five. The group thresholds are signed so a decoder sign-extending
// the first byte reproduces the same 32-bit pattern.
func AppendVLQ(dst []byte, v uint32) []byte {
	sv := int32(v)
	if !(-(1<<26) <= sv && sv < (3<<26)) {
		dst = append(dst, byte((sv>>28)&0x7F)|0x80)
	}
	if !(-(1<<19) <= sv && sv < (3<<19)) {
		dst = append(dst, byte((sv>>21)&0x7F)|0x80)
	}
	if !(-(1<<12) <= sv && sv < (3<<12)) {
		dst = append(dst, byte((sv>>14)&0x7F)|0x80)
	}
	if !(-(1<<5) <= sv && sv < (3<<5)) {
		dst = append(dst, byte((sv>>7)&0x7F)|0x80)
	}
	return append(dst, byte(sv&0x7F))
}

// DecodeVLQ reads one variable-length integer from the front of the slice,
// advancing it past the consumed bytes.
func DecodeVLQ(data *[]byte) (uint32, error) {
	if len(*data) == 0 {
		return 0, ErrTruncated
	}
	c := uint32((*data)[0])
	*data = (*data)[1:]

	v := c & 0x7F
	if (c & 0x60) == 0x60 {
		// Top range of the first byte sign-extends.
		v |= ^uint32(0x1F)
	}
	for c&0x80 != 0 {
		if len(*data) == 0 {
			return 0, ErrTruncated
		}
		c = uint32((*data)[0])
		*data = (*data)[1:]
		v = (v << 7) | (c & 0x7F)
	}
	return v, nil
}
