package wire

import "github.com/yourusername/korasign/internal/perr"

// compact-u16 ("short-vec") is Solana's length-prefix varint: up to three
// 7-bit groups, low-to-high, with the continuation bit (0x80) set on every
// byte but the last. It never encodes more than 16 significant bits, which
// bounds every length this codec handles (transactions are capped well
// below 65536 bytes in any case).

// decodeShortVec reads a compact-u16 length prefix starting at buf[0] and
// returns the decoded value and the number of bytes consumed.
func decodeShortVec(buf []byte) (uint16, int, error) {
	var result uint32
	for i := 0; i < 3; i++ {
		if i >= len(buf) {
			return 0, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "truncated short-vec length", nil)
		}
		b := buf[i]
		result |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			if b == 0 && i > 0 {
				return 0, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "non-canonical short-vec length", nil)
			}
			if result > 0xffff {
				return 0, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "short-vec length overflow", nil)
			}
			return uint16(result), i + 1, nil
		}
	}
	return 0, 0, perr.New(perr.MalformedWire, perr.NonRetryable, "short-vec length exceeds 3 bytes", nil)
}

// encodeShortVec appends the compact-u16 encoding of n to buf.
func encodeShortVec(buf []byte, n int) []byte {
	v := uint32(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			buf = append(buf, b)
			return buf
		}
		buf = append(buf, b|0x80)
	}
}
