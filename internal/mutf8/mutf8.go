// Package mutf8 converts between Go strings and the modified UTF-8 encoding used by
// JVM class files and DataOutput.writeUTF. It differs from standard UTF-8 in two ways:
// NUL is written as the two byte sequence C0 80, and supplementary characters are
// written as a surrogate pair with three bytes per surrogate.
package mutf8

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

// ErrInvalid reports a malformed byte sequence.
var ErrInvalid = errors.New("invalid modified UTF-8")

// Decode converts modified UTF-8 bytes to a string. Unpaired surrogates become U+FFFD.
func Decode(b []byte) (string, error) {
	ascii := true
	for _, c := range b {
		if c == 0 || c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b), nil
	}

	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: truncated sequence at byte %d", ErrInvalid, i)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: truncated sequence at byte %d", ErrInvalid, i)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("%w: unexpected byte 0x%02x at %d", ErrInvalid, c, i)
		}
	}
	return string(utf16.Decode(units)), nil
}

// Encode converts s to modified UTF-8.
func Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, u := range utf16.Encode([]rune(s)) {
		switch {
		case u != 0 && u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, 0xC0|byte(u>>6), 0x80|byte(u&0x3F))
		default:
			out = append(out, 0xE0|byte(u>>12), 0x80|byte(u>>6&0x3F), 0x80|byte(u&0x3F))
		}
	}
	return out
}
