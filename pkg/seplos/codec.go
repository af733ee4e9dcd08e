// Package seplos implements the Seplos V2 battery-management-system
// protocol: ASCII-hex frame encoding and validation, telemetry and
// telesignalization decoding, and the per-pack polling loop over a
// shared half-duplex RS485 serial link.
package seplos

import (
	"encoding/hex"
	"fmt"
)

// FrameChecksum computes the Seplos frame checksum over the ASCII bytes
// between the leading '~' and the checksum field: sum all bytes modulo
// 0xFFFF, invert, add one.
func FrameChecksum(data []byte) uint16 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	checksum := uint16(sum % 0xFFFF)
	checksum ^= 0xFFFF
	checksum++
	return checksum
}

// InfoLengthCode packs the info-field length with its 4-bit nibble
// checksum into the 16-bit LENGTH field: the low 12 bits carry the
// length, the high nibble its checksum.
func InfoLengthCode(info []byte) uint16 {
	lenid := uint16(len(info))
	if lenid == 0 {
		return 0
	}
	lchksum := (lenid & 0xF) + ((lenid >> 4) & 0xF) + ((lenid >> 8) & 0xF)
	lchksum %= 16
	lchksum ^= 0xF
	lchksum++
	return lchksum<<12 | (lenid & 0xFFF)
}

// intFromHexASCII decodes width*2 ASCII-hex characters at offset as a
// big-endian integer, two's-complement if signed.
func intFromHexASCII(data []byte, offset, width int, signed bool) (int, error) {
	end := offset + width*2
	if offset < 0 || end > len(data) {
		return 0, fmt.Errorf("hex field out of range: offset %d width %d in %d bytes", offset, width, len(data))
	}
	raw, err := hex.DecodeString(string(data[offset:end]))
	if err != nil {
		return 0, fmt.Errorf("invalid hex field at offset %d: %w", offset, err)
	}
	value := 0
	for _, b := range raw {
		value = value<<8 | int(b)
	}
	if signed {
		bits := uint(width * 8)
		if value >= 1<<(bits-1) {
			value -= 1 << bits
		}
	}
	return value, nil
}

// isValidHexString reports whether data consists solely of hex digits
// (either case) and has even length.
func isValidHexString(data []byte) bool {
	if len(data)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(string(data))
	return err == nil
}
