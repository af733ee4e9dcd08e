package seplos

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrFrameTooShort    = errors.New("frame shorter than minimum length")
	ErrAddressMismatch  = errors.New("frame address does not match pack")
	ErrLengthMismatch   = errors.New("unexpected info field length")
	ErrNotHex           = errors.New("info field contains non-hex characters")
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	ErrDeviceError      = errors.New("device reported an error")
)

// Fixed byte offsets into a response frame. The frame is
// `~ VER ADR CID1 CID2 LENGTH INFO CHKSUM \r`, every field ASCII-hex.
const (
	addressOffset = 3
	cid2Offset    = 7
	infoOffset    = 13
	trailerLength = 5 // 4-char checksum + '\r'
)

// ValidateFrame checks a raw response frame for the given pack address
// and expected info-field length, returning the info payload on
// success. Checks run cheapest first so garbage and partial reads are
// rejected before the checksum is computed.
func ValidateFrame(raw []byte, address byte, expectedInfoLength int) ([]byte, error) {
	if len(raw) < frameMinLength {
		return nil, fmt.Errorf("%w: got %d bytes, want at least %d", ErrFrameTooShort, len(raw), frameMinLength)
	}

	addr, err := intFromHexASCII(raw, addressOffset, 1, false)
	if err != nil || byte(addr) != address {
		return nil, fmt.Errorf("%w: got %q, want %02X", ErrAddressMismatch, raw[addressOffset:addressOffset+2], address)
	}

	info := raw[infoOffset : len(raw)-trailerLength]
	if len(info) != expectedInfoLength {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrLengthMismatch, len(info), expectedInfoLength)
	}
	if !isValidHexString(info) {
		return nil, ErrNotHex
	}

	want, err := intFromHexASCII(raw, len(raw)-trailerLength, 2, false)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable checksum field", ErrChecksumMismatch)
	}
	if got := FrameChecksum(raw[1 : len(raw)-trailerLength]); got != uint16(want) {
		return nil, fmt.Errorf("%w: computed %04X, frame carries %04X", ErrChecksumMismatch, got, want)
	}

	if !bytes.Equal(raw[cid2Offset:cid2Offset+2], []byte("00")) {
		return nil, fmt.Errorf("%w: CID2=%q", ErrDeviceError, raw[cid2Offset:cid2Offset+2])
	}

	return info, nil
}
