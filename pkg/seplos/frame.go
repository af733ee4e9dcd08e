package seplos

import "fmt"

const (
	protocolVersion = 0x20
	batteryCID1     = 0x46

	// CID2 command codes understood by Seplos V2 firmware.
	CmdTelemetry         = 0x42
	CmdTelesignalization = 0x44

	// Shortest frame the firmware ever answers with.
	frameMinLength = 81

	telemetryInfoLength         = 150
	telesignalizationInfoLength = 98

	frameStart     = '~'
	frameDelimiter = '\r'
)

var defaultCommandInfo = []byte("01")

// EncodeCommand builds the ASCII-hex command frame for a pack address
// and CID2 command code. A nil info defaults to "01" (the pack group
// selector used by every read command). The result is deterministic:
// `~ VER ADR 46 CID2 LENGTH INFO CHKSUM \r` with uppercase hex fields.
func EncodeCommand(address byte, cid2 byte, info []byte) []byte {
	if info == nil {
		info = defaultCommandInfo
	}
	frame := []byte(fmt.Sprintf("%02X%02X%02X%02X%04X",
		protocolVersion, address, batteryCID1, cid2, InfoLengthCode(info)))
	frame = append(frame, info...)
	checksum := FrameChecksum(frame)

	out := make([]byte, 0, len(frame)+6)
	out = append(out, frameStart)
	out = append(out, frame...)
	out = append(out, []byte(fmt.Sprintf("%04X", checksum))...)
	out = append(out, frameDelimiter)
	return out
}
