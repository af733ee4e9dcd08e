package seplos

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTransport hands out canned responses, one per read, and
// records every write.
type scriptedTransport struct {
	responses [][]byte
	writes    [][]byte
}

func (s *scriptedTransport) Write(p []byte) error {
	s.writes = append(s.writes, append([]byte(nil), p...))
	return nil
}

func (s *scriptedTransport) ReadUntil(delim byte, timeout time.Duration) ([]byte, error) {
	if len(s.responses) == 0 {
		return nil, nil // timeout, nothing on the bus
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

func (s *scriptedTransport) FlushInput() error  { return nil }
func (s *scriptedTransport) FlushOutput() error { return nil }
func (s *scriptedTransport) Close() error       { return nil }

func testPack(transport Transport) *BatteryPack {
	pack := NewBatteryPack(0x00, transport, testLimits, zerolog.Nop())
	pack.commandDelay = 0
	return pack
}

func validTelemetryFrame(t *testing.T, address byte) []byte {
	t.Helper()
	return buildResponseFrame(t, address, "00", makeTelemetryInfo(16, func(i int) int { return 3300 }))
}

func validTelesignalizationFrame(t *testing.T, address byte) []byte {
	t.Helper()
	return buildResponseFrame(t, address, "00", makeTelesignalizationInfo(16, nil))
}

func TestPackPollCycle(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{
		validTelemetryFrame(t, 0x00),
		validTelesignalizationFrame(t, 0x00),
	}}
	pack := testPack(transport)

	data, err := pack.ReadData()
	require.NoError(t, err)
	require.NotNil(t, data)

	assert.Equal(t, 16, data.Telemetry.NumberOfCells)
	assert.Equal(t, 3.3, data.Telemetry.CellVoltage[0])
	assert.Equal(t, StatusOK, data.Telesignalization.AnyCellVoltageAlarm)

	// Telemetry strictly precedes telesignalization on the wire.
	require.Len(t, transport.writes, 2)
	assert.Equal(t, EncodeCommand(0x00, CmdTelemetry, nil), transport.writes[0])
	assert.Equal(t, EncodeCommand(0x00, CmdTelesignalization, nil), transport.writes[1])
}

func TestPackChangeSuppression(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{
		validTelemetryFrame(t, 0x00),
		validTelesignalizationFrame(t, 0x00),
		validTelemetryFrame(t, 0x00),
		validTelesignalizationFrame(t, 0x00),
	}}
	pack := testPack(transport)

	first, err := pack.ReadData()
	require.NoError(t, err)
	assert.NotNil(t, first)

	second, err := pack.ReadData()
	require.NoError(t, err)
	assert.Nil(t, second, "byte-identical responses must report no change")
}

func TestPackChangeDetected(t *testing.T) {
	changed := makeTelemetryInfo(16, func(i int) int {
		if i == 0 {
			return 3301
		}
		return 3300
	})
	transport := &scriptedTransport{responses: [][]byte{
		validTelemetryFrame(t, 0x00),
		validTelesignalizationFrame(t, 0x00),
		buildResponseFrame(t, 0x00, "00", changed),
		validTelesignalizationFrame(t, 0x00),
	}}
	pack := testPack(transport)

	first, err := pack.ReadData()
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := pack.ReadData()
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 3.301, second.Telemetry.CellVoltage[0])
}

func TestPackRetryExhaustion(t *testing.T) {
	// An empty transport looks like a bus that never answers.
	transport := &scriptedTransport{}
	pack := testPack(transport)

	data, err := pack.ReadData()
	assert.Nil(t, data)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	// The telemetry command was re-sent exactly once per attempt.
	assert.Len(t, transport.writes, frameReadRetries)
}

func TestPackRetriesOnAddressMismatch(t *testing.T) {
	// Crosstalk: first response comes from another pack.
	transport := &scriptedTransport{responses: [][]byte{
		validTelemetryFrame(t, 0x03),
		validTelemetryFrame(t, 0x00),
		validTelesignalizationFrame(t, 0x00),
	}}
	pack := testPack(transport)

	data, err := pack.ReadData()
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Len(t, transport.writes, 3, "one retry for the echoed frame")
}

func TestPackFailedTelesignalizationAbortsCycle(t *testing.T) {
	transport := &scriptedTransport{responses: [][]byte{
		validTelemetryFrame(t, 0x00),
	}}
	pack := testPack(transport)

	data, err := pack.ReadData()
	assert.Nil(t, data, "stale data must not be republished as fresh")
	require.ErrorIs(t, err, ErrRetriesExhausted)
}
