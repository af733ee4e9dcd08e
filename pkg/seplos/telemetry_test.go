package seplos

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = CellLimits{MinCellVoltage: 2.5, MaxCellVoltage: 3.65}

// makeTelemetryInfo builds a synthetic 150-byte telemetry info payload
// with fixed sensor values and per-cell voltages from cellMillivolts.
func makeTelemetryInfo(numberOfCells int, cellMillivolts func(i int) int) []byte {
	info := bytes.Repeat([]byte("0"), telemetryInfoLength)
	put := func(offset, width, value int) {
		copy(info[offset:], fmt.Sprintf("%0*X", width*2, value&(1<<uint(width*8)-1)))
	}
	put(telCellCount, 1, numberOfCells)
	for i := 0; i < numberOfCells; i++ {
		put(telCellVoltage+i*4, 2, cellMillivolts(i))
	}
	for i := 0; i < 4; i++ {
		put(telTemperatures+i*4, 2, kelvinBias+250) // 25.0 °C
	}
	put(telTemperatures+16, 2, kelvinBias+221) // ambient 22.1 °C
	put(telTemperatures+20, 2, kelvinBias+305) // components 30.5 °C
	put(telDisChargeCurrent, 2, -500)          // -5.00 A
	put(telTotalPackVoltage, 2, 5280)          // 52.80 V
	put(telResidualCapacity, 2, 9500)          // 95.00 Ah
	put(telBatteryCapacity, 2, 10000)          // 100.00 Ah
	put(telStateOfCharge, 2, 950)              // 95.0 %
	put(telRatedCapacity, 2, 10000)            // 100.00 Ah
	put(telChargingCycles, 2, 42)
	put(telStateOfHealth, 2, 1000) // 100.0 %
	put(telPortVoltage, 2, 5285)   // 52.85 V
	return info
}

func TestDecodeTelemetryCellScenario(t *testing.T) {
	// All cells at 3.300 V except cell 5 at 3.450 V and cell 9 at
	// 3.150 V.
	info := makeTelemetryInfo(16, func(i int) int {
		switch i {
		case 4:
			return 3450
		case 8:
			return 3150
		default:
			return 3300
		}
	})

	reading, err := DecodeTelemetry(info, testLimits)
	require.NoError(t, err)

	assert.Equal(t, 16, reading.NumberOfCells)
	assert.Equal(t, 5, reading.HighestCell)
	assert.Equal(t, 3.45, reading.HighestCellVoltage)
	assert.Equal(t, 9, reading.LowestCell)
	assert.Equal(t, 3.15, reading.LowestCellVoltage)
	assert.Equal(t, 0.3, reading.DeltaCellVoltage)
	assert.Equal(t, 3.3, reading.AverageCellVoltage)
}

func TestDecodeTelemetryTieBreaksToFirstCell(t *testing.T) {
	info := makeTelemetryInfo(4, func(i int) int { return 3300 })
	reading, err := DecodeTelemetry(info, testLimits)
	require.NoError(t, err)

	assert.Equal(t, 1, reading.LowestCell)
	assert.Equal(t, 1, reading.HighestCell)
	assert.Equal(t, 0.0, reading.DeltaCellVoltage)
}

func TestDecodeTelemetrySensors(t *testing.T) {
	info := makeTelemetryInfo(16, func(i int) int { return 3300 })
	reading, err := DecodeTelemetry(info, testLimits)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		assert.Equal(t, 25.0, reading.CellTemperature[i])
	}
	assert.Equal(t, 0.0, reading.DeltaCellTemperature)
	assert.Equal(t, 22.1, reading.AmbientTemperature)
	assert.Equal(t, 30.5, reading.ComponentsTemperature)
	assert.Equal(t, -5.0, reading.DisChargeCurrent)
	assert.Equal(t, 52.8, reading.TotalPackVoltage)
	assert.Equal(t, -264.0, reading.DisChargePower)
	assert.Equal(t, 95.0, reading.ResidualCapacity)
	assert.Equal(t, 100.0, reading.BatteryCapacity)
	assert.Equal(t, 95.0, reading.StateOfCharge)
	assert.Equal(t, 100.0, reading.RatedCapacity)
	assert.Equal(t, 42, reading.ChargingCycles)
	assert.Equal(t, 100.0, reading.StateOfHealth)
	assert.Equal(t, 52.85, reading.PortVoltage)
}

func TestDecodeTelemetryConfiguredBounds(t *testing.T) {
	info := makeTelemetryInfo(16, func(i int) int { return 3300 })
	reading, err := DecodeTelemetry(info, testLimits)
	require.NoError(t, err)

	assert.Equal(t, 2.5, reading.MinCellVoltage)
	assert.Equal(t, 3.65, reading.MaxCellVoltage)
	assert.Equal(t, 40.0, reading.MinPackVoltage)
	assert.InDelta(t, 58.4, reading.MaxPackVoltage, 1e-9)
}

func TestDecodeTelemetryPartialPack(t *testing.T) {
	// An 8-cell pack leaves the upper cell slots untouched.
	info := makeTelemetryInfo(8, func(i int) int { return 3200 + i })
	reading, err := DecodeTelemetry(info, testLimits)
	require.NoError(t, err)

	assert.Equal(t, 8, reading.NumberOfCells)
	assert.Equal(t, 3.2, reading.CellVoltage[0])
	assert.Equal(t, 0.0, reading.CellVoltage[8])
	assert.Equal(t, 8, reading.HighestCell)
	assert.Equal(t, 1, reading.LowestCell)
}

func TestDecodeTelemetryIdempotent(t *testing.T) {
	info := makeTelemetryInfo(16, func(i int) int { return 3300 + i })
	first, err := DecodeTelemetry(info, testLimits)
	require.NoError(t, err)
	second, err := DecodeTelemetry(info, testLimits)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeTelemetryRejectsBadPayload(t *testing.T) {
	_, err := DecodeTelemetry([]byte("00"), testLimits)
	assert.Error(t, err)

	info := makeTelemetryInfo(16, func(i int) int { return 3300 })
	copy(info[telCellCount:], "00")
	_, err = DecodeTelemetry(info, testLimits)
	assert.Error(t, err, "zero cells")

	info = makeTelemetryInfo(16, func(i int) int { return 3300 })
	copy(info[telCellCount:], "20")
	_, err = DecodeTelemetry(info, testLimits)
	assert.Error(t, err, "more than 16 cells")
}
