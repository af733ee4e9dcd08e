package seplos

import (
	"fmt"
	"math"
)

// CellLimits carries the configured per-cell voltage bounds. They are
// not part of the wire protocol; the decoder only multiplies them by
// the reported cell count to derive pack-level bounds.
type CellLimits struct {
	MinCellVoltage float64
	MaxCellVoltage float64
}

// TelemetryReading is the full decoded state of one telemetry feedback
// frame. It is rebuilt from scratch on every successful decode.
type TelemetryReading struct {
	NumberOfCells int

	CellVoltage     [16]float64 // V, only the first NumberOfCells populated
	CellTemperature [4]float64  // °C

	AmbientTemperature    float64 // °C
	ComponentsTemperature float64 // °C
	DisChargeCurrent      float64 // A, negative while discharging
	TotalPackVoltage      float64 // V
	ResidualCapacity      float64 // Ah
	BatteryCapacity       float64 // Ah
	StateOfCharge         float64 // %
	RatedCapacity         float64 // Ah
	ChargingCycles        int
	StateOfHealth         float64 // %
	PortVoltage           float64 // V

	// Configured bounds, echoed from CellLimits.
	MinCellVoltage float64
	MaxCellVoltage float64
	MinPackVoltage float64
	MaxPackVoltage float64

	// Derived values. Cell indices are 1-based for display.
	AverageCellVoltage   float64
	LowestCell           int
	LowestCellVoltage    float64
	HighestCell          int
	HighestCellVoltage   float64
	DeltaCellVoltage     float64
	DeltaCellTemperature float64
	DisChargePower       float64 // W, sign follows the current
}

// ASCII offsets into the 150-byte telemetry info field.
const (
	telCellCount        = 4
	telCellVoltage      = 6
	telTemperatures     = 72
	telDisChargeCurrent = 96
	telTotalPackVoltage = 100
	telResidualCapacity = 104
	telBatteryCapacity  = 110
	telStateOfCharge    = 114
	telRatedCapacity    = 118
	telChargingCycles   = 122
	telStateOfHealth    = 126
	telPortVoltage      = 130
)

// Temperatures arrive as tenths of Kelvin.
const kelvinBias = 2731

// hexFieldReader pulls fixed-offset hex-ASCII fields out of an info
// payload, keeping the first error it hits.
type hexFieldReader struct {
	data []byte
	err  error
}

func (r *hexFieldReader) uintAt(offset, width int) int {
	if r.err != nil {
		return 0
	}
	value, err := intFromHexASCII(r.data, offset, width, false)
	if err != nil {
		r.err = err
	}
	return value
}

func (r *hexFieldReader) intAt(offset, width int) int {
	if r.err != nil {
		return 0
	}
	value, err := intFromHexASCII(r.data, offset, width, true)
	if err != nil {
		r.err = err
	}
	return value
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }

// DecodeTelemetry maps a validated 150-byte telemetry info payload to a
// TelemetryReading. Pure function of the payload and limits.
func DecodeTelemetry(info []byte, limits CellLimits) (*TelemetryReading, error) {
	r := &hexFieldReader{data: info}

	numberOfCells := r.uintAt(telCellCount, 1)
	if r.err != nil {
		return nil, fmt.Errorf("decoding cell count: %w", r.err)
	}
	if numberOfCells < 1 || numberOfCells > 16 {
		return nil, fmt.Errorf("cell count out of range: %d", numberOfCells)
	}

	t := &TelemetryReading{
		NumberOfCells:  numberOfCells,
		MinCellVoltage: limits.MinCellVoltage,
		MaxCellVoltage: limits.MaxCellVoltage,
		MinPackVoltage: limits.MinCellVoltage * float64(numberOfCells),
		MaxPackVoltage: limits.MaxCellVoltage * float64(numberOfCells),
	}

	sum := 0.0
	for i := 0; i < numberOfCells; i++ {
		t.CellVoltage[i] = float64(r.uintAt(telCellVoltage+i*4, 2)) / 1000
		sum += t.CellVoltage[i]
	}
	t.AverageCellVoltage = round3(sum / float64(numberOfCells))

	// Ties resolve to the lowest index.
	lowest, highest := 0, 0
	for i := 1; i < numberOfCells; i++ {
		if t.CellVoltage[i] < t.CellVoltage[lowest] {
			lowest = i
		}
		if t.CellVoltage[i] > t.CellVoltage[highest] {
			highest = i
		}
	}
	t.LowestCell = lowest + 1
	t.LowestCellVoltage = t.CellVoltage[lowest]
	t.HighestCell = highest + 1
	t.HighestCellVoltage = t.CellVoltage[highest]
	t.DeltaCellVoltage = round3(t.HighestCellVoltage - t.LowestCellVoltage)

	for i := 0; i < 4; i++ {
		t.CellTemperature[i] = float64(r.uintAt(telTemperatures+i*4, 2)-kelvinBias) / 10
	}
	minTemp, maxTemp := t.CellTemperature[0], t.CellTemperature[0]
	for _, temp := range t.CellTemperature[1:] {
		minTemp = math.Min(minTemp, temp)
		maxTemp = math.Max(maxTemp, temp)
	}
	t.DeltaCellTemperature = round1(maxTemp - minTemp)

	t.AmbientTemperature = float64(r.uintAt(telTemperatures+16, 2)-kelvinBias) / 10
	t.ComponentsTemperature = float64(r.uintAt(telTemperatures+20, 2)-kelvinBias) / 10
	t.DisChargeCurrent = float64(r.intAt(telDisChargeCurrent, 2)) / 100
	t.TotalPackVoltage = float64(r.uintAt(telTotalPackVoltage, 2)) / 100
	t.DisChargePower = round3(t.DisChargeCurrent * t.TotalPackVoltage)
	t.ResidualCapacity = float64(r.uintAt(telResidualCapacity, 2)) / 100
	t.BatteryCapacity = float64(r.uintAt(telBatteryCapacity, 2)) / 100
	t.StateOfCharge = float64(r.uintAt(telStateOfCharge, 2)) / 10
	t.RatedCapacity = float64(r.uintAt(telRatedCapacity, 2)) / 100
	t.ChargingCycles = r.uintAt(telChargingCycles, 2)
	t.StateOfHealth = float64(r.uintAt(telStateOfHealth, 2)) / 10
	t.PortVoltage = float64(r.uintAt(telPortVoltage, 2)) / 100

	if r.err != nil {
		return nil, fmt.Errorf("decoding telemetry payload: %w", r.err)
	}
	return t, nil
}
