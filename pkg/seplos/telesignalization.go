package seplos

import (
	"encoding/hex"
	"fmt"
)

// Status strings reported by the telesignalization decoder.
const (
	StatusOK         = "OK"
	StatusAlarm      = "Alarm"
	StatusAlarmLow   = "Alarm (low)"
	StatusAlarmHigh  = "Alarm (high)"
	StatusAlarmOther = "Alarm (other)"
	StatusOn         = "ON"
	StatusOff        = "OFF"
	StatusFault      = "Fault"
	StatusWarning    = "Warning"
	StatusProtection = "Protection"
	StatusLockout    = "Lockout"
)

// TelesignalizationReading is the full decoded state of one
// telesignalization feedback frame: per-cell and per-quantity alarm
// bytes plus the bit-packed warning, switch, balancer and
// disconnection groups. Rebuilt from scratch on every decode.
type TelesignalizationReading struct {
	NumberOfCells int

	CellVoltageAlarm     [16]string
	CellTemperatureAlarm [4]string

	AmbientTemperatureAlarm   string
	ComponentTemperatureAlarm string
	DisChargingCurrentAlarm   string
	PackVoltageAlarm          string

	// OR-reductions over the populated per-cell alarm bytes.
	AnyCellVoltageAlarm     string
	AnyCellTemperatureAlarm string

	// Alarm event 1: sensing and switch failures.
	VoltageSensingFailure               string
	TemperatureSensingFailure           string
	CurrentSensingFailure               string
	PowerSwitchFailure                  string
	CellVoltageDifferenceSensingFailure string
	ChargingSwitchFailure               string
	DischargingSwitchFailure            string
	CurrentLimitSwitchFailure           string

	// Alarm event 2: voltage protection tiers.
	CellOvervoltage string
	CellVoltageLow  string
	PackOvervoltage string
	PackVoltageLow  string

	// Alarm event 3: dis-/charge temperature protection tiers.
	ChargingTemperatureHigh    string
	ChargingTemperatureLow     string
	DischargingTemperatureHigh string
	DischargingTemperatureLow  string

	// Alarm event 4: ambient/component temperature, heating.
	AmbientTemperatureHigh   string
	AmbientTemperatureLow    string
	ComponentTemperatureHigh string
	LowTemperatureHeating    string

	// Alarm event 5: overcurrent and short-circuit lockouts.
	ChargingOvercurrent    string
	DischargingOvercurrent string
	TransientOvercurrent   string
	OutputShortCircuit     string

	// Alarm event 6: miscellaneous.
	ChargingHighVoltageProtection   string
	IntermittentPowerSupplement     string
	SocLow                          string
	CellLowVoltageForbiddenCharging string
	OutputReversePolarityProtection string
	OutputConnectionFailure         string

	// Alarm event 7: charging wait.
	AutoChargingWait   string
	ManualChargingWait string

	// Alarm event 8: storage/calibration faults.
	EEPStorageFailure        string
	RTCClockFailure          string
	NoCalibrationOfVoltage   string
	NoCalibrationOfCurrent   string
	NoCalibrationOfNullPoint string

	DischargeSwitch    string
	ChargeSwitch       string
	CurrentLimitSwitch string
	HeatingSwitch      string

	// Name of the single active system-mode bit, empty if none is set.
	SystemStatus string

	CellBalancer      [16]string
	CellDisconnection [16]string
}

// Raw byte offsets into the hex-decoded 98-character info payload.
const (
	tsCellCount = 2

	tsCellVoltageAlarm          = 3
	tsCellTemperatureAlarm      = 20
	tsAmbientTemperatureAlarm   = 24
	tsComponentTemperatureAlarm = 25
	tsDisChargeCurrentAlarm     = 26
	tsPackVoltageAlarm          = 27

	tsAlarmEvent1   = 29
	tsAlarmEvent2   = 30
	tsAlarmEvent3   = 31
	tsAlarmEvent4   = 32
	tsAlarmEvent5   = 33
	tsAlarmEvent6   = 34
	tsOnOffState    = 35
	tsBalancer1     = 36
	tsBalancer2     = 37
	tsSystemStatus  = 38
	tsDisconnection = 39 // and 40
	tsAlarmEvent7   = 41
	tsAlarmEvent8   = 42
)

type alarmMode int

const (
	modeOnOff alarmMode = iota
	modeFaultNormal
	modeWarningNormal
	modeProtectionNormal
	modeProtectionAlarmNormal
	modeLockoutProtectionNormal
)

// statusFrom24ByteAlarm maps one raw alarm byte to its status string.
func statusFrom24ByteAlarm(b byte) string {
	switch b {
	case 0:
		return StatusOK
	case 1:
		return StatusAlarmLow
	case 2:
		return StatusAlarmHigh
	default:
		return StatusAlarmOther
	}
}

// statusFrom20BitAlarm maps one or two bits of a group byte to a
// status string according to the group's encoding mode.
func statusFrom20BitAlarm(b byte, mode alarmMode, firstBit, secondBit int) string {
	bitSet := func(bit int) bool { return b&(1<<uint(bit)) != 0 }

	switch mode {
	case modeOnOff:
		if bitSet(firstBit) {
			return StatusOn
		}
		return StatusOff
	case modeFaultNormal:
		if bitSet(firstBit) {
			return StatusFault
		}
		return StatusOK
	case modeWarningNormal:
		if bitSet(firstBit) {
			return StatusWarning
		}
		return StatusOK
	case modeProtectionNormal:
		if bitSet(firstBit) {
			return StatusProtection
		}
		return StatusOK
	case modeProtectionAlarmNormal:
		if bitSet(firstBit) {
			return StatusAlarm
		}
		if secondBit >= 0 && bitSet(secondBit) {
			return StatusProtection
		}
		return StatusOK
	case modeLockoutProtectionNormal:
		if bitSet(firstBit) {
			return StatusProtection
		}
		if secondBit >= 0 && bitSet(secondBit) {
			return StatusLockout
		}
		return StatusOK
	}
	return "unknown"
}

// systemStatusBits names the system-mode bits; at most one is expected
// to be active at a time.
var systemStatusBits = []struct {
	name string
	bit  int
}{
	{"Discharging", 0},
	{"Charging", 1},
	{"Floating Charge", 2},
	{"Standby", 4},
	{"Off", 5},
}

// DecodeTelesignalization maps a validated 98-byte telesignalization
// info payload to a TelesignalizationReading. Pure function of the
// payload bytes.
func DecodeTelesignalization(info []byte) (*TelesignalizationReading, error) {
	raw, err := hex.DecodeString(string(info))
	if err != nil {
		return nil, fmt.Errorf("decoding telesignalization payload: %w", err)
	}
	if len(raw) <= tsAlarmEvent8 {
		return nil, fmt.Errorf("telesignalization payload too short: %d bytes", len(raw))
	}

	numberOfCells := int(raw[tsCellCount])
	if numberOfCells < 1 || numberOfCells > 16 {
		return nil, fmt.Errorf("cell count out of range: %d", numberOfCells)
	}

	t := &TelesignalizationReading{NumberOfCells: numberOfCells}

	t.AnyCellVoltageAlarm = StatusOK
	for i := 0; i < numberOfCells; i++ {
		t.CellVoltageAlarm[i] = statusFrom24ByteAlarm(raw[tsCellVoltageAlarm+i])
		if t.CellVoltageAlarm[i] != StatusOK {
			t.AnyCellVoltageAlarm = StatusAlarm
		}
	}

	t.AnyCellTemperatureAlarm = StatusOK
	for i := 0; i < 4; i++ {
		t.CellTemperatureAlarm[i] = statusFrom24ByteAlarm(raw[tsCellTemperatureAlarm+i])
		if t.CellTemperatureAlarm[i] != StatusOK {
			t.AnyCellTemperatureAlarm = StatusAlarm
		}
	}

	t.AmbientTemperatureAlarm = statusFrom24ByteAlarm(raw[tsAmbientTemperatureAlarm])
	t.ComponentTemperatureAlarm = statusFrom24ByteAlarm(raw[tsComponentTemperatureAlarm])
	t.DisChargingCurrentAlarm = statusFrom24ByteAlarm(raw[tsDisChargeCurrentAlarm])
	t.PackVoltageAlarm = statusFrom24ByteAlarm(raw[tsPackVoltageAlarm])

	bitAlarms := []struct {
		target    *string
		offset    int
		mode      alarmMode
		firstBit  int
		secondBit int
	}{
		{&t.VoltageSensingFailure, tsAlarmEvent1, modeFaultNormal, 0, -1},
		{&t.TemperatureSensingFailure, tsAlarmEvent1, modeFaultNormal, 1, -1},
		{&t.CurrentSensingFailure, tsAlarmEvent1, modeFaultNormal, 2, -1},
		{&t.PowerSwitchFailure, tsAlarmEvent1, modeFaultNormal, 3, -1},
		{&t.CellVoltageDifferenceSensingFailure, tsAlarmEvent1, modeFaultNormal, 4, -1},
		{&t.ChargingSwitchFailure, tsAlarmEvent1, modeFaultNormal, 5, -1},
		{&t.DischargingSwitchFailure, tsAlarmEvent1, modeFaultNormal, 6, -1},
		{&t.CurrentLimitSwitchFailure, tsAlarmEvent1, modeFaultNormal, 7, -1},

		{&t.CellOvervoltage, tsAlarmEvent2, modeProtectionAlarmNormal, 0, 1},
		{&t.CellVoltageLow, tsAlarmEvent2, modeProtectionAlarmNormal, 2, 3},
		{&t.PackOvervoltage, tsAlarmEvent2, modeProtectionAlarmNormal, 4, 5},
		{&t.PackVoltageLow, tsAlarmEvent2, modeProtectionAlarmNormal, 6, 7},

		{&t.ChargingTemperatureHigh, tsAlarmEvent3, modeProtectionAlarmNormal, 0, 1},
		{&t.ChargingTemperatureLow, tsAlarmEvent3, modeProtectionAlarmNormal, 2, 3},
		{&t.DischargingTemperatureHigh, tsAlarmEvent3, modeProtectionAlarmNormal, 4, 5},
		{&t.DischargingTemperatureLow, tsAlarmEvent3, modeProtectionAlarmNormal, 6, 7},

		{&t.AmbientTemperatureHigh, tsAlarmEvent4, modeProtectionAlarmNormal, 0, 1},
		{&t.AmbientTemperatureLow, tsAlarmEvent4, modeProtectionAlarmNormal, 2, 3},
		{&t.ComponentTemperatureHigh, tsAlarmEvent4, modeProtectionAlarmNormal, 4, 5},
		{&t.LowTemperatureHeating, tsAlarmEvent4, modeOnOff, 6, -1},

		{&t.ChargingOvercurrent, tsAlarmEvent5, modeProtectionAlarmNormal, 0, 1},
		{&t.DischargingOvercurrent, tsAlarmEvent5, modeProtectionAlarmNormal, 2, 3},
		{&t.TransientOvercurrent, tsAlarmEvent5, modeLockoutProtectionNormal, 4, 6},
		{&t.OutputShortCircuit, tsAlarmEvent5, modeLockoutProtectionNormal, 5, 7},

		{&t.ChargingHighVoltageProtection, tsAlarmEvent6, modeProtectionNormal, 0, -1},
		{&t.IntermittentPowerSupplement, tsAlarmEvent6, modeWarningNormal, 1, -1},
		{&t.SocLow, tsAlarmEvent6, modeProtectionAlarmNormal, 2, 3},
		{&t.CellLowVoltageForbiddenCharging, tsAlarmEvent6, modeProtectionNormal, 4, -1},
		{&t.OutputReversePolarityProtection, tsAlarmEvent6, modeProtectionNormal, 5, -1},
		{&t.OutputConnectionFailure, tsAlarmEvent6, modeFaultNormal, 6, -1},

		{&t.AutoChargingWait, tsAlarmEvent7, modeWarningNormal, 4, -1},
		{&t.ManualChargingWait, tsAlarmEvent7, modeWarningNormal, 5, -1},

		{&t.EEPStorageFailure, tsAlarmEvent8, modeFaultNormal, 0, -1},
		{&t.RTCClockFailure, tsAlarmEvent8, modeFaultNormal, 1, -1},
		{&t.NoCalibrationOfVoltage, tsAlarmEvent8, modeWarningNormal, 2, -1},
		{&t.NoCalibrationOfCurrent, tsAlarmEvent8, modeWarningNormal, 3, -1},
		{&t.NoCalibrationOfNullPoint, tsAlarmEvent8, modeWarningNormal, 4, -1},

		{&t.DischargeSwitch, tsOnOffState, modeOnOff, 0, -1},
		{&t.ChargeSwitch, tsOnOffState, modeOnOff, 1, -1},
		{&t.CurrentLimitSwitch, tsOnOffState, modeOnOff, 2, -1},
		{&t.HeatingSwitch, tsOnOffState, modeOnOff, 3, -1},
	}
	for _, a := range bitAlarms {
		*a.target = statusFrom20BitAlarm(raw[a.offset], a.mode, a.firstBit, a.secondBit)
	}

	for _, s := range systemStatusBits {
		if statusFrom20BitAlarm(raw[tsSystemStatus], modeOnOff, s.bit, -1) == StatusOn {
			t.SystemStatus = s.name
		}
	}

	for i := 0; i < numberOfCells; i++ {
		balancerOffset, disconnectionOffset := tsBalancer1, tsDisconnection
		if i >= 8 {
			balancerOffset, disconnectionOffset = tsBalancer2, tsDisconnection+1
		}
		t.CellBalancer[i] = statusFrom20BitAlarm(raw[balancerOffset], modeOnOff, i%8, -1)
		t.CellDisconnection[i] = statusFrom20BitAlarm(raw[disconnectionOffset], modeWarningNormal, i%8, -1)
	}

	return t, nil
}
