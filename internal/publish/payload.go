// Package publish maps decoded pack readings onto the MQTT surface:
// the per-pack sensor state topic, the availability topic and the Home
// Assistant discovery configs.
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Privatecoder/seplos-mqtt-remote-rs485/pkg/seplos"
)

// sensorPayload is the JSON document published to the pack's sensors
// topic. Discovery value templates address keys by group, so the shape
// here and the templates in sensors.yaml must stay in sync.
type sensorPayload struct {
	Telemetry         sensorGroup `json:"telemetry"`
	Telesignalization sensorGroup `json:"telesignalization"`
}

type sensorGroup struct {
	Normal map[string]any `json:"normal"`
	Binary map[string]any `json:"binary,omitempty"`
}

// BuildSensorPayload renders a pack reading as the sensors topic
// document. now is stamped as last_update; it is attached here rather
// than in the poller so change detection sees only measured values.
func BuildSensorPayload(data *seplos.PackData, now time.Time) ([]byte, error) {
	payload := sensorPayload{
		Telemetry:         sensorGroup{Normal: telemetryNormal(data.Telemetry, now)},
		Telesignalization: telesignalizationGroups(data.Telesignalization),
	}
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding sensor payload: %w", err)
	}
	return encoded, nil
}

func telemetryNormal(t *seplos.TelemetryReading, now time.Time) map[string]any {
	normal := map[string]any{
		"min_cell_voltage": t.MinCellVoltage,
		"max_cell_voltage": t.MaxCellVoltage,
		"min_pack_voltage": t.MinPackVoltage,
		"max_pack_voltage": t.MaxPackVoltage,

		"average_cell_voltage": t.AverageCellVoltage,
		"lowest_cell":          t.LowestCell,
		"lowest_cell_voltage":  t.LowestCellVoltage,
		"highest_cell":         t.HighestCell,
		"highest_cell_voltage": t.HighestCellVoltage,
		"delta_cell_voltage":   t.DeltaCellVoltage,

		"delta_cell_temperature": t.DeltaCellTemperature,
		"ambient_temperature":    t.AmbientTemperature,
		"components_temperature": t.ComponentsTemperature,

		"dis_charge_current": t.DisChargeCurrent,
		"total_pack_voltage": t.TotalPackVoltage,
		"dis_charge_power":   t.DisChargePower,

		"rated_capacity":    t.RatedCapacity,
		"battery_capacity":  t.BatteryCapacity,
		"residual_capacity": t.ResidualCapacity,
		"state_of_charge":   t.StateOfCharge,
		"charging_cycles":   t.ChargingCycles,
		"state_of_health":   t.StateOfHealth,
		"port_voltage":      t.PortVoltage,

		"last_update": now.Format("2006-01-02 15:04:05"),
	}
	for i := 0; i < t.NumberOfCells; i++ {
		normal[fmt.Sprintf("voltage_cell_%d", i+1)] = t.CellVoltage[i]
	}
	for i, temp := range t.CellTemperature {
		normal[fmt.Sprintf("cell_temperature_%d", i+1)] = temp
	}
	return normal
}

func telesignalizationGroups(t *seplos.TelesignalizationReading) sensorGroup {
	normal := map[string]any{
		"any_cell_voltage_alarm":      t.AnyCellVoltageAlarm,
		"any_cell_temperature_alarm":  t.AnyCellTemperatureAlarm,
		"ambient_temperature_alarm":   t.AmbientTemperatureAlarm,
		"component_temperature_alarm": t.ComponentTemperatureAlarm,
		"dis_charging_current_alarm":  t.DisChargingCurrentAlarm,
		"pack_voltage_alarm":          t.PackVoltageAlarm,

		"cell_overvoltage": t.CellOvervoltage,
		"cell_voltage_low": t.CellVoltageLow,
		"pack_overvoltage": t.PackOvervoltage,
		"pack_voltage_low": t.PackVoltageLow,

		"charging_temperature_high":    t.ChargingTemperatureHigh,
		"charging_temperature_low":     t.ChargingTemperatureLow,
		"discharging_temperature_high": t.DischargingTemperatureHigh,
		"discharging_temperature_low":  t.DischargingTemperatureLow,
		"ambient_temperature_high":     t.AmbientTemperatureHigh,
		"ambient_temperature_low":      t.AmbientTemperatureLow,
		"component_temperature_high":   t.ComponentTemperatureHigh,

		"charging_overcurrent":    t.ChargingOvercurrent,
		"discharging_overcurrent": t.DischargingOvercurrent,
		"transient_overcurrent":   t.TransientOvercurrent,
		"output_short_circuit":    t.OutputShortCircuit,
		"soc_low":                 t.SocLow,
	}
	if t.SystemStatus != "" {
		normal["system_status"] = t.SystemStatus
	}

	binary := map[string]any{
		"voltage_sensing_failure":                 t.VoltageSensingFailure,
		"temperature_sensing_failure":             t.TemperatureSensingFailure,
		"current_sensing_failure":                 t.CurrentSensingFailure,
		"power_switch_failure":                    t.PowerSwitchFailure,
		"cell_voltage_difference_sensing_failure": t.CellVoltageDifferenceSensingFailure,
		"charging_switch_failure":                 t.ChargingSwitchFailure,
		"discharging_switch_failure":              t.DischargingSwitchFailure,
		"current_limit_switch_failure":            t.CurrentLimitSwitchFailure,

		"low_temperature_heating": t.LowTemperatureHeating,

		"charging_high_voltage_protection":    t.ChargingHighVoltageProtection,
		"intermittent_power_supplement":       t.IntermittentPowerSupplement,
		"cell_low_voltage_forbidden_charging": t.CellLowVoltageForbiddenCharging,
		"output_reverse_polarity_protection":  t.OutputReversePolarityProtection,
		"output_connection_failure":           t.OutputConnectionFailure,

		"auto_charging_wait":   t.AutoChargingWait,
		"manual_charging_wait": t.ManualChargingWait,

		"eep_storage_failure":          t.EEPStorageFailure,
		"rtc_clock_failure":            t.RTCClockFailure,
		"no_calibration_of_voltage":    t.NoCalibrationOfVoltage,
		"no_calibration_of_current":    t.NoCalibrationOfCurrent,
		"no_calibration_of_null_point": t.NoCalibrationOfNullPoint,

		"discharge_switch":     t.DischargeSwitch,
		"charge_switch":        t.ChargeSwitch,
		"current_limit_switch": t.CurrentLimitSwitch,
		"heating_switch":       t.HeatingSwitch,
	}
	for i := 0; i < t.NumberOfCells; i++ {
		normal[fmt.Sprintf("cell_voltage_alarm_%d", i+1)] = t.CellVoltageAlarm[i]
		binary[fmt.Sprintf("balancer_cell_%d", i+1)] = t.CellBalancer[i]
		binary[fmt.Sprintf("disconnection_cell_%d", i+1)] = t.CellDisconnection[i]
	}
	for i, status := range t.CellTemperatureAlarm {
		normal[fmt.Sprintf("cell_temperature_alarm_%d", i+1)] = status
	}

	return sensorGroup{Normal: normal, Binary: binary}
}
