package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Privatecoder/seplos-mqtt-remote-rs485/pkg/seplos"
)

func TestLoadDefaults(t *testing.T) {
	for _, name := range []string{
		"MIN_CELL_VOLTAGE", "MAX_CELL_VOLTAGE", "NUMBER_OF_PACKS",
		"SERIAL_INTERFACE", "MQTT_HOST", "MQTT_PORT", "MQTT_USERNAME",
		"MQTT_PASSWORD", "MQTT_TOPIC", "MQTT_UPDATE_INTERVAL",
		"ENABLE_HA_DISCOVERY_CONFIG", "HA_DISCOVERY_PREFIX",
		"INVERT_HA_DIS_CHARGE_MEASUREMENTS", "LOGGING_LEVEL",
	} {
		t.Setenv(name, "")
	}

	cfg := Load("")

	assert.Equal(t, 2.500, cfg.MinCellVoltage)
	assert.Equal(t, 3.650, cfg.MaxCellVoltage)
	assert.Equal(t, 1, cfg.NumberOfPacks)
	assert.Equal(t, 1883, cfg.MQTTPort)
	assert.Equal(t, "seplos", cfg.MQTTTopic)
	assert.Equal(t, 0, cfg.MQTTUpdateInterval)
	assert.True(t, cfg.EnableHADiscoveryConfig)
	assert.Equal(t, "homeassistant", cfg.HADiscoveryPrefix)
	assert.True(t, cfg.InvertHADisChargeMeasurements)
	assert.Equal(t, "info", cfg.LoggingLevel)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MIN_CELL_VOLTAGE", "2.7")
	t.Setenv("NUMBER_OF_PACKS", "4")
	t.Setenv("MQTT_HOST", "broker.local")
	t.Setenv("MQTT_PORT", "8883")
	t.Setenv("ENABLE_HA_DISCOVERY_CONFIG", "false")
	t.Setenv("LOGGING_LEVEL", "debug")

	cfg := Load("")

	assert.Equal(t, 2.7, cfg.MinCellVoltage)
	assert.Equal(t, 4, cfg.NumberOfPacks)
	assert.Equal(t, "broker.local", cfg.MQTTHost)
	assert.Equal(t, 8883, cfg.MQTTPort)
	assert.False(t, cfg.EnableHADiscoveryConfig)
	assert.Equal(t, "debug", cfg.LoggingLevel)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("NUMBER_OF_PACKS", "many")
	t.Setenv("MAX_CELL_VOLTAGE", "high")

	cfg := Load("")

	assert.Equal(t, 1, cfg.NumberOfPacks)
	assert.Equal(t, 3.650, cfg.MaxCellVoltage)
}

func TestLoadMissingEnvFileIgnored(t *testing.T) {
	require.NotPanics(t, func() {
		Load("/nonexistent/path/.env")
	})
}

func TestBoolParsing(t *testing.T) {
	cases := map[string]bool{
		"true": true, "TRUE": true, "1": true, "yes": true, "On": true,
		"false": false, "0": false, "no": false, "off": false, "bogus": false,
	}
	for raw, want := range cases {
		t.Setenv("ENABLE_HA_DISCOVERY_CONFIG", raw)
		cfg := Load("")
		assert.Equalf(t, want, cfg.EnableHADiscoveryConfig, "value %q", raw)
	}
}

func TestBaudRate(t *testing.T) {
	cfg := &Config{NumberOfPacks: 1}
	assert.Equal(t, seplos.BaudSinglePack, cfg.BaudRate())

	cfg.NumberOfPacks = 2
	assert.Equal(t, seplos.BaudMultiPack, cfg.BaudRate())
}
