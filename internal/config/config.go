// Package config loads the bridge configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"strings"

	dotenv "github.com/joho/godotenv"

	"github.com/Privatecoder/seplos-mqtt-remote-rs485/pkg/seplos"
)

type Config struct {
	MinCellVoltage float64
	MaxCellVoltage float64
	NumberOfPacks  int

	SerialInterface string

	MQTTHost           string
	MQTTPort           int
	MQTTUsername       string
	MQTTPassword       string
	MQTTTopic          string
	MQTTUpdateInterval int // seconds between full polling rounds, 0 = continuous

	EnableHADiscoveryConfig       bool
	HADiscoveryPrefix             string
	InvertHADisChargeMeasurements bool

	LoggingLevel string
}

// Load reads the configuration from the environment. A non-empty
// envFile is loaded first; a missing file is not an error, matching a
// container deployment where everything arrives as real env vars.
func Load(envFile string) *Config {
	if envFile != "" {
		_ = dotenv.Load(envFile)
	}
	return &Config{
		MinCellVoltage: envFloat("MIN_CELL_VOLTAGE", 2.500),
		MaxCellVoltage: envFloat("MAX_CELL_VOLTAGE", 3.650),
		NumberOfPacks:  envInt("NUMBER_OF_PACKS", 1),

		SerialInterface: envString("SERIAL_INTERFACE", "/tmp/vcom0"),

		MQTTHost:           envString("MQTT_HOST", "192.168.1.100"),
		MQTTPort:           envInt("MQTT_PORT", 1883),
		MQTTUsername:       envString("MQTT_USERNAME", "seplos-mqtt"),
		MQTTPassword:       envString("MQTT_PASSWORD", ""),
		MQTTTopic:          envString("MQTT_TOPIC", "seplos"),
		MQTTUpdateInterval: envInt("MQTT_UPDATE_INTERVAL", 0),

		EnableHADiscoveryConfig:       envBool("ENABLE_HA_DISCOVERY_CONFIG", true),
		HADiscoveryPrefix:             envString("HA_DISCOVERY_PREFIX", "homeassistant"),
		InvertHADisChargeMeasurements: envBool("INVERT_HA_DIS_CHARGE_MEASUREMENTS", true),

		LoggingLevel: envString("LOGGING_LEVEL", "info"),
	}
}

// BaudRate picks the serial speed for the configured bus topology: a
// multi-pack bus runs slower than a directly attached single pack.
func (c *Config) BaudRate() int {
	if c.NumberOfPacks > 1 {
		return seplos.BaudMultiPack
	}
	return seplos.BaudSinglePack
}

func envString(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(name string, fallback float64) float64 {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(name string, fallback bool) bool {
	value := os.Getenv(name)
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}
