// Command seplos-mqtt polls one or more Seplos V2 battery packs over a
// shared RS485 line and republishes their state to an MQTT broker,
// optionally announcing every entity to Home Assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Privatecoder/seplos-mqtt-remote-rs485/internal/config"
	"github.com/Privatecoder/seplos-mqtt-remote-rs485/internal/publish"
	"github.com/Privatecoder/seplos-mqtt-remote-rs485/internal/service"
	"github.com/Privatecoder/seplos-mqtt-remote-rs485/pkg/seplos"
)

func main() {
	envFile := flag.String("env", "", "optional .env file with configuration overrides")
	flag.Parse()

	cfg := config.Load(*envFile)
	logger := newLogger(cfg.LoggingLevel)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("bridge terminated")
	}
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(parsed).With().Timestamp().Logger()
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher, err := publish.NewPublisher(publish.Options{
		Host:     cfg.MQTTHost,
		Port:     cfg.MQTTPort,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
		Topic:    cfg.MQTTTopic,

		DiscoveryEnabled:            cfg.EnableHADiscoveryConfig,
		DiscoveryPrefix:             cfg.HADiscoveryPrefix,
		InvertDisChargeMeasurements: cfg.InvertHADisChargeMeasurements,
	}, logger)
	if err != nil {
		return err
	}
	if err := publisher.Connect(); err != nil {
		return err
	}
	defer publisher.Close()

	transport, err := seplos.OpenSerial(cfg.SerialInterface, cfg.BaudRate())
	if err != nil {
		return err
	}
	defer transport.Close()
	logger.Info().
		Str("device", cfg.SerialInterface).
		Int("baud", cfg.BaudRate()).
		Msg("serial interface opened")

	limits := seplos.CellLimits{
		MinCellVoltage: cfg.MinCellVoltage,
		MaxCellVoltage: cfg.MaxCellVoltage,
	}
	packs := make([]service.PackReader, 0, cfg.NumberOfPacks)
	addresses := make([]int, 0, cfg.NumberOfPacks)
	for i := 0; i < cfg.NumberOfPacks; i++ {
		packs = append(packs, seplos.NewBatteryPack(byte(i), transport, limits, logger))
		addresses = append(addresses, i)
	}
	logger.Info().Int("packs", cfg.NumberOfPacks).Msg("battery packs initialized")

	if cfg.EnableHADiscoveryConfig {
		if err := publisher.PublishDiscovery(addresses); err != nil {
			return err
		}
		logger.Info().Msg("home assistant discovery configs published")
	}

	updateInterval := time.Duration(cfg.MQTTUpdateInterval) * time.Second
	scheduler := service.NewScheduler(packs, publisher, updateInterval, logger)

	err = scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("shutdown requested")
		return nil
	}
	return err
}
