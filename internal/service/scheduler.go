// Package service drives the polling loop: it walks the configured
// packs round-robin, publishes changed readings and keeps the
// availability topic fresh.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Privatecoder/seplos-mqtt-remote-rs485/pkg/seplos"
)

const (
	defaultPackDelay    = time.Second
	defaultErrorBackoff = 10 * time.Second
)

// PackReader polls one battery pack.
type PackReader interface {
	Address() byte
	ReadData() (*seplos.PackData, error)
}

// DataPublisher pushes pack state and bridge availability out.
type DataPublisher interface {
	PublishSensorData(address byte, data *seplos.PackData) error
	PublishAvailability(online bool) error
}

// Scheduler polls every pack in turn. One scheduler owns the bus; the
// packs share a single serial line, so reads are strictly sequential.
type Scheduler struct {
	packs     []PackReader
	publisher DataPublisher
	logger    zerolog.Logger

	// Pause after each pack to keep the RS485 bus quiet between
	// transactions.
	packDelay time.Duration

	// Pause after a full round over all packs. Zero polls
	// continuously.
	updateInterval time.Duration

	// Pause after a publish failure before touching the bus again.
	errorBackoff time.Duration
}

func NewScheduler(packs []PackReader, publisher DataPublisher, updateInterval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		packs:          packs,
		publisher:      publisher,
		logger:         logger.With().Str("component", "scheduler").Logger(),
		packDelay:      defaultPackDelay,
		updateInterval: updateInterval,
		errorBackoff:   defaultErrorBackoff,
	}
}

// Run polls until ctx is cancelled. A pack that exhausts its read
// retries is skipped for the round; publish failures back off before
// the next attempt.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		for _, pack := range s.packs {
			if err := ctx.Err(); err != nil {
				return err
			}
			s.pollPack(ctx, pack)

			if err := sleepCtx(ctx, s.packDelay); err != nil {
				return err
			}
		}

		if s.updateInterval > 0 {
			s.logger.Info().Dur("interval", s.updateInterval).Msg("round complete, waiting for next cycle")
			if err := sleepCtx(ctx, s.updateInterval); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) pollPack(ctx context.Context, pack PackReader) {
	logger := s.logger.With().Int("pack", int(pack.Address())).Logger()

	data, err := pack.ReadData()
	switch {
	case errors.Is(err, seplos.ErrRetriesExhausted):
		logger.Error().Err(err).Msg("pack did not answer, skipping")
	case err != nil:
		logger.Error().Err(err).Msg("reading pack failed")
		if sleepErr := sleepCtx(ctx, s.errorBackoff); sleepErr != nil {
			return
		}
	case data == nil:
		logger.Info().Msg("no changes detected")
	default:
		logger.Info().Msg("publishing updated data")
		if err := s.publisher.PublishSensorData(pack.Address(), data); err != nil {
			logger.Error().Err(err).Msg("publishing sensor data failed")
			if sleepErr := sleepCtx(ctx, s.errorBackoff); sleepErr != nil {
				return
			}
		}
	}

	if err := s.publisher.PublishAvailability(true); err != nil {
		logger.Error().Err(err).Msg("publishing availability failed")
	}
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
