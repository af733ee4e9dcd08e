package seplos

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrRetriesExhausted is returned when a command got no valid response
// within the retry budget. The pack's cycle is skipped for this round;
// the process keeps running.
var ErrRetriesExhausted = errors.New("retry budget exhausted")

const (
	frameReadRetries = 5
	frameReadTimeout = 2 * time.Second

	// The bus needs a settle period between back-to-back commands or
	// responses arrive corrupted.
	interCommandDelay = time.Second
)

// PackData is the composite handed to the publishing layer after a
// fully successful pack cycle.
type PackData struct {
	Telemetry         *TelemetryReading
	Telesignalization *TelesignalizationReading
}

// BatteryPack polls a single Seplos pack address over a shared
// transport and owns that pack's last decoded state. Not safe for
// concurrent use; one scheduling loop drives all packs in turn.
type BatteryPack struct {
	address   byte
	transport Transport
	limits    CellLimits
	logger    zerolog.Logger

	commandDelay time.Duration

	Telemetry         *TelemetryReading
	Telesignalization *TelesignalizationReading

	lastPublished []byte
}

func NewBatteryPack(address byte, transport Transport, limits CellLimits, logger zerolog.Logger) *BatteryPack {
	return &BatteryPack{
		address:      address,
		transport:    transport,
		limits:       limits,
		logger:       logger.With().Int("pack", int(address)).Logger(),
		commandDelay: interCommandDelay,
	}
}

func (p *BatteryPack) Address() byte { return p.address }

// requestFrame sends a command and reads until the frame delimiter,
// retrying on any validation failure up to the retry budget. The
// command is re-sent on every attempt, with buffers flushed first so a
// stale partial response cannot poison the next read.
func (p *BatteryPack) requestFrame(cid2 byte, expectedInfoLength int, label string) ([]byte, error) {
	command := EncodeCommand(p.address, cid2, nil)

	var lastErr error
	for attempt := 1; attempt <= frameReadRetries; attempt++ {
		if err := p.transport.FlushOutput(); err != nil {
			p.logger.Debug().Err(err).Msg("flushing output buffer")
		}
		if err := p.transport.FlushInput(); err != nil {
			p.logger.Debug().Err(err).Msg("flushing input buffer")
		}
		if err := p.transport.Write(command); err != nil {
			return nil, fmt.Errorf("writing %s command: %w", label, err)
		}

		raw, err := p.transport.ReadUntil(frameDelimiter, frameReadTimeout)
		if err != nil {
			lastErr = err
			p.logger.Debug().Err(err).Str("command", label).Int("attempt", attempt).Msg("read failed")
			continue
		}

		info, err := ValidateFrame(raw, p.address, expectedInfoLength)
		if err != nil {
			lastErr = err
			p.logger.Debug().Err(err).Str("command", label).Int("attempt", attempt).Msg("discarding invalid frame")
			continue
		}

		p.logger.Debug().Str("command", label).Int("attempt", attempt).Msg("valid frame received")
		return info, nil
	}

	return nil, fmt.Errorf("%w: %s command for pack %d after %d attempts: %v",
		ErrRetriesExhausted, label, p.address, frameReadRetries, lastErr)
}

// ReadData runs one full poll cycle: telemetry request, mandatory bus
// settle delay, telesignalization request. Both must succeed. Returns
// (nil, nil) when the decoded composite is identical to the last one
// handed out, so the caller can skip the publish.
func (p *BatteryPack) ReadData() (*PackData, error) {
	info, err := p.requestFrame(CmdTelemetry, telemetryInfoLength, "telemetry")
	if err != nil {
		return nil, err
	}
	telemetry, err := DecodeTelemetry(info, p.limits)
	if err != nil {
		return nil, fmt.Errorf("decoding telemetry: %w", err)
	}

	time.Sleep(p.commandDelay)

	info, err = p.requestFrame(CmdTelesignalization, telesignalizationInfoLength, "telesignalization")
	if err != nil {
		return nil, err
	}
	telesignalization, err := DecodeTelesignalization(info)
	if err != nil {
		return nil, fmt.Errorf("decoding telesignalization: %w", err)
	}

	p.Telemetry = telemetry
	p.Telesignalization = telesignalization

	data := &PackData{Telemetry: telemetry, Telesignalization: telesignalization}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("serializing pack data: %w", err)
	}
	if bytes.Equal(encoded, p.lastPublished) {
		return nil, nil
	}
	p.lastPublished = encoded
	return data, nil
}
