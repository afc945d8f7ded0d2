// Package nats implements a NATS-backed ingest.Source: two subject
// subscriptions (VAA bytes and raw accumulator batches) feeding the
// Aggregator's update channel, grounded on the standard nats.go
// Subscribe/Msg pattern.
package nats

import (
	"context"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pyth-network/hermes-go/internal/aggregate"
	"github.com/pyth-network/hermes-go/internal/ingest"
)

type Config struct {
	URL                string
	VAASubject         string
	AccumulatorSubject string
}

func DefaultConfig() Config {
	return Config{
		URL:                natsgo.DefaultURL,
		VAASubject:         "hermes.vaa",
		AccumulatorSubject: "hermes.accumulator",
	}
}

// Source subscribes to both Hermes subjects on a single NATS connection.
type Source struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Source {
	return &Source{cfg: cfg, log: log}
}

func (s *Source) Run(ctx context.Context, updates chan<- aggregate.Update) error {
	nc, err := natsgo.Connect(s.cfg.URL, natsgo.MaxReconnects(-1), natsgo.ReconnectWait(time.Second))
	if err != nil {
		return fmt.Errorf("ingest/nats: connect: %w", err)
	}
	defer nc.Close()

	vaaSub, err := nc.Subscribe(s.cfg.VAASubject, func(msg *natsgo.Msg) {
		select {
		case updates <- aggregate.VAAUpdate{Bytes: append([]byte(nil), msg.Data...)}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("ingest/nats: subscribe %s: %w", s.cfg.VAASubject, err)
	}
	defer vaaSub.Unsubscribe()

	accSub, err := nc.Subscribe(s.cfg.AccumulatorSubject, func(msg *natsgo.Msg) {
		batch, err := ingest.DecodeAccumulatorBatch(msg.Data)
		if err != nil {
			s.log.Warn().Err(err).Msg("ingest/nats: dropping malformed accumulator batch")
			return
		}
		select {
		case updates <- aggregate.AccumulatorUpdate{Batch: batch}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("ingest/nats: subscribe %s: %w", s.cfg.AccumulatorSubject, err)
	}
	defer accSub.Unsubscribe()

	s.log.Info().Str("url", s.cfg.URL).Msg("ingest/nats: subscribed")

	<-ctx.Done()
	return ctx.Err()
}
