// Package kafka implements a franz-go-backed ingest.Source, adapted from
// the teacher's kafka/consumer.go client construction and poll loop, with
// the topic/handler swapped from price-tick JSON to raw VAA/accumulator
// byte payloads distinguished by topic name.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/pyth-network/hermes-go/internal/aggregate"
	"github.com/pyth-network/hermes-go/internal/ingest"
)

type Config struct {
	Brokers          []string
	ConsumerGroup    string
	VAATopic         string
	AccumulatorTopic string
}

// Source consumes both Hermes topics from a single consumer group.
type Source struct {
	cfg Config
	log zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Source {
	return &Source{cfg: cfg, log: log}
}

func (s *Source) Run(ctx context.Context, updates chan<- aggregate.Update) error {
	if len(s.cfg.Brokers) == 0 {
		return fmt.Errorf("ingest/kafka: at least one broker is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.cfg.Brokers...),
		kgo.ConsumerGroup(s.cfg.ConsumerGroup),
		kgo.ConsumeTopics(s.cfg.VAATopic, s.cfg.AccumulatorTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxBytes(10*1024*1024),
		kgo.SessionTimeout(30*time.Second),
		kgo.RebalanceTimeout(60*time.Second),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			s.log.Info().Interface("partitions", assigned).Msg("ingest/kafka: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			s.log.Info().Interface("partitions", revoked).Msg("ingest/kafka: partitions revoked")
		}),
	)
	if err != nil {
		return fmt.Errorf("ingest/kafka: create client: %w", err)
	}
	defer client.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fetches := client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		for _, err := range fetches.Errors() {
			s.log.Error().Err(err.Err).Str("topic", err.Topic).Int32("partition", err.Partition).Msg("ingest/kafka: fetch error")
		}

		fetches.EachRecord(func(record *kgo.Record) {
			s.handleRecord(ctx, record, updates)
		})
	}
}

func (s *Source) handleRecord(ctx context.Context, record *kgo.Record, updates chan<- aggregate.Update) {
	var update aggregate.Update
	switch record.Topic {
	case s.cfg.VAATopic:
		update = aggregate.VAAUpdate{Bytes: append([]byte(nil), record.Value...)}
	case s.cfg.AccumulatorTopic:
		batch, err := ingest.DecodeAccumulatorBatch(record.Value)
		if err != nil {
			s.log.Warn().Err(err).Str("topic", record.Topic).Msg("ingest/kafka: dropping malformed accumulator batch")
			return
		}
		update = aggregate.AccumulatorUpdate{Batch: batch}
	default:
		return
	}

	select {
	case updates <- update:
	case <-ctx.Done():
	}
}
