// Package ingest defines the transport-agnostic contract Hermes's ingestion
// backends satisfy, plus the wire decoder for the raw per-slot accumulator
// batch format those backends carry (distinct from the client-facing PNAU
// envelope in internal/wire: this is the geyser-side raw-message batch, not
// the VAA-plus-proof bundle pushed to subscribers).
package ingest

import (
	"context"
	"fmt"

	"github.com/pyth-network/hermes-go/internal/aggregate"
	"github.com/pyth-network/hermes-go/internal/cache"
	"github.com/pyth-network/hermes-go/internal/wire"
)

// Source is a running ingestion backend: it feeds aggregate.Update values
// (raw VAA bytes or a slot's raw accumulator batch) onto updates until ctx
// is cancelled or an unrecoverable error occurs.
type Source interface {
	Run(ctx context.Context, updates chan<- aggregate.Update) error
}

var accumulatorBatchMagic = [4]byte{'A', 'C', 'C', 'B'}

// DecodeAccumulatorBatch parses the raw per-slot message batch Hermes
// receives from its accumulator-side ingestion transport: a 4-byte magic,
// the slot number, the Merkle accumulator's ring size, and a u16-prefixed
// count of u16-length-prefixed raw messages.
func DecodeAccumulatorBatch(raw []byte) (cache.AccumulatorMessages, error) {
	r := wire.NewReader(raw)

	magic, err := r.Fixed(4)
	if err != nil {
		return cache.AccumulatorMessages{}, fmt.Errorf("ingest: read magic: %w", err)
	}
	var gotMagic [4]byte
	copy(gotMagic[:], magic)
	if gotMagic != accumulatorBatchMagic {
		return cache.AccumulatorMessages{}, fmt.Errorf("ingest: bad accumulator batch magic %q", magic)
	}

	slot, err := r.U64()
	if err != nil {
		return cache.AccumulatorMessages{}, fmt.Errorf("ingest: read slot: %w", err)
	}
	ringSize, err := r.U32()
	if err != nil {
		return cache.AccumulatorMessages{}, fmt.Errorf("ingest: read ring size: %w", err)
	}
	count, err := r.U16()
	if err != nil {
		return cache.AccumulatorMessages{}, fmt.Errorf("ingest: read message count: %w", err)
	}

	messages := make([][]byte, 0, count)
	for i := uint16(0); i < count; i++ {
		msg, err := r.PrefixedU16()
		if err != nil {
			return cache.AccumulatorMessages{}, fmt.Errorf("ingest: read message %d: %w", i, err)
		}
		messages = append(messages, msg)
	}

	return cache.AccumulatorMessages{
		Magic:       gotMagic,
		Slot:        slot,
		RingSize:    ringSize,
		RawMessages: messages,
	}, nil
}

// EncodeAccumulatorBatch is the inverse of DecodeAccumulatorBatch, used by
// test fixtures and any loopback ingestion source.
func EncodeAccumulatorBatch(batch cache.AccumulatorMessages) []byte {
	w := wire.NewWriter()
	w.Fixed(accumulatorBatchMagic[:])
	w.U64(batch.Slot)
	w.U32(batch.RingSize)
	w.U16(uint16(len(batch.RawMessages)))
	for _, msg := range batch.RawMessages {
		w.PrefixedU16(msg)
	}
	return w.Bytes()
}
