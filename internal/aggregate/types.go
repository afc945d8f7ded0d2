// Package aggregate implements the per-slot aggregation state machine:
// joining accumulator batches with their matching VAA-signed Merkle root,
// constructing per-feed Merkle-proven MessageStates, and publishing
// completion events, per spec.md §4.4.
package aggregate

import (
	"context"
	"errors"
	"time"

	"github.com/pyth-network/hermes-go/internal/cache"
	"github.com/pyth-network/hermes-go/internal/wire"
)

var (
	ErrInvalidMerkleProof            = errors.New("aggregate: invalid merkle proof")
	ErrInvalidAccumulatorMessageType = errors.New("aggregate: invalid accumulator message type")
	ErrNotFound                      = cache.ErrNotFound
)

// Update is the tagged input to Aggregator.StoreUpdate: either a raw VAA
// byte blob or a decoded accumulator batch.
type Update interface{ isUpdate() }

// VAAUpdate carries raw, not-yet-verified VAA bytes.
type VAAUpdate struct{ Bytes []byte }

func (VAAUpdate) isUpdate() {}

// AccumulatorUpdate carries one slot's raw accumulator message batch.
type AccumulatorUpdate struct{ Batch cache.AccumulatorMessages }

func (AccumulatorUpdate) isUpdate() {}

// EventKind distinguishes a newly-completed slot from a late-arriving one.
type EventKind int

const (
	EventNew EventKind = iota
	EventOutOfOrder
)

// AggregationEvent is published on the fan-out bus once a slot completes.
// FeedIDs lists the price feeds carried by that slot's batch, letting
// subscribers resolve exactly which feeds to push without re-reading the
// cache's full key set.
type AggregationEvent struct {
	Kind    EventKind
	Slot    uint64
	FeedIDs []wire.FeedID
}

// RequestTimeKind selects the public lookup vocabulary exposed to callers
// outside the cache (the Subscriber actor's replay message, any REST
// surface): narrower than cache.Lookup, matching the original's
// RequestTime.
type RequestTimeKind int

const (
	RequestLatest RequestTimeKind = iota
	RequestFirstAfter
	RequestAtSlot
)

type RequestTime struct {
	Kind RequestTimeKind
	Time int64
	Slot uint64
}

func (r RequestTime) toLookup() cache.Lookup {
	switch r.Kind {
	case RequestFirstAfter:
		return cache.FirstAfterLookup(r.Time)
	case RequestAtSlot:
		return cache.AtSlotLookup(r.Slot)
	default:
		return cache.LatestLookup()
	}
}

// PriceFeedUpdate is the read-model returned to callers: the feed's current
// value plus the wire-ready update_data bytes a client can relay on-chain.
type PriceFeedUpdate struct {
	FeedID          wire.FeedID
	Price           wire.PriceFeedMessage
	Slot            uint64
	ReceivedAt      time.Time
	UpdateData      []byte
	PrevPublishTime int64
}

// BenchmarkFallback resolves a feed's price as of a specific publish time
// from an out-of-process historical store, for requests the live cache
// cannot satisfy (spec.md §4.3's FirstAfter lookup beyond the cache's
// retained window). Hermes proper backs this with a REST call to a
// separate benchmarks service; StoreUpdate and the cache never need it.
type BenchmarkFallback interface {
	Fetch(ctx context.Context, feedID wire.FeedID, publishTime int64) (wire.PriceFeedMessage, []byte, error)
}

// NoopBenchmarkFallback always misses. It is the default fallback wired by
// cmd/hermesd until a benchmarks backend is configured.
type NoopBenchmarkFallback struct{}

func (NoopBenchmarkFallback) Fetch(context.Context, wire.FeedID, int64) (wire.PriceFeedMessage, []byte, error) {
	return wire.PriceFeedMessage{}, nil, ErrNotFound
}
