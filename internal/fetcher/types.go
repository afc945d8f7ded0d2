// Package fetcher implements the delayed-push core: a per-feed actor that
// multiplexes a long-lived update stream with on-demand single-timestamp
// lookups to satisfy requests for historical publish times, per spec.md
// §4.6.
package fetcher

import (
	"context"

	"github.com/pyth-network/hermes-go/internal/wire"
)

// StreamUpdate is one observation delivered either by the long-lived feed
// stream or by a single-timestamp lookup, normalized to the same shape so
// both can be matched against pending requests identically.
type StreamUpdate struct {
	PublishTime     int64
	PrevPublishTime int64
	UpdateData      []byte
}

// Source abstracts the upstream this Fetcher multiplexes: a feed's
// long-lived update stream, plus an on-demand point lookup for a single
// historical timestamp.
type Source interface {
	OpenStream(ctx context.Context, feedID wire.FeedID) (<-chan StreamUpdate, error)
	SingleLookup(ctx context.Context, feedID wire.FeedID, timestamp int64) (StreamUpdate, error)
}

// PriceRequest is consumed from a Fetcher's inbound channel.
type PriceRequest struct {
	Timestamp int64
	Context   any // opaque, echoed back verbatim on PriceResponse
}

// PriceResponse is produced on a Fetcher's outbound channel once Timestamp
// is resolved.
type PriceResponse struct {
	Context    any
	UpdateData []byte
	Err        error
}
