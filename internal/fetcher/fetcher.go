package fetcher

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/pyth-network/hermes-go/internal/wire"
)

// DefaultStreamDisconnectDelay is how long a feed's stream stays open with
// no pending requests before Fetcher closes it (spec.md §4.6's idle
// policy).
const DefaultStreamDisconnectDelay = 30 * time.Second

type singleLookupResult struct {
	timestamp int64
	update    StreamUpdate
	err       error
}

// Fetcher is a single-feed actor: it owns requests (an inbound channel of
// PriceRequest) and responses (its outbound channel), and internally
// multiplexes one long-lived stream with as many single-timestamp lookups
// as needed to resolve every request.
type Fetcher struct {
	feedID          wire.FeedID
	source          Source
	requests        chan PriceRequest
	responses       chan<- PriceResponse
	disconnectDelay time.Duration
	log             zerolog.Logger

	pending             map[int64][]PriceRequest
	lastStreamTimestamp *int64
	lastActivityAt      time.Time

	stream       <-chan StreamUpdate
	cancelStream context.CancelFunc
	singleResult chan singleLookupResult

	ctx context.Context
}

func New(feedID wire.FeedID, source Source, responses chan<- PriceResponse, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		feedID:          feedID,
		source:          source,
		requests:        make(chan PriceRequest, 64),
		responses:       responses,
		disconnectDelay: DefaultStreamDisconnectDelay,
		log:             log,
		pending:         make(map[int64][]PriceRequest),
		singleResult:    make(chan singleLookupResult, 64),
	}
}

// Requests returns the channel callers send PriceRequest on. Closing it
// terminates Run (spec.md §4.6's cancellation rule).
func (f *Fetcher) Requests() chan<- PriceRequest { return f.requests }

// Run drives the actor until ctx is cancelled or Requests() is closed.
func (f *Fetcher) Run(ctx context.Context) {
	f.ctx = ctx
	defer f.closeStream()

	idleCheck := time.NewTicker(f.disconnectDelay)
	defer idleCheck.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case req, ok := <-f.requests:
			if !ok {
				return
			}
			f.handleRequest(ctx, req)

		case upd, ok := <-f.stream:
			if !ok {
				f.stream = nil
				continue
			}
			f.lastActivityAt = time.Now()
			f.handleStreamUpdate(upd)

		case res := <-f.singleResult:
			f.lastActivityAt = time.Now()
			f.handleSingleResult(res)

		case <-idleCheck.C:
			if len(f.pending) == 0 && time.Since(f.lastActivityAt) > f.disconnectDelay {
				f.closeStream()
			}
		}
	}
}

func (f *Fetcher) handleRequest(ctx context.Context, req PriceRequest) {
	f.lastActivityAt = time.Now()
	f.enqueue(req)

	if f.lastStreamTimestamp != nil && req.Timestamp <= *f.lastStreamTimestamp {
		f.issueSingleLookup(ctx, req.Timestamp)
	}
	f.ensureStreamOpen(ctx)
}

func (f *Fetcher) ensureStreamOpen(ctx context.Context) {
	if f.stream != nil {
		return
	}
	streamCtx, cancel := context.WithCancel(ctx)
	ch, err := f.source.OpenStream(streamCtx, f.feedID)
	if err != nil {
		cancel()
		f.log.Warn().Err(err).Msg("fetcher: failed to open stream")
		return
	}
	f.stream = ch
	f.cancelStream = cancel
}

func (f *Fetcher) closeStream() {
	if f.cancelStream != nil {
		f.cancelStream()
		f.cancelStream = nil
	}
	f.stream = nil
}

func (f *Fetcher) enqueue(req PriceRequest) {
	f.pending[req.Timestamp] = append(f.pending[req.Timestamp], req)
}

func (f *Fetcher) sortedPendingBefore(hi int64, strict bool) []int64 {
	var out []int64
	for ts := range f.pending {
		if (strict && ts < hi) || (!strict && ts <= hi) {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// handleStreamUpdate implements spec.md §4.6's per-update lifecycle.
func (f *Fetcher) handleStreamUpdate(upd StreamUpdate) {
	if f.lastStreamTimestamp == nil {
		for _, ts := range f.sortedPendingBefore(upd.PublishTime, true) {
			f.issueSingleLookup(f.ctx, ts)
		}
	}

	publishTime := upd.PublishTime
	f.lastStreamTimestamp = &publishTime

	if upd.PrevPublishTime == upd.PublishTime {
		return
	}

	f.fulfillRange(upd.PrevPublishTime, upd.PublishTime, upd.UpdateData)
}

func (f *Fetcher) issueSingleLookup(ctx context.Context, ts int64) {
	go func() {
		update, err := f.source.SingleLookup(ctx, f.feedID, ts)
		select {
		case f.singleResult <- singleLookupResult{timestamp: ts, update: update, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (f *Fetcher) handleSingleResult(res singleLookupResult) {
	if res.err != nil {
		reqs := f.pending[res.timestamp]
		delete(f.pending, res.timestamp)
		for _, req := range reqs {
			f.reply(req, nil, res.err)
		}
		f.log.Warn().Int64("timestamp", res.timestamp).Err(res.err).Msg("fetcher: single lookup failed")
		return
	}
	f.fulfillRange(res.update.PrevPublishTime, res.update.PublishTime, res.update.UpdateData)
}

// fulfillRange resolves every pending request with timestamp in (lo, hi]
// using data, matching spec.md §4.6's window semantics.
func (f *Fetcher) fulfillRange(lo, hi int64, data []byte) {
	for _, ts := range f.sortedPendingBefore(hi, false) {
		if ts <= lo {
			continue
		}
		reqs := f.pending[ts]
		delete(f.pending, ts)
		for _, req := range reqs {
			f.reply(req, data, nil)
		}
	}
}

func (f *Fetcher) reply(req PriceRequest, data []byte, err error) {
	select {
	case f.responses <- PriceResponse{Context: req.Context, UpdateData: data, Err: err}:
	default:
	}
}
