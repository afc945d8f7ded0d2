package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pyth-network/hermes-go/internal/bus"
	"github.com/pyth-network/hermes-go/internal/cache"
	"github.com/pyth-network/hermes-go/internal/crypto"
	"github.com/pyth-network/hermes-go/internal/vaa"
	"github.com/pyth-network/hermes-go/internal/wire"
)

// ReadinessConfig bounds the readiness probe exposed to health checks:
// the aggregator is ready only while the newest completion is fresher than
// MaxStaleness and the gap between the highest observed slot and the
// latest completed one is at most MaxSlotLag (spec.md §4.4).
type ReadinessConfig struct {
	MaxStaleness time.Duration
	MaxSlotLag   uint64
}

func DefaultReadinessConfig() ReadinessConfig {
	return ReadinessConfig{MaxStaleness: 30 * time.Second, MaxSlotLag: 10}
}

// completedCap bounds how many slots' completion state the aggregator
// remembers, mirroring the dedup set in internal/vaa: oldest-evicted rather
// than unbounded, since a slot that completed an hour ago will never be
// re-delivered by a healthy upstream.
const completedCap = 1000

// guardianSetExpiration matches Wormhole's conventional
// guardian_set_expiration_time: once a newer set is recognized, the
// previous one stays valid for this long before the verifier rejects it.
const guardianSetExpiration = 24 * time.Hour

// Aggregator implements spec.md §4.4: it joins accumulator batches with
// their VAA-signed Merkle root by slot, reconstructs the batch's Merkle
// tree to derive and verify each message's proof, and tracks readiness and
// pruning across completions.
type Aggregator struct {
	cache        *cache.Cache
	verifier     *vaa.Verifier
	guardianSets *vaa.GuardianSetStore
	events       *bus.Bus[AggregationEvent]
	fallback     BenchmarkFallback
	log          zerolog.Logger
	readiness    ReadinessConfig
	now          func() time.Time

	stateMu                 sync.Mutex
	latestCompletedSlot     uint64
	latestObservedSlot      uint64
	latestCompletedUpdateAt time.Time

	completedMu    sync.Mutex
	completed      map[uint64]struct{}
	completedOrder []uint64
}

func NewAggregator(c *cache.Cache, v *vaa.Verifier, guardianSets *vaa.GuardianSetStore, events *bus.Bus[AggregationEvent], fallback BenchmarkFallback, log zerolog.Logger) *Aggregator {
	if fallback == nil {
		fallback = NoopBenchmarkFallback{}
	}
	return &Aggregator{
		cache:        c,
		verifier:     v,
		guardianSets: guardianSets,
		events:       events,
		fallback:     fallback,
		log:          log,
		readiness:    DefaultReadinessConfig(),
		now:          time.Now,
		completed:    make(map[uint64]struct{}),
	}
}

// SetReadiness overrides the default readiness thresholds, letting the
// operator tune staleness/lag bounds via configuration.
func (a *Aggregator) SetReadiness(r ReadinessConfig) {
	a.readiness = r
}

// StoreUpdate ingests one unit of upstream data: a raw VAA or a slot's raw
// accumulator message batch.
func (a *Aggregator) StoreUpdate(ctx context.Context, u Update) error {
	switch typed := u.(type) {
	case VAAUpdate:
		return a.handleVAA(typed.Bytes)
	case AccumulatorUpdate:
		return a.handleAccumulator(typed.Batch)
	default:
		return fmt.Errorf("aggregate: unknown update type %T", u)
	}
}

func (a *Aggregator) handleVAA(raw []byte) error {
	vm, err := a.verifier.Verify(raw)
	if err != nil {
		return fmt.Errorf("aggregate: verify vaa: %w", err)
	}

	if update, ok, err := vaa.ParseGuardianSetUpdate(vm.Payload); err != nil {
		return fmt.Errorf("aggregate: parse governance payload: %w", err)
	} else if ok {
		a.applyGuardianSetUpdate(update)
		return nil
	}

	root, err := wire.DecodeWormholeMerkleRoot(vm.Payload)
	if err != nil {
		return fmt.Errorf("aggregate: decode wormhole payload: %w", err)
	}
	a.cache.StoreWormholeMerkleState(cache.WormholeMerkleState{VAABytes: raw, Root: root})
	a.observeSlot(root.Slot)
	return a.tryComplete(root.Slot)
}

func (a *Aggregator) handleAccumulator(batch cache.AccumulatorMessages) error {
	a.cache.StoreAccumulatorMessages(batch)
	a.observeSlot(batch.Slot)
	return a.tryComplete(batch.Slot)
}

// applyGuardianSetUpdate installs a recognized governance VAA's new
// guardian set as current, giving the previous current set a grace
// expiration instead of dropping it immediately (spec.md §3's GuardianSet
// model, §4.2's expiration handling).
func (a *Aggregator) applyGuardianSetUpdate(update vaa.GuardianSetUpdate) {
	if previous, ok := a.guardianSets.Get(a.guardianSets.CurrentIndex()); ok && previous.ExpirationTime == 0 {
		previous.ExpirationTime = uint32(a.now().Add(guardianSetExpiration).Unix())
		a.guardianSets.Upsert(previous, false)
	}
	a.guardianSets.Upsert(vaa.GuardianSet{Index: update.NewIndex, Keys: update.Keys}, true)
	a.log.Info().Uint32("new_index", update.NewIndex).Int("keys", len(update.Keys)).Msg("guardian set updated")
}

func (a *Aggregator) observeSlot(slot uint64) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if slot > a.latestObservedSlot {
		a.latestObservedSlot = slot
	}
}

// markCompleted returns false if slot was already marked, evicting the
// oldest entry once the set is at capacity.
func (a *Aggregator) markCompleted(slot uint64) bool {
	a.completedMu.Lock()
	defer a.completedMu.Unlock()
	if _, ok := a.completed[slot]; ok {
		return false
	}
	if len(a.completedOrder) >= completedCap {
		oldest := a.completedOrder[0]
		a.completedOrder = a.completedOrder[1:]
		delete(a.completed, oldest)
	}
	a.completed[slot] = struct{}{}
	a.completedOrder = append(a.completedOrder, slot)
	return true
}

// tryComplete joins a slot's accumulator batch with its Merkle-root VAA, if
// both have arrived, reconstructing the batch's Merkle tree to verify and
// attach a proof for every message. It is a no-op if either side is still
// missing, or if the slot already completed.
func (a *Aggregator) tryComplete(slot uint64) error {
	accBatch, ok := a.cache.GetAccumulatorMessages(slot)
	if !ok {
		return nil
	}
	merkleState, ok := a.cache.GetWormholeMerkleState(slot)
	if !ok {
		return nil
	}
	if !a.markCompleted(slot) {
		return nil
	}

	tree := crypto.BuildMerkleTree(accBatch.RawMessages)
	root := tree.Root()
	if root != [20]byte(merkleState.Root.Root) {
		a.log.Error().Uint64("slot", slot).Msg("accumulator batch does not match vaa-signed merkle root")
		return ErrInvalidMerkleProof
	}

	states := make([]cache.MessageState, 0, len(accBatch.RawMessages))
	keys := make([]cache.MessageKey, 0, len(accBatch.RawMessages))
	for i, raw := range accBatch.RawMessages {
		typ, msg, err := wire.ParseMessage(raw)
		if err != nil {
			a.log.Warn().Uint64("slot", slot).Int("index", i).Err(err).Msg("skipping undecodable accumulator message")
			continue
		}
		proof := tree.ProofFor(i)
		if !crypto.VerifyMerklePath(raw, proof, root) {
			return fmt.Errorf("%w: slot %d index %d", ErrInvalidMerkleProof, slot, i)
		}
		wireProof := make([]wire.Hash20, len(proof))
		for j, h := range proof {
			wireProof[j] = wire.Hash20(h)
		}
		states = append(states, cache.MessageState{
			Slot:       slot,
			ReceivedAt: a.now(),
			Message:    *msg,
			RawMessage: raw,
			ProofSet: cache.ProofSet{
				WormholeMerkleProof: cache.WormholeMerkleProof{
					VAA:        merkleState.VAABytes,
					MerklePath: wireProof,
				},
			},
		})
		keys = append(keys, cache.MessageKey{FeedID: msg.FeedID, MessageType: typ})
	}

	for i, st := range states {
		key := keys[i]
		a.cache.StoreMessageStates([]cache.MessageState{st}, func(cache.MessageState) cache.MessageKey { return key })
	}

	a.stateMu.Lock()
	isNew := slot > a.latestCompletedSlot
	if isNew {
		a.latestCompletedSlot = slot
		a.latestCompletedUpdateAt = a.now()
	}
	a.stateMu.Unlock()

	feedIDs := make([]wire.FeedID, len(keys))
	for i, k := range keys {
		feedIDs[i] = k.FeedID
	}

	if isNew {
		currentKeys := make(map[cache.MessageKey]struct{}, len(keys))
		for _, k := range keys {
			currentKeys[k] = struct{}{}
		}
		a.cache.PruneRemovedKeys(currentKeys)
		a.events.Publish(AggregationEvent{Kind: EventNew, Slot: slot, FeedIDs: feedIDs})
	} else {
		a.events.Publish(AggregationEvent{Kind: EventOutOfOrder, Slot: slot, FeedIDs: feedIDs})
	}
	return nil
}

// IsReady reports whether the aggregator satisfies spec.md §4.4's
// readiness probe: a completion within MaxStaleness and a slot lag no
// greater than MaxSlotLag.
func (a *Aggregator) IsReady() bool {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if a.latestCompletedUpdateAt.IsZero() {
		return false
	}
	if a.now().Sub(a.latestCompletedUpdateAt) >= a.readiness.MaxStaleness {
		return false
	}
	return a.latestObservedSlot-a.latestCompletedSlot <= a.readiness.MaxSlotLag
}

// LatestCompletedSlot returns the highest slot number to have completed.
func (a *Aggregator) LatestCompletedSlot() uint64 {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.latestCompletedSlot
}

// KnownFeedIDs returns the set of price feed ids the cache currently holds
// state for, used by the WebSocket Subscriber to validate subscribe
// requests and to re-intersect a feed list after a NotFound fetch
// (spec.md §4.5/§4.6).
func (a *Aggregator) KnownFeedIDs() map[wire.FeedID]struct{} {
	keys := a.cache.FeedIDs()
	out := make(map[wire.FeedID]struct{}, len(keys))
	for key := range keys {
		out[key.FeedID] = struct{}{}
	}
	return out
}

// GetPriceFeedsWithUpdateData resolves rt for each requested feed and
// returns its current value plus client-relayable update data. All-or-
// nothing: any feed miss fails the whole call with cache.ErrNotFound,
// except that a FirstAfter miss falls through to the BenchmarkFallback
// before giving up.
func (a *Aggregator) GetPriceFeedsWithUpdateData(ctx context.Context, feedIDs []wire.FeedID, rt RequestTime) ([]PriceFeedUpdate, error) {
	keys := make([]cache.MessageKey, len(feedIDs))
	for i, id := range feedIDs {
		keys[i] = cache.MessageKey{FeedID: id, MessageType: wire.MessageTypePriceFeed}
	}

	states, err := a.cache.FetchMessageStates(keys, rt.toLookup())
	if err != nil {
		if rt.Kind == RequestFirstAfter {
			return a.fallbackFeeds(ctx, feedIDs, rt.Time)
		}
		return nil, err
	}

	out := make([]PriceFeedUpdate, len(states))
	for i, st := range states {
		out[i] = PriceFeedUpdate{
			FeedID:          st.Message.FeedID,
			Price:           st.Message,
			Slot:            st.Slot,
			ReceivedAt:      st.ReceivedAt,
			UpdateData:      buildUpdateData(st),
			PrevPublishTime: st.Message.PrevPublishTime,
		}
	}
	return out, nil
}

func (a *Aggregator) fallbackFeeds(ctx context.Context, feedIDs []wire.FeedID, publishTime int64) ([]PriceFeedUpdate, error) {
	out := make([]PriceFeedUpdate, len(feedIDs))
	for i, id := range feedIDs {
		msg, updateData, err := a.fallback.Fetch(ctx, id, publishTime)
		if err != nil {
			return nil, err
		}
		out[i] = PriceFeedUpdate{FeedID: id, Price: msg, UpdateData: updateData, PrevPublishTime: msg.PrevPublishTime}
	}
	return out, nil
}

// buildUpdateData re-assembles the PNAU client-facing envelope for a single
// feed's message: its owning VAA plus its own Merkle path.
func buildUpdateData(st cache.MessageState) []byte {
	proof := st.ProofSet.WormholeMerkleProof
	return wire.EncodeAccumulatorUpdate(wire.AccumulatorUpdate{
		MajorVersion: 1,
		MinorVersion: 0,
		Proof: wire.WormholeMerkleProof{
			VAA: proof.VAA,
			Updates: []wire.MerkleUpdate{
				{Message: st.RawMessage, MerklePath: proof.MerklePath},
			},
		},
	})
}
