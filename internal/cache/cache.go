package cache

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by a lookup that cannot be satisfied without
// risking an incomplete answer, per spec.md §7.
var ErrNotFound = errors.New("cache: not found")

// LookupKind selects one of the four fetch modes of spec.md §4.3.
type LookupKind int

const (
	LookupLatest LookupKind = iota
	LookupLatestTimeEarliestSlot
	LookupFirstAfter
	LookupAtSlot
)

// Lookup parametrizes fetchMessageStates; Time is used by LookupFirstAfter,
// Slot by LookupAtSlot.
type Lookup struct {
	Kind LookupKind
	Time int64
	Slot uint64
}

func LatestLookup() Lookup                 { return Lookup{Kind: LookupLatest} }
func LatestTimeEarliestSlotLookup() Lookup { return Lookup{Kind: LookupLatestTimeEarliestSlot} }
func FirstAfterLookup(t int64) Lookup      { return Lookup{Kind: LookupFirstAfter, Time: t} }
func AtSlotLookup(slot uint64) Lookup      { return Lookup{Kind: LookupAtSlot, Slot: slot} }

// Config bounds each of the cache's three stores.
type Config struct {
	AccumulatorCacheSize int
	MerkleStateCacheSize int
	MessageCacheSize     int
}

// Cache is Hermes's per-feed historical state store. Each of the three maps
// is guarded by its own lock — the cache is read-heavy, write-light, and
// cross-map atomicity is never required (spec.md §4.3, §5).
type Cache struct {
	cfg Config

	accMu sync.RWMutex
	acc   *orderedSlotMap[AccumulatorMessages]

	merkleMu sync.RWMutex
	merkle   *orderedSlotMap[WormholeMerkleState]

	msgMu    sync.RWMutex
	messages map[MessageKey]*orderedTimeMap
}

func New(cfg Config) *Cache {
	return &Cache{
		cfg:      cfg,
		acc:      newOrderedSlotMap[AccumulatorMessages](cfg.AccumulatorCacheSize),
		merkle:   newOrderedSlotMap[WormholeMerkleState](cfg.MerkleStateCacheSize),
		messages: make(map[MessageKey]*orderedTimeMap),
	}
}

// StoreAccumulatorMessages idempotently inserts batch, returning
// inserted=false if its slot was already present. The write lock is held
// across the contains-check and the insert so that concurrent callers for
// the same slot cannot both observe "not present" (spec.md §4.4's "exactly
// one completion event per slot" relies on this).
func (c *Cache) StoreAccumulatorMessages(batch AccumulatorMessages) bool {
	c.accMu.Lock()
	defer c.accMu.Unlock()
	return c.acc.insert(batch.Slot, batch)
}

func (c *Cache) GetAccumulatorMessages(slot uint64) (AccumulatorMessages, bool) {
	c.accMu.RLock()
	defer c.accMu.RUnlock()
	return c.acc.get(slot)
}

// StoreWormholeMerkleState idempotently inserts a verified Merkle root for
// a slot.
func (c *Cache) StoreWormholeMerkleState(state WormholeMerkleState) bool {
	c.merkleMu.Lock()
	defer c.merkleMu.Unlock()
	return c.merkle.insert(state.Root.Slot, state)
}

func (c *Cache) GetWormholeMerkleState(slot uint64) (WormholeMerkleState, bool) {
	c.merkleMu.RLock()
	defer c.merkleMu.RUnlock()
	return c.merkle.get(slot)
}

// StoreMessageStates inserts each state into its feed's per-type bucket,
// keyed by (publish_time, slot), evicting the lowest-ordered entries past
// capacity.
func (c *Cache) StoreMessageStates(states []MessageState, keyOf func(MessageState) MessageKey) {
	c.msgMu.Lock()
	defer c.msgMu.Unlock()
	for _, st := range states {
		key := keyOf(st)
		bucket, ok := c.messages[key]
		if !ok {
			bucket = newOrderedTimeMap(c.cfg.MessageCacheSize)
			c.messages[key] = bucket
		}
		bucket.insert(st)
	}
}

// FetchMessageStates resolves lookup for every key, all-or-nothing: if any
// single key misses, the whole batch fails with ErrNotFound.
func (c *Cache) FetchMessageStates(keys []MessageKey, lookup Lookup) ([]MessageState, error) {
	c.msgMu.RLock()
	defer c.msgMu.RUnlock()

	out := make([]MessageState, 0, len(keys))
	for _, key := range keys {
		bucket, ok := c.messages[key]
		if !ok {
			return nil, ErrNotFound
		}
		var (
			st    MessageState
			found bool
		)
		switch lookup.Kind {
		case LookupLatest:
			st, found = bucket.latest()
		case LookupLatestTimeEarliestSlot:
			st, found = bucket.latestTimeEarliestSlot()
		case LookupFirstAfter:
			st, found = bucket.firstAfter(lookup.Time)
		case LookupAtSlot:
			st, found = bucket.atSlot(lookup.Slot)
		}
		if !found {
			return nil, ErrNotFound
		}
		out = append(out, st)
	}
	return out, nil
}

// PruneRemovedKeys drops any (feed_id, message_type) bucket not present in
// currentKeys — the cache loses that feed's history entirely, per spec.md
// §4.3.
func (c *Cache) PruneRemovedKeys(currentKeys map[MessageKey]struct{}) {
	c.msgMu.Lock()
	defer c.msgMu.Unlock()
	for key := range c.messages {
		if _, ok := currentKeys[key]; !ok {
			delete(c.messages, key)
		}
	}
}

// FeedIDs returns the set of (feed_id, message_type) keys currently held,
// used for subscription re-intersection and observability.
func (c *Cache) FeedIDs() map[MessageKey]struct{} {
	c.msgMu.RLock()
	defer c.msgMu.RUnlock()
	out := make(map[MessageKey]struct{}, len(c.messages))
	for key := range c.messages {
		out[key] = struct{}{}
	}
	return out
}
