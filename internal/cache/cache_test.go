package cache

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pyth-network/hermes-go/internal/wire"
)

func feedKey(seed byte) MessageKey {
	var id wire.FeedID
	id[0] = seed
	return MessageKey{FeedID: id, MessageType: wire.MessageTypePriceFeed}
}

func stateAt(key MessageKey, publishTime int64, slot uint64) MessageState {
	return MessageState{
		Slot:       slot,
		ReceivedAt: time.Unix(0, 0),
		Message: wire.PriceFeedMessage{
			FeedID:      key.FeedID,
			PublishTime: publishTime,
		},
	}
}

func newTestCache(capacity int) *Cache {
	return New(Config{AccumulatorCacheSize: capacity, MerkleStateCacheSize: capacity, MessageCacheSize: capacity})
}

// Scenario 2: Cache Latest with out-of-order inserts.
func TestScenario2_LatestAndFirstAfter(t *testing.T) {
	c := newTestCache(2)
	key := feedKey(1)
	keyOf := func(MessageState) MessageKey { return key }

	c.StoreMessageStates([]MessageState{stateAt(key, 10, 5)}, keyOf)
	c.StoreMessageStates([]MessageState{stateAt(key, 20, 10)}, keyOf)
	c.StoreMessageStates([]MessageState{stateAt(key, 10, 5)}, keyOf)

	latest, err := c.FetchMessageStates([]MessageKey{key}, LatestLookup())
	require.NoError(t, err)
	require.Equal(t, int64(20), latest[0].Message.PublishTime)
	require.Equal(t, uint64(10), latest[0].Slot)

	first, err := c.FetchMessageStates([]MessageKey{key}, FirstAfterLookup(10))
	require.NoError(t, err)
	require.Equal(t, int64(10), first[0].Message.PublishTime)
	require.Equal(t, uint64(5), first[0].Slot)
}

// Scenario 3: Cache LatestTimeEarliestSlot.
func TestScenario3_LatestTimeEarliestSlot(t *testing.T) {
	c := newTestCache(3)
	key := feedKey(1)
	keyOf := func(MessageState) MessageKey { return key }

	insert := func(pt int64, slot uint64) {
		c.StoreMessageStates([]MessageState{stateAt(key, pt, slot)}, keyOf)
	}

	insert(10, 7)
	insert(10, 10)
	insert(10, 5)

	ltes, err := c.FetchMessageStates([]MessageKey{key}, LatestTimeEarliestSlotLookup())
	require.NoError(t, err)
	require.Equal(t, int64(10), ltes[0].Message.PublishTime)
	require.Equal(t, uint64(5), ltes[0].Slot)

	// (8,3) sorts below every stored entry, so with the bucket at its cap of
	// 3 it is evicted as soon as it is inserted and LTES is unchanged.
	insert(8, 3)
	ltes, err = c.FetchMessageStates([]MessageKey{key}, LatestTimeEarliestSlotLookup())
	require.NoError(t, err)
	require.Equal(t, int64(10), ltes[0].Message.PublishTime)

	insert(15, 20)
	ltes, err = c.FetchMessageStates([]MessageKey{key}, LatestTimeEarliestSlotLookup())
	require.NoError(t, err)
	require.Equal(t, int64(15), ltes[0].Message.PublishTime)
	require.Equal(t, uint64(20), ltes[0].Slot)

	insert(20, 35)
	insert(20, 30)
	ltes, err = c.FetchMessageStates([]MessageKey{key}, LatestTimeEarliestSlotLookup())
	require.NoError(t, err)
	require.Equal(t, int64(20), ltes[0].Message.PublishTime)
	require.Equal(t, uint64(30), ltes[0].Slot)
}

func TestFirstAfter_FailsWhenEarliestEntryIsPastT(t *testing.T) {
	c := newTestCache(2)
	key := feedKey(1)
	keyOf := func(MessageState) MessageKey { return key }
	c.StoreMessageStates([]MessageState{stateAt(key, 50, 1)}, keyOf)

	_, err := c.FetchMessageStates([]MessageKey{key}, FirstAfterLookup(10))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAtSlot_NotFound(t *testing.T) {
	c := newTestCache(2)
	key := feedKey(1)
	keyOf := func(MessageState) MessageKey { return key }
	c.StoreMessageStates([]MessageState{stateAt(key, 10, 1)}, keyOf)

	_, err := c.FetchMessageStates([]MessageKey{key}, AtSlotLookup(99))
	require.ErrorIs(t, err, ErrNotFound)
}

// Eviction invariant: after N inserts into a cap-C bucket with distinct
// keys, exactly min(N,C) remain, and they are the C with the largest keys.
func TestEviction_RetainsLargestC(t *testing.T) {
	const n = 1000
	const capacity = 100
	c := newTestCache(capacity)
	key := feedKey(1)
	keyOf := func(MessageState) MessageKey { return key }

	slots := rand.Perm(n)
	for _, slot := range slots {
		c.StoreMessageStates([]MessageState{stateAt(key, int64(slot), uint64(slot))}, keyOf)
	}

	bucket := c.messages[key]
	require.Equal(t, capacity, bucket.len())
	for i, k := range bucket.keys {
		require.Equal(t, int64(n-capacity+i), k.PublishTime)
	}
}

// All-or-nothing multi-feed fetch: any miss fails the whole batch.
func TestFetch_AllOrNothing(t *testing.T) {
	c := newTestCache(2)
	key1 := feedKey(1)
	key2 := feedKey(2)
	c.StoreMessageStates([]MessageState{stateAt(key1, 10, 1)}, func(MessageState) MessageKey { return key1 })

	_, err := c.FetchMessageStates([]MessageKey{key1, key2}, LatestLookup())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPruneRemovedKeys(t *testing.T) {
	c := newTestCache(2)
	key1 := feedKey(1)
	key2 := feedKey(2)
	c.StoreMessageStates([]MessageState{stateAt(key1, 10, 1)}, func(MessageState) MessageKey { return key1 })
	c.StoreMessageStates([]MessageState{stateAt(key2, 10, 1)}, func(MessageState) MessageKey { return key2 })

	c.PruneRemovedKeys(map[MessageKey]struct{}{key1: {}})

	_, err := c.FetchMessageStates([]MessageKey{key2}, LatestLookup())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.FetchMessageStates([]MessageKey{key1}, LatestLookup())
	require.NoError(t, err)
}

func TestStoreAccumulatorMessages_Idempotent(t *testing.T) {
	c := newTestCache(10)
	batch := AccumulatorMessages{Slot: 5}
	require.True(t, c.StoreAccumulatorMessages(batch))
	require.False(t, c.StoreAccumulatorMessages(batch))
}
