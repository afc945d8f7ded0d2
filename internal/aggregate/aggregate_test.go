package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pyth-network/hermes-go/internal/bus"
	"github.com/pyth-network/hermes-go/internal/cache"
	"github.com/pyth-network/hermes-go/internal/crypto"
	"github.com/pyth-network/hermes-go/internal/vaa"
	"github.com/pyth-network/hermes-go/internal/wire"
)

var testSource = vaa.Source{EmitterChain: 26, EmitterAddress: [32]byte{31: 0xAB}}

func setupAggregator(t *testing.T, numGuardians int) (*Aggregator, []*secp256k1.PrivateKey) {
	t.Helper()
	privs := make([]*secp256k1.PrivateKey, numGuardians)
	addrs := make([][20]byte, numGuardians)
	for i := range privs {
		priv, err := secp256k1.GeneratePrivateKey()
		require.NoError(t, err)
		privs[i] = priv
		addrs[i] = crypto.ParsePublicKey(priv)
	}

	store := vaa.NewGuardianSetStore()
	store.Upsert(vaa.GuardianSet{Index: 0, Keys: addrs}, true)
	verifier := vaa.NewVerifier(store, []vaa.Source{testSource})

	c := cache.New(cache.Config{AccumulatorCacheSize: 10, MerkleStateCacheSize: 10, MessageCacheSize: 10})
	events := bus.New[AggregationEvent](8)
	agg := NewAggregator(c, verifier, store, events, nil, zerolog.Nop())
	return agg, privs
}

func signVAA(privs []*secp256k1.PrivateKey, sequence uint64, payload []byte) []byte {
	body := wire.NewWriter()
	body.U32(0)
	body.U32(0)
	body.U16(testSource.EmitterChain)
	body.Fixed(testSource.EmitterAddress[:])
	body.U64(sequence)
	body.U8(0)
	body.Fixed(payload)
	bodyBytes := body.Bytes()

	h1 := crypto.Keccak256(bodyBytes)
	digest := crypto.Keccak256(h1[:])

	w := wire.NewWriter()
	w.U8(1)
	w.U32(0)
	w.U8(uint8(len(privs)))
	for i, priv := range privs {
		compact := ecdsa.SignCompact(priv, digest[:], false)
		w.U8(uint8(i))
		w.Fixed(compact[1:33])
		w.Fixed(compact[33:65])
		w.U8(compact[0] - 27)
	}
	w.Fixed(bodyBytes)
	return w.Bytes()
}

func batchFor(slot uint64, feedSeeds ...byte) (cache.AccumulatorMessages, [][]byte) {
	raws := make([][]byte, len(feedSeeds))
	for i, seed := range feedSeeds {
		var feedID wire.FeedID
		feedID[0] = seed
		msg := wire.PriceFeedMessage{FeedID: feedID, Price: 100, PublishTime: int64(slot)}
		raws[i] = msg.Serialize()
	}
	return cache.AccumulatorMessages{Slot: slot, RawMessages: raws}, raws
}

func rootVAAFor(t *testing.T, privs []*secp256k1.PrivateKey, sequence, slot uint64, raws [][]byte) []byte {
	t.Helper()
	tree := crypto.BuildMerkleTree(raws)
	payload := wire.EncodeWormholeMerkleRoot(wire.WormholeMerkleRoot{Slot: slot, Root: tree.Root()})
	return signVAA(privs, sequence, payload)
}

// Scenario 4: a newly-completed slot prunes feeds absent from its batch.
func TestScenario4_NewSlotPrunesAbsentFeeds(t *testing.T) {
	agg, privs := setupAggregator(t, 4)
	ctx := context.Background()

	batch1, raws1 := batchFor(1, 0x01, 0x02)
	require.NoError(t, agg.StoreUpdate(ctx, AccumulatorUpdate{Batch: batch1}))
	require.NoError(t, agg.StoreUpdate(ctx, VAAUpdate{Bytes: rootVAAFor(t, privs, 1, 1, raws1)}))

	var feed1, feed2 wire.FeedID
	feed1[0] = 0x01
	feed2[0] = 0x02
	_, err := agg.GetPriceFeedsWithUpdateData(ctx, []wire.FeedID{feed1, feed2}, RequestTime{Kind: RequestLatest})
	require.NoError(t, err)

	batch2, raws2 := batchFor(2, 0x01)
	require.NoError(t, agg.StoreUpdate(ctx, AccumulatorUpdate{Batch: batch2}))
	require.NoError(t, agg.StoreUpdate(ctx, VAAUpdate{Bytes: rootVAAFor(t, privs, 2, 2, raws2)}))

	_, err = agg.GetPriceFeedsWithUpdateData(ctx, []wire.FeedID{feed1}, RequestTime{Kind: RequestLatest})
	require.NoError(t, err)

	_, err = agg.GetPriceFeedsWithUpdateData(ctx, []wire.FeedID{feed2}, RequestTime{Kind: RequestLatest})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompletion_OutOfOrderClassification(t *testing.T) {
	agg, privs := setupAggregator(t, 4)
	ctx := context.Background()

	batch10, raws10 := batchFor(10, 0x01)
	require.NoError(t, agg.StoreUpdate(ctx, AccumulatorUpdate{Batch: batch10}))
	require.NoError(t, agg.StoreUpdate(ctx, VAAUpdate{Bytes: rootVAAFor(t, privs, 1, 10, raws10)}))
	require.Equal(t, uint64(10), agg.LatestCompletedSlot())

	_, ch := agg.events.Subscribe()
	batch5, raws5 := batchFor(5, 0x01)
	require.NoError(t, agg.StoreUpdate(ctx, AccumulatorUpdate{Batch: batch5}))
	require.NoError(t, agg.StoreUpdate(ctx, VAAUpdate{Bytes: rootVAAFor(t, privs, 2, 5, raws5)}))

	select {
	case ev := <-ch:
		require.Equal(t, EventOutOfOrder, ev.Kind)
		require.Equal(t, uint64(5), ev.Slot)
	case <-time.After(time.Second):
		t.Fatal("expected an out-of-order completion event")
	}
	require.Equal(t, uint64(10), agg.LatestCompletedSlot())
}

func TestStoreUpdate_DuplicateAccumulatorBatchIsIdempotent(t *testing.T) {
	agg, privs := setupAggregator(t, 4)
	ctx := context.Background()

	batch, raws := batchFor(1, 0x01)
	require.NoError(t, agg.StoreUpdate(ctx, AccumulatorUpdate{Batch: batch}))
	require.NoError(t, agg.StoreUpdate(ctx, AccumulatorUpdate{Batch: batch}))
	require.NoError(t, agg.StoreUpdate(ctx, VAAUpdate{Bytes: rootVAAFor(t, privs, 1, 1, raws)}))
	require.Equal(t, uint64(1), agg.LatestCompletedSlot())
}

func TestIsReady_FalseBeforeFirstCompletion(t *testing.T) {
	agg, _ := setupAggregator(t, 4)
	require.False(t, agg.IsReady())
}

func TestIsReady_TrueAfterFreshCompletion(t *testing.T) {
	agg, privs := setupAggregator(t, 4)
	ctx := context.Background()
	batch, raws := batchFor(1, 0x01)
	require.NoError(t, agg.StoreUpdate(ctx, AccumulatorUpdate{Batch: batch}))
	require.NoError(t, agg.StoreUpdate(ctx, VAAUpdate{Bytes: rootVAAFor(t, privs, 1, 1, raws)}))
	require.True(t, agg.IsReady())
}

func governanceUpdatePayload(newIndex uint32, keys [][20]byte) []byte {
	w := wire.NewWriter()
	w.Fixed(vaa.CoreModule[:])
	w.U8(uint8(vaa.ActionGuardianSetUpdate))
	w.U16(0) // universal
	w.U32(newIndex)
	w.U8(uint8(len(keys)))
	for _, k := range keys {
		w.Fixed(k[:])
	}
	return w.Bytes()
}

func TestHandleVAA_GuardianSetUpdateRecognizedAndApplied(t *testing.T) {
	agg, privs := setupAggregator(t, 4)
	ctx := context.Background()

	newPriv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	newKeys := [][20]byte{crypto.ParsePublicKey(newPriv)}

	payload := governanceUpdatePayload(1, newKeys)
	require.NoError(t, agg.StoreUpdate(ctx, VAAUpdate{Bytes: signVAA(privs, 1, payload)}))

	require.Equal(t, uint32(1), agg.guardianSets.CurrentIndex())
	updated, ok := agg.guardianSets.Get(1)
	require.True(t, ok)
	require.Equal(t, newKeys, updated.Keys)

	previous, ok := agg.guardianSets.Get(0)
	require.True(t, ok)
	require.NotZero(t, previous.ExpirationTime)
}
