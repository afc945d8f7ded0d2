// Package cache implements Hermes's per-feed historical state store: three
// bounded, ordered maps (per-slot accumulator batches, per-slot Merkle
// roots, per-feed message history) each guarded by its own reader-writer
// lock, per spec.md §4.3.
package cache

import (
	"time"

	"github.com/pyth-network/hermes-go/internal/wire"
)

// AccumulatorMessages is the per-slot batch of raw accumulator messages
// ingested from the Pythnet geyser stream.
type AccumulatorMessages struct {
	Magic       [4]byte
	Slot        uint64
	RingSize    uint32
	RawMessages [][]byte
}

// WormholeMerkleState pairs a verified VAA's raw bytes with the Merkle root
// it attests to.
type WormholeMerkleState struct {
	VAABytes []byte
	Root     wire.WormholeMerkleRoot
}

// WormholeMerkleProof is the per-message proof linking a raw message to the
// VAA-signed root for its slot.
type WormholeMerkleProof struct {
	VAA        []byte
	MerklePath []wire.Hash20
}

// ProofSet wraps the proof kinds a MessageState may carry. Wormhole-Merkle is
// the only kind this core constructs.
type ProofSet struct {
	WormholeMerkleProof WormholeMerkleProof
}

// MessageStateTime is the lexicographic ordering key for a feed's message
// history: (publish_time, slot).
type MessageStateTime struct {
	PublishTime int64
	Slot        uint64
}

// Less reports whether t sorts strictly before other.
func (t MessageStateTime) Less(other MessageStateTime) bool {
	if t.PublishTime != other.PublishTime {
		return t.PublishTime < other.PublishTime
	}
	return t.Slot < other.Slot
}

// MessageKey identifies one feed's history bucket in the cache.
type MessageKey struct {
	FeedID      wire.FeedID
	MessageType wire.MessageType
}

// MessageState is one completed, Merkle-proven observation of a feed at a
// slot.
type MessageState struct {
	Slot       uint64
	ReceivedAt time.Time
	Message    wire.PriceFeedMessage
	RawMessage []byte
	ProofSet   ProofSet
}

// Time returns the ordering key for this state within its feed's bucket.
func (m MessageState) Time() MessageStateTime {
	return MessageStateTime{PublishTime: m.Message.PublishTime, Slot: m.Slot}
}
