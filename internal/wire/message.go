package wire

import "fmt"

// MessageType is the u8 discriminant prefixing every accumulator raw message.
type MessageType uint8

const (
	MessageTypePriceFeed MessageType = 0
)

// PriceFeedMessage is a single per-feed attestation published by Pythnet as
// part of a per-slot accumulator batch. Invariant: PrevPublishTime <=
// PublishTime.
type PriceFeedMessage struct {
	FeedID          FeedID
	Price           int64
	Conf            uint64
	Exponent        int32
	PublishTime     int64
	PrevPublishTime int64
	EmaPrice        int64
	EmaConf         uint64
}

// Serialize encodes a PriceFeedMessage as a typed accumulator raw message
// (message-type discriminant followed by field concatenation).
func (m PriceFeedMessage) Serialize() []byte {
	w := NewWriter()
	w.U8(uint8(MessageTypePriceFeed))
	w.Fixed(m.FeedID[:])
	w.I64(m.Price)
	w.U64(m.Conf)
	w.I32(m.Exponent)
	w.I64(m.PublishTime)
	w.I64(m.PrevPublishTime)
	w.I64(m.EmaPrice)
	w.U64(m.EmaConf)
	return w.Bytes()
}

// ParseMessage decodes a single typed accumulator raw message.
func ParseMessage(raw []byte) (MessageType, *PriceFeedMessage, error) {
	r := NewReader(raw)
	typ, err := r.U8()
	if err != nil {
		return 0, nil, fmt.Errorf("parse message type: %w", err)
	}
	switch MessageType(typ) {
	case MessageTypePriceFeed:
		var m PriceFeedMessage
		feedID, err := r.Fixed(32)
		if err != nil {
			return 0, nil, fmt.Errorf("parse price feed id: %w", err)
		}
		copy(m.FeedID[:], feedID)
		if m.Price, err = r.I64(); err != nil {
			return 0, nil, fmt.Errorf("parse price: %w", err)
		}
		if m.Conf, err = r.U64(); err != nil {
			return 0, nil, fmt.Errorf("parse conf: %w", err)
		}
		if m.Exponent, err = r.I32(); err != nil {
			return 0, nil, fmt.Errorf("parse exponent: %w", err)
		}
		if m.PublishTime, err = r.I64(); err != nil {
			return 0, nil, fmt.Errorf("parse publish time: %w", err)
		}
		if m.PrevPublishTime, err = r.I64(); err != nil {
			return 0, nil, fmt.Errorf("parse prev publish time: %w", err)
		}
		if m.EmaPrice, err = r.I64(); err != nil {
			return 0, nil, fmt.Errorf("parse ema price: %w", err)
		}
		if m.EmaConf, err = r.U64(); err != nil {
			return 0, nil, fmt.Errorf("parse ema conf: %w", err)
		}
		return MessageTypePriceFeed, &m, nil
	default:
		return 0, nil, fmt.Errorf("%w: unknown message type %d", ErrDeserialization, typ)
	}
}

// WormholeMessageMagic is the fixed four-byte tag prefixing every Wormhole
// payload emitted by Pythnet's accumulator emitter.
var WormholeMessageMagic = [4]byte{'A', 'U', 'W', 'V'}

// WormholeMerkleRoot is the sole defined WormholePayload variant: the signed
// Merkle root for one slot's accumulator batch.
type WormholeMerkleRoot struct {
	Slot     uint64
	RingSize uint32
	Root     Hash20
}

// EncodeWormholeMerkleRoot encodes the AUWV-magic, single-variant-enum
// Wormhole payload carried inside a VAA.
func EncodeWormholeMerkleRoot(root WormholeMerkleRoot) []byte {
	w := NewWriter()
	w.Fixed(WormholeMessageMagic[:])
	w.U8(0) // variant 0 = MerkleRoot
	w.U64(root.Slot)
	w.U32(root.RingSize)
	w.Fixed(root.Root[:])
	return w.Bytes()
}

// DecodeWormholeMerkleRoot decodes a Wormhole payload, validating the AUWV
// magic and the MerkleRoot variant discriminant.
func DecodeWormholeMerkleRoot(raw []byte) (WormholeMerkleRoot, error) {
	r := NewReader(raw)
	magic, err := r.Fixed(4)
	if err != nil {
		return WormholeMerkleRoot{}, fmt.Errorf("read wormhole magic: %w", err)
	}
	if string(magic) != string(WormholeMessageMagic[:]) {
		return WormholeMerkleRoot{}, ErrInvalidMagic
	}
	variant, err := r.U8()
	if err != nil {
		return WormholeMerkleRoot{}, fmt.Errorf("read wormhole variant: %w", err)
	}
	if variant != 0 {
		return WormholeMerkleRoot{}, fmt.Errorf("%w: unknown wormhole payload variant %d", ErrDeserialization, variant)
	}
	var root WormholeMerkleRoot
	if root.Slot, err = r.U64(); err != nil {
		return WormholeMerkleRoot{}, fmt.Errorf("read merkle root slot: %w", err)
	}
	if root.RingSize, err = r.U32(); err != nil {
		return WormholeMerkleRoot{}, fmt.Errorf("read merkle root ring size: %w", err)
	}
	rootBytes, err := r.Fixed(20)
	if err != nil {
		return WormholeMerkleRoot{}, fmt.Errorf("read merkle root bytes: %w", err)
	}
	copy(root.Root[:], rootBytes)
	return root, nil
}
