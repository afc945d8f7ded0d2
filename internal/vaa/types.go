package vaa

import "github.com/pyth-network/hermes-go/internal/wire"

// GuardianSet is one generation of the Wormhole guardian network's signing
// keys. Sets older than the current index remain valid until their
// expiration stamp passes; the current set itself never expires.
type GuardianSet struct {
	Index          uint32
	Keys           [][20]byte
	ExpirationTime uint32 // unix seconds, 0 == no expiration (current set)
}

// Source identifies an accepted VAA emitter. A configured allow-list of
// Sources bounds which VAAs the verifier will even consider; the Pythnet
// price-attestation emitter is one such Source, governance VAAs use another.
type Source struct {
	EmitterChain   uint16
	EmitterAddress [32]byte
}

// VerifiedVM is a VAA whose guardian signatures have passed quorum.
type VerifiedVM struct {
	Version          uint8
	GuardianSetIndex uint32
	Signatures       []wire.Signature // sorted by signer index, quorum subset only
	Timestamp        uint32
	Nonce            uint32
	EmitterChain     uint16
	EmitterAddress   [32]byte
	Sequence         uint64
	ConsistencyLevel uint8
	Payload          []byte
	BodyHash         [32]byte // keccak256(keccak256(body))
}
