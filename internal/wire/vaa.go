package wire

import "fmt"

// Hash20 is a 20-byte keccak-160 digest: a Merkle node hash or a recovered
// guardian/EVM address.
type Hash20 [20]byte

// FeedID is the opaque 32-byte identifier of a price feed.
type FeedID [32]byte

// Signature is a single guardian's signature over a VAA body digest, in the
// on-wire (r, s, v) layout.
type Signature struct {
	Index uint8
	R     [32]byte
	S     [32]byte
	V     uint8
}

// Compact returns the 65-byte (r || s || v) form expected by secp256k1
// recovery routines.
func (s Signature) Compact() [65]byte {
	var out [65]byte
	copy(out[0:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// Header is the guardian-signature section of a VAA.
type Header struct {
	Version          uint8
	GuardianSetIndex uint32
	Signatures       []Signature
}

// Body is the signed-over section of a VAA.
type Body struct {
	Timestamp        uint32
	Nonce            uint32
	EmitterChain     uint16
	EmitterAddress   [32]byte
	Sequence         uint64
	ConsistencyLevel uint8
	Payload          []byte
}

// VAA is a parsed Wormhole "Verifiable Action Approval" envelope, combining
// Header and Body per spec.md §6's wire layout.
type VAA struct {
	Header
	Body

	// RawBody is the exact serialized bytes of the Body section, i.e.
	// everything after the signatures — this is what gets double-keccak
	// hashed and signed, and must be kept around verbatim rather than
	// re-serialized (re-serialization could silently diverge from the
	// bytes that were actually signed).
	RawBody []byte
}

// ParseVAA decodes a raw VAA byte blob per spec.md §6's wire layout:
// version:u8=1 | guardian_set_index:u32 | sig_count:u8 |
// (signer_index:u8, r:[u8;32], s:[u8;32], v:u8){sig_count} | timestamp:u32 |
// nonce:u32 | emitter_chain:u16 | emitter_address:[u8;32] | sequence:u64 |
// consistency_level:u8 | payload…
func ParseVAA(raw []byte) (*VAA, error) {
	r := NewReader(raw)

	version, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("parse vaa version: %w", err)
	}

	gsi, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("parse vaa guardian set index: %w", err)
	}

	sigCount, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("parse vaa sig count: %w", err)
	}

	sigs := make([]Signature, 0, sigCount)
	for i := 0; i < int(sigCount); i++ {
		idx, err := r.U8()
		if err != nil {
			return nil, fmt.Errorf("parse vaa signature %d index: %w", i, err)
		}
		rBytes, err := r.Fixed(32)
		if err != nil {
			return nil, fmt.Errorf("parse vaa signature %d r: %w", i, err)
		}
		sBytes, err := r.Fixed(32)
		if err != nil {
			return nil, fmt.Errorf("parse vaa signature %d s: %w", i, err)
		}
		v, err := r.U8()
		if err != nil {
			return nil, fmt.Errorf("parse vaa signature %d v: %w", i, err)
		}
		sig := Signature{Index: idx, V: v}
		copy(sig.R[:], rBytes)
		copy(sig.S[:], sBytes)
		sigs = append(sigs, sig)
	}

	bodyStart := len(raw) - r.Remaining()
	rawBody := append([]byte(nil), raw[bodyStart:]...)

	timestamp, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("parse vaa timestamp: %w", err)
	}
	nonce, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("parse vaa nonce: %w", err)
	}
	emitterChain, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("parse vaa emitter chain: %w", err)
	}
	emitterAddress, err := r.Fixed(32)
	if err != nil {
		return nil, fmt.Errorf("parse vaa emitter address: %w", err)
	}
	sequence, err := r.U64()
	if err != nil {
		return nil, fmt.Errorf("parse vaa sequence: %w", err)
	}
	consistencyLevel, err := r.U8()
	if err != nil {
		return nil, fmt.Errorf("parse vaa consistency level: %w", err)
	}
	payload := append([]byte(nil), raw[len(raw)-r.Remaining():]...)

	v := &VAA{
		Header: Header{
			Version:          version,
			GuardianSetIndex: gsi,
			Signatures:       sigs,
		},
		Body: Body{
			Timestamp:        timestamp,
			Nonce:            nonce,
			EmitterChain:     emitterChain,
			Sequence:         sequence,
			ConsistencyLevel: consistencyLevel,
			Payload:          payload,
		},
		RawBody: rawBody,
	}
	copy(v.Body.EmitterAddress[:], emitterAddress)
	return v, nil
}

// Serialize re-encodes a VAA to its canonical wire form. Update data sent to
// clients reuses the stored raw VAA bytes rather than calling this.
func (v *VAA) Serialize() []byte {
	w := NewWriter()
	w.U8(v.Header.Version)
	w.U32(v.Header.GuardianSetIndex)
	w.U8(uint8(len(v.Header.Signatures)))
	for _, sig := range v.Header.Signatures {
		w.U8(sig.Index)
		w.Fixed(sig.R[:])
		w.Fixed(sig.S[:])
		w.U8(sig.V)
	}
	w.Fixed(v.RawBody)
	return w.Bytes()
}
