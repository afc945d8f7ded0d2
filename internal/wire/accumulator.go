package wire

import "fmt"

// AccumulatorMagic is the fixed four-byte tag prefixing every accumulator
// update envelope.
var AccumulatorMagic = [4]byte{'P', 'N', 'A', 'U'}

// CurrentMajorVersion is the newest accumulator envelope major version this
// decoder understands. Envelopes with a newer major version are rejected;
// envelopes with a newer minor version are accepted (forward-compatible
// trailing fields are not interpreted; their bytes are kept in Trailing).
const CurrentMajorVersion = 1

// MerkleUpdate pairs one raw accumulator message with the Merkle sibling path
// proving its membership in the slot's root.
type MerkleUpdate struct {
	Message    []byte
	MerklePath []Hash20
}

// WormholeMerkleProof is the sole defined Proof variant: a VAA carrying the
// slot's signed Merkle root, plus the per-message updates it authorizes.
type WormholeMerkleProof struct {
	VAA     []byte
	Updates []MerkleUpdate
}

// AccumulatorUpdate is the top-level client-facing update envelope that
// carries a Merkle proof for a set of price messages.
type AccumulatorUpdate struct {
	MajorVersion uint8
	MinorVersion uint8
	Trailing     []byte
	Proof        WormholeMerkleProof
}

// EncodeAccumulatorUpdate serializes an envelope in its canonical wire form:
// magic, major/minor version, u16-prefixed trailing bytes, then the
// WormholeMerkle proof variant.
func EncodeAccumulatorUpdate(u AccumulatorUpdate) []byte {
	w := NewWriter()
	w.Fixed(AccumulatorMagic[:])
	w.U8(u.MajorVersion)
	w.U8(u.MinorVersion)
	w.PrefixedU16(u.Trailing)
	w.U8(0) // variant 0 = WormholeMerkle
	w.PrefixedU16(u.Proof.VAA)
	w.U16(uint16(len(u.Proof.Updates)))
	for _, upd := range u.Proof.Updates {
		w.PrefixedU16(upd.Message)
		w.U8(uint8(len(upd.MerklePath)))
		for _, h := range upd.MerklePath {
			w.Fixed(h[:])
		}
	}
	return w.Bytes()
}

// DecodeAccumulatorUpdate parses an accumulator update envelope, returning
// ErrInvalidMagic, ErrInvalidVersion, or ErrDeserialization on malformed
// input per spec.md §4.1.
func DecodeAccumulatorUpdate(raw []byte) (AccumulatorUpdate, error) {
	r := NewReader(raw)

	magic, err := r.Fixed(4)
	if err != nil {
		return AccumulatorUpdate{}, fmt.Errorf("read accumulator magic: %w", err)
	}
	if string(magic) != string(AccumulatorMagic[:]) {
		return AccumulatorUpdate{}, ErrInvalidMagic
	}

	major, err := r.U8()
	if err != nil {
		return AccumulatorUpdate{}, fmt.Errorf("read major version: %w", err)
	}
	if major > CurrentMajorVersion {
		return AccumulatorUpdate{}, ErrInvalidVersion
	}

	minor, err := r.U8()
	if err != nil {
		return AccumulatorUpdate{}, fmt.Errorf("read minor version: %w", err)
	}

	trailing, err := r.PrefixedU16()
	if err != nil {
		return AccumulatorUpdate{}, fmt.Errorf("read trailing bytes: %w", err)
	}

	variant, err := r.U8()
	if err != nil {
		return AccumulatorUpdate{}, fmt.Errorf("read proof variant: %w", err)
	}
	if variant != 0 {
		return AccumulatorUpdate{}, fmt.Errorf("%w: unknown proof variant %d", ErrDeserialization, variant)
	}

	vaaBytes, err := r.PrefixedU16()
	if err != nil {
		return AccumulatorUpdate{}, fmt.Errorf("read vaa bytes: %w", err)
	}

	updateCount, err := r.U16()
	if err != nil {
		return AccumulatorUpdate{}, fmt.Errorf("read update count: %w", err)
	}

	updates := make([]MerkleUpdate, 0, updateCount)
	for i := 0; i < int(updateCount); i++ {
		msg, err := r.PrefixedU16()
		if err != nil {
			return AccumulatorUpdate{}, fmt.Errorf("read update %d message: %w", i, err)
		}
		pathLen, err := r.U8()
		if err != nil {
			return AccumulatorUpdate{}, fmt.Errorf("read update %d path length: %w", i, err)
		}
		path := make([]Hash20, 0, pathLen)
		for j := 0; j < int(pathLen); j++ {
			h, err := r.Fixed(20)
			if err != nil {
				return AccumulatorUpdate{}, fmt.Errorf("read update %d path node %d: %w", i, j, err)
			}
			var hash Hash20
			copy(hash[:], h)
			path = append(path, hash)
		}
		updates = append(updates, MerkleUpdate{Message: msg, MerklePath: path})
	}

	return AccumulatorUpdate{
		MajorVersion: major,
		MinorVersion: minor,
		Trailing:     trailing,
		Proof: WormholeMerkleProof{
			VAA:     vaaBytes,
			Updates: updates,
		},
	}, nil
}
