package vaa

import (
	"fmt"
	"time"

	"github.com/pyth-network/hermes-go/internal/crypto"
	"github.com/pyth-network/hermes-go/internal/wire"
)

// Verifier implements spec.md §4.2: header/body parsing, source allow-listing,
// sequence deduplication, and guardian quorum enforcement.
type Verifier struct {
	guardianSets    *GuardianSetStore
	acceptedSources map[Source]struct{}
	seen            *seenSequences
	now             func() time.Time // overridable for tests
}

// NewVerifier constructs a Verifier accepting VAAs only from the given
// sources (spec.md §4.2's "configured accepted-sources set").
func NewVerifier(guardianSets *GuardianSetStore, acceptedSources []Source) *Verifier {
	set := make(map[Source]struct{}, len(acceptedSources))
	for _, s := range acceptedSources {
		set[s] = struct{}{}
	}
	return &Verifier{
		guardianSets:    guardianSets,
		acceptedSources: set,
		seen:            newSeenSequences(),
		now:             time.Now,
	}
}

// Verify runs the full pipeline described in spec.md §4.2 over a raw VAA
// byte blob.
func (v *Verifier) Verify(raw []byte) (*VerifiedVM, error) {
	parsed, err := wire.ParseVAA(raw)
	if err != nil {
		return nil, fmt.Errorf("vaa verify: %w", err)
	}
	if parsed.Version != 1 {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, parsed.Version)
	}

	source := Source{EmitterChain: parsed.EmitterChain, EmitterAddress: parsed.EmitterAddress}
	if _, ok := v.acceptedSources[source]; !ok {
		return nil, ErrUnknownSource
	}

	if v.seen.contains(parsed.Sequence) {
		return nil, ErrDuplicateVAA
	}

	h1 := crypto.Keccak256(parsed.RawBody)
	bodyHash := crypto.Keccak256(h1[:])

	guardianSet, ok := v.guardianSets.Get(parsed.GuardianSetIndex)
	if !ok {
		return nil, ErrUnknownGuardianSet
	}
	if parsed.GuardianSetIndex != v.guardianSets.CurrentIndex() &&
		guardianSet.ExpirationTime != 0 &&
		uint32(v.now().Unix()) > guardianSet.ExpirationTime {
		return nil, ErrExpiredGuardianSet
	}

	quorum := (len(guardianSet.Keys)*2)/3 + 1

	var (
		valid         []wire.Signature
		lastSignerIdx = -1
	)
	for _, sig := range parsed.Signatures {
		if len(valid) >= quorum {
			break
		}

		signerIdx := int(sig.Index)
		if signerIdx >= len(guardianSet.Keys) {
			return nil, fmt.Errorf("%w: %d (set size %d)", ErrInvalidGuardianIndex, signerIdx, len(guardianSet.Keys))
		}
		if lastSignerIdx >= signerIdx {
			return nil, fmt.Errorf("%w: last %d, got %d", ErrUnsortedSigners, lastSignerIdx, signerIdx)
		}
		lastSignerIdx = signerIdx

		addr, err := crypto.RecoverAddress(bodyHash, sig.Compact())
		if err != nil {
			continue
		}
		if addr == guardianSet.Keys[signerIdx] {
			valid = append(valid, sig)
		}
	}

	if len(valid) < quorum {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrInsufficientSignatures, quorum, len(valid))
	}

	v.seen.record(parsed.Sequence)

	return &VerifiedVM{
		Version:          parsed.Version,
		GuardianSetIndex: parsed.GuardianSetIndex,
		Signatures:       valid,
		Timestamp:        parsed.Timestamp,
		Nonce:            parsed.Nonce,
		EmitterChain:     parsed.EmitterChain,
		EmitterAddress:   parsed.EmitterAddress,
		Sequence:         parsed.Sequence,
		ConsistencyLevel: parsed.ConsistencyLevel,
		Payload:          parsed.Payload,
		BodyHash:         bodyHash,
	}, nil
}
