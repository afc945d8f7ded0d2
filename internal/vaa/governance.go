package vaa

import (
	"bytes"
	"fmt"

	"github.com/pyth-network/hermes-go/internal/wire"
)

// CoreModule is the 32-byte left-padded "Core" module identifier used on
// Wormhole core-bridge governance VAAs, matching
// _examples/gotmyname2018-wormhole-svm/sdk/vaa/payloads.go's CoreModule.
var CoreModule = [32]byte{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x43, 0x6f, 0x72, 0x65,
}

// GovernanceAction is the u8 discriminant of a core-module governance
// instruction.
type GovernanceAction uint8

const (
	ActionContractUpgrade   GovernanceAction = 1
	ActionGuardianSetUpdate GovernanceAction = 2
)

// GuardianSetUpdate is the decoded body of an ActionGuardianSetUpdate
// governance VAA. Hermes recognizes this to keep its GuardianSetStore
// current; it never executes on-chain upgrade instructions (out of scope
// per spec.md §1).
type GuardianSetUpdate struct {
	NewIndex uint32
	Keys     [][20]byte
}

// ParseGuardianSetUpdate decodes a core-module governance VAA payload,
// returning ok=false for any payload that isn't a recognized
// ActionGuardianSetUpdate (e.g. a contract-upgrade instruction, which Hermes
// has no use for).
func ParseGuardianSetUpdate(payload []byte) (GuardianSetUpdate, bool, error) {
	r := wire.NewReader(payload)
	module, err := r.Fixed(32)
	if err != nil {
		return GuardianSetUpdate{}, false, fmt.Errorf("governance: read module: %w", err)
	}
	if !bytes.Equal(module, CoreModule[:]) {
		return GuardianSetUpdate{}, false, nil
	}

	action, err := r.U8()
	if err != nil {
		return GuardianSetUpdate{}, false, fmt.Errorf("governance: read action: %w", err)
	}
	if GovernanceAction(action) != ActionGuardianSetUpdate {
		return GuardianSetUpdate{}, false, nil
	}

	if _, err := r.U16(); err != nil { // target chain id, 0 == universal
		return GuardianSetUpdate{}, false, fmt.Errorf("governance: read chain id: %w", err)
	}
	newIndex, err := r.U32()
	if err != nil {
		return GuardianSetUpdate{}, false, fmt.Errorf("governance: read new index: %w", err)
	}
	keyCount, err := r.U8()
	if err != nil {
		return GuardianSetUpdate{}, false, fmt.Errorf("governance: read key count: %w", err)
	}

	keys := make([][20]byte, 0, keyCount)
	for i := 0; i < int(keyCount); i++ {
		k, err := r.Fixed(20)
		if err != nil {
			return GuardianSetUpdate{}, false, fmt.Errorf("governance: read key %d: %w", i, err)
		}
		var key [20]byte
		copy(key[:], k)
		keys = append(keys, key)
	}

	return GuardianSetUpdate{NewIndex: newIndex, Keys: keys}, true, nil
}
