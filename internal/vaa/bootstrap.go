package vaa

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// guardianSetFile is the on-disk shape LoadGuardianSetFile reads: an
// operator-maintained snapshot of the Wormhole guardian set, since no
// on-chain RPC client is wired to fetch it live (see DESIGN.md).
type guardianSetFile struct {
	Index          uint32   `json:"index"`
	Keys           []string `json:"keys"` // 20-byte addresses, hex-encoded
	ExpirationTime uint32   `json:"expiration_time,omitempty"`
}

// LoadGuardianSetFile reads a bootstrap guardian set from path and installs
// it as the current set in store. A missing or empty path is not an error:
// the store simply starts empty until a governance VAA populates it.
func LoadGuardianSetFile(path string, store *GuardianSetStore) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("vaa: read guardian set file: %w", err)
	}

	var file guardianSetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("vaa: parse guardian set file: %w", err)
	}

	keys := make([][20]byte, len(file.Keys))
	for i, k := range file.Keys {
		if !common.IsHexAddress(k) {
			return fmt.Errorf("vaa: guardian set file: invalid key %q", k)
		}
		keys[i] = common.HexToAddress(k)
	}

	store.Upsert(GuardianSet{Index: file.Index, Keys: keys, ExpirationTime: file.ExpirationTime}, true)
	return nil
}
