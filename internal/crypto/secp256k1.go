package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// RecoverAddress recovers the 20-byte EVM-style address of the signer of
// digest given a 65-byte (r || s || v) compact signature, per spec.md §4.2:
// "compute address = keccak256(uncompressed_pubkey_bytes[1..])[12:32]".
//
// The recovery id in sig[64] is accepted both as a raw {0,1} value and in the
// legacy Ethereum {27,28} encoding.
func RecoverAddress(digest [32]byte, sig [65]byte) ([20]byte, error) {
	recID := sig[64]
	if recID >= 27 {
		recID -= 27
	}
	if recID > 3 {
		return [20]byte{}, fmt.Errorf("crypto: invalid recovery id %d", sig[64])
	}

	var compact [65]byte
	compact[0] = recID + 27 // dcrd's RecoverCompact expects the legacy encoding in byte 0
	copy(compact[1:], sig[0:64])

	pub, _, err := ecdsa.RecoverCompact(compact[:], digest[:])
	if err != nil {
		return [20]byte{}, fmt.Errorf("crypto: recover public key: %w", err)
	}

	uncompressed := pub.SerializeUncompressed()
	return Keccak160(uncompressed[1:]), nil
}

// ParsePublicKey is a small helper used by tests to derive the address
// belonging to a known private key.
func ParsePublicKey(priv *secp256k1.PrivateKey) [20]byte {
	uncompressed := priv.PubKey().SerializeUncompressed()
	return Keccak160(uncompressed[1:])
}
