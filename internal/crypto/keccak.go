// Package crypto provides the cryptographic primitives the VAA verifier and
// Merkle-proof checker need: Keccak-256/160 hashing and secp256k1 ECDSA
// public key recovery.
package crypto

import (
	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes data with the original (pre-NIST-finalization) Keccak
// padding used throughout Ethereum and Wormhole — not the FIPS-202 SHA3-256
// variant.
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Keccak160 is Keccak256 truncated to its last 20 bytes: EVM's
// address-derivation convention, used to recover a guardian's address from
// its signature's public key (spec.md §4.2: "address =
// keccak256(pubkey)[12..32]").
func Keccak160(data ...[]byte) [20]byte {
	full := Keccak256(data...)
	var out [20]byte
	copy(out[:], full[12:])
	return out
}

// Keccak256To160 is Keccak256 truncated to its first 20 bytes: Pyth's
// "hashers::keccak256_160" convention used by the Merkle accumulator for
// leaf and node hashes (spec.md §4.4). Distinct from Keccak160, which
// truncates to the *last* 20 bytes for EVM address recovery — the two
// truncations are not interchangeable.
func Keccak256To160(data ...[]byte) [20]byte {
	full := Keccak256(data...)
	var out [20]byte
	copy(out[:], full[:20])
	return out
}
