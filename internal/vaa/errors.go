// Package vaa implements the guardian-signature verification pipeline:
// header/body parsing (via internal/wire), guardian-set quorum enforcement,
// and sequence-number deduplication.
package vaa

import "errors"

var (
	ErrUnknownSource          = errors.New("vaa: unknown source")
	ErrDuplicateVAA           = errors.New("vaa: duplicate VAA")
	ErrUnknownGuardianSet     = errors.New("vaa: unknown guardian set")
	ErrExpiredGuardianSet     = errors.New("vaa: expired guardian set")
	ErrInvalidSignature       = errors.New("vaa: invalid signature")
	ErrInsufficientSignatures = errors.New("vaa: insufficient signatures")
	ErrUnsortedSigners        = errors.New("vaa: signatures not sorted by signer index")
	ErrInvalidGuardianIndex   = errors.New("vaa: signer index out of range")
	ErrUnsupportedVersion     = errors.New("vaa: unsupported version")
)
