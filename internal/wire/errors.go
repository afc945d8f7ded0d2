// Package wire implements Hermes's canonical big-endian, length-prefixed
// binary encoding for VAAs, accumulator update envelopes, and per-feed
// messages.
package wire

import "errors"

var (
	// ErrInvalidMagic is returned when a byte blob's leading magic does not
	// match the expected four-byte tag.
	ErrInvalidMagic = errors.New("wire: invalid magic")
	// ErrInvalidVersion is returned when a major version is newer than this
	// decoder understands.
	ErrInvalidVersion = errors.New("wire: invalid version")
	// ErrDeserialization covers any other malformed-byte condition: short
	// reads and bad enum discriminants. Bytes left over after a decoded
	// value are not reported.
	ErrDeserialization = errors.New("wire: deserialization error")
	// ErrUnsupportedType names the field kinds this codec does not implement
	// (f32/f64/char/i128/u128). No decoder in this package returns it: the
	// Reader has no methods for those kinds.
	ErrUnsupportedType = errors.New("wire: unsupported type")
)
