package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Reader walks a big-endian byte blob, tracking position and surfacing short
// reads as ErrDeserialization. It deliberately exposes no method for
// f32/f64/char/i128/u128 — those types are unsupported by the wire format.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrDeserialization, n, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.U8()
	if err != nil {
		return false, err
	}
	if b > 1 {
		return false, fmt.Errorf("%w: bool out of range %d", ErrDeserialization, b)
	}
	return b == 1, nil
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// Fixed reads exactly n unprefixed bytes, e.g. a [20]byte address.
func (r *Reader) Fixed(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// PrefixedU8 reads a u8-counted sequence of raw bytes.
func (r *Reader) PrefixedU8() ([]byte, error) {
	n, err := r.U8()
	if err != nil {
		return nil, err
	}
	return r.Fixed(int(n))
}

// PrefixedU16 reads a u16-counted sequence of raw bytes (the "prefixed-vec"
// convention for nested, potentially-large arrays).
func (r *Reader) PrefixedU16() ([]byte, error) {
	n, err := r.U16()
	if err != nil {
		return nil, err
	}
	return r.Fixed(int(n))
}

// Writer builds a big-endian byte blob.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) U8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *Writer) U16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) I32(v int32) { w.U32(uint32(v)) }
func (w *Writer) I64(v int64) { w.U64(uint64(v)) }

// Fixed writes raw bytes with no length prefix.
func (w *Writer) Fixed(b []byte) {
	w.buf.Write(b)
}

// PrefixedU8 writes a u8-counted byte sequence. Panics if len(b) > 255 —
// callers choose this width only where the format guarantees a small count.
func (w *Writer) PrefixedU8(b []byte) {
	if len(b) > 255 {
		panic("wire: PrefixedU8 payload too large")
	}
	w.U8(uint8(len(b)))
	w.buf.Write(b)
}

// PrefixedU16 writes a u16-counted byte sequence.
func (w *Writer) PrefixedU16(b []byte) {
	if len(b) > 65535 {
		panic("wire: PrefixedU16 payload too large")
	}
	w.U16(uint16(len(b)))
	w.buf.Write(b)
}
