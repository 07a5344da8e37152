// Package kbin provides encoding and decoding helpers for every primitive
// used by the Kafka wire protocol: fixed-width big-endian integers, unsigned
// and zig-zag varints, nullable and "compact" (KIP-482) strings/bytes,
// UUIDs, classic and compact arrays, and tagged-field blocks.
//
// Writer accumulates bytes for a single outbound frame; Reader consumes
// bytes from a single inbound frame. Neither type is safe for concurrent
// use — each request or response gets its own.
package kbin

import (
	"encoding/binary"
	"errors"
)

// ErrNotEnoughData is returned when a Reader is asked to consume more bytes
// than remain in its source slice.
var ErrNotEnoughData = errors.New("unable to read: not enough data")

// Writer accumulates the bytes of one Kafka request or response frame.
//
// Build one with NewWriter, which reserves four bytes at the front of its
// buffer so that PrependLength can patch in the frame length without
// reallocating or shifting the body. The zero value has no such reserve
// and must not be used with Len or PrependLength.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with the 4-byte length prefix already
// reserved.
func NewWriter() *Writer {
	w := &Writer{buf: make([]byte, 0, 256)}
	w.buf = append(w.buf, 0, 0, 0, 0)
	return w
}

// Bytes returns the accumulated buffer, including the reserved length
// prefix at its head (call PrependLength first to populate it).
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes appended so far, excluding the reserved
// length prefix.
func (w *Writer) Len() int { return len(w.buf) - 4 }

// PrependLength writes the number of bytes appended after the reserved
// prefix as a big-endian int32 into that prefix. This is used exactly once
// per request frame.
func (w *Writer) PrependLength() {
	binary.BigEndian.PutUint32(w.buf, uint32(w.Len()))
}

// AppendRaw appends v verbatim, with no framing of any kind. Used to splice
// in an already-encoded sub-message (a compressed record batch body, a
// nested request payload) without re-parsing it.
func (w *Writer) AppendRaw(v []byte) { w.buf = append(w.buf, v...) }

func (w *Writer) AppendInt8(v int8) { w.buf = append(w.buf, byte(v)) }

func (w *Writer) AppendInt16(v int16) {
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

func (w *Writer) AppendInt32(v int32) {
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], uint32(v))
	w.buf = append(w.buf, a[:]...)
}

func (w *Writer) AppendInt64(v int64) {
	var a [8]byte
	binary.BigEndian.PutUint64(a[:], uint64(v))
	w.buf = append(w.buf, a[:]...)
}

func (w *Writer) AppendUint32(v uint32) {
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], v)
	w.buf = append(w.buf, a[:]...)
}

func (w *Writer) AppendBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// AppendUvarint appends an unsigned varint: 7 bits per byte, continuation
// bit is the high bit, at most 5 bytes for a 32-bit value.
func (w *Writer) AppendUvarint(v uint32) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

// AppendVarint appends a zig-zag encoded signed varint.
func (w *Writer) AppendVarint(v int32) {
	w.AppendUvarint(uint32((v << 1) ^ (v >> 31)))
}

// AppendVarlong is the 64-bit counterpart of AppendVarint.
func (w *Writer) AppendVarlong(v int64) {
	zz := uint64((v << 1) ^ (v >> 63))
	for zz >= 0x80 {
		w.buf = append(w.buf, byte(zz)|0x80)
		zz >>= 7
	}
	w.buf = append(w.buf, byte(zz))
}

// AppendUUID appends v as 16 big-endian bytes. The zero value encodes as
// all zeros, the wire form of a null UUID.
func (w *Writer) AppendUUID(v [16]byte) {
	w.buf = append(w.buf, v[:]...)
}

// AppendString appends v. If compact, the prefix is UnsignedVarInt(len+1);
// otherwise it is a classic int16 length. Use AppendNullableString for a
// value that may be absent.
func (w *Writer) AppendString(v string, compact bool) {
	if compact {
		w.AppendUvarint(uint32(len(v) + 1))
	} else {
		w.AppendInt16(int16(len(v)))
	}
	w.buf = append(w.buf, v...)
}

// AppendNullableString appends v, or a null marker if v is nil. Compact
// null is UnsignedVarInt(0); classic null is int16(-1).
func (w *Writer) AppendNullableString(v *string, compact bool) {
	if v == nil {
		if compact {
			w.AppendUvarint(0)
		} else {
			w.AppendInt16(-1)
		}
		return
	}
	w.AppendString(*v, compact)
}

// AppendBytes appends v using the same length-prefix convention as
// AppendString, except the classic prefix is an int32.
func (w *Writer) AppendBytes(v []byte, compact bool) {
	if compact {
		w.AppendUvarint(uint32(len(v) + 1))
	} else {
		w.AppendInt32(int32(len(v)))
	}
	w.buf = append(w.buf, v...)
}

// AppendNullableBytes appends v, or a null marker if v is nil.
func (w *Writer) AppendNullableBytes(v []byte, compact bool) {
	if v == nil {
		if compact {
			w.AppendUvarint(0)
		} else {
			w.AppendInt32(-1)
		}
		return
	}
	w.AppendBytes(v, compact)
}

// AppendVarintBytes appends v length-prefixed with a signed varint; a nil
// v is encoded as varint(-1). Used for record key/value bytes.
func (w *Writer) AppendVarintBytes(v []byte) {
	if v == nil {
		w.AppendVarint(-1)
		return
	}
	w.AppendVarint(int32(len(v)))
	w.buf = append(w.buf, v...)
}

// AppendTaggedFields appends an empty tagged-field block: a single zero
// byte meaning "zero tags carried".
func (w *Writer) AppendTaggedFields() {
	w.buf = append(w.buf, 0)
}

// AppendArrayLen appends the length prefix for n items: compact arrays use
// UnsignedVarInt(n+1) (0 = null), classic arrays use int32(n) (-1 = null).
// Pass n = -1 to encode a null array.
func (w *Writer) AppendArrayLen(n int, compact bool) {
	if n < 0 {
		if compact {
			w.AppendUvarint(0)
		} else {
			w.AppendInt32(-1)
		}
		return
	}
	if compact {
		w.AppendUvarint(uint32(n + 1))
	} else {
		w.AppendInt32(int32(n))
	}
}

// Reader consumes bytes from a single inbound Kafka frame.
//
// Once Src is exhausted, any further read records Err and subsequent reads
// become no-ops returning zero values, so callers can chain many reads and
// check Complete (or Err) once at the end.
type Reader struct {
	Src []byte
	err error
}

// NewReader wraps src for reading.
func NewReader(src []byte) *Reader { return &Reader{Src: src} }

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Complete returns ErrNotEnoughData-derived errors accumulated during
// reading, or an error if bytes remain unconsumed (the caller under-read
// the frame).
func (r *Reader) Complete() error {
	if r.err != nil {
		return r.err
	}
	if len(r.Src) > 0 {
		return errors.New("unable to read: too much data")
	}
	return nil
}

func (r *Reader) fail() {
	if r.err == nil {
		r.err = ErrNotEnoughData
	}
	r.Src = nil
}

func (r *Reader) take(n int) []byte {
	if r.err != nil || len(r.Src) < n {
		r.fail()
		return nil
	}
	b := r.Src[:n]
	r.Src = r.Src[n:]
	return b
}

func (r *Reader) Int8() int8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return int8(b[0])
}

func (r *Reader) Int16() int16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return int16(binary.BigEndian.Uint16(b))
}

func (r *Reader) Int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *Reader) Int64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *Reader) Bool() bool {
	b := r.take(1)
	if b == nil {
		return false
	}
	return b[0] != 0
}

// Uvarint reads an unsigned varint, failing if more than 5 bytes are
// consumed without terminating (an invalid encoding for a 32-bit value).
func (r *Reader) Uvarint() uint32 {
	if r.err != nil {
		return 0
	}
	var v uint32
	for shift := uint(0); ; shift += 7 {
		if shift > 28 {
			r.fail()
			return 0
		}
		b := r.take(1)
		if b == nil {
			return 0
		}
		v |= uint32(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			break
		}
	}
	return v
}

// Varint reads a zig-zag encoded signed varint.
func (r *Reader) Varint() int32 {
	v := r.Uvarint()
	return int32(v>>1) ^ -int32(v&1)
}

// Varlong is the 64-bit counterpart of Varint.
func (r *Reader) Varlong() int64 {
	if r.err != nil {
		return 0
	}
	var v uint64
	for shift := uint(0); ; shift += 7 {
		if shift > 63 {
			r.fail()
			return 0
		}
		b := r.take(1)
		if b == nil {
			return 0
		}
		v |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			break
		}
	}
	return int64(v>>1) ^ -int64(v&1)
}

func (r *Reader) UUID() [16]byte {
	var u [16]byte
	b := r.take(16)
	if b == nil {
		return u
	}
	copy(u[:], b)
	return u
}

// String reads a string per the compact/classic convention. A null string
// is returned as "" — callers that must distinguish null from empty should
// use NullableString.
func (r *Reader) String(compact bool) string {
	s, _ := r.nullableString(compact)
	return s
}

// NullableString reads a string, returning (value, true) or ("", false) if
// the wire value was null.
func (r *Reader) NullableString(compact bool) (string, bool) {
	return r.nullableString(compact)
}

func (r *Reader) nullableString(compact bool) (string, bool) {
	var n int
	if compact {
		u := r.Uvarint()
		if r.err != nil {
			return "", false
		}
		if u == 0 {
			return "", false
		}
		n = int(u - 1)
	} else {
		l := r.Int16()
		if r.err != nil {
			return "", false
		}
		if l < 0 {
			return "", false
		}
		n = int(l)
	}
	b := r.take(n)
	if b == nil {
		return "", false
	}
	return string(b), true
}

// Bytes reads a byte slice per the compact/classic convention. A null
// value is returned as nil.
func (r *Reader) Bytes(compact bool) []byte {
	var n int
	if compact {
		u := r.Uvarint()
		if r.err != nil {
			return nil
		}
		if u == 0 {
			return nil
		}
		n = int(u - 1)
	} else {
		l := r.Int32()
		if r.err != nil {
			return nil
		}
		if l < 0 {
			return nil
		}
		n = int(l)
	}
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// VarintBytes reads a signed-varint-length-prefixed byte slice; length -1
// decodes as a nil slice.
func (r *Reader) VarintBytes() []byte {
	n := r.Varint()
	if r.err != nil {
		return nil
	}
	if n < 0 {
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// ArrayLen reads an array length per the compact/classic convention. A
// null array is reported as 0, the convention this package's callers use
// for "treat null as empty" per the source's observable behavior.
func (r *Reader) ArrayLen(compact bool) int {
	if compact {
		u := r.Uvarint()
		if r.err != nil || u == 0 {
			return 0
		}
		return int(u - 1)
	}
	l := r.Int32()
	if r.err != nil || l < 0 {
		return 0
	}
	return int(l)
}

// Span consumes and discards n bytes, used to skip unrecognized
// tagged-field payloads.
func (r *Reader) Span(n int) {
	r.take(n)
}

// SkipTags consumes a tagged-field block, discarding every tag's payload.
// Tag interpretation is intentionally not performed at this layer — see
// spec.md §9.
func (r *Reader) SkipTags() {
	for num := r.Uvarint(); num > 0 && r.err == nil; num-- {
		_ = r.Uvarint() // tag id
		size := r.Uvarint()
		r.Span(int(size))
	}
}
