package kbin

import (
	"bytes"
	"math"
	"testing"
)

func TestFixedInts(t *testing.T) {
	w := NewWriter()
	w.AppendInt8(-12)
	w.AppendInt16(-1234)
	w.AppendInt32(math.MinInt32)
	w.AppendInt64(math.MinInt64)
	w.AppendUint32(0xdeadbeef)

	r := NewReader(w.Bytes()[4:])
	if v := r.Int8(); v != -12 {
		t.Fatalf("Int8 = %d, want -12", v)
	}
	if v := r.Int16(); v != -1234 {
		t.Fatalf("Int16 = %d, want -1234", v)
	}
	if v := r.Int32(); v != math.MinInt32 {
		t.Fatalf("Int32 = %d, want %d", v, math.MinInt32)
	}
	if v := r.Int64(); v != math.MinInt64 {
		t.Fatalf("Int64 = %d, want %d", v, math.MinInt64)
	}
	if v := r.Uint32(); v != 0xdeadbeef {
		t.Fatalf("Uint32 = %x, want deadbeef", v)
	}
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestVarint(t *testing.T) {
	vals := []int32{0, 1, -1, 63, 64, -64, -65, math.MaxInt32, math.MinInt32}
	for _, v := range vals {
		w := NewWriter()
		w.AppendVarint(v)
		r := NewReader(w.Bytes()[4:])
		if got := r.Varint(); got != v {
			t.Fatalf("Varint round trip: got %d, want %d", got, v)
		}
		if err := r.Complete(); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
}

func TestVarlong(t *testing.T) {
	vals := []int64{0, 1, -1, math.MaxInt64, math.MinInt64, 1 << 40}
	for _, v := range vals {
		w := NewWriter()
		w.AppendVarlong(v)
		r := NewReader(w.Bytes()[4:])
		if got := r.Varlong(); got != v {
			t.Fatalf("Varlong round trip: got %d, want %d", got, v)
		}
	}
}

func TestUvarintMaxFiveBytes(t *testing.T) {
	w := NewWriter()
	w.AppendUvarint(math.MaxUint32)
	if got := w.Len(); got > 5 {
		t.Fatalf("uvarint of max uint32 took %d bytes, want <= 5", got)
	}
	r := NewReader(w.Bytes()[4:])
	if got := r.Uvarint(); got != math.MaxUint32 {
		t.Fatalf("got %d, want max uint32", got)
	}
}

func TestStringCompactAndClassic(t *testing.T) {
	for _, compact := range []bool{true, false} {
		w := NewWriter()
		w.AppendString("hello", compact)
		r := NewReader(w.Bytes()[4:])
		if got := r.String(compact); got != "hello" {
			t.Fatalf("compact=%v got %q", compact, got)
		}
	}
}

func TestNullableStringDistinguishesNullAndEmpty(t *testing.T) {
	for _, compact := range []bool{true, false} {
		wNull := NewWriter()
		wNull.AppendNullableString(nil, compact)
		rNull := NewReader(wNull.Bytes()[4:])
		if _, ok := rNull.NullableString(compact); ok {
			t.Fatalf("compact=%v null string decoded as present", compact)
		}

		empty := ""
		wEmpty := NewWriter()
		wEmpty.AppendNullableString(&empty, compact)
		rEmpty := NewReader(wEmpty.Bytes()[4:])
		v, ok := rEmpty.NullableString(compact)
		if !ok || v != "" {
			t.Fatalf("compact=%v empty string decoded as (%q, %v)", compact, v, ok)
		}

		if compact {
			// compact empty string is UnsignedVarInt(1): one byte, value 1.
			if !bytes.Equal(wEmpty.Bytes()[4:], []byte{1}) {
				t.Fatalf("compact empty string wire form = %v, want [1]", wEmpty.Bytes()[4:])
			}
			// compact null string is UnsignedVarInt(0): one byte, value 0.
			if !bytes.Equal(wNull.Bytes()[4:], []byte{0}) {
				t.Fatalf("compact null string wire form = %v, want [0]", wNull.Bytes()[4:])
			}
		}
	}
}

func TestBytesRoundTrip(t *testing.T) {
	for _, compact := range []bool{true, false} {
		payload := []byte{1, 2, 3, 4}
		w := NewWriter()
		w.AppendBytes(payload, compact)
		r := NewReader(w.Bytes()[4:])
		if got := r.Bytes(compact); !bytes.Equal(got, payload) {
			t.Fatalf("compact=%v got %v, want %v", compact, got, payload)
		}

		wNil := NewWriter()
		wNil.AppendNullableBytes(nil, compact)
		rNil := NewReader(wNil.Bytes()[4:])
		if got := rNil.Bytes(compact); got != nil {
			t.Fatalf("compact=%v nil bytes decoded as %v", compact, got)
		}
	}
}

func TestVarintBytesNullIsNegativeOne(t *testing.T) {
	w := NewWriter()
	w.AppendVarintBytes(nil)
	if w.Bytes()[4] != 1 { // zig-zag(-1) == 1
		t.Fatalf("nil varint bytes should encode length -1, got first byte %d", w.Bytes()[4])
	}
	r := NewReader(w.Bytes()[4:])
	if got := r.VarintBytes(); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestUUID(t *testing.T) {
	var u [16]byte
	for i := range u {
		u[i] = byte(i)
	}
	w := NewWriter()
	w.AppendUUID(u)
	r := NewReader(w.Bytes()[4:])
	if got := r.UUID(); got != u {
		t.Fatalf("got %v, want %v", got, u)
	}
}

func TestArrayLenNullAndEmptyAreDistinctOnWire(t *testing.T) {
	for _, compact := range []bool{true, false} {
		wNull := NewWriter()
		wNull.AppendArrayLen(-1, compact)
		wEmpty := NewWriter()
		wEmpty.AppendArrayLen(0, compact)
		if bytes.Equal(wNull.Bytes()[4:], wEmpty.Bytes()[4:]) {
			t.Fatalf("compact=%v null and empty array encoded identically", compact)
		}
		// Both are read back as "0 elements" per the source's convention.
		if got := NewReader(wNull.Bytes()[4:]).ArrayLen(compact); got != 0 {
			t.Fatalf("compact=%v null array len = %d, want 0", compact, got)
		}
		if got := NewReader(wEmpty.Bytes()[4:]).ArrayLen(compact); got != 0 {
			t.Fatalf("compact=%v empty array len = %d, want 0", compact, got)
		}
	}
	// compact empty array is UnsignedVarInt(1).
	wEmpty := NewWriter()
	wEmpty.AppendArrayLen(0, true)
	if !bytes.Equal(wEmpty.Bytes()[4:], []byte{1}) {
		t.Fatalf("compact empty array wire form = %v, want [1]", wEmpty.Bytes()[4:])
	}
}

func TestTaggedFieldsEmptyIsOneZeroByte(t *testing.T) {
	w := NewWriter()
	w.AppendTaggedFields()
	if !bytes.Equal(w.Bytes()[4:], []byte{0}) {
		t.Fatalf("empty tagged fields = %v, want [0]", w.Bytes()[4:])
	}
	r := NewReader(w.Bytes()[4:])
	r.SkipTags()
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestSkipTagsWithPayload(t *testing.T) {
	w := NewWriter()
	w.AppendUvarint(1) // one tag
	w.AppendUvarint(7) // tag id
	w.AppendUvarint(3) // size
	w.buf = append(w.buf, 'a', 'b', 'c')

	r := NewReader(w.Bytes()[4:])
	r.SkipTags()
	if err := r.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestPrependLength(t *testing.T) {
	w := NewWriter()
	w.AppendString("abc", false)
	w.PrependLength()
	if got := int32(w.Bytes()[0])<<24 | int32(w.Bytes()[1])<<16 | int32(w.Bytes()[2])<<8 | int32(w.Bytes()[3]); got != int32(w.Len()) {
		t.Fatalf("prepended length = %d, want %d", got, w.Len())
	}
}

func TestReaderErrNotEnoughData(t *testing.T) {
	r := NewReader([]byte{0, 1})
	_ = r.Int32()
	if r.Err() != ErrNotEnoughData {
		t.Fatalf("Err() = %v, want ErrNotEnoughData", r.Err())
	}
}
