// Package compress implements the four record-batch compression codecs
// Kafka supports: gzip, snappy (xerial-framed), lz4, and zstd, selected by
// the low three bits of a record batch's attributes field (spec.md §4.C,
// §6).
package compress

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies a record batch compression codec.
type Codec int8

const (
	None Codec = iota
	Gzip
	Snappy
	LZ4
	ZSTD
)

// String renders the codec's Kafka-conventional name.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Snappy:
		return "snappy"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", int8(c))
	}
}

// FromAttributes extracts the codec from the low three bits of a record
// batch attributes field.
func FromAttributes(attrs int16) Codec {
	return Codec(attrs & 0x7)
}

// Encode compresses src according to c. None returns src unmodified.
func Encode(c Codec, src []byte) ([]byte, error) {
	switch c {
	case None:
		return src, nil
	case Gzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(src); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Snappy:
		return encodeXerialSnappy(src), nil
	case LZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(src); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case ZSTD:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(src, nil), nil
	default:
		return nil, fmt.Errorf("compress: unsupported codec %s", c)
	}
}

// Decode decompresses src according to c. None returns src unmodified.
func Decode(c Codec, src []byte) ([]byte, error) {
	switch c {
	case None:
		return src, nil
	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case Snappy:
		return decodeXerialSnappy(src)
	case LZ4:
		zr := lz4.NewReader(bytes.NewReader(src))
		return io.ReadAll(zr)
	case ZSTD:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(src, nil)
	default:
		return nil, fmt.Errorf("compress: unsupported codec %s", c)
	}
}

// xerialMagic is the 8-byte header Hadoop's "xerial" snappy framing prefixes
// every chunked stream with, which Kafka inherited and which every Kafka
// client must emit/recognize for snappy-compressed record batches.
var xerialMagic = [8]byte{0x82, 'S', 'N', 'A', 'P', 'P', 'Y', 0}

const xerialVersion = 1
const xerialCompatible = 1

// xerialBlockSize is the max number of source bytes packed into one xerial
// chunk before a new chunk is framed; this matches common client behavior
// and keeps Decode's growth bounded per chunk.
const xerialBlockSize = 32 << 10

func encodeXerialSnappy(src []byte) []byte {
	out := make([]byte, 0, len(src)/2+32)
	out = append(out, xerialMagic[:]...)
	out = appendBE32(out, xerialVersion)
	out = appendBE32(out, xerialCompatible)

	for len(src) > 0 {
		chunk := src
		if len(chunk) > xerialBlockSize {
			chunk = chunk[:xerialBlockSize]
		}
		src = src[len(chunk):]

		enc := s2.EncodeSnappy(nil, chunk)
		out = appendBE32(out, int32(len(enc)))
		out = append(out, enc...)
	}
	return out
}

func decodeXerialSnappy(src []byte) ([]byte, error) {
	if len(src) < 16 || !bytes.Equal(src[:8], xerialMagic[:]) {
		// Not xerial-framed: some producers emit a single raw snappy
		// block with no framing at all. Fall back to that.
		return s2.Decode(nil, src)
	}
	src = src[16:] // magic(8) + version(4) + compatible(4)

	var out []byte
	for len(src) > 0 {
		if len(src) < 4 {
			return nil, fmt.Errorf("compress: truncated xerial snappy chunk length")
		}
		n := int(int32(binary.BigEndian.Uint32(src)))
		src = src[4:]
		if n < 0 || n > len(src) {
			return nil, fmt.Errorf("compress: invalid xerial snappy chunk length %d", n)
		}
		chunk := src[:n]
		src = src[n:]

		dec, err := s2.Decode(nil, chunk)
		if err != nil {
			return nil, fmt.Errorf("compress: xerial snappy chunk: %w", err)
		}
		out = append(out, dec...)
	}
	return out, nil
}

func appendBE32(dst []byte, v int32) []byte {
	var a [4]byte
	binary.BigEndian.PutUint32(a[:], uint32(v))
	return append(dst, a[:]...)
}
