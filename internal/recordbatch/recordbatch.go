// Package recordbatch encodes and decodes Kafka v2 record batches: the
// payload carried inside Produce requests and Fetch responses.
//
// The on-wire layout is bit-exact with Kafka's magic=2 record batch format.
// CRC32-C (Castagnoli) covers the span from the attributes field through
// the end of the batch, mirroring kmsg's own ReadRecordBatches/crc32c.
package recordbatch

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/wireproto/kgo/compress"
	"github.com/wireproto/kgo/kbin"
)

// ErrCRCMismatch is returned when a decoded batch's computed CRC32-C does
// not match the CRC32-C carried on the wire.
var ErrCRCMismatch = errors.New("recordbatch: encoded crc does not match calculated crc")

// ErrTruncated is returned when src does not contain a complete batch.
var ErrTruncated = errors.New("recordbatch: truncated record batch")

const (
	attrCompressionMask = 0x7
	attrTimestampType   = 1 << 3
	attrTransactional   = 1 << 4
	attrControl         = 1 << 5
)

// crc32c is the Castagnoli table Kafka uses for record batch checksums.
var crc32c = crc32.MakeTable(crc32.Castagnoli)

// Header is a single record header: a string key paired with opaque bytes.
type Header struct {
	Key   string
	Value []byte
}

// Record is one record within a Batch. OffsetDelta and TimestampDelta are
// relative to the enclosing Batch's FirstOffset/FirstTimestamp. Key and
// Value are nil when absent (encoded as varint length -1).
type Record struct {
	OffsetDelta    int32
	TimestampDelta int64
	Key            []byte
	Value          []byte
	Headers        []Header
}

// Batch is a Kafka v2 record batch.
type Batch struct {
	FirstOffset          int64
	PartitionLeaderEpoch int32
	Attributes           int16
	LastOffsetDelta      int32
	FirstTimestamp       int64
	MaxTimestamp         int64
	ProducerID           int64
	ProducerEpoch        int16
	FirstSequence        int32
	Records              []Record
}

// IsTransactional reports whether the batch's isTransactional bit is set.
func (b *Batch) IsTransactional() bool { return b.Attributes&attrTransactional != 0 }

// IsControl reports whether the batch's isControl bit is set. Control
// batches carry coordinator bookkeeping, not caller-visible records; the
// caller decides whether to surface or skip them.
func (b *Batch) IsControl() bool { return b.Attributes&attrControl != 0 }

// LogAppendTime reports whether the batch's timestampType bit indicates
// broker log-append-time semantics rather than producer create-time.
func (b *Batch) LogAppendTime() bool { return b.Attributes&attrTimestampType != 0 }

// Encode serializes b, compressing the record section with codec and
// setting the attributes' low three bits accordingly. LastOffsetDelta and
// MaxTimestamp are derived from b.Records before encoding; the caller need
// not precompute them.
func Encode(b *Batch, codec compress.Codec) ([]byte, error) {
	b.deriveAggregates()
	b.Attributes = (b.Attributes &^ attrCompressionMask) | int16(codec)

	inner := kbin.NewWriter()
	for _, rec := range b.Records {
		appendRecord(inner, rec)
	}
	body, err := compress.Encode(codec, inner.Bytes()[4:])
	if err != nil {
		return nil, err
	}

	out := kbin.NewWriter()
	out.AppendInt64(b.FirstOffset)
	out.AppendInt32(0) // batchLength placeholder, patched below
	out.AppendInt32(b.PartitionLeaderEpoch)
	out.AppendInt8(2) // magic
	out.AppendUint32(0) // crc placeholder, patched below
	out.AppendInt16(b.Attributes)
	out.AppendInt32(b.LastOffsetDelta)
	out.AppendInt64(b.FirstTimestamp)
	out.AppendInt64(b.MaxTimestamp)
	out.AppendInt64(b.ProducerID)
	out.AppendInt16(b.ProducerEpoch)
	out.AppendInt32(b.FirstSequence)
	out.AppendInt32(int32(len(b.Records)))

	buf := out.Bytes()[4:]
	buf = append(buf, body...)

	// batchLength: everything after the batchLength field itself.
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(buf)-12))
	// crc32c covers from the attributes field (offset 21) to the end.
	crc := crc32.Checksum(buf[21:], crc32c)
	binary.BigEndian.PutUint32(buf[17:21], crc)

	return buf, nil
}

// Decode parses a single record batch from the front of src. It returns
// the batch and the number of bytes consumed.
func Decode(src []byte) (*Batch, int, error) {
	if len(src) < 61 { // fixed header through records count
		return nil, 0, ErrTruncated
	}
	batchLength := int32(binary.BigEndian.Uint32(src[8:12]))
	total := int(batchLength) + 12
	if total < 0 || len(src) < total {
		return nil, 0, ErrTruncated
	}

	crc := binary.BigEndian.Uint32(src[17:21])
	if crc32.Checksum(src[21:total], crc32c) != crc {
		return nil, 0, ErrCRCMismatch
	}

	r := kbin.NewReader(src[:total])
	b := &Batch{}
	b.FirstOffset = r.Int64()
	_ = r.Int32() // batchLength, already consumed above
	b.PartitionLeaderEpoch = r.Int32()
	_ = r.Int8() // magic
	_ = r.Uint32() // crc, already verified above
	b.Attributes = r.Int16()
	b.LastOffsetDelta = r.Int32()
	b.FirstTimestamp = r.Int64()
	b.MaxTimestamp = r.Int64()
	b.ProducerID = r.Int64()
	b.ProducerEpoch = r.Int16()
	b.FirstSequence = r.Int32()
	count := r.Int32()
	if err := r.Err(); err != nil {
		return nil, 0, err
	}
	rest := r.Src

	codec := compress.FromAttributes(b.Attributes)
	plain, err := compress.Decode(codec, rest)
	if err != nil {
		return nil, 0, err
	}

	rr := kbin.NewReader(plain)
	b.Records = make([]Record, 0, count)
	for i := int32(0); i < count; i++ {
		rec, err := readRecord(rr)
		if err != nil {
			return nil, 0, err
		}
		b.Records = append(b.Records, rec)
	}

	return b, total, nil
}

func (b *Batch) deriveAggregates() {
	var maxOffsetDelta int32
	maxTimestamp := b.FirstTimestamp
	for _, rec := range b.Records {
		if rec.OffsetDelta > maxOffsetDelta {
			maxOffsetDelta = rec.OffsetDelta
		}
		if ts := b.FirstTimestamp + rec.TimestampDelta; ts > maxTimestamp {
			maxTimestamp = ts
		}
	}
	b.LastOffsetDelta = maxOffsetDelta
	b.MaxTimestamp = maxTimestamp
}

func appendRecord(w *kbin.Writer, rec Record) {
	body := kbin.NewWriter()
	body.AppendInt8(0) // record attributes, currently unused by Kafka
	body.AppendVarlong(rec.TimestampDelta)
	body.AppendVarint(rec.OffsetDelta)
	body.AppendVarintBytes(rec.Key)
	body.AppendVarintBytes(rec.Value)
	body.AppendVarint(int32(len(rec.Headers)))
	for _, h := range rec.Headers {
		body.AppendVarintBytes([]byte(h.Key))
		body.AppendVarintBytes(h.Value)
	}

	payload := body.Bytes()[4:]
	w.AppendVarint(int32(len(payload)))
	w.AppendRaw(payload)
}

func readRecord(r *kbin.Reader) (Record, error) {
	length := r.Varint()
	if length < 0 {
		return Record{}, errors.New("recordbatch: negative record length")
	}
	_ = r.Int8() // record attributes
	rec := Record{}
	rec.TimestampDelta = r.Varlong()
	rec.OffsetDelta = r.Varint()
	rec.Key = r.VarintBytes()
	rec.Value = r.VarintBytes()

	numHeaders := r.Varint()
	for i := int32(0); i < numHeaders; i++ {
		k := r.VarintBytes()
		v := r.VarintBytes()
		rec.Headers = append(rec.Headers, Header{Key: string(k), Value: v})
	}

	return rec, r.Err()
}
