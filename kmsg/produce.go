package kmsg

import (
	"github.com/wireproto/kgo/compress"
	"github.com/wireproto/kgo/internal/recordbatch"
	"github.com/wireproto/kgo/kbin"
)

// ProducePartitionData is one partition's worth of records within a
// ProduceTopicData.
type ProducePartitionData struct {
	Partition int32
	Batch     *recordbatch.Batch
	Codec     compress.Codec
}

// ProduceTopicData is one topic's worth of partitions within a
// ProduceRequest.
type ProduceTopicData struct {
	Topic      string
	Partitions []ProducePartitionData
}

// ProduceRequest (key 0) appends record batches to one or more
// topic-partitions. Version 11 is flexible; Acks == 0 marks the request
// fire-and-forget (NoResponse), matching spec.md §4.D's acks=0 path.
type ProduceRequest struct {
	TransactionalID *string
	Acks            int16
	TimeoutMillis   int32
	Topics          []ProduceTopicData

	// version defaults to 11 (this codec's only wire form) and is pinned
	// lower by SetVersion when ApiVersions negotiation reports a broker
	// max below 11; the request still encodes v11's flexible body, since
	// that is the only Produce wire format this client implements (see
	// MaxVersion's doc comment). versionSet distinguishes "never
	// negotiated" from a legitimately negotiated version 0.
	version    int16
	versionSet bool
}

func (r *ProduceRequest) Descriptor() Descriptor {
	version := int16(11)
	if r.versionSet {
		version = r.version
	}
	return Descriptor{
		ApiKey:                     0,
		ApiVersion:                 version,
		RequestHeaderTaggedFields:  true,
		ResponseHeaderTaggedFields: true,
		NoResponse:                 r.Acks == 0,
	}
}

// MaxVersion is 11, the only Produce version this client encodes.
func (r *ProduceRequest) MaxVersion() int16 { return 11 }

// SetVersion records the negotiated version for reporting in Descriptor
// and in any KindResponseError this request's response later carries.
// This client only ever writes v11's flexible body: a broker whose
// advertised max is below 11 cannot be produced to by this client.
func (r *ProduceRequest) SetVersion(v int16) { r.version, r.versionSet = v, true }

func (r *ProduceRequest) AppendTo(w *kbin.Writer) {
	w.AppendNullableString(r.TransactionalID, true)
	w.AppendInt16(r.Acks)
	w.AppendInt32(r.TimeoutMillis)

	w.AppendArrayLen(len(r.Topics), true)
	for _, t := range r.Topics {
		w.AppendString(t.Topic, true)
		w.AppendArrayLen(len(t.Partitions), true)
		for _, p := range t.Partitions {
			w.AppendInt32(p.Partition)
			batchBytes, err := recordbatch.Encode(p.Batch, p.Codec)
			if err != nil {
				// AppendTo has no error return; a batch that fails to
				// encode here is a caller bug (bad codec, corrupt
				// records), not a wire-level condition, so surface it
				// the only way this signature allows.
				panic(err)
			}
			w.AppendBytes(batchBytes, true)
			w.AppendTaggedFields()
		}
		w.AppendTaggedFields()
	}
	w.AppendTaggedFields()
}

func (r *ProduceRequest) ResponseKind() Response {
	if r.Acks == 0 {
		return nil
	}
	return &ProduceResponse{}
}

// ProducePartitionResponse is one partition's result within a
// ProduceTopicResponse.
type ProducePartitionResponse struct {
	Partition      int32
	ErrorCode      int16
	BaseOffset     int64
	LogAppendTime  int64
	LogStartOffset int64
}

// ProduceTopicResponse is one topic's worth of partition results within a
// ProduceResponse.
type ProduceTopicResponse struct {
	Topic      string
	Partitions []ProducePartitionResponse
}

// ProduceResponse is the broker's per-partition result of a ProduceRequest.
type ProduceResponse struct {
	Topics         []ProduceTopicResponse
	ThrottleMillis int32
}

func (r *ProduceResponse) ReadFrom(rd *kbin.Reader) error {
	nt := rd.ArrayLen(true)
	r.Topics = make([]ProduceTopicResponse, nt)
	for i := range r.Topics {
		t := &r.Topics[i]
		t.Topic = rd.String(true)

		np := rd.ArrayLen(true)
		t.Partitions = make([]ProducePartitionResponse, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.Partition = rd.Int32()
			p.ErrorCode = rd.Int16()
			p.BaseOffset = rd.Int64()
			p.LogAppendTime = rd.Int64()
			p.LogStartOffset = rd.Int64()
			SkipTags(rd)
		}
		SkipTags(rd)
	}
	r.ThrottleMillis = rd.Int32()
	SkipTags(rd)
	return rd.Err()
}
