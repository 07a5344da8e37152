package kmsg

import "github.com/wireproto/kgo/kbin"

// FetchRequestPartition is one partition to read within a
// FetchRequestTopic.
type FetchRequestPartition struct {
	Partition          int32
	CurrentLeaderEpoch int32
	FetchOffset        int64
	LastFetchedEpoch   int32
	LogStartOffset     int64
	PartitionMaxBytes  int32
}

// FetchRequestTopic is one topic's worth of partitions within a
// FetchRequest.
type FetchRequestTopic struct {
	Topic      string
	Partitions []FetchRequestPartition
}

// FetchRequest (key 1) reads records from one or more topic-partitions.
// Version 17 is flexible and session-aware; SessionID/SessionEpoch of
// 0/-1 opt out of incremental fetch sessions. Both are written as set, so
// the zero value sends 0/0.
type FetchRequest struct {
	MaxWaitMillis int32
	MinBytes      int32
	MaxBytes      int32
	IsolationLevel int8
	SessionID     int32
	SessionEpoch  int32
	Topics        []FetchRequestTopic

	// version defaults to 17 (this codec's only wire form); see the
	// comment on ProduceRequest's version field for why pinning it lower
	// only changes the advertised header version, not the body encoding,
	// and why versionSet (not a zero check) guards the default.
	version    int16
	versionSet bool
}

func (r *FetchRequest) Descriptor() Descriptor {
	version := int16(17)
	if r.versionSet {
		version = r.version
	}
	return Descriptor{
		ApiKey:                     1,
		ApiVersion:                 version,
		RequestHeaderTaggedFields:  true,
		ResponseHeaderTaggedFields: true,
	}
}

// MaxVersion is 17, the only Fetch version this client encodes.
func (r *FetchRequest) MaxVersion() int16 { return 17 }

// SetVersion records the negotiated version; see ProduceRequest.SetVersion.
func (r *FetchRequest) SetVersion(v int16) { r.version, r.versionSet = v, true }

func (r *FetchRequest) AppendTo(w *kbin.Writer) {
	w.AppendInt32(-1) // replicaId, always -1 for a non-broker client
	w.AppendInt32(r.MaxWaitMillis)
	w.AppendInt32(r.MinBytes)
	w.AppendInt32(r.MaxBytes)
	w.AppendInt8(r.IsolationLevel)
	w.AppendInt32(r.SessionID)
	w.AppendInt32(r.SessionEpoch)

	w.AppendArrayLen(len(r.Topics), true)
	for _, t := range r.Topics {
		w.AppendString(t.Topic, true)
		w.AppendArrayLen(len(t.Partitions), true)
		for _, p := range t.Partitions {
			w.AppendInt32(p.Partition)
			w.AppendInt32(p.CurrentLeaderEpoch)
			w.AppendInt64(p.FetchOffset)
			w.AppendInt32(p.LastFetchedEpoch)
			w.AppendInt64(p.LogStartOffset)
			w.AppendInt32(p.PartitionMaxBytes)
			w.AppendTaggedFields()
		}
		w.AppendTaggedFields()
	}

	w.AppendArrayLen(0, true) // forgotten topics: not used outside session management
	w.AppendString("", true) // rack ID
	w.AppendTaggedFields()
}

func (r *FetchRequest) ResponseKind() Response { return &FetchResponse{} }

// FetchResponsePartition is one partition's result within a
// FetchResponseTopic.
type FetchResponsePartition struct {
	Partition        int32
	ErrorCode        int16
	HighWatermark    int64
	LastStableOffset int64
	LogStartOffset   int64
	RecordsBytes     []byte
}

// FetchResponseTopic is one topic's worth of partition results within a
// FetchResponse.
type FetchResponseTopic struct {
	Topic      string
	Partitions []FetchResponsePartition
}

// FetchResponse is the broker's per-partition read result of a
// FetchRequest.
type FetchResponse struct {
	ThrottleMillis int32
	ErrorCode      int16
	SessionID      int32
	Topics         []FetchResponseTopic
}

func (r *FetchResponse) ReadFrom(rd *kbin.Reader) error {
	r.ThrottleMillis = rd.Int32()
	r.ErrorCode = rd.Int16()
	r.SessionID = rd.Int32()

	nt := rd.ArrayLen(true)
	r.Topics = make([]FetchResponseTopic, nt)
	for i := range r.Topics {
		t := &r.Topics[i]
		t.Topic = rd.String(true)

		np := rd.ArrayLen(true)
		t.Partitions = make([]FetchResponsePartition, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.Partition = rd.Int32()
			p.ErrorCode = rd.Int16()
			p.HighWatermark = rd.Int64()
			p.LastStableOffset = rd.Int64()
			p.LogStartOffset = rd.Int64()

			// aborted transactions array; skipped field-by-field since
			// this client does not expose read_committed transaction
			// bookkeeping.
			na := rd.ArrayLen(true)
			for k := 0; k < na; k++ {
				rd.Int64() // producerId
				rd.Int64() // firstOffset
				SkipTags(rd)
			}

			rd.Int32() // preferredReadReplica
			p.RecordsBytes = rd.Bytes(true)
			SkipTags(rd)
		}
		SkipTags(rd)
	}
	SkipTags(rd)
	return rd.Err()
}
