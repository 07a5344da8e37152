package kmsg

import (
	"bytes"
	"testing"

	"github.com/wireproto/kgo/compress"
	"github.com/wireproto/kgo/internal/recordbatch"
	"github.com/wireproto/kgo/kbin"
)

func TestRequestFormatterHeaderFraming(t *testing.T) {
	req := &ProduceRequest{
		Acks:          1,
		TimeoutMillis: 0,
		Topics: []ProduceTopicData{
			{
				Topic: "t",
				Partitions: []ProducePartitionData{
					{
						Partition: 0,
						Codec:     compress.None,
						Batch: &recordbatch.Batch{
							FirstTimestamp: 1_700_000_000_000,
							ProducerID:     -1,
							ProducerEpoch:  -1,
							FirstSequence:  -1,
							Records: []recordbatch.Record{
								{Key: []byte("k"), Value: []byte("v")},
							},
						},
					},
				},
			},
		},
	}

	f := NewRequestFormatter("my-client")
	w := kbin.NewWriter()
	f.AppendRequest(w, req, 7)
	w.PrependLength()

	frame := w.Bytes()
	body := frame[4:] // strip the length prefix itself

	if !bytes.Equal(body[0:2], []byte{0x00, 0x00}) {
		t.Fatalf("apiKey bytes = %v, want [0 0]", body[0:2])
	}
	if !bytes.Equal(body[2:4], []byte{0x00, 0x0B}) {
		t.Fatalf("apiVersion bytes = %v, want [0 11]", body[2:4])
	}
	if !bytes.Equal(body[4:8], []byte{0, 0, 0, 7}) {
		t.Fatalf("correlationID bytes = %v, want [0 0 0 7]", body[4:8])
	}
}

func TestProduceDescriptorNoResponseOnAcksZero(t *testing.T) {
	req := &ProduceRequest{Acks: 0}
	if !req.Descriptor().NoResponse {
		t.Fatalf("acks=0 produce request should be NoResponse")
	}
	req2 := &ProduceRequest{Acks: 1}
	if req2.Descriptor().NoResponse {
		t.Fatalf("acks=1 produce request should not be NoResponse")
	}
}

func TestProduceRequestAppendAndDecodeBatchRoundTrip(t *testing.T) {
	req := &ProduceRequest{
		Acks: 1,
		Topics: []ProduceTopicData{
			{Topic: "t", Partitions: []ProducePartitionData{{
				Partition: 0,
				Codec:     compress.None,
				Batch: &recordbatch.Batch{
					FirstTimestamp: 1700000000000,
					ProducerID:     -1,
					ProducerEpoch:  -1,
					FirstSequence:  -1,
					Records:        []recordbatch.Record{{Key: []byte("k"), Value: []byte("v")}},
				},
			}}},
		},
	}
	w := kbin.NewWriter()
	req.AppendTo(w)
	body := w.Bytes()[4:]

	r := kbin.NewReader(body)
	_, ok := r.NullableString(true)
	if ok {
		t.Fatalf("transactionalId should be null")
	}
	if acks := r.Int16(); acks != 1 {
		t.Fatalf("acks = %d, want 1", acks)
	}
	if timeout := r.Int32(); timeout != 0 {
		t.Fatalf("timeout = %d, want 0", timeout)
	}
	if n := r.ArrayLen(true); n != 1 {
		t.Fatalf("topics array len = %d, want 1", n)
	}
	if topic := r.String(true); topic != "t" {
		t.Fatalf("topic = %q, want t", topic)
	}
	if n := r.ArrayLen(true); n != 1 {
		t.Fatalf("partitions array len = %d, want 1", n)
	}
	if p := r.Int32(); p != 0 {
		t.Fatalf("partition = %d, want 0", p)
	}
	batchBytes := r.Bytes(true)
	batch, _, err := recordbatch.Decode(batchBytes)
	if err != nil {
		t.Fatalf("decode embedded batch: %v", err)
	}
	if len(batch.Records) != 1 || !bytes.Equal(batch.Records[0].Key, []byte("k")) {
		t.Fatalf("decoded batch mismatch: %+v", batch.Records)
	}
}

func TestFetchResponseEmptyPartitions(t *testing.T) {
	w := kbin.NewWriter()
	w.AppendInt32(0) // throttleMillis
	w.AppendInt16(0) // errorCode
	w.AppendInt32(0) // sessionId
	w.AppendArrayLen(0, true)
	w.AppendTaggedFields()

	resp := &FetchResponse{}
	if err := resp.ReadFrom(kbin.NewReader(w.Bytes()[4:])); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if resp.ErrorCode != 0 || resp.SessionID != 0 || len(resp.Topics) != 0 {
		t.Fatalf("got %+v, want zero-value empty response", resp)
	}
}

func TestFetchResponsePartitionErrorCode(t *testing.T) {
	w := kbin.NewWriter()
	w.AppendInt32(0)
	w.AppendInt16(0)
	w.AppendInt32(0)
	w.AppendArrayLen(1, true)
	w.AppendString("t", true)
	w.AppendArrayLen(1, true)
	w.AppendInt32(0)  // partition
	w.AppendInt16(6)  // errorCode = NOT_LEADER_OR_FOLLOWER
	w.AppendInt64(0)  // highWatermark
	w.AppendInt64(0)  // lastStableOffset
	w.AppendInt64(0)  // logStartOffset
	w.AppendArrayLen(0, true) // aborted transactions
	w.AppendInt32(-1)         // preferredReadReplica
	w.AppendBytes(nil, true)  // records
	w.AppendTaggedFields()    // partition tags
	w.AppendTaggedFields()    // topic tags
	w.AppendTaggedFields()    // response tags

	resp := &FetchResponse{}
	if err := resp.ReadFrom(kbin.NewReader(w.Bytes()[4:])); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if got := resp.Topics[0].Partitions[0].ErrorCode; got != 6 {
		t.Fatalf("partition error code = %d, want 6", got)
	}
	if got := resp.Topics[0].Partitions[0].Partition; got != 0 {
		t.Fatalf("partition index = %d, want 0", got)
	}
}

func TestApiVersionsBootstrapRoundTrip(t *testing.T) {
	req := &ApiVersionsRequest{}
	d := req.Descriptor()
	if d.ApiVersion != 0 || d.RequestHeaderTaggedFields {
		t.Fatalf("bootstrap ApiVersions should be v0, non-flexible: %+v", d)
	}

	w := kbin.NewWriter()
	w.AppendInt16(0) // errorCode
	w.AppendArrayLen(1, false)
	w.AppendInt16(18) // apiKey
	w.AppendInt16(0)  // minVersion
	w.AppendInt16(3)  // maxVersion
	w.AppendInt32(0)  // throttleMillis is absent at v0, but our heuristic reads only if bytes remain

	resp := req.ResponseKind().(*ApiVersionsResponse)
	if err := resp.ReadFrom(kbin.NewReader(w.Bytes()[4:])); err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(resp.ApiKeys) != 1 || resp.ApiKeys[0].ApiKey != 18 {
		t.Fatalf("got %+v", resp.ApiKeys)
	}
}

func TestSASLHandshakeRoundTrip(t *testing.T) {
	req := &SASLHandshakeRequest{Mechanism: "PLAIN", Version: 1}
	w := kbin.NewWriter()
	req.AppendTo(w)
	r := kbin.NewReader(w.Bytes()[4:])
	if m := r.String(false); m != "PLAIN" {
		t.Fatalf("mechanism = %q, want PLAIN", m)
	}
}

func TestDescribeConfigsRoundTrip(t *testing.T) {
	req := &DescribeConfigsRequest{
		Resources: []ConfigResource{{ResourceType: 2, ResourceName: "t", ConfigNames: []string{"retention.ms"}}},
	}
	w := kbin.NewWriter()
	req.AppendTo(w)
	r := kbin.NewReader(w.Bytes()[4:])
	if n := r.ArrayLen(true); n != 1 {
		t.Fatalf("resources len = %d, want 1", n)
	}
	if rt := r.Int8(); rt != 2 {
		t.Fatalf("resourceType = %d, want 2", rt)
	}
	if name := r.String(true); name != "t" {
		t.Fatalf("resourceName = %q, want t", name)
	}
}
