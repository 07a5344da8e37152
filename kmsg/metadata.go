package kmsg

import "github.com/wireproto/kgo/kbin"

// MetadataRequestTopic names one topic to describe. A nil Topics slice on
// the request (not an empty one) asks for every topic in the cluster.
type MetadataRequestTopic struct {
	Topic string
}

// MetadataRequest (key 3) discovers cluster brokers, controller, and
// topic/partition leadership. Version 9 is flexible.
type MetadataRequest struct {
	Topics                             []MetadataRequestTopic
	AllowAutoTopicCreation             bool
	IncludeClusterAuthorizedOperations bool
	IncludeTopicAuthorizedOperations   bool
	Flexible                           bool
}

func (r *MetadataRequest) Descriptor() Descriptor {
	version := int16(4)
	if r.Flexible {
		version = 9
	}
	return Descriptor{
		ApiKey:                     3,
		ApiVersion:                 version,
		RequestHeaderTaggedFields:  r.Flexible,
		ResponseHeaderTaggedFields: r.Flexible,
	}
}

func (r *MetadataRequest) AppendTo(w *kbin.Writer) {
	if r.Topics == nil {
		w.AppendArrayLen(-1, r.Flexible)
	} else {
		w.AppendArrayLen(len(r.Topics), r.Flexible)
		for _, t := range r.Topics {
			w.AppendString(t.Topic, r.Flexible)
			if r.Flexible {
				w.AppendTaggedFields()
			}
		}
	}
	w.AppendBool(r.AllowAutoTopicCreation)
	if r.Flexible {
		w.AppendBool(r.IncludeClusterAuthorizedOperations)
		w.AppendBool(r.IncludeTopicAuthorizedOperations)
		w.AppendTaggedFields()
	}
}

func (r *MetadataRequest) ResponseKind() Response {
	return &MetadataResponse{flexible: r.Flexible}
}

// MaxVersion is 9, the highest Metadata version this client encodes.
func (r *MetadataRequest) MaxVersion() int16 { return 9 }

// SetVersion pins the request to v, choosing the flexible (v9) or classic
// (v4) wire form depending on whether v crosses the KIP-482 boundary.
func (r *MetadataRequest) SetVersion(v int16) {
	r.Flexible = v >= 9
}

// MetadataBroker is one broker entry of a MetadataResponse.
type MetadataBroker struct {
	NodeID int32
	Host   string
	Port   int32
	Rack   *string
}

// MetadataPartition is one partition entry within a MetadataTopic.
type MetadataPartition struct {
	ErrorCode      int16
	PartitionIndex int32
	LeaderID       int32
	LeaderEpoch    int32
	ReplicaNodes   []int32
	ISRNodes       []int32
}

// MetadataTopic is one topic entry of a MetadataResponse.
type MetadataTopic struct {
	ErrorCode  int16
	Topic      string
	IsInternal bool
	Partitions []MetadataPartition
}

// MetadataResponse describes the cluster as of the broker that answered.
type MetadataResponse struct {
	ThrottleMillis int32
	Brokers        []MetadataBroker
	ClusterID      *string
	ControllerID   int32
	Topics         []MetadataTopic

	flexible bool
}

func (r *MetadataResponse) ReadFrom(rd *kbin.Reader) error {
	// Both the v4 (classic) and v9 (flexible) versions this descriptor
	// emits carry throttle_time_ms; it was added in v3.
	r.ThrottleMillis = rd.Int32()

	nb := rd.ArrayLen(r.flexible)
	r.Brokers = make([]MetadataBroker, nb)
	for i := range r.Brokers {
		b := &r.Brokers[i]
		b.NodeID = rd.Int32()
		b.Host = rd.String(r.flexible)
		b.Port = rd.Int32()
		if rack, ok := rd.NullableString(r.flexible); ok {
			b.Rack = &rack
		}
		if r.flexible {
			SkipTags(rd)
		}
	}

	if cid, ok := rd.NullableString(r.flexible); ok {
		r.ClusterID = &cid
	}
	r.ControllerID = rd.Int32()

	nt := rd.ArrayLen(r.flexible)
	r.Topics = make([]MetadataTopic, nt)
	for i := range r.Topics {
		t := &r.Topics[i]
		t.ErrorCode = rd.Int16()
		t.Topic = rd.String(r.flexible)
		t.IsInternal = rd.Bool()

		np := rd.ArrayLen(r.flexible)
		t.Partitions = make([]MetadataPartition, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.ErrorCode = rd.Int16()
			p.PartitionIndex = rd.Int32()
			p.LeaderID = rd.Int32()
			p.LeaderEpoch = rd.Int32()

			nr := rd.ArrayLen(r.flexible)
			p.ReplicaNodes = make([]int32, nr)
			for k := range p.ReplicaNodes {
				p.ReplicaNodes[k] = rd.Int32()
			}
			ni := rd.ArrayLen(r.flexible)
			p.ISRNodes = make([]int32, ni)
			for k := range p.ISRNodes {
				p.ISRNodes[k] = rd.Int32()
			}
			if r.flexible {
				SkipTags(rd)
			}
		}
		if r.flexible {
			SkipTags(rd)
		}
	}

	if r.flexible {
		SkipTags(rd)
	}
	return rd.Err()
}
