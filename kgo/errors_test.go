package kgo

import (
	"testing"

	"github.com/wireproto/kgo/kmsg"
)

// TestResponseErrorsFetchPartitionKeyIsResponsesPath exercises scenario 3:
// a Fetch partition-level error maps to "/responses/<i>/partitions/<j>", not
// "/topics/<i>/partitions/<j>" (the key used by, e.g., Produce).
func TestResponseErrorsFetchPartitionKeyIsResponsesPath(t *testing.T) {
	resp := &kmsg.FetchResponse{
		Topics: []kmsg.FetchResponseTopic{
			{
				Topic: "t",
				Partitions: []kmsg.FetchResponsePartition{
					{Partition: 0, ErrorCode: 6}, // NOT_LEADER_OR_FOLLOWER
				},
			},
		},
	}

	errMap, has := responseErrors(resp)
	if !has {
		t.Fatalf("responseErrors returned has=false, want true")
	}
	entry, ok := errMap["/responses/0/partitions/0"]
	if !ok {
		t.Fatalf("errMap = %+v, want a \"/responses/0/partitions/0\" key", errMap)
	}
	if entry.Code != 6 {
		t.Fatalf("entry.Code = %d, want 6", entry.Code)
	}
}

func TestResponseErrorsProduceStillUsesTopicsPath(t *testing.T) {
	resp := &kmsg.ProduceResponse{
		Topics: []kmsg.ProduceTopicResponse{
			{
				Topic:      "t",
				Partitions: []kmsg.ProducePartitionResponse{{Partition: 0, ErrorCode: 6}},
			},
		},
	}

	errMap, has := responseErrors(resp)
	if !has {
		t.Fatalf("responseErrors returned has=false, want true")
	}
	if _, ok := errMap["/topics/0/partitions/0"]; !ok {
		t.Fatalf("errMap = %+v, want a \"/topics/0/partitions/0\" key", errMap)
	}
}
