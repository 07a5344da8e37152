package kmsg

import "github.com/wireproto/kgo/kbin"

// ApiVersionsRequest (key 18) is issued immediately after connecting, with
// version 0, before either side knows what the other supports. The broker
// responds with every API key/version range it speaks, which the
// connection uses to negotiate the version of every subsequent request.
type ApiVersionsRequest struct {
	// Version negotiation bootstraps on v0, the lowest version every
	// broker since Kafka 0.10 understands.
	ClientSoftwareName    string
	ClientSoftwareVersion string
	// Flexible selects v3 framing (compact strings, header tagged
	// fields) once a prior negotiation already established broker
	// support; the initial bootstrap request always uses v0.
	Flexible bool
}

func (r *ApiVersionsRequest) Descriptor() Descriptor {
	version := int16(0)
	if r.Flexible {
		version = 3
	}
	return Descriptor{
		ApiKey:                     18,
		ApiVersion:                 version,
		RequestHeaderTaggedFields:  r.Flexible,
		ResponseHeaderTaggedFields: r.Flexible,
	}
}

func (r *ApiVersionsRequest) AppendTo(w *kbin.Writer) {
	if !r.Flexible {
		return
	}
	w.AppendString(r.ClientSoftwareName, true)
	w.AppendString(r.ClientSoftwareVersion, true)
	w.AppendTaggedFields()
}

func (r *ApiVersionsRequest) ResponseKind() Response {
	return &ApiVersionsResponse{flexible: r.Flexible}
}

// MaxVersion is 3, the highest ApiVersions version this client encodes.
func (r *ApiVersionsRequest) MaxVersion() int16 { return 3 }

// SetVersion pins the request to v, choosing the flexible (v3) or classic
// (v0) wire form depending on whether v crosses the KIP-482 boundary.
func (r *ApiVersionsRequest) SetVersion(v int16) {
	r.Flexible = v >= 3
}

// ApiKeyRange is one entry of an ApiVersionsResponse: the min/max version a
// broker supports for a given API key.
type ApiKeyRange struct {
	ApiKey     int16
	MinVersion int16
	MaxVersion int16
}

// ApiVersionsResponse is the broker's advertised API key/version matrix.
type ApiVersionsResponse struct {
	ErrorCode      int16
	ApiKeys        []ApiKeyRange
	ThrottleMillis int32

	flexible bool
}

func (r *ApiVersionsResponse) ReadFrom(rd *kbin.Reader) error {
	r.ErrorCode = rd.Int16()
	n := rd.ArrayLen(r.flexible)
	r.ApiKeys = make([]ApiKeyRange, n)
	for i := range r.ApiKeys {
		r.ApiKeys[i].ApiKey = rd.Int16()
		r.ApiKeys[i].MinVersion = rd.Int16()
		r.ApiKeys[i].MaxVersion = rd.Int16()
		if r.flexible {
			SkipTags(rd)
		}
	}
	// ApiVersions v1 onward carries a throttle field; v0 (the bootstrap
	// version) does not, so treat running out of input here as benign.
	if len(rd.Src) > 0 {
		r.ThrottleMillis = rd.Int32()
	}
	if r.flexible {
		SkipTags(rd)
	}
	return rd.Err()
}
