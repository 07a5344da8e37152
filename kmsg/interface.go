// Package kmsg contains the Kafka request/response descriptors this
// client speaks: a uniform wire-protocol header framing, tagged-field
// extensibility, and seven worked API descriptors (ApiVersions,
// SASLHandshake, SASLAuthenticate, Metadata, Produce, Fetch,
// DescribeConfigs) over the kbin codec. Every other Kafka API is a
// mechanical variation of the same pattern once these exist.
package kmsg

import "github.com/wireproto/kgo/kbin"

// Descriptor is the data that identifies an API request/response pair:
// its key and version, and whether each side of the header carries a
// flexible-version tagged-field block per KIP-482.
type Descriptor struct {
	ApiKey                     int16
	ApiVersion                 int16
	RequestHeaderTaggedFields  bool
	ResponseHeaderTaggedFields bool
	// NoResponse marks a fire-and-forget request (Produce with acks=0):
	// the connection must not install an in-flight record and must
	// complete the caller synchronously once the bytes are handed to
	// the socket.
	NoResponse bool
}

// Request is a single Kafka API request. AppendTo writes only the request
// body; RequestFormatter.AppendRequest wraps it with the correlation
// header.
type Request interface {
	Descriptor() Descriptor
	AppendTo(w *kbin.Writer)
	// ResponseKind returns a zero-value Response of the type this
	// request expects, for the caller to ReadFrom. Nil if and only if
	// Descriptor().NoResponse is true.
	ResponseKind() Response
}

// Response is a single Kafka API response body (the header's
// correlation ID and tagged fields are stripped before ReadFrom sees
// the bytes).
type Response interface {
	ReadFrom(r *kbin.Reader) error
}

// VersionedRequest is a Request that can be re-pinned to a different
// wire version after construction, once ApiVersions negotiation has told
// the caller what the broker actually speaks. MaxVersion reports the
// highest version this codec implements; SetVersion asks the request to
// encode itself as version v (v <= MaxVersion()) from then on.
type VersionedRequest interface {
	Request
	MaxVersion() int16
	SetVersion(v int16)
}

// RequestFormatter assembles full request frames: a length prefix, the
// apiKey/apiVersion/correlationID/clientID header, optional header tagged
// fields, then the request body.
type RequestFormatter struct {
	clientID *string
}

// NewRequestFormatter returns a RequestFormatter that stamps every request
// with clientID, mirroring kmsg's own FormatterClientID convention.
func NewRequestFormatter(clientID string) *RequestFormatter {
	return &RequestFormatter{clientID: &clientID}
}

// AppendRequest appends a complete request frame (length-prefixed) to w.
func (f *RequestFormatter) AppendRequest(w *kbin.Writer, r Request, correlationID int32) {
	d := r.Descriptor()
	w.AppendInt16(d.ApiKey)
	w.AppendInt16(d.ApiVersion)
	w.AppendInt32(correlationID)
	w.AppendNullableString(f.clientID, false)
	if d.RequestHeaderTaggedFields {
		w.AppendTaggedFields()
	}
	r.AppendTo(w)
}

// SkipTags consumes a tagged-field block, discarding every tag's payload.
// Tag interpretation is intentionally not performed at this layer.
func SkipTags(r *kbin.Reader) {
	r.SkipTags()
}

// ReadResponseHeader consumes the response-header tagged-field block when
// present, leaving r positioned at the start of the response body.
func ReadResponseHeader(r *kbin.Reader, d Descriptor) {
	if d.ResponseHeaderTaggedFields {
		SkipTags(r)
	}
}
