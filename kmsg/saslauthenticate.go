package kmsg

import "github.com/wireproto/kgo/kbin"

// SASLAuthenticateRequest (key 36) carries one round trip of a SASL
// exchange's raw bytes, used when the prior SASLHandshake negotiated
// version 1. Version 2 is flexible.
type SASLAuthenticateRequest struct {
	SASLAuthBytes []byte
	Flexible      bool
}

func (r *SASLAuthenticateRequest) Descriptor() Descriptor {
	version := int16(1)
	if r.Flexible {
		version = 2
	}
	return Descriptor{
		ApiKey:                     36,
		ApiVersion:                 version,
		RequestHeaderTaggedFields:  r.Flexible,
		ResponseHeaderTaggedFields: r.Flexible,
	}
}

func (r *SASLAuthenticateRequest) AppendTo(w *kbin.Writer) {
	w.AppendBytes(r.SASLAuthBytes, r.Flexible)
	if r.Flexible {
		w.AppendTaggedFields()
	}
}

func (r *SASLAuthenticateRequest) ResponseKind() Response {
	return &SASLAuthenticateResponse{flexible: r.Flexible}
}

// MaxVersion is 2, the highest SASLAuthenticate version this client encodes.
func (r *SASLAuthenticateRequest) MaxVersion() int16 { return 2 }

// SetVersion pins the request to v, choosing the flexible (v2) or classic
// (v1) wire form depending on whether v crosses the KIP-482 boundary.
func (r *SASLAuthenticateRequest) SetVersion(v int16) {
	r.Flexible = v >= 2
}

// SASLAuthenticateResponse carries the broker's half of one exchange
// round trip: an error code/message pair, the raw reply bytes for the
// mechanism's state machine, and (once authenticated) a session lifetime.
type SASLAuthenticateResponse struct {
	ErrorCode              int16
	ErrorMessage           *string
	SASLAuthBytes          []byte
	SessionLifetimeMillis  int64

	flexible bool
}

func (r *SASLAuthenticateResponse) ReadFrom(rd *kbin.Reader) error {
	r.ErrorCode = rd.Int16()
	msg, ok := rd.NullableString(r.flexible)
	if ok {
		r.ErrorMessage = &msg
	}
	r.SASLAuthBytes = rd.Bytes(r.flexible)
	r.SessionLifetimeMillis = rd.Int64()
	if r.flexible {
		SkipTags(rd)
	}
	return rd.Err()
}
