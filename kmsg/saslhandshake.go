package kmsg

import "github.com/wireproto/kgo/kbin"

// SASLHandshakeRequest (key 17) announces the mechanism a client intends
// to authenticate with. SASLHandshake itself is never flexible (it
// predates KIP-482 and Kafka never changed that).
type SASLHandshakeRequest struct {
	Mechanism string
	// Version 1 switches the subsequent exchange to SASLAuthenticate
	// request/response framing instead of raw bytes on the wire; version
	// 0 is raw.
	Version int16
}

func (r *SASLHandshakeRequest) Descriptor() Descriptor {
	return Descriptor{ApiKey: 17, ApiVersion: r.Version}
}

func (r *SASLHandshakeRequest) AppendTo(w *kbin.Writer) {
	w.AppendString(r.Mechanism, false)
}

func (r *SASLHandshakeRequest) ResponseKind() Response { return &SASLHandshakeResponse{} }

// MaxVersion is 1, the highest SASLHandshake version this client encodes.
func (r *SASLHandshakeRequest) MaxVersion() int16 { return 1 }

// SetVersion pins the request to v.
func (r *SASLHandshakeRequest) SetVersion(v int16) { r.Version = v }

// SASLHandshakeResponse carries the broker's verdict and, on rejection,
// the mechanisms it actually supports so the caller can retry.
type SASLHandshakeResponse struct {
	ErrorCode          int16
	SupportedMechanisms []string
}

func (r *SASLHandshakeResponse) ReadFrom(rd *kbin.Reader) error {
	r.ErrorCode = rd.Int16()
	n := rd.ArrayLen(false)
	r.SupportedMechanisms = make([]string, n)
	for i := range r.SupportedMechanisms {
		r.SupportedMechanisms[i] = rd.String(false)
	}
	return rd.Err()
}
