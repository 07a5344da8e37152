package kgo

import (
	"fmt"
	"strings"

	"github.com/wireproto/kgo/kmsg"
)

// Kind is the stable connection-level error taxonomy of spec.md §7. It is
// distinct from kerr.Error, which names Kafka *broker response* codes;
// Kind names failures of the connection/codec layer itself.
type Kind int8

const (
	KindNetwork Kind = iota
	KindTimeout
	KindUnexpectedCorrelationID
	KindMalformedFrame
	KindResponseError
	KindAuthentication
	KindUnsupported
	KindUnfinishedWriteBuffer
	KindMultipleErrors
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindUnexpectedCorrelationID:
		return "unexpected-correlation-id"
	case KindMalformedFrame:
		return "malformed-frame"
	case KindResponseError:
		return "response-error"
	case KindAuthentication:
		return "authentication"
	case KindUnsupported:
		return "unsupported"
	case KindUnfinishedWriteBuffer:
		return "unfinished-write-buffer"
	case KindMultipleErrors:
		return "multiple-errors"
	default:
		return "unknown"
	}
}

// ResponseErrorEntry is one broker-reported error found inside an otherwise
// successfully decoded response.
type ResponseErrorEntry struct {
	Code    int16
	Message *string
}

// Error is the error type every exported Connection/Pool operation returns.
// It always carries a Kind; the remaining fields are populated only for the
// kinds that use them.
type Error struct {
	Kind Kind
	Err  error

	// ApiKey/ApiVersion identify the request whose response carried a
	// response-error, or whose frame failed to decode.
	ApiKey     int16
	ApiVersion int16

	// ErrorMap and Response are populated for KindResponseError: a
	// JSON-pointer-path keyed map of every broker error code found in the
	// response body, and the fully decoded response so the caller can
	// still inspect whatever succeeded alongside it (spec.md §7:
	// "response-error is purely informational").
	ErrorMap map[string]ResponseErrorEntry
	Response kmsg.Response

	// Frame carries the raw, undecoded body for KindUnexpectedCorrelationID.
	Frame []byte

	// Causes aggregates every individual failure for KindMultipleErrors
	// (Pool.GetFirstAvailable when every broker failed).
	Causes []error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindResponseError:
		return fmt.Sprintf("kgo: response-error (apiKey=%d apiVersion=%d): %d error(s) in response", e.ApiKey, e.ApiVersion, len(e.ErrorMap))
	case KindUnexpectedCorrelationID:
		return "kgo: unexpected-correlation-id: inbound frame matched no in-flight request"
	case KindMultipleErrors:
		msgs := make([]string, len(e.Causes))
		for i, c := range e.Causes {
			msgs[i] = c.Error()
		}
		return fmt.Sprintf("kgo: multiple-errors: %s", strings.Join(msgs, "; "))
	default:
		if e.Err != nil {
			return fmt.Sprintf("kgo: %s: %s", e.Kind, e.Err)
		}
		return fmt.Sprintf("kgo: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newNetworkErr(cause error) *Error { return &Error{Kind: KindNetwork, Err: cause} }
func newTimeoutErr(cause error) *Error { return &Error{Kind: KindTimeout, Err: cause} }

func newMalformedFrameErr(apiKey, apiVersion int16, cause error) *Error {
	return &Error{Kind: KindMalformedFrame, ApiKey: apiKey, ApiVersion: apiVersion, Err: cause}
}

func newAuthenticationErr(cause error) *Error { return &Error{Kind: KindAuthentication, Err: cause} }

func newUnsupportedErr(cause error) *Error { return &Error{Kind: KindUnsupported, Err: cause} }

func newUnexpectedCorrelationIDErr(frame []byte) *Error {
	return &Error{Kind: KindUnexpectedCorrelationID, Frame: frame}
}

func newResponseErr(apiKey, apiVersion int16, resp kmsg.Response, errMap map[string]ResponseErrorEntry) *Error {
	return &Error{Kind: KindResponseError, ApiKey: apiKey, ApiVersion: apiVersion, Response: resp, ErrorMap: errMap}
}

func newMultipleErrorsErr(causes []error) *Error {
	return &Error{Kind: KindMultipleErrors, Causes: causes}
}

// responseErrors walks the concrete response types this module knows about
// and returns every non-zero broker error code found within, keyed by a
// JSON-pointer-style path rooted at the response body. Returns (nil, false)
// if the response carries no error or is a type this walker does not
// recognize. The switch covers the response types of all seven worked
// descriptors.
func responseErrors(resp kmsg.Response) (map[string]ResponseErrorEntry, bool) {
	m := map[string]ResponseErrorEntry{}
	switch r := resp.(type) {
	case *kmsg.ApiVersionsResponse:
		if r.ErrorCode != 0 {
			m["/errorCode"] = ResponseErrorEntry{Code: r.ErrorCode}
		}
	case *kmsg.SASLHandshakeResponse:
		if r.ErrorCode != 0 {
			m["/errorCode"] = ResponseErrorEntry{Code: r.ErrorCode}
		}
	case *kmsg.SASLAuthenticateResponse:
		if r.ErrorCode != 0 {
			m["/errorCode"] = ResponseErrorEntry{Code: r.ErrorCode, Message: r.ErrorMessage}
		}
	case *kmsg.MetadataResponse:
		for i, t := range r.Topics {
			if t.ErrorCode != 0 {
				m[fmt.Sprintf("/topics/%d", i)] = ResponseErrorEntry{Code: t.ErrorCode}
			}
		}
	case *kmsg.ProduceResponse:
		for ti, t := range r.Topics {
			for pi, p := range t.Partitions {
				if p.ErrorCode != 0 {
					m[fmt.Sprintf("/topics/%d/partitions/%d", ti, pi)] = ResponseErrorEntry{Code: p.ErrorCode}
				}
			}
		}
	case *kmsg.FetchResponse:
		if r.ErrorCode != 0 {
			m["/errorCode"] = ResponseErrorEntry{Code: r.ErrorCode}
		}
		for ti, t := range r.Topics {
			for pi, p := range t.Partitions {
				if p.ErrorCode != 0 {
					m[fmt.Sprintf("/responses/%d/partitions/%d", ti, pi)] = ResponseErrorEntry{Code: p.ErrorCode}
				}
			}
		}
	case *kmsg.DescribeConfigsResponse:
		for i, res := range r.Results {
			if res.ErrorCode != 0 {
				m[fmt.Sprintf("/results/%d", i)] = ResponseErrorEntry{Code: res.ErrorCode, Message: res.ErrorMessage}
			}
		}
	}
	if len(m) == 0 {
		return nil, false
	}
	return m, true
}
