// Package plain implements the SASL PLAIN mechanism.
package plain

import (
	"context"
	"errors"

	"github.com/wireproto/kgo/sasl"
)

// Auth carries PLAIN credentials for a single connection attempt. Zid is
// the authorization identity; leave it empty unless the broker requires a
// distinct authzid from the authenticating user.
type Auth struct {
	Zid  string
	User string
	Pass string
}

// AsMechanism returns a, ready to use as a static sasl.Mechanism.
func (a Auth) AsMechanism() sasl.Mechanism {
	return mechanism{auth: func(context.Context) (Auth, error) { return a, nil }}
}

// AuthFunc produces credentials at the moment a connection authenticates,
// allowing rotated or vault-backed credentials.
type AuthFunc func(context.Context) (Auth, error)

// AsMechanism returns f, ready to use as a sasl.Mechanism.
func (f AuthFunc) AsMechanism() sasl.Mechanism {
	return mechanism{auth: f}
}

type mechanism struct {
	auth AuthFunc
}

func (mechanism) Name() string { return "PLAIN" }

func (m mechanism) Authenticate(ctx context.Context, _ string) (sasl.Session, []byte, error) {
	a, err := m.auth(ctx)
	if err != nil {
		return nil, nil, err
	}
	if a.User == "" {
		return nil, nil, errors.New("sasl/plain: empty username")
	}

	msg := make([]byte, 0, len(a.Zid)+len(a.User)+len(a.Pass)+2)
	msg = append(msg, a.Zid...)
	msg = append(msg, 0)
	msg = append(msg, a.User...)
	msg = append(msg, 0)
	msg = append(msg, a.Pass...)

	return session{}, msg, nil
}

type session struct{}

// Challenge completes PLAIN's single exchange: the broker either accepts
// (empty or missing authBytes) or the caller's Connection already turned a
// non-zero SASLAuthenticate error code into an authentication error before
// this is reached, so any Challenge call at all means success.
func (session) Challenge([]byte) (bool, []byte, error) {
	return true, nil, nil
}
