// Package oauth implements the SASL OAUTHBEARER mechanism (RFC 7628 as
// adapted by Kafka's KIP-255).
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wireproto/kgo/sasl"
)

// Auth carries an OAUTHBEARER bearer token for a single connection
// attempt.
type Auth struct {
	Token string
}

// AuthFunc resolves a token at the moment a connection authenticates,
// which is how most OAUTHBEARER deployments work: the token is short-lived
// and fetched from an identity provider per connection.
type AuthFunc func(context.Context) (Auth, error)

// AsMechanism returns a, ready to use as a static sasl.Mechanism.
func (a Auth) AsMechanism() sasl.Mechanism {
	return mechanism{auth: func(context.Context) (Auth, error) { return a, nil }}
}

// AsMechanism returns f, ready to use as a sasl.Mechanism.
func (f AuthFunc) AsMechanism() sasl.Mechanism {
	return mechanism{auth: f}
}

type mechanism struct {
	auth AuthFunc
}

func (mechanism) Name() string { return "OAUTHBEARER" }

func (m mechanism) Authenticate(ctx context.Context, _ string) (sasl.Session, []byte, error) {
	a, err := m.auth(ctx)
	if err != nil {
		return nil, nil, err
	}
	if a.Token == "" {
		return nil, nil, errors.New("sasl/oauth: empty token")
	}

	msg := fmt.Sprintf("n,,\x01auth=Bearer %s\x01\x01", a.Token)

	return session{}, []byte(msg), nil
}

// failureResponse mirrors the JSON envelope a broker sends back when it
// rejects a bearer token (KIP-255's "error-status" SASL failure message).
type failureResponse struct {
	Status string `json:"status"`
}

type session struct{}

// Challenge completes OAUTHBEARER's single exchange. An empty response
// means acceptance; a non-empty response is a JSON failure envelope the
// broker sends instead of a bare error code.
func (session) Challenge(resp []byte) (bool, []byte, error) {
	if len(resp) == 0 {
		return true, nil, nil
	}

	var fail failureResponse
	if err := json.Unmarshal(resp, &fail); err != nil {
		return false, nil, fmt.Errorf("sasl/oauth: unparseable failure response: %w", err)
	}
	if fail.Status == "invalid_token" {
		return false, nil, errors.New("sasl/oauth: broker rejected token: invalid_token")
	}
	return false, nil, fmt.Errorf("sasl/oauth: broker rejected token: %s", fail.Status)
}
