// Package sasl defines the contract a SASL mechanism implements to
// authenticate a Connection, and the session state machine that drives the
// resulting exchange of SASLAuthenticate round trips.
package sasl

import "context"

// Mechanism begins a SASL exchange for a single connection attempt. Name
// must match one of the broker's advertised mechanism strings exactly
// ("PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512", "OAUTHBEARER").
type Mechanism interface {
	Name() string
	Authenticate(ctx context.Context, host string) (Session, []byte, error)
}

// Session drives the remainder of an exchange after the mechanism's first
// client write has been sent. Challenge is called once per broker
// response; it returns true once the exchange is complete. A non-nil
// clientWrite must be sent to the broker before the next Challenge call.
// Once done is true the exchange is over and no clientWrite is sent;
// SCRAM's client-final-message is returned with done false.
type Session interface {
	Challenge(serverResponse []byte) (done bool, clientWrite []byte, err error)
}
