package kgo

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/wireproto/kgo/sasl"
)

// DialFunc dials a single TCP connection to a broker address. The default
// uses net.Dialer.DialContext with the configured connect timeout.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// cfg holds every knob a Connection or Pool reads at construction time. It
// is built once by applying defaults then every Opt in order, mirroring the
// NyaliaLui-franz-go clientCfg/apply idiom.
type cfg struct {
	connectTimeout     time.Duration
	maxInflight        int
	clientID           *string
	tlsConfig          *tls.Config
	ownerID            string
	dialFn             DialFunc
	logger             Logger
	hooks              hookList
	maxBrokerReadBytes int32
	sasl               sasl.Mechanism
	idleTimeout        time.Duration
}

func defaultCfg() *cfg {
	return &cfg{
		connectTimeout:     5 * time.Second,
		maxInflight:        5,
		logger:             nopLogger{},
		maxBrokerReadBytes: 100 << 20, // 100MiB, matches franz-go's default broker read cap
		idleTimeout:        0,         // 0 disables idle reaping unless WithIdleTimeout is set
	}
}

// Opt configures a Connection or Pool. Constructed only through the With*
// functions below; the interface itself carries no exported methods so
// callers cannot fabricate one.
type Opt interface {
	apply(*cfg)
}

type opt func(*cfg)

func (o opt) apply(c *cfg) { o(c) }

// WithConnectTimeout bounds how long Dial waits for the socket (and, if
// configured, TLS handshake) to become ready before failing with a timeout
// error. Default 5s, per spec.md §6.
func WithConnectTimeout(d time.Duration) Opt {
	return opt(func(c *cfg) { c.connectTimeout = d })
}

// WithMaxInflight caps the number of requests awaiting a response
// concurrently on one Connection. Default 5, per spec.md §6.
func WithMaxInflight(n int) Opt {
	return opt(func(c *cfg) { c.maxInflight = n })
}

// WithClientID sets the nullable string sent as clientId in every request
// header.
func WithClientID(id string) Opt {
	return opt(func(c *cfg) { c.clientID = &id })
}

// WithTLSConfig switches the Connection from plain TCP to TLS using tlsCfg.
// A nil tlsCfg (the default) means plain TCP.
func WithTLSConfig(tlsCfg *tls.Config) Opt {
	return opt(func(c *cfg) { c.tlsConfig = tlsCfg })
}

// WithOwnerID attaches an opaque tag used only for diagnostic grouping (log
// lines, hook events); it has no wire effect.
func WithOwnerID(id string) Opt {
	return opt(func(c *cfg) { c.ownerID = id })
}

// WithDialFn overrides how the underlying socket is dialed. Useful for
// tests that want to hand the Connection one half of a net.Pipe.
func WithDialFn(fn DialFunc) Opt {
	return opt(func(c *cfg) { c.dialFn = fn })
}

// WithLogger installs a Logger. The default is a no-op.
func WithLogger(l Logger) Opt {
	return opt(func(c *cfg) { c.logger = l })
}

// WithHooks appends observers for connect/write/read/throttle/disconnect
// events. May be called more than once; hooks accumulate.
func WithHooks(hooks ...Hook) Opt {
	return opt(func(c *cfg) { c.hooks = append(c.hooks, hooks...) })
}

// WithMaxBrokerReadBytes bounds the length prefix the Connection will
// accept on an inbound frame before treating it as malformed-frame, guarding
// against a misconfigured plaintext-vs-TLS connection reading garbage as an
// enormous length (see parseReadSize).
func WithMaxBrokerReadBytes(n int32) Opt {
	return opt(func(c *cfg) { c.maxBrokerReadBytes = n })
}

// WithSASL installs the mechanism used to authenticate immediately after
// connect (and after the mandatory SASLHandshake exchange). Unset means no
// SASL authentication is performed.
func WithSASL(m sasl.Mechanism) Opt {
	return opt(func(c *cfg) { c.sasl = m })
}

// WithIdleTimeout enables idle-connection reaping: a Pool's reaper (see
// Pool.StartReaper) closes a pooled Connection once it has carried no
// traffic for d. 0 (the default) disables reaping.
func WithIdleTimeout(d time.Duration) Opt {
	return opt(func(c *cfg) { c.idleTimeout = d })
}
