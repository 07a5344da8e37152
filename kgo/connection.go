package kgo

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wireproto/kgo/kbin"
	"github.com/wireproto/kgo/kmsg"
)

// State is the lifecycle stage of a Connection, per spec.md §3.
type State int32

const (
	StateNone State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Completion is invoked exactly once per request, carrying either the
// decoded response or a terminal *Error. For a noResponse (acks=0-style)
// request it fires synchronously once the bytes are handed to the writer,
// per spec.md §4.D.
type Completion func(resp kmsg.Response, err error)

// inflightRequest is the Request record of spec.md §3, minus buildPayload
// (already applied by the time this is created — see Send) and diagnostic
// context (carried instead as plain fields for this Go port).
type inflightRequest struct {
	descriptor kmsg.Descriptor
	response   kmsg.Response
	completion Completion
	enqueuedAt time.Time
}

// outboundFrame is one already-encoded frame waiting to reach the writer
// goroutine, either immediately or via the pending-after-drain queue.
type outboundFrame struct {
	correlationID int32
	bytes         []byte
	noResponse    bool
	completion    Completion
}

type sendMsg struct {
	corrID     int32
	descriptor kmsg.Descriptor
	response   kmsg.Response
	frame      []byte
	completion Completion
	resultc    chan sendResult
}

type sendResult struct {
	accepted bool
	err      *Error
}

type writeResult struct {
	correlationID int32
	n             int
	err           error
	timeToWrite   time.Duration
}

type inboundFrame struct {
	body []byte
	err  error
}

// Connection owns one socket to one Kafka broker: framing, correlation,
// in-flight bookkeeping, write back-pressure, and failure propagation
// (spec.md §4.E). All in-flight-table, pending-queue, and framing-state
// mutation happens on a single owning goroutine (loop); a second goroutine
// owns the blocking net.Conn.Read loop, and a third owns net.Conn.Write, so
// a slow reader on the far end of the socket (a real "would block" write)
// cannot stall correlation bookkeeping. This is the idiomatic-Go
// transliteration of the single-threaded cooperative actor spec.md §5
// calls for, grounded on rkruze-franz-go's brokerCxn/handleReqs/handleResps
// split and daisyzhou-kafka's simpler per-correlation channel table.
type Connection struct {
	addr string
	cfg  *cfg
	conn net.Conn

	formatter *kmsg.RequestFormatter

	// brokerVersions is the ApiKey -> MaxVersion table parsed from the
	// bootstrap ApiVersionsResponse. It is written once, by bootstrap,
	// before Dial returns the Connection to its caller, and is read-only
	// for the rest of the Connection's life, so it needs no lock despite
	// being read from arbitrary caller goroutines in Send.
	brokerVersions map[int16]int16

	nextCorrID int32 // atomic

	sem chan struct{} // counting semaphore sized cfg.maxInflight

	sendc  chan *sendMsg
	framec chan inboundFrame
	writec chan *outboundFrame
	donec  chan writeResult

	closeOnce sync.Once
	closingc  chan struct{} // closed to ask loop to tear down
	closedc   chan struct{} // closed once loop has fully torn down

	state atomic.Int32

	throttleUntil atomic.Int64 // unix nanos; 0 = not throttled

	lastActivity atomic.Int64 // unix nanos, updated on every write/read

	closeErr atomic.Value // holds error
}

// Dial opens a socket to addr ("host:port"), negotiates API versions, and
// performs SASL authentication if cfg.sasl is set, per spec.md's
// connect(host, port, [tlsConfig]).
func Dial(ctx context.Context, addr string, opts ...Opt) (*Connection, error) {
	c := defaultCfg()
	for _, o := range opts {
		o.apply(c)
	}

	start := time.Now()
	conn, err := dial(ctx, c, addr)
	dialDur := time.Since(start)
	if err != nil {
		c.hooks.each(func(h Hook) {
			if ch, ok := h.(ConnectHook); ok {
				ch.OnConnect(ConnectEvent{Addr: addr, Dur: dialDur, Err: err})
			}
		})
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newTimeoutErr(err)
		}
		return nil, newNetworkErr(err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	cxn := &Connection{
		addr:      addr,
		cfg:       c,
		conn:      conn,
		formatter: kmsg.NewRequestFormatter(clientIDOrEmpty(c.clientID)),
		sem:       make(chan struct{}, maxOr(c.maxInflight, 1)),
		sendc:     make(chan *sendMsg),
		framec:    make(chan inboundFrame),
		writec:    make(chan *outboundFrame),
		donec:     make(chan writeResult),
		closingc:  make(chan struct{}),
		closedc:   make(chan struct{}),
	}
	cxn.state.Store(int32(StateConnected))
	cxn.lastActivity.Store(time.Now().UnixNano())

	go cxn.writeLoop()
	go cxn.readLoop()
	go cxn.loop()

	c.hooks.each(func(h Hook) {
		if ch, ok := h.(ConnectHook); ok {
			ch.OnConnect(ConnectEvent{Addr: addr, Dur: dialDur})
		}
	})

	if err := cxn.bootstrap(ctx); err != nil {
		cxn.Close()
		return nil, err
	}

	return cxn, nil
}

func clientIDOrEmpty(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

func maxOr(n, floor int) int {
	if n < floor {
		return floor
	}
	return n
}

func dial(ctx context.Context, c *cfg, addr string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	dialFn := c.dialFn
	if dialFn == nil {
		d := net.Dialer{}
		dialFn = d.DialContext
	}

	conn, err := dialFn(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if c.tlsConfig != nil {
		tc := tls.Client(conn, c.tlsConfig)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		return tc, nil
	}
	return conn, nil
}

// bootstrap issues the ApiVersions negotiation request, records the
// broker's advertised per-key version ceiling so every later request can
// be pinned to it (negotiateVersion), and, if configured, performs the
// SASLHandshake/SASLAuthenticate exchange, per SPEC_FULL.md §10.
func (c *Connection) bootstrap(ctx context.Context) error {
	resp, err := c.Do(ctx, &kmsg.ApiVersionsRequest{ClientSoftwareName: "kgo", ClientSoftwareVersion: "1"})
	if err != nil {
		return err
	}
	av := resp.(*kmsg.ApiVersionsResponse)
	versions := make(map[int16]int16, len(av.ApiKeys))
	for _, k := range av.ApiKeys {
		versions[k.ApiKey] = k.MaxVersion
	}
	c.brokerVersions = versions

	if c.cfg.sasl == nil {
		return nil
	}
	return c.authenticate(ctx)
}

// negotiateVersion pins req to min(ourMax, brokerMax) for its ApiKey,
// grounded on rkruze-franz-go's brokerCxn.versions/SetVersion negotiation
// (cxn.versions[req.Key()], "always go for highest version"). Requests
// issued before brokerVersions is populated (the bootstrap ApiVersions
// request itself) and requests whose ApiKey the broker didn't advertise
// are left at whatever version they were constructed with.
func (c *Connection) negotiateVersion(req kmsg.Request) {
	if c.brokerVersions == nil {
		return
	}
	vr, ok := req.(kmsg.VersionedRequest)
	if !ok {
		return
	}
	brokerMax, known := c.brokerVersions[vr.Descriptor().ApiKey]
	if !known {
		return
	}
	ourMax := vr.MaxVersion()
	version := ourMax
	if brokerMax < ourMax {
		version = brokerMax
	}
	vr.SetVersion(version)
}

func (c *Connection) authenticate(ctx context.Context) error {
	mech := c.cfg.sasl

	hsResp, err := c.Do(ctx, &kmsg.SASLHandshakeRequest{Mechanism: mech.Name(), Version: 1})
	if err != nil {
		return err
	}
	hs := hsResp.(*kmsg.SASLHandshakeResponse)
	if hs.ErrorCode != 0 {
		return newAuthenticationErr(fmt.Errorf("broker rejected mechanism %q: code %d", mech.Name(), hs.ErrorCode))
	}

	host, _, _ := net.SplitHostPort(c.addr)
	session, clientWrite, err := mech.Authenticate(ctx, host)
	if err != nil {
		return newAuthenticationErr(err)
	}

	for {
		resp, err := c.Do(ctx, &kmsg.SASLAuthenticateRequest{SASLAuthBytes: clientWrite, Flexible: true})
		if err != nil {
			return err
		}
		ar := resp.(*kmsg.SASLAuthenticateResponse)
		if ar.ErrorCode != 0 {
			msg := "sasl authentication failed"
			if ar.ErrorMessage != nil {
				msg = *ar.ErrorMessage
			}
			return newAuthenticationErr(errors.New(msg))
		}
		done, next, err := session.Challenge(ar.SASLAuthBytes)
		if err != nil {
			return newAuthenticationErr(err)
		}
		if done {
			return nil
		}
		clientWrite = next
	}
}

// Send queues req, assigning it a fresh correlation id, and returns whether
// the socket accepted the bytes without queuing on the pending-after-drain
// queue (spec.md §4.E). completion fires exactly once, asynchronously,
// unless req is a noResponse request, in which case it has already fired by
// the time Send returns.
func (c *Connection) Send(ctx context.Context, req kmsg.Request, completion Completion) (bool, error) {
	if State(c.state.Load()) != StateConnected {
		return false, newNetworkErr(errors.New("send on non-connected connection"))
	}

	c.negotiateVersion(req)
	descriptor := req.Descriptor()

	if !descriptor.NoResponse {
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			return false, newNetworkErr(ctx.Err())
		case <-c.closedc:
			return false, c.terminalErr()
		}
	}

	corrID := atomic.AddInt32(&c.nextCorrID, 1)
	w := kbin.NewWriter()
	c.formatter.AppendRequest(w, req, corrID)
	w.PrependLength()

	msg := &sendMsg{
		corrID:     corrID,
		descriptor: descriptor,
		response:   req.ResponseKind(),
		frame:      w.Bytes(),
		completion: completion,
		resultc:    make(chan sendResult, 1),
	}

	select {
	case c.sendc <- msg:
	case <-ctx.Done():
		c.releaseSem(descriptor)
		return false, newNetworkErr(ctx.Err())
	case <-c.closedc:
		c.releaseSem(descriptor)
		return false, c.terminalErr()
	}

	select {
	case res := <-msg.resultc:
		if res.err != nil {
			return false, res.err
		}
		return res.accepted, nil
	case <-c.closedc:
		return false, c.terminalErr()
	}
}

func (c *Connection) releaseSem(d kmsg.Descriptor) {
	if !d.NoResponse {
		<-c.sem
	}
}

// Do is the future-style adaptor over Send, the trivial wrapper spec.md
// §4.D calls for atop the callback primitive.
func (c *Connection) Do(ctx context.Context, req kmsg.Request) (kmsg.Response, error) {
	type result struct {
		resp kmsg.Response
		err  error
	}
	resc := make(chan result, 1)
	_, err := c.Send(ctx, req, func(resp kmsg.Response, err error) {
		resc <- result{resp, err}
	})
	if err != nil {
		return nil, err
	}
	if req.Descriptor().NoResponse {
		select {
		case r := <-resc:
			return r.resp, r.err
		default:
			return nil, nil
		}
	}
	select {
	case r := <-resc:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, newNetworkErr(ctx.Err())
	case <-c.closedc:
		return nil, c.terminalErr()
	}
}

// Close transitions the Connection to closing then closed, failing every
// in-flight and pending-after-drain request with a network error, per
// spec.md §4.E.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		close(c.closingc)
	})
	<-c.closedc
	return nil
}

func (c *Connection) terminalErr() *Error {
	if e, ok := c.closeErr.Load().(*Error); ok && e != nil {
		return e
	}
	return newNetworkErr(errors.New("connection closed"))
}

// loop is the single owning goroutine: it is the only mutator of inflight,
// pending, and mustDrain.
func (c *Connection) loop() {
	inflight := make(map[int32]*inflightRequest)
	var pending []*outboundFrame
	mustDrain := false

	teardown := func(cause *Error) {
		c.state.Store(int32(StateClosed))
		c.closeErr.Store(cause)
		c.conn.Close()
		close(c.writec) // lets an idle writeLoop (blocked on range, not mid-Write) return
		for _, req := range inflight {
			req.completion(nil, cause)
		}
		for _, fr := range pending {
			if fr.completion != nil {
				fr.completion(nil, cause)
			}
		}
		c.cfg.hooks.each(func(h Hook) {
			if dh, ok := h.(DisconnectHook); ok {
				dh.OnDisconnect(DisconnectEvent{Addr: c.addr, Err: cause.Err})
			}
		})
		close(c.closedc)
	}

	tryDeliver := func(fr *outboundFrame) bool {
		select {
		case c.writec <- fr:
			return true
		default:
			return false
		}
	}

	for {
		select {
		case <-c.closingc:
			teardown(newNetworkErr(errors.New("connection closed by caller")))
			return

		case msg := <-c.sendc:
			fr := &outboundFrame{correlationID: msg.corrID, bytes: msg.frame, noResponse: msg.descriptor.NoResponse}
			if !msg.descriptor.NoResponse {
				inflight[msg.corrID] = &inflightRequest{descriptor: msg.descriptor, response: msg.response, completion: msg.completion, enqueuedAt: time.Now()}
			}

			var accepted bool
			if !mustDrain {
				accepted = tryDeliver(fr)
				if !accepted {
					mustDrain = true
				}
			}
			if !accepted {
				pending = append(pending, fr)
			}
			if msg.descriptor.NoResponse {
				msg.completion(nil, nil)
			}
			msg.resultc <- sendResult{accepted: accepted}

		case wr := <-c.donec:
			if wr.err != nil {
				teardown(newNetworkErr(wr.err))
				return
			}
			c.lastActivity.Store(time.Now().UnixNano())
			if len(pending) > 0 {
				next := pending[0]
				select {
				case c.writec <- next:
					pending = pending[1:]
					mustDrain = len(pending) > 0
				default:
					mustDrain = true
				}
			} else {
				mustDrain = false
			}

		case in := <-c.framec:
			if in.err != nil {
				teardown(newNetworkErr(in.err))
				return
			}
			c.lastActivity.Store(time.Now().UnixNano())
			c.handleFrame(in.body, inflight)
		}
	}
}

// handleFrame decodes one inbound body (already stripped of its 4-byte
// length prefix) and dispatches it to the matching in-flight request.
func (c *Connection) handleFrame(body []byte, inflight map[int32]*inflightRequest) {
	r := kbin.NewReader(body)
	corrID := r.Int32()

	req, ok := inflight[corrID]
	if !ok {
		c.cfg.logger.Log(LogLevelWarn, "unexpected correlation id", "correlationId", corrID)
		return // spec.md §4.E: emit, don't tear down the socket
	}
	delete(inflight, corrID)
	defer func() { <-c.sem }()

	kmsg.ReadResponseHeader(r, req.descriptor)

	if err := req.response.ReadFrom(r); err != nil {
		req.completion(nil, newMalformedFrameErr(req.descriptor.ApiKey, req.descriptor.ApiVersion, err))
		return
	}
	if err := r.Complete(); err != nil {
		req.completion(nil, newMalformedFrameErr(req.descriptor.ApiKey, req.descriptor.ApiVersion, err))
		return
	}

	if tm := throttleMillisOf(req.response); tm > 0 {
		c.throttleUntil.Store(time.Now().Add(time.Duration(tm) * time.Millisecond).UnixNano())
		c.cfg.hooks.each(func(h Hook) {
			if th, ok := h.(ThrottleHook); ok {
				th.OnThrottle(ThrottleEvent{Addr: c.addr, ThrottleMillis: tm})
			}
		})
	}

	if errMap, has := responseErrors(req.response); has {
		req.completion(req.response, newResponseErr(req.descriptor.ApiKey, req.descriptor.ApiVersion, req.response, errMap))
		return
	}
	req.completion(req.response, nil)
}

// throttleMillisOf extracts ThrottleMillis from whichever concrete response
// type carries it, per SPEC_FULL.md §10's throttle-tracking supplement.
func throttleMillisOf(resp kmsg.Response) int32 {
	switch r := resp.(type) {
	case *kmsg.ProduceResponse:
		return r.ThrottleMillis
	case *kmsg.FetchResponse:
		return r.ThrottleMillis
	case *kmsg.MetadataResponse:
		return r.ThrottleMillis
	case *kmsg.DescribeConfigsResponse:
		return r.ThrottleMillis
	case *kmsg.ApiVersionsResponse:
		return r.ThrottleMillis
	default:
		return 0
	}
}

// writeLoop owns every blocking net.Conn.Write. Running it on its own
// goroutine, separate from loop, is what makes back-pressure observable:
// a write that blocks here (because the peer stopped reading) leaves loop's
// non-blocking send on writec failing immediately, which is exactly the
// "would block" signal spec.md §4.E's mustDrain models.
func (c *Connection) writeLoop() {
	for fr := range c.writec {
		start := time.Now()
		n, err := c.conn.Write(fr.bytes)
		dur := time.Since(start)
		c.cfg.hooks.each(func(h Hook) {
			if wh, ok := h.(WriteHook); ok {
				wh.OnWrite(WriteEvent{Addr: c.addr, CorrelationID: fr.correlationID, BytesWritten: n, Err: err, TimeToWrite: dur})
			}
		})
		select {
		case c.donec <- writeResult{correlationID: fr.correlationID, n: n, err: err, timeToWrite: dur}:
		case <-c.closedc:
			return
		}
		if err != nil {
			return
		}
	}
}

// readLoop owns every blocking net.Conn.Read. It decodes only the 4-byte
// length prefix itself (guarded by parseReadSize); everything past that is
// handed to loop as an opaque body so correlation-table mutation stays on
// the single owning goroutine.
func (c *Connection) readLoop() {
	var sizeBuf [4]byte
	for {
		if _, err := io.ReadFull(c.conn, sizeBuf[:]); err != nil {
			c.sendFrameErr(err)
			return
		}
		size, err := c.parseReadSize(sizeBuf[:])
		if err != nil {
			c.sendFrameErr(err)
			return
		}
		body := make([]byte, size)
		start := time.Now()
		if _, err := io.ReadFull(c.conn, body); err != nil {
			c.cfg.hooks.each(func(h Hook) {
				if rh, ok := h.(ReadHook); ok {
					rh.OnRead(ReadEvent{Addr: c.addr, Err: err, TimeToRead: time.Since(start)})
				}
			})
			c.sendFrameErr(err)
			return
		}
		dur := time.Since(start)
		c.cfg.hooks.each(func(h Hook) {
			if rh, ok := h.(ReadHook); ok {
				rh.OnRead(ReadEvent{Addr: c.addr, BytesRead: len(body), TimeToRead: dur})
			}
		})
		select {
		case c.framec <- inboundFrame{body: body}:
		case <-c.closedc:
			return
		}
	}
}

func (c *Connection) sendFrameErr(err error) {
	select {
	case c.framec <- inboundFrame{err: err}:
	case <-c.closedc:
	}
}

// parseReadSize validates the 4-byte length prefix of an inbound frame.
// Kafka brokers never send a response so large it would exceed
// maxBrokerReadBytes; in practice the most common way to see one is a
// client accidentally speaking plaintext to a TLS listener (or vice versa),
// where the first bytes read back are a TLS alert record rather than a
// length prefix. Detecting that case by its recognizable shape — record
// type 21 (alert) followed by a 0x03 0x0_ protocol version — turns a
// baffling "frame too large" into an actionable diagnostic. Grounded on
// rkruze-franz-go's brokerCxn.parseReadSize.
func (c *Connection) parseReadSize(sizeBuf []byte) (int32, error) {
	if sizeBuf[0] == 21 && sizeBuf[1] == 3 && sizeBuf[2] < 5 {
		return 0, newMalformedFrameErr(0, 0, errors.New("received a TLS alert record where a Kafka response length was expected; is TLS misconfigured on one side of this connection?"))
	}
	size := int32(binary.BigEndian.Uint32(sizeBuf))
	if size < 0 {
		return 0, newMalformedFrameErr(0, 0, errors.New("negative response length"))
	}
	if size > c.cfg.maxBrokerReadBytes {
		return 0, newMalformedFrameErr(0, 0, fmt.Errorf("response length %d exceeds maxBrokerReadBytes %d", size, c.cfg.maxBrokerReadBytes))
	}
	return size, nil
}

// IdleFor reports how long it has been since this Connection last
// completed a read or write, for use by a Pool's reaper.
func (c *Connection) IdleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

// State reports the Connection's current lifecycle stage.
func (c *Connection) State() State { return State(c.state.Load()) }

// Addr returns the broker address this Connection was dialed against.
func (c *Connection) Addr() string { return c.addr }

// ThrottledUntil reports the deadline the broker last asked this Connection
// to back off until, or the zero Time if not currently throttled.
func (c *Connection) ThrottledUntil() time.Time {
	ns := c.throttleUntil.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
