package kgo

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// dialFnPipe returns a DialFunc whose Connections are backed by net.Pipe,
// with the broker end driven by fakeBroker answering every request (the
// ApiVersions bootstrap included) with an empty ApiVersionsResponse-shaped
// body.
// Good enough for exercising Pool's bookkeeping, which never inspects
// response contents.
func dialFnPipe(t *testing.T) DialFunc {
	t.Helper()
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		client, broker := net.Pipe()
		fakeBroker(t, broker, func(req fakeRequest) []byte {
			return emptyApiVersionsResponse()
		})
		return client, nil
	}
}

func TestPoolGetCachesByAddr(t *testing.T) {
	p := NewPool(WithDialFn(dialFnPipe(t)), WithMaxInflight(5))
	defer p.Close()

	a, err := p.Get(context.Background(), "broker-a:9092")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := p.Get(context.Background(), "broker-a:9092")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != b {
		t.Fatalf("Get returned distinct Connections for the same addr")
	}
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}
}

func TestPoolGetReopensAfterClose(t *testing.T) {
	p := NewPool(WithDialFn(dialFnPipe(t)), WithMaxInflight(5))
	defer p.Close()

	first, err := p.Get(context.Background(), "broker-a:9092")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	first.Close()

	// watchForRemoval runs in its own goroutine; give it a moment to drop
	// the stale entry before the next Get.
	deadline := time.After(time.Second)
	for p.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("pool never dropped the closed entry")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	second, err := p.Get(context.Background(), "broker-a:9092")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if second == first {
		t.Fatalf("Get returned the closed Connection instead of reopening")
	}
}

func TestPoolGetFirstAvailableSkipsFailures(t *testing.T) {
	dialFn := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if addr == "bad:9092" {
			return nil, &Error{Kind: KindNetwork, Err: errors.New("refused")}
		}
		client, broker := net.Pipe()
		fakeBroker(t, broker, func(req fakeRequest) []byte { return emptyApiVersionsResponse() })
		return client, nil
	}
	p := NewPool(WithDialFn(dialFn), WithConnectTimeout(time.Second))
	defer p.Close()

	cxn, err := p.GetFirstAvailable(context.Background(), []string{"bad:9092", "good:9092"})
	if err != nil {
		t.Fatalf("GetFirstAvailable: %v", err)
	}
	if cxn.Addr() != "good:9092" {
		t.Fatalf("addr = %q, want good:9092", cxn.Addr())
	}
}

func TestPoolGetFirstAvailableAggregatesAllFailures(t *testing.T) {
	dialFn := func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, &Error{Kind: KindNetwork, Err: errors.New("refused: " + addr)}
	}
	p := NewPool(WithDialFn(dialFn))
	defer p.Close()

	_, err := p.GetFirstAvailable(context.Background(), []string{"a:9092", "b:9092"})
	kerr, ok := err.(*Error)
	if !ok || kerr.Kind != KindMultipleErrors {
		t.Fatalf("got %v, want *Error{Kind: multiple errors}", err)
	}
}

func TestReaperClosesIdleConnection(t *testing.T) {
	p := NewPool(WithDialFn(dialFnPipe(t)), WithIdleTimeout(10*time.Millisecond))
	defer p.Close()

	cxn, err := p.Get(context.Background(), "broker-a:9092")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	stop := p.StartReaper(5 * time.Millisecond)
	defer stop()

	deadline := time.After(time.Second)
	for cxn.State() != StateClosed {
		select {
		case <-deadline:
			t.Fatal("reaper never closed the idle connection")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}
