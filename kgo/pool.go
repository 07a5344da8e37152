package kgo

import (
	"context"
	"fmt"
	"sync"
)

// Pool indexes Connections by "host:port", opening on demand and removing
// an entry once its Connection closes or errors so a later Get re-opens
// it, per spec.md §4.F.
type Pool struct {
	opts []Opt

	mu      sync.Mutex
	entries map[string]*Connection
}

// NewPool constructs a Pool; opts are applied to every Connection it opens.
func NewPool(opts ...Opt) *Pool {
	return &Pool{opts: opts, entries: make(map[string]*Connection)}
}

// Get returns the cached Connection for addr, or dials a fresh one.
func (p *Pool) Get(ctx context.Context, addr string) (*Connection, error) {
	p.mu.Lock()
	if cxn, ok := p.entries[addr]; ok && cxn.State() == StateConnected {
		p.mu.Unlock()
		return cxn, nil
	}
	p.mu.Unlock()

	cxn, err := Dial(ctx, addr, p.opts...)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.entries[addr] = cxn
	p.mu.Unlock()

	go p.watchForRemoval(addr, cxn)
	return cxn, nil
}

// watchForRemoval drops addr's cache entry once cxn stops being usable, so
// the next Get re-opens it instead of handing back a dead Connection.
func (p *Pool) watchForRemoval(addr string, cxn *Connection) {
	<-cxn.closedc
	p.mu.Lock()
	if p.entries[addr] == cxn {
		delete(p.entries, addr)
	}
	p.mu.Unlock()
}

// GetFirstAvailable tries each of addrs in order, returning the first
// Connection that succeeds. If every address fails, it returns a single
// *Error of KindMultipleErrors aggregating every individual cause.
func (p *Pool) GetFirstAvailable(ctx context.Context, addrs []string) (*Connection, error) {
	var causes []error
	for _, addr := range addrs {
		cxn, err := p.Get(ctx, addr)
		if err == nil {
			return cxn, nil
		}
		causes = append(causes, fmt.Errorf("%s: %w", addr, err))
	}
	return nil, newMultipleErrorsErr(causes)
}

// Close closes every entry concurrently and clears the table.
func (p *Pool) Close() error {
	p.mu.Lock()
	entries := make([]*Connection, 0, len(p.entries))
	for _, cxn := range p.entries {
		entries = append(entries, cxn)
	}
	p.entries = make(map[string]*Connection)
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(entries))
	for _, cxn := range entries {
		cxn := cxn
		go func() {
			defer wg.Done()
			cxn.Close()
		}()
	}
	wg.Wait()
	return nil
}

// Len reports the number of currently cached entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
