package kgo

import "time"

// StartReaper launches a goroutine that periodically closes any pooled
// Connection that has carried no read/write traffic for longer than its
// configured idle timeout. It returns a stop function; calling it once is
// enough to halt the reaper goroutine. A Pool constructed with no
// WithIdleTimeout opt still accepts this call, but connections whose
// cfg.idleTimeout is 0 are never reaped.
//
// Grounded on broker.go's reapConnectionsLoop/reapConnections, adapted from
// a per-broker timer fan-out to a single goroutine walking the Pool's table
// (this module has no separate per-broker type — Pool already keys by
// address).
func (p *Pool) StartReaper(checkEvery time.Duration) (stop func()) {
	stopc := make(chan struct{})
	go func() {
		t := time.NewTicker(checkEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.reapIdle()
			case <-stopc:
				return
			}
		}
	}()
	return func() { close(stopc) }
}

func (p *Pool) reapIdle() {
	p.mu.Lock()
	victims := make([]*Connection, 0)
	for _, cxn := range p.entries {
		if cxn.cfg.idleTimeout > 0 && cxn.IdleFor() > cxn.cfg.idleTimeout {
			victims = append(victims, cxn)
		}
	}
	p.mu.Unlock()

	for _, cxn := range victims {
		cxn.cfg.logger.Log(LogLevelInfo, "reaping idle connection", "addr", cxn.Addr(), "idleFor", cxn.IdleFor())
		cxn.Close()
	}
}
