// Package pool bounds resolver concurrency. A pool hands out resolvers up
// to a high watermark, parks surplus callers until one returns, and retains
// up to a low watermark of idle resolvers for reuse. One resolver never
// serves two queries at once.
package pool

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/semihalev/resolv/resolver"
	"github.com/semihalev/resolv/wire"
)

// ErrClosed is returned by Get and Query on a closed pool.
var ErrClosed = errors.New("pool closed")

// Discipline orders both idle reuse and waiter wakeup.
type Discipline int

const (
	// FIFO rotates through idle resolvers and serves waiters in arrival
	// order.
	FIFO Discipline = iota
	// LIFO prefers the most recently returned resolver and the newest
	// waiter; hot caches, unfair under load.
	LIFO
)

// Config sizes a pool. HiWat caps live resolvers, LoWat caps retained idle
// ones. A zero HiWat means one; LoWat above HiWat is clamped down.
type Config struct {
	HiWat      int
	LoWat      int
	Discipline Discipline

	// Rate paces Query submissions when set.
	Rate *rate.Limiter

	// New builds fresh resolvers. Required.
	New func() *resolver.Resolver
}

// Pool is a bounded set of resolvers.
type Pool struct {
	mu      sync.Mutex
	cfg     Config
	idle    []*resolver.Resolver
	live    int
	waiters []chan *resolver.Resolver
	closed  bool
}

// New returns a pool over cfg.
func New(cfg Config) *Pool {
	if cfg.HiWat < 1 {
		cfg.HiWat = 1
	}
	if cfg.LoWat < 0 {
		cfg.LoWat = 0
	}
	if cfg.LoWat > cfg.HiWat {
		cfg.LoWat = cfg.HiWat
	}
	return &Pool{cfg: cfg}
}

// Get returns a resolver, creating one below the high watermark and
// otherwise blocking until a peer returns one or ctx ends.
func (p *Pool) Get(ctx context.Context) (*resolver.Resolver, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if res := p.takeIdle(); res != nil {
		p.mu.Unlock()
		return res, nil
	}
	if p.live < p.cfg.HiWat {
		p.live++
		p.mu.Unlock()
		return p.cfg.New(), nil
	}

	ch := make(chan *resolver.Resolver, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case res := <-ch:
		if res == nil {
			return nil, ErrClosed
		}
		return res, nil
	case <-ctx.Done():
		p.mu.Lock()
		for i, w := range p.waiters {
			if w == ch {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				p.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		p.mu.Unlock()
		// delivery raced the cancellation; hand it straight back
		if res := <-ch; res != nil {
			p.Put(res)
		}
		return nil, ctx.Err()
	}
}

// Put returns a healthy resolver. It wakes a waiter if one is parked,
// is retained idle below the low watermark, and is closed otherwise.
func (p *Pool) Put(res *resolver.Resolver) {
	p.mu.Lock()
	if p.closed {
		p.live--
		p.mu.Unlock()
		res.Close()
		return
	}
	if ch := p.takeWaiter(); ch != nil {
		p.mu.Unlock()
		ch <- res
		return
	}
	if len(p.idle) < p.cfg.LoWat {
		p.idle = append(p.idle, res)
		p.mu.Unlock()
		return
	}
	p.live--
	p.mu.Unlock()
	res.Close()
}

// Discard drops a broken resolver, minting a replacement for any parked
// waiter so the watermark slot is not lost.
func (p *Pool) Discard(res *resolver.Resolver) {
	res.Close()
	p.mu.Lock()
	if !p.closed {
		if ch := p.takeWaiter(); ch != nil {
			p.mu.Unlock()
			ch <- p.cfg.New()
			return
		}
	}
	p.live--
	p.mu.Unlock()
}

// Query borrows a resolver for one synchronous lookup, pacing through the
// configured limiter first.
func (p *Pool) Query(ctx context.Context, name string, qtype, qclass uint16) (*wire.Packet, error) {
	if p.cfg.Rate != nil {
		if err := p.cfg.Rate.Wait(ctx); err != nil {
			return nil, err
		}
	}
	res, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	pkt, err := res.Query(ctx, name, qtype, qclass)
	if err != nil {
		p.Discard(res)
		return nil, err
	}
	p.Put(res)
	return pkt, nil
}

// Live returns the number of resolvers currently accounted against the
// high watermark.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

// Idle returns the number of retained idle resolvers.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close shuts the pool, closing idle resolvers and failing parked waiters.
// Resolvers still out are closed as they come back. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	waiters := p.waiters
	p.idle = nil
	p.waiters = nil
	p.live -= len(idle)
	p.mu.Unlock()

	for _, res := range idle {
		res.Close()
	}
	for _, ch := range waiters {
		ch <- nil
	}
}

// takeIdle pops an idle resolver per the discipline. Lock held.
func (p *Pool) takeIdle() *resolver.Resolver {
	if len(p.idle) == 0 {
		return nil
	}
	var res *resolver.Resolver
	if p.cfg.Discipline == LIFO {
		res = p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
	} else {
		res = p.idle[0]
		p.idle = p.idle[1:]
	}
	return res
}

// takeWaiter pops a parked waiter per the discipline. Lock held.
func (p *Pool) takeWaiter() chan *resolver.Resolver {
	if len(p.waiters) == 0 {
		return nil
	}
	var ch chan *resolver.Resolver
	if p.cfg.Discipline == LIFO {
		ch = p.waiters[len(p.waiters)-1]
		p.waiters = p.waiters[:len(p.waiters)-1]
	} else {
		ch = p.waiters[0]
		p.waiters = p.waiters[1:]
	}
	return ch
}
