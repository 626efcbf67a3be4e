package resolver

import (
	"context"
	"time"

	"github.com/semihalev/resolv/wire"
)

// cancellation poll granularity for contexts without a deadline
const waitSlice = 250 * time.Millisecond

// Query resolves name synchronously. It drives the nonblocking engine with
// real read deadlines, honoring ctx between waits. The one-query-at-a-time
// rule still holds; concurrent callers want a pool.
func (r *Resolver) Query(ctx context.Context, name string, qtype, qclass uint16) (*wire.Packet, error) {
	if err := r.Submit(name, qtype, qclass); err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			r.teardown()
			r.state = StateIdle
			return nil, err
		}
		switch r.state {
		case StateDone, StateFailed:
			return r.Fetch()
		}

		f := r.top()
		deadline := time.Now().Add(waitSlice)
		if f.deadline.Before(deadline) {
			deadline = f.deadline
		}
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}

		msg, err := r.receive(f, deadline)
		if err != nil {
			r.retry(f)
			continue
		}
		if msg == nil {
			if time.Now().After(f.deadline) {
				r.retry(f)
			}
			continue
		}
		r.process(f, msg)
	}
}

// LookupAddr resolves the address records of a host, A and AAAA in turn,
// convenience over Query.
func (r *Resolver) LookupAddr(ctx context.Context, host string) ([]*wire.RR, error) {
	var out []*wire.RR
	for _, qtype := range []uint16{wire.TypeA, wire.TypeAAAA} {
		pkt, err := r.Query(ctx, host, qtype, wire.ClassINET)
		if err != nil {
			return nil, err
		}
		rrs, err := pkt.Records(&wire.Filter{Section: wire.SectionAnswer, Type: qtype})
		if err != nil {
			return nil, err
		}
		out = append(out, rrs...)
	}
	return out, nil
}
