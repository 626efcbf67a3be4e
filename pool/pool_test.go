package pool

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semihalev/resolv/config"
	"github.com/semihalev/resolv/dnstest"
	"github.com/semihalev/resolv/hints"
	"github.com/semihalev/resolv/hosts"
	"github.com/semihalev/resolv/resolver"
	"github.com/semihalev/resolv/wire"
)

func testPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	if cfg.New == nil {
		rcfg := config.Default()
		rcfg.Lookup = []string{config.LookupBind}
		rcfg.AddNameserver(netip.MustParseAddrPort("127.0.0.1:1"))
		cfg.New = func() *resolver.Resolver {
			return resolver.New(rcfg, hosts.New(), hints.Local(rcfg))
		}
	}
	p := New(cfg)
	t.Cleanup(p.Close)
	return p
}

func Test_HighWatermarkBlocks(t *testing.T) {
	p := testPool(t, Config{HiWat: 2, LoWat: 2})

	r1, err := p.Get(context.Background())
	require.NoError(t, err)
	r2, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, p.Live())

	// the third acquisition parks until a peer returns
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = p.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *resolver.Resolver, 1)
	go func() {
		r, err := p.Get(context.Background())
		require.NoError(t, err)
		got <- r
	}()

	time.Sleep(20 * time.Millisecond)
	p.Put(r1)

	select {
	case r := <-got:
		assert.Same(t, r1, r)
		p.Put(r)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by Put")
	}
	p.Put(r2)
}

func Test_LowWatermarkRetention(t *testing.T) {
	p := testPool(t, Config{HiWat: 3, LoWat: 1})

	r1, _ := p.Get(context.Background())
	r2, _ := p.Get(context.Background())
	r3, _ := p.Get(context.Background())
	assert.Equal(t, 3, p.Live())

	p.Put(r1)
	p.Put(r2)
	p.Put(r3)

	// only one idle resolver is retained, the others are closed
	assert.Equal(t, 1, p.Idle())
	assert.Equal(t, 1, p.Live())
}

func Test_IdleReuse(t *testing.T) {
	p := testPool(t, Config{HiWat: 2, LoWat: 2})

	r1, _ := p.Get(context.Background())
	p.Put(r1)

	again, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, r1, again)
	p.Put(again)
}

func Test_LIFOPrefersHot(t *testing.T) {
	p := testPool(t, Config{HiWat: 2, LoWat: 2, Discipline: LIFO})

	r1, _ := p.Get(context.Background())
	r2, _ := p.Get(context.Background())
	p.Put(r1)
	p.Put(r2)

	// the most recently returned comes back first
	got, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, r2, got)
	p.Put(got)
}

func Test_Discard(t *testing.T) {
	p := testPool(t, Config{HiWat: 1})

	r1, _ := p.Get(context.Background())

	got := make(chan *resolver.Resolver, 1)
	go func() {
		r, err := p.Get(context.Background())
		require.NoError(t, err)
		got <- r
	}()
	time.Sleep(20 * time.Millisecond)

	// discarding mints a replacement for the parked waiter
	p.Discard(r1)
	select {
	case r := <-got:
		assert.NotSame(t, r1, r)
		p.Put(r)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken by Discard")
	}
}

func Test_CloseFailsWaiters(t *testing.T) {
	p := testPool(t, Config{HiWat: 1})

	r1, _ := p.Get(context.Background())

	errs := make(chan error, 1)
	go func() {
		_, err := p.Get(context.Background())
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)

	p.Close()
	assert.ErrorIs(t, <-errs, ErrClosed)

	_, err := p.Get(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	// returning after close just closes the resolver
	p.Put(r1)
}

func Test_PoolQuery(t *testing.T) {
	srv, err := dnstest.NewServer("127.0.0.1:0", map[string]*dnstest.Response{
		dnstest.Key("pooled.example.test.", dns.TypeA): {
			Msg: func() *dns.Msg {
				m := new(dns.Msg)
				m.Answer = append(m.Answer, &dns.A{
					Hdr: dns.RR_Header{Name: "pooled.example.test.", Rrtype: dns.TypeA,
						Class: dns.ClassINET, Ttl: 60},
					A: []byte{192, 0, 2, 80},
				})
				return m
			}(),
		},
	})
	require.NoError(t, err)
	defer srv.Close()

	rcfg := config.Default()
	rcfg.Lookup = []string{config.LookupBind}
	ap, err := config.ParseNameserver(srv.Addr)
	require.NoError(t, err)
	rcfg.AddNameserver(ap)
	rcfg.Options.Timeout = config.Duration{Duration: time.Second}

	p := testPool(t, Config{HiWat: 4, LoWat: 2, New: func() *resolver.Resolver {
		return resolver.New(rcfg, hosts.New(), hints.Local(rcfg))
	}})

	pkt, err := p.Query(context.Background(), "pooled.example.test.", wire.TypeA, wire.ClassINET)
	require.NoError(t, err)
	rrs, err := pkt.Records(&wire.Filter{Section: wire.SectionAnswer, Type: wire.TypeA})
	require.NoError(t, err)
	require.Len(t, rrs, 1)

	// the borrowed resolver was returned idle
	assert.Equal(t, 1, p.Idle())
}
