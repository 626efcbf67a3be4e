// Package resolver drives one DNS query at a time to completion: nameserver
// selection, UDP exchange with TCP fallback on truncation, retry across
// attempts and servers, referral descent in recursive mode and optional glue
// resolution. The engine never blocks and performs no internal threading; it
// is advanced by a caller polling the exposed descriptor/interest/deadline
// triple and calling Check until Fetch yields the answer packet.
package resolver

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"net"
	"net/netip"
	"time"

	"github.com/semihalev/zlog/v2"

	"github.com/semihalev/resolv/config"
	"github.com/semihalev/resolv/hints"
	"github.com/semihalev/resolv/hosts"
	"github.com/semihalev/resolv/wire"
)

// State of the query engine.
type State int

const (
	StateIdle State = iota
	StateQuerySent
	StateAwaiting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQuerySent:
		return "query-sent"
	case StateAwaiting:
		return "awaiting-response"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "idle"
}

// Event is the poll interest exposed to the external scheduler.
type Event int

const (
	EventNone Event = iota
	EventRead
	EventWrite
)

// maximum referral/alias descent per query
const maxDepth = 30

type frameKind int

const (
	frameMain  frameKind = iota
	frameGlue            // resolving a referred nameserver address
	frameSmart           // resolving missing glue for NS/MX/SRV answers
)

// frame is one outstanding exchange. Referral glue and smart lookups push
// nested frames; the top of the stack owns the live transport.
type frame struct {
	kind   frameKind
	qname  string
	qtype  uint16
	qclass uint16

	zone    string
	servers []hints.Server
	offset  int // rotate start into servers
	cursor  int
	attempt int // completed passes over the server list

	maxTries int // attempts, per server

	qid      uint16
	query    *wire.Packet
	conn     net.Conn
	tcp      bool
	deadline time.Time
	readSize int
	tcpBuf   []byte
	depth    int

	// glue frames only: the delegated zone being chased and the
	// remaining nameserver names to try
	glueZone string
	glueMore []string
}

func (f *frame) server() hints.Server {
	return f.servers[(f.offset+f.cursor)%len(f.servers)]
}

func (f *frame) closeConn() {
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
	f.tcpBuf = nil
}

// Resolver resolves one query at a time against the attached configuration,
// hosts overlay and hints database. The shared objects are treated as
// immutable once attached.
type Resolver struct {
	cfg   *config.Config
	hosts *hosts.Table
	hints *hints.DB

	state  State
	qname  string
	qtype  uint16
	qclass uint16
	search *config.SearchIter
	stack  []*frame
	answer *wire.Packet
	qerr   error
	steps  int

	smartTargets []string
	closed       bool
	stats        Stat
}

// New returns a resolver over the given configuration, hosts table and
// hints database. Nil arguments take mode-appropriate defaults: the local
// configuration, an empty hosts table with root hints in recursive mode, or
// the local hosts table and the configured nameservers in stub mode.
func New(cfg *config.Config, ht *hosts.Table, db *hints.DB) *Resolver {
	if cfg == nil {
		cfg = config.Local()
	}
	if ht == nil {
		if cfg.Options.Recurse {
			ht = hosts.New()
		} else {
			ht = hosts.Local()
		}
	}
	if db == nil {
		if cfg.Options.Recurse {
			db = hints.Root()
		} else {
			db = hints.Local(cfg)
		}
	}
	return &Resolver{cfg: cfg, hosts: ht, hints: db}
}

// Config returns the attached configuration.
func (r *Resolver) Config() *config.Config { return r.cfg }

// State returns the current engine state.
func (r *Resolver) State() State { return r.state }

// Stat returns a snapshot of the cumulative counters.
func (r *Resolver) Stat() Stat { return r.stats }

// Submit starts resolving name. It fails with ErrOutstanding, leaving the
// current query untouched, if one is already in flight.
func (r *Resolver) Submit(name string, qtype, qclass uint16) error {
	if r.closed {
		return ErrClosed
	}
	if r.state == StateQuerySent || r.state == StateAwaiting {
		return ErrOutstanding
	}
	if _, err := wire.NameLen(name); err != nil {
		return err
	}

	r.qname, r.qtype, r.qclass = name, qtype, qclass
	r.stack = nil
	r.answer = nil
	r.qerr = nil
	r.steps = 0
	r.smartTargets = nil
	r.stats.Queries++
	metricQueries.Inc()

	if r.cfg.HostsFirst() {
		if pkt, ok := r.hostsAnswer(name, qtype, qclass); ok {
			r.answer = pkt
			r.state = StateDone
			return nil
		}
	}
	if !r.cfg.UsesNetwork() {
		r.answer = r.localNegative(name, qtype, qclass)
		r.state = StateDone
		return nil
	}

	r.search = r.cfg.SearchIter(name)
	candidate, _ := r.search.Next()

	f, err := r.newFrame(frameMain, candidate, qtype, qclass)
	if err != nil {
		r.state = StateIdle
		return err
	}
	r.stack = []*frame{f}
	if !r.sendOrAdvance(f) {
		// already failed; the error surfaces through Fetch
		return nil
	}
	r.state = StateQuerySent
	return nil
}

func (r *Resolver) takeErr(fallback error) error {
	if r.qerr != nil {
		err := r.qerr
		r.qerr = nil
		return err
	}
	return fallback
}

// newFrame selects the candidate servers for qname and prepares an
// exchange.
func (r *Resolver) newFrame(kind frameKind, qname string, qtype, qclass uint16) (*frame, error) {
	zone, servers := r.hints.Select(qname)
	if len(servers) == 0 {
		return nil, ErrNoServers
	}
	f := &frame{
		kind:     kind,
		qname:    qname,
		qtype:    qtype,
		qclass:   qclass,
		zone:     zone,
		servers:  servers,
		maxTries: r.cfg.Options.Attempts,
	}
	if r.cfg.Options.Rotate {
		f.offset = mrand.IntN(len(servers))
	}
	return f, nil
}

// sendQuery opens the transport to the current server and writes a fresh
// query.
func (r *Resolver) sendQuery(f *frame) error {
	f.closeConn()

	f.qid = randUint16()
	var udpsize uint16
	if r.cfg.Options.Edns0 {
		udpsize = edns0PayloadSize
	}
	query, err := wire.BuildQuery(f.qid, f.qname, f.qtype, f.qclass, !r.cfg.Options.Recurse, udpsize)
	if err != nil {
		return err
	}
	f.query = query

	f.readSize = wire.DefaultPacketLen
	if udpsize > 0 {
		f.readSize = int(udpsize)
	}

	f.tcp = r.cfg.Options.TCP == config.TCPOnly
	f.deadline = time.Now().Add(r.cfg.Options.Timeout.Duration)

	server := f.server().Addr
	if f.tcp {
		f.conn, err = r.dialTCP(server, f.deadline)
	} else {
		f.conn, err = r.dialUDP(server)
	}
	if err != nil {
		return err
	}
	if err := r.send(f); err != nil {
		f.closeConn()
		return err
	}

	zlog.Debug("Query sent", "name", f.qname, "type", wire.TypeToString[f.qtype],
		"server", server.String(), "transport", transportLabel(f.tcp))
	return nil
}

// sendOrAdvance sends the query, moving on across servers on transport
// errors. Returns false when every candidate is exhausted; the frame is
// failed in that case.
func (r *Resolver) sendOrAdvance(f *frame) bool {
	for {
		err := r.sendQuery(f)
		if err == nil {
			return true
		}
		zlog.Debug("Send failed", "server", f.server().Addr.String(), "error", err.Error())
		if !f.next() {
			r.failFrame(f, ErrTimeout)
			return false
		}
	}
}

// next moves the server cursor, wrapping into a new attempt pass. Reports
// false when attempts times servers are used up.
func (f *frame) next() bool {
	f.closeConn()
	f.cursor++
	if f.cursor >= len(f.servers) {
		f.cursor = 0
		f.attempt++
	}
	return f.attempt < f.maxTries
}

// Check advances the engine without blocking. It returns ErrWouldBlock
// while the transport has nothing ready and the attempt deadline has not
// passed, and nil once the query is terminal either way; the outcome is
// then collected with Fetch.
func (r *Resolver) Check() error {
	if r.closed {
		return ErrClosed
	}
	switch r.state {
	case StateIdle:
		return ErrNoQuery
	case StateDone, StateFailed:
		return nil
	}
	r.state = StateAwaiting

	f := r.top()
	msg, err := r.receiveNow(f)
	if err != nil {
		// connection refused, reset by peer and friends: this server
		// is no good, move on
		zlog.Debug("Receive failed", "server", f.server().Addr.String(), "error", err.Error())
		r.retry(f)
		return r.pollResult()
	}
	if msg == nil {
		if time.Now().After(f.deadline) {
			r.retry(f)
		}
		return r.pollResult()
	}

	r.process(f, msg)
	return r.pollResult()
}

func (r *Resolver) pollResult() error {
	if r.state == StateDone || r.state == StateFailed {
		return nil
	}
	return ErrWouldBlock
}

func (r *Resolver) top() *frame { return r.stack[len(r.stack)-1] }

// retry moves a frame to its next server/attempt, failing the frame when
// the combination space is exhausted.
func (r *Resolver) retry(f *frame) {
	if !f.next() {
		r.failFrame(f, ErrTimeout)
		return
	}
	r.sendOrAdvance(f)
}

// failFrame terminates one frame. A failed main frame fails the query; a
// failed glue frame sends its parent on to the next server; a failed smart
// frame just skips the missing address.
func (r *Resolver) failFrame(f *frame, err error) {
	f.closeConn()
	switch f.kind {
	case frameMain:
		r.qerr = err
		r.state = StateFailed
		r.teardown()
	case frameGlue:
		r.pop()
		r.glueFallback(f)
	case frameSmart:
		r.pop()
		r.nextSmartTarget()
	}
}

func (r *Resolver) pop() {
	f := r.top()
	f.closeConn()
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *Resolver) teardown() {
	for _, f := range r.stack {
		f.closeConn()
	}
	r.stack = nil
}

// Fetch returns the decoded answer packet once resolution is done. An
// answer with a non-success response code is a successful outcome; the
// caller inspects the rcode. While the query is still in flight Fetch
// returns ErrWouldBlock.
func (r *Resolver) Fetch() (*wire.Packet, error) {
	if r.closed {
		return nil, ErrClosed
	}
	switch r.state {
	case StateIdle:
		return nil, ErrNoQuery
	case StateDone:
		pkt := r.answer
		r.answer = nil
		r.state = StateIdle
		return pkt, nil
	case StateFailed:
		err := r.takeErr(ErrTimeout)
		r.state = StateIdle
		return nil, err
	}
	return nil, ErrWouldBlock
}

// Close releases any transport immediately and marks the resolver defunct.
// Idempotent. A resolver with no outstanding query holds no transport.
func (r *Resolver) Close() {
	r.teardown()
	r.answer = nil
	r.state = StateIdle
	r.closed = true
}

// Fd exposes the active transport descriptor for the external scheduler,
// or -1 when no transport is open.
func (r *Resolver) Fd() int {
	if len(r.stack) == 0 {
		return -1
	}
	if c := r.top().conn; c != nil {
		return connFd(c)
	}
	return -1
}

// Events returns the poll interest of the engine.
func (r *Resolver) Events() Event {
	if r.state == StateQuerySent || r.state == StateAwaiting {
		return EventRead
	}
	return EventNone
}

// Timeout returns the time remaining until the current attempt deadline,
// zero when nothing is pending.
func (r *Resolver) Timeout() time.Duration {
	if r.state != StateQuerySent && r.state != StateAwaiting || len(r.stack) == 0 {
		return 0
	}
	d := time.Until(r.top().deadline)
	if d < 0 {
		d = 0
	}
	return d
}

func randUint16() uint16 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint16(mrand.Uint32())
	}
	return binary.BigEndian.Uint16(b[:])
}

// addrFromRdata pulls the address out of an A or AAAA record.
func addrFromRdata(rr *wire.RR) (netip.Addr, bool) {
	switch data := rr.Data.(type) {
	case *wire.A:
		return data.Addr, true
	case *wire.AAAA:
		return data.Addr, true
	}
	return netip.Addr{}, false
}
