package resolver

import (
	"net/netip"
	"time"

	"github.com/semihalev/zlog/v2"

	"github.com/semihalev/resolv/config"
	"github.com/semihalev/resolv/dnsutil"
	"github.com/semihalev/resolv/hints"
	"github.com/semihalev/resolv/wire"
)

// hard cap on processed responses per query, across all frames
const maxSteps = 64

// process consumes one datagram or TCP message for the top frame.
// Responses that do not match the outstanding transaction id or do not echo
// the question are discarded without advancing anything; a spoofer guessing
// the port still has to guess the id and the question.
func (r *Resolver) process(f *frame, msg []byte) {
	// full capacity so smart mode can still merge records into the answer
	pkt := wire.New(wire.MaxPacketLen)
	pkt.Load(msg)

	if !r.matches(f, pkt) {
		zlog.Debug("Mismatched response discarded", "id", pkt.ID(), "want", f.qid)
		return
	}

	r.steps++
	if r.steps > maxSteps {
		r.failFrame(r.mainFrame(), ErrMaxDepth)
		return
	}

	if pkt.Truncated() && !f.tcp && r.cfg.Options.TCP == config.TCPEnable {
		r.escalateTCP(f)
		return
	}

	switch pkt.Rcode() {
	case wire.RcodeServerFailure, wire.RcodeNotImplemented, wire.RcodeRefused, wire.RcodeFormatError:
		zlog.Debug("Server rejected query", "server", f.server().Addr.String(),
			"rcode", wire.RcodeToString[pkt.Rcode()])
		r.retry(f)
		return
	case wire.RcodeNameError:
		if f.kind == frameMain && r.nextCandidate() {
			return
		}
		r.complete(f, pkt)
		return
	}

	if r.answered(f, pkt) {
		r.complete(f, pkt)
		return
	}
	if target, ok := r.cnameHop(f, pkt); ok {
		r.follow(f, target, pkt)
		return
	}
	if r.cfg.Options.Recurse {
		if r.referral(f, pkt) {
			return
		}
	}
	// NODATA or an answer we cannot improve on
	r.complete(f, pkt)
}

// matches verifies the id and question echo of a response.
func (r *Resolver) matches(f *frame, pkt *wire.Packet) bool {
	if pkt.ID() != f.qid || !pkt.Response() {
		return false
	}
	q, ok := pkt.Question()
	if !ok {
		return false
	}
	return q.Type == f.qtype && q.Class == f.qclass &&
		wire.CanonicalName(q.Name) == wire.CanonicalName(f.qname)
}

// answered reports whether the answer section resolves the frame's qtype,
// directly or at the end of a CNAME chain.
func (r *Resolver) answered(f *frame, pkt *wire.Packet) bool {
	it := pkt.Grep(&wire.Filter{Section: wire.SectionAnswer, Type: f.qtype, Class: f.qclass})
	for it.Next() {
		return true
	}
	if f.qtype == wire.TypeANY {
		return pkt.Count(wire.SectionAnswer) > 0
	}
	return false
}

// cnameHop returns the alias target when the answer section only renames
// the question.
func (r *Resolver) cnameHop(f *frame, pkt *wire.Packet) (string, bool) {
	if f.qtype == wire.TypeCNAME || f.qtype == wire.TypeANY {
		return "", false
	}
	name := wire.CanonicalName(f.qname)
	it := pkt.Grep(&wire.Filter{Section: wire.SectionAnswer, Type: wire.TypeCNAME, Class: f.qclass})
	for it.Next() {
		rr := it.RR()
		if wire.CanonicalName(rr.Name) == name {
			if cname, ok := rr.Data.(*wire.CNAME); ok {
				return cname.Target, true
			}
		}
	}
	return "", false
}

// follow restarts the frame at the alias target. In stub mode the upstream
// recursor chases aliases itself, so a lone CNAME is simply the answer.
func (r *Resolver) follow(f *frame, target string, pkt *wire.Packet) {
	if !r.cfg.Options.Recurse {
		r.complete(f, pkt)
		return
	}
	f.depth++
	if f.depth > maxDepth {
		r.failFrame(f, ErrMaxDepth)
		return
	}
	zlog.Debug("Following alias", "name", f.qname, "target", target)
	f.qname = wire.Fqdn(target)
	zone, servers := r.hints.Select(f.qname)
	if len(servers) == 0 {
		r.failFrame(f, ErrNoServers)
		return
	}
	f.zone, f.servers, f.cursor, f.attempt = zone, servers, 0, 0
	r.sendOrAdvance(f)
}

// referral descends one delegation from the authority section. Glue from
// the additional section feeds both the frame and the hints database; a
// delegation without glue spawns a nested lookup for the nameserver
// address.
func (r *Resolver) referral(f *frame, pkt *wire.Packet) bool {
	zone, nsNames := delegation(f, pkt)
	if zone == "" {
		return false
	}
	f.depth++
	if f.depth > maxDepth {
		r.failFrame(f, ErrMaxDepth)
		return true
	}

	glue := glueServers(pkt, nsNames)
	for i, addr := range glue {
		r.hints.Insert(zone, netip.AddrPortFrom(addr, 53), i)
	}
	zlog.Debug("Referral", "zone", zone, "nameservers", len(nsNames), "glue", len(glue))

	f.closeConn()
	if len(glue) > 0 {
		servers := make([]hints.Server, len(glue))
		for i, addr := range glue {
			servers[i] = hints.Server{Addr: netip.AddrPortFrom(addr, 53), Priority: i}
		}
		f.zone, f.servers, f.cursor, f.attempt = zone, servers, 0, 0
		r.sendOrAdvance(f)
		return true
	}
	r.pushGlue(zone, nsNames[0], nsNames[1:])
	return true
}

// delegation extracts the referred zone and its nameserver names, requiring
// the new zone to sit strictly below the frame's current zone so every
// referral makes progress.
func delegation(f *frame, pkt *wire.Packet) (string, []string) {
	var zone string
	var names []string
	it := pkt.Grep(&wire.Filter{Section: wire.SectionAuthority, Type: wire.TypeNS, Class: wire.ClassINET})
	for it.Next() {
		rr := it.RR()
		owner := wire.CanonicalName(rr.Name)
		if zone == "" {
			if !below(owner, f.zone) || !within(wire.CanonicalName(f.qname), owner) {
				continue
			}
			zone = owner
		}
		if owner != zone {
			continue
		}
		if ns, ok := rr.Data.(*wire.NS); ok {
			names = append(names, wire.CanonicalName(ns.Ns))
		}
	}
	if zone == "" || len(names) == 0 {
		return "", nil
	}
	return zone, names
}

// below reports whether zone is strictly under parent.
func below(zone, parent string) bool {
	if zone == parent {
		return false
	}
	return within(zone, parent)
}

// within reports whether name falls inside zone.
func within(name, zone string) bool {
	if zone == "." {
		return true
	}
	return name == zone || (len(name) > len(zone) && name[len(name)-len(zone)-1] == '.' &&
		name[len(name)-len(zone):] == zone)
}

// glueServers collects additional-section addresses for the given
// nameserver names, preserving nameserver order.
func glueServers(pkt *wire.Packet, nsNames []string) []netip.Addr {
	var out []netip.Addr
	for _, ns := range nsNames {
		it := pkt.Grep(&wire.Filter{Section: wire.SectionAdditional, Name: ns})
		for it.Next() {
			if addr, ok := addrFromRdata(it.RR()); ok {
				out = append(out, addr)
			}
		}
	}
	return out
}

// pushGlue spawns a nested frame resolving a nameserver address; more holds
// the fallback nameserver names tried when the first yields nothing.
func (r *Resolver) pushGlue(zone, nsName string, more []string) {
	sub, err := r.newFrame(frameGlue, wire.Fqdn(nsName), wire.TypeA, wire.ClassINET)
	if err != nil {
		r.retry(r.top())
		return
	}
	sub.glueZone = zone
	sub.glueMore = more
	r.stack = append(r.stack, sub)
	r.sendOrAdvance(sub)
}

// glueDone feeds resolved nameserver addresses back into the parent frame
// and the hints database, then resumes the parent at the new delegation.
func (r *Resolver) glueDone(f *frame, pkt *wire.Packet) {
	addrs := answerAddrs(pkt)
	r.pop()
	if len(addrs) == 0 {
		r.glueFallback(f)
		return
	}
	parent := r.top()
	servers := make([]hints.Server, len(addrs))
	for i, addr := range addrs {
		ap := netip.AddrPortFrom(addr, 53)
		r.hints.Insert(f.glueZone, ap, i)
		servers[i] = hints.Server{Addr: ap, Priority: i}
	}
	parent.zone, parent.servers, parent.cursor, parent.attempt = f.glueZone, servers, 0, 0
	r.sendOrAdvance(parent)
}

// glueFallback tries the next nameserver name of a failed glue lookup, or
// sends the parent on to its next server when none remain.
func (r *Resolver) glueFallback(f *frame) {
	if len(f.glueMore) > 0 {
		r.pushGlue(f.glueZone, f.glueMore[0], f.glueMore[1:])
		return
	}
	r.retry(r.top())
}

// answerAddrs returns the answer-section addresses of a packet. Aliases are
// tolerated: whatever address records the chain ends in are taken as the
// target's.
func answerAddrs(pkt *wire.Packet) []netip.Addr {
	var out []netip.Addr
	it := pkt.Grep(&wire.Filter{Section: wire.SectionAnswer, Class: wire.ClassINET})
	for it.Next() {
		if addr, ok := addrFromRdata(it.RR()); ok {
			out = append(out, addr)
		}
	}
	return out
}

// complete settles a frame with its final packet.
func (r *Resolver) complete(f *frame, pkt *wire.Packet) {
	switch f.kind {
	case frameMain:
		r.mainDone(pkt)
	case frameGlue:
		r.glueDone(f, pkt)
	case frameSmart:
		r.smartDone(f, pkt)
	}
}

// mainDone records the answer. With smart mode on, NS/MX/SRV answers whose
// targets lack additional-section addresses trigger follow-up address
// lookups merged into the answer before it is surfaced.
func (r *Resolver) mainDone(pkt *wire.Packet) {
	r.answer = pkt
	if targets := r.smartMissing(pkt); len(targets) > 0 {
		r.smartTargets = targets
		r.teardown()
		r.nextSmartTarget()
		return
	}
	r.finish()
}

func (r *Resolver) finish() {
	r.teardown()
	r.state = StateDone
	zlog.Debug("Query done", "name", r.qname, "type", wire.TypeToString[r.qtype],
		"rcode", wire.RcodeToString[r.answer.Rcode()])
}

// smartMissing lists NS/MX/SRV targets of the answer that have no address
// record in the packet.
func (r *Resolver) smartMissing(pkt *wire.Packet) []string {
	if !r.cfg.Options.Smart || pkt.Rcode() != wire.RcodeSuccess {
		return nil
	}
	switch r.qtype {
	case wire.TypeNS, wire.TypeMX, wire.TypeSRV:
	default:
		return nil
	}
	var targets []string
	it := pkt.Grep(&wire.Filter{Section: wire.SectionAnswer, Type: r.qtype})
	for it.Next() {
		var target string
		switch data := it.RR().Data.(type) {
		case *wire.NS:
			target = data.Ns
		case *wire.MX:
			target = data.Mx
		case *wire.SRV:
			target = data.Target
		}
		if target == "" || target == "." {
			continue
		}
		target = wire.CanonicalName(target)
		if hasAddress(pkt, target) {
			continue
		}
		targets = append(targets, target)
	}
	return targets
}

func hasAddress(pkt *wire.Packet, name string) bool {
	it := pkt.Grep(&wire.Filter{Name: name})
	for it.Next() {
		if _, ok := addrFromRdata(it.RR()); ok {
			return true
		}
	}
	return false
}

// nextSmartTarget launches the next pending target lookup, finishing the
// query when none remain. A target that cannot be resolved is skipped.
func (r *Resolver) nextSmartTarget() {
	for len(r.smartTargets) > 0 {
		target := r.smartTargets[0]
		r.smartTargets = r.smartTargets[1:]
		if r.pushSmart(target, wire.TypeA) {
			return
		}
	}
	r.finish()
}

// pushSmart spawns an address sub-lookup for one smart-mode target.
// Reports whether the query advanced: either the sub-query is in flight or
// its send failure has already been routed through failFrame. False means
// no frame was created and the caller moves on.
func (r *Resolver) pushSmart(target string, qtype uint16) bool {
	sub, err := r.newFrame(frameSmart, target, qtype, wire.ClassINET)
	if err != nil {
		return false
	}
	r.stack = append(r.stack, sub)
	if r.sendOrAdvance(sub) {
		r.state = StateQuerySent
	}
	return true
}

// smartDone merges resolved target addresses into the additional section
// of the held answer. A full packet just stops absorbing; the answer is
// still good.
func (r *Resolver) smartDone(f *frame, pkt *wire.Packet) {
	r.pop()
	addrs := answerAddrs(pkt)
	if len(addrs) == 0 && f.qtype == wire.TypeA && pkt.Rcode() == wire.RcodeSuccess {
		// no A records; the target may be v6-only, so ask for AAAA
		// before giving up on it
		if r.pushSmart(f.qname, wire.TypeAAAA) {
			return
		}
		r.nextSmartTarget()
		return
	}
	for _, addr := range addrs {
		rr := &wire.RR{Name: f.qname, Type: wire.TypeA, Class: wire.ClassINET, TTL: 0}
		if addr.Is4() {
			rr.Data = &wire.A{Addr: addr}
		} else {
			rr.Type = wire.TypeAAAA
			rr.Data = &wire.AAAA{Addr: addr}
		}
		if err := r.answer.Append(wire.SectionAdditional, rr); err != nil {
			break
		}
	}
	r.nextSmartTarget()
}

// nextCandidate moves the main frame to the next search-list candidate
// after a name error. Reports false when the list is exhausted.
func (r *Resolver) nextCandidate() bool {
	candidate, ok := r.search.Next()
	if !ok {
		return false
	}
	zlog.Debug("Trying next candidate", "name", candidate)
	r.teardown()
	f, err := r.newFrame(frameMain, candidate, r.qtype, r.qclass)
	if err != nil {
		r.qerr = err
		r.state = StateFailed
		return true
	}
	r.stack = []*frame{f}
	r.sendOrAdvance(f)
	return true
}

// escalateTCP retries the same server over TCP after a truncated UDP
// response, reusing the transaction so the response still matches.
func (r *Resolver) escalateTCP(f *frame) {
	zlog.Debug("Truncated response, retrying over TCP", "server", f.server().Addr.String())
	f.closeConn()
	f.tcp = true
	f.deadline = time.Now().Add(r.cfg.Options.Timeout.Duration)
	f.readSize = wire.MaxPacketLen

	conn, err := r.dialTCP(f.server().Addr, f.deadline)
	if err != nil {
		r.retry(f)
		return
	}
	f.conn = conn
	if err := r.send(f); err != nil {
		r.retry(f)
	}
}

func (r *Resolver) mainFrame() *frame { return r.stack[0] }

// hostsAnswer synthesizes a response from the hosts overlay. No socket is
// ever opened for a name the overlay covers.
func (r *Resolver) hostsAnswer(name string, qtype, qclass uint16) (*wire.Packet, bool) {
	if qclass != wire.ClassINET {
		return nil, false
	}
	question := &wire.RR{Section: wire.SectionQuestion, Name: wire.Fqdn(name), Type: qtype, Class: qclass}

	var answers []*wire.RR
	switch qtype {
	case wire.TypeA, wire.TypeAAAA:
		for _, addr := range r.hosts.ForwardAll(name) {
			if addr.Is4() != (qtype == wire.TypeA) {
				continue
			}
			rr := &wire.RR{Name: question.Name, Type: qtype, Class: qclass, TTL: 0}
			if qtype == wire.TypeA {
				rr.Data = &wire.A{Addr: addr}
			} else {
				rr.Data = &wire.AAAA{Addr: addr}
			}
			answers = append(answers, rr)
		}
	case wire.TypePTR:
		addr := dnsutil.ExtractAddressFromReverse(name)
		if !addr.IsValid() {
			return nil, false
		}
		if host, ok := r.hosts.LookupReverse(addr); ok {
			answers = append(answers, &wire.RR{
				Name: question.Name, Type: qtype, Class: qclass, TTL: 0,
				Data: &wire.PTR{Ptr: host},
			})
		}
	default:
		return nil, false
	}
	if len(answers) == 0 {
		return nil, false
	}

	pkt := wire.New(wire.MaxPacketLen)
	pkt.SetID(randUint16())
	pkt.SetResponse(true)
	pkt.SetRecursionAvailable(true)
	if err := pkt.Append(wire.SectionQuestion, question); err != nil {
		return nil, false
	}
	for _, rr := range answers {
		if err := pkt.Append(wire.SectionAnswer, rr); err != nil {
			return nil, false
		}
	}
	zlog.Debug("Answered from hosts", "name", name, "records", len(answers))
	return pkt, true
}

// localNegative builds the NXDOMAIN returned when no lookup source is
// configured to use the network.
func (r *Resolver) localNegative(name string, qtype, qclass uint16) *wire.Packet {
	pkt := wire.New(wire.DefaultPacketLen)
	pkt.SetID(randUint16())
	pkt.SetResponse(true)
	pkt.SetRcode(wire.RcodeNameError)
	question := &wire.RR{Section: wire.SectionQuestion, Name: wire.Fqdn(name), Type: qtype, Class: qclass}
	_ = pkt.Append(wire.SectionQuestion, question)
	return pkt
}
