// Package dnstest runs an in-process nameserver for exercising the
// resolution engine against real sockets. Responses are scripted per
// question; unscripted questions get NXDOMAIN.
package dnstest

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Response scripts the answer for one question.
type Response struct {
	// Msg is sent when non-nil; question and id are copied from the
	// request first.
	Msg *dns.Msg

	// Rcode sets the reply code of a generated message when Msg is nil.
	Rcode int

	// Raw bytes written straight to the wire, malformed packets allowed.
	Raw []byte

	// Drop swallows the request, simulating a dead server.
	Drop bool

	// Truncate answers UDP requests with an empty TC reply, pushing the
	// client to TCP. TCP requests get the full Msg.
	Truncate bool

	// Delay before answering.
	Delay time.Duration
}

// Server answers scripted questions on one UDP and one TCP socket sharing
// a port.
type Server struct {
	// Addr the server listens on, host:port.
	Addr string

	mu        sync.Mutex
	responses map[string]*Response
	hits      map[string]int
	udp       *dns.Server
	tcp       *dns.Server
}

// NewServer starts a server on addr for the given script. Port "0" picks a
// free port; read it back from Addr.
func NewServer(addr string, responses map[string]*Response) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	tcpListener, err := net.Listen("tcp", udpConn.LocalAddr().String())
	if err != nil {
		_ = udpConn.Close()
		return nil, err
	}

	s := &Server{
		Addr:      udpConn.LocalAddr().String(),
		responses: responses,
		hits:      make(map[string]int),
	}
	s.udp = &dns.Server{PacketConn: udpConn, Handler: dns.HandlerFunc(s.handleUDP)}
	s.tcp = &dns.Server{Listener: tcpListener, Handler: dns.HandlerFunc(s.handleTCP)}

	go func() { _ = s.udp.ActivateAndServe() }()
	go func() { _ = s.tcp.ActivateAndServe() }()

	return s, nil
}

// Close shuts both listeners down.
func (s *Server) Close() {
	if s.udp != nil {
		_ = s.udp.Shutdown()
	}
	if s.tcp != nil {
		_ = s.tcp.Shutdown()
	}
}

// Hits returns how many requests arrived for the given question.
func (s *Server) Hits(name string, qtype uint16) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[Key(name, qtype)]
}

// Script replaces the response for one question at runtime.
func (s *Server) Script(name string, qtype uint16, resp *Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[Key(name, qtype)] = resp
}

func (s *Server) handleUDP(w dns.ResponseWriter, req *dns.Msg) { s.handle(w, req, false) }
func (s *Server) handleTCP(w dns.ResponseWriter, req *dns.Msg) { s.handle(w, req, true) }

func (s *Server) handle(w dns.ResponseWriter, req *dns.Msg, tcp bool) {
	if len(req.Question) == 0 {
		_ = w.Close()
		return
	}
	q := req.Question[0]

	s.mu.Lock()
	key := Key(q.Name, q.Qtype)
	s.hits[key]++
	resp := s.responses[key]
	s.mu.Unlock()

	if resp == nil {
		m := new(dns.Msg)
		m.SetRcode(req, dns.RcodeNameError)
		_ = w.WriteMsg(m)
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	if resp.Drop {
		return
	}
	if resp.Raw != nil {
		_, _ = w.Write(resp.Raw)
		return
	}
	if resp.Truncate && !tcp {
		m := new(dns.Msg)
		m.SetReply(req)
		m.Truncated = true
		_ = w.WriteMsg(m)
		return
	}

	var m *dns.Msg
	if resp.Msg != nil {
		m = resp.Msg.Copy()
		// SetReply clears the sections, keep the scripted records
		ans, ns, extra := m.Answer, m.Ns, m.Extra
		m.SetReply(req)
		m.Answer, m.Ns, m.Extra = ans, ns, extra
	} else {
		m = new(dns.Msg)
		m.SetReply(req)
	}
	if resp.Rcode != 0 {
		m.Rcode = resp.Rcode
	}
	_ = w.WriteMsg(m)
}

// Key maps a question to its script entry.
func Key(name string, qtype uint16) string {
	return strings.ToLower(dns.Fqdn(name)) + "/" + strconv.FormatUint(uint64(qtype), 10)
}
