package resolver

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/netip"
	"os"
	"syscall"
	"time"
)

// edns0PayloadSize is the UDP payload advertised when EDNS0 is enabled.
// 1232 avoids fragmentation on common paths.
const edns0PayloadSize = 1232

func (r *Resolver) dialUDP(server netip.AddrPort) (net.Conn, error) {
	var laddr *net.UDPAddr
	if r.cfg.Interface.IsValid() {
		laddr = &net.UDPAddr{IP: r.cfg.Interface.AsSlice()}
	}
	// Connected socket: the kernel drops datagrams from any other source
	// address, which is half of the response matching policy.
	return net.DialUDP("udp", laddr, net.UDPAddrFromAddrPort(server))
}

func (r *Resolver) dialTCP(server netip.AddrPort, deadline time.Time) (net.Conn, error) {
	d := net.Dialer{Deadline: deadline}
	if r.cfg.Interface.IsValid() {
		d.LocalAddr = &net.TCPAddr{IP: r.cfg.Interface.AsSlice()}
	}
	return d.Dial("tcp", server.String())
}

// send writes the current query of f on its transport. TCP messages carry
// the two-octet length prefix.
func (r *Resolver) send(f *frame) error {
	msg := f.query.Bytes()
	if f.tcp {
		pfx := make([]byte, 2, 2+len(msg))
		binary.BigEndian.PutUint16(pfx, uint16(len(msg)))
		n, err := (&net.Buffers{pfx, msg}).WriteTo(f.conn)
		if err != nil {
			return err
		}
		r.countSent(true, int(n))
		return nil
	}
	n, err := f.conn.Write(msg)
	if err != nil {
		return err
	}
	r.countSent(false, n)
	return nil
}

// receive pulls at most one complete message off the transport, giving up
// at the read deadline. A nil message with nil error means nothing complete
// arrived in time. Partial TCP reads accumulate across calls.
func (r *Resolver) receive(f *frame, deadline time.Time) ([]byte, error) {
	_ = f.conn.SetReadDeadline(deadline)

	if !f.tcp {
		buf := make([]byte, f.readSize)
		n, err := f.conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				return nil, nil
			}
			return nil, err
		}
		r.countRcvd(false, n)
		return buf[:n], nil
	}

	chunk := make([]byte, 4096)
	for {
		if msg := f.tcpMessage(); msg != nil {
			return msg, nil
		}
		n, err := f.conn.Read(chunk)
		if n > 0 {
			r.countRcvd(true, n)
			f.tcpBuf = append(f.tcpBuf, chunk[:n]...)
		}
		if err != nil {
			if isTimeout(err) {
				return f.tcpMessage(), nil
			}
			return nil, err
		}
	}
}

// receiveNow pulls at most one complete message off the transport without
// blocking. A nil message with nil error means nothing is ready yet. Read
// deadlines cannot express this: an already-expired deadline fails the read
// before the socket buffer is consulted, so a queued datagram would never
// surface. The read goes through the raw descriptor instead.
func (r *Resolver) receiveNow(f *frame) ([]byte, error) {
	if !f.tcp {
		buf := make([]byte, f.readSize)
		n, err := rawRead(f.conn, buf)
		if err != nil {
			if wouldBlock(err) {
				return nil, nil
			}
			return nil, err
		}
		r.countRcvd(false, n)
		return buf[:n], nil
	}

	chunk := make([]byte, 4096)
	for {
		if msg := f.tcpMessage(); msg != nil {
			return msg, nil
		}
		n, err := rawRead(f.conn, chunk)
		if n > 0 {
			r.countRcvd(true, n)
			f.tcpBuf = append(f.tcpBuf, chunk[:n]...)
		}
		if err != nil {
			if wouldBlock(err) {
				return nil, nil
			}
			return nil, err
		}
		if n == 0 {
			return nil, io.EOF
		}
	}
}

// rawRead performs exactly one read attempt on the underlying descriptor.
// Go sockets are non-blocking at the OS level, so an empty socket buffer
// comes back as EAGAIN instead of parking the goroutine in the netpoller.
func rawRead(conn net.Conn, buf []byte) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, ErrTransport
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var rerr error
	if cerr := raw.Read(func(fd uintptr) bool {
		n, rerr = syscall.Read(int(fd), buf)
		return true
	}); cerr != nil {
		return 0, cerr
	}
	if n < 0 {
		n = 0
	}
	return n, rerr
}

func wouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK)
}

// tcpMessage returns the first complete length-prefixed message buffered,
// or nil.
func (f *frame) tcpMessage() []byte {
	if len(f.tcpBuf) < 2 {
		return nil
	}
	msgLen := int(binary.BigEndian.Uint16(f.tcpBuf[:2]))
	if len(f.tcpBuf) < 2+msgLen {
		return nil
	}
	msg := f.tcpBuf[2 : 2+msgLen]
	f.tcpBuf = f.tcpBuf[2+msgLen:]
	return msg
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// connFd extracts the descriptor under conn for the external poll
// contract, or -1.
func connFd(conn net.Conn) int {
	fd := -1
	switch c := conn.(type) {
	case *net.UDPConn:
		if raw, err := c.SyscallConn(); err == nil {
			_ = raw.Control(func(u uintptr) { fd = int(u) })
		}
	case *net.TCPConn:
		if raw, err := c.SyscallConn(); err == nil {
			_ = raw.Control(func(u uintptr) { fd = int(u) })
		}
	}
	return fd
}
