package wire

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Rdata is the type-tagged payload of a resource record. The variant set is
// closed, selected by the numeric record type; unrecognized types decode into
// Unknown which retains the raw byte span.
type Rdata interface {
	// Rtype returns the numeric record type of the variant.
	Rtype() uint16

	// String renders the rdata in presentation format.
	String() string

	pack(w *writer) error
	unpack(p *Packet, off, end int) error
}

func newRdata(rtype uint16) Rdata {
	switch rtype {
	case TypeA:
		return new(A)
	case TypeNS:
		return new(NS)
	case TypeCNAME:
		return new(CNAME)
	case TypeSOA:
		return new(SOA)
	case TypePTR:
		return new(PTR)
	case TypeMX:
		return new(MX)
	case TypeTXT:
		return new(TXT)
	case TypeAAAA:
		return new(AAAA)
	case TypeSRV:
		return new(SRV)
	case TypeOPT:
		return new(OPT)
	case TypeSSHFP:
		return new(SSHFP)
	case TypeSPF:
		return new(SPF)
	}
	return &Unknown{Type: rtype}
}

var errRdata = fmt.Errorf("wire: bad rdata: %w", ErrShortMessage)

// A is an IPv4 address record.
type A struct {
	Addr netip.Addr
}

func (*A) Rtype() uint16   { return TypeA }
func (a *A) String() string { return a.Addr.String() }

func (a *A) pack(w *writer) error {
	if !a.Addr.Is4() {
		return ErrName
	}
	b := a.Addr.As4()
	return w.writeBytes(b[:])
}

func (a *A) unpack(p *Packet, off, end int) error {
	if end-off != 4 {
		return errRdata
	}
	a.Addr = netip.AddrFrom4([4]byte(p.buf[off:end]))
	return nil
}

// AAAA is an IPv6 address record.
type AAAA struct {
	Addr netip.Addr
}

func (*AAAA) Rtype() uint16    { return TypeAAAA }
func (a *AAAA) String() string { return a.Addr.String() }

func (a *AAAA) pack(w *writer) error {
	if !a.Addr.Is6() || a.Addr.Is4In6() {
		return ErrName
	}
	b := a.Addr.As16()
	return w.writeBytes(b[:])
}

func (a *AAAA) unpack(p *Packet, off, end int) error {
	if end-off != 16 {
		return errRdata
	}
	a.Addr = netip.AddrFrom16([16]byte(p.buf[off:end]))
	return nil
}

// NS names a delegated nameserver.
type NS struct {
	Ns string
}

func (*NS) Rtype() uint16    { return TypeNS }
func (rd *NS) String() string { return Fqdn(rd.Ns) }

func (rd *NS) pack(w *writer) error {
	return w.writeName(rd.Ns, true)
}

func (rd *NS) unpack(p *Packet, off, end int) error {
	name, _, err := unpackName(p.buf, off)
	rd.Ns = name
	return err
}

// CNAME aliases its owner to the canonical target.
type CNAME struct {
	Target string
}

func (*CNAME) Rtype() uint16    { return TypeCNAME }
func (rd *CNAME) String() string { return Fqdn(rd.Target) }

func (rd *CNAME) pack(w *writer) error {
	return w.writeName(rd.Target, true)
}

func (rd *CNAME) unpack(p *Packet, off, end int) error {
	name, _, err := unpackName(p.buf, off)
	rd.Target = name
	return err
}

// PTR maps a reverse-lookup name back to a hostname.
type PTR struct {
	Ptr string
}

func (*PTR) Rtype() uint16    { return TypePTR }
func (rd *PTR) String() string { return Fqdn(rd.Ptr) }

func (rd *PTR) pack(w *writer) error {
	return w.writeName(rd.Ptr, true)
}

func (rd *PTR) unpack(p *Packet, off, end int) error {
	name, _, err := unpackName(p.buf, off)
	rd.Ptr = name
	return err
}

// SOA marks the start of a zone of authority.
type SOA struct {
	Ns      string
	Mbox    string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minttl  uint32
}

func (*SOA) Rtype() uint16 { return TypeSOA }

func (rd *SOA) String() string {
	return fmt.Sprintf("%s %s %d %d %d %d %d",
		Fqdn(rd.Ns), Fqdn(rd.Mbox), rd.Serial, rd.Refresh, rd.Retry, rd.Expire, rd.Minttl)
}

func (rd *SOA) pack(w *writer) error {
	if err := w.writeName(rd.Ns, true); err != nil {
		return err
	}
	if err := w.writeName(rd.Mbox, true); err != nil {
		return err
	}
	for _, v := range [...]uint32{rd.Serial, rd.Refresh, rd.Retry, rd.Expire, rd.Minttl} {
		if err := w.writeUint32(v); err != nil {
			return err
		}
	}
	return nil
}

func (rd *SOA) unpack(p *Packet, off, end int) error {
	var err error
	if rd.Ns, off, err = unpackName(p.buf, off); err != nil {
		return err
	}
	if rd.Mbox, off, err = unpackName(p.buf, off); err != nil {
		return err
	}
	if off+20 > end || end > len(p.buf) {
		return errRdata
	}
	rd.Serial = binary.BigEndian.Uint32(p.buf[off : off+4])
	rd.Refresh = binary.BigEndian.Uint32(p.buf[off+4 : off+8])
	rd.Retry = binary.BigEndian.Uint32(p.buf[off+8 : off+12])
	rd.Expire = binary.BigEndian.Uint32(p.buf[off+12 : off+16])
	rd.Minttl = binary.BigEndian.Uint32(p.buf[off+16 : off+20])
	return nil
}

// MX names a mail exchanger with its preference.
type MX struct {
	Preference uint16
	Mx         string
}

func (*MX) Rtype() uint16 { return TypeMX }

func (rd *MX) String() string {
	return strconv.Itoa(int(rd.Preference)) + " " + Fqdn(rd.Mx)
}

func (rd *MX) pack(w *writer) error {
	if err := w.writeUint16(rd.Preference); err != nil {
		return err
	}
	return w.writeName(rd.Mx, true)
}

func (rd *MX) unpack(p *Packet, off, end int) error {
	if off+2 > end {
		return errRdata
	}
	rd.Preference = binary.BigEndian.Uint16(p.buf[off : off+2])
	name, _, err := unpackName(p.buf, off+2)
	rd.Mx = name
	return err
}

// TXT carries one or more character strings.
type TXT struct {
	Txt []string
}

func (*TXT) Rtype() uint16    { return TypeTXT }
func (rd *TXT) String() string { return txtString(rd.Txt) }

func (rd *TXT) pack(w *writer) error   { return packTxt(w, rd.Txt) }
func (rd *TXT) unpack(p *Packet, off, end int) error {
	var err error
	rd.Txt, err = unpackTxt(p.buf, off, end)
	return err
}

// SPF is the deprecated sender-policy record, wire-identical to TXT.
type SPF struct {
	Txt []string
}

func (*SPF) Rtype() uint16    { return TypeSPF }
func (rd *SPF) String() string { return txtString(rd.Txt) }

func (rd *SPF) pack(w *writer) error { return packTxt(w, rd.Txt) }
func (rd *SPF) unpack(p *Packet, off, end int) error {
	var err error
	rd.Txt, err = unpackTxt(p.buf, off, end)
	return err
}

func txtString(txt []string) string {
	parts := make([]string, len(txt))
	for i, s := range txt {
		parts[i] = strconv.Quote(s)
	}
	return strings.Join(parts, " ")
}

func packTxt(w *writer, txt []string) error {
	if len(txt) == 0 {
		return w.writeByte(0)
	}
	for _, s := range txt {
		if len(s) > 255 {
			return errRdata
		}
		if err := w.writeByte(byte(len(s))); err != nil {
			return err
		}
		if err := w.writeBytes([]byte(s)); err != nil {
			return err
		}
	}
	return nil
}

func unpackTxt(msg []byte, off, end int) ([]string, error) {
	var txt []string
	for off < end {
		n := int(msg[off])
		off++
		if off+n > end {
			return nil, errRdata
		}
		txt = append(txt, string(msg[off:off+n]))
		off += n
	}
	return txt, nil
}

// SRV locates a service endpoint. The target is written uncompressed as
// required by RFC 2782 interop practice.
type SRV struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   string
}

func (*SRV) Rtype() uint16 { return TypeSRV }

func (rd *SRV) String() string {
	return fmt.Sprintf("%d %d %d %s", rd.Priority, rd.Weight, rd.Port, Fqdn(rd.Target))
}

func (rd *SRV) pack(w *writer) error {
	for _, v := range [...]uint16{rd.Priority, rd.Weight, rd.Port} {
		if err := w.writeUint16(v); err != nil {
			return err
		}
	}
	return w.writeName(rd.Target, false)
}

func (rd *SRV) unpack(p *Packet, off, end int) error {
	if off+6 > end {
		return errRdata
	}
	rd.Priority = binary.BigEndian.Uint16(p.buf[off : off+2])
	rd.Weight = binary.BigEndian.Uint16(p.buf[off+2 : off+4])
	rd.Port = binary.BigEndian.Uint16(p.buf[off+4 : off+6])
	name, _, err := unpackName(p.buf, off+6)
	rd.Target = name
	return err
}

// OPT is the EDNS0 pseudo-record. Its class and TTL header fields are
// overloaded on the wire: the class carries the requestor's maximum UDP
// payload and the TTL folds the extended rcode, version and DO flag. Those
// fields are unfolded here and must be read through these accessors, never
// through the generic RR header.
type OPT struct {
	UDPSize  uint16
	ExtRcode uint8
	Version  uint8
	Do       bool

	// raw EDNS0 options, retained opaque
	Options []byte
}

func (*OPT) Rtype() uint16 { return TypeOPT }

func (rd *OPT) String() string {
	flags := ""
	if rd.Do {
		flags = " do"
	}
	return fmt.Sprintf("version %d; flags%s; udp %d", rd.Version, flags, rd.UDPSize)
}

// ExtendedRcode combines the header rcode with the OPT extension bits.
func (rd *OPT) ExtendedRcode(hdr int) int {
	return int(rd.ExtRcode)<<4 | hdr&0xf
}

func (rd *OPT) foldHeader() (class uint16, ttl uint32) {
	ttl = uint32(rd.ExtRcode)<<24 | uint32(rd.Version)<<16
	if rd.Do {
		ttl |= 1 << 15
	}
	return rd.UDPSize, ttl
}

func (rd *OPT) unfoldHeader(class uint16, ttl uint32) {
	rd.UDPSize = class
	rd.ExtRcode = uint8(ttl >> 24)
	rd.Version = uint8(ttl >> 16)
	rd.Do = ttl&(1<<15) != 0
}

func (rd *OPT) pack(w *writer) error {
	return w.writeBytes(rd.Options)
}

func (rd *OPT) unpack(p *Packet, off, end int) error {
	rd.Options = append([]byte(nil), p.buf[off:end]...)
	return nil
}

// SSHFP publishes an SSH host key fingerprint.
type SSHFP struct {
	Algorithm   uint8
	Type        uint8
	FingerPrint []byte
}

func (*SSHFP) Rtype() uint16 { return TypeSSHFP }

func (rd *SSHFP) String() string {
	return fmt.Sprintf("%d %d %s", rd.Algorithm, rd.Type, rd.Fingerprint(false))
}

// Fingerprint renders the digest, hex-encoded by default or as raw bytes
// when raw is set.
func (rd *SSHFP) Fingerprint(raw bool) string {
	if raw {
		return string(rd.FingerPrint)
	}
	return hex.EncodeToString(rd.FingerPrint)
}

func (rd *SSHFP) pack(w *writer) error {
	if err := w.writeByte(rd.Algorithm); err != nil {
		return err
	}
	if err := w.writeByte(rd.Type); err != nil {
		return err
	}
	return w.writeBytes(rd.FingerPrint)
}

func (rd *SSHFP) unpack(p *Packet, off, end int) error {
	if off+2 > end {
		return errRdata
	}
	rd.Algorithm = p.buf[off]
	rd.Type = p.buf[off+1]
	rd.FingerPrint = append([]byte(nil), p.buf[off+2:end]...)
	return nil
}

// Unknown retains the rdata of an unrecognized record type as an opaque
// byte span.
type Unknown struct {
	Type uint16
	Data []byte
}

func (rd *Unknown) Rtype() uint16 { return rd.Type }

// String renders the opaque rdata in RFC 3597 \# form.
func (rd *Unknown) String() string {
	return fmt.Sprintf("\\# %d %s", len(rd.Data), hex.EncodeToString(rd.Data))
}

func (rd *Unknown) pack(w *writer) error {
	return w.writeBytes(rd.Data)
}

func (rd *Unknown) unpack(p *Packet, off, end int) error {
	rd.Data = append([]byte(nil), p.buf[off:end]...)
	return nil
}
