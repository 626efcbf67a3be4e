package wire

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

const (
	// HeaderLen is the fixed DNS message header size.
	HeaderLen = 12

	// MinPacketLen is the smallest capacity New accepts.
	MinPacketLen = HeaderLen

	// DefaultPacketLen fits a classic UDP payload.
	DefaultPacketLen = 512

	// MaxPacketLen bounds TCP and EDNS0 payloads.
	MaxPacketLen = 65535
)

var (
	// ErrCapacity is returned when an appended record does not fit the
	// packet buffer. The packet is left unchanged apart from the TC flag.
	ErrCapacity = errors.New("wire: packet capacity exceeded")

	// ErrSectionOrder is returned when appending to a section that
	// precedes one already written.
	ErrSectionOrder = errors.New("wire: section out of order")

	// ErrShortMessage is returned when decoding a message shorter than
	// its header or declared contents.
	ErrShortMessage = errors.New("wire: short message")
)

// Packet is a DNS message held in wire form. Records are appended in section
// order and decoded on demand; the name compression dictionary is private to
// the packet and rebuilt whenever the contents are replaced.
type Packet struct {
	buf   []byte
	limit int

	// highest section written so far, appends may not go backwards
	top Section

	// overflow on Load or a failed Append
	truncated bool

	// xxhash(canonical suffix) -> buffer offset of that suffix
	dict map[uint64]int
}

// New returns an empty packet with the given fixed capacity. Capacities below
// MinPacketLen are raised to it.
func New(capacity int) *Packet {
	if capacity < MinPacketLen {
		capacity = MinPacketLen
	}
	if capacity > MaxPacketLen {
		capacity = MaxPacketLen
	}
	p := &Packet{
		buf:   make([]byte, HeaderLen, capacity),
		limit: capacity,
		dict:  make(map[uint64]int),
	}
	return p
}

// Load replaces the packet contents wholesale. Source bytes beyond the packet
// capacity are dropped and the packet is flagged truncated. The compression
// dictionary is reset and re-seeded with the question name at offset 12.
func (p *Packet) Load(msg []byte) {
	n := len(msg)
	p.truncated = false
	if n > p.limit {
		n = p.limit
		p.truncated = true
	}
	p.buf = append(p.buf[:0], msg[:n]...)
	p.dict = make(map[uint64]int)
	p.top = 0

	for i, s := 0, SectionQuestion; i < 4; i, s = i+1, s<<1 {
		if p.count(i) > 0 {
			p.top = s
		}
	}

	if len(p.buf) > HeaderLen && p.count(0) > 0 {
		p.dictAdd(HeaderLen)
	}
}

// Bytes returns the wire form of the packet. The slice aliases the packet
// buffer and is valid until the next Append or Load.
func (p *Packet) Bytes() []byte { return p.buf }

// Len returns the current wire length.
func (p *Packet) Len() int { return len(p.buf) }

// Capacity returns the fixed buffer capacity.
func (p *Packet) Capacity() int { return p.limit }

// Truncated reports whether the packet overflowed on Load or Append, or
// carries the TC header bit.
func (p *Packet) Truncated() bool {
	return p.truncated || p.flags()&headerBitTC != 0
}

// Header accessors. All are safe on short buffers and read as zero.

func (p *Packet) u16(off int) uint16 {
	if off+2 > len(p.buf) {
		return 0
	}
	return binary.BigEndian.Uint16(p.buf[off : off+2])
}

func (p *Packet) setU16(off int, v uint16) {
	if off+2 <= len(p.buf) {
		binary.BigEndian.PutUint16(p.buf[off:off+2], v)
	}
}

func (p *Packet) flags() uint16 { return p.u16(2) }

func (p *Packet) setFlag(bit uint16, on bool) {
	f := p.flags()
	if on {
		f |= bit
	} else {
		f &^= bit
	}
	p.setU16(2, f)
}

// ID returns the transaction id.
func (p *Packet) ID() uint16 { return p.u16(0) }

// SetID sets the transaction id.
func (p *Packet) SetID(id uint16) { p.setU16(0, id) }

// Response reports the QR bit.
func (p *Packet) Response() bool { return p.flags()&headerBitQR != 0 }

// SetResponse sets the QR bit.
func (p *Packet) SetResponse(on bool) { p.setFlag(headerBitQR, on) }

// Opcode returns the header opcode.
func (p *Packet) Opcode() int { return int(p.flags() >> 11 & 0xf) }

// SetOpcode sets the header opcode.
func (p *Packet) SetOpcode(op int) {
	p.setU16(2, p.flags()&^(0xf<<11)|uint16(op&0xf)<<11)
}

// Authoritative reports the AA bit.
func (p *Packet) Authoritative() bool { return p.flags()&headerBitAA != 0 }

// SetAuthoritative sets the AA bit.
func (p *Packet) SetAuthoritative(on bool) { p.setFlag(headerBitAA, on) }

// RecursionDesired reports the RD bit.
func (p *Packet) RecursionDesired() bool { return p.flags()&headerBitRD != 0 }

// SetRecursionDesired sets the RD bit.
func (p *Packet) SetRecursionDesired(on bool) { p.setFlag(headerBitRD, on) }

// RecursionAvailable reports the RA bit.
func (p *Packet) RecursionAvailable() bool { return p.flags()&headerBitRA != 0 }

// SetRecursionAvailable sets the RA bit.
func (p *Packet) SetRecursionAvailable(on bool) { p.setFlag(headerBitRA, on) }

// Rcode returns the header response code. OPT extended rcode bits are not
// folded in here, see (*OPT).ExtendedRcode.
func (p *Packet) Rcode() int { return int(p.flags() & 0xf) }

// SetRcode sets the header response code.
func (p *Packet) SetRcode(rc int) {
	p.setU16(2, p.flags()&^0xf|uint16(rc&0xf))
}

// count returns the i'th section count word (0..3).
func (p *Packet) count(i int) int { return int(p.u16(4 + 2*i)) }

func (p *Packet) bumpCount(i int) { p.setU16(4+2*i, uint16(p.count(i)+1)) }

// Count sums the record counts of the sections selected by mask.
func (p *Packet) Count(mask Section) int {
	n := 0
	for i, s := 0, SectionQuestion; i < 4; i, s = i+1, s<<1 {
		if mask&s != 0 {
			n += p.count(i)
		}
	}
	return n
}

func sectionIndex(s Section) int {
	switch s {
	case SectionQuestion:
		return 0
	case SectionAnswer:
		return 1
	case SectionAuthority:
		return 2
	case SectionAdditional:
		return 3
	}
	return -1
}

// Append encodes rr into the given section. On-wire sections must appear in
// question, answer, authority, additional order, so the section may not
// precede one already written. If the record does not fit, ErrCapacity is
// returned, the TC flag is set and the buffer is left byte-for-byte
// unchanged.
func (p *Packet) Append(section Section, rr *RR) error {
	si := sectionIndex(section)
	if si < 0 {
		return ErrSectionOrder
	}
	if p.top != 0 && sectionIndex(p.top) > si {
		return ErrSectionOrder
	}

	w := p.newWriter()
	var err error
	if section == SectionQuestion {
		err = w.writeQuestion(rr)
	} else {
		err = w.writeRR(rr)
	}
	if err != nil {
		w.rollback()
		if errors.Is(err, ErrCapacity) {
			p.setFlag(headerBitTC, true)
			p.truncated = true
		}
		return err
	}

	p.bumpCount(si)
	p.top = section
	rr.Section = section
	return nil
}

// writer appends wire data to the packet buffer with capacity checking and
// rollback. Dictionary entries registered during a failed write are removed
// again so the dictionary never points into discarded bytes.
type writer struct {
	p     *Packet
	start int
	added []uint64
}

func (p *Packet) newWriter() *writer {
	return &writer{p: p, start: len(p.buf)}
}

func (w *writer) rollback() {
	w.p.buf = w.p.buf[:w.start]
	for _, k := range w.added {
		delete(w.p.dict, k)
	}
	w.added = nil
}

func (w *writer) offset() int { return len(w.p.buf) }

func (w *writer) writeBytes(b []byte) error {
	if len(w.p.buf)+len(b) > w.p.limit {
		return ErrCapacity
	}
	w.p.buf = append(w.p.buf, b...)
	return nil
}

func (w *writer) writeByte(b byte) error {
	return w.writeBytes([]byte{b})
}

func (w *writer) writeUint16(v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return w.writeBytes(b[:])
}

func (w *writer) writeUint32(v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return w.writeBytes(b[:])
}

// writeName writes a domain name, compressing against the packet dictionary
// when permitted. The dictionary is searched for the longest previously
// written suffix; on a hit the remaining prefix labels are followed by a back
// pointer, otherwise the full name is written and every suffix below the
// pointer-addressable bound is registered.
func (w *writer) writeName(name string, compress bool) error {
	labels, err := splitLabels(name)
	if err != nil {
		return err
	}

	if compress {
		for i := range labels {
			suffix := canonSuffix(labels, i)
			off, ok := w.p.dictLookup(suffix)
			if !ok {
				continue
			}
			offs := make([]int, i)
			for j, l := range labels[:i] {
				offs[j] = w.offset()
				if err := w.writeLabel(l); err != nil {
					return err
				}
			}
			if err := w.writeUint16(0xc000 | uint16(off)); err != nil {
				return err
			}
			// the prefix labels spell out suffixes of their own (the
			// pointer completes them), so later names can anchor here
			w.register(labels, offs)
			return nil
		}
	}

	offs := make([]int, len(labels))
	for i, l := range labels {
		offs[i] = w.offset()
		if err := w.writeLabel(l); err != nil {
			return err
		}
	}
	if err := w.writeByte(0x00); err != nil {
		return err
	}
	w.register(labels, offs)
	return nil
}

// register enters each written label offset into the compression dictionary
// under the canonical suffix starting there. offs may cover a prefix of
// labels only.
func (w *writer) register(labels []string, offs []int) {
	for i, off := range offs {
		if off >= maxPointerOffset {
			continue
		}
		key := xxhash.Sum64String(canonSuffix(labels, i))
		if _, ok := w.p.dict[key]; !ok {
			w.p.dict[key] = off
			w.added = append(w.added, key)
		}
	}
}

func (w *writer) writeLabel(l string) error {
	if err := w.writeByte(byte(len(l))); err != nil {
		return err
	}
	return w.writeBytes([]byte(l))
}

func canonSuffix(labels []string, i int) string {
	s := ""
	for _, l := range labels[i:] {
		s += l + "."
	}
	return CanonicalName(s)
}

// dictLookup resolves a canonical suffix to a verified buffer offset. The
// name at the stored offset is expanded and compared so a hash collision can
// never emit a pointer to foreign bytes.
func (p *Packet) dictLookup(suffix string) (int, bool) {
	off, ok := p.dict[xxhash.Sum64String(suffix)]
	if !ok || off >= maxPointerOffset {
		return 0, false
	}
	name, _, err := unpackName(p.buf, off)
	if err != nil || CanonicalName(name) != suffix {
		return 0, false
	}
	return off, true
}

// dictAdd registers the uncompressed name at off and all of its suffixes.
// Used to seed the dictionary with the question name after a Load.
func (p *Packet) dictAdd(off int) {
	for off < len(p.buf) && off < maxPointerOffset {
		c := int(p.buf[off])
		if c == 0x00 || c&0xc0 != 0x00 {
			return
		}
		name, _, err := unpackName(p.buf, off)
		if err != nil {
			return
		}
		p.dict[xxhash.Sum64String(CanonicalName(name))] = off
		off += c + 1
	}
}
