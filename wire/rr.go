package wire

import (
	"encoding/binary"
	"fmt"
)

// RR is one decoded resource record. Question section records carry no TTL or
// rdata. For OPT pseudo-records the Class and TTL fields hold the raw EDNS0
// overloaded wire values, use the OPT rdata accessors instead of reading them
// directly.
type RR struct {
	Section Section
	Name    string
	Type    uint16
	Class   uint16
	TTL     uint32
	Data    Rdata
}

// String renders the record as a single presentation-format line.
func (rr *RR) String() string {
	if rr.Section == SectionQuestion {
		return fmt.Sprintf(";%s\t%s\t%s", Fqdn(rr.Name), classString(rr.Class), typeString(rr.Type))
	}
	data := ""
	if rr.Data != nil {
		data = rr.Data.String()
	}
	return fmt.Sprintf("%s\t%d\t%s\t%s\t%s",
		Fqdn(rr.Name), rr.TTL, classString(rr.Class), typeString(rr.Type), data)
}

func typeString(t uint16) string {
	if s, ok := TypeToString[t]; ok {
		return s
	}
	return fmt.Sprintf("TYPE%d", t)
}

func classString(c uint16) string {
	if s, ok := ClassToString[c]; ok {
		return s
	}
	return fmt.Sprintf("CLASS%d", c)
}

func (w *writer) writeQuestion(rr *RR) error {
	if err := w.writeName(rr.Name, true); err != nil {
		return err
	}
	if err := w.writeUint16(rr.Type); err != nil {
		return err
	}
	return w.writeUint16(rr.Class)
}

func (w *writer) writeRR(rr *RR) error {
	if err := w.writeName(rr.Name, true); err != nil {
		return err
	}
	if err := w.writeUint16(rr.Type); err != nil {
		return err
	}

	class, ttl := rr.Class, rr.TTL
	if opt, ok := rr.Data.(*OPT); ok && rr.Type == TypeOPT {
		class, ttl = opt.foldHeader()
	}
	if err := w.writeUint16(class); err != nil {
		return err
	}
	if err := w.writeUint32(ttl); err != nil {
		return err
	}

	// rdlength placeholder, patched once the rdata is in place
	lenOff := w.offset()
	if err := w.writeUint16(0); err != nil {
		return err
	}
	if rr.Data != nil {
		if err := rr.Data.pack(w); err != nil {
			return err
		}
	}
	rdlen := w.offset() - lenOff - 2
	if rdlen > 0xffff {
		return ErrCapacity
	}
	binary.BigEndian.PutUint16(w.p.buf[lenOff:lenOff+2], uint16(rdlen))
	return nil
}

func decodeRR(p *Packet, off int, section Section) (*RR, int, error) {
	name, off, err := unpackName(p.buf, off)
	if err != nil {
		return nil, 0, err
	}

	rr := &RR{Section: section, Name: name}

	if section == SectionQuestion {
		if off+4 > len(p.buf) {
			return nil, 0, ErrShortMessage
		}
		rr.Type = binary.BigEndian.Uint16(p.buf[off : off+2])
		rr.Class = binary.BigEndian.Uint16(p.buf[off+2 : off+4])
		return rr, off + 4, nil
	}

	if off+10 > len(p.buf) {
		return nil, 0, ErrShortMessage
	}
	rr.Type = binary.BigEndian.Uint16(p.buf[off : off+2])
	rr.Class = binary.BigEndian.Uint16(p.buf[off+2 : off+4])
	rr.TTL = binary.BigEndian.Uint32(p.buf[off+4 : off+8])
	rdlen := int(binary.BigEndian.Uint16(p.buf[off+8 : off+10]))
	off += 10
	end := off + rdlen
	if end > len(p.buf) {
		return nil, 0, ErrShortMessage
	}

	data := newRdata(rr.Type)
	if err := data.unpack(p, off, end); err != nil {
		return nil, 0, err
	}
	if opt, ok := data.(*OPT); ok {
		opt.unfoldHeader(rr.Class, rr.TTL)
	}
	rr.Data = data
	return rr, end, nil
}

// Filter selects records during iteration. Zero fields match everything;
// Type and Class may also be TypeANY / ClassANY. Name comparison is
// case-insensitive.
type Filter struct {
	Section Section
	Type    uint16
	Class   uint16
	Name    string
}

func (f *Filter) match(rr *RR) bool {
	if f.Section != 0 && f.Section&rr.Section == 0 {
		return false
	}
	if f.Type != 0 && f.Type != TypeANY && f.Type != rr.Type {
		return false
	}
	if f.Class != 0 && f.Class != ClassANY && f.Class != rr.Class {
		return false
	}
	if f.Name != "" && CanonicalName(f.Name) != CanonicalName(rr.Name) {
		return false
	}
	return true
}

// Iterator decodes matching records lazily in wire order. A fresh Grep call
// restarts the scan from the beginning of the packet.
type Iterator struct {
	p         *Packet
	filter    Filter
	err       error
	cur       *RR
	off       int
	sec       int
	remaining int
	counts    [4]int
}

// Grep returns an iterator over the records matching filter. A nil filter
// matches every record in every section.
func (p *Packet) Grep(filter *Filter) *Iterator {
	it := &Iterator{p: p, off: HeaderLen}
	if filter != nil {
		it.filter = *filter
	}
	for i := range it.counts {
		it.counts[i] = p.count(i)
	}
	it.remaining = it.counts[0]
	if len(p.buf) < HeaderLen {
		it.err = ErrShortMessage
	}
	return it
}

// Next advances to the next matching record.
func (it *Iterator) Next() bool {
	for it.err == nil {
		for it.remaining == 0 {
			it.sec++
			if it.sec > 3 {
				return false
			}
			it.remaining = it.counts[it.sec]
		}
		rr, next, err := decodeRR(it.p, it.off, SectionQuestion<<it.sec)
		if err != nil {
			it.err = err
			return false
		}
		it.off = next
		it.remaining--
		if it.filter.match(rr) {
			it.cur = rr
			return true
		}
	}
	return false
}

// RR returns the record found by the last successful Next.
func (it *Iterator) RR() *RR { return it.cur }

// Err returns the first decode error encountered, if any.
func (it *Iterator) Err() error { return it.err }

// Records collects every record matching filter.
func (p *Packet) Records(filter *Filter) ([]*RR, error) {
	var rrs []*RR
	it := p.Grep(filter)
	for it.Next() {
		rrs = append(rrs, it.RR())
	}
	return rrs, it.Err()
}

// Question returns the first question section record.
func (p *Packet) Question() (*RR, bool) {
	it := p.Grep(&Filter{Section: SectionQuestion})
	if it.Next() {
		return it.RR(), true
	}
	return nil, false
}

// BuildQuery constructs a query packet for a single question. A non-zero
// udpsize appends an EDNS0 OPT record advertising that payload size.
func BuildQuery(id uint16, name string, qtype, qclass uint16, rd bool, udpsize uint16) (*Packet, error) {
	capacity := DefaultPacketLen
	if int(udpsize) > capacity {
		capacity = int(udpsize)
	}
	p := New(capacity)
	p.SetID(id)
	p.SetOpcode(OpcodeQuery)
	p.SetRecursionDesired(rd)
	if err := p.Append(SectionQuestion, &RR{Name: name, Type: qtype, Class: qclass}); err != nil {
		return nil, err
	}
	if udpsize > 0 {
		opt := &RR{Name: ".", Type: TypeOPT, Data: &OPT{UDPSize: udpsize}}
		if err := p.Append(SectionAdditional, opt); err != nil {
			return nil, err
		}
	}
	return p, nil
}
