package wire

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RdataStrings(t *testing.T) {
	assert.Equal(t, "192.0.2.1", (&A{Addr: netip.MustParseAddr("192.0.2.1")}).String())
	assert.Equal(t, "2001:db8::1", (&AAAA{Addr: netip.MustParseAddr("2001:db8::1")}).String())
	assert.Equal(t, "ns1.example.com.", (&NS{Ns: "ns1.example.com"}).String())
	assert.Equal(t, "10 mx.example.com.", (&MX{Preference: 10, Mx: "mx.example.com."}).String())
	assert.Equal(t, `"v=spf1 -all"`, (&TXT{Txt: []string{"v=spf1 -all"}}).String())
	assert.Equal(t, "1 2 443 s.example.com.", (&SRV{Priority: 1, Weight: 2, Port: 443, Target: "s.example.com."}).String())
	assert.Equal(t, "\\# 3 010203", (&Unknown{Type: 999, Data: []byte{1, 2, 3}}).String())
}

func Test_RRString(t *testing.T) {
	q := &RR{Section: SectionQuestion, Name: "example.com.", Type: TypeA, Class: ClassINET}
	assert.Equal(t, ";example.com.\tIN\tA", q.String())

	rr := &RR{Section: SectionAnswer, Name: "example.com.", Type: TypeA, Class: ClassINET,
		TTL: 300, Data: &A{Addr: netip.MustParseAddr("192.0.2.1")}}
	assert.Equal(t, "example.com.\t300\tIN\tA\t192.0.2.1", rr.String())
}

func Test_OPTHeaderFolding(t *testing.T) {
	opt := &OPT{UDPSize: 1232, ExtRcode: 1, Version: 0, Do: true}
	class, ttl := opt.foldHeader()
	assert.Equal(t, uint16(1232), class)

	var back OPT
	back.unfoldHeader(class, ttl)
	assert.Equal(t, *opt, back)

	// BADVERS = 16: extension byte 1, header nibble 0
	assert.Equal(t, 16, opt.ExtendedRcode(RcodeSuccess))
}

func Test_OPTRoundTrip(t *testing.T) {
	p := New(DefaultPacketLen)
	require.NoError(t, p.Append(SectionQuestion,
		&RR{Name: "example.com.", Type: TypeA, Class: ClassINET}))
	require.NoError(t, p.Append(SectionAdditional,
		&RR{Name: ".", Type: TypeOPT, Data: &OPT{UDPSize: 4096, Do: true}}))

	rrs, err := p.Records(&Filter{Section: SectionAdditional, Type: TypeOPT})
	require.NoError(t, err)
	require.Len(t, rrs, 1)
	opt := rrs[0].Data.(*OPT)
	assert.Equal(t, uint16(4096), opt.UDPSize)
	assert.True(t, opt.Do)
}

func Test_SOARoundTrip(t *testing.T) {
	p := New(DefaultPacketLen)
	require.NoError(t, p.Append(SectionQuestion,
		&RR{Name: "example.com.", Type: TypeSOA, Class: ClassINET}))
	soa := &SOA{Ns: "ns1.example.com.", Mbox: "hostmaster.example.com.",
		Serial: 2024010101, Refresh: 7200, Retry: 3600, Expire: 1209600, Minttl: 300}
	require.NoError(t, p.Append(SectionAnswer,
		&RR{Name: "example.com.", Type: TypeSOA, Class: ClassINET, TTL: 3600, Data: soa}))

	rrs, err := p.Records(&Filter{Section: SectionAnswer})
	require.NoError(t, err)
	require.Len(t, rrs, 1)
	got := rrs[0].Data.(*SOA)
	assert.Equal(t, soa.Serial, got.Serial)
	assert.Equal(t, "ns1.example.com.", got.Ns)
	assert.Equal(t, uint32(300), got.Minttl)
}

func Test_SSHFPFingerprint(t *testing.T) {
	fp := &SSHFP{Algorithm: 4, Type: 2, FingerPrint: []byte{0xde, 0xad, 0xbe, 0xef}}
	assert.Equal(t, "deadbeef", fp.Fingerprint(false))
	assert.Equal(t, "\xde\xad\xbe\xef", fp.Fingerprint(true))
	assert.Equal(t, "4 2 deadbeef", fp.String())
}

func Test_UnknownTypePreserved(t *testing.T) {
	p := New(DefaultPacketLen)
	require.NoError(t, p.Append(SectionQuestion,
		&RR{Name: "example.com.", Type: 999, Class: ClassINET}))
	require.NoError(t, p.Append(SectionAnswer,
		&RR{Name: "example.com.", Type: 999, Class: ClassINET, TTL: 60,
			Data: &Unknown{Type: 999, Data: []byte{0xaa, 0xbb}}}))

	rrs, err := p.Records(&Filter{Section: SectionAnswer})
	require.NoError(t, err)
	require.Len(t, rrs, 1)
	u := rrs[0].Data.(*Unknown)
	assert.Equal(t, []byte{0xaa, 0xbb}, u.Data)
	assert.Equal(t, uint16(999), rrs[0].Type)
}

func Test_TXTMultipleStrings(t *testing.T) {
	p := New(DefaultPacketLen)
	require.NoError(t, p.Append(SectionQuestion,
		&RR{Name: "example.com.", Type: TypeTXT, Class: ClassINET}))
	require.NoError(t, p.Append(SectionAnswer,
		&RR{Name: "example.com.", Type: TypeTXT, Class: ClassINET, TTL: 60,
			Data: &TXT{Txt: []string{"one", "two"}}}))

	rrs, err := p.Records(&Filter{Section: SectionAnswer})
	require.NoError(t, err)
	txt := rrs[0].Data.(*TXT)
	assert.Equal(t, []string{"one", "two"}, txt.Txt)
	assert.Equal(t, `"one" "two"`, txt.String())
}
