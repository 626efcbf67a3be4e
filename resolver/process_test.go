package resolver

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semihalev/resolv/wire"
)

func referralPacket(t *testing.T, qname string, glue bool) *wire.Packet {
	t.Helper()
	p := wire.New(wire.MaxPacketLen)
	p.SetResponse(true)
	require.NoError(t, p.Append(wire.SectionQuestion,
		&wire.RR{Name: qname, Type: wire.TypeA, Class: wire.ClassINET}))
	require.NoError(t, p.Append(wire.SectionAuthority,
		&wire.RR{Name: "example.com.", Type: wire.TypeNS, Class: wire.ClassINET, TTL: 3600,
			Data: &wire.NS{Ns: "ns1.example.com."}}))
	require.NoError(t, p.Append(wire.SectionAuthority,
		&wire.RR{Name: "example.com.", Type: wire.TypeNS, Class: wire.ClassINET, TTL: 3600,
			Data: &wire.NS{Ns: "ns2.example.com."}}))
	if glue {
		require.NoError(t, p.Append(wire.SectionAdditional,
			&wire.RR{Name: "ns1.example.com.", Type: wire.TypeA, Class: wire.ClassINET, TTL: 3600,
				Data: &wire.A{Addr: netip.MustParseAddr("192.0.2.53")}}))
	}
	return p
}

func Test_DelegationExtraction(t *testing.T) {
	f := &frame{kind: frameMain, qname: "www.example.com.", qtype: wire.TypeA,
		qclass: wire.ClassINET, zone: "."}
	pkt := referralPacket(t, "www.example.com.", true)

	zone, names := delegation(f, pkt)
	assert.Equal(t, "example.com.", zone)
	assert.Equal(t, []string{"ns1.example.com.", "ns2.example.com."}, names)
}

func Test_DelegationMustDescend(t *testing.T) {
	// a referral back to the current zone makes no progress and is not a
	// delegation
	f := &frame{kind: frameMain, qname: "www.example.com.", qtype: wire.TypeA,
		qclass: wire.ClassINET, zone: "example.com."}
	pkt := referralPacket(t, "www.example.com.", false)

	zone, _ := delegation(f, pkt)
	assert.Equal(t, "", zone)
}

func Test_DelegationMustCoverQuery(t *testing.T) {
	// NS records for a zone the query name is not inside are not followed
	f := &frame{kind: frameMain, qname: "www.other.org.", qtype: wire.TypeA,
		qclass: wire.ClassINET, zone: "."}
	pkt := referralPacket(t, "www.other.org.", false)

	zone, _ := delegation(f, pkt)
	assert.Equal(t, "", zone)
}

func Test_GlueServers(t *testing.T) {
	pkt := referralPacket(t, "www.example.com.", true)

	glue := glueServers(pkt, []string{"ns1.example.com.", "ns2.example.com."})
	require.Len(t, glue, 1)
	assert.Equal(t, "192.0.2.53", glue[0].String())

	assert.Empty(t, glueServers(pkt, []string{"ns2.example.com."}))
}

func Test_Within(t *testing.T) {
	assert.True(t, within("www.example.com.", "example.com."))
	assert.True(t, within("example.com.", "example.com."))
	assert.True(t, within("anything.", "."))
	assert.False(t, within("notexample.com.", "example.com."))
	assert.False(t, within("example.org.", "example.com."))

	assert.True(t, below("example.com.", "."))
	assert.False(t, below("example.com.", "example.com."))
}

func Test_ResponseMatching(t *testing.T) {
	f := &frame{qid: 0x1010, qname: "match.example.com.", qtype: wire.TypeA, qclass: wire.ClassINET}
	r := &Resolver{}

	good, err := wire.BuildQuery(0x1010, "MATCH.example.com.", wire.TypeA, wire.ClassINET, false, 0)
	require.NoError(t, err)
	good.SetResponse(true)
	assert.True(t, r.matches(f, good), "case-insensitive question echo must match")

	wrongID, _ := wire.BuildQuery(0x2020, "match.example.com.", wire.TypeA, wire.ClassINET, false, 0)
	wrongID.SetResponse(true)
	assert.False(t, r.matches(f, wrongID))

	wrongName, _ := wire.BuildQuery(0x1010, "other.example.com.", wire.TypeA, wire.ClassINET, false, 0)
	wrongName.SetResponse(true)
	assert.False(t, r.matches(f, wrongName))

	notResponse, _ := wire.BuildQuery(0x1010, "match.example.com.", wire.TypeA, wire.ClassINET, false, 0)
	assert.False(t, r.matches(f, notResponse), "queries are not responses")
}

func Test_AnswerAddrs(t *testing.T) {
	p := wire.New(wire.MaxPacketLen)
	p.SetResponse(true)
	require.NoError(t, p.Append(wire.SectionQuestion,
		&wire.RR{Name: "ns1.example.com.", Type: wire.TypeA, Class: wire.ClassINET}))
	require.NoError(t, p.Append(wire.SectionAnswer,
		&wire.RR{Name: "ns1.example.com.", Type: wire.TypeCNAME, Class: wire.ClassINET, TTL: 60,
			Data: &wire.CNAME{Target: "host.example.com."}}))
	require.NoError(t, p.Append(wire.SectionAnswer,
		&wire.RR{Name: "host.example.com.", Type: wire.TypeA, Class: wire.ClassINET, TTL: 60,
			Data: &wire.A{Addr: netip.MustParseAddr("192.0.2.1")}}))
	require.NoError(t, p.Append(wire.SectionAnswer,
		&wire.RR{Name: "host.example.com.", Type: wire.TypeAAAA, Class: wire.ClassINET, TTL: 60,
			Data: &wire.AAAA{Addr: netip.MustParseAddr("2001:db8::1")}}))

	addrs := answerAddrs(p)
	require.Len(t, addrs, 2)
	assert.Equal(t, "192.0.2.1", addrs[0].String())
	assert.Equal(t, "2001:db8::1", addrs[1].String())
}
