package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Defaults(t *testing.T) {
	c := Default()

	assert.Equal(t, 1, c.Options.Ndots)
	assert.Equal(t, 5*time.Second, c.Options.Timeout.Duration)
	assert.Equal(t, 2, c.Options.Attempts)
	assert.Equal(t, TCPEnable, c.Options.TCP)
	assert.Equal(t, []string{LookupFile, LookupBind}, c.Lookup)
	assert.True(t, c.HostsFirst())
	assert.True(t, c.UsesNetwork())
}

func Test_LoadResolvConf(t *testing.T) {
	conf := `
# comment
nameserver 192.0.2.10
nameserver 192.0.2.11 ; trailing comment
nameserver 2001:db8::53
nameserver 198.51.100.1
domain corp.example.com
search lan.example.com example.com
lookup file bind
interface 192.0.2.99
options ndots:2 timeout:3 attempts:4 rotate edns0 tcp:disable
bogus line ignored
nameserver not-an-address
`
	c := Default()
	require.NoError(t, c.LoadResolvConf(strings.NewReader(conf)))

	// the fourth nameserver is over the cap
	require.Len(t, c.Nameservers, MaxNameservers)
	assert.Equal(t, "192.0.2.10:53", c.Nameservers[0].String())
	assert.Equal(t, "[2001:db8::53]:53", c.Nameservers[2].String())

	// search overrides the earlier domain directive
	assert.Equal(t, []string{"lan.example.com", "example.com"}, c.Search)

	assert.Equal(t, 2, c.Options.Ndots)
	assert.Equal(t, 3*time.Second, c.Options.Timeout.Duration)
	assert.Equal(t, 4, c.Options.Attempts)
	assert.True(t, c.Options.Rotate)
	assert.True(t, c.Options.Edns0)
	assert.Equal(t, TCPDisable, c.Options.TCP)
	assert.Equal(t, "192.0.2.99", c.Interface.String())
}

func Test_ResolvConfDomainResetsSearch(t *testing.T) {
	c := Default()
	require.NoError(t, c.LoadResolvConf(strings.NewReader(
		"search a.example b.example\ndomain only.example\n")))
	assert.Equal(t, []string{"only.example"}, c.Search)
}

func Test_ResolvConfBareTCP(t *testing.T) {
	c := Default()
	require.NoError(t, c.LoadResolvConf(strings.NewReader("options tcp edns0\n")))
	assert.Equal(t, TCPOnly, c.Options.TCP)
}

func Test_LoadNSSwitchConf(t *testing.T) {
	conf := `
passwd: files
hosts: files dns
group: files
`
	c := Default()
	require.NoError(t, c.LoadNSSwitchConf(strings.NewReader(conf)))
	assert.Equal(t, []string{LookupFile, LookupBind}, c.Lookup)

	c2 := Default()
	require.NoError(t, c2.LoadNSSwitchConf(strings.NewReader("hosts: dns files\n")))
	assert.Equal(t, []string{LookupBind, LookupFile}, c2.Lookup)
	assert.False(t, c2.HostsFirst())
}

func Test_LoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.toml")
	data := `
nameservers = ["192.0.2.1:53", "192.0.2.2:53"]
search = ["example.com"]
lookup = ["bind"]

[options]
ndots = 3
timeout = "2s"
attempts = 1
rotate = true
smart = true
tcp = "only"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	c, err := LoadTOML(path)
	require.NoError(t, err)
	assert.Len(t, c.Nameservers, 2)
	assert.Equal(t, 3, c.Options.Ndots)
	assert.Equal(t, 2*time.Second, c.Options.Timeout.Duration)
	assert.True(t, c.Options.Rotate)
	assert.True(t, c.Options.Smart)
	assert.Equal(t, TCPOnly, c.Options.TCP)
	assert.False(t, c.HostsFirst())
}

func Test_LoadTOMLMissing(t *testing.T) {
	_, err := LoadTOML("/nonexistent/resolv.toml")
	assert.Error(t, err)
}

func Test_Merge(t *testing.T) {
	c := Default()
	ndots := 5
	timeout := time.Second
	tcp := TCPDisable
	c.Merge(Overrides{
		Nameservers: []netip.AddrPort{netip.MustParseAddrPort("192.0.2.1:53")},
		Ndots:       &ndots,
		Timeout:     &timeout,
		TCP:         &tcp,
	})

	assert.Len(t, c.Nameservers, 1)
	assert.Equal(t, 5, c.Options.Ndots)
	assert.Equal(t, time.Second, c.Options.Timeout.Duration)
	assert.Equal(t, TCPDisable, c.Options.TCP)
	// untouched fields survive
	assert.Equal(t, 2, c.Options.Attempts)
}

func Test_SearchIterQualified(t *testing.T) {
	c := Default()
	c.Search = []string{"example.com", "lan.example.com"}

	it := c.SearchIter("host.example.org.")
	name, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, "host.example.org.", name)
	_, ok = it.Next()
	assert.False(t, ok)
}

func Test_SearchIterFewDots(t *testing.T) {
	c := Default()
	c.Search = []string{"example.com", "lan.example.com"}

	// "host" has zero dots, below ndots=1: suffixes first, bare last
	var got []string
	it := c.SearchIter("host")
	for {
		name, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, name)
	}
	assert.Equal(t, []string{"host.example.com.", "host.lan.example.com.", "host."}, got)
}

func Test_SearchIterEnoughDots(t *testing.T) {
	c := Default()
	c.Search = []string{"example.com"}

	// one dot meets ndots=1: bare name first
	var got []string
	it := c.SearchIter("host.dev")
	for {
		name, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, name)
	}
	assert.Equal(t, []string{"host.dev.", "host.dev.example.com."}, got)
}

func Test_SearchIterReset(t *testing.T) {
	c := Default()
	it := c.SearchIter("host")
	first, _ := it.Next()
	it.Reset()
	again, _ := it.Next()
	assert.Equal(t, first, again)
}

func Test_ParseNameserver(t *testing.T) {
	ap, err := ParseNameserver("192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, uint16(53), ap.Port())

	ap, err = ParseNameserver("192.0.2.1:5353")
	require.NoError(t, err)
	assert.Equal(t, uint16(5353), ap.Port())

	ap, err = ParseNameserver("[2001:db8::1]")
	require.NoError(t, err)
	assert.Equal(t, uint16(53), ap.Port())

	_, err = ParseNameserver("nonsense")
	assert.Error(t, err)
}

func Test_TCPModeText(t *testing.T) {
	var m TCPMode
	require.NoError(t, m.UnmarshalText([]byte("only")))
	assert.Equal(t, TCPOnly, m)
	assert.Equal(t, "only", m.String())
	assert.Error(t, m.UnmarshalText([]byte("sometimes")))
}
