package hosts

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
# local network
127.0.0.1    localhost
::1          localhost ip6-localhost
192.0.2.10   web.example.com www
192.0.2.11   web.example.com   # secondary, never wins forward lookup
fe80::1%eth0 gateway.example.com
not-an-addr  junk
`

func Test_Parse(t *testing.T) {
	tab := New()
	require.NoError(t, tab.Load(strings.NewReader(sample)))

	// localhost twice, ip6 alias, web twice, www alias, gateway
	assert.Equal(t, 7, tab.Len())
}

func Test_ForwardFirstMatchWins(t *testing.T) {
	tab := New()
	require.NoError(t, tab.Load(strings.NewReader(sample)))

	addr, ok := tab.LookupForward("web.example.com")
	require.True(t, ok)
	assert.Equal(t, "192.0.2.10", addr.String())

	// case-insensitive, fqdn or not
	addr, ok = tab.LookupForward("WEB.Example.COM.")
	require.True(t, ok)
	assert.Equal(t, "192.0.2.10", addr.String())

	all := tab.ForwardAll("web.example.com")
	require.Len(t, all, 2)
	assert.Equal(t, "192.0.2.11", all[1].String())
}

func Test_AliasForwardOnly(t *testing.T) {
	tab := New()
	require.NoError(t, tab.Load(strings.NewReader(sample)))

	addr, ok := tab.LookupForward("www")
	require.True(t, ok)
	assert.Equal(t, "192.0.2.10", addr.String())

	// reverse lookup skips aliases
	name, ok := tab.LookupReverse(netip.MustParseAddr("::1"))
	require.True(t, ok)
	assert.Equal(t, "localhost.", name)
}

func Test_ZoneSuffixStripped(t *testing.T) {
	tab := New()
	require.NoError(t, tab.Load(strings.NewReader(sample)))

	addr, ok := tab.LookupForward("gateway.example.com")
	require.True(t, ok)
	assert.Equal(t, "fe80::1", addr.String())
}

func Test_InsertPrecedesLoad(t *testing.T) {
	tab := New()
	tab.Insert(netip.MustParseAddr("10.0.0.1"), "web.example.com", false)
	require.NoError(t, tab.Load(strings.NewReader(sample)))

	addr, ok := tab.LookupForward("web.example.com")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", addr.String())
}

func Test_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(path, []byte("192.0.2.1 one.example.com\n"), 0o644))

	tab := New()
	require.NoError(t, tab.LoadFile(path))
	_, ok := tab.LookupForward("one.example.com")
	assert.True(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("192.0.2.2 two.example.com\n"), 0o644))
	require.NoError(t, tab.Reload())

	// reload replaces, not appends
	_, ok = tab.LookupForward("one.example.com")
	assert.False(t, ok)
	addr, ok := tab.LookupForward("two.example.com")
	require.True(t, ok)
	assert.Equal(t, "192.0.2.2", addr.String())
}

func Test_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(path, []byte("192.0.2.1 one.example.com\n"), 0o644))

	tab := New()
	require.NoError(t, tab.LoadFile(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, tab.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("192.0.2.9 nine.example.com\n"), 0o644))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := tab.LookupForward("nine.example.com"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("table not reloaded after file change")
}

func Test_WatchNoPath(t *testing.T) {
	tab := New()
	err := tab.Watch(context.Background())
	assert.ErrorIs(t, err, ErrNoPath)
}
