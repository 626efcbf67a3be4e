// Package config holds resolver configuration: nameserver and search lists,
// lookup ordering and the resolution option set. Configurations load from
// structured TOML, from resolv.conf syntax or from nsswitch.conf syntax.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/semihalev/zlog/v2"
)

const (
	// MaxNameservers caps the nameserver list, mirroring administrative
	// resolv.conf practice.
	MaxNameservers = 3

	// MaxSearch caps the search-domain suffix list.
	MaxSearch = 4
)

// Lookup sources, order-significant.
const (
	LookupFile  = "file"
	LookupBind  = "bind"
	LookupCache = "cache"
)

// TCPMode selects the TCP transport policy.
type TCPMode int

const (
	// TCPEnable uses UDP first and falls back to TCP on truncation.
	TCPEnable TCPMode = iota

	// TCPOnly queries over TCP exclusively.
	TCPOnly

	// TCPDisable never opens TCP, truncated answers are final.
	TCPDisable
)

func (m TCPMode) String() string {
	switch m {
	case TCPOnly:
		return "only"
	case TCPDisable:
		return "disable"
	}
	return "enable"
}

// UnmarshalText parses a TCP policy name.
func (m *TCPMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "enable":
		*m = TCPEnable
	case "only":
		*m = TCPOnly
	case "disable":
		*m = TCPDisable
	default:
		return fmt.Errorf("config: unknown tcp mode %q", text)
	}
	return nil
}

// Duration wraps time.Duration for TOML text decoding.
type Duration struct {
	time.Duration
}

// UnmarshalText for duration type
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Options is the resolution option set.
type Options struct {
	Edns0    bool
	Ndots    int
	Timeout  Duration
	Attempts int
	Rotate   bool
	Recurse  bool
	Smart    bool
	TCP      TCPMode
}

// Config type
type Config struct {
	Nameservers []netip.AddrPort
	Search      []string
	Lookup      []string
	Options     Options
	Interface   netip.Addr
}

// Default returns a stub-mode configuration with conventional option values.
func Default() *Config {
	return &Config{
		Lookup: []string{LookupFile, LookupBind},
		Options: Options{
			Ndots:    1,
			Timeout:  Duration{5 * time.Second},
			Attempts: 2,
			TCP:      TCPEnable,
		},
	}
}

// Local loads the system resolver configuration, tolerating missing or
// malformed files the way libc does. When no nameserver is configured the
// loopback resolver is assumed.
func Local() *Config {
	c := Default()
	if err := c.LoadResolvConfFile("/etc/resolv.conf"); err != nil {
		zlog.Debug("No usable resolv.conf", "error", err.Error())
	}
	if err := c.LoadNSSwitchConfFile("/etc/nsswitch.conf"); err != nil {
		zlog.Debug("No usable nsswitch.conf", "error", err.Error())
	}
	if len(c.Nameservers) == 0 {
		c.Nameservers = append(c.Nameservers, netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), 53))
	}
	return c
}

// Root returns the local configuration switched to recursive mode: the
// resolver walks the delegation chain itself instead of asking the
// configured recursors.
func Root() *Config {
	c := Local()
	c.Options.Recurse = true
	c.Options.Smart = true
	return c
}

// LoadTOML loads a configuration from a TOML file, applied over the
// defaults.
func LoadTOML(path string) (*Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("config: could not load %s: %w", path, err)
	}
	c.clamp()
	return c, nil
}

// clamp enforces the fixed list maxima.
func (c *Config) clamp() {
	if len(c.Nameservers) > MaxNameservers {
		c.Nameservers = c.Nameservers[:MaxNameservers]
	}
	if len(c.Search) > MaxSearch {
		c.Search = c.Search[:MaxSearch]
	}
}

// AddNameserver appends addr unless the nameserver list is full.
func (c *Config) AddNameserver(addr netip.AddrPort) {
	if len(c.Nameservers) < MaxNameservers {
		c.Nameservers = append(c.Nameservers, addr)
	}
}

// AddSearch appends a search suffix unless the list is full.
func (c *Config) AddSearch(suffix string) {
	if len(c.Search) < MaxSearch {
		c.Search = append(c.Search, suffix)
	}
}

// Overrides is a partial option set for Merge. Nil fields leave the
// corresponding configuration field untouched.
type Overrides struct {
	Nameservers []netip.AddrPort
	Search      []string
	Lookup      []string
	Interface   *netip.Addr

	Edns0    *bool
	Ndots    *int
	Timeout  *time.Duration
	Attempts *int
	Rotate   *bool
	Recurse  *bool
	Smart    *bool
	TCP      *TCPMode
}

// Merge applies the non-nil fields of o onto the configuration.
func (c *Config) Merge(o Overrides) {
	if o.Nameservers != nil {
		c.Nameservers = append([]netip.AddrPort(nil), o.Nameservers...)
	}
	if o.Search != nil {
		c.Search = append([]string(nil), o.Search...)
	}
	if o.Lookup != nil {
		c.Lookup = append([]string(nil), o.Lookup...)
	}
	if o.Interface != nil {
		c.Interface = *o.Interface
	}
	if o.Edns0 != nil {
		c.Options.Edns0 = *o.Edns0
	}
	if o.Ndots != nil {
		c.Options.Ndots = *o.Ndots
	}
	if o.Timeout != nil {
		c.Options.Timeout = Duration{*o.Timeout}
	}
	if o.Attempts != nil {
		c.Options.Attempts = *o.Attempts
	}
	if o.Rotate != nil {
		c.Options.Rotate = *o.Rotate
	}
	if o.Recurse != nil {
		c.Options.Recurse = *o.Recurse
	}
	if o.Smart != nil {
		c.Options.Smart = *o.Smart
	}
	if o.TCP != nil {
		c.Options.TCP = *o.TCP
	}
	c.clamp()
}

// HostsFirst reports whether the lookup order consults the hosts table
// before the network.
func (c *Config) HostsFirst() bool {
	for _, l := range c.Lookup {
		switch l {
		case LookupFile:
			return true
		case LookupBind:
			return false
		}
	}
	return false
}

// UsesNetwork reports whether the lookup order includes the network at all.
func (c *Config) UsesNetwork() bool {
	for _, l := range c.Lookup {
		if l == LookupBind {
			return true
		}
	}
	return len(c.Lookup) == 0
}

// ParseNameserver parses a nameserver address with an optional port,
// defaulting to 53.
func ParseNameserver(s string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap, nil
	}
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("config: bad nameserver %q: %w", s, err)
	}
	return netip.AddrPortFrom(addr, 53), nil
}
