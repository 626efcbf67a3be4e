package config

import (
	"bufio"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/semihalev/zlog/v2"
)

func secondsDuration(n int) time.Duration { return time.Duration(n) * time.Second }

// LoadResolvConf parses resolv.conf syntax from r into the configuration.
// Unknown directives are ignored and malformed lines are skipped, matching
// libc robustness expectations; only an I/O failure is an error.
func (c *Config) LoadResolvConf(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexAny(line, "#;"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		switch fields[0] {
		case "nameserver":
			ns, err := ParseNameserver(fields[1])
			if err != nil {
				zlog.Debug("Skipping bad nameserver line", "value", fields[1])
				continue
			}
			c.AddNameserver(ns)
		case "domain":
			// domain resets the search list to the single suffix
			c.Search = c.Search[:0]
			c.AddSearch(fields[1])
		case "search":
			c.Search = c.Search[:0]
			for _, s := range fields[1:] {
				c.AddSearch(s)
			}
		case "lookup":
			c.Lookup = c.Lookup[:0]
			for _, l := range fields[1:] {
				switch l {
				case LookupFile, LookupBind, LookupCache:
					c.Lookup = append(c.Lookup, l)
				}
			}
		case "interface":
			if addr, err := netip.ParseAddr(fields[1]); err == nil {
				c.Interface = addr
			}
		case "options":
			for _, opt := range fields[1:] {
				c.parseOption(opt)
			}
		}
	}
	return scanner.Err()
}

// LoadResolvConfFile is LoadResolvConf against a path.
func (c *Config) LoadResolvConfFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.LoadResolvConf(f)
}

func (c *Config) parseOption(opt string) {
	key, val, hasVal := strings.Cut(opt, ":")
	switch key {
	case "ndots":
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			c.Options.Ndots = n
		}
	case "timeout":
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.Options.Timeout = Duration{secondsDuration(n)}
		}
	case "attempts":
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.Options.Attempts = n
		}
	case "rotate":
		c.Options.Rotate = true
	case "recurse":
		c.Options.Recurse = true
	case "smart":
		c.Options.Smart = true
	case "edns0":
		c.Options.Edns0 = true
	case "tcp":
		if !hasVal {
			val = "only"
		}
		var m TCPMode
		if err := m.UnmarshalText([]byte(val)); err == nil {
			c.Options.TCP = m
		}
	}
}
