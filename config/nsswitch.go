package config

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// LoadNSSwitchConf parses nsswitch.conf syntax from r, taking the lookup
// order from the "hosts:" line. Source names map onto the lookup constants:
// files->file, dns->bind, cache stays as-is. Anything else, including the
// [NOTFOUND=...] action syntax, is ignored.
func (c *Config) LoadNSSwitchConf(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		db, rest, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(db) != "hosts" {
			continue
		}

		var lookup []string
		for _, src := range strings.Fields(rest) {
			switch src {
			case "files", LookupFile:
				lookup = append(lookup, LookupFile)
			case "dns", LookupBind:
				lookup = append(lookup, LookupBind)
			case LookupCache:
				lookup = append(lookup, LookupCache)
			}
		}
		if len(lookup) > 0 {
			c.Lookup = lookup
		}
	}
	return scanner.Err()
}

// LoadNSSwitchConfFile is LoadNSSwitchConf against a path.
func (c *Config) LoadNSSwitchConfFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.LoadNSSwitchConf(f)
}
