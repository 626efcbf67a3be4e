// Package hosts implements the static name/address overlay consulted ahead
// of network queries when the lookup order says so. Semantics follow
// file-based host tables: entries are appended in load order and the first
// match wins, later entries never replace earlier ones.
package hosts

import (
	"bufio"
	"io"
	"net/netip"
	"os"
	"strings"
	"sync"

	"github.com/semihalev/zlog/v2"
)

// Entry is one host binding. Alias entries resolve forward but are skipped
// by reverse lookup.
type Entry struct {
	Addr  netip.Addr
	Name  string
	Alias bool
}

// Table is an ordered host table. It is immutable for the lifetime of any
// resolver holding it, except through Reload which swaps the entry list
// wholesale under the lock.
type Table struct {
	mu      sync.RWMutex
	entries []Entry
	path    string
}

// New returns an empty table.
func New() *Table {
	return new(Table)
}

// Local returns a table loaded from /etc/hosts. A missing or unreadable
// file yields an empty table, matching libc behavior.
func Local() *Table {
	t := New()
	if err := t.LoadFile("/etc/hosts"); err != nil {
		zlog.Debug("No usable hosts file", "error", err.Error())
	}
	return t
}

// Insert appends one binding.
func (t *Table) Insert(addr netip.Addr, name string, alias bool) {
	t.mu.Lock()
	t.entries = append(t.entries, Entry{Addr: addr, Name: canon(name), Alias: alias})
	t.mu.Unlock()
}

// Load parses host entries from r and appends them: one logical line per
// entry holding an address, a canonical name and zero or more aliases.
// Comments and unparsable lines are skipped.
func (t *Table) Load(r io.Reader) error {
	entries, err := parse(r)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.entries = append(t.entries, entries...)
	t.mu.Unlock()
	return nil
}

// LoadFile is Load against a path. The path is remembered for Reload and
// Watch.
func (t *Table) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := t.Load(f); err != nil {
		return err
	}
	t.mu.Lock()
	t.path = path
	t.mu.Unlock()
	return nil
}

// Reload re-reads the backing file and replaces the table contents.
func (t *Table) Reload() error {
	t.mu.RLock()
	path := t.path
	t.mu.RUnlock()
	if path == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, err := parse(f)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()

	zlog.Debug("Hosts table reloaded", "path", path, "entries", len(entries))
	return nil
}

func parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		addr, err := netip.ParseAddr(strings.SplitN(fields[0], "%", 2)[0])
		if err != nil {
			continue
		}
		for i, name := range fields[1:] {
			entries = append(entries, Entry{Addr: addr, Name: canon(name), Alias: i > 0})
		}
	}
	return entries, scanner.Err()
}

// Len returns the number of bindings.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// LookupForward returns the first address bound to name, matching
// case-insensitively.
func (t *Table) LookupForward(name string) (netip.Addr, bool) {
	name = canon(name)
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.Name == name {
			return e.Addr, true
		}
	}
	return netip.Addr{}, false
}

// ForwardAll returns every address bound to name in table order.
func (t *Table) ForwardAll(name string) []netip.Addr {
	name = canon(name)
	t.mu.RLock()
	defer t.mu.RUnlock()
	var addrs []netip.Addr
	for _, e := range t.entries {
		if e.Name == name {
			addrs = append(addrs, e.Addr)
		}
	}
	return addrs
}

// LookupReverse returns the first non-alias name bound to addr.
func (t *Table) LookupReverse(addr netip.Addr) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if !e.Alias && e.Addr == addr {
			return e.Name, true
		}
	}
	return "", false
}

// canon lowercases and fully qualifies a host name.
func canon(name string) string {
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	return name
}
