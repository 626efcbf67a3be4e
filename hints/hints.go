// Package hints holds per-zone, priority-ordered nameserver address lists.
// The database seeds resolution: from the root servers in recursive mode or
// from the local resolver configuration in stub mode, and is extended with
// delegations discovered while following referrals.
package hints

import (
	"net/netip"
	"sort"
	"strings"
	"sync"

	"github.com/semihalev/resolv/config"
)

// Server is one nameserver candidate. Lower priority values are tried
// first; entries of equal priority keep insertion order.
type Server struct {
	Addr     netip.AddrPort
	Priority int
}

// DB maps zone names (domain suffixes, "." for the root) to candidate
// lists. Multiple zones may be present at once, the longest suffix matching
// a query name wins on selection.
type DB struct {
	mu    sync.RWMutex
	zones map[string][]Server
}

// New returns an empty database.
func New() *DB {
	return &DB{zones: make(map[string][]Server)}
}

// The root zone servers, used to bootstrap recursive resolution.
var rootServers = []string{
	"198.41.0.4:53",
	"199.9.14.201:53",
	"192.33.4.12:53",
	"199.7.91.13:53",
	"192.203.230.10:53",
	"192.5.5.241:53",
	"192.112.36.4:53",
	"198.97.190.53:53",
	"192.36.148.17:53",
	"192.58.128.30:53",
	"193.0.14.129:53",
	"199.7.83.42:53",
	"202.12.27.33:53",
}

// Root returns a database seeded with the root zone servers.
func Root() *DB {
	db := New()
	for i, s := range rootServers {
		if ap, err := netip.ParseAddrPort(s); err == nil {
			db.Insert(".", ap, i)
		}
	}
	return db
}

// Local returns a database whose root zone holds the nameservers of cfg,
// for stub-mode resolution against the configured recursors.
func Local(cfg *config.Config) *DB {
	db := New()
	db.InsertFromConfig(".", cfg)
	return db
}

// Insert adds one candidate to a zone, keeping the list ordered ascending
// by priority with ties broken by insertion order.
func (db *DB) Insert(zone string, addr netip.AddrPort, priority int) {
	zone = canonZone(zone)
	db.mu.Lock()
	list := append(db.zones[zone], Server{Addr: addr, Priority: priority})
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	db.zones[zone] = list
	db.mu.Unlock()
}

// InsertFromConfig imports the nameserver list of cfg into a zone, in list
// order at ascending priority.
func (db *DB) InsertFromConfig(zone string, cfg *config.Config) {
	for i, ns := range cfg.Nameservers {
		db.Insert(zone, ns, i)
	}
}

// Replace installs servers as the complete candidate list of a zone.
func (db *DB) Replace(zone string, servers []Server) {
	zone = canonZone(zone)
	list := append([]Server(nil), servers...)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	db.mu.Lock()
	db.zones[zone] = list
	db.mu.Unlock()
}

// Select returns the candidate list of the longest zone suffix matching
// qname, with the zone it matched. A miss returns an empty list and "".
func (db *DB) Select(qname string) (string, []Server) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, zone := range suffixes(qname) {
		if list, ok := db.zones[zone]; ok && len(list) > 0 {
			return zone, append([]Server(nil), list...)
		}
	}
	return "", nil
}

// Zones returns the zone names present, unordered.
func (db *DB) Zones() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	zones := make([]string, 0, len(db.zones))
	for z := range db.zones {
		zones = append(zones, z)
	}
	return zones
}

// suffixes yields the zone suffixes of name from most to least specific,
// ending with the root.
func suffixes(name string) []string {
	name = canonZone(name)
	var out []string
	for {
		out = append(out, name)
		if name == "." {
			return out
		}
		_, rest, _ := strings.Cut(name, ".")
		if rest == "" {
			rest = "."
		}
		name = rest
	}
}

func canonZone(zone string) string {
	zone = strings.ToLower(zone)
	if zone == "" {
		return "."
	}
	if !strings.HasSuffix(zone, ".") {
		zone += "."
	}
	return zone
}
