// Package dnsutil has small name helpers shared by the resolver packages.
package dnsutil

import (
	"net/netip"
	"strconv"
	"strings"
)

const (
	// IP4arpa is the reverse lookup suffix for IPv4.
	IP4arpa = ".in-addr.arpa."

	// IP6arpa is the reverse lookup suffix for IPv6.
	IP6arpa = ".ip6.arpa."
)

// ReverseName builds the PTR lookup name for an address:
// 176.58.119.54 becomes 54.119.58.176.in-addr.arpa.
func ReverseName(addr netip.Addr) string {
	if addr.Is4() || addr.Is4In6() {
		b := addr.Unmap().As4()
		return strconv.Itoa(int(b[3])) + "." + strconv.Itoa(int(b[2])) + "." +
			strconv.Itoa(int(b[1])) + "." + strconv.Itoa(int(b[0])) + IP4arpa
	}
	const hexDigit = "0123456789abcdef"
	b := addr.As16()
	var sb strings.Builder
	for i := 15; i >= 0; i-- {
		sb.WriteByte(hexDigit[b[i]&0xf])
		sb.WriteByte('.')
		sb.WriteByte(hexDigit[b[i]>>4])
		sb.WriteByte('.')
	}
	sb.WriteString(strings.TrimPrefix(IP6arpa, "."))
	return sb.String()
}

// ExtractAddressFromReverse turns a reverse record name back into an
// address. 54.119.58.176.in-addr.arpa. becomes 176.58.119.54. The zero
// Addr is returned when the conversion fails.
func ExtractAddressFromReverse(reverseName string) netip.Addr {
	reverseName = strings.ToLower(reverseName)
	if !strings.HasSuffix(reverseName, ".") {
		reverseName += "."
	}
	switch {
	case strings.HasSuffix(reverseName, IP4arpa):
		return reverse4(strings.TrimSuffix(reverseName, IP4arpa))
	case strings.HasSuffix(reverseName, IP6arpa):
		return reverse6(strings.TrimSuffix(reverseName, IP6arpa))
	}
	return netip.Addr{}
}

// IsReverse returns 0 when name is not in a reverse zone, 1 for
// in-addr.arpa (IPv4) and 2 for ip6.arpa (IPv6).
func IsReverse(name string) int {
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, ".") {
		name += "."
	}
	if strings.HasSuffix(name, IP4arpa) {
		return 1
	}
	if strings.HasSuffix(name, IP6arpa) {
		return 2
	}
	return 0
}

func reverse4(s string) netip.Addr {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return netip.Addr{}
	}
	var b [4]byte
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return netip.Addr{}
		}
		b[3-i] = byte(n)
	}
	return netip.AddrFrom4(b)
}

// reverse6 recombines nibbles per RFC 3596:
// b.a.9.8.7.6.5.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.8.b.d.0.1.0.0.2
// becomes 2001:db8::567:89ab.
func reverse6(s string) netip.Addr {
	parts := strings.Split(s, ".")
	if len(parts) != 32 {
		return netip.Addr{}
	}
	var b [16]byte
	for i, p := range parts {
		if len(p) != 1 {
			return netip.Addr{}
		}
		n, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return netip.Addr{}
		}
		byteIdx := 15 - i/2
		if i%2 == 0 {
			b[byteIdx] |= byte(n)
		} else {
			b[byteIdx] |= byte(n) << 4
		}
	}
	return netip.AddrFrom16(b)
}
