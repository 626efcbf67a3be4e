package wire

import (
	"errors"
	"strings"
)

const (
	maxNameLen  = 255 // wire octets including terminal root label
	maxLabelLen = 63

	// Compression pointers carry a 14 bit offset, names anchored at or
	// beyond this offset are written uncompressed.
	maxPointerOffset = 1 << 14

	// Upper bound on pointer hops while expanding a name. Rejects cyclic
	// or degenerate compression chains.
	maxPointerChase = 16
)

var (
	// ErrName is returned when encoding a domain name that violates the
	// label or total length limits.
	ErrName = errors.New("wire: bad domain name")

	// ErrBadName is returned when decoding a corrupt or oversized domain
	// name, including out-of-range and cyclic compression pointers.
	ErrBadName = errors.New("wire: corrupt compressed name")
)

// Fqdn returns name with a trailing dot.
func Fqdn(name string) string {
	if IsFqdn(name) {
		return name
	}
	return name + "."
}

// IsFqdn reports whether name ends with an unescaped dot.
func IsFqdn(name string) bool {
	return strings.HasSuffix(name, ".")
}

// CanonicalName lowercases name and qualifies it. Used for compression
// dictionary keys and for comparing echoed question names.
func CanonicalName(name string) string {
	return strings.ToLower(Fqdn(name))
}

// splitLabels breaks a presentation-format name into its labels. The root
// name "." yields no labels.
func splitLabels(name string) ([]string, error) {
	name = Fqdn(name)
	if name == "." {
		return nil, nil
	}
	labels := strings.Split(strings.TrimSuffix(name, "."), ".")
	wirelen := 1
	for _, l := range labels {
		if len(l) == 0 || len(l) > maxLabelLen {
			return nil, ErrName
		}
		wirelen += len(l) + 1
	}
	if wirelen > maxNameLen {
		return nil, ErrName
	}
	return labels, nil
}

// NameLen returns the encoded (uncompressed) length of name in octets, or an
// error if the name is not encodable.
func NameLen(name string) (int, error) {
	labels, err := splitLabels(name)
	if err != nil {
		return 0, err
	}
	n := 1
	for _, l := range labels {
		n += len(l) + 1
	}
	return n, nil
}

// unpackName expands the name starting at off in msg, lazily following
// compression pointers. It returns the dotted name and the offset of the
// first octet after the name in the uncompressed stream.
func unpackName(msg []byte, off int) (string, int, error) {
	var sb strings.Builder
	next := -1 // offset after the name, fixed at the first pointer
	chased := 0
	budget := maxNameLen

	for {
		if off >= len(msg) {
			return "", 0, ErrBadName
		}
		c := int(msg[off])
		switch {
		case c == 0x00:
			if next < 0 {
				next = off + 1
			}
			if sb.Len() == 0 {
				return ".", next, nil
			}
			return sb.String(), next, nil
		case c&0xc0 == 0xc0:
			if off+1 >= len(msg) {
				return "", 0, ErrBadName
			}
			ptr := (c&0x3f)<<8 | int(msg[off+1])
			if ptr >= len(msg) {
				return "", 0, ErrBadName
			}
			if next < 0 {
				next = off + 2
			}
			chased++
			if chased > maxPointerChase {
				return "", 0, ErrBadName
			}
			off = ptr
		case c&0xc0 == 0x00:
			if off+1+c > len(msg) {
				return "", 0, ErrBadName
			}
			budget -= c + 1
			if budget < 0 {
				return "", 0, ErrBadName
			}
			sb.Write(msg[off+1 : off+1+c])
			sb.WriteByte('.')
			off += c + 1
		default:
			// 0x40 and 0x80 label types are unassigned
			return "", 0, ErrBadName
		}
	}
}

// skipName returns the offset of the first octet after the name at off
// without expanding it.
func skipName(msg []byte, off int) (int, error) {
	for {
		if off >= len(msg) {
			return 0, ErrBadName
		}
		c := int(msg[off])
		switch {
		case c == 0x00:
			return off + 1, nil
		case c&0xc0 == 0xc0:
			if off+1 >= len(msg) {
				return 0, ErrBadName
			}
			return off + 2, nil
		case c&0xc0 == 0x00:
			off += c + 1
		default:
			return 0, ErrBadName
		}
	}
}
