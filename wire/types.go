// Package wire implements the DNS wire format: message encoding and decoding
// with name compression, and a typed resource record model.
package wire

// Section identifies one of the four message sections. The values form a
// bitmask so record filters can select several sections at once.
type Section uint8

const (
	SectionQuestion   Section = 1 << iota // QD
	SectionAnswer                         // AN
	SectionAuthority                      // NS
	SectionAdditional                     // AR

	SectionAll = SectionQuestion | SectionAnswer | SectionAuthority | SectionAdditional
)

func (s Section) String() string {
	switch s {
	case SectionQuestion:
		return "QUESTION"
	case SectionAnswer:
		return "ANSWER"
	case SectionAuthority:
		return "AUTHORITY"
	case SectionAdditional:
		return "ADDITIONAL"
	}
	return "SECTION"
}

// Record types.
const (
	TypeA     uint16 = 1
	TypeNS    uint16 = 2
	TypeCNAME uint16 = 5
	TypeSOA   uint16 = 6
	TypePTR   uint16 = 12
	TypeMX    uint16 = 15
	TypeTXT   uint16 = 16
	TypeAAAA  uint16 = 28
	TypeSRV   uint16 = 33
	TypeOPT   uint16 = 41
	TypeSSHFP uint16 = 44
	TypeSPF   uint16 = 99
	TypeAXFR  uint16 = 252
	TypeANY   uint16 = 255
)

// Record classes.
const (
	ClassINET  uint16 = 1
	ClassCHAOS uint16 = 3
	ClassNONE  uint16 = 254
	ClassANY   uint16 = 255
)

// Response codes.
const (
	RcodeSuccess        = 0 // NOERROR
	RcodeFormatError    = 1 // FORMERR
	RcodeServerFailure  = 2 // SERVFAIL
	RcodeNameError      = 3 // NXDOMAIN
	RcodeNotImplemented = 4 // NOTIMP
	RcodeRefused        = 5 // REFUSED
)

// Opcodes.
const (
	OpcodeQuery  = 0
	OpcodeIQuery = 1
	OpcodeStatus = 2
	OpcodeNotify = 4
	OpcodeUpdate = 5
)

// Header flag bits, network order within the second header word.
const (
	headerBitQR = 1 << 15
	headerBitAA = 1 << 10
	headerBitTC = 1 << 9
	headerBitRD = 1 << 8
	headerBitRA = 1 << 7
)

// TypeToString maps record types to their presentation mnemonics.
var TypeToString = map[uint16]string{
	TypeA:     "A",
	TypeNS:    "NS",
	TypeCNAME: "CNAME",
	TypeSOA:   "SOA",
	TypePTR:   "PTR",
	TypeMX:    "MX",
	TypeTXT:   "TXT",
	TypeAAAA:  "AAAA",
	TypeSRV:   "SRV",
	TypeOPT:   "OPT",
	TypeSSHFP: "SSHFP",
	TypeSPF:   "SPF",
	TypeANY:   "ANY",
}

// StringToType is the inverse of TypeToString.
var StringToType = reverseMap(TypeToString)

// ClassToString maps record classes to their presentation mnemonics.
var ClassToString = map[uint16]string{
	ClassINET:  "IN",
	ClassCHAOS: "CH",
	ClassNONE:  "NONE",
	ClassANY:   "ANY",
}

// RcodeToString maps response codes to their presentation mnemonics.
var RcodeToString = map[int]string{
	RcodeSuccess:        "NOERROR",
	RcodeFormatError:    "FORMERR",
	RcodeServerFailure:  "SERVFAIL",
	RcodeNameError:      "NXDOMAIN",
	RcodeNotImplemented: "NOTIMP",
	RcodeRefused:        "REFUSED",
}

func reverseMap(m map[uint16]string) map[string]uint16 {
	r := make(map[string]uint16, len(m))
	for k, v := range m {
		r[v] = k
	}
	return r
}
