// Package petscii implements the Commodore PETSCII Filename value type and
// its conversion to and from host (ASCII) file names.
//
// Reference: cbmconvert's archive.h FILENAME structure.
package petscii

import "fmt"

// FileType is the Commodore DOS file type tag stored in a directory entry.
type FileType uint8

const (
	DEL FileType = iota
	SEQ
	PRG
	USR
	REL
	CBM
)

func (t FileType) String() string {
	switch t {
	case DEL:
		return "DEL"
	case SEQ:
		return "SEQ"
	case PRG:
		return "PRG"
	case USR:
		return "USR"
	case REL:
		return "REL"
	case CBM:
		return "CBM"
	default:
		return fmt.Sprintf("TYPE(%d)", uint8(t))
	}
}

// Suffix returns the native host-name suffix for this file type, per §4.2.
// REL's suffix embeds the record length in hex and must be built by the
// caller with RelSuffix instead.
func (t FileType) Suffix() string {
	switch t {
	case DEL:
		return ",del"
	case SEQ:
		return ",seq"
	case PRG:
		return ",prg"
	case USR:
		return ",usr"
	case CBM:
		return ",cbm"
	default:
		return ""
	}
}

// RelSuffix returns the ",l<HH>" suffix for a REL file of the given record
// length.
func RelSuffix(recordLength uint8) string {
	return fmt.Sprintf(",l%02x", recordLength)
}

// PadByte is the PETSCII "shifted space" used to pad file names to 16 bytes.
const PadByte = 0xA0

// NameLength is the fixed width of a PETSCII file name field.
const NameLength = 16

// Filename is the 16-byte PETSCII name, file type, and record length of a
// Commodore file. Equality must compare the full padded Name array, not a
// trimmed ASCII form (§9).
type Filename struct {
	Name         [NameLength]byte
	Type         FileType
	RecordLength uint8 // meaningful only when Type == REL
}

// New builds a Filename from an unpadded PETSCII byte slice (truncated or
// padded with PadByte to NameLength).
func New(name []byte, t FileType, recordLength uint8) Filename {
	var fn Filename
	n := copy(fn.Name[:], name)
	for i := n; i < NameLength; i++ {
		fn.Name[i] = PadByte
	}
	fn.Type = t
	fn.RecordLength = recordLength
	return fn
}

// Equal compares two Filenames byte-exactly, including type and record
// length, per the data model invariant in §3/§9.
func (f Filename) Equal(other Filename) bool {
	return f.Name == other.Name && f.Type == other.Type && f.RecordLength == other.RecordLength
}

// Trimmed strips trailing PadByte bytes from the name.
func (f Filename) Trimmed() []byte {
	n := len(f.Name)
	for n > 0 && f.Name[n-1] == PadByte {
		n--
	}
	return f.Name[:n]
}

func (f Filename) String() string {
	return fmt.Sprintf("%s.%s", ToASCII(f.Trimmed()), f.Type)
}

// ToASCII maps a PETSCII byte slice to an ASCII string using the cosmetic
// case-swap rules of §4.2:
//
//	A..Z (0x41..0x5A)        -> lowercase a..z
//	a..z graphic (0xC1..0xDA) -> uppercase A..Z
//	printable ASCII 0x20..0x5F (excluding the two ranges above) -> as-is
//	lowercase PETSCII 0x61..0x7A -> uppercase
//	anything else -> '_'
func ToASCII(petscii []byte) string {
	out := make([]byte, len(petscii))
	for i, b := range petscii {
		out[i] = toASCIIByte(b)
	}
	return string(out)
}

func toASCIIByte(b byte) byte {
	switch {
	case b >= 0x41 && b <= 0x5A:
		return b - 0x41 + 'a'
	case b >= 0xC1 && b <= 0xDA:
		return b - 0xC1 + 'A'
	case b >= 0x61 && b <= 0x7A:
		return b - 0x61 + 'A'
	case b >= 0x20 && b <= 0x5F:
		return b
	default:
		return '_'
	}
}
