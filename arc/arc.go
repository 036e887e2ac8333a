// Package arc implements the ARC and self-dissolving-archive (SDA) decoder,
// and a minimal store/RLE-pack encoder, per §4.6.
package arc

import (
	"bytes"
	"fmt"
	"io"

	"cbmconvert/bitio"
	"cbmconvert/huffman"
	"cbmconvert/lzw12"
	"cbmconvert/petscii"
	"cbmconvert/rle"
	"cbmconvert/storage"
)

// Mode is the ARC entry compression mode.
type Mode uint8

const (
	ModeStore Mode = iota
	ModeRLEPack
	ModeSqueeze   // Huffman only
	ModeCrunch    // Huffman + RLE
	ModeLZWCrunch // 12-bit LZW + RLE
	ModeCrunch5   // one-pass LZW, checksum/size trail after EOS
)

// Entry is one decoded ARC/SDA member.
type Entry struct {
	Name         petscii.Filename
	Data         []byte
	ChecksumOK   bool
	ChecksumWarn string // non-empty if the checksum mismatched
}

// header is the raw per-entry ARC header, versions 1 and 2 (§4.6).
type header struct {
	version      uint8
	mode         Mode
	checksum     uint16
	size         uint32 // original, uncompressed size
	blocks       uint16 // 254-byte blocks spanned by the whole entry, header and payload
	typeLetter   byte
	filename     []byte
	recordLength uint16 // version 2 only
	date         uint16 // version 2 only
}

// DetectStart finds the byte offset at which the first ARC header begins,
// per §4.6's SDA BASIC-loader skip detection. buf must contain at least
// the first few hundred bytes of the file.
func DetectStart(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("arc: empty input")
	}
	switch buf[0] {
	case 0x02:
		return 0, nil
	case 0x01:
		lineNumber, cpuTag, ok := parseSDABasicLine(buf)
		if !ok {
			return 0, nil // no BASIC SYS token; probably a plain version-1 archive
		}
		skip := (lineNumber - 6) * 254
		if lineNumber == 15 && cpuTag == '7' {
			skip--
		}
		if skip < 0 {
			skip = 0
		}
		return skip, nil
	default:
		return 0, fmt.Errorf("arc: unrecognized start byte 0x%02X", buf[0])
	}
}

// parseSDABasicLine extracts the BASIC line number of a "SYS" loader line
// and the CPU-tag byte used by the line-15 special case. The encoding of
// a tokenized BASIC line is: link(2) ignored, line number(2, LE), tokens...
func parseSDABasicLine(buf []byte) (int, byte, bool) {
	if len(buf) < 8 {
		return 0, 0, false
	}
	lineNumber := int(buf[2]) | int(buf[3])<<8
	var cpuTag byte
	if len(buf) > 20 {
		cpuTag = buf[20]
	}
	if buf[4] != 0x9E { // BASIC's SYS token right after the line number
		return 0, 0, false
	}
	return lineNumber, cpuTag, true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Decode reads every entry from an ARC/SDA byte stream, returning as many
// entries as could be parsed; a non-nil error indicates the entry at which
// parsing stopped. Per §4.6, a checksum mismatch is a warning recorded on
// the entry, not a decode failure.
func Decode(data []byte) ([]Entry, error) {
	start, err := DetectStart(data)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	pos := start

	for pos < len(data) {
		if data[pos] == 0 {
			break // end marker
		}

		hdr, headerLen, err := parseHeader(data[pos:])
		if err != nil {
			return entries, fmt.Errorf("arc: entry at offset %d: %w", pos, err)
		}

		payloadStart := pos + headerLen
		entry, err := decodeEntry(hdr, data, payloadStart)
		if err != nil {
			return entries, fmt.Errorf("arc: decoding %q: %w", hdr.filename, err)
		}
		entries = append(entries, entry)

		pos += int(hdr.blocks) * 254
		if hdr.blocks == 0 {
			pos = len(data) // avoid an infinite loop on a corrupt zero-block header
		}
	}

	return entries, nil
}

// parseHeader reads one ARC entry header from the front of buf through a
// storage.Reader, the shared little-endian field reader every container
// codec in this module is built on (§2's primitives component). Unlike the
// PC ARC format, a Commodore ARC/SDA entry carries no leading magic byte
// (original_source's GetHeader reads the version directly); DetectStart is
// what tells a plain archive's leading version byte apart from an SDA
// BASIC loader.
//
// Layout (version-independent prefix):
//
//	[0]    version
//	[1]    mode
//	[2]    name length, [3..] name bytes
//	...    checksum(2) size(3) blocks(2) type-letter(1)
//	       version 2 only: record-length(1) date(2)
func parseHeader(buf []byte) (header, int, error) {
	br := bytes.NewReader(buf)
	sr := storage.NewReader(br)

	version, err := sr.ReadByte()
	if err != nil {
		return header{}, 0, fmt.Errorf("truncated header")
	}
	if version != 1 && version != 2 {
		return header{}, 0, fmt.Errorf("unsupported version %d", version)
	}

	modeByte, err := sr.ReadByte()
	if err != nil {
		return header{}, 0, fmt.Errorf("truncated header")
	}
	mode := Mode(modeByte)
	if mode > ModeCrunch5 {
		return header{}, 0, fmt.Errorf("invalid mode %d", mode)
	}
	if version == 1 && mode > ModeSqueeze {
		return header{}, 0, fmt.Errorf("mode %d invalid for v1", mode)
	}

	nameLenByte, err := sr.ReadByte()
	if err != nil {
		return header{}, 0, fmt.Errorf("truncated header")
	}
	nameLen := int(nameLenByte)
	if nameLen > 16 {
		return header{}, 0, fmt.Errorf("filename length %d exceeds 16", nameLen)
	}
	name, err := sr.ReadBytes(nameLen)
	if err != nil {
		return header{}, 0, fmt.Errorf("truncated filename")
	}

	checksum, err := sr.ReadShort()
	if err != nil {
		return header{}, 0, fmt.Errorf("truncated header")
	}
	size, err := sr.ReadTriple()
	if err != nil {
		return header{}, 0, fmt.Errorf("truncated header")
	}
	blocks, err := sr.ReadShort()
	if err != nil {
		return header{}, 0, fmt.Errorf("truncated header")
	}
	typeLetter, err := sr.ReadByte()
	if err != nil {
		return header{}, 0, fmt.Errorf("truncated header")
	}

	h := header{
		version:    version,
		mode:       mode,
		checksum:   checksum,
		size:       size,
		blocks:     blocks,
		typeLetter: typeLetter,
		filename:   name,
	}

	switch typeLetter {
	case 'S', 'P', 'U', 'R':
	default:
		return header{}, 0, fmt.Errorf("invalid type letter %q", typeLetter)
	}

	if version == 2 {
		recordLength, err := sr.ReadByte()
		if err != nil {
			return header{}, 0, fmt.Errorf("truncated v2 header")
		}
		h.recordLength = uint16(recordLength)
		date, err := sr.ReadShort()
		if err != nil {
			return header{}, 0, fmt.Errorf("truncated v2 header")
		}
		h.date = date
	}

	headerLen := len(buf) - br.Len()
	return h, headerLen, nil
}

func decodeEntry(hdr header, data []byte, payloadStart int) (Entry, error) {
	fileType := petscii.SEQ
	switch hdr.typeLetter {
	case 'P':
		fileType = petscii.PRG
	case 'U':
		fileType = petscii.USR
	case 'R':
		fileType = petscii.REL
	}
	name := petscii.New(hdr.filename, fileType, uint8(hdr.recordLength))

	outLen := int(hdr.size)
	if hdr.mode == ModeCrunch5 && outLen == 0 {
		outLen = 65536
	}

	payload := data[payloadStart:]
	var decoded []byte
	var err error
	var escByte byte
	cursor := 0

	switch hdr.mode {
	case ModeStore:
		if len(payload) < outLen {
			return Entry{}, fmt.Errorf("store: truncated payload")
		}
		decoded = append([]byte(nil), payload[:outLen]...)

	case ModeRLEPack:
		if len(payload) < 1 {
			return Entry{}, fmt.Errorf("pack: missing escape byte")
		}
		escByte = payload[0]
		cursor = 1
		decoded = rleDecodeTo(payload[cursor:], escByte, hdr.version == 2, outLen)

	case ModeSqueeze:
		br := bitio.New(bytes.NewReader(payload))
		table, herr := huffman.Build(br)
		if herr != nil {
			return Entry{}, herr
		}
		decoded, err = table.Decode(br, outLen)

	case ModeCrunch:
		br := bitio.New(bytes.NewReader(payload))
		table, herr := huffman.Build(br)
		if herr != nil {
			return Entry{}, herr
		}
		huff, herr := table.Decode(br, guessIntermediateLen(outLen))
		if herr != nil && len(huff) == 0 {
			return Entry{}, herr
		}
		if len(huff) < 1 {
			return Entry{}, fmt.Errorf("crunch: empty intermediate stream")
		}
		escByte = huff[0]
		decoded = rleDecodeTo(huff[1:], escByte, hdr.version == 2, outLen)

	case ModeLZWCrunch:
		br := bitio.New(bytes.NewReader(payload))
		dec := lzw12.New()
		lz, lerr := dec.Decode(br, guessIntermediateLen(outLen))
		if lerr != nil && len(lz) == 0 {
			return Entry{}, lerr
		}
		if len(lz) < 1 {
			return Entry{}, fmt.Errorf("lzw-crunch: empty intermediate stream")
		}
		escByte = lz[0]
		decoded = rleDecodeTo(lz[1:], escByte, hdr.version == 2, outLen)

	case ModeCrunch5:
		br := bitio.New(bytes.NewReader(payload))
		dec := lzw12.New()
		decoded, err = dec.Decode(br, outLen)

	default:
		return Entry{}, fmt.Errorf("unsupported mode %d", hdr.mode)
	}

	if err != nil && len(decoded) == 0 {
		return Entry{}, err
	}

	checksum := verifyChecksum(decoded, hdr.checksum, hdr.version)

	return Entry{
		Name:       name,
		Data:       decoded,
		ChecksumOK: checksum,
		ChecksumWarn: func() string {
			if !checksum {
				return fmt.Sprintf("checksum mismatch for %q", petscii.ToASCII(hdr.filename))
			}
			return ""
		}(),
	}, nil
}

// guessIntermediateLen sizes the buffer used between the entropy-coding
// stage and the RLE stage. The intermediate stream opens with the escape
// byte, and an escaped literal takes three intermediate bytes for one
// output byte, so it is never longer than 3*outLen+1.
func guessIntermediateLen(outLen int) int {
	return 3*outLen + 1
}

func rleDecodeTo(src []byte, esc byte, v2 bool, outLen int) []byte {
	out := rle.Decode(src, esc, v2)
	if len(out) > outLen {
		out = out[:outLen]
	}
	return out
}

// verifyChecksum recomputes the running checksum per §4.6: version 1 is a
// plain byte sum; version 2 XORs each byte with its pre-incremented index
// before summing.
func verifyChecksum(data []byte, want uint16, version uint8) bool {
	var sum uint16
	if version == 1 {
		for _, b := range data {
			sum += uint16(b)
		}
	} else {
		var idx uint16
		for _, b := range data {
			idx++
			sum += uint16(b ^ byte(idx))
		}
	}
	return sum == want
}

// EncodeStore writes a single mode-0 (store) ARC entry for name/data to w.
// Modes 2-5 are decode-only in this module, matching original_source's
// unarc.c (store and RLE-pack are the only modes with an encoder-shaped
// inverse worth offering a converter's sink side; see DESIGN.md).
func EncodeStore(w io.Writer, name petscii.Filename, data []byte) error {
	return writeEntry(w, name, data, ModeStore, data)
}

// EncodePack writes a single mode-1 (RLE-pack) ARC entry.
func EncodePack(w io.Writer, name petscii.Filename, data []byte) error {
	esc := pickEscapeByte(data)
	packed := append([]byte{esc}, rle.Encode(data, esc, 255)...)
	return writeEntry(w, name, data, ModeRLEPack, packed)
}

func pickEscapeByte(data []byte) byte {
	seen := make([]bool, 256)
	for _, b := range data {
		seen[b] = true
	}
	for i := 255; i >= 0; i-- {
		if !seen[i] {
			return byte(i)
		}
	}
	return 0
}

func writeEntry(w io.Writer, name petscii.Filename, original []byte, mode Mode, payload []byte) error {
	typeLetter := byte('S')
	switch name.Type {
	case petscii.PRG:
		typeLetter = 'P'
	case petscii.USR:
		typeLetter = 'U'
	case petscii.REL:
		typeLetter = 'R'
	}

	trimmed := name.Trimmed()

	var sum uint16
	for _, b := range original {
		sum += uint16(b)
	}

	// version, mode, name length, name, checksum(2), size(3), blocks(2), type
	hdrLen := 11 + len(trimmed)
	blocks := storage.DivRoundUp(hdrLen+len(payload), 254)

	buf := []byte{1, byte(mode), byte(len(trimmed))}
	buf = append(buf, trimmed...)
	buf = append(buf, byte(sum), byte(sum>>8))
	size := uint32(len(original))
	buf = append(buf, byte(size), byte(size>>8), byte(size>>16))
	buf = append(buf, byte(blocks), byte(blocks>>8))
	buf = append(buf, typeLetter)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	pad := blocks*254 - hdrLen - len(payload)
	if pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return err
		}
	}
	return nil
}
