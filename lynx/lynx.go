// Package lynx implements the Lynx directory archive format, read and
// write sides, per §4.7.
package lynx

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"cbmconvert/petscii"
	"cbmconvert/storage"
)

const blockSize = 254

// basicLoader is the fixed 95-byte BASIC loader header Lynx archives
// carry so the archive is itself a runnable .PRG on real hardware.
var basicLoader = func() []byte {
	b := make([]byte, 95)
	// Load address 0x0801, then a single BASIC line "10 SYS 2061" and the
	// end-of-program link, padded with zeros; the last byte is a CR, so
	// the loader ends in the {0,0,0,0x0D} marker skipBasicHeader looks for.
	b[0], b[1] = 0x01, 0x08
	copy(b[2:], []byte{0x0B, 0x08, 0x0A, 0x00, 0x9E, '2', '0', '6', '1', 0x00, 0x00, 0x00})
	b[94] = 0x0D
	return b
}()

// Entry is one file packed into (or read from) a Lynx archive.
type Entry struct {
	Name   petscii.Filename
	Data   []byte
	Warned string // non-empty when a tolerated corruption was skipped
}

// Read parses a complete Lynx archive image. The text header and directory
// lines are read sequentially through a storage.Reader; the block-aligned
// payload region that follows is addressed directly by byte offset since
// its entries are binary CBM data, not reader-shaped fields.
func Read(data []byte) ([]Entry, error) {
	offset := skipBasicHeader(data)

	br := bytes.NewReader(data[offset:])
	sr := storage.NewReader(br)

	headerBlocks, fileCount, err := parseTextHeader(sr)
	if err != nil {
		return nil, fmt.Errorf("lynx: %w", err)
	}

	cursor := headerBlocks * blockSize
	entries := make([]Entry, 0, fileCount)

	for i := 0; i < fileCount; i++ {
		dir, err := parseDirectoryLine(br, sr, i == fileCount-1)
		if err != nil {
			return entries, fmt.Errorf("lynx: directory entry %d: %w", i, err)
		}

		payloadLen := computePayloadLength(dir)
		if payloadLen < 0 {
			entries = append(entries, Entry{Name: dir.name, Warned: "corrupt length, skipped"})
			continue
		}

		payloadBlocks := dir.blocks
		if dir.name.Type == petscii.REL && dir.blocks > 0 {
			ss := storage.DivRoundUp(int(dir.blocks), 121)
			payloadBlocks -= uint16(ss)
		}

		start := cursor
		end := start + payloadLen
		if end > len(data) {
			end = len(data)
		}
		payload := append([]byte(nil), data[start:end]...)
		entries = append(entries, Entry{Name: dir.name, Data: payload})

		cursor += int(payloadBlocks) * blockSize
		if dir.name.Type == petscii.REL {
			ss := storage.DivRoundUp(int(dir.blocks), 121)
			cursor += ss * blockSize
		}
	}

	return entries, nil
}

func skipBasicHeader(data []byte) int {
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	for i := 0; i+4 < limit; i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 0 && data[i+3] == 0x0D {
			return i + 4
		}
	}
	return 0
}

// readLine reads bytes up to and including the next 0x0D, returning
// everything before it.
func readLine(sr *storage.Reader) (string, error) {
	var buf []byte
	for {
		b, err := sr.ReadByte()
		if err != nil {
			return "", err
		}
		if b == 0x0D {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}

// parseTextHeader reads " <blocks>  <tag>\r <file_count> \r" and returns the
// header's block count (so the caller can find the 254-byte-aligned file
// region) and the file count; sr is left positioned at the first directory
// line.
func parseTextHeader(sr *storage.Reader) (headerBlocks int, fileCount int, err error) {
	line1, err := readLine(sr)
	if err != nil {
		return 0, 0, fmt.Errorf("missing header terminator")
	}
	if !strings.Contains(line1, "LYNX") {
		return 0, 0, fmt.Errorf("missing LYNX tag")
	}

	countLine, err := readLine(sr)
	if err != nil {
		return 0, 0, fmt.Errorf("missing file-count terminator")
	}
	countStr := strings.TrimSpace(countLine)
	count, cerr := strconv.Atoi(countStr)
	if cerr != nil {
		return 0, 0, fmt.Errorf("bad file count %q: %w", countStr, cerr)
	}

	blocks := 0
	if fields := strings.Fields(line1); len(fields) > 0 {
		blocks, _ = strconv.Atoi(fields[0])
	}

	return blocks, count, nil
}

type dirLine struct {
	name             petscii.Filename
	blocks           uint16
	lastSectorLength int // -1 if unspecified
}

// parseDirectoryLine reads one Lynx directory entry: a fixed 16-byte name
// slot, a mandatory terminating CR, then a variable number of CR-delimited
// decimal fields. br backs sr directly so the name-slot terminator can be
// peeked with ReadByte/UnreadByte without disturbing sr's own position.
func parseDirectoryLine(br *bytes.Reader, sr *storage.Reader, isLast bool) (dirLine, error) {
	nameField, err := sr.ReadBytes(16)
	if err != nil {
		return dirLine{}, fmt.Errorf("truncated directory entry")
	}
	crIdx := bytes.IndexByte(nameField, 0x0D)
	var rawName []byte
	if crIdx >= 0 {
		rawName = nameField[:crIdx]
	} else {
		rawName = nameField
	}

	// consume the trailing CR after the name field itself, if present
	if b, err := br.ReadByte(); err == nil && b != 0x0D {
		_ = br.UnreadByte()
	}

	blocksStr, err := readLine(sr)
	if err != nil {
		return dirLine{}, err
	}
	blocks, _ := strconv.Atoi(strings.TrimSpace(blocksStr))

	typeStr, err := readLine(sr)
	if err != nil {
		return dirLine{}, err
	}
	fileType := typeFromLetter(strings.TrimSpace(typeStr))

	var recordLength uint8
	if fileType == petscii.REL {
		rlStr, err := readLine(sr)
		if err != nil {
			return dirLine{}, err
		}
		rl, _ := strconv.Atoi(strings.TrimSpace(rlStr))
		recordLength = uint8(rl)
	}

	lastSectorLength := -1
	if br.Len() > 0 {
		lslStr, err := readLine(sr)
		if err == nil {
			if n, perr := strconv.Atoi(strings.TrimSpace(lslStr)); perr == nil {
				lastSectorLength = n
			}
		} else if !isLast {
			return dirLine{}, fmt.Errorf("missing last-sector length")
		}
	}
	if lastSectorLength < 0 {
		if !isLast && fileType == petscii.REL {
			return dirLine{}, fmt.Errorf("missing last-sector length for REL file")
		}
		lastSectorLength = 255
	}

	name := petscii.New(rawName, fileType, recordLength)
	return dirLine{name: name, blocks: uint16(blocks), lastSectorLength: lastSectorLength}, nil
}

func typeFromLetter(s string) petscii.FileType {
	switch s {
	case "P":
		return petscii.PRG
	case "U":
		return petscii.USR
	case "R":
		return petscii.REL
	case "D":
		return petscii.DEL
	default:
		return petscii.SEQ
	}
}

func computePayloadLength(dir dirLine) int {
	if dir.blocks == 0 {
		return 0
	}
	ss := 0
	if dir.name.Type == petscii.REL {
		ss = storage.DivRoundUp(int(dir.blocks), 121)
		lo := 121*ss - 119
		hi := 121 * ss
		if int(dir.blocks) < lo || int(dir.blocks) > hi {
			return -1
		}
	}
	length := (int(dir.blocks)-ss)*blockSize + dir.lastSectorLength - 255
	if length < 2 {
		return -1
	}
	return length
}

// Write serializes entries into a Lynx archive image.
func Write(entries []Entry) ([]byte, error) {
	var textHeader bytes.Buffer
	var dirLines bytes.Buffer

	totalBlocks := 0
	payloadBlocks := make([]int, len(entries))
	ssCounts := make([]int, len(entries))

	for i, e := range entries {
		blocks := storage.DivRoundUp(len(e.Data), blockSize)
		if len(e.Data) == 0 {
			blocks = 0
		}
		ss := 0
		if e.Name.Type == petscii.REL && blocks > 0 {
			ss = storage.DivRoundUp(blocks, 121)
		}
		payloadBlocks[i] = blocks
		ssCounts[i] = ss
		totalBlocks += blocks + ss

		lastSectorLen := len(e.Data) - (blocks-1)*blockSize
		if blocks == 0 {
			lastSectorLen = 0
		}

		dirLines.Write(padName(e.Name.Trimmed()))
		dirLines.WriteByte(0x0D)
		fmt.Fprintf(&dirLines, "%d\r", blocks+ss)
		dirLines.WriteString(letterFromType(e.Name.Type))
		dirLines.WriteByte(0x0D)
		if e.Name.Type == petscii.REL {
			fmt.Fprintf(&dirLines, "%d\r", e.Name.RecordLength)
		}
		// The last-sector-length field is one more than the number of
		// valid bytes in the final block (255 for a full 254-byte block),
		// per original_source/lynx.c's `length = len_field + blocks*254 -
		// 255` recovery formula.
		fmt.Fprintf(&dirLines, "%d \r", lastSectorLen+1)
	}

	fmt.Fprintf(&textHeader, " %d  LYNX\r %d \r", 0, len(entries))
	headerBlocks := storage.DivRoundUp(len(basicLoader)+textHeader.Len()+dirLines.Len(), blockSize)

	textHeader.Reset()
	fmt.Fprintf(&textHeader, " %d  LYNX\r %d \r", headerBlocks, len(entries))

	out := bytes.Buffer{}
	out.Write(basicLoader)
	out.Write(textHeader.Bytes())
	out.Write(dirLines.Bytes())

	pad := headerBlocks*blockSize - out.Len()
	if pad > 0 {
		out.Write(make([]byte, pad))
	}

	for i, e := range entries {
		blocks := payloadBlocks[i]
		ss := ssCounts[i]
		out.Write(e.Data)
		padLen := (blocks+ss)*blockSize - len(e.Data)
		if padLen > 0 {
			out.Write(make([]byte, padLen))
		}
	}

	return out.Bytes(), nil
}

func padName(name []byte) []byte {
	out := make([]byte, 16)
	n := copy(out, name)
	for i := n; i < 16; i++ {
		out[i] = petscii.PadByte
	}
	return out
}

func letterFromType(t petscii.FileType) string {
	switch t {
	case petscii.PRG:
		return "P"
	case petscii.USR:
		return "U"
	case petscii.REL:
		return "R"
	case petscii.DEL:
		return "D"
	default:
		return "S"
	}
}
