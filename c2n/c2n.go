// Package c2n implements the C2N tape-stream container: header and data
// block chains, per §4.9.
package c2n

import (
	"bytes"
	"fmt"

	"cbmconvert/petscii"
	"cbmconvert/storage"
)

const blockSize = 192

// tag identifies a 192-byte tape header block.
type tag uint8

const (
	tagRelocatable tag = 1
	tagData        tag = 2
	tagAbsolute    tag = 3
	tagDataHeader  tag = 4
	tagEndOfTape   tag = 5
)

// Entry is one decoded tape file: either a program (with a fixed load
// address) or a data file (start/end addresses fixed at 0x33C/0x3FC).
type Entry struct {
	Name        petscii.Filename
	LoadAddress uint16
	Data        []byte
	Truncated   bool
}

// Read parses a sequence of C2N header/data blocks into Entry values,
// through a storage.Reader for each 192-byte block. A data-chain's
// terminating non-tagData block has already been consumed off the reader
// by the time its tag is known, so it is held in pending and replayed as
// the next block dispatched rather than re-read.
func Read(data []byte) ([]Entry, error) {
	br := bytes.NewReader(data)
	sr := storage.NewReader(br)
	var entries []Entry
	var pending []byte

	readBlock := func() ([]byte, error) {
		if pending != nil {
			b := pending
			pending = nil
			return b, nil
		}
		return sr.ReadBytes(blockSize)
	}
	blockOffset := func() int {
		return len(data) - br.Len() - blockSize
	}

	for {
		block, err := readBlock()
		if err != nil {
			return entries, nil
		}

		t := tag(block[0])
		switch t {
		case tagEndOfTape:
			return entries, nil

		case tagRelocatable, tagAbsolute:
			start := uint16(block[1]) | uint16(block[2])<<8
			end := uint16(block[3]) | uint16(block[4])<<8
			name := block[5:21]
			length := int(end - start)

			payload := make([]byte, 0, length)
			for len(payload) < length {
				next, err := readBlock()
				if err != nil {
					break
				}
				if tag(next[0]) != tagData {
					pending = next
					break
				}
				chunk := next[1:blockSize]
				need := length - len(payload)
				if need < len(chunk) {
					chunk = chunk[:need]
				}
				payload = append(payload, chunk...)
			}
			truncated := len(payload) < length

			entries = append(entries, Entry{
				Name:        petscii.New(name, petscii.PRG, 0),
				LoadAddress: start,
				Data:        payload,
				Truncated:   truncated,
			})

		case tagDataHeader:
			name := block[5:21]
			var payload []byte
			for {
				next, err := readBlock()
				if err != nil {
					break
				}
				if tag(next[0]) != tagData {
					pending = next
					break
				}
				payload = append(payload, next[1:blockSize]...)
			}
			entries = append(entries, Entry{
				Name: petscii.New(name, petscii.SEQ, 0),
				Data: payload,
			})

		default:
			return entries, fmt.Errorf("c2n: unrecognized block tag %d at offset %d", t, blockOffset())
		}
	}
}

// Write serializes entries into a C2N tape stream. Programs preserve their
// original load address; everything else is rewritten as a data header
// plus zero-padded data blocks, per §4.9.
func Write(entries []Entry) []byte {
	var out []byte

	for _, e := range entries {
		if e.Name.Type == petscii.PRG {
			header := make([]byte, blockSize)
			header[0] = byte(tagAbsolute)
			start := e.LoadAddress
			end := start + uint16(len(e.Data))
			header[1], header[2] = byte(start), byte(start>>8)
			header[3], header[4] = byte(end), byte(end>>8)
			copy(header[5:21], padName(e.Name.Trimmed()))
			out = append(out, header...)
			out = append(out, dataBlocks(e.Data)...)
		} else {
			header := make([]byte, blockSize)
			header[0] = byte(tagDataHeader)
			header[1], header[2] = 0x3C, 0x03
			header[3], header[4] = 0xFC, 0x03
			copy(header[5:21], padName(e.Name.Trimmed()))
			out = append(out, header...)
			out = append(out, dataBlocks(e.Data)...)
		}
		out = append(out, endOfTapeBlock()...)
	}

	return out
}

func dataBlocks(data []byte) []byte {
	var out []byte
	const payloadPerBlock = blockSize - 1
	for i := 0; i < len(data); i += payloadPerBlock {
		end := i + payloadPerBlock
		chunk := data[i:min(end, len(data))]
		block := make([]byte, blockSize)
		block[0] = byte(tagData)
		copy(block[1:], chunk)
		out = append(out, block...)
	}
	if len(data) == 0 {
		block := make([]byte, blockSize)
		block[0] = byte(tagData)
		out = append(out, block...)
	}
	return out
}

func endOfTapeBlock() []byte {
	block := make([]byte, blockSize)
	block[0] = byte(tagEndOfTape)
	return block
}

func padName(name []byte) []byte {
	out := make([]byte, 16)
	n := copy(out, name)
	for i := n; i < 16; i++ {
		out[i] = petscii.PadByte
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
