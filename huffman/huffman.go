// Package huffman implements the 256-symbol canonical-ish Huffman table
// used by ARC/SDA "squeeze" and "crunch" modes (§4.4).
package huffman

import (
	"fmt"
	"sort"

	"cbmconvert/bitio"
)

// entry is one symbol's Huffman coding: a bit length, the code value read
// LSB-first, and the symbol it decodes to.
type entry struct {
	length int
	code   uint32
	symbol byte
}

// Table is a built Huffman decode table, sorted by descending code length.
type Table struct {
	entries []entry
	cursor0 int // index of the last (shortest-length) entry, where decoding starts
}

// Build reads the 256 (length, code) pairs from br: a 5-bit length per
// symbol followed by that many code bits (LSB first), per §4.4. A length
// greater than 24 is a format error; a length of 0 means the symbol is
// absent from the table.
func Build(br *bitio.Reader) (*Table, error) {
	all := make([]entry, 0, 256)

	for sym := 0; sym < 256; sym++ {
		length := readBits(br, 5)
		if length > 24 {
			return nil, fmt.Errorf("huffman: symbol %d has invalid length %d", sym, length)
		}
		if length == 0 {
			continue
		}
		code := readBitsLSB(br, length)
		all = append(all, entry{length: length, code: code, symbol: byte(sym)})
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].length > all[j].length
	})

	t := &Table{entries: all}
	if len(all) > 0 {
		t.cursor0 = len(all) - 1
	} else {
		t.cursor0 = -1
	}
	return t, nil
}

func readBits(br *bitio.Reader, n int) int {
	v := 0
	for i := 0; i < n; i++ {
		v |= br.Bit() << i
	}
	return v
}

func readBitsLSB(br *bitio.Reader, n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		v |= uint32(br.Bit()) << i
	}
	return v
}

// Decode reads symbols from br until count bytes have been produced or EOF
// is reached (in which case the returned error is non-nil and the short
// output should be treated as corrupt per the orchestrator's propagation
// policy).
func (t *Table) Decode(br *bitio.Reader, count int) ([]byte, error) {
	out := make([]byte, 0, count)

	for len(out) < count {
		sym, err := t.decodeOne(br)
		if err != nil {
			return out, err
		}
		out = append(out, sym)
	}
	return out, nil
}

// decodeOne walks a single symbol: accumulate bits into a growing code,
// scanning the length-sorted table from its shortest entries for a match
// at the current bit length, and stepping the cursor backward each time
// the current length class is exhausted (§4.4).
func (t *Table) decodeOne(br *bitio.Reader) (byte, error) {
	if len(t.entries) == 0 {
		return 0, fmt.Errorf("huffman: empty table")
	}

	cursor := t.cursor0
	var code uint32
	length := 0

	for {
		code |= uint32(br.Bit()) << uint(length)
		length++
		if br.EOF() {
			return 0, fmt.Errorf("huffman: eof mid-symbol")
		}
		if length > 24 {
			return 0, fmt.Errorf("huffman: code length overflow")
		}

		for cursor >= 0 && t.entries[cursor].length < length {
			cursor--
		}
		for cursor >= 0 && t.entries[cursor].length == length {
			if t.entries[cursor].code == code {
				return t.entries[cursor].symbol, nil
			}
			cursor--
		}
		if cursor < 0 {
			return 0, fmt.Errorf("huffman: cursor exhausted")
		}
	}
}
