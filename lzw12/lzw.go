// Package lzw12 implements the 12-bit-code LZW variant used by ARC/SDA
// "crunch" modes (§4.5), following Welch 1984 with the classical
// code-equals-next-slot self-reference special case.
package lzw12

import (
	"fmt"

	"cbmconvert/bitio"
)

const (
	minCodeWidth = 9
	maxCodeWidth = 12
	tableSize    = 4096
	eos          = 256
	unused       = 257
	firstFree    = 258

	// stackSize is the byte-reversing output stack capacity; §4.5 requires
	// at least 512 bytes.
	stackSize = 1 << 16
)

// StackError reports LZ stack push/pop over/underflow, which §4.5/§9
// requires to be fatal for the whole decode but must be returned, not
// panicked, so the caller can release its resources cleanly.
type StackError struct {
	Push bool // true: push overflow, false: pop underflow
}

func (e *StackError) Error() string {
	if e.Push {
		return "lzw: stack push overflow"
	}
	return "lzw: stack pop underflow"
}

type tableEntry struct {
	prefix int  // -1 if unused
	ext    byte
}

// Decoder holds the LZW string table and output stack for one decode call.
// It is not reentrant across calls, matching the process-wide-scratch
// characterization of §5/§9: callers must construct a fresh Decoder per
// decode.
type Decoder struct {
	table     [tableSize]tableEntry
	nextCode  int
	width     uint
	wtcl      int // codes remaining before the width grows
	stack     [stackSize]byte
	sp        int
	prevCode  int
	prevFirst byte
}

// New creates a Decoder with the table initialized to 258 reserved slots
// (256 literal bytes, 256 EOS, 257 unused) and the first growth threshold
// set per §4.5: the width starts at 9 bits and grows after wtcl codes,
// where wtcl starts at 256 and is decremented by 254 on its first use to
// account for the two reserved codes.
func New() *Decoder {
	d := &Decoder{
		nextCode: firstFree,
		width:    minCodeWidth,
		wtcl:     256 - 254,
		prevCode: -1,
	}
	for i := range d.table {
		d.table[i].prefix = -1
	}
	return d
}

func (d *Decoder) push(b byte) error {
	if d.sp >= len(d.stack) {
		return &StackError{Push: true}
	}
	d.stack[d.sp] = b
	d.sp++
	return nil
}

func (d *Decoder) pop() (byte, error) {
	if d.sp <= 0 {
		return 0, &StackError{Push: false}
	}
	d.sp--
	return d.stack[d.sp], nil
}

// Decode reads codes from br until outLen decompressed bytes are produced
// or the EOS code (256) is read. It returns the decompressed bytes.
func (d *Decoder) Decode(br *bitio.Reader, outLen int) ([]byte, error) {
	out := make([]byte, 0, outLen)

	for len(out) < outLen {
		code := readCode(br, d.width)
		if br.EOF() {
			return out, fmt.Errorf("lzw: eof mid-stream")
		}
		if code == eos {
			break
		}
		if code == unused {
			return out, fmt.Errorf("lzw: unused code encountered")
		}

		if code >= d.nextCode {
			// Self-reference: the table doesn't have this code yet. Per
			// Welch's classical special case this only happens when
			// code == nextCode, meaning "previous string + previous
			// first character".
			if code != d.nextCode || d.prevCode < 0 {
				return out, fmt.Errorf("lzw: invalid code %d (table has %d entries)", code, d.nextCode)
			}
			if err := d.push(d.prevFirst); err != nil {
				return out, err
			}
			if err := d.expand(d.prevCode); err != nil {
				return out, err
			}
		} else {
			if err := d.expand(code); err != nil {
				return out, err
			}
		}

		// Pop the stack into the output, reversing it back into order.
		for d.sp > 0 {
			b, err := d.pop()
			if err != nil {
				return out, err
			}
			out = append(out, b)
		}

		if d.prevCode >= 0 && d.nextCode < tableSize {
			ext := d.prevFirst
			if code < d.nextCode {
				ext = d.firstByteOf(code)
			}
			d.table[d.nextCode] = tableEntry{prefix: d.prevCode, ext: ext}
			d.nextCode++
		}

		d.prevCode = code
		d.prevFirst = d.firstByteOf(code)

		d.wtcl--
		if d.wtcl == 0 && d.width < maxCodeWidth {
			d.width++
			d.wtcl = 1 << d.width
		}
	}

	return out, nil
}

// expand pushes the string represented by code onto the stack, in reverse
// (last character first), by walking the prefix chain.
func (d *Decoder) expand(code int) error {
	for code >= firstFree {
		entry := d.table[code]
		if entry.prefix < 0 {
			return fmt.Errorf("lzw: broken chain at code %d", code)
		}
		if err := d.push(entry.ext); err != nil {
			return err
		}
		code = entry.prefix
	}
	if err := d.push(byte(code)); err != nil {
		return err
	}
	return nil
}

// firstByteOf returns the first decoded byte of the string for code,
// without disturbing the stack (used to seed the next table entry).
func (d *Decoder) firstByteOf(code int) byte {
	for code >= firstFree {
		entry := d.table[code]
		code = entry.prefix
	}
	return byte(code)
}

func readCode(br *bitio.Reader, width uint) int {
	v := 0
	for i := uint(0); i < width; i++ {
		v |= br.Bit() << i
	}
	return v
}
