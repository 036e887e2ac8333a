// Package storage provides the low-level little-endian byte, word and
// triple-byte readers shared by every container codec in this module.
package storage

import (
	"io"

	"github.com/pkg/errors"
)

// Reader wraps an io.Reader with the fixed-width little-endian reads that
// Commodore container formats are built from, plus sticky EOF tracking so
// callers can finish a decode loop and check for truncation once at the end
// instead of threading an error return through every field read.
type Reader struct {
	r   io.Reader
	eof bool
}

// NewReader wraps r for sequential little-endian reads.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read implements io.Reader so a *Reader can be passed to encoding/binary
// and bufio directly.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil {
		r.eof = true
	}
	return n, err
}

// EOF reports whether any read on this Reader has already failed.
func (r *Reader) EOF() bool {
	return r.eof
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errors.Wrap(err, "read byte")
	}
	return buf[0], nil
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrapf(err, "read %d bytes", n)
	}
	return buf, nil
}

// ReadShort reads a little-endian 16-bit word.
func (r *Reader) ReadShort() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// ReadTriple reads a little-endian 24-bit value (a "tbyte").
func (r *Reader) ReadTriple() (uint32, error) {
	b, err := r.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

// ReadLong reads a little-endian 32-bit value.
func (r *Reader) ReadLong() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// BytesToWord converts two little-endian bytes to a uint16.
func BytesToWord(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

// BytesToTriple converts three little-endian bytes to a uint32.
func BytesToTriple(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// DivRoundUp computes ceil(a/b) for non-negative a and positive b.
func DivRoundUp(a, b int) int {
	return (a + b - 1) / b
}
