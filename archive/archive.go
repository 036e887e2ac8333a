// Package archive implements the in-memory ordered container of Commodore
// files shared by the Lynx, T64, C2N and ARC codecs (§4.1).
package archive

import (
	"fmt"

	"cbmconvert/petscii"
)

// Status mirrors the archive-level write outcomes of §7.
type Status int

const (
	OK Status = iota
	NoSpace
	Fail
)

// Entry is one archived file: its Filename and an owned copy of its bytes.
type Entry struct {
	Name petscii.Filename
	Data []byte
}

// Length returns the payload length in bytes.
func (e Entry) Length() int {
	return len(e.Data)
}

// Archive is an ordered, duplicate-free collection of Entry values.
// Insertion order is preserved, matching the Lynx/C2N emission order.
type Archive struct {
	entries []Entry
}

// New returns an empty Archive.
func New() *Archive {
	return &Archive{}
}

// Entries returns the archive's entries in insertion order. The returned
// slice must not be mutated by the caller.
func (a *Archive) Entries() []Entry {
	return a.entries
}

// Len returns the number of entries currently held.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Write appends a new entry owning a copy of data, after rejecting
// unsupported file types and duplicate names (§4.1).
func (a *Archive) Write(name petscii.Filename, data []byte) error {
	switch name.Type {
	case petscii.DEL, petscii.SEQ, petscii.PRG, petscii.USR, petscii.REL:
		// supported
	default:
		return fmt.Errorf("archive: unsupported file type %s", name.Type)
	}

	for _, e := range a.entries {
		if e.Name.Equal(name) {
			return fmt.Errorf("archive: %w", ErrFileExists)
		}
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	a.entries = append(a.entries, Entry{Name: name, Data: cp})
	return nil
}

// Delete releases all entries, in FIFO order, per §4.1.
func (a *Archive) Delete() {
	a.entries = nil
}

// ErrFileExists is returned by Write when an entry with an equal Filename
// is already present.
var ErrFileExists = fmt.Errorf("file already exists in archive")
