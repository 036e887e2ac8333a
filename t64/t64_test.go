package t64

import (
	"bytes"
	"testing"

	"cbmconvert/petscii"
)

func TestWriteReadRoundTrip(t *testing.T) {
	entries := []Entry{
		{
			Name:        petscii.New([]byte("ONE"), petscii.PRG, 0),
			LoadAddress: 0x0801,
			Data:        []byte{1, 2, 3, 4, 5},
		},
		{
			Name:        petscii.New([]byte("TWO"), petscii.SEQ, 0),
			LoadAddress: 0x1000,
			Data:        []byte("some sequential data"),
		},
		{
			Name:        petscii.New([]byte("THREE"), petscii.USR, 0),
			LoadAddress: 0xC000,
			Data:        []byte{0xAA, 0xBB},
		},
	}

	out, err := Write(entries)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}

	for i, want := range entries {
		g := got[i]
		if !bytes.Equal(g.Name.Trimmed(), want.Name.Trimmed()) {
			t.Errorf("entry %d: name = %q, want %q", i, g.Name.Trimmed(), want.Name.Trimmed())
		}
		if g.Name.Type != want.Name.Type {
			t.Errorf("entry %d: type = %v, want %v", i, g.Name.Type, want.Name.Type)
		}
		if g.LoadAddress != want.LoadAddress {
			t.Errorf("entry %d: load address = %#x, want %#x", i, g.LoadAddress, want.LoadAddress)
		}
		if !bytes.Equal(g.Data, want.Data) {
			t.Errorf("entry %d: data = %v, want %v", i, g.Data, want.Data)
		}
	}
}

func TestReadRejectsBadSignature(t *testing.T) {
	buf := make([]byte, headerSize)
	copy(buf, "NOT A T64 FILE")
	if _, err := Read(buf); err == nil {
		t.Fatalf("expected error for unrecognized signature")
	}
}
