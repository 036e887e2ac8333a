package lynx

import (
	"bytes"
	"testing"

	"cbmconvert/petscii"
)

func TestWriteReadRoundTrip(t *testing.T) {
	entries := []Entry{
		{
			Name: petscii.New([]byte("A"), petscii.PRG, 0),
			Data: bytes.Repeat([]byte{0x01}, 10),
		},
		{
			Name: petscii.New([]byte("B"), petscii.SEQ, 0),
			Data: bytes.Repeat([]byte("x"), 512),
		},
		{
			Name: petscii.New([]byte("C"), petscii.REL, 4),
			Data: bytes.Repeat([]byte{0x02}, 1024),
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
		if g.Warned != "" {
			t.Errorf("entry %d: unexpected warning %q", i, g.Warned)
		}
		if !bytes.Equal(g.Name.Trimmed(), want.Name.Trimmed()) {
			t.Errorf("entry %d: name = %q, want %q", i, g.Name.Trimmed(), want.Name.Trimmed())
		}
		if g.Name.Type != want.Name.Type {
			t.Errorf("entry %d: type = %v, want %v", i, g.Name.Type, want.Name.Type)
		}
		if g.Name.Type == petscii.REL && g.Name.RecordLength != want.Name.RecordLength {
			t.Errorf("entry %d: record length = %d, want %d", i, g.Name.RecordLength, want.Name.RecordLength)
		}
		if !bytes.Equal(g.Data, want.Data) {
			t.Errorf("entry %d: data mismatch: got %d bytes, want %d bytes", i, len(g.Data), len(want.Data))
		}
	}
}

func TestReadRejectsMissingTag(t *testing.T) {
	if _, err := Read([]byte("not a lynx archive at all, no tag here\r 0 \r")); err == nil {
		t.Fatalf("expected error for missing LYNX tag")
	}
}
