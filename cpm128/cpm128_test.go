package cpm128

import (
	"bytes"
	"testing"

	"cbmconvert/cbmdos"
)

func newTestImage(t *testing.T) *Image {
	t.Helper()
	disk := cbmdos.New(cbmdos.Geometry1541())
	img := Open(disk, For1541())
	if err := img.Format(); err != nil {
		t.Fatalf("Format: %v", err)
	}
	return img
}

func TestWriteReadFileRoundTrip(t *testing.T) {
	img := newTestImage(t)

	name := [8]byte{'T', 'E', 'S', 'T', ' ', ' ', ' ', ' '}
	suffix := [3]byte{'T', 'X', 'T'}
	payload := bytes.Repeat([]byte("hello cpm128 "), 50)

	if err := img.WriteFile(0, name, suffix, payload); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := img.ReadFile(name, suffix)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round-tripped payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestWriteFileRejectsDuplicate(t *testing.T) {
	img := newTestImage(t)
	name := [8]byte{'D', 'U', 'P', ' ', ' ', ' ', ' ', ' '}
	suffix := [3]byte{' ', ' ', ' '}

	if err := img.WriteFile(0, name, suffix, []byte("one")); err != nil {
		t.Fatalf("first WriteFile: %v", err)
	}
	if err := img.WriteFile(0, name, suffix, []byte("two")); err == nil {
		t.Errorf("expected an error writing a duplicate name")
	}
}

func TestTransTableCoversUsableSectors(t *testing.T) {
	g := For1541()
	table := g.Build()
	if len(table) != g.UsableSectors {
		t.Fatalf("Build() produced %d entries, want %d", len(table), g.UsableSectors)
	}
}
