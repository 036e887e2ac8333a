package arc

import (
	"bytes"
	"testing"

	"cbmconvert/petscii"
)

func TestEncodeStoreDecodeRoundTrip(t *testing.T) {
	name := petscii.New([]byte("HELLO"), petscii.PRG, 0)
	data := []byte("the quick brown fox jumps over the lazy dog")

	var buf bytes.Buffer
	if err := EncodeStore(&buf, name, data); err != nil {
		t.Fatalf("EncodeStore: %v", err)
	}
	buf.WriteByte(0) // end marker

	entries, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if !bytes.Equal(e.Data, data) {
		t.Errorf("data = %q, want %q", e.Data, data)
	}
	if !e.ChecksumOK {
		t.Errorf("checksum mismatch: %s", e.ChecksumWarn)
	}
	if !bytes.Equal(e.Name.Trimmed(), name.Trimmed()) {
		t.Errorf("name = %q, want %q", e.Name.Trimmed(), name.Trimmed())
	}
}

func TestEncodePackDecodeRoundTrip(t *testing.T) {
	name := petscii.New([]byte("PACKED"), petscii.SEQ, 0)
	data := bytes.Repeat([]byte{0x41, 0x41, 0x41, 0x42, 0x43}, 20)

	var buf bytes.Buffer
	if err := EncodePack(&buf, name, data); err != nil {
		t.Fatalf("EncodePack: %v", err)
	}
	buf.WriteByte(0)

	entries, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !bytes.Equal(entries[0].Data, data) {
		t.Errorf("data = %v, want %v", entries[0].Data, data)
	}
	if !entries[0].ChecksumOK {
		t.Errorf("checksum mismatch: %s", entries[0].ChecksumWarn)
	}
}

// TestDecodeMode5 exercises a single-pass LZW-crunch (mode 5) entry whose
// line-number header yields skip = 0 (a type-2, non-SDA-loader archive, one
// of the two start bytes DetectStart resolves to offset 0) and whose
// compressed payload is a single 9-bit EOS code, so the decompressed stream
// is empty. The header's declared size is 0, exercising mode 5's "size
// unknown" convention (decodeEntry sizes the output buffer at 65536
// instead).
func TestDecodeMode5(t *testing.T) {
	buildArchive := func(checksum uint16) []byte {
		header := []byte{
			2,        // version
			5,        // mode: Crunch5
			2,        // name length
			'M', '5', // name
			byte(checksum), byte(checksum >> 8), // checksum
			0, 0, 0, // size = 0 (unknown, mode 5 convention)
			1, 0, // blocks
			'P',  // type letter
			0,    // record length (v2)
			0, 0, // date (v2)
		}
		payload := []byte{0x00, 0x01} // single 9-bit code: 256 (EOS)
		return append(header, payload...)
	}

	t.Run("checksum matches", func(t *testing.T) {
		entries, err := Decode(buildArchive(0))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(entries))
		}
		if len(entries[0].Data) != 0 {
			t.Errorf("data = %v, want empty", entries[0].Data)
		}
		if !entries[0].ChecksumOK || entries[0].ChecksumWarn != "" {
			t.Errorf("expected matching checksum, got warn %q", entries[0].ChecksumWarn)
		}
	})

	t.Run("checksum mismatch warns", func(t *testing.T) {
		entries, err := Decode(buildArchive(5))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("got %d entries, want 1", len(entries))
		}
		if entries[0].ChecksumOK || entries[0].ChecksumWarn == "" {
			t.Errorf("expected checksum-mismatch warning, got ChecksumOK=%v warn=%q",
				entries[0].ChecksumOK, entries[0].ChecksumWarn)
		}
	})
}

func TestDecodeMultipleEntries(t *testing.T) {
	n1 := petscii.New([]byte("ONE"), petscii.PRG, 0)
	n2 := petscii.New([]byte("TWO"), petscii.SEQ, 0)
	d1 := []byte{1, 2, 3}
	d2 := []byte("second entry payload")

	var buf bytes.Buffer
	if err := EncodeStore(&buf, n1, d1); err != nil {
		t.Fatalf("EncodeStore: %v", err)
	}
	if err := EncodeStore(&buf, n2, d2); err != nil {
		t.Fatalf("EncodeStore: %v", err)
	}
	buf.WriteByte(0)

	entries, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if !bytes.Equal(entries[0].Data, d1) || !bytes.Equal(entries[1].Data, d2) {
		t.Errorf("entry payloads don't match inputs")
	}
}
