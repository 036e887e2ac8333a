package cbmdos

import (
	"bytes"
	"testing"

	"cbmconvert/petscii"
)

// TestFormatEmpty1541 checks Testable Property #1: a freshly formatted
// 1541 image has 664 blocks free, 17 of them on the directory track
// itself, format ID 'A', and the default disk title stamped into the BAM.
func TestFormatEmpty1541(t *testing.T) {
	img := New(Geometry1541())
	if err := img.Format(DiskTitle, [2]byte{'2', 'A'}); err != nil {
		t.Fatalf("Format: %v", err)
	}

	free, err := img.BlocksFree(18)
	if err != nil {
		t.Fatalf("BlocksFree: %v", err)
	}
	if free != 664 {
		t.Errorf("blocks free = %d, want 664", free)
	}

	block, off, err := img.countByte(18)
	if err != nil {
		t.Fatalf("countByte: %v", err)
	}
	if got := int(block[off]); got != 17 {
		t.Errorf("directory track free count = %d, want 17", got)
	}

	if img.Geometry.FormatID != 'A' {
		t.Errorf("format ID = %q, want 'A'", img.Geometry.FormatID)
	}

	bam, err := img.GetBlock(18, 0)
	if err != nil {
		t.Fatalf("GetBlock(18,0): %v", err)
	}
	if !bytes.Equal(bam[0x90:0xA0], DiskTitle[:]) {
		t.Errorf("disk title = %v, want %v", bam[0x90:0xA0], DiskTitle[:])
	}
}

// TestWriteReadFilePRG exercises a plain PRG round trip: the bytes come
// back unchanged and the directory entry records a single block.
func TestWriteReadFilePRG(t *testing.T) {
	img := New(Geometry1541())
	if err := img.Format(DiskTitle, [2]byte{'2', 'A'}); err != nil {
		t.Fatalf("Format: %v", err)
	}

	fn := petscii.New([]byte("TEST"), petscii.PRG, 0)
	data := []byte{1, 2, 3}
	if err := img.WriteFile(18, fn, data); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	gotName, gotData, err := img.ReadFile(18, fn.Name)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(gotData, data) {
		t.Errorf("data = %v, want %v", gotData, data)
	}
	if gotName.Type != petscii.PRG {
		t.Errorf("type = %v, want PRG", gotName.Type)
	}

	entry, found, err := img.GetDirEnt(18, fn.Name, DontCreate)
	if err != nil {
		t.Fatalf("GetDirEnt: %v", err)
	}
	if !found {
		t.Fatalf("directory entry not found")
	}
	if entry.BlockCount != 1 {
		t.Errorf("block count = %d, want 1", entry.BlockCount)
	}
}

// TestWriteRELSideSectors exercises a REL file spanning two side sectors:
// 200 data blocks of 254 bytes each, record length 4. ss_count must be
// ceil(200/120) = 2, the recorded block count must be 202 (data + side
// sectors), and CheckSideSectors must accept the result.
func TestWriteRELSideSectors(t *testing.T) {
	img := New(Geometry1541())
	if err := img.Format(DiskTitle, [2]byte{'2', 'A'}); err != nil {
		t.Fatalf("Format: %v", err)
	}

	fn := petscii.New([]byte("R"), petscii.REL, 4)
	data := bytes.Repeat([]byte{0x42}, 200*254)
	if err := img.WriteREL(18, fn, data); err != nil {
		t.Fatalf("WriteREL: %v", err)
	}

	entry, found, err := img.GetDirEnt(18, fn.Name, DontCreate)
	if err != nil {
		t.Fatalf("GetDirEnt: %v", err)
	}
	if !found {
		t.Fatalf("directory entry not found")
	}
	if entry.BlockCount != 202 {
		t.Errorf("block count = %d, want 202", entry.BlockCount)
	}

	ssChain, err := img.walkChain(entry.SideOrInfoTrack, entry.SideOrInfoSector, false)
	if err != nil {
		t.Fatalf("walkChain(side sectors): %v", err)
	}
	if len(ssChain) != 2 {
		t.Errorf("side sector count = %d, want 2", len(ssChain))
	}

	if err := img.CheckSideSectors(18, entry, 200); err != nil {
		t.Errorf("CheckSideSectors: %v", err)
	}

	gotName, gotData, err := img.ReadREL(18, fn.Name)
	if err != nil {
		t.Fatalf("ReadREL: %v", err)
	}
	if gotName.RecordLength != 4 {
		t.Errorf("record length = %d, want 4", gotName.RecordLength)
	}
	if !bytes.Equal(gotData, data) {
		t.Errorf("data mismatch: got %d bytes, want %d bytes", len(gotData), len(data))
	}
}
