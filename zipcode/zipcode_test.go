package zipcode

import (
	"bytes"
	"testing"

	"cbmconvert/cbmdos"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	geo := cbmdos.Geometry1541()
	img := cbmdos.New(geo)
	if err := img.Format(cbmdos.DiskTitle, [2]byte{'6', '4'}); err != nil {
		t.Fatalf("Format: %v", err)
	}

	// Give a handful of sectors distinct, non-uniform content so the
	// encoder exercises the raw and RLE paths, not just the all-zero
	// fill path that an untouched formatted image would hit everywhere.
	for _, ts := range [][2]int{{1, 0}, {10, 3}, {20, 5}, {30, 2}} {
		block, err := img.GetBlock(ts[0], ts[1])
		if err != nil {
			t.Fatalf("GetBlock(%d,%d): %v", ts[0], ts[1], err)
		}
		for i := range block {
			block[i] = byte(i ^ ts[0])
		}
	}

	files, err := Encode(img, [2]byte{'6', '4'})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, id, err := Decode(files)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if id != [2]byte{'6', '4'} {
		t.Errorf("id = %v, want 64", id)
	}
	if !bytes.Equal(got.Buffer, img.Buffer) {
		t.Errorf("round-tripped image does not match original")
	}
}

func TestTrackGroup(t *testing.T) {
	cases := []struct {
		track, want int
	}{
		{1, 0}, {8, 0}, {9, 1}, {16, 1}, {17, 2}, {25, 2}, {26, 3}, {35, 3},
	}
	for _, c := range cases {
		if got := trackGroup(c.track); got != c.want {
			t.Errorf("trackGroup(%d) = %d, want %d", c.track, got, c.want)
		}
	}
}

func TestEncodeSectorFill(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = 0x42
	}
	got := encodeSector(5, 3, data)
	want := []byte{5 | 0x40, 3, 0x42}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeSector fill = %v, want %v", got, want)
	}
}

func TestDecodeRejectsWrongTrack(t *testing.T) {
	files := [4][]byte{
		{0, 0, 0, 0, 99, 0}, // header then a bogus (track,sector) pair
	}
	if _, _, err := Decode(files); err == nil {
		t.Errorf("expected an error decoding a mismatched track")
	}
}
