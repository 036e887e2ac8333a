package cbmdos

import "fmt"

const (
	blockSize    = 256
	dataPerBlock = 254
)

// DiskTitle is the default 16-byte PETSCII disk title stamped by Format,
// per Testable Property #1.
var DiskTitle = [16]byte{
	'c', 'b', 'm', 'c', 'o', 'n', 'v', 'e', 'r', 't',
	0xA0, 0xA0, 0xA0, 0xA0, 0xA0, 0xA0,
}

// Image owns the in-memory sector buffer and metadata for one CBM DOS
// disk, per §3.
type Image struct {
	Geometry Geometry
	Buffer   []byte // geometry.Blocks() * 256 bytes
	HostName string

	// 1581 partitions: for 1541/1571 these are a single logical partition
	// spanning the whole disk.
	partBottoms []byte
	partTops    []byte
	partParents []byte
}

// New allocates a zeroed Image of the given geometry.
func New(g Geometry) *Image {
	img := &Image{
		Geometry: g,
		Buffer:   make([]byte, g.Blocks()*blockSize),
	}
	img.partBottoms = make([]byte, 80)
	img.partTops = make([]byte, 80)
	img.partParents = make([]byte, 80)
	for t := 0; t < 80; t++ {
		img.partBottoms[t] = 1
		img.partTops[t] = byte(g.Tracks)
	}
	return img
}

// Open wraps an existing raw sector buffer (e.g. read from a host .d64
// file) as an Image of the given geometry. len(buf) must equal
// g.Blocks()*256.
func Open(g Geometry, buf []byte, hostName string) (*Image, error) {
	want := g.Blocks() * blockSize
	if len(buf) != want {
		return nil, fmt.Errorf("cbmdos: image size %d does not match %s geometry (want %d)", len(buf), g.Type, want)
	}
	img := New(g)
	copy(img.Buffer, buf)
	img.HostName = hostName
	return img, nil
}

// GetBlock returns the 256-byte slice for (track, sector), sharing storage
// with the Image's buffer so writes through it mutate the image, per
// §4.11.2.
func (img *Image) GetBlock(track, sector int) ([]byte, error) {
	if track < 1 || track > img.Geometry.Tracks {
		return nil, fmt.Errorf("cbmdos: illegal track %d", track)
	}
	sp := img.Geometry.SectorsPerTrack(track)
	if sector < 0 || sector >= sp {
		return nil, fmt.Errorf("cbmdos: illegal sector %d on track %d", sector, track)
	}
	linear := (img.Geometry.TrackOffset(track) + sector) * blockSize
	return img.Buffer[linear : linear+blockSize], nil
}

// activePartition returns [bottom, top] track bounds for the partition
// whose directory track is dirTrack (1541/1571: always the whole disk).
func (img *Image) activePartition(dirTrack int) (int, int) {
	if img.Geometry.Type != Type1581 {
		return 1, img.Geometry.Tracks
	}
	idx := dirTrack - 1
	if idx < 0 || idx >= len(img.partBottoms) {
		return 1, img.Geometry.Tracks
	}
	bottom := int(img.partBottoms[idx])
	top := int(img.partTops[idx])
	if bottom == 0 || top == 0 {
		return 1, img.Geometry.Tracks
	}
	return bottom, top
}

// Format resets the image to an empty disk with the given title and two
// PETSCII ID bytes (§8 Testable Property #1). This is an expansion beyond
// spec.md's explicit operation list, required to stand up a fresh image
// for the seed scenarios.
func (img *Image) Format(title [16]byte, id [2]byte) error {
	for i := range img.Buffer {
		img.Buffer[i] = 0
	}

	switch img.Geometry.Type {
	case Type1541, Type1571:
		if err := img.formatBAM1541(title, id); err != nil {
			return err
		}
	case Type1581:
		if err := img.format1581(title, id); err != nil {
			return err
		}
	}
	return img.writeEmptyDirectoryBlock()
}

func (img *Image) writeEmptyDirectoryBlock() error {
	first, err := img.GetBlock(img.Geometry.DirTrack, firstDirSector(img.Geometry))
	if err != nil {
		return err
	}
	first[0] = 0
	first[1] = 0xFF
	return nil
}

func firstDirSector(g Geometry) int {
	if g.Type == Type1581 {
		return 3
	}
	return 1
}
