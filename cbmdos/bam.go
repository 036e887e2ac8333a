package cbmdos

import "fmt"

// bamCell locates the free-count byte and bitmap bytes for one track's BAM
// entry. bitmapLen is the number of bytes of bitmap (enough bits to cover
// every sector on that track).
type bamCell struct {
	track, sector int // which disk block holds this track's BAM entry
	countOff      int // offset of the 1-byte free counter within that block
	bitmapOff     int // offset of the first bitmap byte
	bitmapLen     int
}

func (img *Image) bamCellFor(track int) (bamCell, error) {
	switch img.Geometry.Type {
	case Type1541:
		if track < 1 || track > 35 {
			return bamCell{}, fmt.Errorf("cbmdos: track %d out of range for 1541 BAM", track)
		}
		return bamCell{track: 18, sector: 0, countOff: 4 + (track-1)*4, bitmapOff: 4 + (track-1)*4 + 1, bitmapLen: 3}, nil

	case Type1571:
		if track >= 1 && track <= 35 {
			return bamCell{track: 18, sector: 0, countOff: 4 + (track-1)*4, bitmapOff: 4 + (track-1)*4 + 1, bitmapLen: 3}, nil
		}
		if track >= 36 && track <= 70 {
			idx := track - 36
			return bamCell{track: 18, sector: 0, countOff: 0xDC + idx + 1, bitmapOff: -1, bitmapLen: 3}, nil // bitmapOff resolved against track 53 block by caller
		}
		return bamCell{}, fmt.Errorf("cbmdos: track %d out of range for 1571 BAM", track)

	case Type1581:
		if track >= 1 && track <= 40 {
			return bamCell{track: 40, sector: 1, countOff: 0x10 + (track-1)*6, bitmapOff: 0x10 + (track-1)*6 + 1, bitmapLen: 5}, nil
		}
		if track >= 41 && track <= 80 {
			idx := track - 41
			return bamCell{track: 40, sector: 2, countOff: 0x10 + idx*6, bitmapOff: 0x10 + idx*6 + 1, bitmapLen: 5}, nil
		}
		return bamCell{}, fmt.Errorf("cbmdos: track %d out of range for 1581 BAM", track)

	default:
		return bamCell{}, fmt.Errorf("cbmdos: unknown image type")
	}
}

// track53Bitmap returns the 35*3-byte back-half bitmap block used by 1571
// for tracks 36..70, indexed starting at offset 0.
func (img *Image) track53Bitmap() ([]byte, error) {
	return img.GetBlock(53, 0)
}

func (img *Image) bitmapBytes(track int) ([]byte, int, error) {
	cell, err := img.bamCellFor(track)
	if err != nil {
		return nil, 0, err
	}
	if img.Geometry.Type == Type1571 && track >= 36 {
		blk, err := img.track53Bitmap()
		if err != nil {
			return nil, 0, err
		}
		idx := (track - 36) * 3
		return blk, idx, nil
	}
	blk, err := img.GetBlock(cell.track, cell.sector)
	if err != nil {
		return nil, 0, err
	}
	return blk, cell.bitmapOff, nil
}

func (img *Image) countByte(track int) (block []byte, offset int, err error) {
	cell, err := img.bamCellFor(track)
	if err != nil {
		return nil, 0, err
	}
	blk, err := img.GetBlock(cell.track, cell.sector)
	if err != nil {
		return nil, 0, err
	}
	return blk, cell.countOff, nil
}

// IsFree reports whether (track, sector) is marked free in the BAM, per
// §4.11.3. For a 1581 track outside the directory's active partition
// range, it always reports false.
func (img *Image) IsFree(dirTrack, track, sector int) (bool, error) {
	bottom, top := img.activePartition(dirTrack)
	if track < bottom || track > top {
		return false, nil
	}

	bitmap, off, err := img.bitmapBytes(track)
	if err != nil {
		return false, err
	}
	byteIdx := off + sector/8
	bit := uint(sector % 8)
	if byteIdx >= len(bitmap) {
		return false, fmt.Errorf("cbmdos: sector %d out of bitmap range on track %d", sector, track)
	}
	return bitmap[byteIdx]&(1<<bit) != 0, nil
}

func (img *Image) setFree(track, sector int, free bool) error {
	bitmap, off, err := img.bitmapBytes(track)
	if err != nil {
		return err
	}
	byteIdx := off + sector/8
	bit := uint(sector % 8)
	if byteIdx >= len(bitmap) {
		return fmt.Errorf("cbmdos: sector %d out of bitmap range on track %d", sector, track)
	}
	if free {
		bitmap[byteIdx] |= 1 << bit
	} else {
		bitmap[byteIdx] &^= 1 << bit
	}
	return nil
}

// Alloc marks (track, sector) allocated. It fails if the block is already
// allocated, per §4.11.3.
func (img *Image) Alloc(dirTrack, track, sector int) error {
	free, err := img.IsFree(dirTrack, track, sector)
	if err != nil {
		return err
	}
	if !free {
		return fmt.Errorf("cbmdos: block %d/%d already allocated", track, sector)
	}
	if err := img.setFree(track, sector, false); err != nil {
		return err
	}
	cblock, coff, err := img.countByte(track)
	if err != nil {
		return err
	}
	if cblock[coff] > 0 {
		cblock[coff]--
	}
	return nil
}

// Free marks (track, sector) free.
func (img *Image) Free(track, sector int) error {
	free, err := img.IsFree(0, track, sector)
	if err != nil {
		return err
	}
	if free {
		return nil
	}
	if err := img.setFree(track, sector, true); err != nil {
		return err
	}
	cblock, coff, err := img.countByte(track)
	if err != nil {
		return err
	}
	cblock[coff]++
	return nil
}

// FindNextFree searches dirTrack's active partition for a free block, with
// sectors stepped by the track's interleave, modulo its sector count. When
// track lies inside the partition it tries track itself (from
// sector+interleave), then every track above it up to the top, then every
// track below it down to the bottom; the directory track is not kept for
// last but is tried wherever that sweep reaches it, first of all when
// track is the directory track. Only when track lies outside the partition
// does the search run from the directory track toward each edge and then
// try the directory track itself.
func (img *Image) FindNextFree(dirTrack, track, sector int) (int, int, error) {
	bottom, top := img.activePartition(dirTrack)

	try := func(t, s int) (int, int, bool) {
		sp := img.Geometry.SectorsPerTrack(t)
		if sp == 0 {
			return 0, 0, false
		}
		step := img.Geometry.Interleave(t)
		if step <= 0 {
			step = 1
		}
		step %= sp
		if step == 0 {
			step = 1
		}
		cur := s % sp
		for i := 0; i < sp; i++ {
			free, err := img.IsFree(dirTrack, t, cur)
			if err == nil && free {
				return t, cur, true
			}
			cur = (cur + step) % sp
		}
		return 0, 0, false
	}

	if track >= bottom && track <= top {
		if t, s, ok := try(track, sector+img.Geometry.Interleave(track)); ok {
			return t, s, nil
		}
		for t := track + 1; t <= top; t++ {
			if t, s, ok := try(t, 0); ok {
				return t, s, nil
			}
		}
		for t := track - 1; t >= bottom; t-- {
			if t, s, ok := try(t, 0); ok {
				return t, s, nil
			}
		}
	}

	for t := dirTrack + 1; t <= top; t++ {
		if t, s, ok := try(t, 0); ok {
			return t, s, nil
		}
	}
	for t := dirTrack - 1; t >= bottom; t-- {
		if t, s, ok := try(t, 0); ok {
			return t, s, nil
		}
	}
	if t, s, ok := try(dirTrack, 0); ok {
		return t, s, nil
	}

	return 0, 0, fmt.Errorf("cbmdos: %w", ErrNoSpace)
}

// ErrNoSpace is returned when a mutating operation cannot find or reserve
// the space it needs.
var ErrNoSpace = fmt.Errorf("disk full")

// ErrFileExists is returned by the write operations when a directory
// entry with the requested name is already present.
var ErrFileExists = fmt.Errorf("file already exists")

// BlocksFree sums the per-track free counters across the active partition
// for dirTrack, leaving out the directory track's own counter, per §4.11.3.
func (img *Image) BlocksFree(dirTrack int) (int, error) {
	bottom, top := img.activePartition(dirTrack)
	total := 0
	for t := bottom; t <= top; t++ {
		if t == dirTrack {
			continue
		}
		blk, off, err := img.countByte(t)
		if err != nil {
			return 0, err
		}
		total += int(blk[off])
	}
	return total, nil
}

// BAMSnapshot is a value-type copy of every BAM-bearing block, used to
// roll back a failed mutating operation (§4.11.3, §9).
type BAMSnapshot struct {
	blocks map[[2]int][]byte
}

// BackupBAM copies every BAM block for this image type.
func (img *Image) BackupBAM() (BAMSnapshot, error) {
	snap := BAMSnapshot{blocks: map[[2]int][]byte{}}
	for _, ts := range img.bamBlockList() {
		blk, err := img.GetBlock(ts[0], ts[1])
		if err != nil {
			return BAMSnapshot{}, err
		}
		cp := make([]byte, len(blk))
		copy(cp, blk)
		snap.blocks[ts] = cp
	}
	return snap, nil
}

// RestoreBAM copies the snapshot back over the live BAM blocks.
func (img *Image) RestoreBAM(snap BAMSnapshot) error {
	for ts, data := range snap.blocks {
		blk, err := img.GetBlock(ts[0], ts[1])
		if err != nil {
			return err
		}
		copy(blk, data)
	}
	return nil
}

func (img *Image) bamBlockList() [][2]int {
	switch img.Geometry.Type {
	case Type1541:
		return [][2]int{{18, 0}}
	case Type1571:
		return [][2]int{{18, 0}, {53, 0}}
	case Type1581:
		return [][2]int{{40, 0}, {40, 1}, {40, 2}}
	default:
		return nil
	}
}

func popcount3(b []byte) int {
	n := 0
	for _, v := range b {
		for v != 0 {
			n += int(v & 1)
			v >>= 1
		}
	}
	return n
}
