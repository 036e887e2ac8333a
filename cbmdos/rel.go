package cbmdos

import (
	"fmt"

	"cbmconvert/petscii"
)

const (
	maxSideSectors  = 6
	entriesPerSide  = 120
	sideSectorBytes = 256
)

// SideSectorSet holds the (track, sector) of every side-sector block for a
// REL file, in order.
type SideSectorSet struct {
	Blocks []([2]int)
}

// SetupSideSectors allocates and fills the side-sector chain for a REL
// file whose data chain is dataChain (ordered (track,sector) pairs), per
// §4.11.6. 1581 REL files are out of scope for this engine (same
// limitation as the source); Type1581 always fails.
func (img *Image) SetupSideSectors(dirTrack int, dataChain [][2]int, recordLength uint8) (SideSectorSet, error) {
	if img.Geometry.Type == Type1581 {
		return SideSectorSet{}, fmt.Errorf("cbmdos: REL side sectors are not supported on 1581 images")
	}

	ssCount := (len(dataChain) + entriesPerSide - 1) / entriesPerSide
	if ssCount == 0 {
		ssCount = 1
	}
	if ssCount > maxSideSectors {
		return SideSectorSet{}, fmt.Errorf("cbmdos: REL file needs %d side sectors, limit is %d", ssCount, maxSideSectors)
	}

	set := SideSectorSet{}
	lastTrack, lastSector := 0, 0
	for i := 0; i < ssCount; i++ {
		t, s, err := img.FindNextFree(dirTrack, lastTrack, lastSector)
		if err != nil {
			return SideSectorSet{}, fmt.Errorf("cbmdos: %w", ErrNoSpace)
		}
		if err := img.Alloc(dirTrack, t, s); err != nil {
			return SideSectorSet{}, err
		}
		set.Blocks = append(set.Blocks, [2]int{t, s})
		lastTrack, lastSector = t, s
	}

	for i, ts := range set.Blocks {
		block, err := img.GetBlock(ts[0], ts[1])
		if err != nil {
			return SideSectorSet{}, err
		}
		for b := range block {
			block[b] = 0
		}
		if i+1 < len(set.Blocks) {
			next := set.Blocks[i+1]
			block[0], block[1] = byte(next[0]), byte(next[1])
		} else {
			block[0], block[1] = 0, 0
		}
		block[2] = byte(i)
		block[3] = recordLength

		for j, ref := range set.Blocks {
			block[4+j*2], block[4+j*2+1] = byte(ref[0]), byte(ref[1])
		}

		start := i * entriesPerSide
		end := start + entriesPerSide
		if end > len(dataChain) {
			end = len(dataChain)
		}
		for j := start; j < end; j++ {
			off := 16 + (j-start)*2
			block[off], block[off+1] = byte(dataChain[j][0]), byte(dataChain[j][1])
		}
	}

	return set, nil
}

// CheckSideSectors validates a REL file's side-sector chain against
// dataBlocks and the directory entry's recorded block count, per
// §4.11.6.
func (img *Image) CheckSideSectors(dirTrack int, e DirEntry, dataBlockCount int) error {
	if e.Type != petscii.REL {
		return fmt.Errorf("cbmdos: not a REL file")
	}
	chain, err := img.walkChain(e.SideOrInfoTrack, e.SideOrInfoSector, false)
	if err != nil {
		return err
	}
	ssCount := len(chain)

	if dataBlockCount+ssCount != int(e.BlockCount) {
		return fmt.Errorf("cbmdos: recorded block count %d does not match data(%d)+side(%d)", e.BlockCount, dataBlockCount, ssCount)
	}

	for i, ts := range chain {
		block, err := img.GetBlock(ts[0], ts[1])
		if err != nil {
			return err
		}
		if int(block[2]) != i {
			return fmt.Errorf("cbmdos: side sector %d has wrong index %d", i, block[2])
		}
	}

	return nil
}

func (img *Image) freeSideSectors(e DirEntry) error {
	chain, err := img.walkChain(e.SideOrInfoTrack, e.SideOrInfoSector, false)
	if err != nil {
		return err
	}
	for _, ts := range chain {
		if err := img.Free(ts[0], ts[1]); err != nil {
			return err
		}
	}
	return nil
}
