package cbmdos

import "fmt"

// walkChain follows the (next_track, next_sector) links of an inode chain
// starting at (track, sector), returning the ordered list of visited
// blocks. It bounds iteration by the total block count of the image to
// detect cycles (§4.11.4), and optionally requires every visited block to
// already be marked allocated (used by map_inode-style diagnostics).
func (img *Image) walkChain(track, sector int, requireAllocated bool) ([][2]int, error) {
	if track == 0 {
		return nil, nil
	}

	var chain [][2]int
	limit := img.Geometry.Blocks()
	t, s := track, sector

	for i := 0; i < limit+1; i++ {
		if i == limit {
			return chain, fmt.Errorf("cbmdos: inode chain cycle detected at %d/%d", t, s)
		}
		if requireAllocated {
			free, err := img.IsFree(0, t, s)
			if err != nil {
				return chain, err
			}
			if free {
				return chain, fmt.Errorf("cbmdos: chain references free block %d/%d", t, s)
			}
		}
		chain = append(chain, [2]int{t, s})

		block, err := img.GetBlock(t, s)
		if err != nil {
			return chain, err
		}
		next, nextSector := int(block[0]), int(block[1])
		if next == 0 {
			break
		}
		t, s = next, nextSector
	}

	return chain, nil
}

// ReadInode walks the chain starting at (track, sector) and returns its
// concatenated data bytes, per §4.11.4: 254 bytes from every interior
// block, plus (terminal sector byte - 1) bytes from the terminal block.
func (img *Image) ReadInode(track, sector int) ([]byte, error) {
	if track == 0 {
		return nil, nil
	}

	var out []byte
	t, s := track, sector
	limit := img.Geometry.Blocks()

	for i := 0; i < limit+1; i++ {
		if i == limit {
			return out, fmt.Errorf("cbmdos: inode chain cycle detected at %d/%d", t, s)
		}
		block, err := img.GetBlock(t, s)
		if err != nil {
			return out, err
		}
		next, nextSector := int(block[0]), int(block[1])
		if next == 0 {
			if nextSector < 1 {
				return out, fmt.Errorf("cbmdos: terminal block has invalid used-byte count %d", nextSector)
			}
			out = append(out, block[2:2+nextSector-1]...)
			break
		}
		out = append(out, block[2:2+dataPerBlock]...)
		t, s = next, nextSector
	}

	return out, nil
}

// WriteInode allocates a fresh chain of blocks for data starting from a
// free block found by FindNextFree, writing 254-byte chunks per block and
// terminating the last block with (0, remaining+1), per §4.11.4. It
// returns the chain's first (track, sector) and total block count.
func (img *Image) WriteInode(dirTrack, startTrack, startSector int, data []byte) (int, int, int, error) {
	t, s, err := img.FindNextFree(dirTrack, startTrack, startSector)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("cbmdos: %w", ErrNoSpace)
	}
	firstTrack, firstSector := t, s

	pos := 0
	blocks := 0

	for {
		if err := img.Alloc(dirTrack, t, s); err != nil {
			return 0, 0, 0, err
		}
		blocks++

		block, err := img.GetBlock(t, s)
		if err != nil {
			return 0, 0, 0, err
		}

		remaining := len(data) - pos
		if remaining > dataPerBlock {
			nt, ns, err := img.FindNextFree(dirTrack, t, s)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("cbmdos: %w", ErrNoSpace)
			}
			setBlockLink(block, nt, ns)
			copy(block[2:2+dataPerBlock], data[pos:pos+dataPerBlock])
			pos += dataPerBlock
			t, s = nt, ns
			continue
		}

		setBlockLink(block, 0, remaining+1)
		copy(block[2:2+remaining], data[pos:pos+remaining])
		pos += remaining
		break
	}

	return firstTrack, firstSector, blocks, nil
}
