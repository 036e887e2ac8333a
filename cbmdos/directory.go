package cbmdos

import (
	"fmt"

	"cbmconvert/petscii"
)

const (
	slotSize         = 32
	slotsPerBlock    = 8
	entryOffsetInSlot = 2 // type byte starts here; bytes[0:2] are the block-link, valid only in slot 0
)

// DirEntPolicy selects the miss behavior of GetDirEnt, per §4.11.5/§6.
type DirEntPolicy int

const (
	DontCreate DirEntPolicy = iota
	OnlyCreate
	FindOrCreate
)

// DirEntry is one 30-byte CBM DOS directory entry (§3), located at a
// specific (block track/sector, slot index) within the directory chain.
type DirEntry struct {
	Track, Sector int // directory block holding this entry
	Slot          int

	Type                petscii.FileType
	Closed              bool // high bit of the type byte
	Locked              bool // bit 6
	FirstTrack, FirstSector int
	Name                [16]byte
	SideOrInfoTrack, SideOrInfoSector int
	RecordLength        uint8 // REL record length, or GEOS VLIR flag (0/1) reused as byte
	IsVLIR              bool
	GeosTimestamp       [6]byte
	GeosType            uint8
	BlockCount          uint16
}

func slotBytes(block []byte, slot int) []byte {
	start := slot * slotSize
	return block[start : start+slotSize]
}

func (img *Image) readEntryAt(track, sector, slot int) (DirEntry, error) {
	block, err := img.GetBlock(track, sector)
	if err != nil {
		return DirEntry{}, err
	}
	s := slotBytes(block, slot)

	typeByte := s[entryOffsetInSlot]
	e := DirEntry{
		Track: track, Sector: sector, Slot: slot,
		Type:         petscii.FileType(typeByte & 0x0F),
		Closed:       typeByte&0x80 != 0,
		Locked:       typeByte&0x40 != 0,
		FirstTrack:   int(s[entryOffsetInSlot+1]),
		FirstSector:  int(s[entryOffsetInSlot+2]),
		RecordLength: s[entryOffsetInSlot+21],
		BlockCount:   uint16(s[entryOffsetInSlot+28]) | uint16(s[entryOffsetInSlot+29])<<8,
	}
	copy(e.Name[:], s[entryOffsetInSlot+3:entryOffsetInSlot+19])
	e.SideOrInfoTrack = int(s[entryOffsetInSlot+19])
	e.SideOrInfoSector = int(s[entryOffsetInSlot+20])
	copy(e.GeosTimestamp[:], s[entryOffsetInSlot+22:entryOffsetInSlot+28])
	e.GeosType = typeByte >> 4 // GEOS uses the type byte's high nibble for its own subtype when type bits are in [DEL,REL)
	e.IsVLIR = e.RecordLength == 1 && e.GeosType != 0
	return e, nil
}

func (img *Image) writeEntryAt(e DirEntry) error {
	block, err := img.GetBlock(e.Track, e.Sector)
	if err != nil {
		return err
	}
	s := slotBytes(block, e.Slot)

	typeByte := byte(e.Type) & 0x0F
	if e.Closed {
		typeByte |= 0x80
	}
	if e.Locked {
		typeByte |= 0x40
	}
	s[entryOffsetInSlot] = typeByte
	s[entryOffsetInSlot+1] = byte(e.FirstTrack)
	s[entryOffsetInSlot+2] = byte(e.FirstSector)
	copy(s[entryOffsetInSlot+3:entryOffsetInSlot+19], e.Name[:])
	s[entryOffsetInSlot+19] = byte(e.SideOrInfoTrack)
	s[entryOffsetInSlot+20] = byte(e.SideOrInfoSector)
	s[entryOffsetInSlot+21] = e.RecordLength
	copy(s[entryOffsetInSlot+22:entryOffsetInSlot+28], e.GeosTimestamp[:])
	s[entryOffsetInSlot+28] = byte(e.BlockCount)
	s[entryOffsetInSlot+29] = byte(e.BlockCount >> 8)
	return nil
}

// clearEntryAt zeroes a whole directory slot, marking it free; in slot 0
// the first two bytes, the block link, are kept.
func (img *Image) clearEntryAt(track, sector, slot int) error {
	block, err := img.GetBlock(track, sector)
	if err != nil {
		return err
	}
	s := slotBytes(block, slot)
	for i := range s {
		if slot == 0 && i < 2 {
			continue // preserve the block link
		}
		s[i] = 0
	}
	return nil
}

func blockLink(block []byte) (next, sector int) {
	return int(block[0]), int(block[1])
}

func setBlockLink(block []byte, next, sector int) {
	block[0] = byte(next)
	block[1] = byte(sector)
}

// GetDirEnt scans the directory chain starting at (dirTrack, firstDirSector)
// for an entry whose name matches. On a miss, policy governs whether a new
// slot is allocated, per §4.11.5.
func (img *Image) GetDirEnt(dirTrack int, name [16]byte, policy DirEntPolicy) (DirEntry, bool, error) {
	track, sector := dirTrack, firstDirSector(img.Geometry)
	var firstFree *DirEntry

	for {
		block, err := img.GetBlock(track, sector)
		if err != nil {
			return DirEntry{}, false, err
		}
		next, nextSector := blockLink(block)
		bound := slotsPerBlock
		if next == 0 {
			bound = int(nextSector) // terminal block: nextSector doubles as a slot bound in some encodings; clamp defensively
			if bound <= 0 || bound > slotsPerBlock {
				bound = slotsPerBlock
			}
		}

		for slot := 0; slot < bound; slot++ {
			e, err := img.readEntryAt(track, sector, slot)
			if err != nil {
				return DirEntry{}, false, err
			}
			s := slotBytes(block, slot)
			if s[entryOffsetInSlot] == 0 {
				if firstFree == nil {
					cp := e
					firstFree = &cp
				}
				continue
			}
			if e.Name == name {
				return e, true, nil
			}
		}

		if next == 0 {
			break
		}
		track, sector = next, nextSector
	}

	switch policy {
	case DontCreate:
		return DirEntry{}, false, nil
	case OnlyCreate, FindOrCreate:
		if firstFree != nil {
			return *firstFree, false, nil
		}
		slot, terr := img.growDirectory(dirTrack)
		if terr != nil {
			return DirEntry{}, false, terr
		}
		return slot, false, nil
	default:
		return DirEntry{}, false, fmt.Errorf("cbmdos: unknown policy %d", policy)
	}
}

// ListDirEnts returns every non-deleted directory entry reachable from
// dirTrack's directory chain, in on-disk order. Used by readers that treat
// a whole image as an archive of files.
func (img *Image) ListDirEnts(dirTrack int) ([]DirEntry, error) {
	var out []DirEntry
	track, sector := dirTrack, firstDirSector(img.Geometry)

	for {
		block, err := img.GetBlock(track, sector)
		if err != nil {
			return nil, err
		}
		next, nextSector := blockLink(block)
		bound := slotsPerBlock
		if next == 0 {
			bound = int(nextSector)
			if bound <= 0 || bound > slotsPerBlock {
				bound = slotsPerBlock
			}
		}

		for slot := 0; slot < bound; slot++ {
			s := slotBytes(block, slot)
			if s[entryOffsetInSlot] == 0 {
				continue
			}
			e, err := img.readEntryAt(track, sector, slot)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}

		if next == 0 {
			break
		}
		track, sector = next, nextSector
	}

	return out, nil
}

// growDirectory extends the directory by adding a slot to the last block
// (if it has room for one more than its current bound) or allocating a new
// directory block and linking it.
func (img *Image) growDirectory(dirTrack int) (DirEntry, error) {
	track, sector := dirTrack, firstDirSector(img.Geometry)
	for {
		block, err := img.GetBlock(track, sector)
		if err != nil {
			return DirEntry{}, err
		}
		next, nextSector := blockLink(block)
		if next == 0 {
			if nextSector >= 1 && nextSector < slotsPerBlock {
				block[1] = byte(nextSector + 1)
				if err := img.clearEntryAt(track, sector, nextSector); err != nil {
					return DirEntry{}, err
				}
				return DirEntry{Track: track, Sector: sector, Slot: nextSector}, nil
			}
			break
		}
		track, sector = next, nextSector
	}

	t, s, err := img.FindNextFree(dirTrack, track, sector)
	if err != nil {
		return DirEntry{}, fmt.Errorf("cbmdos: %w", ErrNoSpace)
	}
	if err := img.Alloc(dirTrack, t, s); err != nil {
		return DirEntry{}, err
	}

	lastBlock, err := img.GetBlock(track, sector)
	if err != nil {
		return DirEntry{}, err
	}
	setBlockLink(lastBlock, t, s)

	newBlock, err := img.GetBlock(t, s)
	if err != nil {
		return DirEntry{}, err
	}
	for i := range newBlock {
		newBlock[i] = 0
	}
	setBlockLink(newBlock, 0, slotsPerBlock)

	return DirEntry{Track: t, Sector: s, Slot: 0}, nil
}

// DeleteDirEnt tears down a file's chains (inode, REL side sectors, or GEOS
// VLIR) then zeroes the entry, per §4.11.5. It performs a dry-run pass
// first to confirm every visited block is actually allocated before
// mutating anything.
func (img *Image) DeleteDirEnt(dirTrack int, e DirEntry) error {
	chain, err := img.walkChain(e.FirstTrack, e.FirstSector, true)
	if err != nil {
		return fmt.Errorf("cbmdos: dry run: %w", err)
	}

	for _, ts := range chain {
		if err := img.Free(ts[0], ts[1]); err != nil {
			return err
		}
	}

	if e.Type == petscii.REL {
		if err := img.freeSideSectors(e); err != nil {
			return err
		}
	}

	return img.clearEntryAt(e.Track, e.Sector, e.Slot)
}
