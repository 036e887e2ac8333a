package cbmdos

import (
	"fmt"

	"cbmconvert/petscii"
)

// geosInfoMagic is the fixed 3-byte prefix every GEOS info block begins
// with, per §4.11.7.
var geosInfoMagic = [3]byte{0x03, 0x15, 0xBF}

// VLIREntry is one of a GEOS VLIR file's 127 (track, sector) slots: either
// a pointer to an allocated chain, (0,0) for "unused", or (0,0xFF) for
// "ended".
type VLIREntry struct {
	Track, Sector int
}

func (v VLIREntry) Unused() bool { return v.Track == 0 && v.Sector == 0 }
func (v VLIREntry) Ended() bool  { return v.Track == 0 && v.Sector == 0xFF }

// Convert is the sequential transport serialization of a GEOS file: a
// 254-byte padded directory-entry header, a 254-byte info block, an
// optional 254-byte VLIR index block, and the data chains themselves
// (§4.11.7).
type Convert struct {
	DirHeader [254]byte
	Info      [254]byte
	IsVLIR    bool
	VLIR      [127]VLIREntry // original (T,S) per slot, including the (0,0)/(0,0xFF) marker for empty slots
	Chains    [][]byte       // one per VLIR entry if IsVLIR, else a single sequential stream; nil chain means VLIR[i] is a marker, not data
}

// ReadConvert builds a Convert transport image from a disk file's
// directory entry, reading its info block and (if present) VLIR chains.
func (img *Image) ReadConvert(e DirEntry) (Convert, error) {
	if e.GeosType == 0 {
		return Convert{}, fmt.Errorf("cbmdos: %q is not a GEOS file", string(e.Name[:]))
	}

	var c Convert
	block, err := img.GetBlock(e.Track, e.Sector)
	if err != nil {
		return Convert{}, err
	}
	s := slotBytes(block, e.Slot)
	copy(c.DirHeader[:], s)

	infoTrack, infoSector := e.SideOrInfoTrack, e.SideOrInfoSector
	infoBlock, err := img.GetBlock(infoTrack, infoSector)
	if err != nil {
		return Convert{}, err
	}
	copy(c.Info[:], infoBlock)
	if c.Info[0] != geosInfoMagic[0] || c.Info[1] != geosInfoMagic[1] || c.Info[2] != geosInfoMagic[2] {
		return Convert{}, fmt.Errorf("cbmdos: invalid GEOS info block magic")
	}

	c.IsVLIR = e.IsVLIR
	if !c.IsVLIR {
		data, err := img.ReadInode(e.FirstTrack, e.FirstSector)
		if err != nil {
			return Convert{}, err
		}
		c.Chains = [][]byte{data}
		return c, nil
	}

	vlirBlock, err := img.GetBlock(e.FirstTrack, e.FirstSector)
	if err != nil {
		return Convert{}, err
	}
	for i := 0; i < 127; i++ {
		c.VLIR[i] = VLIREntry{Track: int(vlirBlock[i*2]), Sector: int(vlirBlock[i*2+1])}
	}

	for _, entry := range c.VLIR {
		if entry.Unused() || entry.Ended() {
			c.Chains = append(c.Chains, nil)
			continue
		}
		data, err := img.ReadInode(entry.Track, entry.Sector)
		if err != nil {
			return Convert{}, fmt.Errorf("cbmdos: reading VLIR chain %d/%d: %w", entry.Track, entry.Sector, err)
		}
		c.Chains = append(c.Chains, data)
	}

	return c, nil
}

// WriteConvert writes a GEOS Convert transport image to disk as a new
// directory entry, allocating the info block first, then (for a VLIR file)
// the VLIR index block, then each VLIR chain (or the single sequential
// chain), recording each chain's start in the index as it is written. The
// whole operation is wrapped in a BAM snapshot/restore per §4.11.7/§9.
func (img *Image) WriteConvert(dirTrack int, name [16]byte, c Convert) (DirEntry, error) {
	snap, err := img.BackupBAM()
	if err != nil {
		return DirEntry{}, err
	}

	entry, existed, err := img.GetDirEnt(dirTrack, name, FindOrCreate)
	if err != nil {
		return DirEntry{}, err
	}
	if existed {
		return DirEntry{}, fmt.Errorf("cbmdos: %q %w", string(name[:]), ErrFileExists)
	}

	it, is, err := img.FindNextFree(dirTrack, dirTrack, 0)
	if err != nil {
		_ = img.RestoreBAM(snap)
		return DirEntry{}, fmt.Errorf("cbmdos: %w", ErrNoSpace)
	}
	if err := img.Alloc(dirTrack, it, is); err != nil {
		_ = img.RestoreBAM(snap)
		return DirEntry{}, err
	}
	infoBlock, err := img.GetBlock(it, is)
	if err != nil {
		_ = img.RestoreBAM(snap)
		return DirEntry{}, err
	}
	copy(infoBlock, c.Info[:])

	var firstTrack, firstSector int
	totalBlocks := 1 // the info block

	if !c.IsVLIR {
		data := c.Chains[0]
		ft, fs, blocks, werr := img.WriteInode(dirTrack, dirTrack, 0, data)
		if werr != nil {
			_ = img.RestoreBAM(snap)
			return DirEntry{}, werr
		}
		firstTrack, firstSector = ft, fs
		totalBlocks += blocks
	} else {
		vt, vs, err := img.FindNextFree(dirTrack, dirTrack, 0)
		if err != nil {
			_ = img.RestoreBAM(snap)
			return DirEntry{}, fmt.Errorf("cbmdos: %w", ErrNoSpace)
		}
		if err := img.Alloc(dirTrack, vt, vs); err != nil {
			_ = img.RestoreBAM(snap)
			return DirEntry{}, err
		}
		totalBlocks++
		firstTrack, firstSector = vt, vs

		vlirBlock, err := img.GetBlock(vt, vs)
		if err != nil {
			_ = img.RestoreBAM(snap)
			return DirEntry{}, err
		}
		for i := range vlirBlock {
			vlirBlock[i] = 0
		}

		for i, chain := range c.Chains {
			if chain == nil {
				// c.VLIR[i] still carries the marker ReadConvert saw —
				// (0,0) unused or (0,0xFF) ended — distinct values that
				// a hardcoded (0,0) here would collapse together.
				marker := c.VLIR[i]
				vlirBlock[i*2], vlirBlock[i*2+1] = byte(marker.Track), byte(marker.Sector)
				continue
			}
			ft, fs, blocks, werr := img.WriteInode(dirTrack, dirTrack, 0, chain)
			if werr != nil {
				_ = img.RestoreBAM(snap)
				return DirEntry{}, werr
			}
			vlirBlock[i*2], vlirBlock[i*2+1] = byte(ft), byte(fs)
			totalBlocks += blocks
		}
	}

	entry.Type = petscii256ToFileType(c.DirHeader[entryOffsetInSlot])
	entry.GeosType = c.Info[3]
	entry.IsVLIR = c.IsVLIR
	if c.IsVLIR {
		entry.RecordLength = 1
	}
	entry.Name = name
	entry.FirstTrack, entry.FirstSector = firstTrack, firstSector
	entry.SideOrInfoTrack, entry.SideOrInfoSector = it, is
	entry.BlockCount = uint16(totalBlocks)
	entry.Closed = true

	if err := img.writeEntryAt(entry); err != nil {
		_ = img.RestoreBAM(snap)
		return DirEntry{}, err
	}

	return entry, nil
}

func petscii256ToFileType(typeByte byte) petscii.FileType {
	return petscii.FileType(typeByte & 0x0F)
}
