package cbmdos

import (
	"fmt"

	"cbmconvert/petscii"
)

// WriteFile writes a whole SEQ/PRG/USR file to the directory track dt, per
// the inode-chain write path of §4.11.4/§4.11.5. Every mutation is wrapped
// in a BAM snapshot/restore so a failure midway returns the BAM to its
// earlier state; sector and directory bytes already written are not
// restored (§4.11.3, §9).
func (img *Image) WriteFile(dt int, fn petscii.Filename, data []byte) error {
	if fn.Type == petscii.REL {
		return fmt.Errorf("cbmdos: use WriteREL for REL files")
	}

	snap, err := img.BackupBAM()
	if err != nil {
		return err
	}

	entry, existed, err := img.GetDirEnt(dt, fn.Name, FindOrCreate)
	if err != nil {
		_ = img.RestoreBAM(snap)
		return err
	}
	if existed {
		_ = img.RestoreBAM(snap)
		return fmt.Errorf("cbmdos: %q %w", petscii.ToASCII(fn.Trimmed()), ErrFileExists)
	}

	firstTrack, firstSector, blocks, err := img.WriteInode(dt, dt, 0, data)
	if err != nil {
		_ = img.RestoreBAM(snap)
		return err
	}

	entry.Type = fn.Type
	entry.Closed = true
	entry.Name = fn.Name
	entry.FirstTrack, entry.FirstSector = firstTrack, firstSector
	entry.BlockCount = uint16(blocks)

	if err := img.writeEntryAt(entry); err != nil {
		_ = img.RestoreBAM(snap)
		return err
	}
	return nil
}

// ReadFile reads back a SEQ/PRG/USR file's payload.
func (img *Image) ReadFile(dt int, name [16]byte) (petscii.Filename, []byte, error) {
	entry, found, err := img.GetDirEnt(dt, name, DontCreate)
	if err != nil {
		return petscii.Filename{}, nil, err
	}
	if !found {
		return petscii.Filename{}, nil, fmt.Errorf("cbmdos: file not found")
	}
	data, err := img.ReadInode(entry.FirstTrack, entry.FirstSector)
	if err != nil {
		return petscii.Filename{}, nil, err
	}
	fn := petscii.New(entry.Name[:], entry.Type, entry.RecordLength)
	return fn, data, nil
}

// WriteREL writes a REL file: the record-sized payload as an ordinary
// inode chain, plus the side-sector index built from the resulting chain
// (§4.11.4, §4.11.6).
func (img *Image) WriteREL(dt int, fn petscii.Filename, data []byte) error {
	snap, err := img.BackupBAM()
	if err != nil {
		return err
	}

	entry, existed, err := img.GetDirEnt(dt, fn.Name, FindOrCreate)
	if err != nil {
		_ = img.RestoreBAM(snap)
		return err
	}
	if existed {
		_ = img.RestoreBAM(snap)
		return fmt.Errorf("cbmdos: %q %w", petscii.ToASCII(fn.Trimmed()), ErrFileExists)
	}

	firstTrack, firstSector, blocks, err := img.WriteInode(dt, dt, 0, data)
	if err != nil {
		_ = img.RestoreBAM(snap)
		return err
	}

	dataChain, err := img.walkChain(firstTrack, firstSector, false)
	if err != nil {
		_ = img.RestoreBAM(snap)
		return err
	}

	sides, err := img.SetupSideSectors(dt, dataChain, fn.RecordLength)
	if err != nil {
		_ = img.RestoreBAM(snap)
		return err
	}

	entry.Type = petscii.REL
	entry.Closed = true
	entry.Name = fn.Name
	entry.FirstTrack, entry.FirstSector = firstTrack, firstSector
	entry.RecordLength = fn.RecordLength
	entry.SideOrInfoTrack, entry.SideOrInfoSector = sides.Blocks[0][0], sides.Blocks[0][1]
	entry.BlockCount = uint16(blocks + len(sides.Blocks))

	if err := img.writeEntryAt(entry); err != nil {
		_ = img.RestoreBAM(snap)
		return err
	}
	return nil
}

// ReadREL reads a REL file's payload and record length.
func (img *Image) ReadREL(dt int, name [16]byte) (petscii.Filename, []byte, error) {
	entry, found, err := img.GetDirEnt(dt, name, DontCreate)
	if err != nil {
		return petscii.Filename{}, nil, err
	}
	if !found || entry.Type != petscii.REL {
		return petscii.Filename{}, nil, fmt.Errorf("cbmdos: REL file not found")
	}
	data, err := img.ReadInode(entry.FirstTrack, entry.FirstSector)
	if err != nil {
		return petscii.Filename{}, nil, err
	}
	fn := petscii.New(entry.Name[:], petscii.REL, entry.RecordLength)
	return fn, data, nil
}

// ValidateReport collects the warnings produced by Validate.
type ValidateReport struct {
	Warnings []string
}

func (r *ValidateReport) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate walks every directory entry and checks the invariants of §8:
// BAM free counters equal their bitmap's popcount, and every non-deleted
// entry's chain terminates within geometry.Blocks() steps with every
// visited block marked allocated. Problems are collected as warnings,
// matching the source's diagnostic-mode continuation policy (§7).
func (img *Image) Validate(dt int) ValidateReport {
	var report ValidateReport

	for t := 1; t <= img.Geometry.Tracks; t++ {
		bitmap, off, err := img.bitmapBytes(t)
		if err != nil {
			report.warn("track %d: %v", t, err)
			continue
		}
		cblock, coff, err := img.countByte(t)
		if err != nil {
			report.warn("track %d: %v", t, err)
			continue
		}
		sp := img.Geometry.SectorsPerTrack(t)
		bitmapLen := (sp + 7) / 8
		got := popcount3(bitmap[off : off+bitmapLen])
		if got != int(cblock[coff]) {
			report.warn("track %d: BAM counter %d does not match bitmap popcount %d", t, cblock[coff], got)
		}
	}

	track, sector := dt, firstDirSector(img.Geometry)
	for {
		block, err := img.GetBlock(track, sector)
		if err != nil {
			report.warn("directory block %d/%d: %v", track, sector, err)
			break
		}
		next, nextSector := blockLink(block)
		for slot := 0; slot < slotsPerBlock; slot++ {
			e, err := img.readEntryAt(track, sector, slot)
			if err != nil {
				report.warn("entry %d/%d#%d: %v", track, sector, slot, err)
				continue
			}
			s := slotBytes(block, slot)
			if s[entryOffsetInSlot] == 0 {
				continue
			}
			chain, err := img.walkChain(e.FirstTrack, e.FirstSector, true)
			if err != nil {
				report.warn("entry %q: %v", petscii.ToASCII(e.Name[:]), err)
				continue
			}
			_ = chain
		}
		if next == 0 {
			break
		}
		track, sector = next, nextSector
	}

	return report
}
