// Package cpm128 implements the CP/M-on-C128 sector-translation and
// directory-extent path, sharing the same 256-byte sector buffer as
// package cbmdos but addressed through a skewed block/sector lookup
// table instead of a BAM, per §4.11.8.
//
// The stride/skew values are drawn directly from §4.11.8; no C128 CP/M
// BIOS source was available in the retrieval pack to check byte-for-byte
// against, so the track-wrap and directory-track handling below is this
// module's own reasonable completion of the spec's prose, not a
// transcription of a known-good reference.
package cpm128

import (
	"fmt"

	"cbmconvert/cbmdos"
)

// DriveType selects one of the three CP/M-on-C128 geometry variants.
type DriveType int

const (
	Drive1541 DriveType = iota
	Drive1571
	Drive1581
)

// Geometry is the sector-translation parameters for one drive variant.
type Geometry struct {
	Drive         DriveType
	AU            int // sectors per allocation unit
	UsableSectors int
	startTrack    int
	startSector   int
	stride        int
	sideReset     int // 1571 only: track at which the skew restarts, 0 if unused
	disk          cbmdos.Geometry
}

// BlockSize is the number of bytes one allocation unit holds.
func (g Geometry) BlockSize() int { return g.AU * 256 }

// PointersPerExtent is how many block-pointer slots a 32-byte directory
// entry carries: 16 one-byte pointers for the 8-sector AU, 8 two-byte
// pointers for the 16-sector AU, keeping every entry 32 bytes.
func (g Geometry) PointersPerExtent() int {
	if g.AU == 16 {
		return 8
	}
	return 16
}

// For1541 is the 8-sector-AU, 680-usable-sector 1541 CP/M variant.
func For1541() Geometry {
	return Geometry{Drive: Drive1541, AU: 8, UsableSectors: 680, startTrack: 1, startSector: 10, stride: 5, disk: cbmdos.Geometry1541()}
}

// For1571 mirrors For1541 across both sides of a double-sided disk.
func For1571() Geometry {
	return Geometry{Drive: Drive1571, AU: 8, UsableSectors: 1360, startTrack: 1, startSector: 10, stride: 5, sideReset: 36, disk: cbmdos.Geometry1571()}
}

// For1581 is the 16-sector-AU, 3180-usable-sector 1581 variant.
func For1581() Geometry {
	return Geometry{Drive: Drive1581, AU: 16, UsableSectors: 3180, startTrack: 1, startSector: 0, stride: 1, disk: cbmdos.Geometry1581()}
}

// For dispatches on DriveType.
func For(t DriveType) (Geometry, error) {
	switch t {
	case Drive1541:
		return For1541(), nil
	case Drive1571:
		return For1571(), nil
	case Drive1581:
		return For1581(), nil
	default:
		return Geometry{}, fmt.Errorf("cpm128: unknown drive type %d", t)
	}
}

// TransTable is the ordered list of physical (track, sector) pairs a
// logical CP/M sector index maps to.
type TransTable [][2]int

// Build walks the disk with this geometry's stride and skew, wrapping the
// sector within each track until every sector of the track is listed and
// starting the directory track at sector 5, per §4.11.8.
func (g Geometry) Build() TransTable {
	table := make(TransTable, 0, g.UsableSectors)
	track, sector := g.startTrack, g.startSector
	onTrack := 0

	for len(table) < g.UsableSectors {
		sp := g.disk.SectorsPerTrack(track)
		if sp == 0 {
			break
		}
		if onTrack == 0 {
			sector %= sp
			if track == g.disk.DirTrack {
				sector = 5
			}
		}

		table = append(table, [2]int{track, sector})
		onTrack++
		sector = (sector + g.stride) % sp
		if onTrack == sp {
			onTrack = 0
			track++
			if g.sideReset != 0 && track == g.sideReset {
				sector = 0
			}
		}
	}

	return table
}
