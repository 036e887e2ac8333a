package cbmdos

import "fmt"

// formatBAM1541 initializes the single-block BAM used by 1541 and 1571
// (front half), marking every sector free except the directory track's
// BAM sector and first directory sector, and (for 1571) the back-half
// bitmap block at 53/0.
func (img *Image) formatBAM1541(title [16]byte, id [2]byte) error {
	bam, err := img.GetBlock(18, 0)
	if err != nil {
		return err
	}
	bam[0] = byte(img.Geometry.DirTrack)
	bam[1] = 1
	bam[2] = img.Geometry.FormatID
	bam[3] = 0

	for t := 1; t <= 35; t++ {
		sp := img.Geometry.SectorsPerTrack(t)
		off := 4 + (t-1)*4
		bam[off] = byte(sp)
		for s := 0; s < sp; s++ {
			bam[off+1+s/8] |= 1 << uint(s%8)
		}
	}

	copy(bam[0x90:0xA0], title[:])
	bam[0xA2], bam[0xA3] = id[0], id[1]
	bam[0xA4] = 0xA0
	bam[0xA5], bam[0xA6] = '2', 'A'
	for i := 0xA7; i < 0x100; i++ {
		bam[i] = 0xA0
	}

	if img.Geometry.Type == Type1571 {
		back, err := img.GetBlock(53, 0)
		if err != nil {
			return err
		}
		for t := 36; t <= 70; t++ {
			sp := img.Geometry.SectorsPerTrack(t)
			idx := (t - 36)
			bam[0xDC+idx+1] = byte(sp)
			base := idx * 3
			for s := 0; s < sp; s++ {
				back[base+s/8] |= 1 << uint(s%8)
			}
		}
	}

	if err := img.allocDirTrackOverhead(); err != nil {
		return err
	}
	if img.Geometry.Type == Type1571 {
		return img.Alloc(img.Geometry.DirTrack, 53, 0)
	}
	return nil
}

func (img *Image) format1581(title [16]byte, id [2]byte) error {
	header, err := img.GetBlock(40, 0)
	if err != nil {
		return err
	}
	header[0], header[1] = 40, 1
	header[2] = img.Geometry.FormatID
	copy(header[0x04:0x14], title[:])
	header[0x14], header[0x15] = 0xA0, 0xA0
	header[0x16], header[0x17] = id[0], id[1]
	header[0x18] = 0xA0
	header[0x19], header[0x1A] = '3', 'D'
	for i := 0x1B; i < 0x100; i++ {
		header[i] = 0xA0
	}

	bam1, err := img.GetBlock(40, 1)
	if err != nil {
		return err
	}
	bam1[0], bam1[1] = 40, 2
	bam1[2] = img.Geometry.FormatID
	for t := 1; t <= 40; t++ {
		off := 0x10 + (t-1)*6
		sp := img.Geometry.SectorsPerTrack(t)
		bam1[off] = byte(sp)
		for s := 0; s < sp; s++ {
			bam1[off+1+s/8] |= 1 << uint(s%8)
		}
	}

	bam2, err := img.GetBlock(40, 2)
	if err != nil {
		return err
	}
	bam2[0], bam2[1] = 0, 0xFF
	bam2[2] = img.Geometry.FormatID
	for t := 41; t <= 80; t++ {
		off := 0x10 + (t-41)*6
		sp := img.Geometry.SectorsPerTrack(t)
		bam2[off] = byte(sp)
		for s := 0; s < sp; s++ {
			bam2[off+1+s/8] |= 1 << uint(s%8)
		}
	}

	return img.allocDirTrackOverhead()
}

// allocDirTrackOverhead marks the BAM/header blocks on the directory track
// allocated, and reserves the first directory sector.
func (img *Image) allocDirTrackOverhead() error {
	dt := img.Geometry.DirTrack
	switch img.Geometry.Type {
	case Type1541, Type1571:
		if err := img.Alloc(dt, dt, 0); err != nil {
			return err
		}
		return img.Alloc(dt, dt, 1)
	case Type1581:
		for s := 0; s <= 2; s++ {
			if err := img.Alloc(dt, dt, s); err != nil {
				return err
			}
		}
		return img.Alloc(dt, dt, 3)
	default:
		return fmt.Errorf("cbmdos: unknown image type")
	}
}
