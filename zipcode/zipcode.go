// Package zipcode implements the Zip-Code per-track compression format:
// a 1541 disk image is split into four numbered files (tracks 1-8, 9-16,
// 17-25, 26-35), each sector stored as raw, fill, or RLE-compressed bytes
// with the sector order driven by a pair of interleave increments that
// shift at the track-18 and track-25 boundaries, per §4.10.
//
// Grounded on original_source/disk2zip.c and original_source/zip2disk.c.
package zipcode

import (
	"fmt"

	"cbmconvert/cbmdos"
)

// loadAddress is the BASIC start address every Zip-Code file is prefixed
// with; file 1 uses loadAddress-2 followed by two disk-identifier bytes,
// files 2-4 use loadAddress alone.
const loadAddress = 0x400

// trackGroup maps a 1541 track number to its Zip-Code file index (0-3),
// covering tracks 1-8, 9-16, 17-25, 26-35.
func trackGroup(track int) int {
	switch {
	case track <= 8:
		return 0
	case track <= 16:
		return 1
	case track <= 25:
		return 2
	default:
		return 3
	}
}

// Encode splits a 1541 disk image into the four Zip-Code files. id is
// stamped into file 1's header as the disk identifier.
func Encode(img *cbmdos.Image, id [2]byte) ([4][]byte, error) {
	if img.Geometry.Type != cbmdos.Type1541 {
		return [4][]byte{}, fmt.Errorf("zipcode: only 1541 images are supported")
	}

	var files [4][]byte
	files[0] = append(files[0], byte((loadAddress-2)&0xFF), byte((loadAddress-2)>>8), id[0], id[1])
	for i := 1; i < 4; i++ {
		files[i] = append(files[i], byte(loadAddress&0xFF), byte(loadAddress>>8))
	}

	evenInc, oddInc := -10, 11

	for track := 1; track <= img.Geometry.Tracks; track++ {
		if track == 18 || track == 25 {
			evenInc++
			oddInc--
		}

		maxSect := img.Geometry.SectorsPerTrack(track)
		group := trackGroup(track)

		sect := 0
		for i := 1; i <= maxSect; i++ {
			data, err := img.GetBlock(track, sect)
			if err != nil {
				return [4][]byte{}, fmt.Errorf("zipcode: track %d sector %d: %w", track, sect, err)
			}
			files[group] = append(files[group], encodeSector(track, sect, data)...)

			if i&1 == 1 {
				sect += oddInc
			} else {
				sect += evenInc
			}
		}
	}

	return files, nil
}

// encodeSector chooses fill, RLE, or raw representation for one 256-byte
// sector, per §4.10: fill if any byte occurs all 256 times, else RLE
// (using a byte value absent from the sector as the escape) if the
// resulting stream is at most 253 bytes, else raw.
func encodeSector(track, sect int, data []byte) []byte {
	var histogram [256]int
	for _, b := range data {
		histogram[b]++
		if histogram[b] == 256 {
			return []byte{byte(track) | 0x40, byte(sect), b}
		}
	}

	escape := -1
	for i := 0; i < 256; i++ {
		if histogram[i] == 0 {
			escape = i
			break
		}
	}
	if escape < 0 {
		return rawSector(track, sect, data)
	}

	stream := rleEncodeSector(data, byte(escape))
	if len(stream) > 253 {
		return rawSector(track, sect, data)
	}

	out := make([]byte, 0, 4+len(stream))
	out = append(out, byte(track)|0x80, byte(sect), byte(len(stream)), byte(escape))
	return append(out, stream...)
}

func rawSector(track, sect int, data []byte) []byte {
	out := make([]byte, 0, 2+len(data))
	out = append(out, byte(track), byte(sect))
	return append(out, data...)
}

// rleEncodeSector runs the escape-byte scheme over exactly one 256-byte
// sector: runs longer than three bytes become (escape, length, value);
// shorter runs are copied literally.
func rleEncodeSector(data []byte, escape byte) []byte {
	var out []byte
	j := 0
	for i := 1; ; i++ {
		if i < 256 && data[i] == data[j] {
			continue
		}
		if i > j+3 {
			out = append(out, escape, byte(i-j), data[j])
		} else {
			out = append(out, data[j:i]...)
		}
		if i > 255 {
			break
		}
		j = i
	}
	return out
}

// Decode reconstructs a 1541 disk image from the four Zip-Code files. It
// returns the disk identifier recorded in file 1's header alongside the
// image. Each sector is self-describing (its header carries its own
// track/sector number), so decode order does not depend on the
// interleave used to encode it; an out-of-range or repeated sector is
// treated as stream corruption and fails the whole track, per §4.10.
func Decode(files [4][]byte) (*cbmdos.Image, [2]byte, error) {
	geo := cbmdos.Geometry1541()
	img := cbmdos.New(geo)

	var id [2]byte
	if len(files[0]) < 4 {
		return nil, id, fmt.Errorf("zipcode: file 1 is too short for its header")
	}
	id[0], id[1] = files[0][2], files[0][3]

	pos := [4]int{4, 2, 2, 2}

	for track := 1; track <= geo.Tracks; track++ {
		maxSect := geo.SectorsPerTrack(track)
		group := trackGroup(track)
		data := files[group]

		seen := make([]bool, maxSect)
		sectors := make([][]byte, maxSect)

		for n := 0; n < maxSect; n++ {
			p := pos[group]
			if p+2 > len(data) {
				return nil, id, fmt.Errorf("zipcode: file %d truncated at track %d", group+1, track)
			}
			trk := data[p]
			sect := int(data[p+1])
			p += 2

			if int(trk&0x3F) != track || sect < 0 || sect >= maxSect || seen[sect] {
				return nil, id, fmt.Errorf("zipcode: corrupt stream at track %d", track)
			}

			var sectorData []byte
			var err error
			switch {
			case trk&0x80 != 0:
				sectorData, p, err = decodeRLESector(data, p)
			case trk&0x40 != 0:
				sectorData, p, err = decodeFillSector(data, p)
			default:
				sectorData, p, err = decodeRawSector(data, p)
			}
			if err != nil {
				return nil, id, fmt.Errorf("zipcode: track %d sector %d: %w", track, sect, err)
			}

			pos[group] = p
			seen[sect] = true
			sectors[sect] = sectorData
		}

		for sect := 0; sect < maxSect; sect++ {
			block, err := img.GetBlock(track, sect)
			if err != nil {
				return nil, id, err
			}
			copy(block, sectors[sect])
		}
	}

	return img, id, nil
}

func decodeRawSector(data []byte, p int) ([]byte, int, error) {
	if p+256 > len(data) {
		return nil, p, fmt.Errorf("truncated raw sector")
	}
	out := append([]byte(nil), data[p:p+256]...)
	return out, p + 256, nil
}

func decodeFillSector(data []byte, p int) ([]byte, int, error) {
	if p >= len(data) {
		return nil, p, fmt.Errorf("truncated fill byte")
	}
	out := make([]byte, 256)
	for i := range out {
		out[i] = data[p]
	}
	return out, p + 1, nil
}

func decodeRLESector(data []byte, p int) ([]byte, int, error) {
	if p+2 > len(data) {
		return nil, p, fmt.Errorf("truncated RLE header")
	}
	length := int(data[p])
	escape := data[p+1]
	p += 2
	if p+length > len(data) {
		return nil, p, fmt.Errorf("truncated RLE stream")
	}
	stream := data[p : p+length]
	p += length

	out := make([]byte, 256)
	count := 0
	i := 0
	remaining := len(stream)
	for remaining > 0 {
		ch := stream[i]
		i++
		remaining--
		if ch != escape {
			if count >= 256 {
				return nil, p, fmt.Errorf("RLE overflow")
			}
			out[count] = ch
			count++
			continue
		}
		if remaining < 2 {
			return nil, p, fmt.Errorf("truncated RLE escape")
		}
		repeat := int(stream[i])
		value := stream[i+1]
		i += 2
		remaining -= 2
		if repeat+count > 256 {
			return nil, p, fmt.Errorf("RLE run overflows sector")
		}
		for k := 0; k < repeat; k++ {
			out[count+k] = value
		}
		count += repeat
	}
	if count != 256 {
		return nil, p, fmt.Errorf("RLE stream decoded to %d bytes, want 256", count)
	}
	return out, p, nil
}
