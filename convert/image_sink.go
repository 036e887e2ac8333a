package convert

import (
	"errors"

	"cbmconvert/cbmdos"
	"cbmconvert/petscii"
)

// ImageSink writes items into a CBM DOS disk image's directory track,
// translating Alloc/space failures into the WriteStatus taxonomy of §7
// so Run's disk-change policy can react to them.
type ImageSink struct {
	Image    *cbmdos.Image
	DirTrack int
	Flush    func(*cbmdos.Image) error
}

// NewImageSink wraps an already-formatted image. flush persists the
// image's buffer to its host file on Close; it may be nil for purely
// in-memory use (tests).
func NewImageSink(img *cbmdos.Image, dirTrack int, flush func(*cbmdos.Image) error) *ImageSink {
	return &ImageSink{Image: img, DirTrack: dirTrack, Flush: flush}
}

func (s *ImageSink) Write(item Item) (WriteStatus, error) {
	var err error
	if item.Name.Type == petscii.REL {
		err = s.Image.WriteREL(s.DirTrack, item.Name, item.Data)
	} else {
		err = s.Image.WriteFile(s.DirTrack, item.Name, item.Data)
	}

	switch {
	case err == nil:
		return StatusOK, nil
	case errors.Is(err, cbmdos.ErrNoSpace):
		return StatusNoSpace, err
	case errors.Is(err, cbmdos.ErrFileExists):
		return StatusFileExists, err
	default:
		return StatusFail, err
	}
}

func (s *ImageSink) Close() error {
	if s.Flush == nil {
		return nil
	}
	return s.Flush(s.Image)
}
