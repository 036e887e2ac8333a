package convert

import (
	"fmt"
	"strings"

	"cbmconvert/cpm128"
	"cbmconvert/petscii"
)

// CPMSink writes items into a CP/M-on-C128 disk image's directory, per
// §4.11.8. It mirrors ImageSink's status translation but CP/M has no
// block-availability-map error taxonomy of its own, so any write failure
// short of "no free block" is reported as Fail.
type CPMSink struct {
	Image *cpm128.Image
	User  int
	Flush func(*cpm128.Image) error
}

// NewCPMSink wraps an already-formatted CP/M image.
func NewCPMSink(img *cpm128.Image, user int, flush func(*cpm128.Image) error) *CPMSink {
	return &CPMSink{Image: img, User: user, Flush: flush}
}

// cpmNameParts splits a Filename's trimmed ASCII form into an 8.3 CP/M
// name and suffix, truncating and space-padding as needed.
func cpmNameParts(fn petscii.Filename) ([8]byte, [3]byte) {
	ascii := petscii.ToASCII(fn.Trimmed())
	base, suffix := ascii, ""
	if idx := strings.LastIndex(ascii, "."); idx >= 0 {
		base, suffix = ascii[:idx], ascii[idx+1:]
	}
	var name [8]byte
	var suf [3]byte
	for i := range name {
		name[i] = ' '
	}
	for i := range suf {
		suf[i] = ' '
	}
	copy(name[:], strings.ToUpper(base))
	copy(suf[:], strings.ToUpper(suffix))
	return name, suf
}

func (s *CPMSink) Write(item Item) (WriteStatus, error) {
	name, suffix := cpmNameParts(item.Name)
	err := s.Image.WriteFile(s.User, name, suffix, item.Data)
	switch {
	case err == nil:
		return StatusOK, nil
	case strings.Contains(err.Error(), "already exists"):
		return StatusFileExists, err
	case strings.Contains(err.Error(), "disk full") || strings.Contains(err.Error(), "directory full"):
		return StatusNoSpace, err
	default:
		return StatusFail, fmt.Errorf("convert: %w", err)
	}
}

func (s *CPMSink) Close() error {
	if s.Flush == nil {
		return nil
	}
	return s.Flush(s.Image)
}
