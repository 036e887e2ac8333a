package convert

import (
	"fmt"
	"strings"
)

// IncrementBasename bumps the numeric disk counter in path's base name,
// per §4.12 and the disk-change-naming testable property of §8. It
// mirrors the original source's character walk exactly (main.c's
// CloseImage retry path): only the stem before the first '.' is
// considered, and the walk starts at the stem's last character, not at
// the first digit found anywhere. That character must itself be a digit
// or the rename fails immediately; '9' carries into the character to its
// left, any other digit just increments and stops. Running off the left
// end of the stem, or ever hitting a non-digit while carrying, fails
// cleanly with no partial rename.
func IncrementBasename(path string) (string, error) {
	dir, base := splitPath(path)

	stem, ext := base, ""
	if idx := strings.IndexByte(base, '.'); idx >= 0 {
		stem, ext = base[:idx], base[idx:]
	}

	digits := []byte(stem)
	i := len(digits) - 1
	if i < 0 {
		return "", fmt.Errorf("convert: %q has no digit to increment", base)
	}

	for {
		if i < 0 {
			return "", fmt.Errorf("convert: could not generate a unique image file name from %q", base)
		}
		switch {
		case digits[i] == '9':
			digits[i] = '0'
			i--
			continue
		case digits[i] >= '0' && digits[i] < '9':
			digits[i]++
		default:
			return "", fmt.Errorf("convert: %q has no digit to increment", base)
		}
		break
	}

	return dir + string(digits) + ext, nil
}

func splitPath(path string) (dir, base string) {
	idx := strings.LastIndexAny(path, "/\\")
	if idx < 0 {
		return "", path
	}
	return path[:idx+1], path[idx+1:]
}
