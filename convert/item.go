// Package convert implements the orchestrator of §4.12: it pipes the
// (name, bytes) pairs produced by one reader into exactly one write sink,
// applying the disk-change-on-full/duplicate policy and the default log
// callback when a sink is a CBM DOS image.
package convert

import (
	"fmt"

	"cbmconvert/petscii"
)

// Item is one decoded file: a Filename plus its owned payload, the unit
// every reader produces and every sink consumes.
type Item struct {
	Name petscii.Filename
	Data []byte
}

// WriteStatus mirrors the write-outcome taxonomy of §7.
type WriteStatus int

const (
	StatusOK WriteStatus = iota
	StatusNoSpace
	StatusFileExists
	StatusFail
)

func (s WriteStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNoSpace:
		return "NoSpace"
	case StatusFileExists:
		return "FileExists"
	default:
		return "Fail"
	}
}

// Verbosity selects which log callback invocations are surfaced, per the
// `-v{0,1,2}` flag of §6.
type Verbosity int

const (
	VerboseErrors Verbosity = iota
	VerboseWarnings
	VerboseInfo
)

// LogFunc is the orchestrator's diagnostic callback: verbosity, an
// optional Filename the message concerns, and a printf-style format, per
// §6.
type LogFunc func(level Verbosity, name *petscii.Filename, format string, args ...interface{})

// DefaultLogFunc returns a LogFunc that prefixes every message with path
// once and deduplicates consecutive identical filenames, matching the
// orchestrator's default described in §6.
func DefaultLogFunc(path string, sink func(string)) LogFunc {
	prefixed := false
	var lastName *petscii.Filename

	return func(level Verbosity, name *petscii.Filename, format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)

		if !prefixed {
			sink(path + ":")
			prefixed = true
		}

		if name != nil && (lastName == nil || !lastName.Equal(*name)) {
			sink(fmt.Sprintf("  %s:", name.String()))
			cp := *name
			lastName = &cp
		} else if name == nil {
			lastName = nil
		}

		sink("    " + msg)
	}
}
