package convert

import (
	"fmt"

	"cbmconvert/petscii"
)

// Sink receives decoded items one at a time. Write returns a status the
// orchestrator can react to (disk-change on NoSpace, skip on FileExists),
// per §7.
type Sink interface {
	Write(item Item) (WriteStatus, error)
	Close() error
}

// DiskChangePolicy selects when the orchestrator rolls a full image sink
// over to a freshly numbered file, per the `-i{0,1,2}` flag of §6.
type DiskChangePolicy int

const (
	// ChangeNever disables automatic disk-change entirely.
	ChangeNever DiskChangePolicy = iota
	// ChangeOnFull rolls over only when the sink reports NoSpace.
	ChangeOnFull
	// ChangeOnFullOrDuplicate additionally rolls over on FileExists.
	ChangeOnFullOrDuplicate
)

// shouldChange reports whether status warrants a disk change under policy.
func (p DiskChangePolicy) shouldChange(status WriteStatus) bool {
	switch p {
	case ChangeNever:
		return false
	case ChangeOnFull:
		return status == StatusNoSpace
	case ChangeOnFullOrDuplicate:
		return status == StatusNoSpace || status == StatusFileExists
	default:
		return false
	}
}

// ImageOpener creates a fresh, empty image-backed Sink at path, used by
// Run to reopen after a disk-change rollover.
type ImageOpener func(path string) (Sink, error)

// Run drives one reader's items into sink, applying policy's disk-change
// behavior when the sink is image-backed and reports NoSpace/FileExists,
// per §4.12. open is used to create each successive image file; it may be
// nil for non-image sinks (archives, host directories), in which case no
// rollover is attempted.
func Run(items []Item, sink Sink, path string, policy DiskChangePolicy, open ImageOpener, log LogFunc) error {
	currentPath := path

	for _, item := range items {
		status, err := sink.Write(item)
		if err != nil && status != StatusNoSpace && status != StatusFileExists {
			return fmt.Errorf("convert: writing %q: %w", item.Name.String(), err)
		}

		if status == StatusOK {
			continue
		}

		if !policy.shouldChange(status) || open == nil {
			if log != nil {
				log(VerboseErrors, &item.Name, "write failed: %s", status)
			}
			continue
		}

		if err := sink.Close(); err != nil {
			return fmt.Errorf("convert: closing %q: %w", currentPath, err)
		}
		nextPath, err := IncrementBasename(currentPath)
		if err != nil {
			return fmt.Errorf("convert: disk change: %w", err)
		}
		newSink, err := open(nextPath)
		if err != nil {
			return fmt.Errorf("convert: opening %q: %w", nextPath, err)
		}
		currentPath = nextPath
		sink = newSink

		if log != nil {
			log(VerboseInfo, nil, "disk full, continuing on %s", currentPath)
		}

		status, err = sink.Write(item)
		if err != nil {
			return fmt.Errorf("convert: writing %q after disk change: %w", item.Name.String(), err)
		}
		if status != StatusOK && log != nil {
			log(VerboseErrors, &item.Name, "write failed after disk change: %s", status)
		}
	}

	return sink.Close()
}

// HostSink writes each item as its own host file under a directory,
// naming it per petscii.HostName and writeFile's policy.
type HostSink struct {
	Dir      string
	Policy   petscii.WritePolicy
	written  map[string]bool
	writeOne func(name string, data []byte) error
}

// NewHostSink builds a HostSink that writes files via writeOne (typically
// a thin os.WriteFile wrapper; injected so tests do not touch the real
// filesystem).
func NewHostSink(dir string, policy petscii.WritePolicy, writeOne func(name string, data []byte) error) *HostSink {
	return &HostSink{Dir: dir, Policy: policy, written: map[string]bool{}, writeOne: writeOne}
}

func (s *HostSink) Write(item Item) (WriteStatus, error) {
	exists := func(name string) bool { return s.written[name] }
	name, err := petscii.HostName(item.Name, s.Policy, exists)
	if err != nil {
		return StatusFail, err
	}

	payload := item.Data
	if s.Policy == petscii.PC64 {
		payload = petscii.P00Body(item.Name, item.Data)
	}

	if err := s.writeOne(name, payload); err != nil {
		return StatusFail, err
	}
	s.written[name] = true
	return StatusOK, nil
}

func (s *HostSink) Close() error { return nil }
