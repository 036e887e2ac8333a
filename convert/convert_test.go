package convert

import (
	"errors"
	"testing"

	"cbmconvert/cbmdos"
	"cbmconvert/petscii"
)

func TestIncrementBasename(t *testing.T) {
	cases := []struct {
		in, want string
		wantErr  bool
	}{
		{"disk1.d64", "disk2.d64", false},
		{"disk09.d64", "disk10.d64", false},
		{"a/disk19.d64", "a/disk20.d64", false},
		{"nodigits.d64", "", true},
		{"a9.d64", "", true},  // carry runs into a non-digit character
		{"99.d64", "", true},  // carry runs off the left end of the stem
	}
	for _, c := range cases {
		got, err := IncrementBasename(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("IncrementBasename(%q) = %q, want error", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("IncrementBasename(%q) unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("IncrementBasename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestHostSinkWritesEachItemOnce(t *testing.T) {
	written := map[string][]byte{}
	sink := NewHostSink(".", petscii.Native, func(name string, data []byte) error {
		written[name] = data
		return nil
	})

	name := petscii.New([]byte("TEST"), petscii.PRG, 0)
	status, err := sink.Write(Item{Name: name, Data: []byte{1, 2, 3}})
	if err != nil || status != StatusOK {
		t.Fatalf("Write: status=%v err=%v", status, err)
	}
	if _, ok := written["test,prg"]; !ok {
		t.Errorf("expected test,prg to be written, got %v", written)
	}
}

func TestRunRollsOverOnNoSpace(t *testing.T) {
	geo := cbmdos.Geometry1541()
	img := cbmdos.New(geo)
	if err := img.Format(cbmdos.DiskTitle, [2]byte{'6', '4'}); err != nil {
		t.Fatalf("Format: %v", err)
	}

	// Exhaust every free block so the very first write reports NoSpace,
	// forcing an immediate disk-change rollover.
	for t := 1; t <= geo.Tracks; t++ {
		for s := 0; s < geo.SectorsPerTrack(t); s++ {
			if t == geo.DirTrack && s <= 1 {
				continue
			}
			_ = img.Alloc(geo.DirTrack, t, s)
		}
	}

	opened := 0
	open := func(path string) (Sink, error) {
		opened++
		fresh := cbmdos.New(geo)
		if err := fresh.Format(cbmdos.DiskTitle, [2]byte{'6', '4'}); err != nil {
			return nil, err
		}
		return NewImageSink(fresh, geo.DirTrack, nil), nil
	}

	sink := NewImageSink(img, geo.DirTrack, nil)
	items := []Item{{Name: petscii.New([]byte("A"), petscii.PRG, 0), Data: []byte{9}}}

	err := Run(items, sink, "disk1.d64", ChangeOnFull, open, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if opened != 1 {
		t.Errorf("expected exactly one rollover, got %d", opened)
	}
}

func TestImageSinkReportsFileExists(t *testing.T) {
	geo := cbmdos.Geometry1541()
	img := cbmdos.New(geo)
	if err := img.Format(cbmdos.DiskTitle, [2]byte{'6', '4'}); err != nil {
		t.Fatalf("Format: %v", err)
	}
	sink := NewImageSink(img, geo.DirTrack, nil)
	name := petscii.New([]byte("A"), petscii.PRG, 0)

	if status, err := sink.Write(Item{Name: name, Data: []byte{1}}); err != nil || status != StatusOK {
		t.Fatalf("first write: status=%v err=%v", status, err)
	}
	status, err := sink.Write(Item{Name: name, Data: []byte{2}})
	if status != StatusFileExists {
		t.Errorf("status = %v, want StatusFileExists", status)
	}
	if !errors.Is(err, cbmdos.ErrFileExists) {
		t.Errorf("err = %v, want wrapping cbmdos.ErrFileExists", err)
	}
}
