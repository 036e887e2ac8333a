package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cbmconvert/archive"
	"cbmconvert/arc"
	"cbmconvert/c2n"
	"cbmconvert/cbmdos"
	"cbmconvert/convert"
	"cbmconvert/cpm128"
	"cbmconvert/lynx"
	"cbmconvert/petscii"
	"cbmconvert/t64"

	"github.com/spf13/cobra"
)

// inputFormat and the flag letters that select it, per §6.
type inputFormat int

const (
	fmtNone inputFormat = iota
	fmtNative
	fmtPC64
	fmtARCSDA
	fmtArkive
	fmtLynx
	fmtT64
	fmtC2N
	fmtDisk
	fmtCPM
)

var (
	flagNative, flagPC64, flagARCSDA, flagArkive bool
	flagLynxIn, flagT64In, flagC2NIn             bool
	flagDiskIn, flagCPMIn                        bool

	flagSink9660, flagSinkPC64, flagSinkNative bool
	flagLynxOut, flagC2NOut                    string
	flagD4, flagD7, flagD8                     string
	flagD4o, flagD7o, flagD8o                  bool
	flagM4, flagM7, flagM8                     string
	flagM4o, flagM7o, flagM8o                  bool

	flagVerbosity int
	flagChangePolicy int
)

func init() {
	rootCmd.Flags().BoolVarP(&flagNative, "native-in", "n", false, "input is native host files")
	rootCmd.Flags().BoolVarP(&flagPC64, "pc64-in", "p", false, "input is PC64 .P00 files")
	rootCmd.Flags().BoolVarP(&flagARCSDA, "arc-in", "a", false, "input is an ARC or SDA archive")
	rootCmd.Flags().BoolVarP(&flagArkive, "arkive-in", "k", false, "input is an Arkive archive")
	rootCmd.Flags().BoolVarP(&flagLynxIn, "lynx-in", "l", false, "input is a Lynx archive")
	rootCmd.Flags().BoolVarP(&flagT64In, "t64-in", "t", false, "input is a T64 tape image")
	rootCmd.Flags().BoolVarP(&flagC2NIn, "c2n-in", "c", false, "input is a C2N tape stream")
	rootCmd.Flags().BoolVarP(&flagDiskIn, "disk-in", "d", false, "input is a CBM DOS disk image")
	rootCmd.Flags().BoolVarP(&flagCPMIn, "cpm-in", "m", false, "input is a CP/M-on-C128 disk image")

	rootCmd.Flags().BoolVarP(&flagSink9660, "iso9660-sink", "I", false, "sink: ISO-9660-safe host files")
	rootCmd.Flags().BoolVarP(&flagSinkPC64, "pc64-sink", "P", false, "sink: PC64 .P00 host files")
	rootCmd.Flags().BoolVarP(&flagSinkNative, "native-sink", "N", false, "sink: native host files")
	rootCmd.Flags().StringVarP(&flagLynxOut, "lynx-sink", "L", "", "sink: Lynx archive at `file`")
	rootCmd.Flags().StringVarP(&flagC2NOut, "c2n-sink", "C", "", "sink: C2N archive at `file`")

	rootCmd.Flags().StringVar(&flagD4, "D4", "", "sink: 1541 disk image at `file`")
	rootCmd.Flags().StringVar(&flagD7, "D7", "", "sink: 1571 disk image at `file`")
	rootCmd.Flags().StringVar(&flagD8, "D8", "", "sink: 1581 disk image at `file`")
	rootCmd.Flags().BoolVar(&flagD4o, "D4o", false, "overwrite an existing -D4 image instead of appending")
	rootCmd.Flags().BoolVar(&flagD7o, "D7o", false, "overwrite an existing -D7 image instead of appending")
	rootCmd.Flags().BoolVar(&flagD8o, "D8o", false, "overwrite an existing -D8 image instead of appending")

	rootCmd.Flags().StringVar(&flagM4, "M4", "", "sink: CP/M-on-1541 image at `file`")
	rootCmd.Flags().StringVar(&flagM7, "M7", "", "sink: CP/M-on-1571 image at `file`")
	rootCmd.Flags().StringVar(&flagM8, "M8", "", "sink: CP/M-on-1581 image at `file`")
	rootCmd.Flags().BoolVar(&flagM4o, "M4o", false, "overwrite an existing -M4 image instead of appending")
	rootCmd.Flags().BoolVar(&flagM7o, "M7o", false, "overwrite an existing -M7 image instead of appending")
	rootCmd.Flags().BoolVar(&flagM8o, "M8o", false, "overwrite an existing -M8 image instead of appending")

	rootCmd.Flags().IntVarP(&flagVerbosity, "verbosity", "v", 0, "0=errors, 1=+warnings, 2=+info")
	rootCmd.Flags().IntVarP(&flagChangePolicy, "disk-change", "i", 0, "0=never, 1=on full, 2=on full or duplicate")
}

func selectedInputFormat() (inputFormat, error) {
	selected := []inputFormat{}
	if flagNative {
		selected = append(selected, fmtNative)
	}
	if flagPC64 {
		selected = append(selected, fmtPC64)
	}
	if flagARCSDA {
		selected = append(selected, fmtARCSDA)
	}
	if flagArkive {
		selected = append(selected, fmtArkive)
	}
	if flagLynxIn {
		selected = append(selected, fmtLynx)
	}
	if flagT64In {
		selected = append(selected, fmtT64)
	}
	if flagC2NIn {
		selected = append(selected, fmtC2N)
	}
	if flagDiskIn {
		selected = append(selected, fmtDisk)
	}
	if flagCPMIn {
		selected = append(selected, fmtCPM)
	}
	if len(selected) == 0 {
		return fmtNone, fmt.Errorf("usage: exactly one input format flag is required")
	}
	if len(selected) > 1 {
		return fmtNone, fmt.Errorf("usage: only one input format flag may be given")
	}
	return selected[0], nil
}

func runConvert(c *cobra.Command, args []string) error {
	argv := args
	for i, a := range argv {
		if a == "--" {
			argv = argv[i+1:]
			break
		}
	}
	if len(argv) == 0 {
		return fmt.Errorf("usage: at least one input path is required")
	}

	format, err := selectedInputFormat()
	if err != nil {
		return err
	}

	logBuf := os.Stderr
	log := convert.DefaultLogFunc(argv[0], func(s string) { fmt.Fprintln(logBuf, s) })
	verbosity := convert.Verbosity(flagVerbosity)
	filteredLog := func(level convert.Verbosity, name *petscii.Filename, format string, a ...interface{}) {
		if level > verbosity {
			return
		}
		log(level, name, format, a...)
	}

	sink, opener, path, closeSink, err := buildSink()
	if err != nil {
		return fmt.Errorf("open/create sink: %w", err)
	}

	reader, err := readerFor(format)
	if err != nil {
		return err
	}
	items, err := convert.ReadAll(reader, argv)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	policy := convert.DiskChangePolicy(flagChangePolicy)
	if err := convert.Run(items, sink, path, policy, opener, filteredLog); err != nil {
		return fmt.Errorf("disk full: %w", err)
	}
	if closeSink != nil {
		return closeSink()
	}
	return nil
}

// readerFor adapts readInput's format switch to a convert.Reader, so
// runConvert stays format-agnostic the same way buildSink does on the
// write side.
func readerFor(format inputFormat) (convert.Reader, error) {
	return convert.ReaderFunc(func(path string) ([]convert.Item, error) {
		return readInput(format, path)
	}), nil
}

// readInput decodes one host path into the archive-neutral Item slice,
// per the reader side of §4.12.
func readInput(format inputFormat, path string) ([]convert.Item, error) {
	switch format {
	case fmtNative:
		return readNativeFile(path)
	case fmtPC64:
		return readPC64File(path)
	case fmtARCSDA:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		entries, err := arc.Decode(data)
		if err != nil {
			return nil, err
		}
		return itemsFromArc(entries), nil
	case fmtArkive:
		return nil, fmt.Errorf("arkive input is not supported by this build")
	case fmtLynx:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		entries, err := lynx.Read(data)
		if err != nil {
			return nil, err
		}
		return itemsFromLynx(entries), nil
	case fmtT64:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		entries, err := t64.Read(data)
		if err != nil {
			return nil, err
		}
		return itemsFromT64(entries), nil
	case fmtC2N:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		entries, err := c2n.Read(data)
		if err != nil {
			return nil, err
		}
		return itemsFromC2N(entries), nil
	case fmtDisk:
		return readDiskImage(path)
	case fmtCPM:
		return readCPMImage(path)
	default:
		return nil, fmt.Errorf("unsupported input format")
	}
}

func itemsFromArc(entries []arc.Entry) []convert.Item {
	out := make([]convert.Item, len(entries))
	for i, e := range entries {
		out[i] = convert.Item{Name: e.Name, Data: e.Data}
	}
	return out
}

func itemsFromLynx(entries []lynx.Entry) []convert.Item {
	out := make([]convert.Item, len(entries))
	for i, e := range entries {
		out[i] = convert.Item{Name: e.Name, Data: e.Data}
	}
	return out
}

func itemsFromT64(entries []t64.Entry) []convert.Item {
	out := make([]convert.Item, len(entries))
	for i, e := range entries {
		out[i] = convert.Item{Name: e.Name, Data: e.Data}
	}
	return out
}

func itemsFromC2N(entries []c2n.Entry) []convert.Item {
	out := make([]convert.Item, len(entries))
	for i, e := range entries {
		out[i] = convert.Item{Name: e.Name, Data: e.Data}
	}
	return out
}

// readNativeFile reconstructs a Filename from a native host file's suffix
// (",prg" etc.), the inverse of petscii.HostName's Native policy.
func readNativeFile(path string) ([]convert.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	base := path
	if idx := strings.LastIndexAny(base, "/\\"); idx >= 0 {
		base = base[idx+1:]
	}
	ft := petscii.PRG
	recordLength := uint8(0)
	name := base
	if idx := strings.LastIndex(base, ","); idx >= 0 {
		name = base[:idx]
		tag := base[idx+1:]
		switch {
		case tag == "del":
			ft = petscii.DEL
		case tag == "seq":
			ft = petscii.SEQ
		case tag == "prg":
			ft = petscii.PRG
		case tag == "usr":
			ft = petscii.USR
		case tag == "cbm":
			ft = petscii.CBM
		case strings.HasPrefix(tag, "l"):
			ft = petscii.REL
			var rl int
			fmt.Sscanf(tag[1:], "%x", &rl)
			recordLength = uint8(rl)
		}
	}
	fn := petscii.New([]byte(strings.ToUpper(name)), ft, recordLength)
	return []convert.Item{{Name: fn, Data: data}}, nil
}

// readPC64File is the inverse of petscii.P00Body. The PC64 body carries no
// file-type byte, only a record length, so a nonzero record length is
// taken to mean REL and zero to mean PRG; this is a known ambiguity of the
// container, not a full type round-trip.
func readPC64File(path string) ([]convert.Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) < 26 || string(raw[:8]) != "C64File\x00" {
		return nil, fmt.Errorf("%q is not a PC64 container", path)
	}
	name := make([]byte, petscii.NameLength)
	copy(name, raw[8:24])
	for i, b := range name {
		if b == 0 {
			name[i] = petscii.PadByte
		}
	}
	recordLength := raw[25]
	ft := petscii.PRG
	if recordLength != 0 {
		ft = petscii.REL
	}
	fn := petscii.New(name, ft, recordLength)
	return []convert.Item{{Name: fn, Data: raw[26:]}}, nil
}

func readDiskImage(path string) ([]convert.Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	geo, err := geometryForImageSize(len(raw))
	if err != nil {
		return nil, err
	}
	img, err := cbmdos.Open(geo, raw, path)
	if err != nil {
		return nil, err
	}
	entries, err := img.ListDirEnts(geo.DirTrack)
	if err != nil {
		return nil, err
	}
	var out []convert.Item
	for _, e := range entries {
		var fn petscii.Filename
		var data []byte
		var rerr error
		if e.Type == petscii.REL {
			fn, data, rerr = img.ReadREL(geo.DirTrack, e.Name)
		} else {
			fn, data, rerr = img.ReadFile(geo.DirTrack, e.Name)
		}
		if rerr != nil {
			continue
		}
		out = append(out, convert.Item{Name: fn, Data: data})
	}
	return out, nil
}

func readCPMImage(path string) ([]convert.Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cbmGeo, err := geometryForImageSize(len(raw))
	if err != nil {
		return nil, err
	}
	disk, err := cbmdos.Open(cbmGeo, raw, path)
	if err != nil {
		return nil, err
	}
	cpmGeo, err := cpmGeometryFor(cbmGeo)
	if err != nil {
		return nil, err
	}
	img := cpm128.Open(disk, cpmGeo)
	entries, err := img.ReadDirectory()
	if err != nil {
		return nil, err
	}
	seen := map[[11]byte]bool{}
	var out []convert.Item
	for _, e := range entries {
		var key [11]byte
		copy(key[:8], e.Name[:])
		copy(key[8:], e.Suffix[:])
		if seen[key] {
			continue
		}
		seen[key] = true
		data, rerr := img.ReadFile(e.Name, e.Suffix)
		if rerr != nil {
			continue
		}
		fn := petscii.New(append(append([]byte{}, e.Name[:]...), e.Suffix[:]...), petscii.PRG, 0)
		out = append(out, convert.Item{Name: fn, Data: data})
	}
	return out, nil
}

func geometryForImageSize(size int) (cbmdos.Geometry, error) {
	g1541 := cbmdos.Geometry1541()
	g1571 := cbmdos.Geometry1571()
	g1581 := cbmdos.Geometry1581()
	switch size {
	case g1541.Blocks() * 256:
		return g1541, nil
	case g1571.Blocks() * 256:
		return g1571, nil
	case g1581.Blocks() * 256:
		return g1581, nil
	default:
		return cbmdos.Geometry{}, fmt.Errorf("image size %d bytes does not match any known disk geometry", size)
	}
}

func cpmGeometryFor(g cbmdos.Geometry) (cpm128.Geometry, error) {
	switch g.Type {
	case cbmdos.Type1541:
		return cpm128.For1541(), nil
	case cbmdos.Type1571:
		return cpm128.For1571(), nil
	case cbmdos.Type1581:
		return cpm128.For1581(), nil
	default:
		return cpm128.Geometry{}, fmt.Errorf("no CP/M geometry for %s", g.Type)
	}
}

// buildSink selects exactly one sink from the -I/-P/-N/-L/-C/-D*/-M* flags
// and returns its Sink, an ImageOpener for disk-change rollover (nil for
// non-image sinks), the initial path, and a finalizer, which is nil for
// every sink here: archive sinks write themselves out in their own Close.
func buildSink() (convert.Sink, convert.ImageOpener, string, func() error, error) {
	count := 0
	if flagSink9660 {
		count++
	}
	if flagSinkPC64 {
		count++
	}
	if flagSinkNative {
		count++
	}
	if flagLynxOut != "" {
		count++
	}
	if flagC2NOut != "" {
		count++
	}
	for _, p := range []string{flagD4, flagD7, flagD8, flagM4, flagM7, flagM8} {
		if p != "" {
			count++
		}
	}
	if count == 0 {
		return nil, nil, "", nil, fmt.Errorf("usage: exactly one sink flag is required")
	}
	if count > 1 {
		return nil, nil, "", nil, fmt.Errorf("usage: only one sink flag may be given")
	}

	switch {
	case flagSink9660:
		return convert.NewHostSink(".", petscii.ISO9660, writeHostFile), nil, ".", nil, nil
	case flagSinkPC64:
		return convert.NewHostSink(".", petscii.PC64, writeHostFile), nil, ".", nil, nil
	case flagSinkNative:
		return convert.NewHostSink(".", petscii.Native, writeHostFile), nil, ".", nil, nil
	case flagLynxOut != "":
		return buildArchiveSink(flagLynxOut, lynxEncode)
	case flagC2NOut != "":
		return buildArchiveSink(flagC2NOut, c2nEncode)
	case flagD4 != "":
		return buildImageSink(flagD4, cbmdos.Geometry1541(), flagD4o)
	case flagD7 != "":
		return buildImageSink(flagD7, cbmdos.Geometry1571(), flagD7o)
	case flagD8 != "":
		return buildImageSink(flagD8, cbmdos.Geometry1581(), flagD8o)
	case flagM4 != "":
		return buildCPMSink(flagM4, cbmdos.Geometry1541(), cpm128.For1541(), flagM4o)
	case flagM7 != "":
		return buildCPMSink(flagM7, cbmdos.Geometry1571(), cpm128.For1571(), flagM7o)
	case flagM8 != "":
		return buildCPMSink(flagM8, cbmdos.Geometry1581(), cpm128.For1581(), flagM8o)
	default:
		return nil, nil, "", nil, fmt.Errorf("usage: no sink selected")
	}
}

func writeHostFile(name string, data []byte) error {
	return os.WriteFile(name, data, 0644)
}

func lynxEncode(entries []convert.Item) ([]byte, error) {
	conv := make([]lynx.Entry, len(entries))
	for i, it := range entries {
		conv[i] = lynx.Entry{Name: it.Name, Data: it.Data}
	}
	return lynx.Write(conv)
}

func c2nEncode(entries []convert.Item) ([]byte, error) {
	conv := make([]c2n.Entry, len(entries))
	for i, it := range entries {
		conv[i] = c2n.Entry{Name: it.Name, Data: it.Data}
	}
	return c2n.Write(conv), nil
}

// archiveSink buffers items in memory via archive.Archive and serializes
// them to path on Close, since Lynx and C2N are whole-file formats with no
// incremental append.
type archiveSink struct {
	arch   *archive.Archive
	path   string
	encode func([]convert.Item) ([]byte, error)
}

func (s *archiveSink) Write(item convert.Item) (convert.WriteStatus, error) {
	if err := s.arch.Write(item.Name, item.Data); err != nil {
		if errors.Is(err, archive.ErrFileExists) {
			return convert.StatusFileExists, err
		}
		return convert.StatusFail, err
	}
	return convert.StatusOK, nil
}

func (s *archiveSink) Close() error {
	entries := s.arch.Entries()
	items := make([]convert.Item, len(entries))
	for i, e := range entries {
		items[i] = convert.Item{Name: e.Name, Data: e.Data}
	}
	data, err := s.encode(items)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func buildArchiveSink(path string, encode func([]convert.Item) ([]byte, error)) (convert.Sink, convert.ImageOpener, string, func() error, error) {
	sink := &archiveSink{arch: archive.New(), path: path, encode: encode}
	return sink, nil, path, nil, nil
}

func imageOpenerFor(geo cbmdos.Geometry) convert.ImageOpener {
	return func(path string) (convert.Sink, error) {
		return openOrFormatImageSink(path, geo, true)
	}
}

// openOrFormatImageSink opens path if it already holds a valid image of
// geo's size, or formats a fresh one when overwrite is true or the file
// does not exist.
func openOrFormatImageSink(path string, geo cbmdos.Geometry, overwrite bool) (convert.Sink, error) {
	var img *cbmdos.Image
	raw, err := os.ReadFile(path)
	if err == nil && !overwrite && len(raw) == geo.Blocks()*256 {
		img, err = cbmdos.Open(geo, raw, path)
		if err != nil {
			return nil, err
		}
	} else {
		img = cbmdos.New(geo)
		if err := img.Format(cbmdos.DiskTitle, [2]byte{'6', '4'}); err != nil {
			return nil, err
		}
	}

	flush := func(im *cbmdos.Image) error {
		return os.WriteFile(path, im.Buffer, 0644)
	}
	return convert.NewImageSink(img, geo.DirTrack, flush), nil
}

func buildImageSink(path string, geo cbmdos.Geometry, overwrite bool) (convert.Sink, convert.ImageOpener, string, func() error, error) {
	sink, err := openOrFormatImageSink(path, geo, overwrite)
	if err != nil {
		return nil, nil, "", nil, err
	}
	return sink, imageOpenerFor(geo), path, nil, nil
}

// openOrFormatCPMSink opens the CBM-DOS-backed CP/M image at path if it
// already has the right size, or formats a fresh one.
func openOrFormatCPMSink(path string, diskGeo cbmdos.Geometry, cpmGeo cpm128.Geometry, overwrite bool) (convert.Sink, error) {
	var disk *cbmdos.Image
	raw, err := os.ReadFile(path)
	fresh := true
	if err == nil && !overwrite && len(raw) == diskGeo.Blocks()*256 {
		disk, err = cbmdos.Open(diskGeo, raw, path)
		if err != nil {
			return nil, err
		}
		fresh = false
	} else {
		disk = cbmdos.New(diskGeo)
	}

	img := cpm128.Open(disk, cpmGeo)
	if fresh {
		if err := img.Format(); err != nil {
			return nil, err
		}
	}

	flush := func(im *cpm128.Image) error {
		return os.WriteFile(path, im.Disk.Buffer, 0644)
	}
	return convert.NewCPMSink(img, 0, flush), nil
}

func buildCPMSink(path string, diskGeo cbmdos.Geometry, cpmGeo cpm128.Geometry, overwrite bool) (convert.Sink, convert.ImageOpener, string, func() error, error) {
	sink, err := openOrFormatCPMSink(path, diskGeo, cpmGeo, overwrite)
	if err != nil {
		return nil, nil, "", nil, err
	}
	opener := func(next string) (convert.Sink, error) {
		return openOrFormatCPMSink(next, diskGeo, cpmGeo, true)
	}
	return sink, opener, path, nil, nil
}
