package rdsearch

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kdomanski/iso9660"
	"github.com/pkg/errors"
)

// Expected logical source filenames per container form. ISO distributions
// carry the same four logical files under 8.3 upper-case names.
var (
	DirSourceFiles = []string{"NSRLMfg.txt", "NSRLOs.txt", "NSRLProd.txt", "NSRLFile.txt.zip"}
	ISOSourceFiles = []string{"NSRLMFG.TXT", "NSRLOS.TXT", "NSRLPROD.TXT", "NSRLFILE.ZIP"}
)

// FileTableEntry is the name of the tabular member inside the zipped file
// table. Its first line is a header and is skipped.
const FileTableEntry = "NSRLFile.txt"

// MatchSourceFiles maps each wanted filename to its case-insensitive match in
// the container's actual file list. Filename casing is not standardized
// across distribution forms, so matching must be case-blind. It fails with a
// MissingSourceFileError naming every wanted file that has no match.
func MatchSourceFiles(wanted, actual []string) (map[string]string, error) {
	matches := make(map[string]string, len(wanted))
	var missing []string
	for _, w := range wanted {
		found := false
		for _, a := range actual {
			if strings.EqualFold(w, a) {
				matches[w] = a
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, w)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingSourceFileError{Missing: missing, Present: actual}
	}
	return matches, nil
}

// Container abstracts the two distribution forms of the dataset: a plain
// directory and an ISO 9660 disk image. Open returns single-pass sequential
// content; re-reading an entry requires a fresh Open. OpenRandomAccess is for
// payloads that need positional access (the zipped file table) and returns a
// cleanup function which must run on every exit path.
type Container interface {
	Names() ([]string, error)
	Open(name string) (io.ReadCloser, error)
	OpenRandomAccess(name string) (ra io.ReaderAt, size int64, cleanup func() error, err error)
	Close() error
}

type dirContainer struct {
	path string
}

// OpenDir returns a Container over the immediate files of a directory.
func OpenDir(path string) (Container, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "statting source path")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("source path %s is not a directory", path)
	}
	return &dirContainer{path: path}, nil
}

func (c *dirContainer) Names() ([]string, error) {
	entries, err := os.ReadDir(c.path)
	if err != nil {
		return nil, errors.Wrap(err, "listing source directory")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (c *dirContainer) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(c.path, name))
	return f, errors.Wrapf(err, "opening %s", name)
}

// OpenRandomAccess opens the file directly; directory entries are already
// seekable, so no copy is needed.
func (c *dirContainer) OpenRandomAccess(name string) (io.ReaderAt, int64, func() error, error) {
	f, err := os.Open(filepath.Join(c.path, name))
	if err != nil {
		return nil, 0, nil, errors.Wrapf(err, "opening %s", name)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, errors.Wrapf(err, "statting %s", name)
	}
	return f, info.Size(), f.Close, nil
}

func (c *dirContainer) Close() error { return nil }

type isoContainer struct {
	f       *os.File
	entries []*iso9660.File
}

// OpenISO returns a Container over the root directory of an ISO 9660 image.
func OpenISO(path string) (Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening image")
	}
	img, err := iso9660.OpenImage(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "reading image")
	}
	root, err := img.RootDir()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "reading image root directory")
	}
	children, err := root.GetChildren()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "listing image root directory")
	}
	return &isoContainer{f: f, entries: children}, nil
}

// isoEntryName strips the ISO 9660 file version suffix some images record.
func isoEntryName(f *iso9660.File) string {
	return strings.TrimSuffix(f.Name(), ";1")
}

func (c *isoContainer) Names() ([]string, error) {
	names := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		if !e.IsDir() {
			names = append(names, isoEntryName(e))
		}
	}
	return names, nil
}

func (c *isoContainer) entry(name string) (*iso9660.File, error) {
	for _, e := range c.entries {
		if !e.IsDir() && isoEntryName(e) == name {
			return e, nil
		}
	}
	return nil, errors.Errorf("no entry %q in image", name)
}

func (c *isoContainer) Open(name string) (io.ReadCloser, error) {
	e, err := c.entry(name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(e.Reader()), nil
}

// OpenRandomAccess copies the entry to a temporary file, since image content
// streams cannot seek. The cleanup function removes the copy; callers must
// invoke it on every exit path.
func (c *isoContainer) OpenRandomAccess(name string) (io.ReaderAt, int64, func() error, error) {
	e, err := c.entry(name)
	if err != nil {
		return nil, 0, nil, err
	}
	tmp, err := os.CreateTemp("", "rdsearch-filetable-*.zip")
	if err != nil {
		return nil, 0, nil, errors.Wrap(err, "creating temporary copy")
	}
	cleanup := func() error {
		cerr := tmp.Close()
		if rerr := os.Remove(tmp.Name()); rerr != nil {
			return errors.Wrap(rerr, "removing temporary copy")
		}
		return cerr
	}
	n, err := io.Copy(tmp, e.Reader())
	if err != nil {
		cleanup()
		return nil, 0, nil, errors.Wrapf(err, "copying %s to temporary store", name)
	}
	return tmp, n, cleanup, nil
}

func (c *isoContainer) Close() error { return c.f.Close() }

// LineDecoder adapts a raw byte stream into a text stream by decoding it line
// by line through DecodeLine, so downstream parsing always sees valid UTF-8
// no matter how individual records were encoded. The optional header skip
// drops the first line.
type LineDecoder struct {
	br      *bufio.Reader
	pending []byte
	skip    bool
	err     error
}

// NewLineDecoder wraps r. When skipHeader is set the first line is dropped.
func NewLineDecoder(r io.Reader, skipHeader bool) *LineDecoder {
	return &LineDecoder{br: bufio.NewReader(r), skip: skipHeader}
}

// Read implements io.Reader over the decoded text.
func (d *LineDecoder) Read(p []byte) (int, error) {
	for len(d.pending) == 0 {
		if d.err != nil {
			return 0, d.err
		}
		raw, err := d.br.ReadBytes('\n')
		if err != nil {
			d.err = err
		}
		if len(raw) == 0 {
			continue
		}
		if d.skip {
			d.skip = false
			continue
		}
		d.pending = []byte(DecodeLine(raw))
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}
