package atomicfile

import (
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Some references:
// - https://www.slideshare.net/nan1nan1/eat-my-data
// - https://lwn.net/Articles/457667/

var (
	// ErrCancelled is returned by calls subsequent to RemoveIfNotClosed()
	ErrCancelled = errors.New("cancelled")

	// ensure we implement desired interface
	_ io.WriteCloser = &File{}
)

// DefaultPerm is the permission of the destination file.
// os.CreateTemp creates files with 0600 which is too strict for
// files meant to be shared
const DefaultPerm os.FileMode = 0644

// File is a destination file being written atomically
type File struct {
	dstPath string
	dir     string
	tmpFile *os.File
	tmpPath string
	err     error
}

// New creates a temporary file next to path. Content becomes visible
// at path only after successful Close()
func New(path string) (*File, error) {
	dir, fName := filepath.Split(path)
	if fName == "" {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	// fails early if dir doesn't exist or isn't writeable
	tmpFile, err := os.CreateTemp(dir, "."+fName+".tmp-*")
	if err != nil {
		return nil, err
	}
	f := &File{
		dstPath: path,
		dir:     dir,
		tmpFile: tmpFile,
		tmpPath: tmpFile.Name(),
	}
	if err = tmpFile.Chmod(DefaultPerm); err != nil {
		f.RemoveIfNotClosed()
		return nil, err
	}
	return f, nil
}

// remembers the first error and removes temporary file
func (f *File) setErr(err error) error {
	if err == nil {
		return nil
	}
	if f.err == nil {
		f.err = err
	}
	_ = f.Close()
	return err
}

// Write writes data to a temporary file
func (f *File) Write(d []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmpFile.Write(d)
	return n, f.setErr(err)
}

// WriteString writes s to a temporary file
func (f *File) WriteString(s string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.tmpFile.WriteString(s)
	return n, f.setErr(err)
}

func (f *File) alreadyClosed() bool {
	return f.tmpFile == nil
}

// RemoveIfNotClosed removes the temp file if we didn't Close
// the file yet. Destination file is not touched.
// Use it with defer to cleanup after errors or a panic.
// RemoveIfNotClosed after Close is a no-op.
func (f *File) RemoveIfNotClosed() {
	if f == nil || f.alreadyClosed() {
		return
	}
	f.err = ErrCancelled
	_ = f.Close()
}

// Close syncs and renames temporary file to destination.
// Can be called multiple times, returns the first error.
func (f *File) Close() error {
	if f.alreadyClosed() {
		return f.err
	}
	tmpFile := f.tmpFile
	f.tmpFile = nil

	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := tmpFile.Sync()
	errClose := tmpFile.Close()

	didRename := false
	defer func() {
		if !didRename {
			_ = os.Remove(f.tmpPath)
		}
	}()

	if f.err != nil {
		return f.err
	}
	err := errSync
	if err == nil {
		err = errClose
	}
	if err == nil {
		// over-writes dstPath if it exists
		err = os.Rename(f.tmpPath, f.dstPath)
		didRename = err == nil
		syncDir(f.dir)
	}
	f.err = err
	return err
}

// makes rename durable. errors are ignored, it's a nice to have
func syncDir(dir string) {
	fdir, _ := os.Open(dir)
	if fdir != nil {
		_ = fdir.Sync()
		_ = fdir.Close()
	}
}

// WriteFile atomically replaces path with whatever fn writes
func WriteFile(path string, fn func(w io.Writer) error) error {
	f, err := New(path)
	if err != nil {
		return err
	}
	defer f.RemoveIfNotClosed()
	if err = fn(f); err != nil {
		return err
	}
	return f.Close()
}
