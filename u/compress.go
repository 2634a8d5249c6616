package u

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how a file on disk is compressed.
// It's derived from file extension.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionBrotli
	CompressionBzip2
	CompressionLz4
)

var (
	// ErrNotAppendable is returned when asked to append to a file
	// whose compression doesn't allow concatenating independent frames
	ErrNotAppendable = errors.New("compression format does not support appending")
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionBrotli:
		return "brotli"
	case CompressionBzip2:
		return "bzip2"
	case CompressionLz4:
		return "lz4"
	}
	return fmt.Sprintf("Compression(%d)", int(c))
}

// Ext returns file extension (with dot) used for this compression
func (c Compression) Ext() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionZstd:
		return ".zst"
	case CompressionBrotli:
		return ".br"
	case CompressionBzip2:
		return ".bz2"
	case CompressionLz4:
		return ".lz4"
	}
	return ""
}

// Appendable returns true if data compressed in independent chunks
// can be concatenated and still decoded as a single stream.
// gzip (multiple members) and zstd (multiple frames) allow that.
func (c Compression) Appendable() bool {
	return c == CompressionNone || c == CompressionGzip || c == CompressionZstd
}

// CompressionFromPath returns compression based on file extension
func CompressionFromPath(path string) Compression {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gz":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	case ".br":
		return CompressionBrotli
	case ".bz2":
		return CompressionBzip2
	case ".lz4":
		return CompressionLz4
	}
	return CompressionNone
}

// ParseCompression parses user-provided name like "gz" or "zstd"
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "none":
		return CompressionNone, nil
	case "gz", "gzip":
		return CompressionGzip, nil
	case "zst", "zstd":
		return CompressionZstd, nil
	case "br", "brotli":
		return CompressionBrotli, nil
	case "bz2", "bzip2":
		return CompressionBzip2, nil
	case "lz4":
		return CompressionLz4, nil
	}
	return CompressionNone, fmt.Errorf("unknown compression '%s'", s)
}

// implement io.ReadCloser over os.File wrapped with io.Reader.
// io.Closer goes to os.File, io.Reader goes to wrapping reader
type readerWrappedFile struct {
	f     *os.File
	r     io.Reader
	close func()
}

func (rc *readerWrappedFile) Close() error {
	if rc.close != nil {
		rc.close()
	}
	return rc.f.Close()
}

func (rc *readerWrappedFile) Read(p []byte) (int, error) {
	return rc.r.Read(p)
}

// OpenFileMaybeCompressed opens a file that might be compressed with gzip
// or bzip2 or zstd or brotli or lz4
// TODO: could sniff file content instead of checking file extension
func OpenFileMaybeCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rc := &readerWrappedFile{f: f}
	switch CompressionFromPath(path) {
	case CompressionGzip:
		r, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		rc.r = r
	case CompressionZstd:
		r, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		rc.r = r
		rc.close = r.Close
	case CompressionBrotli:
		rc.r = brotli.NewReader(f)
	case CompressionBzip2:
		rc.r = bzip2.NewReader(f)
	case CompressionLz4:
		rc.r = lz4.NewReader(f)
	default:
		return f, nil
	}
	return rc, nil
}

// ReadFileMaybeCompressed reads file, decompressing if needed
func ReadFileMaybeCompressed(path string) ([]byte, error) {
	r, err := OpenFileMaybeCompressed(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error {
	return nil
}

// NewCompressWriter wraps w in a compressing writer. Close() flushes and
// terminates the compressed frame but doesn't close w.
func NewCompressWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case CompressionZstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	case CompressionBrotli:
		return brotli.NewWriterLevel(w, brotli.BestCompression), nil
	case CompressionLz4:
		return lz4.NewWriter(w), nil
	}
	return nil, fmt.Errorf("can't compress with %s", c)
}

// CompressData compresses d in memory
func CompressData(d []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewCompressWriter(&buf, c)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CompressFile compresses srcPath and saves as dstPath.
// srcPath might itself be compressed, in which case it's decompressed first.
func CompressFile(dstPath string, srcPath string, c Compression) error {
	r, err := OpenFileMaybeCompressed(srcPath)
	if err != nil {
		return err
	}
	defer r.Close()
	fDst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	w, err := NewCompressWriter(fDst, c)
	if err != nil {
		fDst.Close()
		os.Remove(dstPath)
		return err
	}
	_, err = io.Copy(w, r)
	err2 := w.Close()
	err3 := fDst.Close()
	if err = getErr(err, err2, err3); err != nil {
		os.Remove(dstPath)
		return err
	}
	return nil
}

func getErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
