package embfile

import (
	"bufio"
	"errors"
	"io"

	"github.com/kjk/embfile/u"
)

// Parse reads a file and returns metadata and records in file order.
// Compressed files (.gz, .zst, .br, .bz2, .lz4) are decompressed.
// On error, nothing is returned except the error.
func Parse(path string) (Metadata, []Record, error) {
	return ParseWithOptions(path, nil)
}

// ParseWithOptions is like Parse but with options. opts can be nil
func ParseWithOptions(path string, opts *ParseOptions) (Metadata, []Record, error) {
	if path == "" {
		return nil, nil, ErrNoPath
	}
	f, err := u.OpenFileMaybeCompressed(path)
	if err != nil {
		return nil, nil, err
	}
	defer u.CloseNoError(f)

	meta, records, err := ParseReader(f, opts)
	if err != nil {
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			decodeErr.Path = path
		}
		return nil, nil, err
	}
	return meta, records, nil
}

// ParseReader parses embedding file content from r. opts can be nil
func ParseReader(r io.Reader, opts *ParseOptions) (Metadata, []Record, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	rd := NewReader(br, opts)
	records := []Record{}
	for rd.ReadNextRecord() {
		records = append(records, *rd.Record)
	}
	if err := rd.Err(); err != nil {
		return nil, nil, err
	}
	return rd.Metadata, records, nil
}
