package embfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kjk/embfile/atomicfile"
	"github.com/kjk/embfile/log"
	"github.com/kjk/embfile/u"
)

// Metadata is the JSON object stored once, at the start of the file
type Metadata map[string]any

// Record is an embedding and the text it represents
type Record struct {
	Embedding []float64
	Text      string
}

func writeSection(b *bytes.Buffer, tag Tag, content []byte) {
	b.WriteString(markerBegin + " ")
	b.WriteString(tag.String())
	b.WriteByte('\n')
	// content always ends with newline we add, parser strips it.
	// That's how we preserve text that does or doesn't end with newline
	b.Write(content)
	b.WriteByte('\n')
	b.WriteString(markerEnd + " ")
	b.WriteString(tag.String())
	b.WriteByte('\n')
}

// MarshalHeader returns META section for meta. nil meta is written as {}
func MarshalHeader(meta Metadata) ([]byte, error) {
	if meta == nil {
		meta = Metadata{}
	}
	var js bytes.Buffer
	enc := json.NewEncoder(&js)
	// avoid unnecessary escaping
	enc.SetEscapeHTML(false)
	if err := enc.Encode(meta); err != nil {
		return nil, &EncodeError{Err: err}
	}
	// Encode adds a newline
	d := bytes.TrimSuffix(js.Bytes(), []byte{'\n'})

	var b bytes.Buffer
	writeSection(&b, TagMeta, d)
	// blank line for readability
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// MarshalRecord returns EMBEDDING and PAYLOAD sections for a record
func MarshalRecord(embedding []float64, text string) ([]byte, error) {
	if n := findMarkerLine(text); n > 0 {
		return nil, fmt.Errorf("%w (line %d)", ErrMarkerInPayload, n)
	}
	var b bytes.Buffer
	b.Grow(len(embedding)*12 + len(text) + 64)
	writeSection(&b, TagEmbedding, []byte(FormatEmbedding(embedding)))
	writeSection(&b, TagPayload, []byte(text))
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func checkAppendable(path string) (u.Compression, error) {
	if path == "" {
		return u.CompressionNone, ErrNoPath
	}
	c := u.CompressionFromPath(path)
	if !c.Appendable() {
		return c, fmt.Errorf("embfile: '%s' is %s compressed: %w", path, c, ErrNotAppendable)
	}
	return c, nil
}

func writeMaybeCompressed(w io.Writer, d []byte, c u.Compression) error {
	cw, err := u.NewCompressWriter(w, c)
	if err != nil {
		return err
	}
	_, err = cw.Write(d)
	err2 := cw.Close()
	if err != nil {
		return err
	}
	return err2
}

// Create creates a new file (or replaces existing) with META section.
// The file is written atomically: if Create fails, a previous file at
// path is left untouched.
func Create(path string, meta Metadata) error {
	c, err := checkAppendable(path)
	if err != nil {
		return err
	}
	// encode before touching the file
	hdr, err := MarshalHeader(meta)
	if err != nil {
		return err
	}
	err = atomicfile.WriteFile(path, func(w io.Writer) error {
		return writeMaybeCompressed(w, hdr, c)
	})
	if err != nil {
		return fmt.Errorf("embfile: create '%s': %w", path, err)
	}
	log.Event("embfile.create", "path", path, "keys", len(meta))
	return nil
}

// lastLineStart returns offset of the byte after the last '\n' in the
// first size bytes of f, 0 if there's none
func lastLineStart(f *os.File, size int64) (int64, error) {
	buf := make([]byte, 4096)
	end := size
	for end > 0 {
		start := max(end-int64(len(buf)), 0)
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// repairTornTail prepares a file for append if it doesn't end with a
// newline. We always end writes with a newline so the last line was cut
// short by a crash during append. A complete marker of a known section
// only lost its newline and gets it back. Anything else is removed so
// that it can't fuse with the next record. The incomplete record left
// before it is dropped by the parser when the next BEGIN arrives.
// Returns the bytes to write before the record.
func repairTornTail(f *os.File) ([]byte, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size == 0 {
		return nil, nil
	}
	var last [1]byte
	if _, err = f.ReadAt(last[:], size-1); err != nil {
		return nil, err
	}
	if last[0] == '\n' {
		return nil, nil
	}
	start, err := lastLineStart(f, size)
	if err != nil {
		return nil, err
	}
	tail := make([]byte, size-start)
	if _, err = f.ReadAt(tail, start); err != nil {
		return nil, err
	}
	kind, name := classifyLine(string(tail))
	if (kind == lineBegin || kind == lineEnd) && TagFromName(name) != TagUnknown {
		log.Verbosef("embfile: '%s' doesn't end with newline, adding it\n", f.Name())
		return []byte{'\n'}, nil
	}
	log.Verbosef("embfile: '%s' ends with incomplete line '%s', removing it\n", f.Name(), abbrev(string(tail), 32))
	if err = f.Truncate(start); err != nil {
		return nil, err
	}
	return nil, nil
}

// appendToFileRobust appends d to an existing file and closes it.
// A file without META section is not valid so we don't create it.
// For uncompressed files a torn last line from a previous crash is
// repaired first.
func appendToFileRobust(path string, d []byte, c u.Compression, sync bool) error {
	flags := os.O_APPEND | os.O_WRONLY
	if c == u.CompressionNone {
		flags = os.O_APPEND | os.O_RDWR
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return err
	}
	if c == u.CompressionNone {
		var prefix []byte
		prefix, err = repairTornTail(f)
		if err == nil && len(prefix) > 0 {
			d = append(prefix, d...)
		}
	}
	// single Write so that a failure can't leave half of the sections
	// written by us and half by someone else
	if err == nil {
		_, err = f.Write(d)
	}
	if err == nil && sync {
		err = f.Sync()
	}
	errClose := f.Close()
	if err != nil {
		return err
	}
	return errClose
}

func appendRecord(path string, embedding []float64, text string, sync bool) error {
	c, err := checkAppendable(path)
	if err != nil {
		return err
	}
	d, err := MarshalRecord(embedding, text)
	if err != nil {
		return err
	}
	if c != u.CompressionNone {
		// each record is a self-contained gzip member / zstd frame
		if d, err = u.CompressData(d, c); err != nil {
			return err
		}
	}
	if err = appendToFileRobust(path, d, c, sync); err != nil {
		return fmt.Errorf("embfile: append to '%s': %w", path, err)
	}
	log.Verbosef("embfile: appended record to '%s', dims: %d, text: %d bytes\n", path, len(embedding), len(text))
	return nil
}

// AppendRecord appends a record to a file created with Create.
// The file is opened, written, synced and closed on every call.
func AppendRecord(path string, embedding []float64, text string) error {
	return appendRecord(path, embedding, text, true)
}

// Writer appends records to a file at Path.
// It doesn't keep the file open between calls.
type Writer struct {
	Path string
	// NoSync skips fsync after each record. Faster but a crash
	// can lose records that the OS didn't flush yet.
	NoSync bool
}

// NewWriter creates a file at path with META section and returns
// a Writer for appending records to it
func NewWriter(path string, meta Metadata) (*Writer, error) {
	if err := Create(path, meta); err != nil {
		return nil, err
	}
	return &Writer{Path: path}, nil
}

// AppendRecord appends a record to w.Path
func (w *Writer) AppendRecord(embedding []float64, text string) error {
	if w == nil || w.Path == "" {
		return ErrNoPath
	}
	return appendRecord(w.Path, embedding, text, !w.NoSync)
}

// AppendRecords appends records in order, stopping at first error
func (w *Writer) AppendRecords(records []Record) error {
	for i, rec := range records {
		if err := w.AppendRecord(rec.Embedding, rec.Text); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// Dump creates a file with meta and appends all records, in order.
// It's not transactional: if it fails, the file has meta and
// records written before the failure.
func Dump(path string, meta Metadata, records []Record) error {
	w, err := NewWriter(path, meta)
	if err != nil {
		return err
	}
	if err = w.AppendRecords(records); err != nil {
		return err
	}
	log.Event("embfile.dump", "path", path, "records", len(records))
	return nil
}
