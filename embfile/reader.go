package embfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kjk/embfile/log"
)

// ParseOptions changes how strictly the file is checked
type ParseOptions struct {
	// Strict turns anomalies that are otherwise tolerated into errors:
	// a second META section, content outside of sections, END without
	// BEGIN, BEGIN inside an open section, unknown tags, PAYLOAD without
	// EMBEDDING, records before META and an unclosed section at the end
	Strict bool

	// LegacyBlankLines reads files from older writers that padded every
	// marker with blank lines: blank lines inside PAYLOAD are skipped and
	// the payload keeps its trailing newline
	LegacyBlankLines bool
}

// Reader reads records one at a time:
//
//	r := embfile.NewReader(bufio.NewReader(f), nil)
//	for r.ReadNextRecord() {
//		rec := r.Record
//	}
//	if err := r.Err(); err != nil {
//		return err
//	}
type Reader struct {
	r    *bufio.Reader
	opts ParseOptions

	// Metadata is the content of the last META section read so far
	Metadata Metadata

	// Record is available after ReadNextRecord().
	// Each call sets a new *Record so it's safe to keep it.
	Record *Record

	// Line is the number of lines read so far
	Line int

	// currently open section. Name is kept to detect
	// END FOO closing BEGIN BAR when both are unknown
	section     Tag
	sectionName string
	sectionLine int

	// one buffer per known tag, indexed by Tag
	bufs [TagUnknown]bytes.Buffer

	embedding      []float64
	embeddingFresh bool
	sawMeta        bool

	atEOF bool
	done  bool
	err   error
}

// NewReader creates a reader. opts can be nil
func NewReader(r *bufio.Reader, opts *ParseOptions) *Reader {
	res := &Reader{
		r:        r,
		Metadata: Metadata{},
	}
	if opts != nil {
		res.opts = *opts
	}
	return res
}

// Err returns the error that stopped ReadNextRecord(), nil at the end of input
func (r *Reader) Err() error {
	return r.err
}

// Done returns true if we're finished reading
func (r *Reader) Done() bool {
	return r.err != nil || r.done
}

// ReadNextRecord reads until the next PAYLOAD section closes.
// Returns false at the end of input or on error, check Err().
func (r *Reader) ReadNextRecord() bool {
	if r.Done() {
		return false
	}
	for {
		if r.atEOF {
			r.done = true
			r.err = r.finish()
			return false
		}
		line, err := r.r.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				r.err = fmt.Errorf("embfile: read after line %d: %w", r.Line, err)
				return false
			}
			r.atEOF = true
		}
		if line == "" {
			continue
		}
		r.Line++
		rec, err := r.processLine(line)
		if err != nil {
			// we always end writes with a newline so a last line without it
			// is an END marker cut short by a crash during append
			torn := r.atEOF && !strings.HasSuffix(line, "\n")
			if torn && !r.opts.Strict && errors.Is(err, ErrTagMismatch) {
				log.Verbosef("embfile: line %d: ignoring incomplete last line: %s\n", r.Line, err)
				continue
			}
			r.err = err
			return false
		}
		if rec != nil {
			r.Record = rec
			return true
		}
	}
}

func (r *Reader) errorf(section string, err error) error {
	return &DecodeError{
		Line:    r.Line,
		Section: section,
		Err:     err,
	}
}

func (r *Reader) processLine(line string) (*Record, error) {
	kind, name := classifyLine(line)
	switch kind {
	case lineBlank:
		if r.section == TagPayload && !r.opts.LegacyBlankLines {
			r.bufs[TagPayload].WriteString(line)
		}
		return nil, nil
	case lineBegin:
		return nil, r.beginSection(name)
	case lineEnd:
		return r.endSection(name)
	}
	return nil, r.content(line)
}

func (r *Reader) beginSection(name string) error {
	tag := TagFromName(name)
	strict := r.opts.Strict
	if r.section != TagNone {
		if strict {
			return r.errorf(name, fmt.Errorf("%w (%s open since line %d)", ErrNestedSection, r.sectionName, r.sectionLine))
		}
		log.Verbosef("embfile: line %d: BEGIN %s inside %s (line %d), dropping %s\n", r.Line, name, r.sectionName, r.sectionLine, r.sectionName)
	}
	if strict {
		switch tag {
		case TagUnknown:
			return r.errorf(name, ErrUnknownTag)
		case TagMeta:
			if r.sawMeta {
				return r.errorf(name, ErrDuplicateMeta)
			}
		default:
			if !r.sawMeta {
				return r.errorf(name, ErrMissingMeta)
			}
		}
	}
	r.section = tag
	r.sectionName = name
	r.sectionLine = r.Line
	if tag != TagUnknown {
		r.bufs[tag].Reset()
	}
	return nil
}

func (r *Reader) endSection(name string) (*Record, error) {
	if r.section == TagNone {
		if r.opts.Strict {
			return nil, r.errorf(name, ErrUnexpectedEnd)
		}
		log.Verbosef("embfile: line %d: END %s outside of a section, ignoring\n", r.Line, name)
		return nil, nil
	}
	if name != r.sectionName {
		return nil, r.errorf(name, fmt.Errorf("%w: BEGIN %s at line %d", ErrTagMismatch, r.sectionName, r.sectionLine))
	}
	tag := r.section
	r.section = TagNone
	r.sectionName = ""

	switch tag {
	case TagMeta:
		return nil, r.finishMeta()
	case TagEmbedding:
		return nil, r.finishEmbedding()
	case TagPayload:
		return r.finishPayload()
	}
	log.Verbosef("embfile: line %d: skipped unknown section %s\n", r.Line, name)
	return nil, nil
}

func (r *Reader) finishMeta() error {
	var meta Metadata
	d := r.bufs[TagMeta].Bytes()
	if err := json.Unmarshal(d, &meta); err != nil {
		return r.errorf(TagMeta.String(), err)
	}
	if meta == nil {
		// "null"
		meta = Metadata{}
	}
	if r.sawMeta {
		log.Verbosef("embfile: line %d: another META section, replacing previous metadata\n", r.Line)
	}
	r.Metadata = meta
	r.sawMeta = true
	return nil
}

func (r *Reader) finishEmbedding() error {
	v, err := ParseEmbedding(r.bufs[TagEmbedding].String())
	if err != nil {
		return r.errorf(TagEmbedding.String(), err)
	}
	r.embedding = v
	r.embeddingFresh = true
	return nil
}

func (r *Reader) finishPayload() (*Record, error) {
	if !r.embeddingFresh {
		if r.opts.Strict {
			return nil, r.errorf(TagPayload.String(), ErrMissingEmbedding)
		}
		log.Verbosef("embfile: line %d: PAYLOAD without EMBEDDING, re-using previous embedding\n", r.Line)
	}
	text := r.bufs[TagPayload].String()
	if !r.opts.LegacyBlankLines {
		// remove newline added by the writer
		text = strings.TrimSuffix(text, "\n")
	}
	r.embeddingFresh = false
	return &Record{
		Embedding: r.embedding,
		Text:      text,
	}, nil
}

func (r *Reader) content(line string) error {
	switch r.section {
	case TagNone:
		if r.opts.Strict {
			return r.errorf("", ErrStrayContent)
		}
		log.Verbosef("embfile: line %d: content outside of a section, ignoring\n", r.Line)
	case TagUnknown:
		// content of unknown sections is ignored
	default:
		r.bufs[r.section].WriteString(line)
	}
	return nil
}

// finish is called at the end of input
func (r *Reader) finish() error {
	if r.opts.Strict {
		if r.section != TagNone {
			return &DecodeError{Line: r.sectionLine, Section: r.sectionName, Err: ErrUnterminatedSection}
		}
		if !r.sawMeta {
			return r.errorf("", ErrMissingMeta)
		}
		return nil
	}
	if r.section != TagNone {
		log.Verbosef("embfile: section %s started at line %d is not closed, dropping it\n", r.sectionName, r.sectionLine)
	}
	return nil
}
