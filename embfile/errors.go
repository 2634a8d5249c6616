package embfile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kjk/embfile/u"
)

var (
	// ErrNoPath is returned when writing without a destination path
	ErrNoPath = errors.New("embfile: no file path")

	// ErrMarkerInPayload is returned by AppendRecord when the text has a line
	// that would be parsed as BEGIN / END marker. The format has no escaping
	// so such text can't be stored.
	ErrMarkerInPayload = errors.New("embfile: payload contains a section marker line")

	// ErrNotAppendable is returned for files compressed with brotli, bzip2 or lz4
	ErrNotAppendable = u.ErrNotAppendable

	// ErrInvalidEmbedding is the cause of DecodeError for an EMBEDDING
	// section that is not a list of numbers
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrTagMismatch: END tag is different than BEGIN tag of the open section
	ErrTagMismatch = errors.New("END tag doesn't match BEGIN tag")

	// the following are only reported in strict mode

	ErrUnexpectedEnd       = errors.New("END outside of a section")
	ErrNestedSection       = errors.New("BEGIN inside an open section")
	ErrDuplicateMeta       = errors.New("more than one META section")
	ErrMissingMeta         = errors.New("no META section before records")
	ErrStrayContent        = errors.New("content outside of a section")
	ErrMissingEmbedding    = errors.New("PAYLOAD without preceding EMBEDDING")
	ErrUnknownTag          = errors.New("unknown section tag")
	ErrUnterminatedSection = errors.New("section not closed at end of file")
)

// EncodeError is returned when metadata can't be serialized to JSON.
// Nothing is written to the file in that case.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return "embfile: encoding metadata: " + e.Err.Error()
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError is returned when parsing fails. Err is either an error from
// decoding section content (json, ErrInvalidEmbedding) or one of the
// structural errors (ErrTagMismatch etc.)
type DecodeError struct {
	// Path is the file being parsed, empty when parsing a reader
	Path string
	// Line is 1-based line number where the problem was detected
	Line int
	// Section is the tag of the section involved, if any
	Section string
	Err     error
}

func (e *DecodeError) Error() string {
	var sb strings.Builder
	sb.WriteString("embfile: ")
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteByte(':')
	}
	fmt.Fprintf(&sb, "%d: ", e.Line)
	if e.Section != "" {
		sb.WriteString(e.Section)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Err.Error())
	return sb.String()
}

func (e *DecodeError) Unwrap() error { return e.Err }
