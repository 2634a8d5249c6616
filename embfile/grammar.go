package embfile

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Tag is the type of a section, the word after BEGIN / END
type Tag int

const (
	// TagNone means we're not inside any section
	TagNone Tag = iota
	TagMeta
	TagEmbedding
	TagPayload
	// TagUnknown is a syntactically valid section with a tag we don't know
	TagUnknown
)

const (
	markerBegin = "BEGIN"
	markerEnd   = "END"
)

func (t Tag) String() string {
	switch t {
	case TagNone:
		return ""
	case TagMeta:
		return "META"
	case TagEmbedding:
		return "EMBEDDING"
	case TagPayload:
		return "PAYLOAD"
	}
	return "UNKNOWN"
}

// TagFromName returns a tag for a section name. It's case-sensitive
func TagFromName(name string) Tag {
	switch name {
	case "META":
		return TagMeta
	case "EMBEDDING":
		return TagEmbedding
	case "PAYLOAD":
		return TagPayload
	}
	return TagUnknown
}

type lineKind int

const (
	lineContent lineKind = iota
	lineBlank
	lineBegin
	lineEnd
)

var (
	reBegin = regexp.MustCompile(`^\s*` + markerBegin + `\s+(\w+)\s*$`)
	reEnd   = regexp.MustCompile(`^\s*` + markerEnd + `\s+(\w+)\s*$`)
)

// classifyLine decides what a line is. line can end with a newline.
// For markers it also returns the section name.
func classifyLine(line string) (lineKind, string) {
	if strings.TrimSpace(line) == "" {
		return lineBlank, ""
	}
	// cheap check before running regexps
	s := strings.TrimLeft(line, " \t\v\f\r")
	if !strings.HasPrefix(s, markerBegin) && !strings.HasPrefix(s, markerEnd) {
		return lineContent, ""
	}
	if m := reBegin.FindStringSubmatch(line); m != nil {
		return lineBegin, m[1]
	}
	if m := reEnd.FindStringSubmatch(line); m != nil {
		return lineEnd, m[1]
	}
	return lineContent, ""
}

// findMarkerLine returns 1-based number of the first line in s
// that would be parsed as a section marker, 0 if there's none
func findMarkerLine(s string) int {
	for i, line := range strings.Split(s, "\n") {
		kind, _ := classifyLine(line)
		if kind == lineBegin || kind == lineEnd {
			return i + 1
		}
	}
	return 0
}

// formatFloat returns the shortest representation that parses back to
// the same value. Very small and very large values use exponent and
// integral values get ".0" e.g. [1.0, 2.5, 1e-05]
func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatEmbedding renders v as a list literal: [1.0, -0.25, 3e-07]
func FormatEmbedding(v []float64) string {
	var sb strings.Builder
	sb.Grow(len(v)*12 + 2)
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatFloat(f))
	}
	sb.WriteByte(']')
	return sb.String()
}

// ParseEmbedding parses a list literal written by FormatEmbedding.
// Whitespace, including newlines, around the brackets and numbers is
// ignored. "[]" is an empty embedding.
func ParseEmbedding(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	n := len(s)
	if n < 2 || s[0] != '[' || s[n-1] != ']' {
		return nil, fmt.Errorf("%w: expected list in [ ], got '%s'", ErrInvalidEmbedding, abbrev(s, 32))
	}
	inner := strings.TrimSpace(s[1 : n-1])
	if inner == "" {
		return []float64{}, nil
	}
	parts := strings.Split(inner, ",")
	res := make([]float64, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		f, err := strconv.ParseFloat(part, 64)
		// out of range values are kept as +/-Inf
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, fmt.Errorf("%w: element %d: '%s' is not a number", ErrInvalidEmbedding, i, abbrev(part, 32))
		}
		res[i] = f
	}
	return res, nil
}

// FromFloat32 converts embedding returned by models that use float32
func FromFloat32(v []float32) []float64 {
	res := make([]float64, len(v))
	for i, f := range v {
		res[i] = float64(f)
	}
	return res
}

func abbrev(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
