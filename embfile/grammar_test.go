package embfile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLine(t *testing.T) {
	tests := []struct {
		line string
		kind lineKind
		name string
	}{
		{"\n", lineBlank, ""},
		{"   \t\n", lineBlank, ""},
		{"", lineBlank, ""},
		{"BEGIN META\n", lineBegin, "META"},
		{"  BEGIN   EMBEDDING  \n", lineBegin, "EMBEDDING"},
		{"END PAYLOAD", lineEnd, "PAYLOAD"},
		{"\tEND PAYLOAD\r\n", lineEnd, "PAYLOAD"},
		{"BEGIN NOTES_2\n", lineBegin, "NOTES_2"},
		{"BEGINNING\n", lineContent, ""},
		{"BEGIN\n", lineContent, ""},
		{"BEGIN the story\n", lineContent, ""},
		{"END-PAYLOAD\n", lineContent, ""},
		{"begin META\n", lineContent, ""},
		{"the END META\n", lineContent, ""},
		{"[1.0, 2.0]\n", lineContent, ""},
	}
	for _, test := range tests {
		kind, name := classifyLine(test.line)
		assert.Equal(t, test.kind, kind, "line: %q", test.line)
		assert.Equal(t, test.name, name, "line: %q", test.line)
	}
}

func TestTagFromName(t *testing.T) {
	for _, tag := range []Tag{TagMeta, TagEmbedding, TagPayload} {
		assert.Equal(t, tag, TagFromName(tag.String()))
	}
	assert.Equal(t, TagUnknown, TagFromName("meta"))
	assert.Equal(t, TagUnknown, TagFromName("NOTES"))
	assert.Equal(t, "", TagNone.String())
}

func TestFindMarkerLine(t *testing.T) {
	assert.Equal(t, 0, findMarkerLine(""))
	assert.Equal(t, 0, findMarkerLine("hello\n\nworld\n"))
	assert.Equal(t, 0, findMarkerLine("BEGIN the story\nthe END"))
	assert.Equal(t, 2, findMarkerLine("a\nEND PAYLOAD\nb"))
	assert.Equal(t, 1, findMarkerLine("  BEGIN META"))
}

func TestFormatEmbedding(t *testing.T) {
	tests := []struct {
		v   []float64
		exp string
	}{
		{nil, "[]"},
		{[]float64{}, "[]"},
		{[]float64{1, 2}, "[1.0, 2.0]"},
		{[]float64{3.5}, "[3.5]"},
		{[]float64{-0.25, 0.0001, 0.00001}, "[-0.25, 0.0001, 1e-05]"},
		{[]float64{1e21, 123456789}, "[1e+21, 123456789.0]"},
		{[]float64{math.Inf(1), math.Inf(-1)}, "[+Inf, -Inf]"},
	}
	for _, test := range tests {
		got := FormatEmbedding(test.v)
		assert.Equal(t, test.exp, got)
	}
}

func TestParseEmbedding(t *testing.T) {
	tests := []struct {
		s   string
		exp []float64
	}{
		{"[]", []float64{}},
		{"  [ ]\n", []float64{}},
		{"[1.0, 2.0]", []float64{1, 2}},
		{"\n[1,2,\n 3]\n", []float64{1, 2, 3}},
		{"[-1e-05, 3.5]", []float64{-1e-05, 3.5}},
		{"[1e400]", []float64{math.Inf(1)}},
	}
	for _, test := range tests {
		got, err := ParseEmbedding(test.s)
		require.NoError(t, err, "s: %q", test.s)
		assert.Equal(t, test.exp, got, "s: %q", test.s)
	}

	v, err := ParseEmbedding("[NaN, +Inf]")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v[0]))
	assert.True(t, math.IsInf(v[1], 1))

	invalid := []string{
		"",
		"[",
		"1.0, 2.0",
		"[1.0, 2.0",
		"[1.0, abc]",
		"[1.0,, 2.0]",
		"[1.0,]",
		"(1.0)",
	}
	for _, s := range invalid {
		_, err := ParseEmbedding(s)
		assert.ErrorIs(t, err, ErrInvalidEmbedding, "s: %q", s)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	v := []float64{0.1, 0.2, 1.0 / 3, -7, 1e-300, 5e300, math.MaxFloat64, math.SmallestNonzeroFloat64, 0}
	got, err := ParseEmbedding(FormatEmbedding(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	nan := FormatEmbedding([]float64{math.NaN()})
	got, err = ParseEmbedding(nan)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got[0]))
}

func TestFromFloat32(t *testing.T) {
	got := FromFloat32([]float32{1, 0.5, -2})
	assert.Equal(t, []float64{1, 0.5, -2}, got)
	assert.Empty(t, FromFloat32(nil))
}
