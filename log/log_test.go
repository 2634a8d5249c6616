package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	prev := Output
	Output = &buf
	t.Cleanup(func() {
		Output = prev
		Verbose = false
		Close()
	})
	return &buf
}

func todayFile(dir string) string {
	name := time.Now().UTC().Format("2006-01-02") + ".txt"
	return filepath.Join(dir, name)
}

func TestLogfToFile(t *testing.T) {
	buf := captureOutput(t)
	dir := t.TempDir()
	Init(&Config{Dir: dir})

	Logf("parsed %d records\n", 3)
	Close()

	assert.Equal(t, "parsed 3 records\n", buf.String())
	d, err := os.ReadFile(todayFile(filepath.Join(dir, "log")))
	require.NoError(t, err)
	assert.Equal(t, "parsed 3 records\n", string(d))
}

func TestVerbosef(t *testing.T) {
	buf := captureOutput(t)
	Verbosef("hidden\n")
	assert.Empty(t, buf.String())
	Verbose = true
	Verbosef("shown %s\n", "now")
	assert.Equal(t, "shown now\n", buf.String())
}

func TestErrorfCallstack(t *testing.T) {
	buf := captureOutput(t)
	dir := t.TempDir()
	Init(&Config{Dir: dir})
	Errorf("failed: %s", "boom")
	Close()

	s := buf.String()
	assert.True(t, strings.HasPrefix(s, "failed: boom\n"))
	assert.Contains(t, s, "log_test.go")
	d, err := os.ReadFile(todayFile(filepath.Join(dir, "errors")))
	require.NoError(t, err)
	assert.Equal(t, s, string(d))
}

func TestIfErrf(t *testing.T) {
	buf := captureOutput(t)
	assert.False(t, IfErrf(nil))
	assert.Empty(t, buf.String())
	assert.True(t, IfErrf(errors.New("bad file"), "parse of '%s' failed", "emb.txt"))
	assert.True(t, strings.HasPrefix(buf.String(), "parse of 'emb.txt' failed\n"))
}

func TestWriteDailyNil(t *testing.T) {
	var w *WriteDaily
	assert.NoError(t, w.WriteString("foo"))
	assert.NoError(t, w.Close())
}

func TestMarshalEventLine(t *testing.T) {
	tm := time.Unix(5, 0)
	got := MarshalEventLine("embfile.create", tm, []byte("path: a.txt"))
	assert.Equal(t, "--- 11 5000 embfile.create\npath: a.txt\n", string(got))

	got = MarshalEventLine("", tm, nil)
	assert.Equal(t, "--- 0 5000\n", string(got))
}

func TestEventData(t *testing.T) {
	_, err := EventData("path")
	assert.Error(t, err)
	_, err = EventData([]int{1}, "x")
	assert.Error(t, err)
	d, err := EventData()
	assert.NoError(t, err)
	assert.Nil(t, d)
	d, err = EventData("records", 2)
	require.NoError(t, err)
	assert.Contains(t, string(d), "records")
}

func TestEventToFile(t *testing.T) {
	captureOutput(t)
	dir := t.TempDir()
	Init(&Config{Dir: dir})
	Event("embfile.append", "path", "emb.txt", "dims", 3)
	Close()

	d, err := os.ReadFile(todayFile(filepath.Join(dir, "events")))
	require.NoError(t, err)
	s := string(d)
	assert.True(t, strings.HasPrefix(s, "--- "))
	assert.Contains(t, s, " embfile.append\n")
	assert.Contains(t, s, "emb.txt")
}
