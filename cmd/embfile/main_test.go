package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/kjk/embfile/embfile"
	"github.com/kjk/embfile/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCmd executes the root command with args. HOME points to an empty
// directory so a config file on the machine running tests isn't used.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(func() {
		log.Output = os.Stdout
		log.Verbose = false
	})
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTestFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	meta := embfile.Metadata{"model": "x", "dims": 2}
	records := []embfile.Record{
		{Embedding: []float64{1, 2}, Text: "hello"},
		{Embedding: []float64{3.5, -1}, Text: "world\n\nsecond paragraph"},
		{Embedding: []float64{0.25}, Text: ""},
	}
	require.NoError(t, embfile.Dump(path, meta, records))
	return path
}

func TestInfo(t *testing.T) {
	path := writeTestFile(t, "docs.emb")
	out, err := runCmd(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "records:     3\n")
	assert.Contains(t, out, "dimensions:  1, 2\n")
	assert.Contains(t, out, "payload:     28 B\n")
	assert.Contains(t, out, `"model": "x"`)
}

func TestInfoMissingFile(t *testing.T) {
	_, err := runCmd(t, "info", filepath.Join(t.TempDir(), "missing.emb"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCat(t *testing.T) {
	path := writeTestFile(t, "docs.emb")
	out, err := runCmd(t, "cat", path)
	require.NoError(t, err)
	exp := `--- record 0, 2 dims
[1.0, 2.0]
hello
--- record 1, 2 dims
[3.5, -1.0]
world

second paragraph
--- record 2, 1 dims
[0.25]

`
	assert.Equal(t, exp, out)

	out, err = runCmd(t, "cat", path, "--index", "1")
	require.NoError(t, err)
	assert.Equal(t, "--- record 1, 2 dims\n[3.5, -1.0]\nworld\n\nsecond paragraph\n", out)

	_, err = runCmd(t, "cat", path, "--index", "3")
	assert.ErrorContains(t, err, "no record 3")
}

func TestCatToon(t *testing.T) {
	path := writeTestFile(t, "docs.emb")
	out, err := runCmd(t, "cat", path, "--toon", "--index", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "records")
	assert.Contains(t, out, "hello")
}

func TestValidate(t *testing.T) {
	good := writeTestFile(t, "good.emb")
	bad := filepath.Join(t.TempDir(), "bad.emb")
	d := "BEGIN META\n{}\nEND META\nstray\nBEGIN EMBEDDING\n[1.0]\nEND EMBEDDING\nBEGIN PAYLOAD\nx\nEND PAYLOAD\n"
	require.NoError(t, os.WriteFile(bad, []byte(d), 0644))

	out, err := runCmd(t, "validate", good, bad)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   "+good+": 3 records\n")
	assert.Contains(t, out, "ok   "+bad+": 1 records\n")

	out, err = runCmd(t, "validate", "--strict", good, bad)
	assert.ErrorContains(t, err, "1 of 2 files failed validation")
	assert.Contains(t, out, "FAIL embfile: "+bad+":4: content outside of a section")
}

func TestCompress(t *testing.T) {
	path := writeTestFile(t, "docs.emb")
	for _, format := range []string{"gz", "zst", "br", "lz4"} {
		out, err := runCmd(t, "compress", path, "--format", format)
		require.NoError(t, err, format)
		dst := path + "." + format
		assert.Contains(t, out, "wrote "+dst)

		meta, records, err := embfile.Parse(dst)
		require.NoError(t, err, format)
		assert.Equal(t, "x", meta["model"])
		assert.Len(t, records, 3)
	}

	// decompress back
	dst := filepath.Join(t.TempDir(), "plain.emb")
	_, err := runCmd(t, "compress", path+".zst", "--format", "none", "--out", dst)
	require.NoError(t, err)
	d1, err := os.ReadFile(path)
	require.NoError(t, err)
	d2, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestCompressErrors(t *testing.T) {
	path := writeTestFile(t, "docs.emb")
	_, err := runCmd(t, "compress", path, "--format", "xz")
	assert.ErrorContains(t, err, "unknown compression 'xz'")

	_, err = runCmd(t, "compress", path, "--format", "none")
	assert.ErrorContains(t, err, "is the same as source")

	_, err = runCmd(t, "compress", path, "--format", "gz", "--out", path+".zst")
	assert.ErrorContains(t, err, "doesn't match compression gzip")

	_, err = runCmd(t, "compress", path, "--format", "bz2")
	assert.ErrorContains(t, err, "can't compress with bzip2")

	_, err = runCmd(t, "compress", filepath.Dir(path), "--format", "gz")
	assert.ErrorContains(t, err, "is not a file")
}

func TestCompressOverwrite(t *testing.T) {
	path := writeTestFile(t, "docs.emb")
	_, err := runCmd(t, "compress", path, "--format", "gz")
	require.NoError(t, err)

	_, err = runCmd(t, "compress", path, "--format", "gz")
	assert.ErrorContains(t, err, "already exists, use --force")

	out, err := runCmd(t, "compress", path, "--format", "gz", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path+".gz")
}

func TestPullDestination(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "docs.emb.zst", pullDestination("a/b/docs.emb.zst", ""))
	assert.Equal(t, filepath.Join(dir, "docs.emb.zst"), pullDestination("a/b/docs.emb.zst", dir))
	assert.Equal(t, filepath.Join(dir, "local.emb"), pullDestination("a/b/docs.emb", filepath.Join(dir, "local.emb")))
}

func TestRemoteCommandsNeedConfig(t *testing.T) {
	path := writeTestFile(t, "docs.emb")
	t.Setenv("EMBFILE_MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("EMBFILE_MINIO_ACCESS", "")
	t.Setenv("EMBFILE_MINIO_SECRET", "")
	t.Setenv("EMBFILE_MINIO_BUCKET", "")

	_, err := runCmd(t, "push", path)
	assert.ErrorContains(t, err, "missing minio config: access, secret, bucket")

	_, err = runCmd(t, "pull", "dir/docs.emb")
	assert.ErrorContains(t, err, "missing minio config")

	_, err = runCmd(t, "ls")
	assert.ErrorContains(t, err, "missing minio config")

	_, err = runCmd(t, "rm", "dir/docs.emb")
	assert.ErrorContains(t, err, "missing minio config")
}

func TestPushValidatesFirst(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.emb")
	require.NoError(t, os.WriteFile(bad, []byte("BEGIN META\n{\nEND META\n"), 0644))
	_, err := runCmd(t, "push", bad)
	var decodeErr *embfile.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "embfile.toml")
	d := `verbose = true

[minio]
endpoint = "s3.example.com"
access = "file-access"
bucket = "embeddings"
insecure = true
`
	require.NoError(t, os.WriteFile(configPath, []byte(d), 0644))
	t.Setenv("EMBFILE_MINIO_ACCESS", "env-access")

	v, err := initViper(configPath)
	require.NoError(t, err)
	assert.True(t, v.GetBool("verbose"))

	c := minioConfig(v)
	assert.Equal(t, "s3.example.com", c.Endpoint)
	assert.Equal(t, "env-access", c.Access)
	assert.Equal(t, "embeddings", c.Bucket)
	assert.Equal(t, "", c.Secret)
	assert.True(t, c.Insecure)
}

func TestConfigFileMissing(t *testing.T) {
	_, err := initViper(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorContains(t, err, "reading config")

	// without explicit path a missing file is fine
	t.Setenv("HOME", t.TempDir())
	v, err := initViper("")
	require.NoError(t, err)
	assert.False(t, v.GetBool("verbose"))
}

func TestVerboseFlag(t *testing.T) {
	path := writeTestFile(t, "docs.emb")
	var errOut bytes.Buffer
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(func() {
		log.Output = os.Stdout
		log.Verbose = false
	})
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--verbose", "validate", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "event embfile.parse")
}

func TestLogDir(t *testing.T) {
	path := writeTestFile(t, "docs.emb")
	logDir := t.TempDir()
	_, err := runCmd(t, "--log-dir", logDir, "info", path)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(logDir, "events"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
