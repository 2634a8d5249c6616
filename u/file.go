package u

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PathExists returns true if path exists
func PathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// FileExists returns true if path exists and is a regular file
func FileExists(path string) bool {
	st, err := os.Lstat(path)
	return err == nil && st.Mode().IsRegular()
}

// DirExists returns true if path exists and is a directory
func DirExists(path string) bool {
	st, err := os.Lstat(path)
	return err == nil && st.IsDir()
}

// FileSize gets file size, -1 if file doesn't exist
func FileSize(path string) int64 {
	st, err := os.Lstat(path)
	if err == nil {
		return st.Size()
	}
	return -1
}

// CloseNoError is like io.Closer Close() but ignores an error
// use as: defer CloseNoError(f)
func CloseNoError(f io.Closer) {
	_ = f.Close()
}

// TrimExt returns path without extension: "foo.txt.gz" => "foo.txt"
func TrimExt(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext)
}

// TrimCompressionExt removes extension only if it's
// one of known compression extensions
func TrimCompressionExt(path string) string {
	if CompressionFromPath(path) == CompressionNone {
		return path
	}
	return TrimExt(path)
}

// ExpandTildeInPath converts ~/foo to $HOME/foo
func ExpandTildeInPath(s string) string {
	if strings.HasPrefix(s, "~") {
		dir, err := os.UserHomeDir()
		if err != nil {
			return s
		}
		return dir + s[1:]
	}
	return s
}
