/*
Package atomicfile writes a file so that readers see either the old content
or the complete new content, never a half-written file.

Data goes to a temporary file in the destination directory. Close() syncs it
and renames it over the destination. If Write() or Close() fails, the
temporary file is removed and the destination is left untouched.

Embedding files are created this way so that a crash while writing the
metadata header can't leave a file without a valid META section:

	err := atomicfile.WriteFile(path, func(w io.Writer) error {
		_, err := w.Write(header)
		return err
	})
*/
package atomicfile
