/*
Package embfile reads and writes embedding files: a human-readable text
format that stores a JSON metadata header followed by records, each record
being an embedding vector and the text it was computed from.

	BEGIN META
	{"model":"nomic-embed-text"}
	END META

	BEGIN EMBEDDING
	[0.12, -0.5, 1.0]
	END EMBEDDING
	BEGIN PAYLOAD
	the text, stored verbatim,

	possibly with blank lines
	END PAYLOAD

Files are written once with Create and then grow one record at a time with
AppendRecord. Every append opens, writes, syncs and closes the file so a
crash can't damage records written before it.

	w, err := embfile.NewWriter("docs.emb.txt", embfile.Metadata{"model": "x"})
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err = w.AppendRecord(chunk.Vector, chunk.Text); err != nil {
			return err
		}
	}

	meta, records, err := embfile.Parse("docs.emb.txt")

Parsing is a single pass over lines. Blank lines outside of PAYLOAD sections
are ignored. By default the parser is lenient about anomalies (a second META
block wins, content outside of sections is dropped); ParseOptions.Strict
turns those into errors.

Files ending in .gz or .zst are compressed. Each append adds a separate gzip
member or zstd frame, which decode as a single stream. Files ending in .br,
.bz2 or .lz4 can be parsed but not written.
*/
package embfile
