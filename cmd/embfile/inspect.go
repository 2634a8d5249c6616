package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kjk/embfile/embfile"
	"github.com/kjk/embfile/log"
	"github.com/kjk/embfile/u"
	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"github.com/toon-format/toon-go"
)

func parseFile(path string, opts *embfile.ParseOptions) (embfile.Metadata, []embfile.Record, error) {
	timeStart := time.Now()
	meta, records, err := embfile.ParseWithOptions(path, opts)
	if err != nil {
		return nil, nil, err
	}
	log.EventWithDuration("embfile.parse", time.Since(timeStart), "path", path, "records", len(records))
	return meta, records, nil
}

func newInfoCmd() *cobra.Command {
	var opts embfile.ParseOptions
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Show metadata and record statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.OutOrStdout(), args[0], &opts)
		},
	}
	cmd.Flags().BoolVar(&opts.LegacyBlankLines, "legacy", false, "Skip blank lines inside payloads")
	return cmd
}

// dimsSummary returns distinct embedding lengths e.g. "768" or "3, 768"
func dimsSummary(records []embfile.Record) string {
	var dims []int
	for _, rec := range records {
		n := len(rec.Embedding)
		if !slices.Contains(dims, n) {
			dims = append(dims, n)
		}
	}
	if len(dims) == 0 {
		return "-"
	}
	slices.Sort(dims)
	var parts []string
	for _, n := range dims {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ", ")
}

func runInfo(w io.Writer, path string, opts *embfile.ParseOptions) error {
	meta, records, err := parseFile(path, opts)
	if err != nil {
		return err
	}
	d, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	payloadSize := 0
	for _, rec := range records {
		payloadSize += len(rec.Text)
	}
	fmt.Fprintf(w, "file:        %s\n", path)
	fmt.Fprintf(w, "size:        %s\n", humanize.Bytes(uint64(max(u.FileSize(path), 0))))
	fmt.Fprintf(w, "records:     %d\n", len(records))
	fmt.Fprintf(w, "dimensions:  %s\n", dimsSummary(records))
	fmt.Fprintf(w, "payload:     %s\n", humanize.Bytes(uint64(payloadSize)))
	fmt.Fprintf(w, "metadata:\n%s", pretty.Pretty(d))
	return nil
}

type catOptions struct {
	parse embfile.ParseOptions
	toon  bool
	index int
}

func newCatCmd() *cobra.Command {
	var opts catOptions
	cmd := &cobra.Command{
		Use:   "cat <file>",
		Short: "Print records",
		Long: `Print records as text or as TOON.

Examples:
  embfile cat docs.emb
  embfile cat docs.emb.zst --index 3
  embfile cat docs.emb --toon`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCat(cmd.OutOrStdout(), args[0], &opts)
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&opts.toon, "toon", false, "Print records as TOON")
	flags.IntVar(&opts.index, "index", -1, "Only print the record with this 0-based index")
	flags.BoolVar(&opts.parse.Strict, "strict", false, "Fail on malformed structure")
	flags.BoolVar(&opts.parse.LegacyBlankLines, "legacy", false, "Skip blank lines inside payloads")
	return cmd
}

func runCat(w io.Writer, path string, opts *catOptions) error {
	_, records, err := parseFile(path, &opts.parse)
	if err != nil {
		return err
	}
	first, last := 0, len(records)
	if opts.index >= 0 {
		if opts.index >= len(records) {
			return fmt.Errorf("no record %d, '%s' has %d records", opts.index, path, len(records))
		}
		first, last = opts.index, opts.index+1
	}

	if opts.toon {
		var recs []map[string]any
		for i := first; i < last; i++ {
			rec := records[i]
			recs = append(recs, map[string]any{
				"index":     i,
				"embedding": rec.Embedding,
				"text":      rec.Text,
			})
		}
		d, err := toon.Marshal(map[string]any{"records": recs})
		if err != nil {
			return err
		}
		_, err = w.Write(d)
		return err
	}

	for i := first; i < last; i++ {
		rec := records[i]
		fmt.Fprintf(w, "--- record %d, %d dims\n", i, len(rec.Embedding))
		fmt.Fprintf(w, "%s\n%s\n", embfile.FormatEmbedding(rec.Embedding), rec.Text)
	}
	return nil
}

func newValidateCmd() *cobra.Command {
	var opts embfile.ParseOptions
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check that files parse",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args, &opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "Fail on malformed structure")
	cmd.Flags().BoolVar(&opts.LegacyBlankLines, "legacy", false, "Skip blank lines inside payloads")
	return cmd
}

func runValidate(w io.Writer, paths []string, opts *embfile.ParseOptions) error {
	nFailed := 0
	for _, path := range paths {
		_, records, err := parseFile(path, opts)
		if err != nil {
			nFailed++
			fmt.Fprintf(w, "FAIL %s\n", err)
			continue
		}
		fmt.Fprintf(w, "ok   %s: %d records\n", path, len(records))
	}
	if nFailed > 0 {
		return fmt.Errorf("%d of %d files failed validation", nFailed, len(paths))
	}
	return nil
}
