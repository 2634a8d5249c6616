package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kjk/embfile/embfile"
	"github.com/kjk/embfile/log"
	"github.com/kjk/embfile/minioutil"
	"github.com/kjk/embfile/u"
	"github.com/spf13/cobra"
)

func newCompressCmd() *cobra.Command {
	var format, out string
	var force bool
	cmd := &cobra.Command{
		Use:   "compress <file>",
		Short: "Write a compressed (or decompressed) copy",
		Long: `Write a copy of the file compressed with --format.
--format none writes a decompressed copy.

gz and zst copies can still be appended to. br and lz4 copies are read-only.

Examples:
  embfile compress docs.emb --format zst
  embfile compress docs.emb.zst --format none --out docs.emb`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := u.ParseCompression(format)
			if err != nil {
				return err
			}
			return runCompress(cmd.OutOrStdout(), args[0], out, c, force)
		},
	}
	cmd.Flags().StringVar(&format, "format", "zst", "Compression: gz, zst, br, lz4 or none")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination (default: <file> with a new extension)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing destination")
	return cmd
}

func runCompress(w io.Writer, src string, dst string, c u.Compression, force bool) error {
	if !u.FileExists(src) {
		return fmt.Errorf("'%s' doesn't exist or is not a file", src)
	}
	if dst == "" {
		dst = u.TrimCompressionExt(src) + c.Ext()
	}
	if filepath.Clean(dst) == filepath.Clean(src) {
		return fmt.Errorf("destination '%s' is the same as source", dst)
	}
	if u.CompressionFromPath(dst) != c {
		return fmt.Errorf("extension of '%s' doesn't match compression %s", dst, c)
	}
	if !force && u.PathExists(dst) {
		return fmt.Errorf("'%s' already exists, use --force to overwrite", dst)
	}
	// refuse to compress a file we can't read back
	if _, _, err := embfile.Parse(src); err != nil {
		return err
	}
	timeStart := time.Now()
	if err := u.CompressFile(dst, src, c); err != nil {
		return err
	}
	log.EventWithDuration("embfile.compress", time.Since(timeStart), "src", src, "dst", dst, "format", c.String())
	srcSize, dstSize := max(u.FileSize(src), 0), max(u.FileSize(dst), 0)
	fmt.Fprintf(w, "wrote %s: %s => %s\n", dst, humanize.Bytes(uint64(srcSize)), humanize.Bytes(uint64(dstSize)))
	return nil
}

func newPushCmd(a *app) *cobra.Command {
	var format, prefix string
	cmd := &cobra.Command{
		Use:   "push <file> [remote-path]",
		Short: "Upload a file to S3-compatible storage",
		Long: `Upload a file to the bucket configured in minio.* settings.

The file is validated first. With --format the upload is compressed and
the remote path gets the matching extension.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := u.ParseCompression(format)
			if err != nil {
				return err
			}
			path := args[0]
			remotePath := ""
			if len(args) > 1 {
				remotePath = args[1]
			} else {
				comp := c
				if comp == u.CompressionNone {
					comp = u.CompressionFromPath(path)
				}
				remotePath = minioutil.RemotePathFor(prefix, path, comp)
			}
			if _, _, err = embfile.Parse(path); err != nil {
				return err
			}
			mc, err := a.minioClient(cmd.Context())
			if err != nil {
				return err
			}
			info, err := mc.UploadFileCompressed(cmd.Context(), remotePath, path, c)
			if err != nil {
				return err
			}
			log.Event("embfile.push", "path", path, "remote", remotePath, "size", info.Size)
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s as %s (%s)\n", path, mc.URLForPath(remotePath), humanize.Bytes(uint64(info.Size)))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Compress upload: gz, zst, br or lz4")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Remote directory, used when remote-path is not given")
	return cmd
}

func newPullCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull <remote-path> [file]",
		Short: "Download a file from S3-compatible storage",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remotePath := args[0]
			path := ""
			if len(args) > 1 {
				path = args[1]
			}
			path = pullDestination(remotePath, path)
			mc, err := a.minioClient(cmd.Context())
			if err != nil {
				return err
			}
			if err = mc.DownloadFileAtomically(cmd.Context(), path, remotePath); err != nil {
				return err
			}
			_, records, err := embfile.Parse(path)
			if err != nil {
				return fmt.Errorf("downloaded '%s' but it doesn't parse: %w", path, err)
			}
			log.Event("embfile.pull", "path", path, "remote", remotePath, "records", len(records))
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %s as %s, %d records\n", remotePath, path, len(records))
			return nil
		},
	}
	return cmd
}

// pullDestination returns local path for remotePath. An empty path or
// an existing directory means: use the remote file name.
func pullDestination(remotePath string, path string) string {
	name := filepath.Base(remotePath)
	if path == "" {
		return name
	}
	if u.DirExists(path) {
		return filepath.Join(path, name)
	}
	return path
}

func newLsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List files in S3-compatible storage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			mc, err := a.minioClient(cmd.Context())
			if err != nil {
				return err
			}
			objects, err := mc.ListObjects(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, oi := range objects {
				fmt.Fprintf(w, "%10s  %s  %s\n", humanize.Bytes(uint64(oi.Size)), oi.LastModified.Format("2006-01-02 15:04"), oi.Key)
			}
			return nil
		},
	}
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <remote-path>...",
		Short: "Delete files from S3-compatible storage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mc, err := a.minioClient(cmd.Context())
			if err != nil {
				return err
			}
			for _, remotePath := range args {
				if !mc.Exists(cmd.Context(), remotePath) {
					return fmt.Errorf("'%s' doesn't exist", remotePath)
				}
				if err = mc.Remove(cmd.Context(), remotePath); err != nil {
					return err
				}
				log.Event("embfile.rm", "remote", remotePath)
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", remotePath)
			}
			return nil
		},
	}
	return cmd
}
