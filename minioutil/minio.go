package minioutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kjk/embfile/atomicfile"
	"github.com/kjk/embfile/log"
	"github.com/kjk/embfile/u"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// Insecure uses http instead of https, for local minio servers
	Insecure     bool
	RequestTrace io.Writer
}

// Validate checks that all required fields are set
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("must provide config")
	}
	var missing []string
	if c.Access == "" {
		missing = append(missing, "access")
	}
	if c.Secret == "" {
		missing = append(missing, "secret")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing minio config: %s", strings.Join(missing, ", "))
	}
	return nil
}

type Client struct {
	Client *minio.Client
	config *Config
	Bucket string
}

// New creates a client and checks the bucket exists
func New(ctx context.Context, config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := config
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	if c.RequestTrace != nil {
		mc.TraceOn(c.RequestTrace)
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return &Client{
		Client: mc,
		config: c,
		Bucket: c.Bucket,
	}, nil
}

func (c *Client) URLBase() string {
	url := c.Client.EndpointURL()
	return fmt.Sprintf("%s://%s.%s/", url.Scheme, c.Bucket, url.Host)
}

func (c *Client) URLForPath(remotePath string) string {
	return c.URLBase() + strings.TrimPrefix(remotePath, "/")
}

func (c *Client) Exists(ctx context.Context, remotePath string) bool {
	_, err := c.Client.StatObject(ctx, c.Bucket, remotePath, minio.StatObjectOptions{})
	return err == nil
}

// ContentType returns content type for an embedding file stored under
// remotePath. Compressed files are served as the compressed type.
func ContentType(remotePath string) string {
	switch u.CompressionFromPath(remotePath) {
	case u.CompressionGzip:
		return "application/gzip"
	case u.CompressionZstd:
		return "application/zstd"
	case u.CompressionBrotli:
		return "application/x-brotli"
	case u.CompressionBzip2:
		return "application/x-bzip2"
	case u.CompressionLz4:
		return "application/x-lz4"
	}
	return "text/plain; charset=utf-8"
}

// RemotePathFor returns remote path for localPath stored with compression c
// under prefix: ("dir", "data/x.emb.gz", zstd) => "dir/x.emb.zst"
func RemotePathFor(prefix string, localPath string, c u.Compression) string {
	name := filepath.Base(localPath)
	if c != u.CompressionNone {
		name = u.TrimCompressionExt(name) + c.Ext()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// UploadFile uploads the file as is
func (c *Client) UploadFile(ctx context.Context, remotePath string, path string) (minio.UploadInfo, error) {
	opts := minio.PutObjectOptions{
		ContentType: ContentType(remotePath),
	}
	info, err := c.Client.FPutObject(ctx, c.Bucket, remotePath, path, opts)
	if err == nil {
		log.Verbosef("minio: uploaded '%s' as '%s', %d bytes\n", path, remotePath, info.Size)
	}
	return info, err
}

// UploadFileCompressed uploads the file re-compressed with comp.
// The file is decompressed first if it's already compressed.
func (c *Client) UploadFileCompressed(ctx context.Context, remotePath string, path string, comp u.Compression) (info minio.UploadInfo, err error) {
	if comp == u.CompressionNone || comp == u.CompressionFromPath(path) {
		return c.UploadFile(ctx, remotePath, path)
	}
	// TODO: use io.Pipe() to do compression more efficiently
	d, err := u.ReadFileMaybeCompressed(path)
	if err != nil {
		return
	}
	d, err = u.CompressData(d, comp)
	if err != nil {
		return
	}
	opts := minio.PutObjectOptions{
		ContentType: ContentType(remotePath),
	}
	r := bytes.NewReader(d)
	info, err = c.Client.PutObject(ctx, c.Bucket, remotePath, r, int64(len(d)), opts)
	if err == nil {
		log.Verbosef("minio: uploaded '%s' as '%s' (%s), %d bytes\n", path, remotePath, comp, info.Size)
	}
	return info, err
}

// DownloadFileAtomically downloads remotePath to dstPath. dstPath only
// changes if the whole download succeeded.
func (c *Client) DownloadFileAtomically(ctx context.Context, dstPath string, remotePath string) error {
	obj, err := c.Client.GetObject(ctx, c.Bucket, remotePath, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	// ensure there's a dir for destination file
	dir := filepath.Dir(dstPath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(dstPath, func(w io.Writer) error {
		n, err := io.Copy(w, obj)
		if err == nil {
			log.Verbosef("minio: downloaded '%s' as '%s', %d bytes\n", remotePath, dstPath, n)
		}
		return err
	})
}

// ListObjects returns all objects under prefix
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]minio.ObjectInfo, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}
	var res []minio.ObjectInfo
	for oi := range c.Client.ListObjects(ctx, c.Bucket, opts) {
		if oi.Err != nil {
			return nil, oi.Err
		}
		res = append(res, oi)
	}
	return res, nil
}

func (c *Client) Remove(ctx context.Context, remotePath string) error {
	opts := minio.RemoveObjectOptions{}
	return c.Client.RemoveObject(ctx, c.Bucket, remotePath, opts)
}
