package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/grepro/spaghettifs/core"
)

// Config carries optional S3 authentication/endpoint overrides for a
// backup or restore destination. A zero Config falls back to the AWS
// SDK's default credential chain and region resolution.
type Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string // custom S3-compatible endpoint, e.g. for MinIO
}

type urlScheme string

const (
	schemeLocal urlScheme = "local"
	schemeFile  urlScheme = "file"
	schemeHTTP  urlScheme = "http"
	schemeHTTPS urlScheme = "https"
	schemeS3    urlScheme = "s3"
)

func detectScheme(dest string) urlScheme {
	lower := strings.ToLower(dest)
	switch {
	case strings.HasPrefix(lower, "s3://"):
		return schemeS3
	case strings.HasPrefix(lower, "https://"):
		return schemeHTTPS
	case strings.HasPrefix(lower, "http://"):
		return schemeHTTP
	case strings.HasPrefix(lower, "file://"):
		return schemeFile
	default:
		return schemeLocal
	}
}

// openWriter opens a write stream for an export destination: a local
// path or an s3:// URL. http(s):// destinations are read-only.
func openWriter(dest string, cfg *Config) (io.WriteCloser, error) {
	switch detectScheme(dest) {
	case schemeLocal, schemeFile:
		return os.Create(strings.TrimPrefix(dest, "file://"))
	case schemeS3:
		return openS3Writer(dest, cfg)
	case schemeHTTP, schemeHTTPS:
		return nil, core.New(core.NotSupported, "archive.openWriter", "http(s) destinations are read-only")
	default:
		return nil, core.New(core.NotSupported, "archive.openWriter", "unsupported destination scheme: "+dest)
	}
}

// openReader opens a read stream for an import source: a local path,
// an http(s):// URL, or an s3:// URL.
func openReader(src string, cfg *Config) (io.ReadCloser, error) {
	switch detectScheme(src) {
	case schemeLocal, schemeFile:
		return os.Open(strings.TrimPrefix(src, "file://"))
	case schemeHTTP, schemeHTTPS:
		return openHTTPReader(src)
	case schemeS3:
		return openS3Reader(src, cfg)
	default:
		return nil, core.New(core.NotSupported, "archive.openReader", "unsupported source scheme: "+src)
	}
}

func openHTTPReader(url string) (io.ReadCloser, error) {
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Get(url)
	if err != nil {
		return nil, core.Wrap(core.StoreError, "archive.openHTTPReader", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, core.New(core.StoreError, "archive.openHTTPReader", fmt.Sprintf("http status %d", resp.StatusCode))
	}
	return resp.Body, nil
}

func parseS3URL(url string) (bucket, key string, err error) {
	path := strings.TrimPrefix(url, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", core.New(core.InvalidFormat, "archive.parseS3URL", "invalid s3 URL: "+url)
	}
	return parts[0], parts[1], nil
}

func newS3Client(ctx context.Context, cfg *Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg != nil && cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg != nil && cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, core.Wrap(core.StoreError, "archive.newS3Client", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg != nil && cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

func openS3Reader(url string, cfg *Config) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, core.Wrap(core.StoreError, "archive.openS3Reader", err)
	}
	return resp.Body, nil
}

// s3Writer buffers a whole export in memory and uploads it on Close,
// matching db/remote.go's s3Writer shape: archives are bounded by
// repository size, not streamed indefinitely, so a single PutObject
// call is adequate.
type s3Writer struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    []byte
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, core.New(core.StoreError, "archive.s3Writer.Write", "writer is closed")
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf),
	})
	if err != nil {
		return core.Wrap(core.StoreError, "archive.s3Writer.Close", err)
	}
	return nil
}

func openS3Writer(url string, cfg *Config) (io.WriteCloser, error) {
	bucket, key, err := parseS3URL(url)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &s3Writer{ctx: ctx, client: client, bucket: bucket, key: key}, nil
}
