// Package datasource opens the raw input of a pipeline: a local file, an
// HTTP download or an S3 object, transparently decompressed.
package datasource

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"normalize/internal/config"
	"normalize/internal/datasource/file"
	"normalize/internal/datasource/httpds"
	"normalize/internal/datasource/s3"
)

// Source opens a stream of raw bytes.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// New builds the source described by cfg. The returned name is the file
// name used to detect compression.
func New(cfg config.Source) (Source, string, error) {
	switch cfg.Kind {
	case "", "file":
		return file.NewLocal(cfg.File.Path), cfg.File.Path, nil
	case "http":
		c := httpds.NewClient(httpds.Config{
			Timeout:            cfg.HTTP.Timeout,
			MaxRetries:         cfg.HTTP.MaxRetries,
			InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
		})
		return c.Source(cfg.HTTP.URL), httpds.Basename(cfg.HTTP.URL), nil
	case "s3":
		obj, err := s3.New(s3.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
			Bucket:    cfg.S3.Bucket,
			Key:       cfg.S3.Key,
		})
		if err != nil {
			return nil, "", err
		}
		return obj, cfg.S3.Key, nil
	default:
		return nil, "", fmt.Errorf("datasource: unknown source kind %q", cfg.Kind)
	}
}

// Open builds the source, opens it and wraps the stream in a decompressor
// chosen by cfg.Compression.
func Open(ctx context.Context, cfg config.Source) (io.ReadCloser, error) {
	src, name, err := New(cfg)
	if err != nil {
		return nil, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	return Decompress(rc, cfg.Compression, name)
}

// Compression returns the codec for mode, resolving "auto" from name.
func Compression(mode, name string) string {
	switch mode {
	case "", "auto":
		switch strings.ToLower(path.Ext(name)) {
		case ".gz", ".gzip":
			return "gzip"
		case ".zst", ".zstd":
			return "zstd"
		}
		return "none"
	}
	return mode
}

// Decompress wraps rc according to mode ("auto", "none", "gzip", "zstd").
// Closing the result closes rc.
func Decompress(rc io.ReadCloser, mode, name string) (io.ReadCloser, error) {
	switch c := Compression(mode, name); c {
	case "none":
		return rc, nil
	case "gzip":
		zr, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("datasource: gzip %s: %w", name, err)
		}
		return &stacked{Reader: zr, closers: []func() error{zr.Close, rc.Close}}, nil
	case "zstd":
		zr, err := zstd.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("datasource: zstd %s: %w", name, err)
		}
		return &stacked{Reader: zr, closers: []func() error{
			func() error { zr.Close(); return nil },
			rc.Close,
		}}, nil
	default:
		_ = rc.Close()
		return nil, fmt.Errorf("datasource: unknown compression %q", c)
	}
}

type stacked struct {
	io.Reader
	closers []func() error
}

func (s *stacked) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
