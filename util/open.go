package util

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
)

// readCloser closes the decompressor (if any) and then the underlying file.
type readCloser struct {
	io.Reader
	ctx context.Context
	gz  *gzip.Reader
	f   file.File
}

func (r *readCloser) Close() error {
	var err error
	if r.gz != nil {
		err = r.gz.Close()
	}
	if err2 := r.f.Close(r.ctx); err == nil {
		err = err2
	}
	return err
}

// IsGzip reports whether path names a gzip-compressed file, going by its
// extension.
func IsGzip(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

// Open opens path for reading. Files ending in ".gz" are decompressed
// transparently; concatenated gzip members are read as a single stream.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	rc := &readCloser{Reader: f.Reader(ctx), ctx: ctx, f: f}
	if !IsGzip(path) {
		return rc, nil
	}
	if rc.gz, err = gzip.NewReader(rc.Reader); err != nil {
		_ = f.Close(ctx)
		return nil, errors.E(err, "gunzip", path)
	}
	rc.Reader = rc.gz
	return rc, nil
}
