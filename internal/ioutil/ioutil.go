// Package ioutil wraps grailbio/base/file so the rest of amplseq can open
// and create files without caring whether they are local, remote, or
// gzip-compressed. Reads sniff the compression type from the file name
// via fileio.DetermineType; writes gzip anything whose name ends in .gz,
// which covers the *_view.txt.gz sink.
package ioutil

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/klauspost/compress/gzip"
)

// ReadCloser is a file opened for reading, transparently decompressed when
// its extension says it's gzipped. Close releases both the decompressor
// (if any) and the underlying file.
type ReadCloser struct {
	f  file.File
	r  io.Reader
	gz *gzip.Reader
}

// Read implements io.Reader.
func (rc *ReadCloser) Read(p []byte) (int, error) { return rc.r.Read(p) }

// Close closes the gzip decompressor, if present, then the underlying file.
func (rc *ReadCloser) Close(ctx context.Context) error {
	var e errors.Once
	if rc.gz != nil {
		e.Set(rc.gz.Close())
	}
	e.Set(rc.f.Close(ctx))
	return e.Err()
}

// Open opens path for reading, decompressing on the fly if fileio.
// DetermineType identifies it as gzip. Plain text and .gz inputs are
// both accepted.
func Open(ctx context.Context, path string) (*ReadCloser, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	rc := &ReadCloser{f: f, r: f.Reader(ctx)}
	if fileio.DetermineType(path) == fileio.Gzip {
		gz, err := gzip.NewReader(rc.r)
		if err != nil {
			_ = f.Close(ctx)
			return nil, errors.E(err, "gzip", path)
		}
		rc.gz = gz
		rc.r = gz
	}
	return rc, nil
}

// WriteCloser is a file opened for writing, transparently gzip-compressed
// when its name ends in .gz.
type WriteCloser struct {
	f  file.File
	w  io.Writer
	gz *gzip.Writer
}

// Write implements io.Writer.
func (wc *WriteCloser) Write(p []byte) (int, error) { return wc.w.Write(p) }

// Close flushes the gzip compressor, if present, then closes the
// underlying file.
func (wc *WriteCloser) Close(ctx context.Context) error {
	var e errors.Once
	if wc.gz != nil {
		e.Set(wc.gz.Close())
	}
	e.Set(wc.f.Close(ctx))
	return e.Err()
}

// Create creates path for writing. When path ends in ".gz" the returned
// writer gzip-compresses everything written to it, used by view.Writer for
// the *_view.txt.gz sink.
func Create(ctx context.Context, path string) (*WriteCloser, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	wc := &WriteCloser{f: f, w: f.Writer(ctx)}
	if strings.HasSuffix(path, ".gz") {
		wc.gz = gzip.NewWriter(wc.w)
		wc.w = wc.gz
	}
	return wc, nil
}
