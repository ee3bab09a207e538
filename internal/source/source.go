// Package source loads a whole archive into memory from a local file or an S3 object.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/nguyengg/zipsleuth/codec"
	"github.com/nguyengg/zipsleuth/internal/config"
	"github.com/nguyengg/zipsleuth/zip/scan"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/term"
)

// Source is an archive held entirely in memory.
//
// Close must be called once the archive's bytes are no longer in use.
type Source struct {
	// Name is the local path or S3 URI as given to Load.
	Name string
	// Size is the number of bytes read before any decompression.
	Size int64
	// Codec is the codec that was used to unwrap the archive, nil if the archive was not compressed as a whole.
	Codec codec.Codec

	bb *bytebufferpool.ByteBuffer
}

// Bytes returns the contents of the archive.
//
// The slice must not be modified, nor used after Close.
func (s *Source) Bytes() []byte {
	if s.bb == nil {
		return nil
	}

	return s.bb.B
}

// Close returns the underlying buffer to the pool.
func (s *Source) Close() error {
	if s.bb != nil {
		bytebufferpool.Put(s.bb)
		s.bb = nil
	}

	return nil
}

// Options customises Load.
type Options struct {
	// Loader provides S3 clients and per-bucket settings.
	//
	// By default, config.DefaultLoader is used.
	Loader *config.Loader

	// Client overrides the S3 client created by Loader.
	Client S3API

	// Concurrency is the number of goroutines downloading parts of an S3 object.
	//
	// By default, manager.DefaultDownloadConcurrency is used.
	Concurrency int

	// Progress controls whether a progress bar is written to stderr.
	//
	// By default, a progress bar is shown only if stderr is a terminal.
	Progress bool

	// Logger is used to log progress at the boundaries.
	//
	// By default, log.Default() is used.
	Logger *log.Logger
}

// Load reads the archive with the given name into memory.
//
// name can be a local path or an S3 URI in format s3://bucket/key. If the name has a .gz, .xz, or .zst extension, or
// if the content starts with the magic bytes of one, the content is decompressed.
//
// The (decompressed) content must start with a ZIP record signature, otherwise the returned error wraps
// scan.ErrInvalidContainer.
func Load(ctx context.Context, name string, optFns ...func(*Options)) (*Source, error) {
	opts := &Options{
		Loader:   config.DefaultLoader,
		Progress: term.IsTerminal(int(os.Stderr.Fd())),
		Logger:   log.Default(),
	}
	for _, fn := range optFns {
		fn(opts)
	}

	var (
		s   = &Source{Name: name}
		err error
	)

	if IsS3URI(name) {
		s.bb, err = loadS3(ctx, name, opts)
	} else {
		s.bb, err = loadFile(ctx, name, opts)
	}
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Size = int64(s.bb.Len())

	c, _ := codec.ForName(name)
	if c == nil {
		c = codec.Detect(s.bb.B)
	}
	if c != nil {
		bb, err := decode(c, s.bb.B)
		if _ = s.Close(); err != nil {
			return nil, fmt.Errorf("decompress %s error: %w", c.Ext(), err)
		}

		s.bb, s.Codec = bb, c
		opts.Logger.Printf("decompressed %s from %d to %d bytes", c.Ext(), s.Size, bb.Len())
	}

	if !scan.IsZIP(s.bb.B) {
		_ = s.Close()
		return nil, fmt.Errorf("%s does not start with a ZIP record signature: %w", name, scan.ErrInvalidContainer)
	}

	return s, nil
}

func loadFile(ctx context.Context, name string, opts *Options) (*bytebufferpool.ByteBuffer, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open file error: %w", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file error: %w", err)
	}

	var r io.Reader = &contextReader{ctx: ctx, r: f}
	if opts.Progress {
		bar := defaultBytes(fi.Size(), "reading")
		defer bar.Close()
		r = io.TeeReader(r, bar)
	}

	bb := bytebufferpool.Get()
	if _, err = bb.ReadFrom(r); err != nil {
		bytebufferpool.Put(bb)
		return nil, fmt.Errorf("read file error: %w", err)
	}

	return bb, nil
}

func decode(c codec.Codec, b []byte) (*bytebufferpool.ByteBuffer, error) {
	dec, err := c.NewDecoder(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	bb := bytebufferpool.Get()
	if _, err = bb.ReadFrom(dec); err != nil {
		bytebufferpool.Put(bb)
		return nil, err
	}

	return bb, nil
}

// contextReader stops reading once the context is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	return r.r.Read(p)
}
