package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/zipsleuth"
	"github.com/nguyengg/zipsleuth/internal"
	"github.com/nguyengg/zipsleuth/internal/config"
	"github.com/nguyengg/zipsleuth/internal/source"
)

// ScanOptions are the options shared by all commands that inspect archives.
type ScanOptions struct {
	MaxScanBytes   string `long:"max-scan-bytes" description:"limit how far past the start of data of unknown size to look for the next record, e.g. 64MiB; overrides the [scan] setting"`
	MaxConcurrency int    `long:"max-concurrency" description:"use up to max-concurrency number of goroutines to download S3 objects" default:"5"`
	NoProgress     bool   `long:"no-progress" description:"never show a progress bar while reading archives"`
}

// Args are the positional arguments shared by all commands that inspect archives.
type Args struct {
	Files []flags.Filename `positional-arg-name:"file" description:"the local paths or S3 URIs (s3://bucket/key) of the archives" required:"yes"`
}

// inspectFunc receives the result of inspecting one archive, including partial results if err is non-nil.
type inspectFunc func(w io.Writer, src *source.Source, res zipsleuth.Result, err error) error

// options builds the inspect options from configuration, then from command-line flags.
func (o *ScanOptions) options(keepComment bool) (func(*zipsleuth.Options), error) {
	weights, err := config.Weights()
	if err != nil {
		return nil, fmt.Errorf("load weights error: %w", err)
	}

	sc, err := config.ForScan()
	if err != nil {
		return nil, fmt.Errorf("load scan settings error: %w", err)
	}
	if o.MaxScanBytes != "" {
		n, err := humanize.ParseBytes(o.MaxScanBytes)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-scan-bytes: %w", err)
		}
		sc.MaxScanBytes = int(n)
	}

	return func(opts *zipsleuth.Options) {
		opts.Weights = weights
		opts.MaxScanBytes = sc.MaxScanBytes
		opts.KeepComment = keepComment || sc.KeepComment
	}, nil
}

// run inspects the given files one at a time, passing each result to fn.
//
// Failures are logged per file; an error is returned at the end if not every file succeeded.
func (o *ScanOptions) run(w io.Writer, args []string, files []flags.Filename, keepComment bool, fn inspectFunc) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}
	if w == nil {
		w = os.Stdout
	}

	optFn, err := o.options(keepComment)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	success := 0
	n := len(files)
	for i, file := range files {
		logger := internal.NewLogger(i, n, file)

		if err = o.inspect(ctx, w, logger, string(file), optFn, fn); err == nil {
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		logger.Printf("inspect error: %v", err)
	}

	log.Printf("successfully inspected %d/%d files", success, n)
	if success != n {
		return fmt.Errorf("failed to inspect %d/%d files", n-success, n)
	}

	return nil
}

func (o *ScanOptions) inspect(ctx context.Context, w io.Writer, logger *log.Logger, name string, optFn func(*zipsleuth.Options), fn inspectFunc) error {
	src, err := source.Load(ctx, name, func(opts *source.Options) {
		opts.Logger = logger
		opts.Concurrency = o.MaxConcurrency
		if o.NoProgress {
			opts.Progress = false
		}
	})
	if err != nil {
		return err
	}
	defer src.Close()

	res, err := zipsleuth.Inspect(src.Bytes(), optFn)
	return fn(w, src, res, err)
}
