package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/zipsleuth"
	"github.com/nguyengg/zipsleuth/internal/source"
	"github.com/nguyengg/zipsleuth/zip/scan"
)

// Analyze prints the origin verdict for each archive.
type Analyze struct {
	ScanOptions
	Verbose bool `short:"v" long:"verbose" description:"also list every entry with its sizes, modified time, and decoded extra fields"`
	Args    Args `positional-args:"yes"`

	out io.Writer
}

func (c *Analyze) Execute(args []string) error {
	return c.run(c.out, args, c.Args.Files, false, c.print)
}

func (c *Analyze) print(w io.Writer, src *source.Source, res zipsleuth.Result, err error) error {
	if err != nil {
		return err
	}

	r := res.Report
	_, _ = fmt.Fprintf(w, "%s: %s\n", src.Name, r.Verdict())
	_, _ = fmt.Fprintf(w, "  scores: %s\n", formatScores(r))
	_, _ = fmt.Fprintf(w, "  signals: %s\n", featureNames(r.Features))
	if r.Features.SharedRootFolder {
		_, _ = fmt.Fprintf(w, "  root folder: %s\n", r.RootFolder)
	}
	_, _ = fmt.Fprintf(w, "  encoding: %s\n", r.Encoding)
	if r.TimezoneSamples > 0 {
		_, _ = fmt.Fprintf(w, "  timezone: MS-DOS times are %s in %d/%d entries\n",
			formatOffset(r.TimezoneOffset), r.TimezoneSamples, r.Entries)
	}

	size := humanize.IBytes(uint64(len(src.Bytes())))
	if src.Codec != nil {
		size += fmt.Sprintf(" (%s from %s)", src.Codec.Ext(), humanize.IBytes(uint64(src.Size)))
	}
	_, _ = fmt.Fprintf(w, "  size: %s\n", size)

	consistency := "consistent"
	if !res.Consistent() {
		consistency = "INCONSISTENT"
	}
	_, _ = fmt.Fprintf(w, "  records: %d local file headers, %d central directory headers, EOCD declares %d (%s)\n",
		res.Count(scan.KindLocalFileHeader),
		res.Count(scan.KindCentralDirectoryHeader),
		res.EOCD.CDCount,
		consistency)
	if res.TrailingBytes > 0 {
		_, _ = fmt.Fprintf(w, "  trailing: %s after the EOCD record\n", humanize.IBytes(uint64(res.TrailingBytes)))
	}
	switch {
	case res.LocatedEOCD == res.EOCDOffset:
	case res.LocatedEOCD < 0:
		_, _ = fmt.Fprintf(w, "  readers searching from the end find no EOCD record\n")
	default:
		_, _ = fmt.Fprintf(w, "  readers searching from the end find the EOCD record at 0x%08x instead of 0x%08x\n",
			res.LocatedEOCD, res.EOCDOffset)
	}

	if !c.Verbose {
		return nil
	}

	for _, rec := range res.Records {
		if rec.Local == nil {
			continue
		}

		kind := "file"
		if rec.IsDir() {
			kind = "dir "
		}

		fh := rec.Local
		_, _ = fmt.Fprintf(w, "  %s %s\n", kind, rec.Name)
		_, _ = fmt.Fprintf(w, "      %s, %s compressed, modified %s\n",
			methodName(fh.Method),
			humanize.IBytes(uint64(fh.DataLength)),
			formatTime(fh.Modified))
		for _, f := range rec.Extras {
			_, _ = fmt.Fprintf(w, "      %s\n", formatExtra(f))
		}
	}

	return nil
}
