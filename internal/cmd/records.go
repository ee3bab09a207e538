package cmd

import (
	"fmt"
	"io"

	"github.com/nguyengg/zipsleuth"
	"github.com/nguyengg/zipsleuth/internal/source"
)

// Records prints every structural record of each archive in the order they appear.
type Records struct {
	ScanOptions
	Args Args `positional-args:"yes"`

	out io.Writer
}

func (c *Records) Execute(args []string) error {
	return c.run(c.out, args, c.Args.Files, true, c.print)
}

// print writes the records walked so far even if the walk failed midway.
func (c *Records) print(w io.Writer, src *source.Source, res zipsleuth.Result, err error) error {
	_, _ = fmt.Fprintf(w, "%s:\n", src.Name)

	for _, rec := range res.Records {
		switch {
		case rec.Local != nil:
			fh := rec.Local
			_, _ = fmt.Fprintf(w, "0x%08x %s %q\n", rec.Offset, rec.Kind, rec.Name)
			_, _ = fmt.Fprintf(w, "    version %d, flags 0x%04x, %s, crc32 0x%08x, modified %s\n",
				fh.ReaderVersion, fh.Flags, methodName(fh.Method), fh.CRC32, formatTime(fh.Modified))
			_, _ = fmt.Fprintf(w, "    declared compressed %s, uncompressed %s\n",
				formatSize(fh.CompressedSize64), formatSize(fh.UncompressedSize64))

			data := fmt.Sprintf("    data at 0x%x, %s", fh.DataOffset, formatSize(uint64(fh.DataLength)))
			if fh.Deferred {
				data += ", found by scanning"
			}
			if fh.DataDescriptor {
				data += ", ends with data descriptor"
			}
			_, _ = fmt.Fprintln(w, data)
		case rec.Central != nil:
			fh := rec.Central
			_, _ = fmt.Fprintf(w, "0x%08x %s %q\n", rec.Offset, rec.Kind, rec.Name)
			_, _ = fmt.Fprintf(w, "    creator version 0x%04x, reader version %d, flags 0x%04x, %s, crc32 0x%08x, modified %s\n",
				fh.CreatorVersion, fh.ReaderVersion, fh.Flags, methodName(fh.Method), fh.CRC32, formatTime(fh.Modified))
			_, _ = fmt.Fprintf(w, "    compressed %s, uncompressed %s\n",
				formatSize(fh.CompressedSize64), formatSize(fh.UncompressedSize64))
			_, _ = fmt.Fprintf(w, "    local header at 0x%x, disk %d, internal attrs 0x%04x, external attrs 0x%08x\n",
				fh.Offset, fh.DiskNumber, fh.InternalAttrs, fh.ExternalAttrs)
			if fh.Comment != "" {
				_, _ = fmt.Fprintf(w, "    comment %q\n", fh.Comment)
			}
		case rec.EOCD != nil:
			r := rec.EOCD
			_, _ = fmt.Fprintf(w, "0x%08x %s\n", rec.Offset, rec.Kind)
			_, _ = fmt.Fprintf(w, "    disk %d, central directory disk %d, %d entries on disk, %d entries total\n",
				r.DiskNumber, r.CDDiskOffset, r.CDCountOnDisk, r.CDCount)
			_, _ = fmt.Fprintf(w, "    central directory at 0x%x, %s\n", r.CDOffset, formatSize(uint64(r.CDSize)))
			if r.Comment != "" {
				_, _ = fmt.Fprintf(w, "    comment %q\n", r.Comment)
			}
		}

		for _, f := range rec.Extras {
			_, _ = fmt.Fprintf(w, "    extra %s\n", formatExtra(f))
		}
	}

	if err != nil {
		_, _ = fmt.Fprintf(w, "stopped: %v\n", err)
	}

	return err
}
