// Package zipsleuth inspects ZIP archives at the byte level and guesses which tool produced them.
//
// Inspect is the entry point: it walks every structural record with package scan, decodes extra fields with package
// extra, and classifies the archive with package origin. The whole archive must be held in memory; Inspect performs
// no I/O and never decompresses entry data.
package zipsleuth

import (
	"github.com/nguyengg/zipsleuth/origin"
	"github.com/nguyengg/zipsleuth/zip/extra"
	"github.com/nguyengg/zipsleuth/zip/scan"
)

// maxEOCDSearch is how far from the end of the archive readers look for the EOCD record: the record itself plus the
// longest possible comment.
const maxEOCDSearch = 22 + 0xffff

// Options customises Inspect.
type Options struct {
	// Weights are the classifier weights.
	//
	// By default, origin.DefaultWeights is used.
	Weights origin.Weights

	// MaxScanBytes is passed to [scan.Options.MaxScanBytes].
	MaxScanBytes int

	// KeepComment is passed to [scan.Options.KeepComment].
	KeepComment bool
}

// Record is a structural record together with its decoded extra fields.
type Record struct {
	scan.Record

	// Name is the display name of a file header record, see extra.Name.
	Name string
	// Extras are the decoded extra fields of a file header record.
	Extras []extra.Field
}

// IsDir returns true if the record is a file header for a folder.
func (r Record) IsDir() bool {
	return len(r.Name) > 0 && r.Name[len(r.Name)-1] == '/'
}

// Result is the outcome of Inspect.
type Result struct {
	// Records are all records in the order they were walked.
	Records []Record
	// EOCD is the end of central directory record, nil if the walk failed before reaching it.
	EOCD *scan.EOCDRecord
	// EOCDOffset is the offset of EOCD, -1 if EOCD is nil.
	EOCDOffset int64
	// LocatedEOCD is the offset of the EOCD record found by searching backwards from the end of the archive the way
	// most readers do, -1 if none was found.
	//
	// It differs from EOCDOffset if there are bytes after the walked EOCD record, or if a signature inside the data
	// or comment fooled the search.
	LocatedEOCD int64
	// TrailingBytes is the number of bytes after the walked EOCD record and its comment.
	TrailingBytes int64
	// Report is the origin classification. It is only meaningful if Inspect returns no error.
	Report origin.Report
}

// Count returns the number of records of the given kind.
func (r Result) Count(kind scan.Kind) (n int) {
	for _, rec := range r.Records {
		if rec.Kind == kind {
			n++
		}
	}
	return
}

// Consistent returns true if there are as many local file headers as central directory file headers, and as many as
// the EOCD record declares, and readers searching for the EOCD record backwards would find the walked one.
func (r Result) Consistent() bool {
	n := r.Count(scan.KindLocalFileHeader)
	if n != r.Count(scan.KindCentralDirectoryHeader) || r.EOCD == nil || r.LocatedEOCD != r.EOCDOffset {
		return false
	}

	// 0xffff defers to the zip64 EOCD record which is not parsed.
	return r.EOCD.CDCount == 0xffff || int(r.EOCD.CDCount) == n
}

// Inspect walks, decodes, and classifies the archive in buf.
//
// If the walk fails, the records walked so far are returned along with the error which is always a
// *scan.RecordError. buf is never modified and must not be modified while the Result is in use.
func Inspect(buf []byte, optFns ...func(*Options)) (Result, error) {
	opts := &Options{Weights: origin.DefaultWeights()}
	for _, fn := range optFns {
		fn(opts)
	}

	var (
		res     = Result{EOCDOffset: -1, LocatedEOCD: -1}
		central = make(map[int64]*scan.CDFileHeader)
	)

	if _, off, err := scan.FindEOCD(buf, maxEOCDSearch); err == nil {
		res.LocatedEOCD = int64(off)
	}

	for r, err := range scan.Walk(buf, func(o *scan.Options) {
		o.MaxScanBytes = opts.MaxScanBytes
		o.KeepComment = opts.KeepComment
	}) {
		if err != nil {
			return res, err
		}

		rec := Record{Record: r}
		switch {
		case r.Local != nil:
			rec.Extras = extra.Decode(r.Local.Extra)
			rec.Name = extra.Name([]byte(r.Local.Name), r.Local.Flags, rec.Extras)
		case r.Central != nil:
			rec.Extras = extra.Decode(r.Central.Extra)
			rec.Name = extra.Name([]byte(r.Central.Name), r.Central.Flags, rec.Extras)
			central[r.Central.Offset] = r.Central
		case r.EOCD != nil:
			res.EOCD = r.EOCD
			res.EOCDOffset = r.Offset
			res.TrailingBytes = int64(len(buf)) - (r.Offset + 22 + int64(r.EOCD.CommentLength))
		}

		res.Records = append(res.Records, rec)
	}

	c := origin.NewClassifier(opts.Weights)
	for _, rec := range res.Records {
		if rec.Local != nil {
			c.Observe(newEntry(rec, central[rec.Offset]))
		}
	}
	res.Report = c.Finalize()

	return res, nil
}

// newEntry creates the classifier's view of a local file header, taking sizes from the matching central directory
// header if there is one since local headers of streamed entries carry zero sizes.
func newEntry(rec Record, cd *scan.CDFileHeader) origin.Entry {
	fh := rec.Local
	e := origin.Entry{
		Name:             rec.Name,
		Method:           fh.Method,
		Flags:            fh.Flags,
		CompressedSize:   fh.CompressedSize64,
		UncompressedSize: fh.UncompressedSize64,
		Extras:           rec.Extras,
		DataDescriptor:   fh.DataDescriptor,
		Modified:         fh.Modified,
	}

	switch {
	case cd != nil:
		e.CompressedSize, e.UncompressedSize = cd.CompressedSize64, cd.UncompressedSize64
	case fh.Deferred:
		e.CompressedSize = uint64(max(fh.DataLength-int64(fh.DataDescriptorLength), 0))
	}

	return e
}
