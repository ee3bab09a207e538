// Package scan walks the structural records of a ZIP archive held entirely in memory.
//
// Unlike archive/zip, nothing is trusted beyond the length fields of the record being parsed: the walker reads local
// file headers, central directory file headers, and the end of central directory record in the order in which they
// appear, skipping over compressed data without ever decoding it.
package scan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"

	"github.com/nguyengg/zipsleuth/zip/cursor"
)

var (
	// ErrInvalidContainer is returned if the buffer does not start with a recognised record signature.
	ErrInvalidContainer = errors.New("not a ZIP container")

	// ErrUnknownSignature is returned if a record was expected but an unrecognised signature was found.
	ErrUnknownSignature = errors.New("unknown record signature")

	// ErrUnrecoverableStream is returned if the end of an entry's data is not known from its header and scanning
	// forwards did not find another record.
	ErrUnrecoverableStream = errors.New("unrecoverable stream")

	// ErrTruncated is an alias of cursor.ErrTruncated so that callers need not import the cursor package.
	ErrTruncated = cursor.ErrTruncated
)

// RecordError is returned by Walk for any error that stops the walk.
type RecordError struct {
	// Offset is the absolute offset of the record being parsed.
	Offset int64
	// Kind is the kind of the record being parsed, zero if the signature was not recognised.
	Kind Kind
	Err  error
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Error() string {
	if e.Kind == 0 {
		return fmt.Sprintf("walk error at offset 0x%x: %v", e.Offset, e.Err)
	}

	return fmt.Sprintf("walk error at offset 0x%x (%s): %v", e.Offset, e.Kind, e.Err)
}

// Options customises how the records are walked.
type Options struct {
	// MaxScanBytes limits how far past the start of an entry's data the walker scans for the next record when the
	// header does not declare the data's size.
	//
	// By default, the zero value scans up to the end of the buffer.
	MaxScanBytes int

	// KeepComment controls whether central directory and EOCD comments are kept or discarded.
	//
	// By default, the zero value discards comment fields from all returned records.
	KeepComment bool
}

// Walk walks buf from the start for ZIP structural records.
//
// The records are returned as an iterator which stops after the end of central directory record, or at the first
// error. Errors are always of type *RecordError and can be matched with errors.Is against ErrInvalidContainer,
// ErrUnknownSignature, ErrUnrecoverableStream, and ErrTruncated.
//
// buf is never modified and the byte slices in returned records alias it.
func Walk(buf []byte, optFns ...func(*Options)) iter.Seq2[Record, error] {
	opts := &Options{}
	for _, fn := range optFns {
		fn(opts)
	}

	return func(yield func(Record, error) bool) {
		c := cursor.New(buf)

		if sig, err := c.PeekUint32(); err != nil || kindOf(sig) == 0 {
			yield(Record{}, &RecordError{Err: ErrInvalidContainer})
			return
		}

		for {
			offset := c.Offset()

			sig, err := c.PeekUint32()
			if err != nil {
				yield(Record{}, &RecordError{Offset: int64(offset), Err: fmt.Errorf("read signature error: %w", err)})
				return
			}

			r := Record{Kind: kindOf(sig), Offset: int64(offset)}
			switch r.Kind {
			case KindLocalFileHeader:
				var fh LocalFileHeader
				if fh, err = readLocalFileHeader(c); err == nil {
					err = skipData(c, &fh, opts)
				}
				r.Local = &fh
			case KindCentralDirectoryHeader:
				var fh CDFileHeader
				fh, err = readCDFileHeader(c, opts.KeepComment)
				r.Central = &fh
			case KindEndOfCentralDirectory:
				var eocd EOCDRecord
				eocd, err = readEOCDRecord(c, opts.KeepComment)
				r.EOCD = &eocd
			default:
				err = fmt.Errorf("%w 0x%08x", ErrUnknownSignature, sig)
			}

			if err == nil && c.Offset() <= offset {
				err = fmt.Errorf("%w: no progress past offset 0x%x", ErrUnrecoverableStream, offset)
			}
			if err != nil {
				yield(Record{}, &RecordError{Offset: int64(offset), Kind: r.Kind, Err: err})
				return
			}

			if !yield(r, nil) || r.Kind == KindEndOfCentralDirectory {
				return
			}
		}
	}
}

func kindOf(sig uint32) Kind {
	switch sig {
	case lfhSig:
		return KindLocalFileHeader
	case cdfhSig:
		return KindCentralDirectoryHeader
	case eocdSig:
		return KindEndOfCentralDirectory
	default:
		return 0
	}
}

// skipData advances c past the data of the entry whose local file header has just been read.
//
// If flag bit 3 is set or the declared compressed size is zero, the data's length is unknown from the header alone so
// the next record signature is searched for instead.
func skipData(c *cursor.Cursor, fh *LocalFileHeader, opts *Options) error {
	start := c.Offset()
	fh.DataOffset = int64(start)

	if fh.Flags&hasDataDescriptor == 0 && fh.CompressedSize64 != 0 {
		if fh.CompressedSize64 > uint64(c.Remaining()) {
			return fmt.Errorf("skip %d bytes of compressed data error: %w", fh.CompressedSize64, &cursor.Error{
				Op:     "skip",
				Offset: start,
				Need:   int(min(fh.CompressedSize64, uint64(c.Len()))),
				Have:   c.Remaining(),
				Err:    cursor.ErrTruncated,
			})
		}

		_ = c.Skip(int(fh.CompressedSize64))
		fh.DataLength = int64(fh.CompressedSize64)
		return nil
	}

	limit := 0
	if opts.MaxScanBytes > 0 {
		limit = start + opts.MaxScanBytes + 1
	}

	next := c.Index(start, limit, lfhSig, cdfhSig, eocdSig)
	if next == -1 {
		return fmt.Errorf("%w: no record found after data starting at 0x%x", ErrUnrecoverableStream, start)
	}

	fh.Deferred = true
	fh.DataLength = int64(next - start)
	fh.DataDescriptorLength = dataDescriptorLength(c, start, next)
	fh.DataDescriptor = fh.DataDescriptorLength != 0
	return c.Seek(next)
}

// dataDescriptorLength returns the length of the data descriptor with signature that the span [start, end) ends
// with, either 16 or 24 for the zip64 form. 0 is returned if there is none.
func dataDescriptorLength(c *cursor.Cursor, start, end int) int {
	for _, n := range []int{16, 24} {
		if end-n < start {
			return 0
		}

		if b, err := c.At(end-n, 4); err == nil && binary.LittleEndian.Uint32(b) == ddSig {
			return n
		}
	}

	return 0
}

// IsZIP returns true if b starts with one of the three structural record signatures.
func IsZIP(b []byte) bool {
	return len(b) >= 4 && kindOf(binary.LittleEndian.Uint32(b)) != 0
}
