package scan

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/nguyengg/zipsleuth/zip/cursor"
)

const (
	lfhSig  = 0x04034b50
	cdfhSig = 0x02014b50
	eocdSig = 0x06054b50
	ddSig   = 0x08074b50

	lfhLen  = 30
	cdfhLen = 46
	eocdLen = 22

	// hasDataDescriptor is the general purpose flag bit marking sizes as deferred to a trailing data descriptor.
	hasDataDescriptor = 0x08

	zip64ExtraID = 0x0001
)

// Kind identifies the type of a structural record.
type Kind int

const (
	KindLocalFileHeader Kind = iota + 1
	KindCentralDirectoryHeader
	KindEndOfCentralDirectory
)

func (k Kind) String() string {
	switch k {
	case KindLocalFileHeader:
		return "local file header"
	case KindCentralDirectoryHeader:
		return "central directory file header"
	case KindEndOfCentralDirectory:
		return "end of central directory"
	default:
		return "unknown record"
	}
}

// Record is one structural record of a ZIP archive. Exactly one of Local, Central, and EOCD is non-nil per Kind.
type Record struct {
	Kind Kind
	// Offset is the absolute offset of the record's signature.
	Offset int64

	Local   *LocalFileHeader
	Central *CDFileHeader
	EOCD    *EOCDRecord
}

// Extra returns the raw extra field span of a file header record, or nil for an EOCD record.
func (r Record) Extra() []byte {
	switch {
	case r.Local != nil:
		return r.Local.Extra
	case r.Central != nil:
		return r.Central.Extra
	default:
		return nil
	}
}

// LocalFileHeader is parsed from the local file headers of a ZIP file.
//
// Name holds the raw name bytes which may not be valid UTF-8; see extra.Name for display purposes.
type LocalFileHeader struct {
	zip.FileHeader

	// DataOffset is the absolute offset of the entry's compressed data.
	DataOffset int64
	// DataLength is the number of bytes skipped between DataOffset and the next record, which includes the trailing
	// data descriptor if any.
	DataLength int64
	// Deferred is true if the end of the data was not known from the header and had to be found by scanning forward.
	Deferred bool
	// DataDescriptor is true if a data descriptor signature was found right before the next record.
	DataDescriptor bool
	// DataDescriptorLength is the length of that data descriptor, 16 or 24 for its zip64 form, and 0 if there is
	// none. It is included in DataLength.
	DataDescriptorLength int
}

// CDFileHeader is parsed from the central directory file headers of a ZIP file.
type CDFileHeader struct {
	zip.FileHeader

	// DiskNumber is the disk number where file starts.
	DiskNumber uint16
	// InternalAttrs is the internal file attributes field.
	InternalAttrs uint16
	// Offset is the relative offset of local file header.
	Offset int64
}

// readLocalFileHeader decodes a local file header at the cursor's position, leaving the cursor right after the
// header's name and extra field. The entry's data is not skipped.
func readLocalFileHeader(c *cursor.Cursor) (fh LocalFileHeader, err error) {
	data := &struct {
		Signature        uint32
		ReaderVersion    uint16
		Flags            uint16
		Method           uint16
		ModifiedTime     uint16
		ModifiedDate     uint16
		CRC32            uint32
		CompressedSize   uint32
		UncompressedSize uint32
		FileNameLength   uint16
		ExtraFieldLength uint16
	}{}

	b, err := c.Bytes(lfhLen)
	if err != nil {
		return fh, fmt.Errorf("read fixed-size data error: %w", err)
	}
	if err = binary.Read(bytes.NewReader(b), binary.LittleEndian, data); err != nil {
		return fh, fmt.Errorf("unmarshal error: %w", err)
	}
	if data.Signature != lfhSig {
		return fh, fmt.Errorf("mismatched signature, got 0x%08x, expected 0x%08x", data.Signature, lfhSig)
	}

	fh = LocalFileHeader{
		FileHeader: zip.FileHeader{
			ReaderVersion:      data.ReaderVersion,
			Flags:              data.Flags,
			Method:             data.Method,
			ModifiedTime:       data.ModifiedTime,
			ModifiedDate:       data.ModifiedDate,
			CRC32:              data.CRC32,
			CompressedSize:     data.CompressedSize,
			UncompressedSize:   data.UncompressedSize,
			CompressedSize64:   uint64(data.CompressedSize),
			UncompressedSize64: uint64(data.UncompressedSize),
		},
	}
	fh.Modified = msDosTimeToTime(fh.ModifiedDate, fh.ModifiedTime)

	name, err := c.Bytes(int(data.FileNameLength))
	if err != nil {
		return fh, fmt.Errorf("read file name error: %w", err)
	}
	if fh.Extra, err = c.Bytes(int(data.ExtraFieldLength)); err != nil {
		return fh, fmt.Errorf("read extra field error: %w", err)
	}
	fh.Name = string(name)

	if data.CompressedSize == 0xffffffff || data.UncompressedSize == 0xffffffff {
		fh.UncompressedSize64, fh.CompressedSize64 = zip64Sizes(fh.Extra, fh.UncompressedSize64, fh.CompressedSize64)
	}

	return fh, nil
}

// readCDFileHeader decodes a central directory file header at the cursor's position including its variable-size
// trailers.
func readCDFileHeader(c *cursor.Cursor, keepComment bool) (fh CDFileHeader, err error) {
	data := &struct {
		Signature         uint32
		CreatorVersion    uint16
		ReaderVersion     uint16
		Flags             uint16
		Method            uint16
		ModifiedTime      uint16
		ModifiedDate      uint16
		CRC32             uint32
		CompressedSize    uint32
		UncompressedSize  uint32
		FileNameLength    uint16
		ExtraFieldLength  uint16
		FileCommentLength uint16
		DiskNumber        uint16
		InternalAttrs     uint16
		ExternalAttrs     uint32
		Offset            uint32
	}{}

	b, err := c.Bytes(cdfhLen)
	if err != nil {
		return fh, fmt.Errorf("read fixed-size data error: %w", err)
	}
	if err = binary.Read(bytes.NewReader(b), binary.LittleEndian, data); err != nil {
		return fh, fmt.Errorf("unmarshal error: %w", err)
	}
	if data.Signature != cdfhSig {
		return fh, fmt.Errorf("mismatched signature, got 0x%08x, expected 0x%08x", data.Signature, cdfhSig)
	}

	fh = CDFileHeader{
		FileHeader: zip.FileHeader{
			CreatorVersion:     data.CreatorVersion,
			ReaderVersion:      data.ReaderVersion,
			Flags:              data.Flags,
			Method:             data.Method,
			ModifiedTime:       data.ModifiedTime,
			ModifiedDate:       data.ModifiedDate,
			CRC32:              data.CRC32,
			CompressedSize:     data.CompressedSize,
			UncompressedSize:   data.UncompressedSize,
			CompressedSize64:   uint64(data.CompressedSize),
			UncompressedSize64: uint64(data.UncompressedSize),
			ExternalAttrs:      data.ExternalAttrs,
		},
		DiskNumber:    data.DiskNumber,
		InternalAttrs: data.InternalAttrs,
		Offset:        int64(data.Offset),
	}
	fh.Modified = msDosTimeToTime(fh.ModifiedDate, fh.ModifiedTime)

	name, err := c.Bytes(int(data.FileNameLength))
	if err != nil {
		return fh, fmt.Errorf("read file name error: %w", err)
	}
	if fh.Extra, err = c.Bytes(int(data.ExtraFieldLength)); err != nil {
		return fh, fmt.Errorf("read extra field error: %w", err)
	}
	comment, err := c.Bytes(int(data.FileCommentLength))
	if err != nil {
		return fh, fmt.Errorf("read file comment error: %w", err)
	}
	fh.Name = string(name)
	if keepComment {
		fh.Comment = string(comment)
	}

	return fh, nil
}

// zip64Sizes returns the sizes from the zip64 extended information extra field if there is one.
//
// Local headers must carry both the uncompressed and compressed sizes in that order.
func zip64Sizes(extra []byte, usize, csize uint64) (uint64, uint64) {
	c := cursor.New(extra)
	for c.Remaining() >= 4 {
		id, _ := c.Uint16()
		size, _ := c.Uint16()
		data, err := c.Bytes(int(size))
		if err != nil {
			break
		}
		if id != zip64ExtraID || len(data) < 16 {
			continue
		}

		dc := cursor.New(data)
		usize, _ = dc.Uint64()
		csize, _ = dc.Uint64()
		break
	}

	return usize, csize
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
// See: https://learn.microsoft.com/en-us/windows/win32/api/winbase/nf-winbase-dosdatetimetofiletime
//
// Out-of-range fields (month 0, hour 24, Feb 31, etc.) produce the zero time rather than being normalised.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	var (
		// date bits 0-4: day of month; 5-8: month; 9-15: years since 1980
		year, month, day = int(dosDate>>9) + 1980, int(dosDate >> 5 & 0xf), int(dosDate & 0x1f)
		// time bits 0-4: second/2; 5-10: minute; 11-15: hour
		hour, minute, sec = int(dosTime >> 11), int(dosTime >> 5 & 0x3f), int(dosTime&0x1f) * 2
	)

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		// day does not exist in that month, e.g. Feb 31.
		return time.Time{}
	}

	return t
}
