package scan

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nguyengg/zipsleuth/zip/cursor"
)

// ErrNoEOCDFound is returned by FindEOCD if no EOCD signature was found.
var ErrNoEOCDFound = errors.New("end of central directory not found; most likely not a ZIP file")

// EOCDRecord models the end of central directory record of a ZIP file.
//
// See https://en.wikipedia.org/wiki/ZIP_(file_format)#End_of_central_directory_record_(EOCD).
type EOCDRecord struct {
	// DiskNumber is number of this disk (or 0xffff for ZIP64).
	DiskNumber uint16
	// CDDiskOffset is disk where central directory starts (or 0xffff for ZIP64).
	CDDiskOffset uint16
	// CDCountOnDisk is the number of central directory records on this disk (or 0xffff for ZIP64).
	CDCountOnDisk uint16
	// CDCount is the total number of central directory records (or 0xffff for ZIP64).
	CDCount uint16
	// CDSize is size of central directory (bytes) (or 0xffffffff for ZIP64).
	CDSize uint32
	// CDOffset is offset of start of central directory, relative to start of archive (or 0xffffffff for ZIP64).
	CDOffset uint32
	// CommentLength is the declared length of the archive comment.
	CommentLength uint16
	// Comment is the comment section of the EOCD.
	Comment string
}

// readEOCDRecord decodes the EOCD record at the cursor's position including its trailing comment.
func readEOCDRecord(c *cursor.Cursor, keepComment bool) (r EOCDRecord, err error) {
	data := &struct {
		Signature     uint32
		DiskNumber    uint16
		CDDiskOffset  uint16
		CDCountOnDisk uint16
		CDCount       uint16
		CDSize        uint32
		CDOffset      uint32
		CommentLength uint16
	}{}

	b, err := c.Bytes(eocdLen)
	if err != nil {
		return r, fmt.Errorf("read fixed-size data error: %w", err)
	}
	if err = binary.Read(bytes.NewReader(b), binary.LittleEndian, data); err != nil {
		return r, fmt.Errorf("unmarshal error: %w", err)
	}
	if data.Signature != eocdSig {
		return r, fmt.Errorf("mismatched signature, got 0x%08x, expected 0x%08x", data.Signature, eocdSig)
	}

	r = EOCDRecord{
		DiskNumber:    data.DiskNumber,
		CDDiskOffset:  data.CDDiskOffset,
		CDCountOnDisk: data.CDCountOnDisk,
		CDCount:       data.CDCount,
		CDSize:        data.CDSize,
		CDOffset:      data.CDOffset,
		CommentLength: data.CommentLength,
	}

	comment, err := c.Bytes(int(data.CommentLength))
	if err != nil {
		return r, fmt.Errorf("read comment error: %w", err)
	}
	if keepComment {
		r.Comment = string(comment)
	}

	return r, nil
}

// FindEOCD searches buf backwards for the EOCD record, returning the record and its absolute offset.
//
// Only the last maxBytes bytes are searched if maxBytes is positive. A candidate signature is only accepted if its
// declared comment length ends exactly at the end of buf, which rules out signatures appearing inside the comment.
func FindEOCD(buf []byte, maxBytes int) (EOCDRecord, int, error) {
	lower := 0
	if maxBytes > 0 && len(buf) > maxBytes {
		lower = len(buf) - maxBytes
	}

	for i := len(buf) - eocdLen; i >= lower; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) != eocdSig {
			continue
		}

		if commentLength := int(binary.LittleEndian.Uint16(buf[i+20:])); i+eocdLen+commentLength != len(buf) {
			continue
		}

		c := cursor.New(buf)
		_ = c.Seek(i)
		r, err := readEOCDRecord(c, true)
		if err != nil {
			return r, i, fmt.Errorf("find EOCD: %w", err)
		}

		return r, i, nil
	}

	return EOCDRecord{}, -1, ErrNoEOCDFound
}
