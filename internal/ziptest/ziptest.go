// Package ziptest assembles ZIP archives byte by byte for tests.
//
// Unlike archive/zip, the Builder writes exactly what it is told: arbitrary flags, sizes that lie, extras that do not
// parse, and so on.
package ziptest

import (
	"encoding/binary"
	"hash/crc32"
)

// Entry describes one file to be written as a local file header, its data, and a central directory file header.
type Entry struct {
	Name   string
	Method uint16
	Flags  uint16
	// Data is written verbatim after the local file header.
	Data []byte
	// UncompressedSize defaults to len(Data) if zero.
	UncompressedSize uint32
	// Extra is the local file header's extra field span.
	Extra []byte
	// CDExtra is the central directory header's extra field span. Defaults to Extra if nil.
	CDExtra []byte
	Comment string
	// DataDescriptor writes a 16-byte data descriptor with signature after Data and zeroes the sizes in the local
	// file header. Flag bit 3 is set automatically.
	DataDescriptor bool
	// CompressedSize overrides the compressed size in the local file header if non-nil.
	CompressedSize *uint32

	ModifiedTime, ModifiedDate uint16
	CreatorVersion             uint16
	ExternalAttrs              uint32
}

// Builder accumulates local file headers and writes the central directory on Bytes.
type Builder struct {
	buf     []byte
	entries []Entry
	offsets []uint32
	// Comment is the archive comment written in the EOCD record.
	Comment string
}

// Add writes the local file header and data of e.
func (b *Builder) Add(e Entry) *Builder {
	if e.DataDescriptor {
		e.Flags |= 0x08
	}
	if e.UncompressedSize == 0 {
		e.UncompressedSize = uint32(len(e.Data))
	}

	crc := crc32.ChecksumIEEE(e.Data)
	csize, usize, lcrc := uint32(len(e.Data)), e.UncompressedSize, crc
	if e.DataDescriptor {
		csize, usize, lcrc = 0, 0, 0
	}
	if e.CompressedSize != nil {
		csize = *e.CompressedSize
	}

	b.offsets = append(b.offsets, uint32(len(b.buf)))
	b.entries = append(b.entries, e)

	b.buf = le32(b.buf, 0x04034b50)
	b.buf = le16(b.buf, 20)
	b.buf = le16(b.buf, e.Flags)
	b.buf = le16(b.buf, e.Method)
	b.buf = le16(b.buf, e.ModifiedTime)
	b.buf = le16(b.buf, e.ModifiedDate)
	b.buf = le32(b.buf, lcrc)
	b.buf = le32(b.buf, csize)
	b.buf = le32(b.buf, usize)
	b.buf = le16(b.buf, uint16(len(e.Name)))
	b.buf = le16(b.buf, uint16(len(e.Extra)))
	b.buf = append(b.buf, e.Name...)
	b.buf = append(b.buf, e.Extra...)
	b.buf = append(b.buf, e.Data...)

	if e.DataDescriptor {
		b.buf = le32(b.buf, 0x08074b50)
		b.buf = le32(b.buf, crc)
		b.buf = le32(b.buf, uint32(len(e.Data)))
		b.buf = le32(b.buf, e.UncompressedSize)
	}

	return b
}

// Bytes writes the central directory and EOCD record then returns the complete archive.
//
// The Builder must not be used afterwards.
func (b *Builder) Bytes() []byte {
	cdOffset := len(b.buf)

	for i, e := range b.entries {
		extra := e.CDExtra
		if extra == nil {
			extra = e.Extra
		}

		b.buf = le32(b.buf, 0x02014b50)
		b.buf = le16(b.buf, e.CreatorVersion)
		b.buf = le16(b.buf, 20)
		b.buf = le16(b.buf, e.Flags)
		b.buf = le16(b.buf, e.Method)
		b.buf = le16(b.buf, e.ModifiedTime)
		b.buf = le16(b.buf, e.ModifiedDate)
		b.buf = le32(b.buf, crc32.ChecksumIEEE(e.Data))
		b.buf = le32(b.buf, uint32(len(e.Data)))
		b.buf = le32(b.buf, e.UncompressedSize)
		b.buf = le16(b.buf, uint16(len(e.Name)))
		b.buf = le16(b.buf, uint16(len(extra)))
		b.buf = le16(b.buf, uint16(len(e.Comment)))
		b.buf = le16(b.buf, 0)
		b.buf = le16(b.buf, 0)
		b.buf = le32(b.buf, e.ExternalAttrs)
		b.buf = le32(b.buf, b.offsets[i])
		b.buf = append(b.buf, e.Name...)
		b.buf = append(b.buf, extra...)
		b.buf = append(b.buf, e.Comment...)
	}

	cdSize := len(b.buf) - cdOffset

	b.buf = le32(b.buf, 0x06054b50)
	b.buf = le16(b.buf, 0)
	b.buf = le16(b.buf, 0)
	b.buf = le16(b.buf, uint16(len(b.entries)))
	b.buf = le16(b.buf, uint16(len(b.entries)))
	b.buf = le32(b.buf, uint32(cdSize))
	b.buf = le32(b.buf, uint32(cdOffset))
	b.buf = le16(b.buf, uint16(len(b.Comment)))
	b.buf = append(b.buf, b.Comment...)

	return b.buf
}

// Field assembles one id(2) size(2) payload extra sub-field.
func Field(id uint16, payload ...byte) []byte {
	return append(le16(le16(nil, id), uint16(len(payload))), payload...)
}

// NTFS assembles an NTFS extra field (0x000a) carrying the three tick counts as attribute 0x0001.
func NTFS(mtime, atime, ctime uint64) []byte {
	p := make([]byte, 4, 32)
	p = le16(p, 1)
	p = le16(p, 24)
	p = binary.LittleEndian.AppendUint64(p, mtime)
	p = binary.LittleEndian.AppendUint64(p, atime)
	p = binary.LittleEndian.AppendUint64(p, ctime)
	return Field(0x000a, p...)
}

// ExtendedTimestamp assembles an extended timestamp extra field (0x5455) with the given info bits followed by as
// many Unix times as given.
func ExtendedTimestamp(flags uint8, times ...uint32) []byte {
	p := []byte{flags}
	for _, t := range times {
		p = le32(p, t)
	}
	return Field(0x5455, p...)
}

// UnixOwnership assembles an Info-ZIP "new" Unix extra field (0x7875) with 4-byte uid and gid.
func UnixOwnership(uid, gid uint32) []byte {
	p := []byte{1, 4}
	p = le32(p, uid)
	p = append(p, 4)
	p = le32(p, gid)
	return Field(0x7875, p...)
}

// UnicodePath assembles an Info-ZIP Unicode path extra field (0x7075) for the given raw and UTF-8 names.
func UnicodePath(raw []byte, name string) []byte {
	p := le32([]byte{1}, crc32.ChecksumIEEE(raw))
	return Field(0x7075, append(p, name...)...)
}

func le16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func le32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}
