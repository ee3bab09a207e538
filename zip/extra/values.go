package extra

import (
	"fmt"
	"hash/crc32"
	"time"
	"unicode/utf8"

	"github.com/nguyengg/zipsleuth/zip/cursor"
	"golang.org/x/text/encoding/charmap"
)

// NTFS is the 0x000a extra field written by Windows tools.
type NTFS struct {
	// HasTimes is true if attribute tag 0x0001 was present.
	HasTimes bool
	// Ticks holds the raw mtime, atime, and ctime tick counts in that order.
	Ticks               [3]uint64
	Mtime, Atime, Ctime time.Time
}

// ExtendedTimestamp is the 0x5455 extra field. Absent times are nil rather than zero.
type ExtendedTimestamp struct {
	Flags               uint8
	Mtime, Atime, Ctime *time.Time
}

// UnixOwnership is the 0x7875 "new" Info-ZIP Unix extra field.
//
// UID and GID widths are declared by the archive; any width up to 8 bytes is accepted.
type UnixOwnership struct {
	Version          uint8
	UIDSize, GIDSize uint8
	UID, GID         uint64
}

// UnicodePath is the 0x7075 Info-ZIP Unicode path extra field.
type UnicodePath struct {
	Version uint8
	// CRC32 is the checksum of the raw name in the header this extra is attached to.
	CRC32 uint32
	Name  string
}

// Matches returns true if the CRC-32 recorded in the extra matches the given raw name.
func (u UnicodePath) Matches(raw []byte) bool {
	return crc32.ChecksumIEEE(raw) == u.CRC32
}

// LegacyUnix is the 0x5855 Info-ZIP Unix extra field (type 1). UID and GID are only present in local headers.
type LegacyUnix struct {
	Atime, Mtime time.Time
	UID, GID     *uint16
}

// Unknown preserves the payload of any unrecognised sub-field.
type Unknown struct {
	ID  uint16
	Raw []byte
}

func (NTFS) isValue()              {}
func (ExtendedTimestamp) isValue() {}
func (UnixOwnership) isValue()     {}
func (UnicodePath) isValue()       {}
func (LegacyUnix) isValue()        {}
func (Unknown) isValue()           {}

// ntfsEpochOffset is the number of seconds between 1601-01-01 and 1970-01-01.
const ntfsEpochOffset = 11644473600

const ticksPerSecond = 10_000_000

// FromNTFSTicks converts a count of 100-nanosecond intervals since 1601-01-01 UTC into a time.Time.
func FromNTFSTicks(ticks uint64) time.Time {
	secs := int64(ticks/ticksPerSecond) - ntfsEpochOffset
	nsecs := int64(ticks%ticksPerSecond) * 100
	return time.Unix(secs, nsecs).UTC()
}

// NTFSTicks is the inverse of FromNTFSTicks, truncating to 100-nanosecond resolution.
func NTFSTicks(t time.Time) uint64 {
	return uint64(t.Unix()+ntfsEpochOffset)*ticksPerSecond + uint64(t.Nanosecond()/100)
}

// SubSecond returns true if any of the tick counts has sub-second precision.
//
// Tools that fill timestamps from FILETIME keep the full 100ns resolution while tools converting from Unix seconds
// leave the fraction zero.
func (n NTFS) SubSecond() bool {
	for _, t := range n.Ticks {
		if t%ticksPerSecond != 0 {
			return true
		}
	}

	return false
}

func decodeNTFS(data []byte) (Value, error) {
	v := NTFS{}
	c := cursor.New(data)
	if err := c.Skip(4); err != nil {
		return v, fmt.Errorf("missing reserved bytes")
	}

	for c.Remaining() >= 4 {
		tag, _ := c.Uint16()
		size, _ := c.Uint16()
		attr, err := c.Bytes(int(size))
		if err != nil {
			return v, fmt.Errorf("attribute 0x%04x declares %d bytes, only %d remain", tag, size, c.Remaining())
		}

		if tag != 0x0001 {
			continue
		}
		if size < 24 {
			return v, fmt.Errorf("attribute 0x0001 needs 24 bytes, got %d", size)
		}

		ac := cursor.New(attr)
		for i := range v.Ticks {
			v.Ticks[i], _ = ac.Uint64()
		}
		v.Mtime, v.Atime, v.Ctime = FromNTFSTicks(v.Ticks[0]), FromNTFSTicks(v.Ticks[1]), FromNTFSTicks(v.Ticks[2])
		v.HasTimes = true
	}

	if c.Remaining() != 0 {
		return v, fmt.Errorf("%d trailing bytes after attributes", c.Remaining())
	}

	return v, nil
}

func decodeExtendedTimestamp(data []byte) (Value, error) {
	v := ExtendedTimestamp{}
	c := cursor.New(data)

	var err error
	if v.Flags, err = c.Uint8(); err != nil {
		return v, fmt.Errorf("missing info-bits byte")
	}

	for _, f := range []struct {
		bit uint8
		dst **time.Time
	}{
		{0x01, &v.Mtime},
		{0x02, &v.Atime},
		{0x04, &v.Ctime},
	} {
		if v.Flags&f.bit == 0 || c.Remaining() < 4 {
			continue
		}

		// Unix times are signed so that dates before 1970 can be stored.
		secs, _ := c.Uint32()
		t := time.Unix(int64(int32(secs)), 0).UTC()
		*f.dst = &t
	}

	return v, nil
}

func decodeUnixOwnership(data []byte) (Value, error) {
	v := UnixOwnership{}
	c := cursor.New(data)

	var err error
	if v.Version, err = c.Uint8(); err != nil {
		return v, fmt.Errorf("missing version byte")
	}

	if v.UIDSize, err = c.Uint8(); err != nil {
		return v, fmt.Errorf("missing uid size")
	}
	if v.UIDSize > 8 {
		return v, fmt.Errorf("uid size %d exceeds 8 bytes", v.UIDSize)
	}
	if v.UID, err = c.ReadUint(int(v.UIDSize)); err != nil {
		return v, fmt.Errorf("read %d-byte uid: %w", v.UIDSize, err)
	}

	if v.GIDSize, err = c.Uint8(); err != nil {
		return v, fmt.Errorf("missing gid size")
	}
	if v.GIDSize > 8 {
		return v, fmt.Errorf("gid size %d exceeds 8 bytes", v.GIDSize)
	}
	if v.GID, err = c.ReadUint(int(v.GIDSize)); err != nil {
		return v, fmt.Errorf("read %d-byte gid: %w", v.GIDSize, err)
	}

	return v, nil
}

func decodeUnicodePath(data []byte) (Value, error) {
	v := UnicodePath{}
	c := cursor.New(data)

	var err error
	if v.Version, err = c.Uint8(); err != nil {
		return v, fmt.Errorf("missing version byte")
	}
	if v.CRC32, err = c.Uint32(); err != nil {
		return v, fmt.Errorf("missing name CRC-32")
	}

	name, _ := c.Bytes(c.Remaining())
	if !utf8.Valid(name) {
		return v, fmt.Errorf("name is not valid UTF-8")
	}
	v.Name = string(name)

	return v, nil
}

func decodeLegacyUnix(data []byte) (Value, error) {
	v := LegacyUnix{}
	c := cursor.New(data)

	atime, err := c.Uint32()
	if err != nil {
		return v, fmt.Errorf("missing atime")
	}
	mtime, err := c.Uint32()
	if err != nil {
		return v, fmt.Errorf("missing mtime")
	}
	v.Atime, v.Mtime = time.Unix(int64(int32(atime)), 0).UTC(), time.Unix(int64(int32(mtime)), 0).UTC()

	if c.Remaining() >= 4 {
		uid, _ := c.Uint16()
		gid, _ := c.Uint16()
		v.UID, v.GID = &uid, &gid
	}

	return v, nil
}

func decodeLegacyName(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	name, err := charmap.CodePage437.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}

	return string(name)
}
