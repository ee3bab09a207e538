// Package extra decodes the extra field span attached to ZIP local and central directory file headers.
//
// The span is a list of sub-fields each laid out as id(2) size(2) payload(size). Recognised ids are decoded into
// typed values; everything else is kept verbatim as Unknown. A sub-field that is inconsistent with its declared size
// is marked malformed via Field.Err and never aborts decoding of the containing record.
//
// See https://libzip.org/specifications/extrafld.txt.
package extra

import (
	"errors"
	"fmt"

	"github.com/nguyengg/zipsleuth/zip/cursor"
)

const (
	NTFSID              uint16 = 0x000a
	ExtendedTimestampID uint16 = 0x5455
	UnixOwnershipID     uint16 = 0x7875
	UnicodePathID       uint16 = 0x7075
	LegacyUnixID        uint16 = 0x5855
)

// ErrMalformed marks a sub-field whose declared size is inconsistent with its span or its type.
var ErrMalformed = errors.New("malformed extra sub-field")

// Value is one of NTFS, ExtendedTimestamp, UnixOwnership, UnicodePath, LegacyUnix, or Unknown.
type Value interface {
	isValue()
}

// Field is one decoded sub-field of an extra field span.
type Field struct {
	// ID is the 2-byte header id.
	ID uint16
	// Offset is the offset of the sub-field header relative to the start of the span.
	Offset int
	// Size is the declared payload size.
	Size int
	// Data is the raw payload, or whatever was left of the span if Size overruns it.
	Data []byte
	// Value is the decoded payload. If Err is non-nil, it holds whatever was decoded before the error, or Unknown if
	// the payload could not be sliced from the span at all.
	Value Value
	// Err is non-nil if the sub-field is malformed; it always wraps ErrMalformed.
	Err error
}

// Malformed returns true if the sub-field failed to decode.
func (f Field) Malformed() bool {
	return f.Err != nil
}

// Decode decodes the entire extra field span b.
func Decode(b []byte) []Field {
	fields, _ := Read(cursor.New(b), len(b))
	return fields
}

// Read decodes exactly n bytes from c as an extra field span.
//
// The cursor is always advanced by exactly n bytes on success. The only error returned is one wrapping
// cursor.ErrTruncated when n exceeds what remains in c; malformed sub-fields are reported on the returned fields.
func Read(c *cursor.Cursor, n int) ([]Field, error) {
	span, err := c.Bytes(n)
	if err != nil {
		return nil, fmt.Errorf("read extra field span error: %w", err)
	}

	var (
		fields []Field
		sc     = cursor.New(span)
	)

	for sc.Remaining() > 0 {
		off := sc.Offset()

		if sc.Remaining() < 4 {
			tail, _ := sc.Bytes(sc.Remaining())
			fields = append(fields, Field{
				Offset: off,
				Size:   len(tail),
				Data:   tail,
				Value:  Unknown{Raw: tail},
				Err:    fmt.Errorf("%w: %d dangling bytes at 0x%x", ErrMalformed, len(tail), off),
			})
			break
		}

		id, _ := sc.Uint16()
		size, _ := sc.Uint16()

		if int(size) > sc.Remaining() {
			tail, _ := sc.Bytes(sc.Remaining())
			fields = append(fields, Field{
				ID:     id,
				Offset: off,
				Size:   int(size),
				Data:   tail,
				Value:  Unknown{ID: id, Raw: tail},
				Err:    fmt.Errorf("%w: id 0x%04x declares %d bytes, only %d remain", ErrMalformed, id, size, len(tail)),
			})
			break
		}

		data, _ := sc.Bytes(int(size))
		f := Field{ID: id, Offset: off, Size: int(size), Data: data}
		if f.Value, err = decodeValue(id, data); err != nil {
			f.Err = fmt.Errorf("%w: id 0x%04x: %v", ErrMalformed, id, err)
		}
		fields = append(fields, f)
	}

	return fields, nil
}

func decodeValue(id uint16, data []byte) (Value, error) {
	switch id {
	case NTFSID:
		return decodeNTFS(data)
	case ExtendedTimestampID:
		return decodeExtendedTimestamp(data)
	case UnixOwnershipID:
		return decodeUnixOwnership(data)
	case UnicodePathID:
		return decodeUnicodePath(data)
	case LegacyUnixID:
		return decodeLegacyUnix(data)
	default:
		return Unknown{ID: id, Raw: data}, nil
	}
}

// Find returns the first well-formed field with the given id.
func Find(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id && f.Err == nil {
			return f, true
		}
	}

	return Field{}, false
}

// Name returns the display name of an entry given its raw name bytes, general purpose flags, and decoded extras.
//
// If flag bit 11 marks the raw name as UTF-8 then it is used as-is. Otherwise, a Unicode path extra whose CRC-32
// matches the raw name wins. Failing that, raw names that happen to be valid UTF-8 are kept and anything else is
// decoded as IBM code page 437 which is the historical default.
func Name(raw []byte, flags uint16, fields []Field) string {
	if flags&0x800 != 0 {
		return string(raw)
	}

	if f, ok := Find(fields, UnicodePathID); ok {
		if up, ok := f.Value.(UnicodePath); ok && up.Matches(raw) {
			return up.Name
		}
	}

	return decodeLegacyName(raw)
}
