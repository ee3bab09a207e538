// Package cursor provides a bounds-checked sequential reader over an immutable byte slice.
//
// All multi-byte integers are read as little-endian which is what the ZIP format uses throughout.
package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned when a read asks for more bytes than remain in the buffer.
var ErrTruncated = errors.New("truncated record")

// Error describes a failed read with the offset at which it was attempted.
type Error struct {
	Op     string
	Offset int
	Need   int
	Have   int
	Err    error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at offset 0x%x: need %d bytes, have %d: %v", e.Op, e.Offset, e.Need, e.Have, e.Err)
}

// Cursor reads sequentially from a byte slice that it never modifies.
//
// Offset always satisfies 0 <= offset <= len(b). A failed read does not move the cursor.
type Cursor struct {
	b   []byte
	off int
}

// New creates a Cursor positioned at the start of b.
func New(b []byte) *Cursor {
	return &Cursor{b: b}
}

// Len returns the length of the underlying buffer.
func (c *Cursor) Len() int {
	return len(c.b)
}

// Offset returns the current absolute offset.
func (c *Cursor) Offset() int {
	return c.off
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.b) - c.off
}

// Seek moves the cursor to the absolute position pos.
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.b) {
		return fmt.Errorf("seek to 0x%x out of range [0, 0x%x]", pos, len(c.b))
	}

	c.off = pos
	return nil
}

func (c *Cursor) need(op string, n int) error {
	if n < 0 || n > c.Remaining() {
		return &Error{Op: op, Offset: c.off, Need: n, Have: c.Remaining(), Err: ErrTruncated}
	}

	return nil
}

// ReadLE reads an unsigned little-endian integer of the given width which must be 1, 2, 4, or 8.
func (c *Cursor) ReadLE(width int) (uint64, error) {
	switch width {
	case 1:
		v, err := c.Uint8()
		return uint64(v), err
	case 2:
		v, err := c.Uint16()
		return uint64(v), err
	case 4:
		v, err := c.Uint32()
		return uint64(v), err
	case 8:
		return c.Uint64()
	default:
		return 0, fmt.Errorf("read %d-byte integer: unsupported width", width)
	}
}

// ReadUint reads an unsigned little-endian integer of any width between 0 and 8 bytes.
//
// A zero width reads nothing and returns 0.
func (c *Cursor) ReadUint(width int) (uint64, error) {
	if width < 0 || width > 8 {
		return 0, fmt.Errorf("read %d-byte integer: unsupported width", width)
	}
	if err := c.need("read uint", width); err != nil {
		return 0, err
	}

	var v uint64
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint64(c.b[c.off+i])
	}
	c.off += width
	return v, nil
}

func (c *Cursor) Uint8() (uint8, error) {
	if err := c.need("read uint8", 1); err != nil {
		return 0, err
	}

	v := c.b[c.off]
	c.off++
	return v, nil
}

func (c *Cursor) Uint16() (uint16, error) {
	if err := c.need("read uint16", 2); err != nil {
		return 0, err
	}

	v := binary.LittleEndian.Uint16(c.b[c.off:])
	c.off += 2
	return v, nil
}

func (c *Cursor) Uint32() (uint32, error) {
	if err := c.need("read uint32", 4); err != nil {
		return 0, err
	}

	v := binary.LittleEndian.Uint32(c.b[c.off:])
	c.off += 4
	return v, nil
}

func (c *Cursor) Uint64() (uint64, error) {
	if err := c.need("read uint64", 8); err != nil {
		return 0, err
	}

	v := binary.LittleEndian.Uint64(c.b[c.off:])
	c.off += 8
	return v, nil
}

// Bytes returns the next n bytes and advances past them.
//
// The returned slice aliases the underlying buffer and must not be modified.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.need("read bytes", n); err != nil {
		return nil, err
	}

	b := c.b[c.off : c.off+n : c.off+n]
	c.off += n
	return b, nil
}

// Skip advances past the next n bytes.
func (c *Cursor) Skip(n int) error {
	if err := c.need("skip", n); err != nil {
		return err
	}

	c.off += n
	return nil
}

// At returns n bytes at the absolute position pos without moving the cursor.
func (c *Cursor) At(pos, n int) ([]byte, error) {
	if pos < 0 || pos > len(c.b) || n < 0 || n > len(c.b)-pos {
		return nil, &Error{Op: "read at", Offset: pos, Need: n, Have: max(len(c.b)-pos, 0), Err: ErrTruncated}
	}

	return c.b[pos : pos+n : pos+n], nil
}

// PeekUint32 reads the 4 bytes at the current offset without advancing.
func (c *Cursor) PeekUint32() (uint32, error) {
	if err := c.need("peek signature", 4); err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(c.b[c.off:]), nil
}

// Index returns the smallest absolute offset in [from, limit) at which any of the given 4-byte little-endian
// signatures starts, or -1 if there is none. A non-positive limit means the end of the buffer.
//
// Index does not move the cursor.
func (c *Cursor) Index(from, limit int, sigs ...uint32) int {
	if limit <= 0 || limit > len(c.b) {
		limit = len(c.b)
	}

	for i := max(from, 0); i+4 <= len(c.b) && i < limit; i++ {
		// every ZIP signature starts with "PK" so this filters out nearly every position cheaply.
		if c.b[i] != 'P' || c.b[i+1] != 'K' {
			continue
		}

		v := binary.LittleEndian.Uint32(c.b[i:])
		for _, sig := range sigs {
			if v == sig {
				return i
			}
		}
	}

	return -1
}
