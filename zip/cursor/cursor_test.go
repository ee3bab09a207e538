package cursor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCursor_ReadLE(t *testing.T) {
	b := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}

	tests := []struct {
		width    int
		expected uint64
	}{
		{width: 1, expected: 0x01},
		{width: 2, expected: 0x0302},
		{width: 4, expected: 0x07060504},
		{width: 8, expected: 0x0f0e0d0c0b0a0908},
	}

	c := New(b)
	for _, tt := range tests {
		before := c.Offset()
		v, err := c.ReadLE(tt.width)
		assert.NoErrorf(t, err, "ReadLE(%d) error = %v", tt.width, err)
		assert.Equal(t, tt.expected, v)
		assert.Equal(t, before+tt.width, c.Offset())
	}
	assert.Equal(t, 0, c.Remaining())

	_, err := New(b).ReadLE(3)
	assert.Error(t, err)
}

func TestCursor_Truncated(t *testing.T) {
	c := New([]byte{0x50, 0x4b, 0x03})

	_, err := c.Uint32()
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, 0, c.Offset(), "failed read must not move the cursor")

	var ce *Error
	if assert.True(t, errors.As(err, &ce)) {
		assert.Equal(t, 4, ce.Need)
		assert.Equal(t, 3, ce.Have)
	}

	_, err = c.Bytes(4)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.ErrorIs(t, c.Skip(-1), ErrTruncated)

	_, err = c.PeekUint32()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestCursor_ReadUint(t *testing.T) {
	c := New([]byte{0xe8, 0x03, 0x00, 0xff})

	v, err := c.ReadUint(3)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1000), v)

	v, err = c.ReadUint(0)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	_, err = c.ReadUint(2)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = c.ReadUint(9)
	assert.Error(t, err)
}

func TestCursor_SeekAndPeek(t *testing.T) {
	c := New([]byte{0x00, 0x00, 0x50, 0x4b, 0x05, 0x06})

	assert.NoError(t, c.Seek(2))
	sig, err := c.PeekUint32()
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x06054b50), sig)
	assert.Equal(t, 2, c.Offset())

	assert.NoError(t, c.Seek(6))
	assert.Equal(t, 0, c.Remaining())
	assert.Error(t, c.Seek(7))
	assert.Error(t, c.Seek(-1))
}

func TestCursor_Index(t *testing.T) {
	b := []byte("xxPK\x03\x04yyPK\x05\x06")
	c := New(b)

	assert.Equal(t, 2, c.Index(0, 0, 0x04034b50, 0x06054b50))
	assert.Equal(t, 8, c.Index(3, 0, 0x04034b50, 0x06054b50))
	assert.Equal(t, -1, c.Index(3, 8, 0x04034b50, 0x06054b50))
	assert.Equal(t, -1, c.Index(0, 0, 0x02014b50))
	assert.Equal(t, 0, c.Offset())
}

func TestCursor_At(t *testing.T) {
	c := New([]byte{1, 2, 3, 4})
	assert.NoError(t, c.Skip(1))

	b, err := c.At(2, 2)
	assert.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, b)
	assert.Equal(t, 1, c.Offset())

	_, err = c.At(3, 2)
	assert.ErrorIs(t, err, ErrTruncated)
	_, err = c.At(5, 0)
	assert.ErrorIs(t, err, ErrTruncated)
}
