// Package codec unwraps archives that have been compressed as a whole, such as "archive.zip.xz".
package codec

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
)

// Codec has methods to create compressor/encoder and decompressor/decoder.
type Codec interface {
	// NewDecoder creates a decoder to decompress contents from the given io.Reader.
	NewDecoder(src io.Reader) (io.ReadCloser, error)
	// NewEncoder creates an encoder to compress contents from the given io.Writer.
	NewEncoder(dst io.Writer) (io.WriteCloser, error)
	// Ext returns the file extension including the leading dot.
	Ext() string
}

var codecs = []struct {
	Codec
	magic []byte
}{
	{GzipCodec{}, []byte{0x1f, 0x8b}},
	{XzCodec{}, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{ZstdCodec{}, []byte{0x28, 0xb5, 0x2f, 0xfd}},
}

// ForName returns the Codec matching the extension of the given file name or S3 key.
//
// The returned name has the extension removed so "archive.zip.gz" returns "archive.zip". If no Codec matches, the
// returned Codec is nil and name is returned unchanged.
func ForName(name string) (Codec, string) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, c := range codecs {
		if c.Ext() == ext {
			return c.Codec, strings.TrimSuffix(name, filepath.Ext(name))
		}
	}

	return nil, name
}

// Detect returns the Codec whose magic bytes prefix b, nil if none does.
func Detect(b []byte) Codec {
	for _, c := range codecs {
		if bytes.HasPrefix(b, c.magic) {
			return c.Codec
		}
	}

	return nil
}
