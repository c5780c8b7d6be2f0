package wire

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer builds a frame or sub-structure. Errors are limited to length
// prefixes that cannot represent their value.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Uint8 appends one byte.
func (w *Writer) Uint8(v uint8) {
	w.buf.WriteByte(v)
}

// Uint16 appends a big-endian uint16.
func (w *Writer) Uint16(v uint16) {
	w.buf.Write(binary.BigEndian.AppendUint16(nil, v))
}

// Uint32 appends a big-endian uint32.
func (w *Writer) Uint32(v uint32) {
	w.buf.Write(binary.BigEndian.AppendUint32(nil, v))
}

// Uint16LE appends a little-endian uint16.
func (w *Writer) Uint16LE(v uint16) {
	w.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

// Uint32LE appends a little-endian uint32.
func (w *Writer) Uint32LE(v uint32) {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

// Bytes appends raw bytes.
func (w *Writer) Bytes(b []byte) {
	w.buf.Write(b)
}

// String8 appends a string with a 1-byte length prefix.
func (w *Writer) String8(s string) error {
	if len(s) > math.MaxUint8 {
		return ErrValueTooLong
	}
	w.Uint8(uint8(len(s)))
	w.buf.WriteString(s)
	return nil
}

// String16 appends a string with a big-endian 2-byte length prefix.
func (w *Writer) String16(s string) error {
	if len(s) > math.MaxUint16 {
		return ErrValueTooLong
	}
	w.Uint16(uint16(len(s)))
	w.buf.WriteString(s)
	return nil
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Encode returns a copy of the written bytes.
func (w *Writer) Encode() []byte {
	return bytes.Clone(w.buf.Bytes())
}
