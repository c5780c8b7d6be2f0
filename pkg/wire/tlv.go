package wire

import (
	"bytes"
	"encoding/binary"
	"math"
)

// TLV is a single type-length-value record.
type TLV struct {
	Type  uint16
	Value []byte
}

// NewTLV creates a record holding a copy of value.
func NewTLV(t uint16, value []byte) TLV {
	return TLV{Type: t, Value: bytes.Clone(value)}
}

// NewTLVUint16 creates a record holding a big-endian uint16.
func NewTLVUint16(t uint16, v uint16) TLV {
	return TLV{Type: t, Value: binary.BigEndian.AppendUint16(nil, v)}
}

// NewTLVUint32 creates a record holding a big-endian uint32.
func NewTLVUint32(t uint16, v uint32) TLV {
	return TLV{Type: t, Value: binary.BigEndian.AppendUint32(nil, v)}
}

// TLVChain is an ordered list of records. Duplicate types are allowed;
// lookups return the first match.
type TLVChain []TLV

// Get returns the first record of type t.
func (c TLVChain) Get(t uint16) (TLV, bool) {
	for _, tlv := range c {
		if tlv.Type == t {
			return tlv, true
		}
	}
	return TLV{}, false
}

// Has reports whether a record of type t is present.
func (c TLVChain) Has(t uint16) bool {
	_, ok := c.Get(t)
	return ok
}

// Bytes returns the value of the first record of type t.
func (c TLVChain) Bytes(t uint16) ([]byte, bool) {
	tlv, ok := c.Get(t)
	return tlv.Value, ok
}

// Uint16 returns the value of the first record of type t as a big-endian
// uint16. A record of the wrong size counts as absent.
func (c TLVChain) Uint16(t uint16) (uint16, bool) {
	tlv, ok := c.Get(t)
	if !ok || len(tlv.Value) != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(tlv.Value), true
}

// Uint32 returns the value of the first record of type t as a big-endian
// uint32. A record of the wrong size counts as absent.
func (c TLVChain) Uint32(t uint16) (uint32, bool) {
	tlv, ok := c.Get(t)
	if !ok || len(tlv.Value) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(tlv.Value), true
}

// Append adds records to the end of the chain.
func (c *TLVChain) Append(tlvs ...TLV) {
	*c = append(*c, tlvs...)
}

// Encode writes every record of the chain.
func (c TLVChain) Encode() ([]byte, error) {
	w := NewWriter()
	if err := c.WriteTo(w); err != nil {
		return nil, err
	}
	return w.Encode(), nil
}

// WriteTo writes every record of the chain to w.
func (c TLVChain) WriteTo(w *Writer) error {
	for _, tlv := range c {
		if len(tlv.Value) > math.MaxUint16 {
			return ErrValueTooLong
		}
		w.Uint16(tlv.Type)
		w.Uint16(uint16(len(tlv.Value)))
		w.Bytes(tlv.Value)
	}
	return nil
}

// ReadTLV reads one record.
func ReadTLV(r *Reader) (TLV, error) {
	t, err := r.Uint16()
	if err != nil {
		return TLV{}, err
	}
	n, err := r.Uint16()
	if err != nil {
		return TLV{}, err
	}
	v, err := r.Bytes(int(n))
	if err != nil {
		return TLV{}, err
	}
	return NewTLV(t, v), nil
}

// ReadTLVChain reads records until the reader is exhausted.
func ReadTLVChain(r *Reader) (TLVChain, error) {
	var chain TLVChain
	for !r.EOF() {
		tlv, err := ReadTLV(r)
		if err != nil {
			return nil, err
		}
		chain = append(chain, tlv)
	}
	return chain, nil
}

// tlvHeaderSize is the smallest encoded TLV: type(2) length(2).
const tlvHeaderSize = 4

// ReadTLVBlock reads exactly count records. The count comes from the peer, so
// capacity is bounded by what the remaining bytes could hold.
func ReadTLVBlock(r *Reader, count int) (TLVChain, error) {
	chain := make(TLVChain, 0, min(count, r.Remaining()/tlvHeaderSize))
	for i := 0; i < count; i++ {
		tlv, err := ReadTLV(r)
		if err != nil {
			return nil, err
		}
		chain = append(chain, tlv)
	}
	return chain, nil
}

// ParseTLVChain reads a chain from buf.
func ParseTLVChain(buf []byte) (TLVChain, error) {
	return ReadTLVChain(NewReader(buf))
}
