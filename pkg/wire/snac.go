package wire

import (
	"encoding/binary"
	"fmt"
)

// SNACHeaderSize is the encoded size of a SNAC header.
const SNACHeaderSize = 10

// SNAC families
const (
	FamilyICBM uint16 = 0x0004
	FamilyICQ  uint16 = 0x0015
)

// ICBM subtypes
const (
	ICBMChannelMsgToHost     uint16 = 0x0006
	ICBMChannelMsgToClient   uint16 = 0x0007
	ICBMOfflineRetrieve      uint16 = 0x0010
	ICBMOfflineRetrieveReply uint16 = 0x0017
)

// ICQ extension subtypes
const (
	ICQDBQuery uint16 = 0x0002
	ICQDBReply uint16 = 0x0003
)

// SNACHeader is the header that prefixes every frame body.
type SNACHeader struct {
	Family    uint16 // Service family
	Subtype   uint16 // Operation within the family
	Flags     uint16 // SNAC flags
	RequestID uint32 // Request/reply correlation id
}

// Encode encodes the header to bytes
func (h *SNACHeader) Encode() []byte {
	buf := make([]byte, SNACHeaderSize)

	binary.BigEndian.PutUint16(buf[0:2], h.Family)
	binary.BigEndian.PutUint16(buf[2:4], h.Subtype)
	binary.BigEndian.PutUint16(buf[4:6], h.Flags)
	binary.BigEndian.PutUint32(buf[6:10], h.RequestID)

	return buf
}

// Decode decodes the header from bytes
func (h *SNACHeader) Decode(buf []byte) error {
	if len(buf) < SNACHeaderSize {
		return ErrBufferTooShort
	}

	h.Family = binary.BigEndian.Uint16(buf[0:2])
	h.Subtype = binary.BigEndian.Uint16(buf[2:4])
	h.Flags = binary.BigEndian.Uint16(buf[4:6])
	h.RequestID = binary.BigEndian.Uint32(buf[6:10])

	return nil
}

// Is reports whether the header names the given family and subtype.
func (h *SNACHeader) Is(family, subtype uint16) bool {
	return h.Family == family && h.Subtype == subtype
}

func (h SNACHeader) String() string {
	return fmt.Sprintf("SNAC(0x%04X,0x%04X) req=%d", h.Family, h.Subtype, h.RequestID)
}

// SplitFrame decodes the SNAC header of frame and returns it with the body.
func SplitFrame(frame []byte) (SNACHeader, []byte, error) {
	var h SNACHeader
	if err := h.Decode(frame); err != nil {
		return h, nil, err
	}
	return h, frame[SNACHeaderSize:], nil
}

// NewFrame prepends an encoded header to body.
func NewFrame(h SNACHeader, body []byte) []byte {
	frame := make([]byte, 0, SNACHeaderSize+len(body))
	frame = append(frame, h.Encode()...)
	return append(frame, body...)
}
