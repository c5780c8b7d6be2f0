package im

import (
	"math"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

// TextEncoding is the charset word of a channel-1 text fragment.
type TextEncoding uint16

const (
	EncodingASCII  TextEncoding = 0x0000
	EncodingUTF16  TextEncoding = 0x0002
	EncodingLatin1 TextEncoding = 0x0003
)

func (e TextEncoding) String() string {
	switch e {
	case EncodingASCII:
		return "ascii"
	case EncodingUTF16:
		return "utf-16be"
	case EncodingLatin1:
		return "latin-1"
	default:
		return "unknown"
	}
}

// Fragment ids inside TLV 0x0002
const (
	fragText         uint8 = 0x01
	fragCapabilities uint8 = 0x05
	fragVersion      uint8 = 0x01
)

// fragment header: id(1) version(1) length(2); text header: charset(2) subcharset(2)
const textHeaderSize = 4

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// PlainText is the channel-1 payload.
type PlainText struct {
	Text string
	// Encoding is the charset the text arrived in. The encoder picks its own.
	Encoding TextEncoding
}

func (*PlainText) Channel() Channel { return ChannelPlainText }
func (*PlainText) isPayload()       {}
func (p *PlainText) isNil() bool   { return p == nil }

type plainTextCodec struct {
	singleByte encoding.Encoding
}

func (c *plainTextCodec) decode(tlvs wire.TLVChain) (Payload, Flags, error) {
	data, ok := tlvs.Bytes(tlvMessageData)
	if !ok {
		return nil, 0, malformed(ChannelPlainText, "missing message data TLV", nil)
	}

	var (
		text  []byte
		parts int
		enc   TextEncoding
	)

	r := wire.NewReader(data)
	for !r.EOF() {
		id, err := r.Uint8()
		if err != nil {
			return nil, 0, malformed(ChannelPlainText, "fragment header", err)
		}
		if _, err := r.Uint8(); err != nil {
			return nil, 0, malformed(ChannelPlainText, "fragment header", err)
		}
		n, err := r.Uint16()
		if err != nil {
			return nil, 0, malformed(ChannelPlainText, "fragment header", err)
		}
		frag, err := r.Bytes(int(n))
		if err != nil {
			return nil, 0, malformed(ChannelPlainText, "fragment body", err)
		}

		if id != fragText {
			continue
		}

		fr := wire.NewReader(frag)
		charset, err := fr.Uint16()
		if err != nil {
			return nil, 0, malformed(ChannelPlainText, "text charset", err)
		}
		if _, err := fr.Uint16(); err != nil {
			return nil, 0, malformed(ChannelPlainText, "text subcharset", err)
		}

		decoded, err := c.decodeText(TextEncoding(charset), fr.Rest())
		if err != nil {
			return nil, 0, malformed(ChannelPlainText, "text bytes", err)
		}

		text = append(text, decoded...)
		if parts == 0 || TextEncoding(charset) == EncodingUTF16 {
			enc = TextEncoding(charset)
		}
		parts++
	}

	if parts == 0 {
		return nil, 0, malformed(ChannelPlainText, "missing text fragment", nil)
	}

	var flags Flags
	if parts > 1 {
		flags |= FlagMultipart
	}
	if tlvs.Has(tlvAutoResponse) {
		flags |= FlagAutoResponse
	}

	return &PlainText{Text: string(text), Encoding: enc}, flags, nil
}

func (c *plainTextCodec) decodeText(charset TextEncoding, b []byte) ([]byte, error) {
	if charset == EncodingUTF16 {
		if len(b)%2 != 0 {
			return nil, errOddUTF16
		}
		return utf16BE.NewDecoder().Bytes(b)
	}
	// ASCII, Latin-1 and unknown charsets all mean "sender's codepage".
	return c.singleByte.NewDecoder().Bytes(b)
}

func (c *plainTextCodec) encode(p Payload, flags Flags) (wire.TLVChain, error) {
	text := p.(*PlainText).Text

	charset, body, err := c.encodeText(text)
	if err != nil {
		return nil, err
	}
	if textHeaderSize+len(body) > math.MaxUint16 {
		return nil, ErrTextTooLong
	}

	w := wire.NewWriter()

	// Capabilities fragment: plain text only
	w.Uint8(fragCapabilities)
	w.Uint8(fragVersion)
	w.Uint16(1)
	w.Uint8(0x01)

	w.Uint8(fragText)
	w.Uint8(fragVersion)
	w.Uint16(uint16(textHeaderSize + len(body)))
	w.Uint16(uint16(charset))
	w.Uint16(0x0000)
	w.Bytes(body)

	tlvs := wire.TLVChain{wire.NewTLV(tlvMessageData, w.Encode())}
	if flags.Has(FlagAutoResponse) {
		tlvs.Append(wire.NewTLV(tlvAutoResponse, nil))
	}
	return tlvs, nil
}

// encodeText picks the narrowest charset that round-trips text.
func (c *plainTextCodec) encodeText(text string) (TextEncoding, []byte, error) {
	if isASCII(text) {
		return EncodingASCII, []byte(text), nil
	}

	if b, err := c.singleByte.NewEncoder().String(text); err == nil {
		if back, err := c.singleByte.NewDecoder().String(b); err == nil && back == text {
			return EncodingLatin1, []byte(b), nil
		}
	}

	if !utf8.ValidString(text) {
		return 0, nil, errInvalidUTF8
	}
	b, err := utf16BE.NewEncoder().String(text)
	if err != nil {
		return 0, nil, err
	}
	return EncodingUTF16, []byte(b), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
