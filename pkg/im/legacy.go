package im

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

// LegacySubtype is the ICQ message type of a channel-4 blob.
type LegacySubtype uint8

const (
	LegacyPlain        LegacySubtype = 0x01
	LegacyChat         LegacySubtype = 0x02
	LegacyFile         LegacySubtype = 0x03
	LegacyURL          LegacySubtype = 0x04
	LegacyAuthRequest  LegacySubtype = 0x06
	LegacyAuthDenied   LegacySubtype = 0x07
	LegacyAuthGranted  LegacySubtype = 0x08
	LegacyAdded        LegacySubtype = 0x0C
	LegacyWebPager     LegacySubtype = 0x0D
	LegacyEmailExpress LegacySubtype = 0x0E
	LegacyContacts     LegacySubtype = 0x13
	LegacyGreetingCard LegacySubtype = 0x1A
)

var legacySubtypeNames = map[LegacySubtype]string{
	LegacyPlain:        "plain",
	LegacyChat:         "chat",
	LegacyFile:         "file",
	LegacyURL:          "url",
	LegacyAuthRequest:  "auth-request",
	LegacyAuthDenied:   "auth-denied",
	LegacyAuthGranted:  "auth-granted",
	LegacyAdded:        "added",
	LegacyWebPager:     "web-pager",
	LegacyEmailExpress: "email-express",
	LegacyContacts:     "contacts",
	LegacyGreetingCard: "greeting-card",
}

func (s LegacySubtype) String() string {
	if name, ok := legacySubtypeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("LegacySubtype(0x%02X)", uint8(s))
}

// ParseLegacySubtype parses the String form of a known subtype.
func ParseLegacySubtype(name string) (LegacySubtype, error) {
	for st, n := range legacySubtypeNames {
		if n == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown legacy subtype %q", name)
}

// HasColors reports whether blobs of this subtype end with a color pair.
func (s LegacySubtype) HasColors() bool {
	return s == LegacyGreetingCard
}

// ICQ message flags byte
const (
	legacyFlagNormal uint8 = 0x01
	legacyFlagAuto   uint8 = 0x03
)

// subtype(1) flags(1) length(2)
const legacyHeaderSize = 4

// FieldSeparator splits the fields of structured legacy messages.
const FieldSeparator = 0xFE

// roast is the OSCAR password roasting table, reused for channel-4 text.
var roast = [16]byte{
	0xF3, 0x26, 0x81, 0xC4, 0x39, 0x86, 0xDB, 0x92,
	0x71, 0xA3, 0xB9, 0xE6, 0x53, 0x7A, 0x95, 0x7C,
}

// obfuscate XORs b in place with the roast table. Applying it twice restores
// the input.
func obfuscate(b []byte) {
	for i := range b {
		b[i] ^= roast[i%len(roast)]
	}
}

// ColorPair is the foreground and background of a greeting card.
type ColorPair struct {
	Foreground uint8 `json:"fg"`
	Background uint8 `json:"bg"`
}

// LegacyPayload is the channel-4 payload.
type LegacyPayload struct {
	SenderUIN uint32
	Subtype   LegacySubtype
	Text      string
	// Colors is set only for subtypes where HasColors is true.
	Colors *ColorPair
}

func (*LegacyPayload) Channel() Channel { return ChannelLegacy }
func (*LegacyPayload) isPayload()       {}
func (p *LegacyPayload) isNil() bool   { return p == nil }

// Fields splits structured text such as URL messages (description, url) or
// auth requests (nick, first, last, email, reason). The separator byte
// decodes to U+00FE in the single-byte codepages.
func (p *LegacyPayload) Fields() []string {
	return strings.Split(p.Text, string(rune(FieldSeparator)))
}

type legacyCodec struct {
	codepage encoding.Encoding
}

func (c *legacyCodec) decode(tlvs wire.TLVChain) (Payload, Flags, error) {
	data, ok := tlvs.Bytes(tlvChannelData)
	if !ok {
		return nil, 0, malformed(ChannelLegacy, "missing legacy data TLV", nil)
	}

	r := wire.NewReader(data)
	uin, err := r.Uint32LE()
	if err != nil {
		return nil, 0, malformed(ChannelLegacy, "sender UIN", err)
	}
	if r.Remaining() < legacyHeaderSize {
		return nil, 0, malformed(ChannelLegacy, fmt.Sprintf("blob is %d bytes", r.Remaining()), nil)
	}

	subtype, _ := r.Uint8()
	msgFlags, _ := r.Uint8()
	n, _ := r.Uint16LE()

	st := LegacySubtype(subtype)
	need := int(n)
	if st.HasColors() {
		need += 2
	}
	if r.Remaining() < need {
		return nil, 0, malformed(ChannelLegacy,
			fmt.Sprintf("%s blob needs %d bytes, has %d", st, legacyHeaderSize+need, legacyHeaderSize+r.Remaining()), nil)
	}

	raw, _ := r.Bytes(int(n))
	text := make([]byte, len(raw))
	copy(text, raw)
	obfuscate(text)
	if len(text) > 0 && text[len(text)-1] == 0 {
		text = text[:len(text)-1]
	}

	decoded, err := c.codepage.NewDecoder().Bytes(text)
	if err != nil {
		return nil, 0, malformed(ChannelLegacy, "text bytes", err)
	}

	p := &LegacyPayload{SenderUIN: uin, Subtype: st, Text: string(decoded)}
	if st.HasColors() {
		fg, _ := r.Uint8()
		bg, _ := r.Uint8()
		p.Colors = &ColorPair{Foreground: fg, Background: bg}
	}

	var flags Flags
	if msgFlags == legacyFlagAuto {
		flags |= FlagAutoResponse
	}
	return p, flags, nil
}

func (c *legacyCodec) encode(p Payload, flags Flags) (wire.TLVChain, error) {
	lp := p.(*LegacyPayload)

	text, err := c.codepage.NewEncoder().String(lp.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodableText, err)
	}
	body := append([]byte(text), 0)
	if len(body) > math.MaxUint16 {
		return nil, ErrTextTooLong
	}
	obfuscate(body)

	msgFlags := legacyFlagNormal
	if flags.Has(FlagAutoResponse) {
		msgFlags = legacyFlagAuto
	}

	w := wire.NewWriter()
	w.Uint32LE(lp.SenderUIN)
	w.Uint8(uint8(lp.Subtype))
	w.Uint8(msgFlags)
	w.Uint16LE(uint16(len(body)))
	w.Bytes(body)
	if lp.Subtype.HasColors() {
		var colors ColorPair
		if lp.Colors != nil {
			colors = *lp.Colors
		}
		w.Uint8(colors.Foreground)
		w.Uint8(colors.Background)
	}

	return wire.TLVChain{wire.NewTLV(tlvChannelData, w.Encode())}, nil
}
