package im

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/ZentaChain/zentalk-oscar/pkg/capability"
	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

// RendezvousStatus is the negotiation step carried by a channel-2 message.
type RendezvousStatus uint16

const (
	StatusRequest RendezvousStatus = 0x0000
	StatusCancel  RendezvousStatus = 0x0001
	StatusAccept  RendezvousStatus = 0x0002
)

func (s RendezvousStatus) String() string {
	switch s {
	case StatusRequest:
		return "request"
	case StatusCancel:
		return "cancel"
	case StatusAccept:
		return "accept"
	default:
		return fmt.Sprintf("RendezvousStatus(%d)", uint16(s))
	}
}

func (s RendezvousStatus) valid() bool {
	return s == StatusRequest || s == StatusCancel || s == StatusAccept
}

// Rendezvous inner TLVs
const (
	rvProxyIP    uint16 = 0x0002
	rvClientIP   uint16 = 0x0003
	rvVerifiedIP uint16 = 0x0004
	rvPort       uint16 = 0x0005
	rvSequence   uint16 = 0x000A
	rvMessage    uint16 = 0x000C
	rvCharset    uint16 = 0x000D
	rvLanguage   uint16 = 0x000E
	rvUseProxy   uint16 = 0x0010
	rvExtended   uint16 = 0x2711
)

// status(2) cookie(8) capability(16)
const rendezvousHeaderSize = 2 + CookieSize + capability.Size

// File transfer offer kinds in TLV 0x2711
const (
	fileOfferSingle   uint16 = 0x0001
	fileOfferMultiple uint16 = 0x0002
)

// RendezvousRequest is the channel-2 payload. Accept and Cancel must carry
// the cookie of the Request they answer; the caller tracking open
// negotiations enforces that.
type RendezvousRequest struct {
	Cookie     Cookie
	Capability capability.Capability
	Status     RendezvousStatus
	Extra      RendezvousExtra
}

func (*RendezvousRequest) Channel() Channel { return ChannelRendezvous }
func (*RendezvousRequest) isPayload()       {}
func (p *RendezvousRequest) isNil() bool   { return p == nil }

// RendezvousExtra holds the sub-protocol fields of a recognized capability.
// For an unrecognized capability only Raw is populated.
type RendezvousExtra struct {
	Sequence uint16 // Request sequence number; zero when absent
	Message  string // Invitation text
	Charset  string
	Language string

	Connect *ConnectInfo    // Direct IM and file transfer
	File    *FileOffer      // File transfer
	Chat    *ChatInvitation // Chat invite

	// Raw keeps inner TLVs that were not decoded into fields.
	Raw wire.TLVChain
}

// IsEmpty reports whether no sub-protocol field was decoded.
func (e RendezvousExtra) IsEmpty() bool {
	return e.Sequence == 0 && e.Message == "" && e.Charset == "" && e.Language == "" &&
		e.Connect == nil && e.File == nil && e.Chat == nil
}

// ConnectInfo is where the peer can be reached for a direct connection.
type ConnectInfo struct {
	ClientIP   netip.Addr // Address the peer believes it has
	VerifiedIP netip.Addr // Address the server observed
	ProxyIP    netip.Addr
	Port       uint16
	UseProxy   bool
}

// FileOffer describes the files of a transfer request.
type FileOffer struct {
	Multiple  bool   `json:"multiple,omitempty"`
	Count     uint16 `json:"count"`
	TotalSize uint32 `json:"total_size"`
	Name      string `json:"name"`
}

// ChatInvitation names the chat room a peer is invited to.
type ChatInvitation struct {
	Exchange uint16 `json:"exchange"`
	Room     string `json:"room"`
	Instance uint16 `json:"instance"`
}

type rendezvousCodec struct{}

func (c *rendezvousCodec) decode(tlvs wire.TLVChain) (Payload, Flags, error) {
	data, ok := tlvs.Bytes(tlvChannelData)
	if !ok {
		return nil, 0, malformed(ChannelRendezvous, "missing rendezvous data TLV", nil)
	}
	if len(data) < rendezvousHeaderSize {
		return nil, 0, malformed(ChannelRendezvous, fmt.Sprintf("rendezvous header is %d bytes", len(data)), nil)
	}

	r := wire.NewReader(data)
	status, _ := r.Uint16()
	cookie, _ := r.Bytes(CookieSize)
	capBytes, _ := r.Bytes(capability.Size)

	req := &RendezvousRequest{Status: RendezvousStatus(status)}
	copy(req.Cookie[:], cookie)
	copy(req.Capability[:], capBytes)

	if !req.Status.valid() {
		return nil, 0, malformed(ChannelRendezvous, fmt.Sprintf("status 0x%04X", status), nil)
	}

	inner, err := wire.ReadTLVChain(r)
	if err != nil {
		return nil, 0, malformed(ChannelRendezvous, "inner TLVs", err)
	}

	extra, err := decodeExtra(req.Capability, inner)
	if err != nil {
		return nil, 0, malformed(ChannelRendezvous, capability.Name(req.Capability), err)
	}
	req.Extra = extra

	return req, 0, nil
}

func recognized(c capability.Capability) bool {
	return c == capability.DirectIM || c == capability.FileTransfer || c == capability.ChatInvite
}

func decodeExtra(c capability.Capability, inner wire.TLVChain) (RendezvousExtra, error) {
	if !recognized(c) {
		return RendezvousExtra{Raw: inner}, nil
	}

	var extra RendezvousExtra
	var connect ConnectInfo
	hasConnect := false

	for _, tlv := range inner {
		switch tlv.Type {
		case rvSequence:
			if len(tlv.Value) != 2 {
				return extra, fmt.Errorf("sequence TLV is %d bytes", len(tlv.Value))
			}
			extra.Sequence = binary.BigEndian.Uint16(tlv.Value)
		case rvMessage:
			extra.Message = string(tlv.Value)
		case rvCharset:
			extra.Charset = string(tlv.Value)
		case rvLanguage:
			extra.Language = string(tlv.Value)
		case rvClientIP, rvVerifiedIP, rvProxyIP:
			if c == capability.ChatInvite {
				extra.Raw = append(extra.Raw, tlv)
				continue
			}
			addr, err := decodeIPv4(tlv.Value)
			if err != nil {
				return extra, err
			}
			switch tlv.Type {
			case rvClientIP:
				connect.ClientIP = addr
			case rvVerifiedIP:
				connect.VerifiedIP = addr
			default:
				connect.ProxyIP = addr
			}
			hasConnect = true
		case rvPort:
			if c == capability.ChatInvite {
				extra.Raw = append(extra.Raw, tlv)
				continue
			}
			if len(tlv.Value) != 2 {
				return extra, fmt.Errorf("port TLV is %d bytes", len(tlv.Value))
			}
			connect.Port = binary.BigEndian.Uint16(tlv.Value)
			hasConnect = true
		case rvUseProxy:
			connect.UseProxy = true
			hasConnect = true
		case rvExtended:
			var err error
			switch c {
			case capability.FileTransfer:
				extra.File, err = decodeFileOffer(tlv.Value)
			case capability.ChatInvite:
				extra.Chat, err = decodeChatInvitation(tlv.Value)
			default:
				extra.Raw = append(extra.Raw, tlv)
			}
			if err != nil {
				return extra, err
			}
		default:
			extra.Raw = append(extra.Raw, tlv)
		}
	}

	if hasConnect {
		extra.Connect = &connect
	}
	return extra, nil
}

func decodeIPv4(b []byte) (netip.Addr, error) {
	if len(b) != 4 {
		return netip.Addr{}, fmt.Errorf("IPv4 TLV is %d bytes", len(b))
	}
	return netip.AddrFrom4([4]byte(b)), nil
}

func decodeFileOffer(b []byte) (*FileOffer, error) {
	r := wire.NewReader(b)
	kind, err := r.Uint16()
	if err != nil {
		return nil, fmt.Errorf("file offer kind: %w", err)
	}
	count, err := r.Uint16()
	if err != nil {
		return nil, fmt.Errorf("file offer count: %w", err)
	}
	size, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("file offer size: %w", err)
	}
	return &FileOffer{
		Multiple:  kind == fileOfferMultiple,
		Count:     count,
		TotalSize: size,
		Name:      r.CString(),
	}, nil
}

func decodeChatInvitation(b []byte) (*ChatInvitation, error) {
	r := wire.NewReader(b)
	exchange, err := r.Uint16()
	if err != nil {
		return nil, fmt.Errorf("chat exchange: %w", err)
	}
	room, err := r.String8()
	if err != nil {
		return nil, fmt.Errorf("chat room: %w", err)
	}
	instance, err := r.Uint16()
	if err != nil {
		return nil, fmt.Errorf("chat instance: %w", err)
	}
	return &ChatInvitation{Exchange: exchange, Room: room, Instance: instance}, nil
}

func (c *rendezvousCodec) encode(p Payload, _ Flags) (wire.TLVChain, error) {
	req := p.(*RendezvousRequest)
	if !req.Status.valid() {
		return nil, fmt.Errorf("invalid rendezvous status %d", req.Status)
	}

	inner, err := encodeExtra(req.Capability, req.Extra)
	if err != nil {
		return nil, err
	}

	w := wire.NewWriter()
	w.Uint16(uint16(req.Status))
	w.Bytes(req.Cookie[:])
	w.Bytes(req.Capability[:])
	if err := inner.WriteTo(w); err != nil {
		return nil, err
	}

	return wire.TLVChain{wire.NewTLV(tlvChannelData, w.Encode())}, nil
}

func encodeExtra(c capability.Capability, e RendezvousExtra) (wire.TLVChain, error) {
	var inner wire.TLVChain

	if recognized(c) {
		if e.Sequence != 0 {
			inner.Append(wire.NewTLVUint16(rvSequence, e.Sequence))
		}
		if e.Message != "" {
			inner.Append(wire.NewTLV(rvMessage, []byte(e.Message)))
		}
		if e.Charset != "" {
			inner.Append(wire.NewTLV(rvCharset, []byte(e.Charset)))
		}
		if e.Language != "" {
			inner.Append(wire.NewTLV(rvLanguage, []byte(e.Language)))
		}

		if e.Connect != nil && c != capability.ChatInvite {
			inner.Append(encodeConnect(e.Connect)...)
		}

		switch {
		case e.File != nil && c == capability.FileTransfer:
			w := wire.NewWriter()
			kind := fileOfferSingle
			if e.File.Multiple {
				kind = fileOfferMultiple
			}
			w.Uint16(kind)
			w.Uint16(e.File.Count)
			w.Uint32(e.File.TotalSize)
			w.Bytes([]byte(e.File.Name))
			w.Uint8(0)
			inner.Append(wire.NewTLV(rvExtended, w.Encode()))
		case e.Chat != nil && c == capability.ChatInvite:
			w := wire.NewWriter()
			w.Uint16(e.Chat.Exchange)
			if err := w.String8(e.Chat.Room); err != nil {
				return nil, fmt.Errorf("chat room: %w", err)
			}
			w.Uint16(e.Chat.Instance)
			inner.Append(wire.NewTLV(rvExtended, w.Encode()))
		}
	}

	inner.Append(e.Raw...)
	return inner, nil
}

func encodeConnect(ci *ConnectInfo) []wire.TLV {
	var tlvs []wire.TLV
	if ci.ProxyIP.Is4() {
		tlvs = append(tlvs, wire.NewTLV(rvProxyIP, ci.ProxyIP.AsSlice()))
	}
	if ci.ClientIP.Is4() {
		tlvs = append(tlvs, wire.NewTLV(rvClientIP, ci.ClientIP.AsSlice()))
	}
	if ci.VerifiedIP.Is4() {
		tlvs = append(tlvs, wire.NewTLV(rvVerifiedIP, ci.VerifiedIP.AsSlice()))
	}
	if ci.Port != 0 {
		tlvs = append(tlvs, wire.NewTLVUint16(rvPort, ci.Port))
	}
	if ci.UseProxy {
		tlvs = append(tlvs, wire.NewTLV(rvUseProxy, nil))
	}
	return tlvs
}
