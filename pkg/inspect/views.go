package inspect

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/ZentaChain/zentalk-oscar/pkg/capability"
	"github.com/ZentaChain/zentalk-oscar/pkg/im"
	"github.com/ZentaChain/zentalk-oscar/pkg/rendezvous"
	"github.com/ZentaChain/zentalk-oscar/pkg/roster"
)

// MessageView is the JSON form of a decoded message.
type MessageView struct {
	Sender    string     `json:"sender,omitempty"`
	Recipient string     `json:"recipient,omitempty"`
	Channel   string     `json:"channel"`
	Cookie    im.Cookie  `json:"cookie"`
	Flags     []string   `json:"flags,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`

	Text       *TextView       `json:"text,omitempty"`
	Rendezvous *RendezvousView `json:"rendezvous,omitempty"`
	Legacy     *LegacyView     `json:"legacy,omitempty"`
}

// TextView is a channel-1 payload.
type TextView struct {
	Text     string `json:"text"`
	Encoding string `json:"encoding,omitempty"`
}

// RendezvousView is a channel-2 payload.
type RendezvousView struct {
	Cookie         im.Cookie             `json:"cookie"`
	Capability     capability.Capability `json:"capability"`
	CapabilityName string                `json:"capability_name,omitempty"`
	Status         string                `json:"status"`
	Sequence       uint16                `json:"sequence,omitempty"`
	Message        string                `json:"message,omitempty"`
	Charset        string                `json:"charset,omitempty"`
	Language       string                `json:"language,omitempty"`
	Connect        *ConnectView          `json:"connect,omitempty"`
	File           *im.FileOffer         `json:"file,omitempty"`
	Chat           *im.ChatInvitation    `json:"chat,omitempty"`
	RawTLVs        int                   `json:"raw_tlvs,omitempty"`
}

// ConnectView is where a rendezvous peer listens.
type ConnectView struct {
	ClientIP   string `json:"client_ip,omitempty"`
	VerifiedIP string `json:"verified_ip,omitempty"`
	ProxyIP    string `json:"proxy_ip,omitempty"`
	Port       uint16 `json:"port"`
	UseProxy   bool   `json:"use_proxy,omitempty"`
}

// LegacyView is a channel-4 payload.
type LegacyView struct {
	SenderUIN uint32        `json:"sender_uin"`
	Subtype   string        `json:"subtype"`
	Text      string        `json:"text"`
	Fields    []string      `json:"fields,omitempty"`
	Colors    *im.ColorPair `json:"colors,omitempty"`
}

var statusNames = map[string]im.RendezvousStatus{
	im.StatusRequest.String(): im.StatusRequest,
	im.StatusCancel.String():  im.StatusCancel,
	im.StatusAccept.String():  im.StatusAccept,
}

var channelNames = map[string]im.Channel{
	im.ChannelPlainText.String():  im.ChannelPlainText,
	im.ChannelRendezvous.String(): im.ChannelRendezvous,
	im.ChannelLegacy.String():     im.ChannelLegacy,
}

// NewMessageView renders msg.
func NewMessageView(msg *im.Message) MessageView {
	v := MessageView{
		Sender:    string(msg.Sender()),
		Recipient: string(msg.Recipient()),
		Channel:   msg.Channel().String(),
		Cookie:    msg.Cookie(),
	}
	for _, f := range []im.Flags{im.FlagOffline, im.FlagAutoResponse, im.FlagMultipart} {
		if msg.Flags().Has(f) {
			v.Flags = append(v.Flags, f.String())
		}
	}
	if ts, ok := msg.Timestamp(); ok {
		v.Timestamp = &ts
	}

	switch p := msg.Payload().(type) {
	case *im.PlainText:
		v.Text = &TextView{Text: p.Text, Encoding: p.Encoding.String()}
	case *im.RendezvousRequest:
		rv := newRendezvousView(p)
		v.Rendezvous = &rv
	case *im.LegacyPayload:
		v.Legacy = &LegacyView{
			SenderUIN: p.SenderUIN,
			Subtype:   p.Subtype.String(),
			Text:      p.Text,
			Colors:    p.Colors,
		}
		if fields := p.Fields(); len(fields) > 1 {
			v.Legacy.Fields = fields
		}
	}
	return v
}

func newRendezvousView(p *im.RendezvousRequest) RendezvousView {
	rv := RendezvousView{
		Cookie:         p.Cookie,
		Capability:     p.Capability,
		CapabilityName: capability.Name(p.Capability),
		Status:         p.Status.String(),
		Sequence:       p.Extra.Sequence,
		Message:        p.Extra.Message,
		Charset:        p.Extra.Charset,
		Language:       p.Extra.Language,
		File:           p.Extra.File,
		Chat:           p.Extra.Chat,
		RawTLVs:        len(p.Extra.Raw),
	}
	if ci := p.Extra.Connect; ci != nil {
		rv.Connect = &ConnectView{
			ClientIP:   addrString(ci.ClientIP),
			VerifiedIP: addrString(ci.VerifiedIP),
			ProxyIP:    addrString(ci.ProxyIP),
			Port:       ci.Port,
			UseProxy:   ci.UseProxy,
		}
	}
	return rv
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}

func parseAddr(s string) (netip.Addr, error) {
	if s == "" {
		return netip.Addr{}, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	if !a.Is4() {
		return netip.Addr{}, fmt.Errorf("%s is not an IPv4 address", s)
	}
	return a, nil
}

// EncodeRequest describes an outgoing message. Exactly one of Text,
// Rendezvous and Legacy must match Channel.
type EncodeRequest struct {
	Channel      string          `json:"channel" binding:"required"`
	Recipient    string          `json:"recipient" binding:"required"`
	Cookie       *im.Cookie      `json:"cookie,omitempty"`
	AutoResponse bool            `json:"auto_response,omitempty"`
	Text         *TextView       `json:"text,omitempty"`
	Rendezvous   *RendezvousView `json:"rendezvous,omitempty"`
	Legacy       *LegacyView     `json:"legacy,omitempty"`
}

// Message builds the im.Message the request describes.
func (r EncodeRequest) Message() (*im.Message, error) {
	ch, ok := channelNames[r.Channel]
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", r.Channel)
	}

	var payload im.Payload
	switch ch {
	case im.ChannelPlainText:
		if r.Text == nil {
			return nil, fmt.Errorf("%s message needs text", ch)
		}
		payload = &im.PlainText{Text: r.Text.Text}
	case im.ChannelRendezvous:
		if r.Rendezvous == nil {
			return nil, fmt.Errorf("%s message needs rendezvous", ch)
		}
		req, err := r.Rendezvous.request()
		if err != nil {
			return nil, err
		}
		payload = req
	case im.ChannelLegacy:
		if r.Legacy == nil {
			return nil, fmt.Errorf("%s message needs legacy", ch)
		}
		st, err := im.ParseLegacySubtype(r.Legacy.Subtype)
		if err != nil {
			return nil, err
		}
		payload = &im.LegacyPayload{
			SenderUIN: r.Legacy.SenderUIN,
			Subtype:   st,
			Text:      r.Legacy.Text,
			Colors:    r.Legacy.Colors,
		}
	}

	opts := []im.MessageOption{im.WithRecipient(im.Handle(r.Recipient))}
	if r.Cookie != nil {
		opts = append(opts, im.WithCookie(*r.Cookie))
	}
	if r.AutoResponse {
		opts = append(opts, im.WithFlags(im.FlagAutoResponse))
	}
	return im.NewMessage(ch, payload, opts...)
}

func (v *RendezvousView) request() (*im.RendezvousRequest, error) {
	status, ok := statusNames[v.Status]
	if !ok {
		return nil, fmt.Errorf("unknown rendezvous status %q", v.Status)
	}

	req := &im.RendezvousRequest{
		Cookie:     v.Cookie,
		Capability: v.Capability,
		Status:     status,
		Extra: im.RendezvousExtra{
			Sequence: v.Sequence,
			Message:  v.Message,
			Charset:  v.Charset,
			Language: v.Language,
			File:     v.File,
			Chat:     v.Chat,
		},
	}
	if req.Cookie.IsZero() {
		req.Cookie = im.NewCookie()
	}

	if cv := v.Connect; cv != nil {
		ci := &im.ConnectInfo{Port: cv.Port, UseProxy: cv.UseProxy}
		var err error
		if ci.ClientIP, err = parseAddr(cv.ClientIP); err != nil {
			return nil, fmt.Errorf("client_ip: %w", err)
		}
		if ci.VerifiedIP, err = parseAddr(cv.VerifiedIP); err != nil {
			return nil, fmt.Errorf("verified_ip: %w", err)
		}
		if ci.ProxyIP, err = parseAddr(cv.ProxyIP); err != nil {
			return nil, fmt.Errorf("proxy_ip: %w", err)
		}
		req.Extra.Connect = ci
	}
	return req, nil
}

// NegotiationView is the JSON form of a tracked rendezvous.
type NegotiationView struct {
	Cookie     im.Cookie             `json:"cookie"`
	Peer       string                `json:"peer"`
	Capability capability.Capability `json:"capability"`
	State      string                `json:"state"`
	Outgoing   bool                  `json:"outgoing"`
	Endpoint   string                `json:"endpoint,omitempty"`
	Opened     time.Time             `json:"opened"`
	Updated    time.Time             `json:"updated"`
}

// NewNegotiationView renders n.
func NewNegotiationView(n rendezvous.Negotiation) NegotiationView {
	v := NegotiationView{
		Cookie:     n.Cookie,
		Peer:       string(n.Peer),
		Capability: n.Capability,
		State:      n.State.String(),
		Outgoing:   n.Outgoing,
		Opened:     n.Opened,
		Updated:    n.Updated,
	}
	if addr, err := n.Endpoint(); err == nil {
		v.Endpoint = addr.String()
	}
	return v
}

// ContactView is the JSON form of a roster entry.
type ContactView struct {
	Name         string `json:"name" binding:"required"`
	GroupID      uint16 `json:"group_id"`
	ItemID       uint16 `json:"item_id"`
	Type         string `json:"type" binding:"required"`
	AwaitingAuth bool   `json:"awaiting_auth,omitempty"`
	Alias        string `json:"alias,omitempty"`
}

var itemTypeNames = func() map[string]roster.ItemType {
	m := make(map[string]roster.ItemType)
	for t := roster.ItemBuddy; t <= roster.ItemSelfIcon; t++ {
		m[t.String()] = t
	}
	return m
}()

// NewContactView renders c.
func NewContactView(c *roster.Contact) ContactView {
	return ContactView{
		Name:         c.Name,
		GroupID:      c.GroupID,
		ItemID:       c.ItemID,
		Type:         c.Type.String(),
		AwaitingAuth: c.AwaitingAuth,
		Alias:        c.Alias,
	}
}

// Contact converts the view back to a roster entry.
func (v ContactView) Contact() (roster.Contact, error) {
	t, ok := itemTypeNames[v.Type]
	if !ok {
		return roster.Contact{}, fmt.Errorf("unknown item type %q", v.Type)
	}
	return roster.Contact{
		Name:         v.Name,
		GroupID:      v.GroupID,
		ItemID:       v.ItemID,
		Type:         t,
		AwaitingAuth: v.AwaitingAuth,
		Alias:        v.Alias,
	}, nil
}
