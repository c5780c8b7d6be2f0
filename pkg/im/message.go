package im

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Channel is the ICBM channel word.
type Channel uint16

const (
	ChannelPlainText  Channel = 0x0001
	ChannelRendezvous Channel = 0x0002
	ChannelLegacy     Channel = 0x0004
)

func (c Channel) String() string {
	switch c {
	case ChannelPlainText:
		return "plain-text"
	case ChannelRendezvous:
		return "rendezvous"
	case ChannelLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("Channel(%d)", uint16(c))
	}
}

// Handle identifies a peer: an AIM screen name or a decimal ICQ UIN.
type Handle string

// UIN returns the numeric ICQ identifier if the handle is one.
func (h Handle) UIN() (uint32, bool) {
	if h == "" || strings.TrimLeft(string(h), "0123456789") != "" {
		return 0, false
	}
	uin, err := strconv.ParseUint(string(h), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(uin), true
}

// HandleFromUIN formats a numeric UIN as a handle.
func HandleFromUIN(uin uint32) Handle {
	return Handle(strconv.FormatUint(uint64(uin), 10))
}

// Flags is a set of message properties orthogonal to the channel.
type Flags uint8

const (
	FlagOffline Flags = 1 << iota
	FlagAutoResponse
	FlagMultipart
)

// Has reports whether every flag in f is set.
func (fl Flags) Has(f Flags) bool {
	return fl&f == f
}

func (fl Flags) String() string {
	var names []string
	if fl.Has(FlagOffline) {
		names = append(names, "offline")
	}
	if fl.Has(FlagAutoResponse) {
		names = append(names, "auto-response")
	}
	if fl.Has(FlagMultipart) {
		names = append(names, "multipart")
	}
	return strings.Join(names, "|")
}

// CookieSize is the length of an ICBM cookie.
const CookieSize = 8

// Cookie correlates the frames of one message or one rendezvous negotiation.
type Cookie [CookieSize]byte

// NewCookie returns a random cookie.
func NewCookie() Cookie {
	var c Cookie
	if _, err := rand.Read(c[:]); err != nil {
		// Fall back to the clock rather than sending a zero cookie
		binary.BigEndian.PutUint64(c[:], uint64(time.Now().UnixNano()))
	}
	return c
}

// IsZero reports whether the cookie is unset.
func (c Cookie) IsZero() bool {
	return c == Cookie{}
}

func (c Cookie) String() string {
	return hex.EncodeToString(c[:])
}

// MarshalText implements encoding.TextMarshaler.
func (c Cookie) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Cookie) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid cookie: %w", err)
	}
	if len(b) != CookieSize {
		return fmt.Errorf("invalid cookie: %d bytes", len(b))
	}
	copy(c[:], b)
	return nil
}

// Payload is the channel-specific body of a message. The set of
// implementations is closed: *PlainText, *RendezvousRequest and
// *LegacyPayload.
type Payload interface {
	Channel() Channel
	isPayload()
	isNil() bool
}

// Message is one decoded or outgoing instant message. Its channel and
// payload always agree; use NewMessage to build one.
type Message struct {
	sender    Handle
	recipient Handle
	channel   Channel
	payload   Payload
	flags     Flags
	cookie    Cookie
	timestamp time.Time
}

// MessageOption configures a Message under construction.
type MessageOption func(*Message)

// WithSender sets the sending peer.
func WithSender(h Handle) MessageOption {
	return func(m *Message) {
		m.sender = h
	}
}

// WithRecipient sets the receiving peer of an outgoing message.
func WithRecipient(h Handle) MessageOption {
	return func(m *Message) {
		m.recipient = h
	}
}

// WithFlags adds flags.
func WithFlags(f Flags) MessageOption {
	return func(m *Message) {
		m.flags |= f
	}
}

// WithTimestamp sets the origin time. Live messages have none.
func WithTimestamp(t time.Time) MessageOption {
	return func(m *Message) {
		m.timestamp = t
	}
}

// WithCookie sets the ICBM cookie.
func WithCookie(c Cookie) MessageOption {
	return func(m *Message) {
		m.cookie = c
	}
}

// NewMessage builds a message on channel ch. It fails if the payload belongs
// to a different channel, or if FlagMultipart is requested for a rendezvous.
func NewMessage(ch Channel, payload Payload, opts ...MessageOption) (*Message, error) {
	if payload == nil || payload.isNil() {
		return nil, ErrNilPayload
	}
	if payload.Channel() != ch {
		return nil, fmt.Errorf("%w: %s payload on %s channel", ErrChannelMismatch, payload.Channel(), ch)
	}

	m := &Message{channel: ch, payload: payload}
	for _, opt := range opts {
		opt(m)
	}

	if ch == ChannelRendezvous && m.flags.Has(FlagMultipart) {
		return nil, fmt.Errorf("%w: multipart rendezvous", ErrChannelMismatch)
	}

	return m, nil
}

// Sender returns the sending peer. Empty for outgoing messages.
func (m *Message) Sender() Handle { return m.sender }

// Recipient returns the receiving peer of an outgoing message.
func (m *Message) Recipient() Handle { return m.recipient }

// Channel returns the ICBM channel.
func (m *Message) Channel() Channel { return m.channel }

// Payload returns the channel-specific body.
func (m *Message) Payload() Payload { return m.payload }

// Flags returns the message flags.
func (m *Message) Flags() Flags { return m.flags }

// Cookie returns the ICBM cookie.
func (m *Message) Cookie() Cookie { return m.cookie }

// Timestamp returns the server-reported origin time of a replayed offline
// message. Live messages report false; use the arrival time instead.
func (m *Message) Timestamp() (time.Time, bool) {
	return m.timestamp, !m.timestamp.IsZero()
}

// PlainText returns the channel-1 payload.
func (m *Message) PlainText() (*PlainText, bool) {
	p, ok := m.payload.(*PlainText)
	return p, ok
}

// Rendezvous returns the channel-2 payload.
func (m *Message) Rendezvous() (*RendezvousRequest, bool) {
	p, ok := m.payload.(*RendezvousRequest)
	return p, ok
}

// Legacy returns the channel-4 payload.
func (m *Message) Legacy() (*LegacyPayload, bool) {
	p, ok := m.payload.(*LegacyPayload)
	return p, ok
}

// asOffline returns a copy marked as a replayed offline message.
func (m *Message) asOffline(origin time.Time) *Message {
	cp := *m
	cp.flags |= FlagOffline
	cp.timestamp = origin
	return &cp
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{%s from=%q to=%q cookie=%s flags=%s}",
		m.channel, m.sender, m.recipient, m.cookie, m.flags)
}
