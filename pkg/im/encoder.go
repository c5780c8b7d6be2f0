package im

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

// Encoder turns outgoing messages into SNAC(0x0004,0x0006) frames. Use one
// Encoder per connection; it is safe for concurrent use.
type Encoder struct {
	opts   options
	codecs codecSet
	log    *zap.Logger

	// last request id handed out
	reqID atomic.Uint32
}

// NewEncoder creates an encoder whose first request id is 1.
func NewEncoder(opts ...Option) *Encoder {
	o := applyOptions(opts)
	return &Encoder{
		opts:   o,
		codecs: newCodecSet(o.codepages),
		log:    o.logger.Named("encoder"),
	}
}

// NextRequestID returns a request id never returned before by this Encoder.
func (e *Encoder) NextRequestID() uint32 {
	return e.reqID.Add(1)
}

// Encode builds the frame for msg. The message must have a recipient. The
// cookie is taken from the message, from the rendezvous payload, or freshly
// generated, in that order.
func (e *Encoder) Encode(msg *Message) ([]byte, error) {
	if msg == nil || msg.Payload() == nil {
		return nil, ErrNilPayload
	}
	if msg.Recipient() == "" {
		return nil, ErrNoRecipient
	}

	c, ok := e.codecs[msg.Channel()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChannel, msg.Channel())
	}

	tlvs, err := c.encode(msg.Payload(), msg.Flags())
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msg.Channel(), err)
	}
	if e.opts.serverAck {
		tlvs.Append(wire.NewTLV(tlvRequestAck, nil))
	}

	w := wire.NewWriter()
	cookie := e.cookieFor(msg)
	w.Bytes(cookie[:])
	w.Uint16(uint16(msg.Channel()))
	if err := w.String8(string(msg.Recipient())); err != nil {
		return nil, fmt.Errorf("recipient: %w", err)
	}
	if err := tlvs.WriteTo(w); err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msg.Channel(), err)
	}

	h := wire.SNACHeader{
		Family:    wire.FamilyICBM,
		Subtype:   wire.ICBMChannelMsgToHost,
		RequestID: e.NextRequestID(),
	}

	e.opts.metrics.observeEncoded(msg.Channel())
	e.log.Debug("message encoded",
		zap.Stringer("channel", msg.Channel()),
		zap.String("recipient", string(msg.Recipient())),
		zap.Uint32("request_id", h.RequestID),
	)

	return wire.NewFrame(h, w.Encode()), nil
}

func (e *Encoder) cookieFor(msg *Message) Cookie {
	if !msg.Cookie().IsZero() {
		return msg.Cookie()
	}
	if rv, ok := msg.Rendezvous(); ok && !rv.Cookie.IsZero() {
		return rv.Cookie
	}
	return NewCookie()
}
