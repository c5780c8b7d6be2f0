package im

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-oscar/pkg/roster"
	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

// ContactLookup answers who a sender is. It is satisfied by *roster.Store.
// A sender with no entry returns roster.ErrNotFound.
type ContactLookup interface {
	LookupByHandle(ctx context.Context, handle string) (*roster.Contact, error)
}

// Handler receives decoded messages.
type Handler func(*Message)

type subscriber struct {
	id      uint64
	handler Handler
}

// Dispatcher decodes incoming ICBM frames and delivers the resulting
// messages to its subscribers. Decode is meant to be called from the single
// goroutine that reads the connection; Subscribe and Unsubscribe may be
// called from anywhere.
type Dispatcher struct {
	opts   options
	codecs codecSet
	log    *zap.Logger

	mu     sync.Mutex
	subs   []subscriber
	nextID uint64
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	o := applyOptions(opts)
	return &Dispatcher{
		opts:   o,
		codecs: newCodecSet(o.codepages),
		log:    o.logger.Named("dispatcher"),
	}
}

// Subscription is returned by Subscribe.
type Subscription struct {
	d  *Dispatcher
	id uint64
}

// Unsubscribe stops delivery to the handler. A delivery already in progress
// still completes. Calling it more than once is harmless.
func (s Subscription) Unsubscribe() {
	if s.d == nil {
		return
	}
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for i, sub := range s.d.subs {
		if sub.id == s.id {
			s.d.subs = append(s.d.subs[:i:i], s.d.subs[i+1:]...)
			return
		}
	}
}

// Subscribe registers h. Handlers run synchronously, in subscription order,
// on the goroutine that called Decode; a slow handler delays every later
// frame.
func (d *Dispatcher) Subscribe(h Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.subs = append(d.subs, subscriber{id: d.nextID, handler: h})
	return Subscription{d: d, id: d.nextID}
}

// Decode decodes one SNAC(0x0004,0x0007) frame and delivers the message to
// the subscribers. A frame that fails to decode or is refused by the sender
// policy is dropped and reported through the error; the caller should log
// it and carry on with the next frame.
func (d *Dispatcher) Decode(ctx context.Context, frame []byte) (*Message, error) {
	h, body, err := wire.SplitFrame(frame)
	if err != nil {
		return nil, d.drop(malformed(0, "SNAC header", err))
	}
	if !h.Is(wire.FamilyICBM, wire.ICBMChannelMsgToClient) {
		return nil, d.drop(malformed(0, fmt.Sprintf("unexpected %s", h), nil))
	}

	msg, err := d.decodeICBM(body)
	if err != nil {
		return nil, d.drop(err)
	}
	if err := d.admit(ctx, msg); err != nil {
		return nil, d.drop(err)
	}

	d.deliver(msg)
	return msg, nil
}

// decodeICBM decodes an ICBM body:
// cookie(8) channel(2) snLen(1) sn warning(2) tlvCount(2) tlvs... messageTLVs...
func (d *Dispatcher) decodeICBM(body []byte) (*Message, error) {
	r := wire.NewReader(body)

	raw, err := r.Bytes(CookieSize)
	if err != nil {
		return nil, malformed(0, "cookie", err)
	}
	var cookie Cookie
	copy(cookie[:], raw)

	word, err := r.Uint16()
	if err != nil {
		return nil, malformed(0, "channel", err)
	}
	ch := Channel(word)
	c, ok := d.codecs[ch]
	if !ok {
		return nil, &DecodeError{Kind: ErrUnsupportedChannel, Channel: ch}
	}

	sender, err := r.String8()
	if err != nil {
		return nil, malformed(ch, "sender", err)
	}
	if sender == "" {
		return nil, malformed(ch, "empty sender", nil)
	}
	if _, err := r.Uint16(); err != nil {
		return nil, malformed(ch, "warning level", err)
	}
	count, err := r.Uint16()
	if err != nil {
		return nil, malformed(ch, "user info count", err)
	}
	if _, err := wire.ReadTLVBlock(r, int(count)); err != nil {
		return nil, malformed(ch, "user info", err)
	}

	tlvs, err := wire.ReadTLVChain(r)
	if err != nil {
		return nil, malformed(ch, "message TLVs", err)
	}

	payload, flags, err := c.decode(tlvs)
	if err != nil {
		return nil, err
	}

	opts := []MessageOption{WithSender(Handle(sender)), WithCookie(cookie)}
	if tlvs.Has(tlvStoredOffline) {
		flags |= FlagOffline
	}
	if ts, ok := tlvs.Uint32(tlvSendTime); ok {
		opts = append(opts, WithTimestamp(time.Unix(int64(ts), 0).UTC()))
	}
	opts = append(opts, WithFlags(flags))

	return NewMessage(ch, payload, opts...)
}

// admit applies the sender policy.
func (d *Dispatcher) admit(ctx context.Context, msg *Message) error {
	if d.opts.contacts == nil {
		return nil
	}

	contact, err := d.opts.contacts.LookupByHandle(ctx, string(msg.Sender()))
	if err != nil {
		if !errors.Is(err, roster.ErrNotFound) {
			d.log.Warn("contact lookup failed", zap.String("sender", string(msg.Sender())), zap.Error(err))
		}
		contact = nil
	}

	if contact != nil && contact.Type == roster.ItemIgnore {
		return fmt.Errorf("%w: %s", ErrSenderIgnored, msg.Sender())
	}

	if d.opts.policy == PolicyBuddiesOnly {
		rv, ok := msg.Rendezvous()
		if ok && rv.Status == StatusRequest && (contact == nil || !contact.Authorized()) {
			return fmt.Errorf("%w: %s", ErrUnauthorizedSender, msg.Sender())
		}
	}
	return nil
}

// deliver hands msg to a snapshot of the subscribers, so handlers may
// subscribe or unsubscribe while it runs.
func (d *Dispatcher) deliver(msg *Message) {
	d.opts.metrics.observeDecoded(msg.Channel())

	d.mu.Lock()
	subs := make([]subscriber, len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()

	for _, sub := range subs {
		sub.handler(msg)
		d.opts.metrics.observeDelivered()
	}
}

func (d *Dispatcher) drop(err error) error {
	d.opts.metrics.observeDropped(err)
	switch {
	case errors.Is(err, ErrSenderIgnored), errors.Is(err, ErrUnauthorizedSender):
		d.log.Debug("message refused", zap.Error(err))
	default:
		d.log.Warn("frame dropped", zap.String("reason", DropReason(err)), zap.Error(err))
	}
	return err
}
