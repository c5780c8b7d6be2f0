// Package rendezvous tracks channel-2 negotiations across frames. The codec
// decodes every Request, Accept and Cancel on its own; this package pairs
// them by cookie and decides which transitions are legal.
package rendezvous

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-oscar/pkg/capability"
	"github.com/ZentaChain/zentalk-oscar/pkg/im"
)

var (
	ErrDuplicateRequest = errors.New("negotiation already open for cookie")
	ErrUnknownCookie    = errors.New("no negotiation for cookie")
	ErrAlreadyTerminal  = errors.New("negotiation already finished")
	ErrNoEndpoint       = errors.New("negotiation carries no connect address")
)

// State of a negotiation
type State int

const (
	StatePending State = iota
	StateAccepted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAccepted:
		return "accepted"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateCancelled
}

// Negotiation is a snapshot of one rendezvous.
type Negotiation struct {
	Cookie     im.Cookie
	Peer       im.Handle
	Capability capability.Capability
	State      State
	// Outgoing is true when the local side sent the Request.
	Outgoing bool
	Request  im.RendezvousRequest
	Opened   time.Time
	Updated  time.Time
}

// Endpoint returns the address to dial for a direct connection, as
// /ip4/<addr>/tcp/<port>. A proxied negotiation returns the proxy address;
// otherwise the server-verified address wins over the one the peer reported.
func (n Negotiation) Endpoint() (multiaddr.Multiaddr, error) {
	ci := n.Request.Extra.Connect
	if ci == nil || ci.Port == 0 {
		return nil, ErrNoEndpoint
	}

	addr := ci.VerifiedIP
	switch {
	case ci.UseProxy:
		addr = ci.ProxyIP
	case !addr.IsValid() || addr.IsUnspecified():
		addr = ci.ClientIP
	}
	if !addr.Is4() {
		return nil, ErrNoEndpoint
	}

	return multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", addr, ci.Port))
}

// Tracker pairs Requests with their Accept or Cancel. It is safe for
// concurrent use.
type Tracker struct {
	log *zap.Logger
	now func() time.Time

	mu   sync.Mutex
	negs map[im.Cookie]*Negotiation
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		t.log = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		log:  zap.NewNop(),
		now:  time.Now,
		negs: make(map[im.Cookie]*Negotiation),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.Named("rendezvous")
	return t
}

// Handler returns a Dispatcher subscriber that feeds incoming rendezvous
// messages to Observe.
func (t *Tracker) Handler() im.Handler {
	return func(msg *im.Message) {
		_ = t.Observe(msg)
	}
}

// Observe applies an incoming message. Messages on other channels are
// ignored. Protocol violations are logged and returned; the tracker state is
// left unchanged by them.
func (t *Tracker) Observe(msg *im.Message) error {
	rv, ok := msg.Rendezvous()
	if !ok {
		return nil
	}

	var err error
	switch rv.Status {
	case im.StatusRequest:
		err = t.open(msg.Sender(), *rv, false)
	case im.StatusAccept:
		err = t.close(rv.Cookie, StateAccepted)
	case im.StatusCancel:
		err = t.close(rv.Cookie, StateCancelled)
	}

	if err != nil {
		t.log.Warn("rendezvous protocol violation",
			zap.String("peer", string(msg.Sender())),
			zap.Stringer("cookie", rv.Cookie),
			zap.Stringer("status", rv.Status),
			zap.Error(err),
		)
	}
	return err
}

// Offer opens an outgoing negotiation with a fresh cookie and returns the
// Request message to encode.
func (t *Tracker) Offer(to im.Handle, c capability.Capability, extra im.RendezvousExtra) (*im.Message, error) {
	req := im.RendezvousRequest{
		Cookie:     im.NewCookie(),
		Capability: c,
		Status:     im.StatusRequest,
		Extra:      extra,
	}
	if err := t.open(to, req, true); err != nil {
		return nil, err
	}
	return im.NewMessage(im.ChannelRendezvous, &req, im.WithRecipient(to), im.WithCookie(req.Cookie))
}

// Accept answers the pending negotiation identified by cookie.
func (t *Tracker) Accept(cookie im.Cookie) (*im.Message, error) {
	return t.reply(cookie, im.StatusAccept, StateAccepted)
}

// Cancel abandons the pending negotiation identified by cookie. Either side
// may cancel at any time before it finishes.
func (t *Tracker) Cancel(cookie im.Cookie) (*im.Message, error) {
	return t.reply(cookie, im.StatusCancel, StateCancelled)
}

func (t *Tracker) reply(cookie im.Cookie, status im.RendezvousStatus, next State) (*im.Message, error) {
	t.mu.Lock()
	n, ok := t.negs[cookie]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownCookie, cookie)
	}
	if n.State.Terminal() {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, cookie, n.State)
	}
	n.State = next
	n.Updated = t.now()
	peer, c := n.Peer, n.Capability
	t.mu.Unlock()

	req := &im.RendezvousRequest{Cookie: cookie, Capability: c, Status: status}
	return im.NewMessage(im.ChannelRendezvous, req, im.WithRecipient(peer), im.WithCookie(cookie))
}

func (t *Tracker) open(peer im.Handle, req im.RendezvousRequest, outgoing bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n, ok := t.negs[req.Cookie]; ok && !n.State.Terminal() {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, req.Cookie)
	}

	now := t.now()
	t.negs[req.Cookie] = &Negotiation{
		Cookie:     req.Cookie,
		Peer:       peer,
		Capability: req.Capability,
		State:      StatePending,
		Outgoing:   outgoing,
		Request:    req,
		Opened:     now,
		Updated:    now,
	}
	return nil
}

func (t *Tracker) close(cookie im.Cookie, next State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.negs[cookie]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCookie, cookie)
	}
	if n.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, cookie, n.State)
	}
	n.State = next
	n.Updated = t.now()
	return nil
}

// Lookup returns the negotiation for cookie.
func (t *Tracker) Lookup(cookie im.Cookie) (Negotiation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.negs[cookie]
	if !ok {
		return Negotiation{}, false
	}
	return *n, true
}

// Open returns the pending negotiations, oldest first.
func (t *Tracker) Open() []Negotiation {
	t.mu.Lock()
	var open []Negotiation
	for _, n := range t.negs {
		if !n.State.Terminal() {
			open = append(open, *n)
		}
	}
	t.mu.Unlock()

	sort.Slice(open, func(i, j int) bool {
		return open[i].Opened.Before(open[j].Opened)
	})
	return open
}

// Expire forgets every negotiation not updated within olderThan and returns
// the pending ones among them, so the caller can send a Cancel.
func (t *Tracker) Expire(olderThan time.Duration) []Negotiation {
	cutoff := t.now().Add(-olderThan)

	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []Negotiation
	for cookie, n := range t.negs {
		if n.Updated.After(cutoff) {
			continue
		}
		if !n.State.Terminal() {
			expired = append(expired, *n)
		}
		delete(t.negs, cookie)
	}
	return expired
}
