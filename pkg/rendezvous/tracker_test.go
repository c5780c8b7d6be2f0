package rendezvous

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-oscar/pkg/capability"
	"github.com/ZentaChain/zentalk-oscar/pkg/im"
)

var cookie = im.Cookie{0xA, 0xB, 0xC, 0xD, 0x1, 0x2, 0x3, 0x4}

func incoming(t *testing.T, from im.Handle, status im.RendezvousStatus, extra im.RendezvousExtra) *im.Message {
	t.Helper()
	msg, err := im.NewMessage(im.ChannelRendezvous, &im.RendezvousRequest{
		Cookie:     cookie,
		Capability: capability.FileTransfer,
		Status:     status,
		Extra:      extra,
	}, im.WithSender(from), im.WithCookie(cookie))
	require.NoError(t, err)
	return msg
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestTrackerRequestThenAccept(t *testing.T) {
	tr := NewTracker()

	require.NoError(t, tr.Observe(incoming(t, "alice", im.StatusRequest, im.RendezvousExtra{})))
	n, ok := tr.Lookup(cookie)
	require.True(t, ok)
	assert.Equal(t, StatePending, n.State)
	assert.Equal(t, im.Handle("alice"), n.Peer)
	assert.False(t, n.Outgoing)
	assert.Len(t, tr.Open(), 1)

	msg, err := tr.Accept(cookie)
	require.NoError(t, err)
	assert.Equal(t, im.Handle("alice"), msg.Recipient())
	rv, ok := msg.Rendezvous()
	require.True(t, ok)
	assert.Equal(t, cookie, rv.Cookie)
	assert.Equal(t, im.StatusAccept, rv.Status)
	assert.Equal(t, capability.FileTransfer, rv.Capability)

	n, _ = tr.Lookup(cookie)
	assert.Equal(t, StateAccepted, n.State)
	assert.Empty(t, tr.Open())
}

func TestTrackerViolations(t *testing.T) {
	tr := NewTracker()

	// closing an unknown cookie
	err := tr.Observe(incoming(t, "alice", im.StatusCancel, im.RendezvousExtra{}))
	assert.ErrorIs(t, err, ErrUnknownCookie)

	require.NoError(t, tr.Observe(incoming(t, "alice", im.StatusRequest, im.RendezvousExtra{})))

	// a second Request for an open cookie
	err = tr.Observe(incoming(t, "alice", im.StatusRequest, im.RendezvousExtra{}))
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	require.NoError(t, tr.Observe(incoming(t, "alice", im.StatusCancel, im.RendezvousExtra{})))

	// a second Cancel or an Accept after the Cancel
	err = tr.Observe(incoming(t, "alice", im.StatusCancel, im.RendezvousExtra{}))
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	err = tr.Observe(incoming(t, "alice", im.StatusAccept, im.RendezvousExtra{}))
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	_, err = tr.Accept(cookie)
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	n, _ := tr.Lookup(cookie)
	assert.Equal(t, StateCancelled, n.State)

	_, err = tr.Cancel(im.Cookie{})
	assert.ErrorIs(t, err, ErrUnknownCookie)
}

func TestTrackerIgnoresOtherChannels(t *testing.T) {
	tr := NewTracker()
	msg, err := im.NewMessage(im.ChannelPlainText, &im.PlainText{Text: "hi"}, im.WithSender("alice"))
	require.NoError(t, err)
	assert.NoError(t, tr.Observe(msg))
	assert.Empty(t, tr.Open())
}

func TestTrackerOfferThenRemoteCancel(t *testing.T) {
	tr := NewTracker()

	offer, err := tr.Offer("bob", capability.DirectIM, im.RendezvousExtra{Sequence: 1})
	require.NoError(t, err)
	assert.Equal(t, im.Handle("bob"), offer.Recipient())

	rv, ok := offer.Rendezvous()
	require.True(t, ok)
	assert.Equal(t, im.StatusRequest, rv.Status)
	assert.Equal(t, rv.Cookie, offer.Cookie())

	n, ok := tr.Lookup(rv.Cookie)
	require.True(t, ok)
	assert.True(t, n.Outgoing)

	cancel, err := im.NewMessage(im.ChannelRendezvous, &im.RendezvousRequest{
		Cookie:     rv.Cookie,
		Capability: capability.DirectIM,
		Status:     im.StatusCancel,
	}, im.WithSender("bob"))
	require.NoError(t, err)

	tr.Handler()(cancel)

	n, _ = tr.Lookup(rv.Cookie)
	assert.Equal(t, StateCancelled, n.State)
}

func TestTrackerOpenAndExpire(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := NewTracker(WithClock(clock.Now))

	first, err := tr.Offer("alice", capability.FileTransfer, im.RendezvousExtra{})
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Minute)
	second, err := tr.Offer("bob", capability.FileTransfer, im.RendezvousExtra{})
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Minute)
	third, err := tr.Offer("carol", capability.FileTransfer, im.RendezvousExtra{})
	require.NoError(t, err)
	_, err = tr.Cancel(third.Cookie())
	require.NoError(t, err)

	open := tr.Open()
	require.Len(t, open, 2)
	assert.Equal(t, first.Cookie(), open[0].Cookie)
	assert.Equal(t, second.Cookie(), open[1].Cookie)

	clock.now = clock.now.Add(30 * time.Second)
	expired := tr.Expire(2 * time.Minute)
	require.Len(t, expired, 1)
	assert.Equal(t, first.Cookie(), expired[0].Cookie)

	_, ok := tr.Lookup(first.Cookie())
	assert.False(t, ok)
	_, ok = tr.Lookup(second.Cookie())
	assert.True(t, ok)
	_, ok = tr.Lookup(third.Cookie())
	assert.True(t, ok)
}

func TestNegotiationEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		connect *im.ConnectInfo
		want    string
		err     error
	}{
		{"verified wins", &im.ConnectInfo{
			ClientIP:   netip.MustParseAddr("192.168.0.5"),
			VerifiedIP: netip.MustParseAddr("203.0.113.9"),
			Port:       5190,
		}, "/ip4/203.0.113.9/tcp/5190", nil},
		{"client only", &im.ConnectInfo{
			ClientIP: netip.MustParseAddr("10.0.0.7"),
			Port:     443,
		}, "/ip4/10.0.0.7/tcp/443", nil},
		{"proxy", &im.ConnectInfo{
			VerifiedIP: netip.MustParseAddr("203.0.113.9"),
			ProxyIP:    netip.MustParseAddr("64.12.24.1"),
			UseProxy:   true,
			Port:       5190,
		}, "/ip4/64.12.24.1/tcp/5190", nil},
		{"no port", &im.ConnectInfo{ClientIP: netip.MustParseAddr("10.0.0.7")}, "", ErrNoEndpoint},
		{"no address", &im.ConnectInfo{Port: 5190}, "", ErrNoEndpoint},
		{"no connect info", nil, "", ErrNoEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Negotiation{Request: im.RendezvousRequest{Extra: im.RendezvousExtra{Connect: tt.connect}}}
			addr, err := n.Endpoint()
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, addr.String())
		})
	}
}
