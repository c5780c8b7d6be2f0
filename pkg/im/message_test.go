package im

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageRejectsMismatch(t *testing.T) {
	_, err := NewMessage(ChannelLegacy, &PlainText{Text: "hi"})
	assert.ErrorIs(t, err, ErrChannelMismatch)

	_, err = NewMessage(ChannelPlainText, &RendezvousRequest{})
	assert.ErrorIs(t, err, ErrChannelMismatch)

	_, err = NewMessage(ChannelPlainText, nil)
	assert.ErrorIs(t, err, ErrNilPayload)

	_, err = NewMessage(ChannelPlainText, (*PlainText)(nil), WithRecipient("bob"))
	assert.ErrorIs(t, err, ErrNilPayload)

	_, err = NewMessage(ChannelRendezvous, (*RendezvousRequest)(nil), WithRecipient("bob"))
	assert.ErrorIs(t, err, ErrNilPayload)

	_, err = NewMessage(ChannelLegacy, (*LegacyPayload)(nil), WithRecipient("bob"))
	assert.ErrorIs(t, err, ErrNilPayload)

	_, err = NewMessage(ChannelRendezvous, &RendezvousRequest{}, WithFlags(FlagMultipart))
	assert.ErrorIs(t, err, ErrChannelMismatch)
}

func TestNewMessageOptions(t *testing.T) {
	ts := time.Date(2009, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := NewMessage(ChannelPlainText, &PlainText{Text: "hi"},
		WithSender("123456"),
		WithRecipient("alice"),
		WithFlags(FlagAutoResponse),
		WithFlags(FlagMultipart),
		WithCookie(testCookie),
		WithTimestamp(ts),
	)
	require.NoError(t, err)

	assert.Equal(t, Handle("123456"), msg.Sender())
	assert.Equal(t, Handle("alice"), msg.Recipient())
	assert.Equal(t, ChannelPlainText, msg.Channel())
	assert.True(t, msg.Flags().Has(FlagAutoResponse|FlagMultipart))
	assert.False(t, msg.Flags().Has(FlagOffline))
	assert.Equal(t, testCookie, msg.Cookie())

	got, ok := msg.Timestamp()
	assert.True(t, ok)
	assert.Equal(t, ts, got)

	pt, ok := msg.PlainText()
	require.True(t, ok)
	assert.Equal(t, "hi", pt.Text)
	_, ok = msg.Legacy()
	assert.False(t, ok)
	_, ok = msg.Rendezvous()
	assert.False(t, ok)
}

func TestLiveMessageHasNoTimestamp(t *testing.T) {
	msg, err := NewMessage(ChannelLegacy, &LegacyPayload{Subtype: LegacyPlain})
	require.NoError(t, err)
	_, ok := msg.Timestamp()
	assert.False(t, ok)

	ts := time.Unix(1234567890, 0).UTC()
	offline := msg.asOffline(ts)
	assert.True(t, offline.Flags().Has(FlagOffline))
	got, ok := offline.Timestamp()
	assert.True(t, ok)
	assert.Equal(t, ts, got)

	// the original is untouched
	assert.False(t, msg.Flags().Has(FlagOffline))
}

func TestHandleUIN(t *testing.T) {
	tests := []struct {
		handle Handle
		uin    uint32
		ok     bool
	}{
		{"123456", 123456, true},
		{"4294967295", 4294967295, true},
		{"4294967296", 0, false},
		{"alice", 0, false},
		{"12ab", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.handle), func(t *testing.T) {
			uin, ok := tt.handle.UIN()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.uin, uin)
		})
	}

	assert.Equal(t, Handle("987654"), HandleFromUIN(987654))
}

func TestCookieText(t *testing.T) {
	text, err := testCookie.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "0102030405060708", string(text))

	var c Cookie
	require.NoError(t, c.UnmarshalText(text))
	assert.Equal(t, testCookie, c)

	assert.Error(t, c.UnmarshalText([]byte("0102")))
	assert.Error(t, c.UnmarshalText([]byte("zz")))

	assert.False(t, NewCookie().IsZero())
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "", Flags(0).String())
	assert.Equal(t, "offline|auto-response", (FlagOffline | FlagAutoResponse).String())
}
