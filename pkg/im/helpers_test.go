package im

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-oscar/pkg/roster"
	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

var testCookie = Cookie{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

// icbmBody builds an incoming ICBM body carrying a one-TLV user info block.
func icbmBody(t *testing.T, cookie Cookie, ch Channel, sender string, tlvs wire.TLVChain) []byte {
	t.Helper()

	w := wire.NewWriter()
	w.Bytes(cookie[:])
	w.Uint16(uint16(ch))
	require.NoError(t, w.String8(sender))
	w.Uint16(0) // warning level
	w.Uint16(1) // user info TLVs
	w.Uint16(0x0001)
	w.Uint16(2)
	w.Uint16(0x0010)
	require.NoError(t, tlvs.WriteTo(w))
	return w.Encode()
}

func clientFrame(t *testing.T, cookie Cookie, ch Channel, sender string, tlvs wire.TLVChain) []byte {
	t.Helper()
	h := wire.SNACHeader{Family: wire.FamilyICBM, Subtype: wire.ICBMChannelMsgToClient, RequestID: 1}
	return wire.NewFrame(h, icbmBody(t, cookie, ch, sender, tlvs))
}

// deliverAs rewrites an outgoing frame as the frame the recipient would
// receive from sender.
func deliverAs(t *testing.T, frame []byte, sender string) []byte {
	t.Helper()

	h, body, err := wire.SplitFrame(frame)
	require.NoError(t, err)
	require.True(t, h.Is(wire.FamilyICBM, wire.ICBMChannelMsgToHost))

	r := wire.NewReader(body)
	cookie, err := r.Bytes(CookieSize)
	require.NoError(t, err)
	ch, err := r.Uint16()
	require.NoError(t, err)
	_, err = r.String8()
	require.NoError(t, err)
	tlvs, err := wire.ReadTLVChain(r)
	require.NoError(t, err)

	var c Cookie
	copy(c[:], cookie)
	return clientFrame(t, c, Channel(ch), sender, tlvs)
}

func plainTextTLVs(charset TextEncoding, texts ...[]byte) wire.TLVChain {
	w := wire.NewWriter()
	w.Uint8(fragCapabilities)
	w.Uint8(fragVersion)
	w.Uint16(1)
	w.Uint8(0x01)
	for _, text := range texts {
		w.Uint8(fragText)
		w.Uint8(fragVersion)
		w.Uint16(uint16(textHeaderSize + len(text)))
		w.Uint16(uint16(charset))
		w.Uint16(0)
		w.Bytes(text)
	}
	return wire.TLVChain{wire.NewTLV(tlvMessageData, w.Encode())}
}

func rendezvousTLVs(status uint16, cookie Cookie, capBytes []byte, inner wire.TLVChain) wire.TLVChain {
	w := wire.NewWriter()
	w.Uint16(status)
	w.Bytes(cookie[:])
	w.Bytes(capBytes)
	_ = inner.WriteTo(w)
	return wire.TLVChain{wire.NewTLV(tlvChannelData, w.Encode())}
}

// fakeContacts is an in-memory ContactLookup keyed by normalized handle.
type fakeContacts map[string]roster.Contact

func (f fakeContacts) LookupByHandle(_ context.Context, handle string) (*roster.Contact, error) {
	c, ok := f[roster.NormalizeHandle(handle)]
	if !ok {
		return nil, roster.ErrNotFound
	}
	return &c, nil
}
