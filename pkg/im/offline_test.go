package im

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-oscar/pkg/roster"
	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

// offlineRecord builds one backlog record: length(2) timestamp(4) body.
func offlineRecord(t *testing.T, ts uint32, body []byte) []byte {
	t.Helper()
	w := wire.NewWriter()
	w.Uint16(uint16(4 + len(body)))
	w.Uint32(ts)
	w.Bytes(body)
	return w.Encode()
}

func offlineReply(reqID uint32, count uint16, records ...[]byte) []byte {
	w := wire.NewWriter()
	w.Uint16(count)
	for _, rec := range records {
		w.Bytes(rec)
	}
	h := wire.SNACHeader{Family: wire.FamilyICBM, Subtype: wire.ICBMOfflineRetrieveReply, RequestID: reqID}
	return wire.NewFrame(h, w.Encode())
}

func newTestRetriever(t *testing.T, opts ...Option) (*OfflineRetriever, *Dispatcher, *Encoder) {
	t.Helper()
	d := NewDispatcher(opts...)
	enc := NewEncoder()
	o, err := NewOfflineRetriever(d, enc, "123456")
	require.NoError(t, err)
	return o, d, enc
}

func textRecord(t *testing.T, ts uint32, sender, text string) []byte {
	return offlineRecord(t, ts, icbmBody(t, NewCookie(), ChannelPlainText, sender,
		plainTextTLVs(EncodingASCII, []byte(text))))
}

func TestOfflineRequest(t *testing.T) {
	o, _, _ := newTestRetriever(t)

	frame := o.Request()
	h, body, err := wire.SplitFrame(frame)
	require.NoError(t, err)
	assert.True(t, h.Is(wire.FamilyICBM, wire.ICBMOfflineRetrieve))
	assert.Equal(t, uint32(1), h.RequestID)
	assert.Empty(t, body)
}

func TestOfflineReplayInOrder(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		t.Run(fmt.Sprintf("%d records", n), func(t *testing.T) {
			o, d, _ := newTestRetriever(t)

			var delivered []*Message
			d.Subscribe(func(m *Message) { delivered = append(delivered, m) })

			reqFrame := o.Request()
			h, _, _ := wire.SplitFrame(reqFrame)

			var records [][]byte
			for i := 0; i < n; i++ {
				records = append(records, textRecord(t, uint32(1000+i), "555", fmt.Sprintf("msg %d", i)))
			}

			result, err := o.HandleReply(context.Background(), offlineReply(h.RequestID, uint16(n), records...))
			require.NoError(t, err)
			require.Len(t, result.Messages, n)
			assert.Equal(t, result.Messages, delivered)
			assert.Zero(t, result.Skipped)
			assert.NotNil(t, result.Ack)

			for i, msg := range result.Messages {
				assert.True(t, msg.Flags().Has(FlagOffline))
				ts, ok := msg.Timestamp()
				require.True(t, ok)
				assert.Equal(t, time.Unix(int64(1000+i), 0).UTC(), ts)
				pt, _ := msg.PlainText()
				assert.Equal(t, fmt.Sprintf("msg %d", i), pt.Text)
			}
		})
	}
}

func TestOfflineAckFrame(t *testing.T) {
	o, _, _ := newTestRetriever(t)
	h, _, _ := wire.SplitFrame(o.Request())

	result, err := o.HandleReply(context.Background(),
		offlineReply(h.RequestID, 1, textRecord(t, 1, "555", "hi")))
	require.NoError(t, err)

	ackHeader, body, err := wire.SplitFrame(result.Ack)
	require.NoError(t, err)
	assert.True(t, ackHeader.Is(wire.FamilyICQ, wire.ICQDBQuery))
	assert.Equal(t, uint32(2), ackHeader.RequestID)

	tlvs, err := wire.ParseTLVChain(body)
	require.NoError(t, err)
	meta, ok := tlvs.Bytes(tlvMetaRequest)
	require.True(t, ok)
	assert.Equal(t, []byte{
		0x08, 0x00, // length
		0x40, 0xE2, 0x01, 0x00, // UIN 123456
		0x3E, 0x00, // delete offline messages
		0x02, 0x00, // sequence
	}, meta)
}

func TestOfflineTruncatedReply(t *testing.T) {
	o, d, _ := newTestRetriever(t)
	delivered := 0
	d.Subscribe(func(*Message) { delivered++ })

	h, _, _ := wire.SplitFrame(o.Request())

	complete := textRecord(t, 10, "555", "first")
	second := textRecord(t, 11, "555", "second")
	cut := second[:len(second)-3]

	result, err := o.HandleReply(context.Background(), offlineReply(h.RequestID, 3, complete, cut))
	assert.ErrorIs(t, err, ErrRetrievalIncomplete)
	require.NotNil(t, result)
	require.Len(t, result.Messages, 1)
	assert.Nil(t, result.Ack)
	assert.Equal(t, 1, delivered)

	pt, _ := result.Messages[0].PlainText()
	assert.Equal(t, "first", pt.Text)
}

func TestOfflineFewerRecordsThanCount(t *testing.T) {
	o, _, _ := newTestRetriever(t)
	h, _, _ := wire.SplitFrame(o.Request())

	result, err := o.HandleReply(context.Background(),
		offlineReply(h.RequestID, 2, textRecord(t, 10, "555", "only")))
	assert.ErrorIs(t, err, ErrRetrievalIncomplete)
	assert.Len(t, result.Messages, 1)
	assert.Nil(t, result.Ack)
}

func TestOfflineSkipsMalformedRecord(t *testing.T) {
	o, _, _ := newTestRetriever(t)
	h, _, _ := wire.SplitFrame(o.Request())

	bad := offlineRecord(t, 11, icbmBody(t, testCookie, Channel(99), "555", nil))
	short := []byte{0x00, 0x02, 0x00, 0x00}

	result, err := o.HandleReply(context.Background(), offlineReply(h.RequestID, 4,
		textRecord(t, 10, "555", "one"), bad, short, textRecord(t, 12, "555", "two")))
	require.NoError(t, err)
	assert.Len(t, result.Messages, 2)
	assert.Equal(t, 2, result.Skipped)
	assert.NotNil(t, result.Ack)
}

func TestOfflineIgnoredSenderIsSkipped(t *testing.T) {
	contacts := fakeContacts{"666": {Name: "666", Type: roster.ItemIgnore}}
	o, _, _ := newTestRetriever(t, WithContactLookup(contacts))
	h, _, _ := wire.SplitFrame(o.Request())

	result, err := o.HandleReply(context.Background(), offlineReply(h.RequestID, 2,
		textRecord(t, 10, "666", "spam"), textRecord(t, 11, "555", "hello")))
	require.NoError(t, err)
	require.Len(t, result.Messages, 1)
	assert.Equal(t, Handle("555"), result.Messages[0].Sender())
	assert.Equal(t, 1, result.Skipped)
}

func TestOfflineUnexpectedReply(t *testing.T) {
	o, _, _ := newTestRetriever(t)

	// nothing pending
	_, err := o.HandleReply(context.Background(), offlineReply(1, 0))
	assert.ErrorIs(t, err, ErrUnexpectedReply)

	h, _, _ := wire.SplitFrame(o.Request())
	_, err = o.HandleReply(context.Background(), offlineReply(h.RequestID+10, 0))
	assert.ErrorIs(t, err, ErrUnexpectedReply)

	wrong := wire.NewFrame(wire.SNACHeader{Family: wire.FamilyICBM, Subtype: wire.ICBMChannelMsgToClient, RequestID: h.RequestID}, nil)
	_, err = o.HandleReply(context.Background(), wrong)
	assert.ErrorIs(t, err, ErrUnexpectedReply)

	_, err = o.HandleReply(context.Background(), offlineReply(h.RequestID, 0))
	assert.NoError(t, err)

	// a reply is consumed once
	_, err = o.HandleReply(context.Background(), offlineReply(h.RequestID, 0))
	assert.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestOfflineOwnerMustBeUIN(t *testing.T) {
	_, err := NewOfflineRetriever(NewDispatcher(), NewEncoder(), "alice")
	assert.ErrorIs(t, err, ErrOwnerNotUIN)
}
