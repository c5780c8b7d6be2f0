package im

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

// ICQ meta request deleting the stored offline messages
const (
	tlvMetaRequest       uint16 = 0x0001
	metaDeleteOfflineMsg uint16 = 0x003E
)

// OfflineResult is the outcome of one backlog reply.
type OfflineResult struct {
	// Messages were delivered to the subscribers, in server order.
	Messages []*Message
	// Skipped counts complete records that could not be decoded or were
	// refused by the sender policy. They are covered by Ack, so the server
	// deletes them and they are lost.
	Skipped int
	// Ack is the frame that clears the backlog on the server. It is nil when
	// the reply was incomplete; the remaining records are then fetched by a
	// later Request.
	Ack []byte
}

// OfflineRetriever fetches the messages the server stored while the owner
// was offline and replays them through a Dispatcher.
type OfflineRetriever struct {
	d     *Dispatcher
	enc   *Encoder
	owner uint32
	log   *zap.Logger

	mu      sync.Mutex
	pending uint32
}

// NewOfflineRetriever creates a retriever for owner, which must be a numeric
// UIN. Request ids are taken from enc.
func NewOfflineRetriever(d *Dispatcher, enc *Encoder, owner Handle, opts ...Option) (*OfflineRetriever, error) {
	uin, ok := owner.UIN()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOwnerNotUIN, owner)
	}
	o := applyOptions(opts)
	return &OfflineRetriever{
		d:     d,
		enc:   enc,
		owner: uin,
		log:   o.logger.Named("offline"),
	}, nil
}

// Request returns the SNAC(0x0004,0x0010) frame asking for the backlog. The
// reply to the latest request is the only one HandleReply accepts.
func (o *OfflineRetriever) Request() []byte {
	h := wire.SNACHeader{
		Family:    wire.FamilyICBM,
		Subtype:   wire.ICBMOfflineRetrieve,
		RequestID: o.enc.NextRequestID(),
	}

	o.mu.Lock()
	o.pending = h.RequestID
	o.mu.Unlock()

	o.log.Debug("offline messages requested", zap.Uint32("request_id", h.RequestID))
	return wire.NewFrame(h, nil)
}

// HandleReply decodes a SNAC(0x0004,0x0017) backlog reply:
// count(2) then count records of length(2) timestamp(4) icbm-body.
//
// Each record is delivered as soon as it is decoded. If the reply ends
// before the last record, the result still holds what was delivered and the
// error wraps ErrRetrievalIncomplete.
func (o *OfflineRetriever) HandleReply(ctx context.Context, frame []byte) (*OfflineResult, error) {
	h, body, err := wire.SplitFrame(frame)
	if err != nil {
		return nil, malformed(0, "SNAC header", err)
	}
	if !h.Is(wire.FamilyICBM, wire.ICBMOfflineRetrieveReply) {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedReply, h)
	}

	o.mu.Lock()
	if o.pending == 0 || h.RequestID != o.pending {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: request id %d", ErrUnexpectedReply, h.RequestID)
	}
	o.pending = 0
	o.mu.Unlock()

	result := &OfflineResult{}
	r := wire.NewReader(body)

	count, err := r.Uint16()
	if err != nil {
		return result, fmt.Errorf("%w: record count: %v", ErrRetrievalIncomplete, err)
	}

	for i := 0; i < int(count); i++ {
		record, err := r.String16()
		if err != nil {
			o.log.Warn("offline reply truncated",
				zap.Int("received", i), zap.Uint16("expected", count), zap.Error(err))
			return result, fmt.Errorf("%w: %d of %d records", ErrRetrievalIncomplete, i, count)
		}

		msg, err := o.replay(ctx, []byte(record))
		if err != nil {
			result.Skipped++
			o.d.opts.metrics.observeOffline("skipped")
			o.log.Warn("offline record skipped", zap.Int("index", i), zap.Error(err))
			continue
		}
		result.Messages = append(result.Messages, msg)
		o.d.opts.metrics.observeOffline("delivered")
	}

	result.Ack = o.ack()
	o.log.Info("offline messages retrieved",
		zap.Int("delivered", len(result.Messages)), zap.Int("skipped", result.Skipped))
	return result, nil
}

func (o *OfflineRetriever) replay(ctx context.Context, record []byte) (*Message, error) {
	r := wire.NewReader(record)
	ts, err := r.Uint32()
	if err != nil {
		return nil, malformed(0, "record timestamp", err)
	}

	msg, err := o.d.decodeICBM(r.Rest())
	if err != nil {
		return nil, err
	}
	msg = msg.asOffline(time.Unix(int64(ts), 0).UTC())

	if err := o.d.admit(ctx, msg); err != nil {
		return nil, err
	}
	o.d.deliver(msg)
	return msg, nil
}

// ack builds the ICQ meta request that deletes the delivered backlog:
// TLV 0x0001 = length(2 LE) ownerUIN(4 LE) 0x003E(2 LE) sequence(2 LE).
func (o *OfflineRetriever) ack() []byte {
	reqID := o.enc.NextRequestID()

	meta := wire.NewWriter()
	meta.Uint16LE(8)
	meta.Uint32LE(o.owner)
	meta.Uint16LE(metaDeleteOfflineMsg)
	meta.Uint16LE(uint16(reqID))

	body, _ := wire.TLVChain{wire.NewTLV(tlvMetaRequest, meta.Encode())}.Encode()

	h := wire.SNACHeader{
		Family:    wire.FamilyICQ,
		Subtype:   wire.ICQDBQuery,
		RequestID: reqID,
	}
	return wire.NewFrame(h, body)
}
