package im

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks a structurally invalid frame: a missing required
	// record, an undersized blob or an out-of-range enum.
	ErrMalformed = errors.New("malformed frame")
	// ErrUnsupportedChannel marks a well-formed frame on an unknown channel.
	ErrUnsupportedChannel = errors.New("unsupported channel")
	// ErrRetrievalIncomplete marks an offline backlog reply that was cut off
	// before its last record.
	ErrRetrievalIncomplete = errors.New("offline retrieval incomplete")

	ErrSenderIgnored      = errors.New("sender is on the ignore list")
	ErrUnauthorizedSender = errors.New("rendezvous request from unauthorized sender")

	ErrChannelMismatch = errors.New("payload does not match channel")
	ErrNilPayload      = errors.New("nil payload")
	ErrNoRecipient     = errors.New("message has no recipient")
	ErrUnencodableText = errors.New("text cannot be represented in the legacy codepage")
	ErrTextTooLong     = errors.New("text too long")

	ErrUnexpectedReply = errors.New("reply does not match a pending request")
	ErrOwnerNotUIN     = errors.New("offline retrieval requires a numeric UIN")

	errOddUTF16    = errors.New("odd number of UTF-16 bytes")
	errInvalidUTF8 = errors.New("text is not valid UTF-8")
)

// DecodeError describes why a frame was dropped. It unwraps to one of the
// package sentinels and, when there is one, to the underlying cause.
type DecodeError struct {
	Kind    error   // ErrMalformed or ErrUnsupportedChannel
	Channel Channel // Zero when the channel word was not reached
	Reason  string
	Cause   error
}

func (e *DecodeError) Error() string {
	msg := e.Kind.Error()
	if e.Channel != 0 {
		msg = fmt.Sprintf("%s (%s)", msg, e.Channel)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func malformed(ch Channel, reason string, cause error) error {
	return &DecodeError{Kind: ErrMalformed, Channel: ch, Reason: reason, Cause: cause}
}

// DropReason classifies a Decode error into the short label used in metrics
// and logs.
func DropReason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedChannel):
		return "unsupported_channel"
	case errors.Is(err, ErrSenderIgnored):
		return "ignored"
	case errors.Is(err, ErrUnauthorizedSender):
		return "unauthorized"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "other"
	}
}
