package im

import (
	"fmt"

	"go.uber.org/zap"
)

// RendezvousPolicy decides which senders may open a rendezvous.
type RendezvousPolicy int

const (
	// PolicyAllowAll accepts rendezvous requests from anyone not ignored.
	PolicyAllowAll RendezvousPolicy = iota
	// PolicyBuddiesOnly accepts rendezvous requests only from authorized
	// buddies.
	PolicyBuddiesOnly
)

func (p RendezvousPolicy) String() string {
	switch p {
	case PolicyAllowAll:
		return "allow-all"
	case PolicyBuddiesOnly:
		return "buddies-only"
	default:
		return fmt.Sprintf("RendezvousPolicy(%d)", int(p))
	}
}

// ParseRendezvousPolicy parses the String form of a policy.
func ParseRendezvousPolicy(s string) (RendezvousPolicy, error) {
	switch s {
	case "", "allow-all":
		return PolicyAllowAll, nil
	case "buddies-only":
		return PolicyBuddiesOnly, nil
	default:
		return 0, fmt.Errorf("unknown rendezvous policy %q", s)
	}
}

type options struct {
	logger    *zap.Logger
	metrics   *Metrics
	codepages Codepages
	contacts  ContactLookup
	policy    RendezvousPolicy
	serverAck bool
}

func defaultOptions() options {
	return options{
		logger:    zap.NewNop(),
		codepages: DefaultCodepages(),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Dispatcher, Encoder or OfflineRetriever. Options that
// do not apply to a component are ignored by it.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the counters to update.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithCodepages sets the single-byte character sets for channel 1 and 4
// text.
func WithCodepages(cp Codepages) Option {
	return func(o *options) {
		if cp.Plain != nil {
			o.codepages.Plain = cp.Plain
		}
		if cp.Legacy != nil {
			o.codepages.Legacy = cp.Legacy
		}
	}
}

// WithContactLookup enables sender gating against the roster.
func WithContactLookup(c ContactLookup) Option {
	return func(o *options) {
		o.contacts = c
	}
}

// WithRendezvousPolicy sets who may open a rendezvous. It only has an effect
// together with WithContactLookup.
func WithRendezvousPolicy(p RendezvousPolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithServerAck makes the Encoder ask the server to acknowledge every
// message.
func WithServerAck() Option {
	return func(o *options) {
		o.serverAck = true
	}
}
