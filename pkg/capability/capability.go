// Package capability implements the 16-byte capability identifiers that
// OSCAR clients use to announce features and to select the sub-protocol of
// a rendezvous negotiation.
package capability

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Size is the length of a capability identifier in bytes.
const Size = 16

var (
	ErrInvalidLength = errors.New("capability: identifier must be 16 bytes")
	ErrInvalidString = errors.New("capability: identifier must be 32 hex digits")
)

// Capability is an opaque 16-byte feature identifier.
type Capability [Size]byte

// Well-known capabilities.
var (
	DirectIM       = MustParse("09461345-4C7F-11D1-8222-444553540000")
	FileTransfer   = MustParse("09461343-4C7F-11D1-8222-444553540000")
	ChatInvite     = MustParse("748F2420-6287-11D1-8222-444553540000")
	ICQServerRelay = MustParse("09461349-4C7F-11D1-8222-444553540000")
	UTF8Messages   = MustParse("0946134E-4C7F-11D1-8222-444553540000")
)

var names = map[Capability]string{
	DirectIM:       "direct-im",
	FileTransfer:   "file-transfer",
	ChatInvite:     "chat-invite",
	ICQServerRelay: "icq-server-relay",
	UTF8Messages:   "utf8-messages",
}

// FromBytes creates a capability from exactly 16 raw bytes.
func FromBytes(b []byte) (Capability, error) {
	var c Capability
	if len(b) != Size {
		return c, ErrInvalidLength
	}
	copy(c[:], b)
	return c, nil
}

// Parse parses 32 hex digits in either case. Dashes may appear anywhere
// and are ignored.
func Parse(s string) (Capability, error) {
	hex := strings.ReplaceAll(s, "-", "")
	if len(hex) != 2*Size {
		return Capability{}, fmt.Errorf("%w: %q", ErrInvalidString, s)
	}
	u, err := uuid.Parse(hex)
	if err != nil {
		return Capability{}, fmt.Errorf("%w: %q", ErrInvalidString, s)
	}
	return Capability(u), nil
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) Capability {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the canonical uppercase 8-4-4-4-12 form.
func (c Capability) String() string {
	return strings.ToUpper(uuid.UUID(c).String())
}

// Bytes returns a copy of the raw identifier.
func (c Capability) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, c[:])
	return b
}

// Equal compares all 16 bytes.
func (c Capability) Equal(other Capability) bool {
	return c == other
}

// EqualPrefix compares the first n bytes. n is clamped to [0, 16]; a zero
// prefix always matches.
func (c Capability) EqualPrefix(other Capability, n int) bool {
	n = max(0, min(n, Size))
	return string(c[:n]) == string(other[:n])
}

// IsZero reports whether every byte is zero.
func (c Capability) IsZero() bool {
	return c == Capability{}
}

// MarshalText implements encoding.TextMarshaler.
func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Capability) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Name returns a short label for well-known capabilities and the canonical
// string form otherwise.
func Name(c Capability) string {
	if name, ok := names[c]; ok {
		return name
	}
	return c.String()
}
