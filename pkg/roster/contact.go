// Package roster models the server-stored (SSI) contact list as far as the
// message core needs it: contact entries, their wire form, and a local
// sqlite cache that answers "who is this sender" queries.
package roster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

var (
	ErrNotFound        = errors.New("contact not found")
	ErrUnknownItemType = errors.New("unknown SSI item type")
)

// ItemType is the kind of an SSI entry.
type ItemType uint8

const (
	ItemBuddy ItemType = iota
	ItemGroup
	ItemVisible
	ItemInvisible
	ItemPermitDeny
	ItemPresence
	ItemIgnore
	ItemSelfIcon
)

// SSI item type tags on the wire
var wireTags = map[ItemType]uint16{
	ItemBuddy:      0x0000,
	ItemGroup:      0x0001,
	ItemVisible:    0x0002,
	ItemInvisible:  0x0003,
	ItemPermitDeny: 0x0004,
	ItemPresence:   0x0005,
	ItemIgnore:     0x000E,
	ItemSelfIcon:   0x0014,
}

var itemNames = map[ItemType]string{
	ItemBuddy:      "buddy",
	ItemGroup:      "group",
	ItemVisible:    "visible",
	ItemInvisible:  "invisible",
	ItemPermitDeny: "permit-deny",
	ItemPresence:   "presence",
	ItemIgnore:     "ignore",
	ItemSelfIcon:   "self-icon",
}

// WireTag returns the SSI numeric tag of t.
func (t ItemType) WireTag() uint16 {
	return wireTags[t]
}

// ItemTypeFromWire maps an SSI numeric tag back to an ItemType.
func ItemTypeFromWire(tag uint16) (ItemType, error) {
	for t, w := range wireTags {
		if w == tag {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: 0x%04X", ErrUnknownItemType, tag)
}

func (t ItemType) String() string {
	if name, ok := itemNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ItemType(%d)", uint8(t))
}

// SSI item attribute TLVs
const (
	AttrAwaitingAuth uint16 = 0x0066
	AttrAlias        uint16 = 0x0131
)

// Contact is one SSI entry.
type Contact struct {
	Name         string
	GroupID      uint16
	ItemID       uint16
	Type         ItemType
	AwaitingAuth bool
	Alias        string
	Attrs        wire.TLVChain // Attributes not decoded into fields
}

// Equal reports whether two entries name the same item. Only the identity
// (group id, item id, type, name) is compared; alias and attributes change
// without making it a different entry.
func (c Contact) Equal(other Contact) bool {
	return c.GroupID == other.GroupID &&
		c.ItemID == other.ItemID &&
		c.Type == other.Type &&
		c.Name == other.Name
}

// Authorized reports whether c is a buddy entry that has cleared the
// authorization handshake.
func (c Contact) Authorized() bool {
	return c.Type == ItemBuddy && !c.AwaitingAuth
}

// NormalizeHandle returns the comparison form of a screen name: lowercase
// with spaces removed.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.ReplaceAll(handle, " ", ""))
}

// Encode encodes the entry in SSI item format:
// nameLen(2) name groupID(2) itemID(2) type(2) tlvLen(2) tlvs
func (c Contact) Encode() ([]byte, error) {
	tag, ok := wireTags[c.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownItemType, c.Type)
	}

	var attrs wire.TLVChain
	if c.AwaitingAuth {
		attrs.Append(wire.NewTLV(AttrAwaitingAuth, nil))
	}
	if c.Alias != "" {
		attrs.Append(wire.NewTLV(AttrAlias, []byte(c.Alias)))
	}
	attrs.Append(c.Attrs...)

	encodedAttrs, err := attrs.Encode()
	if err != nil {
		return nil, err
	}

	w := wire.NewWriter()
	if err := w.String16(c.Name); err != nil {
		return nil, err
	}
	w.Uint16(c.GroupID)
	w.Uint16(c.ItemID)
	w.Uint16(tag)
	w.Uint16(uint16(len(encodedAttrs)))
	w.Bytes(encodedAttrs)

	return w.Encode(), nil
}

// DecodeItem decodes one SSI item.
func DecodeItem(buf []byte) (Contact, error) {
	return ReadItem(wire.NewReader(buf))
}

// ReadItem reads one SSI item from r.
func ReadItem(r *wire.Reader) (Contact, error) {
	var c Contact
	var err error

	if c.Name, err = r.String16(); err != nil {
		return c, err
	}
	if c.GroupID, err = r.Uint16(); err != nil {
		return c, err
	}
	if c.ItemID, err = r.Uint16(); err != nil {
		return c, err
	}
	tag, err := r.Uint16()
	if err != nil {
		return c, err
	}
	if c.Type, err = ItemTypeFromWire(tag); err != nil {
		return c, err
	}
	attrLen, err := r.Uint16()
	if err != nil {
		return c, err
	}
	attrBuf, err := r.Bytes(int(attrLen))
	if err != nil {
		return c, err
	}
	attrs, err := wire.ParseTLVChain(attrBuf)
	if err != nil {
		return c, err
	}

	for _, tlv := range attrs {
		switch tlv.Type {
		case AttrAwaitingAuth:
			c.AwaitingAuth = true
		case AttrAlias:
			c.Alias = string(tlv.Value)
		default:
			c.Attrs = append(c.Attrs, tlv)
		}
	}

	return c, nil
}
