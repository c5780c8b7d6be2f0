package im

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/ZentaChain/zentalk-oscar/pkg/wire"
)

// ICBM message TLVs shared by all channels
const (
	tlvMessageData   uint16 = 0x0002 // channel 1 fragments
	tlvRequestAck    uint16 = 0x0003 // ask the server to acknowledge
	tlvAutoResponse  uint16 = 0x0004 // channel 1 auto response
	tlvChannelData   uint16 = 0x0005 // channel 2 and 4 payload
	tlvStoredOffline uint16 = 0x0006 // delivered from the offline store
	tlvSendTime      uint16 = 0x0016 // origin time, unix seconds
)

// codec translates between one channel's TLVs and its Payload.
type codec interface {
	decode(tlvs wire.TLVChain) (Payload, Flags, error)
	encode(p Payload, flags Flags) (wire.TLVChain, error)
}

// Codepages selects the single-byte character sets used for text that is
// not UTF-16. ICQ clients historically sent the sender's local codepage.
type Codepages struct {
	Plain  encoding.Encoding // channel 1 charsets 0x0000 and 0x0003
	Legacy encoding.Encoding // channel 4 text
}

// DefaultCodepages returns ISO-8859-1 for channel 1 and Windows-1252 for
// channel 4.
func DefaultCodepages() Codepages {
	return Codepages{
		Plain:  charmap.ISO8859_1,
		Legacy: charmap.Windows1252,
	}
}

// LookupCodepages resolves WHATWG encoding labels such as "windows-1251" or
// "koi8-r". Empty labels keep the defaults.
func LookupCodepages(plain, legacy string) (Codepages, error) {
	cp := DefaultCodepages()
	if plain != "" {
		enc, err := htmlindex.Get(plain)
		if err != nil {
			return cp, fmt.Errorf("plain codepage %q: %w", plain, err)
		}
		cp.Plain = enc
	}
	if legacy != "" {
		enc, err := htmlindex.Get(legacy)
		if err != nil {
			return cp, fmt.Errorf("legacy codepage %q: %w", legacy, err)
		}
		cp.Legacy = enc
	}
	return cp, nil
}

// codecSet maps channels to their codecs.
type codecSet map[Channel]codec

func newCodecSet(cp Codepages) codecSet {
	return codecSet{
		ChannelPlainText:  &plainTextCodec{singleByte: cp.Plain},
		ChannelRendezvous: &rendezvousCodec{},
		ChannelLegacy:     &legacyCodec{codepage: cp.Legacy},
	}
}
