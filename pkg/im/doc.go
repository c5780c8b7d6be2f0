// Package im implements the client side of OSCAR instant messages (the ICBM
// service, SNAC family 0x0004).
//
// # Channels
//
// The ICBM channel word selects one of three unrelated payload layouts:
//
// Channel 1 (plain text):
//   - TLV 0x0002 carries fragments; fragment 0x01 holds charset(2),
//     subcharset(2) and the text bytes
//   - TLV 0x0004 marks an auto response
//
// Channel 2 (rendezvous):
//   - TLV 0x0005 carries status(2), cookie(8), capability(16) and a nested
//     TLV chain whose meaning depends on the capability
//
// Channel 4 (ICQ legacy):
//   - TLV 0x0005 carries the sender UIN (little-endian) and a legacy blob:
//     subtype(1), flags(1), length(2 LE), obfuscated text and, for greeting
//     cards, a color pair
//
// # Flow
//
// Inbound frames go through a Dispatcher, which decodes them into Message
// values and hands each one to its subscribers in arrival order. The
// OfflineRetriever replays the server-held backlog through the same
// Dispatcher. Outbound messages are turned into frames by an Encoder.
//
// # Usage Example
//
//	d := im.NewDispatcher(im.WithLogger(logger))
//	d.Subscribe(func(msg *im.Message) {
//	    if text, ok := msg.PlainText(); ok {
//	        fmt.Printf("%s: %s\n", msg.Sender(), text.Text)
//	    }
//	})
//
//	if _, err := d.Decode(ctx, frame); err != nil {
//	    // frame dropped, connection unaffected
//	}
//
// All decoding errors are per frame. Nothing in this package tears down a
// connection.
package im
