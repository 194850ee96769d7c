// Package link implements the P530 byte-stream resync reader: it
// hunts for the packet magic, reads a length-prefixed body, verifies
// the CRC, and hands decoded frames to a dispatcher. It never blocks;
// Poll drains whatever is already available and returns.
package link

import (
	"log"

	"pktfeeder.dev/p530/protocol"
)

// Port is the subset of a UART driver the Link Layer needs. It must
// not block: Available reports how many bytes can be read without
// waiting, and ReadByte must not wait for more than are available.
type Port interface {
	Available() (int, error)
	ReadByte() (byte, error)
}

// Dispatcher receives decoded frames in UART receive order.
type Dispatcher interface {
	Dispatch(typ, seq uint8, payload []byte)
}

// Link drives the HUNT/HEADER/BODY/VERIFY state machine over a Port.
type Link struct {
	port Port
	log  *log.Logger
	buf  [protocol.MaxSize]byte
}

// New returns a Link reading from port. A nil logger disables
// tracing.
func New(port Port, logger *log.Logger) *Link {
	return &Link{port: port, log: logger}
}

func (l *Link) logf(format string, args ...any) {
	if l.log != nil {
		l.log.Printf(format, args...)
	}
}

// Poll reads and dispatches as many complete packets as the port
// currently offers, then returns. It never blocks waiting for more
// bytes than are already available.
func (l *Link) Poll(d Dispatcher) {
	for l.readOne(d) {
	}
}

// readOne attempts to read and dispatch a single packet. It returns
// false when there is not enough buffered data to make progress right
// now; true if a packet (valid or not) was consumed.
func (l *Link) readOne(d Dispatcher) bool {
	avail, err := l.port.Available()
	if err != nil {
		l.logf("link: available: %v", err)
		return false
	}
	if avail < protocol.MinSize {
		return false
	}

	// HUNT: consume bytes until two consecutive 0xAA are seen.
	b, ok := l.readByte()
	if !ok {
		return false
	}
	if b != 0xAA {
		l.logf("link: unexpected first byte in packet: 0x%02X != 0xAA", b)
		return true
	}
	b, ok = l.readByte()
	if !ok {
		return false
	}
	if b != 0xAA {
		l.logf("link: unexpected second byte in packet: 0x%02X != 0xAA", b)
		return true
	}

	// HEADER: read the length byte and validate its range.
	length, ok := l.readByte()
	if !ok {
		return false
	}
	if int(length) < protocol.MinSize || int(length) > protocol.MaxSize {
		l.logf("link: invalid packet len: %d", length)
		return true
	}

	l.buf[0] = 0xAA
	l.buf[1] = 0xAA
	l.buf[2] = length

	// BODY: read the remaining len-3 bytes.
	for i := 3; i < int(length); i++ {
		b, ok := l.readByte()
		if !ok {
			// Ran out of buffered bytes mid-packet. Drop back to
			// HUNT; the remaining bytes of this packet will be
			// resynced against on the next Poll.
			l.logf("link: unable to read %d bytes", int(length)-3)
			return false
		}
		l.buf[i] = b
	}

	// VERIFY.
	frame, _, err := protocol.Decode(l.buf[:length])
	if err != nil {
		l.logf("link: %v", err)
		return true
	}

	l.logf("link: rx type=0x%02X seq=0x%02X len=%d", frame.Type, frame.Seq, len(frame.Payload))
	d.Dispatch(frame.Type, frame.Seq, frame.Payload)
	return true
}

func (l *Link) readByte() (byte, bool) {
	b, err := l.port.ReadByte()
	if err != nil {
		l.logf("link: read byte: %v", err)
		return 0, false
	}
	return b, true
}
