package intercom

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame layout on the wire, all integers big-endian:
// senderId u32 | messageId u16 | correlationId u64 | payloadLen u32 | payload.
const headerLen = 18

// MaxFrame bounds the payload of a single message.
const MaxFrame = 4 << 20

// Frame is one message on the wire.
type Frame struct {
	Sender  uint32
	MsgID   uint16
	CorrID  uint64
	Payload []byte
}

func writeFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxFrame {
		return fmt.Errorf("%w: payload of %d bytes exceeds frame limit", ErrTransport, len(f.Payload))
	}

	buf := make([]byte, headerLen+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:4], f.Sender)
	binary.BigEndian.PutUint16(buf[4:6], f.MsgID)
	binary.BigEndian.PutUint64(buf[6:14], f.CorrID)
	binary.BigEndian.PutUint32(buf[14:18], uint32(len(f.Payload)))
	copy(buf[headerLen:], f.Payload)

	// single write so frames never interleave on the socket
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	return nil
}

func readFrame(r io.Reader) (Frame, error) {
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	f := Frame{
		Sender: binary.BigEndian.Uint32(hdr[0:4]),
		MsgID:  binary.BigEndian.Uint16(hdr[4:6]),
		CorrID: binary.BigEndian.Uint64(hdr[6:14]),
	}

	plen := binary.BigEndian.Uint32(hdr[14:18])
	if plen > MaxFrame {
		return Frame{}, fmt.Errorf("%w: payload of %d bytes exceeds frame limit", ErrTransport, plen)
	}

	if plen > 0 {
		f.Payload = make([]byte, plen)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}

	return f, nil
}
