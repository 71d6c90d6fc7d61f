package intercom

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	in := Frame{Sender: 7, MsgID: 100, CorrID: 42, Payload: []byte(`{"txid":"T1"}`)}
	require.NoError(t, writeFrame(&buf, in))

	out, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeFrame(&buf, Frame{Sender: 1, MsgID: msgReply, CorrID: 9}))
	assert.Equal(t, headerLen, buf.Len())

	out, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Nil(t, out.Payload)
	assert.Equal(t, uint64(9), out.CorrID)
}

func TestFrameBigEndianHeader(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeFrame(&buf, Frame{Sender: 0x01020304, MsgID: 0x0506, CorrID: 0x0708090a0b0c0d0e, Payload: []byte{0xff}}))

	hdr := buf.Bytes()
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, hdr[0:4])
	assert.Equal(t, []byte{0x05, 0x06}, hdr[4:6])
	assert.Equal(t, []byte{0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e}, hdr[6:14])
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x01}, hdr[14:18])
}

func TestFrameTruncatedHeader(t *testing.T) {
	_, err := readFrame(bytes.NewReader([]byte{0x01, 0x02}))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestFrameTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeFrame(&buf, Frame{Sender: 1, MsgID: 2, CorrID: 3, Payload: []byte("abcdef")}))

	_, err := readFrame(bytes.NewReader(buf.Bytes()[:buf.Len()-2]))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestFrameOversized(t *testing.T) {
	// a header announcing more than MaxFrame must be rejected before any allocation
	hdr := make([]byte, headerLen)
	binary.BigEndian.PutUint32(hdr[14:18], MaxFrame+1)

	_, err := readFrame(bytes.NewReader(hdr))
	assert.ErrorIs(t, err, ErrTransport)

	err = writeFrame(&bytes.Buffer{}, Frame{Payload: make([]byte, MaxFrame+1)})
	assert.ErrorIs(t, err, ErrTransport)
}
