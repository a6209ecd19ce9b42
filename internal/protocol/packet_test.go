package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketReadZeroBytes(t *testing.T) {
	data := []byte{
		0x00, 0x00, 0x00, 0x00, // size: 0
		0x99, // extra, should not be consumed
	}
	r := NewPacketReader(10)
	p, err := r.Read(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Empty(t, p.Payload)
}

func TestPacketWriteZeroBytes(t *testing.T) {
	var out bytes.Buffer
	err := NewPacketWriter().Write(&out, &Packet{Payload: nil})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, out.Bytes())
}

func TestPacketRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	var out bytes.Buffer
	require.NoError(t, NewPacketWriter().Write(&out, &Packet{Payload: payload}))

	got, err := NewPacketReader(1024).Read(&out)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Payload)
}

func TestPacketReadRejectsOversizedHeader(t *testing.T) {
	var header [4]byte
	header[3] = 100 // declares 100 bytes of payload
	_, err := NewPacketReader(10).Read(bytes.NewReader(header[:]))
	assert.Error(t, err)
}

func TestNewPacketReaderPanicsOnOversizedMax(t *testing.T) {
	assert.Panics(t, func() {
		NewPacketReader(MaxPayloadSize + 1)
	})
}
