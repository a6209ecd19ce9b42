package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewEventWriter(&buf)
	require.NoError(t, w.WriteEventStr(1, 2, "started", []byte("hello")))

	r := NewEventReader(&buf)
	e, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.PacketID)
	assert.Equal(t, uint64(2), e.CmdPacketID)
	assert.Equal(t, "started", e.EventID)
	assert.Equal(t, []byte("hello"), e.Payload)
}

func TestEventIDTruncated(t *testing.T) {
	var buf bytes.Buffer
	w := NewEventWriter(&buf)
	require.NoError(t, w.WriteEventStr(0, 0, "this-event-id-is-way-too-long", nil))

	r := NewEventReader(&buf)
	e, err := r.Read()
	require.NoError(t, err)
	assert.Len(t, e.EventID, EventIDLen)
}

func TestEventStreamMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	w := NewEventWriter(&buf)
	require.NoError(t, w.WriteEventStr(1, 0, "a", []byte("x")))
	require.NoError(t, w.WriteEventStr(2, 0, "b", []byte("y")))

	r := NewEventReader(&buf)
	first, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "a", first.EventID)

	second, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, "b", second.EventID)
}
