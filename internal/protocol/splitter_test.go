package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadNextFindsSeparator(t *testing.T) {
	data := []byte("hello\x00world")
	got, found, err := ReadNext(bytes.NewReader(data), 0, 100)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), got)
}

func TestReadNextHitsMaxLen(t *testing.T) {
	data := []byte("hello world, no separator here")
	got, found, err := ReadNext(bytes.NewReader(data), 0, 5)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []byte("hello"), got)
}

func TestWriteNextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteNext(&buf, []byte("payload"), 0))
	assert.Equal(t, append([]byte("payload"), 0), buf.Bytes())

	got, found, err := ReadNext(&buf, 0, 100)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("payload"), got)
}
