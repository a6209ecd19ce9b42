// Package protocol implements the byte-level packet codecs used by
// handlers built on top of the sandbox package: a length-prefixed packet
// framing, a msgpack-based event framing, and a byte-separator stream
// splitter. None of this is part of the confined-launch core — handlers
// are free to use any framing they like over the streams sandbox.Child
// hands them — but these are the conventional ones this module ships.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxPayloadSize bounds the size field of a Packet so that a corrupt or
// hostile header never causes an unbounded allocation.
const MaxPayloadSize = 1 << 28 // 256 MiB

// Packet is a length-prefixed byte envelope: a four-byte big-endian size
// followed by exactly that many payload bytes.
type Packet struct {
	Payload []byte
}

// PacketReader reads Packets from a byte stream, rejecting any declared
// size above maxPayloadSize.
type PacketReader struct {
	maxPayloadSize uint32
}

// NewPacketReader builds a PacketReader. It panics if maxPayloadSize
// exceeds MaxPayloadSize, since that bound is a protocol invariant
// established once, not a runtime condition a caller should need to
// handle.
func NewPacketReader(maxPayloadSize uint32) *PacketReader {
	if maxPayloadSize > MaxPayloadSize {
		panic("protocol: maxPayloadSize exceeds packet protocol maximum")
	}
	return &PacketReader{maxPayloadSize: maxPayloadSize}
}

// Read reads the next Packet from source: a four-byte big-endian length
// header, then exactly that many payload bytes.
func (r *PacketReader) Read(source io.Reader) (*Packet, error) {
	var header [4]byte
	if _, err := io.ReadFull(source, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > r.maxPayloadSize {
		return nil, fmt.Errorf("protocol: payload size %d exceeds packet maximum %d", size, r.maxPayloadSize)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(source, payload); err != nil {
		return nil, err
	}
	return &Packet{Payload: payload}, nil
}

// PacketWriter writes Packets to a byte stream.
type PacketWriter struct{}

// NewPacketWriter builds a PacketWriter.
func NewPacketWriter() *PacketWriter { return &PacketWriter{} }

// Write writes packet to out as a four-byte big-endian size followed by
// the payload, then flushes (via an *bufio.Writer, if out is one).
func (w *PacketWriter) Write(out io.Writer, packet *Packet) error {
	if len(packet.Payload) > MaxPayloadSize {
		return fmt.Errorf("protocol: payload of %d bytes exceeds packet maximum", len(packet.Payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(packet.Payload)))
	if _, err := out.Write(header[:]); err != nil {
		return err
	}
	if _, err := out.Write(packet.Payload); err != nil {
		return err
	}
	if f, ok := out.(flusher); ok {
		return f.Flush()
	}
	return nil
}

type flusher interface {
	Flush() error
}
