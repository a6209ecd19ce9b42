package protocol

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// EventIDLen is the conventional maximum length of an Event's textual ID;
// WriteEventStr truncates (never pads — msgpack strings carry their own
// length) anything longer.
const EventIDLen = 12

// Event is a single framed message exchanged over the event channel: two
// correlation identifiers (the event's own packet ID and the ID of the
// command packet it's replying to, if any) plus a short event-type string
// and an opaque payload.
type Event struct {
	PacketID    uint64 `msgpack:"packet_id"`
	CmdPacketID uint64 `msgpack:"cmd_packet_id"`
	EventID     string `msgpack:"event_id"`
	Payload     []byte `msgpack:"payload"`
}

// EventReader reads Events from a stream. Unlike PacketReader, framing is
// implicit: msgpack.Decoder tracks exactly how many bytes each encoded
// value consumes, so no length header needs to be managed here.
type EventReader struct {
	dec *msgpack.Decoder
}

// NewEventReader wraps source for sequential Event reads.
func NewEventReader(source io.Reader) *EventReader {
	return &EventReader{dec: msgpack.NewDecoder(source)}
}

// Read decodes the next Event from the stream.
func (r *EventReader) Read() (*Event, error) {
	var e Event
	if err := r.dec.Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// EventWriter writes Events to a stream.
type EventWriter struct {
	enc *msgpack.Encoder
}

// NewEventWriter wraps out for sequential Event writes.
func NewEventWriter(out io.Writer) *EventWriter {
	return &EventWriter{enc: msgpack.NewEncoder(out)}
}

// Write encodes e to the stream.
func (w *EventWriter) Write(e *Event) error {
	return w.enc.Encode(e)
}

// WriteEventStr is a convenience wrapper building an Event from its parts,
// truncating event to EventIDLen bytes.
func (w *EventWriter) WriteEventStr(packetID, cmdPacketID uint64, event string, payload []byte) error {
	if len(event) > EventIDLen {
		event = event[:EventIDLen]
	}
	return w.Write(&Event{
		PacketID:    packetID,
		CmdPacketID: cmdPacketID,
		EventID:     event,
		Payload:     payload,
	})
}
