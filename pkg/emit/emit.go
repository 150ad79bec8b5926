// Package emit writes the connector's output protocol: line-delimited
// SCHEMA, RECORD, and STATE messages on a single writer.
package emit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/csvtap/csvtap/pkg/schema"
)

// MessageType discriminates output messages.
type MessageType string

const (
	MessageSchema MessageType = "SCHEMA"
	MessageRecord MessageType = "RECORD"
	MessageState  MessageType = "STATE"
)

// Message is one line of output. Fields are populated per type.
type Message struct {
	Type          MessageType    `json:"type"`
	Stream        string         `json:"stream,omitempty"`
	Schema        map[string]any `json:"schema,omitempty"`
	KeyProperties []string       `json:"key_properties,omitempty"`
	Record        map[string]any `json:"record,omitempty"`
	TimeExtracted *time.Time     `json:"time_extracted,omitempty"`
	Value         any            `json:"value,omitempty"`
}

// StreamState tracks where a stream is in its emission lifecycle.
type StreamState int

const (
	StreamUnstarted StreamState = iota
	StreamSchemaEmitted
	StreamStreaming
	StreamCheckpointed
	StreamDone
)

func (s StreamState) String() string {
	switch s {
	case StreamUnstarted:
		return "unstarted"
	case StreamSchemaEmitted:
		return "schema_emitted"
	case StreamStreaming:
		return "streaming"
	case StreamCheckpointed:
		return "checkpointed"
	case StreamDone:
		return "done"
	default:
		return "unknown"
	}
}

// Emitter sequences messages and enforces the ordering contract: a
// stream's SCHEMA precedes its first RECORD, a widened schema is
// re-announced before further records, and STATE only follows a bookmark
// advance. Violations are programming errors and surface as errors
// rather than silently corrupt output.
type Emitter struct {
	w       *bufio.Writer
	streams map[string]StreamState
	now     func() time.Time
}

// New creates an emitter writing to w.
func New(w io.Writer) *Emitter {
	return &Emitter{
		w:       bufio.NewWriterSize(w, 64*1024),
		streams: make(map[string]StreamState),
		now:     time.Now,
	}
}

// StreamStateOf returns the lifecycle state of a stream.
func (e *Emitter) StreamStateOf(stream string) StreamState {
	return e.streams[stream]
}

// Schema announces (or re-announces, after widening) a stream's schema.
func (e *Emitter) Schema(stream string, s *schema.Schema, keyProperties []string) error {
	if e.streams[stream] == StreamDone {
		return fmt.Errorf("stream %s: schema after done", stream)
	}
	if err := e.write(Message{
		Type:          MessageSchema,
		Stream:        stream,
		Schema:        s.JSONSchema(),
		KeyProperties: keyProperties,
	}); err != nil {
		return err
	}
	e.streams[stream] = StreamSchemaEmitted
	return nil
}

// Record emits one coerced record for a stream.
func (e *Emitter) Record(stream string, record map[string]any) error {
	switch e.streams[stream] {
	case StreamUnstarted:
		return fmt.Errorf("stream %s: record before schema", stream)
	case StreamDone:
		return fmt.Errorf("stream %s: record after done", stream)
	}
	now := e.now().UTC()
	if err := e.write(Message{
		Type:          MessageRecord,
		Stream:        stream,
		Record:        record,
		TimeExtracted: &now,
	}); err != nil {
		return err
	}
	e.streams[stream] = StreamStreaming
	return nil
}

// State checkpoints the serialized bookmark, giving the consumer a safe
// resume point. Streams that were mid-flight move to checkpointed.
func (e *Emitter) State(value any) error {
	if err := e.write(Message{Type: MessageState, Value: value}); err != nil {
		return err
	}
	for stream, st := range e.streams {
		if st == StreamStreaming {
			e.streams[stream] = StreamCheckpointed
		}
	}
	return e.w.Flush()
}

// Done marks a stream complete. Further messages for it are rejected.
func (e *Emitter) Done(stream string) {
	e.streams[stream] = StreamDone
}

// Flush drains buffered output.
func (e *Emitter) Flush() error {
	return e.w.Flush()
}

func (e *Emitter) write(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", m.Type, err)
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s message: %w", m.Type, err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write %s message: %w", m.Type, err)
	}
	return nil
}
