// Package eventstream publishes knowledge base lifecycle events to an
// external stream.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeSourceIngested is emitted after a file's chunks are stored.
	EventTypeSourceIngested = "qagent.source.ingested"

	// EventTypeSourceRemoved is emitted after a source is deleted.
	EventTypeSourceRemoved = "qagent.source.removed"

	// EventTypeKnowledgeCleared is emitted after the knowledge base is cleared.
	EventTypeKnowledgeCleared = "qagent.knowledge.cleared"

	// EventTypeTestsGenerated is emitted after test cases are generated.
	EventTypeTestsGenerated = "qagent.tests.generated"
)

// Event is a transport-neutral payload describing a knowledge base change.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	// Source is the filename the event concerns, if any.
	Source string `json:"source,omitempty"`

	// Chunks is the number of chunks stored for Source.
	Chunks int `json:"chunks,omitempty"`

	// Query and TestCases describe a generation run.
	Query     string `json:"query,omitempty"`
	TestCases int    `json:"test_cases,omitempty"`
}

// NewEvent stamps a new event of the given type with an ID and time.
func NewEvent(eventType string) *Event {
	return &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
	}
}

// Key is the partition key for the event: its source when set, otherwise
// its type.
func (e *Event) Key() string {
	if e.Source != "" {
		return e.Source
	}
	return e.EventType
}
