package reader

import "time"

// EventType names a registry event.
type EventType string

// Registry events.
const (
	EventReaderAdded        EventType = "reader.added"
	EventReaderUpdated      EventType = "reader.updated"
	EventReaderDeleted      EventType = "reader.deleted"
	EventReadersCleared     EventType = "readers.cleared"
	EventReaderConnected    EventType = "reader.connected"
	EventReaderDisconnected EventType = "reader.disconnected"
	EventLinkLost           EventType = "reader.link_lost"
	EventDeviceError        EventType = "reader.device_error"
	EventInventory          EventType = "tags.inventory"
	EventTagsRead           EventType = "tags.read"
	EventTagsWritten        EventType = "tags.written"
	EventTagsCleared        EventType = "tags.cleared"
)

// Event describes one change or device interaction in the registry.
type Event struct {
	Type     EventType      `json:"type"`
	ReaderID string         `json:"reader_id,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Time     time.Time      `json:"time"`
}

// Mutation reports whether the event changed the persisted configuration.
func (e Event) Mutation() bool {
	switch e.Type {
	case EventReaderAdded, EventReaderUpdated, EventReaderDeleted, EventReadersCleared:
		return true
	}
	return false
}

// EventSink receives registry events. Publish is called outside the
// registry lock and must not block for long.
type EventSink interface {
	Publish(e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(e Event)

// Publish implements EventSink.
func (f EventSinkFunc) Publish(e Event) { f(e) }

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

// Publish implements EventSink.
func (m MultiSink) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}

type noopSink struct{}

func (noopSink) Publish(Event) {}

// events collects events during a locked operation for publication after
// the lock is released.
type events []Event

func (ev *events) add(t EventType, readerID string, details map[string]any) {
	*ev = append(*ev, Event{
		Type:     t,
		ReaderID: readerID,
		Details:  details,
		Time:     time.Now().UTC(),
	})
}
