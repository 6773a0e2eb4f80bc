package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/nerrad567/rfidhub/internal/infrastructure/mqtt"
	"github.com/nerrad567/rfidhub/internal/reader"
)

// queueSize bounds events waiting for the broker.
const queueSize = 256

// Publisher is the part of the MQTT client the bridge publishes through.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// readerState is the retained payload of Topics.ReaderState.
type readerState struct {
	ReaderID  string `json:"reader_id"`
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
	Time      string `json:"time"`
}

type message struct {
	topic    string
	payload  []byte
	retained bool
}

// EventPublisher is a reader.EventSink that mirrors registry events to
// MQTT: every event on its event topic and connection state as a retained
// message per reader.
type EventPublisher struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	logger Logger
	queue  chan message
}

// NewEventPublisher creates an EventPublisher. Run must be started for
// messages to leave the queue.
func NewEventPublisher(pub Publisher, topics mqtt.Topics, qos byte) *EventPublisher {
	return &EventPublisher{
		pub:    pub,
		topics: topics,
		qos:    qos,
		logger: noopLogger{},
		queue:  make(chan message, queueSize),
	}
}

// SetLogger sets the logger for dropped and failed publications.
func (p *EventPublisher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	p.logger = logger
}

// Publish implements reader.EventSink.
func (p *EventPublisher) Publish(e reader.Event) {
	body, err := json.Marshal(e)
	if err != nil {
		p.logger.Warn("mqtt event not encodable", "event_type", e.Type, "error", err)
		return
	}
	if e.ReaderID != "" {
		p.enqueue(message{topic: p.topics.ReaderEvent(e.ReaderID), payload: body})
	} else {
		p.enqueue(message{topic: p.topics.HubEvent(string(e.Type)), payload: body})
	}

	for _, m := range p.stateMessages(e) {
		p.enqueue(m)
	}
}

// stateMessages derives the retained state updates implied by e. An empty
// retained payload removes the reader's state from the broker.
func (p *EventPublisher) stateMessages(e reader.Event) []message {
	state := func(id string, connected bool, reason string) message {
		body, _ := json.Marshal(readerState{ //nolint:errcheck // Plain struct always marshals
			ReaderID:  id,
			Connected: connected,
			Reason:    reason,
			Time:      e.Time.Format("2006-01-02T15:04:05.000Z07:00"),
		})
		return message{topic: p.topics.ReaderState(id), payload: body, retained: true}
	}
	clear := func(id string) message {
		return message{topic: p.topics.ReaderState(id), payload: []byte{}, retained: true}
	}
	reason, _ := e.Details["reason"].(string)

	switch e.Type {
	case reader.EventReaderConnected:
		return []message{state(e.ReaderID, true, "")}
	case reader.EventReaderDisconnected:
		return []message{state(e.ReaderID, false, reason)}
	case reader.EventLinkLost:
		return []message{state(e.ReaderID, false, "link_lost")}
	case reader.EventReaderAdded:
		connected, _ := e.Details["state"].(bool)
		return []message{state(e.ReaderID, connected, "")}
	case reader.EventReaderUpdated:
		prev, ok := e.Details["previous_id"].(string)
		if !ok {
			return nil
		}
		// Renames only happen while disconnected.
		return []message{clear(prev), state(e.ReaderID, false, "")}
	case reader.EventReaderDeleted:
		return []message{clear(e.ReaderID)}
	case reader.EventReadersCleared:
		ids, _ := e.Details["reader_ids"].([]string)
		out := make([]message, 0, len(ids))
		for _, id := range ids {
			out = append(out, clear(id))
		}
		return out
	}
	return nil
}

func (p *EventPublisher) enqueue(m message) {
	select {
	case p.queue <- m:
	default:
		p.logger.Warn("mqtt queue full, dropping message", "topic", m.topic)
	}
}

// Run publishes queued messages until ctx is cancelled, then drains the
// queue best-effort.
func (p *EventPublisher) Run(ctx context.Context) {
	for {
		select {
		case m := <-p.queue:
			p.send(m)
		case <-ctx.Done():
			for {
				select {
				case m := <-p.queue:
					p.send(m)
				default:
					return
				}
			}
		}
	}
}

func (p *EventPublisher) send(m message) {
	if err := p.pub.Publish(m.topic, m.payload, p.qos, m.retained); err != nil {
		p.logger.Warn("mqtt publish failed", "topic", m.topic, "error", err)
	}
}

// Registry is the part of the reader registry reachable over MQTT.
type Registry interface {
	Connect(ctx context.Context, id string) error
	Disconnect(ctx context.Context, id string) error
	Inventory(ctx context.Context, id string) ([]string, error)
	ReadTags(ctx context.Context, id string, tagIDs []string) (*reader.TagBatch, error)
}

// Command is the JSON body accepted on Topics.ReaderCommand.
type Command struct {
	Action string   `json:"action"`
	TagIDs []string `json:"tag_ids,omitempty"`
}

// Command actions.
const (
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
	ActionInventory  = "inventory"
	ActionRead       = "read"
)

var actions = []string{ActionConnect, ActionDisconnect, ActionInventory, ActionRead}

// Commands executes reader commands received over MQTT and publishes the
// response envelope on Topics.ReaderResponse.
type Commands struct {
	reg    Registry
	pub    Publisher
	topics mqtt.Topics
	qos    byte
}

// NewCommands creates a command handler.
func NewCommands(reg Registry, pub Publisher, topics mqtt.Topics, qos byte) *Commands {
	return &Commands{reg: reg, pub: pub, topics: topics, qos: qos}
}

// Handle is an mqtt.MessageHandler for Topics.AllReaderCommands.
func (c *Commands) Handle(topic string, payload []byte) error {
	id, ok := c.topics.CommandReaderID(topic)
	if !ok {
		return fmt.Errorf("bridge: unexpected command topic %q", topic)
	}

	body, err := json.Marshal(c.execute(context.Background(), id, payload))
	if err != nil {
		return fmt.Errorf("bridge: encoding response: %w", err)
	}
	return c.pub.Publish(c.topics.ReaderResponse(id), body, c.qos, false)
}

func (c *Commands) execute(ctx context.Context, id string, payload []byte) any {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return reader.Envelope(nil, reader.WrongRequestShape.Describe("invalid JSON"))
	}
	if !slices.Contains(actions, cmd.Action) {
		return reader.Envelope(nil, reader.WrongRequestShape.Describe(fmt.Sprintf("unknown action %q", cmd.Action)))
	}

	switch cmd.Action {
	case ActionConnect:
		return reader.Envelope(nil, c.reg.Connect(ctx, id))
	case ActionDisconnect:
		return reader.Envelope(nil, c.reg.Disconnect(ctx, id))
	case ActionInventory:
		tags, err := c.reg.Inventory(ctx, id)
		return reader.Envelope(tags, err)
	default:
		batch, err := c.reg.ReadTags(ctx, id, cmd.TagIDs)
		if err != nil {
			return reader.Envelope(nil, err)
		}
		return batch
	}
}
