package mqtt

import (
	"net/url"
	"strings"
)

// Topics builds rfidhub topic names under a configurable prefix.
//
//	t := mqtt.Topics{Prefix: "rfidhub"}
//	t.ReaderEvent("dock-1") // "rfidhub/event/reader/dock-1"
type Topics struct {
	Prefix string
}

// segment escapes characters that would break a topic level.
var segment = strings.NewReplacer("%", "%25", "/", "%2F", "+", "%2B", "#", "%23")

// Status is the hub online/offline topic (retained, also the LWT).
//
// Example: rfidhub/system/status
func (t Topics) Status() string {
	return t.Prefix + "/system/status"
}

// ReaderEvent carries every event about one reader.
//
// Example: rfidhub/event/reader/dock-1
func (t Topics) ReaderEvent(readerID string) string {
	return t.Prefix + "/event/reader/" + segment.Replace(readerID)
}

// HubEvent carries events that concern no single reader.
//
// Example: rfidhub/event/hub/readers.cleared
func (t Topics) HubEvent(eventType string) string {
	return t.Prefix + "/event/hub/" + segment.Replace(eventType)
}

// ReaderState is the retained connection state of one reader.
//
// Example: rfidhub/reader/dock-1/state
func (t Topics) ReaderState(readerID string) string {
	return t.Prefix + "/reader/" + segment.Replace(readerID) + "/state"
}

// ReaderCommand receives commands addressed to one reader.
//
// Example: rfidhub/command/reader/dock-1
func (t Topics) ReaderCommand(readerID string) string {
	return t.Prefix + "/command/reader/" + segment.Replace(readerID)
}

// ReaderResponse carries the envelope answering a reader command.
//
// Example: rfidhub/response/reader/dock-1
func (t Topics) ReaderResponse(readerID string) string {
	return t.Prefix + "/response/reader/" + segment.Replace(readerID)
}

// AllReaderCommands matches ReaderCommand for every reader.
//
// Pattern: rfidhub/command/reader/+
func (t Topics) AllReaderCommands() string {
	return t.Prefix + "/command/reader/+"
}

// CommandReaderID extracts the reader ID from a ReaderCommand topic.
func (t Topics) CommandReaderID(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/command/reader/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	id, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return id, true
}
