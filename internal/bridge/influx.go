package bridge

import (
	"strings"
	"time"

	"github.com/nerrad567/rfidhub/internal/reader"
)

// MetricsWriter is the part of the InfluxDB client the telemetry sink uses.
type MetricsWriter interface {
	WriteTagOperation(readerID, operation string, succeeded, failed int, at time.Time)
	WriteReaderState(readerID string, connected bool, reason string, at time.Time)
	WriteDeviceError(readerID, operation string, code int, at time.Time)
}

// Telemetry is a reader.EventSink turning device interactions into
// InfluxDB points. Configuration changes are not recorded. The writer
// batches internally so Publish never blocks on the network.
type Telemetry struct {
	w MetricsWriter
}

// NewTelemetry creates a Telemetry sink.
func NewTelemetry(w MetricsWriter) *Telemetry {
	return &Telemetry{w: w}
}

// Publish implements reader.EventSink.
func (t *Telemetry) Publish(e reader.Event) {
	switch e.Type {
	case reader.EventInventory:
		t.w.WriteTagOperation(e.ReaderID, "inventory", intDetail(e, "count"), 0, e.Time)
	case reader.EventTagsRead, reader.EventTagsWritten, reader.EventTagsCleared:
		op := strings.TrimPrefix(string(e.Type), "tags.")
		t.w.WriteTagOperation(e.ReaderID, op, intDetail(e, "succeeded"), intDetail(e, "failed"), e.Time)
	case reader.EventReaderConnected:
		t.w.WriteReaderState(e.ReaderID, true, "", e.Time)
	case reader.EventReaderDisconnected:
		reason, _ := e.Details["reason"].(string)
		t.w.WriteReaderState(e.ReaderID, false, reason, e.Time)
	case reader.EventLinkLost:
		t.w.WriteReaderState(e.ReaderID, false, "link_lost", e.Time)
	case reader.EventDeviceError:
		op, _ := e.Details["operation"].(string)
		t.w.WriteDeviceError(e.ReaderID, op, intDetail(e, "error_code"), e.Time)
	}
}

func intDetail(e reader.Event, key string) int {
	n, _ := e.Details[key].(int)
	return n
}
