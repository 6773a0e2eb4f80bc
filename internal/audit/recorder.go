package audit

import (
	"context"
	"time"

	"github.com/nerrad567/rfidhub/internal/reader"
)

// recorderQueueSize bounds pending entries. Beyond it entries are dropped
// so registry callers never wait on SQLite.
const recorderQueueSize = 256

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// Logger is the logging interface used by Recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder is a reader.EventSink that writes registry events to a
// Repository from a single goroutine.
type Recorder struct {
	repo   Repository
	source string
	logger Logger
	queue  chan *Entry
}

// NewRecorder creates a Recorder tagging entries with source (e.g. "api").
// Run must be started for entries to be written.
func NewRecorder(repo Repository, source string, logger Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		source: source,
		logger: logger,
		queue:  make(chan *Entry, recorderQueueSize),
	}
}

// Publish implements reader.EventSink. Inventory and read events are not
// audited; they change nothing.
func (r *Recorder) Publish(e reader.Event) {
	if e.Type == reader.EventInventory || e.Type == reader.EventTagsRead {
		return
	}
	entry := &Entry{
		EventType: string(e.Type),
		ReaderID:  e.ReaderID,
		Source:    r.source,
		Details:   e.Details,
		CreatedAt: e.Time,
	}
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit queue full, dropping entry",
			"event_type", e.Type,
			"reader_id", e.ReaderID,
		)
	}
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left and returns.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case entry := <-r.queue:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, entry); err != nil {
		r.logger.Error("audit log write failed",
			"event_type", entry.EventType,
			"reader_id", entry.ReaderID,
			"error", err,
		)
	}
}
