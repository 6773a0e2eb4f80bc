package reader

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/rfidhub/internal/driver"
	"github.com/nerrad567/rfidhub/internal/tagcodec"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordLogger captures log calls for assertions.
type recordLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

// attr returns the value logged under key by the last matching entry.
func (l *recordLogger) attr(msg, key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.msg != msg {
			continue
		}
		for j := 0; j+1 < len(e.args); j += 2 {
			if e.args[j] == key {
				return e.args[j+1], true
			}
		}
	}
	return nil, false
}

// recordSink captures published events.
type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

// memStore is an in-memory Store with an injectable save failure.
type memStore struct {
	mu      sync.Mutex
	cfgs    []Config
	saves   int
	failing bool
}

func (m *memStore) Load(context.Context) ([]Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Config(nil), m.cfgs...), nil
}

func (m *memStore) Save(_ context.Context, cfgs []Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("disk full")
	}
	m.saves++
	m.cfgs = append([]Config(nil), cfgs...)
	return nil
}

func (m *memStore) stored() []Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Config(nil), m.cfgs...)
}

type fixture struct {
	reg    *Registry
	sim    *driver.Simulator
	store  *memStore
	sink   *recordSink
	logger *recordLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sim:    driver.NewSimulator(),
		store:  &memStore{},
		sink:   &recordSink{},
		logger: &recordLogger{},
	}
	f.reg = NewRegistry(RegistryConfig{
		Driver:        f.sim,
		Store:         f.store,
		DeviceTimeout: 200 * time.Millisecond,
	})
	f.reg.SetLogger(f.logger)
	f.reg.SetEventSink(f.sink)
	t.Cleanup(func() { f.reg.Close(context.Background()) })
	return f
}

// addConnected registers id at bus/port with a reader on the bench and
// connects it.
func (f *fixture) addConnected(t *testing.T, id string, bus uint8, port int) {
	t.Helper()
	f.sim.AddReader(driver.Address{Bus: bus, Port: port})
	require.NoError(t, f.reg.AddReader(context.Background(), Fields{
		FieldReaderID:   id,
		FieldBusAddr:    int(bus),
		FieldPortNumber: port,
		FieldState:      true,
	}))
}

func encode(t *testing.T, text string) tagcodec.Payload {
	t.Helper()
	p, err := tagcodec.Default().EncodePayload(text)
	require.NoError(t, err)
	return p
}

func settingsPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "reader_settings.ini")
}
