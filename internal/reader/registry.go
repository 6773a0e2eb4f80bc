package reader

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/rfidhub/internal/driver"
	"github.com/nerrad567/rfidhub/internal/tagcodec"
)

// Logger defines the logging interface used by the Registry and Session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// link is the connection state of an entry: disconnected or connected to
// a live session.
type link interface {
	isLink()
}

type disconnected struct{}

type connected struct {
	session *Session
}

func (disconnected) isLink() {}
func (connected) isLink()    {}

type entry struct {
	cfg  Config
	link link
}

func (e *entry) session() (*Session, bool) {
	c, ok := e.link.(connected)
	return c.session, ok
}

func (e *entry) connected() bool {
	_, ok := e.link.(connected)
	return ok
}

func (e *entry) info() ReaderInfo {
	return ReaderInfo{
		BusAddr:    int(e.cfg.BusAddr),
		PortNumber: e.cfg.PortNumber,
		State:      e.connected(),
	}
}

// RegistryConfig wires a Registry to its collaborators.
type RegistryConfig struct {
	Driver driver.Driver
	Store  Store

	// Codec converts tag payload text. Defaults to tagcodec.Default().
	Codec *tagcodec.Codec

	// DeviceTimeout bounds each native call. Defaults to
	// DefaultDeviceTimeout.
	DeviceTimeout time.Duration
}

// Registry is the single source of truth for known readers.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	drv     driver.Driver
	store   Store
	codec   *tagcodec.Codec
	timeout time.Duration

	sinkMu sync.RWMutex
	sink   EventSink
	logger Logger
}

// NewRegistry creates an empty registry. Call Load to read persisted
// readers.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Codec == nil {
		cfg.Codec = tagcodec.Default()
	}
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = DefaultDeviceTimeout
	}
	return &Registry{
		entries: make(map[string]*entry),
		drv:     cfg.Driver,
		store:   cfg.Store,
		codec:   cfg.Codec,
		timeout: cfg.DeviceTimeout,
		sink:    noopSink{},
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry and the sessions it opens.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetEventSink sets where registry events are published. It may be called
// while operations are running.
func (r *Registry) SetEventSink(sink EventSink) {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	r.sink = sink
}

// Codec returns the payload codec.
func (r *Registry) Codec() *tagcodec.Codec {
	return r.codec
}

func (r *Registry) publish(ev events) {
	if len(ev) == 0 {
		return
	}
	r.sinkMu.RLock()
	sink := r.sink
	r.sinkMu.RUnlock()
	for _, e := range ev {
		sink.Publish(e)
	}
}

// Load replaces the registry contents with the stored configuration. Every
// reader starts disconnected. Readers already connected are disconnected
// and their sessions closed first.
func (r *Registry) Load(ctx context.Context) error {
	cfgs, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading readers: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeSessions(ctx)
	r.entries = make(map[string]*entry, len(cfgs))
	for _, c := range cfgs {
		if !validReaderID(c.ID) {
			r.logger.Warn("skipping stored reader with invalid id", "reader_id", c.ID)
			continue
		}
		r.entries[c.ID] = &entry{cfg: c, link: disconnected{}}
	}

	r.logger.Info("readers loaded", "count", len(r.entries))
	return nil
}

// Close disconnects every connected reader and releases its session.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	var ev events
	for id, e := range r.entries {
		if e.connected() {
			ev.add(EventReaderDisconnected, id, map[string]any{"reason": "shutdown"})
		}
	}
	r.closeSessions(ctx)
	r.mu.Unlock()

	r.publish(ev)
}

// closeSessions drops every live session. Caller holds r.mu.
func (r *Registry) closeSessions(ctx context.Context) {
	for _, e := range r.entries {
		if s, ok := e.session(); ok {
			s.Disconnect(ctx)
			s.Close()
			e.link = disconnected{}
		}
	}
}

// Len returns the number of registered readers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ListReaders returns a snapshot of every reader. No device is touched.
func (r *Registry) ListReaders() map[string]ReaderInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]ReaderInfo, len(r.entries))
	for id, e := range r.entries {
		out[id] = e.info()
	}
	return out
}

// GetReader returns one reader.
func (r *Registry) GetReader(id string) (ReaderInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validate("get_reader", []any{id}, r.mustExist(id)); err != nil {
		return ReaderInfo{}, err
	}
	return r.entries[id].info(), nil
}

func (r *Registry) exists(id string) bool {
	_, ok := r.entries[id]
	return ok
}

func (r *Registry) mustExist(id string) rule {
	return when(ReaderNotExists, func() bool { return !r.exists(id) }, id)
}

func (r *Registry) mustBeDisconnected(id string) rule {
	return when(ReaderIsConnected, func() bool { return r.entries[id].connected() }, id)
}

func (r *Registry) mustBeConnected(id string) rule {
	return when(ReaderIsDisconnected, func() bool { return !r.entries[id].connected() }, id)
}

// configs returns the persisted view of every entry in id order.
func (r *Registry) configs() []Config {
	out := make([]Config, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// persist writes the current configuration. Caller holds r.mu.
func (r *Registry) persist(ctx context.Context, op string) error {
	if err := r.store.Save(ctx, r.configs()); err != nil {
		r.logger.Error("saving reader settings failed", "operation", op, "error", err)
		return StorageFailure.Describe(err.Error())
	}
	return nil
}

// open allocates a session and connects it. On failure nothing is left
// allocated.
func (r *Registry) open(ctx context.Context, cfg Config, ev *events) (*Session, error) {
	s, err := NewSession(r.drv, r.codec, r.timeout, r.logger)
	if err != nil {
		r.logger.Error("allocating reader session failed", "reader_id", cfg.ID, "error", err)
		return nil, InternalFailure.Describe(err.Error())
	}
	if err := s.Connect(ctx, cfg.BusAddr, cfg.PortNumber); err != nil {
		s.Close()
		e := AsError(err)
		ev.add(EventDeviceError, cfg.ID, map[string]any{
			"operation":  "connect",
			"error_code": e.Code,
			"error_msg":  e.Message,
		})
		return nil, err
	}
	ev.add(EventReaderConnected, cfg.ID, map[string]any{
		"bus_addr":    int(cfg.BusAddr),
		"port_number": cfg.PortNumber,
	})
	return s, nil
}

// drop disconnects and releases the entry's session.
func (r *Registry) drop(ctx context.Context, e *entry, ev *events, reason string) {
	s, ok := e.session()
	if !ok {
		return
	}
	s.Disconnect(ctx)
	s.Close()
	e.link = disconnected{}
	ev.add(EventReaderDisconnected, e.cfg.ID, map[string]any{"reason": reason})
}

// settle moves an entry to disconnected when its session lost the link
// during a device call, and records device failures.
func (r *Registry) settle(e *entry, op string, err error, ev *events) {
	if err != nil {
		if ae := AsError(err); ae.Native() || ae.Code == DeviceTimeout.Code {
			ev.add(EventDeviceError, e.cfg.ID, map[string]any{
				"operation":  op,
				"error_code": ae.Code,
				"error_msg":  ae.Message,
			})
		}
	}

	s, ok := e.session()
	if !ok || s.Connected() {
		return
	}
	s.Close()
	e.link = disconnected{}
	r.logger.Warn("reader link lost", "reader_id", e.cfg.ID, "operation", op)
	ev.add(EventLinkLost, e.cfg.ID, map[string]any{"operation": op})
}

// AddReader registers a reader. f must carry reader_id, bus_addr and
// port_number and may carry state; state true connects immediately and a
// failed connect registers nothing.
func (r *Registry) AddReader(ctx context.Context, f Fields) error {
	r.mu.Lock()
	var ev events
	err := r.addReader(ctx, f, &ev)
	r.mu.Unlock()

	r.publish(ev)
	return err
}

func (r *Registry) addReader(ctx context.Context, f Fields, ev *events) error {
	id, _ := f[FieldReaderID].(string)

	if err := r.validate("add_reader", []any{f},
		shape(f, []string{FieldReaderID, FieldBusAddr, FieldPortNumber}, []string{FieldState}),
		field(InvalidReaderID, f),
		when(ReaderExists, func() bool { return r.exists(id) }, id),
		field(InvalidReaderBusAddr, f),
		field(ReaderBusAddrOutOfRange, f),
		field(InvalidReaderPortNumber, f),
		field(InvalidReaderState, f),
	); err != nil {
		return err
	}

	bus, _ := asInt(f[FieldBusAddr])
	port, _ := asInt(f[FieldPortNumber])
	e := &entry{
		cfg:  Config{ID: id, BusAddr: uint8(bus), PortNumber: int(port)},
		link: disconnected{},
	}

	if state, _ := f[FieldState].(bool); state {
		s, err := r.open(ctx, e.cfg, ev)
		if err != nil {
			return err
		}
		e.link = connected{session: s}
	}

	r.entries[id] = e
	if err := r.persist(ctx, "add_reader"); err != nil {
		delete(r.entries, id)
		r.drop(ctx, e, ev, "rollback")
		return err
	}

	r.logger.Info("reader added", "reader_id", id, "bus_addr", bus, "port_number", port, "state", e.connected())
	ev.add(EventReaderAdded, id, map[string]any{
		"bus_addr":    int(e.cfg.BusAddr),
		"port_number": e.cfg.PortNumber,
		"state":       e.connected(),
	})
	return nil
}

// UpdateReader changes any of reader_id, bus_addr, port_number and state.
//
// A state change is applied first: true connects, false disconnects.
// Addressing and identity may change only if the reader ends the call
// disconnected; otherwise the call fails with ReaderIsConnected before any
// device is touched. A field counts as changed only when its value differs.
func (r *Registry) UpdateReader(ctx context.Context, id string, f Fields) error {
	r.mu.Lock()
	var ev events
	err := r.updateReader(ctx, id, f, &ev)
	r.mu.Unlock()

	r.publish(ev)
	return err
}

func (r *Registry) updateReader(ctx context.Context, id string, f Fields, ev *events) error {
	newID, renaming := f[FieldReaderID].(string)
	renaming = renaming && newID != id

	// next is the addressing the entry ends with; only read after the
	// field rules passed.
	next := func() Config {
		c := r.entries[id].cfg
		if renaming {
			c.ID = newID
		}
		if v, ok := f[FieldBusAddr]; ok {
			n, _ := asInt(v)
			c.BusAddr = uint8(n)
		}
		if v, ok := f[FieldPortNumber]; ok {
			n, _ := asInt(v)
			c.PortNumber = int(n)
		}
		return c
	}
	endsConnected := func() bool {
		if state, ok := f[FieldState].(bool); ok {
			return state
		}
		return r.entries[id].connected()
	}

	if err := r.validate("update_reader", []any{id, f},
		r.mustExist(id),
		shape(f, nil, []string{FieldReaderID, FieldBusAddr, FieldPortNumber, FieldState}),
		field(InvalidReaderID, f),
		field(InvalidReaderBusAddr, f),
		field(ReaderBusAddrOutOfRange, f),
		field(InvalidReaderPortNumber, f),
		field(InvalidReaderState, f),
		when(ReaderExists, func() bool { return renaming && r.exists(newID) }, newID),
		when(ReaderIsConnected, func() bool { return endsConnected() && next() != r.entries[id].cfg }, id),
	); err != nil {
		return err
	}

	e := r.entries[id]
	target := next()

	if state, ok := f[FieldState].(bool); ok {
		switch {
		case state && !e.connected():
			s, err := r.open(ctx, e.cfg, ev)
			if err != nil {
				return err
			}
			e.link = connected{session: s}
		case !state && e.connected():
			r.drop(ctx, e, ev, "requested")
		}
	}

	if target == e.cfg {
		return nil
	}

	prev := e.cfg
	delete(r.entries, prev.ID)
	e.cfg = target
	r.entries[target.ID] = e

	if err := r.persist(ctx, "update_reader"); err != nil {
		delete(r.entries, target.ID)
		e.cfg = prev
		r.entries[prev.ID] = e
		return err
	}

	details := map[string]any{
		"bus_addr":    int(target.BusAddr),
		"port_number": target.PortNumber,
	}
	if target.ID != prev.ID {
		details["previous_id"] = prev.ID
	}
	r.logger.Info("reader updated", "reader_id", target.ID, "previous_id", prev.ID,
		"bus_addr", target.BusAddr, "port_number", target.PortNumber)
	ev.add(EventReaderUpdated, target.ID, details)
	return nil
}

// Connect opens the reader's link. Connecting a connected reader succeeds
// without touching the device.
func (r *Registry) Connect(ctx context.Context, id string) error {
	return r.UpdateReader(ctx, id, Fields{FieldState: true})
}

// Disconnect closes the reader's link and releases its session.
func (r *Registry) Disconnect(ctx context.Context, id string) error {
	return r.UpdateReader(ctx, id, Fields{FieldState: false})
}

// DeleteReader removes a disconnected reader.
func (r *Registry) DeleteReader(ctx context.Context, id string) error {
	r.mu.Lock()
	var ev events
	err := r.deleteReader(ctx, id, &ev)
	r.mu.Unlock()

	r.publish(ev)
	return err
}

func (r *Registry) deleteReader(ctx context.Context, id string, ev *events) error {
	if err := r.validate("delete_reader", []any{id},
		r.mustExist(id),
		r.mustBeDisconnected(id),
	); err != nil {
		return err
	}

	e := r.entries[id]
	delete(r.entries, id)
	if err := r.persist(ctx, "delete_reader"); err != nil {
		r.entries[id] = e
		return err
	}

	r.logger.Info("reader deleted", "reader_id", id)
	ev.add(EventReaderDeleted, id, nil)
	return nil
}

// DeleteAllReaders empties the registry. It fails as a whole if any reader
// is connected.
func (r *Registry) DeleteAllReaders(ctx context.Context) error {
	r.mu.Lock()
	var ev events
	err := r.deleteAllReaders(ctx, &ev)
	r.mu.Unlock()

	r.publish(ev)
	return err
}

func (r *Registry) deleteAllReaders(ctx context.Context, ev *events) error {
	anyConnected := func() bool {
		for _, e := range r.entries {
			if e.connected() {
				return true
			}
		}
		return false
	}

	if err := r.validate("delete_all_readers", nil,
		when(ReadersListAlreadyIsEmpty, func() bool { return len(r.entries) == 0 }),
		when(OneOrMoreReadersAreConnected, anyConnected),
	); err != nil {
		return err
	}

	prev := r.entries
	r.entries = make(map[string]*entry)
	if err := r.persist(ctx, "delete_all_readers"); err != nil {
		r.entries = prev
		return err
	}

	ids := make([]string, 0, len(prev))
	for id := range prev {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	r.logger.Info("all readers deleted", "count", len(prev))
	ev.add(EventReadersCleared, "", map[string]any{"count": len(prev), "reader_ids": ids})
	return nil
}
