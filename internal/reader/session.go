package reader

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/nerrad567/rfidhub/internal/driver"
	"github.com/nerrad567/rfidhub/internal/tagcodec"
)

// DefaultDeviceTimeout bounds each native call when none is configured.
const DefaultDeviceTimeout = 5 * time.Second

// handle owns one native context and releases it exactly once.
type handle struct {
	native driver.Context
	once   sync.Once
}

func (h *handle) release() {
	h.once.Do(h.native.Release)
}

// Session owns one native reader context and its link state.
//
// The context is allocated in NewSession and released by Close; a runtime
// cleanup releases it if the Session is dropped without Close. Disconnect
// only closes the link, so a session may connect again.
//
// Native calls run one at a time. Each is bounded by the device timeout; a
// call that overruns is abandoned, the link is marked lost, and the next
// call waits for the abandoned one to return before touching the context.
type Session struct {
	h       *handle
	codec   *tagcodec.Codec
	timeout time.Duration
	logger  Logger

	// busy is held for the duration of one native call.
	busy    chan struct{}
	cleanup runtime.Cleanup

	mu        sync.Mutex
	addr      driver.Address
	connected bool
	stale     bool
	closed    bool
}

// NewSession allocates a native context from drv.
func NewSession(drv driver.Driver, codec *tagcodec.Codec, timeout time.Duration, logger Logger) (*Session, error) {
	native, err := drv.NewContext()
	if err != nil {
		return nil, fmt.Errorf("allocating reader context: %w", err)
	}
	if codec == nil {
		codec = tagcodec.Default()
	}
	if timeout <= 0 {
		timeout = DefaultDeviceTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}

	s := &Session{
		h:       &handle{native: native},
		codec:   codec,
		timeout: timeout,
		logger:  logger,
		busy:    make(chan struct{}, 1),
	}
	s.cleanup = runtime.AddCleanup(s, func(h *handle) { h.release() }, s.h)
	return s, nil
}

// Connected reports whether the link is up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Address returns the bus and port of the last connect.
func (s *Session) Address() driver.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// call runs fn against the native context under the device timeout.
// fn's results must only be read when call returns nil.
func (s *Session) call(ctx context.Context, op string, fn func(c driver.Context)) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return NativeError(driver.CodeContextReleased, driver.Text(driver.CodeContextReleased))
	}

	// Only the device timeout abandons a call; caller cancellation does not.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	select {
	case s.busy <- struct{}{}:
	case <-ctx.Done():
		return s.abandon(op, ctx.Err())
	}

	done := make(chan struct{})
	go func() {
		defer s.finish()
		if s.takeStale() {
			s.h.native.Disconnect()
		}
		fn(s.h.native)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return s.abandon(op, ctx.Err())
	}
}

// finish frees the call slot and performs a release deferred by Close.
func (s *Session) finish() {
	<-s.busy
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		s.h.release()
	}
}

func (s *Session) takeStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stale := s.stale
	s.stale = false
	return stale
}

// abandon gives up on a native call that overran its deadline. The link is
// treated as lost.
func (s *Session) abandon(op string, cause error) *Error {
	s.mu.Lock()
	wasConnected := s.connected
	s.connected = false
	s.stale = true
	addr := s.addr
	s.mu.Unlock()

	s.logger.Error("device call abandoned",
		"operation", op,
		"bus_addr", addr.Bus,
		"port_number", addr.Port,
		"timeout", s.timeout,
		"was_connected", wasConnected,
		"error", cause,
	)
	return DeviceTimeout.Describe(op)
}

// nativeError maps a non-zero driver code, dropping the link when the code
// says it is gone.
func (s *Session) nativeError(ctx context.Context, op string, code int) *Error {
	if driver.LinkLost(code) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
	}
	e := NativeError(code, s.ErrorText(ctx, code))
	s.logger.Error("device call failed",
		"operation", op,
		"native_code", code,
		"error_msg", e.Message,
	)
	return e
}

// Connect opens the link to the reader at bus on port. Connecting an
// already connected session is a logged no-op.
func (s *Session) Connect(ctx context.Context, bus uint8, port int) error {
	addr := driver.Address{Bus: bus, Port: port}
	if s.Connected() {
		s.logger.Warn("reader already connected", "bus_addr", bus, "port_number", port)
		return nil
	}

	var code int
	if err := s.call(ctx, "connect", func(c driver.Context) { code = c.Connect(bus, port) }); err != nil {
		return err
	}
	if code != driver.CodeOK {
		return s.nativeError(ctx, "connect", code)
	}

	s.mu.Lock()
	s.addr = addr
	s.connected = true
	s.mu.Unlock()

	s.logger.Info("reader link opened", "bus_addr", bus, "port_number", port)
	return nil
}

// Disconnect closes the link. It always leaves the session disconnected;
// disconnecting a disconnected session is a logged no-op.
func (s *Session) Disconnect(ctx context.Context) {
	if !s.Connected() {
		s.logger.Warn("reader already disconnected")
		return
	}

	if err := s.call(ctx, "disconnect", func(c driver.Context) { c.Disconnect() }); err != nil {
		s.logger.Warn("reader disconnect did not complete", "error", err)
	}

	s.mu.Lock()
	s.connected = false
	addr := s.addr
	s.mu.Unlock()

	s.logger.Info("reader link closed", "bus_addr", addr.Bus, "port_number", addr.Port)
}

func (s *Session) requireLink() *Error {
	if !s.Connected() {
		return ReaderIsDisconnected.Describe()
	}
	return nil
}

// Inventory returns the identifiers of every tag in the antenna field. An
// empty field is not an error.
func (s *Session) Inventory(ctx context.Context) ([]string, error) {
	if e := s.requireLink(); e != nil {
		return nil, e
	}

	var (
		ids  [driver.MaxTags]tagcodec.TagID
		n    int
		code int
	)
	if err := s.call(ctx, "inventory", func(c driver.Context) { n, code = c.Inventory(&ids) }); err != nil {
		return nil, err
	}
	if code != driver.CodeOK {
		return nil, s.nativeError(ctx, "inventory", code)
	}

	n = min(max(n, 0), driver.MaxTags)
	tags := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := tagcodec.DecodeTagID(ids[i])
		if err != nil {
			s.logger.Warn("inventory returned undecodable tag id", "index", i, "error", err)
			continue
		}
		tags = append(tags, id)
	}
	return tags, nil
}

// ReadTag reads and decodes one tag's payload.
func (s *Session) ReadTag(ctx context.Context, tagID string) (string, error) {
	id, err := tagcodec.EncodeTagID(tagID)
	if err != nil || tagID == "" {
		return "", InvalidTagID.Describe(tagID)
	}
	if e := s.requireLink(); e != nil {
		return "", e
	}

	var (
		out  tagcodec.Payload
		code int
	)
	if err := s.call(ctx, "read_tag", func(c driver.Context) { code = c.ReadTag(&id, &out) }); err != nil {
		return "", err
	}
	if code != driver.CodeOK {
		return "", s.nativeError(ctx, "read_tag", code)
	}

	text, err := s.codec.DecodePayload(out)
	if err != nil {
		return "", InvalidTagPayload.Describe(err.Error())
	}
	return text, nil
}

// WriteTag writes one payload block. A blank payload clears the tag.
func (s *Session) WriteTag(ctx context.Context, tagID string, p tagcodec.Payload) error {
	id, err := tagcodec.EncodeTagID(tagID)
	if err != nil || tagID == "" {
		return InvalidTagID.Describe(tagID)
	}
	if e := s.requireLink(); e != nil {
		return e
	}

	var code int
	if err := s.call(ctx, "write_tag", func(c driver.Context) { code = c.WriteTag(&id, &p) }); err != nil {
		return err
	}
	if code != driver.CodeOK {
		return s.nativeError(ctx, "write_tag", code)
	}
	return nil
}

// ErrorText returns the driver's text for code, or a generic message when
// the driver has none.
func (s *Session) ErrorText(ctx context.Context, code int) string {
	var text string
	if err := s.call(ctx, "error_text", func(c driver.Context) { text = c.ErrorText(code) }); err != nil {
		text = ""
	}
	if text == "" {
		return fmt.Sprintf("invalid error code: %d", code)
	}
	return text
}

// Close disconnects if needed and releases the native context. It is safe
// to call more than once. If an abandoned call still holds the context the
// release happens when that call returns.
func (s *Session) Close() {
	if s.Connected() {
		s.Disconnect(context.Background())
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cleanup.Stop()

	select {
	case s.busy <- struct{}{}:
		s.h.release()
		<-s.busy
	default:
	}
}
