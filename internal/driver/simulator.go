package driver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/rfidhub/internal/tagcodec"
)

// Address locates one reader: its bus address on a numbered port.
type Address struct {
	Bus  uint8
	Port int
}

func (a Address) String() string {
	return fmt.Sprintf("bus %d on port %d", a.Bus, a.Port)
}

type simReader struct {
	tags        map[string]tagcodec.Payload
	connectCode int
	tagCodes    map[string]int
	hang        <-chan struct{}
}

// Simulator is an in-memory Driver with a bench of readers and tags.
// It is safe for concurrent use.
type Simulator struct {
	mu        sync.Mutex
	readers   map[Address]*simReader
	allocated int
	released  int
}

// NewSimulator creates an empty bench.
func NewSimulator() *Simulator {
	return &Simulator{readers: make(map[Address]*simReader)}
}

// AddReader attaches a reader at addr. Adding an existing reader is a no-op.
func (s *Simulator) AddReader(addr Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader(addr)
}

// reader returns the reader at addr, creating it. Caller holds s.mu.
func (s *Simulator) reader(addr Address) *simReader {
	r, ok := s.readers[addr]
	if !ok {
		r = &simReader{
			tags:     make(map[string]tagcodec.Payload),
			tagCodes: make(map[string]int),
		}
		s.readers[addr] = r
	}
	return r
}

// RemoveReader detaches the reader at addr. Connected contexts start
// failing with CodeNotConnected.
func (s *Simulator) RemoveReader(addr Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.readers, addr)
}

// PlaceTag puts a tag with the given payload in the reader's field,
// attaching the reader if needed.
func (s *Simulator) PlaceTag(addr Address, id string, payload tagcodec.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader(addr).tags[id] = payload
}

// RemoveTag takes a tag out of the reader's field.
func (s *Simulator) RemoveTag(addr Address, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.readers[addr]; ok {
		delete(r.tags, id)
	}
}

// Tag returns the current payload of a tag in the reader's field.
func (s *Simulator) Tag(addr Address, id string) (tagcodec.Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.readers[addr]
	if !ok {
		return tagcodec.Payload{}, false
	}
	p, ok := r.tags[id]
	return p, ok
}

// FailConnect makes every connect to addr return code. Pass CodeOK to clear.
func (s *Simulator) FailConnect(addr Address, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader(addr).connectCode = code
}

// FailTag makes reads and writes of one tag return code. Pass CodeOK to clear.
func (s *Simulator) FailTag(addr Address, id string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reader(addr)
	if code == CodeOK {
		delete(r.tagCodes, id)
		return
	}
	r.tagCodes[id] = code
}

// Hang blocks every call to the reader at addr until release is closed.
// Pass nil to stop hanging new calls.
func (s *Simulator) Hang(addr Address, release <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader(addr).hang = release
}

// Live returns the number of allocated contexts not yet released.
func (s *Simulator) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocated - s.released
}

// Released returns the total number of Release calls observed.
func (s *Simulator) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// NewContext implements Driver.
func (s *Simulator) NewContext() (Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocated++
	return &simContext{sim: s}, nil
}

// Ports implements PortLister. Ports are reported in ascending order.
func (s *Simulator) Ports() ([]string, error) {
	s.mu.Lock()
	seen := make(map[int]struct{})
	for addr := range s.readers {
		seen[addr.Port] = struct{}{}
	}
	s.mu.Unlock()

	nums := make([]int, 0, len(seen))
	for p := range seen {
		nums = append(nums, p)
	}
	sort.Ints(nums)

	ports := make([]string, len(nums))
	for i, p := range nums {
		ports[i] = fmt.Sprintf("sim%d", p)
	}
	return ports, nil
}

type simContext struct {
	sim       *Simulator
	addr      Address
	connected bool
	released  bool
}

// enter waits out a hang on the connected reader and returns it with s.mu
// held, or returns a failure code with s.mu released.
func (c *simContext) enter(addr Address) (*simReader, int) {
	c.sim.mu.Lock()
	r, ok := c.sim.readers[addr]
	if ok && r.hang != nil {
		hang := r.hang
		c.sim.mu.Unlock()
		<-hang
		c.sim.mu.Lock()
		r, ok = c.sim.readers[addr]
	}
	if c.released {
		c.sim.mu.Unlock()
		return nil, CodeContextReleased
	}
	if !ok {
		c.sim.mu.Unlock()
		return nil, CodeNoReaderFound
	}
	return r, CodeOK
}

func (c *simContext) Connect(busAddr uint8, port int) int {
	addr := Address{Bus: busAddr, Port: port}
	r, code := c.enter(addr)
	if code != CodeOK {
		return code
	}
	defer c.sim.mu.Unlock()

	if r.connectCode != CodeOK {
		return r.connectCode
	}
	c.addr = addr
	c.connected = true
	return CodeOK
}

func (c *simContext) Disconnect() {
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	c.connected = false
}

// link enters the connected reader. Caller must unlock s.mu on CodeOK.
func (c *simContext) link() (*simReader, int) {
	c.sim.mu.Lock()
	connected := c.connected
	c.sim.mu.Unlock()
	if !connected {
		return nil, CodeNotConnected
	}

	r, code := c.enter(c.addr)
	if code == CodeNoReaderFound {
		return nil, CodeNotConnected
	}
	return r, code
}

func (c *simContext) Inventory(ids *[MaxTags]tagcodec.TagID) (int, int) {
	r, code := c.link()
	if code != CodeOK {
		return 0, code
	}
	defer c.sim.mu.Unlock()

	found := make([]string, 0, len(r.tags))
	for id := range r.tags {
		found = append(found, id)
	}
	sort.Strings(found)
	if len(found) > MaxTags {
		found = found[:MaxTags]
	}

	for i, id := range found {
		tid, err := tagcodec.EncodeTagID(id)
		if err != nil {
			return i, CodeTagHandler
		}
		ids[i] = tid
	}
	return len(found), CodeOK
}

func (c *simContext) lookup(r *simReader, id *tagcodec.TagID) (string, int) {
	key, err := tagcodec.DecodeTagID(*id)
	if err != nil {
		return "", CodeParameterRange
	}
	if code, ok := r.tagCodes[key]; ok {
		return key, code
	}
	if _, ok := r.tags[key]; !ok {
		return key, CodeTagNotFound
	}
	return key, CodeOK
}

func (c *simContext) ReadTag(id *tagcodec.TagID, out *tagcodec.Payload) int {
	r, code := c.link()
	if code != CodeOK {
		return code
	}
	defer c.sim.mu.Unlock()

	key, code := c.lookup(r, id)
	if code != CodeOK {
		return code
	}
	*out = r.tags[key]
	return CodeOK
}

func (c *simContext) WriteTag(id *tagcodec.TagID, in *tagcodec.Payload) int {
	r, code := c.link()
	if code != CodeOK {
		return code
	}
	defer c.sim.mu.Unlock()

	key, code := c.lookup(r, id)
	if code != CodeOK {
		return code
	}
	r.tags[key] = *in
	return CodeOK
}

func (c *simContext) ErrorText(code int) string {
	return Text(code)
}

func (c *simContext) Release() {
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	c.sim.released++
	c.released = true
	c.connected = false
}
