package isc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/rfidhub/internal/driver"
	"github.com/nerrad567/rfidhub/internal/tagcodec"
)

// Host protocol commands.
const (
	cmdSoftwareVersion byte = 0x65
	cmdISOHost         byte = 0xB0

	subInventory   byte = 0x01
	subReadBlocks  byte = 0x23
	subWriteBlocks byte = 0x24

	modeNone      byte = 0x00
	modeAddressed byte = 0x01
)

// Reader status bytes.
const (
	statusOK            byte = 0x00
	statusNoTransponder byte = 0x01
	statusWriteError    byte = 0x03
	statusLength        byte = 0x05
	statusRFComm        byte = 0x83
	statusMoreData      byte = 0x94
	statusISOError      byte = 0x95
)

const (
	uidSize = 8

	// chunkBlocks keeps block transfers inside one frame: 28 blocks of
	// security byte plus 4 data bytes is 140 bytes of response data.
	chunkBlocks = 28
)

// Port is the subset of serial.Port the driver uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Logger is the logging interface used by the driver.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config holds serial settings shared by every reader context.
type Config struct {
	// PortPattern turns a port number into a device name, e.g.
	// "/dev/ttyUSB%d" or "COM%d".
	PortPattern string

	// BaudRate of the serial line.
	BaudRate int

	// ReadTimeout bounds the wait for each response frame.
	ReadTimeout time.Duration
}

// Driver opens serial reader contexts. It implements driver.Driver and
// driver.PortLister.
type Driver struct {
	cfg    Config
	open   func(name string, mode *serial.Mode) (Port, error)
	logger Logger
}

// New creates a serial driver.
func New(cfg Config) *Driver {
	if cfg.PortPattern == "" {
		cfg.PortPattern = "/dev/ttyUSB%d"
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 38400
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	return &Driver{
		cfg: cfg,
		open: func(name string, mode *serial.Mode) (Port, error) {
			return serial.Open(name, mode)
		},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for frame diagnostics.
func (d *Driver) SetLogger(logger Logger) {
	d.logger = logger
}

// NewContext implements driver.Driver.
func (d *Driver) NewContext() (driver.Context, error) {
	return &readerContext{drv: d}, nil
}

// Ports implements driver.PortLister.
func (d *Driver) Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("isc: listing serial ports: %w", err)
	}
	return ports, nil
}

type readerContext struct {
	drv  *Driver
	port Port
	name string
	addr byte
}

func (c *readerContext) Connect(busAddr uint8, portNum int) int {
	c.Disconnect()

	name := fmt.Sprintf(c.drv.cfg.PortPattern, portNum)
	mode := &serial.Mode{
		BaudRate: c.drv.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := c.drv.open(name, mode)
	if err != nil {
		c.drv.logger.Warn("serial open failed", "port", name, "error", err)
		return driver.CodePortOpen
	}
	if err := p.SetReadTimeout(c.drv.cfg.ReadTimeout); err != nil {
		p.Close()
		return driver.CodePortOpen
	}

	c.port, c.name, c.addr = p, name, busAddr

	// Any valid answer to a version query proves a reader is listening at
	// this bus address.
	if _, code := c.transceive(cmdSoftwareVersion, nil); code != driver.CodeOK {
		c.Disconnect()
		if code == driver.CodeReaderTimeout {
			return driver.CodeNoReaderFound
		}
		return code
	}
	return driver.CodeOK
}

func (c *readerContext) Disconnect() {
	if c.port == nil {
		return
	}
	if err := c.port.Close(); err != nil {
		c.drv.logger.Warn("serial close failed", "port", c.name, "error", err)
	}
	c.port = nil
}

// transceive sends one request and returns the response data, mapping
// transport and status failures to native codes.
func (c *readerContext) transceive(cmd byte, data []byte) ([]byte, int) {
	if c.port == nil {
		return nil, driver.CodeNotConnected
	}

	req, err := encodeRequest(c.addr, cmd, data)
	if err != nil {
		return nil, driver.CodeParameterRange
	}
	_ = c.port.ResetInputBuffer()
	if _, err := c.port.Write(req); err != nil {
		c.drv.logger.Warn("serial write failed", "port", c.name, "error", err)
		return nil, driver.CodeNotConnected
	}
	c.drv.logger.Debug("isc request", "port", c.name, "frame", hex.EncodeToString(req))

	raw, err := readFrame(c.port)
	if err != nil {
		return nil, transportCode(err)
	}
	c.drv.logger.Debug("isc response", "port", c.name, "frame", hex.EncodeToString(raw))

	resp, err := decodeResponse(raw)
	if err != nil {
		return nil, transportCode(err)
	}
	if resp.addr != c.addr {
		return nil, driver.CodeFrameAddress
	}
	if resp.cmd != cmd {
		return nil, driver.CodeProtocol
	}
	if code := statusCode(resp.status); code != driver.CodeOK {
		return resp.data, code
	}
	return resp.data, driver.CodeOK
}

func transportCode(err error) int {
	switch {
	case errors.Is(err, errTimeout):
		return driver.CodeReaderTimeout
	case errors.Is(err, errChecksum):
		return driver.CodeFrameChecksum
	case errors.Is(err, errShortFrame):
		return driver.CodeProtocol
	default:
		return driver.CodeNotConnected
	}
}

func statusCode(status byte) int {
	switch status {
	case statusOK, statusMoreData:
		return driver.CodeOK
	case statusNoTransponder:
		return driver.CodeTagNotFound
	case statusWriteError:
		return driver.CodeTagWrite
	case statusLength:
		return driver.CodeParameterRange
	case statusRFComm:
		return driver.CodeRFCommunication
	case statusISOError:
		return driver.CodeTagISOError
	default:
		return driver.CodeProtocol
	}
}

func (c *readerContext) Inventory(ids *[driver.MaxTags]tagcodec.TagID) (int, int) {
	data, code := c.transceive(cmdISOHost, []byte{subInventory, modeNone})
	if code == driver.CodeTagNotFound {
		return 0, driver.CodeOK
	}
	if code != driver.CodeOK {
		return 0, code
	}
	if len(data) < 1 {
		return 0, driver.CodeProtocol
	}

	count := int(data[0])
	records := data[1:]
	const recordSize = 2 + uidSize // TR-TYPE, DSFID, UID
	if len(records) < count*recordSize {
		return 0, driver.CodeProtocol
	}
	if count > driver.MaxTags {
		count = driver.MaxTags
	}

	for i := 0; i < count; i++ {
		uid := records[i*recordSize+2 : (i+1)*recordSize]
		id, err := tagcodec.EncodeTagID(strings.ToUpper(hex.EncodeToString(uid)))
		if err != nil {
			return i, driver.CodeTagHandler
		}
		ids[i] = id
	}
	return count, driver.CodeOK
}

func parseUID(id *tagcodec.TagID) ([]byte, int) {
	s, err := tagcodec.DecodeTagID(*id)
	if err != nil {
		return nil, driver.CodeParameterRange
	}
	uid, err := hex.DecodeString(s)
	if err != nil || len(uid) != uidSize {
		return nil, driver.CodeTagHandler
	}
	return uid, driver.CodeOK
}

func (c *readerContext) ReadTag(id *tagcodec.TagID, out *tagcodec.Payload) int {
	uid, code := parseUID(id)
	if code != driver.CodeOK {
		return code
	}

	var buf tagcodec.Payload
	for first := 0; first < tagcodec.BlockCount; first += chunkBlocks {
		n := min(chunkBlocks, tagcodec.BlockCount-first)

		req := make([]byte, 0, 4+uidSize)
		req = append(req, subReadBlocks, modeAddressed)
		req = append(req, uid...)
		req = append(req, byte(first), byte(n))

		data, code := c.transceive(cmdISOHost, req)
		if code != driver.CodeOK {
			return code
		}
		if len(data) < 2 || int(data[0]) != n || int(data[1]) != tagcodec.BlockSize {
			return driver.CodeBufferLength
		}

		const stride = 1 + tagcodec.BlockSize // security status + block
		blocks := data[2:]
		if len(blocks) < n*stride {
			return driver.CodeBufferLength
		}
		for i := 0; i < n; i++ {
			off := (first + i) * tagcodec.BlockSize
			copy(buf[off:off+tagcodec.BlockSize], blocks[i*stride+1:(i+1)*stride])
		}
	}

	*out = buf
	return driver.CodeOK
}

func (c *readerContext) WriteTag(id *tagcodec.TagID, in *tagcodec.Payload) int {
	uid, code := parseUID(id)
	if code != driver.CodeOK {
		return code
	}

	for first := 0; first < tagcodec.BlockCount; first += chunkBlocks {
		n := min(chunkBlocks, tagcodec.BlockCount-first)
		chunk := in[first*tagcodec.BlockSize : (first+n)*tagcodec.BlockSize]

		req := make([]byte, 0, 5+uidSize+len(chunk))
		req = append(req, subWriteBlocks, modeAddressed)
		req = append(req, uid...)
		req = append(req, byte(first), byte(n), tagcodec.BlockSize)
		req = append(req, chunk...)

		if _, code := c.transceive(cmdISOHost, req); code != driver.CodeOK {
			return code
		}
	}
	return driver.CodeOK
}

func (c *readerContext) ErrorText(code int) string {
	return driver.Text(code)
}

func (c *readerContext) Release() {
	c.Disconnect()
}
