package isc

import (
	"errors"
	"fmt"
	"io"

	"github.com/sigurn/crc16"
)

const (
	maxFrameLen     = 255
	requestOverhead = 5 // LEN, COM-ADR, CMD, CRC16
	responseMinLen  = 6 // LEN, COM-ADR, CMD, STATUS, CRC16
)

var crcTable = crc16.MakeTable(crc16.CRC16_MCRF4XX)

var (
	errFrameTooLong = errors.New("isc: frame exceeds 255 bytes")
	errShortFrame   = errors.New("isc: short frame")
	errChecksum     = errors.New("isc: checksum mismatch")
	errTimeout      = errors.New("isc: no answer from reader")
)

// response is one decoded reader answer.
type response struct {
	addr   byte
	cmd    byte
	status byte
	data   []byte
}

func checksum(b []byte) uint16 {
	return crc16.Checksum(b, crcTable)
}

// encodeRequest builds a request frame for the reader at addr.
func encodeRequest(addr, cmd byte, data []byte) ([]byte, error) {
	n := requestOverhead + len(data)
	if n > maxFrameLen {
		return nil, fmt.Errorf("%w: %d", errFrameTooLong, n)
	}

	frame := make([]byte, 0, n)
	frame = append(frame, byte(n), addr, cmd)
	frame = append(frame, data...)
	crc := checksum(frame)
	frame = append(frame, byte(crc), byte(crc>>8))
	return frame, nil
}

// decodeResponse validates and splits a complete response frame.
func decodeResponse(frame []byte) (response, error) {
	if len(frame) < responseMinLen || int(frame[0]) != len(frame) {
		return response{}, fmt.Errorf("%w: %d bytes", errShortFrame, len(frame))
	}

	body := frame[:len(frame)-2]
	want := uint16(frame[len(frame)-2]) | uint16(frame[len(frame)-1])<<8
	if got := checksum(body); got != want {
		return response{}, fmt.Errorf("%w: got 0x%04x want 0x%04x", errChecksum, got, want)
	}

	return response{
		addr:   frame[1],
		cmd:    frame[2],
		status: frame[3],
		data:   body[4:],
	}, nil
}

// readFrame reads one response frame. A read that returns no bytes is the
// port's read timeout expiring.
func readFrame(r io.Reader) ([]byte, error) {
	head := make([]byte, 1)
	if err := readFull(r, head); err != nil {
		return nil, err
	}
	n := int(head[0])
	if n < responseMinLen {
		return nil, fmt.Errorf("%w: LEN=%d", errShortFrame, n)
	}

	frame := make([]byte, n)
	frame[0] = head[0]
	if err := readFull(r, frame[1:]); err != nil {
		return nil, err
	}
	return frame, nil
}

func readFull(r io.Reader, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := r.Read(buf[off:])
		if err != nil {
			return err
		}
		if n == 0 {
			return errTimeout
		}
		off += n
	}
	return nil
}
