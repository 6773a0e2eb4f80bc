package reader

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/nerrad567/rfidhub/internal/tagcodec"
)

// Kind is one entry of the error catalogue.
//
// Kinds with a Param validate the request field of that name; kinds without
// one are raised from registry state by the operation itself.
type Kind struct {
	Code    int
	Message string
	Param   string

	// check reports whether v is a failure for this kind.
	check func(v any) bool
}

// Check reports whether v fails this kind's predicate. Kinds without a
// predicate never fail.
func (k *Kind) Check(v any) bool {
	if k.check == nil {
		return false
	}
	return k.check(v)
}

// Describe returns the kind as an *Error. Extra text, when given, is
// appended to the message in parentheses.
func (k *Kind) Describe(extra ...string) *Error {
	msg := k.Message
	if len(extra) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(extra, ", "))
	}
	return &Error{Code: k.Code, Message: msg}
}

// Error implements error so kinds can be used as errors.Is targets.
func (k *Kind) Error() string {
	return k.Message
}

// Error is the structured failure every registry operation returns.
// Non-negative codes come from the catalogue; negative codes are
// device-native.
type Error struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("reader: %s (code %d)", e.Message, e.Code)
}

// Is matches another *Error or a catalogue *Kind with the same code.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *Kind:
		return t.Code == e.Code
	case *Error:
		return t.Code == e.Code
	}
	return false
}

// Native reports whether the error carries a device-native code.
func (e *Error) Native() bool {
	return e.Code < 0
}

// NativeError wraps a device-native code and the driver's text for it.
func NativeError(code int, text string) *Error {
	return &Error{Code: code, Message: text}
}

// maxReaderIDLength bounds reader identifiers, which double as section
// names in the settings file.
const maxReaderIDLength = 64

// The catalogue.
var (
	WrongRequestShape = &Kind{
		Code:    1,
		Message: "wrong set of request parameters",
	}
	InvalidReaderID = &Kind{
		Code:    2,
		Message: "invalid reader identifier",
		Param:   "reader_id",
		check:   func(v any) bool { s, ok := v.(string); return !ok || !validReaderID(s) },
	}
	InvalidReaderBusAddr = &Kind{
		Code:    3,
		Message: "invalid bus address value",
		Param:   "bus_addr",
		check:   func(v any) bool { _, ok := asInt(v); return !ok },
	}
	ReaderBusAddrOutOfRange = &Kind{
		Code:    4,
		Message: "bus address is out of range [0, 255]",
		Param:   "bus_addr",
		check: func(v any) bool {
			n, _ := asInt(v)
			return n < 0 || n > math.MaxUint8
		},
	}
	InvalidReaderPortNumber = &Kind{
		Code:    5,
		Message: "invalid port number value",
		Param:   "port_number",
		check: func(v any) bool {
			n, ok := asInt(v)
			return !ok || n < math.MinInt32 || n > math.MaxInt32
		},
	}
	InvalidReaderState = &Kind{
		Code:    6,
		Message: "invalid reader state value",
		Param:   "state",
		check:   func(v any) bool { _, ok := v.(bool); return !ok },
	}
	InvalidTagID = &Kind{
		Code:    7,
		Message: "invalid tag identifier",
		Param:   "tag_id",
		check:   func(v any) bool { s, ok := v.(string); return !ok || !tagcodec.ValidTagID(s) },
	}
	InvalidTagPayload = &Kind{
		Code:    8,
		Message: "invalid tag payload",
		Param:   "data",
		check:   func(v any) bool { _, ok := v.(string); return !ok },
	}
	ReaderExists = &Kind{
		Code:    9,
		Message: "reader with this identifier already exists",
		Param:   "reader_id",
	}
	ReaderNotExists = &Kind{
		Code:    10,
		Message: "reader with this identifier does not exist",
		Param:   "reader_id",
	}
	ReaderIsConnected = &Kind{
		Code:    11,
		Message: "operation is not allowed while the reader is connected",
		Param:   "reader_id",
	}
	ReaderIsDisconnected = &Kind{
		Code:    12,
		Message: "operation is not allowed while the reader is disconnected",
		Param:   "reader_id",
	}
	OneOrMoreReadersAreConnected = &Kind{
		Code:    13,
		Message: "operation is not allowed while one or more readers are connected",
	}
	ReadersListAlreadyIsEmpty = &Kind{
		Code:    14,
		Message: "readers list is already empty",
	}
	StorageFailure = &Kind{
		Code:    15,
		Message: "reader settings could not be saved",
	}
	DeviceTimeout = &Kind{
		Code:    16,
		Message: "reader did not answer in time",
	}
	InternalFailure = &Kind{
		Code:    17,
		Message: "internal error",
	}
)

// Catalogue returns every kind in code order.
func Catalogue() []*Kind {
	return []*Kind{
		WrongRequestShape,
		InvalidReaderID,
		InvalidReaderBusAddr,
		ReaderBusAddrOutOfRange,
		InvalidReaderPortNumber,
		InvalidReaderState,
		InvalidTagID,
		InvalidTagPayload,
		ReaderExists,
		ReaderNotExists,
		ReaderIsConnected,
		ReaderIsDisconnected,
		OneOrMoreReadersAreConnected,
		ReadersListAlreadyIsEmpty,
		StorageFailure,
		DeviceTimeout,
		InternalFailure,
	}
}

// validReaderID accepts identifiers that survive a round trip through the
// settings file as a section name.
func validReaderID(s string) bool {
	if s == "" || len(s) > maxReaderIDLength || s != strings.TrimSpace(s) {
		return false
	}
	if strings.EqualFold(s, "DEFAULT") {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) || r == '[' || r == ']' {
			return false
		}
	}
	return true
}
