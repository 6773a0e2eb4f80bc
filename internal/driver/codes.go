package driver

// Device-native status codes. Zero is success; every failure is negative.
const (
	CodeOK = 0

	CodeNoData          = -101
	CodeParameterRange  = -106
	CodeBufferLength    = -107
	CodePortOpen        = -111
	CodeNoReaderFound   = -120
	CodeNotConnected    = -1033
	CodeContextReleased = -1034
	CodeProtocol        = -1200
	CodeFrameChecksum   = -1211
	CodeFrameAddress    = -1212
	CodeReaderTimeout   = -1220
	CodeTagNotFound     = -4081
	CodeTagHandler      = -4082
	CodeRFCommunication = -4083
	CodeTagWrite        = -4084
	CodeTagISOError     = -4085
)

var codeText = map[int]string{
	CodeOK:              "OK",
	CodeNoData:          "no data",
	CodeParameterRange:  "parameter out of range",
	CodeBufferLength:    "buffer length too small",
	CodePortOpen:        "port could not be opened",
	CodeNoReaderFound:   "no reader found",
	CodeNotConnected:    "communication process not started",
	CodeContextReleased: "reader context released",
	CodeProtocol:        "unexpected reader status",
	CodeFrameChecksum:   "frame checksum mismatch",
	CodeFrameAddress:    "frame from unexpected bus address",
	CodeReaderTimeout:   "reader did not answer in time",
	CodeTagNotFound:     "no transponder in reader field",
	CodeTagHandler:      "tag handler not identified",
	CodeRFCommunication: "RF communication error",
	CodeTagWrite:        "transponder write error",
	CodeTagISOError:     "ISO transponder error",
}

// Text returns the message for a native code, or "" when the code is not
// part of the driver's table.
func Text(code int) string {
	return codeText[code]
}

// LinkLost reports whether code means the communication link is gone and
// the context must connect again before further calls.
func LinkLost(code int) bool {
	switch code {
	case CodeNotConnected, CodeContextReleased, CodeNoReaderFound, CodeReaderTimeout, CodePortOpen:
		return true
	}
	return false
}
