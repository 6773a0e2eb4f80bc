package reader

import "errors"

// ReaderInfo is the public view of one registry entry.
type ReaderInfo struct {
	BusAddr    int  `json:"bus_addr"`
	PortNumber int  `json:"port_number"`
	State      bool `json:"state"`
}

// Response is the uniform result envelope. Exactly one of the two keys is
// present; a successful operation without data responds with 0.
type Response struct {
	Response any    `json:"response,omitempty"`
	Error    *Error `json:"error,omitempty"`
}

// Envelope wraps an operation result. A nil v with a nil err yields the
// "no data" response 0.
func Envelope(v any, err error) Response {
	if err != nil {
		return Response{Error: AsError(err)}
	}
	if v == nil {
		return Response{Response: 0}
	}
	return Response{Response: v}
}

// AsError converts any error to an *Error, falling back to InternalFailure
// for errors from outside the catalogue.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var k *Kind
	if errors.As(err, &k) {
		return k.Describe()
	}
	return InternalFailure.Describe(err.Error())
}

// TagBatch is the result of a batch tag operation. Response holds per-tag
// successes, Errors per-tag failures; each map is present only when it has
// at least one entry.
type TagBatch struct {
	Response map[string]any    `json:"response,omitempty"`
	Errors   map[string]*Error `json:"error,omitempty"`
}

func (b *TagBatch) ok(tag string, v any) {
	if b.Response == nil {
		b.Response = make(map[string]any)
	}
	b.Response[tag] = v
}

func (b *TagBatch) fail(tag string, err error) {
	if b.Errors == nil {
		b.Errors = make(map[string]*Error)
	}
	b.Errors[tag] = AsError(err)
}

// Succeeded returns the number of tags that succeeded.
func (b *TagBatch) Succeeded() int { return len(b.Response) }

// Failed returns the number of tags that failed.
func (b *TagBatch) Failed() int { return len(b.Errors) }
